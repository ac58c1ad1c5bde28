package cache

import (
	"context"
	"fmt"
	"os"
	"time"
)

// CheckAndEvict applies the three-step eviction policy. Callers run it before
// each cache-touching batch operation.
//
//  1. Size-triggered full reset: when the cache file exceeds the byte
//     threshold, the whole store is dropped and reinitialized empty.
//  2. Age-triggered partial eviction: rows unread for longer than the
//     retention window are removed, independently per table.
//  3. Capacity-triggered partial eviction: each table keeps only its
//     MaxEntries most recently accessed rows.
//
// Tables are evicted independently; one table exceeding capacity never
// touches another table's rows.
func (s *Store) CheckAndEvict(ctx context.Context) error {
	if size := s.fileSize(); size > s.cfg.SizeThreshold {
		s.log.Info().
			Int64("size", size).
			Int64("threshold", s.cfg.SizeThreshold).
			Msg("cache file over size threshold, resetting store")
		return s.reset()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().Add(-s.cfg.Retention)
	for _, t := range tables {
		if err := s.evictTable(ctx, t, cutoff); err != nil {
			return err
		}
	}
	return nil
}

// evictTable runs the age and capacity steps for one table under that table's
// lock, so the count-then-delete sequence is not interleaved with writers.
func (s *Store) evictTable(ctx context.Context, table Table, cutoff time.Time) error {
	s.tableMu[table].Lock()
	defer s.tableMu[table].Unlock()

	res := s.db.WithContext(ctx).Table(string(table)).
		Where("last_accessed < ?", cutoff).
		Delete(&Entry{})
	if res.Error != nil {
		return fmt.Errorf("age eviction for %s: %w", table, res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.Debug().Str("table", string(table)).Int64("removed", res.RowsAffected).Msg("evicted aged cache entries")
	}

	var count int64
	if err := s.db.WithContext(ctx).Table(string(table)).Count(&count).Error; err != nil {
		return fmt.Errorf("capacity check for %s: %w", table, err)
	}
	if count <= int64(s.cfg.MaxEntries) {
		return nil
	}

	keep := s.db.Table(string(table)).
		Select("project_id").
		Order("last_accessed DESC").
		Limit(s.cfg.MaxEntries)
	res = s.db.WithContext(ctx).Table(string(table)).
		Where("project_id NOT IN (?)", keep).
		Delete(&Entry{})
	if res.Error != nil {
		return fmt.Errorf("capacity eviction for %s: %w", table, res.Error)
	}
	s.log.Debug().Str("table", string(table)).Int64("removed", res.RowsAffected).Msg("evicted cache entries over capacity")
	return nil
}

// ClearAll drops every table and reinitializes the store empty. Exposed for
// the manual cache-clear operation.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.reset()
}

// reset closes the database, removes the file, and reopens a fresh store.
func (s *Store) reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := closeDB(s.db); err != nil {
		s.log.Warn().Err(err).Msg("failed to close cache database before reset")
	}
	if err := os.Remove(s.cfg.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}

	db, err := openDB(s.cfg.Path)
	if err != nil {
		return err
	}
	s.db = db
	s.log.Info().Str("path", s.cfg.Path).Msg("cache store reinitialized")
	return nil
}
