// Package cache implements the persistent, project-scoped relationship cache:
// three independent tables (locations, forms, relationships) in one SQLite
// file, each a simple key-value mapping from project id to a CBOR-encoded
// payload with created/last-accessed timestamps.
//
// The store is process-wide shared state. Every table operation takes that
// table's mutex, so concurrent export requests never lose updates, and the
// read-modify-write eviction sequences run atomically per table.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sitedocs/formexport/pkg/models"
)

// Table names one of the three independent cache tables.
type Table string

const (
	TableLocations     Table = "location_cache"
	TableForms         Table = "forms_cache"
	TableRelationships Table = "relationships_cache"
)

// tables is the fixed iteration order; lock acquisition follows this order
// when an operation spans tables.
var tables = []Table{TableLocations, TableForms, TableRelationships}

// Entry is one cached row. Payload is an opaque CBOR blob owned by the
// caller's type.
type Entry struct {
	ProjectID    string    `gorm:"column:project_id;primaryKey"`
	Payload      []byte    `gorm:"column:payload;not null"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	LastAccessed time.Time `gorm:"column:last_accessed;index"`
}

// Config bounds the store. Zero fields take the defaults below, which mirror
// the service's historical limits.
type Config struct {
	// Path is the SQLite file location.
	Path string

	// SizeThreshold is the file size in bytes beyond which the whole store is
	// dropped and reinitialized. No partial eviction at this level.
	SizeThreshold int64

	// Retention is how long an entry may go unread before age eviction
	// removes it.
	Retention time.Duration

	// MaxEntries is the per-table capacity; eviction keeps the MaxEntries
	// most recently accessed rows.
	MaxEntries int
}

const (
	DefaultSizeThreshold = 100 * 1024 * 1024
	DefaultRetention     = 30 * 24 * time.Hour
	DefaultMaxEntries    = 500
)

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "cache.db"
	}
	if c.SizeThreshold <= 0 {
		c.SizeThreshold = DefaultSizeThreshold
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	return c
}

// Store owns the cache tables and their locks. Construct with Open and inject
// where caching is needed; there is no ambient global instance.
type Store struct {
	cfg Config
	log zerolog.Logger

	// mu guards db replacement during a full reset; table mutexes guard row
	// operations within each table.
	mu      sync.RWMutex
	db      *gorm.DB
	tableMu map[Table]*sync.Mutex

	// now is swappable in tests.
	now func() time.Time
}

// Open opens (creating if needed) the cache file and migrates the three
// tables.
func Open(cfg Config, log zerolog.Logger) (*Store, error) {
	cfg = cfg.withDefaults()
	s := &Store{
		cfg:     cfg,
		log:     log.With().Str("component", "cache").Logger(),
		tableMu: make(map[Table]*sync.Mutex, len(tables)),
		now:     time.Now,
	}
	for _, t := range tables {
		s.tableMu[t] = &sync.Mutex{}
	}

	db, err := openDB(cfg.Path)
	if err != nil {
		return nil, err
	}
	s.db = db
	return s, nil
}

func openDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	for _, t := range tables {
		if err := db.Table(string(t)).AutoMigrate(&Entry{}); err != nil {
			return nil, fmt.Errorf("failed to migrate cache table %s: %w", t, err)
		}
	}
	return db, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closeDB(s.db)
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get loads the cached payload for a project into out, refreshing the row's
// last-accessed timestamp. Returns false with a nil error on a miss; the
// caller falls through to a live fetch either way.
func (s *Store) Get(ctx context.Context, table Table, projectID string, out any) (bool, error) {
	key := models.CleanProjectID(projectID)

	s.mu.RLock()
	defer s.mu.RUnlock()
	s.tableMu[table].Lock()
	defer s.tableMu[table].Unlock()

	var entry Entry
	err := s.db.WithContext(ctx).Table(string(table)).First(&entry, "project_id = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("cache read %s/%s: %w", table, key, err)
	}

	if err := cbor.Unmarshal(entry.Payload, out); err != nil {
		return false, fmt.Errorf("cache decode %s/%s: %w", table, key, err)
	}

	if err := s.db.WithContext(ctx).Table(string(table)).
		Where("project_id = ?", key).
		Update("last_accessed", s.now()).Error; err != nil {
		s.log.Warn().Err(err).Str("table", string(table)).Msg("failed to refresh last_accessed")
	}
	return true, nil
}

// Put upserts the payload for a project as a single atomic row write.
func (s *Store) Put(ctx context.Context, table Table, projectID string, payload any) error {
	key := models.CleanProjectID(projectID)

	blob, err := cbor.Marshal(payload)
	if err != nil {
		return fmt.Errorf("cache encode %s/%s: %w", table, key, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	s.tableMu[table].Lock()
	defer s.tableMu[table].Unlock()

	now := s.now()
	entry := Entry{ProjectID: key, Payload: blob, CreatedAt: now, LastAccessed: now}
	err = s.db.WithContext(ctx).Table(string(table)).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "last_accessed"}),
		}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("cache write %s/%s: %w", table, key, err)
	}
	return nil
}

// Stats reports per-table entry counts and the cache file size.
type Stats struct {
	FileSizeBytes int64           `json:"fileSizeBytes"`
	SizeThreshold int64           `json:"sizeThresholdBytes"`
	MaxEntries    int             `json:"maxEntries"`
	RetentionDays int             `json:"retentionDays"`
	Entries       map[Table]int64 `json:"entries"`
}

// CollectStats returns the current cache statistics.
func (s *Store) CollectStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		FileSizeBytes: s.fileSize(),
		SizeThreshold: s.cfg.SizeThreshold,
		MaxEntries:    s.cfg.MaxEntries,
		RetentionDays: int(s.cfg.Retention / (24 * time.Hour)),
		Entries:       make(map[Table]int64, len(tables)),
	}
	for _, t := range tables {
		var count int64
		if err := s.db.WithContext(ctx).Table(string(t)).Count(&count).Error; err != nil {
			return Stats{}, fmt.Errorf("cache stats for %s: %w", t, err)
		}
		stats.Entries[t] = count
	}
	return stats, nil
}

func (s *Store) fileSize() int64 {
	info, err := os.Stat(s.cfg.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}
