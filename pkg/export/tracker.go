// Package export runs whole-project batch exports: it assembles one
// normalized document plus resolved asset links per form, reporting progress
// per project as it goes.
package export

import (
	"sync"

	"github.com/sitedocs/formexport/pkg/models"
)

// Tracker holds per-project batch progress. Updates replace the whole record
// atomically, so readers never observe a half-written state; concurrent
// batches for different projects never interfere, and for the same project
// the last writer wins.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]models.ProgressState
}

// NewTracker creates an empty progress tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]models.ProgressState)}
}

// Set replaces the progress record for a project.
func (t *Tracker) Set(state models.ProgressState) {
	key := models.CleanProjectID(state.ProjectID)
	state.ProjectID = key
	t.mu.Lock()
	t.states[key] = state
	t.mu.Unlock()
}

// Get returns the progress record for a project. A project with no batch in
// flight gets a zero state, not an error.
func (t *Tracker) Get(projectID string) models.ProgressState {
	key := models.CleanProjectID(projectID)
	t.mu.RLock()
	state, ok := t.states[key]
	t.mu.RUnlock()
	if !ok {
		return models.ProgressState{ProjectID: key}
	}
	return state
}

// Clear removes a project's progress record.
func (t *Tracker) Clear(projectID string) {
	key := models.CleanProjectID(projectID)
	t.mu.Lock()
	delete(t.states, key)
	t.mu.Unlock()
}
