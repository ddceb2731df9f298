package contact

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/chaz8081/sonar-client/internal/metrics"
)

// Store persists the full contact log.
type Store interface {
	ContactEvents() ([]Event, error)
	SetContactEvents(events []Event) error
	ResetContactEvents() error
}

// Recorder is an append-only contact log backed by a Store. Persistence
// failures are logged and never returned, so a bad write cannot stop
// scanning.
type Recorder struct {
	store Store

	mu     sync.Mutex
	events []Event
}

// NewRecorder loads previously persisted events from store.
func NewRecorder(store Store) *Recorder {
	r := &Recorder{store: store}
	events, err := store.ContactEvents()
	if err != nil {
		slog.Error("[CONTACT] failed to load contact events", "error", err)
	}
	r.events = events
	slog.Debug("[CONTACT] loaded contact events", "count", len(events))
	return r
}

// Record appends e and persists the whole log.
func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	metrics.ContactEventsRecorded.Inc()
	if err := r.store.SetContactEvents(r.events); err != nil {
		slog.Error("[CONTACT] failed to persist contact events", "count", len(r.events), "error", err)
	}
}

// Events returns every event recorded since the last reset, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Reset clears the log in memory and in the store.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	if err := r.store.ResetContactEvents(); err != nil {
		slog.Error("[CONTACT] failed to reset contact events", "error", err)
	}
}
