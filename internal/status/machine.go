package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/sonar-client/internal/contact"
	"github.com/chaz8081/sonar-client/internal/metrics"
)

// Notification identifiers. Scheduling under an identifier that is already
// pending replaces the pending notification.
const (
	DiagnosisNotificationID = "Diagnosis"
	ExposureNotificationID  = "PotentialExposure"
)

// ChangedTopic is published after every accepted transition.
const ChangedTopic = "status.changed"

const (
	diagnosisTitle = "How are you feeling today?"
	diagnosisBody  = "Please open the app to update your symptoms and view your latest advice. Keep isolating until you have checked in."
	exposureTitle  = "Potential exposure"
	exposureBody   = "Someone you have been near has reported symptoms. Open the app to see what to do next."
)

// Persister stores the current state.
type Persister interface {
	// StatusState returns the stored state, or nil if none was stored.
	StatusState() (State, error)
	SetStatusState(s State) error
}

// Scheduler schedules user-visible notifications.
type Scheduler interface {
	Schedule(identifier, title, body string, fireDate time.Time) error
}

// Publisher broadcasts zero-payload events to in-process subscribers.
type Publisher interface {
	Publish(topic string)
}

// Uploader sends the contact log upstream.
type Uploader interface {
	Upload(ctx context.Context, events []contact.Event) error
}

// ContactLog supplies the events to upload.
type ContactLog interface {
	Events() []contact.Event
}

// Collaborators are the machine's external dependencies. Store is
// required; the rest may be nil, in which case the side effect is skipped.
type Collaborators struct {
	Store     Persister
	Contacts  ContactLog
	Uploader  Uploader
	Publisher Publisher
	Scheduler Scheduler
}

// MachineOptions tunes the machine.
type MachineOptions struct {
	Location      *time.Location // calendar for expiry arithmetic; nil means time.Local
	Policy        ResultPolicy   // nil means DefaultResultPolicy
	UploadTimeout time.Duration
}

// Machine holds the current State. Each operation is a single
// read-modify-persist-notify step under one lock.
type Machine struct {
	store     Persister
	contacts  ContactLog
	uploader  Uploader
	publisher Publisher
	scheduler Scheduler

	loc           *time.Location
	policy        ResultPolicy
	uploadTimeout time.Duration

	mu      sync.Mutex
	state   State
	uploads sync.WaitGroup
}

// NewMachine loads the persisted state, falling back to Ok.
// Panics if c.Store is nil (programmer error).
func NewMachine(c Collaborators, opts MachineOptions) *Machine {
	if c.Store == nil {
		panic("status: NewMachine called with nil store")
	}
	if opts.Policy == nil {
		opts.Policy = DefaultResultPolicy
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 30 * time.Second
	}

	m := &Machine{
		store:         c.Store,
		contacts:      c.Contacts,
		uploader:      c.Uploader,
		publisher:     c.Publisher,
		scheduler:     c.Scheduler,
		loc:           location(opts.Location),
		policy:        opts.Policy,
		uploadTimeout: opts.UploadTimeout,
		state:         Ok{},
	}

	stored, err := c.Store.StatusState()
	switch {
	case err != nil:
		slog.Error("[STATUS] failed to load state, starting at ok", "error", err)
	case stored != nil:
		m.state = stored
	}
	slog.Debug("[STATUS] loaded", "state", m.state.Kind())
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Location returns the calendar used for expiry arithmetic.
func (m *Machine) Location() *time.Location {
	return m.loc
}

// SelfDiagnose moves to Symptomatic from any state, schedules the
// isolation-end notification and uploads the contact log.
func (m *Machine) SelfDiagnose(symptoms Symptoms, startDate time.Time) error {
	if len(symptoms) == 0 {
		return ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := Symptomatic{Symptoms: NewSymptoms(symptoms...), StartDate: startDate}
	m.transition(next)
	m.schedule(DiagnosisNotificationID, diagnosisTitle, diagnosisBody, next.ExpiryDate(m.loc))
	m.uploadContacts()
	return nil
}

// Exposed moves Ok or Unexposed to Exposed. It never interrupts a
// symptomatic or check-in episode.
func (m *Machine) Exposed(exposureDate time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.(type) {
	case Ok, Unexposed:
	default:
		slog.Info("[STATUS] ignoring exposure", "state", m.state.Kind())
		return
	}

	m.transition(Exposed{ExposureDate: exposureDate})
	m.schedule(ExposureNotificationID, exposureTitle, exposureBody, exposureDate)
}

// Tick applies time-based expiry. It is idempotent and cheap, so callers
// may invoke it at any cadence.
func (m *Machine) Tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch s := m.state.(type) {
	case Symptomatic:
		expiry := s.ExpiryDate(m.loc)
		if now.Before(expiry) {
			return
		}
		// A notification for this instant was scheduled at onset.
		m.transition(Checkin{Symptoms: s.Symptoms, CheckinDate: expiry})
	case Exposed:
		if now.Before(s.ExpiryDate(m.loc)) {
			return
		}
		m.transition(Ok{})
	}
}

// Checkin records the daily answer while in Checkin. Without a
// temperature the episode ends; otherwise the next check-in is the next
// 07:00 after now. Outside Checkin the call does nothing.
func (m *Machine) Checkin(symptoms Symptoms, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.(Checkin); !ok {
		slog.Info("[STATUS] ignoring checkin", "state", m.state.Kind())
		return
	}

	if !symptoms.Contains(Temperature) {
		m.transition(Ok{})
		return
	}

	next := Checkin{Symptoms: NewSymptoms(symptoms...), CheckinDate: nextCheckinTime(now.In(m.loc))}
	m.transition(next)
	m.schedule(DiagnosisNotificationID, diagnosisTitle, diagnosisBody, next.CheckinDate)
}

// Received applies a decoded test result through the result policy.
func (m *Machine) Received(result TestResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := m.policy(m.state, result)
	if !ok || next == nil || Equal(next, m.state) {
		slog.Info("[STATUS] test result leaves state unchanged", "result", result.Result, "state", m.state.Kind())
		return
	}

	_, wasSymptomatic := m.state.(Symptomatic)
	m.transition(next)
	if s, ok := next.(Symptomatic); ok && !wasSymptomatic {
		m.schedule(DiagnosisNotificationID, diagnosisTitle, diagnosisBody, s.ExpiryDate(m.loc))
		m.uploadContacts()
	}
}

// ReceivedPayload decodes a raw test-result payload and applies it. An
// undecodable payload returns ErrDecoding and changes nothing.
func (m *Machine) ReceivedPayload(data []byte) error {
	result, err := DecodeTestResult(data)
	if err != nil {
		slog.Error("[STATUS] unable to process test result", "error", err)
		return err
	}
	m.Received(result)
	return nil
}

// Run ticks immediately and then every interval until ctx is done.
func (m *Machine) Run(ctx context.Context, interval time.Duration) {
	m.Tick(time.Now())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Tick(now)
		}
	}
}

// Wait blocks until in-flight uploads have finished.
func (m *Machine) Wait() {
	m.uploads.Wait()
}

// transition replaces the state, persists it and announces the change.
// The caller holds mu. A failed write is logged; the in-memory state is
// already complete at that point.
func (m *Machine) transition(next State) {
	prev := m.state
	m.state = next
	metrics.StatusTransitions.WithLabelValues(string(prev.Kind()), string(next.Kind())).Inc()
	slog.Info("[STATUS] transition", "from", prev.Kind(), "to", next.Kind())

	if err := m.store.SetStatusState(next); err != nil {
		slog.Error("[STATUS] failed to persist state", "state", next.Kind(), "error", err)
	}
	if m.publisher != nil {
		m.publisher.Publish(ChangedTopic)
	}
}

func (m *Machine) schedule(identifier, title, body string, fireDate time.Time) {
	if m.scheduler == nil {
		return
	}
	if err := m.scheduler.Schedule(identifier, title, body, fireDate); err != nil {
		slog.Error("[STATUS] failed to schedule notification", "identifier", identifier, "error", err)
		return
	}
	metrics.NotificationsScheduled.WithLabelValues(identifier).Inc()
}

// uploadContacts sends the contact log in the background. Failures are
// logged; retrying is the uploader's concern.
func (m *Machine) uploadContacts() {
	if m.uploader == nil || m.contacts == nil {
		return
	}
	events := m.contacts.Events()

	m.uploads.Add(1)
	go func() {
		defer m.uploads.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.uploadTimeout)
		defer cancel()
		if err := m.uploader.Upload(ctx, events); err != nil {
			metrics.Uploads.WithLabelValues("failure").Inc()
			slog.Error("[STATUS] contact upload failed", "events", len(events), "error", err)
			return
		}
		metrics.Uploads.WithLabelValues("success").Inc()
	}()
}
