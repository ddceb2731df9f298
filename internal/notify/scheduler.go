// Package notify delivers local notifications and in-process change events.
package notify

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Notification is a user-visible message due at FireDate.
type Notification struct {
	Identifier string    `json:"identifier"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	FireDate   time.Time `json:"fireDate"`
}

// DeliverFunc presents a due notification to the user.
type DeliverFunc func(Notification)

// LogDeliver writes the notification to the log.
func LogDeliver(n Notification) {
	slog.Info("[NOTIFY] "+n.Title, "identifier", n.Identifier, "body", n.Body)
}

type pending struct {
	n     Notification
	timer *time.Timer
}

// Scheduler fires notifications at their fire date. Scheduling under an
// identifier that is still pending replaces it.
type Scheduler struct {
	deliver DeliverFunc
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]*pending
	stopped bool
}

// NewScheduler returns a scheduler that hands due notifications to
// deliver. A nil deliver uses LogDeliver.
func NewScheduler(deliver DeliverFunc) *Scheduler {
	if deliver == nil {
		deliver = LogDeliver
	}
	return &Scheduler{
		deliver: deliver,
		now:     time.Now,
		pending: make(map[string]*pending),
	}
}

// Schedule arranges for a notification to fire at fireDate. A fire date in
// the past fires immediately.
func (s *Scheduler) Schedule(identifier, title, body string, fireDate time.Time) error {
	n := Notification{Identifier: identifier, Title: title, Body: body, FireDate: fireDate}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}

	if old, ok := s.pending[identifier]; ok {
		old.timer.Stop()
		slog.Debug("[NOTIFY] superseding pending notification", "identifier", identifier, "was", old.n.FireDate)
	}

	p := &pending{n: n}
	p.timer = time.AfterFunc(fireDate.Sub(s.now()), func() { s.fire(p) })
	s.pending[identifier] = p
	slog.Info("[NOTIFY] scheduled", "identifier", identifier, "fire_date", fireDate.Format(time.RFC3339))
	return nil
}

func (s *Scheduler) fire(p *pending) {
	s.mu.Lock()
	if s.pending[p.n.Identifier] != p {
		// Superseded after the timer had already fired.
		s.mu.Unlock()
		return
	}
	delete(s.pending, p.n.Identifier)
	s.mu.Unlock()

	s.deliver(p.n)
}

// Cancel drops the pending notification with identifier, if any.
func (s *Scheduler) Cancel(identifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[identifier]; ok {
		p.timer.Stop()
		delete(s.pending, identifier)
	}
}

// Pending returns the notifications not yet delivered, soonest first.
func (s *Scheduler) Pending() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p.n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireDate.Before(out[j].FireDate) })
	return out
}

// Stop cancels every pending notification. Later calls to Schedule fail.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
	s.stopped = true
}
