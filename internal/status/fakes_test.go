package status

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chaz8081/sonar-client/internal/contact"
)

type memPersister struct {
	state  State
	writes int
	err    error
}

func (p *memPersister) StatusState() (State, error) { return p.state, nil }

func (p *memPersister) SetStatusState(s State) error {
	p.writes++
	if p.err != nil {
		return p.err
	}
	p.state = s
	return nil
}

type notification struct {
	identifier string
	title      string
	fireDate   time.Time
}

type fakeScheduler struct {
	requests []notification
}

func (s *fakeScheduler) Schedule(identifier, title, _ string, fireDate time.Time) error {
	s.requests = append(s.requests, notification{identifier: identifier, title: title, fireDate: fireDate})
	return nil
}

type fakePublisher struct {
	topics []string
}

func (p *fakePublisher) Publish(topic string) { p.topics = append(p.topics, topic) }

type fakeUploader struct {
	mu      sync.Mutex
	batches [][]contact.Event
	fail    bool
}

func (u *fakeUploader) Upload(_ context.Context, events []contact.Event) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.batches = append(u.batches, events)
	if u.fail {
		return errors.New("network down")
	}
	return nil
}

func (u *fakeUploader) calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.batches)
}

type staticLog []contact.Event

func (l staticLog) Events() []contact.Event { return l }
