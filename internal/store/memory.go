package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"slices"
	"sync"

	"github.com/chaz8081/sonar-client/internal/contact"
	"github.com/chaz8081/sonar-client/internal/status"
)

// Memory is a process-local store for tests and dry runs.
type Memory struct {
	mu       sync.Mutex
	state    status.State
	events   []contact.Event
	identity []byte
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) StatusState() (status.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *Memory) SetStatusState(s status.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	return nil
}

func (m *Memory) ContactEvents() ([]contact.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events), nil
}

func (m *Memory) SetContactEvents(events []contact.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = slices.Clone(events)
	return nil
}

func (m *Memory) ResetContactEvents() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	return nil
}

func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.state = nil
	return nil
}

func (m *Memory) BroadcastIdentity(n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.identity) != n {
		m.identity = make([]byte, n)
		if _, err := rand.Read(m.identity); err != nil {
			return nil, fmt.Errorf("store: generate identity: %w", err)
		}
	}
	return slices.Clone(m.identity), nil
}
