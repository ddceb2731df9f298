package ble

import (
	"slices"
	"sync"
	"time"
)

// Phase is the connection phase of a peripheral session.
type Phase int

const (
	PhaseDiscovered Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseServicesDiscovered
	PhaseSubscribed
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhaseDiscovered:
		return "discovered"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseServicesDiscovered:
		return "servicesDiscovered"
	case PhaseSubscribed:
		return "subscribed"
	case PhaseDisconnected:
		return "disconnected"
	default:
		return "invalid"
	}
}

// Connected reports whether the peer holds a live connection.
func (p Phase) Connected() bool {
	return p >= PhaseConnected && p <= PhaseSubscribed
}

// Session is the per-peer connection state.
type Session struct {
	Peer                PeerID
	Phase               Phase
	Identity            []byte // nil until the identity characteristic is read
	IdentitySubscribed  bool
	KeepaliveSubscribed bool
	RSSI                int
	HasRSSI             bool
	LastSeen            time.Time
}

// SessionTracker holds one Session per peer. Sessions are never removed
// while the process runs; a peer that disappears keeps its last state.
//
// The Listener's event loop is the only writer. The lock exists so that
// monitoring code can take snapshots from other goroutines.
type SessionTracker struct {
	mu       sync.RWMutex
	sessions map[PeerID]*Session
}

// NewSessionTracker returns an empty tracker.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{sessions: make(map[PeerID]*Session)}
}

// session returns the entry for peer, creating it if needed (caller holds mu).
func (t *SessionTracker) session(peer PeerID) *Session {
	s, ok := t.sessions[peer]
	if !ok {
		s = &Session{Peer: peer, Phase: PhaseDiscovered}
		t.sessions[peer] = s
	}
	return s
}

// Track records a sighting of peer and reports whether it was new.
func (t *SessionTracker) Track(peer PeerID, seen time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, known := t.sessions[peer]
	s := t.session(peer)
	if !seen.IsZero() {
		s.LastSeen = seen
	}
	return !known
}

// Lookup returns a copy of the session for peer.
func (t *SessionTracker) Lookup(peer PeerID) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[peer]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// SetPhase moves peer to phase. Entering PhaseDisconnected drops the
// subscription flags, since notifications do not survive a disconnect.
func (t *SessionTracker) SetPhase(peer PeerID, phase Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.session(peer)
	s.Phase = phase
	if phase == PhaseDisconnected {
		s.IdentitySubscribed = false
		s.KeepaliveSubscribed = false
	}
}

// SetIdentity stores the last identity payload read from peer.
func (t *SessionTracker) SetIdentity(peer PeerID, identity []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session(peer).Identity = slices.Clone(identity)
}

// MarkSubscribed records which characteristics notify for peer. Once
// either is subscribed the session enters PhaseSubscribed.
func (t *SessionTracker) MarkSubscribed(peer PeerID, identity, keepalive bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.session(peer)
	s.IdentitySubscribed = s.IdentitySubscribed || identity
	s.KeepaliveSubscribed = s.KeepaliveSubscribed || keepalive
	if s.IdentitySubscribed || s.KeepaliveSubscribed {
		s.Phase = PhaseSubscribed
	}
}

// SetRSSI stores the latest signal-strength sample for peer.
func (t *SessionTracker) SetRSSI(peer PeerID, rssi int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.session(peer)
	s.RSSI = rssi
	s.HasRSSI = true
}

// Peers returns all tracked peer identifiers in sorted order.
func (t *SessionTracker) Peers() []PeerID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	peers := make([]PeerID, 0, len(t.sessions))
	for p := range t.sessions {
		peers = append(peers, p)
	}
	slices.Sort(peers)
	return peers
}

// Snapshot returns copies of all sessions ordered by peer.
func (t *SessionTracker) Snapshot() []Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s.clone())
	}
	slices.SortFunc(out, func(a, b Session) int {
		switch {
		case a.Peer < b.Peer:
			return -1
		case a.Peer > b.Peer:
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of tracked peers.
func (t *SessionTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

func (s *Session) clone() Session {
	c := *s
	c.Identity = slices.Clone(s.Identity)
	return c
}
