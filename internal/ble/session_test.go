package ble

import (
	"testing"
	"time"
)

func TestSessionTrackerTrack(t *testing.T) {
	tr := NewSessionTracker()
	seen := time.Date(2020, 4, 1, 12, 0, 0, 0, time.UTC)

	if !tr.Track("peer-a", seen) {
		t.Error("Track() first sighting should report new")
	}
	if tr.Track("peer-a", seen.Add(time.Second)) {
		t.Error("Track() second sighting should not report new")
	}

	s, ok := tr.Lookup("peer-a")
	if !ok {
		t.Fatal("Lookup() did not find tracked peer")
	}
	if s.Phase != PhaseDiscovered {
		t.Errorf("Phase = %v, want %v", s.Phase, PhaseDiscovered)
	}
	if !s.LastSeen.Equal(seen.Add(time.Second)) {
		t.Errorf("LastSeen = %v, want %v", s.LastSeen, seen.Add(time.Second))
	}
}

func TestSessionTrackerDisconnectClearsSubscriptions(t *testing.T) {
	tr := NewSessionTracker()
	tr.SetPhase("p", PhaseServicesDiscovered)
	tr.MarkSubscribed("p", true, true)

	s, _ := tr.Lookup("p")
	if s.Phase != PhaseSubscribed || !s.IdentitySubscribed || !s.KeepaliveSubscribed {
		t.Fatalf("after MarkSubscribed session = %+v", s)
	}

	tr.SetPhase("p", PhaseDisconnected)
	s, _ = tr.Lookup("p")
	if s.IdentitySubscribed || s.KeepaliveSubscribed {
		t.Errorf("subscriptions should be cleared on disconnect: %+v", s)
	}
}

func TestSessionTrackerLookupReturnsCopy(t *testing.T) {
	tr := NewSessionTracker()
	tr.SetIdentity("p", []byte{1, 2, 3})

	s, _ := tr.Lookup("p")
	s.Identity[0] = 9
	s.Phase = PhaseSubscribed

	again, _ := tr.Lookup("p")
	if again.Identity[0] != 1 {
		t.Error("mutating a looked-up session changed tracker state")
	}
	if again.Phase != PhaseDiscovered {
		t.Errorf("Phase = %v, want %v", again.Phase, PhaseDiscovered)
	}
}

func TestSessionTrackerPeersSorted(t *testing.T) {
	tr := NewSessionTracker()
	for _, p := range []PeerID{"c", "a", "b"} {
		tr.Track(p, time.Time{})
	}
	peers := tr.Peers()
	if len(peers) != 3 || peers[0] != "a" || peers[1] != "b" || peers[2] != "c" {
		t.Errorf("Peers() = %v, want [a b c]", peers)
	}
	snap := tr.Snapshot()
	if len(snap) != 3 || snap[2].Peer != "c" {
		t.Errorf("Snapshot() = %+v", snap)
	}
	if tr.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tr.Len())
	}
}

func TestPhaseConnected(t *testing.T) {
	tests := []struct {
		phase Phase
		want  bool
	}{
		{PhaseDiscovered, false},
		{PhaseConnecting, false},
		{PhaseConnected, true},
		{PhaseServicesDiscovered, true},
		{PhaseSubscribed, true},
		{PhaseDisconnected, false},
	}
	for _, tt := range tests {
		if got := tt.phase.Connected(); got != tt.want {
			t.Errorf("%v.Connected() = %v, want %v", tt.phase, got, tt.want)
		}
	}
}
