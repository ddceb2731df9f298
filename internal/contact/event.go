// Package contact records the peers this device has been near.
package contact

import "time"

// Event is a single contact with a peer. Identity is the hex-encoded
// identity payload the peer broadcasts; PeerID is the radio address it was
// read through, which may rotate. Two events are equal when all fields are.
type Event struct {
	PeerID    string    `json:"peerId"`
	Identity  string    `json:"identity"`
	Timestamp time.Time `json:"timestamp"`
	RSSI      int       `json:"rssi"`
}

// Equal reports whether e and o describe the same contact.
func (e Event) Equal(o Event) bool {
	return e.PeerID == o.PeerID &&
		e.Identity == o.Identity &&
		e.Timestamp.Equal(o.Timestamp) &&
		e.RSSI == o.RSSI
}
