// Package upload sends the contact log upstream.
package upload

import (
	"encoding/json"
	"time"

	"github.com/chaz8081/sonar-client/internal/contact"
)

// DefaultTopic is the MQTT topic contact logs are published to.
const DefaultTopic = "sonar/contacts"

// Payload is the JSON body of one upload.
type Payload struct {
	BatchID    string        `json:"batchId"`
	UploadedAt string        `json:"uploadedAt"`
	Count      int           `json:"count"`
	Events     []EventRecord `json:"events"`
}

// EventRecord is one contact event on the wire.
type EventRecord struct {
	PeerID    string `json:"peerId"`
	Identity  string `json:"identity"`
	Timestamp string `json:"timestamp"`
	RSSI      int    `json:"rssi"`
}

// FormatPayload encodes events as an upload body. Timestamps are UTC
// RFC 3339.
func FormatPayload(batchID string, uploadedAt time.Time, events []contact.Event) ([]byte, error) {
	p := Payload{
		BatchID:    batchID,
		UploadedAt: uploadedAt.UTC().Format(time.RFC3339),
		Count:      len(events),
		Events:     make([]EventRecord, 0, len(events)),
	}
	for _, e := range events {
		p.Events = append(p.Events, EventRecord{
			PeerID:    e.PeerID,
			Identity:  e.Identity,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
			RSSI:      e.RSSI,
		})
	}
	return json.Marshal(p)
}
