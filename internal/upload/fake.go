package upload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/sonar-client/internal/contact"
)

// FakeUploader records uploads for test assertions.
type FakeUploader struct {
	mu sync.Mutex

	// Batches holds every uploaded event slice.
	Batches [][]contact.Event

	// Payloads holds the JSON bodies that would have been sent.
	Payloads [][]byte

	// UploadError, if set, is returned by Upload.
	UploadError error
}

// NewFakeUploader creates a FakeUploader.
func NewFakeUploader() *FakeUploader {
	return &FakeUploader{}
}

// Upload records events.
func (f *FakeUploader) Upload(_ context.Context, events []contact.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UploadError != nil {
		return f.UploadError
	}
	payload, err := FormatPayload("fake", time.Unix(0, 0), events)
	if err != nil {
		return err
	}
	f.Batches = append(f.Batches, events)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// Count returns the number of recorded uploads.
func (f *FakeUploader) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Batches)
}

// LogUploader logs uploads without sending them. It stands in when no
// broker is configured.
type LogUploader struct{}

func (LogUploader) Upload(_ context.Context, events []contact.Event) error {
	slog.Warn("[UPLOAD] no broker configured, contact log not sent", "events", len(events))
	return nil
}
