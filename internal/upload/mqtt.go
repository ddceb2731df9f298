package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/chaz8081/sonar-client/internal/contact"
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("upload: timeout")

// Options configures an MQTTUploader.
type Options struct {
	Broker         string
	Topic          string
	ClientID       string
	ConnectTimeout time.Duration
}

// MQTTUploader publishes contact logs to an MQTT broker at QoS 1.
type MQTTUploader struct {
	client paho.Client
	topic  string
	now    func() time.Time
}

// NewMQTTUploader connects to the broker. The client keeps reconnecting
// in the background after the first connection.
func NewMQTTUploader(opts Options) (*MQTTUploader, error) {
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	if opts.ClientID == "" {
		opts.ClientID = "sonar-client-" + uuid.NewString()[:8]
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			slog.Warn("[UPLOAD] broker connection lost", "error", err)
		})

	client := paho.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("upload: connect to %s: %w", opts.Broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("upload: connect to %s: %w", opts.Broker, err)
	}
	slog.Info("[UPLOAD] connected", "broker", opts.Broker, "topic", opts.Topic)

	return &MQTTUploader{client: client, topic: opts.Topic, now: time.Now}, nil
}

// Upload publishes events as one batch and waits for the broker's
// acknowledgement or ctx.
func (u *MQTTUploader) Upload(ctx context.Context, events []contact.Event) error {
	batchID := uuid.NewString()
	payload, err := FormatPayload(batchID, u.now(), events)
	if err != nil {
		return fmt.Errorf("upload: format payload: %w", err)
	}

	token := u.client.Publish(u.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("upload: batch %s: %w", batchID, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("upload: publish batch %s: %w", batchID, err)
	}

	slog.Info("[UPLOAD] contact log uploaded", "batch", batchID, "events", len(events))
	return nil
}

// IsConnected reports whether the broker connection is up.
func (u *MQTTUploader) IsConnected() bool {
	return u.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (u *MQTTUploader) Close() error {
	u.client.Disconnect(1000)
	return nil
}
