// Package ble implements the peer-discovery and keepalive side of the
// contact-tracing client. A Listener drives each discovered peer through
// connect, service discovery and characteristic subscription, reports the
// identities and signal strengths it reads, and keeps the radio awake with a
// periodic keepalive.
package ble

import "errors"

// PeerID identifies a peripheral as reported by the platform radio stack.
// On macOS this is a CoreBluetooth UUID, on Linux a MAC address.
type PeerID string

// ErrTransientRadio marks connect, read and discovery failures. They are
// logged and retried through the reconnect path, never surfaced.
var ErrTransientRadio = errors.New("transient radio error")

// Central abstracts the platform's BLE central role. Every method is
// fire-and-forget: results arrive later as Events posted to the sink given
// to Start. A returned error means the request could not be issued at all.
type Central interface {
	// Start powers on the radio and registers sink for all callbacks.
	// The first event posted is normally an EventStateChanged.
	Start(sink func(Event)) error
	// Scan starts discovering peripherals advertising serviceUUID.
	Scan(serviceUUID string) error
	// Connect requests a connection. Connecting an already connected peer
	// is a no-op.
	Connect(peer PeerID) error
	// DiscoverServices looks up the given services on a connected peer.
	DiscoverServices(peer PeerID, serviceUUIDs []string) error
	// DiscoverCharacteristics looks up characteristics within a service.
	DiscoverCharacteristics(peer PeerID, serviceUUID string, charUUIDs []string) error
	// ReadValue reads a characteristic once.
	ReadValue(peer PeerID, charUUID string) error
	// SetNotify subscribes to value notifications on a characteristic.
	SetNotify(peer PeerID, charUUID string) error
	// ReadRSSI requests a fresh signal-strength reading.
	ReadRSSI(peer PeerID) error
}

// Broadcaster publishes this device's keepalive value to connected peers.
type Broadcaster interface {
	SendKeepalive(value []byte) error
}

// StateDelegate is told about every radio state change.
type StateDelegate interface {
	RadioStateChanged(state RadioState)
}

// Delegate receives what the Listener learns about peers.
type Delegate interface {
	// PeerIdentityFound is called for every well-formed identity read.
	PeerIdentityFound(peer PeerID, identity []byte)
	// RSSIRead is called for every completed signal-strength reading.
	RSSIRead(peer PeerID, rssi int)
	// TxPowerRead is called when a peer advertises its transmit power.
	TxPowerRead(peer PeerID, txPower int)
}
