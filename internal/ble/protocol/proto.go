// Package protocol defines the wire constants of the contact-tracing BLE
// service and validates payloads read from its characteristics.
package protocol

import (
	"errors"
	"fmt"
)

// Service and characteristic UUIDs advertised by participating peers.
const (
	ServiceUUID       = "c1f5983c-fa94-4ac8-8e2e-bb86d6de9b21"
	IdentityCharUUID  = "85bf337c-5b64-48eb-a5f7-a9fed135c972"
	KeepaliveCharUUID = "d802c645-5c7b-40dd-985a-9fbee05fe85c"
)

// IdentityLength is the fixed size of a broadcast identity payload.
const IdentityLength = 106

// KeepaliveLength is the size of a keepalive characteristic value.
const KeepaliveLength = 1

// ErrProtocol marks a malformed payload. Callers log and drop these.
var ErrProtocol = errors.New("protocol error")

// Identity is a peer's broadcast identity payload.
type Identity []byte

// String returns a short hex prefix suitable for logs.
func (id Identity) String() string {
	if len(id) > 8 {
		return fmt.Sprintf("%x…", []byte(id[:8]))
	}
	return fmt.Sprintf("%x", []byte(id))
}

// ParseIdentity validates an identity characteristic value. want is the
// expected payload length; zero means IdentityLength. The returned Identity
// does not alias data.
func ParseIdentity(data []byte, want int) (Identity, error) {
	if want <= 0 {
		want = IdentityLength
	}
	if len(data) != want {
		return nil, fmt.Errorf("%w: identity payload is %d bytes, want %d", ErrProtocol, len(data), want)
	}
	id := make(Identity, len(data))
	copy(id, data)
	return id, nil
}

// ParseKeepalive validates a keepalive characteristic value and returns the
// counter it carries.
func ParseKeepalive(data []byte) (uint8, error) {
	if len(data) != KeepaliveLength {
		return 0, fmt.Errorf("%w: keepalive value is %d bytes, want %d", ErrProtocol, len(data), KeepaliveLength)
	}
	return data[0], nil
}

// KeepaliveValue encodes a counter as a keepalive characteristic value.
func KeepaliveValue(counter uint8) []byte {
	return []byte{counter}
}
