package ble

import "fmt"

// RadioState is the power/authorization state of the local radio.
type RadioState int

const (
	StateUnknown RadioState = iota
	StateResetting
	StateUnsupported
	StateUnauthorized
	StatePoweredOff
	StatePoweredOn
)

func (s RadioState) String() string {
	switch s {
	case StateResetting:
		return "resetting"
	case StateUnsupported:
		return "unsupported"
	case StateUnauthorized:
		return "unauthorized"
	case StatePoweredOff:
		return "poweredOff"
	case StatePoweredOn:
		return "poweredOn"
	default:
		return "unknown"
	}
}

// EventKind enumerates the radio callbacks a Central can post.
type EventKind int

const (
	// EventStateChanged carries State.
	EventStateChanged EventKind = iota
	// EventRestored carries Peers handed back by the platform from a
	// previous session.
	EventRestored
	// EventDiscovered carries Peer, RSSI and optionally TxPower.
	EventDiscovered
	// EventConnected carries Peer; Err is set when the connect failed.
	EventConnected
	// EventDisconnected carries Peer and an optional Err.
	EventDisconnected
	// EventServicesFound carries Peer and the discovered service UUIDs.
	EventServicesFound
	// EventServicesInvalidated carries Peer and the invalidated UUIDs.
	EventServicesInvalidated
	// EventCharacteristicsFound carries Peer and characteristic UUIDs.
	EventCharacteristicsFound
	// EventCharacteristicValue carries Peer, Char and Value.
	EventCharacteristicValue
	// EventRSSIRead carries Peer and RSSI.
	EventRSSIRead

	// eventKeepaliveDue is posted by the keepalive timer.
	eventKeepaliveDue
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "StateChanged"
	case EventRestored:
		return "Restored"
	case EventDiscovered:
		return "Discovered"
	case EventConnected:
		return "Connected"
	case EventDisconnected:
		return "Disconnected"
	case EventServicesFound:
		return "ServicesFound"
	case EventServicesInvalidated:
		return "ServicesInvalidated"
	case EventCharacteristicsFound:
		return "CharacteristicsFound"
	case EventCharacteristicValue:
		return "CharacteristicValue"
	case EventRSSIRead:
		return "RSSIRead"
	case eventKeepaliveDue:
		return "KeepaliveDue"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a single radio callback translated into a platform-neutral form.
// Only the fields documented for Kind are meaningful.
type Event struct {
	Kind    EventKind
	Peer    PeerID
	State   RadioState
	Peers   []PeerID
	RSSI    int
	TxPower *int
	UUIDs   []string
	Char    string
	Value   []byte
	Err     error
}
