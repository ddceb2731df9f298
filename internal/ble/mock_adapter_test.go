package ble

import (
	"sync"
	"testing"
	"time"
)

// mockCentral records every radio request issued by the listener.
type mockCentral struct {
	mu sync.Mutex

	sink          func(Event)
	startEvents   []Event
	scans         []string
	connects      []PeerID
	serviceLookup []PeerID
	charLookup    map[PeerID][]string
	reads         map[PeerID][]string
	notifies      map[PeerID][]string
	rssiReads     []PeerID

	connectErr error
	readErr    error
}

func newMockCentral() *mockCentral {
	return &mockCentral{
		charLookup: make(map[PeerID][]string),
		reads:      make(map[PeerID][]string),
		notifies:   make(map[PeerID][]string),
	}
}

func (c *mockCentral) Start(sink func(Event)) error {
	c.mu.Lock()
	c.sink = sink
	events := c.startEvents
	c.mu.Unlock()
	for _, ev := range events {
		sink(ev)
	}
	return nil
}

func (c *mockCentral) Scan(serviceUUID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scans = append(c.scans, serviceUUID)
	return nil
}

func (c *mockCentral) Connect(peer PeerID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects = append(c.connects, peer)
	return c.connectErr
}

func (c *mockCentral) DiscoverServices(peer PeerID, _ []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serviceLookup = append(c.serviceLookup, peer)
	return nil
}

func (c *mockCentral) DiscoverCharacteristics(peer PeerID, _ string, charUUIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.charLookup[peer] = append(c.charLookup[peer], charUUIDs...)
	return nil
}

func (c *mockCentral) ReadValue(peer PeerID, charUUID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads[peer] = append(c.reads[peer], charUUID)
	return c.readErr
}

func (c *mockCentral) SetNotify(peer PeerID, charUUID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifies[peer] = append(c.notifies[peer], charUUID)
	return nil
}

func (c *mockCentral) ReadRSSI(peer PeerID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rssiReads = append(c.rssiReads, peer)
	return nil
}

func (c *mockCentral) scanCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scans)
}

func (c *mockCentral) connectCount(peer PeerID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.connects {
		if p == peer {
			n++
		}
	}
	return n
}

func (c *mockCentral) rssiCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rssiReads)
}

// mockBroadcaster records keepalive values.
type mockBroadcaster struct {
	mu     sync.Mutex
	values [][]byte
}

func (b *mockBroadcaster) SendKeepalive(value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = append(b.values, append([]byte(nil), value...))
	return nil
}

// recordingDelegate captures delegate callbacks.
type recordingDelegate struct {
	states     []RadioState
	identities map[PeerID][]byte
	rssi       map[PeerID]int
	txPower    map[PeerID]int
}

func newRecordingDelegate() *recordingDelegate {
	return &recordingDelegate{
		identities: make(map[PeerID][]byte),
		rssi:       make(map[PeerID]int),
		txPower:    make(map[PeerID]int),
	}
}

func (d *recordingDelegate) RadioStateChanged(state RadioState) { d.states = append(d.states, state) }
func (d *recordingDelegate) PeerIdentityFound(peer PeerID, identity []byte) {
	d.identities[peer] = identity
}
func (d *recordingDelegate) RSSIRead(peer PeerID, rssi int)       { d.rssi[peer] = rssi }
func (d *recordingDelegate) TxPowerRead(peer PeerID, txPower int) { d.txPower[peer] = txPower }

// fakeClock is a manually advanced clock.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time           { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// scheduledCall captures a keepalive timer instead of arming it.
type scheduledCall struct {
	delay time.Duration
	fire  func()
}

func TestMockCentralImplementsInterface(t *testing.T) {
	var _ Central = (*mockCentral)(nil)
}

func TestMockBroadcasterImplementsInterface(t *testing.T) {
	var _ Broadcaster = (*mockBroadcaster)(nil)
}

func TestRecordingDelegateImplementsInterfaces(t *testing.T) {
	var _ Delegate = (*recordingDelegate)(nil)
	var _ StateDelegate = (*recordingDelegate)(nil)
}
