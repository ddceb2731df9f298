package contact

import (
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/sonar-client/internal/ble"
)

// Collector turns what the BLE listener reports into recorded contact
// events. The listener requests RSSI right after every identity read, so
// an identity read is held until the next RSSI sample for the same peer
// and recorded with it. Events are never recorded without a measured RSSI.
type Collector struct {
	recorder *Recorder
	now      func() time.Time

	mu      sync.Mutex
	pending map[ble.PeerID][]Event
}

// NewCollector returns a Collector appending to recorder.
func NewCollector(recorder *Recorder) *Collector {
	return &Collector{
		recorder: recorder,
		now:      time.Now,
		pending:  make(map[ble.PeerID][]Event),
	}
}

// Compile-time check that Collector implements ble.Delegate.
var _ ble.Delegate = (*Collector)(nil)

func (c *Collector) PeerIdentityFound(peer ble.PeerID, identity []byte) {
	e := Event{
		PeerID:    string(peer),
		Identity:  hex.EncodeToString(identity),
		Timestamp: c.now(),
	}
	c.mu.Lock()
	c.pending[peer] = append(c.pending[peer], e)
	c.mu.Unlock()
}

func (c *Collector) RSSIRead(peer ble.PeerID, rssi int) {
	c.mu.Lock()
	held := c.pending[peer]
	delete(c.pending, peer)
	c.mu.Unlock()

	for _, e := range held {
		e.RSSI = rssi
		c.recorder.Record(e)
	}
}

func (c *Collector) TxPowerRead(peer ble.PeerID, txPower int) {
	slog.Debug("[CONTACT] tx power", "peer", peer, "txPower", txPower)
}

// Pending returns how many identity reads are waiting for an RSSI sample.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, held := range c.pending {
		n += len(held)
	}
	return n
}
