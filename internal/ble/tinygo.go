package ble

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// maxValueSize bounds a single characteristic read.
const maxValueSize = 512

// TinyGoCentral implements Central on top of tinygo-org/bluetooth
// (CoreBluetooth on macOS, BlueZ on Linux). tinygo's calls block, so each
// request runs on its own goroutine and reports back through the sink.
type TinyGoCentral struct {
	adapter *bluetooth.Adapter
	sink    func(Event)

	// mu protects everything below.
	mu        sync.Mutex
	addresses map[PeerID]bluetooth.Address
	devices   map[PeerID]*bluetooth.Device
	services  map[PeerID]map[string]bluetooth.DeviceService
	chars     map[PeerID]map[string]bluetooth.DeviceCharacteristic
	rssi      map[PeerID]int
	pending   map[PeerID]bool
	scanning  bool

	stop      chan struct{}
	closeOnce sync.Once
}

// NewTinyGoCentral wraps the default system adapter.
func NewTinyGoCentral() *TinyGoCentral {
	return &TinyGoCentral{
		adapter:   bluetooth.DefaultAdapter,
		addresses: make(map[PeerID]bluetooth.Address),
		devices:   make(map[PeerID]*bluetooth.Device),
		services:  make(map[PeerID]map[string]bluetooth.DeviceService),
		chars:     make(map[PeerID]map[string]bluetooth.DeviceCharacteristic),
		rssi:      make(map[PeerID]int),
		pending:   make(map[PeerID]bool),
		stop:      make(chan struct{}),
	}
}

// Compile-time check that TinyGoCentral implements Central.
var _ Central = (*TinyGoCentral)(nil)

// Adapter returns the underlying tinygo adapter so a peripheral-role
// broadcaster can share it.
func (c *TinyGoCentral) Adapter() *bluetooth.Adapter {
	return c.adapter
}

func (c *TinyGoCentral) Start(sink func(Event)) error {
	c.sink = sink
	if err := c.adapter.Enable(); err != nil {
		sink(Event{Kind: EventStateChanged, State: StateUnsupported})
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	// tinygo fires this with connected=false when a peripheral drops.
	c.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		peer := PeerID(device.Address.String())
		c.mu.Lock()
		_, known := c.devices[peer]
		delete(c.devices, peer)
		delete(c.services, peer)
		delete(c.chars, peer)
		c.mu.Unlock()
		if known {
			c.sink(Event{Kind: EventDisconnected, Peer: peer})
		}
	})

	// tinygo has no power-state callbacks; a successful Enable means on.
	sink(Event{Kind: EventStateChanged, State: StatePoweredOn})
	return nil
}

func (c *TinyGoCentral) Scan(serviceUUID string) error {
	uuid, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}

	c.mu.Lock()
	if c.scanning {
		c.mu.Unlock()
		return nil
	}
	c.scanning = true
	c.mu.Unlock()

	go func() {
		err := c.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(uuid) {
				return
			}
			peer := PeerID(result.Address.String())
			c.mu.Lock()
			c.addresses[peer] = result.Address
			c.rssi[peer] = int(result.RSSI)
			c.mu.Unlock()
			c.sink(Event{Kind: EventDiscovered, Peer: peer, RSSI: int(result.RSSI)})
		})
		c.mu.Lock()
		c.scanning = false
		c.mu.Unlock()
		if err != nil {
			slog.Warn("[BLE] scan stopped", "error", err)
		}
	}()
	return nil
}

// StopScan ends a scan started with Scan.
func (c *TinyGoCentral) StopScan() error {
	return c.adapter.StopScan()
}

// Connect opens a pending connection. tinygo's Connect fails at once when
// the peer is out of range, where CoreBluetooth would keep the request
// open, so failed attempts are retried here with backoff and the request
// stays pending until it succeeds or Close is called. Each failure is still
// reported to the listener; its reconnect lands on the pending request.
func (c *TinyGoCentral) Connect(peer PeerID) error {
	c.mu.Lock()
	addr, ok := c.addresses[peer]
	_, connected := c.devices[peer]
	inFlight := c.pending[peer]
	if ok && !connected && !inFlight {
		c.pending[peer] = true
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("ble: no address known for %s", peer)
	}
	if connected || inFlight {
		return nil
	}

	go func() {
		var device bluetooth.Device
		ok := pendingConnect(c.stop, time.After,
			func() error {
				var err error
				device, err = c.adapter.Connect(addr, bluetooth.ConnectionParams{})
				return err
			},
			func(attempt int, err error) {
				slog.Debug("[BLE] connect attempt failed", "peer", peer, "attempt", attempt, "error", err)
				c.sink(Event{Kind: EventConnected, Peer: peer, Err: err})
			},
		)
		c.mu.Lock()
		delete(c.pending, peer)
		if ok {
			c.devices[peer] = &device
		}
		c.mu.Unlock()
		if ok {
			c.sink(Event{Kind: EventConnected, Peer: peer})
		}
	}()
	return nil
}

// Close abandons pending connects and stops scanning.
func (c *TinyGoCentral) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return c.StopScan()
}

func (c *TinyGoCentral) DiscoverServices(peer PeerID, serviceUUIDs []string) error {
	device, err := c.device(peer)
	if err != nil {
		return err
	}
	uuids, err := parseUUIDs(serviceUUIDs)
	if err != nil {
		return err
	}

	go func() {
		svcs, err := device.DiscoverServices(uuids)
		if err != nil {
			c.sink(Event{Kind: EventServicesFound, Peer: peer, Err: err})
			return
		}
		found := make([]string, 0, len(svcs))
		byUUID := make(map[string]bluetooth.DeviceService, len(svcs))
		for _, svc := range svcs {
			u := svc.UUID().String()
			found = append(found, u)
			byUUID[u] = svc
		}
		c.mu.Lock()
		c.services[peer] = byUUID
		c.mu.Unlock()
		c.sink(Event{Kind: EventServicesFound, Peer: peer, UUIDs: found})
	}()
	return nil
}

func (c *TinyGoCentral) DiscoverCharacteristics(peer PeerID, serviceUUID string, charUUIDs []string) error {
	svcID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}
	c.mu.Lock()
	svc, ok := c.services[peer][svcID.String()]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("ble: service %s not discovered on %s", serviceUUID, peer)
	}
	uuids, err := parseUUIDs(charUUIDs)
	if err != nil {
		return err
	}

	go func() {
		chars, err := svc.DiscoverCharacteristics(uuids)
		if err != nil {
			c.sink(Event{Kind: EventCharacteristicsFound, Peer: peer, Err: err})
			return
		}
		found := make([]string, 0, len(chars))
		byUUID := make(map[string]bluetooth.DeviceCharacteristic, len(chars))
		for _, ch := range chars {
			u := ch.UUID().String()
			found = append(found, u)
			byUUID[u] = ch
		}
		c.mu.Lock()
		c.chars[peer] = byUUID
		c.mu.Unlock()
		c.sink(Event{Kind: EventCharacteristicsFound, Peer: peer, UUIDs: found})
	}()
	return nil
}

func (c *TinyGoCentral) ReadValue(peer PeerID, charUUID string) error {
	ch, err := c.characteristic(peer, charUUID)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, maxValueSize)
		n, err := ch.Read(buf)
		if err != nil {
			c.sink(Event{Kind: EventCharacteristicValue, Peer: peer, Char: charUUID, Err: err})
			return
		}
		c.sink(Event{Kind: EventCharacteristicValue, Peer: peer, Char: charUUID, Value: buf[:n]})
	}()
	return nil
}

func (c *TinyGoCentral) SetNotify(peer PeerID, charUUID string) error {
	ch, err := c.characteristic(peer, charUUID)
	if err != nil {
		return err
	}
	return ch.EnableNotifications(func(buf []byte) {
		value := make([]byte, len(buf))
		copy(value, buf)
		c.sink(Event{Kind: EventCharacteristicValue, Peer: peer, Char: charUUID, Value: value})
	})
}

// ReadRSSI reports the most recent advertisement RSSI for peer. tinygo
// cannot query RSSI on an open connection, so scanning keeps this fresh.
func (c *TinyGoCentral) ReadRSSI(peer PeerID) error {
	c.mu.Lock()
	rssi, ok := c.rssi[peer]
	c.mu.Unlock()
	go func() {
		if !ok {
			c.sink(Event{Kind: EventRSSIRead, Peer: peer, Err: fmt.Errorf("ble: no RSSI sample for %s", peer)})
			return
		}
		c.sink(Event{Kind: EventRSSIRead, Peer: peer, RSSI: rssi})
	}()
	return nil
}

func (c *TinyGoCentral) device(peer PeerID) (*bluetooth.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.devices[peer]
	if !ok {
		return nil, fmt.Errorf("ble: %s is not connected", peer)
	}
	return d, nil
}

func (c *TinyGoCentral) characteristic(peer PeerID, charUUID string) (bluetooth.DeviceCharacteristic, error) {
	id, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("ble: parse characteristic UUID: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chars[peer][id.String()]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("ble: characteristic %s not discovered on %s", charUUID, peer)
	}
	return ch, nil
}

func parseUUIDs(in []string) ([]bluetooth.UUID, error) {
	out := make([]bluetooth.UUID, 0, len(in))
	for _, s := range in {
		u, err := bluetooth.ParseUUID(s)
		if err != nil {
			return nil, fmt.Errorf("ble: parse UUID %q: %w", s, err)
		}
		out = append(out, u)
	}
	return out, nil
}
