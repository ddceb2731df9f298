package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/chaz8081/sonar-client/internal/ble/protocol"
	"github.com/chaz8081/sonar-client/internal/metrics"
)

// ListenerOptions configures the Listener.
type ListenerOptions struct {
	ServiceUUID       string
	IdentityCharUUID  string
	KeepaliveCharUUID string
	IdentityLength    int           // expected identity payload size
	KeepaliveInterval time.Duration // min gap between keepalives, also the send delay
	QueueSize         int           // buffered radio events before drops
}

// DefaultListenerOptions returns the protocol defaults. The keepalive
// interval stays under the ~10s of background time the OS grants after a
// BLE wake, so a full round-trip fits in one wake.
func DefaultListenerOptions() ListenerOptions {
	return ListenerOptions{
		ServiceUUID:       protocol.ServiceUUID,
		IdentityCharUUID:  protocol.IdentityCharUUID,
		KeepaliveCharUUID: protocol.KeepaliveCharUUID,
		IdentityLength:    protocol.IdentityLength,
		KeepaliveInterval: 8 * time.Second,
		QueueSize:         256,
	}
}

// Listener drives the discovery → connect → subscribe → keepalive protocol
// for every peer the Central reports. All radio events are handled one at a
// time on the goroutine running Run.
type Listener struct {
	central     Central
	broadcaster Broadcaster
	opts        ListenerOptions

	events   chan Event
	sessions *SessionTracker

	// Owned by the event loop.
	lastKeepalive time.Time
	keepalive     KeepaliveCounter
	now           func() time.Time
	schedule      func(d time.Duration, f func())

	mu                 sync.Mutex
	stateDelegate      StateDelegate
	delegate           Delegate
	keepaliveScheduled bool
}

// NewListener creates a Listener. Zero-valued options fall back to
// DefaultListenerOptions.
func NewListener(central Central, broadcaster Broadcaster, opts ListenerOptions) *Listener {
	def := DefaultListenerOptions()
	if opts.ServiceUUID == "" {
		opts.ServiceUUID = def.ServiceUUID
	}
	if opts.IdentityCharUUID == "" {
		opts.IdentityCharUUID = def.IdentityCharUUID
	}
	if opts.KeepaliveCharUUID == "" {
		opts.KeepaliveCharUUID = def.KeepaliveCharUUID
	}
	if opts.IdentityLength <= 0 {
		opts.IdentityLength = def.IdentityLength
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = def.KeepaliveInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	return &Listener{
		central:     central,
		broadcaster: broadcaster,
		opts:        opts,
		events:      make(chan Event, opts.QueueSize),
		sessions:    NewSessionTracker(),
		now:         time.Now,
		schedule: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Start registers the delegates. Either may be nil.
func (l *Listener) Start(stateDelegate StateDelegate, delegate Delegate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stateDelegate = stateDelegate
	l.delegate = delegate
}

// Post queues a radio event for the event loop. It never blocks: when the
// queue is full the event is dropped and logged. Safe for concurrent use.
func (l *Listener) Post(ev Event) {
	select {
	case l.events <- ev:
	default:
		slog.Warn("[BLE] event queue full, dropping event", "kind", ev.Kind, "peer", ev.Peer)
	}
}

// Run starts the central and processes radio events until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.central.Start(l.Post); err != nil {
		return fmt.Errorf("ble: start central: %w", err)
	}
	slog.Info("[BLE] listener running", "service", l.opts.ServiceUUID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-l.events:
			l.handle(ev)
		}
	}
}

// Sessions exposes the peer session tracker for monitoring.
func (l *Listener) Sessions() *SessionTracker {
	return l.sessions
}

// IsHealthy reports whether a keepalive has been scheduled and both
// delegates are registered. It is a liveness signal, not a correctness gate.
func (l *Listener) IsHealthy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keepaliveScheduled && l.stateDelegate != nil && l.delegate != nil
}

func (l *Listener) delegates() (StateDelegate, Delegate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateDelegate, l.delegate
}

// handle dispatches a single event. Only the event loop calls it.
func (l *Listener) handle(ev Event) {
	switch ev.Kind {
	case EventStateChanged:
		l.handleStateChanged(ev)
	case EventRestored:
		l.handleRestored(ev)
	case EventDiscovered:
		l.handleDiscovered(ev)
	case EventConnected:
		l.handleConnected(ev)
	case EventDisconnected:
		l.handleDisconnected(ev)
	case EventServicesFound:
		l.handleServicesFound(ev)
	case EventServicesInvalidated:
		slog.Info("[BLE] services invalidated", "peer", ev.Peer, "services", ev.UUIDs)
	case EventCharacteristicsFound:
		l.handleCharacteristicsFound(ev)
	case EventCharacteristicValue:
		l.handleValue(ev)
	case EventRSSIRead:
		l.handleRSSI(ev)
	case eventKeepaliveDue:
		l.sendKeepalive(ev.Value)
	default:
		slog.Warn("[BLE] unknown event", "kind", ev.Kind)
	}
}

func (l *Listener) handleStateChanged(ev Event) {
	slog.Info("[BLE] radio state", "state", ev.State)
	if sd, _ := l.delegates(); sd != nil {
		sd.RadioStateChanged(ev.State)
	}
	if ev.State != StatePoweredOn {
		return
	}

	// Reconnect restored peers; connect is idempotent on the platform side.
	for _, peer := range l.sessions.Peers() {
		l.connect(peer, "restore")
	}
	if err := l.central.Scan(l.opts.ServiceUUID); err != nil {
		l.radioError("scan", "", err)
	}
}

func (l *Listener) handleRestored(ev Event) {
	if len(ev.Peers) == 0 {
		slog.Info("[BLE] no peripherals to restore")
		return
	}
	slog.Info("[BLE] restoring peripherals", "count", len(ev.Peers))
	for _, peer := range ev.Peers {
		l.sessions.Track(peer, time.Time{})
	}
	metrics.TrackedPeers.Set(float64(l.sessions.Len()))
}

func (l *Listener) handleDiscovered(ev Event) {
	if ev.TxPower != nil {
		slog.Debug("[BLE] peer discovered", "peer", ev.Peer, "rssi", ev.RSSI, "txPower", *ev.TxPower)
		if _, d := l.delegates(); d != nil {
			d.TxPowerRead(ev.Peer, *ev.TxPower)
		}
	} else {
		slog.Debug("[BLE] peer discovered", "peer", ev.Peer, "rssi", ev.RSSI)
	}

	if l.sessions.Track(ev.Peer, l.now()) {
		metrics.PeersDiscovered.Inc()
		metrics.TrackedPeers.Set(float64(l.sessions.Len()))
	}
	s, _ := l.sessions.Lookup(ev.Peer)
	if s.Phase.Connected() {
		return
	}
	l.connect(ev.Peer, "discovered")
}

func (l *Listener) handleConnected(ev Event) {
	if ev.Err != nil {
		// A failed connect goes through the same path as a disconnect.
		l.radioError("connect", ev.Peer, ev.Err)
		l.sessions.SetPhase(ev.Peer, PhaseDisconnected)
		l.connect(ev.Peer, "connect-failed")
		return
	}
	slog.Info("[BLE] connected", "peer", ev.Peer)
	l.sessions.SetPhase(ev.Peer, PhaseConnected)

	if err := l.central.ReadRSSI(ev.Peer); err != nil {
		l.radioError("read-rssi", ev.Peer, err)
	}
	if err := l.central.DiscoverServices(ev.Peer, []string{l.opts.ServiceUUID}); err != nil {
		l.radioError("discover-services", ev.Peer, err)
	}
}

func (l *Listener) handleDisconnected(ev Event) {
	if ev.Err != nil {
		slog.Info("[BLE] attempting reconnection after error", "peer", ev.Peer, "error", ev.Err)
	} else {
		slog.Info("[BLE] attempting reconnection", "peer", ev.Peer)
	}
	l.sessions.SetPhase(ev.Peer, PhaseDisconnected)
	l.connect(ev.Peer, "disconnected")
}

func (l *Listener) handleServicesFound(ev Event) {
	if ev.Err != nil {
		l.radioError("discover-services", ev.Peer, ev.Err)
		return
	}
	if len(ev.UUIDs) == 0 {
		slog.Info("[BLE] no services discovered", "peer", ev.Peer)
		return
	}
	if !containsUUID(ev.UUIDs, l.opts.ServiceUUID) {
		slog.Info("[BLE] service not discovered", "peer", ev.Peer, "service", l.opts.ServiceUUID)
		return
	}

	l.sessions.SetPhase(ev.Peer, PhaseServicesDiscovered)
	chars := []string{l.opts.IdentityCharUUID, l.opts.KeepaliveCharUUID}
	if err := l.central.DiscoverCharacteristics(ev.Peer, l.opts.ServiceUUID, chars); err != nil {
		l.radioError("discover-characteristics", ev.Peer, err)
	}
}

func (l *Listener) handleCharacteristicsFound(ev Event) {
	if ev.Err != nil {
		l.radioError("discover-characteristics", ev.Peer, ev.Err)
		return
	}
	if len(ev.UUIDs) == 0 {
		slog.Info("[BLE] no characteristics discovered", "peer", ev.Peer)
		return
	}

	var identitySub, keepaliveSub bool
	if containsUUID(ev.UUIDs, l.opts.IdentityCharUUID) {
		if err := l.central.ReadValue(ev.Peer, l.opts.IdentityCharUUID); err != nil {
			l.radioError("read-identity", ev.Peer, err)
		}
		if err := l.central.SetNotify(ev.Peer, l.opts.IdentityCharUUID); err != nil {
			l.radioError("subscribe-identity", ev.Peer, err)
		} else {
			identitySub = true
		}
	} else {
		slog.Info("[BLE] identity characteristic not discovered", "peer", ev.Peer)
	}

	if containsUUID(ev.UUIDs, l.opts.KeepaliveCharUUID) {
		if err := l.central.SetNotify(ev.Peer, l.opts.KeepaliveCharUUID); err != nil {
			l.radioError("subscribe-keepalive", ev.Peer, err)
		} else {
			keepaliveSub = true
		}
	} else {
		slog.Info("[BLE] keepalive characteristic not discovered", "peer", ev.Peer)
	}

	l.sessions.MarkSubscribed(ev.Peer, identitySub, keepaliveSub)
}

func (l *Listener) handleValue(ev Event) {
	if ev.Err != nil {
		l.radioError("read-value", ev.Peer, ev.Err)
		return
	}
	if ev.Value == nil {
		slog.Info("[BLE] characteristic has no data", "peer", ev.Peer, "char", ev.Char)
		return
	}

	switch {
	case sameUUID(ev.Char, l.opts.IdentityCharUUID):
		identity, err := protocol.ParseIdentity(ev.Value, l.opts.IdentityLength)
		if err != nil {
			metrics.ProtocolErrors.WithLabelValues("identity").Inc()
			slog.Info("[BLE] no identity ready", "peer", ev.Peer, "error", err)
		} else {
			slog.Info("[BLE] read identity", "peer", ev.Peer, "identity", identity)
			metrics.IdentitiesRead.Inc()
			l.sessions.SetIdentity(ev.Peer, identity)
			if _, d := l.delegates(); d != nil {
				d.PeerIdentityFound(ev.Peer, identity)
			}
		}
		if err := l.central.ReadRSSI(ev.Peer); err != nil {
			l.radioError("read-rssi", ev.Peer, err)
		}

	case sameUUID(ev.Char, l.opts.KeepaliveCharUUID):
		value, err := protocol.ParseKeepalive(ev.Value)
		if err != nil {
			metrics.ProtocolErrors.WithLabelValues("keepalive").Inc()
			slog.Info("[BLE] invalid keepalive value", "peer", ev.Peer, "error", err)
			return
		}
		slog.Debug("[BLE] read keepalive", "peer", ev.Peer, "value", value)
		l.readRSSIAndSendKeepalive()

	default:
		slog.Info("[BLE] characteristic has unknown uuid", "peer", ev.Peer, "char", ev.Char)
	}
}

func (l *Listener) handleRSSI(ev Event) {
	if ev.Err != nil {
		l.radioError("read-rssi", ev.Peer, ev.Err)
		return
	}
	slog.Debug("[BLE] read RSSI", "peer", ev.Peer, "rssi", ev.RSSI)
	metrics.RSSIReads.Inc()
	l.sessions.SetRSSI(ev.Peer, ev.RSSI)
	if _, d := l.delegates(); d != nil {
		d.RSSIRead(ev.Peer, ev.RSSI)
	}
	l.readRSSIAndSendKeepalive()
}

// readRSSIAndSendKeepalive fires at most once per keepalive interval. It
// refreshes RSSI on every tracked peer and schedules the next keepalive
// broadcast one interval from now.
func (l *Listener) readRSSIAndSendKeepalive() {
	now := l.now()
	if now.Sub(l.lastKeepalive) <= l.opts.KeepaliveInterval {
		slog.Debug("[BLE] too soon, won't send keepalive", "lastKeepalive", l.lastKeepalive)
		return
	}

	peers := l.sessions.Peers()
	slog.Debug("[BLE] reading RSSI", "peers", len(peers))
	for _, peer := range peers {
		if err := l.central.ReadRSSI(peer); err != nil {
			l.radioError("read-rssi", peer, err)
		}
	}

	l.lastKeepalive = now
	value := protocol.KeepaliveValue(l.keepalive.Next())
	slog.Debug("[BLE] scheduling keepalive", "value", value[0])
	l.schedule(l.opts.KeepaliveInterval, func() {
		l.Post(Event{Kind: eventKeepaliveDue, Value: value})
	})

	l.mu.Lock()
	l.keepaliveScheduled = true
	l.mu.Unlock()
}

func (l *Listener) sendKeepalive(value []byte) {
	if l.broadcaster == nil {
		return
	}
	if err := l.broadcaster.SendKeepalive(value); err != nil {
		l.radioError("send-keepalive", "", err)
		return
	}
	metrics.KeepalivesSent.Inc()
}

func (l *Listener) connect(peer PeerID, reason string) {
	l.sessions.SetPhase(peer, PhaseConnecting)
	metrics.ConnectAttempts.WithLabelValues(reason).Inc()
	if err := l.central.Connect(peer); err != nil {
		l.radioError("connect", peer, err)
	}
}

// radioError logs a transient failure. The listener keeps running and the
// peer stays tracked.
func (l *Listener) radioError(op string, peer PeerID, err error) {
	if !errors.Is(err, ErrTransientRadio) {
		err = fmt.Errorf("%w: %w", ErrTransientRadio, err)
	}
	metrics.RadioErrors.WithLabelValues(op).Inc()
	slog.Warn("[BLE] radio operation failed", "op", op, "peer", peer, "error", err)
}

func sameUUID(a, b string) bool {
	return strings.EqualFold(a, b)
}

func containsUUID(uuids []string, want string) bool {
	return slices.ContainsFunc(uuids, func(u string) bool { return sameUUID(u, want) })
}
