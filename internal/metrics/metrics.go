// Package metrics holds the Prometheus collectors exported by the client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BLE protocol
	PeersDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sonar_ble_peers_discovered_total",
		Help: "Number of distinct peers first seen by the listener",
	})

	ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonar_ble_connect_attempts_total",
		Help: "Connection requests issued, by reason",
	}, []string{"reason"})

	IdentitiesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sonar_ble_identities_read_total",
		Help: "Well-formed identity payloads read from peers",
	})

	ProtocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonar_ble_protocol_errors_total",
		Help: "Malformed payloads dropped, by characteristic",
	}, []string{"characteristic"})

	RadioErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonar_ble_radio_errors_total",
		Help: "Transient radio failures, by operation",
	}, []string{"operation"})

	RSSIReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sonar_ble_rssi_reads_total",
		Help: "Completed signal-strength readings",
	})

	KeepalivesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sonar_ble_keepalives_sent_total",
		Help: "Keepalive values handed to the broadcaster",
	})

	TrackedPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sonar_ble_tracked_peers",
		Help: "Peers currently held by the session tracker",
	})

	// Contact log
	ContactEventsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sonar_contact_events_recorded_total",
		Help: "Contact events appended to the recorder",
	})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonar_contact_uploads_total",
		Help: "Contact-log uploads, by result",
	}, []string{"result"})

	// Status state machine
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonar_status_transitions_total",
		Help: "Accepted status transitions",
	}, []string{"from", "to"})

	NotificationsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonar_notifications_scheduled_total",
		Help: "User-visible notifications scheduled, by identifier",
	}, []string{"identifier"})

	// HTTP
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sonar_http_requests_total",
		Help: "HTTP requests served, by method, route and status",
	}, []string{"method", "path", "status"})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sonar_websocket_clients",
		Help: "Connected status websocket clients",
	})
)
