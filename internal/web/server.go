// Package web serves the client's monitoring surface over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaz8081/sonar-client/internal/ble"
	"github.com/chaz8081/sonar-client/internal/metrics"
	"github.com/chaz8081/sonar-client/internal/notify"
	"github.com/chaz8081/sonar-client/internal/status"
)

const maxResultPayload = 64 << 10

// Machine is the part of the status machine the server reads and drives.
type Machine interface {
	State() status.State
	Location() *time.Location
	ReceivedPayload(data []byte) error
}

// Driver is the BLE driver's health and session view.
type Driver interface {
	IsHealthy() bool
	Sessions() *ble.SessionTracker
}

// Subscriber delivers change signals.
type Subscriber interface {
	Subscribe(topic string) (<-chan struct{}, func())
}

// PendingNotifications lists scheduled notifications.
type PendingNotifications interface {
	Pending() []notify.Notification
}

// Deps are the sources the server reads from. Driver, Bus and
// Notifications may be nil.
type Deps struct {
	Machine       Machine
	Driver        Driver
	Bus           Subscriber
	Notifications PendingNotifications
}

// Server serves /healthz, /status, /peers, /notifications, /metrics,
// /ws and POST /test-result.
type Server struct {
	httpServer *http.Server
	deps       Deps
	hub        *Hub
	upgrader   websocket.Upgrader
	now        func() time.Time
}

// New creates a Server listening on addr.
func New(addr string, deps Deps) *Server {
	s := &Server{
		deps: deps,
		hub:  NewHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}

	router := mux.NewRouter()
	router.Use(s.instrument)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/peers", s.handlePeers).Methods(http.MethodGet)
	router.HandleFunc("/notifications", s.handleNotifications).Methods(http.MethodGet)
	router.HandleFunc("/test-result", s.handleTestResult).Methods(http.MethodPost)
	router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown closes websocket clients and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// Run pushes the current status to websocket clients on every change
// signal until ctx is done.
func (s *Server) Run(ctx context.Context) {
	if s.deps.Bus == nil {
		return
	}
	changed, cancel := s.deps.Bus.Subscribe(status.ChangedTopic)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changed:
			if !ok {
				return
			}
			s.hub.Broadcast(s.statusView())
		}
	}
}

func (s *Server) statusView() StatusView {
	return newStatusView(s.deps.Machine.State(), s.deps.Machine.Location(), s.now())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := s.deps.Driver == nil || s.deps.Driver.IsHealthy()
	code := http.StatusOK
	body := map[string]string{"status": "ok"}
	if !healthy {
		code = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
	}
	respond(w, code, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.statusView())
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers := []PeerView{}
	if s.deps.Driver != nil {
		for _, sess := range s.deps.Driver.Sessions().Snapshot() {
			peers = append(peers, newPeerView(sess))
		}
	}
	respond(w, http.StatusOK, peers)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	pending := []notify.Notification{}
	if s.deps.Notifications != nil {
		pending = append(pending, s.deps.Notifications.Pending()...)
	}
	respond(w, http.StatusOK, pending)
}

func (s *Server) handleTestResult(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxResultPayload))
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "read body"})
		return
	}
	if err := s.deps.Machine.ReceivedPayload(data); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, status.ErrDecoding) {
			code = http.StatusBadRequest
		}
		respond(w, code, map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, s.statusView())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	if err := writeJSON(conn, s.statusView()); err != nil {
		conn.Close()
		return
	}
	s.hub.Add(conn)
}

func respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts and logs requests by route template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}

		if path == "/ws" {
			// The upgrade hijacks the connection; wrapping would hide http.Hijacker.
			metrics.HTTPRequests.WithLabelValues(r.Method, path, "101").Inc()
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(rec.code)).Inc()
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.code, "duration", time.Since(start))
	})
}
