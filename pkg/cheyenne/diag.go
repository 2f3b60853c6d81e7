package cheyenne

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DiagServer is an optional HTTP surface for an unattended bridge:
// liveness, a stats snapshot, prometheus metrics, and a websocket stream of
// connection-state changes.
type DiagServer struct {
	addr     string
	client   *Client
	log      *Logger
	registry *prometheus.Registry
	upgrader websocket.Upgrader

	mu      sync.Mutex
	wmu     sync.Mutex // serializes websocket writes
	conns   map[*websocket.Conn]struct{}
	unwatch func()
}

// stateUpdate is one event pushed to websocket subscribers.
type stateUpdate struct {
	Connected bool          `json:"connected"`
	Stats     StatsSnapshot `json:"stats"`
}

// NewDiagServer builds a diagnostics server for the client.
func NewDiagServer(addr string, client *Client, logger *Logger) *DiagServer {
	if logger == nil {
		logger = DefaultLogger()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(client.Stats().Collector("cheyenne"))

	return &DiagServer{
		addr:     addr,
		client:   client,
		log:      logger.WithComponent("diag"),
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns the diagnostics route tree.
func (d *DiagServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", d.handleHealthz)
	r.Get("/state", d.handleState)
	r.Get("/ws", d.handleWS)
	r.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	return r
}

// Run serves until ctx is cancelled.
func (d *DiagServer) Run(ctx context.Context) error {
	d.unwatch = d.client.AddStateObserver(d)
	defer d.unwatch()

	srv := &http.Server{
		Addr:              d.addr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	d.log.Infof("diagnostics server on %s", d.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		d.closeAll()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (d *DiagServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func (d *DiagServer) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stateUpdate{
		Connected: d.client.Connected(),
		Stats:     d.client.Stats().Snapshot(),
	})
}

func (d *DiagServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	d.mu.Lock()
	d.conns[conn] = struct{}{}
	d.mu.Unlock()

	// initial snapshot so subscribers don't wait for the next transition
	d.writeTo(conn, stateUpdate{
		Connected: d.client.Connected(),
		Stats:     d.client.Stats().Snapshot(),
	})

	// reader drains control frames and detects the peer going away
	go func() {
		defer d.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// HandleConnectionState implements StateObserver: every connection state
// transition is broadcast to websocket subscribers.
func (d *DiagServer) HandleConnectionState(connected bool) {
	update := stateUpdate{
		Connected: connected,
		Stats:     d.client.Stats().Snapshot(),
	}

	d.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(d.conns))
	for c := range d.conns {
		conns = append(conns, c)
	}
	d.mu.Unlock()

	for _, c := range conns {
		d.writeTo(c, update)
	}
}

func (d *DiagServer) writeTo(conn *websocket.Conn, update stateUpdate) {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(update); err != nil {
		d.drop(conn)
	}
}

func (d *DiagServer) drop(conn *websocket.Conn) {
	d.mu.Lock()
	_, ok := d.conns[conn]
	delete(d.conns, conn)
	d.mu.Unlock()
	if ok {
		conn.Close()
	}
}

func (d *DiagServer) closeAll() {
	d.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(d.conns))
	for c := range d.conns {
		conns = append(conns, c)
	}
	d.conns = make(map[*websocket.Conn]struct{})
	d.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
