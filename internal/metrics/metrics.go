// Package metrics exposes Prometheus metrics and a health endpoint for
// the paper trader.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	TicksTotal     prometheus.Counter
	FeedReconnects prometheus.Counter
	DroppedTicks   prometheus.Counter

	PositionsOpened prometheus.Counter
	PositionsClosed prometheus.Counter
	OpenRejects     *prometheus.CounterVec // labels: reason
	RealizedPnL     prometheus.Gauge       // session realized P&L in USDT

	WSClients prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_ticks_total",
			Help: "Total trade ticks applied from the price stream",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_feed_reconnects_total",
			Help: "Total price stream reconnection attempts",
		}),
		DroppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_dropped_ticks_total",
			Help: "Ticks dropped (unsubscribed symbol)",
		}),
		PositionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_positions_opened_total",
			Help: "Total positions opened",
		}),
		PositionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_positions_closed_total",
			Help: "Total positions closed",
		}),
		OpenRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_open_rejects_total",
			Help: "Open attempts rejected, by reason",
		}, []string{"reason"}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_session_realized_pnl_usdt",
			Help: "Cumulative realized session P&L in USDT",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_ws_clients",
			Help: "Connected WebSocket clients",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.FeedReconnects,
		m.DroppedTicks,
		m.PositionsOpened,
		m.PositionsClosed,
		m.OpenRejects,
		m.RealizedPnL,
		m.WSClients,
	)
	return m
}

// HealthStatus tracks feed and wallet provider health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected bool      `json:"feed_connected"`
	LastTickTime  time.Time `json:"last_tick_time"`
	WalletRPCOK   bool      `json:"wallet_rpc_ok"`
	StartedAt     time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetWalletRPCOK(v bool) {
	h.mu.Lock()
	h.WalletRPCOK = v
	h.mu.Unlock()
}

// ServeHTTP handles /healthz. The feed is allowed to be momentarily
// disconnected (it reconnects forever), so only a prolonged tick
// silence degrades the status.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		age := time.Since(h.LastTickTime)
		tickAge = age.Round(time.Millisecond).String()
		if age > 30*time.Second {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	} else if !h.FeedConnected {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	out := struct {
		Status        string `json:"status"`
		Uptime        string `json:"uptime"`
		FeedConnected bool   `json:"feed_connected"`
		LastTickTime  string `json:"last_tick_time"`
		TickAge       string `json:"tick_age"`
		WalletRPCOK   bool   `json:"wallet_rpc_ok"`
	}{
		Status:        status,
		Uptime:        time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected: h.FeedConnected,
		LastTickTime:  h.LastTickTime.Format(time.RFC3339),
		TickAge:       tickAge,
		WalletRPCOK:   h.WalletRPCOK,
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(out)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates the metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
