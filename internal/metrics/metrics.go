// Package metrics exposes Prometheus instrumentation and a /healthz
// liveness endpoint for the signal core.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the pipeline's stages update.
type Metrics struct {
	// Ingestion
	FramesTotal      prometheus.Counter
	MalformedFrames  prometheus.Counter
	WSReconnects     prometheus.Counter
	CandlesClosed    *prometheus.CounterVec // labels: timeframe
	WSFrameDur       prometheus.Histogram

	// Indicator engine
	RSIComputeDur prometheus.Histogram
	EMAComputeDur prometheus.Histogram
	IndicatorsTotal *prometheus.CounterVec // labels: name

	// Cache layer
	CacheWriteDur            prometheus.Histogram
	CacheReadDur              prometheus.Histogram
	CacheCircuitBreakerState  prometheus.Gauge // 0=closed,1=open,2=half-open
	CacheCircuitBreakerTrips prometheus.Counter
	CacheBufferedWrites       prometheus.Counter

	// Signal evaluation
	SignalGenDur     prometheus.Histogram
	SignalsEmitted   *prometheus.CounterVec // labels: kind
	SignalsCritical  prometheus.Counter

	// Anti-spam
	AntiSpamBlocked *prometheus.CounterVec // labels: reason
	AntiSpamAllowed prometheus.Counter

	// Fan-out
	FanoutDropsTotal     *prometheus.CounterVec // labels: reason
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name
	SubscribersNotified  prometheus.Counter

	// Notification delivery
	NotifyDeliveryDur prometheus.Histogram
	NotifyRetries     prometheus.Counter
	NotifyBlocked     prometheus.Counter
	NotifyQueueDepth  prometheus.Gauge

	// End-to-end / budgets
	TotalProcessingDur prometheus.Histogram
	BudgetBreaches     *prometheus.CounterVec // labels: stage, level (warning|critical)
}

// NewMetrics builds and registers every metric.
func NewMetrics() *Metrics {
	m := &Metrics{
		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_frames_total",
			Help: "Total WS frames received from the upstream exchange",
		}),
		MalformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_malformed_frames_total",
			Help: "Frames rejected during parsing/validation",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_ws_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		}),
		CandlesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_candles_closed_total",
			Help: "Closed candles processed, by timeframe",
		}, []string{"timeframe"}),
		WSFrameDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_ws_frame_duration_seconds",
			Help:    "Time to validate and route one WS frame",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025},
		}),

		RSIComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_rsi_compute_duration_seconds",
			Help:    "RSI update latency per closed candle",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.01},
		}),
		EMAComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_ema_compute_duration_seconds",
			Help:    "EMA update latency per closed candle (all periods batched)",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.01},
		}),
		IndicatorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_indicators_total",
			Help: "Indicator values computed, by name",
		}, []string{"name"}),

		CacheWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_cache_write_duration_seconds",
			Help:    "Cache layer batched write latency",
			Buckets: prometheus.DefBuckets,
		}),
		CacheReadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_cache_read_duration_seconds",
			Help:    "Cache layer batched read latency",
			Buckets: prometheus.DefBuckets,
		}),
		CacheCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalcore_cache_circuit_breaker_state",
			Help: "Cache circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		CacheCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_cache_circuit_breaker_trips_total",
			Help: "Times the cache circuit breaker tripped open",
		}),
		CacheBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_cache_buffered_writes_total",
			Help: "Writes buffered locally during a cache outage",
		}),

		SignalGenDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_signal_gen_duration_seconds",
			Help:    "Signal evaluation latency per closed candle",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		SignalsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_signals_emitted_total",
			Help: "Signals emitted, by kind",
		}, []string{"kind"}),
		SignalsCritical: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_signals_critical_total",
			Help: "Signals classified critical (anti-spam bypass eligible)",
		}),

		AntiSpamBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_antispam_blocked_total",
			Help: "Notifications blocked by the anti-spam ledger, by reason",
		}, []string{"reason"}),
		AntiSpamAllowed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_antispam_allowed_total",
			Help: "Notifications permitted through the anti-spam ledger",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_fanout_drops_total",
			Help: "Signals dropped during subscriber fan-out, by reason",
		}, []string{"reason"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalcore_channel_saturation_pct",
			Help: "Pipeline channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),
		SubscribersNotified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_subscribers_notified_total",
			Help: "Individual subscriber notifications dispatched",
		}),

		NotifyDeliveryDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_notify_delivery_duration_seconds",
			Help:    "Outbound delivery latency per notification",
			Buckets: prometheus.DefBuckets,
		}),
		NotifyRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_notify_retries_total",
			Help: "Notification delivery retry attempts",
		}),
		NotifyBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_notify_user_blocked_total",
			Help: "Deliveries that failed terminally because the user blocked the bot",
		}),
		NotifyQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalcore_notify_queue_depth",
			Help: "Current depth of the notification retry queue",
		}),

		TotalProcessingDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_total_processing_duration_seconds",
			Help:    "End-to-end latency from closed candle to notification dispatch",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}),
		BudgetBreaches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_budget_breaches_total",
			Help: "Per-stage latency budget breaches, by stage and severity",
		}, []string{"stage", "level"}),
	}

	prometheus.MustRegister(
		m.FramesTotal, m.MalformedFrames, m.WSReconnects, m.CandlesClosed, m.WSFrameDur,
		m.RSIComputeDur, m.EMAComputeDur, m.IndicatorsTotal,
		m.CacheWriteDur, m.CacheReadDur, m.CacheCircuitBreakerState, m.CacheCircuitBreakerTrips, m.CacheBufferedWrites,
		m.SignalGenDur, m.SignalsEmitted, m.SignalsCritical,
		m.AntiSpamBlocked, m.AntiSpamAllowed,
		m.FanoutDropsTotal, m.ChannelSaturationPct, m.SubscribersNotified,
		m.NotifyDeliveryDur, m.NotifyRetries, m.NotifyBlocked, m.NotifyQueueDepth,
		m.TotalProcessingDur, m.BudgetBreaches,
	)

	return m
}

// HealthStatus tracks liveness of the pipeline's external dependencies.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool      `json:"ws_connected"`
	LastCandleTime time.Time `json:"last_candle_time"`
	CacheConnected bool      `json:"cache_connected"`
	HistoryOK      bool      `json:"history_ok"`

	CacheLatencyMs   float64   `json:"cache_latency_ms"`
	HistoryLatencyMs float64   `json:"history_latency_ms"`
	LastCheckAt      time.Time `json:"last_check_at"`
	StartedAt        time.Time `json:"started_at"`
}

// NewHealthStatus returns a fresh health tracker.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

// CheckCache pings the cache's Redis connection and records latency.
func (h *HealthStatus) CheckCache(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.CacheConnected = err == nil
	h.CacheLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// pinger is satisfied by *sql.DB; kept as an interface so this package
// doesn't need to import database/sql just for a health check.
type pinger interface {
	PingContext(ctx context.Context) error
}

// CheckHistory runs a trivial query against the history store and
// records latency + health.
func (h *HealthStatus) CheckHistory(ctx context.Context, db pinger) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.HistoryOK = err == nil
	h.HistoryLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is cancelled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, historyDB pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckCache(probeCtx, rdb)
				}
				if historyDB != nil {
					h.CheckHistory(probeCtx, historyDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.WSConnected || !h.CacheConnected || !h.HistoryOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.CacheConnected && !h.HistoryOK {
		overallStatus = "unhealthy"
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status           string  `json:"status"`
		Uptime           string  `json:"uptime"`
		WSConnected      bool    `json:"ws_connected"`
		LastCandleTime   string  `json:"last_candle_time"`
		CandleAge        string  `json:"candle_age"`
		CacheConnected   bool    `json:"cache_connected"`
		CacheLatencyMs   float64 `json:"cache_latency_ms"`
		HistoryOK        bool    `json:"history_ok"`
		HistoryLatencyMs float64 `json:"history_latency_ms"`
		LastCheckAt      string  `json:"last_check_at"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:      h.WSConnected,
		LastCandleTime:   h.LastCandleTime.Format(time.RFC3339),
		CandleAge:        candleAge,
		CacheConnected:   h.CacheConnected,
		CacheLatencyMs:   h.CacheLatencyMs,
		HistoryOK:        h.HistoryOK,
		HistoryLatencyMs: h.HistoryLatencyMs,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics, /healthz, and whatever
// additional operator routes the caller registers via Mux.
type Server struct {
	health *HealthStatus
	addr   string
	mux    *http.ServeMux
	srv    *http.Server
}

// NewServer creates a metrics and health server bound to addr.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		mux:    mux,
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

// Mux exposes the underlying ServeMux so callers can register additional
// operator routes (e.g. a config reload endpoint) before Start is called.
func (s *Server) Mux() *http.ServeMux { return s.mux }

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
