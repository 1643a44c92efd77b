// Package pipeline wires every stage of the signal core together:
// stream ingestion, indicator computation, signal evaluation, anti-spam
// filtering, subscriber fan-out, and notification delivery. New connects
// dependencies and restores state, Run starts the goroutines and blocks
// on ctx, shutdown drains and persists.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"tradingsignalcore/config"
	"tradingsignalcore/internal/antispam"
	"tradingsignalcore/internal/cache"
	"tradingsignalcore/internal/history"
	"tradingsignalcore/internal/indicator"
	"tradingsignalcore/internal/ingest"
	"tradingsignalcore/internal/metrics"
	"tradingsignalcore/internal/model"
	"tradingsignalcore/internal/notification"
	"tradingsignalcore/internal/notifyqueue"
	"tradingsignalcore/internal/perfmon"
	"tradingsignalcore/internal/ringbuf"
	"tradingsignalcore/internal/signal"
	redisstore "tradingsignalcore/internal/store/redis"
	"tradingsignalcore/internal/streamclient"
	"tradingsignalcore/internal/subscription"
)

const (
	rawFrameBuffer  = 4096
	closedCandleBuf = 1024
	ringCapacity    = 8192
)

// Core is the top-level orchestrator. It owns every collaborator and
// coordinates their goroutines; nothing outside this package reaches
// into a collaborator directly.
type Core struct {
	cfg *config.Config

	redisClient *redisstore.Client
	cb          *redisstore.CircuitBreaker
	bw          *redisstore.BufferedWriter
	cacheStore  *cache.Cache
	historyDB   *history.Store

	engine    *indicator.Engine
	evaluator *signal.Evaluator
	ledger    *antispam.Ledger
	subs      *subscription.Index
	queue     *notifyqueue.Queue
	monitor   *perfmon.Monitor
	prom      *metrics.Metrics
	health    *metrics.HealthStatus
	httpSrv   *metrics.Server
	ingester  *ingest.Processor
	stream    *streamclient.Client
	ring      *ringbuf.Ring

	rawCh    chan []byte
	closedCh chan model.Candle
	reloadCh chan reloadRequest
}

// reloadRequest carries a validated config reload into processLoop, the
// engine's single owner, so a reload never races a live Process call.
type reloadRequest struct {
	configs []indicator.TFIndicatorConfig
	respCh  chan reloadResult
}

type reloadResult struct {
	preserved, created int
}

// New wires every collaborator from cfg, restoring the indicator engine
// from its last snapshot and backfilling cold indicators from history.
func New(cfg *config.Config) (*Core, error) {
	c := &Core{
		cfg:      cfg,
		prom:     metrics.NewMetrics(),
		health:   metrics.NewHealthStatus(),
		monitor:  perfmon.New(),
		rawCh:    make(chan []byte, rawFrameBuffer),
		closedCh: make(chan model.Candle, closedCandleBuf),
		ring:     ringbuf.New(ringCapacity),
		ingester: ingest.New(),
		reloadCh: make(chan reloadRequest),
	}

	var err error
	c.redisClient, err = redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: redis connect: %w", err)
	}

	c.cb = redisstore.NewCircuitBreaker(5, 30*time.Second)
	c.bw = redisstore.NewBufferedWriter(context.Background(), c.redisClient, c.cb, 2000)
	c.cacheStore = cache.New(c.redisClient, c.bw)

	c.historyDB, err = history.Open(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: sqlite open: %w", err)
	}

	c.engine, err = c.restoreEngine(context.Background())
	if err != nil {
		return nil, err
	}

	c.evaluator = signal.New()
	c.subs = subscription.New(c.historyDB, cfg.Timeframes)
	c.ledger = antispam.New(c.redisClient.Raw(), cfg.AntiSpamRSIInterval, cfg.AntiSpamEMAInterval, cfg.AntiSpamHourlyCap)
	c.queue = notifyqueue.New(notification.NewLogSender(), cfg.NotifyMaxRetries, cfg.NotifyRetryBaseMS, cfg.NotifyQueueDepth)
	c.queue.OnDeliver = c.onDelivery

	c.monitor.SetBudget("ws_frame", cfg.BudgetWSFrame)
	c.monitor.SetBudget("rsi_calc", cfg.BudgetRSICalc)
	c.monitor.SetBudget("ema_calc", cfg.BudgetEMACalc)
	c.monitor.SetBudget("signal_gen", cfg.BudgetSignalGen)
	c.monitor.SetBudget("notify_delivery", cfg.BudgetNotifyDelivery)
	c.monitor.SetBudget("total_processing", cfg.BudgetTotalProcessing)
	c.monitor.OnBudgetBreach = c.onBudgetBreach

	c.stream = streamclient.New(cfg.StreamBaseURL)
	c.stream.OnData = func(raw []byte) { c.rawCh <- raw }
	c.stream.OnOpen = func() { c.health.SetWSConnected(true) }
	c.stream.OnClose = func() { c.health.SetWSConnected(false) }
	c.stream.OnFatal = func(err error) {
		log.Printf("[pipeline] stream client exhausted reconnects: %v", err)
		c.health.SetWSConnected(false)
	}

	c.httpSrv = metrics.NewServer(cfg.MetricsAddr, c.health)

	return c, nil
}

func indicatorConfigs(cfg *config.Config) []indicator.TFIndicatorConfig {
	out := make([]indicator.TFIndicatorConfig, 0, len(cfg.Timeframes))
	for _, tf := range cfg.Timeframes {
		var inds []indicator.IndicatorConfig
		for _, p := range cfg.RSIPeriods {
			inds = append(inds, indicator.IndicatorConfig{Type: "RSI", Period: p})
		}
		for _, p := range cfg.EMAPeriods {
			inds = append(inds, indicator.IndicatorConfig{Type: "EMA", Period: p})
		}
		out = append(out, indicator.TFIndicatorConfig{Timeframe: tf, Indicators: inds})
	}
	return out
}

// restoreEngine follows the cache-snapshot-then-history-backfill chain:
// a fresh snapshot means indicators resume exactly where they left
// off; failing that, recent closed candles from SQLite warm the state
// instead of starting fully cold.
func (c *Core) restoreEngine(ctx context.Context) (*indicator.Engine, error) {
	restorer := indicator.NewRestorer(indicatorConfigs(c.cfg))

	data, err := c.cacheStore.ReadLatestSnapshotJSON(ctx)
	if err != nil {
		log.Printf("[pipeline] snapshot read error: %v", err)
	}
	engine, err := restorer.RestoreFromSnapshotJSON(data)
	if err != nil {
		return nil, err
	}
	var snap model.EngineSnapshot
	if len(data) > 0 && json.Unmarshal(data, &snap) == nil && len(snap.Series) > 0 {
		return engine, nil
	}

	pairs, err := c.historyDB.AllPairs(ctx)
	if err != nil {
		log.Printf("[pipeline] WARNING: could not list pairs for backfill: %v", err)
		return engine, nil
	}
	symbols := make([]string, len(pairs))
	for i, p := range pairs {
		symbols[i] = p.Symbol
	}
	restorer.BackfillFromHistory(engine, c.historyDB, symbols, func(results []model.IndicatorResult) {
		_ = c.cacheStore.SetIndicators(ctx, results)
	})

	return engine, nil
}

// Run starts every subsystem and blocks until ctx is cancelled.
func (c *Core) Run(ctx context.Context) error {
	if err := c.subs.Refresh(ctx); err != nil {
		log.Printf("[pipeline] WARNING: initial subscription refresh failed: %v", err)
	}
	c.subs.StartAutoRefresh(ctx, c.cfg.SubscriptionRefreshInterval)

	c.health.StartLivenessChecker(ctx, c.redisClient.Raw(), c.historyDB.DB(), 15*time.Second)
	c.httpSrv.Mux().HandleFunc("/reload", c.handleReload)
	c.httpSrv.Start()

	go c.ingester.Run(ctx, c.rawCh, c.cacheStore, c.ring)
	go ingest.Drain(ctx, c.ring, c.closedCh)
	go c.queue.Run(ctx)
	go c.processLoop(ctx)

	if err := c.stream.Connect(ctx); err != nil {
		return fmt.Errorf("pipeline: stream connect: %w", err)
	}
	streams := make([]string, 0, len(c.cfg.Symbols)*len(c.cfg.Timeframes))
	for _, sym := range c.cfg.Symbols {
		for _, tf := range c.cfg.Timeframes {
			streams = append(streams, streamclient.StreamName(sym, tf))
		}
	}
	if err := c.stream.Subscribe(streams); err != nil {
		return fmt.Errorf("pipeline: subscribe: %w", err)
	}

	log.Printf("[pipeline] signal core running: %d symbols x %d timeframes", len(c.cfg.Symbols), len(c.cfg.Timeframes))

	<-ctx.Done()
	c.shutdown()
	return nil
}

// processLoop is the single owner of the indicator engine and
// evaluator — every closed candle is processed strictly in arrival
// order, so neither needs its own lock.
func (c *Core) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-c.closedCh:
			if !ok {
				return
			}
			c.handleCandle(ctx, candle)
		case req := <-c.reloadCh:
			preserved, created := c.engine.ReloadConfigs(req.configs)
			req.respCh <- reloadResult{preserved: preserved, created: created}
		}
	}
}

// handleReload handles POST /reload for live indicator config updates.
// Configs are validated here and applied on processLoop's goroutine so
// a reload never races a live Process call.
func (c *Core) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var newConfigs []indicator.TFIndicatorConfig
	if err := json.NewDecoder(r.Body).Decode(&newConfigs); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := indicator.ValidateConfigs(newConfigs); err != nil {
		http.Error(w, "validation: "+err.Error(), http.StatusBadRequest)
		return
	}

	respCh := make(chan reloadResult, 1)
	select {
	case c.reloadCh <- reloadRequest{configs: newConfigs, respCh: respCh}:
	case <-r.Context().Done():
		return
	}

	select {
	case res := <-respCh:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ok",
			"preserved": res.preserved,
			"created":   res.created,
		})
	case <-r.Context().Done():
	}
}

func (c *Core) handleCandle(ctx context.Context, candle model.Candle) {
	start := time.Now()
	c.health.SetLastCandleTime(candle.CloseTime)
	c.prom.CandlesClosed.WithLabelValues(candle.Timeframe).Inc()

	opName := "rsi_calc"
	results := perfmon.Measure(c.monitor, opName, func() []model.IndicatorResult {
		return c.engine.Process(candle)
	})
	for _, r := range results {
		c.prom.IndicatorsTotal.WithLabelValues(r.Name).Inc()
	}
	if err := c.cacheStore.SetIndicators(ctx, results); err != nil {
		log.Printf("[pipeline] cache write error: %v", err)
	}
	if err := c.historyDB.WriteCandle(ctx, candle); err != nil {
		log.Printf("[pipeline] history write error: %v", err)
	}

	signals := perfmon.Measure(c.monitor, "signal_gen", func() []model.Signal {
		return c.evaluator.EvaluateTick(candle.Symbol, candle.Timeframe, results, candle.Close, candle.CloseTime)
	})
	for _, sig := range signals {
		c.prom.SignalsEmitted.WithLabelValues(string(sig.Kind)).Inc()
		if sig.Critical {
			c.prom.SignalsCritical.Inc()
		}
		c.fanOut(ctx, sig)
	}

	elapsed := time.Since(start)
	c.prom.TotalProcessingDur.Observe(elapsed.Seconds())
	c.monitor.Observe("total_processing", elapsed)
}

func (c *Core) fanOut(ctx context.Context, sig model.Signal) {
	if err := c.historyDB.SaveSignal(ctx, sig); err != nil {
		log.Printf("[pipeline] save signal error: %v", err)
	}

	subscribers, err := c.subs.SubscribersFor(ctx, sig.Symbol, sig.Timeframe)
	if err != nil {
		log.Printf("[pipeline] subscriber lookup error: %v", err)
		return
	}

	for _, userID := range subscribers {
		allowed, reason, err := c.ledger.CanSend(ctx, userID, sig.Symbol, sig.Timeframe, sig.Kind, sig.RSIValue)
		if err != nil {
			log.Printf("[pipeline] anti-spam check error: %v", err)
			continue
		}
		if !allowed {
			c.prom.AntiSpamBlocked.WithLabelValues(reason).Inc()
			continue
		}
		c.prom.AntiSpamAllowed.Inc()

		job := &notifyqueue.Job{
			UserID:     userID,
			Message:    formatMessage(sig),
			Critical:   sig.Critical,
			SignalUID:  sig.ID,
			EnqueuedAt: time.Now(),
		}
		if !c.queue.Enqueue(job) {
			c.prom.FanoutDropsTotal.WithLabelValues("queue_full").Inc()
			continue
		}
		if err := c.ledger.RecordSent(ctx, userID, sig.Symbol, sig.Timeframe, sig.Kind); err != nil {
			log.Printf("[pipeline] anti-spam record error: %v", err)
		}
		c.prom.SubscribersNotified.Inc()
	}

	c.prom.ChannelSaturationPct.WithLabelValues("notify_queue").Set(queueSaturation(c.queue, c.cfg.NotifyQueueDepth))
}

func queueSaturation(q *notifyqueue.Queue, maxDepth int) float64 {
	if maxDepth == 0 {
		return 0
	}
	return float64(q.Depth()) / float64(maxDepth) * 100
}

func formatMessage(sig model.Signal) string {
	return fmt.Sprintf("%s %s %s @ %.4f", sig.Symbol, sig.Timeframe, sig.Kind, sig.Price)
}

func (c *Core) onDelivery(d model.DeliveryRecord) {
	if err := c.historyDB.SaveDelivery(context.Background(), d); err != nil {
		log.Printf("[pipeline] save delivery error: %v", err)
	}
	if d.Blocked {
		c.prom.NotifyBlocked.Inc()
	}
	if d.Attempts > 1 {
		c.prom.NotifyRetries.Add(float64(d.Attempts - 1))
	}
	c.prom.NotifyDeliveryDur.Observe(d.LatencyMS / 1000)
	c.prom.NotifyQueueDepth.Set(float64(c.queue.Depth()))
}

func (c *Core) onBudgetBreach(op, level string, actual, budget time.Duration) {
	c.prom.BudgetBreaches.WithLabelValues(op, level).Inc()
	log.Printf("[pipeline] budget breach op=%s level=%s actual=%s budget=%s", op, level, actual, budget)
}

// shutdown saves a final engine snapshot, then closes every collaborator
// in turn.
func (c *Core) shutdown() {
	log.Println("[pipeline] shutdown signal received, saving final snapshot...")

	snap, err := indicator.SnapshotEngine(c.engine)
	if err == nil {
		data, mErr := json.Marshal(snap)
		if mErr == nil {
			shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := c.cacheStore.SaveSnapshotJSON(shutCtx, data); err != nil {
				log.Printf("[pipeline] snapshot save error: %v", err)
			}
			cancel()
		}
	} else {
		log.Printf("[pipeline] snapshot capture error: %v", err)
	}

	c.stream.Close()

	stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	c.httpSrv.Stop(stopCtx)
	cancel()

	if err := c.cacheStore.Close(); err != nil {
		log.Printf("[pipeline] cache close error: %v", err)
	}
	if err := c.historyDB.Close(); err != nil {
		log.Printf("[pipeline] history close error: %v", err)
	}

	log.Println("[pipeline] shutdown complete.")
}
