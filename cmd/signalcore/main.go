// Command signalcore runs the real-time market-data signal pipeline:
// it connects to the upstream kline stream, computes RSI/EMA
// indicators incrementally, evaluates zone-crossing and crossover
// signals, anti-spam filters and fans them out to subscribers, and
// delivers notifications — all behind a single Prometheus /metrics and
// /healthz endpoint.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tradingsignalcore/config"
	"tradingsignalcore/internal/logger"
	"tradingsignalcore/internal/pipeline"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("signalcore", slog.LevelInfo)
	log.Println("[signalcore] starting signal core...")

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	core, err := pipeline.New(cfg)
	if err != nil {
		log.Fatalf("[signalcore] init failed: %v", err)
	}

	go func() {
		<-sigCh
		log.Println("[signalcore] shutdown signal received")
		cancel()
	}()

	log.Println("[signalcore] ╔════════════════════════════════════════════════════════╗")
	log.Println("[signalcore] ║  Signal Core Active                                     ║")
	log.Println("[signalcore] ║  [Stream] → [Indicators] → [Signals] → [Notify]         ║")
	log.Printf("[signalcore] ║  symbols: %v", cfg.Symbols)
	log.Printf("[signalcore] ║  timeframes: %v", cfg.Timeframes)
	log.Println("[signalcore] ╚════════════════════════════════════════════════════════╝")
	log.Println("[signalcore] all systems running. Press Ctrl+C to stop.")

	if err := core.Run(ctx); err != nil {
		log.Fatalf("[signalcore] run error: %v", err)
	}

	log.Println("[signalcore] exited cleanly.")
}
