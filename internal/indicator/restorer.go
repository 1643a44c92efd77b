package indicator

import (
	"encoding/json"
	"log"

	"tradingsignalcore/internal/model"
)

// HistoryReader is the interface needed for backfill reads, satisfied
// by internal/history.Store.
type HistoryReader interface {
	ReadRecentCandles(symbol, timeframe string, limit int) ([]model.Candle, error)
}

// Restorer orchestrates indicator engine restoration on startup,
// following a priority chain: cache snapshot -> SQLite history backfill
// -> cold start.
type Restorer struct {
	configs []TFIndicatorConfig
}

// NewRestorer creates a Restorer for the given indicator configs.
func NewRestorer(configs []TFIndicatorConfig) *Restorer {
	return &Restorer{configs: configs}
}

// RestoreFromSnapshotJSON attempts to restore an engine from a
// JSON-encoded snapshot. A nil/empty payload returns a fresh engine.
func (r *Restorer) RestoreFromSnapshotJSON(data []byte) (*Engine, error) {
	if len(data) == 0 {
		log.Println("[indicator] no snapshot found — cold starting engine")
		return NewEngine(r.configs), nil
	}

	var snap model.EngineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("[indicator] WARNING: snapshot decode failed: %v — cold starting", err)
		return NewEngine(r.configs), nil
	}

	engine, err := RestoreEngine(r.configs, &snap)
	if err != nil {
		log.Printf("[indicator] WARNING: snapshot restore failed: %v — cold starting", err)
		return NewEngine(r.configs), nil
	}
	log.Printf("[indicator] restored engine from snapshot (series=%d)", len(snap.Series))
	return engine, nil
}

// BackfillFromHistory reads historical closed candles per timeframe and
// feeds them into the engine to warm up cold indicators. Should be
// called after engine creation/restore and before the live stream
// consumer starts. onResults, if non-nil, receives the indicator
// results produced for each replayed candle (used to populate the
// cache so early subscribers see a value immediately).
func (r *Restorer) BackfillFromHistory(engine *Engine, reader HistoryReader, symbols []string, onResults func([]model.IndicatorResult)) int {
	if reader == nil {
		return 0
	}

	maxPeriod := 0
	for _, cfg := range r.configs {
		for _, ind := range cfg.Indicators {
			if ind.Period > maxPeriod {
				maxPeriod = ind.Period
			}
		}
	}
	if maxPeriod == 0 {
		return 0
	}

	total := 0
	for _, cfg := range r.configs {
		for _, symbol := range symbols {
			candles, err := reader.ReadRecentCandles(symbol, cfg.Timeframe, maxPeriod)
			if err != nil {
				log.Printf("[indicator] WARNING: failed to read history for %s/%s: %v", symbol, cfg.Timeframe, err)
				continue
			}
			fed := 0
			for _, c := range candles {
				c.Closed = true
				results := engine.Process(c)
				if onResults != nil && len(results) > 0 {
					onResults(results)
				}
				fed++
			}
			total += fed
		}
	}
	if total > 0 {
		log.Printf("[indicator] backfilled %d candles from history", total)
	}
	return total
}
