package indicator

import (
	"context"
	"fmt"

	"tradingsignalcore/internal/model"
)

// IndicatorConfig specifies a single indicator to compute.
type IndicatorConfig struct {
	Type   string // "RSI" or "EMA"
	Period int
}

// TFIndicatorConfig groups indicator configs for a specific timeframe.
type TFIndicatorConfig struct {
	Timeframe  string
	Indicators []IndicatorConfig
}

// seriesIndicators holds live indicator instances for one symbol within
// a timeframe.
type seriesIndicators struct {
	indicators []Indicator
	configs    []IndicatorConfig
}

// Engine computes RSI/EMA across multiple timeframes for multiple
// symbols. Designed for single-goroutine usage — no locks needed, since
// exactly one pipeline stage owns it (see internal/pipeline).
type Engine struct {
	configs []TFIndicatorConfig
	tfIndex map[string]int

	// state[tfIdx][symbol] -> *seriesIndicators
	state []map[string]*seriesIndicators
}

// NewEngine creates an indicator engine with the given per-timeframe
// indicator configs.
func NewEngine(configs []TFIndicatorConfig) *Engine {
	state := make([]map[string]*seriesIndicators, len(configs))
	tfIndex := make(map[string]int, len(configs))
	for i, cfg := range configs {
		state[i] = make(map[string]*seriesIndicators, 64)
		tfIndex[cfg.Timeframe] = i
	}
	return &Engine{configs: configs, tfIndex: tfIndex, state: state}
}

// Process takes a finalized candle and computes all configured
// indicators for that symbol + timeframe. Returns results (may include
// not-ready indicators with Ready=false).
func (e *Engine) Process(c model.Candle) []model.IndicatorResult {
	tfIdx, ok := e.tfIndex[c.Timeframe]
	if !ok {
		return nil // timeframe not configured for indicators
	}

	si, exists := e.state[tfIdx][c.Symbol]
	if !exists {
		si = e.createSeriesIndicators(tfIdx)
		e.state[tfIdx][c.Symbol] = si
	}

	results := make([]model.IndicatorResult, 0, len(si.indicators))
	for i, ind := range si.indicators {
		ind.Update(c.Close, c.CloseTime)
		cfg := si.configs[i]
		results = append(results, model.IndicatorResult{
			Name:      ind.Name() + "_" + model.Itoa(cfg.Period),
			Symbol:    c.Symbol,
			Timeframe: c.Timeframe,
			Value:     ind.Value(),
			TS:        c.CloseTime,
			Ready:     ind.Ready(),
		})
	}
	return results
}

// ProcessPeek computes live preview indicator values for a forming
// candle using Peek(). Does not mutate indicator state. Returns nil if
// the symbol hasn't been seeded by a completed candle yet.
func (e *Engine) ProcessPeek(c model.Candle) []model.IndicatorResult {
	tfIdx, ok := e.tfIndex[c.Timeframe]
	if !ok {
		return nil
	}
	si, exists := e.state[tfIdx][c.Symbol]
	if !exists {
		return nil
	}

	results := make([]model.IndicatorResult, 0, len(si.indicators))
	for i, ind := range si.indicators {
		cfg := si.configs[i]
		results = append(results, model.IndicatorResult{
			Name:      ind.Name() + "_" + model.Itoa(cfg.Period),
			Symbol:    c.Symbol,
			Timeframe: c.Timeframe,
			Value:     ind.Peek(c.Close),
			TS:        c.CloseTime,
			Ready:     ind.Ready(),
			Live:      true,
		})
	}
	return results
}

// Run consumes candles and emits indicator results. Blocks until ctx is
// cancelled or candleCh closes. Forming candles are routed to
// ProcessPeek, closed candles to Process — non-blocking sends drop
// results when resultCh is full, matching the pipeline's backpressure
// policy.
func (e *Engine) Run(ctx context.Context, candleCh <-chan model.Candle, resultCh chan<- model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candleCh:
			if !ok {
				return
			}
			var results []model.IndicatorResult
			if c.Closed {
				results = e.Process(c)
			} else {
				results = e.ProcessPeek(c)
			}
			for _, r := range results {
				select {
				case resultCh <- r:
				default:
				}
			}
		}
	}
}

func (e *Engine) createSeriesIndicators(tfIdx int) *seriesIndicators {
	cfg := e.configs[tfIdx]
	inds := make([]Indicator, len(cfg.Indicators))
	for i, ic := range cfg.Indicators {
		inds[i] = newIndicator(ic)
	}
	return &seriesIndicators{indicators: inds, configs: cfg.Indicators}
}

func newIndicator(ic IndicatorConfig) Indicator {
	switch ic.Type {
	case "EMA":
		return NewEMA(ic.Period)
	case "RSI":
		return NewRSI(ic.Period)
	default:
		return NewEMA(ic.Period)
	}
}

// ValidateConfigs checks a set of TFIndicatorConfigs for errors.
func ValidateConfigs(configs []TFIndicatorConfig) error {
	seen := make(map[string]bool)
	for _, cfg := range configs {
		if cfg.Timeframe == "" {
			return fmt.Errorf("invalid timeframe: must not be empty")
		}
		if seen[cfg.Timeframe] {
			return fmt.Errorf("duplicate timeframe=%s", cfg.Timeframe)
		}
		seen[cfg.Timeframe] = true

		for _, ind := range cfg.Indicators {
			switch ind.Type {
			case "RSI", "EMA":
			default:
				return fmt.Errorf("unknown indicator type %q for timeframe=%s", ind.Type, cfg.Timeframe)
			}
			if ind.Period <= 0 {
				return fmt.Errorf("invalid period=%d for %s on timeframe=%s", ind.Period, ind.Type, cfg.Timeframe)
			}
		}
	}
	return nil
}
