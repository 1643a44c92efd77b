package model

import "time"

// RSIState is the closed-form, serializable state of one Wilder RSI
// instance keyed by (symbol, timeframe, period).
type RSIState struct {
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Period     int       `json:"period"`
	PrevClose  float64   `json:"prev_close"`
	AvgGain    float64   `json:"avg_gain"`
	AvgLoss    float64   `json:"avg_loss"`
	Count      int       `json:"count"`
	Current    float64   `json:"current"`
	LastUpdate time.Time `json:"last_update"`
}

// EMAState is the closed-form, serializable state of one EMA instance
// keyed by (symbol, timeframe, period).
type EMAState struct {
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Period     int       `json:"period"`
	Multiplier float64   `json:"multiplier"`
	Sum        float64   `json:"sum"`
	Count      int       `json:"count"`
	Current    float64   `json:"current"`
	LastUpdate time.Time `json:"last_update"`
}

// IndicatorSnapshot is the serialized state of a single indicator
// instance, as persisted across a checkpoint. Matching on restore is by
// Type+Period, not position, so config reloads never lose warm state
// for indicators that still exist.
type IndicatorSnapshot struct {
	Type       string  `json:"type"` // "RSI" or "EMA"
	Period     int     `json:"period"`
	Count      int     `json:"count"`
	Current    float64 `json:"current"`
	PrevClose  float64 `json:"prev_close,omitempty"`
	AvgGain    float64 `json:"avg_gain,omitempty"`
	AvgLoss    float64 `json:"avg_loss,omitempty"`
	Sum        float64 `json:"sum,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
}

// SeriesSnapshot holds every indicator snapshot for one (symbol, timeframe).
type SeriesSnapshot struct {
	Symbol     string              `json:"symbol"`
	Timeframe  string              `json:"timeframe"`
	Indicators []IndicatorSnapshot `json:"indicators"`
}

// EngineSnapshot is the full checkpoint of the indicator engine.
type EngineSnapshot struct {
	Series  []SeriesSnapshot `json:"series"`
	Version int              `json:"version"`
}

// IndicatorResult is a single computed indicator value, exposed at the
// API boundary as an IEEE-754 double regardless of the fixed-point
// arithmetic used internally to produce it.
type IndicatorResult struct {
	Name      string    `json:"name"` // "RSI_14", "EMA_50"
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Value     float64   `json:"value"`
	TS        time.Time `json:"ts"`
	Ready     bool      `json:"ready"`
	Live      bool      `json:"live"` // true for preview values from a forming candle
}

// Key returns "symbol:timeframe:name".
func (r *IndicatorResult) Key() string {
	return r.Symbol + ":" + r.Timeframe + ":" + r.Name
}
