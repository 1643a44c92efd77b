package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLCV bar for a single (symbol, timeframe) pair,
// as delivered by the upstream kline stream. Closed is false while the
// bar is still forming; only closed candles are ever fed to the
// indicator engine.
type Candle struct {
	Symbol    string    `json:"symbol"`    // e.g. "BTCUSDT", upper-cased
	Timeframe string    `json:"timeframe"` // e.g. "1m", "5m", "1h"
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Closed    bool      `json:"closed"`
}

// Key returns the unique identity for this candle's series: "symbol:timeframe".
func (c *Candle) Key() string {
	return c.Symbol + ":" + c.Timeframe
}

// JSON returns the JSON-encoded candle (errors ignored — hot path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// CandleSeries is a bounded, append-only sequence of candles for one
// (symbol, timeframe) pair, backed by a fixed-capacity ring so memory
// stays flat regardless of stream uptime.
type CandleSeries struct {
	symbol    string
	timeframe string
	ring      *Ring[Candle]
}

// NewCandleSeries creates a series with room for capacity candles.
func NewCandleSeries(symbol, timeframe string, capacity int) *CandleSeries {
	return &CandleSeries{
		symbol:    symbol,
		timeframe: timeframe,
		ring:      NewRing[Candle](capacity),
	}
}

// Append adds a closed candle to the series, evicting the oldest entry
// once capacity is reached.
func (s *CandleSeries) Append(c Candle) {
	s.ring.Push(c)
}

// Recent returns up to n most recent candles, oldest first.
func (s *CandleSeries) Recent(n int) []Candle {
	return s.ring.Tail(n)
}

// Len returns the number of candles currently held.
func (s *CandleSeries) Len() int {
	return s.ring.Len()
}

// Closes returns the close prices of up to n most recent candles, oldest first.
func (s *CandleSeries) Closes(n int) []float64 {
	candles := s.ring.Tail(n)
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
