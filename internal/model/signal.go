package model

import "time"

// SignalKind enumerates the zone-crossing and crossover signal types the
// evaluator can emit. At most one RSI kind fires per tick — if both a
// normal and a strong threshold are crossed on the same update, the
// strong kind wins and the normal kind is suppressed.
type SignalKind string

const (
	SignalRSIOversoldEntry    SignalKind = "rsi_oversold_entry"
	SignalRSIOversoldExit     SignalKind = "rsi_oversold_exit"
	SignalRSIOverboughtEntry  SignalKind = "rsi_overbought_entry"
	SignalRSIOverboughtExit   SignalKind = "rsi_overbought_exit"
	SignalRSIStrongOversold   SignalKind = "rsi_strong_oversold"
	SignalRSIStrongOverbought SignalKind = "rsi_strong_overbought"
	SignalEMAGoldenCross      SignalKind = "ema_golden_cross"
	SignalEMADeathCross       SignalKind = "ema_death_cross"
)

// IsRSIKind reports whether k is one of the RSI zone-crossing kinds.
func (k SignalKind) IsRSIKind() bool {
	switch k {
	case SignalRSIOversoldEntry, SignalRSIOversoldExit,
		SignalRSIOverboughtEntry, SignalRSIOverboughtExit,
		SignalRSIStrongOversold, SignalRSIStrongOverbought:
		return true
	}
	return false
}

// Signal is a single evaluated alert condition, prior to per-user
// anti-spam filtering and notification delivery.
type Signal struct {
	ID              string     `json:"id"`
	Symbol          string     `json:"symbol"`
	Timeframe       string     `json:"timeframe"`
	Kind            SignalKind `json:"kind"`
	Price           float64    `json:"price"`
	RSIValue        float64    `json:"rsi_value,omitempty"`
	EMAFast         float64    `json:"ema_fast,omitempty"`
	EMASlow         float64    `json:"ema_slow,omitempty"`
	Critical        bool       `json:"critical"`
	ProcessingTimeMS float64   `json:"processing_time_ms"`
	TS              time.Time  `json:"ts"`
}

// DeliveryRecord tracks the outbound notification attempt(s) for one
// (Signal, User) pairing, including retry bookkeeping.
type DeliveryRecord struct {
	ID          string    `json:"id"`
	SignalID    string    `json:"signal_id"`
	UserID      int64     `json:"user_id"`
	Attempts    int       `json:"attempts"`
	Delivered   bool      `json:"delivered"`
	Blocked     bool      `json:"blocked"` // terminal failure → user blocked
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt"`
	LatencyMS   float64   `json:"latency_ms"`
}
