package model

import "time"

// User is a registered recipient of signal notifications.
type User struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"` // external delivery-transport identity
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"created_at"`
}

// Pair is a tradeable symbol tracked by the core, e.g. "BTCUSDT".
type Pair struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`
}

// Subscription binds a user to a (symbol, timeframe) pair they want
// alerts for.
type Subscription struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns "symbol:timeframe", the fan-out index key.
func (s *Subscription) Key() string {
	return s.Symbol + ":" + s.Timeframe
}
