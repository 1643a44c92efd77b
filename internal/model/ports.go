package model

import "context"

// ── Port interfaces ──
// These decouple business logic from concrete storage/transport
// implementations (Redis, SQLite, the outbound delivery transport).
// Constructors take these as explicit collaborators — nothing reaches
// for a package-level singleton.

// CacheStore is the cache layer's contract: batched indicator reads,
// candle/indicator writes, and symbol-scoped invalidation.
type CacheStore interface {
	GetIndicators(ctx context.Context, symbol, timeframe string, names []string) (map[string]IndicatorResult, error)
	SetIndicators(ctx context.Context, results []IndicatorResult) error
	SetCandle(ctx context.Context, c Candle) error
	GetLatestCandle(ctx context.Context, symbol, timeframe string) (*Candle, error)
	Invalidate(ctx context.Context, symbol, timeframe string) error
	Close() error
}

// SnapshotStore reads and writes indicator engine checkpoints as raw JSON,
// to avoid an import cycle between model and indicator.
type SnapshotStore interface {
	SaveSnapshotJSON(ctx context.Context, data []byte) error
	ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error)
}

// SubscriptionReader is the read-mostly index over user subscriptions.
type SubscriptionReader interface {
	SubscribersFor(ctx context.Context, symbol, timeframe string) ([]int64, error)
	AllPairs(ctx context.Context) ([]Pair, error)
	Refresh(ctx context.Context) error
}

// AntiSpamLedger is the rate-limit permit check + bookkeeping contract.
type AntiSpamLedger interface {
	CanSend(ctx context.Context, userID int64, symbol, timeframe string, kind SignalKind, rsiValue float64) (bool, string, error)
	RecordSent(ctx context.Context, userID int64, symbol, timeframe string, kind SignalKind) error
}

// Sender delivers one notification to one user via an external
// transport (log, webhook, Telegram bot API — see internal/notification).
type Sender interface {
	Send(ctx context.Context, userID int64, message string, critical bool) (latencyMS float64, err error)
}

// SignalHistoryWriter persists evaluated signals and delivery outcomes.
type SignalHistoryWriter interface {
	SaveSignal(ctx context.Context, s Signal) error
	SaveDelivery(ctx context.Context, d DeliveryRecord) error
	Close() error
}

// CandleHistoryStore persists closed candles for cold-start backfill.
type CandleHistoryStore interface {
	ReadRecentCandles(symbol, timeframe string, limit int) ([]Candle, error)
	WriteCandle(ctx context.Context, c Candle) error
	Close() error
}
