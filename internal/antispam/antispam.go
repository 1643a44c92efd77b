// Package antispam rate-limits signal notifications per user using a
// Redis sorted-set ledger: one per-signal-type repeat interval, a
// rolling hourly cap, and a critical-signal bypass.
package antispam

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tradingsignalcore/internal/model"
)

// historyTTL bounds how long a per-user/symbol/timeframe/kind ledger
// entry survives; the hourly cap itself only counts entries inside
// hourWindow.
const historyTTL = 24 * time.Hour

const hourWindow = time.Hour

// criticalRSILow/High mark the RSI extremes that bypass rate limiting
// regardless of how recently the user was last notified.
const (
	criticalRSILow  = 15.0
	criticalRSIHigh = 85.0
)

// Ledger rate-limits per-user signal delivery against a Redis sorted
// set, where each entry's score is the unix timestamp it was recorded.
type Ledger struct {
	rdb *goredis.Client

	rsiInterval time.Duration
	emaInterval time.Duration
	hourlyCap   int64

	opCount atomic.Uint64
}

// New creates a Ledger. rsiInterval/emaInterval are the minimum spacing
// between non-critical signals of the matching family for the same
// user/symbol/timeframe; hourlyCap bounds total non-critical signals
// per hour for that same key.
func New(rdb *goredis.Client, rsiInterval, emaInterval time.Duration, hourlyCap int) *Ledger {
	return &Ledger{rdb: rdb, rsiInterval: rsiInterval, emaInterval: emaInterval, hourlyCap: int64(hourlyCap)}
}

// repeatInterval returns the minimum spacing required between
// non-critical signals of kind's family.
func (l *Ledger) repeatInterval(kind model.SignalKind) time.Duration {
	if kind.IsRSIKind() {
		return l.rsiInterval
	}
	return l.emaInterval
}

func ledgerKey(userID int64, symbol, timeframe string, kind model.SignalKind) string {
	return fmt.Sprintf("signal_history:%d:%s:%s:%s", userID, symbol, timeframe, kind)
}

// isCritical reports whether a signal bypasses rate limiting: deeply
// oversold/overbought RSI or a golden cross.
func isCritical(kind model.SignalKind, rsiValue float64) bool {
	if kind.IsRSIKind() {
		return rsiValue < criticalRSILow || rsiValue > criticalRSIHigh
	}
	return kind == model.SignalEMAGoldenCross
}

// CanSend reports whether a notification for this (user, symbol,
// timeframe, kind) may be sent now, and if not, why.
func (l *Ledger) CanSend(ctx context.Context, userID int64, symbol, timeframe string, kind model.SignalKind, rsiValue float64) (bool, string, error) {
	if isCritical(kind, rsiValue) {
		return true, "", nil
	}

	key := ledgerKey(userID, symbol, timeframe, kind)
	now := time.Now()

	last, err := l.rdb.ZRevRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil && err != goredis.Nil {
		return false, "", fmt.Errorf("antispam: zrevrange %s: %w", key, err)
	}
	if len(last) > 0 {
		lastSent := time.Unix(int64(last[0].Score), 0)
		if now.Sub(lastSent) < l.repeatInterval(kind) {
			return false, "repeat_interval", nil
		}
	}

	hourAgo := now.Add(-hourWindow)
	count, err := l.rdb.ZCount(ctx, key, fmt.Sprintf("%d", hourAgo.Unix()), fmt.Sprintf("%d", now.Unix())).Result()
	if err != nil {
		return false, "", fmt.Errorf("antispam: zcount %s: %w", key, err)
	}
	if count >= l.hourlyCap {
		return false, "hourly_cap", nil
	}

	return true, "", nil
}

// RecordSent records that a signal was just delivered, refreshes the
// ledger's TTL, and periodically sweeps entries older than the
// history window.
func (l *Ledger) RecordSent(ctx context.Context, userID int64, symbol, timeframe string, kind model.SignalKind) error {
	key := ledgerKey(userID, symbol, timeframe, kind)
	now := time.Now()

	pipe := l.rdb.Pipeline()
	pipe.ZAdd(ctx, key, &goredis.Z{Score: float64(now.Unix()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("antispam: record sent %s: %w", key, err)
	}

	if l.opCount.Add(1)%100 == 0 {
		cutoff := now.Add(-historyTTL)
		l.rdb.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff.Unix()))
	}
	return nil
}

var _ model.AntiSpamLedger = (*Ledger)(nil)
