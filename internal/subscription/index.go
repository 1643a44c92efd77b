// Package subscription provides a read-mostly, periodically refreshed
// cache over the durable subscription store so the signal pipeline's
// hot path never blocks on a SQLite query per closed candle.
package subscription

import (
	"context"
	"log"
	"sync"
	"time"

	"tradingsignalcore/internal/model"
)

// source is the durable backing store this index refreshes from —
// satisfied by *history.Store.
type source interface {
	SubscribersFor(ctx context.Context, symbol, timeframe string) ([]int64, error)
	AllPairs(ctx context.Context) ([]model.Pair, error)
}

// Index caches the subscriber set for every (symbol, timeframe) pair
// the pipeline tracks, rebuilt wholesale on each Refresh.
type Index struct {
	src        source
	timeframes []string

	mu         sync.RWMutex
	bySymbolTF map[string][]int64
	pairs      []model.Pair
}

// New creates an Index that warms itself over the given timeframes on
// each Refresh.
func New(src source, timeframes []string) *Index {
	return &Index{
		src:        src,
		timeframes: timeframes,
		bySymbolTF: make(map[string][]int64),
	}
}

func key(symbol, timeframe string) string {
	return symbol + ":" + timeframe
}

// Refresh rebuilds the cached index from the backing store.
func (idx *Index) Refresh(ctx context.Context) error {
	pairs, err := idx.src.AllPairs(ctx)
	if err != nil {
		return err
	}

	next := make(map[string][]int64, len(pairs)*len(idx.timeframes))
	for _, p := range pairs {
		for _, tf := range idx.timeframes {
			subs, err := idx.src.SubscribersFor(ctx, p.Symbol, tf)
			if err != nil {
				return err
			}
			if len(subs) > 0 {
				next[key(p.Symbol, tf)] = subs
			}
		}
	}

	idx.mu.Lock()
	idx.pairs = pairs
	idx.bySymbolTF = next
	idx.mu.Unlock()
	return nil
}

// SubscribersFor returns the cached subscriber chat IDs for (symbol, timeframe).
func (idx *Index) SubscribersFor(ctx context.Context, symbol, timeframe string) ([]int64, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	subs := idx.bySymbolTF[key(symbol, timeframe)]
	out := make([]int64, len(subs))
	copy(out, subs)
	return out, nil
}

// AllPairs returns the cached pair list.
func (idx *Index) AllPairs(ctx context.Context) ([]model.Pair, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]model.Pair, len(idx.pairs))
	copy(out, idx.pairs)
	return out, nil
}

// StartAutoRefresh runs Refresh on interval until ctx is cancelled,
// logging (but not dying on) refresh failures — a stale cache is
// preferable to halting the fan-out path.
func (idx *Index) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := idx.Refresh(ctx); err != nil {
					log.Printf("[subscription] refresh failed: %v", err)
				}
			}
		}
	}()
}

var _ model.SubscriptionReader = (*Index)(nil)
