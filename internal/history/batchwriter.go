package history

import (
	"context"
	"log"
	"time"

	"tradingsignalcore/internal/model"
)

// BatchWriter buffers candles from a channel and commits them in
// batched transactions, flushing every defaultBatchSize candles or
// every defaultFlushDelay, whichever comes first — so the ingest hot
// path never blocks on a per-candle disk write.
type BatchWriter struct {
	store *Store
}

// NewBatchWriter wraps store for channel-driven batched writes.
func NewBatchWriter(store *Store) *BatchWriter {
	return &BatchWriter{store: store}
}

// Run consumes candles from candleCh until ctx is cancelled or the
// channel closes, flushing any remaining batch before returning.
func (bw *BatchWriter) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		n, err := bw.store.WriteCandleBatch(ctx, batch)
		if err != nil {
			log.Printf("[history] batch write error: %v", err)
		}
		log.Printf("[history] committed %d/%d candles in %v", n, len(batch), time.Since(start))
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case c, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, c)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}
