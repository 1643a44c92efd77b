package redis

import (
	"context"
	"log"
	"sync"
	"time"
)

// BufferedWriter wraps Client writes with a circuit breaker. While the
// breaker is open, writes are held locally instead of lost, and
// replayed in order once the breaker closes again.
type BufferedWriter struct {
	client *Client
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []KV
	maxBuf int

	OnBuffer func()          // called when a write is buffered, for metrics
	OnFlush  func(count int) // called after a flush completes
}

// NewBufferedWriter wraps client with cb, buffering up to maxBufferSize
// writes (0 uses a default of 10000) while the circuit is open.
func NewBufferedWriter(ctx context.Context, client *Client, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		client: client,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]KV, 0, 256),
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}
	return bw
}

// SetMany writes kvs through the circuit breaker. On an open circuit,
// the writes are buffered instead of failing.
func (bw *BufferedWriter) SetMany(kvs []KV) error {
	err := bw.cb.Execute(func() error {
		return bw.client.SetMany(bw.ctx, kvs)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrites(kvs)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferWrites(kvs []KV) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	for _, kv := range kvs {
		if len(bw.buffer) >= bw.maxBuf {
			bw.buffer = bw.buffer[1:] // drop oldest on overflow
		}
		bw.buffer = append(bw.buffer, kv)
	}
	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]KV, 0, 256)
	bw.mu.Unlock()

	ctx, cancel := context.WithTimeout(bw.ctx, 10*time.Second)
	defer cancel()
	if err := bw.client.SetMany(ctx, toFlush); err != nil {
		log.Printf("[buffered-writer] flush of %d writes failed: %v", len(toFlush), err)
		return
	}
	log.Printf("[buffered-writer] flushed %d buffered writes", len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(len(toFlush))
	}
}

// PendingCount returns the number of writes currently buffered.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
