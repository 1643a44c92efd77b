// Package ingest validates incoming kline frames, converts them to
// internal Candle form, and updates the candle cache — invoking the
// indicator engine only for closed candles.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tradingsignalcore/internal/model"
	"tradingsignalcore/internal/ringbuf"
)

// ringPollInterval is how often Drain polls the ring buffer when it's
// empty. The ring itself is lock-free and non-blocking, so the
// consumer side needs a short sleep between empty Pop attempts rather
// than a busy spin.
const ringPollInterval = 500 * time.Microsecond

// klineFrame mirrors the upstream combined-stream envelope wrapping a
// kline object `k` with decimal-string OHLCV fields.
type klineFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		K kline `json:"k"`
	} `json:"data"`
	K kline `json:"k"` // some upstreams send the kline unwrapped
}

type kline struct {
	OpenTimeMS  int64  `json:"t"`
	CloseTimeMS int64  `json:"T"`
	Symbol      string `json:"s"`
	Interval    string `json:"i"`
	Open        string `json:"o"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Close       string `json:"c"`
	Volume      string `json:"v"`
	IsClosed    bool   `json:"x"`
}

// Processor converts raw frames to model.Candle, counting malformed
// frames rather than retrying them.
type Processor struct {
	malformedCount uint64
	OnMalformed    func()
}

// New creates a Processor.
func New() *Processor {
	return &Processor{}
}

// MalformedCount returns the running count of dropped frames.
func (p *Processor) MalformedCount() uint64 {
	return p.malformedCount
}

// Parse validates and converts a raw frame into a Candle. Returns an
// error for any malformed frame — the caller MUST drop it and never
// retry.
func (p *Processor) Parse(raw []byte) (model.Candle, error) {
	var f klineFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		p.malformedCount++
		p.notifyMalformed()
		return model.Candle{}, fmt.Errorf("ingest: invalid json: %w", err)
	}

	k := f.Data.K
	if k.Symbol == "" {
		k = f.K
	}
	if k.Symbol == "" || k.Interval == "" {
		p.malformedCount++
		p.notifyMalformed()
		return model.Candle{}, fmt.Errorf("ingest: missing symbol/interval")
	}

	open, err1 := strconv.ParseFloat(k.Open, 64)
	high, err2 := strconv.ParseFloat(k.High, 64)
	low, err3 := strconv.ParseFloat(k.Low, 64)
	closePrice, err4 := strconv.ParseFloat(k.Close, 64)
	volume, err5 := strconv.ParseFloat(k.Volume, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		p.malformedCount++
		p.notifyMalformed()
		return model.Candle{}, fmt.Errorf("ingest: non-numeric OHLCV field")
	}

	return model.Candle{
		Symbol:    strings.ToUpper(k.Symbol),
		Timeframe: k.Interval,
		OpenTime:  time.UnixMilli(k.OpenTimeMS).UTC(),
		CloseTime: time.UnixMilli(k.CloseTimeMS).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Closed:    k.IsClosed,
	}, nil
}

func (p *Processor) notifyMalformed() {
	if p.OnMalformed != nil {
		p.OnMalformed()
	}
}

// cacheWriter is the subset of model.CacheStore the processor needs —
// scoped narrowly so tests can stub it without a real Redis.
type cacheWriter interface {
	SetCandle(ctx context.Context, c model.Candle) error
}

// Run consumes raw frames from rawCh (the WS client's read-goroutine
// output), parses and caches every candle (forming or closed), and
// pushes only closed candles into ring — a lock-free SPSC hand-off
// that decouples this goroutine from whatever drains ring for
// indicator processing, so a slow downstream stage never blocks frame
// parsing or the cache write.
func (p *Processor) Run(ctx context.Context, rawCh <-chan []byte, cache cacheWriter, ring *ringbuf.Ring) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-rawCh:
			if !ok {
				return
			}
			c, err := p.Parse(raw)
			if err != nil {
				continue
			}
			if cache != nil {
				_ = cache.SetCandle(ctx, c)
			}
			if c.Closed {
				if !ring.Push(c) {
					continue // ring full: downstream is behind, drop per backpressure policy
				}
			}
		}
	}
}

// Drain pops closed candles off ring and forwards them to out until
// ctx is cancelled, sleeping briefly between empty polls.
func Drain(ctx context.Context, ring *ringbuf.Ring, out chan<- model.Candle) {
	ticker := time.NewTicker(ringPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if c, ok := ring.Pop(); ok {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
