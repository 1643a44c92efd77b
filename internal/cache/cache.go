// Package cache implements the ephemeral key-value cache layer: current
// indicator values, real-time preview values, calculation state,
// recent candle series, and last traded price. Backed by Redis, with a
// circuit breaker and local write buffering so a Redis outage degrades
// rather than blocks the pipeline.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"tradingsignalcore/internal/model"
	redisstore "tradingsignalcore/internal/store/redis"
)

const (
	ttlIndicatorValue = 30 * time.Second
	ttlRTCurrent      = 30 * time.Second
	ttlRTPrevious     = 60 * time.Second
	ttlState          = 300 * time.Second
	ttlCandles        = 600 * time.Second
	ttlPrice          = 10 * time.Second
	ttlSnapshot       = 24 * time.Hour

	volatilityHigh = 0.05 // TTL halved above this
	volatilityLow  = 0.01 // TTL doubled below this

	snapshotKey = "engine:snapshot"
)

// Cache implements model.CacheStore and model.SnapshotStore over a
// Redis-backed transport client.
type Cache struct {
	client *redisstore.Client
	bw     *redisstore.BufferedWriter

	mu         sync.Mutex
	volatility map[string]float64 // symbol -> recent high-low range as a fraction of close
}

// New wraps a transport client and its buffered writer as a Cache.
func New(client *redisstore.Client, bw *redisstore.BufferedWriter) *Cache {
	return &Cache{client: client, bw: bw, volatility: make(map[string]float64)}
}

// NoteVolatility records the latest (high-low)/close fraction for a
// symbol, used to scale real-time-snapshot TTLs up or down.
func (c *Cache) NoteVolatility(symbol string, fraction float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volatility[symbol] = fraction
}

func (c *Cache) volatilityFor(symbol string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volatility[symbol]
}

func (c *Cache) rtTTL(symbol string) (current, previous time.Duration) {
	v := c.volatilityFor(symbol)
	switch {
	case v > volatilityHigh:
		return ttlRTCurrent / 2, ttlRTPrevious / 2
	case v > 0 && v < volatilityLow:
		return ttlRTCurrent * 2, ttlRTPrevious * 2
	default:
		return ttlRTCurrent, ttlRTPrevious
	}
}

// indicatorFamily splits "RSI_14" into ("rsi", 14).
func indicatorFamily(name string) (family string, period int) {
	idx := strings.LastIndexByte(name, '_')
	if idx < 0 {
		return strings.ToLower(name), 0
	}
	family = strings.ToLower(name[:idx])
	period, _ = strconv.Atoi(name[idx+1:])
	return family, period
}

func indicatorKey(family, symbol, timeframe string, period int) string {
	return fmt.Sprintf("%s:%s:%s:%d", family, symbol, timeframe, period)
}

func stateKey(family, symbol, timeframe string, period int) string {
	return fmt.Sprintf("state:%s:%s:%s:%d", family, symbol, timeframe, period)
}

func candlesKey(symbol, timeframe string) string {
	return "candles:" + symbol + ":" + timeframe
}

func priceKey(symbol string) string {
	return "price:" + symbol
}

// GetIndicators fetches the named indicator values for (symbol,
// timeframe) in a single pipelined round trip.
func (c *Cache) GetIndicators(ctx context.Context, symbol, timeframe string, names []string) (map[string]model.IndicatorResult, error) {
	keys := make([]string, len(names))
	for i, name := range names {
		family, period := indicatorFamily(name)
		keys[i] = indicatorKey(family, symbol, timeframe, period)
	}

	raw, err := c.client.GetMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("get indicators %s/%s: %w", symbol, timeframe, err)
	}

	out := make(map[string]model.IndicatorResult, len(names))
	for i, name := range names {
		data, ok := raw[keys[i]]
		if !ok {
			continue
		}
		var r model.IndicatorResult
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		out[name] = r
	}
	return out, nil
}

// SetIndicators writes a batch of indicator results in a single
// pipelined round trip. Live (preview) results go to a "_rt" key with
// the previous value shadowed to a ":prev" key before being
// overwritten, per the real-time-snapshot key convention.
func (c *Cache) SetIndicators(ctx context.Context, results []model.IndicatorResult) error {
	if len(results) == 0 {
		return nil
	}

	kvs := make([]redisstore.KV, 0, len(results))
	for i := range results {
		r := &results[i]
		family, period := indicatorFamily(r.Name)
		key := indicatorKey(family, r.Symbol, r.Timeframe, period)
		data, err := json.Marshal(r)
		if err != nil {
			continue
		}

		if r.Live {
			rtKey := key + "_rt"
			current, previous := c.rtTTL(r.Symbol)
			c.client.ShadowPrevious(ctx, rtKey, rtKey+":prev", previous)
			kvs = append(kvs, redisstore.KV{Key: rtKey, Value: data, TTL: current})
			continue
		}

		kvs = append(kvs, redisstore.KV{Key: key, Value: data, TTL: ttlIndicatorValue})
	}

	if c.bw != nil {
		return c.bw.SetMany(kvs)
	}
	return c.client.SetMany(ctx, kvs)
}

// SetIndicatorState persists the closed-form calculation state for one
// RSI or EMA instance, keyed separately from its current value so
// restore doesn't depend on having cached the latest result.
func (c *Cache) SetIndicatorState(ctx context.Context, family, symbol, timeframe string, period int, state interface{}) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal indicator state: %w", err)
	}
	return c.client.Set(ctx, stateKey(family, symbol, timeframe, period), data, ttlState)
}

// GetIndicatorState reads back a previously persisted calculation
// state. Returns (nil, nil) on a cache miss.
func (c *Cache) GetIndicatorState(ctx context.Context, family, symbol, timeframe string, period int) ([]byte, error) {
	return c.client.Get(ctx, stateKey(family, symbol, timeframe, period))
}

// SetCandle caches the latest candle for (symbol, timeframe) and
// records its high-low range as the volatility signal used to scale
// real-time TTLs.
func (c *Cache) SetCandle(ctx context.Context, cdl model.Candle) error {
	if cdl.Close > 0 {
		c.NoteVolatility(cdl.Symbol, (cdl.High-cdl.Low)/cdl.Close)
	}

	data := cdl.JSON()
	if err := c.client.Set(ctx, candlesKey(cdl.Symbol, cdl.Timeframe), data, ttlCandles); err != nil {
		return fmt.Errorf("set candle %s: %w", cdl.Key(), err)
	}
	return c.client.Set(ctx, priceKey(cdl.Symbol), []byte(strconv.FormatFloat(cdl.Close, 'f', -1, 64)), ttlPrice)
}

// GetLatestCandle reads back the most recently cached candle for
// (symbol, timeframe). Returns (nil, nil) on a cache miss.
func (c *Cache) GetLatestCandle(ctx context.Context, symbol, timeframe string) (*model.Candle, error) {
	data, err := c.client.Get(ctx, candlesKey(symbol, timeframe))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var cdl model.Candle
	if err := json.Unmarshal(data, &cdl); err != nil {
		return nil, fmt.Errorf("unmarshal cached candle: %w", err)
	}
	return &cdl, nil
}

// Invalidate deletes every key for (symbol, timeframe) across all key
// classes — indicator values, real-time snapshots, state, and candles.
func (c *Cache) Invalidate(ctx context.Context, symbol, timeframe string) error {
	pattern := "*:" + symbol + ":" + timeframe + "*"
	_, err := c.client.DeletePattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidate %s/%s: %w", symbol, timeframe, err)
	}
	return nil
}

// SaveSnapshotJSON persists the indicator engine checkpoint, overwriting
// any prior snapshot.
func (c *Cache) SaveSnapshotJSON(ctx context.Context, data []byte) error {
	return c.client.Set(ctx, snapshotKey, data, ttlSnapshot)
}

// ReadLatestSnapshotJSON returns the most recently saved engine
// checkpoint, or nil if none exists.
func (c *Cache) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	return c.client.Get(ctx, snapshotKey)
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

var (
	_ model.CacheStore    = (*Cache)(nil)
	_ model.SnapshotStore = (*Cache)(nil)
)
