package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tradingsignalcore/internal/model"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsurePairIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.EnsurePair("BTCUSDT", "BTC", "USDT")
	require.NoError(t, err)

	id2, err := s.EnsurePair("BTCUSDT", "BTC", "USDT")
	require.NoError(t, err)

	require.Equal(t, id1, id2)
}

func TestWriteAndReadRecentCandles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		c := model.Candle{
			Symbol: "ETHUSDT", Timeframe: "1m",
			OpenTime:  base.Add(time.Duration(i) * time.Minute),
			CloseTime: base.Add(time.Duration(i+1) * time.Minute),
			Open:      100 + float64(i), High: 105 + float64(i),
			Low: 95 + float64(i), Close: 102 + float64(i), Volume: 10,
			Closed: true,
		}
		require.NoError(t, s.WriteCandle(ctx, c))
	}

	candles, err := s.ReadRecentCandles("ETHUSDT", "1m", 3)
	require.NoError(t, err)
	require.Len(t, candles, 3)

	// oldest-first, should be the last 3 of the 5 written
	require.Equal(t, 102.0, candles[0].Close)
	require.Equal(t, 103.0, candles[1].Close)
	require.Equal(t, 104.0, candles[2].Close)
}

func TestWriteCandleUpsertsOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	openTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := model.Candle{
		Symbol: "BTCUSDT", Timeframe: "5m",
		OpenTime: openTime, CloseTime: openTime.Add(5 * time.Minute),
		Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1, Closed: false,
	}
	require.NoError(t, s.WriteCandle(ctx, c))

	c.Close = 103
	c.Closed = true
	require.NoError(t, s.WriteCandle(ctx, c))

	candles, err := s.ReadRecentCandles("BTCUSDT", "5m", 10)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	require.Equal(t, 103.0, candles[0].Close)
}

func TestWriteCandleBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	batch := make([]model.Candle, 0, 10)
	for i := 0; i < 10; i++ {
		batch = append(batch, model.Candle{
			Symbol: "SOLUSDT", Timeframe: "1h",
			OpenTime:  base.Add(time.Duration(i) * time.Hour),
			CloseTime: base.Add(time.Duration(i+1) * time.Hour),
			Open:      10, High: 11, Low: 9, Close: 10.5, Volume: 5, Closed: true,
		})
	}

	n, err := s.WriteCandleBatch(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, 10, n)

	candles, err := s.ReadRecentCandles("SOLUSDT", "1h", 20)
	require.NoError(t, err)
	require.Len(t, candles, 10)
}

func TestSaveSignalAndDelivery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sig := model.Signal{
		ID: "sig-1", Symbol: "BTCUSDT", Timeframe: "1m",
		Kind: model.SignalRSIOversoldEntry, Price: 50000, RSIValue: 28,
		ProcessingTimeMS: 3.2, TS: time.Now().UTC(),
	}
	require.NoError(t, s.SaveSignal(ctx, sig))
	require.NoError(t, s.SaveSignal(ctx, sig)) // duplicate insert ignored, not an error

	delivery := model.DeliveryRecord{
		ID: "del-1", SignalID: "sig-1", UserID: 42,
		Attempts: 1, Delivered: true, LastAttempt: time.Now().UTC(), LatencyMS: 12.5,
	}
	require.NoError(t, s.SaveDelivery(ctx, delivery))
}

func TestSnapshotDurability(t *testing.T) {
	s := newTestStore(t)

	got, err := s.ReadLatestSnapshotDurable()
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, s.SaveSnapshotDurable(map[string]int{"version": 1}))
	data, err := s.ReadLatestSnapshotDurable()
	require.NoError(t, err)
	require.Contains(t, string(data), `"version":1`)
}
