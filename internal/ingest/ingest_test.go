package ingest

import (
	"context"
	"testing"
	"time"

	"tradingsignalcore/internal/model"
	"tradingsignalcore/internal/ringbuf"
)

func closedFrame() []byte {
	return []byte(`{"data":{"k":{"t":1000,"T":60000,"s":"btcusdt","i":"1m","o":"100.5","h":"101.0","l":"99.5","c":"100.8","v":"12.3","x":true}}}`)
}

func TestParseClosedKline(t *testing.T) {
	p := New()
	c, err := p.Parse(closedFrame())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Symbol != "BTCUSDT" || c.Timeframe != "1m" || !c.Closed {
		t.Errorf("unexpected candle: %+v", c)
	}
	if c.Close != 100.8 {
		t.Errorf("expected close 100.8, got %v", c.Close)
	}
}

func TestParseUnwrappedKline(t *testing.T) {
	p := New()
	raw := []byte(`{"k":{"t":1000,"T":60000,"s":"ethusdt","i":"5m","o":"1","h":"2","l":"0.5","c":"1.5","v":"9","x":false}}`)
	c, err := p.Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Symbol != "ETHUSDT" || c.Closed {
		t.Errorf("unexpected candle: %+v", c)
	}
}

func TestParseMalformedJSONIncrementsCounter(t *testing.T) {
	p := New()
	_, err := p.Parse([]byte(`not json`))
	if err == nil {
		t.Fatal("expected an error for invalid json")
	}
	if p.MalformedCount() != 1 {
		t.Errorf("expected malformed count 1, got %d", p.MalformedCount())
	}
}

func TestParseMissingSymbolIsMalformed(t *testing.T) {
	p := New()
	_, err := p.Parse([]byte(`{"k":{"t":1,"T":2,"i":"1m","o":"1","h":"1","l":"1","c":"1","v":"1"}}`))
	if err == nil {
		t.Fatal("expected error for missing symbol")
	}
}

func TestParseNonNumericOHLCVIsMalformed(t *testing.T) {
	p := New()
	raw := []byte(`{"k":{"t":1,"T":2,"s":"btcusdt","i":"1m","o":"abc","h":"1","l":"1","c":"1","v":"1"}}`)
	_, err := p.Parse(raw)
	if err == nil {
		t.Fatal("expected error for non-numeric field")
	}
}

type fakeCache struct {
	sets []model.Candle
}

func (f *fakeCache) SetCandle(ctx context.Context, c model.Candle) error {
	f.sets = append(f.sets, c)
	return nil
}

func TestRunOnlyForwardsClosedCandlesToRing(t *testing.T) {
	p := New()
	cache := &fakeCache{}
	ring := ringbuf.New(16)
	rawCh := make(chan []byte, 2)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx, rawCh, cache, ring)

	openFrame := []byte(`{"k":{"t":1,"T":2,"s":"btcusdt","i":"1m","o":"1","h":"1","l":"1","c":"1","v":"1","x":false}}`)
	rawCh <- openFrame
	rawCh <- closedFrame()

	deadline := time.After(time.Second)
	for {
		if len(cache.sets) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for cache writes")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	if ring.Len() != 1 {
		t.Fatalf("expected exactly 1 closed candle in ring, got %d", ring.Len())
	}
	c, ok := ring.Pop()
	if !ok || !c.Closed {
		t.Errorf("expected a closed candle in ring, got %+v ok=%v", c, ok)
	}
}

func TestDrainForwardsFromRingToChannel(t *testing.T) {
	ring := ringbuf.New(4)
	ring.Push(model.Candle{Symbol: "BTCUSDT", Closed: true})

	out := make(chan model.Candle, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go Drain(ctx, ring, out)

	select {
	case c := <-out:
		if c.Symbol != "BTCUSDT" {
			t.Errorf("unexpected candle: %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Drain to forward the candle")
	}
	cancel()
}
