package indicator

import (
	"testing"
	"time"
)

// TestEMA_Correctness_Period3 hand-verifies a 3-period EMA: the first
// value is the SMA bootstrap, subsequent values apply the standard
// multiplier 2/(period+1).
func TestEMA_Correctness_Period3(t *testing.T) {
	ema := NewEMA(3)
	now := time.Now()
	prices := []float64{100, 102, 104, 103, 105}
	// SMA(3) bootstrap after candle 3: (100+102+104)/3 = 102
	// mult = 2/4 = 0.5
	// candle 4: 103*0.5 + 102*0.5 = 102.5
	// candle 5: 105*0.5 + 102.5*0.5 = 103.75
	expected := []float64{0, 0, 102.0, 102.5, 103.75}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		ema.Update(p, now)
		if ema.Ready() != ready[i] {
			t.Fatalf("candle %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 0.0001)
		}
	}
}

func TestEMA_NotReadyBeforePeriod(t *testing.T) {
	ema := NewEMA(5)
	now := time.Now()
	for i := 0; i < 4; i++ {
		ema.Update(100, now)
		if ema.Ready() {
			t.Fatalf("EMA(5) should not be ready after only %d closes", i+1)
		}
	}
}

func TestEMA_PeekDoesNotMutate(t *testing.T) {
	ema := NewEMA(3)
	now := time.Now()
	for _, p := range []float64{100, 102, 104} {
		ema.Update(p, now)
	}
	before := ema.Value()
	_ = ema.Peek(200)
	assertClose(t, "EMA after Peek", ema.Value(), before, 0.0001)
}

func TestEMA_PeekMatchesNextUpdate(t *testing.T) {
	ema := NewEMA(3)
	now := time.Now()
	for _, p := range []float64{100, 102, 104} {
		ema.Update(p, now)
	}
	peeked := ema.Peek(106)
	ema.Update(106, now)
	assertClose(t, "EMA Peek vs Update", peeked, ema.Value(), 0.0001)
}
