package indicator

import (
	"math"
	"testing"
	"time"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// TestRSI_Correctness_Period14 reproduces the textbook 14-period Wilder
// RSI walkthrough: 14 seed closes establish the first average
// gain/loss, the 15th close produces the first RSI reading.
func TestRSI_Correctness_Period14(t *testing.T) {
	closes := []float64{
		44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
		45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28,
	}
	rsi := NewRSI(14)
	now := time.Now()
	for i, c := range closes {
		rsi.Update(c, now.Add(time.Duration(i)*time.Minute))
	}
	if !rsi.Ready() {
		t.Fatal("expected RSI(14) to be ready after 15 closes")
	}
	// Wilder's first smoothed RSI for this series is ~70.53.
	assertClose(t, "RSI(14) first reading", rsi.Value(), 70.53, 0.5)
}

func TestRSI_NotReadyBeforePeriodPlusOne(t *testing.T) {
	rsi := NewRSI(14)
	now := time.Now()
	for i := 0; i < 14; i++ {
		rsi.Update(100+float64(i), now)
		if rsi.Ready() {
			t.Fatalf("RSI(14) should not be ready after only %d closes", i+1)
		}
	}
}

func TestRSI_AllGainsIsHundred(t *testing.T) {
	rsi := NewRSI(5)
	now := time.Now()
	price := 100.0
	for i := 0; i < 10; i++ {
		rsi.Update(price, now)
		price += 1
	}
	assertClose(t, "RSI all gains", rsi.Value(), 100.0, 0.01)
}

func TestRSI_AllLossesIsZero(t *testing.T) {
	rsi := NewRSI(5)
	now := time.Now()
	price := 100.0
	for i := 0; i < 10; i++ {
		rsi.Update(price, now)
		price -= 1
	}
	assertClose(t, "RSI all losses", rsi.Value(), 0.0, 0.01)
}

func TestRSI_PeekDoesNotMutate(t *testing.T) {
	rsi := NewRSI(5)
	now := time.Now()
	for _, c := range []float64{10, 11, 12, 11, 13, 14, 15} {
		rsi.Update(c, now)
	}
	before := rsi.Value()
	_ = rsi.Peek(50)
	assertClose(t, "RSI after Peek", rsi.Value(), before, 0.0001)
}
