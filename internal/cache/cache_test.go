package cache

import "testing"

func TestIndicatorFamily(t *testing.T) {
	cases := []struct {
		name       string
		wantFamily string
		wantPeriod int
	}{
		{"RSI_14", "rsi", 14},
		{"RSI_21", "rsi", 21},
		{"EMA_200", "ema", 200},
		{"EMA_20", "ema", 20},
	}
	for _, tc := range cases {
		family, period := indicatorFamily(tc.name)
		if family != tc.wantFamily || period != tc.wantPeriod {
			t.Errorf("indicatorFamily(%q) = (%q, %d), want (%q, %d)",
				tc.name, family, period, tc.wantFamily, tc.wantPeriod)
		}
	}
}

func TestIndicatorKey(t *testing.T) {
	got := indicatorKey("rsi", "BTCUSDT", "1m", 14)
	want := "rsi:BTCUSDT:1m:14"
	if got != want {
		t.Errorf("indicatorKey() = %q, want %q", got, want)
	}
}

func TestStateKey(t *testing.T) {
	got := stateKey("rsi", "ETHUSDT", "5m", 21)
	want := "state:rsi:ETHUSDT:5m:21"
	if got != want {
		t.Errorf("stateKey() = %q, want %q", got, want)
	}
}

func TestRTTTLScalesWithVolatility(t *testing.T) {
	c := New(nil, nil)

	current, previous := c.rtTTL("BTCUSDT") // no volatility recorded yet
	if current != ttlRTCurrent || previous != ttlRTPrevious {
		t.Errorf("default TTLs = (%v, %v), want (%v, %v)", current, previous, ttlRTCurrent, ttlRTPrevious)
	}

	c.NoteVolatility("BTCUSDT", 0.08) // > 5% -> halved
	current, previous = c.rtTTL("BTCUSDT")
	if current != ttlRTCurrent/2 || previous != ttlRTPrevious/2 {
		t.Errorf("high-volatility TTLs = (%v, %v), want halved", current, previous)
	}

	c.NoteVolatility("BTCUSDT", 0.005) // < 1% -> doubled
	current, previous = c.rtTTL("BTCUSDT")
	if current != ttlRTCurrent*2 || previous != ttlRTPrevious*2 {
		t.Errorf("low-volatility TTLs = (%v, %v), want doubled", current, previous)
	}

	c.NoteVolatility("BTCUSDT", 0.03) // in between -> default
	current, previous = c.rtTTL("BTCUSDT")
	if current != ttlRTCurrent || previous != ttlRTPrevious {
		t.Errorf("mid-volatility TTLs = (%v, %v), want defaults", current, previous)
	}
}
