package antispam

import (
	"testing"

	"tradingsignalcore/internal/model"
)

func TestIsCriticalRSIExtremes(t *testing.T) {
	cases := []struct {
		name string
		kind model.SignalKind
		rsi  float64
		want bool
	}{
		{"deeply oversold bypasses", model.SignalRSIOversoldEntry, 10, true},
		{"deeply overbought bypasses", model.SignalRSIOverboughtEntry, 90, true},
		{"mid-range does not bypass", model.SignalRSIOversoldEntry, 25, false},
		{"boundary low is not critical", model.SignalRSIOversoldEntry, 15, false},
		{"boundary high is not critical", model.SignalRSIOverboughtEntry, 85, false},
		{"golden cross always bypasses", model.SignalEMAGoldenCross, 0, true},
		{"death cross does not bypass", model.SignalEMADeathCross, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := isCritical(tc.kind, tc.rsi)
			if got != tc.want {
				t.Errorf("isCritical(%v, %v) = %v, want %v", tc.kind, tc.rsi, got, tc.want)
			}
		})
	}
}

func TestLedgerKeyShape(t *testing.T) {
	got := ledgerKey(42, "BTCUSDT", "1m", model.SignalRSIOversoldEntry)
	want := "signal_history:42:BTCUSDT:1m:rsi_oversold_entry"
	if got != want {
		t.Errorf("ledgerKey() = %q, want %q", got, want)
	}
}
