package signal

import (
	"testing"
	"time"

	"tradingsignalcore/internal/model"
)

func rsiResult(value float64) model.IndicatorResult {
	return model.IndicatorResult{Name: rsiZoneName, Symbol: "BTCUSDT", Timeframe: "1m", Value: value, Ready: true}
}

func TestFirstTickNeverFiresASignal(t *testing.T) {
	e := New()
	sigs := e.EvaluateTick("BTCUSDT", "1m", []model.IndicatorResult{rsiResult(35)}, 100, time.Now())
	if len(sigs) != 0 {
		t.Fatalf("expected no signals on first tick, got %v", sigs)
	}
}

func TestRSIOversoldEntry(t *testing.T) {
	e := New()
	e.EvaluateTick("BTCUSDT", "1m", []model.IndicatorResult{rsiResult(32)}, 100, time.Now())
	sigs := e.EvaluateTick("BTCUSDT", "1m", []model.IndicatorResult{rsiResult(28)}, 99, time.Now())

	if len(sigs) != 1 || sigs[0].Kind != model.SignalRSIOversoldEntry {
		t.Fatalf("expected rsi_oversold_entry, got %v", sigs)
	}
	if sigs[0].Critical {
		t.Error("28 RSI should not be critical")
	}
}

func TestRSIStrongOversoldWinsOverNormal(t *testing.T) {
	e := New()
	e.EvaluateTick("BTCUSDT", "1m", []model.IndicatorResult{rsiResult(35)}, 100, time.Now())
	sigs := e.EvaluateTick("BTCUSDT", "1m", []model.IndicatorResult{rsiResult(18)}, 99, time.Now())

	if len(sigs) != 1 || sigs[0].Kind != model.SignalRSIStrongOversold {
		t.Fatalf("expected rsi_strong_oversold (strong wins), got %v", sigs)
	}
	if sigs[0].Critical {
		t.Error("RSI 18 is strong-oversold but above the 15 critical threshold")
	}
}

func TestRSICriticalBelow15(t *testing.T) {
	e := New()
	e.EvaluateTick("BTCUSDT", "1m", []model.IndicatorResult{rsiResult(25)}, 100, time.Now())
	sigs := e.EvaluateTick("BTCUSDT", "1m", []model.IndicatorResult{rsiResult(10)}, 99, time.Now())

	if len(sigs) != 1 {
		t.Fatalf("expected one signal, got %v", sigs)
	}
	if !sigs[0].Critical {
		t.Error("RSI 10 < 15 must be critical")
	}
}

func TestRSINoCrossingProducesNoSignal(t *testing.T) {
	e := New()
	e.EvaluateTick("BTCUSDT", "1m", []model.IndicatorResult{rsiResult(50)}, 100, time.Now())
	sigs := e.EvaluateTick("BTCUSDT", "1m", []model.IndicatorResult{rsiResult(55)}, 100, time.Now())
	if len(sigs) != 0 {
		t.Fatalf("expected no signal for a non-crossing move, got %v", sigs)
	}
}

func TestEMAGoldenCross(t *testing.T) {
	e := New()
	e.EvaluateTick("BTCUSDT", "1h", []model.IndicatorResult{
		{Name: "EMA_20", Symbol: "BTCUSDT", Timeframe: "1h", Value: 100, Ready: true},
		{Name: "EMA_50", Symbol: "BTCUSDT", Timeframe: "1h", Value: 105, Ready: true},
	}, 100, time.Now())

	sigs := e.EvaluateTick("BTCUSDT", "1h", []model.IndicatorResult{
		{Name: "EMA_20", Symbol: "BTCUSDT", Timeframe: "1h", Value: 110, Ready: true},
		{Name: "EMA_50", Symbol: "BTCUSDT", Timeframe: "1h", Value: 106, Ready: true},
	}, 110, time.Now())

	if len(sigs) != 1 || sigs[0].Kind != model.SignalEMAGoldenCross {
		t.Fatalf("expected ema_golden_cross, got %v", sigs)
	}
	if !sigs[0].Critical {
		t.Error("golden cross must always be critical")
	}
}

func TestEMADeathCross(t *testing.T) {
	e := New()
	e.EvaluateTick("ETHUSDT", "1h", []model.IndicatorResult{
		{Name: "EMA_50", Symbol: "ETHUSDT", Timeframe: "1h", Value: 110, Ready: true},
		{Name: "EMA_200", Symbol: "ETHUSDT", Timeframe: "1h", Value: 100, Ready: true},
	}, 100, time.Now())

	sigs := e.EvaluateTick("ETHUSDT", "1h", []model.IndicatorResult{
		{Name: "EMA_50", Symbol: "ETHUSDT", Timeframe: "1h", Value: 95, Ready: true},
		{Name: "EMA_200", Symbol: "ETHUSDT", Timeframe: "1h", Value: 96, Ready: true},
	}, 95, time.Now())

	if len(sigs) != 1 || sigs[0].Kind != model.SignalEMADeathCross {
		t.Fatalf("expected ema_death_cross, got %v", sigs)
	}
	if sigs[0].Critical {
		t.Error("death cross is not critical per the classification rule")
	}
}

func TestSeriesAreIsolatedBySymbolAndTimeframe(t *testing.T) {
	e := New()
	e.EvaluateTick("BTCUSDT", "1m", []model.IndicatorResult{rsiResult(32)}, 100, time.Now())
	sigs := e.EvaluateTick("ETHUSDT", "1m", []model.IndicatorResult{rsiResult(28)}, 100, time.Now())
	if len(sigs) != 0 {
		t.Fatalf("expected no crossing — ETHUSDT has no prior RSI value, got %v", sigs)
	}
}
