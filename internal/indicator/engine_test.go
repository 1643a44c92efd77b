package indicator

import (
	"testing"
	"time"

	"tradingsignalcore/internal/model"
)

func testConfigs() []TFIndicatorConfig {
	return []TFIndicatorConfig{
		{Timeframe: "1m", Indicators: []IndicatorConfig{
			{Type: "RSI", Period: 3},
			{Type: "EMA", Period: 3},
		}},
	}
}

func closedCandle(symbol, tf string, close float64, ts time.Time) model.Candle {
	return model.Candle{
		Symbol: symbol, Timeframe: tf,
		Open: close, High: close + 1, Low: close - 1, Close: close,
		CloseTime: ts, Closed: true,
	}
}

func TestEngine_ProcessTracksSeparateSymbols(t *testing.T) {
	e := NewEngine(testConfigs())
	now := time.Now()

	e.Process(closedCandle("BTCUSDT", "1m", 100, now))
	e.Process(closedCandle("ETHUSDT", "1m", 2000, now))

	results := e.Process(closedCandle("BTCUSDT", "1m", 101, now.Add(time.Minute)))
	for _, r := range results {
		if r.Symbol != "BTCUSDT" {
			t.Errorf("expected only BTCUSDT results, got %s", r.Symbol)
		}
	}
}

func TestEngine_UnconfiguredTimeframeReturnsNil(t *testing.T) {
	e := NewEngine(testConfigs())
	results := e.Process(closedCandle("BTCUSDT", "5m", 100, time.Now()))
	if results != nil {
		t.Errorf("expected nil for an unconfigured timeframe, got %v", results)
	}
}

func TestEngine_ProcessPeekDoesNotAdvanceState(t *testing.T) {
	e := NewEngine(testConfigs())
	now := time.Now()
	for i, c := range []float64{100, 101, 102, 103} {
		e.Process(closedCandle("BTCUSDT", "1m", c, now.Add(time.Duration(i)*time.Minute)))
	}

	before := e.Process(closedCandle("BTCUSDT", "1m", 104, now.Add(4*time.Minute)))
	peek := e.ProcessPeek(closedCandle("BTCUSDT", "1m", 999, now.Add(5*time.Minute)))
	after := e.ProcessPeek(closedCandle("BTCUSDT", "1m", 999, now.Add(5*time.Minute)))

	if len(peek) == 0 || len(after) == 0 {
		t.Fatal("expected peek results once the series has been seeded")
	}
	for i := range peek {
		if peek[i].Value != after[i].Value {
			t.Errorf("ProcessPeek should be idempotent, got %v then %v", peek[i].Value, after[i].Value)
		}
	}
	_ = before
}

func TestEngine_ProcessPeekBeforeSeedReturnsNil(t *testing.T) {
	e := NewEngine(testConfigs())
	results := e.ProcessPeek(closedCandle("BTCUSDT", "1m", 100, time.Now()))
	if results != nil {
		t.Errorf("expected nil peek for an unseeded symbol, got %v", results)
	}
}

func TestValidateConfigs_RejectsDuplicateTimeframe(t *testing.T) {
	configs := []TFIndicatorConfig{
		{Timeframe: "1m", Indicators: []IndicatorConfig{{Type: "RSI", Period: 14}}},
		{Timeframe: "1m", Indicators: []IndicatorConfig{{Type: "EMA", Period: 20}}},
	}
	if err := ValidateConfigs(configs); err == nil {
		t.Error("expected an error for duplicate timeframes")
	}
}

func TestValidateConfigs_RejectsUnknownIndicatorType(t *testing.T) {
	configs := []TFIndicatorConfig{
		{Timeframe: "1m", Indicators: []IndicatorConfig{{Type: "MACD", Period: 12}}},
	}
	if err := ValidateConfigs(configs); err == nil {
		t.Error("expected an error for an unsupported indicator type")
	}
}

func TestValidateConfigs_RejectsNonPositivePeriod(t *testing.T) {
	configs := []TFIndicatorConfig{
		{Timeframe: "1m", Indicators: []IndicatorConfig{{Type: "RSI", Period: 0}}},
	}
	if err := ValidateConfigs(configs); err == nil {
		t.Error("expected an error for a non-positive period")
	}
}

func TestValidateConfigs_AcceptsWellFormedConfigs(t *testing.T) {
	if err := ValidateConfigs(testConfigs()); err != nil {
		t.Errorf("expected well-formed configs to validate, got %v", err)
	}
}
