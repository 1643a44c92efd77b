// Package signal evaluates closed-candle indicator results against
// the zone-crossing and crossover rule table, tracking one previous
// value per (symbol, timeframe, indicator name) so the first tick for
// a series never fires a spurious signal.
package signal

import (
	"time"

	"github.com/google/uuid"

	"tradingsignalcore/internal/model"
)

const (
	rsiOversold        = 30.0
	rsiOverbought      = 70.0
	rsiStrongOversold  = 20.0
	rsiStrongOverbought = 80.0

	rsiCriticalLow  = 15.0
	rsiCriticalHigh = 85.0

	rsiZoneName = "RSI_14"
)

// emaPair is one ordered (short, long) crossover pair evaluated for
// golden/death crosses.
type emaPair struct {
	shortName string
	longName  string
}

var emaPairs = []emaPair{
	{shortName: "EMA_20", longName: "EMA_50"},
	{shortName: "EMA_50", longName: "EMA_200"},
}

// seriesState is the tracked previous indicator values for one
// (symbol, timeframe).
type seriesState struct {
	values map[string]float64 // indicator name -> previous value
	price  float64
}

// Evaluator tracks prev/curr indicator values per series and emits
// signals on zone crossings and EMA crossovers.
type Evaluator struct {
	series map[string]*seriesState // key: symbol:timeframe
}

// New creates an empty Evaluator.
func New() *Evaluator {
	return &Evaluator{series: make(map[string]*seriesState)}
}

func seriesKey(symbol, timeframe string) string {
	return symbol + ":" + timeframe
}

func (e *Evaluator) stateFor(symbol, timeframe string) *seriesState {
	k := seriesKey(symbol, timeframe)
	st, ok := e.series[k]
	if !ok {
		st = &seriesState{values: make(map[string]float64)}
		e.series[k] = st
	}
	return st
}

// evaluateRSI applies the zone-crossing table for a single (prev, curr)
// RSI_14 pair, returning a signal only when a threshold was crossed.
func (e *Evaluator) evaluateRSI(prev, curr float64, ts time.Time, symbol, timeframe string, price float64) *model.Signal {
	kind, ok := rsiCrossingKind(prev, curr)
	if !ok {
		return nil
	}
	return e.newSignal(symbol, timeframe, kind, price, ts, curr, 0, 0)
}

// rsiCrossingKind applies the zone-crossing table, returning the
// strong variant when both a normal and strong threshold are crossed
// on the same tick.
func rsiCrossingKind(prev, curr float64) (model.SignalKind, bool) {
	if prev >= rsiStrongOversold && curr < rsiStrongOversold {
		return model.SignalRSIStrongOversold, true
	}
	if prev <= rsiStrongOverbought && curr > rsiStrongOverbought {
		return model.SignalRSIStrongOverbought, true
	}
	if prev >= rsiOversold && curr < rsiOversold {
		return model.SignalRSIOversoldEntry, true
	}
	if prev < rsiOversold && curr >= rsiOversold {
		return model.SignalRSIOversoldExit, true
	}
	if prev <= rsiOverbought && curr > rsiOverbought {
		return model.SignalRSIOverboughtEntry, true
	}
	if prev > rsiOverbought && curr <= rsiOverbought {
		return model.SignalRSIOverboughtExit, true
	}
	return "", false
}

func emaCrossingKind(prevShort, prevLong, currShort, currLong float64) (model.SignalKind, bool) {
	if prevShort < prevLong && currShort > currLong {
		return model.SignalEMAGoldenCross, true
	}
	if prevShort > prevLong && currShort < currLong {
		return model.SignalEMADeathCross, true
	}
	return "", false
}

// EvaluateTick runs the rule table for one closed candle's full batch
// of ready indicator results, returning every signal that fires. It
// must be called once per closed candle, after every IndicatorResult
// for that candle has been collected.
func (e *Evaluator) EvaluateTick(symbol, timeframe string, results []model.IndicatorResult, price float64, ts time.Time) []model.Signal {
	st := e.stateFor(symbol, timeframe)
	st.price = price

	curr := make(map[string]float64, len(results))
	for _, r := range results {
		if r.Ready {
			curr[r.Name] = r.Value
		}
	}

	var out []model.Signal

	if rsiCurr, ok := curr[rsiZoneName]; ok {
		if rsiPrev, seen := st.values[rsiZoneName]; seen {
			if sig := e.evaluateRSI(rsiPrev, rsiCurr, ts, symbol, timeframe, price); sig != nil {
				sig.RSIValue = rsiCurr
				out = append(out, *sig)
			}
		}
	}

	for _, pair := range emaPairs {
		currShort, okS := curr[pair.shortName]
		currLong, okL := curr[pair.longName]
		if !okS || !okL {
			continue
		}
		prevShort, seenS := st.values[pair.shortName]
		prevLong, seenL := st.values[pair.longName]
		if !seenS || !seenL {
			continue
		}
		if kind, fired := emaCrossingKind(prevShort, prevLong, currShort, currLong); fired {
			sig := e.newSignal(symbol, timeframe, kind, price, ts, 0, currShort, currLong)
			out = append(out, *sig)
		}
	}

	for name, v := range curr {
		st.values[name] = v
	}

	return out
}

func (e *Evaluator) newSignal(symbol, timeframe string, kind model.SignalKind, price float64, ts time.Time, rsiValue, emaFast, emaSlow float64) *model.Signal {
	critical := kind == model.SignalEMAGoldenCross || (kind.IsRSIKind() && (rsiValue < rsiCriticalLow || rsiValue > rsiCriticalHigh))
	return &model.Signal{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Timeframe: timeframe,
		Kind:      kind,
		Price:     price,
		RSIValue:  rsiValue,
		EMAFast:   emaFast,
		EMASlow:   emaSlow,
		Critical:  critical,
		TS:        ts,
	}
}
