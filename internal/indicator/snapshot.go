package indicator

import (
	"fmt"
	"log"

	"tradingsignalcore/internal/model"
)

// SnapshotEngine captures the full state of an Engine as a
// model.EngineSnapshot, suitable for JSON persistence via a
// model.SnapshotStore.
func SnapshotEngine(e *Engine) (*model.EngineSnapshot, error) {
	snap := &model.EngineSnapshot{Version: 1}

	for tfIdx, cfg := range e.configs {
		for symbol, si := range e.state[tfIdx] {
			ss := model.SeriesSnapshot{
				Symbol:     symbol,
				Timeframe:  cfg.Timeframe,
				Indicators: make([]model.IndicatorSnapshot, 0, len(si.indicators)),
			}
			for _, ind := range si.indicators {
				sn, ok := ind.(Snapshottable)
				if !ok {
					return nil, fmt.Errorf("indicator %s does not implement Snapshottable", ind.Name())
				}
				s := sn.Snapshot()
				ss.Indicators = append(ss.Indicators, model.IndicatorSnapshot{
					Type:       s.Type,
					Period:     s.Period,
					Count:      s.Count,
					Current:    s.Current,
					PrevClose:  s.PrevClose,
					AvgGain:    s.AvgGain,
					AvgLoss:    s.AvgLoss,
					Sum:        s.Sum,
					Multiplier: s.Multiplier,
				})
			}
			snap.Series = append(snap.Series, ss)
		}
	}
	return snap, nil
}

// RestoreEngine rebuilds an Engine from a snapshot. Matching is by
// Type+Period, not position, so it tolerates config changes — existing
// indicators get their state restored, new ones start cold, removed
// ones are silently skipped.
func RestoreEngine(configs []TFIndicatorConfig, snap *model.EngineSnapshot) (*Engine, error) {
	e := NewEngine(configs)
	if snap == nil {
		return e, nil
	}

	for _, ss := range snap.Series {
		tfIdx, ok := e.tfIndex[ss.Timeframe]
		if !ok {
			continue // timeframe no longer configured
		}

		si := e.createSeriesIndicators(tfIdx)

		snapLookup := make(map[string]model.IndicatorSnapshot, len(ss.Indicators))
		for _, is := range ss.Indicators {
			snapLookup[is.Type+":"+model.Itoa(is.Period)] = is
		}

		restored, cold := 0, 0
		for i, ind := range si.indicators {
			cfg := si.configs[i]
			key := cfg.Type + ":" + model.Itoa(cfg.Period)
			is, found := snapLookup[key]
			if !found {
				cold++
				continue
			}
			sn, ok := ind.(Snapshottable)
			if !ok {
				cold++
				continue
			}
			err := sn.RestoreFromSnapshot(Snapshot{
				Type:       is.Type,
				Period:     is.Period,
				Count:      is.Count,
				Current:    is.Current,
				PrevClose:  is.PrevClose,
				AvgGain:    is.AvgGain,
				AvgLoss:    is.AvgLoss,
				Sum:        is.Sum,
				Multiplier: is.Multiplier,
			})
			if err != nil {
				cold++
				continue
			}
			restored++
		}
		if cold > 0 {
			log.Printf("[indicator] symbol=%s timeframe=%s: restored %d, cold-started %d",
				ss.Symbol, ss.Timeframe, restored, cold)
		}
		e.state[tfIdx][ss.Symbol] = si
	}
	return e, nil
}
