package indicator

import (
	"log"

	"tradingsignalcore/internal/model"
)

// ReloadConfigs updates the engine with new configurations, preserving
// state for indicators that already exist and only cold-starting
// genuinely new ones. Returns the number of preserved and newly
// created indicator instances.
func (e *Engine) ReloadConfigs(newConfigs []TFIndicatorConfig) (preserved, created int) {
	oldCfgByTF := make(map[string]TFIndicatorConfig)
	oldStateByTF := make(map[string]map[string]*seriesIndicators)
	for i, cfg := range e.configs {
		oldCfgByTF[cfg.Timeframe] = cfg
		oldStateByTF[cfg.Timeframe] = e.state[i]
	}

	newState := make([]map[string]*seriesIndicators, len(newConfigs))
	newTFIndex := make(map[string]int, len(newConfigs))
	for i, newCfg := range newConfigs {
		newTFIndex[newCfg.Timeframe] = i
		oldCfg, tfExists := oldCfgByTF[newCfg.Timeframe]
		oldTFState := oldStateByTF[newCfg.Timeframe]

		if !tfExists || oldTFState == nil {
			newState[i] = make(map[string]*seriesIndicators, 64)
			created++
			log.Printf("[indicator] timeframe=%s: new, cold-starting", newCfg.Timeframe)
			continue
		}

		if indicatorSetsEqual(oldCfg.Indicators, newCfg.Indicators) {
			newState[i] = oldTFState
			preserved += len(oldTFState)
			continue
		}

		migrated := make(map[string]*seriesIndicators, len(oldTFState))
		for symbol, oldSI := range oldTFState {
			migrated[symbol] = migrateSeriesIndicators(oldSI, newCfg.Indicators)
			preserved++
		}
		newState[i] = migrated
		created++
		log.Printf("[indicator] timeframe=%s: migrated %d symbol states", newCfg.Timeframe, len(migrated))
	}

	e.configs = newConfigs
	e.state = newState
	e.tfIndex = newTFIndex

	log.Printf("[indicator] config reloaded: %d timeframes, %d preserved, %d new",
		len(newConfigs), preserved, created)
	return preserved, created
}

func migrateSeriesIndicators(oldSI *seriesIndicators, newConfigs []IndicatorConfig) *seriesIndicators {
	oldByKey := make(map[string]Indicator, len(oldSI.indicators))
	for i, cfg := range oldSI.configs {
		oldByKey[cfg.Type+"_"+model.Itoa(cfg.Period)] = oldSI.indicators[i]
	}

	newInds := make([]Indicator, len(newConfigs))
	for i, cfg := range newConfigs {
		key := cfg.Type + "_" + model.Itoa(cfg.Period)
		if existing, ok := oldByKey[key]; ok {
			newInds[i] = existing
		} else {
			newInds[i] = newIndicator(cfg)
		}
	}
	return &seriesIndicators{indicators: newInds, configs: newConfigs}
}

func indicatorSetsEqual(a, b []IndicatorConfig) bool {
	if len(a) != len(b) {
		return false
	}
	setA := make(map[string]bool, len(a))
	for _, ic := range a {
		setA[ic.Type+"_"+model.Itoa(ic.Period)] = true
	}
	for _, ic := range b {
		if !setA[ic.Type+"_"+model.Itoa(ic.Period)] {
			return false
		}
	}
	return true
}
