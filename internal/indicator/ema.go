package indicator

import (
	"time"

	"tradingsignalcore/pkg/decimal"
)

// EMA calculates the Exponential Moving Average. O(1) per update — no
// window storage needed beyond the SMA bootstrap sum. The multiplier
// and running mix are kept as fixed-point decimal.D per the numeric
// semantics required for cross-process agreement.
type EMA struct {
	period     int
	multiplier decimal.D
	current    decimal.D
	count      int
	sum        decimal.D
	lastUpdate time.Time
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: decimal.FromInt(2).Div(decimal.FromInt(int64(period + 1))),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(closePrice float64, ts time.Time) {
	price := decimal.FromFloat64(closePrice)
	e.count++
	e.lastUpdate = ts

	if e.count <= e.period {
		e.sum = e.sum.Add(price)
		if e.count == e.period {
			e.current = e.sum.Div(decimal.FromInt(int64(e.period)))
		}
		return
	}

	e.current = emaMix(price, e.current, e.multiplier)
}

func (e *EMA) Value() float64 { return e.current.Float64() }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// Peek computes what Value() would be with an additional close price,
// without mutating state.
func (e *EMA) Peek(closePrice float64) float64 {
	price := decimal.FromFloat64(closePrice)
	if e.count < e.period {
		return closePrice
	}
	return emaMix(price, e.current, e.multiplier).Float64()
}

// Snapshot serializes the EMA state for checkpoint persistence.
func (e *EMA) Snapshot() Snapshot {
	return Snapshot{
		Type:       "EMA",
		Period:     e.period,
		Multiplier: e.multiplier.Float64(),
		Current:    e.current.Float64(),
		Count:      e.count,
		Sum:        e.sum.Float64(),
	}
}

// RestoreFromSnapshot restores EMA state from a checkpoint.
func (e *EMA) RestoreFromSnapshot(snap Snapshot) error {
	e.period = snap.Period
	e.multiplier = decimal.FromFloat64(snap.Multiplier)
	e.current = decimal.FromFloat64(snap.Current)
	e.count = snap.Count
	e.sum = decimal.FromFloat64(snap.Sum)
	return nil
}

// emaMix computes price*mult + prev*(1-mult).
func emaMix(price, prev, mult decimal.D) decimal.D {
	one := decimal.FromInt(1)
	return price.Mul(mult).Add(prev.Mul(one.Sub(mult)))
}
