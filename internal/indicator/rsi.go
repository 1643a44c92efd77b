package indicator

import (
	"time"

	"tradingsignalcore/pkg/decimal"
)

// RSI calculates the Relative Strength Index using Wilder's smoothing
// method. Update is O(1) per candle — no history scans. avgGain/avgLoss
// and the running RS ratio are kept as fixed-point decimal.D so two
// instances fed the same close-price sequence never disagree.
type RSI struct {
	period     int
	count      int
	haveClose  bool
	prevClose  decimal.D
	avgGain    decimal.D
	avgLoss    decimal.D
	current    float64
	lastUpdate time.Time
}

// NewRSI creates a new RSI indicator with the given period (14 or 21).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string { return "RSI" }

func (r *RSI) Update(closePrice float64, ts time.Time) {
	price := decimal.FromFloat64(closePrice)
	r.count++
	r.lastUpdate = ts

	if !r.haveClose {
		r.prevClose = price
		r.haveClose = true
		return
	}

	gain, loss := gainLoss(r.prevClose, price)
	r.prevClose = price

	if r.count <= r.period+1 {
		r.avgGain = r.avgGain.Add(gain)
		r.avgLoss = r.avgLoss.Add(loss)
		if r.count == r.period+1 {
			r.avgGain = r.avgGain.Div(decimal.FromInt(int64(r.period)))
			r.avgLoss = r.avgLoss.Div(decimal.FromInt(int64(r.period)))
			r.current = rsiFromAverages(r.avgGain, r.avgLoss)
		}
		return
	}

	r.avgGain = wilderSmooth(r.avgGain, gain, r.period)
	r.avgLoss = wilderSmooth(r.avgLoss, loss, r.period)
	r.current = rsiFromAverages(r.avgGain, r.avgLoss)
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.count > r.period }

// Peek computes what RSI would be with an additional close price,
// without mutating state.
func (r *RSI) Peek(closePrice float64) float64 {
	if r.count <= r.period {
		return r.current
	}
	price := decimal.FromFloat64(closePrice)
	gain, loss := gainLoss(r.prevClose, price)
	ag := wilderSmooth(r.avgGain, gain, r.period)
	al := wilderSmooth(r.avgLoss, loss, r.period)
	return rsiFromAverages(ag, al)
}

// Snapshot serializes the RSI state for checkpoint persistence.
func (r *RSI) Snapshot() Snapshot {
	return Snapshot{
		Type:      "RSI",
		Period:    r.period,
		Count:     r.count,
		PrevClose: r.prevClose.Float64(),
		AvgGain:   r.avgGain.Float64(),
		AvgLoss:   r.avgLoss.Float64(),
		Current:   r.current,
	}
}

// RestoreFromSnapshot restores RSI state from a checkpoint.
func (r *RSI) RestoreFromSnapshot(snap Snapshot) error {
	r.period = snap.Period
	r.count = snap.Count
	r.haveClose = snap.Count > 0
	r.prevClose = decimal.FromFloat64(snap.PrevClose)
	r.avgGain = decimal.FromFloat64(snap.AvgGain)
	r.avgLoss = decimal.FromFloat64(snap.AvgLoss)
	r.current = snap.Current
	return nil
}

func gainLoss(prev, curr decimal.D) (gain, loss decimal.D) {
	delta := curr.Sub(prev)
	if delta.IsNegative() {
		return decimal.Zero, decimal.Zero.Sub(delta)
	}
	return delta, decimal.Zero
}

func wilderSmooth(avg, x decimal.D, period int) decimal.D {
	p := decimal.FromInt(int64(period))
	pMinus1 := decimal.FromInt(int64(period - 1))
	return avg.Mul(pMinus1).Add(x).Div(p)
}

func rsiFromAverages(avgGain, avgLoss decimal.D) float64 {
	if avgLoss.IsZero() {
		return 100.0
	}
	rs := avgGain.Div(avgLoss)
	hundred := decimal.FromInt(100)
	one := decimal.FromInt(1)
	return hundred.Sub(hundred.Div(one.Add(rs))).Float64()
}
