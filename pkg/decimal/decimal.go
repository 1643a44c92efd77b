// Package decimal provides a fixed-point decimal type for indicator math.
//
// Prices and indicator accumulators are stored as a scaled int64 mantissa
// (8 decimal digits of scale) instead of float64, so that two independent
// processes computing the same RSI/EMA series from the same inputs agree
// to the digit instead of drifting on the last few significant bits.
package decimal

import (
	"math/big"
	"strconv"
)

// Scale is the number of fractional decimal digits kept in the mantissa.
const Scale = 8

const scaleFactor = 100_000_000 // 10^Scale

var bigScale = big.NewInt(scaleFactor)

// D is a fixed-point decimal value: mantissa / 10^Scale.
type D struct {
	mantissa int64
}

// Zero is the additive identity.
var Zero = D{}

// FromFloat64 converts a float64 into a D, rounding to Scale digits.
func FromFloat64(f float64) D {
	if f < 0 {
		return D{mantissa: int64(f*scaleFactor - 0.5)}
	}
	return D{mantissa: int64(f*scaleFactor + 0.5)}
}

// FromInt converts an integer into a D.
func FromInt(n int64) D {
	return D{mantissa: n * scaleFactor}
}

// Float64 converts D back to an IEEE-754 double. Only API boundaries
// (the values exposed in model.IndicatorResult) should call this.
func (d D) Float64() float64 {
	return float64(d.mantissa) / scaleFactor
}

// Add returns d+other.
func (d D) Add(other D) D {
	return D{mantissa: d.mantissa + other.mantissa}
}

// Sub returns d-other.
func (d D) Sub(other D) D {
	return D{mantissa: d.mantissa - other.mantissa}
}

// Mul returns d*other, truncated toward zero to Scale digits.
func (d D) Mul(other D) D {
	prod := new(big.Int).Mul(big.NewInt(d.mantissa), big.NewInt(other.mantissa))
	prod.Quo(prod, bigScale)
	return D{mantissa: prod.Int64()}
}

// Div returns d/other, truncated toward zero to Scale digits. Returns Zero
// if other is Zero.
func (d D) Div(other D) D {
	if other.mantissa == 0 {
		return Zero
	}
	num := new(big.Int).Mul(big.NewInt(d.mantissa), bigScale)
	num.Quo(num, big.NewInt(other.mantissa))
	return D{mantissa: num.Int64()}
}

// IsZero reports whether d is exactly zero.
func (d D) IsZero() bool { return d.mantissa == 0 }

// IsNegative reports whether d is strictly less than zero.
func (d D) IsNegative() bool { return d.mantissa < 0 }

// Cmp returns -1, 0, or 1 depending on whether d is less than, equal to,
// or greater than other.
func (d D) Cmp(other D) int {
	switch {
	case d.mantissa < other.mantissa:
		return -1
	case d.mantissa > other.mantissa:
		return 1
	default:
		return 0
	}
}

// Max returns the larger of d and other.
func Max(d, other D) D {
	if d.Cmp(other) >= 0 {
		return d
	}
	return other
}

// Min returns the smaller of d and other.
func Min(d, other D) D {
	if d.Cmp(other) <= 0 {
		return d
	}
	return other
}

func (d D) String() string {
	return strconv.FormatFloat(d.Float64(), 'f', -1, 64)
}
