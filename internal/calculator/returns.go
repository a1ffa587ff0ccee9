package calculator

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round2 rounds v to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// AverageEntry resolves the reference entry price of a position. An explicit
// override wins when it is a finite, strictly positive number; otherwise the
// midpoint of the entry zone is used.
func AverageEntry(override *float64, entryZone string) (float64, bool) {
	if override != nil {
		v := *override
		if v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
			return v, true
		}
	}
	zone, ok := ParseRange(entryZone)
	if !ok {
		return 0, false
	}
	return zone.Mid(), true
}

// ReturnPct computes ((price - base) / base) * 100 rounded to two decimals.
// ok is false when base is zero.
func ReturnPct(price, base float64) (float64, bool) {
	if base == 0 {
		return 0, false
	}
	return Round2((price - base) / base * 100), true
}
