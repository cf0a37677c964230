package sources

import "strconv"

// EstimateImpactPct approximates price impact for venues that do not report
// it. It maps the decimal input amount onto fixed bands, so larger trades
// always rank worse than smaller ones on ties. This is a coarse size-based
// approximation, not a pool-depth calculation.
func EstimateImpactPct(amountDecimal string) float64 {
	amount, err := strconv.ParseFloat(amountDecimal, 64)
	if err != nil || amount <= 0 {
		return 0
	}
	switch {
	case amount < 1:
		return 0.05
	case amount < 10:
		return 0.10
	case amount < 100:
		return 0.30
	case amount < 1_000:
		return 0.75
	case amount < 10_000:
		return 1.50
	default:
		return 3.00
	}
}
