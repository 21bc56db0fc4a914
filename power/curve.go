package power

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Observations is the number of paired comparisons a study yields:
// every task contributes options-1 comparisons against the chosen option
func Observations(respondents, screens, options int) int {
	return respondents * screens * (options - 1)
}

// Curve approximates the power to detect an effect of the given size on a
// model with params parameters. The non-centrality grows with the square
// root of observations per parameter, so the curve is monotonic in every
// input that adds observations.
func Curve(respondents, screens, options, params int, effect, alpha float64) float64 {
	obs := Observations(respondents, screens, options)
	if params <= 0 || obs-params <= 0 {
		return 0
	}
	ncp := effect * math.Sqrt(float64(obs)/float64(params))
	p := distuv.UnitNormal.CDF(ncp - criticalZ(alpha))
	return math.Min(1, math.Max(0, p))
}

// criticalZ is the two-sided critical value z_(1-alpha/2)
func criticalZ(alpha float64) float64 {
	return distuv.UnitNormal.Quantile(1 - alpha/2)
}

// respondentsForPower finds the smallest respondent count whose power
// reaches target. The curve approaches 1 as respondents grow, so any
// target below 1 is reachable; maxSearch bounds pathological inputs.
func respondentsForPower(target float64, screens, options, params int, effect, alpha float64) int {
	const maxSearch = 1 << 30

	hi := 1
	for Curve(hi, screens, options, params, effect, alpha) < target {
		if hi >= maxSearch {
			return maxSearch
		}
		hi *= 2
	}
	lo := 1
	for lo < hi {
		mid := lo + (hi-lo)/2
		if Curve(mid, screens, options, params, effect, alpha) >= target {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// johnsonOrme is ceil(500c / (t*a)) in integer arithmetic
func johnsonOrme(c, screens, options int) int {
	den := screens * options
	return (500*c + den - 1) / den
}

// withBuffer applies the +15% quality buffer, rounding up
func withBuffer(n int) int {
	return (n*(100+bufferPercent) + 99) / 100
}
