package risk

import "math"

const (
	// maxStepReturn caps a single per-step return so one corrupt print
	// (for example a near-zero price) cannot blow up the variance.
	maxStepReturn = 1.0
	// maxAnnualizedVol caps the estimator output at 200% annualized.
	maxAnnualizedVol = 2.0
)

// AnnualizedVolatility computes the annualized volatility of a chronological
// price window: per-step returns, population standard deviation, scaled by
// sqrt(samplesPerYear). With fewer than two usable samples the estimate is
// undefined and the caller must substitute the conservative default.
func AnnualizedVolatility(prices []float64, samplesPerYear float64) (float64, bool) {
	if len(prices) < 2 || samplesPerYear <= 0 {
		return 0, false
	}
	var sum, sumSq, count float64
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev <= 0 {
			continue
		}
		r := (prices[i] - prev) / prev
		if r > maxStepReturn {
			r = maxStepReturn
		} else if r < -maxStepReturn {
			r = -maxStepReturn
		}
		sum += r
		sumSq += r * r
		count++
	}
	if count == 0 {
		return 0, false
	}
	mean := sum / count
	variance := sumSq/count - mean*mean
	if variance < 0 {
		variance = 0
	}
	vol := math.Sqrt(variance) * math.Sqrt(samplesPerYear)
	if vol > maxAnnualizedVol {
		vol = maxAnnualizedVol
	}
	return vol, true
}

// VolatilityBps quantizes the estimate to integer basis points for the policy
// math. Insufficient history yields the default: zero volatility on no
// evidence would imply maximum borrowing capacity, so the fallback must be
// conservative, never zero.
func VolatilityBps(prices []float64, samplesPerYear float64, defaultBps int64) int64 {
	vol, ok := AnnualizedVolatility(prices, samplesPerYear)
	if !ok {
		return defaultBps
	}
	return int64(math.Round(vol * 10000))
}
