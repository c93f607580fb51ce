// Package stats derives sample statistics from the reductions the
// grouped store query returns, without re-scanning raw rows.
package stats

import "math"

// StdDev computes the sample standard deviation from the (count, avg,
// sum-of-squares) reduction tuple, rounded to 4 decimal places. It
// returns nil when count < 2 or either reduction is missing, since
// sample variance is undefined there.
func StdDev(count int64, avg, sumSquares *float64) *float64 {
	if count < 2 || avg == nil || sumSquares == nil {
		return nil
	}
	variance := (*sumSquares - float64(count)*(*avg)*(*avg)) / float64(count-1)
	if variance < 0 {
		//floating-point noise on constant inputs
		variance = 0
	}
	std := math.Round(math.Sqrt(variance)*1e4) / 1e4
	return &std
}
