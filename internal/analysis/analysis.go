// Package analysis provides the pure dispersion and rate-of-change
// statistics computed over a single (market, outcome) price series.
package analysis

import (
	"math"

	"github.com/polywatcher/engine/internal/models"
)

const (
	// DefaultMinAbsoluteChange is the minimum probability-point move for a
	// change to count as significant.
	DefaultMinAbsoluteChange = 0.05

	// TrendMinAbsoluteChange is the looser minimum used for sustained trends.
	TrendMinAbsoluteChange = 0.03

	// relativeChangeThreshold is the relative move that makes a change
	// significant when the reference price is large enough to divide by.
	relativeChangeThreshold = 0.15

	// absoluteOnlyBelow is the reference price under which relative change is
	// numerically unstable and significance is decided on absolute change
	// alone.
	absoluteOnlyBelow = 0.10

	// DefaultMomentumWindow is the number of consecutive points spanned by
	// one momentum window.
	DefaultMomentumWindow = 3
)

// Volatility computes the sample standard deviation of successive relative
// price changes over a series ordered oldest first. Returns 0 for fewer
// than two changes.
func Volatility(points []models.PricePoint) float64 {
	if len(points) < 2 {
		return 0
	}

	changes := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Price
		if prev <= 0 {
			changes = append(changes, 0)
			continue
		}
		changes = append(changes, math.Abs(points[i].Price-prev)/prev)
	}
	if len(changes) < 2 {
		return 0
	}

	var mean float64
	for _, c := range changes {
		mean += c
	}
	mean /= float64(len(changes))

	var sumSq float64
	for _, c := range changes {
		d := c - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(changes)-1))
}

// Momentum computes the mean hourly rate of change over all sliding windows
// of windowSize consecutive points. Returns 0 when the series is too short
// to form a window.
func Momentum(points []models.PricePoint, windowSize int) float64 {
	if windowSize <= 0 {
		windowSize = DefaultMomentumWindow
	}
	if len(points) < windowSize {
		return 0
	}

	var sum float64
	var n int
	for i := 0; i+windowSize < len(points); i++ {
		start, end := points[i], points[i+windowSize]

		elapsedHours := end.Timestamp.Sub(start.Timestamp).Hours()
		if elapsedHours <= 0 || start.Price <= 0 {
			continue
		}
		changeFraction := (end.Price - start.Price) / start.Price
		sum += changeFraction / elapsedHours
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ChangeKind records which significance test a change passed.
type ChangeKind string

const (
	ChangeAbsolute ChangeKind = "absolute"
	ChangeRelative ChangeKind = "relative"
)

// SignificantChange decides whether the move from reference to current is
// significant. Near-extreme reference prices (< 0.10) are judged on absolute
// probability-point change alone, since relative change is unstable there;
// otherwise the relative test can also trigger significance. The returned
// change is always the absolute probability-point magnitude.
func SignificantChange(current, reference, minAbsoluteChange float64) (significant bool, change float64, kind ChangeKind) {
	abs := math.Abs(current - reference)

	if reference < absoluteOnlyBelow {
		return abs >= minAbsoluteChange, abs, ChangeAbsolute
	}

	rel := abs / reference
	if abs >= minAbsoluteChange {
		return true, abs, ChangeAbsolute
	}
	if rel >= relativeChangeThreshold {
		return true, abs, ChangeRelative
	}
	return false, abs, ChangeAbsolute
}

// Monotonic reports whether the series is entirely non-decreasing or
// entirely non-increasing.
func Monotonic(points []models.PricePoint) (increasing bool, decreasing bool) {
	increasing, decreasing = true, true
	for i := 1; i < len(points); i++ {
		if points[i].Price < points[i-1].Price {
			increasing = false
		}
		if points[i].Price > points[i-1].Price {
			decreasing = false
		}
	}
	return increasing, decreasing
}
