package aggregator

import (
	"github.com/shopspring/decimal"

	"github.com/accumwatch/engine/internal/detector"
	"github.com/accumwatch/engine/internal/storage"
)

// jaccard computes set overlap of two address lists, case-insensitive.
// Two empty sets are identical.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(a))
	for _, addr := range a {
		setA[storage.NormalizeAddress(addr)] = true
	}

	setB := make(map[string]bool, len(b))
	intersection := 0
	for _, addr := range b {
		key := storage.NormalizeAddress(addr)
		if setB[key] {
			continue
		}
		setB[key] = true
		if setA[key] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// volumeWithin reports whether b is within tolerance (relative) of a.
func volumeWithin(a, b decimal.Decimal, tolerance float64) bool {
	if a.IsZero() {
		return b.IsZero()
	}
	diff := a.Sub(b).Abs()
	rel, _ := diff.Div(a.Abs()).Float64()
	return rel <= tolerance
}

// windowsOverlap reports whether [aStart, aEnd) intersects [bStart, bEnd).
func windowsOverlap(aStart, aEnd, bStart, bEnd int64) bool {
	return aStart < bEnd && bStart < aEnd
}

// isDuplicate reports whether a candidate re-describes an already persisted
// signal: same type is implied by the query, so the checks are window
// overlap, wallet-set overlap at or above walletOverlap, and total volume
// within volumeTolerance.
func isDuplicate(c *detector.Candidate, window detector.Window, existing []storage.AccumulationSignal, walletOverlap, volumeTolerance float64) bool {
	for i := range existing {
		prev := &existing[i]
		if !windowsOverlap(window.Start, window.End, prev.WindowStartTS, prev.WindowEndTS) {
			continue
		}
		if jaccard(c.WalletsInvolved, prev.Wallets()) < walletOverlap {
			continue
		}
		if !volumeWithin(prev.TotalVolume, c.TotalVolume, volumeTolerance) {
			continue
		}
		return true
	}
	return false
}
