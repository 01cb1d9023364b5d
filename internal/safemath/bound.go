package safemath

// Bound selects which side of a target FindBound resolves to.
type Bound int

const (
	// Before resolves to the last known index at or before the target.
	Before Bound = iota
	// After resolves to the first index at or after the target.
	After
)

// FindBound returns the first index in [minIdx, maxIdx] whose value is at
// or after target (Bound After), or the last known-valid index at or
// before it (Bound Before). vals must be monotonically non-decreasing;
// unknown entries are skipped. Callers advancing a window must only ever
// increase target between calls, which keeps the total scan cost across a
// pass linear.
func FindBound(vals []float64, target float64, minIdx, maxIdx int, which Bound) int {
	if minIdx == maxIdx {
		return minIdx
	}

	limit := maxIdx
	if which == After {
		limit = maxIdx - 1
	}
	bound := minIdx
	// Walk forward until the target is in the past.
	for bound < limit {
		v := vals[bound]
		if v == Unknown || v < target {
			bound++
		} else {
			break
		}
	}

	if which == Before {
		// If we walked forward, walk back to the last known value.
		for bound > minIdx {
			bound--
			if vals[bound] != Unknown {
				break
			}
		}
	}
	return bound
}
