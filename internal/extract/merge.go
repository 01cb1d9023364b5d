package extract

import (
	"github.com/cmu-snap/unfair/internal/features"
	"github.com/cmu-snap/unfair/internal/safemath"
)

// mergedRow locates one packet on the experiment-wide timeline.
type mergedRow struct {
	flow int
	row  int
}

// mergeArrivals merges the per-flow packet timelines into a single
// arrival-ordered sequence. Ties go to the lower flow index, so the
// ordering is deterministic. Rows of skipped flows carry unknown
// arrival times and sort to the front; the windowed pass ignores them
// through their unknown minimum RTT.
func mergeArrivals(results []*FlowResult, arrivalCol int) []mergedRow {
	total := 0
	for _, r := range results {
		total += r.NumRows()
	}
	merged := make([]mergedRow, 0, total)

	next := make([]int, len(results))
	for len(merged) < total {
		best := -1
		var bestArrival float64
		for i, r := range results {
			if next[i] >= r.NumRows() {
				continue
			}
			arrival := r.At(next[i], arrivalCol)
			if best == -1 || arrival < bestArrival {
				best = i
				bestArrival = arrival
			}
		}
		merged = append(merged, mergedRow{flow: best, row: next[best]})
		next[best]++
	}
	return merged
}

// computeFairness fills in the windowed fairness features that need the
// full experiment timeline: the total throughput across all flows, each
// flow's share of it, the per-flow fair share of the total, and the
// ratio of the achieved share to the bandwidth fair share. Total
// throughput samples above the configured bandwidth are dropped and
// tallied per window multiple.
func computeFairness(results []*FlowResult, layout *features.Layout, bwBps float64, tally map[int]int) {
	if len(results) == 0 || len(layout.Windows) == 0 {
		return
	}
	rc := struct{ arrival, wirelen, minRTT, activeFlows, bwFairShareFrac int }{
		arrival:         layout.Regular(features.ArrivalTime),
		wirelen:         layout.Regular(features.Wirelen),
		minRTT:          layout.Regular(features.MinRTT),
		activeFlows:     layout.Regular(features.ActiveFlows),
		bwFairShareFrac: layout.Regular(features.BwFairShareFrac),
	}

	merged := mergeArrivals(results, rc.arrival)
	arrivals := make([]float64, len(merged))
	wirelens := make([]float64, len(merged))
	for i, m := range merged {
		arrivals[i] = results[m.flow].At(m.row, rc.arrival)
		wirelens[i] = results[m.flow].At(m.row, rc.wirelen)
	}

	for _, win := range layout.Windows {
		cols := make([]winCols, len(results))
		for i := range results {
			cols[i] = newWinCols(layout, win)
		}

		start := 0
		for j, m := range merged {
			r := results[m.flow]
			minRttUs := r.At(m.row, rc.minRTT)
			if minRttUs == safemath.Unknown {
				continue
			}
			start = safemath.FindBound(
				arrivals, arrivals[j]-float64(win)*minRttUs, start, j, safemath.After)
			if start >= j {
				continue
			}

			totalTput := safemath.Div(
				safemath.Mul(safemath.Sum(wirelens, start+1, j), 8*1e6),
				safemath.Sub(arrivals[j], arrivals[start]))
			if totalTput > bwBps {
				tally[win]++
				continue
			}

			wc := cols[m.flow]
			r.Set(m.row, wc.totalTput, totalTput)
			r.Set(m.row, wc.tputFairShareBps, safemath.Div(
				totalTput, r.At(m.row, rc.activeFlows)))
			share := safemath.Div(r.At(m.row, wc.tput), totalTput)
			r.Set(m.row, wc.tputShareFrac, share)
			r.Set(m.row, wc.tputToFairShare, safemath.Div(
				share, r.At(m.row, rc.bwFairShareFrac)))
		}
	}
}
