package extract

import (
	"github.com/cmu-snap/unfair/internal/features"
	"github.com/cmu-snap/unfair/internal/safemath"
)

// winCols caches the column indices for one window multiple.
type winCols struct {
	interarr          int
	invInterarr       int
	tput              int
	tputShareFrac     int
	totalTput         int
	tputFairShareBps  int
	tputToFairShare   int
	rtt               int
	rttRatio          int
	lossEventRate     int
	sqrtLossEventRate int
	lossRate          int
	mathisTput        int
}

func newWinCols(layout *features.Layout, win int) winCols {
	return winCols{
		interarr:          layout.Windowed(features.InterarrTime, win),
		invInterarr:       layout.Windowed(features.InvInterarrTime, win),
		tput:              layout.Windowed(features.Tput, win),
		tputShareFrac:     layout.Windowed(features.TputShareFrac, win),
		totalTput:         layout.Windowed(features.TotalTput, win),
		tputFairShareBps:  layout.Windowed(features.TputFairShareBps, win),
		tputToFairShare:   layout.Windowed(features.TputToFairShareRatio, win),
		rtt:               layout.Windowed(features.RTT, win),
		rttRatio:          layout.Windowed(features.RTTRatio, win),
		lossEventRate:     layout.Windowed(features.LossEventRate, win),
		sqrtLossEventRate: layout.Windowed(features.SqrtLossEventRate, win),
		lossRate:          layout.Windowed(features.LossRate, win),
		mathisTput:        layout.Windowed(features.MathisTput, win),
	}
}

// windowState is the mutable per-flow state for one window multiple: the
// index of the first packet inside the trailing window and the loss-event
// bookkeeping for that window's RTT scale. It lives for exactly one
// flow's pass.
type windowState struct {
	win    int
	cols   winCols
	start  int
	events *lossEvents
}

func newWindowStates(layout *features.Layout) []*windowState {
	states := make([]*windowState, 0, len(layout.Windows))
	for _, win := range layout.Windows {
		states = append(states, &windowState{
			win:    win,
			cols:   newWinCols(layout, win),
			events: newLossEvents(),
		})
	}
	return states
}

// advance slides the window's trailing edge forward so it spans the
// trailing win*minRTT microseconds ending at packet j. The minimum RTT
// only ever decreases, so the edge never has to move backwards.
func (w *windowState) advance(arrivals []float64, arrivalUs, minRttUs float64, j int) {
	w.start = safemath.FindBound(
		arrivals, arrivalUs-float64(w.win)*minRttUs, w.start, j, safemath.After)
}

// ready reports whether windowed metrics may be computed at packet j: a
// full window duration has elapsed since the flow's first packet, and
// the window holds at least two packets (the leading packet marks the
// window's time zero and contributes no averages itself).
func (w *windowState) ready(arrivalUs, firstDataUs, minRttUs float64, j int) bool {
	if arrivalUs-firstDataUs < float64(w.win)*minRttUs {
		return false
	}
	return w.start != j
}
