package extract

// numLossIntervals is the number of weighted loss intervals tracked, per
// the TCP-friendly rate control method.
const numLossIntervals = 8

// intervalWeights returns the loss-interval weight vector: flat for the
// first half, linearly decaying after.
func intervalWeights(n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if i < n/2 {
			out[i] = 1
		} else {
			out[i] = 2 * float64(n-i) / float64(n+2)
		}
	}
	return out
}

// lossEvents tracks loss events for one window multiple: a loss event is
// a maximal run of losses separated from its neighbors by at least one
// RTT (the window's average RTT). Closed event lengths, in packets, live
// in a bounded deque with the most recent first.
type lossEvents struct {
	weights     []float64
	weightTotal float64

	// Closed event lengths, most recent first.
	intervals []float64

	// Start of the current (unclosed) event in the virtual stream that
	// counts both received and lost packets. Zero means no event yet.
	startIdx  float64
	startTime float64
}

func newLossEvents() *lossEvents {
	w := intervalWeights(numLossIntervals)
	total := 1.0
	for _, v := range w[1:] {
		total += v
	}
	return &lossEvents{weights: w, weightTotal: total}
}

// push records a closed event length, evicting the oldest beyond the
// interval bound.
func (e *lossEvents) push(interval float64) {
	e.intervals = append([]float64{interval}, e.intervals...)
	if len(e.intervals) > numLossIntervals {
		e.intervals = e.intervals[:numLossIntervals]
	}
}

// weightedRate computes the loss event rate from the closed intervals and
// the current event size: the two candidate interval totals anchor the
// current event against the weight vector shifted by one and unshifted,
// the larger total wins, and the rate is total weight over that total.
func (e *lossEvents) weightedRate(currEventSize float64) float64 {
	total0 := currEventSize
	for i := 0; i < len(e.intervals)-1 && i+1 < len(e.weights); i++ {
		total0 += e.intervals[i] * e.weights[i+1]
	}
	total1 := 0.0
	for i := 0; i < len(e.intervals) && i < len(e.weights); i++ {
		total1 += e.intervals[i] * e.weights[i]
	}
	if total1 > total0 {
		total0 = total1
	}
	return e.weightTotal / total0
}

// update folds the packet at index pktIdx into the event state and
// returns the loss event rate. lossCur is the estimated number of losses
// since the previous packet (possibly Unknown), lossTotal the running
// total, and rttUs the window's average RTT, which must be known.
// The notional times of the new losses are spread uniformly across the
// gap since the previous arrival; a loss at least one RTT past the
// current event's start closes it and opens a new one.
func (e *lossEvents) update(pktIdx int, lossCur, lossTotal, arrivalUs, prevArrivalUs, rttUs float64) float64 {
	j := float64(pktIdx)
	switch {
	case lossCur > 0:
		// Index of the first newly-lost packet in the virtual stream.
		newStartIdx := j + lossTotal - lossCur

		if e.startIdx == 0 {
			// The first-ever loss event: the general formula needs a
			// previous event, so the event is seeded with size one and
			// the rate is one loss in pktIdx packets.
			e.startIdx = 1
			e.startTime = 0
			return 1 / j
		}

		// The average time between when the lost packets should have
		// arrived.
		lossInterval := (arrivalUs - prevArrivalUs) / (lossCur + 1)
		for k := 0; k < int(lossCur); k++ {
			lossTime := prevArrivalUs + float64(k+1)*lossInterval
			if lossTime-e.startTime >= rttUs {
				e.push(newStartIdx - e.startIdx)
				e.startIdx = newStartIdx
				e.startTime = lossTime
			}
			newStartIdx++
		}
		return e.weightedRate(j + lossTotal - e.startIdx)

	case lossTotal > 0:
		// No new losses; the current event keeps growing.
		return e.weightedRate(j + lossTotal - e.startIdx)

	default:
		// There has never been a loss.
		return 0
	}
}
