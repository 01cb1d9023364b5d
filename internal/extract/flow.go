package extract

import (
	"fmt"
	"log"
	"math"

	"github.com/cmu-snap/unfair/internal/features"
	"github.com/cmu-snap/unfair/internal/safemath"
	"github.com/cmu-snap/unfair/internal/trace"
)

// mathisC is the constant of the Mathis throughput model,
// tput = (MSS / RTT) * (C / sqrt(p)).
var mathisC = math.Sqrt(3.0 / 2.0)

// timeBounds is a flow's observed activity interval: the arrival times of
// its first and last received data packets.
type timeBounds struct {
	first float64
	last  float64
}

func (b timeBounds) contains(t float64) bool {
	return b.first != safemath.Unknown && b.first <= t && t <= b.last
}

// regCols caches the regular column indices for the hot path.
type regCols struct {
	seq, arrival, rtt, minRTT, rttRatio          int
	interarr, invInterarr                        int
	pktsLost, pktsLostTotal, lossRate            int
	dropRate, retransRate                        int
	payload, wirelen, totalSoFar, payloadSoFar   int
	activeFlows, bwFairShareFrac, bwFairShareBps int
}

func newRegCols(l *features.Layout) regCols {
	return regCols{
		seq:             l.Regular(features.Seq),
		arrival:         l.Regular(features.ArrivalTime),
		rtt:             l.Regular(features.RTT),
		minRTT:          l.Regular(features.MinRTT),
		rttRatio:        l.Regular(features.RTTRatio),
		interarr:        l.Regular(features.InterarrTime),
		invInterarr:     l.Regular(features.InvInterarrTime),
		pktsLost:        l.Regular(features.PacketsLost),
		pktsLostTotal:   l.Regular(features.PacketsLostTotal),
		lossRate:        l.Regular(features.LossRate),
		dropRate:        l.Regular(features.DropRate),
		retransRate:     l.Regular(features.RetransRate),
		payload:         l.Regular(features.Payload),
		wirelen:         l.Regular(features.Wirelen),
		totalSoFar:      l.Regular(features.TotalSoFar),
		payloadSoFar:    l.Regular(features.PayloadSoFar),
		activeFlows:     l.Regular(features.ActiveFlows),
		bwFairShareFrac: l.Regular(features.BwFairShareFrac),
		bwFairShareBps:  l.Regular(features.BwFairShareBps),
	}
}

// ewmaCol is one resolved (metric, alpha) smoothing target.
type ewmaCol struct {
	col    int
	metric features.Metric
	alpha  float64
}

func newEwmaCols(l *features.Layout) []ewmaCol {
	out := make([]ewmaCol, 0, len(features.EWMAMetrics)*len(l.Alphas))
	for _, m := range features.EWMAMetrics {
		for _, alpha := range l.Alphas {
			out = append(out, ewmaCol{col: l.EWMA(m, alpha), metric: m, alpha: alpha})
		}
	}
	return out
}

// passContext is the read-only context shared by all flow passes of one
// experiment.
type passContext struct {
	layout *features.Layout
	bwBps  float64
	bounds []timeBounds
	log    *log.Logger
}

func (c passContext) logf(format string, args ...any) {
	if c.log != nil {
		c.log.Printf(format, args...)
	}
}

// processFlow replays one flow's received data packets through the
// estimators and aggregators, producing one feature row per packet. The
// returned tally counts windowed throughput samples that exceeded the
// configured bandwidth, per window multiple. A flow with no sent data,
// no received data, or no received ACKs is skipped: its rows stay
// entirely unknown.
func processFlow(f *trace.Flow, ctx passContext) (*FlowResult, map[int]int, error) {
	recv := f.RecvData
	out := NewFlowResult(ctx.layout, recv.Len())
	tally := make(map[int]int, len(ctx.layout.Windows))

	skip := false
	if f.SentData.Len() == 0 {
		ctx.logf("warning: no data packets sent for flow %s", f.Key)
		skip = true
	}
	if recv.Len() == 0 {
		ctx.logf("warning: no data packets received for flow %s", f.Key)
		skip = true
	}
	if f.RecvACKs.Len() == 0 {
		ctx.logf("warning: no ACK packets sent for flow %s", f.Key)
		skip = true
	}
	if skip {
		return out, tally, nil
	}

	rc := newRegCols(ctx.layout)
	ewmaCols := newEwmaCols(ctx.layout)
	winStates := newWindowStates(ctx.layout)
	ready := make([]bool, len(winStates))

	estimator := newRTTEstimator(f)
	tracker := newSeqTracker(f.CCA.PacketSeq())

	firstDataUs := recv.Arrival[0]
	arrivalCol := out.Col(rc.arrival)

	for j := 0; j < recv.Len(); j++ {
		first := j == 0
		seq := recv.Seq[j]
		arrivalUs := recv.Arrival[j]
		payload := recv.Payload[j]
		wirelen := recv.Wirelen[j]

		retrans, lossCur := tracker.observe(seq, payload)

		out.Set(j, rc.seq, seq)
		out.Set(j, rc.arrival, arrivalUs)
		out.Set(j, rc.payload, payload)
		out.Set(j, rc.wirelen, wirelen)
		if first {
			out.Set(j, rc.totalSoFar, wirelen)
			out.Set(j, rc.payloadSoFar, payload)
		} else {
			out.Set(j, rc.totalSoFar, out.At(j-1, rc.totalSoFar)+wirelen)
			out.Set(j, rc.payloadSoFar, out.At(j-1, rc.payloadSoFar)+payload)
		}

		// Count the flows active when this packet was captured.
		activeFlows := 0
		for _, b := range ctx.bounds {
			if b.contains(arrivalUs) {
				activeFlows++
			}
		}
		if activeFlows == 0 {
			return nil, nil, fmt.Errorf(
				"extract: no active flows detected for packet %d of flow %s", j, f.Key)
		}
		out.Set(j, rc.activeFlows, float64(activeFlows))
		out.Set(j, rc.bwFairShareFrac, safemath.Div(1, float64(activeFlows)))
		out.Set(j, rc.bwFairShareBps, safemath.Div(ctx.bwBps, float64(activeFlows)))

		// RTT. Retransmissions are excluded from sampling.
		rttUs := safemath.Unknown
		if !first && seq != safemath.Unknown && !retrans {
			var err error
			rttUs, err = estimator.sample(seq, arrivalUs, recv.TsEcr[j], out.At(j-1, rc.rtt))
			if err != nil {
				return nil, nil, err
			}
		}

		prevArrivalUs := safemath.Unknown
		if !first {
			prevArrivalUs = out.At(j-1, rc.arrival)
		}
		interarrUs := safemath.Sub(arrivalUs, prevArrivalUs)
		out.Set(j, rc.interarr, interarrUs)
		invInterarr := safemath.Mul(8*1e6*wirelen, safemath.Div(1, interarrUs))
		out.Set(j, rc.invInterarr, invInterarr)

		out.Set(j, rc.rtt, rttUs)
		prevMinRtt := safemath.Unknown
		if !first {
			prevMinRtt = out.At(j-1, rc.minRTT)
		}
		minRttUs := safemath.Min(prevMinRtt, rttUs)
		out.Set(j, rc.minRTT, minRttUs)
		rttRatio := safemath.Div(rttUs, minRttUs)
		out.Set(j, rc.rttRatio, rttRatio)

		lossRate := safemath.Div(lossCur, safemath.Add(lossCur, 1))
		out.Set(j, rc.pktsLost, lossCur)
		out.Set(j, rc.pktsLostTotal, tracker.total)
		out.Set(j, rc.lossRate, lossRate)

		// EWMA metrics.
		for _, ec := range ewmaCols {
			var sample float64
			switch ec.metric {
			case features.InterarrTime:
				sample = interarrUs
			case features.InvInterarrTime:
				// Use the true inverse interarrival time, not the
				// interarrival EWMA, so the value is not smoothed twice.
				sample = invInterarr
			case features.RTT:
				sample = rttUs
			case features.RTTRatio:
				sample = rttRatio
			case features.LossRate:
				sample = lossRate
			case features.MathisTput:
				sample = mathisTput(payload, rttUs, lossRate)
			}
			prev := safemath.Unknown
			if !first {
				prev = out.At(j-1, ec.col)
			}
			out.Set(j, ec.col, safemath.UpdateEWMA(prev, sample, ec.alpha))
		}

		// Windowed metrics need a minimum RTT estimate.
		if minRttUs == safemath.Unknown {
			continue
		}
		for i, ws := range winStates {
			ws.advance(arrivalCol, arrivalUs, minRttUs, j)
			ready[i] = ws.ready(arrivalUs, firstDataUs, minRttUs, j)
		}
		for _, metric := range features.WindowedMetrics {
			for i, ws := range winStates {
				if !ready[i] {
					continue
				}
				computeWindowed(out, ws, metric, j, windowedInputs{
					rc:            rc,
					arrivalUs:     arrivalUs,
					prevArrivalUs: prevArrivalUs,
					payload:       payload,
					wirelen:       wirelen,
					lossCur:       lossCur,
					lossTotal:     tracker.total,
					bwBps:         ctx.bwBps,
				}, tally)
			}
		}
	}

	finishFlow(f, out, rc, ctx)

	// Every row must have been populated.
	for j := 0; j < out.NumRows(); j++ {
		if out.At(j, rc.arrival) == safemath.Unknown {
			return nil, nil, fmt.Errorf(
				"extract: row %d of flow %s was never populated", j, f.Key)
		}
	}
	return out, tally, nil
}

// windowedInputs carries the per-packet values the windowed metrics need.
type windowedInputs struct {
	rc            regCols
	arrivalUs     float64
	prevArrivalUs float64
	payload       float64
	wirelen       float64
	lossCur       float64
	lossTotal     float64
	bwBps         float64
}

// computeWindowed evaluates one windowed metric for one window multiple
// at packet j. The fairness metrics that need the merged timeline are
// filled in later by the cross-flow merge.
func computeWindowed(out *FlowResult, ws *windowState, metric features.Metric, j int, in windowedInputs, tally map[int]int) {
	switch metric {
	case features.InterarrTime:
		out.Set(j, ws.cols.interarr, safemath.Div(
			safemath.Sub(in.arrivalUs, out.At(ws.start, in.rc.arrival)),
			float64(j-ws.start)))

	case features.InvInterarrTime:
		out.Set(j, ws.cols.invInterarr, safemath.Mul(
			8*1e6*in.wirelen,
			safemath.Div(1, out.At(j, ws.cols.interarr))))

	case features.Tput:
		// The window's first packet marks time zero; average the bytes
		// of everything after it over the window duration.
		totalBytes := safemath.Sum(out.Col(in.rc.wirelen), ws.start+1, j)
		tput := safemath.Div(
			safemath.Mul(totalBytes, 8),
			safemath.Div(safemath.Sub(in.arrivalUs, out.At(ws.start, in.rc.arrival)), 1e6))
		if tput != safemath.Unknown && tput > in.bwBps {
			// Implausibly high: drop the sample and tally the error.
			tally[ws.win]++
			return
		}
		out.Set(j, ws.cols.tput, tput)

	case features.TputShareFrac, features.TotalTput,
		features.TputFairShareBps, features.TputToFairShareRatio:
		// Computed by the cross-flow merge.

	case features.RTT:
		out.Set(j, ws.cols.rtt, safemath.Mean(out.Col(in.rc.rtt), ws.start, j))

	case features.RTTRatio:
		out.Set(j, ws.cols.rttRatio, safemath.Mean(out.Col(in.rc.rttRatio), ws.start, j))

	case features.LossEventRate:
		// Events are bounded by this window's average RTT; without one
		// the rate cannot be computed.
		rttUs := out.At(j, ws.cols.rtt)
		if rttUs == safemath.Unknown {
			return
		}
		out.Set(j, ws.cols.lossEventRate, ws.events.update(
			j, in.lossCur, in.lossTotal, in.arrivalUs, in.prevArrivalUs, rttUs))

	case features.SqrtLossEventRate:
		out.Set(j, ws.cols.sqrtLossEventRate, safemath.Div(
			1, safemath.Sqrt(out.At(j, ws.cols.lossEventRate))))

	case features.LossRate:
		winLosses := safemath.Sum(out.Col(in.rc.pktsLost), ws.start+1, j)
		out.Set(j, ws.cols.lossRate, safemath.Div(
			winLosses, winLosses+float64(j-ws.start)))

	case features.MathisTput:
		out.Set(j, ws.cols.mathisTput, mathisTput(
			in.payload, out.At(j, in.rc.rtt), out.At(j, ws.cols.lossEventRate)))
	}
}

// mathisTput evaluates the Mathis model, tput = (MSS/RTT) * (C/sqrt(p)),
// in bits per second.
func mathisTput(payloadB, rttUs, lossRate float64) float64 {
	return safemath.Mul(
		safemath.Div(safemath.Mul(8, payloadB), safemath.Div(rttUs, 1e6)),
		safemath.Div(mathisC, safemath.Sqrt(lossRate)))
}

// finishFlow fills in the true retransmission rate, computed once per
// flow from the sender trace and recorded on the last row.
func finishFlow(f *trace.Flow, out *FlowResult, rc regCols, ctx passContext) {
	last := out.NumRows() - 1
	lastSeq := out.At(last, rc.seq)
	if lastSeq == safemath.Unknown {
		ctx.logf("warning: unknown last sequence number for flow %s; "+
			"skipping the retransmission rate", f.Key)
		return
	}

	// Find when the last received packet was sent; if it was
	// retransmitted, assume the final retransmission is the copy that
	// arrived. The retransmission rate up to that send is
	// 1 - unique/total.
	sent := f.SentData
	found := false
	for sndIdx := sent.Len() - 1; sndIdx >= 0; sndIdx-- {
		if sent.Seq[sndIdx] != lastSeq {
			continue
		}
		unique := make(map[int64]struct{}, sndIdx+1)
		for i := 0; i <= sndIdx; i++ {
			unique[int64(sent.Seq[i])] = struct{}{}
		}
		out.Set(last, rc.retransRate, 1-float64(len(unique))/float64(sndIdx+1))
		found = true
		break
	}
	if !found {
		ctx.logf("warning: did not find when the last received packet "+
			"(seq %v) was sent for flow %s", lastSeq, f.Key)
	}
}
