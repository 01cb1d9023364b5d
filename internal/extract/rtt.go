package extract

import (
	"fmt"

	"github.com/cmu-snap/unfair/internal/safemath"
	"github.com/cmu-snap/unfair/internal/trace"
)

// rttEstimator produces one RTT sample per non-retransmitted received
// data packet. Implementations keep a forward-only cursor into the ACK
// stream they pair against, so a whole pass costs amortized linear time.
// The variant is chosen once per flow from its CCA.
type rttEstimator interface {
	// sample returns the RTT estimate in microseconds for the received
	// packet with the given sequence number, arrival time, and echoed
	// timestamp, or Unknown if no estimate exists. prevRTT is the
	// previous row's estimate, used by variants that fall back to it.
	sample(seq, arrivalUs, tsEcr, prevRTT float64) (float64, error)
}

// newRTTEstimator selects the estimation variant for a flow.
func newRTTEstimator(f *trace.Flow) rttEstimator {
	switch {
	case f.CCA == trace.CCACopa:
		return &senderPairedRTT{acks: f.SentACKs, data: f.SentData, key: f.Key}
	case f.CCA == trace.CCAVivace:
		return &ackReportedRTT{acks: f.RecvACKs}
	default:
		return &tsEchoRTT{acks: f.RecvACKs}
	}
}

// tsEchoRTT does receiver-side estimation from the TCP timestamp option:
// the current packet's TSecr names the receiver ACK whose TSval it
// echoes, and the RTT is the gap between that ACK's departure and the
// packet's arrival.
type tsEchoRTT struct {
	acks *trace.Series
	idx  int
}

func (e *tsEchoRTT) sample(_, arrivalUs, tsEcr, prevRTT float64) (float64, error) {
	old := e.idx
	for e.idx < e.acks.Len() {
		if e.acks.TsVal[e.idx] == tsEcr {
			// Match: the cursor stays here permanently.
			return arrivalUs - e.acks.Arrival[e.idx], nil
		}
		e.idx++
	}
	// No match. Keep the previous estimate and retry the scan from the
	// old position on the next packet; a partial scan is never committed.
	e.idx = old
	return prevRTT, nil
}

// senderPairedRTT does sender-side estimation for Copa: each sent ACK
// echoes a data packet's sequence number, so the RTT is the gap between
// that data packet's send time and the ACK's arrival. The ACK chosen for
// packet j is the last one to arrive before j was sent, i.e. the estimate
// the sender itself could have had when sending j.
type senderPairedRTT struct {
	acks *trace.Series
	data *trace.Series
	key  trace.FlowKey

	ackIdx  int
	dataIdx int
}

func (e *senderPairedRTT) sample(seq, _, _, _ float64) (float64, error) {
	if e.acks.Len() == 0 || e.data.Len() == 0 {
		return safemath.Unknown, nil
	}
	e.ackIdx = safemath.FindBound(e.acks.Seq, seq, e.ackIdx, e.acks.Len()-1, safemath.Before)
	ackSeq := e.acks.Seq[e.ackIdx]
	for e.dataIdx < e.data.Len() {
		if e.data.Seq[e.dataIdx] == ackSeq {
			rtt := e.acks.Arrival[e.ackIdx] - e.data.Arrival[e.dataIdx]
			if rtt < 0 {
				return safemath.Unknown, fmt.Errorf(
					"extract: flow %s: negative RTT (%v us)", e.key, rtt)
			}
			return rtt, nil
		}
		e.dataIdx++
	}
	return safemath.Unknown, nil
}

// ackReportedRTT reads the RTT straight out of UDT ACKs for Vivace: the
// nearest preceding ACK (by arrival time) optionally carries the RTT; a
// zero field means "not reported" and the previous estimate is retained.
type ackReportedRTT struct {
	acks *trace.Series
	idx  int
}

func (e *ackReportedRTT) sample(_, arrivalUs, _, prevRTT float64) (float64, error) {
	if e.acks.Len() == 0 {
		return prevRTT, nil
	}
	e.idx = safemath.FindBound(e.acks.Arrival, arrivalUs, e.idx, e.acks.Len()-1, safemath.Before)
	if rtt := e.acks.TsVal[e.idx]; rtt > 0 {
		return rtt, nil
	}
	return prevRTT, nil
}
