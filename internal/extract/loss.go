package extract

import (
	"math"

	"github.com/cmu-snap/unfair/internal/safemath"
)

// seqWrapLimit is where byte sequence numbers wrap.
const seqWrapLimit = 1 << 32

// seqTracker does receiver-side retransmission detection and loss
// estimation from the sequence numbers of received data packets. It
// deliberately handles only the simple case where the previous and
// current packets are in order and not retransmissions; anything else
// yields an unknown loss estimate.
type seqTracker struct {
	packetSeq bool

	// Sequence numbers seen at least once.
	seen map[int64]struct{}

	havePrev    bool
	prevSeq     float64
	prevPayload float64

	haveHighest bool
	highestSeq  float64

	// Running total of estimated losses.
	total float64
}

func newSeqTracker(packetSeq bool) *seqTracker {
	return &seqTracker{packetSeq: packetSeq, seen: make(map[int64]struct{})}
}

// step is the sequence-number distance of one in-order packet.
func (t *seqTracker) step(payload float64) float64 {
	if t.packetSeq {
		return 1
	}
	return payload
}

// observe classifies the next received packet and returns whether it is a
// retransmission and the estimated number of packets lost since the
// previous packet (Unknown when the estimate is undefined). The running
// total only accumulates known estimates.
func (t *seqTracker) observe(seq, payload float64) (retrans bool, lossCur float64) {
	retrans = false
	if _, ok := t.seen[int64(seq)]; ok {
		retrans = true
	} else if t.havePrev && t.prevSeq+t.step(t.prevPayload) > seq {
		retrans = true
	}
	t.seen[int64(seq)] = struct{}{}

	lossCur = safemath.Unknown
	switch {
	case seq == safemath.Unknown:
	case !t.havePrev || t.prevSeq == safemath.Unknown:
	case t.prevPayload <= 0 || payload <= 0:
	case !t.haveHighest || t.highestSeq != t.prevSeq:
		// The previous packet was itself a retransmission.
	case retrans:
	default:
		lossCur = math.RoundToEven((seq - t.step(t.prevPayload) - t.prevSeq) / t.step(payload))
	}
	if lossCur != safemath.Unknown {
		t.total += lossCur
	}

	t.prevSeq = seq
	t.prevPayload = payload
	t.havePrev = true
	if !t.haveHighest || seq > t.highestSeq {
		t.highestSeq = seq
	}
	t.haveHighest = true

	// Sequence number wraparound resets the sequence tracking only;
	// loss totals and event state carry across the wrap.
	if seq != safemath.Unknown && seq+t.step(payload) > seqWrapLimit {
		t.haveHighest = false
		t.havePrev = false
	}
	return retrans, lossCur
}
