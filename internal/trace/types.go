// Package trace holds the decoded input to the feature-extraction engine:
// per-flow packet series split by direction, the experiment context they
// were captured under, and the pcap adapter that produces them.
package trace

import "fmt"

// Unknown marks a field that could not be decoded (no sequence number, no
// timestamp option). It matches the engine's sentinel.
const Unknown float64 = -1

// CCA is the congestion control algorithm a flow was configured with. It
// selects the sequence-number interpretation and the RTT estimation
// variant.
type CCA string

const (
	CCACopa   CCA = "copa"
	CCAVivace CCA = "vivace"
)

// PacketSeq reports whether the CCA numbers packets rather than bytes.
// Copa and Vivace use packet-based sequence numbers; everything else is
// assumed to be TCP with byte-based sequence numbers.
func (c CCA) PacketSeq() bool {
	return c == CCACopa || c == CCAVivace
}

// FlowKey identifies a flow by its port pair.
type FlowKey struct {
	ClientPort uint16
	ServerPort uint16
}

func (k FlowKey) String() string {
	return fmt.Sprintf("%d-%d", k.ClientPort, k.ServerPort)
}

// Series is a column-oriented sequence of packets in capture order. All
// fields use Unknown for values that could not be decoded.
type Series struct {
	Seq     []float64 // sequence number (bytes for TCP, packets otherwise)
	Arrival []float64 // capture timestamp, microseconds
	TsVal   []float64 // first timestamp field (TSval, or the UDT RTT)
	TsEcr   []float64 // second timestamp field (TSecr)
	Payload []float64 // transport payload, bytes
	Wirelen []float64 // size on the wire, bytes
}

// Len returns the number of packets in the series.
func (s *Series) Len() int { return len(s.Arrival) }

// Append adds one packet to the series.
func (s *Series) Append(seq, arrival, tsVal, tsEcr, payload, wirelen float64) {
	s.Seq = append(s.Seq, seq)
	s.Arrival = append(s.Arrival, arrival)
	s.TsVal = append(s.TsVal, tsVal)
	s.TsEcr = append(s.TsEcr, tsEcr)
	s.Payload = append(s.Payload, payload)
	s.Wirelen = append(s.Wirelen, wirelen)
}

// Flow is one transport flow's packets, split into the four directed
// sequences the engine consumes. SentData and SentACKs come from the
// sender-side capture; RecvData and RecvACKs from the receiver side.
type Flow struct {
	Key FlowKey
	CCA CCA

	SentData *Series
	SentACKs *Series
	RecvData *Series
	RecvACKs *Series
}

// NewFlow returns a flow with empty series.
func NewFlow(key FlowKey, cca CCA) *Flow {
	return &Flow{
		Key:      key,
		CCA:      cca,
		SentData: &Series{},
		SentACKs: &Series{},
		RecvData: &Series{},
		RecvACKs: &Series{},
	}
}

// QueueRecord is one entry of the bottleneck queue log.
type QueueRecord struct {
	Kind     string // "enq", "deq", or "stats"
	TimeUs   float64
	Port     uint16
	Seq      float64
	Enqueued float64
	Dequeued float64
	Dropped  float64
}
