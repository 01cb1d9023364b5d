// Package synth fabricates small deterministic experiments: packet
// timelines with configurable rate, RTT, and Bernoulli loss, shaped like
// the traces the parser produces. It backs the extraction tests and the
// demo mode of the CLI, where no captured experiment is available.
package synth

import (
	"fmt"
	"math"

	"github.com/cmu-snap/unfair/internal/trace"
)

const (
	tcpHeaderB = 40
	ackWireB   = 40
)

// FlowSpec describes one synthetic flow.
type FlowSpec struct {
	ClientPort uint16
	ServerPort uint16
	CCA        trace.CCA

	// RateMbps is the flow's payload sending rate.
	RateMbps float64

	// PayloadB is the payload carried by every data packet.
	PayloadB int

	// RttUs is the flow's fixed round-trip time.
	RttUs float64

	// LossProb is the per-packet Bernoulli drop probability at the
	// bottleneck.
	LossProb float64

	// StartUs delays the flow's first packet.
	StartUs float64
}

// ExpSpec describes one synthetic experiment.
type ExpSpec struct {
	Name   string
	BwMbps float64
	DurS   float64
	Seed   int64
	Flows  []FlowSpec
}

// Build fabricates the experiment. The same spec always produces the
// same packets.
func Build(spec ExpSpec) *trace.Experiment {
	exp := &trace.Experiment{
		Name:     spec.Name,
		BwMbps:   spec.BwMbps,
		BwBps:    spec.BwMbps * 1e6,
		DurS:     int(spec.DurS),
		TotFlows: len(spec.Flows),
	}
	for i, fs := range spec.Flows {
		f, qlog := buildFlow(fs, spec.Seed+int64(i), spec.DurS)
		exp.Flows = append(exp.Flows, f)
		exp.QueueLog = append(exp.QueueLog, qlog...)
	}
	return exp
}

func buildFlow(fs FlowSpec, seed int64, durS float64) (*trace.Flow, []trace.QueueRecord) {
	key := trace.FlowKey{ClientPort: fs.ClientPort, ServerPort: fs.ServerPort}
	f := trace.NewFlow(key, fs.CCA)
	packetSeq := fs.CCA.PacketSeq()

	// Space packets so the payload rate matches the requested one, and
	// start late enough that the first fabricated ACK has a positive
	// timestamp.
	intervalUs := float64(fs.PayloadB) * 8 / fs.RateMbps
	base := 10*fs.RttUs + fs.StartUs
	n := int(durS * 1e6 / intervalUs)

	payload := float64(fs.PayloadB)
	wirelen := payload + tcpHeaderB

	enq, drop := 0.0, 0.0
	var deqs []trace.QueueRecord
	for j := 0; j < n; j++ {
		seq := float64(j) * payload
		if packetSeq {
			seq = float64(j)
		}
		sendUs := base + float64(j)*intervalUs
		arriveUs := sendUs + fs.RttUs/2

		f.SentData.Append(seq, sendUs, float64(j), 0, payload, wirelen)

		switch fs.CCA {
		case trace.CCACopa:
			// The receiver echoes the data sequence number; the echo
			// lands back at the sender one RTT after the send.
			f.SentACKs.Append(seq, sendUs+fs.RttUs, 0, 0, 0, ackWireB)
		case trace.CCAVivace:
			// UDT ACKs report the RTT directly.
			f.RecvACKs.Append(float64(j), arriveUs-fs.RttUs, fs.RttUs, 0, 0, ackWireB)
		default:
			// A timestamp echo chain: the receiver emitted an ACK with
			// TSval j one RTT before packet j lands, and packet j
			// echoes it as TSecr.
			f.RecvACKs.Append(0, arriveUs-fs.RttUs, float64(j), 0, 0, ackWireB)
		}

		if bernoulli(seed, fs.ClientPort, j, fs.LossProb) {
			drop++
			continue
		}
		enq++
		f.RecvData.Append(seq, arriveUs, float64(j), float64(j), payload, wirelen)
		deqs = append(deqs, trace.QueueRecord{
			Kind:   "deq",
			TimeUs: arriveUs,
			Port:   fs.ClientPort,
			Seq:    seq,
		})
	}

	// A stats record must precede the last dequeue for the drop-rate
	// lookup to find it.
	stats := trace.QueueRecord{
		Kind:     "stats",
		TimeUs:   base + durS*1e6,
		Port:     fs.ClientPort,
		Enqueued: enq,
		Dropped:  drop,
	}
	if len(deqs) == 0 {
		return f, []trace.QueueRecord{stats}
	}
	qlog := append(deqs[:len(deqs)-1:len(deqs)-1], stats, deqs[len(deqs)-1])
	return f, qlog
}

// bernoulli makes the deterministic drop decision for packet j.
func bernoulli(seed int64, port uint16, j int, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return u01(seed, port, j) < p
}

// splitmix64 is a 64-bit finalizing mixer with good avalanche behavior.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// u01 returns a deterministic float in [0,1) from (seed,port,j).
func u01(seed int64, port uint16, j int) float64 {
	x := uint64(seed)
	x ^= uint64(port)<<32 | uint64(uint32(j))

	y := splitmix64(x)

	v := float64(y>>11) / (1 << 53)
	if v >= 1 {
		return math.Nextafter(1, 0)
	}
	return v
}

// TwoFlowContention is the canonical demo: two flows oversubscribing a
// shared bottleneck, with mild loss standing in for queue drops.
func TwoFlowContention(seed int64) ExpSpec {
	return ExpSpec{
		Name:   fmt.Sprintf("synth-cubic-cubic-8bw-demo-%d", seed),
		BwMbps: 8,
		DurS:   2,
		Seed:   seed,
		Flows: []FlowSpec{
			{ClientPort: 50001, ServerPort: 9998, RateMbps: 6, PayloadB: 1380, RttUs: 30000, LossProb: 0.01},
			{ClientPort: 50002, ServerPort: 9998, RateMbps: 6, PayloadB: 1380, RttUs: 30000, LossProb: 0.01, StartUs: 5000},
		},
	}
}
