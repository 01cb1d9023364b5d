package trace

import (
	"fmt"
	"strconv"
	"strings"
)

// Experiment is one capture's worth of flows plus the read-only context
// they ran under. The context is used for window-error detection and
// fairness labels only; the per-flow metrics do not require it.
type Experiment struct {
	Name string

	CCA1 CCA
	CCA2 CCA

	BwMbps  float64 // bottleneck bandwidth
	BwBps   float64
	RttUs   float64 // configured round-trip propagation delay
	BdpBits float64

	QueuePkts float64 // bottleneck queue size, packets
	QueueBdp  float64 // queue size, multiples of the BDP

	CCA1Flows int
	CCA2Flows int
	TotFlows  int

	DurS int // configured duration, seconds

	// Largest RTT the experiment should see, given the queue size.
	CalculatedMaxRttUs float64
	// Fair-share bandwidth per flow.
	TargetPerFlowBwMbps float64

	Flows    []*Flow
	QueueLog []QueueRecord
}

// ParseExpName decodes the experiment naming convention
//
//	<prefix>-<cca1>-<cca2>-<N>bw-<N>rtt-<N>q-<N><cca1>-<N><cca2>-<N>s-<stamp>
//
// e.g. "unfair-pcc-cubic-8bw-30rtt-64q-1pcc-1cubic-100s-20201118T114242".
// A trailing ".tar.gz" or ".npz" is stripped. Any path prefix must already
// be removed.
func ParseExpName(name string) (*Experiment, error) {
	name = strings.TrimSuffix(strings.TrimSuffix(name, ".tar.gz"), ".npz")
	toks := strings.Split(name, "-")
	if len(toks) != 10 {
		return nil, fmt.Errorf("trace: experiment name %q: want 10 tokens, got %d", name, len(toks))
	}
	e := &Experiment{
		Name: name,
		CCA1: CCA(toks[1]),
		CCA2: CCA(toks[2]),
	}

	bw, err := suffixed(toks[3], "bw")
	if err != nil {
		return nil, fmt.Errorf("trace: experiment name %q: %w", name, err)
	}
	rtt, err := suffixed(toks[4], "rtt")
	if err != nil {
		return nil, fmt.Errorf("trace: experiment name %q: %w", name, err)
	}
	queue, err := suffixed(toks[5], "q")
	if err != nil {
		return nil, fmt.Errorf("trace: experiment name %q: %w", name, err)
	}
	flows1, err := suffixed(toks[6], string(e.CCA1))
	if err != nil {
		return nil, fmt.Errorf("trace: experiment name %q: %w", name, err)
	}
	flows2, err := suffixed(toks[7], string(e.CCA2))
	if err != nil {
		return nil, fmt.Errorf("trace: experiment name %q: %w", name, err)
	}
	dur, err := suffixed(toks[8], "s")
	if err != nil {
		return nil, fmt.Errorf("trace: experiment name %q: %w", name, err)
	}

	e.BwMbps = bw
	e.BwBps = bw * 1e6
	e.RttUs = rtt * 1000
	e.BdpBits = e.BwMbps * e.RttUs
	e.QueuePkts = queue
	e.QueueBdp = queue / (e.BdpBits / 8 / 1514)
	e.CCA1Flows = int(flows1)
	e.CCA2Flows = int(flows2)
	e.TotFlows = e.CCA1Flows + e.CCA2Flows
	e.DurS = int(dur)
	e.CalculatedMaxRttUs = (e.QueueBdp + 1) * e.RttUs
	if e.TotFlows > 0 {
		e.TargetPerFlowBwMbps = e.BwMbps / float64(e.TotFlows)
	}
	return e, nil
}

func suffixed(tok, suffix string) (float64, error) {
	num, ok := strings.CutSuffix(tok, suffix)
	if !ok {
		return 0, fmt.Errorf("token %q: missing suffix %q", tok, suffix)
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("token %q: %w", tok, err)
	}
	return v, nil
}

// Relativize shifts every arrival timestamp so the earliest observation
// across all flows and directions becomes zero. The engine assumes
// relative times.
func (e *Experiment) Relativize() {
	earliest := Unknown
	for _, f := range e.Flows {
		for _, s := range []*Series{f.SentData, f.SentACKs, f.RecvData, f.RecvACKs} {
			for _, t := range s.Arrival {
				if t == Unknown {
					continue
				}
				if earliest == Unknown || t < earliest {
					earliest = t
				}
			}
		}
	}
	if earliest == Unknown || earliest == 0 {
		return
	}
	for _, f := range e.Flows {
		for _, s := range []*Series{f.SentData, f.SentACKs, f.RecvData, f.RecvACKs} {
			for i, t := range s.Arrival {
				if t != Unknown {
					s.Arrival[i] = t - earliest
				}
			}
		}
	}
}
