package extract

import (
	"testing"

	"github.com/cmu-snap/unfair/internal/features"
	"github.com/cmu-snap/unfair/internal/safemath"
	"github.com/cmu-snap/unfair/internal/synth"
	"github.com/cmu-snap/unfair/internal/trace"
)

func fairTwoFlowSpec() synth.ExpSpec {
	return synth.ExpSpec{
		Name:   "synth-cubic-cubic-8bw-fair",
		BwMbps: 8,
		DurS:   2,
		Seed:   7,
		Flows: []synth.FlowSpec{
			{ClientPort: 50001, ServerPort: 9998, RateMbps: 3, PayloadB: 1380, RttUs: 30000, LossProb: 0.01},
			{ClientPort: 50002, ServerPort: 9998, RateMbps: 3, PayloadB: 1380, RttUs: 30000, LossProb: 0.01, StartUs: 5000},
		},
	}
}

func TestProcessExperimentTwoFlows(t *testing.T) {
	exp := synth.Build(fairTwoFlowSpec())
	exp.Relativize()

	layout := features.DefaultLayout()
	res, err := ProcessExperiment(exp, Config{Layout: layout})
	if err != nil {
		t.Fatalf("ProcessExperiment: %v", err)
	}
	if len(res.Flows) != 2 {
		t.Fatalf("got %d flow results, want 2", len(res.Flows))
	}

	for i, fr := range res.Flows {
		if fr.NumRows() != exp.Flows[i].RecvData.Len() {
			t.Errorf("flow %d: %d rows for %d received packets",
				i, fr.NumRows(), exp.Flows[i].RecvData.Len())
		}
	}

	fr := res.Flows[0]
	last := fr.NumRows() - 1
	mid := fr.NumRows() / 2

	// The synthetic network has a fixed 30 ms RTT.
	if got := fr.Regular(1, features.RTT); got != 30000 {
		t.Errorf("RTT = %v, want 30000", got)
	}
	if got := fr.Regular(last, features.MinRTT); got != 30000 {
		t.Errorf("min RTT = %v, want 30000", got)
	}
	if got := fr.Regular(mid, features.RTTRatio); got != 1 {
		t.Errorf("RTT ratio = %v, want 1", got)
	}

	// Mid-trace, both flows are active and split the 8 Mbps bottleneck.
	if got := fr.Regular(mid, features.ActiveFlows); got != 2 {
		t.Errorf("active flows = %v, want 2", got)
	}
	if got := fr.Regular(mid, features.BwFairShareBps); got != 4e6 {
		t.Errorf("bandwidth fair share = %v, want 4e6", got)
	}

	// No retransmissions occur: every received packet was sent once.
	if got := fr.Regular(last, features.RetransRate); got != 0 {
		t.Errorf("retransmission rate = %v, want 0", got)
	}
	// The queue log yields a drop rate.
	if got := fr.Regular(last, features.DropRate); got == safemath.Unknown {
		t.Error("drop rate is unknown, want a value from the queue log")
	}
	if got := fr.Regular(last, features.PacketsLostTotal); got == safemath.Unknown {
		t.Error("total packets lost is unknown")
	}

	// Cumulative byte counters grow monotonically.
	if fr.Regular(last, features.TotalSoFar) <= fr.Regular(mid, features.TotalSoFar) {
		t.Error("total bytes so far did not grow")
	}

	// The windowed RTT over an all-30 ms trace is exactly 30 ms.
	if got := fr.At(last, layout.Windowed(features.RTT, 1)); got != 30000 {
		t.Errorf("windowed RTT = %v, want 30000", got)
	}

	// Both flows together send about 6 Mbps through an 8 Mbps
	// bottleneck, so no window discards samples.
	for win, n := range res.WinErrors {
		if n != 0 {
			t.Errorf("window %d tallied %d errors, want 0", win, n)
		}
	}
	if res.SmallestSafeWin != 1 {
		t.Errorf("smallest safe window = %d, want 1", res.SmallestSafeWin)
	}

	// The merge phase filled in fairness columns somewhere in the trace,
	// with a share-to-fair-share ratio near one.
	found := false
	ratioCol := layout.Windowed(features.TputToFairShareRatio, 1)
	for j := 0; j < fr.NumRows(); j++ {
		ratio := fr.At(j, ratioCol)
		if ratio == safemath.Unknown {
			continue
		}
		found = true
		if ratio <= 0.2 || ratio >= 5 {
			t.Errorf("row %d: share-to-fair ratio = %v", j, ratio)
		}
	}
	if !found {
		t.Error("no row has a share-to-fair ratio")
	}
}

func TestProcessExperimentOversubscribed(t *testing.T) {
	spec := fairTwoFlowSpec()
	spec.Name = "synth-cubic-cubic-8bw-unfair"
	spec.Flows[0].RateMbps = 6
	spec.Flows[1].RateMbps = 6

	exp := synth.Build(spec)
	exp.Relativize()

	res, err := ProcessExperiment(exp, Config{})
	if err != nil {
		t.Fatalf("ProcessExperiment: %v", err)
	}

	// 12 Mbps offered through an 8 Mbps bottleneck: every window sees
	// implausible total-throughput samples.
	if res.WinErrors[1] == 0 {
		t.Error("window 1 tallied no errors, want > 0")
	}
	if res.SmallestSafeWin != 0 {
		t.Errorf("smallest safe window = %d, want 0", res.SmallestSafeWin)
	}
}

func TestProcessExperimentSkipsEmptyFlow(t *testing.T) {
	spec := fairTwoFlowSpec()
	// Flow 0 loses everything and arrives empty.
	spec.Flows[0].LossProb = 1

	exp := synth.Build(spec)
	exp.Relativize()

	res, err := ProcessExperiment(exp, Config{})
	if err != nil {
		t.Fatalf("ProcessExperiment: %v", err)
	}
	if got := res.Flows[0].NumRows(); got != 0 {
		t.Errorf("skipped flow has %d rows, want 0", got)
	}
	if res.Flows[1].NumRows() == 0 {
		t.Error("surviving flow has no rows")
	}

	// With flow 0 silent, flow 1 owns the whole bottleneck.
	fr := res.Flows[1]
	mid := fr.NumRows() / 2
	if got := fr.Regular(mid, features.ActiveFlows); got != 1 {
		t.Errorf("active flows = %v, want 1", got)
	}
}

func TestProcessExperimentNoActiveFlowsIsFatal(t *testing.T) {
	key := trace.FlowKey{ClientPort: 50001, ServerPort: 9998}
	f := trace.NewFlow(key, "")
	f.SentData.Append(0, 0, 0, 0, 1380, 1420)
	// An undecodable arrival time leaves the flow's activity interval
	// empty, so no flow can be active when the packet is processed.
	f.RecvData.Append(0, trace.Unknown, 0, 0, 1380, 1420)
	f.RecvACKs.Append(0, 1, 0, 0, 0, 40)
	exp := &trace.Experiment{
		Name:  "synth-broken",
		BwBps: 8e6,
		Flows: []*trace.Flow{f},
	}

	if _, err := ProcessExperiment(exp, Config{}); err == nil {
		t.Fatal("ProcessExperiment succeeded, want error")
	}
}
