package trace

import (
	"math"
	"testing"
)

func TestParseExpName(t *testing.T) {
	e, err := ParseExpName("unfair-pcc-cubic-8bw-30rtt-64q-1pcc-1cubic-100s-20201118T114242.tar.gz")
	if err != nil {
		t.Fatalf("ParseExpName: %v", err)
	}
	if e.Name != "unfair-pcc-cubic-8bw-30rtt-64q-1pcc-1cubic-100s-20201118T114242" {
		t.Errorf("Name = %q", e.Name)
	}
	if e.CCA1 != "pcc" || e.CCA2 != "cubic" {
		t.Errorf("CCAs = %q, %q, want pcc, cubic", e.CCA1, e.CCA2)
	}
	if e.BwMbps != 8 || e.BwBps != 8e6 {
		t.Errorf("bandwidth = %v Mbps / %v bps", e.BwMbps, e.BwBps)
	}
	if e.RttUs != 30000 {
		t.Errorf("RttUs = %v, want 30000", e.RttUs)
	}
	if e.BdpBits != 8*30000 {
		t.Errorf("BdpBits = %v, want %v", e.BdpBits, 8*30000)
	}
	if e.QueuePkts != 64 {
		t.Errorf("QueuePkts = %v, want 64", e.QueuePkts)
	}
	if e.CCA1Flows != 1 || e.CCA2Flows != 1 || e.TotFlows != 2 {
		t.Errorf("flows = %d + %d (total %d), want 1 + 1 (2)",
			e.CCA1Flows, e.CCA2Flows, e.TotFlows)
	}
	if e.DurS != 100 {
		t.Errorf("DurS = %d, want 100", e.DurS)
	}
	if e.TargetPerFlowBwMbps != 4 {
		t.Errorf("TargetPerFlowBwMbps = %v, want 4", e.TargetPerFlowBwMbps)
	}
	wantQueueBdp := 64 / (8.0 * 30000 / 8 / 1514)
	if math.Abs(e.QueueBdp-wantQueueBdp) > 1e-12 {
		t.Errorf("QueueBdp = %v, want %v", e.QueueBdp, wantQueueBdp)
	}
}

func TestParseExpNameRejectsMalformed(t *testing.T) {
	for _, name := range []string{
		"",
		"too-few-tokens",
		"unfair-pcc-cubic-8xx-30rtt-64q-1pcc-1cubic-100s-stamp",
		"unfair-pcc-cubic-8bw-30rtt-64q-1bbr-1cubic-100s-stamp",
	} {
		if _, err := ParseExpName(name); err == nil {
			t.Errorf("ParseExpName(%q) succeeded, want error", name)
		}
	}
}

func TestRelativize(t *testing.T) {
	f := NewFlow(FlowKey{ClientPort: 1000, ServerPort: 2000}, "")
	f.SentData.Append(0, 500, Unknown, Unknown, 100, 140)
	f.RecvData.Append(0, 700, Unknown, Unknown, 100, 140)
	f.RecvACKs.Append(0, 600, Unknown, Unknown, 0, 40)

	e := &Experiment{Flows: []*Flow{f}}
	e.Relativize()

	if got := f.SentData.Arrival[0]; got != 0 {
		t.Errorf("SentData arrival = %v, want 0", got)
	}
	if got := f.RecvACKs.Arrival[0]; got != 100 {
		t.Errorf("RecvACKs arrival = %v, want 100", got)
	}
	if got := f.RecvData.Arrival[0]; got != 200 {
		t.Errorf("RecvData arrival = %v, want 200", got)
	}
}

func TestRelativizeSkipsUnknown(t *testing.T) {
	f := NewFlow(FlowKey{ClientPort: 1000, ServerPort: 2000}, "")
	f.RecvData.Append(0, Unknown, Unknown, Unknown, 100, 140)
	f.RecvData.Append(1, 300, Unknown, Unknown, 100, 140)

	e := &Experiment{Flows: []*Flow{f}}
	e.Relativize()

	if got := f.RecvData.Arrival[0]; got != Unknown {
		t.Errorf("unknown arrival became %v", got)
	}
	if got := f.RecvData.Arrival[1]; got != 0 {
		t.Errorf("known arrival = %v, want 0", got)
	}
}
