package extract

import (
	"fmt"
	"log"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/cmu-snap/unfair/internal/features"
	"github.com/cmu-snap/unfair/internal/safemath"
	"github.com/cmu-snap/unfair/internal/trace"
)

// Config controls feature extraction for one experiment.
type Config struct {
	// Layout selects the columns to compute. Nil means DefaultLayout.
	Layout *features.Layout

	// Log receives warnings about degenerate flows and implausible
	// samples. Nil silences them.
	Log *log.Logger

	// Workers bounds the number of flows processed concurrently.
	// Zero or negative means no bound.
	Workers int
}

// Result is the extracted feature matrix of one experiment.
type Result struct {
	// Flows holds one feature table per flow, in experiment flow order.
	Flows []*FlowResult

	// WinErrors counts, per window multiple, the throughput samples
	// that exceeded the configured bandwidth and were discarded.
	WinErrors map[int]int

	// SmallestSafeWin is the smallest window multiple that produced no
	// discarded samples, or 0 if every window produced some.
	SmallestSafeWin int
}

// ProcessExperiment extracts features for every flow of the experiment,
// then fills in the cross-flow fairness features on the merged timeline.
// Flows run concurrently; any per-flow failure aborts the experiment.
func ProcessExperiment(exp *trace.Experiment, cfg Config) (*Result, error) {
	layout := cfg.Layout
	if layout == nil {
		layout = features.DefaultLayout()
	}

	bounds := make([]timeBounds, len(exp.Flows))
	for i, f := range exp.Flows {
		if f.RecvData.Len() == 0 {
			bounds[i] = timeBounds{first: safemath.Unknown, last: safemath.Unknown}
			continue
		}
		bounds[i] = timeBounds{
			first: f.RecvData.Arrival[0],
			last:  f.RecvData.Arrival[f.RecvData.Len()-1],
		}
	}

	ctx := passContext{
		layout: layout,
		bwBps:  exp.BwBps,
		bounds: bounds,
		log:    cfg.Log,
	}

	results := make([]*FlowResult, len(exp.Flows))
	tallies := make([]map[int]int, len(exp.Flows))

	var g errgroup.Group
	if cfg.Workers > 0 {
		g.SetLimit(cfg.Workers)
	}
	for i, f := range exp.Flows {
		i, f := i, f
		g.Go(func() error {
			res, tally, err := processFlow(f, ctx)
			if err != nil {
				return fmt.Errorf("%s: flow %s: %w", exp.Name, f.Key, err)
			}
			results[i] = res
			tallies[i] = tally
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	winErrors := make(map[int]int, len(layout.Windows))
	for _, win := range layout.Windows {
		winErrors[win] = 0
	}
	for _, tally := range tallies {
		for win, n := range tally {
			winErrors[win] += n
		}
	}

	computeFairness(results, layout, exp.BwBps, winErrors)

	for i, f := range exp.Flows {
		applyDropRate(results[i], layout, f.Key, exp.QueueLog, cfg.Log)
	}

	checkFinite(results, layout, exp.Name, cfg.Log)

	res := &Result{
		Flows:           results,
		WinErrors:       winErrors,
		SmallestSafeWin: smallestSafeWin(layout, winErrors),
	}
	if res.SmallestSafeWin == 0 && len(layout.Windows) > 0 && cfg.Log != nil {
		cfg.Log.Printf("warning: every window multiple of %s discarded samples", exp.Name)
	}
	return res, nil
}

// applyDropRate records the true drop rate at the bottleneck queue on
// the flow's last row: it finds the dequeue entry of the last received
// packet, then the most recent stats entry for the flow's client port
// before that dequeue, and takes dropped/(enqueued+dropped) from it.
// Flows whose rows were never populated keep the value unknown.
func applyDropRate(r *FlowResult, layout *features.Layout, key trace.FlowKey, queueLog []trace.QueueRecord, logger *log.Logger) {
	if r.NumRows() == 0 {
		return
	}
	last := r.NumRows() - 1
	if r.Regular(last, features.ArrivalTime) == safemath.Unknown {
		return
	}
	lastSeq := r.Regular(last, features.Seq)
	if lastSeq == safemath.Unknown {
		return
	}
	warnf := func(format string, args ...any) {
		if logger != nil {
			logger.Printf(format, args...)
		}
	}
	if len(queueLog) == 0 {
		warnf("warning: no bottleneck queue log; skipping the drop rate for flow %s", key)
		return
	}

	deqIdx := -1
	for i := len(queueLog) - 1; i >= 0; i-- {
		rec := queueLog[i]
		if rec.Kind == "deq" && rec.Port == key.ClientPort && rec.Seq == lastSeq {
			deqIdx = i
			break
		}
	}
	if deqIdx == -1 {
		warnf("warning: did not find when the last received packet (seq %v) "+
			"was dequeued for flow %s", lastSeq, key)
		return
	}
	for i := deqIdx - 1; i >= 0; i-- {
		rec := queueLog[i]
		if rec.Kind == "stats" && rec.Port == key.ClientPort {
			r.Set(last, layout.Regular(features.DropRate),
				safemath.Div(rec.Dropped, rec.Enqueued+rec.Dropped))
			return
		}
	}
	warnf("warning: did not calculate the bottleneck drop rate for flow %s", key)
}

// checkFinite warns about NaN or infinite feature values. They indicate
// an arithmetic path that bypassed the sentinel helpers.
func checkFinite(results []*FlowResult, layout *features.Layout, name string, logger *log.Logger) {
	if logger == nil {
		return
	}
	for flowIdx, r := range results {
		for col := 0; col < layout.NumColumns(); col++ {
			vals := r.Col(col)
			for row, v := range vals {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					logger.Printf(
						"warning: %s: flow %d has non-finite value %v at row %d of %q",
						name, flowIdx, v, row, layout.Names()[col])
				}
			}
		}
	}
}

// smallestSafeWin returns the smallest window multiple with no discarded
// samples, or 0 if there is none.
func smallestSafeWin(layout *features.Layout, winErrors map[int]int) int {
	for _, win := range layout.Windows {
		if winErrors[win] == 0 {
			return win
		}
	}
	return 0
}
