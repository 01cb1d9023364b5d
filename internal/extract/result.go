// Package extract is the streaming feature-extraction engine. Each flow's
// received data packets are replayed once, in capture order, through the
// RTT and loss estimators and the EWMA and windowed aggregators, producing
// one feature row per received packet. After every flow in an experiment
// has been processed, the flows' timelines are merged to fill in the
// metrics that depend on concurrent activity (total throughput, fair
// share, throughput share).
package extract

import (
	"github.com/cmu-snap/unfair/internal/features"
	"github.com/cmu-snap/unfair/internal/safemath"
)

// FlowResult is one flow's feature rows, stored column-major so windowed
// sums and bound searches run over contiguous slices. Every cell starts
// as the unknown sentinel.
type FlowResult struct {
	Layout *features.Layout
	cols   [][]float64
	rows   int
}

// NewFlowResult allocates an all-unknown result buffer for n packets.
func NewFlowResult(layout *features.Layout, n int) *FlowResult {
	cols := make([][]float64, layout.NumColumns())
	for i := range cols {
		col := make([]float64, n)
		for j := range col {
			col[j] = safemath.Unknown
		}
		cols[i] = col
	}
	return &FlowResult{Layout: layout, cols: cols, rows: n}
}

// NumRows returns the number of packets (rows).
func (r *FlowResult) NumRows() int { return r.rows }

// Col returns the backing slice for one column.
func (r *FlowResult) Col(col int) []float64 { return r.cols[col] }

// At returns the value at (row, col).
func (r *FlowResult) At(row, col int) float64 { return r.cols[col][row] }

// Set writes the value at (row, col).
func (r *FlowResult) Set(row, col int, v float64) { r.cols[col][row] = v }

// Regular returns the value of a per-packet metric at row.
func (r *FlowResult) Regular(row int, m features.Metric) float64 {
	return r.cols[r.Layout.Regular(m)][row]
}

// Row copies row i into buf, which must have the layout's column count.
func (r *FlowResult) Row(i int, buf []float64) {
	for c := range r.cols {
		buf[c] = r.cols[c][i]
	}
}
