// Package report writes extracted feature tables and per-experiment
// summaries to CSV.
package report

// Recorder receives one feature row per received data packet. Write
// errors are deferred to Close.
type Recorder interface {
	OnRow(row []float64)
	Close() error
}

// multiRecorder fan-outs rows to multiple Recorder implementations.
type multiRecorder struct {
	rs []Recorder
}

// MultiRecorder creates a Recorder that forwards OnRow/Close to all recorders.
func MultiRecorder(rs ...Recorder) Recorder {
	out := &multiRecorder{rs: make([]Recorder, 0, len(rs))}
	for _, r := range rs {
		if r != nil {
			out.rs = append(out.rs, r)
		}
	}
	return out
}

func (m *multiRecorder) OnRow(row []float64) {
	for _, r := range m.rs {
		r.OnRow(row)
	}
}

func (m *multiRecorder) Close() error {
	var firstErr error
	for _, r := range m.rs {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
