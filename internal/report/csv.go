package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
)

// CSVRecorder writes feature rows to a CSV file, one column per feature
// name. Values are written at full precision so the unknown sentinel
// survives a round trip exactly.
type CSVRecorder struct {
	f   *os.File
	w   *csv.Writer
	buf []string
}

func NewCSVRecorder(path string, names []string) (*CSVRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)

	if err := w.Write(names); err != nil {
		_ = f.Close()
		return nil, err
	}
	w.Flush()

	return &CSVRecorder{f: f, w: w, buf: make([]string, len(names))}, nil
}

func (r *CSVRecorder) OnRow(row []float64) {
	for i, v := range row {
		r.buf[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	_ = r.w.Write(r.buf)
}

func (r *CSVRecorder) Close() error {
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		_ = r.f.Close()
		return err
	}
	return r.f.Close()
}
