package report

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCSVRecorderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "flow.csv")
	names := []string{"seq", "RTT us", "loss rate"}

	rec, err := NewCSVRecorder(path, names)
	if err != nil {
		t.Fatalf("NewCSVRecorder: %v", err)
	}
	rec.OnRow([]float64{1448, 30000, 0.25})
	rec.OnRow([]float64{2896, -1, 0})
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening output: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3 (header + 2)", len(rows))
	}
	for i, name := range names {
		if rows[0][i] != name {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], name)
		}
	}
	if rows[1][0] != "1448" || rows[1][2] != "0.25" {
		t.Errorf("row 1 = %v", rows[1])
	}
	// The unknown sentinel survives the round trip exactly.
	if rows[2][1] != "-1" {
		t.Errorf("sentinel rendered as %q, want -1", rows[2][1])
	}
}

type countingRecorder struct {
	rows   int
	closed bool
	err    error
}

func (c *countingRecorder) OnRow([]float64) { c.rows++ }
func (c *countingRecorder) Close() error {
	c.closed = true
	return c.err
}

func TestMultiRecorder(t *testing.T) {
	a := &countingRecorder{}
	b := &countingRecorder{err: errors.New("disk full")}
	c := &countingRecorder{}

	m := MultiRecorder(a, nil, b, c)
	m.OnRow([]float64{1})
	m.OnRow([]float64{2})

	if a.rows != 2 || b.rows != 2 || c.rows != 2 {
		t.Errorf("row counts = %d/%d/%d, want 2/2/2", a.rows, b.rows, c.rows)
	}

	err := m.Close()
	if err == nil || err.Error() != "disk full" {
		t.Errorf("Close = %v, want the first recorder error", err)
	}
	if !a.closed || !b.closed || !c.closed {
		t.Error("not all recorders closed")
	}
}

func TestSummaryCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.csv")
	w, err := NewSummaryCSVWriter(path, []int{1, 2, 4})
	if err != nil {
		t.Fatalf("NewSummaryCSVWriter: %v", err)
	}
	w.OnSummary(SummaryRow{
		Experiment:      "unfair-pcc-cubic-8bw-30rtt-64q-1pcc-1cubic-100s-x",
		Flows:           2,
		Packets:         1234,
		WinErrors:       map[int]int{1: 7, 2: 0, 4: 0},
		SmallestSafeWin: 2,
	})
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening output: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	wantHdr := []string{
		"experiment", "flows", "packets", "smallest_safe_win",
		"win_errors_1", "win_errors_2", "win_errors_4",
	}
	for i, h := range wantHdr {
		if rows[0][i] != h {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], h)
		}
	}
	want := []string{
		"unfair-pcc-cubic-8bw-30rtt-64q-1pcc-1cubic-100s-x",
		"2", "1234", "2", "7", "0", "0",
	}
	for i, v := range want {
		if rows[1][i] != v {
			t.Errorf("row[%d] = %q, want %q", i, rows[1][i], v)
		}
	}
}
