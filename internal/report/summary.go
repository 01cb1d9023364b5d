package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
)

// SummaryRow is one experiment's extraction summary.
type SummaryRow struct {
	Experiment string
	Flows      int
	Packets    int

	// WinErrors counts discarded throughput samples per window multiple.
	WinErrors map[int]int

	// SmallestSafeWin is the smallest window multiple without discarded
	// samples, or 0.
	SmallestSafeWin int
}

// SummaryCSVWriter appends one row per experiment, with a fixed set of
// window-error columns chosen at creation.
type SummaryCSVWriter struct {
	f    *os.File
	w    *csv.Writer
	wins []int
}

func NewSummaryCSVWriter(path string, wins []int) (*SummaryCSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)

	hdr := []string{
		"experiment",
		"flows",
		"packets",
		"smallest_safe_win",
	}
	for _, win := range wins {
		hdr = append(hdr, "win_errors_"+strconv.Itoa(win))
	}
	if err := w.Write(hdr); err != nil {
		_ = f.Close()
		return nil, err
	}
	w.Flush()

	return &SummaryCSVWriter{f: f, w: w, wins: wins}, nil
}

func (s *SummaryCSVWriter) OnSummary(row SummaryRow) {
	rec := []string{
		row.Experiment,
		strconv.Itoa(row.Flows),
		strconv.Itoa(row.Packets),
		strconv.Itoa(row.SmallestSafeWin),
	}
	for _, win := range s.wins {
		rec = append(rec, strconv.Itoa(row.WinErrors[win]))
	}
	_ = s.w.Write(rec)
}

func (s *SummaryCSVWriter) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}
