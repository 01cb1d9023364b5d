package features

import "testing"

func TestEWMAName(t *testing.T) {
	for _, tc := range []struct {
		m     Metric
		alpha float64
		want  string
	}{
		{RTT, 0.003, "RTT us-ewma-alpha0.003"},
		{RTT, 0.1, "RTT us-ewma-alpha0.1"},
		{RTT, 1.0, "RTT us-ewma-alpha1.0"},
		{LossRate, 0.008, "loss rate-ewma-alpha0.008"},
		{MathisTput, 0.5, "mathis model throughput b/s-ewma-alpha0.5"},
	} {
		if got := EWMAName(tc.m, tc.alpha); got != tc.want {
			t.Errorf("EWMAName(%v, %v) = %q, want %q", tc.m, tc.alpha, got, tc.want)
		}
	}
}

func TestWindowedName(t *testing.T) {
	for _, tc := range []struct {
		m    Metric
		win  int
		want string
	}{
		{Tput, 16, "throughput b/s-windowed-minRtt16"},
		{LossEventRate, 1, "loss event rate-windowed-minRtt1"},
		{SqrtLossEventRate, 1024, "1/sqrt loss event rate-windowed-minRtt1024"},
	} {
		if got := WindowedName(tc.m, tc.win); got != tc.want {
			t.Errorf("WindowedName(%v, %d) = %q, want %q", tc.m, tc.win, got, tc.want)
		}
	}
}

func TestDefaultLayoutShape(t *testing.T) {
	l := DefaultLayout()

	want := len(Regular) + len(EWMAMetrics)*20 + len(WindowedMetrics)*11
	if got := l.NumColumns(); got != want {
		t.Errorf("NumColumns() = %d, want %d", got, want)
	}
	if want != 282 {
		t.Errorf("default column count = %d, want 282", want)
	}
	if !l.Smoothed() {
		t.Error("Smoothed() = false, want true")
	}

	names := l.Names()
	if len(names) != want {
		t.Fatalf("len(Names()) = %d, want %d", len(names), want)
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			t.Errorf("duplicate column name %q", name)
		}
		seen[name] = true
	}
}

func TestLayoutLookups(t *testing.T) {
	l := DefaultLayout()
	names := l.Names()

	if idx := l.Regular(RTT); names[idx] != "RTT us" {
		t.Errorf("Regular(RTT) resolves to %q", names[idx])
	}
	if idx := l.EWMA(RTT, 0.003); names[idx] != "RTT us-ewma-alpha0.003" {
		t.Errorf("EWMA(RTT, 0.003) resolves to %q", names[idx])
	}
	if idx := l.Windowed(Tput, 16); names[idx] != "throughput b/s-windowed-minRtt16" {
		t.Errorf("Windowed(Tput, 16) resolves to %q", names[idx])
	}

	idx, ok := l.ByName("loss event rate-windowed-minRtt8")
	if !ok {
		t.Fatal("ByName failed for a windowed column")
	}
	if idx != l.Windowed(LossEventRate, 8) {
		t.Errorf("ByName = %d, Windowed = %d", idx, l.Windowed(LossEventRate, 8))
	}
	if _, ok := l.ByName("no such column"); ok {
		t.Error("ByName accepted an unknown name")
	}
}

func TestRegularLayout(t *testing.T) {
	l := RegularLayout()
	if got := l.NumColumns(); got != len(Regular) {
		t.Errorf("NumColumns() = %d, want %d", got, len(Regular))
	}
	if l.Smoothed() {
		t.Error("Smoothed() = true, want false")
	}
}
