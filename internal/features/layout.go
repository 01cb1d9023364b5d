package features

import "fmt"

// Kind distinguishes the three groups of columns.
type Kind int

const (
	KindRegular Kind = iota
	KindEWMA
	KindWindowed
)

// Column describes one feature column.
type Column struct {
	Name   string
	Metric Metric
	Kind   Kind
	Alpha  float64 // KindEWMA only
	Win    int     // KindWindowed only
}

type ewmaKey struct {
	metric Metric
	alpha  float64
}

type winKey struct {
	metric Metric
	win    int
}

// Layout is the resolved column set for one run: the regular columns,
// one EWMA column per (metric, alpha), and one windowed column per
// (metric, window multiple). All lookups are resolved once here so the
// per-packet hot path works with plain indices.
type Layout struct {
	Columns []Column
	Alphas  []float64
	Windows []int

	regular  map[Metric]int
	ewma     map[ewmaKey]int
	windowed map[winKey]int
	byName   map[string]int
}

// NewLayout builds a layout with the given alpha and window sets. Empty
// sets produce a regular-only layout (the skip-smoothed mode).
func NewLayout(alphas []float64, windows []int) *Layout {
	l := &Layout{
		Alphas:   alphas,
		Windows:  windows,
		regular:  make(map[Metric]int, len(Regular)),
		ewma:     make(map[ewmaKey]int, len(EWMAMetrics)*len(alphas)),
		windowed: make(map[winKey]int, len(WindowedMetrics)*len(windows)),
	}
	for _, m := range Regular {
		l.regular[m] = l.add(Column{Name: m.String(), Metric: m, Kind: KindRegular})
	}
	for _, m := range EWMAMetrics {
		for _, alpha := range alphas {
			l.ewma[ewmaKey{m, alpha}] = l.add(Column{
				Name:   EWMAName(m, alpha),
				Metric: m,
				Kind:   KindEWMA,
				Alpha:  alpha,
			})
		}
	}
	for _, m := range WindowedMetrics {
		for _, win := range windows {
			l.windowed[winKey{m, win}] = l.add(Column{
				Name:   WindowedName(m, win),
				Metric: m,
				Kind:   KindWindowed,
				Win:    win,
			})
		}
	}
	l.byName = make(map[string]int, len(l.Columns))
	for i, c := range l.Columns {
		l.byName[c.Name] = i
	}
	return l
}

// DefaultLayout builds the full layout with the default alpha and window
// sets.
func DefaultLayout() *Layout {
	return NewLayout(DefaultAlphas(), DefaultWindows())
}

// RegularLayout builds a layout with no smoothed columns.
func RegularLayout() *Layout {
	return NewLayout(nil, nil)
}

func (l *Layout) add(c Column) int {
	l.Columns = append(l.Columns, c)
	return len(l.Columns) - 1
}

// NumColumns returns the total column count.
func (l *Layout) NumColumns() int { return len(l.Columns) }

// Names returns the column names in column order.
func (l *Layout) Names() []string {
	out := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		out[i] = c.Name
	}
	return out
}

// Regular returns the column index of a per-packet metric.
func (l *Layout) Regular(m Metric) int {
	idx, ok := l.regular[m]
	if !ok {
		panic(fmt.Sprintf("features: %q is not a regular metric", m))
	}
	return idx
}

// EWMA returns the column index of metric smoothed at alpha.
func (l *Layout) EWMA(m Metric, alpha float64) int {
	idx, ok := l.ewma[ewmaKey{m, alpha}]
	if !ok {
		panic(fmt.Sprintf("features: no EWMA column for %q at alpha %v", m, alpha))
	}
	return idx
}

// Windowed returns the column index of metric aggregated over win minimum
// RTTs.
func (l *Layout) Windowed(m Metric, win int) int {
	idx, ok := l.windowed[winKey{m, win}]
	if !ok {
		panic(fmt.Sprintf("features: no windowed column for %q at window %d", m, win))
	}
	return idx
}

// ByName returns the column index for a column name.
func (l *Layout) ByName(name string) (int, bool) {
	idx, ok := l.byName[name]
	return idx, ok
}

// Smoothed reports whether the layout carries EWMA or windowed columns.
func (l *Layout) Smoothed() bool {
	return len(l.Alphas) > 0 || len(l.Windows) > 0
}
