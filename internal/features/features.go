// Package features defines the feature columns computed per received data
// packet: the fixed per-packet metrics, the EWMA-smoothed metrics, and the
// windowed metrics, plus the deterministic column naming used by consumers
// to look any of them up.
package features

import (
	"fmt"
	"strconv"
)

// Metric identifies one of the base metrics. Smoothed and windowed columns
// are derived from these.
type Metric int

const (
	Seq Metric = iota
	ArrivalTime
	RTT
	MinRTT
	RTTRatio
	InterarrTime
	InvInterarrTime
	PacketsLost
	PacketsLostTotal
	LossRate
	DropRate
	RetransRate
	Payload
	Wirelen
	TotalSoFar
	PayloadSoFar
	ActiveFlows
	BwFairShareFrac
	BwFairShareBps
	Tput
	TputShareFrac
	TotalTput
	TputFairShareBps
	TputToFairShareRatio
	LossEventRate
	SqrtLossEventRate
	MathisTput
)

var metricNames = map[Metric]string{
	Seq:                  "seq",
	ArrivalTime:          "arrival time us",
	RTT:                  "RTT us",
	MinRTT:               "min RTT us",
	RTTRatio:             "RTT ratio us",
	InterarrTime:         "interarrival time us",
	InvInterarrTime:      "inverse interarrival time b/s",
	PacketsLost:          "packets lost since last packet",
	PacketsLostTotal:     "packets lost total",
	LossRate:             "loss rate",
	DropRate:             "drop rate at bottleneck queue",
	RetransRate:          "retransmission rate",
	Payload:              "payload B",
	Wirelen:              "wire len B",
	TotalSoFar:           "total so far B",
	PayloadSoFar:         "payload so far B",
	ActiveFlows:          "active flows",
	BwFairShareFrac:      "bandwidth fair share frac",
	BwFairShareBps:       "bandwidth fair share b/s",
	Tput:                 "throughput b/s",
	TputShareFrac:        "throughput share",
	TotalTput:            "total throughput b/s",
	TputFairShareBps:     "throughput fair share b/s",
	TputToFairShareRatio: "throughput to fair share ratio",
	LossEventRate:        "loss event rate",
	SqrtLossEventRate:    "1/sqrt loss event rate",
	MathisTput:           "mathis model throughput b/s",
}

func (m Metric) String() string {
	if s, ok := metricNames[m]; ok {
		return s
	}
	return fmt.Sprintf("metric(%d)", int(m))
}

// Regular lists the per-packet metrics, in column order.
var Regular = []Metric{
	Seq,
	ArrivalTime,
	RTT,
	MinRTT,
	RTTRatio,
	InterarrTime,
	InvInterarrTime,
	PacketsLost,
	PacketsLostTotal,
	LossRate,
	DropRate,
	RetransRate,
	Payload,
	Wirelen,
	TotalSoFar,
	PayloadSoFar,
	ActiveFlows,
	BwFairShareFrac,
	BwFairShareBps,
}

// EWMAMetrics lists the metrics smoothed at each alpha, in column order.
var EWMAMetrics = []Metric{
	InterarrTime,
	InvInterarrTime,
	RTT,
	RTTRatio,
	LossRate,
	MathisTput,
}

// WindowedMetrics lists the metrics aggregated over each window multiple,
// in column order.
var WindowedMetrics = []Metric{
	InterarrTime,
	InvInterarrTime,
	Tput,
	TputShareFrac,
	TotalTput,
	TputFairShareBps,
	TputToFairShareRatio,
	RTT,
	RTTRatio,
	LossEventRate,
	SqrtLossEventRate,
	LossRate,
	MathisTput,
}

// DefaultAlphas returns the smoothing constants at which EWMA metrics are
// evaluated: 0.001 through 0.01 in steps of 0.001, then 0.1 through 1.0 in
// steps of 0.1.
func DefaultAlphas() []float64 {
	out := make([]float64, 0, 20)
	for i := 1; i <= 10; i++ {
		out = append(out, float64(i)/1000)
	}
	for i := 1; i <= 10; i++ {
		out = append(out, float64(i)/10)
	}
	return out
}

// DefaultWindows returns the window multiples (of the minimum RTT) at
// which windowed metrics are evaluated: powers of two up to 1024.
func DefaultWindows() []int {
	out := make([]int, 0, 11)
	for i := 0; i <= 10; i++ {
		out = append(out, 1<<i)
	}
	return out
}

// formatAlpha renders alpha the way downstream consumers expect: a whole
// number keeps one decimal place (1.0), everything else uses the shortest
// exact form (0.003, 0.1).
func formatAlpha(alpha float64) string {
	if alpha == float64(int64(alpha)) {
		return strconv.FormatFloat(alpha, 'f', 1, 64)
	}
	return strconv.FormatFloat(alpha, 'g', -1, 64)
}

// EWMAName returns the column name for metric smoothed at alpha.
func EWMAName(m Metric, alpha float64) string {
	return fmt.Sprintf("%s-ewma-alpha%s", m, formatAlpha(alpha))
}

// WindowedName returns the column name for metric aggregated over win
// minimum RTTs.
func WindowedName(m Metric, win int) string {
	return fmt.Sprintf("%s-windowed-minRtt%d", m, win)
}
