package extract

import (
	"math"
	"testing"
)

func TestIntervalWeights(t *testing.T) {
	got := intervalWeights(8)
	want := []float64{1, 1, 1, 1, 0.8, 0.6, 0.4, 0.2}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("weight[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	e := newLossEvents()
	if math.Abs(e.weightTotal-6) > 1e-12 {
		t.Errorf("weightTotal = %v, want 6", e.weightTotal)
	}
}

func TestLossEventsNeverLost(t *testing.T) {
	e := newLossEvents()
	if got := e.update(10, 0, 0, 50000, 49000, 30000); got != 0 {
		t.Errorf("rate with no losses = %v, want 0", got)
	}
	// An unknown loss estimate with no accumulated losses also yields
	// zero.
	if got := e.update(11, -1, 0, 51000, 50000, 30000); got != 0 {
		t.Errorf("rate with unknown loss = %v, want 0", got)
	}
}

func TestLossEventsFirstEvent(t *testing.T) {
	e := newLossEvents()
	got := e.update(10, 2, 2, 50000, 40000, 30000)
	if got != 0.1 {
		t.Errorf("first event rate = %v, want 0.1", got)
	}
	if e.startIdx != 1 || e.startTime != 0 {
		t.Errorf("seeded event = (%v, %v), want (1, 0)", e.startIdx, e.startTime)
	}
}

func TestLossEventsGrowingEvent(t *testing.T) {
	e := newLossEvents()
	e.update(10, 2, 2, 50000, 40000, 30000)

	// No new losses, but the unfinished event keeps counting.
	got := e.update(12, 0, 2, 60000, 55000, 30000)
	want := 6.0 / (12 + 2 - 1)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("growing event rate = %v, want %v", got, want)
	}
}

func TestLossEventsCloseEvent(t *testing.T) {
	e := newLossEvents()
	e.update(10, 2, 2, 50000, 40000, 30000)

	// A loss a full RTT after the event's start closes it.
	got := e.update(20, 1, 3, 100000, 90000, 30000)

	if len(e.intervals) != 1 || e.intervals[0] != 21 {
		t.Fatalf("closed intervals = %v, want [21]", e.intervals)
	}
	if e.startIdx != 22 {
		t.Errorf("new event start = %v, want 22", e.startIdx)
	}
	// Current event size 1 vs. the shifted history: the closed interval
	// at full weight wins.
	want := 6.0 / 21
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("rate = %v, want %v", got, want)
	}
}

func TestLossEventsDequeBound(t *testing.T) {
	e := newLossEvents()
	for i := 1; i <= 10; i++ {
		e.push(float64(i))
	}
	if len(e.intervals) != numLossIntervals {
		t.Fatalf("deque length = %d, want %d", len(e.intervals), numLossIntervals)
	}
	// Most recent first.
	if e.intervals[0] != 10 || e.intervals[7] != 3 {
		t.Errorf("deque = %v", e.intervals)
	}
}
