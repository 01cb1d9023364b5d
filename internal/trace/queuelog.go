package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseQueueLog reads a BESS bottleneck queue log. Two line shapes occur:
//
//	stats:<port>,<enqueued>,<dequeued>,<dropped>
//	<event>,<time ns>,<port>,<seq>,<payload B>,<qsize>,<dropped>,<queued>,<batch>
//
// where event 0 is an enqueue and 1 is a dequeue. Numbers may be hex with
// a 0x prefix. Times are converted to microseconds.
func ParseQueueLog(r io.Reader) ([]QueueRecord, error) {
	var out []QueueRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		rec, err := parseQueueLine(line)
		if err != nil {
			return nil, fmt.Errorf("trace: queue log line %d: %w", lineNo, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("trace: reading queue log: %w", err)
	}
	return out, nil
}

func parseQueueLine(line string) (QueueRecord, error) {
	if rest, ok := strings.CutPrefix(line, "stats:"); ok {
		f, err := queueFields(rest, 4)
		if err != nil {
			return QueueRecord{}, err
		}
		return QueueRecord{
			Kind:     "stats",
			Port:     uint16(f[0]),
			Enqueued: float64(f[1]),
			Dequeued: float64(f[2]),
			Dropped:  float64(f[3]),
		}, nil
	}

	f, err := queueFields(line, 9)
	if err != nil {
		return QueueRecord{}, err
	}
	kind := ""
	switch f[0] {
	case 0:
		kind = "enq"
	case 1:
		kind = "deq"
	default:
		return QueueRecord{}, fmt.Errorf("unknown event %d", f[0])
	}
	return QueueRecord{
		Kind:   kind,
		TimeUs: float64(f[1]) / 1e3,
		Port:   uint16(f[2]),
		Seq:    float64(f[3]),
	}, nil
}

func queueFields(s string, want int) ([]int64, error) {
	toks := strings.Split(s, ",")
	if len(toks) != want {
		return nil, fmt.Errorf("want %d fields, got %d", want, len(toks))
	}
	out := make([]int64, want)
	for i, tok := range toks {
		// base 0 accepts both decimal and 0x-prefixed hex
		v, err := strconv.ParseInt(strings.TrimSpace(tok), 0, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
