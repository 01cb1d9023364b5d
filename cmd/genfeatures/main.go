// Command genfeatures turns captured congestion control experiments into
// per-packet feature tables for model training. Each experiment tarball
// contains the sender and receiver packet captures, the flow parameters,
// and the bottleneck queue log; the output is one CSV per flow, a
// combined CSV per experiment, and a run-wide summary.
package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cmu-snap/unfair/internal/extract"
	"github.com/cmu-snap/unfair/internal/features"
	"github.com/cmu-snap/unfair/internal/report"
	"github.com/cmu-snap/unfair/internal/synth"
	"github.com/cmu-snap/unfair/internal/trace"
)

func main() {
	configPath := flag.String("c", "", "config file path")
	expDir := flag.String("exp-dir", "", "directory of experiment tarballs")
	outDir := flag.String("out-dir", "", "output directory")
	workers := flag.Int("workers", 0, "concurrent experiments (0 = config value)")
	skipSmoothed := flag.Bool("skip-smoothed", false, "skip EWMA and windowed features")
	maxWin := flag.Int("max-win", 0, "largest windowed-feature multiple (0 = config value)")
	demo := flag.Bool("demo", false, "run on a synthetic two-flow scenario")
	demoSeed := flag.Int64("demo-seed", 0, "seed for the demo scenario (0 = config value)")
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *expDir != "" {
		cfg.ExpDir = *expDir
	}
	if *outDir != "" {
		cfg.OutDir = *outDir
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *skipSmoothed {
		cfg.SkipSmoothed = true
	}
	if *maxWin > 0 {
		cfg.MaxWin = *maxWin
	}
	if *demo {
		cfg.Demo = true
	}
	if *demoSeed != 0 {
		cfg.DemoSeed = *demoSeed
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg Config) error {
	logger := log.New(os.Stderr, "genfeatures: ", log.LstdFlags)

	layout := features.DefaultLayout()
	switch {
	case cfg.SkipSmoothed:
		layout = features.RegularLayout()
	case cfg.MaxWin > 0:
		var wins []int
		for _, w := range features.DefaultWindows() {
			if w <= cfg.MaxWin {
				wins = append(wins, w)
			}
		}
		layout = features.NewLayout(features.DefaultAlphas(), wins)
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return err
	}
	summary, err := report.NewSummaryCSVWriter(
		filepath.Join(cfg.OutDir, "summary.csv"), layout.Windows)
	if err != nil {
		return err
	}
	var summaryMu sync.Mutex

	process := func(exp *trace.Experiment) error {
		res, err := extract.ProcessExperiment(exp, extract.Config{
			Layout: layout,
			Log:    logger,
		})
		if err != nil {
			return err
		}
		packets, err := writeExperiment(cfg.OutDir, exp, layout, res)
		if err != nil {
			return err
		}
		summaryMu.Lock()
		summary.OnSummary(report.SummaryRow{
			Experiment:      exp.Name,
			Flows:           len(exp.Flows),
			Packets:         packets,
			WinErrors:       res.WinErrors,
			SmallestSafeWin: res.SmallestSafeWin,
		})
		summaryMu.Unlock()
		return nil
	}

	if cfg.Demo {
		exp := synth.Build(synth.TwoFlowContention(cfg.DemoSeed))
		exp.Relativize()
		if err := process(exp); err != nil {
			return err
		}
		return summary.Close()
	}

	entries, err := os.ReadDir(cfg.ExpDir)
	if err != nil {
		return err
	}
	var g errgroup.Group
	if cfg.Workers > 0 {
		g.SetLimit(cfg.Workers)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tar.gz") {
			continue
		}
		path := filepath.Join(cfg.ExpDir, entry.Name())
		g.Go(func() error {
			exp, err := loadExperiment(path, logger)
			if err == nil {
				err = process(exp)
			}
			if err != nil {
				// A bad experiment must not sink the whole run.
				logger.Printf("warning: skipping %s: %v", path, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return summary.Close()
}

// loadExperiment untars one experiment and decodes its parts: the flow
// parameters, the sender- and receiver-side captures, and the bottleneck
// queue log.
func loadExperiment(path string, logger *log.Logger) (*trace.Experiment, error) {
	exp, err := trace.ParseExpName(filepath.Base(path))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer gz.Close()

	var params, clientPcap, serverPcap, queueLog []byte
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		var dst *[]byte
		switch base := filepath.Base(hdr.Name); {
		case base == exp.Name+".json":
			dst = &params
		case base == "client-tcpdump-"+exp.Name+".pcap":
			dst = &clientPcap
		case base == "server-tcpdump-"+exp.Name+".pcap":
			dst = &serverPcap
		case strings.Contains(base, "-forward-bottleneckqueue-"):
			dst = &queueLog
		default:
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("reading %s from %s: %w", hdr.Name, path, err)
		}
		*dst = data
	}

	if params == nil {
		return nil, fmt.Errorf("%s: no params file", path)
	}
	if clientPcap == nil || serverPcap == nil {
		return nil, fmt.Errorf("%s: missing packet captures", path)
	}

	keys, flowCCA, err := trace.ParseParams(bytes.NewReader(params))
	if err != nil {
		return nil, err
	}
	client, err := trace.ParsePcap(bytes.NewReader(clientPcap), flowCCA)
	if err != nil {
		return nil, fmt.Errorf("%s: client capture: %w", path, err)
	}
	server, err := trace.ParsePcap(bytes.NewReader(serverPcap), flowCCA)
	if err != nil {
		return nil, fmt.Errorf("%s: server capture: %w", path, err)
	}
	if queueLog != nil {
		exp.QueueLog, err = trace.ParseQueueLog(bytes.NewReader(queueLog))
		if err != nil {
			return nil, err
		}
	} else {
		logger.Printf("warning: %s has no bottleneck queue log", exp.Name)
	}

	exp.Flows = trace.AssembleFlows(keys, flowCCA, client, server)
	exp.Relativize()
	return exp, nil
}

// writeExperiment writes one CSV per flow and a combined CSV holding all
// of the experiment's rows. Returns the total row count.
func writeExperiment(outDir string, exp *trace.Experiment, layout *features.Layout, res *extract.Result) (int, error) {
	combined, err := report.NewCSVRecorder(
		filepath.Join(outDir, exp.Name+".csv"), layout.Names())
	if err != nil {
		return 0, err
	}

	packets := 0
	buf := make([]float64, layout.NumColumns())
	for i, fr := range res.Flows {
		perFlow, err := report.NewCSVRecorder(
			filepath.Join(outDir, exp.Name+"-"+exp.Flows[i].Key.String()+".csv"),
			layout.Names())
		if err != nil {
			_ = combined.Close()
			return 0, err
		}
		rec := report.MultiRecorder(perFlow, combined)
		for j := 0; j < fr.NumRows(); j++ {
			fr.Row(j, buf)
			rec.OnRow(buf)
			packets++
		}
		if err := perFlow.Close(); err != nil {
			_ = combined.Close()
			return 0, err
		}
	}
	return packets, combined.Close()
}
