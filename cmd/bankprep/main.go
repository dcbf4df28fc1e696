// Command bankprep trains and replays the bank-marketing feature pipeline.
//
// Usage:
//
//	bankprep train    -config bankprep.yaml -input bank-additional-full.csv -metric test_f1=0.41
//	bankprep best-run -config bankprep.yaml
//	bankprep prepare  -config bankprep.yaml -input new_customers.csv -output engineered.csv
//	bankprep score    -config bankprep.yaml -input engineered.csv -output predictions.csv
//
// prepare and score use the artifact of the best tracked run unless
// -artifact names one explicitly.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahrav/go-bankprep/infrastructure/dataio"
	"github.com/ahrav/go-bankprep/infrastructure/middleware"
	"github.com/ahrav/go-bankprep/internal/application"
	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

const usage = `usage: bankprep <command> [flags]

commands:
  train     fit the preprocessor on a raw file and record the run
  best-run  print the best tracked run
  prepare   engineer features of a raw file into an engineered CSV
  score     preprocess an engineered CSV and write model predictions
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application.ConfigureLogging(os.Stderr)
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "train":
		err = runTrain(ctx, args[1:], stdout)
	case "best-run":
		err = runBestRun(ctx, args[1:], stdout)
	case "prepare":
		err = runPrepare(ctx, args[1:], stdout)
	case "score":
		err = runScore(ctx, args[1:], stdout)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		slog.ErrorContext(ctx, "command failed", "command", args[0], "error", err)
		fmt.Fprintf(stderr, "bankprep %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

// commonFlags are shared by every command.
type commonFlags struct {
	config      string
	metricsFile string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", "", "Path to the YAML configuration (defaults apply when empty)")
	fs.StringVar(&c.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile on exit")
}

// setup loads configuration and builds components with a private metrics
// registry. The returned flush writes the registry when -metrics-file is set.
func (c *commonFlags) setup() (*application.Components, func() error, error) {
	loader, err := application.NewConfigLoader()
	if err != nil {
		return nil, nil, err
	}
	var cfg *application.PipelineConfig
	if c.config == "" {
		cfg, err = loader.Parse(nil)
	} else {
		cfg, err = loader.LoadFromFile(c.config)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	reg := prometheus.NewRegistry()
	components, err := application.NewComponents(cfg, middleware.NewPrometheusMetrics(reg))
	if err != nil {
		return nil, nil, err
	}

	flush := func() error {
		if c.metricsFile == "" {
			return nil
		}
		return prometheus.WriteToTextfile(c.metricsFile, reg)
	}
	return components, flush, nil
}

// metricFlags collects repeated -metric name=value flags.
type metricFlags map[string]float64

func (m metricFlags) String() string { return fmt.Sprint(map[string]float64(m)) }

func (m metricFlags) Set(s string) error {
	name, raw, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("metric must be name=value, got %q", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("metric %s: %w", name, err)
	}
	m[strings.TrimSpace(name)] = v
	return nil
}

func runTrain(ctx context.Context, args []string, stdout io.Writer) (err error) {
	var (
		common  commonFlags
		input   string
		runID   string
		metrics = metricFlags{}
	)
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	common.register(fs)
	fs.StringVar(&input, "input", "", "Raw delimited training file (required)")
	fs.StringVar(&runID, "run-id", "", "Run id (generated when empty)")
	fs.Var(metrics, "metric", "Validation metric name=value to record with the run (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if input == "" {
		return fmt.Errorf("-input is required")
	}

	c, flush, err := common.setup()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, flush()) }()

	records, err := dataio.Reader{
		Delimiter:   c.Config.InputDelimiter(),
		RowIDColumn: c.Config.Input.RowIDColumn,
	}.ReadFile(input)
	if err != nil {
		return err
	}

	trainer, err := c.NewTrainer(runID)
	if err != nil {
		return err
	}
	res, err := trainer.Train(ctx, records, application.WithRunMetrics(metrics))
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "run_id=%s\nexperiment=%s\nartifact=%s\nrows=%d\ncolumns=%d\n",
		res.Run.ID, res.Run.Experiment, res.Run.ArtifactKey, res.Matrix.Len(), res.Matrix.Width())
	return nil
}

func runBestRun(ctx context.Context, args []string, stdout io.Writer) error {
	var (
		common commonFlags
		metric string
	)
	fs := flag.NewFlagSet("best-run", flag.ContinueOnError)
	common.register(fs)
	fs.StringVar(&metric, "metric", "", "Metric to maximize (defaults to tracking.metric)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, _, err := common.setup()
	if err != nil {
		return err
	}
	if metric == "" {
		metric = c.Config.Tracking.Metric
	}

	run, err := c.Tracker.BestRun(ctx, c.Config.ExperimentName(), metric)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "run_id=%s\nexperiment=%s\n%s=%s\nartifact=%s\nstarted_at=%s\n",
		run.ID, run.Experiment, metric, strconv.FormatFloat(run.Metrics[metric], 'g', -1, 64),
		run.ArtifactKey, run.StartedAt.Format(time.RFC3339))
	return nil
}

// ioFlags are shared by prepare and score.
type ioFlags struct {
	commonFlags
	input    string
	output   string
	artifact string
}

func (f *ioFlags) parse(name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	f.register(fs)
	fs.StringVar(&f.input, "input", "", "Input file (required)")
	fs.StringVar(&f.output, "output", "", "Output file (required)")
	fs.StringVar(&f.artifact, "artifact", "", "Artifact key of the preprocessor (defaults to the best run's)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if f.input == "" || f.output == "" {
		return fmt.Errorf("-input and -output are required")
	}
	return nil
}

// inferencer loads the requested or best-run preprocessor and wraps it.
func (f *ioFlags) inferencer(
	ctx context.Context,
	c *application.Components,
	server ports.ModelServer,
) (*application.Inferencer, error) {
	loader, err := c.NewArtifactLoader()
	if err != nil {
		return nil, err
	}

	var p ports.FittedPreprocessor
	if f.artifact != "" {
		p, err = loader.Load(ctx, f.artifact)
	} else {
		var run domain.Run
		p, run, err = loader.LoadBest(ctx, c.Config.ExperimentName(), c.Config.Tracking.Metric)
		if err == nil {
			slog.InfoContext(ctx, "using best run", "run_id", run.ID, "artifact", run.ArtifactKey)
		}
	}
	if err != nil {
		return nil, err
	}
	return c.NewInferencer(p, server)
}

func runPrepare(ctx context.Context, args []string, stdout io.Writer) (err error) {
	var f ioFlags
	if err := f.parse("prepare", args); err != nil {
		return err
	}
	c, flush, err := f.setup()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, flush()) }()

	inf, err := f.inferencer(ctx, c, nil)
	if err != nil {
		return err
	}
	n, err := inf.PrepareFile(ctx, f.input, f.output)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "rows=%d\noutput=%s\n", n, f.output)
	return nil
}

func runScore(ctx context.Context, args []string, stdout io.Writer) (err error) {
	var f ioFlags
	if err := f.parse("score", args); err != nil {
		return err
	}
	c, flush, err := f.setup()
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, flush()) }()

	server, err := c.NewModelServer()
	if err != nil {
		return err
	}
	inf, err := f.inferencer(ctx, c, server)
	if err != nil {
		return err
	}
	n, err := inf.ScoreFile(ctx, f.input, f.output)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "rows=%d\noutput=%s\n", n, f.output)
	return nil
}
