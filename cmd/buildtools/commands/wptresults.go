package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/browser-infra/buildtools/internal/wptresults"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type wptResultsConfig struct {
	wptresults.Config `mapstructure:",squash"`

	// Input is the raw mozlog file, "-" reading the standard input.
	Input       string `mapstructure:"input"`
	Follow      bool   `mapstructure:"follow"`
	ResultsJSON string `mapstructure:"results_json"`
	WPTReport   string `mapstructure:"wpt_report"`
	MetricsFile string `mapstructure:"metrics_file"`
	// Sink uploads results to the result sink of the LUCI context.
	Sink bool `mapstructure:"sink"`
}

func installWPTResultsCmd(app *App) {
	var shardIndex int

	cmd := &cobra.Command{
		Use:   "wpt-results",
		Short: "Process the mozlog events of a web platform tests run",
		Long: `Process the mozlog events of a web platform tests run.

Results are compared to their expectations, artifacts and diffs are written to the
artifacts directory, and the results JSON files are produced for the results viewer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.config.WPTResults
			if cmd.Flags().Changed("shard-index") {
				cfg.ShardIndex = &shardIndex
			}
			if cfg.Input == "" {
				return app.usageError(errors.New("--input is required"))
			}
			if cfg.Follow && cfg.Input == "-" {
				return app.usageError(errors.New("--follow cannot read the standard input"))
			}
			return processWPTResults(cmd.Context(), cfg, cmd.InOrStdin())
		},
	}

	c := &app.config.WPTResults
	cmd.Flags().StringVarP(&c.Input, "input", "i", "", `raw mozlog event file, "-" for the standard input`)
	cmd.Flags().BoolVar(&c.Follow, "follow", false, "keep reading the event file while the runner writes it")
	cmd.Flags().StringVar(&c.ResultsJSON, "results-json", "", "results JSON written by the runner, to annotate")
	cmd.Flags().StringVar(&c.WPTReport, "wpt-report", "", "wptreport JSON lines of every retry, to consolidate")
	cmd.Flags().StringVar(&c.MetricsFile, "metrics-file", "", "file receiving the run metrics")
	cmd.Flags().BoolVar(&c.Sink, "sink", false, "upload results to the result sink of the LUCI context")
	cmd.Flags().StringVar(&c.ArtifactsDir, "artifacts-dir", "", "directory receiving artifacts and results")
	cmd.Flags().StringVar(&c.WebTestsDir, "web-tests-dir", "", "directory holding baselines and WPT metadata")
	cmd.Flags().StringSliceVar(&c.PlatformDirs, "platform-dirs", nil, "baseline directories searched first, relative to the web tests directory")
	cmd.Flags().BoolVar(&c.ResetResults, "reset-results", false, "write actual text results as the new baselines")
	cmd.Flags().BoolVar(&c.Sanitizer, "sanitizer", false, "only report crashes and timeouts")
	cmd.Flags().IntVar(&c.FailureThreshold, "failure-threshold", 0, "interrupt the run after that many unexpected results")
	cmd.Flags().IntVar(&c.CrashTimeoutThreshold, "crash-timeout-threshold", 0, "interrupt the run after that many unexpected crashes and timeouts")
	cmd.Flags().StringVar(&c.Product, "product", "chrome", "product under test")
	cmd.Flags().StringVar(&c.Driver, "driver", "chromedriver", "driver of the product")
	app.bindFlags("wpt_results", cmd.Flags())
	cmd.Flags().IntVar(&shardIndex, "shard-index", 0, "index of the shard the events come from")

	app.cmd.AddCommand(cmd)
}

func processWPTResults(ctx context.Context, cfg wptResultsConfig, stdin io.Reader) (err error) {
	manifest, err := wptresults.LoadWebTestsManifest(cfg.WebTestsDir)
	if err != nil {
		return err
	}

	opts := []wptresults.Options{wptresults.WithLogger(slog.Default())}
	if !cfg.Follow {
		// The runner is gone by the time a saved log is processed.
		opts = append(opts, wptresults.WithAbort(func(pid int) {
			slog.Warn("Failure threshold reached", "runner", pid)
		}))
	}
	if cfg.Sink {
		sink, err := newResultSink()
		if err != nil {
			return err
		}
		if sink != nil {
			opts = append(opts, wptresults.WithSink(sink))
		}
	}

	reg := prometheus.NewRegistry()
	p, err := wptresults.New(cfg.Config, manifest, reg, opts...)
	if err != nil {
		return err
	}

	p.Start(ctx)
	switch {
	case cfg.Follow:
		err = p.Follow(ctx, cfg.Input)
	case cfg.Input == "-":
		err = p.ReadStream(ctx, stdin)
	default:
		err = readEventFile(ctx, p, cfg.Input)
	}
	if err = errors.Join(err, p.Close()); err != nil {
		return err
	}
	if errs := p.EventErrors(); len(errs) > 0 {
		slog.Warn("Some events could not be processed", "count", len(errs), "error", errors.Join(errs...))
	}
	if p.Interrupted() {
		slog.Warn("The run was interrupted, results are partial")
	}

	var raw io.Reader
	if cfg.ResultsJSON != "" {
		f, err := os.Open(cfg.ResultsJSON)
		if err != nil {
			return err
		}
		defer f.Close()
		raw = f
	}
	if err := p.ProcessResultsJSON(raw); err != nil {
		return err
	}
	if cfg.WPTReport != "" {
		if err := p.ProcessWPTReport(ctx, cfg.WPTReport); err != nil {
			return err
		}
	}
	if cfg.MetricsFile != "" {
		return wptresults.WriteMetrics(cfg.MetricsFile, reg)
	}
	return nil
}

func readEventFile(ctx context.Context, p *wptresults.Processor, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return p.ReadStream(ctx, f)
}

// newResultSink returns the result sink of the LUCI context, nil when there is none.
func newResultSink() (*wptresults.ResultSink, error) {
	cfg, err := wptresults.SinkConfigFromLUCIContext()
	if err == nil {
		var s *wptresults.ResultSink
		s, err = wptresults.NewResultSink(slog.Default(), cfg)
		if err == nil {
			return s, nil
		}
	}
	if errors.Is(err, wptresults.ErrNoResultSink) {
		slog.Warn("No result sink available, results are not uploaded")
		return nil, nil
	}
	return nil, err
}
