package commands

import (
	"log/slog"

	"github.com/browser-infra/buildtools/internal/wptresults"
	"github.com/browser-infra/buildtools/internal/wptrun"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type wptRunConfig struct {
	wptrun.Config `mapstructure:",squash"`

	MetricsFile string `mapstructure:"metrics_file"`
	Sink        bool   `mapstructure:"sink"`
}

func installWPTRunCmd(app *App) {
	var shardIndex, totalShards int

	cmd := &cobra.Command{
		Use:   "wpt-run [TEST...]",
		Short: "Run web platform tests with wptrunner",
		Long: `Run web platform tests with wptrunner.

Tests are selected from the WPT manifests, filtered and sharded, then run by wptrunner
while their results are processed. The command exits with the status of wptrunner.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.config.WPTRun
			cfg.Paths = append(cfg.Paths, args...)
			if cmd.Flags().Changed("shard-index") {
				cfg.ShardIndex = &shardIndex
			}
			if cmd.Flags().Changed("total-shards") {
				cfg.TotalShards = &totalShards
			}

			reg := prometheus.NewRegistry()
			opts := []wptrun.Options{
				wptrun.WithLogger(slog.Default()),
				wptrun.WithRegisterer(reg),
				wptrun.WithConsole(cmd.OutOrStdout()),
			}
			if cfg.Sink {
				sink, err := newResultSink()
				if err != nil {
					return err
				}
				if sink != nil {
					opts = append(opts, wptrun.WithSink(sink))
				}
			}

			r, err := wptrun.New(cfg.Config, opts...)
			if err != nil {
				return app.usageError(err)
			}
			code, err := r.Run(cmd.Context())
			if err != nil {
				return err
			}
			app.exitCode = code

			if cfg.MetricsFile != "" {
				return wptresults.WriteMetrics(cfg.MetricsFile, reg)
			}
			return nil
		},
	}

	c := &app.config.WPTRun
	cmd.Flags().StringVar(&c.WebTestsDir, "web-tests-dir", "", "directory holding external/wpt, wpt_internal and the port files")
	cmd.Flags().StringVarP(&c.TargetDir, "target-dir", "t", "", "build output directory holding the browser and its driver")
	cmd.Flags().StringVar(&c.ResultsDir, "results-dir", "", "results directory, layout-test-results under the target directory if empty")
	cmd.Flags().BoolVar(&c.ClobberResults, "clobber-results", false, "delete previous results instead of archiving them")
	cmd.Flags().StringVar(&c.Python, "python", "python3", "Python interpreter running wpt")
	cmd.Flags().StringVar(&c.WPTScript, "wpt-script", "", "wpt command line entry point")
	cmd.Flags().StringVar(&c.Product, "product", "chrome", "product under test")
	cmd.Flags().StringVar(&c.Binary, "binary", "", "browser binary")
	cmd.Flags().StringVar(&c.Driver, "driver", "", "driver binary")
	cmd.Flags().StringVar(&c.CertsDir, "certs-dir", "", "certificates of the test servers")
	cmd.Flags().StringSliceVar(&c.Paths, "paths", nil, "tests or directories to run")
	cmd.Flags().StringVar(&c.FlagSpecific, "flag-specific", "", "flag specific configuration to run with")
	cmd.Flags().StringSliceVar(&c.AdditionalDriverFlags, "additional-driver-flags", nil, "extra browser flags")
	cmd.Flags().BoolVar(&c.Upstream, "upstream", false, "run the upstream test suite")
	cmd.Flags().IntVar(&c.Processes, "processes", 0, "number of browsers run in parallel")
	cmd.Flags().IntVar(&c.Repeat, "repeat", 1, "number of times the tests are run")
	cmd.Flags().IntVar(&c.RetryUnexpected, "retry-unexpected", 0, "number of retries of unexpected results")
	cmd.Flags().Float64Var(&c.TimeoutMultiplier, "timeout-multiplier", 0, "multiplier of the test timeouts")
	cmd.Flags().BoolVar(&c.Headless, "headless", true, "run the browser without a display")
	cmd.Flags().BoolVar(&c.Debug, "debug", false, "test a debug build")
	cmd.Flags().BoolVar(&c.Sanitizer, "sanitizer", false, "test a sanitizer build")
	cmd.Flags().BoolVar(&c.ResetResults, "reset-results", false, "write actual text results as the new baselines")
	cmd.Flags().IntVar(&c.FailureThreshold, "failure-threshold", 0, "interrupt the run after that many unexpected results")
	cmd.Flags().IntVar(&c.CrashTimeoutThreshold, "crash-timeout-threshold", 0, "interrupt the run after that many unexpected crashes and timeouts")
	cmd.Flags().StringVar(&c.Formatter, "formatter", "grouped", "console output, grouped or mach")
	cmd.Flags().StringVar(&c.MetricsFile, "metrics-file", "", "file receiving the run metrics")
	cmd.Flags().BoolVar(&c.Sink, "sink", false, "upload results to the result sink of the LUCI context")
	app.bindFlags("wpt_run", cmd.Flags())
	cmd.Flags().IntVar(&shardIndex, "shard-index", 0, "index of the shard to run")
	cmd.Flags().IntVar(&totalShards, "total-shards", 0, "number of shards")

	app.cmd.AddCommand(cmd)
}
