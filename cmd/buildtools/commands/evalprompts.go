package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/browser-infra/buildtools/internal/evalprompts"
	"github.com/spf13/cobra"
)

type evalShardConfig struct {
	SourceRoot string `mapstructure:"source_root"`
	Filter     string `mapstructure:"filter"`
	TagFilter  string `mapstructure:"tag_filter"`
}

func installEvalShardCmd(app *App) {
	var shardIndex, totalShards int

	cmd := &cobra.Command{
		Use:   "eval-shard",
		Short: "List the prompt evaluation tests of a shard",
		Long: `List the prompt evaluation tests of a shard, one path per line.

Shard values are read from the flags, then from the GTEST_SHARD_INDEX and
GTEST_TOTAL_SHARDS environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.config.EvalShard

			var index, total *int
			if cmd.Flags().Changed("shard-index") {
				index = &shardIndex
			}
			if cmd.Flags().Changed("total-shards") {
				total = &totalShards
			}
			i, n, err := evalprompts.DetermineShardValues(index, total, evalprompts.WithLogger(slog.Default()))
			if err != nil {
				return app.usageError(err)
			}

			configs, err := evalprompts.DiscoverTestcaseFiles(cfg.SourceRoot)
			if err != nil {
				return err
			}
			selected, err := evalprompts.SelectTests(configs, i, n, cfg.Filter, cfg.TagFilter)
			if err != nil {
				return app.usageError(err)
			}
			for _, c := range selected {
				p, err := filepath.Rel(cfg.SourceRoot, c.TestFile)
				if err != nil {
					p = c.TestFile
				}
				fmt.Fprintln(cmd.OutOrStdout(), filepath.ToSlash(p))
			}
			return nil
		},
	}

	c := &app.config.EvalShard
	cmd.Flags().StringVar(&c.SourceRoot, "source-root", ".", "root of the source tree")
	cmd.Flags().StringVar(&c.Filter, "filter", "", `"::" separated shell patterns the test paths must match`)
	cmd.Flags().StringVar(&c.TagFilter, "tag-filter", "", `comma separated tags, "-" prefixed ones excluding tests`)
	app.bindFlags("eval_shard", cmd.Flags())
	cmd.Flags().IntVar(&shardIndex, "shard-index", 0, "index of the shard")
	cmd.Flags().IntVar(&totalShards, "total-shards", 0, "number of shards")

	app.cmd.AddCommand(cmd)
}

func installTokenUsageCmd(app *App) {
	cmd := &cobra.Command{
		Use:   "token-usage [TELEMETRY_FILE]",
		Short: "Print the token usage reported in a telemetry log",
		Long: `Print, as JSON, the token counts of the last token usage record of a telemetry log.

The log is read from the standard input when no file is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			return printTokenUsage(cmd.OutOrStdout(), r)
		},
	}

	app.cmd.AddCommand(cmd)
}

func printTokenUsage(w io.Writer, r io.Reader) error {
	usage, err := evalprompts.ExtractTokenUsage(r)
	if err != nil {
		return err
	}
	if usage == nil {
		return fmt.Errorf("no %s record found", evalprompts.TokenUsageMetric)
	}
	return json.NewEncoder(w).Encode(usage)
}
