package commands

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/browser-infra/buildtools/internal/fileutils"
	"github.com/browser-infra/buildtools/internal/jsonmerge"
	"github.com/spf13/cobra"
)

type jsonMergeConfig struct {
	Schema string `mapstructure:"schema"`
	Base   string `mapstructure:"base"`
	Output string `mapstructure:"output"`
	// OutputSchema prints the schema of merged documents instead of merging.
	OutputSchema bool `mapstructure:"output_schema"`
}

func installJSONMergeCmd(app *App) {
	cmd := &cobra.Command{
		Use:   "jsonmerge HEAD...",
		Short: "Merge JSON documents following the strategies of a schema",
		Long: `Merge JSON documents following the mergeStrategy annotations of a JSON schema.

Each HEAD document is merged in turn into the base, or into the result of the previous
merge when no base is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.config.JSONMerge
			if cfg.Schema == "" {
				return app.usageError(errors.New("--schema is required"))
			}
			if !cfg.OutputSchema && len(args) == 0 {
				return app.usageError(errors.New("at least one document to merge is required"))
			}

			var schema map[string]any
			if err := fileutils.ParseJSONFile(cfg.Schema, cmd.InOrStdin(), &schema); err != nil {
				return err
			}
			m, err := jsonmerge.New(schema, jsonmerge.WithLogger(slog.Default()))
			if err != nil {
				return err
			}

			var result any
			if cfg.OutputSchema {
				if result, err = m.GetSchema(nil); err != nil {
					return err
				}
			} else {
				if cfg.Base != "" {
					if err := fileutils.ParseJSONFile(cfg.Base, cmd.InOrStdin(), &result); err != nil {
						return err
					}
				}
				for _, path := range args {
					var head any
					if err := fileutils.ParseJSONFile(path, cmd.InOrStdin(), &head); err != nil {
						return err
					}
					if result, err = m.Merge(result, head); err != nil {
						return err
					}
				}
			}

			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')
			if cfg.Output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return fileutils.AtomicWrite(cfg.Output, data)
		},
	}

	c := &app.config.JSONMerge
	cmd.Flags().StringVar(&c.Schema, "schema", "", "JSON schema annotated with merge strategies")
	cmd.Flags().StringVar(&c.Base, "base", "", "document the heads are merged into")
	cmd.Flags().StringVarP(&c.Output, "output", "o", "", "file to write, standard output if empty")
	cmd.Flags().BoolVar(&c.OutputSchema, "output-schema", false, "print the schema of merged documents")
	app.bindFlags("jsonmerge", cmd.Flags())

	app.cmd.AddCommand(cmd)
}
