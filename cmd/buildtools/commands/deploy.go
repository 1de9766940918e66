package commands

import (
	"errors"
	"log/slog"

	"github.com/browser-infra/buildtools/internal/deploycontent"
	"github.com/spf13/cobra"
)

func installDeployCmd(app *App) {
	cmd := &cobra.Command{
		Use:   "deploy-content [SUBDIR...]",
		Short: "Assemble the content directory deployed to test devices",
		Long: `Assemble the content directory deployed to test devices.

Each subdirectory of the input directory is linked, or copied with --copy, into the
output directory, and a stamp file is written once done.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.config.Deploy
			cfg.Subdirs = append(cfg.Subdirs, args...)
			if cfg.InputDir == "" || cfg.OutputDir == "" {
				return app.usageError(errors.New("--input-dir and --output-dir are required"))
			}
			return deploycontent.Assemble(cmd.Context(), cfg, deploycontent.WithLogger(slog.Default()))
		},
	}

	c := &app.config.Deploy
	cmd.Flags().StringVar(&c.InputDir, "input-dir", "", "directory holding the content")
	cmd.Flags().StringVar(&c.OutputDir, "output-dir", "", "directory to assemble")
	cmd.Flags().StringSliceVar(&c.Subdirs, "subdirs", nil, "subdirectories of the input directory to deploy")
	cmd.Flags().BoolVar(&c.Copy, "copy", false, "copy subdirectories instead of linking them")
	cmd.Flags().IntVar(&c.MaxDepth, "max-depth", 0, "fail when a file is nested deeper, 0 disables the check")
	cmd.Flags().StringVar(&c.Stamp, "stamp", "", "stamp file written on success")
	app.bindFlags("deploy", cmd.Flags())

	app.cmd.AddCommand(cmd)
}
