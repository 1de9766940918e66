package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/browser-infra/buildtools/internal/actions"
	"github.com/spf13/cobra"
)

func installActionsCmd(app *App) {
	cmd := &cobra.Command{
		Use:   "extract-actions",
		Short: "Add the user actions recorded in the sources to actions.xml",
		Long: `Add the user actions recorded in the sources to actions.xml.

Sources are scanned for recorded action names and HTML pages for metric attributes.
Missing actions are added with placeholder metadata and the registry is rewritten in
its canonical form. With --check, an out of date registry fails the command instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.config.Actions
			if cfg.XMLPath == "" || cfg.SourceRoot == "" {
				return app.usageError(errors.New("--xml and --source-root are required"))
			}

			added, err := actions.Update(cmd.Context(), cfg, actions.WithLogger(slog.Default()))
			if errors.Is(err, actions.ErrOutdated) && len(added) > 0 {
				err = fmt.Errorf("%w: %d actions missing", err, len(added))
			}
			if err != nil {
				return err
			}
			for _, name := range added {
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", name)
			}
			return nil
		},
	}

	c := &app.config.Actions
	cmd.Flags().StringVar(&c.XMLPath, "xml", "", "actions.xml registry")
	cmd.Flags().StringVar(&c.SourceRoot, "source-root", "", "root of the source tree")
	cmd.Flags().StringSliceVar(&c.Dirs, "dirs", []string{"."}, "directories scanned for recorded actions, relative to the source root")
	cmd.Flags().StringSliceVar(&c.HTMLDirs, "html-dirs", nil, "directories scanned for HTML metric attributes, relative to the source root")
	cmd.Flags().BoolVar(&c.Check, "check", false, "fail if the registry is not up to date instead of rewriting it")
	app.bindFlags("actions", cmd.Flags())

	app.cmd.AddCommand(cmd)
}
