package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/browser-infra/buildtools/internal/fileutils"
	"github.com/browser-infra/buildtools/internal/policydoc"
	"github.com/spf13/cobra"
)

type policyDocConfig struct {
	policydoc.Config `mapstructure:",squash"`

	Templates string `mapstructure:"templates"`
	Output    string `mapstructure:"output"`
}

func installPolicyDocCmd(app *App) {
	cmd := &cobra.Command{
		Use:   "policy-doc",
		Short: "Render the HTML documentation of the enterprise policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.config.PolicyDoc
			if cfg.Templates == "" {
				return app.usageError(fmt.Errorf("--templates is required"))
			}

			f, err := os.Open(cfg.Templates)
			if err != nil {
				return err
			}
			defer f.Close()
			t, err := policydoc.LoadTemplates(f)
			if err != nil {
				return err
			}

			doc, err := policydoc.New(cfg.Config, t.Messages, policydoc.WithLogger(slog.Default())).Write(t.Policies)
			if err != nil {
				return err
			}
			if cfg.Output == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), doc)
				return err
			}
			return fileutils.AtomicWrite(cfg.Output, []byte(doc))
		},
	}

	c := &app.config.PolicyDoc
	cmd.Flags().StringVar(&c.Templates, "templates", "", "JSON policy templates with their messages")
	cmd.Flags().StringVarP(&c.Output, "output", "o", "", "HTML file to write, standard output if empty")
	cmd.Flags().StringVar(&c.AppName, "app-name", "Chromium", "name of the browser")
	cmd.Flags().StringVar(&c.FrameName, "frame-name", "Chromium Frame", "name of the embedded frame")
	cmd.Flags().StringVar(&c.OSName, "os-name", "Chromium OS", "name of the operating system")
	cmd.Flags().StringVar(&c.WebviewName, "webview-name", "Chromium WebView", "name of the Android WebView")
	cmd.Flags().StringVar(&c.AndroidWebviewRestrictionPrefix, "android-webview-restriction-prefix", "com.android.browser:", "prefix of WebView restriction names")
	cmd.Flags().StringVar(&c.IntuneCategory, "intune-category", "", "Intune category of the policies")
	cmd.Flags().StringVar(&c.AtomicGroupsURL, "atomic-groups-url", "", "location of the atomic groups page")
	cmd.Flags().StringVar(&c.Build, "build", "chromium", "build flavor, chromium or chrome")
	cmd.Flags().StringVar(&c.Version, "version", "", "product version")
	app.bindFlags("policy_doc", cmd.Flags())

	app.cmd.AddCommand(cmd)
}
