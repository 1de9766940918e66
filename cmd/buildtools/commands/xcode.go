package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/browser-infra/buildtools/internal/xcode"
	"github.com/spf13/cobra"
)

type xcodeConfig struct {
	xcode.Config `mapstructure:",squash"`

	MacToolchain string `mapstructure:"mac_toolchain"`
}

func installXcodeCmd(app *App) {
	cmd := &cobra.Command{
		Use:   "install-xcode",
		Short: "Install Xcode and its iOS simulator runtime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.config.Xcode
			if cfg.BuildVersion == "" || cfg.XcodePath == "" {
				return app.usageError(errors.New("--xcode-build-version and --xcode-path are required"))
			}

			legacy, err := xcode.New(cfg.MacToolchain, xcode.WithLogger(slog.Default())).Install(cmd.Context(), cfg.Config)
			if errors.Is(err, xcode.ErrMissingIOSVersion) {
				return app.usageError(err)
			}
			if err != nil {
				return err
			}
			if legacy {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "Installed a legacy Xcode package bundling its runtimes")
			}
			return err
		},
	}

	c := &app.config.Xcode
	cmd.Flags().StringVar(&c.MacToolchain, "mac-toolchain", "mac_toolchain", "mac_toolchain executable")
	cmd.Flags().StringVar(&c.BuildVersion, "xcode-build-version", "", "Xcode build version to install")
	cmd.Flags().StringVar(&c.XcodePath, "xcode-path", "", "where Xcode is installed")
	cmd.Flags().StringVar(&c.RuntimeCache, "runtime-cache-prefix", "", "cache directory of the simulator runtimes")
	cmd.Flags().StringVar(&c.IOSVersion, "ios-version", "", "iOS version of the simulator runtime")
	cmd.Flags().StringVar(&c.RuntimeBuild, "runtime-build", "", "build of the disk image runtime, from Xcode 15 on")
	app.bindFlags("xcode", cmd.Flags())

	app.cmd.AddCommand(cmd)
}
