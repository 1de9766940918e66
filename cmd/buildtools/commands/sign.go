package commands

import (
	"log/slog"
	"os"

	"github.com/browser-infra/buildtools/internal/signing"
	"github.com/spf13/cobra"
)

type signConfig struct {
	signing.Config `mapstructure:",squash"`

	Input  string `mapstructure:"input"`
	Output string `mapstructure:"output"`
	Work   string `mapstructure:"work"`

	Notarize string `mapstructure:"notarize"`
	// Distributions is a YAML file listing the distributions to produce.
	Distributions    string   `mapstructure:"distributions"`
	SkipBrands       []string `mapstructure:"skip_brands"`
	Channels         []string `mapstructure:"channels"`
	DisablePackaging bool     `mapstructure:"disable_packaging"`
}

func installSignCmd(app *App) {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign, package and notarize the macOS app bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.config.Sign

			level, err := signing.ParseNotarizeLevel(cfg.Notarize)
			if err != nil {
				return app.usageError(err)
			}
			base := cfg.Config
			base.Notarize = level

			if cfg.Distributions != "" {
				f, err := os.Open(cfg.Distributions)
				if err != nil {
					return err
				}
				defer f.Close()
				if base.Distributions, err = signing.LoadDistributions(f); err != nil {
					return err
				}
			}

			opts := []signing.Options{signing.WithLogger(slog.Default())}
			if cfg.Work != "" {
				opts = append(opts, signing.WithTempDir(cfg.Work))
			}
			return signing.New(opts...).Run(cmd.Context(),
				signing.Paths{Input: cfg.Input, Output: cfg.Output, Work: cfg.Work},
				base,
				signing.RunOptions{SkipBrands: cfg.SkipBrands, Channels: cfg.Channels, DisablePackaging: cfg.DisablePackaging})
		},
	}

	c := &app.config.Sign
	cmd.Flags().StringVar(&c.Input, "input", "", "directory holding the app bundle to sign")
	cmd.Flags().StringVar(&c.Output, "output", "", "directory receiving the signed artifacts")
	cmd.Flags().StringVar(&c.Work, "work", "", "directory under which work directories are created")
	cmd.Flags().StringVar(&c.Identity, "identity", "", "code signing identity")
	cmd.Flags().StringVar(&c.InstallerIdentity, "installer-identity", "", "identity signing pkg installers")
	cmd.Flags().StringVar(&c.NotaryUser, "notary-user", "", "notarization service user")
	cmd.Flags().StringVar(&c.NotaryPassword, "notary-password", "", "notarization service password")
	cmd.Flags().StringVar(&c.NotaryTeamID, "notary-team-id", "", "notarization team identifier")
	cmd.Flags().StringVar(&c.AppProduct, "app-product", "Chromium", "name of the app bundle, without extension")
	cmd.Flags().StringVar(&c.Product, "product", "Chromium", "product name used in package names")
	cmd.Flags().StringVar(&c.Version, "version", "", "product version")
	cmd.Flags().StringVar(&c.BaseBundleID, "base-bundle-id", "org.chromium.Chromium", "bundle identifier of the app")
	cmd.Flags().StringVar(&c.ProvisioningProfile, "provisioning-profile", "", "provisioning profile embedded before signing")
	cmd.Flags().BoolVar(&c.IsChromeBranded, "is-chrome-branded", false, "sign a branded build")
	cmd.Flags().StringVar(&c.Notarize, "notarize", signing.NotarizeStaple.String(), "notarization level: none, nowait, wait-nostaple or staple")
	cmd.Flags().StringVar(&c.Distributions, "distributions", "", "YAML file listing the distributions to produce")
	cmd.Flags().StringSliceVar(&c.SkipBrands, "skip-brands", nil, `brand codes to skip, "*" skips every branded distribution`)
	cmd.Flags().StringSliceVar(&c.Channels, "channels", nil, "only produce these channels")
	cmd.Flags().BoolVar(&c.DisablePackaging, "disable-packaging", false, "only produce the signed app bundles")
	app.bindFlags("sign", cmd.Flags())

	app.cmd.AddCommand(cmd)
}
