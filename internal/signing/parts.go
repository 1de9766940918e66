package signing

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/browser-infra/buildtools/internal/cmdutils"
)

// requirement pins the signer of a part to the team of the app.
const requirement = `designated => identifier "%s" and anchor apple generic and certificate leaf[subject.OU] = "%s"`

// parts returns the products to sign, inner code first.
func parts(cfg Config) []CodeSignedProduct {
	fw := filepath.Join(cfg.AppDir(), cfg.FrameworkDir())
	helpers := filepath.Join(fw, "Helpers")
	hardened := []string{"restrict", "library", "runtime", "kill"}

	var res []CodeSignedProduct
	suffixes := []string{"helper", "helper.renderer", "helper.plugin", "helper.gpu", "helper.alerts"}
	for i, h := range cfg.HelperApps() {
		res = append(res, CodeSignedProduct{
			Path:         filepath.Join(helpers, h),
			Identifier:   cfg.BaseBundleID + "." + suffixes[i],
			Options:      hardened,
			Entitlements: "helper-entitlements.plist",
			VerifyDeep:   true,
		})
	}
	res = append(res, CodeSignedProduct{
		Path:       fw,
		Identifier: cfg.BaseBundleID + ".framework",
		Options:    hardened,
		VerifyDeep: true,
	})
	return res
}

func appPart(cfg Config) CodeSignedProduct {
	return CodeSignedProduct{
		Path:         cfg.AppDir(),
		Identifier:   cfg.BaseBundleID,
		Options:      []string{"restrict", "library", "runtime", "kill"},
		Entitlements: "app-entitlements.plist",
		VerifyDeep:   true,
	}
}

// SignPart codesigns part with the identity of cfg.
func (p Pipeline) SignPart(ctx context.Context, paths Paths, cfg Config, part CodeSignedProduct) error {
	args := []string{"--sign", cfg.Identity, "--force"}
	if cfg.Notarize.ShouldNotarize() {
		args = append(args, "--timestamp")
	} else {
		args = append(args, "--timestamp=none")
	}
	args = append(args, "--identifier", part.Identifier)
	if len(part.Options) > 0 {
		args = append(args, "--options", strings.Join(part.Options, ","))
	}
	if part.RequirementsStr != "" {
		args = append(args, "--requirements", "="+part.RequirementsStr)
	}
	if part.Entitlements != "" {
		args = append(args, "--entitlements", filepath.Join(paths.PackagingDir(cfg), part.Entitlements))
	}
	args = append(args, filepath.Join(paths.Work, part.Path))

	p.log.Info("Signing", "part", part.Path, "identifier", part.Identifier)
	_, err := p.runner.Run(ctx, cmdutils.Command{Name: "codesign", Args: args})
	return err
}

// VerifyPart checks the signature of part.
func (p Pipeline) VerifyPart(ctx context.Context, paths Paths, part CodeSignedProduct) error {
	args := []string{"--verify", "--strict", "--verbose=6"}
	if part.VerifyDeep {
		args = append(args, "--deep")
	}
	args = append(args, filepath.Join(paths.Work, part.Path))
	if _, err := p.runner.Run(ctx, cmdutils.Command{Name: "codesign", Args: args}); err != nil {
		return fmt.Errorf("signature of %s is invalid: %w", part.Path, err)
	}
	return nil
}

// signChrome signs the app in the work directory. The framework and its helpers are only
// signed when signFramework is set, otherwise they must already be.
func (p Pipeline) signChrome(ctx context.Context, paths Paths, cfg Config, signFramework bool) error {
	var todo []CodeSignedProduct
	if signFramework {
		todo = parts(cfg)
	}
	app := appPart(cfg)
	if cfg.NotaryTeamID != "" {
		app.RequirementsStr = fmt.Sprintf(requirement, cfg.BaseBundleID, cfg.NotaryTeamID)
	}
	todo = append(todo, app)

	for _, part := range todo {
		if err := p.SignPart(ctx, paths, cfg, part); err != nil {
			return err
		}
	}
	return p.VerifyPart(ctx, paths, app)
}
