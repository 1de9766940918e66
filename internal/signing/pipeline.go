// Package signing customizes, signs, packages and notarizes macOS app bundles.
//
// A run takes an unsigned app bundle and a list of distributions. Each distribution is a
// flavor of the app (channel, brand code, packaging formats). Distributions producing the same
// app bundle share the signed copy, and distributions sharing a framework bundle identifier
// reuse the framework signed first, so that binary diff updates between flavors stay small.
package signing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/browser-infra/buildtools/internal/cmdutils"
	"github.com/browser-infra/buildtools/internal/fileutils"
	"github.com/google/uuid"
	"github.com/ubuntu/decorate"
)

// Pipeline runs the signing steps through external tools.
type Pipeline struct {
	runner       cmdutils.Runner
	tempDir      string
	pollInterval time.Duration

	log *slog.Logger
}

type options struct {
	runner       cmdutils.Runner
	tempDir      string
	pollInterval time.Duration
	log          *slog.Logger
}

// Options represents an optional function to override Pipeline default values.
type Options func(*options)

// WithLogger sets the logger of the pipeline.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// WithTempDir sets the directory under which work directories are created.
func WithTempDir(dir string) Options {
	return func(o *options) {
		o.tempDir = dir
	}
}

// WithPollInterval sets the delay between two notarization status requests.
func WithPollInterval(d time.Duration) Options {
	return func(o *options) {
		o.pollInterval = d
	}
}

// New returns a Pipeline.
func New(args ...Options) Pipeline {
	opts := options{
		runner:       cmdutils.ExecRunner{},
		pollInterval: 30 * time.Second,
		log:          slog.Default(),
	}
	for _, f := range args {
		f(&opts)
	}

	return Pipeline{
		runner:       opts.runner,
		tempDir:      opts.tempDir,
		pollInterval: opts.pollInterval,
		log:          opts.log,
	}
}

// RunOptions select what a run produces.
type RunOptions struct {
	// SkipBrands removes distributions by brand code. "*" removes all branded ones.
	SkipBrands []string
	// Channels keeps only the listed channels.
	Channels []string
	// DisablePackaging only produces the signed app bundles.
	DisablePackaging bool
}

// Run checks paths and signs every distribution of cfg.
func (p Pipeline) Run(ctx context.Context, paths Paths, cfg Config, opts RunOptions) (err error) {
	defer decorate.OnError(&err, "signing failed")

	if _, err := os.Stat(filepath.Join(paths.Input, cfg.AppDir())); err != nil {
		return fmt.Errorf("no app bundle to sign: %w", err)
	}
	if err := os.MkdirAll(paths.Output, 0750); err != nil {
		return err
	}
	if len(cfg.Distributions) == 0 {
		cfg.Distributions = []Distribution{DefaultDistribution()}
	}
	return p.SignAll(ctx, paths, cfg, opts)
}

// signedFramework is a framework signed for a first distribution.
type signedFramework struct {
	// dir holds the signed app containing the framework.
	dir string
	app string
	// changes is the number of files signing added or modified in the framework.
	changes int
}

func (s signedFramework) frameworkPath(cfg Config) string {
	return filepath.Join(s.app, cfg.FrameworkDir())
}

type customizedDistribution struct {
	cfg Config
	dir string
}

// SignAll produces the signed app of each distribution, then its packages. Apps and packages
// are notarized according to cfg.Notarize. The installer tools are packaged last.
func (p Pipeline) SignAll(ctx context.Context, paths Paths, cfg Config, opts RunOptions) (err error) {
	defer decorate.OnError(&err, "could not sign all distributions")

	dists, err := FilterDistributions(cfg.Distributions, opts.SkipBrands, opts.Channels)
	if err != nil {
		return err
	}

	notaryDir, err := p.mkdtemp("notary")
	if err != nil {
		return err
	}
	defer p.removeAll(notaryDir)

	destBase := notaryDir
	if opts.DisablePackaging && !cfg.Notarize.ShouldNotarize() {
		destBase = paths.Output
	}

	var built []customizedDistribution
	var appIDs []uuid.UUID
	doneDirs := make(map[string]bool)
	frameworks := make(map[string]signedFramework)
	for _, d := range dists {
		distCfg := d.ToConfig(cfg)
		dest := filepath.Join(destBase, d.WorkDirName())
		built = append(built, customizedDistribution{cfg: distCfg, dir: dest})

		id, err := p.customizeDistributionOnce(ctx, paths, cfg, distCfg, dest, notaryDir, doneDirs, frameworks)
		if err != nil {
			return err
		}
		if id != uuid.Nil {
			appIDs = append(appIDs, id)
		}
	}

	if cfg.Notarize.ShouldWait() {
		if err := p.WaitForResults(ctx, appIDs, cfg); err != nil {
			return err
		}
	}
	if cfg.Notarize.ShouldStaple() {
		stapled := make(map[string]bool)
		for _, b := range built {
			if stapled[b.dir] {
				continue
			}
			stapled[b.dir] = true
			if err := p.stapleChrome(ctx, paths.ReplaceWork(b.dir), b.cfg); err != nil {
				return err
			}
		}
	}

	if !opts.DisablePackaging {
		if err := p.packageAll(ctx, paths, cfg, built); err != nil {
			return err
		}
	} else if destBase != paths.Output {
		for _, b := range built {
			dst := filepath.Join(paths.Output, filepath.Base(b.dir), b.cfg.AppDir())
			if _, err := os.Stat(dst); err == nil {
				continue
			}
			if err := fileutils.CopyTree(filepath.Join(b.dir, b.cfg.AppDir()), dst); err != nil {
				return err
			}
		}
	}

	p.removeAll(notaryDir)
	return p.packageInstallerTools(ctx, paths, cfg)
}

// customizeDistributionOnce signs the app of distCfg into dest unless an earlier
// distribution already did, and submits it for notarization.
func (p Pipeline) customizeDistributionOnce(ctx context.Context, paths Paths, cfg, distCfg Config, dest, notaryDir string, done map[string]bool, frameworks map[string]signedFramework) (uuid.UUID, error) {
	work, err := p.mkdtemp("work")
	if err != nil {
		return uuid.Nil, err
	}
	defer p.removeAll(work)

	if done[dest] {
		p.log.Debug("Reusing signed app", "dir", dest)
		return uuid.Nil, nil
	}
	done[dest] = true

	if err := p.customizeAndSignChrome(ctx, paths.ReplaceWork(work), cfg, distCfg, dest, frameworks); err != nil {
		return uuid.Nil, err
	}
	if !cfg.Notarize.ShouldNotarize() {
		return uuid.Nil, nil
	}

	zip := filepath.Join(notaryDir, distCfg.PackagingBasename()+".zip")
	if err := os.RemoveAll(zip); err != nil {
		return uuid.Nil, err
	}
	if _, err := p.runner.Run(ctx, cmdutils.Command{
		Name: "zip",
		Args: []string{"--recurse-paths", "--symlinks", "--quiet", zip, distCfg.AppDir()},
		Dir:  dest,
	}); err != nil {
		return uuid.Nil, err
	}
	return p.Notarize(ctx, zip, cfg)
}

// customizeAndSignChrome copies the input app into paths.Work, customizes and signs it, then
// moves it to dest.
func (p Pipeline) customizeAndSignChrome(ctx context.Context, paths Paths, base, cfg Config, dest string, frameworks map[string]signedFramework) (err error) {
	defer decorate.OnError(&err, "could not sign %s", cfg.AppDir())

	if err := fileutils.CopyTree(filepath.Join(paths.Input, base.AppDir()), filepath.Join(paths.Work, base.AppDir())); err != nil {
		return err
	}
	if err := CustomizeDistribution(paths, base, cfg); err != nil {
		return err
	}

	fwID, err := frameworkBundleID(paths.Work, cfg)
	if err != nil {
		return err
	}
	workFramework := filepath.Join(paths.Work, cfg.AppDir(), cfg.FrameworkDir())

	if signed, ok := frameworks[fwID]; ok {
		p.log.Info("Reusing signed framework", "identifier", fwID, "from", signed.dir)
		changes, err := fileutils.OverlayTree(filepath.Join(signed.dir, signed.frameworkPath(cfg)), workFramework, false)
		if err != nil {
			return err
		}
		if changes != signed.changes {
			return fmt.Errorf("framework %s differs from the one signed before: %d changes instead of %d", fwID, changes, signed.changes)
		}
		if err := p.signChrome(ctx, paths, cfg, false); err != nil {
			return err
		}
	} else {
		unsigned := filepath.Join(paths.Work, "modified_unsigned_framework")
		if _, err := fileutils.OverlayTree(workFramework, unsigned, false); err != nil {
			return err
		}
		if err := p.signChrome(ctx, paths, cfg, true); err != nil {
			return err
		}
		changes, err := fileutils.OverlayTree(workFramework, unsigned, true)
		if err != nil {
			return err
		}
		frameworks[fwID] = signedFramework{dir: dest, changes: changes, app: cfg.AppDir()}
	}

	if err := os.MkdirAll(dest, 0750); err != nil {
		return err
	}
	target := filepath.Join(dest, cfg.AppDir())
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	return os.Rename(filepath.Join(paths.Work, cfg.AppDir()), target)
}

// stapleChrome staples the helpers, then the app.
func (p Pipeline) stapleChrome(ctx context.Context, paths Paths, cfg Config) error {
	helpers := filepath.Join(paths.Work, cfg.AppDir(), cfg.FrameworkDir(), "Helpers")
	for _, h := range cfg.HelperApps() {
		if err := p.Staple(ctx, filepath.Join(helpers, h)); err != nil {
			return err
		}
	}
	return p.Staple(ctx, filepath.Join(paths.Work, cfg.AppDir()))
}

const inflationFile = "inflation.bin"

// packageAll builds the packages of every distribution, then notarizes them. ZIPs are only
// produced, the app they contain being notarized already.
func (p Pipeline) packageAll(ctx context.Context, paths Paths, cfg Config, built []customizedDistribution) error {
	var ids []uuid.UUID
	var toStaple []string

	submit := func(path string) error {
		if !cfg.Notarize.ShouldNotarize() {
			return nil
		}
		id, err := p.Notarize(ctx, path, cfg)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		toStaple = append(toStaple, path)
		return nil
	}

	for _, b := range built {
		d := b.cfg.Dist
		distPaths := paths.ReplaceWork(b.dir)

		if d.InflationKilobytes > 0 {
			if _, err := p.runner.Run(ctx, cmdutils.Command{Name: "dd", Args: []string{
				"if=/dev/urandom",
				"of=" + filepath.Join(paths.PackagingDir(cfg), inflationFile),
				"bs=1000",
				"count=" + strconv.Itoa(d.InflationKilobytes),
			}}); err != nil {
				return err
			}
		}

		if d.PackageAsDMG {
			dmg, err := p.PackageDMG(ctx, distPaths, b.cfg)
			if err != nil {
				return err
			}
			if err := submit(dmg); err != nil {
				return err
			}
		}
		if d.PackageAsPKG {
			pkg, err := p.PackagePKG(ctx, distPaths, b.cfg)
			if err != nil {
				return err
			}
			if err := submit(pkg); err != nil {
				return err
			}
		}
		if d.PackageAsZIP {
			if _, err := p.PackageZIP(ctx, distPaths, b.cfg); err != nil {
				return err
			}
		}
	}

	if !cfg.Notarize.ShouldWait() {
		return nil
	}
	if err := p.WaitForResults(ctx, ids, cfg); err != nil {
		return err
	}
	if !cfg.Notarize.ShouldStaple() {
		return nil
	}
	var errs error
	for _, path := range toStaple {
		errs = errors.Join(errs, p.Staple(ctx, path))
	}
	return errs
}

func (p Pipeline) mkdtemp(pattern string) (string, error) {
	return os.MkdirTemp(p.tempDir, pattern+"-*")
}

func (p Pipeline) removeAll(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		p.log.Warn("Could not remove work directory", "dir", dir, "error", err)
	}
}
