// Package xcode installs Xcode and iOS simulator runtimes with mac_toolchain.
package xcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/browser-infra/buildtools/internal/cmdutils"
	"github.com/browser-infra/buildtools/internal/symlink"
	"github.com/ubuntu/decorate"
)

// runtimesDir is where a Xcode package keeps its simulator runtimes.
var runtimesDir = filepath.Join("Contents", "Developer", "Platforms", "iPhoneOS.platform",
	"Library", "Developer", "CoreSimulator", "Profiles", "Runtimes")

// Installer drives mac_toolchain, xcrun and the other Apple tools.
type Installer struct {
	runner       cmdutils.Runner
	macToolchain string

	log *slog.Logger
}

type options struct {
	runner cmdutils.Runner
	log    *slog.Logger
}

// Options represents an optional function to override Installer default values.
type Options func(*options)

// WithLogger sets the logger of the installer.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// New returns an Installer running the mac_toolchain binary at macToolchain.
func New(macToolchain string, args ...Options) Installer {
	opts := options{
		runner: cmdutils.ExecRunner{},
		log:    slog.Default(),
	}
	for _, f := range args {
		f(&opts)
	}

	return Installer{
		runner:       opts.runner,
		macToolchain: macToolchain,
		log:          opts.log,
	}
}

func (i Installer) run(ctx context.Context, name string, args ...string) (string, error) {
	res, err := i.runner.Run(ctx, cmdutils.Command{Name: name, Args: args})
	if err != nil {
		return "", err
	}
	return res.Stdout.String(), nil
}

// IsNewMacToolchain reports whether mac_toolchain installs runtimes separately from
// Xcode. Older versions have no install-runtime subcommand.
func (i Installer) IsNewMacToolchain(ctx context.Context) (bool, error) {
	out, err := i.run(ctx, i.macToolchain, "help")
	if err != nil {
		return false, fmt.Errorf("could not get mac_toolchain help: %w", err)
	}
	return strings.Contains(out, "install-runtime"), nil
}

// IsLegacyXcodePackage reports whether the Xcode at xcodePath bundles its own iOS
// runtimes, which is the case when it holds several runtimes or a single one that is
// not iOS.simruntime.
func IsLegacyXcodePackage(xcodePath string) (bool, error) {
	runtimes, err := filepath.Glob(filepath.Join(xcodePath, runtimesDir, "*.simruntime"))
	if err != nil {
		return false, err
	}
	switch len(runtimes) {
	case 0:
		return false, nil
	case 1:
		return filepath.Base(runtimes[0]) != "iOS.simruntime", nil
	default:
		return true, nil
	}
}

// InstallXcode installs Xcode buildVersion into xcodePath. With a new mac_toolchain,
// the runtime is left out of the installation.
func (i Installer) InstallXcode(ctx context.Context, buildVersion, xcodePath string, newToolchain bool) (err error) {
	defer decorate.OnError(&err, "could not install Xcode %s", buildVersion)

	args := []string{"install", "-kind", "ios", "-xcode-version", strings.ToLower(buildVersion), "-output-dir", xcodePath}
	if newToolchain {
		args = append(args, "-with-runtime=false")
	}

	_, err = i.run(ctx, i.macToolchain, args...)
	if err == nil {
		return nil
	}

	// Installations interrupted on recent macOS keep a tree codesign rejects forever.
	major, verr := i.macOSMajor(ctx)
	if verr != nil || major < 13 {
		return err
	}
	i.log.Warn("Xcode installation failed, installing again from scratch", "path", xcodePath, "error", err)
	if err := symlink.RemoveAll(xcodePath); err != nil {
		return err
	}
	_, err = i.run(ctx, i.macToolchain, args...)
	return err
}

func (i Installer) macOSMajor(ctx context.Context) (int, error) {
	out, err := i.run(ctx, "sw_vers", "-productVersion")
	if err != nil {
		return 0, err
	}
	major, _, _ := strings.Cut(strings.TrimSpace(out), ".")
	return strconv.Atoi(major)
}

// MoveRuntime moves the single runtime of runtimeCache into the Xcode at xcodePath, or
// back into the cache when intoXcode is false. An existing runtime at the destination
// is replaced.
func MoveRuntime(runtimeCache, xcodePath string, intoXcode bool) (err error) {
	defer decorate.OnError(&err, "could not move runtime")

	src, dst := runtimeCache, filepath.Join(xcodePath, runtimesDir)
	if !intoXcode {
		src, dst = dst, src
	}

	runtimes, err := filepath.Glob(filepath.Join(src, "*.simruntime"))
	if err != nil {
		return err
	}
	if len(runtimes) != 1 {
		return fmt.Errorf("expected exactly one runtime in %s, found %d", src, len(runtimes))
	}

	target := filepath.Join(dst, filepath.Base(runtimes[0]))
	if err := symlink.RemoveAll(target); err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0750); err != nil {
		return err
	}
	return os.Rename(runtimes[0], target)
}

// InstallRuntime installs the iOS runtime of xcodeVersion into runtimeCache.
func (i Installer) InstallRuntime(ctx context.Context, xcodeVersion, iosVersion, runtimeCache string) error {
	_, err := i.run(ctx, i.macToolchain, "install-runtime",
		"-xcode-version", strings.ToLower(xcodeVersion),
		"-runtime-version", runtimeVersion(iosVersion),
		"-output-dir", runtimeCache)
	if err != nil {
		return fmt.Errorf("could not install iOS %s runtime: %w", iosVersion, err)
	}
	return nil
}

// runtimeVersion turns "16.4" into the "ios-16-4" mac_toolchain form.
func runtimeVersion(iosVersion string) string {
	return "ios-" + strings.ReplaceAll(iosVersion, ".", "-")
}

// Config describes a complete installation.
type Config struct {
	BuildVersion string `mapstructure:"xcode_build_version"`
	XcodePath    string `mapstructure:"xcode_path"`
	RuntimeCache string `mapstructure:"runtime_cache_prefix"`
	IOSVersion   string `mapstructure:"ios_version"`
	// RuntimeBuild selects a disk image runtime, used from Xcode 15 on.
	RuntimeBuild string `mapstructure:"runtime_build"`
}

// ErrMissingIOSVersion is returned when a runtime is requested without its iOS version.
var ErrMissingIOSVersion = errors.New("an iOS version is required to install a runtime")

// Install installs Xcode and, when needed, its simulator runtime. It returns whether
// the installed Xcode is a legacy package bundling its runtimes.
func (i Installer) Install(ctx context.Context, cfg Config) (legacy bool, err error) {
	defer decorate.OnError(&err, "could not install Xcode %s", cfg.BuildVersion)

	newToolchain, err := i.IsNewMacToolchain(ctx)
	if err != nil {
		return false, err
	}
	if !newToolchain {
		i.log.Info("Using legacy mac_toolchain, runtimes come with Xcode")
		return true, i.InstallXcode(ctx, cfg.BuildVersion, cfg.XcodePath, false)
	}

	runtimeCache := filepath.Join(cfg.RuntimeCache, runtimeVersion(cfg.IOSVersion))

	// mac_toolchain expects the package it installed, without a runtime inside.
	if existing, _ := filepath.Glob(filepath.Join(cfg.XcodePath, runtimesDir, "iOS.simruntime")); len(existing) > 0 {
		if err := MoveRuntime(runtimeCache, cfg.XcodePath, false); err != nil {
			return false, err
		}
	}

	if err := i.InstallXcode(ctx, cfg.BuildVersion, cfg.XcodePath, true); err != nil {
		return false, err
	}

	legacy, err = IsLegacyXcodePackage(cfg.XcodePath)
	if err != nil {
		return false, err
	}
	if legacy {
		i.log.Info("Xcode package bundles its runtimes", "path", cfg.XcodePath)
		return true, nil
	}

	if cfg.IOSVersion == "" {
		return false, ErrMissingIOSVersion
	}
	if cfg.RuntimeBuild != "" {
		return false, i.InstallRuntimeDMG(ctx, cfg.RuntimeBuild, cfg.IOSVersion, runtimeCache)
	}

	if err := i.InstallRuntime(ctx, cfg.BuildVersion, cfg.IOSVersion, runtimeCache); err != nil {
		return false, err
	}
	return false, MoveRuntime(runtimeCache, cfg.XcodePath, true)
}
