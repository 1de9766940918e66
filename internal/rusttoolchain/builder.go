// Package rusttoolchain builds a Rust toolchain from source, bootstrapped from an
// upstream beta stage0 and linked against a freshly built LLVM.
package rusttoolchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/browser-infra/buildtools/internal/cmdutils"
	"github.com/browser-infra/buildtools/internal/httpclient"
	"github.com/go-resty/resty/v2"
	"github.com/ubuntu/decorate"
)

// Config describes a toolchain build.
type Config struct {
	// SourceDir is the Rust checkout.
	SourceDir string `mapstructure:"source_dir"`
	RepoURL   string `mapstructure:"repo_url"`
	Revision  string `mapstructure:"revision"`
	// Stage0SHA256 is the expected digest of the checked in stage0.json.
	Stage0SHA256 string `mapstructure:"stage0_sha256"`

	InstallDir      string `mapstructure:"install_dir"`
	LLVMBuildScript string `mapstructure:"llvm_build_script"`
	LLVMBuildDir    string `mapstructure:"llvm_build_dir"`
	ClangRevision   string `mapstructure:"clang_revision"`
	Python          string `mapstructure:"python"`

	ZlibDir    string `mapstructure:"zlib_dir"`
	LibXML2Dir string `mapstructure:"libxml2_dir"`
	Sysroot    string `mapstructure:"sysroot"`
	MacSDK     string `mapstructure:"mac_sdk"`

	// HostTriple defaults to the triple of the running system.
	HostTriple string `mapstructure:"host_triple"`
	// TargetTriple defaults to HostTriple. A different value cross compiles.
	TargetTriple string `mapstructure:"target_triple"`

	SkipCheckout  bool `mapstructure:"skip_checkout"`
	SkipTest      bool `mapstructure:"skip_test"`
	SkipLLVMBuild bool `mapstructure:"skip_llvm_build"`
	// PrepareOnly stops once the sources are ready for x.py.
	PrepareOnly bool `mapstructure:"prepare_only"`

	HTTP httpclient.Config `mapstructure:"http"`
}

// Builder runs the stages of a toolchain build.
type Builder struct {
	cfg    Config
	runner cmdutils.Runner
	http   *resty.Client
	goos   string

	log *slog.Logger
}

type options struct {
	runner cmdutils.Runner
	goos   string
	log    *slog.Logger
}

// Options represents an optional function to override Builder default values.
type Options func(*options)

// WithLogger sets the logger of the builder.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// ErrMissingRevision is returned when a checkout is requested without a revision.
var ErrMissingRevision = errors.New("a Rust revision is required")

// New returns a Builder for cfg.
func New(cfg Config, args ...Options) (Builder, error) {
	opts := options{
		runner: cmdutils.ExecRunner{},
		goos:   runtime.GOOS,
		log:    slog.Default(),
	}
	for _, f := range args {
		f(&opts)
	}

	if cfg.SourceDir == "" || cfg.InstallDir == "" {
		return Builder{}, errors.New("source and install directories are required")
	}
	if !cfg.SkipCheckout && cfg.Revision == "" {
		return Builder{}, ErrMissingRevision
	}
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.HostTriple == "" {
		triple, err := hostTriple(opts.goos, runtime.GOARCH)
		if err != nil {
			return Builder{}, err
		}
		cfg.HostTriple = triple
	}
	if cfg.TargetTriple == "" {
		cfg.TargetTriple = cfg.HostTriple
	}
	if cfg.LLVMBuildDir == "" {
		cfg.LLVMBuildDir = filepath.Join(cfg.SourceDir, "..", "llvm-build")
	}

	return Builder{
		cfg:    cfg,
		runner: opts.runner,
		http:   httpclient.New(opts.log, cfg.HTTP),
		goos:   opts.goos,
		log:    opts.log,
	}, nil
}

func hostTriple(goos, goarch string) (string, error) {
	arch := map[string]string{"amd64": "x86_64", "arm64": "aarch64"}[goarch]
	if arch == "" {
		return "", fmt.Errorf("unsupported architecture %q", goarch)
	}
	switch goos {
	case "linux":
		return arch + "-unknown-linux-gnu", nil
	case "darwin":
		return arch + "-apple-darwin", nil
	case "windows":
		return arch + "-pc-windows-msvc", nil
	}
	return "", fmt.Errorf("unsupported system %q", goos)
}

// crossCompiling reports whether the toolchain is built for another host.
func (b Builder) crossCompiling() bool {
	return b.cfg.TargetTriple != b.cfg.HostTriple
}

// Build runs every stage of the toolchain build.
func (b Builder) Build(ctx context.Context) (err error) {
	defer decorate.OnError(&err, "could not build the Rust toolchain")

	if err := b.VerifyStage0(); err != nil {
		return err
	}
	if !b.cfg.SkipCheckout {
		if err := b.Checkout(ctx); err != nil {
			return err
		}
	}

	cargo, err := b.FetchStage0Cargo(ctx)
	if err != nil {
		return err
	}
	if err := b.InitSubmodules(ctx); err != nil {
		return err
	}
	if err := b.Vendor(ctx, cargo); err != nil {
		return err
	}

	llvmConfigs, err := b.BuildLLVM(ctx)
	if err != nil {
		return err
	}
	version, err := b.VersionString()
	if err != nil {
		return err
	}
	if err := b.RenderConfig(cargo, llvmConfigs, version); err != nil {
		return err
	}
	if b.cfg.PrepareOnly {
		b.log.Info("Sources are ready, stopping before x.py", "source", b.cfg.SourceDir)
		return nil
	}

	env := b.BuildEnv()
	if err := b.RunXPy(ctx, env); err != nil {
		return err
	}
	if err := b.CopyVendor(); err != nil {
		return err
	}
	return b.WriteStamp(version)
}
