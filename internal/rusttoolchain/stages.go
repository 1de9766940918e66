package rusttoolchain

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/browser-infra/buildtools/internal/cmdutils"
	"github.com/browser-infra/buildtools/internal/constants"
	"github.com/browser-infra/buildtools/internal/fileutils"
	"github.com/browser-infra/buildtools/internal/symlink"
	"github.com/ubuntu/decorate"
)

// StampFileName is written in the install directory once the toolchain is complete.
const StampFileName = "INSTALLED_VERSION"

// Workspaces whose dependencies are vendored along with the root one.
var syncManifests = []string{
	"library/Cargo.toml",
	"src/bootstrap/Cargo.toml",
	"src/tools/cargo/Cargo.toml",
	"src/tools/rust-analyzer/Cargo.toml",
	"compiler/rustc_codegen_cranelift/Cargo.toml",
}

var (
	testSuites = []string{"library/std", "tests/ui", "tests/codegen", "tests/mir-opt"}

	// Known upstream failures in our configuration.
	testDenylist = []string{
		// Depends on the hard limit of open files of the bot.
		"tests/ui/process/nofile-limit.rs",
		// Expects the system linker, not lld.
		"tests/ui/linkage-attr/linkage-detect-local-generic-redefinition.rs",
		// Expects debug assertions in the standard library.
		"tests/ui/process/process-sigpipe.rs",
	}

	buildTargets = []string{
		"compiler/rustc",
		"library/std",
		"src/tools/cargo",
		"src/tools/clippy",
		"src/tools/rustfmt",
		"src/tools/rust-analyzer",
	}

	installComponents = []string{"rustc", "rust-std", "rust-src", "cargo", "clippy", "rustfmt", "rust-analyzer", "llvm-tools"}

	// Built for the build host only, they can not be installed for another one.
	hostOnlyComponents = []string{"cargo", "rust-analyzer"}
)

func (b Builder) cargoHome() string {
	return filepath.Join(b.cfg.SourceDir, "cargo-home")
}

func (b Builder) exe(name string) string {
	if b.goos == "windows" {
		return name + ".exe"
	}
	return name
}

// Vendor materializes every crate dependency in the checkout. The beta cargo needs
// RUSTC_BOOTSTRAP to accept the nightly features of the sources.
func (b Builder) Vendor(ctx context.Context, cargo string) (err error) {
	defer decorate.OnError(&err, "could not vendor crates")

	args := []string{"vendor", "--locked", "--versioned-dirs"}
	for _, m := range syncManifests {
		if _, err := os.Stat(filepath.Join(b.cfg.SourceDir, filepath.FromSlash(m))); err == nil {
			args = append(args, "--sync", m)
		}
	}

	_, err = b.runner.Run(ctx, cmdutils.Command{
		Name:       cargo,
		Args:       args,
		Dir:        b.cfg.SourceDir,
		Env:        []string{"RUSTC_BOOTSTRAP=1", "CARGO_HOME=" + b.cargoHome()},
		Retries:    constants.VendorRetries - 1,
		RetryDelay: 5 * time.Second,
	})
	return err
}

// BuildLLVM builds LLVM for the host and, when cross compiling, for the target. It
// returns the llvm-config of each triple.
func (b Builder) BuildLLVM(ctx context.Context) (map[string]string, error) {
	triples := []string{b.cfg.HostTriple}
	if b.crossCompiling() {
		triples = append(triples, b.cfg.TargetTriple)
	}

	configs := make(map[string]string)
	for _, triple := range triples {
		out := filepath.Join(b.cfg.LLVMBuildDir, triple)
		configs[triple] = filepath.Join(out, "bin", b.exe("llvm-config"))
		if b.cfg.SkipLLVMBuild {
			continue
		}

		b.log.Info("Building LLVM", "triple", triple, "dir", out)
		_, err := b.runner.Run(ctx, cmdutils.Command{
			Name: b.cfg.Python,
			Args: []string{b.cfg.LLVMBuildScript, "--out-dir", out, "--host-triple", triple, "--disable-asserts"},
		})
		if err != nil {
			return nil, fmt.Errorf("could not build LLVM for %s: %w", triple, err)
		}
	}
	return configs, nil
}

func (b Builder) llvmBinDir() string {
	return filepath.Join(b.cfg.LLVMBuildDir, b.cfg.HostTriple, "bin")
}

// BuildEnv returns the environment of x.py, pointing at the freshly built clang and lld.
func (b Builder) BuildEnv() []string {
	bin := b.llvmBinDir()
	tool := func(name string) string { return filepath.Join(bin, b.exe(name)) }

	env := map[string]string{"CARGO_HOME": b.cargoHome()}
	var cflags, ldflags []string
	switch b.goos {
	case "windows":
		env["AR"] = tool("llvm-lib")
		env["CC"] = tool("clang-cl")
		env["CXX"] = tool("clang-cl")
		env["LD"] = tool("lld-link")
	case "darwin":
		env["AR"] = tool("llvm-ar")
		env["CC"] = tool("clang")
		env["CXX"] = tool("clang++")
		env["LD"] = tool("ld64.lld")
	default:
		env["AR"] = tool("llvm-ar")
		env["CC"] = tool("clang")
		env["CXX"] = tool("clang++")
		env["LD"] = tool("ld.lld")
	}

	if b.cfg.ZlibDir != "" {
		cflags = append(cflags, "-I"+b.cfg.ZlibDir)
		ldflags = append(ldflags, "-L"+b.cfg.ZlibDir)
	}
	if b.cfg.LibXML2Dir != "" {
		cflags = append(cflags, "-I"+filepath.Join(b.cfg.LibXML2Dir, "include", "libxml2"))
		ldflags = append(ldflags, "-L"+filepath.Join(b.cfg.LibXML2Dir, "lib"))
	}
	if b.cfg.Sysroot != "" {
		cflags = append(cflags, "--sysroot="+b.cfg.Sysroot)
		ldflags = append(ldflags, "--sysroot="+b.cfg.Sysroot)
	}
	if b.goos == "darwin" && b.cfg.MacSDK != "" {
		cflags = append(cflags, "-isysroot", b.cfg.MacSDK)
		ldflags = append(ldflags, "-isysroot", b.cfg.MacSDK)
	}
	env["CFLAGS"] = strings.Join(cflags, " ")
	env["CXXFLAGS"] = strings.Join(cflags, " ")
	env["LDFLAGS"] = strings.Join(ldflags, " ")

	rustflags := os.Getenv("RUSTFLAGS")
	if b.goos != "windows" {
		rustflags = strings.TrimSpace(rustflags + " -Clink-arg=-fuse-ld=lld")
	}
	env["RUSTFLAGS"] = rustflags

	var out []string
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}
	return out
}

type rustConfig struct {
	LLVM    llvmSection              `toml:"llvm"`
	Build   buildSection             `toml:"build"`
	Install installSection           `toml:"install"`
	Rust    rustSection              `toml:"rust"`
	Target  map[string]targetSection `toml:"target"`
}

type llvmSection struct {
	DownloadCI bool `toml:"download-ci-llvm"`
}

type buildSection struct {
	Build    string   `toml:"build"`
	Host     []string `toml:"host"`
	Target   []string `toml:"target"`
	Cargo    string   `toml:"cargo"`
	Vendor   bool     `toml:"vendor"`
	Extended bool     `toml:"extended"`
	Tools    []string `toml:"tools"`
	Docs     bool     `toml:"docs"`
}

type installSection struct {
	Prefix     string `toml:"prefix"`
	Sysconfdir string `toml:"sysconfdir"`
}

type rustSection struct {
	Channel     string `toml:"channel"`
	Description string `toml:"description"`
}

type targetSection struct {
	LLVMConfig string `toml:"llvm-config"`
}

// components returns the installed components, without those of the build host when
// cross compiling.
func (b Builder) components() []string {
	if !b.crossCompiling() {
		return installComponents
	}
	return slices.DeleteFunc(slices.Clone(installComponents), func(c string) bool {
		return slices.Contains(hostOnlyComponents, c)
	})
}

// RenderConfig writes the config.toml of x.py.
func (b Builder) RenderConfig(cargo string, llvmConfigs map[string]string, version string) (err error) {
	defer decorate.OnError(&err, "could not write config.toml")

	var tools []string
	for _, c := range b.components() {
		switch c {
		case "rustc", "rust-std", "llvm-tools":
		case "rust-src":
			tools = append(tools, "src")
		default:
			tools = append(tools, c)
		}
	}

	targets := map[string]targetSection{}
	for triple, llvmConfig := range llvmConfigs {
		targets[triple] = targetSection{LLVMConfig: llvmConfig}
	}

	cfg := rustConfig{
		Build: buildSection{
			Build:    b.cfg.HostTriple,
			Host:     []string{b.cfg.TargetTriple},
			Target:   slices.Compact(slices.Sorted(slices.Values([]string{b.cfg.HostTriple, b.cfg.TargetTriple}))),
			Cargo:    cargo,
			Vendor:   true,
			Extended: true,
			Tools:    tools,
		},
		Install: installSection{Prefix: b.cfg.InstallDir, Sysconfdir: "etc"},
		Rust:    rustSection{Channel: "dev", Description: version},
		Target:  targets,
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	return fileutils.AtomicWrite(filepath.Join(b.cfg.SourceDir, "config.toml"), buf.Bytes())
}

// RunXPy cleans, tests, builds and installs the toolchain with x.py. Cross compiled
// toolchains go straight to the installation.
func (b Builder) RunXPy(ctx context.Context, env []string) (err error) {
	defer decorate.OnError(&err, "x.py failed")

	x := func(args ...string) error {
		b.log.Info("Running x.py", "args", args)
		_, err := b.runner.Run(ctx, cmdutils.Command{
			Name: b.cfg.Python,
			Args: append([]string{"x.py"}, args...),
			Dir:  b.cfg.SourceDir,
			Env:  env,
		})
		return err
	}

	if !b.crossCompiling() {
		if err := x("clean"); err != nil {
			return err
		}
		if !b.cfg.SkipTest {
			args := append([]string{"test", "--stage", "2"}, testSuites...)
			for _, t := range testDenylist {
				args = append(args, "--skip", t)
			}
			if err := x(args...); err != nil {
				return err
			}
		}
		if err := x(append([]string{"build", "--stage", "2"}, buildTargets...)...); err != nil {
			return err
		}
	}
	return x(append([]string{"install"}, b.components()...)...)
}

// CopyVendor copies the vendored crates into the toolchain so that the standard
// library can be rebuilt from it offline.
func (b Builder) CopyVendor() (err error) {
	defer decorate.OnError(&err, "could not copy vendored crates")

	dst := filepath.Join(b.cfg.InstallDir, "lib", "rustlib", "src", "rust", "vendor")
	if err := symlink.RemoveAll(dst); err != nil {
		return err
	}
	return fileutils.CopyTree(filepath.Join(b.cfg.SourceDir, "vendor"), dst)
}

// WriteStamp records version in the install directory.
func (b Builder) WriteStamp(version string) error {
	if err := os.MkdirAll(b.cfg.InstallDir, 0750); err != nil {
		return err
	}
	return fileutils.AtomicWrite(filepath.Join(b.cfg.InstallDir, StampFileName), []byte(version+"\n"))
}
