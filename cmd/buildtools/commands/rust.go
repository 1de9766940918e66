package commands

import (
	"log/slog"

	"github.com/browser-infra/buildtools/internal/rusttoolchain"
	"github.com/spf13/cobra"
)

func installRustCmd(app *App) {
	cmd := &cobra.Command{
		Use:   "build-rust",
		Short: "Build the Rust toolchain against the bundled LLVM",
		Long: `Build the Rust toolchain against the bundled LLVM.

The Rust sources are checked out at the requested revision, their dependencies vendored,
LLVM built, then x.py builds and installs the toolchain. The HTTP client used to fetch the
stage0 compiler is configured in the rust.http section of the configuration file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := rusttoolchain.New(app.config.Rust, rusttoolchain.WithLogger(slog.Default()))
			if err != nil {
				return app.usageError(err)
			}
			return b.Build(cmd.Context())
		},
	}

	c := &app.config.Rust
	cmd.Flags().StringVar(&c.SourceDir, "source-dir", "", "Rust checkout")
	cmd.Flags().StringVar(&c.RepoURL, "repo-url", "https://github.com/rust-lang/rust", "Rust repository")
	cmd.Flags().StringVar(&c.Revision, "revision", "", "Rust revision to build")
	cmd.Flags().StringVar(&c.Stage0SHA256, "stage0-sha256", "", "expected digest of stage0.json")
	cmd.Flags().StringVar(&c.InstallDir, "install-dir", "", "where the toolchain is installed")
	cmd.Flags().StringVar(&c.LLVMBuildScript, "llvm-build-script", "", "script building LLVM")
	cmd.Flags().StringVar(&c.LLVMBuildDir, "llvm-build-dir", "", "LLVM build directory")
	cmd.Flags().StringVar(&c.ClangRevision, "clang-revision", "", "clang revision the toolchain is built against")
	cmd.Flags().StringVar(&c.Python, "python", "python3", "Python interpreter running x.py")
	cmd.Flags().StringVar(&c.ZlibDir, "zlib-dir", "", "zlib sources")
	cmd.Flags().StringVar(&c.LibXML2Dir, "libxml2-dir", "", "libxml2 installation")
	cmd.Flags().StringVar(&c.Sysroot, "sysroot", "", "sysroot of the target")
	cmd.Flags().StringVar(&c.MacSDK, "mac-sdk", "", "macOS SDK")
	cmd.Flags().StringVar(&c.HostTriple, "host-triple", "", "triple of the build host, detected if empty")
	cmd.Flags().StringVar(&c.TargetTriple, "target-triple", "", "triple of the target, the host one if empty")
	cmd.Flags().BoolVar(&c.SkipCheckout, "skip-checkout", false, "use the source directory as is")
	cmd.Flags().BoolVar(&c.SkipTest, "skip-test", false, "do not run the toolchain tests")
	cmd.Flags().BoolVar(&c.SkipLLVMBuild, "skip-llvm-build", false, "reuse the LLVM build directory")
	cmd.Flags().BoolVar(&c.PrepareOnly, "prepare-only", false, "stop once the sources are ready for x.py")
	app.bindFlags("rust", cmd.Flags())

	app.cmd.AddCommand(cmd)
}
