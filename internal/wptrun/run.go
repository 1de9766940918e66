package wptrun

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/browser-infra/buildtools/internal/cmdutils"
	"github.com/browser-infra/buildtools/internal/constants"
	"github.com/browser-infra/buildtools/internal/wptresults"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ubuntu/decorate"
)

const (
	includeFile  = "include.txt"
	subsuiteFile = "subsuite.json"
	reportFile   = "wpt_report.json"
)

// Runner runs web platform tests and processes their results.
type Runner struct {
	cfg     Config
	runner  cmdutils.Runner
	goos    string
	goarch  string
	sink    wptresults.Sink
	reg     prometheus.Registerer
	console io.Writer

	log *slog.Logger
}

type options struct {
	runner  cmdutils.Runner
	goos    string
	sink    wptresults.Sink
	reg     prometheus.Registerer
	console io.Writer
	log     *slog.Logger
}

// Options represents an optional function to override Runner default values.
type Options func(*options)

// WithLogger sets the logger of the runner.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// WithSink uploads the results of the run to s.
func WithSink(s wptresults.Sink) Options {
	return func(o *options) {
		o.sink = s
	}
}

// WithRegisterer registers the results metrics to reg.
func WithRegisterer(reg prometheus.Registerer) Options {
	return func(o *options) {
		o.reg = reg
	}
}

// WithConsole sets where the progress of the run is printed.
func WithConsole(w io.Writer) Options {
	return func(o *options) {
		o.console = w
	}
}

// New returns a Runner for cfg.
func New(cfg Config, args ...Options) (Runner, error) {
	opts := options{
		runner:  cmdutils.ExecRunner{},
		goos:    runtime.GOOS,
		reg:     prometheus.NewRegistry(),
		console: os.Stdout,
		log:     slog.Default(),
	}
	for _, f := range args {
		f(&opts)
	}

	if cfg.WebTestsDir == "" {
		return Runner{}, errors.New("web tests directory is required")
	}
	if cfg.WPTScript == "" {
		return Runner{}, errors.New("wpt script is required")
	}
	if cfg.ResultsDir == "" {
		if cfg.TargetDir == "" {
			return Runner{}, errors.New("either a target or a results directory is required")
		}
		cfg.ResultsDir = filepath.Join(cfg.TargetDir, constants.LayoutTestResultsDir)
	}
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Product == "" {
		cfg.Product = "chrome"
	}
	if cfg.Binary == "" && cfg.TargetDir != "" {
		cfg.Binary = filepath.Join(cfg.TargetDir, binaryName("chrome", opts.goos))
	}
	if cfg.Driver == "" && cfg.TargetDir != "" {
		cfg.Driver = filepath.Join(cfg.TargetDir, binaryName("chromedriver", opts.goos))
	}
	if _, err := NewFormatter(cfg.Formatter); err != nil {
		return Runner{}, err
	}

	return Runner{
		cfg:     cfg,
		runner:  opts.runner,
		goos:    opts.goos,
		goarch:  runtime.GOARCH,
		sink:    opts.sink,
		reg:     opts.reg,
		console: opts.console,
		log:     opts.log,
	}, nil
}

func binaryName(name, goos string) string {
	if goos == "windows" {
		return name + ".exe"
	}
	return name
}

// Run selects the tests, runs them and processes their results. It returns the exit
// code of the test runner.
func (r Runner) Run(ctx context.Context) (code int, err error) {
	defer decorate.OnError(&err, "could not run web platform tests")

	port, err := LoadPort(r.cfg.WebTestsDir, r.goos)
	if err != nil {
		return 0, err
	}
	manifest, err := wptresults.LoadWebTestsManifest(r.cfg.WebTestsDir)
	if err != nil {
		return 0, err
	}

	index, total, err := ShardValues(r.cfg, r.log)
	if err != nil {
		return 0, err
	}

	sel, err := SelectTests(port, manifest, r.cfg.Paths, r.log)
	if err != nil {
		return 0, err
	}
	removed, err := FilterDisabled(r.cfg.WebTestsDir, sel, r.log)
	if err != nil {
		return 0, err
	}
	if !r.cfg.Upstream {
		sel = Shard(sel, index, total)
	}
	r.log.Info("Tests selected", "count", sel.Len(), "disabled", removed, "shard", describeShard(index, total))
	if sel.Len() == 0 && !r.cfg.Upstream {
		r.log.Warn("No tests to run")
		return 0, nil
	}

	flags, err := port.AdditionalDriverFlags(r.cfg.FlagSpecific, r.cfg.AdditionalDriverFlags)
	if err != nil {
		return 0, err
	}
	flags = CoalesceFeatureFlags(flags)

	viewer := filepath.Join(r.cfg.WebTestsDir, "fast", "harness", viewerFile)
	dir, err := OpenResultsDir(r.cfg.ResultsDir, r.cfg.ClobberResults, viewer, r.log)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = errors.Join(err, dir.Close())
	}()

	files, err := r.writeRunFiles(dir.TempDir(), port, sel)
	if err != nil {
		return 0, err
	}

	shardIndex := &index
	if total <= 1 {
		shardIndex = nil
	}
	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	proc, err := wptresults.New(wptresults.Config{
		ArtifactsDir:          dir.Path,
		WebTestsDir:           r.cfg.WebTestsDir,
		PlatformDirs:          []string{filepath.Join("platform", port.OS)},
		ResetResults:          r.cfg.ResetResults,
		Sanitizer:             r.cfg.Sanitizer,
		FailureThreshold:      r.cfg.FailureThreshold,
		CrashTimeoutThreshold: r.cfg.CrashTimeoutThreshold,
		ShardIndex:            shardIndex,
		Product:               r.cfg.Product,
		Driver:                filepath.Base(r.cfg.Driver),
	}, manifest, r.reg, r.processorOptions(cancel)...)
	if err != nil {
		return 0, err
	}

	code, err = r.runTests(ctx, childCtx, proc, BuildArgs(r.cfg, flags, files, index, total))
	if err != nil {
		return code, err
	}

	if err := proc.ProcessResultsJSON(nil); err != nil {
		return code, err
	}
	if _, err := os.Stat(files.WPTReport); err == nil {
		if err := proc.ProcessWPTReport(ctx, files.WPTReport); err != nil {
			return code, err
		}
	}

	if n := proc.NumInitialFailures(); n > 0 {
		r.log.Warn("Tests had unexpected results", "count", n)
	}
	return code, nil
}

// writeRunFiles writes the configuration, test lists and run info of a run under dir.
func (r Runner) writeRunFiles(dir string, p Port, sel Selection) (files RunFiles, err error) {
	files = RunFiles{
		Config:      filepath.Join(dir, wptConfigFile),
		IncludeFile: filepath.Join(dir, includeFile),
		RunInfoDir:  dir,
		WPTReport:   filepath.Join(dir, reportFile),
	}

	if err := writeWPTConfig(files.Config, r.cfg.WebTestsDir); err != nil {
		return files, err
	}
	if err := writeIncludeFile(files.IncludeFile, sel); err != nil {
		return files, err
	}
	if err := NewRunInfo(r.cfg, p, r.goarch).Write(dir); err != nil {
		return files, err
	}

	if len(SubSuites(p, sel)) > 0 {
		files.SubsuiteFile = filepath.Join(dir, subsuiteFile)
		if files.Subsuites, err = writeSubSuites(files.SubsuiteFile, p, sel); err != nil {
			return files, err
		}
	}
	return files, nil
}

func (r Runner) processorOptions(abort context.CancelFunc) []wptresults.Options {
	opts := []wptresults.Options{
		wptresults.WithLogger(r.log),
		wptresults.WithAbort(func(int) { abort() }),
	}
	if r.sink != nil {
		opts = append(opts, wptresults.WithSink(r.sink))
	}
	return opts
}

// runTests runs wpt under childCtx, feeding its event stream to proc. The processor
// cancels childCtx when too many tests fail.
func (r Runner) runTests(ctx, childCtx context.Context, proc *wptresults.Processor, args []string) (code int, err error) {
	format, err := NewFormatter(r.cfg.Formatter)
	if err != nil {
		return 0, err
	}

	proc.Start(ctx)
	w := newEventWriter(proc, format, r.console, r.log)
	c := cmdutils.Command{
		Name:   r.cfg.Python,
		Args:   args,
		Dir:    r.cfg.WebTestsDir,
		Stdout: w,
	}
	r.log.Debug("Running wpt", "command", c.String())

	_, runErr := r.runner.Run(childCtx, c)
	w.Flush()
	procErr := proc.Close()

	if err := ctx.Err(); err != nil {
		return 1, err
	}
	if runErr != nil {
		var exitErr cmdutils.ExitError
		if !errors.As(runErr, &exitErr) {
			return 1, errors.Join(runErr, procErr)
		}
		code = exitErr.Code
	}
	if procErr != nil {
		// Results are incomplete and still owned by the worker.
		return max(code, 1), procErr
	}
	if errs := proc.EventErrors(); len(errs) > 0 {
		r.log.Warn("Some events could not be processed", "count", len(errs), "error", errors.Join(errs...))
	}
	if proc.Interrupted() {
		r.log.Error("Run interrupted after too many unexpected results")
		code = max(code, 1)
	}
	return code, nil
}
