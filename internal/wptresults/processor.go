// Package wptresults turns the mozlog event stream of a wptrunner run into web test
// results: per test artifacts, uploads to a result sink and results JSON files.
package wptresults

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/browser-infra/buildtools/internal/constants"
	"github.com/browser-infra/buildtools/internal/fileutils"
	"github.com/prometheus/client_golang/prometheus"
)

const eventQueueSize = 1024

var (
	// ErrStreamShutdown is returned once the shutdown event has been processed.
	ErrStreamShutdown = errors.New("event stream shut down")
	// ErrUnknownTest is returned for tests missing from the manifest.
	ErrUnknownTest = errors.New("test is not in the manifest")
	// ErrNotStarted is returned for events about tests that are not running.
	ErrNotStarted = errors.New("test was not started")
	// ErrJoinTimeout is returned by Close when the worker is still busy after
	// constants.ResultsJoinTimeout. Results must not be read afterwards.
	ErrJoinTimeout = errors.New("timed out waiting for pending events to be processed")
	// ErrWorkerRunning is returned when results are read while the worker may still update them.
	ErrWorkerRunning = errors.New("event worker is still running")
)

// EventProcessingError is returned when an event is inconsistent with the stream.
type EventProcessingError struct {
	Action string
	Test   string
	Err    error
}

func (e EventProcessingError) Error() string {
	return fmt.Sprintf("could not process %s event for %s: %v", e.Action, e.Test, e.Err)
}

func (e EventProcessingError) Unwrap() error {
	return e.Err
}

// Config configures a Processor.
type Config struct {
	// ArtifactsDir receives the artifacts and the results JSON files. Its parent is the
	// root of the artifact paths.
	ArtifactsDir string `mapstructure:"artifacts_dir"`
	// WebTestsDir holds the baselines and the WPT metadata.
	WebTestsDir string `mapstructure:"web_tests_dir"`
	// PlatformDirs are searched for baselines before WebTestsDir, relative to it.
	PlatformDirs []string `mapstructure:"platform_dirs"`
	// ResetResults writes the actual text of each test as its new baseline.
	ResetResults bool `mapstructure:"reset_results"`
	// Sanitizer reports failures as passes, only crashes and timeouts matter.
	Sanitizer bool `mapstructure:"sanitizer"`

	// FailureThreshold interrupts the run after that many unexpected results in the
	// first iteration. 0 disables the check.
	FailureThreshold int `mapstructure:"failure_threshold"`
	// CrashTimeoutThreshold is the same for unexpected crashes and timeouts.
	CrashTimeoutThreshold int `mapstructure:"crash_timeout_threshold"`

	ShardIndex *int   `mapstructure:"shard_index"`
	Product    string `mapstructure:"product"`
	Driver     string `mapstructure:"driver"`
}

type options struct {
	log         *slog.Logger
	sink        Sink
	diff        ImageDiffer
	abort       func(pid int)
	joinTimeout time.Duration
}

// Options represents an optional function to override Processor default values.
type Options func(*options)

// WithLogger sets the logger of the processor.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// WithSink sets where results are reported.
func WithSink(s Sink) Options {
	return func(o *options) {
		o.sink = s
	}
}

// WithAbort sets how the run is interrupted when too many tests fail. pid is the
// runner process. The default interrupts it.
func WithAbort(abort func(pid int)) Options {
	return func(o *options) {
		o.abort = abort
	}
}

type testKey struct {
	subsuite string
	id       string
}

func (k testKey) less(o testKey) int {
	if c := strings.Compare(k.subsuite, o.subsuite); c != 0 {
		return c
	}
	return strings.Compare(k.id, o.id)
}

// testState accumulates the statuses of a running test.
type testState struct {
	key       testKey
	name      string
	item      ManifestItem
	iteration int
	start     int64

	text       textResult
	outcome    outcome
	hasOutcome bool
}

func (s *testState) update(o outcome) {
	if !s.hasOutcome || o.supersedes(s.outcome) {
		s.outcome = o
		s.hasOutcome = true
	}
}

// Processor consumes mozlog events of a wptrunner run. A single worker started by Start
// processes the events passed to Send in order.
type Processor struct {
	cfg      Config
	manifest Manifest
	sink     Sink
	diff     ImageDiffer
	abort    func(pid int)
	joinWait time.Duration
	metrics  *metrics
	log      *slog.Logger
	started  time.Time

	suites    int
	selected  map[testKey]bool
	completed map[testKey]bool
	running   map[testKey]*testState
	outputs   map[PID][]string
	commands  map[PID]string
	leaves    map[string]*leaf

	initialFailures           int
	initialCrashesAndTimeouts int
	interrupted               bool

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	ctxErr    error
	eventErrs []error
}

// New returns a processor of the tests in manifest, registering its metrics to reg.
func New(cfg Config, manifest Manifest, reg prometheus.Registerer, args ...Options) (*Processor, error) {
	opts := options{
		log:         slog.Default(),
		sink:        discardSink{},
		diff:        DiffPNG,
		abort:       interrupt,
		joinTimeout: constants.ResultsJoinTimeout,
	}
	for _, opt := range args {
		opt(&opts)
	}

	if cfg.ArtifactsDir == "" {
		return nil, errors.New("no artifacts directory")
	}
	if cfg.Product == "" {
		cfg.Product = "chrome"
	}
	if cfg.Driver == "" {
		cfg.Driver = "chromedriver"
	}

	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}

	return &Processor{
		cfg:       cfg,
		manifest:  manifest,
		sink:      opts.sink,
		diff:      opts.diff,
		abort:     opts.abort,
		joinWait:  opts.joinTimeout,
		metrics:   m,
		log:       opts.log,
		started:   time.Now(),
		selected:  make(map[testKey]bool),
		completed: make(map[testKey]bool),
		running:   make(map[testKey]*testState),
		outputs:   make(map[PID][]string),
		commands:  make(map[PID]string),
		leaves:    make(map[string]*leaf),
	}, nil
}

func interrupt(pid int) {
	if pid <= 0 {
		slog.Warn("Cannot interrupt the test runner, its pid is unknown")
		return
	}
	p, err := os.FindProcess(pid)
	if err == nil {
		err = p.Signal(os.Interrupt)
	}
	if err != nil {
		slog.Warn("Could not interrupt the test runner", "pid", pid, "error", err)
	}
}

// Start starts the worker. Close must be called to stop it.
func (p *Processor) Start(ctx context.Context) {
	p.events = make(chan Event, eventQueueSize)
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		for {
			select {
			case <-ctx.Done():
				p.ctxErr = ctx.Err()
				return
			case ev := <-p.events:
				err := p.ProcessEvent(ctx, ev)
				if errors.Is(err, ErrStreamShutdown) {
					return
				}
				if err != nil {
					p.log.Error("Could not process event", "action", ev.Action(), "error", err)
					p.eventErrs = append(p.eventErrs, err)
				}
			}
		}
	}()
}

// Send queues ev for the worker. It returns ErrStreamShutdown once the worker stopped.
func (p *Processor) Send(ev Event) error {
	select {
	case <-p.done:
		return ErrStreamShutdown
	default:
	}
	select {
	case p.events <- ev:
		return nil
	case <-p.done:
		return ErrStreamShutdown
	}
}

// Close shuts the stream down and waits for the worker to drain it. It only fails when
// the worker was cancelled or did not finish in time (ErrJoinTimeout). Events that could
// not be processed are logged and reported by EventErrors.
func (p *Processor) Close() error {
	p.closeOnce.Do(func() {
		select {
		case p.events <- Shutdown{}:
		case <-p.done:
		}
	})

	select {
	case <-p.done:
	case <-time.After(p.joinWait):
		return ErrJoinTimeout
	}
	return p.ctxErr
}

// EventErrors returns the errors met processing single events. It must be called after
// a successful Close.
func (p *Processor) EventErrors() []error {
	return p.eventErrs
}

// workerRunning reports whether a started worker has not returned yet.
func (p *Processor) workerRunning() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ReadStream sends the events of a raw mozlog stream to the worker, until the stream or
// the event processing ends.
func (p *Processor) ReadStream(ctx context.Context, r io.Reader) error {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for s.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		stop, err := p.sendLine(s.Bytes())
		if err != nil || stop {
			return err
		}
	}
	return s.Err()
}

// sendLine decodes and queues one line. stop is true once no more events are accepted.
func (p *Processor) sendLine(line []byte) (stop bool, err error) {
	if len(strings.TrimSpace(string(line))) == 0 {
		return false, nil
	}
	ev, err := DecodeEvent(line)
	if err != nil {
		p.log.Warn("Skipping invalid event", "error", err)
		return false, nil
	}
	if err := p.Send(ev); errors.Is(err, ErrStreamShutdown) {
		return true, nil
	}
	return ev.Action() == ActionShutdown, nil
}

// NumInitialFailures returns the number of unexpected results in the first iteration.
func (p *Processor) NumInitialFailures() int {
	return p.initialFailures
}

// Interrupted reports whether the run was interrupted because of too many failures.
func (p *Processor) Interrupted() bool {
	return p.interrupted
}

// ProcessEvent handles one event. It is not safe to call it concurrently.
func (p *Processor) ProcessEvent(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case SuiteStart:
		p.suiteStart(e)
	case TestStart:
		return p.testStart(e)
	case TestStatus:
		return p.testStatus(e)
	case TestEnd:
		return p.testEnd(ctx, e)
	case SuiteEnd:
		p.log.Debug("Suite ended", "iteration", p.iteration())
	case ProcessOutput:
		p.processOutput(e)
	case Shutdown:
		p.shutdown(ctx)
		return ErrStreamShutdown
	default:
		p.log.Warn("Event received, but not handled", "action", ev.Action())
	}
	return nil
}

func (p *Processor) iteration() int {
	return max(0, p.suites-1)
}

func (p *Processor) suiteStart(e SuiteStart) {
	p.suites++
	p.selected = make(map[testKey]bool)
	p.completed = make(map[testKey]bool)
	for group, ids := range e.Tests {
		var subsuite string
		if i := strings.Index(group, ":"); i > 0 && !strings.HasPrefix(group, "/") {
			subsuite = group[:i]
		}
		for _, id := range ids {
			p.selected[testKey{subsuite: subsuite, id: id}] = true
		}
	}
	p.log.Debug("Suite started", "iteration", p.iteration(), "tests", len(p.selected))
}

func (p *Processor) testStart(e TestStart) error {
	item, ok := p.manifest[e.Test]
	if !ok {
		return EventProcessingError{Action: e.Action(), Test: e.Test, Err: ErrUnknownTest}
	}
	key := testKey{subsuite: e.Subsuite, id: e.Test}
	if _, ok := p.running[key]; !ok {
		p.metrics.running.Inc()
	}
	p.running[key] = &testState{
		key:       key,
		name:      testName(e.Test, e.Subsuite),
		item:      item,
		iteration: p.iteration(),
		start:     e.Time,
		text:      newTextResult(item.Type),
	}
	return nil
}

func (p *Processor) testStatus(e TestStatus) error {
	s, ok := p.running[testKey{subsuite: e.Subsuite, id: e.Test}]
	if !ok {
		return EventProcessingError{Action: e.Action(), Test: e.Test, Err: ErrNotStarted}
	}
	s.update(newOutcome(e.Status, e.Expected, e.KnownIntermittent, p.cfg.Sanitizer))
	s.text.addSubtest(e.Subtest, e.Status, e.Message)
	return nil
}

func (p *Processor) testEnd(ctx context.Context, e TestEnd) error {
	key := testKey{subsuite: e.Subsuite, id: e.Test}
	s, ok := p.running[key]
	if !ok {
		return EventProcessingError{Action: e.Action(), Test: e.Test, Err: ErrNotStarted}
	}
	delete(p.running, key)
	p.metrics.running.Dec()
	p.completed[key] = true

	s.update(newOutcome(e.Status, e.Expected, e.KnownIntermittent, p.cfg.Sanitizer))
	s.text.setHarness(e.Status, e.Message)

	w := newArtifactWriter(p.cfg.ArtifactsDir, s.iteration, s.name)
	var errs []error
	if err := p.compareText(w, s); err != nil {
		errs = append(errs, err)
	}
	stats, err := p.extractScreenshots(w, s, e)
	if err != nil {
		errs = append(errs, err)
	}
	if err := p.extractLogs(w, s, e); err != nil {
		errs = append(errs, err)
	}

	r := Result{
		Name:         s.name,
		Actual:       s.outcome.actual,
		Expected:     s.outcome.expected,
		Unexpected:   s.outcome.unexpected,
		Took:         time.Duration(e.Time-s.start) * time.Millisecond,
		Artifacts:    w.artifacts,
		ArtifactRoot: w.root,
		TestFile:     strings.TrimPrefix(testName(s.item.Path, ""), "/"),
	}
	if r.Unexpected {
		r.Summary = p.summary(s)
	}
	p.report(ctx, r, s.iteration, stats)
	p.checkThresholds(s.iteration, r, e.PID)

	if len(errs) > 0 {
		return EventProcessingError{Action: e.Action(), Test: e.Test, Err: errors.Join(errs...)}
	}
	return nil
}

// compareText compares the text of a testharness or wdspec test with its baseline. A
// mismatch is an unexpected failure.
func (p *Processor) compareText(w *artifactWriter, s *testState) error {
	if !s.item.Type.hasTextOutput() || priority[s.outcome.actual] > priority[Failure] {
		return nil
	}

	expected, content, hasExpected, err := p.expectedText(s)
	if err != nil {
		return err
	}
	if !hasExpected {
		expected = newTextResult(s.item.Type)
	}
	actual := s.text.render()

	if p.cfg.ResetResults {
		if err := p.writeBaseline(s, actual); err != nil {
			return err
		}
	}
	if s.text.matches(expected) {
		return nil
	}
	s.update(outcome{actual: Failure, expected: []ResultType{Pass}, unexpected: true})
	return w.writeTextDiff(actual, content, hasExpected)
}

// expectedText looks for the baseline of s, then for its WPT metadata.
func (p *Processor) expectedText(s *testState) (t textResult, content string, ok bool, err error) {
	if p.cfg.WebTestsDir == "" {
		return t, "", false, nil
	}

	names := []string{s.name}
	if base := baseTestName(s.name); base != s.name {
		names = append(names, base)
	}
	for _, name := range names {
		for _, dir := range append(slices.Clone(p.cfg.PlatformDirs), "") {
			b := filepath.Join(p.cfg.WebTestsDir, dir, filepath.FromSlash(artifactBase(name))+"-expected.txt")
			data, err := os.ReadFile(b)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return t, "", false, fmt.Errorf("could not read baseline: %v", err)
			}
			content := trimBaseline(string(data))
			return parseText(content), content, true, nil
		}
	}

	file, query, hasQuery := strings.Cut(baseTestName(s.name), "?")
	section := path.Base(file)
	if hasQuery {
		section += "?" + query
	}
	t, ok, err = loadMetadata(filepath.Join(p.cfg.WebTestsDir, filepath.FromSlash(file)+".ini"), section, s.item.Type)
	if err != nil || !ok {
		return t, "", false, err
	}
	return t, t.render(), true, nil
}

func (p *Processor) writeBaseline(s *testState, content string) error {
	dir := p.cfg.WebTestsDir
	if len(p.cfg.PlatformDirs) > 0 {
		dir = filepath.Join(dir, p.cfg.PlatformDirs[0])
	}
	b := filepath.Join(dir, filepath.FromSlash(artifactBase(baseTestName(s.name)))+"-expected.txt")
	if err := os.MkdirAll(filepath.Dir(b), 0750); err != nil {
		return fmt.Errorf("could not create baseline directory: %v", err)
	}
	if err := fileutils.AtomicWrite(b, []byte(content)); err != nil {
		return fmt.Errorf("could not reset baseline: %v", err)
	}
	p.log.Info("Baseline reset", "path", b)
	return nil
}

// extractScreenshots writes the screenshots of a reftest failing unexpectedly. Only
// screenshots expected to match are diffed.
func (p *Processor) extractScreenshots(w *artifactWriter, s *testState, e TestEnd) (*DiffStats, error) {
	if !s.item.Type.isReftest() || !s.outcome.unexpected || s.outcome.actual != Failure {
		return nil, nil
	}
	shots, relation, err := e.Extra.Screenshots()
	if err != nil {
		return nil, fmt.Errorf("invalid screenshots: %v", err)
	}
	if len(shots) == 0 {
		return nil, nil
	}

	actualIdx := slices.IndexFunc(shots, func(sh Screenshot) bool { return sh.URL == s.key.id })
	if actualIdx < 0 {
		actualIdx = 0
	}
	actual, err := base64.StdEncoding.DecodeString(shots[actualIdx].Screenshot)
	if err != nil {
		return nil, fmt.Errorf("invalid screenshot of %s: %v", shots[actualIdx].URL, err)
	}
	if err := w.write(ArtifactActualImage, actual); err != nil {
		return nil, err
	}
	if len(shots) < 2 {
		return nil, nil
	}

	ref := shots[1]
	if actualIdx != 0 {
		ref = shots[0]
	}
	expected, err := base64.StdEncoding.DecodeString(ref.Screenshot)
	if err != nil {
		return nil, fmt.Errorf("invalid screenshot of %s: %v", ref.URL, err)
	}
	if err := w.write(ArtifactExpectedImage, expected); err != nil {
		return nil, err
	}
	if relation == "!=" {
		return nil, nil
	}

	diff, stats, err := p.diff(actual, expected)
	if err != nil {
		p.log.Warn("Could not diff screenshots", "test", s.name, "error", err)
		return nil, nil
	}
	if err := w.write(ArtifactImageDiff, diff); err != nil {
		return nil, err
	}
	return &stats, nil
}

var launchRe = regexp.MustCompile(`Launching chrome: (.*)$`)

var driverExecutables = []string{"chromedriver", "chrome", "content_shell", "headless_shell"}

// isDriverCommand reports whether output of command belongs to the browser under test.
func isDriverCommand(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	exe := strings.TrimSuffix(filepath.Base(fields[0]), ".exe")
	return slices.Contains(driverExecutables, exe)
}

func (p *Processor) processOutput(e ProcessOutput) {
	if !isDriverCommand(e.Command) {
		return
	}
	p.outputs[e.Process] = append(p.outputs[e.Process], e.Data)
	if m := launchRe.FindStringSubmatch(e.Data); m != nil {
		p.commands[e.Process] = m[1]
	}
}

// extractLogs writes the browser output, the crash log, the command reproducing the
// test and the leaks found.
func (p *Processor) extractLogs(w *artifactWriter, s *testState, e TestEnd) error {
	pid := e.Extra.BrowserPID
	if lines := p.outputs[pid]; pid != "" && len(lines) > 0 {
		delete(p.outputs, pid)
		if err := w.write(ArtifactStderr, []byte(strings.Join(lines, "\n")+"\n")); err != nil {
			return err
		}
	}
	if e.Message != "" {
		if err := w.write(ArtifactCrashLog, []byte(e.Message)); err != nil {
			return err
		}
	}
	if cmd, ok := p.commands[pid]; ok && pid != "" {
		if err := w.write(ArtifactCommand, []byte(reproCommand(cmd, testURL(s.key.id)))); err != nil {
			return err
		}
	}
	if len(e.Extra.LeakCounters) > 0 {
		if err := w.write(ArtifactLeakLog, []byte(renderLeakLog(e.Extra.LeakCounters))); err != nil {
			return err
		}
	}
	return nil
}

// testURL is where the WPT server serves the test.
func testURL(id string) string {
	file, _, _ := strings.Cut(id, "?")
	if strings.Contains(path.Base(file), ".https.") {
		return "https://web-platform.test:8444" + id
	}
	return "http://web-platform.test:8001" + id
}

// reproCommand rewrites a browser launch command to open url directly and visibly.
func reproCommand(cmd, url string) string {
	parts := strings.Split(cmd, " --")
	args := []string{parts[0]}
	for _, sw := range parts[1:] {
		sw = "--" + sw
		if strings.HasPrefix(sw, "--headless") {
			continue
		}
		args = append(args, sw)
	}
	last := len(args) - 1
	if rest, ok := strings.CutSuffix(args[last], " data:,"); ok {
		args[last] = rest
	} else if args[last] == "data:," {
		args = args[:last]
	}
	args = append(args, url)

	for i, a := range args {
		args[i] = shellQuote(a)
	}
	return strings.Join(args, " ")
}

var shellSafeRe = regexp.MustCompile(`^[A-Za-z0-9@%+=:,./_-]+$`)

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if shellSafeRe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// summary is shown next to unexpected results.
func (p *Processor) summary(s *testState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>This WPT was run against <code>%s</code> using <code>%s</code>. ", p.cfg.Product, p.cfg.Driver)
	b.WriteString(`See <a href="https://chromium.googlesource.com/chromium/src/+/HEAD/docs/testing/run_web_platform_tests.md">these instructions</a> about running these tests locally and triaging failures.</p>`)
	if strings.HasPrefix(s.key.id, "/wpt_internal/") {
		return b.String()
	}
	fmt.Fprintf(&b, `<p>Results of other browsers are on <a href="https://wpt.fyi/results/%s">wpt.fyi</a>.</p>`, wptFyiPath(s.key.id))
	return b.String()
}

// wptFyiPath escapes a test ID the way wpt.fyi links expect it: the path segments and
// the whole variant separately.
func wptFyiPath(id string) string {
	file, query, hasQuery := strings.Cut(strings.TrimPrefix(id, "/"), "?")
	segments := strings.Split(file, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	escaped := strings.Join(segments, "/")
	if hasQuery {
		escaped += url.QueryEscape("?" + query)
	}
	return escaped
}

func (p *Processor) report(ctx context.Context, r Result, iteration int, stats *DiffStats) {
	if err := p.sink.ReportResult(ctx, r); err != nil {
		p.log.Warn("Could not report result", "test", r.Name, "error", err)
	}
	p.metrics.observe(r)

	l, ok := p.leaves[r.Name]
	if !ok {
		l = &leaf{artifacts: make(map[string][]string)}
		p.leaves[r.Name] = l
	}
	l.add(r, stats)
	p.log.Debug("Test result", "test", r.Name, "actual", r.Actual, "unexpected", r.Unexpected, "iteration", iteration)
}

func (p *Processor) checkThresholds(iteration int, r Result, pid int) {
	if iteration > 0 || !r.Unexpected {
		return
	}
	p.initialFailures++
	if r.Actual == Crash || r.Actual == Timeout {
		p.initialCrashesAndTimeouts++
	}
	if p.interrupted {
		return
	}

	var reason string
	switch {
	case p.cfg.FailureThreshold > 0 && p.initialFailures >= p.cfg.FailureThreshold:
		reason = "failures"
	case p.cfg.CrashTimeoutThreshold > 0 && p.initialCrashesAndTimeouts >= p.cfg.CrashTimeoutThreshold:
		reason = "crashes and timeouts"
	default:
		return
	}
	p.log.Warn("Exiting early after too many unexpected results", "reason", reason,
		"failures", p.initialFailures, "crashes_and_timeouts", p.initialCrashesAndTimeouts)
	p.interrupted = true
	p.abort(pid)
}

// shutdown reports the selected tests that never completed as unexpected skips.
func (p *Processor) shutdown(ctx context.Context) {
	incomplete := make(map[testKey]bool)
	for k := range p.selected {
		if !p.completed[k] {
			incomplete[k] = true
		}
	}
	for k := range p.running {
		incomplete[k] = true
	}
	if len(incomplete) == 0 {
		return
	}

	p.log.Warn("Some tests never completed", "count", len(incomplete))
	for _, k := range slices.SortedFunc(maps.Keys(incomplete), testKey.less) {
		r := Result{
			Name:         testName(k.id, k.subsuite),
			Actual:       Skip,
			Expected:     []ResultType{Pass},
			Unexpected:   true,
			Artifacts:    map[string][]string{},
			ArtifactRoot: filepath.Dir(p.cfg.ArtifactsDir),
		}
		p.report(ctx, r, p.iteration(), nil)
	}
}
