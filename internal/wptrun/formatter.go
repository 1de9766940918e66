package wptrun

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/browser-infra/buildtools/internal/wptresults"
)

// Formatter renders events on the console. An empty string prints nothing.
type Formatter interface {
	Format(ev wptresults.Event) string
}

// ErrUnknownFormatter is returned for a console format other than grouped or mach.
var ErrUnknownFormatter = errors.New("unknown formatter")

// NewFormatter returns the console formatter called name. The grouped formatter is the
// default.
func NewFormatter(name string) (Formatter, error) {
	switch name {
	case "", "grouped":
		return &GroupedFormatter{}, nil
	case "mach":
		return &MachFormatter{}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownFormatter, name)
}

// isUnexpected reports whether status was not an expected outcome. mozlog omits the
// expected status when it matches.
func isUnexpected(status, expected string, knownIntermittent []string) bool {
	return expected != "" && !slices.Contains(knownIntermittent, status)
}

func countTests(tests map[string][]string) int {
	n := 0
	for _, ids := range tests {
		n += len(ids)
	}
	return n
}

// GroupedFormatter prints unexpected results as they happen, with the time elapsed
// since the suite started, and groups them by status once the suite ends.
type GroupedFormatter struct {
	start      int64
	total      int
	done       int
	unexpected map[string][]string
}

// Format implements Formatter.
func (f *GroupedFormatter) Format(ev wptresults.Event) string {
	switch e := ev.(type) {
	case wptresults.SuiteStart:
		f.start = e.Time
		f.total = countTests(e.Tests)
		f.done = 0
		f.unexpected = make(map[string][]string)
		return fmt.Sprintf("%s Running %d tests\n", f.elapsed(e.Time), f.total)

	case wptresults.TestEnd:
		f.done++
		if !isUnexpected(e.Status, e.Expected, e.KnownIntermittent) {
			return ""
		}
		label := testLabel(e.Test, e.Subsuite)
		if f.unexpected == nil {
			f.unexpected = make(map[string][]string)
		}
		f.unexpected[e.Status] = append(f.unexpected[e.Status], label)
		return fmt.Sprintf("%s [%d/%d] %s %s (expected %s)\n", f.elapsed(e.Time), f.done, f.total, label, e.Status, e.Expected)

	case wptresults.SuiteEnd:
		var b strings.Builder
		n := 0
		for _, labels := range f.unexpected {
			n += len(labels)
		}
		fmt.Fprintf(&b, "%s Ran %d tests, %d unexpected results\n", f.elapsed(e.Time), f.done, n)
		for _, status := range slices.Sorted(maps.Keys(f.unexpected)) {
			fmt.Fprintf(&b, "  %s (%d):\n", status, len(f.unexpected[status]))
			for _, l := range f.unexpected[status] {
				fmt.Fprintf(&b, "    %s\n", l)
			}
		}
		return b.String()
	}
	return ""
}

func (f *GroupedFormatter) elapsed(t int64) string {
	return fmt.Sprintf("[%.3fs]", float64(t-f.start)/1000)
}

// MachFormatter prints one line per event, prefixed with the time elapsed since the
// suite started. Counts restart with each suite.
type MachFormatter struct {
	start      int64
	total      int
	started    int
	ended      int
	unexpected int
}

// Format implements Formatter.
func (f *MachFormatter) Format(ev wptresults.Event) string {
	switch e := ev.(type) {
	case wptresults.SuiteStart:
		*f = MachFormatter{start: e.Time, total: countTests(e.Tests)}
		return f.line(e.Time, "SUITE_START: %d tests", f.total)

	case wptresults.TestStart:
		f.started++
		return f.line(e.Time, "TEST_START: [%d/%d] %s", f.started, f.total, testLabel(e.Test, e.Subsuite))

	case wptresults.TestStatus:
		if !isUnexpected(e.Status, e.Expected, e.KnownIntermittent) {
			return ""
		}
		return f.line(e.Time, "TEST-UNEXPECTED-%s | %s | %s%s", e.Status, testLabel(e.Test, e.Subsuite), e.Subtest, messageSuffix(e.Message))

	case wptresults.TestEnd:
		f.ended++
		label := testLabel(e.Test, e.Subsuite)
		if !isUnexpected(e.Status, e.Expected, e.KnownIntermittent) {
			return f.line(e.Time, "TEST_END: %s %s", e.Status, label)
		}
		f.unexpected++
		return f.line(e.Time, "TEST_END: %s, expected %s %s%s", e.Status, e.Expected, label, messageSuffix(e.Message))

	case wptresults.SuiteEnd:
		return f.line(e.Time, "SUITE_END: Ran %d tests, %d unexpected", f.ended, f.unexpected)

	case wptresults.ProcessOutput:
		return f.line(e.Time, "PID %s | %s", e.Process, e.Data)
	}
	return ""
}

func (f *MachFormatter) line(t int64, format string, args ...any) string {
	elapsed := max(0, float64(t-f.start)/1000)
	minutes := int(elapsed / 60)
	return fmt.Sprintf("%2d:%05.2f ", minutes, elapsed-float64(minutes*60)) + fmt.Sprintf(format, args...) + "\n"
}

// messageSuffix returns the first line of a result message, separated from the result.
func messageSuffix(msg string) string {
	l, _, _ := strings.Cut(msg, "\n")
	if l == "" {
		return ""
	}
	return " - " + l
}

// eventSender receives the events of a run.
type eventSender interface {
	Send(ev wptresults.Event) error
}

// eventWriter decodes the raw mozlog stream of a run as it is written. Each event is
// rendered on the console and sent to the results processor. Lines which are not
// events are copied to the console.
type eventWriter struct {
	events  eventSender
	format  Formatter
	console io.Writer
	log     *slog.Logger

	buf     []byte
	stopped bool
}

func newEventWriter(events eventSender, format Formatter, console io.Writer, log *slog.Logger) *eventWriter {
	return &eventWriter{events: events, format: format, console: console, log: log}
}

// Write implements io.Writer.
func (w *eventWriter) Write(b []byte) (int, error) {
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.handle(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(b), nil
}

// Flush handles the last line when it was not terminated.
func (w *eventWriter) Flush() {
	if len(w.buf) > 0 {
		w.handle(w.buf)
	}
	w.buf = nil
}

func (w *eventWriter) handle(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}

	ev, err := wptresults.DecodeEvent(line)
	if err != nil {
		_, _ = fmt.Fprintf(w.console, "%s\n", line)
		return
	}
	if s := w.format.Format(ev); s != "" {
		_, _ = io.WriteString(w.console, s)
	}

	if w.stopped {
		return
	}
	if err := w.events.Send(ev); err != nil {
		w.log.Debug("Results processor stopped accepting events", "error", err)
		w.stopped = true
	}
}
