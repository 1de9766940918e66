package wptrun_test

import (
	"strings"
	"testing"

	"github.com/browser-infra/buildtools/internal/wptresults"
	"github.com/browser-infra/buildtools/internal/wptrun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runEvents is an iteration over two tests, one of them in a virtual suite, followed by
// a second iteration over one test.
func runEvents() []wptresults.Event {
	meta := func(ms int64) wptresults.Meta { return wptresults.Meta{Time: ms} }
	return []wptresults.Event{
		wptresults.SuiteStart{Meta: meta(1000), Tests: map[string][]string{"/a": {"/a/b.html"}, "threaded:/a": {"/a/b.html"}}},
		wptresults.TestStart{Meta: meta(1100), Test: "/a/b.html"},
		wptresults.TestStatus{Meta: meta(1200), Test: "/a/b.html", Subtest: "sub", Status: "FAIL", Expected: "PASS", Message: "assert_true\nstack"},
		wptresults.TestEnd{Meta: meta(1500), Test: "/a/b.html", Status: "OK"},
		wptresults.TestStart{Meta: meta(1600), Test: "/a/b.html", Subsuite: "threaded"},
		wptresults.ProcessOutput{Meta: meta(1650), Process: "42", Data: "crash!"},
		wptresults.TestEnd{Meta: meta(62_500), Test: "/a/b.html", Subsuite: "threaded", Status: "CRASH", Expected: "OK"},
		wptresults.SuiteEnd{Meta: meta(63_000)},
		wptresults.SuiteStart{Meta: meta(70_000), Tests: map[string][]string{"/a": {"/a/b.html"}}},
		wptresults.TestStart{Meta: meta(70_100), Test: "/a/b.html"},
		wptresults.TestEnd{Meta: meta(70_200), Test: "/a/b.html", Status: "TIMEOUT", Expected: "OK", KnownIntermittent: []string{"TIMEOUT"}},
		wptresults.SuiteEnd{Meta: meta(70_300)},
	}
}

func format(t *testing.T, f wptrun.Formatter) string {
	t.Helper()

	var b strings.Builder
	for _, ev := range runEvents() {
		b.WriteString(f.Format(ev))
	}
	return b.String()
}

func TestGroupedFormatter(t *testing.T) {
	t.Parallel()

	f, err := wptrun.NewFormatter("grouped")
	require.NoError(t, err, "NewFormatter should not fail")

	want := `[0.000s] Running 2 tests
[61.500s] [2/2] virtual/threaded/external/wpt/a/b.html CRASH (expected OK)
[62.000s] Ran 2 tests, 1 unexpected results
  CRASH (1):
    virtual/threaded/external/wpt/a/b.html
[0.000s] Running 1 tests
[0.300s] Ran 1 tests, 0 unexpected results
`
	assert.Equal(t, want, format(t, f), "Output should match")
}

func TestMachFormatter(t *testing.T) {
	t.Parallel()

	f, err := wptrun.NewFormatter("mach")
	require.NoError(t, err, "NewFormatter should not fail")

	want := ` 0:00.00 SUITE_START: 2 tests
 0:00.10 TEST_START: [1/2] external/wpt/a/b.html
 0:00.20 TEST-UNEXPECTED-FAIL | external/wpt/a/b.html | sub - assert_true
 0:00.50 TEST_END: OK external/wpt/a/b.html
 0:00.60 TEST_START: [2/2] virtual/threaded/external/wpt/a/b.html
 0:00.65 PID 42 | crash!
 1:01.50 TEST_END: CRASH, expected OK virtual/threaded/external/wpt/a/b.html
 1:02.00 SUITE_END: Ran 2 tests, 1 unexpected
 0:00.00 SUITE_START: 1 tests
 0:00.10 TEST_START: [1/1] external/wpt/a/b.html
 0:00.20 TEST_END: TIMEOUT external/wpt/a/b.html
 0:00.30 SUITE_END: Ran 1 tests, 0 unexpected
`
	assert.Equal(t, want, format(t, f), "Output should match")
}

func TestNewFormatter(t *testing.T) {
	t.Parallel()

	f, err := wptrun.NewFormatter("")
	require.NoError(t, err, "NewFormatter should not fail without a name")
	assert.IsType(t, &wptrun.GroupedFormatter{}, f, "Grouped formatter should be the default")

	_, err = wptrun.NewFormatter("tbpl")
	require.ErrorIs(t, err, wptrun.ErrUnknownFormatter, "NewFormatter should fail on unknown formatters")
}
