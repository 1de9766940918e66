package wptresults

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

const (
	testharnessHeader = "This is a testharness.js-based test."
	wdspecHeader      = "This is a wdspec test."
	harnessFooter     = "Harness: the test ran to completion."
	allPassLine       = "All subtests passed and are omitted for brevity."
	allPassSeeLine    = "See https://chromium.googlesource.com/chromium/src/+/HEAD/docs/testing/writing_web_tests.md#Text-Test-Baselines for details."
	leakHeader        = "Some DOM objects associated with the test page are still alive after navigating to about:blank:"
)

var (
	harnessCodes = map[string]int{
		"ERROR":               1,
		"TIMEOUT":             2,
		"PRECONDITION_FAILED": 3,
	}
	harnessErrorRe = regexp.MustCompile(`^Harness Error\. harness_status\.status = (\d+) , harness_status\.message = (.*)$`)
	subtestLineRe  = regexp.MustCompile(`^\[([A-Z_-]+)\] (.*)$`)
)

type subtestResult struct {
	name    string
	status  string
	message string
}

// textResult is the content of a testharness or wdspec baseline. Passing subtests are
// not part of it.
type textResult struct {
	header         string
	harnessCode    int
	harnessMessage string
	subtests       []subtestResult
}

func newTextResult(typ TestType) textResult {
	if typ == TypeWdspec {
		return textResult{header: wdspecHeader}
	}
	return textResult{header: testharnessHeader}
}

func (t *textResult) addSubtest(name, status, message string) {
	if status == "PASS" {
		return
	}
	t.subtests = append(t.subtests, subtestResult{name: name, status: status, message: message})
}

func (t *textResult) setHarness(status, message string) {
	t.harnessCode = harnessCodes[status]
	t.harnessMessage = message
}

func (t textResult) allPass() bool {
	return len(t.subtests) == 0 && t.harnessCode == 0
}

// render formats t the way baselines are written.
func (t textResult) render() string {
	var b strings.Builder
	b.WriteString(t.header + "\n")
	if t.allPass() {
		b.WriteString(allPassLine + "\n")
		b.WriteString(allPassSeeLine + "\n")
	}
	if t.harnessCode != 0 {
		fmt.Fprintf(&b, "Harness Error. harness_status.status = %d , harness_status.message = %s\n", t.harnessCode, t.harnessMessage)
	}
	for _, s := range t.subtests {
		fmt.Fprintf(&b, "[%s] %s\n", s.status, s.name)
		if s.message == "" {
			continue
		}
		for _, l := range strings.Split(strings.TrimRight(s.message, "\n"), "\n") {
			b.WriteString("  " + l + "\n")
		}
	}
	b.WriteString(harnessFooter + "\n")
	return b.String()
}

// matches reports whether both results have the same harness status and the same
// failing subtests. Messages are ignored.
func (t textResult) matches(other textResult) bool {
	if t.harnessCode != other.harnessCode {
		return false
	}
	statuses := func(r textResult) map[string]string {
		m := make(map[string]string)
		for _, s := range r.subtests {
			m[s.name] = s.status
		}
		return m
	}
	return maps.Equal(statuses(t), statuses(other))
}

// parseText reads a baseline.
func parseText(content string) textResult {
	var t textResult
	var last *subtestResult
	for i, l := range strings.Split(content, "\n") {
		if i == 0 {
			t.header = l
			continue
		}
		if strings.HasPrefix(l, "  ") && last != nil {
			if last.message != "" {
				last.message += "\n"
			}
			last.message += strings.TrimPrefix(l, "  ")
			continue
		}
		last = nil
		if m := harnessErrorRe.FindStringSubmatch(l); m != nil {
			t.harnessCode, _ = strconv.Atoi(m[1])
			t.harnessMessage = m[2]
			continue
		}
		if m := subtestLineRe.FindStringSubmatch(l); m != nil {
			if m[1] == "PASS" {
				continue
			}
			t.subtests = append(t.subtests, subtestResult{name: m[2], status: m[1]})
			last = &t.subtests[len(t.subtests)-1]
		}
	}
	return t
}

// trimBaseline drops the trailing blank lines of a baseline file.
func trimBaseline(content string) string {
	return strings.TrimRight(content, "\n") + "\n"
}

// loadMetadata reads the expectations of section from a WPT metadata file. The first
// section named after the test holds its harness expectation, the sections that follow
// until the next test hold subtest expectations. ok is false when the file or the
// section does not exist.
func loadMetadata(path, section string, typ TestType) (t textResult, ok bool, err error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return t, false, nil
	}
	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		KeyValueDelimiters:      ":",
		SkipUnrecognizableLines: true,
		AllowNonUniqueSections:  true,
	}, path)
	if err != nil {
		return t, false, fmt.Errorf("could not parse metadata %s: %v", path, err)
	}

	// Subtest sections repeat across tests, so they are found by position.
	sections := f.Sections()
	i := slices.IndexFunc(sections, func(s *ini.Section) bool { return s.Name() == section })
	if i < 0 {
		return t, false, nil
	}
	t = newTextResult(typ)
	if s := expectedStatus(sections[i]); s != "" && s != "OK" {
		t.setHarness(s, "")
	}
	base, _, _ := strings.Cut(section, "?")
	for _, s := range sections[i+1:] {
		if strings.HasPrefix(s.Name(), base) {
			break
		}
		if status := expectedStatus(s); status != "" {
			t.addSubtest(s.Name(), status, "")
		}
	}
	return t, true, nil
}

// expectedStatus returns the unconditional expectation of a metadata section. The first
// status of a list is the expected one.
func expectedStatus(s *ini.Section) string {
	v := strings.TrimSpace(s.Key("expected").String())
	v = strings.TrimSuffix(strings.TrimPrefix(v, "["), "]")
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

// renderLeakLog formats leak counters, pairs of expected and actual counts.
func renderLeakLog(counters map[string][2]int) string {
	var b strings.Builder
	b.WriteString(leakHeader + "\n")
	for _, name := range slices.Sorted(maps.Keys(counters)) {
		c := counters[name]
		fmt.Fprintf(&b, "  %s: Expected %d, got %d\n", name, c[0], c[1])
	}
	return b.String()
}
