package wptresults

import (
	"slices"
	"strings"
)

// ResultType is the status of a test as reported to result consumers.
type ResultType string

// Result types, from the least to the most severe.
const (
	Pass    ResultType = "PASS"
	Failure ResultType = "FAIL"
	Skip    ResultType = "SKIP"
	Timeout ResultType = "TIMEOUT"
	Crash   ResultType = "CRASH"
)

var priority = map[ResultType]int{
	Pass:    0,
	Failure: 1,
	Skip:    2,
	Timeout: 3,
	Crash:   4,
}

// resultType maps a WPT (sub)test status to a result type.
func resultType(status string) ResultType {
	switch status {
	case "PASS", "OK":
		return Pass
	case "SKIP":
		return Skip
	case "TIMEOUT", "EXTERNAL-TIMEOUT":
		return Timeout
	case "CRASH":
		return Crash
	default:
		// FAIL, ERROR, PRECONDITION_FAILED, NOTRUN and anything unknown.
		return Failure
	}
}

// expectedResultType maps an expected WPT status. Expected failures are recorded in
// baselines, so a run reproducing them passes.
func expectedResultType(status string) ResultType {
	if t := resultType(status); t != Failure {
		return t
	}
	return Pass
}

// outcome is the reportable status derived from one (sub)test status.
type outcome struct {
	actual     ResultType
	expected   []ResultType
	unexpected bool
}

func newOutcome(status, expected string, knownIntermittent []string, sanitizer bool) outcome {
	if expected == "" {
		expected = status
	}
	statuses := append([]string{expected}, knownIntermittent...)

	o := outcome{
		actual:     resultType(status),
		unexpected: !slices.Contains(statuses, status),
	}
	for _, s := range statuses {
		o.expected = append(o.expected, expectedResultType(s))
	}
	slices.Sort(o.expected)
	o.expected = slices.Compact(o.expected)

	if o.actual == Pass || o.actual == Failure {
		// Passing unexpectedly no longer matches the baseline either.
		o.actual = Pass
		if o.unexpected {
			o.actual = Failure
		}
	}
	if sanitizer && o.actual == Failure {
		o.actual, o.expected, o.unexpected = Pass, []ResultType{Pass}, false
	}
	return o
}

// supersedes reports whether o should be reported instead of cur: a more severe result
// wins, then an unexpected one, then the latest.
func (o outcome) supersedes(cur outcome) bool {
	if p, c := priority[o.actual], priority[cur.actual]; p != c {
		return p > c
	}
	return o.unexpected || !cur.unexpected
}

func (o outcome) expectedString() string {
	s := make([]string, 0, len(o.expected))
	for _, t := range o.expected {
		s = append(s, string(t))
	}
	return strings.Join(s, " ")
}
