package wptresults

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/browser-infra/buildtools/internal/fileutils"
	"github.com/ubuntu/decorate"
)

// Result files written to the artifacts directory.
const (
	FullResultsFile      = "full_results.json"
	FullResultsJSONPFile = "full_results_jsonp.js"
	FailingResultsFile   = "failing_results.json"
	WPTReportFile        = "wpt_report.json"
)

// leaf accumulates the results of one test across iterations.
type leaf struct {
	actual     []ResultType
	expected   []ResultType
	unexpected []bool
	took       float64
	artifacts  map[string][]string
	stats      *DiffStats
}

func (l *leaf) add(r Result, stats *DiffStats) {
	l.actual = append(l.actual, r.Actual)
	l.unexpected = append(l.unexpected, r.Unexpected)
	l.expected = r.Expected
	l.took = r.Took.Seconds()
	for name, paths := range r.Artifacts {
		l.artifacts[name] = append(l.artifacts[name], paths...)
	}
	if stats != nil {
		l.stats = stats
	}
}

func (l *leaf) json(shard *int) map[string]any {
	actual := make([]string, 0, len(l.actual))
	for _, a := range l.actual {
		actual = append(actual, string(a))
	}
	m := map[string]any{
		"actual":   strings.Join(actual, " "),
		"expected": outcome{expected: l.expected}.expectedString(),
		"time":     l.took,
	}

	last := len(l.actual) - 1
	if l.unexpected[last] {
		m["is_unexpected"] = true
		if l.actual[last] != Pass {
			m["is_regression"] = true
		}
	} else if slices.Contains(l.unexpected, true) {
		m["is_flaky"] = true
	}
	l.annotate(m, shard)
	return m
}

// annotate adds the artifacts and image statistics of l to a results JSON leaf.
func (l *leaf) annotate(m map[string]any, shard *int) {
	if len(l.artifacts) > 0 {
		artifacts, _ := m["artifacts"].(map[string]any)
		if artifacts == nil {
			artifacts = make(map[string]any)
		}
		for name, paths := range l.artifacts {
			artifacts[name] = slices.Clone(paths)
		}
		m["artifacts"] = artifacts
	}
	if len(l.artifacts[ArtifactStderr]) > 0 {
		m["has_stderr"] = true
	}
	if l.stats != nil {
		m["image_diff_stats"] = *l.stats
	}
	if shard != nil {
		m["shard"] = *shard
	}
}

// splitName returns the path components of a test name. A variant stays attached to
// the file name.
func splitName(name string) []string {
	file, query, hasQuery := strings.Cut(name, "?")
	parts := strings.Split(file, "/")
	if hasQuery {
		parts[len(parts)-1] += "?" + query
	}
	return parts
}

func isLeaf(node map[string]any) bool {
	_, ok := node["actual"].(string)
	return ok
}

// ResultsJSON returns the results processed so far, as a results trie.
func (p *Processor) ResultsJSON() map[string]any {
	tests := make(map[string]any)
	failuresByType := make(map[string]int)
	passes := 0
	for name, l := range p.leaves {
		node := tests
		parts := splitName(name)
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = l.json(p.cfg.ShardIndex)

		final := l.actual[len(l.actual)-1]
		failuresByType[string(final)]++
		if final == Pass {
			passes++
		}
	}

	return map[string]any{
		"version":              3,
		"interrupted":          p.interrupted,
		"path_delimiter":       "/",
		"seconds_since_epoch":  p.started.Unix(),
		"num_passes":           passes,
		"num_failures_by_type": failuresByType,
		"tests":                tests,
	}
}

// annotateResults adds the artifacts of the processed tests to an existing results trie.
func (p *Processor) annotateResults(tests map[string]any) {
	for name, l := range p.leaves {
		node := tests
		for _, part := range splitName(name) {
			child, ok := node[part].(map[string]any)
			if !ok {
				node = nil
				break
			}
			node = child
		}
		if node == nil || !isLeaf(node) {
			p.log.Debug("Test missing from the results", "test", name)
			continue
		}
		l.annotate(node, p.cfg.ShardIndex)
	}
}

// CountRegressions returns the number of leaves of a results trie flagged as
// regressions.
func CountRegressions(tests map[string]any) int {
	n := 0
	for _, v := range tests {
		node, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if !isLeaf(node) {
			n += CountRegressions(node)
			continue
		}
		if r, _ := node["is_regression"].(bool); r {
			n++
		}
	}
	return n
}

// TrimToRegressions removes from a results trie the leaves that are not regressions,
// then the directories left empty.
func TrimToRegressions(tests map[string]any) {
	for k, v := range tests {
		node, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if isLeaf(node) {
			if r, _ := node["is_regression"].(bool); !r {
				delete(tests, k)
			}
			continue
		}
		TrimToRegressions(node)
		if len(node) == 0 {
			delete(tests, k)
		}
	}
}

// ProcessResultsJSON writes the full results, their JSONP form and the failing
// results to the artifacts directory. raw, when not nil, is a results JSON produced by
// the runner to annotate with the artifacts. Otherwise, the processed results are
// written.
func (p *Processor) ProcessResultsJSON(raw io.Reader) (err error) {
	defer decorate.OnError(&err, "could not process results JSON")

	if p.workerRunning() {
		return ErrWorkerRunning
	}

	full := p.ResultsJSON()
	if raw != nil {
		full = nil
		if err := fileutils.ParseJSON(raw, &full); err != nil {
			return err
		}
		if tests, ok := full["tests"].(map[string]any); ok {
			p.annotateResults(tests)
		}
	}
	tests, _ := full["tests"].(map[string]any)
	full["num_regressions"] = CountRegressions(tests)

	data, err := json.Marshal(full)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p.cfg.ArtifactsDir, 0750); err != nil {
		return err
	}
	if err := fileutils.AtomicWrite(filepath.Join(p.cfg.ArtifactsDir, FullResultsFile), data); err != nil {
		return err
	}
	if err := fileutils.AtomicWrite(filepath.Join(p.cfg.ArtifactsDir, FullResultsJSONPFile), jsonp("ADD_FULL_RESULTS", data)); err != nil {
		return err
	}

	var failing map[string]any
	if err := json.Unmarshal(data, &failing); err != nil {
		return err
	}
	if tests, ok := failing["tests"].(map[string]any); ok {
		TrimToRegressions(tests)
	}
	data, err = json.Marshal(failing)
	if err != nil {
		return err
	}
	return fileutils.AtomicWrite(filepath.Join(p.cfg.ArtifactsDir, FailingResultsFile), jsonp("ADD_RESULTS", data))
}

func jsonp(callback string, data []byte) []byte {
	return slices.Concat([]byte(callback+"("), data, []byte(");"))
}

// ProcessWPTReport consolidates the reports of every retry found in src, one JSON
// report per line, into the report of the first try. The result is written to the
// artifacts directory and reported to the sink.
func (p *Processor) ProcessWPTReport(ctx context.Context, src string) (err error) {
	defer decorate.OnError(&err, "could not process WPT report %s", src)

	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	var report map[string]any
	var results []any
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var r map[string]any
		if err := dec.Decode(&r); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return err
		}
		if report == nil {
			report = r
		}
		rs, _ := r["results"].([]any)
		results = append(results, rs...)
	}
	if report == nil {
		return fmt.Errorf("empty report")
	}
	for _, r := range results {
		if m, ok := r.(map[string]any); ok {
			compactResult(m)
			subtests, _ := m["subtests"].([]any)
			for _, s := range subtests {
				if sm, ok := s.(map[string]any); ok {
					compactResult(sm)
				}
			}
		}
	}
	report["results"] = results

	out, err := json.Marshal(report)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p.cfg.ArtifactsDir, 0750); err != nil {
		return err
	}
	dest := filepath.Join(p.cfg.ArtifactsDir, WPTReportFile)
	if err := fileutils.AtomicWrite(dest, out); err != nil {
		return err
	}
	p.log.Info("WPT report written", "path", dest, "results", len(results))
	return p.sink.ReportInvocationArtifacts(ctx, map[string]string{WPTReportFile: dest})
}

// compactResult drops the fields of a report entry that carry no information.
func compactResult(r map[string]any) {
	delete(r, "message")
	if r["expected"] == r["status"] {
		delete(r, "expected")
	}
	if ki, ok := r["known_intermittent"].([]any); ok && len(ki) == 0 {
		delete(r, "known_intermittent")
	}
}
