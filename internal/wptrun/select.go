package wptrun

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/browser-infra/buildtools/internal/fileutils"
	"github.com/browser-infra/buildtools/internal/wptresults"
	"gopkg.in/ini.v1"
)

const (
	wptDir         = "external/wpt"
	wptInternalDir = "wpt_internal"
)

// TestName returns the web tests name of a WPT test ID.
func TestName(id string) string {
	if strings.HasPrefix(id, "/"+wptInternalDir+"/") {
		return strings.TrimPrefix(id, "/")
	}
	return wptDir + id
}

// TestID returns the WPT test ID of a non virtual web tests name. ok is false for names
// outside of the WPT directories.
func TestID(name string) (id string, ok bool) {
	if rest, ok := strings.CutPrefix(name, wptDir+"/"); ok {
		return "/" + rest, true
	}
	if strings.HasPrefix(name, wptInternalDir+"/") {
		return "/" + name, true
	}
	return "", false
}

// Selection maps subsuites to the IDs of their tests. Tests outside of any virtual suite
// are under the empty subsuite.
type Selection map[string][]string

// Len returns the number of selected tests.
func (s Selection) Len() int {
	n := 0
	for _, ids := range s {
		n += len(ids)
	}
	return n
}

// matches reports whether a web tests path selects the test of item named name. Paths
// select directories, files and single variants.
func matches(p, name string, item wptresults.ManifestItem) bool {
	p = strings.TrimSuffix(p, "/")
	file := TestName(item.Path)
	for _, n := range []string{name, file} {
		if n == p || strings.HasPrefix(n, p+"/") || strings.HasPrefix(n, p+"?") {
			return true
		}
	}
	return false
}

// coveredByBases reports whether name is under one of the bases of a virtual suite.
func coveredByBases(bases []string, name string, item wptresults.ManifestItem) bool {
	for _, b := range bases {
		if matches(strings.TrimSuffix(b, "/"), name, item) {
			return true
		}
	}
	return false
}

// SelectTests returns the tests of manifest selected by web tests paths. Without paths,
// every test runs, in every virtual suite enabled on the platform of p.
func SelectTests(p Port, manifest wptresults.Manifest, paths []string, log *slog.Logger) (Selection, error) {
	sel := make(map[string]map[string]bool)
	add := func(subsuite, id string) {
		if sel[subsuite] == nil {
			sel[subsuite] = make(map[string]bool)
		}
		sel[subsuite][id] = true
	}

	ids := slices.Sorted(maps.Keys(manifest))
	if len(paths) == 0 {
		for _, id := range ids {
			if !p.skipsBaseTest(TestName(id)) {
				add("", id)
			}
		}
		for _, s := range p.Suites {
			if !p.suiteEnabled(s) {
				continue
			}
			for _, id := range ids {
				if coveredByBases(s.Bases, TestName(id), manifest[id]) {
					add(s.Prefix, id)
				}
			}
		}
		return flatten(sel), nil
	}

	for _, raw := range paths {
		tp := path.Clean(filepath.ToSlash(raw))
		found := false

		if strings.HasPrefix(tp, "virtual/") {
			s, ok := p.LookupVirtualSuite(tp + "/")
			if !ok {
				return nil, fmt.Errorf("no virtual test suite for %s", raw)
			}
			if !p.suiteEnabled(s) {
				log.Info("Skipping tests of a virtual suite disabled on this platform", "path", raw, "platform", p.OS)
				continue
			}
			real := strings.TrimPrefix(tp+"/", s.FullPrefix())
			for _, id := range ids {
				name := TestName(id)
				if (real == "" || matches(real, name, manifest[id])) && coveredByBases(s.Bases, name, manifest[id]) {
					add(s.Prefix, id)
					found = true
				}
			}
		} else {
			for _, id := range ids {
				if matches(tp, TestName(id), manifest[id]) {
					add("", id)
					found = true
				}
			}
		}

		if !found {
			log.Warn("No WPT test matches path", "path", raw)
		}
	}
	return flatten(sel), nil
}

func flatten(sel map[string]map[string]bool) Selection {
	out := make(Selection)
	for subsuite, ids := range sel {
		out[subsuite] = slices.Sorted(maps.Keys(ids))
	}
	return out
}

// FilterDisabled removes the tests disabled by their WPT metadata under webTestsDir. It
// returns the number of tests removed.
func FilterDisabled(webTestsDir string, sel Selection, log *slog.Logger) (removed int, err error) {
	cache := make(map[string]*ini.File)
	for subsuite, ids := range sel {
		kept := ids[:0]
		for _, id := range ids {
			disabled, err := isDisabled(webTestsDir, id, cache)
			if err != nil {
				return removed, err
			}
			if disabled {
				log.Debug("Test disabled by its metadata", "test", id, "subsuite", subsuite)
				removed++
				continue
			}
			kept = append(kept, id)
		}
		sel[subsuite] = kept
	}
	return removed, nil
}

func isDisabled(webTestsDir, id string, cache map[string]*ini.File) (bool, error) {
	file, query, hasQuery := strings.Cut(TestName(id), "?")
	p := filepath.Join(webTestsDir, filepath.FromSlash(file)+".ini")

	f, ok := cache[p]
	if !ok {
		if _, err := os.Stat(p); err == nil {
			f, err = ini.LoadSources(ini.LoadOptions{
				IgnoreInlineComment:     true,
				KeyValueDelimiters:      ":",
				SkipUnrecognizableLines: true,
				AllowNonUniqueSections:  true,
			}, p)
			if err != nil {
				return false, fmt.Errorf("could not parse metadata %s: %v", p, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
		cache[p] = f
	}
	if f == nil {
		return false, nil
	}

	section := path.Base(file)
	if hasQuery {
		section += "?" + query
	}
	s, err := f.GetSection(section)
	if err != nil {
		return false, nil
	}
	if !s.HasKey("disabled") {
		return false, nil
	}
	v := strings.TrimSpace(s.Key("disabled").String())
	return v != "@False" && v != "false", nil
}

// SubSuite is the wptrunner description of one subsuite.
type SubSuite struct {
	Name    string         `json:"name"`
	Config  map[string]any `json:"config"`
	RunInfo map[string]any `json:"run_info"`
	Include []string       `json:"include"`
}

// SubSuites returns the wptrunner subsuites of the virtual suites in sel.
func SubSuites(p Port, sel Selection) map[string]SubSuite {
	subsuites := make(map[string]SubSuite)
	for _, s := range p.Suites {
		ids := sel[s.Prefix]
		if len(ids) == 0 {
			continue
		}
		subsuites[s.Prefix] = SubSuite{
			Name:    s.Prefix,
			Config:  map[string]any{"binary_args": s.Args},
			RunInfo: map[string]any{"virtual_suite": s.Prefix},
			Include: ids,
		}
	}
	return subsuites
}

// writeSubSuites writes the subsuites of sel as a wptrunner subsuite file.
func writeSubSuites(dest string, p Port, sel Selection) ([]string, error) {
	subsuites := SubSuites(p, sel)
	data, err := json.MarshalIndent(subsuites, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := fileutils.AtomicWrite(dest, data); err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(subsuites)), nil
}

// writeIncludeFile writes the base tests of sel, one per line.
func writeIncludeFile(dest string, sel Selection) error {
	var b strings.Builder
	for _, id := range sel[""] {
		b.WriteString(id + "\n")
	}
	return fileutils.AtomicWrite(dest, []byte(b.String()))
}
