// Package wptrun runs web platform tests through wptrunner the way the web tests
// harness expects: tests are selected from web tests paths, virtual suites become
// wptrunner subsuites and results are processed as they are produced.
package wptrun

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

const (
	virtualSuitesFile  = "VirtualTestSuites"
	flagSpecificFile   = "FlagSpecificConfig"
	driverFlagsFile    = "additional-driver-flag.setting"
	threadedCompositor = "--enable-threaded-compositing"
)

// Certificate fingerprints trusted by the browser under test.
var knownFingerprints = []string{
	"Nxvaj3+bY3oVrTc+Jp7m3E3sB1n3lXtnMDCyBsqEXiY=",
	"55qC1nKu2A88ESbFmk5sTPQS/ScG+8DD7P+2bgFA9iM=",
	"0Rt4mT6SJXojEMHTnKnlJ/hBKMBcI4kteBlhR1eTTdk=",
}

var validNameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// VirtualSuite runs a set of base tests again with extra browser switches.
type VirtualSuite struct {
	Prefix    string   `json:"prefix"`
	Platforms []string `json:"platforms"`
	Bases     []string `json:"bases"`
	Args      []string `json:"args"`
	// ExclusiveTests and SkipBaseTests accept "ALL" for every base.
	ExclusiveTests allOrList `json:"exclusive_tests"`
	SkipBaseTests  allOrList `json:"skip_base_tests"`
	Owners         []string  `json:"owners"`
	Expires        string    `json:"expires"`
	Disabled       bool      `json:"disabled"`
}

// allOrList is a list of tests, or "ALL".
type allOrList struct {
	all   bool
	tests []string
}

func (l *allOrList) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != "ALL" {
			return fmt.Errorf("invalid test list %q", s)
		}
		l.all = true
		return nil
	}
	return json.Unmarshal(b, &l.tests)
}

func (l allOrList) resolve(bases []string) []string {
	if l.all {
		return bases
	}
	return l.tests
}

// FullPrefix is the path every test of the suite is under.
func (s VirtualSuite) FullPrefix() string {
	return "virtual/" + s.Prefix + "/"
}

// SkipsBaseTests returns the base tests of s not to run outside of the suite.
func (s VirtualSuite) SkipsBaseTests() []string {
	return s.SkipBaseTests.resolve(s.Bases)
}

// ExclusiveBaseTests returns the tests only to run in s and its siblings.
func (s VirtualSuite) ExclusiveBaseTests() []string {
	return s.ExclusiveTests.resolve(s.Bases)
}

// LoadVirtualSuites decodes a VirtualTestSuites file. Strings in the list are comments.
func LoadVirtualSuites(r io.Reader) ([]VirtualSuite, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid virtual test suites: %v", err)
	}

	var suites []VirtualSuite
	for _, entry := range raw {
		var comment string
		if json.Unmarshal(entry, &comment) == nil {
			continue
		}
		var s VirtualSuite
		if err := json.Unmarshal(entry, &s); err != nil {
			return nil, fmt.Errorf("invalid virtual test suite %s: %v", entry, err)
		}
		if !validNameRe.MatchString(s.Prefix) {
			return nil, fmt.Errorf("virtual test suite prefix %q contains invalid characters", s.Prefix)
		}
		if len(s.Args) == 0 {
			return nil, fmt.Errorf("virtual test suite %q has no args", s.Prefix)
		}
		if slices.ContainsFunc(suites, func(o VirtualSuite) bool { return o.Prefix == s.Prefix }) {
			return nil, fmt.Errorf("virtual test suites contain entries with the same prefix %q, please combine them", s.Prefix)
		}
		for i, p := range s.Platforms {
			s.Platforms[i] = strings.ToLower(p)
		}
		s.Args = sortedArgs(s.Args)
		suites = append(suites, s)
	}
	return suites, nil
}

// sortedArgs sorts switches, keeping the threaded compositing switch last so that suites
// only differing by it can share a browser.
func sortedArgs(args []string) []string {
	args = slices.Clone(args)
	slices.Sort(args)
	if i := slices.Index(args, threadedCompositor); i >= 0 {
		args = append(slices.Delete(args, i, i+1), threadedCompositor)
	}
	return args
}

// FlagSpecificConfig is a named set of switches applied to a whole run.
type FlagSpecificConfig struct {
	Name      string   `json:"name"`
	Args      []string `json:"args"`
	SmokeFile string   `json:"smoke_file"`
}

// LoadFlagSpecificConfigs decodes a FlagSpecificConfig file.
func LoadFlagSpecificConfigs(r io.Reader) (map[string]FlagSpecificConfig, error) {
	var list []FlagSpecificConfig
	if err := json.NewDecoder(r).Decode(&list); err != nil {
		return nil, fmt.Errorf("invalid flag specific configs: %v", err)
	}

	configs := make(map[string]FlagSpecificConfig)
	for _, c := range list {
		if !validNameRe.MatchString(c.Name) {
			return nil, fmt.Errorf("flag specific config name %q contains invalid characters", c.Name)
		}
		if _, ok := configs[c.Name]; ok {
			return nil, fmt.Errorf("duplicated flag specific config %q", c.Name)
		}
		for _, o := range configs {
			if slices.Equal(o.Args, c.Args) {
				return nil, fmt.Errorf("flag specific config %q has the same args as %q", c.Name, o.Name)
			}
		}
		configs[c.Name] = c
	}
	return configs, nil
}

// ErrUnknownFlagSpecific is returned for a flag specific config missing from the
// configuration file.
var ErrUnknownFlagSpecific = errors.New("unknown flag specific config")

// Port knows the web tests layout of one platform.
type Port struct {
	WebTestsDir string
	// OS is the lower case platform name virtual suites are filtered with.
	OS           string
	Suites       []VirtualSuite
	FlagSpecific map[string]FlagSpecificConfig
}

// LoadPort reads the virtual suites and flag specific configs of webTestsDir.
func LoadPort(webTestsDir, goos string) (Port, error) {
	p := Port{WebTestsDir: webTestsDir, OS: platformName(goos)}

	f, err := os.Open(filepath.Join(webTestsDir, virtualSuitesFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return p, err
	}
	if err == nil {
		defer f.Close()
		if p.Suites, err = LoadVirtualSuites(f); err != nil {
			return p, err
		}
	}

	fc, err := os.Open(filepath.Join(webTestsDir, flagSpecificFile))
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	defer fc.Close()
	p.FlagSpecific, err = LoadFlagSpecificConfigs(fc)
	return p, err
}

func platformName(goos string) string {
	switch goos {
	case "darwin":
		return "mac"
	case "windows":
		return "win"
	}
	return goos
}

// LookupVirtualSuite returns the suite test is part of.
func (p Port) LookupVirtualSuite(test string) (VirtualSuite, bool) {
	if !strings.HasPrefix(test, "virtual/") {
		return VirtualSuite{}, false
	}
	for _, s := range p.Suites {
		if strings.HasPrefix(test, s.FullPrefix()) {
			return s, true
		}
	}
	return VirtualSuite{}, false
}

// VirtualTestBase returns the base test of a virtual test, when one of the suite bases
// covers it.
func (p Port) VirtualTestBase(test string) (string, bool) {
	s, ok := p.LookupVirtualSuite(test)
	if !ok {
		return "", false
	}
	base := strings.TrimPrefix(test, s.FullPrefix())
	for _, b := range s.Bases {
		// A .any.js base covers the tests generated from it.
		b = strings.TrimSuffix(b, "js")
		if strings.HasPrefix(b, base) || strings.HasPrefix(base, b) {
			return base, true
		}
	}
	return "", false
}

// suiteEnabled reports whether s runs on the platform of p.
func (p Port) suiteEnabled(s VirtualSuite) bool {
	return !s.Disabled && slices.Contains(s.Platforms, p.OS)
}

// skipsBaseTest reports whether a non virtual test only runs as part of a suite.
func (p Port) skipsBaseTest(test string) bool {
	for _, s := range p.Suites {
		if !slices.Contains(s.Platforms, p.OS) {
			continue
		}
		for _, b := range s.SkipsBaseTests() {
			if strings.HasPrefix(test, strings.TrimSuffix(b, "js")) {
				return true
			}
		}
	}
	return false
}

// AdditionalDriverFlags returns the switches of every test of the run: the settings
// file, the flag specific config and extra, followed by the switches the test servers
// need.
func (p Port) AdditionalDriverFlags(flagSpecific string, extra []string) ([]string, error) {
	var flags []string
	data, err := os.ReadFile(filepath.Join(p.WebTestsDir, driverFlagsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	flags = append(flags, strings.Fields(string(data))...)

	if flagSpecific != "" {
		c, ok := p.FlagSpecific[flagSpecific]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownFlagSpecific, flagSpecific)
		}
		flags = append(flags, c.Args...)
	}
	flags = append(flags, extra...)
	return append(flags,
		"--ignore-certificate-errors-spki-list="+strings.Join(knownFingerprints, ","),
		"--webtransport-developer-mode",
		"--touch-events=enabled",
	), nil
}
