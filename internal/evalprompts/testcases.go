package evalprompts

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/ubuntu/decorate"
	"gopkg.in/yaml.v3"
)

// TestFileSuffix is the suffix of prompt evaluation test files.
const TestFileSuffix = ".promptfoo.yaml"

// TestConfig is a discovered prompt evaluation test file.
type TestConfig struct {
	TestFile string   `yaml:"-"`
	Tags     []string `yaml:"tags"`
}

// LoadTestConfig reads the metadata of a test file.
func LoadTestConfig(path string) (c TestConfig, err error) {
	defer decorate.OnError(&err, "could not load test config %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, err
	}
	c.TestFile = path
	return c, nil
}

// searchRoots are the directories, relative to the source root, holding test files.
// Each entry is a glob.
var searchRoots = []string{
	filepath.Join("agents", "extensions", "*", "tests"),
	filepath.Join("agents", "prompts", "eval"),
}

// DiscoverTestcaseFiles returns all test files under the search roots of srcRoot, sorted by path.
func DiscoverTestcaseFiles(srcRoot string) (configs []TestConfig, err error) {
	defer decorate.OnError(&err, "could not discover test files")

	for _, pattern := range searchRoots {
		dirs, err := filepath.Glob(filepath.Join(srcRoot, pattern))
		if err != nil {
			return nil, err
		}
		for _, dir := range dirs {
			err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() || !strings.HasSuffix(d.Name(), TestFileSuffix) {
					return nil
				}
				c, err := LoadTestConfig(path)
				if err != nil {
					return err
				}
				configs = append(configs, c)
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}

	slices.SortFunc(configs, func(a, b TestConfig) int { return strings.Compare(a.TestFile, b.TestFile) })
	return configs, nil
}

// SelectTests filters configs then keeps the ones belonging to the shard.
// filter is a "::" separated list of shell patterns matched against the whole test path.
// tagFilter is a comma separated list of tags: a test must carry one of the positive tags,
// if any, and none of the negative ("-" prefixed) ones.
func SelectTests(configs []TestConfig, index, total int, filter, tagFilter string) ([]TestConfig, error) {
	var patterns []*regexp.Regexp
	if filter != "" {
		for _, f := range strings.Split(filter, "::") {
			re, err := globToRegexp(f)
			if err != nil {
				return nil, fmt.Errorf("invalid filter %q: %v", f, err)
			}
			patterns = append(patterns, re)
		}
	}

	var include, exclude []string
	for _, t := range strings.Split(tagFilter, ",") {
		t = strings.TrimSpace(t)
		switch {
		case t == "":
		case strings.HasPrefix(t, "-"):
			exclude = append(exclude, t[1:])
		default:
			include = append(include, t)
		}
	}

	var filtered []TestConfig
	for _, c := range configs {
		if len(patterns) > 0 && !slices.ContainsFunc(patterns, func(re *regexp.Regexp) bool { return re.MatchString(c.TestFile) }) {
			continue
		}
		if len(include) > 0 && !slices.ContainsFunc(include, func(t string) bool { return slices.Contains(c.Tags, t) }) {
			continue
		}
		if slices.ContainsFunc(exclude, func(t string) bool { return slices.Contains(c.Tags, t) }) {
			continue
		}
		filtered = append(filtered, c)
	}

	slices.SortFunc(filtered, func(a, b TestConfig) int { return strings.Compare(a.TestFile, b.TestFile) })

	var selected []TestConfig
	for i, c := range filtered {
		if i%total == index {
			selected = append(selected, c)
		}
	}
	return selected, nil
}

// globToRegexp translates a shell pattern where '*' and '?' also match path separators.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
