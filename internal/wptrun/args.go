package wptrun

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const (
	enableFeatures  = "--enable-features="
	disableFeatures = "--disable-features="

	hostResolverRules = "--host-resolver-rules=MAP nonexistent.*.test ^NOTFOUND, MAP *.test 127.0.0.1, MAP *.test. 127.0.0.1"
)

// Config describes a run of web platform tests.
type Config struct {
	// WebTestsDir holds external/wpt, wpt_internal and the port configuration files.
	WebTestsDir string `mapstructure:"web_tests_dir"`
	// TargetDir is the build output directory holding the browser and its driver.
	TargetDir string `mapstructure:"target_dir"`
	// ResultsDir defaults to layout-test-results under TargetDir.
	ResultsDir string `mapstructure:"results_dir"`
	// ClobberResults deletes the previous results instead of archiving them.
	ClobberResults bool `mapstructure:"clobber_results"`

	// Python runs WPTScript, the wpt command line entry point.
	Python    string `mapstructure:"python"`
	WPTScript string `mapstructure:"wpt_script"`
	Product   string `mapstructure:"product"`
	Binary    string `mapstructure:"binary"`
	Driver    string `mapstructure:"driver"`
	// CertsDir holds the CA and server certificates of the test servers.
	CertsDir string `mapstructure:"certs_dir"`

	Paths                 []string `mapstructure:"paths"`
	FlagSpecific          string   `mapstructure:"flag_specific"`
	AdditionalDriverFlags []string `mapstructure:"additional_driver_flags"`

	ShardIndex  *int `mapstructure:"shard_index"`
	TotalShards *int `mapstructure:"total_shards"`
	// Upstream runs the upstream test suite, chunked by wptrunner itself.
	Upstream bool `mapstructure:"upstream"`

	Processes         int     `mapstructure:"processes"`
	Repeat            int     `mapstructure:"repeat"`
	RetryUnexpected   int     `mapstructure:"retry_unexpected"`
	TimeoutMultiplier float64 `mapstructure:"timeout_multiplier"`
	Headless          bool    `mapstructure:"headless"`
	Debug             bool    `mapstructure:"debug"`
	Sanitizer         bool    `mapstructure:"sanitizer"`
	ResetResults      bool    `mapstructure:"reset_results"`

	FailureThreshold      int `mapstructure:"failure_threshold"`
	CrashTimeoutThreshold int `mapstructure:"crash_timeout_threshold"`

	// Formatter selects the console output, "grouped" or "mach".
	Formatter string `mapstructure:"formatter"`
}

// RunFiles are the files generated for one invocation.
type RunFiles struct {
	Config       string
	IncludeFile  string
	SubsuiteFile string
	Subsuites    []string
	RunInfoDir   string
	WPTReport    string
}

// BuildArgs returns the wpt command line of a run executing shard index out of total.
func BuildArgs(cfg Config, flags []string, files RunFiles, index, total int) []string {
	args := []string{
		cfg.WPTScript, "run",
		"--config=" + files.Config,
		"--run-info=" + files.RunInfoDir,
		"--log-raw=-",
		"--log-wptreport=" + files.WPTReport,
		"--no-manifest-download",
		"--no-manifest-update",
		"--no-pause-after-test",
		"--no-capture-stdio",
		"--no-fail-on-unexpected",
		"--binary=" + cfg.Binary,
		"--webdriver-binary=" + cfg.Driver,
		"--webdriver-arg=--enable-chrome-logs",
	}

	if cfg.CertsDir != "" {
		args = append(args,
			"--ca-cert-path="+filepath.Join(cfg.CertsDir, "cacert.pem"),
			"--host-key-path="+filepath.Join(cfg.CertsDir, "127.0.0.1.key"),
			"--host-cert-path="+filepath.Join(cfg.CertsDir, "127.0.0.1.pem"),
		)
	}

	args = append(args, "--binary-arg="+hostResolverRules)
	for _, f := range flags {
		args = append(args, "--binary-arg="+f)
	}

	if cfg.Headless {
		args = append(args, "--headless")
	} else {
		args = append(args, "--no-headless")
	}
	if cfg.Processes > 0 {
		args = append(args, "--processes="+strconv.Itoa(cfg.Processes))
	}
	if cfg.Repeat > 1 {
		args = append(args, "--repeat="+strconv.Itoa(cfg.Repeat))
	}
	if cfg.RetryUnexpected > 0 {
		args = append(args, "--retry-unexpected="+strconv.Itoa(cfg.RetryUnexpected))
	}
	if cfg.TimeoutMultiplier > 0 {
		args = append(args, "--timeout-multiplier="+strconv.FormatFloat(cfg.TimeoutMultiplier, 'f', -1, 64))
	}
	if cfg.Debug {
		args = append(args, "--debug-test")
	}

	if cfg.Upstream && total > 1 {
		args = append(args,
			"--total-chunks="+strconv.Itoa(total),
			"--this-chunk="+strconv.Itoa(index+1),
			"--chunk-type=id_hash",
		)
	}

	if !cfg.Upstream {
		args = append(args, "--default-exclude", "--include-file="+files.IncludeFile)
	}
	if files.SubsuiteFile != "" {
		args = append(args, "--subsuite-file="+files.SubsuiteFile)
		for _, s := range files.Subsuites {
			args = append(args, "--subsuite="+s)
		}
	}

	return append(args, cfg.Product)
}

// CoalesceFeatureFlags merges repeated --enable-features and --disable-features
// switches into one each, at the position of their first occurrence. Other switches keep
// their order.
func CoalesceFeatureFlags(flags []string) []string {
	var out []string
	features := map[string][]string{}
	seen := map[string]bool{}
	for _, f := range flags {
		prefix := ""
		switch {
		case strings.HasPrefix(f, enableFeatures):
			prefix = enableFeatures
		case strings.HasPrefix(f, disableFeatures):
			prefix = disableFeatures
		default:
			out = append(out, f)
			continue
		}

		if !seen[prefix] {
			seen[prefix] = true
			out = append(out, prefix)
		}
		for _, v := range strings.Split(strings.TrimPrefix(f, prefix), ",") {
			if v != "" && !slices.Contains(features[prefix], v) {
				features[prefix] = append(features[prefix], v)
			}
		}
	}

	for i, f := range out {
		if seen[f] {
			out[i] = f + strings.Join(features[f], ",")
		}
	}
	return out
}

// Shard keeps the tests of sel run by shard index out of total. Tests are dealt in the
// order of their subsuite then ID.
func Shard(sel Selection, index, total int) Selection {
	if total <= 1 {
		return sel
	}
	out := make(Selection)
	i := 0
	for _, subsuite := range slices.Sorted(maps.Keys(sel)) {
		for _, id := range sel[subsuite] {
			if i%total == index {
				out[subsuite] = append(out[subsuite], id)
			}
			i++
		}
	}
	return out
}

// testLabel is the name of a test in the console, with its virtual suite.
func testLabel(id, subsuite string) string {
	name := TestName(id)
	if subsuite != "" {
		name = "virtual/" + subsuite + "/" + name
	}
	return name
}

func describeShard(index, total int) string {
	if total <= 1 {
		return "all tests"
	}
	return fmt.Sprintf("shard %d of %d", index+1, total)
}
