package wptresults

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/browser-infra/buildtools/internal/httpclient"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Result is the outcome of one run of a test.
type Result struct {
	Name       string
	Actual     ResultType
	Expected   []ResultType
	Unexpected bool
	Took       time.Duration
	// Artifacts maps artifact names to paths relative to ArtifactRoot.
	Artifacts    map[string][]string
	ArtifactRoot string
	// Summary is an HTML snippet shown next to unexpected results.
	Summary string
	// TestFile is the file defining the test, relative to the web tests directory.
	TestFile string
}

// Sink receives the results of a run as they are produced.
type Sink interface {
	ReportResult(ctx context.Context, r Result) error
	ReportInvocationArtifacts(ctx context.Context, artifacts map[string]string) error
}

type discardSink struct{}

func (discardSink) ReportResult(context.Context, Result) error { return nil }

func (discardSink) ReportInvocationArtifacts(context.Context, map[string]string) error { return nil }

// SinkConfig locates a local result sink server.
type SinkConfig struct {
	Address   string `mapstructure:"address" json:"address"`
	AuthToken string `mapstructure:"auth_token" json:"auth_token"`
	// LocationPrefix is the path of the web tests directory in the source repository.
	LocationPrefix string            `mapstructure:"location_prefix"`
	Repo           string            `mapstructure:"repo"`
	HTTP           httpclient.Config `mapstructure:"http"`
}

// ResultSink uploads results to a local result sink server over its pRPC API.
type ResultSink struct {
	cfg    SinkConfig
	client *resty.Client
	log    *slog.Logger
}

// ErrNoResultSink is returned when no result sink is configured in the environment.
var ErrNoResultSink = errors.New("no result sink available")

// NewResultSink returns a sink uploading to the server at cfg.Address.
func NewResultSink(log *slog.Logger, cfg SinkConfig) (*ResultSink, error) {
	if cfg.Address == "" {
		return nil, ErrNoResultSink
	}
	if cfg.LocationPrefix == "" {
		cfg.LocationPrefix = "third_party/blink/web_tests"
	}
	if cfg.Repo == "" {
		cfg.Repo = "https://chromium.googlesource.com/chromium/src"
	}
	c := httpclient.New(log, cfg.HTTP).
		SetBaseURL("http://"+cfg.Address+"/prpc/luci.resultsink.v1.Sink").
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "ResultSink "+cfg.AuthToken)
	return &ResultSink{cfg: cfg, client: c, log: log}, nil
}

// SinkConfigFromLUCIContext reads the result sink section of the file named by the
// LUCI_CONTEXT environment variable.
func SinkConfigFromLUCIContext() (SinkConfig, error) {
	p := os.Getenv("LUCI_CONTEXT")
	if p == "" {
		return SinkConfig{}, ErrNoResultSink
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return SinkConfig{}, fmt.Errorf("could not read LUCI context: %v", err)
	}
	var luciCtx struct {
		ResultSink *SinkConfig `json:"result_sink"`
	}
	if err := json.Unmarshal(data, &luciCtx); err != nil {
		return SinkConfig{}, fmt.Errorf("invalid LUCI context %s: %v", p, err)
	}
	if luciCtx.ResultSink == nil || luciCtx.ResultSink.Address == "" {
		return SinkConfig{}, ErrNoResultSink
	}
	return *luciCtx.ResultSink, nil
}

type sinkArtifact struct {
	FilePath string `json:"filePath"`
}

type sinkTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type sinkTestResult struct {
	TestID       string                  `json:"testId"`
	ResultID     string                  `json:"resultId"`
	Expected     bool                    `json:"expected"`
	Status       string                  `json:"status"`
	SummaryHTML  string                  `json:"summaryHtml,omitempty"`
	Duration     string                  `json:"duration"`
	Tags         []sinkTag               `json:"tags"`
	Artifacts    map[string]sinkArtifact `json:"artifacts,omitempty"`
	TestMetadata map[string]any          `json:"testMetadata"`
}

var sinkStatuses = map[ResultType]string{
	Pass:    "PASS",
	Failure: "FAIL",
	Skip:    "SKIP",
	Timeout: "ABORT",
	Crash:   "CRASH",
}

// ReportResult implements Sink.
func (s *ResultSink) ReportResult(ctx context.Context, r Result) error {
	tr := sinkTestResult{
		TestID:   r.Name,
		ResultID: uuid.NewString(),
		Expected: !r.Unexpected,
		Status:   sinkStatuses[r.Actual],
		// The API expects a JSON duration, in seconds with a fractional part.
		Duration: strconv.FormatFloat(r.Took.Seconds(), 'f', 3, 64) + "s",
		Tags: []sinkTag{
			{Key: "web_tests_result_type", Value: string(r.Actual)},
			{Key: "web_tests_test_type", Value: "wpt"},
		},
		TestMetadata: map[string]any{"name": r.Name},
		Artifacts:    make(map[string]sinkArtifact),
	}
	if r.Unexpected {
		tr.SummaryHTML = r.Summary
	}
	for _, e := range r.Expected {
		tr.Tags = append(tr.Tags, sinkTag{Key: "web_tests_expected_result", Value: string(e)})
	}
	for name, paths := range r.Artifacts {
		for i, p := range paths {
			id := name
			if i > 0 {
				id = fmt.Sprintf("%s_%d", name, i)
			}
			tr.Artifacts[id] = sinkArtifact{FilePath: filepath.Join(r.ArtifactRoot, p)}
		}
	}
	if r.TestFile != "" {
		tr.TestMetadata["location"] = map[string]string{
			"repo":     s.cfg.Repo,
			"fileName": "//" + path.Join(s.cfg.LocationPrefix, r.TestFile),
		}
	}

	return s.post(ctx, "ReportTestResults", map[string]any{"testResults": []sinkTestResult{tr}})
}

// ReportInvocationArtifacts implements Sink. artifacts maps names to absolute paths.
func (s *ResultSink) ReportInvocationArtifacts(ctx context.Context, artifacts map[string]string) error {
	body := make(map[string]sinkArtifact)
	for name, p := range artifacts {
		body[name] = sinkArtifact{FilePath: p}
	}
	return s.post(ctx, "ReportInvocationLevelArtifacts", map[string]any{"artifacts": body})
}

func (s *ResultSink) post(ctx context.Context, method string, body any) error {
	resp, err := s.client.R().SetContext(ctx).SetBody(body).Post("/" + method)
	if err != nil {
		return fmt.Errorf("could not call %s: %v", method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s failed with status %d: %s", method, resp.StatusCode(), resp.String())
	}
	s.log.Debug("Reported to result sink", "method", method)
	return nil
}
