package wptresults_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/browser-infra/buildtools/internal/httpclient"
	"github.com/browser-infra/buildtools/internal/testutils"
	"github.com/browser-infra/buildtools/internal/wptresults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAny = errors.New("any error")

type sinkRequest struct {
	path string
	auth string
	body map[string]any
}

// newSinkServer returns a result sink server answering with status, and the requests
// it received.
func newSinkServer(t *testing.T, status int) (cfg wptresults.SinkConfig, requests func() []sinkRequest) {
	t.Helper()

	var mu sync.Mutex
	var reqs []sinkRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var body map[string]any
		_ = json.Unmarshal(data, &body)

		mu.Lock()
		reqs = append(reqs, sinkRequest{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("{}"))
	}))
	t.Cleanup(srv.Close)

	cfg = wptresults.SinkConfig{
		Address:   strings.TrimPrefix(srv.URL, "http://"),
		AuthToken: "secret",
		HTTP:      httpclient.Config{RetryCount: 1, RetryWaitTime: time.Millisecond, RetryMaxWaitTime: time.Millisecond},
	}
	return cfg, func() []sinkRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]sinkRequest(nil), reqs...)
	}
}

func TestReportResult(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		result wptresults.Result
		status int

		want    map[string]any
		wantErr bool
	}{
		"Unexpected failure with artifacts": {
			result: wptresults.Result{
				Name:         "external/wpt/a/b.html",
				Actual:       wptresults.Failure,
				Expected:     []wptresults.ResultType{wptresults.Pass},
				Unexpected:   true,
				Took:         1500 * time.Millisecond,
				Artifacts:    map[string][]string{"stderr": {"layout-test-results/a-stderr.txt", "layout-test-results/retry_1/a-stderr.txt"}},
				ArtifactRoot: "/out",
				Summary:      "<p>summary</p>",
				TestFile:     "external/wpt/a/b.html",
			},
			status: http.StatusOK,
			want: map[string]any{
				"testId":      "external/wpt/a/b.html",
				"expected":    false,
				"status":      "FAIL",
				"summaryHtml": "<p>summary</p>",
				"duration":    "1.500s",
				"tags": []any{
					map[string]any{"key": "web_tests_result_type", "value": "FAIL"},
					map[string]any{"key": "web_tests_test_type", "value": "wpt"},
					map[string]any{"key": "web_tests_expected_result", "value": "PASS"},
				},
				"artifacts": map[string]any{
					"stderr":   map[string]any{"filePath": filepath.Join("/out", "layout-test-results/a-stderr.txt")},
					"stderr_1": map[string]any{"filePath": filepath.Join("/out", "layout-test-results/retry_1/a-stderr.txt")},
				},
				"testMetadata": map[string]any{
					"name": "external/wpt/a/b.html",
					"location": map[string]any{
						"repo":     "https://chromium.googlesource.com/chromium/src",
						"fileName": "//third_party/blink/web_tests/external/wpt/a/b.html",
					},
				},
			},
		},
		"Expected timeout is aborted": {
			result: wptresults.Result{
				Name:     "wpt_internal/t.html",
				Actual:   wptresults.Timeout,
				Expected: []wptresults.ResultType{wptresults.Timeout},
				Summary:  "<p>ignored</p>",
			},
			status: http.StatusOK,
			want: map[string]any{
				"testId":   "wpt_internal/t.html",
				"expected": true,
				"status":   "ABORT",
				"duration": "0.000s",
				"tags": []any{
					map[string]any{"key": "web_tests_result_type", "value": "TIMEOUT"},
					map[string]any{"key": "web_tests_test_type", "value": "wpt"},
					map[string]any{"key": "web_tests_expected_result", "value": "TIMEOUT"},
				},
				"testMetadata": map[string]any{"name": "wpt_internal/t.html"},
			},
		},

		"Error on rejected request": {result: wptresults.Result{Name: "a", Actual: wptresults.Pass}, status: http.StatusBadRequest, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg, requests := newSinkServer(t, tc.status)
			h := testutils.NewMockHandler(slog.LevelDebug)
			s, err := wptresults.NewResultSink(slog.New(&h), cfg)
			require.NoError(t, err, "Setup: NewResultSink should not fail")

			err = s.ReportResult(context.Background(), tc.result)
			if tc.wantErr {
				require.Error(t, err, "ReportResult should fail")
				return
			}
			require.NoError(t, err, "ReportResult should not fail")

			reqs := requests()
			require.Len(t, reqs, 1, "One request should be sent")
			assert.Equal(t, "/prpc/luci.resultsink.v1.Sink/ReportTestResults", reqs[0].path, "Request should call ReportTestResults")
			assert.Equal(t, "ResultSink secret", reqs[0].auth, "Request should be authenticated")

			results, ok := reqs[0].body["testResults"].([]any)
			require.True(t, ok, "Body should hold test results")
			require.Len(t, results, 1, "Body should hold one test result")
			got := results[0].(map[string]any)
			assert.NotEmpty(t, got["resultId"], "Result should have an ID")
			delete(got, "resultId")
			assert.Equal(t, tc.want, got, "Test result should match")
		})
	}
}

func TestReportInvocationArtifacts(t *testing.T) {
	t.Parallel()

	cfg, requests := newSinkServer(t, http.StatusOK)
	s, err := wptresults.NewResultSink(slog.Default(), cfg)
	require.NoError(t, err, "Setup: NewResultSink should not fail")

	require.NoError(t, s.ReportInvocationArtifacts(context.Background(), map[string]string{"wpt_report.json": "/out/wpt_report.json"}),
		"ReportInvocationArtifacts should not fail")

	reqs := requests()
	require.Len(t, reqs, 1, "One request should be sent")
	assert.Equal(t, "/prpc/luci.resultsink.v1.Sink/ReportInvocationLevelArtifacts", reqs[0].path, "Request should call ReportInvocationLevelArtifacts")
	assert.Equal(t, map[string]any{
		"artifacts": map[string]any{"wpt_report.json": map[string]any{"filePath": "/out/wpt_report.json"}},
	}, reqs[0].body, "Body should list the artifacts")
}

func TestNewResultSinkWithoutAddress(t *testing.T) {
	t.Parallel()

	_, err := wptresults.NewResultSink(slog.Default(), wptresults.SinkConfig{})
	require.ErrorIs(t, err, wptresults.ErrNoResultSink, "NewResultSink should fail without an address")
}

//nolint:tparallel // t.Setenv prevents running in parallel.
func TestSinkConfigFromLUCIContext(t *testing.T) {
	tests := map[string]struct {
		content string
		noEnv   bool
		noFile  bool

		want    wptresults.SinkConfig
		wantErr error
	}{
		"Result sink section": {
			content: `{"result_sink": {"address": "localhost:1234", "auth_token": "token"}, "realm": {"name": "chromium:ci"}}`,
			want:    wptresults.SinkConfig{Address: "localhost:1234", AuthToken: "token"},
		},

		"Error when the variable is not set":  {noEnv: true, wantErr: wptresults.ErrNoResultSink},
		"Error when there is no result sink":  {content: `{"realm": {}}`, wantErr: wptresults.ErrNoResultSink},
		"Error when the address is empty":     {content: `{"result_sink": {"auth_token": "token"}}`, wantErr: wptresults.ErrNoResultSink},
		"Error when the context is invalid":   {content: `{`, wantErr: errAny},
		"Error when the context file is gone": {noFile: true, wantErr: errAny},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "luci_context.json")
			if !tc.noFile {
				require.NoError(t, os.WriteFile(p, []byte(tc.content), 0600), "Setup: could not write LUCI context")
			}
			if tc.noEnv {
				p = ""
			}
			t.Setenv("LUCI_CONTEXT", p)

			got, err := wptresults.SinkConfigFromLUCIContext()
			if tc.wantErr != nil {
				require.Error(t, err, "SinkConfigFromLUCIContext should fail")
				if tc.wantErr != errAny {
					require.ErrorIs(t, err, tc.wantErr, "SinkConfigFromLUCIContext should return the expected error")
				}
				return
			}
			require.NoError(t, err, "SinkConfigFromLUCIContext should not fail")
			assert.Equal(t, tc.want, got, "Sink config should match")
		})
	}
}
