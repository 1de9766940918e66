package wptrun

import (
	"encoding/json"
	"log/slog"
	"path/filepath"

	"github.com/browser-infra/buildtools/internal/evalprompts"
	"github.com/browser-infra/buildtools/internal/fileutils"
	"gopkg.in/ini.v1"
)

const (
	runInfoFile   = "mozinfo.json"
	wptConfigFile = "wptrunner.ini"
)

// RunInfo is the mozinfo of a run. wptrunner evaluates metadata conditions against it.
type RunInfo struct {
	OS               string `json:"os"`
	Port             string `json:"port"`
	Processor        string `json:"processor"`
	Bits             int    `json:"bits"`
	Debug            bool   `json:"debug"`
	Product          string `json:"product"`
	FlagSpecific     string `json:"flag_specific"`
	SanitizerEnabled bool   `json:"sanitizer_enabled"`
	Headless         bool   `json:"headless"`
	UsedUpstream     bool   `json:"used_upstream"`
	VirtualSuite     string `json:"virtual_suite"`
}

// NewRunInfo returns the run info of cfg on the platform of p.
func NewRunInfo(cfg Config, p Port, goarch string) RunInfo {
	processor := map[string]string{"amd64": "x86_64", "arm64": "arm64", "386": "x86"}[goarch]
	if processor == "" {
		processor = goarch
	}
	bits := 64
	if goarch == "386" || goarch == "arm" {
		bits = 32
	}
	return RunInfo{
		OS:               p.OS,
		Port:             p.OS,
		Processor:        processor,
		Bits:             bits,
		Debug:            cfg.Debug,
		Product:          cfg.Product,
		FlagSpecific:     cfg.FlagSpecific,
		SanitizerEnabled: cfg.Sanitizer,
		Headless:         cfg.Headless,
		UsedUpstream:     cfg.Upstream,
	}
}

// Write writes the run info as mozinfo.json under dir.
func (r RunInfo) Write(dir string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return fileutils.AtomicWrite(filepath.Join(dir, runInfoFile), data)
}

// ShardValues returns the shard of cfg, falling back to the swarming environment.
func ShardValues(cfg Config, log *slog.Logger) (index, total int, err error) {
	return evalprompts.DetermineShardValues(cfg.ShardIndex, cfg.TotalShards, evalprompts.WithLogger(log))
}

// writeWPTConfig writes the wptrunner configuration mapping both test roots of
// webTestsDir to their URL base.
func writeWPTConfig(dest, webTestsDir string) error {
	f := ini.Empty()
	roots := []struct {
		dir     string
		urlBase string
	}{
		{wptDir, "/"},
		{wptInternalDir, "/" + wptInternalDir + "/"},
	}
	for _, r := range roots {
		s, err := f.NewSection("manifest:" + r.dir)
		if err != nil {
			return err
		}
		root := filepath.Join(webTestsDir, filepath.FromSlash(r.dir))
		for _, kv := range [][2]string{{"tests", root}, {"metadata", root}, {"url_base", r.urlBase}} {
			if _, err := s.NewKey(kv[0], kv[1]); err != nil {
				return err
			}
		}
	}
	return f.SaveTo(dest)
}
