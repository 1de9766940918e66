package actions

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"maps"
	"os"

	"github.com/browser-infra/buildtools/internal/fileutils"
	"github.com/ubuntu/decorate"
)

// ErrOutdated is returned in check mode when the registry is not up to date.
var ErrOutdated = errors.New("actions.xml is not up to date")

// Config selects the registry and the trees to scan.
type Config struct {
	// XMLPath is the actions.xml registry.
	XMLPath string `mapstructure:"xml"`
	// SourceRoot is the root of the paths below.
	SourceRoot string   `mapstructure:"source_root"`
	Dirs       []string `mapstructure:"dirs"`
	HTMLDirs   []string `mapstructure:"html_dirs"`
	// Check reports whether the registry is up to date without rewriting it.
	Check bool `mapstructure:"check"`
}

// Update merges the actions found in the source tree into the registry and rewrites
// it in its canonical form. It returns the added action names.
func Update(ctx context.Context, cfg Config, args ...Options) (added []string, err error) {
	defer decorate.OnError(&err, "could not update %s", cfg.XMLPath)

	opts := options{log: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}

	original, err := os.ReadFile(cfg.XMLPath)
	if err != nil {
		return nil, err
	}
	doc, err := ParseActionsXML(bytes.NewReader(original))
	if err != nil {
		return nil, err
	}

	names, err := Extract(ctx, cfg.SourceRoot, cfg.Dirs, args...)
	if err != nil {
		return nil, err
	}
	metrics, err := ScanHTMLMetrics(ctx, cfg.SourceRoot, cfg.HTMLDirs)
	if err != nil {
		return nil, err
	}
	maps.Copy(names, metrics)

	added = doc.Merge(names)
	for _, p := range doc.Lint() {
		opts.log.Warn("Invalid token", "problem", p)
	}

	var out bytes.Buffer
	if err := PrettyPrint(&out, doc); err != nil {
		return nil, err
	}
	if bytes.Equal(out.Bytes(), original) {
		return added, nil
	}
	if cfg.Check {
		return added, ErrOutdated
	}
	return added, fileutils.AtomicWrite(cfg.XMLPath, out.Bytes())
}
