// Package deploycontent assembles deployable directories out of selected subdirectories
// of a build tree.
package deploycontent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/browser-infra/buildtools/internal/constants"
	"github.com/browser-infra/buildtools/internal/fileutils"
	"github.com/browser-infra/buildtools/internal/symlink"
	"github.com/ubuntu/decorate"
)

// Config describes the content to assemble.
type Config struct {
	InputDir  string   `mapstructure:"input_dir"`
	OutputDir string   `mapstructure:"output_dir"`
	Subdirs   []string `mapstructure:"subdirs"`

	// Copy copies subdirectories instead of linking them.
	Copy bool `mapstructure:"copy"`
	// MaxDepth fails the assembly when a file is nested deeper. 0 disables the check.
	MaxDepth int `mapstructure:"max_depth"`
	// Stamp is written on success. It defaults to a stamp file in OutputDir.
	Stamp string `mapstructure:"stamp"`
}

type options struct {
	log *slog.Logger
}

// Options represents an optional function to override Assemble default values.
type Options func(*options)

// WithLogger sets the logger used during the assembly.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// ErrTooDeep is returned when the assembled tree exceeds its maximum depth.
var ErrTooDeep = errors.New("content is nested too deeply")

// Assemble recreates cfg.OutputDir with one entry per subdirectory, linked or copied
// from cfg.InputDir. Subdirectories inside another selected subdirectory are skipped.
func Assemble(ctx context.Context, cfg Config, args ...Options) (err error) {
	defer decorate.OnError(&err, "could not assemble %s", cfg.OutputDir)

	opts := options{log: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}

	input, err := filepath.Abs(cfg.InputDir)
	if err != nil {
		return err
	}
	if err := symlink.RemoveAll(cfg.OutputDir); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0750); err != nil {
		return err
	}

	subdirs := normalize(cfg.Subdirs)
	var included []string
	for _, sub := range subdirs {
		if err := ctx.Err(); err != nil {
			return err
		}

		if parent, ok := ancestor(included, sub); ok {
			opts.log.Warn("Redundant subdirectory, already included by its parent", "subdir", sub, "parent", parent)
			continue
		}
		included = append(included, sub)

		src := filepath.Join(input, filepath.FromSlash(sub))
		dst := filepath.Join(cfg.OutputDir, filepath.FromSlash(sub))
		if err := deploy(src, dst, cfg.Copy); err != nil {
			return err
		}
		opts.log.Debug("Deployed subdirectory", "subdir", sub, "copy", cfg.Copy)
	}

	if cfg.MaxDepth > 0 {
		if _, err := CheckMaxDepth(cfg.OutputDir, cfg.MaxDepth); err != nil {
			return err
		}
	}

	stamp := cfg.Stamp
	if stamp == "" {
		stamp = filepath.Join(cfg.OutputDir, constants.StampFileName)
	}
	return fileutils.AtomicWrite(stamp, []byte(strings.Join(included, "\n")+"\n"))
}

// normalize returns the cleaned, sorted and deduplicated subdirectories. A parent
// always sorts before its children.
func normalize(subdirs []string) []string {
	var out []string
	for _, s := range subdirs {
		s = strings.Trim(path.Clean(filepath.ToSlash(s)), "/")
		if s == "" || s == "." {
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b string) int {
		// Compare component wise so that "a/b" sorts before "a-b".
		return slices.Compare(strings.Split(a, "/"), strings.Split(b, "/"))
	})
	return slices.Compact(out)
}

func ancestor(included []string, sub string) (string, bool) {
	if len(included) == 0 {
		return "", false
	}
	last := included[len(included)-1]
	if strings.HasPrefix(sub, last+"/") {
		return last, true
	}
	return "", false
}

func deploy(src, dst string, copyContent bool) error {
	fi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("could not find subdirectory: %v", err)
	}
	if !copyContent {
		return symlink.Make(src, dst)
	}
	if !fi.IsDir() {
		return fileutils.CopyFile(src, dst)
	}
	return fileutils.CopyTree(src, dst)
}

// CheckMaxDepth returns the depth of the deepest file under root, links followed. It
// fails with ErrTooDeep when that depth is above limit.
func CheckMaxDepth(root string, limit int) (depth int, err error) {
	err = symlink.Walk(root, true, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if fi, err := os.Stat(p); err == nil && fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		depth = max(depth, len(strings.Split(filepath.ToSlash(rel), "/")))
		return nil
	})
	if err != nil {
		return 0, err
	}
	if depth > limit {
		return depth, fmt.Errorf("%w: deepest file is at depth %d, above %d", ErrTooDeep, depth, limit)
	}
	return depth, nil
}
