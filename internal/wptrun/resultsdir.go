package wptrun

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/browser-infra/buildtools/internal/fileutils"
	"github.com/browser-infra/buildtools/internal/symlink"
	"github.com/ubuntu/decorate"
)

const (
	viewerFile      = "results.html"
	archiveTimeFmt  = "2006-01-02-15-04-05"
	maxArchivedRuns = 10
)

// ResultsDir is the results directory of a run, with a scratch directory for the
// generated runner files. Close removes the scratch directory and installs the results
// viewer.
type ResultsDir struct {
	// Path receives the results.
	Path string
	tmp  string
	// viewer is copied next to the results on Close, when set.
	viewer string
	log    *slog.Logger
}

// OpenResultsDir prepares path for a new run. Results of a previous run are deleted
// when clobber is set, and archived next to path otherwise.
func OpenResultsDir(path string, clobber bool, viewer string, log *slog.Logger) (d *ResultsDir, err error) {
	defer decorate.OnError(&err, "could not prepare results directory %s", path)

	fi, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	case clobber:
		log.Info("Clobbering previous results", "path", path)
		if err := symlink.RemoveAll(path); err != nil {
			return nil, err
		}
	default:
		archive := fmt.Sprintf("%s_%s", path, fi.ModTime().Format(archiveTimeFmt))
		log.Info("Archiving previous results", "path", path, "archive", archive)
		if err := os.Rename(path, archive); err != nil {
			return nil, err
		}
		if err := pruneArchives(path, log); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, err
	}
	tmp, err := os.MkdirTemp("", "wpt-run-")
	if err != nil {
		return nil, err
	}
	return &ResultsDir{Path: path, tmp: tmp, viewer: viewer, log: log}, nil
}

// pruneArchives deletes the oldest archived results beyond maxArchivedRuns.
func pruneArchives(path string, log *slog.Logger) error {
	// The timestamp suffix sorts lexically in chronological order.
	archives, err := filepath.Glob(path + "_*")
	if err != nil {
		return err
	}
	for len(archives) > maxArchivedRuns {
		log.Debug("Removing old results archive", "path", archives[0])
		if err := symlink.RemoveAll(archives[0]); err != nil {
			return err
		}
		archives = archives[1:]
	}
	return nil
}

// TempDir is the scratch directory of the run.
func (d *ResultsDir) TempDir() string {
	return d.tmp
}

// Close removes the scratch directory and copies the results viewer.
func (d *ResultsDir) Close() (err error) {
	defer decorate.OnError(&err, "could not finalize results directory %s", d.Path)

	if err := os.RemoveAll(d.tmp); err != nil {
		return err
	}
	if d.viewer == "" {
		return nil
	}
	if _, err := os.Stat(d.viewer); errors.Is(err, os.ErrNotExist) {
		d.log.Warn("Results viewer not found", "path", d.viewer)
		return nil
	}
	return fileutils.CopyFile(d.viewer, filepath.Join(d.Path, viewerFile))
}
