// Package constants is responsible for defining the constants used in the application.
// It also provides utility functions to get the default configuration and cache paths.
package constants

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	// CmdName is the name of the command line tool.
	CmdName = "buildtools"

	// DefaultAppFolder is the name of the default root folder.
	DefaultAppFolder = "buildtools"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn

	// DefaultDriverKillTimeout is how long a browser driver gets to exit before being killed.
	DefaultDriverKillTimeout = time.Second

	// RemoveRetries is the number of attempts made to delete a directory that races with handle releases.
	RemoveRetries = 10

	// RemoveRetryDelay is the pause between two delete attempts.
	RemoveRetryDelay = 100 * time.Millisecond

	// VendorRetries bounds cargo vendor and submodule initialization attempts.
	VendorRetries = 3

	// StampFileName is the default name of the stamp written by the deploy content assembler.
	StampFileName = "deploy_content.stamp"

	// LayoutTestResultsDir is the name of the directory holding per test artifacts.
	LayoutTestResultsDir = "layout-test-results"

	// ResultsJoinTimeout bounds the wait for the results processor to drain its events.
	ResultsJoinTimeout = 30 * time.Second
)

type options struct {
	baseDir func() (string, error)
}

type option func(*options)

// GetDefaultConfigPath is the default path to the configuration file.
func GetDefaultConfigPath(opts ...option) string {
	o := options{baseDir: os.UserConfigDir}
	for _, opt := range opts {
		opt(&o)
	}

	return filepath.Join(getBaseDir(o.baseDir), DefaultAppFolder)
}

// GetDefaultCachePath is the default path to the cache directory.
func GetDefaultCachePath(opts ...option) string {
	o := options{baseDir: os.UserCacheDir}
	for _, opt := range opts {
		opt(&o)
	}

	return filepath.Join(getBaseDir(o.baseDir), DefaultAppFolder)
}

// getBaseDir is a helper function to handle the case where the baseDir function returns an error, and instead return an empty string.
func getBaseDir(baseDirFunc func() (string, error)) string {
	dir, err := baseDirFunc()
	if err != nil {
		return ""
	}
	return dir
}
