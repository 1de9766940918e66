// Package evalprompts holds the helpers of the prompt evaluation harness: test discovery,
// sharding, filtering and telemetry token accounting.
package evalprompts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

const (
	// ShardIndexEnv is the environment variable holding the shard index.
	ShardIndexEnv = "GTEST_SHARD_INDEX"
	// TotalShardsEnv is the environment variable holding the number of shards.
	TotalShardsEnv = "GTEST_TOTAL_SHARDS"
)

var (
	// ErrPartialSharding is returned when only one of shard index or total shards is known.
	ErrPartialSharding = errors.New("only one of shard index or total shards was set")
	// ErrNegativeShardIndex is returned for a shard index below 0.
	ErrNegativeShardIndex = errors.New("shard index must be non-negative")
	// ErrNonPositiveTotalShards is returned for a total shards value below 1.
	ErrNonPositiveTotalShards = errors.New("total shards must be positive")
	// ErrShardIndexOutOfRange is returned when the shard index is not below total shards.
	ErrShardIndexOutOfRange = errors.New("shard index must be < total shards")
)

type options struct {
	getenv func(string) string
	logger *slog.Logger
}

// Options represents an optional function to override default values.
type Options func(*options)

// WithLogger sets the logger to use.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(args []Options) options {
	opts := options{
		getenv: os.Getenv,
		logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}
	return opts
}

// DetermineShardValues returns the shard index and total shards to use.
// Arguments take precedence over the environment, which is read when an argument is nil.
// Without any sharding information, it returns (0, 1).
func DetermineShardValues(index, total *int, args ...Options) (int, int, error) {
	opts := newOptions(args)

	envIndex, err := intFromEnv(opts.getenv, ShardIndexEnv)
	if err != nil {
		return 0, 0, err
	}
	envTotal, err := intFromEnv(opts.getenv, TotalShardsEnv)
	if err != nil {
		return 0, 0, err
	}

	if index != nil && envIndex != nil {
		opts.logger.Warn("Shard index set by both arguments and environment variable. Using value provided by arguments.")
	}
	if total != nil && envTotal != nil {
		opts.logger.Warn("Total shards set by both arguments and environment variable. Using value provided by arguments.")
	}
	if index == nil {
		index = envIndex
	}
	if total == nil {
		total = envTotal
	}

	switch {
	case index == nil && total == nil:
		return 0, 1, nil
	case index == nil || total == nil:
		return 0, 0, ErrPartialSharding
	case *index < 0:
		return 0, 0, ErrNegativeShardIndex
	case *total <= 0:
		return 0, 0, ErrNonPositiveTotalShards
	case *index >= *total:
		return 0, 0, ErrShardIndexOutOfRange
	}
	return *index, *total, nil
}

func intFromEnv(getenv func(string) string, name string) (*int, error) {
	v := getenv(name)
	if v == "" {
		return nil, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %v", name, v, err)
	}
	return &i, nil
}
