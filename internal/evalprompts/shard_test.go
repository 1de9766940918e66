package evalprompts_test

import (
	"log/slog"
	"testing"

	"github.com/browser-infra/buildtools/internal/evalprompts"
	"github.com/browser-infra/buildtools/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(i int) *int { return &i }

func TestDetermineShardValues(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		index *int
		total *int
		env   map[string]string

		wantIndex    int
		wantTotal    int
		wantWarnings uint
		wantErr      error
	}{
		"Defaults without args or env":  {wantIndex: 0, wantTotal: 1},
		"Args are used":                 {index: ptr(1), total: ptr(3), wantIndex: 1, wantTotal: 3},
		"Single shard args":             {index: ptr(0), total: ptr(1), wantIndex: 0, wantTotal: 1},
		"Env is used":                   {env: map[string]string{"GTEST_SHARD_INDEX": "2", "GTEST_TOTAL_SHARDS": "4"}, wantIndex: 2, wantTotal: 4},
		"Args override env with warns":  {index: ptr(1), total: ptr(3), env: map[string]string{"GTEST_SHARD_INDEX": "2", "GTEST_TOTAL_SHARDS": "4"}, wantIndex: 1, wantTotal: 3, wantWarnings: 2},
		"Total from args, index in env": {total: ptr(3), env: map[string]string{"GTEST_SHARD_INDEX": "2", "GTEST_TOTAL_SHARDS": "4"}, wantIndex: 2, wantTotal: 3, wantWarnings: 1},
		"Index from args, total in env": {index: ptr(2), env: map[string]string{"GTEST_SHARD_INDEX": "1", "GTEST_TOTAL_SHARDS": "4"}, wantIndex: 2, wantTotal: 4, wantWarnings: 1},
		"Mixed args and env":            {index: ptr(1), env: map[string]string{"GTEST_TOTAL_SHARDS": "2"}, wantIndex: 1, wantTotal: 2},

		"Error on index arg only":           {index: ptr(1), wantErr: evalprompts.ErrPartialSharding},
		"Error on total arg only":           {total: ptr(3), wantErr: evalprompts.ErrPartialSharding},
		"Error on index env only":           {env: map[string]string{"GTEST_SHARD_INDEX": "1"}, wantErr: evalprompts.ErrPartialSharding},
		"Error on total env only":           {env: map[string]string{"GTEST_TOTAL_SHARDS": "3"}, wantErr: evalprompts.ErrPartialSharding},
		"Error on negative index":           {index: ptr(-1), total: ptr(3), wantErr: evalprompts.ErrNegativeShardIndex},
		"Error on zero total":               {index: ptr(0), total: ptr(0), wantErr: evalprompts.ErrNonPositiveTotalShards},
		"Error on negative total":           {index: ptr(0), total: ptr(-1), wantErr: evalprompts.ErrNonPositiveTotalShards},
		"Error on index equal to total":     {index: ptr(3), total: ptr(3), wantErr: evalprompts.ErrShardIndexOutOfRange},
		"Error on index greater than total": {index: ptr(4), total: ptr(3), wantErr: evalprompts.ErrShardIndexOutOfRange},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			h := testutils.NewMockHandler(slog.LevelDebug)
			index, total, err := evalprompts.DetermineShardValues(tc.index, tc.total,
				evalprompts.WithEnv(tc.env), evalprompts.WithLogger(slog.New(&h)))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr, "DetermineShardValues should fail with the expected error")
				return
			}
			require.NoError(t, err, "DetermineShardValues should not fail")

			assert.Equal(t, tc.wantIndex, index, "Unexpected shard index")
			assert.Equal(t, tc.wantTotal, total, "Unexpected total shards")
			assert.Equal(t, tc.wantWarnings, h.GetLevels()[slog.LevelWarn], "Unexpected number of warnings")
		})
	}
}

func TestDetermineShardValuesInvalidEnv(t *testing.T) {
	t.Parallel()

	_, _, err := evalprompts.DetermineShardValues(nil, nil,
		evalprompts.WithEnv(map[string]string{"GTEST_SHARD_INDEX": "one", "GTEST_TOTAL_SHARDS": "2"}))
	require.Error(t, err, "DetermineShardValues should fail on a non integer environment value")
}
