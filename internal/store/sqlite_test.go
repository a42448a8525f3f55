package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tess-exoclass/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleTierRows() []model.TierRow {
	return []model.TierRow{
		{TIC: 25155310, PlanetNum: 1, Rank: 0, Score: 0.91, MatchFlag: 1, Tier: 1, FlagBits: "000000000000000", Annotation: "Tier 1"},
		{TIC: 25155310, PlanetNum: 2, Rank: 1, Score: 0.72, Tier: 2, FlagBits: "100000000000000", Causes: "CenOOT", Annotation: "Tier 2 CenOOT"},
		{TIC: 9006668, PlanetNum: 1, Rank: 2, Score: 0.40, MatchFlag: 3, Tier: 3, Annotation: "Tier 3 true false"},
	}
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "sector-14", 1, 4)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusRanking))
	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "sector-14", got.Name)
	assert.Equal(t, 1, got.WorkerID)
	assert.Equal(t, 4, got.Workers)
	assert.Equal(t, model.RunStatusRanking, got.Status)
	assert.Nil(t, got.Result)

	res := &model.RunResult{Loaded: 10, Ranked: 7, Tier1: 3, Tier2: 2, Tier3: 2}
	require.NoError(t, st.UpdateRunResult(ctx, run.ID, res))
	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 7, got.Result.Ranked)
}

func TestSQLite_FailedResult(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "sector-14", 0, 1)
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunResult(ctx, run.ID, &model.RunResult{Error: "no candidates"}))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "no candidates", got.Result.Error)
}

func TestSQLite_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	err = st.UpdateRunStatus(ctx, "missing", model.RunStatusFailed)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, name := range []string{"s14", "s14", "s15"} {
		_, err := st.CreateRun(ctx, name, 0, 1)
		require.NoError(t, err)
	}
	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byName, err := st.ListRuns(ctx, RunFilter{Name: "s14"})
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	queued, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestSQLite_TierRows(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "s14", 0, 1)
	require.NoError(t, err)

	n, err := st.SaveTierRows(ctx, run.ID, sampleTierRows())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// Saving again replaces rather than duplicates.
	_, err = st.SaveTierRows(ctx, run.ID, sampleTierRows())
	require.NoError(t, err)

	all, err := st.ListTierRows(ctx, run.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, uint64(25155310), all[0].TIC)
	assert.Equal(t, run.ID, all[0].RunID)
	assert.Equal(t, 2, all[2].Rank)

	t2, err := st.ListTierRows(ctx, run.ID, 2)
	require.NoError(t, err)
	require.Len(t, t2, 1)
	assert.Equal(t, "CenOOT", t2[0].Causes)

	n, err = st.SaveTierRows(ctx, run.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
