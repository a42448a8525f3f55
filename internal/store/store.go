// Package store persists run history and classified tier rows.
package store

import (
	"context"

	"github.com/sells-group/tess-exoclass/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Name   string          `json:"name,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for ranking runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, name string, workerID, workers int) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	// UpdateRunResult stores the result and marks the run complete, or
	// failed when result.Error is set.
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Tier rows. Saving is idempotent per (run, tic, planet).
	SaveTierRows(ctx context.Context, runID string, rows []model.TierRow) (int64, error)
	// ListTierRows returns a run's rows in rank order; tier 0 means all.
	ListTierRows(ctx context.Context, runID string, tier int) ([]model.TierRow, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func finalStatus(result *model.RunResult) model.RunStatus {
	if result != nil && result.Error != "" {
		return model.RunStatusFailed
	}
	return model.RunStatusComplete
}

const defaultListLimit = 100

var tierColumns = []string{
	"run_id", "tic", "planet_num", "rank", "score", "match_flag",
	"tier", "flag_bits", "causes", "annotation",
}

func tierValues(runID string, r model.TierRow) []any {
	return []any{
		runID, int64(r.TIC), r.PlanetNum, r.Rank, r.Score, r.MatchFlag,
		r.Tier, r.FlagBits, r.Causes, r.Annotation,
	}
}
