package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tess-exoclass/internal/config"
	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/report"
	"github.com/sells-group/tess-exoclass/internal/store"
)

// Runner executes a full ranking run for one worker shard.
type Runner struct {
	cfg   *config.Config
	store store.Store // optional
	now   func() time.Time
}

// NewRunner creates a Runner. st may be nil to skip run history.
func NewRunner(cfg *config.Config, st store.Store) *Runner {
	return &Runner{cfg: cfg, store: st, now: time.Now}
}

// Result is the outcome of Runner.Run.
type Result struct {
	RunID       string
	Rows        []report.Row
	Diagnostics Diagnostics
	Outputs     []string
}

// Run loads the run tables, ranks and classifies this worker's shard and
// writes the tier files, the optional workbook and the summary. With a
// store attached the run and its rows are recorded too.
func (r *Runner) Run(ctx context.Context, workerID, workers int) (*Result, error) {
	cfg := r.cfg
	log := zap.L().With(
		zap.String("run", cfg.Run.Name),
		zap.Int("worker_id", workerID),
		zap.Int("workers", workers),
	)
	started := r.now().UTC()
	res := &Result{}

	if r.store != nil {
		run, err := r.store.CreateRun(ctx, cfg.Run.Name, workerID, workers)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		res.RunID = run.ID
	}

	err := r.run(ctx, workerID, workers, res, log)
	if r.store != nil {
		result := res.Diagnostics.RunResult(res.Outputs)
		if err != nil {
			result.Error = err.Error()
		}
		// The run ctx may already be cancelled; the outcome is still recorded.
		if uerr := r.store.UpdateRunResult(context.WithoutCancel(ctx), res.RunID, result); uerr != nil {
			log.Warn("pipeline: failed to save run result", zap.Error(uerr))
		}
	}
	if err != nil {
		log.Error("pipeline: run failed", zap.Error(err))
		return nil, err
	}

	summary := report.Summary{
		Run:        cfg.Run.Name,
		Command:    "rank",
		WorkerID:   workerID,
		Workers:    workers,
		StartedAt:  started,
		FinishedAt: r.now().UTC(),
		Counts:     res.Diagnostics.Counts(),
		Outputs:    res.Outputs,
	}
	path := filepath.Join(cfg.Run.OutputDir, SummaryFileName(cfg.Run.Name, workerID, workers))
	if err := report.WriteSummary(path, summary); err != nil {
		return nil, err
	}
	res.Outputs = append(res.Outputs, path)

	log.Info("pipeline: run complete",
		zap.String("run_id", res.RunID),
		zap.Int("rows", len(res.Rows)),
		zap.Duration("elapsed", r.now().Sub(started)),
	)
	return res, nil
}

func (r *Runner) run(ctx context.Context, workerID, workers int, res *Result, log *zap.Logger) error {
	cfg := r.cfg
	setStatus := func(status model.RunStatus) {
		if r.store == nil {
			return
		}
		if err := r.store.UpdateRunStatus(ctx, res.RunID, status); err != nil {
			log.Warn("pipeline: failed to update status", zap.Error(err))
		}
	}

	setStatus(model.RunStatusLoading)
	in, err := Load(ctx, cfg)
	if err != nil {
		return err
	}

	setStatus(model.RunStatusRanking)
	rows, d, err := Rank(ctx, in, Options{
		Tier:        cfg.Tier,
		Rank:        cfg.Rank,
		WorkerID:    workerID,
		Workers:     workers,
		Concurrency: cfg.Run.Concurrency,
	})
	res.Diagnostics = d
	if err != nil {
		return err
	}
	res.Rows = rows

	setStatus(model.RunStatusWriting)
	paths, err := report.WriteTiers(cfg.Run.OutputDir, cfg.Files.TierPrefix, cfg.Run.Name, workerID, workers, rows)
	if err != nil {
		return err
	}
	res.Outputs = append(res.Outputs, paths...)

	tierRows := make([]model.TierRow, len(rows))
	for i, row := range rows {
		tierRows[i] = row.TierRow(res.RunID)
	}
	if cfg.Run.Workbook {
		path := filepath.Join(cfg.Run.OutputDir, WorkbookFileName(cfg.Run.Name, workerID, workers))
		if err := report.WriteWorkbook(path, tierRows); err != nil {
			return err
		}
		res.Outputs = append(res.Outputs, path)
	}
	if r.store != nil {
		if _, err := r.store.SaveTierRows(ctx, res.RunID, tierRows); err != nil {
			return eris.Wrap(err, "pipeline: save tier rows")
		}
	}
	return nil
}

// SummaryFileName names the diagnostics file of a run shard.
func SummaryFileName(run string, workerID, workers int) string {
	return run + report.ShardSuffix(workerID, workers) + "_summary.yaml"
}

// WorkbookFileName names the optional tier workbook of a run shard.
func WorkbookFileName(run string, workerID, workers int) string {
	return run + report.ShardSuffix(workerID, workers) + "_tiers.xlsx"
}
