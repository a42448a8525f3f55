package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/soniakeys/unit"
	"go.uber.org/zap"

	"github.com/sells-group/tess-exoclass/internal/candidate"
	"github.com/sells-group/tess-exoclass/internal/config"
	"github.com/sells-group/tess-exoclass/internal/ephem"
	"github.com/sells-group/tess-exoclass/internal/federation"
	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/report"
	"github.com/sells-group/tess-exoclass/internal/spatial"
)

// Federator produces the catalog federation tables of a run. Tables are
// written into cfg.Run.Dir, where the ranking pass reads them; summaries go
// to cfg.Run.OutputDir.
type Federator struct {
	cfg *config.Config
	now func() time.Time
}

// NewFederator creates a Federator.
func NewFederator(cfg *config.Config) *Federator {
	return &Federator{cfg: cfg, now: time.Now}
}

// FederateResult is the outcome of one federation job.
type FederateResult struct {
	Stats federation.Stats
	// Written counts the matched rows in the output table.
	Written int
	Outputs []string
}

// EphemConfig maps the federation settings onto the matcher thresholds.
func EphemConfig(f config.FederationConfig) ephem.Config {
	return ephem.Config{
		MinStatistic:   f.MinStatistic,
		ExactStatistic: f.ExactStatistic,
		RatioTolerance: f.RatioTolerance,
		MaxHarmonic:    f.MaxHarmonic,
		MaxTransits:    f.MaxTransits,
	}
}

// TOI federates TOI entries against the run's TCEs.
func (f *Federator) TOI(ctx context.Context, entries []model.CatalogEntry, nb federation.Neighbours) (*FederateResult, error) {
	return f.ephemeris(ctx, "toi", "TOI catalog", "toi_federation", f.cfg.Files.TOIFederation, entries, nb)
}

// Known federates transiting known planets against the run's TCEs.
func (f *Federator) Known(ctx context.Context, entries []model.CatalogEntry, nb federation.Neighbours) (*FederateResult, error) {
	return f.ephemeris(ctx, "known", "known planets", "known_federation", f.cfg.Files.KnownFederation, entries, nb)
}

func (f *Federator) ephemeris(ctx context.Context, job, catalog, key, pattern string, entries []model.CatalogEntry, nb federation.Neighbours) (*FederateResult, error) {
	started := f.now().UTC()
	out, err := f.output(key, pattern)
	if err != nil {
		return nil, err
	}
	s, source, err := f.candidates(ctx)
	if err != nil {
		return nil, err
	}

	r := f.runner(s, nb, f.cfg.Federation.SearchRadiusArcsec)
	w, err := r.Window(f.cfg.Federation.WindowBeforeDays, f.cfg.Federation.WindowAfterDays)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: federation window")
	}
	rows, stats, err := r.Ephemeris(ctx, entries, w)
	if err != nil {
		return nil, err
	}

	res := &FederateResult{Stats: stats}
	if res.Written, err = writeTable(out, func(fh *os.File) (int, error) {
		return report.WriteFederation(fh, catalog, source, rows)
	}); err != nil {
		return nil, err
	}
	res.Outputs = append(res.Outputs, out)
	return f.finish(job, started, res, nil)
}

// Spatial matches non-transiting planets by period alone. Entries dropped
// while resolving periods are listed in the summary.
func (f *Federator) Spatial(ctx context.Context, entries []model.CatalogEntry, unresolved []spatial.Unresolved, nb federation.Neighbours) (*FederateResult, error) {
	started := f.now().UTC()
	out, err := f.output("spatial_federation", f.cfg.Files.SpatialFederated)
	if err != nil {
		return nil, err
	}
	s, source, err := f.candidates(ctx)
	if err != nil {
		return nil, err
	}

	rows, stats, err := f.runner(s, nb, f.cfg.Spatial.SearchRadiusArcsec).Spatial(ctx, entries)
	if err != nil {
		return nil, err
	}

	res := &FederateResult{Stats: stats}
	if res.Written, err = writeTable(out, func(fh *os.File) (int, error) {
		return report.WriteFederation(fh, "non-transiting planets", source, rows)
	}); err != nil {
		return nil, err
	}
	res.Outputs = append(res.Outputs, out)

	names := make([]string, len(unresolved))
	for i, u := range unresolved {
		names[i] = u.Entry.Label
		if u.Entry.Name != "" {
			names[i] = u.Entry.Name
		}
	}
	return f.finish("spatial", started, res, names)
}

// SelfMatch federates every TCE against the TCEs of nearby targets.
func (f *Federator) SelfMatch(ctx context.Context) (*FederateResult, error) {
	started := f.now().UTC()
	out, err := f.output("selfmatch", f.cfg.Files.SelfMatch)
	if err != nil {
		return nil, err
	}
	s, source, err := f.candidates(ctx)
	if err != nil {
		return nil, err
	}

	m := &federation.SelfMatcher{
		Store:       s,
		Radius:      unit.AngleFromSec(f.cfg.SelfMatch.SearchRadiusArcsec),
		PixelScale:  f.cfg.SelfMatch.PixelScaleArcsec,
		Ephem:       EphemConfig(f.cfg.Federation),
		Concurrency: f.cfg.Federation.Concurrency,
	}
	r := f.runner(s, nil, 0)
	w, err := r.Window(f.cfg.Federation.WindowBeforeDays, f.cfg.Federation.WindowAfterDays)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: federation window")
	}
	rows, stats, err := m.Run(ctx, w)
	if err != nil {
		return nil, err
	}

	res := &FederateResult{Stats: stats, Written: len(rows)}
	if _, err := writeTable(out, func(fh *os.File) (int, error) {
		return len(rows), report.WriteSelfMatch(fh, source, rows)
	}); err != nil {
		return nil, err
	}
	res.Outputs = append(res.Outputs, out)
	return f.finish("selfmatch", started, res, nil)
}

func (f *Federator) runner(s *candidate.Store, nb federation.Neighbours, radiusArcsec float64) *federation.Runner {
	return &federation.Runner{
		Store:       s,
		Neighbours:  nb,
		Radius:      unit.AngleFromSec(radiusArcsec),
		Ephem:       EphemConfig(f.cfg.Federation),
		Concurrency: f.cfg.Federation.Concurrency,
	}
}

func (f *Federator) candidates(ctx context.Context) (*candidate.Store, string, error) {
	if f.cfg.Files.Candidates == "" {
		return nil, "", eris.New("pipeline: files.candidates is required")
	}
	path, err := candidate.ResolveSingle(f.cfg.Run.Dir, f.cfg.Files.Resolve(f.cfg.Files.Candidates, f.cfg.Run.Name))
	if err != nil {
		return nil, "", err
	}
	s, err := candidate.LoadFile(ctx, path)
	if err != nil {
		return nil, "", err
	}
	return s, filepath.Base(path), nil
}

func (f *Federator) output(key, pattern string) (string, error) {
	if pattern == "" {
		return "", eris.Errorf("pipeline: files.%s is required", key)
	}
	name := f.cfg.Files.Resolve(pattern, f.cfg.Run.Name)
	if strings.ContainsAny(name, "*?[") {
		return "", eris.Errorf("pipeline: files.%s must name a single file, got %q", key, name)
	}
	return filepath.Join(f.cfg.Run.Dir, name), nil
}

func (f *Federator) finish(job string, started time.Time, res *FederateResult, unresolved []string) (*FederateResult, error) {
	cfg := f.cfg
	s := res.Stats
	summary := report.Summary{
		Run:        cfg.Run.Name,
		Command:    "federate " + job,
		StartedAt:  started,
		FinishedAt: f.now().UTC(),
		Counts: map[string]int{
			"entries":       s.Entries,
			"matched":       s.Matched,
			"federated":     s.Federated,
			"no_candidates": s.NoCandidates,
			"no_ephemeris":  s.NoEphemeris,
			"failed":        s.Failed,
			"written":       res.Written,
			"unresolved":    len(unresolved),
		},
		Outputs:    res.Outputs,
		Unresolved: unresolved,
	}
	if err := os.MkdirAll(cfg.Run.OutputDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "pipeline: create %s", cfg.Run.OutputDir)
	}
	path := filepath.Join(cfg.Run.OutputDir, FederateSummaryFileName(cfg.Run.Name, job))
	if err := report.WriteSummary(path, summary); err != nil {
		return nil, err
	}
	res.Outputs = append(res.Outputs, path)

	zap.L().Info("pipeline: federation complete",
		zap.String("run", cfg.Run.Name),
		zap.String("job", job),
		zap.Int("entries", s.Entries),
		zap.Int("federated", s.Federated),
		zap.Int("failed", s.Failed),
		zap.Int("written", res.Written),
	)
	return res, nil
}

// FederateSummaryFileName names the diagnostics file of a federation job.
func FederateSummaryFileName(run, job string) string {
	return run + "_" + job + "_summary.yaml"
}

func writeTable(path string, write func(*os.File) (int, error)) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrapf(err, "pipeline: create %s", filepath.Dir(path))
	}
	fh, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "pipeline: create %s", path)
	}
	n, err := write(fh)
	if cerr := fh.Close(); err == nil && cerr != nil {
		err = eris.Wrapf(cerr, "pipeline: close %s", path)
	}
	return n, err
}
