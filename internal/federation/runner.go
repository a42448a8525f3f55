package federation

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/soniakeys/unit"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tess-exoclass/internal/candidate"
	"github.com/sells-group/tess-exoclass/internal/ephem"
	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/spatial"
)

// Stats counts what happened to the catalog entries of one run.
type Stats struct {
	Entries      int `yaml:"entries"`
	Matched      int `yaml:"matched"`
	Federated    int `yaml:"federated"`
	NoCandidates int `yaml:"no_candidates"`
	NoEphemeris  int `yaml:"no_ephemeris"`
	Failed       int `yaml:"failed"`
}

// Runner federates catalog entries against the TCEs of a store.
type Runner struct {
	Store      *candidate.Store
	Neighbours Neighbours
	Radius     unit.Angle
	Ephem      ephem.Config
	// Concurrency bounds the number of entries in flight.
	Concurrency int
}

type counters struct {
	matched, federated, noCands, noEphem, failed atomic.Int64
}

func (c *counters) stats(n int) Stats {
	return Stats{
		Entries:      n,
		Matched:      int(c.matched.Load()),
		Federated:    int(c.federated.Load()),
		NoCandidates: int(c.noCands.Load()),
		NoEphemeris:  int(c.noEphem.Load()),
		Failed:       int(c.failed.Load()),
	}
}

// Window spans the epochs of every usable candidate, widened by before and
// after days.
func (r *Runner) Window(before, after float64) (ephem.Window, error) {
	idx := r.usable()
	epochs := make([]float64, len(idx))
	for i, j := range idx {
		epochs[i] = r.Store.At(j).Epoch
	}
	return ephem.WindowFromEpochs(epochs, before, after)
}

// Ephemeris matches every entry's ephemeris against the TCEs near it. The
// output has one row per entry, in entry order; entries that found nothing
// carry model.NoMatch. Only cancellation returns an error.
func (r *Runner) Ephemeris(ctx context.Context, entries []model.CatalogEntry, w ephem.Window) ([]model.FederationResult, Stats, error) {
	var c counters
	out, err := r.each(ctx, entries, func(ctx context.Context, e model.CatalogEntry) model.FederationResult {
		if !e.HasEphemeris() {
			c.noEphem.Add(1)
			return model.NoMatch(e)
		}
		idx, err := r.candidates(ctx, e)
		if err != nil {
			c.failed.Add(1)
			zap.L().Warn("federation: neighbour search failed", zap.String("entry", e.Label), zap.Error(err))
			return model.NoMatch(e)
		}
		if len(idx) == 0 {
			c.noCands.Add(1)
			return model.NoMatch(e)
		}

		cands := make([]ephem.Ephemeris, len(idx))
		for i, j := range idx {
			cands[i] = ephem.FromStage(r.Store.At(j).Ephemeris())
		}
		res := ephem.Federate(ephem.Reference{Period: e.Period, Epoch: e.Epoch}, cands, w, r.Ephem)
		row := toRow(e, res)
		row.Match = r.Store.At(idx[res.BestIndex]).Key
		c.matched.Add(1)
		if row.Federated {
			c.federated.Add(1)
		}
		return row
	})
	return out, c.stats(len(entries)), err
}

// Spatial matches entries that have only a period and a position. The best
// neighbour by period significance is always reported as federated.
func (r *Runner) Spatial(ctx context.Context, entries []model.CatalogEntry) ([]model.FederationResult, Stats, error) {
	var c counters
	out, err := r.each(ctx, entries, func(ctx context.Context, e model.CatalogEntry) model.FederationResult {
		idx, err := r.candidates(ctx, e)
		if err != nil {
			c.failed.Add(1)
			zap.L().Warn("federation: neighbour search failed", zap.String("entry", e.Label), zap.Error(err))
			return model.NoMatch(e)
		}
		periods := make([]float64, len(idx))
		for i, j := range idx {
			periods[i] = r.Store.At(j).Period
		}
		best, stat, ok := spatial.Best(e.Period, periods)
		if !ok {
			c.noCands.Add(1)
			return model.NoMatch(e)
		}
		c.matched.Add(1)
		c.federated.Add(1)
		return model.FederationResult{
			CatalogTIC:  e.TIC,
			CatalogID:   e.ID,
			Label:       e.Label,
			Match:       r.Store.At(idx[best]).Key,
			Quality:     model.MatchExact,
			Statistic:   stat,
			RatioFlag:   true,
			PeriodRatio: e.Period / periods[best],
			Federated:   true,
		}
	})
	return out, c.stats(len(entries)), err
}

func (r *Runner) each(ctx context.Context, entries []model.CatalogEntry, fn func(context.Context, model.CatalogEntry) model.FederationResult) ([]model.FederationResult, error) {
	out := make([]model.FederationResult, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.Concurrency))
	for i, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = fn(gctx, e)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "federation: run cancelled")
	}
	return out, nil
}

// candidates returns the positions of usable TCEs on targets near e, grouped
// by target in search order.
func (r *Runner) candidates(ctx context.Context, e model.CatalogEntry) ([]int, error) {
	t := Target{TIC: e.TIC, RA: e.RA, Dec: e.Dec}
	if e.TIC != 0 {
		// TIC-anchored entries are located through the catalog.
		t.RA, t.Dec = math.NaN(), math.NaN()
	}
	tics, err := r.Neighbours.Near(ctx, t, r.Radius)
	if err != nil {
		return nil, err
	}
	seen := make(map[uint64]bool, len(tics))
	var idx []int
	for _, tic := range tics {
		if seen[tic] {
			continue
		}
		seen[tic] = true
		for _, j := range r.Store.ByTarget(tic) {
			if !r.Store.At(j).Malformed {
				idx = append(idx, j)
			}
		}
	}
	return idx, nil
}

func (r *Runner) usable() []int {
	return r.Store.Select(func(c *model.Candidate) bool { return !c.Malformed })
}

func toRow(e model.CatalogEntry, res ephem.Result) model.FederationResult {
	return model.FederationResult{
		CatalogTIC:  e.TIC,
		CatalogID:   e.ID,
		Label:       e.Label,
		Quality:     res.Quality,
		Statistic:   res.Statistic,
		RatioFlag:   res.RatioFlag,
		PeriodRatio: res.PeriodRatio,
		Federated:   res.Federated,
	}
}
