// Package pipeline runs the ranking pass: load the run tables, gate, score,
// shard, classify and write the results.
package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tess-exoclass/internal/candidate"
	"github.com/sells-group/tess-exoclass/internal/config"
	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/vetting"
)

// Inputs are the loaded tables of one run. Every map is keyed by candidate
// and read-only once Load returns.
type Inputs struct {
	Candidates      *candidate.Store
	FluxTriage      map[model.Key]vetting.FluxTriage
	ModshiftPrimary map[model.Key]vetting.Modshift
	ModshiftAlt     map[model.Key]vetting.Modshift
	Sweet           map[model.Key]float64
	MomentumDump    map[model.Key]float64
	PDC             map[model.Key]vetting.PDCStats
	SelfMatch       []vetting.SelfMatch
	TOI             []model.FederationResult
	Known           []model.FederationResult
}

type loader func(ctx context.Context, r io.Reader, name string) error

// Load reads the run's tables concurrently from cfg.Run.Dir. The candidate
// and flux-triage tables are required; any other table whose pattern is
// empty is skipped and its rows count as missing.
func Load(ctx context.Context, cfg *config.Config) (*Inputs, error) {
	var (
		in  Inputs
		pdc []vetting.PDCSector
	)
	files := cfg.Files

	g, gctx := errgroup.WithContext(ctx)
	add := func(key, pattern string, required bool, fn loader) {
		g.Go(func() error {
			if pattern == "" {
				if required {
					return eris.Errorf("pipeline: files.%s is required", key)
				}
				zap.L().Info("pipeline: table skipped", zap.String("table", key))
				return nil
			}
			return loadFile(gctx, cfg.Run.Dir, files.Resolve(pattern, cfg.Run.Name), fn)
		})
	}

	add("candidates", files.Candidates, true, func(ctx context.Context, r io.Reader, name string) (err error) {
		in.Candidates, err = candidate.Load(ctx, r, name)
		return err
	})
	add("flux_triage", files.FluxTriage, true, func(ctx context.Context, r io.Reader, name string) (err error) {
		in.FluxTriage, err = vetting.LoadFluxTriage(ctx, r, name)
		return err
	})
	add("modshift_primary", files.ModshiftPrimary, false, func(ctx context.Context, r io.Reader, name string) (err error) {
		in.ModshiftPrimary, err = vetting.LoadModshift(ctx, r, name)
		return err
	})
	add("modshift_alt", files.ModshiftAlt, false, func(ctx context.Context, r io.Reader, name string) (err error) {
		in.ModshiftAlt, err = vetting.LoadModshift(ctx, r, name)
		return err
	})
	add("sweet", files.Sweet, false, func(ctx context.Context, r io.Reader, name string) (err error) {
		in.Sweet, err = vetting.LoadSweet(ctx, r, name)
		return err
	})
	add("momentum_dump", files.MomentumDump, false, func(ctx context.Context, r io.Reader, name string) (err error) {
		in.MomentumDump, err = vetting.LoadMomentumDump(ctx, r, name)
		return err
	})
	add("pdc_metrics", files.PDCMetrics, false, func(ctx context.Context, r io.Reader, name string) (err error) {
		pdc, err = vetting.LoadPDC(ctx, r, name)
		return err
	})
	add("selfmatch", files.SelfMatch, false, func(ctx context.Context, r io.Reader, name string) (err error) {
		in.SelfMatch, err = vetting.LoadSelfMatch(ctx, r, name)
		return err
	})
	add("toi_federation", files.TOIFederation, false, func(ctx context.Context, r io.Reader, name string) (err error) {
		in.TOI, err = vetting.LoadFederation(ctx, r, name)
		return err
	})
	add("known_federation", files.KnownFederation, false, func(ctx context.Context, r io.Reader, name string) (err error) {
		in.Known, err = vetting.LoadFederation(ctx, r, name)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if pdc != nil {
		in.PDC = vetting.AggregatePDC(pdc, cfg.Run.StartSector, cfg.Run.EndSector, cfg.Run.FirstValidSector)
	}
	return &in, nil
}

func loadFile(ctx context.Context, dir, pattern string, fn loader) error {
	path, err := candidate.ResolveSingle(dir, pattern)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return fn(ctx, f, filepath.Base(path))
}
