package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tess-exoclass/internal/candidate"
	"github.com/sells-group/tess-exoclass/internal/config"
	"github.com/sells-group/tess-exoclass/internal/federation"
	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/rank"
	"github.com/sells-group/tess-exoclass/internal/report"
	"github.com/sells-group/tess-exoclass/internal/tier"
	"github.com/sells-group/tess-exoclass/internal/vetting"
)

// Options control one ranking pass.
type Options struct {
	Tier        config.TierConfig
	Rank        config.RankConfig
	WorkerID    int
	Workers     int
	Concurrency int
}

// Diagnostics counts what happened to the candidates of a pass.
type Diagnostics struct {
	Loaded    int
	Gated     int // failed the flux-triage gate
	Malformed int
	Ranked    int // scored across all shards
	Assigned  int // handled by this shard
	Tier1     int
	Tier2     int
	Tier3     int

	MissingModshift     int
	MissingSweet        int
	MissingPDC          int
	MissingMomentumDump int
}

// Counts flattens d for the run summary.
func (d Diagnostics) Counts() map[string]int {
	return map[string]int{
		"loaded":                d.Loaded,
		"gated":                 d.Gated,
		"malformed":             d.Malformed,
		"ranked":                d.Ranked,
		"assigned":              d.Assigned,
		"tier1":                 d.Tier1,
		"tier2":                 d.Tier2,
		"tier3":                 d.Tier3,
		"missing_modshift":      d.MissingModshift,
		"missing_sweet":         d.MissingSweet,
		"missing_pdc":           d.MissingPDC,
		"missing_momentum_dump": d.MissingMomentumDump,
	}
}

// RunResult converts d into the persisted run result.
func (d Diagnostics) RunResult(outputs []string) *model.RunResult {
	return &model.RunResult{
		Loaded:      d.Loaded,
		Gated:       d.Gated,
		Malformed:   d.Malformed,
		Ranked:      d.Ranked,
		Tier1:       d.Tier1,
		Tier2:       d.Tier2,
		Tier3:       d.Tier3,
		OutputFiles: outputs,
	}
}

// Passes reports whether c clears the flux-triage gate: valid DV and
// trapezoid fits, positive insolation and a passing flux verdict.
func Passes(c *model.Candidate, ft vetting.FluxTriage) bool {
	return c.DV.Valid && c.Trapezoid.Valid && c.Insolation > 0 && ft.Pass
}

// Shard returns the positions of a sorted list of n entries that worker id
// of workers handles.
func Shard(n, workerID, workers int) []int {
	out := make([]int, 0, n/workers+1)
	for i := workerID; i < n; i += workers {
		out = append(out, i)
	}
	return out
}

// Rank gates and scores every candidate, sorts them, keeps this worker's
// shard and classifies it. Rows come back in rank order.
func Rank(ctx context.Context, in *Inputs, opts Options) ([]report.Row, Diagnostics, error) {
	var d Diagnostics
	if opts.Workers < 1 || opts.WorkerID < 0 || opts.WorkerID >= opts.Workers {
		return nil, d, eris.Errorf("pipeline: invalid shard %d of %d", opts.WorkerID, opts.Workers)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	store := in.Candidates
	d.Loaded = store.Len()
	flux := candidate.Join(store, in.FluxTriage, vetting.FluxTriage{})

	scored := make([]rank.Scored, 0, store.Len())
	for i := range store.Len() {
		c := store.At(i)
		if !Passes(c, flux[i]) {
			d.Gated++
			continue
		}
		if c.Malformed {
			d.Malformed++
			zap.L().Debug("pipeline: malformed ephemeris excluded",
				zap.Uint64("tic", c.TIC), zap.Int("pn", c.PlanetNum))
			continue
		}
		scored = append(scored, rank.Scored{Index: i, Score: rank.Score(c, opts.Rank)})
	}
	rank.Sort(scored)
	d.Ranked = len(scored)

	positions := Shard(len(scored), opts.WorkerID, opts.Workers)
	d.Assigned = len(positions)

	selfMatched := vetting.SelfMatched(in.SelfMatch, opts.Tier.SelfMatchSeparation)
	matches := federation.NewMatches(in.TOI, in.Known)
	cls := tier.New(opts.Tier)

	rows := make([]report.Row, len(positions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for j, pos := range positions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s := scored[pos]
			c := store.At(s.Index)
			ev := Evidence(c, in, selfMatched[c.Key])
			rows[j] = report.Row{
				Key:       c.Key,
				Rank:      pos,
				Score:     s.Score,
				MatchFlag: matches.Flag(c.Key),
				Result:    cls.Classify(ev),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, d, eris.Wrap(err, "pipeline: classify")
	}

	for _, r := range rows {
		switch r.Result.Tier {
		case 1:
			d.Tier1++
		case 2:
			d.Tier2++
		default:
			d.Tier3++
		}
		d.countMissing(r.Key, in)
	}

	zap.L().Info("pipeline: ranked candidates",
		zap.Int("loaded", d.Loaded),
		zap.Int("gated", d.Gated),
		zap.Int("malformed", d.Malformed),
		zap.Int("ranked", d.Ranked),
		zap.Int("assigned", d.Assigned),
		zap.Int("tier1", d.Tier1),
		zap.Int("tier2", d.Tier2),
		zap.Int("tier3", d.Tier3),
	)
	return rows, d, nil
}

func (d *Diagnostics) countMissing(k model.Key, in *Inputs) {
	if _, ok := in.ModshiftPrimary[k]; !ok {
		d.MissingModshift++
	}
	if _, ok := in.Sweet[k]; !ok {
		d.MissingSweet++
	}
	if _, ok := in.PDC[k]; !ok {
		d.MissingPDC++
	}
	if _, ok := in.MomentumDump[k]; !ok {
		d.MissingMomentumDump++
	}
}

// Evidence gathers the classifier input of c. Absent auxiliary rows stay
// absent so they never disqualify.
func Evidence(c *model.Candidate, in *Inputs, selfMatched bool) tier.Evidence {
	ev := tier.Evidence{
		CentOOTSig:    c.Derived.CentOOTSig,
		CentOOTErr:    c.CentOOTOffsetErr,
		CentTICSig:    c.Derived.CentTICSig,
		CentTICErr:    c.CentTICOffsetErr,
		SNR:           c.SNR,
		PlanetRadius:  c.PlanetRadius,
		OtherTCEMatch: selfMatched,
	}
	if ms, ok := in.ModshiftPrimary[c.Key]; ok {
		ev.Primary = ms.Evidence()
	}
	if ms, ok := in.ModshiftAlt[c.Key]; ok {
		ev.Alternate = ms.Evidence()
	}
	if v, ok := in.Sweet[c.Key]; ok {
		ev.HasSweet, ev.SweetRatio = true, v
	}
	if p, ok := in.PDC[c.Key]; ok {
		ev.HasPDC, ev.PDCNoise = true, p.MinNoise
	}
	if v, ok := in.MomentumDump[c.Key]; ok {
		ev.HasMomentumDump, ev.MomentumDumpFraction = true, v
	}
	return ev
}
