package federation

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/soniakeys/unit"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tess-exoclass/internal/candidate"
	"github.com/sells-group/tess-exoclass/internal/ephem"
	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/sky"
	"github.com/sells-group/tess-exoclass/internal/vetting"
)

// SelfMatcher federates each TCE against the TCEs of neighbouring targets,
// producing the table the tier classifier reads for duplicate detection.
type SelfMatcher struct {
	Store  *candidate.Store
	Radius unit.Angle
	// PixelScale is arcseconds per detector pixel; separations are
	// reported in pixels.
	PixelScale  float64
	Ephem       ephem.Config
	Concurrency int
}

// Targets builds a position index with one entry per TIC, taken from the
// first TCE on the target with a finite position.
func Targets(s *candidate.Store) *sky.Index {
	var pos []sky.Position
	for _, tic := range s.Targets() {
		for _, j := range s.ByTarget(tic) {
			c := s.At(j)
			if math.IsNaN(c.RA) || math.IsNaN(c.Dec) {
				continue
			}
			pos = append(pos, sky.Position{ID: tic, RA: unit.AngleFromDeg(c.RA), Dec: unit.AngleFromDeg(c.Dec)})
			break
		}
	}
	return sky.NewIndex(pos)
}

// Run returns one row per usable TCE that has at least one usable TCE on a
// different target within Radius, in store order.
func (m *SelfMatcher) Run(ctx context.Context, w ephem.Window) ([]vetting.SelfMatch, Stats, error) {
	index := Targets(m.Store)
	rows := make([]*vetting.SelfMatch, m.Store.Len())
	var c counters

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, m.Concurrency))
	for i := 0; i < m.Store.Len(); i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cand := m.Store.At(i)
			if cand.Malformed {
				c.noEphem.Add(1)
				return nil
			}
			row, ok := m.match(index, cand, w)
			if !ok {
				c.noCands.Add(1)
				return nil
			}
			c.matched.Add(1)
			if row.Federated {
				c.federated.Add(1)
			}
			rows[i] = &row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, eris.Wrap(err, "federation: self-match cancelled")
	}

	var out []vetting.SelfMatch
	for _, r := range rows {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, c.stats(m.Store.Len()), nil
}

func (m *SelfMatcher) match(index *sky.Index, cand *model.Candidate, w ephem.Window) (vetting.SelfMatch, bool) {
	home, ok := index.ByID(cand.TIC)
	if !ok {
		return vetting.SelfMatch{}, false
	}

	var (
		idx  []int
		seps []float64
	)
	for _, nb := range index.Cone(home.RA, home.Dec, m.Radius) {
		if nb.ID == cand.TIC {
			continue
		}
		for _, j := range m.Store.ByTarget(nb.ID) {
			if !m.Store.At(j).Malformed {
				idx = append(idx, j)
				seps = append(seps, nb.Separation.Sec()/m.PixelScale)
			}
		}
	}
	if len(idx) == 0 {
		return vetting.SelfMatch{}, false
	}

	ref := ephem.Reference{Period: cand.Period, Epoch: cand.Epoch}
	cands := make([]ephem.Ephemeris, len(idx))
	nfed := 0
	for k, j := range idx {
		cands[k] = ephem.FromStage(m.Store.At(j).Ephemeris())
		if ephem.Federate(ref, cands[k:k+1], w, m.Ephem).Federated {
			nfed++
		}
	}
	res := ephem.Federate(ref, cands, w, m.Ephem)
	return vetting.SelfMatch{
		Key:         cand.Key,
		Other:       m.Store.At(idx[res.BestIndex]).Key,
		Quality:     res.Quality,
		Statistic:   res.Statistic,
		RatioFlag:   res.RatioFlag,
		PeriodRatio: res.PeriodRatio,
		Federated:   res.Federated,
		Separation:  seps[res.BestIndex],
		NFederated:  nfed,
	}, true
}
