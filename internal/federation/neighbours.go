// Package federation matches catalog entries and TCEs against the candidate
// store and builds the catalog-match flag used by the ranking run.
package federation

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/soniakeys/unit"

	"github.com/sells-group/tess-exoclass/internal/sky"
	"github.com/sells-group/tess-exoclass/pkg/mast"
)

// Neighbours finds the TIC targets around a catalog entry.
type Neighbours interface {
	Near(ctx context.Context, e Target, radius unit.Angle) ([]uint64, error)
}

// Target is the sky anchor of a search: a TIC id, a position, or both.
// RA and Dec are degrees and NaN when unknown.
type Target struct {
	TIC uint64
	RA  float64
	Dec float64
}

func (t Target) hasPosition() bool {
	return !math.IsNaN(t.RA) && !math.IsNaN(t.Dec)
}

// SameTarget restricts a search to the entry's own TIC.
type SameTarget struct{}

// Near implements Neighbours.
func (SameTarget) Near(_ context.Context, t Target, _ unit.Angle) ([]uint64, error) {
	if t.TIC == 0 {
		return nil, nil
	}
	return []uint64{t.TIC}, nil
}

// MAST runs cone searches against the MAST TIC service.
type MAST struct {
	Client mast.Client
}

// Near implements Neighbours. A TIC the catalog does not know is searched as
// itself only.
func (m MAST) Near(ctx context.Context, t Target, radius unit.Angle) ([]uint64, error) {
	ra, dec := t.RA, t.Dec
	if !t.hasPosition() {
		if t.TIC == 0 {
			return nil, nil
		}
		var found bool
		var err error
		ra, dec, found, err = m.Client.Position(ctx, t.TIC)
		if err != nil {
			return nil, eris.Wrapf(err, "federation: locate TIC %d", t.TIC)
		}
		if !found {
			return []uint64{t.TIC}, nil
		}
	}
	ids, err := m.Client.Cone(ctx, ra, dec, radius)
	if err != nil {
		return nil, eris.Wrap(err, "federation: cone search")
	}
	return ids, nil
}

// Table runs cone searches against a local position index.
type Table struct {
	Index *sky.Index
}

// Near implements Neighbours.
func (tb Table) Near(_ context.Context, t Target, radius unit.Angle) ([]uint64, error) {
	ra, dec := unit.AngleFromDeg(t.RA), unit.AngleFromDeg(t.Dec)
	if !t.hasPosition() {
		p, ok := tb.Index.ByID(t.TIC)
		if !ok {
			if t.TIC == 0 {
				return nil, nil
			}
			return []uint64{t.TIC}, nil
		}
		ra, dec = p.RA, p.Dec
	}
	matches := tb.Index.Cone(ra, dec, radius)
	ids := make([]uint64, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return ids, nil
}
