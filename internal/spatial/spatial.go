// Package spatial scores period agreement between positionally associated
// objects, for planets that have no usable transit ephemeris.
package spatial

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/tess-exoclass/internal/model"
)

// minDelta keeps exact integer ratios finite.
const minDelta = 1e-15

// Significance is the period-ratio significance of two periods. Larger means
// the ratio sits closer to an integer. It is symmetric in its arguments and
// returns NaN when either period is unusable.
func Significance(p1, p2 float64) float64 {
	if !usable(p1) || !usable(p2) {
		return math.NaN()
	}
	if p1 > p2 {
		p1, p2 = p2, p1
	}
	delta := (p1 - p2) / p1
	dp := math.Abs(delta - math.Round(delta))
	dp = math.Max(dp, minDelta)
	return math.Sqrt2 * math.Erfcinv(dp)
}

// Best returns the index and statistic of the candidate period that best
// matches ref. Ties go to the smallest index; ok is false when no candidate
// yields a finite statistic.
func Best(ref float64, cands []float64) (index int, stat float64, ok bool) {
	index = -1
	for i, p := range cands {
		s := Significance(ref, p)
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		if !ok || s > stat {
			index, stat, ok = i, s, true
		}
	}
	return index, stat, ok
}

// PeriodResolver looks up a replacement period for a catalog entry whose
// primary period is missing.
type PeriodResolver interface {
	ResolvePeriod(ctx context.Context, name string) (float64, error)
}

// Unresolved is an entry that was dropped because no period could be found.
type Unresolved struct {
	Entry model.CatalogEntry
	Err   error
}

// ResolvePeriods repairs entries with a non-finite period through r. Entries
// that remain without a period are removed and returned separately.
func ResolvePeriods(ctx context.Context, entries []model.CatalogEntry, r PeriodResolver) ([]model.CatalogEntry, []Unresolved) {
	out := make([]model.CatalogEntry, 0, len(entries))
	var dropped []Unresolved
	for _, e := range entries {
		if usable(e.Period) {
			out = append(out, e)
			continue
		}
		if r == nil {
			dropped = append(dropped, Unresolved{Entry: e, Err: model.ErrNoValidData})
			continue
		}
		name := e.Name
		if name == "" {
			name = e.Label
		}
		p, err := r.ResolvePeriod(ctx, name)
		if err != nil || !usable(p) {
			if err == nil {
				err = model.ErrNoValidData
			}
			zap.L().Warn("spatial: period unresolved", zap.String("name", e.Label), zap.Error(err))
			dropped = append(dropped, Unresolved{Entry: e, Err: err})
			continue
		}
		e.Period = p
		out = append(out, e)
	}
	return out, dropped
}

func usable(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}
