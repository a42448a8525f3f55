package vetting

import (
	"context"
	"io"
	"math"

	"github.com/sells-group/tess-exoclass/internal/fetcher"
	"github.com/sells-group/tess-exoclass/internal/model"
)

// PDCStats is the per-candidate PDC fit goodness summary across sectors.
type PDCStats struct {
	MinNoise float64
	MaxCorr  float64
}

// NoPDC is the summary of a candidate without any usable sector.
var NoPDC = PDCStats{MinNoise: 1.0, MaxCorr: 0.0}

// PDCSector is one "tic pn sector noise correlation" row.
type PDCSector struct {
	Key    model.Key
	Sector int
	Noise  float64
	Corr   float64
}

// LoadPDC reads per-sector PDC goodness rows.
func LoadPDC(ctx context.Context, r io.Reader, name string) ([]PDCSector, error) {
	var out []PDCSector
	opts := fetcher.TableOptions{Name: name, Columns: 5}
	err := fetcher.ReadTable(ctx, r, opts, func(row fetcher.TableRow) error {
		var p PDCSector
		var err error
		if p.Key, err = rowKey(row, 0, 1); err != nil {
			return err
		}
		s, err := row.Int(2)
		if err != nil {
			return err
		}
		p.Sector = int(s)
		if p.Noise, err = row.Float(3); err != nil {
			return err
		}
		if p.Corr, err = row.Float(4); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AggregatePDC takes the minimum noise and maximum correlation over sectors
// in [max(firstValid, start), end]. Aggregation starts from NoPDC, so a
// candidate's values never exceed those bounds.
func AggregatePDC(rows []PDCSector, start, end, firstValid int) map[model.Key]PDCStats {
	lo := max(firstValid, start)
	out := make(map[model.Key]PDCStats)
	for _, r := range rows {
		if r.Sector < lo || r.Sector > end {
			continue
		}
		st, ok := out[r.Key]
		if !ok {
			st = NoPDC
		}
		if !math.IsNaN(r.Noise) {
			st.MinNoise = math.Min(st.MinNoise, r.Noise)
		}
		if !math.IsNaN(r.Corr) {
			st.MaxCorr = math.Max(st.MaxCorr, r.Corr)
		}
		out[r.Key] = st
	}
	return out
}
