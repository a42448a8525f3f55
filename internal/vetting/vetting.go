// Package vetting loads the auxiliary per-candidate test tables produced by
// the upstream vetting stages.
package vetting

import (
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tess-exoclass/internal/fetcher"
	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/tier"
)

const (
	modshiftColumns  = 27
	sweetColumns     = 19
	selfMatchColumns = 11
	federationCols   = 10
)

// rowKey parses the leading "tic pn" pair of a row.
func rowKey(r fetcher.TableRow, ticCol, pnCol int) (model.Key, error) {
	tic, err := r.Uint(ticCol)
	if err != nil {
		return model.Key{}, eris.Wrap(err, "parse tic")
	}
	pn, err := r.Int(pnCol)
	if err != nil {
		return model.Key{}, eris.Wrap(err, "parse planet number")
	}
	return model.Key{TIC: tic, PlanetNum: int(pn)}, nil
}

// keyed reads a table into a map, keeping the first row per key.
func keyed[T any](ctx context.Context, r io.Reader, opts fetcher.TableOptions, parse func(fetcher.TableRow) (model.Key, T, error)) (map[model.Key]T, error) {
	out := make(map[model.Key]T)
	dups := 0
	err := fetcher.ReadTable(ctx, r, opts, func(row fetcher.TableRow) error {
		k, v, err := parse(row)
		if err != nil {
			return err
		}
		if _, ok := out[k]; ok {
			dups++
			return nil
		}
		out[k] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	if dups > 0 {
		zap.L().Debug("vetting: duplicate rows ignored", zap.String("file", opts.Name), zap.Int("count", dups))
	}
	return out, nil
}

// FluxTriage is one flux-vetting verdict.
type FluxTriage struct {
	Pass  bool
	Label string
}

// LoadFluxTriage reads "tic pn pass label" rows. The label is optional.
func LoadFluxTriage(ctx context.Context, r io.Reader, name string) (map[model.Key]FluxTriage, error) {
	opts := fetcher.TableOptions{Name: name, MinColumns: 3}
	return keyed(ctx, r, opts, func(row fetcher.TableRow) (model.Key, FluxTriage, error) {
		k, err := rowKey(row, 0, 1)
		if err != nil {
			return k, FluxTriage{}, err
		}
		pass, err := row.Int(2)
		if err != nil {
			return k, FluxTriage{}, eris.Wrap(err, "parse pass flag")
		}
		return k, FluxTriage{Pass: pass == 1, Label: strings.Join(row.Fields[3:], " ")}, nil
	})
}

// Modshift is the part of a model-shift result row the classifier reads.
type Modshift struct {
	OddEvenSig    float64
	UniqueFlag    int
	SecondaryFlag int
	OverrideFlag  int // secondary explained by planet reflection or heat
}

// Evidence converts the row into classifier input.
func (m Modshift) Evidence() *tier.Modshift {
	return &tier.Modshift{
		OddEvenSig:        m.OddEvenSig,
		Unique:            m.UniqueFlag != 0,
		Secondary:         m.SecondaryFlag == 1,
		SecondaryOverride: m.OverrideFlag != 0,
	}
}

// LoadModshift reads a 27-column model-shift table.
func LoadModshift(ctx context.Context, r io.Reader, name string) (map[model.Key]Modshift, error) {
	opts := fetcher.TableOptions{Name: name, Columns: modshiftColumns}
	return keyed(ctx, r, opts, func(row fetcher.TableRow) (model.Key, Modshift, error) {
		var m Modshift
		k, err := rowKey(row, 0, 1)
		if err != nil {
			return k, m, err
		}
		if m.OddEvenSig, err = row.Float(6); err != nil {
			return k, m, err
		}
		ints := []struct {
			dst *int
			col int
		}{{&m.UniqueFlag, 19}, {&m.SecondaryFlag, 21}, {&m.OverrideFlag, 23}}
		for _, f := range ints {
			v, err := row.Int(f.col)
			if err != nil {
				return k, m, err
			}
			*f.dst = int(v)
		}
		return k, m, nil
	})
}

// LoadSweet reads the sweet test table and returns the residual ratio
// (column 19) per candidate.
func LoadSweet(ctx context.Context, r io.Reader, name string) (map[model.Key]float64, error) {
	opts := fetcher.TableOptions{Name: name, Columns: sweetColumns}
	return keyed(ctx, r, opts, func(row fetcher.TableRow) (model.Key, float64, error) {
		k, err := rowKey(row, 0, 1)
		if err != nil {
			return k, 0, err
		}
		v, err := row.Float(18)
		return k, v, err
	})
}

// LoadMomentumDump reads "tic pn fraction" rows.
func LoadMomentumDump(ctx context.Context, r io.Reader, name string) (map[model.Key]float64, error) {
	opts := fetcher.TableOptions{Name: name, Columns: 3}
	return keyed(ctx, r, opts, func(row fetcher.TableRow) (model.Key, float64, error) {
		k, err := rowKey(row, 0, 1)
		if err != nil {
			return k, 0, err
		}
		v, err := row.Float(2)
		return k, v, err
	})
}
