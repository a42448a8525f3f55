package vetting

import (
	"context"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tess-exoclass/internal/fetcher"
	"github.com/sells-group/tess-exoclass/internal/model"
)

// LoadFederation reads a federation table written by report.WriteFederation:
// "catTic catId label tic pn quality stat ratioflag ratio federated".
func LoadFederation(ctx context.Context, r io.Reader, name string) ([]model.FederationResult, error) {
	var out []model.FederationResult
	opts := fetcher.TableOptions{Name: name, Columns: federationCols}
	err := fetcher.ReadTable(ctx, r, opts, func(row fetcher.TableRow) error {
		res, err := parseFederationRow(row)
		if err != nil {
			return err
		}
		out = append(out, res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseFederationRow(row fetcher.TableRow) (model.FederationResult, error) {
	var res model.FederationResult
	var err error

	if res.CatalogTIC, err = row.Uint(0); err != nil {
		return res, eris.Wrap(err, "parse catalog tic")
	}
	if res.CatalogID, err = row.Float(1); err != nil {
		return res, eris.Wrap(err, "parse catalog id")
	}
	res.Label = row.Fields[2]
	if res.Match, err = rowKey(row, 3, 4); err != nil {
		return res, err
	}
	q, err := row.Int(5)
	if err != nil {
		return res, eris.Wrap(err, "parse quality")
	}
	res.Quality = model.MatchQuality(q)
	if res.Statistic, err = row.Float(6); err != nil {
		return res, eris.Wrap(err, "parse statistic")
	}
	rf, err := row.Int(7)
	if err != nil {
		return res, eris.Wrap(err, "parse ratio flag")
	}
	res.RatioFlag = rf != 0
	if res.PeriodRatio, err = row.Float(8); err != nil {
		return res, eris.Wrap(err, "parse period ratio")
	}
	fed, err := row.Int(9)
	if err != nil {
		return res, eris.Wrap(err, "parse federated flag")
	}
	res.Federated = fed == 1
	return res, nil
}

// SelfMatch is one row of the TCE-against-TCE federation table.
type SelfMatch struct {
	Key         model.Key
	Other       model.Key
	Quality     model.MatchQuality
	Statistic   float64
	RatioFlag   bool
	PeriodRatio float64
	Federated   bool
	Separation  float64 // in pixels
	NFederated  int     // number of other TCEs federated with Key
}

// Matched reports whether the row marks Key as a duplicate of another TCE:
// it is the only federated neighbour and closer than maxSep, or one of
// several.
func (s SelfMatch) Matched(maxSep float64) bool {
	return (s.NFederated == 1 && s.Separation < maxSep) || s.NFederated > 1
}

// LoadSelfMatch reads "tic1 pn1 tic2 pn2 quality stat ratioflag ratio
// match sep nfed" rows.
func LoadSelfMatch(ctx context.Context, r io.Reader, name string) ([]SelfMatch, error) {
	var out []SelfMatch
	opts := fetcher.TableOptions{Name: name, Columns: selfMatchColumns}
	err := fetcher.ReadTable(ctx, r, opts, func(row fetcher.TableRow) error {
		var s SelfMatch
		var err error
		if s.Key, err = rowKey(row, 0, 1); err != nil {
			return err
		}
		if s.Other, err = rowKey(row, 2, 3); err != nil {
			return err
		}
		q, err := row.Int(4)
		if err != nil {
			return err
		}
		s.Quality = model.MatchQuality(q)
		if s.Statistic, err = row.Float(5); err != nil {
			return err
		}
		rf, err := row.Int(6)
		if err != nil {
			return err
		}
		s.RatioFlag = rf != 0
		if s.PeriodRatio, err = row.Float(7); err != nil {
			return err
		}
		m, err := row.Int(8)
		if err != nil {
			return err
		}
		s.Federated = m == 1
		if s.Separation, err = row.Float(9); err != nil {
			return err
		}
		n, err := row.Int(10)
		if err != nil {
			return err
		}
		s.NFederated = int(n)
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SelfMatched returns the set of keys some row marks as matched.
func SelfMatched(rows []SelfMatch, maxSep float64) map[model.Key]bool {
	out := make(map[model.Key]bool)
	for _, r := range rows {
		if r.Matched(maxSep) {
			out[r.Key] = true
		}
	}
	return out
}
