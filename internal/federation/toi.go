package federation

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tess-exoclass/internal/fetcher"
	"github.com/sells-group/tess-exoclass/internal/model"
)

// toiRow is the subset of the ExoFOP TOI export the federation reads.
type toiRow struct {
	TIC         uint64   `csv:"TIC ID"`
	TOI         float64  `csv:"TOI"`
	Disposition string   `csv:"TESS Disposition,omitempty"`
	Epoch       *float64 `csv:"Epoch (BJD),omitempty"`
	Period      *float64 `csv:"Period (days),omitempty"`
	Duration    *float64 `csv:"Duration (hours),omitempty"`
}

// LoadTOIs decodes an ExoFOP TOI CSV into catalog entries. Epochs are
// shifted by epochOffset onto the candidate time system. Rows with a zero
// TIC are skipped.
func LoadTOIs(ctx context.Context, r io.Reader, name string, epochOffset float64) ([]model.CatalogEntry, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		return nil, eris.Wrapf(err, "federation: read header of %s", name)
	}

	var out []model.CatalogEntry
	skipped := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "federation: load TOIs cancelled")
		}
		var row toiRow
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "federation: decode %s:%d", name, fetcher.RecordLine(cr, err))
		}
		if row.TIC == 0 {
			skipped++
			continue
		}
		label := strings.TrimSpace(row.Disposition)
		if label == "" {
			label = "-"
		}
		out = append(out, model.CatalogEntry{
			TIC:      row.TIC,
			ID:       row.TOI,
			Label:    label,
			Period:   orNaN(row.Period),
			Epoch:    orNaN(row.Epoch) - epochOffset,
			Duration: orNaN(row.Duration),
			RA:       math.NaN(),
			Dec:      math.NaN(),
		})
	}
	zap.L().Info("federation: loaded TOI list",
		zap.String("file", name),
		zap.Int("count", len(out)),
		zap.Int("skipped", skipped),
	)
	return out, nil
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
