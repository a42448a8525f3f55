// Package candidate loads TCE records and serves them by key to the
// matching, tiering and ranking stages.
package candidate

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tess-exoclass/internal/fetcher"
	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/rank"
)

// Float is a CSV float where an empty cell means NaN.
type Float float64

// UnmarshalCSV implements csvutil.Unmarshaler.
func (f *Float) UnmarshalCSV(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*f = Float(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return eris.Wrapf(err, "parse float %q", s)
	}
	*f = Float(v)
	return nil
}

// MarshalCSV implements csvutil.Marshaler.
func (f Float) MarshalCSV() ([]byte, error) {
	if math.IsNaN(float64(f)) {
		return nil, nil
	}
	return []byte(strconv.FormatFloat(float64(f), 'g', -1, 64)), nil
}

// Row is the on-disk layout of the candidate table.
type Row struct {
	TIC       uint64 `csv:"tic"`
	PlanetNum int    `csv:"pn"`

	DVValid    int   `csv:"dv_valid"`
	DVPeriod   Float `csv:"dv_period"`
	DVEpoch    Float `csv:"dv_epoch"`
	DVDuration Float `csv:"dv_duration"`

	TrpValid    int   `csv:"trp_valid"`
	TrpPeriod   Float `csv:"trp_period"`
	TrpEpoch    Float `csv:"trp_epoch"`
	TrpDuration Float `csv:"trp_duration"`

	PulsePeriod   Float `csv:"pulse_period"`
	PulseEpoch    Float `csv:"pulse_epoch"`
	PulseDuration Float `csv:"pulse_duration"`

	PlanetRadius  Float `csv:"planet_radius"`
	StellarRadius Float `csv:"stellar_radius"`
	LogG          Float `csv:"logg"`
	Tmag          Float `csv:"tmag"`
	MES           Float `csv:"mes"`
	SNR           Float `csv:"snr"`
	Insolation    Float `csv:"insolation"`
	DVDepth       Float `csv:"dv_depth"`
	TrpDepth      Float `csv:"trp_depth"`
	MaxSESInMES   Float `csv:"max_ses_in_mes"`

	CentOOTOffset    Float `csv:"cent_oot_offset"`
	CentOOTOffsetErr Float `csv:"cent_oot_offset_err"`
	CentTICOffset    Float `csv:"cent_tic_offset"`
	CentTICOffsetErr Float `csv:"cent_tic_offset_err"`
	OddEvenSig       Float `csv:"oe_signif"`

	RA  Float `csv:"ra"`
	Dec Float `csv:"dec"`
}

// Candidate converts the row, resolving the ephemeris and derivations.
func (r Row) Candidate(order int) model.Candidate {
	c := model.Candidate{
		Key:   model.Key{TIC: r.TIC, PlanetNum: r.PlanetNum},
		Order: order,
		DV: model.StageEphemeris{
			Valid: r.DVValid == 1, Period: float64(r.DVPeriod), Epoch: float64(r.DVEpoch), Duration: float64(r.DVDuration),
		},
		Trapezoid: model.StageEphemeris{
			Valid: r.TrpValid == 1, Period: float64(r.TrpPeriod), Epoch: float64(r.TrpEpoch), Duration: float64(r.TrpDuration),
		},
		Pulse: model.StageEphemeris{
			Valid: true, Period: float64(r.PulsePeriod), Epoch: float64(r.PulseEpoch), Duration: float64(r.PulseDuration),
		},
		PlanetRadius:     float64(r.PlanetRadius),
		StellarRadius:    float64(r.StellarRadius),
		LogG:             float64(r.LogG),
		Tmag:             float64(r.Tmag),
		MES:              float64(r.MES),
		SNR:              float64(r.SNR),
		Insolation:       float64(r.Insolation),
		DVDepth:          float64(r.DVDepth),
		TrapDepth:        float64(r.TrpDepth),
		MaxSESInMES:      float64(r.MaxSESInMES),
		CentOOTOffset:    float64(r.CentOOTOffset),
		CentOOTOffsetErr: float64(r.CentOOTOffsetErr),
		CentTICOffset:    float64(r.CentTICOffset),
		CentTICOffsetErr: float64(r.CentTICOffsetErr),
		OddEvenSig:       float64(r.OddEvenSig),
		RA:               float64(r.RA),
		Dec:              float64(r.Dec),
	}
	c.ResolveEphemeris()
	Derive(&c)
	return c
}

// Derive fills the quantities computed once per record.
func Derive(c *model.Candidate) {
	d := &c.Derived
	d.ExpectedDuration = rank.ExpectedDuration(c.StellarRadius, c.LogG, c.Period, 0)
	d.DurationRatio = math.Abs(1 - c.Duration/d.ExpectedDuration)
	d.SNRRatio = c.SNR / c.MES
	d.DepthDiff = math.Abs((c.DVDepth - c.TrapDepth) / c.DVDepth)
	d.CentOOTSig = centroidSig(c.CentOOTOffset, c.CentOOTOffsetErr)
	d.CentTICSig = centroidSig(c.CentTICOffset, c.CentTICOffsetErr)
}

// centroidSig is offset/err; a negative ratio means the fit failed and maps
// to a large significance.
func centroidSig(offset, err float64) float64 {
	s := offset / err
	if s < 0 {
		return 99
	}
	return s
}

// Load decodes a candidate CSV with a header row. A structural error aborts
// the load and names the line.
func Load(ctx context.Context, r io.Reader, name string) (*Store, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		return nil, eris.Wrapf(err, "candidate: read header of %s", name)
	}
	dec.DisallowMissingColumns = true

	var cands []model.Candidate
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "candidate: load cancelled")
		}
		var row Row
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "candidate: decode %s:%d", name, fetcher.RecordLine(cr, err))
		}
		cands = append(cands, row.Candidate(len(cands)))
	}

	s, err := New(cands)
	if err != nil {
		return nil, eris.Wrapf(err, "candidate: index %s", name)
	}
	zap.L().Info("candidate: loaded table",
		zap.String("file", name),
		zap.Int("count", s.Len()),
	)
	return s, nil
}

// LoadFile opens path and calls Load.
func LoadFile(ctx context.Context, path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "candidate: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return Load(ctx, f, filepath.Base(path))
}

// ResolveSingle returns the one file in dir matching pattern. Zero or
// several matches is an ambiguous-input error.
func ResolveSingle(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", eris.Wrapf(err, "candidate: bad pattern %q", pattern)
	}
	if len(matches) != 1 {
		return "", eris.Wrapf(model.ErrAmbiguousInput, "candidate: pattern %q matched %d files in %s", pattern, len(matches), dir)
	}
	return matches[0], nil
}
