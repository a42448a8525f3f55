// Package ephem matches a reference ephemeris against candidate ephemerides
// over a bounded observing window, including period aliases.
package ephem

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tess-exoclass/internal/model"
)

// Config holds the matcher thresholds.
type Config struct {
	MinStatistic   float64 // below this a best match is reported as none
	ExactStatistic float64 // at or above this a unit-ratio match is exact
	RatioTolerance float64 // absolute distance allowed from the nearest p/q
	MaxHarmonic    int     // largest p or q considered for period fractions
	MaxTransits    int     // transit enumeration cap per ephemeris
}

// DefaultConfig returns the thresholds used by the production runs.
func DefaultConfig() Config {
	return Config{
		MinStatistic:   0.3,
		ExactStatistic: 0.8,
		RatioTolerance: 0.01,
		MaxHarmonic:    5,
		MaxTransits:    200000,
	}
}

// Reference is the catalog side of a match.
type Reference struct {
	Period float64
	Epoch  float64
}

// Ephemeris is one candidate. Duration is in hours; Period and Epoch in days.
type Ephemeris struct {
	Period   float64
	Epoch    float64
	Duration float64
}

// FromStage converts a fitted stage ephemeris.
func FromStage(e model.StageEphemeris) Ephemeris {
	return Ephemeris{Period: e.Period, Epoch: e.Epoch, Duration: e.Duration}
}

// Window is the closed time interval [Start, End] in days.
type Window struct {
	Start float64
	End   float64
}

// Valid reports whether the window is finite and non-empty.
func (w Window) Valid() bool {
	return finite(w.Start) && finite(w.End) && w.End >= w.Start
}

// WindowFromEpochs spans all finite epochs, widened by before and after days.
func WindowFromEpochs(epochs []float64, before, after float64) (Window, error) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, e := range epochs {
		if !finite(e) {
			continue
		}
		lo = math.Min(lo, e)
		hi = math.Max(hi, e)
	}
	if math.IsInf(lo, 1) {
		return Window{}, eris.Wrap(model.ErrNoValidData, "ephem: build window from epochs")
	}
	return Window{Start: lo - before, End: hi + after}, nil
}

// Result describes the best candidate for one reference.
type Result struct {
	BestIndex   int
	Quality     model.MatchQuality
	Statistic   float64
	PeriodRatio float64
	RatioFlag   bool
	Numerator   int // p of the nearest p/q
	Denominator int // q of the nearest p/q
	Federated   bool
}

// Unmatched is the result returned when there is nothing to compare against.
func Unmatched() Result {
	return Result{BestIndex: -1, Quality: model.MatchUnavailable, Statistic: -1, PeriodRatio: -1}
}

// Federate scores every candidate against ref over w and grades the best one.
// The statistic is the summed overlap of duration-wide transit intervals,
// normalised so identical ephemerides score 1 and an alias at period ratio k
// scores 1/sqrt(k). Ties go to the smallest index.
func Federate(ref Reference, cands []Ephemeris, w Window, cfg Config) Result {
	if len(cands) == 0 {
		return Unmatched()
	}

	best, bestStat := 0, -1.0
	for i, c := range cands {
		s := Statistic(ref, c, w, cfg.MaxTransits)
		if s > bestStat {
			best, bestStat = i, s
		}
	}

	res := Result{BestIndex: best, Statistic: bestStat}
	res.PeriodRatio = ref.Period / cands[best].Period
	res.Numerator, res.Denominator = NearestFraction(res.PeriodRatio, cfg.MaxHarmonic)
	res.RatioFlag = !finite(res.PeriodRatio) || res.Denominator == 0 ||
		math.Abs(res.PeriodRatio-float64(res.Numerator)/float64(res.Denominator)) > cfg.RatioTolerance

	switch {
	case bestStat < cfg.MinStatistic:
		res.Quality = model.MatchNone
	case res.RatioFlag:
		res.Quality = model.MatchApproximate
	case res.Numerator != res.Denominator:
		res.Quality = model.MatchAliased
	case bestStat >= cfg.ExactStatistic:
		res.Quality = model.MatchExact
	default:
		res.Quality = model.MatchDirect
	}
	res.Federated = res.Quality == model.MatchExact || res.Quality == model.MatchDirect
	return res
}

// Statistic returns the overlap statistic in [0, 1] for a single candidate.
// Unusable ephemerides and enumerations past maxTransits score 0.
func Statistic(ref Reference, c Ephemeris, w Window, maxTransits int) float64 {
	if !w.Valid() || !usable(ref.Period, ref.Epoch) || !usable(c.Period, c.Epoch) ||
		!finite(c.Duration) || c.Duration <= 0 {
		return 0
	}
	d := c.Duration / 24

	rLo, rHi, ok := transitRange(ref.Period, ref.Epoch, w, maxTransits)
	if !ok {
		return 0
	}
	cLo, cHi, ok := transitRange(c.Period, c.Epoch, w, maxTransits)
	if !ok {
		return 0
	}
	nRef, nCand := rHi-rLo+1, cHi-cLo+1

	// Each reference transit can only touch candidate transits within d.
	span := int(math.Ceil(2*d/c.Period)) + 1
	if maxTransits > 0 && span > maxTransits {
		return 0
	}

	var sum float64
	for i := rLo; i <= rHi; i++ {
		t := ref.Epoch + float64(i)*ref.Period
		kLo := int(math.Ceil((t - d - c.Epoch) / c.Period))
		kHi := int(math.Floor((t + d - c.Epoch) / c.Period))
		kLo = max(kLo, cLo)
		kHi = min(kHi, cHi)
		for k := kLo; k <= kHi; k++ {
			u := c.Epoch + float64(k)*c.Period
			if ov := d - math.Abs(t-u); ov > 0 {
				sum += ov
			}
		}
	}

	s := sum / (d * math.Sqrt(float64(nRef)*float64(nCand)))
	return math.Max(0, math.Min(1, s))
}

// transitRange returns the first and last transit indices inside w.
func transitRange(period, epoch float64, w Window, maxTransits int) (lo, hi int, ok bool) {
	fLo := math.Ceil((w.Start - epoch) / period)
	fHi := math.Floor((w.End - epoch) / period)
	if fHi < fLo {
		return 0, 0, false
	}
	if maxTransits > 0 && fHi-fLo+1 > float64(maxTransits) {
		return 0, 0, false
	}
	return int(fLo), int(fHi), true
}

// NearestFraction finds p/q with 1 <= p, q <= maxHarmonic closest to ratio.
// Ties prefer the smaller denominator. It returns (0, 0) for an unusable ratio.
func NearestFraction(ratio float64, maxHarmonic int) (p, q int) {
	if !finite(ratio) || ratio <= 0 || maxHarmonic < 1 {
		return 0, 0
	}
	bestDiff := math.Inf(1)
	for den := 1; den <= maxHarmonic; den++ {
		for num := 1; num <= maxHarmonic; num++ {
			diff := math.Abs(ratio - float64(num)/float64(den))
			if diff < bestDiff {
				bestDiff, p, q = diff, num, den
			}
		}
	}
	return p, q
}

func usable(period, epoch float64) bool {
	return finite(period) && period > 0 && finite(epoch)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
