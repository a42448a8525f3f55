package rank

import (
	"math"
	"sort"

	"github.com/sells-group/tess-exoclass/internal/config"
	"github.com/sells-group/tess-exoclass/internal/model"
)

// Ramp maps x linearly from worst (floor) to best (1), clamped to
// [floor, 1]. A non-finite x maps to floor.
func Ramp(x float64, r config.RampConfig, floor float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || r.Best == r.Worst {
		return floor
	}
	v := floor + (1-floor)*(x-r.Worst)/(r.Best-r.Worst)
	return math.Max(floor, math.Min(1, v))
}

// Breakdown holds the ramp value of each score component.
type Breakdown struct {
	PlanetRadius  float64 `json:"planet_radius"`
	MES           float64 `json:"mes"`
	Tmag          float64 `json:"tmag"`
	DurationRatio float64 `json:"duration_ratio"`
	Insolation    float64 `json:"insolation"`
	SNRRatio      float64 `json:"snr_ratio"`
	DepthDiff     float64 `json:"depth_diff"`
}

// Components evaluates every ramp for a candidate.
func Components(c *model.Candidate, cfg config.RankConfig) Breakdown {
	return Breakdown{
		PlanetRadius:  Ramp(c.PlanetRadius, cfg.PlanetRadius, cfg.Floor),
		MES:           Ramp(c.MES, cfg.MES, cfg.Floor),
		Tmag:          Ramp(c.Tmag, cfg.Tmag, cfg.Floor),
		DurationRatio: Ramp(c.Derived.DurationRatio, cfg.DurationRatio, cfg.Floor),
		Insolation:    Ramp(c.Insolation, cfg.Insolation, cfg.Floor),
		SNRRatio:      Ramp(c.Derived.SNRRatio, cfg.SNRRatio, cfg.Floor),
		DepthDiff:     Ramp(c.Derived.DepthDiff, cfg.DepthDiff, cfg.Floor),
	}
}

// Score is the mean log10 ramp value plus one. A candidate at every best
// point scores 1; one at every worst point scores 1 + log10(floor).
func Score(c *model.Candidate, cfg config.RankConfig) float64 {
	b := Components(c, cfg)
	terms := [...]float64{b.PlanetRadius, b.MES, b.Tmag, b.DurationRatio, b.Insolation, b.SNRRatio, b.DepthDiff}
	var sum float64
	for _, v := range terms {
		sum += math.Log10(v)
	}
	return sum/float64(len(terms)) + 1
}

// Scored pairs a store index with its score.
type Scored struct {
	Index int
	Score float64
}

// Sort orders scored entries by descending score. Equal scores keep their
// incoming order.
func Sort(s []Scored) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Score > s[j].Score })
}

// ExpectedDuration is the central transit duration in hours of a planet with
// period days around a star of rstar solar radii and log g. Eccentricity is
// clamped to 0.99.
func ExpectedDuration(rstar, logg, period, ecc float64) float64 {
	const (
		sunLogG  = 4.437
		rsunCM   = 6.9598e10
		auCM     = 1.49598e13
		yearDays = 365.25
	)
	ecc = math.Min(math.Abs(ecc), 0.99)
	mstar := math.Pow(10, logg) * rstar * rstar / math.Pow(10, sunLogG)
	a := math.Cbrt(mstar) * math.Pow(period/yearDays, 2.0/3.0)
	return (period * 24 / 4) * (rstar * rsunCM) / (a * auCM) * math.Sqrt(1-ecc*ecc)
}
