// Package model defines the shared record types of the TCE vetting pipeline.
package model

import (
	"fmt"
	"math"
)

// Key identifies one threshold crossing event: a target plus the index of
// the signal found on it.
type Key struct {
	TIC       uint64 `json:"tic"`
	PlanetNum int    `json:"planet_num"`
}

// String renders the key the way the output tables print it.
func (k Key) String() string {
	return fmt.Sprintf("%016d-%02d", k.TIC, k.PlanetNum)
}

// IsZero reports whether the key is unset (no match).
func (k Key) IsZero() bool {
	return k.TIC == 0 && k.PlanetNum == 0
}

// Stage names the fitting stage an ephemeris came from.
type Stage string

const (
	StageDV        Stage = "dv"        // primary all-transit fit
	StageTrapezoid Stage = "trapezoid" // trapezoid shape fit
	StagePulse     Stage = "pulse"     // least-squares pulse fit, always present
)

// StageEphemeris is the ephemeris reported by one fitting stage.
// Duration is in hours, Epoch in days relative to the run's reference epoch.
type StageEphemeris struct {
	Valid    bool    `json:"valid"`
	Period   float64 `json:"period"`
	Epoch    float64 `json:"epoch"`
	Duration float64 `json:"duration"`
}

// Finite reports whether period, epoch and duration are all usable.
func (e StageEphemeris) Finite() bool {
	return isFinite(e.Period) && isFinite(e.Epoch) && isFinite(e.Duration) && e.Period > 0
}

// Candidate is a single TCE with its ingested and derived attributes.
type Candidate struct {
	Key

	// Order is the position in the load order; used as the stable tie-break.
	Order int `json:"order"`

	DV        StageEphemeris `json:"dv"`
	Trapezoid StageEphemeris `json:"trapezoid"`
	Pulse     StageEphemeris `json:"pulse"`

	// Selected ephemeris after precedence resolution.
	Stage    Stage   `json:"stage"`
	Period   float64 `json:"period"`
	Epoch    float64 `json:"epoch"`
	Duration float64 `json:"duration"`

	PlanetRadius  float64 `json:"planet_radius"`
	StellarRadius float64 `json:"stellar_radius"`
	LogG          float64 `json:"logg"`
	Tmag          float64 `json:"tmag"`
	MES           float64 `json:"mes"`
	SNR           float64 `json:"snr"`
	Insolation    float64 `json:"insolation"`
	DVDepth       float64 `json:"dv_depth"`
	TrapDepth     float64 `json:"trap_depth"`
	MaxSESInMES   float64 `json:"max_ses_in_mes"`

	CentOOTOffset    float64 `json:"cent_oot_offset"`
	CentOOTOffsetErr float64 `json:"cent_oot_offset_err"`
	CentTICOffset    float64 `json:"cent_tic_offset"`
	CentTICOffsetErr float64 `json:"cent_tic_offset_err"`
	OddEvenSig       float64 `json:"oe_signif"`

	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`

	Derived Derived `json:"derived"`

	// Malformed is set when the selected ephemeris is not usable.
	Malformed bool `json:"malformed"`
}

// Derived holds quantities computed once at load time.
type Derived struct {
	ExpectedDuration float64 `json:"expected_duration"`
	DurationRatio    float64 `json:"duration_ratio"`
	SNRRatio         float64 `json:"snr_ratio"`
	DepthDiff        float64 `json:"depth_diff"`
	CentOOTSig       float64 `json:"cent_oot_sig"`
	CentTICSig       float64 `json:"cent_tic_sig"`
}

// ResolveEphemeris applies the stage precedence DV > trapezoid > pulse.
// The whole triple is taken from one stage, never mixed.
func (c *Candidate) ResolveEphemeris() {
	var sel StageEphemeris
	switch {
	case c.DV.Valid:
		c.Stage, sel = StageDV, c.DV
	case c.Trapezoid.Valid:
		c.Stage, sel = StageTrapezoid, c.Trapezoid
	default:
		c.Stage, sel = StagePulse, c.Pulse
	}
	c.Period = sel.Period
	c.Epoch = sel.Epoch
	c.Duration = sel.Duration
	c.Malformed = !sel.Finite() || sel.Duration <= 0
}

// Ephemeris returns the selected triple.
func (c *Candidate) Ephemeris() StageEphemeris {
	return StageEphemeris{Valid: !c.Malformed, Period: c.Period, Epoch: c.Epoch, Duration: c.Duration}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
