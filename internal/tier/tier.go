// Package tier aggregates the per-candidate vetting tests into a disposition
// tier with an audit trail of the tests that failed.
package tier

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tess-exoclass/internal/config"
)

// DefaultThresholds returns the classifier thresholds used in production.
func DefaultThresholds() config.TierConfig {
	return config.TierConfig{
		CentroidSigma:           3.0,
		OddEvenSigma:            2.8,
		OddEvenHighSNRSigma:     4.0,
		HighSNR:                 30,
		MinSweetRatio:           0.8,
		MinPDCNoise:             0.8,
		MaxPlanetRadius:         25,
		MaxMomentumDumpFraction: 0.9,
		SelfMatchSeparation:     3.3,
	}
}

// ValidateThresholds rejects thresholds that would make a test meaningless.
func ValidateThresholds(c config.TierConfig) error {
	var errs []string
	if c.CentroidSigma <= 0 {
		errs = append(errs, "centroid_sigma must be > 0")
	}
	if c.OddEvenSigma <= 0 || c.OddEvenHighSNRSigma <= 0 {
		errs = append(errs, "odd_even thresholds must be > 0")
	}
	if c.MaxPlanetRadius <= 0 {
		errs = append(errs, "max_planet_radius must be > 0")
	}
	if len(errs) > 0 {
		return eris.Errorf("tier: threshold validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Modshift is one row of a model-shift test result.
type Modshift struct {
	OddEvenSig        float64 // odd/even depth difference in sigma
	Unique            bool    // the primary event stands out from the noise
	Secondary         bool    // a significant secondary eclipse was found
	SecondaryOverride bool    // the secondary is consistent with a planet
}

// Evidence gathers everything the classifier looks at for one candidate.
// A nil pointer or false Has* field means the auxiliary row was missing,
// which never disqualifies.
type Evidence struct {
	// Centroid offset significances and their errors, out-of-transit and
	// against the catalog position. A negative error marks a failed fit.
	CentOOTSig float64
	CentOOTErr float64
	CentTICSig float64
	CentTICErr float64

	SNR          float64 // picks the odd/even threshold
	PlanetRadius float64 // Earth radii

	Primary   *Modshift
	Alternate *Modshift

	HasSweet   bool
	SweetRatio float64

	OtherTCEMatch bool

	HasPDC   bool
	PDCNoise float64

	HasMomentumDump      bool
	MomentumDumpFraction float64
}

// Result is the classification of one candidate.
type Result struct {
	Flags           FlagSet `json:"flags"`
	Counted         int     `json:"counted"`
	HasSecondary    bool    `json:"has_secondary"`
	SweetFailed     bool    `json:"sweet_failed"`
	SweetOverridden bool    `json:"sweet_overridden"`
	Eligible        bool    `json:"eligible"`
	Tier            int     `json:"tier"`
}

// Annotation is the short label stamped on reports.
func (r Result) Annotation() string {
	switch r.Tier {
	case 1:
		return "Tier 1"
	case 2:
		return "Tier 2 " + r.Flags.String()
	default:
		return fmt.Sprintf("Tier 3 %t %t", r.HasSecondary, r.SweetFailed)
	}
}

// Classifier applies a fixed set of thresholds.
type Classifier struct {
	cfg config.TierConfig
}

// New creates a Classifier.
func New(cfg config.TierConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify runs every test; none short-circuits, so the flag set is the full
// audit trail.
func (c *Classifier) Classify(ev Evidence) Result {
	var (
		flags  FlagSet
		hasSec bool
	)

	if ev.CentOOTSig > c.cfg.CentroidSigma || ev.CentOOTErr < 0 {
		flags = flags.With(CenOOT)
	}
	if ev.CentTICSig > c.cfg.CentroidSigma || ev.CentTICErr < 0 {
		flags = flags.With(CenTIC)
	}
	if ev.Primary != nil && !ev.Primary.Unique {
		flags = flags.With(UniqPri)
	}
	if ev.Alternate != nil && !ev.Alternate.Unique {
		flags = flags.With(UniqAlt)
	}
	if ms := ev.Primary; ms != nil && ms.Secondary {
		if ms.SecondaryOverride {
			flags = flags.With(HasSecPriPlanet)
		} else {
			flags = flags.With(HasSecPri)
			hasSec = true
		}
	}
	if ms := ev.Alternate; ms != nil && ms.Secondary {
		if ms.SecondaryOverride {
			flags = flags.With(HasSecAltPlanet)
		} else {
			flags = flags.With(HasSecAlt)
			hasSec = true
		}
	}

	oeThresh := c.cfg.OddEvenSigma
	if ev.SNR > c.cfg.HighSNR {
		oeThresh = c.cfg.OddEvenHighSNRSigma
	}
	if ev.Primary != nil && ev.Primary.OddEvenSig > oeThresh {
		flags = flags.With(OEPri)
	}
	if ev.Alternate != nil && ev.Alternate.OddEvenSig > oeThresh {
		flags = flags.With(OEAlt)
	}

	if ev.HasSweet && ev.SweetRatio < c.cfg.MinSweetRatio {
		flags = flags.With(Sweet)
	}
	if ev.OtherTCEMatch {
		flags = flags.With(OthTCEMtch)
	}
	if ev.HasPDC && ev.PDCNoise < c.cfg.MinPDCNoise {
		flags = flags.With(PDCNoise)
	}
	if ev.PlanetRadius > c.cfg.MaxPlanetRadius {
		flags = flags.With(RpBig)
	}
	if ev.HasMomentumDump && ev.MomentumDumpFraction > c.cfg.MaxMomentumDumpFraction {
		flags = flags.With(MoDump)
	}

	res := Result{
		Flags:        flags,
		Counted:      flags.Counted(),
		HasSecondary: hasSec,
		SweetFailed:  flags.Has(Sweet),
	}

	// A sweet failure that is the only counted failure is waived; the flag
	// stays in the audit trail.
	disqualifying := flags
	if res.SweetFailed && res.Counted == 1 {
		res.SweetFailed = false
		res.SweetOverridden = true
		disqualifying = disqualifying.Without(Sweet)
	}
	res.Eligible = disqualifying.Empty()

	switch {
	case res.Eligible:
		res.Tier = 1
	case !res.HasSecondary && !res.SweetFailed:
		res.Tier = 2
	default:
		res.Tier = 3
	}
	return res
}
