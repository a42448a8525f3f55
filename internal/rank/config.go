// Package rank computes the composite ranking score and the expected transit
// duration used by it.
package rank

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tess-exoclass/internal/config"
)

// DefaultConfig returns a config.RankConfig with the production ramps.
func DefaultConfig() config.RankConfig {
	return config.RankConfig{
		PlanetRadius:  config.RampConfig{Best: 2, Worst: 6},
		MES:           config.RampConfig{Best: 12, Worst: 9},
		Tmag:          config.RampConfig{Best: 9, Worst: 12},
		DurationRatio: config.RampConfig{Best: 0.1, Worst: 1.5},
		Insolation:    config.RampConfig{Best: 1.5, Worst: 4},
		SNRRatio:      config.RampConfig{Best: 0.9, Worst: 1.1},
		DepthDiff:     config.RampConfig{Best: 0.1, Worst: 0.3},
		Floor:         0.1,
	}
}

// ValidateConfig checks that every ramp is usable.
func ValidateConfig(c config.RankConfig) error {
	var errs []string

	for _, r := range components(c) {
		if r.ramp.Best == r.ramp.Worst {
			errs = append(errs, fmt.Sprintf("%s: best and worst must differ", r.name))
		}
	}
	if c.Floor <= 0 || c.Floor >= 1 {
		errs = append(errs, "floor must be between 0 and 1 (exclusive)")
	}

	if len(errs) > 0 {
		return eris.Errorf("rank: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

type component struct {
	name string
	ramp config.RampConfig
}

func components(c config.RankConfig) []component {
	return []component{
		{"planet_radius", c.PlanetRadius},
		{"mes", c.MES},
		{"tmag", c.Tmag},
		{"duration_ratio", c.DurationRatio},
		{"insolation", c.Insolation},
		{"snr_ratio", c.SNRRatio},
		{"depth_diff", c.DepthDiff},
	}
}
