package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveEphemeris_Precedence(t *testing.T) {
	t.Parallel()

	dv := StageEphemeris{Valid: true, Period: 10, Epoch: 5, Duration: 3}
	trp := StageEphemeris{Valid: true, Period: 10.01, Epoch: 5.1, Duration: 2.5}
	pulse := StageEphemeris{Valid: true, Period: 10.02, Epoch: 5.2, Duration: 2}

	tests := []struct {
		name      string
		dvValid   bool
		trpValid  bool
		wantStage Stage
		want      StageEphemeris
	}{
		{"dv wins", true, true, StageDV, dv},
		{"dv only", true, false, StageDV, dv},
		{"trapezoid fallback", false, true, StageTrapezoid, trp},
		{"pulse fallback", false, false, StagePulse, pulse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Candidate{DV: dv, Trapezoid: trp, Pulse: pulse}
			c.DV.Valid = tt.dvValid
			c.Trapezoid.Valid = tt.trpValid

			c.ResolveEphemeris()

			assert.Equal(t, tt.wantStage, c.Stage)
			assert.Equal(t, tt.want.Period, c.Period)
			assert.Equal(t, tt.want.Epoch, c.Epoch)
			assert.Equal(t, tt.want.Duration, c.Duration)
			assert.False(t, c.Malformed)
		})
	}
}

func TestResolveEphemeris_KeepsStageValues(t *testing.T) {
	t.Parallel()

	c := Candidate{
		DV:        StageEphemeris{Valid: true, Period: 3, Epoch: 1, Duration: 2},
		Trapezoid: StageEphemeris{Valid: true, Period: 4, Epoch: 2, Duration: 3},
		Pulse:     StageEphemeris{Valid: true, Period: 5, Epoch: 3, Duration: 4},
	}
	c.ResolveEphemeris()

	assert.Equal(t, 4.0, c.Trapezoid.Period)
	assert.Equal(t, 5.0, c.Pulse.Period)
}

func TestResolveEphemeris_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		eph  StageEphemeris
	}{
		{"nan period", StageEphemeris{Valid: true, Period: math.NaN(), Epoch: 1, Duration: 2}},
		{"inf epoch", StageEphemeris{Valid: true, Period: 1, Epoch: math.Inf(1), Duration: 2}},
		{"zero period", StageEphemeris{Valid: true, Period: 0, Epoch: 1, Duration: 2}},
		{"negative duration", StageEphemeris{Valid: true, Period: 1, Epoch: 1, Duration: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Candidate{DV: tt.eph}
			c.ResolveEphemeris()
			assert.True(t, c.Malformed)
			assert.False(t, c.Ephemeris().Valid)
		})
	}
}

func TestKeyString(t *testing.T) {
	t.Parallel()

	k := Key{TIC: 12345, PlanetNum: 2}
	assert.Equal(t, "0000000000012345-02", k.String())
	assert.False(t, k.IsZero())
	assert.True(t, Key{}.IsZero())
}

func TestCatalogEntry_HasEphemeris(t *testing.T) {
	t.Parallel()

	assert.True(t, CatalogEntry{Period: 3, Epoch: 1}.HasEphemeris())
	assert.False(t, CatalogEntry{Period: math.NaN(), Epoch: 1}.HasEphemeris())
	assert.False(t, CatalogEntry{Period: 3, Epoch: math.NaN()}.HasEphemeris())
}

func TestNoMatch(t *testing.T) {
	t.Parallel()

	r := NoMatch(CatalogEntry{TIC: 7, ID: 101.01, Label: "PC"})
	assert.Equal(t, MatchUnavailable, r.Quality)
	assert.Equal(t, -1.0, r.Statistic)
	assert.Equal(t, -1.0, r.PeriodRatio)
	assert.False(t, r.Federated)
	assert.True(t, r.Match.IsZero())
	assert.Equal(t, "unavailable", r.Quality.String())
}
