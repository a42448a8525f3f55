package tier

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tess-exoclass/internal/config"
)

func clean() Evidence {
	return Evidence{
		CentOOTSig:   0.5,
		CentOOTErr:   0.1,
		CentTICSig:   0.5,
		CentTICErr:   0.1,
		SNR:          12,
		PlanetRadius: 2,
		Primary:      &Modshift{OddEvenSig: 0.2, Unique: true},
		Alternate:    &Modshift{OddEvenSig: 0.2, Unique: true},
		HasSweet:     true,
		SweetRatio:   1.2,
		HasPDC:       true,
		PDCNoise:     0.95,
	}
}

func TestDefaultThresholdsMatchLoadDefaults(t *testing.T) {
	t.Parallel()
	assert.Equal(t, config.Defaults().Tier, DefaultThresholds())
	require.NoError(t, ValidateThresholds(DefaultThresholds()))
}

func TestValidateThresholds(t *testing.T) {
	t.Parallel()

	c := DefaultThresholds()
	c.CentroidSigma = 0
	c.MaxPlanetRadius = -1
	err := ValidateThresholds(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "centroid_sigma")
	assert.Contains(t, err.Error(), "max_planet_radius")
}

func TestClassify_Clean(t *testing.T) {
	t.Parallel()

	res := New(DefaultThresholds()).Classify(clean())
	assert.True(t, res.Eligible)
	assert.Equal(t, 1, res.Tier)
	assert.True(t, res.Flags.Empty())
	assert.Equal(t, "Tier 1", res.Annotation())
}

func TestClassify_MissingAuxiliaryNeverDisqualifies(t *testing.T) {
	t.Parallel()

	ev := Evidence{SNR: 10, PlanetRadius: 3, CentOOTSig: math.NaN(), CentTICSig: math.NaN(),
		CentOOTErr: math.NaN(), CentTICErr: math.NaN()}
	res := New(DefaultThresholds()).Classify(ev)
	assert.Equal(t, 1, res.Tier)
}

func TestClassify_SingleFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Evidence)
		flag    Flag
		counted int
		tier    int
	}{
		{"centroid oot", func(e *Evidence) { e.CentOOTSig = 3.5 }, CenOOT, 0, 2},
		{"centroid oot negative error", func(e *Evidence) { e.CentOOTErr = -1 }, CenOOT, 0, 2},
		{"centroid tic", func(e *Evidence) { e.CentTICSig = 99 }, CenTIC, 0, 2},
		{"uniqueness primary", func(e *Evidence) { e.Primary.Unique = false }, UniqPri, 1, 2},
		{"uniqueness alternate", func(e *Evidence) { e.Alternate.Unique = false }, UniqAlt, 1, 2},
		{"secondary primary", func(e *Evidence) { e.Primary.Secondary = true }, HasSecPri, 1, 3},
		{"secondary alternate", func(e *Evidence) { e.Alternate.Secondary = true }, HasSecAlt, 1, 3},
		{"secondary primary overridden", func(e *Evidence) {
			e.Primary.Secondary, e.Primary.SecondaryOverride = true, true
		}, HasSecPriPlanet, 0, 2},
		{"secondary alternate overridden", func(e *Evidence) {
			e.Alternate.Secondary, e.Alternate.SecondaryOverride = true, true
		}, HasSecAltPlanet, 0, 2},
		{"odd even primary", func(e *Evidence) { e.Primary.OddEvenSig = 3 }, OEPri, 1, 2},
		{"odd even alternate", func(e *Evidence) { e.Alternate.OddEvenSig = 2.9 }, OEAlt, 1, 2},
		{"other tce", func(e *Evidence) { e.OtherTCEMatch = true }, OthTCEMtch, 1, 2},
		{"pdc noise", func(e *Evidence) { e.PDCNoise = 0.5 }, PDCNoise, 1, 2},
		{"big radius", func(e *Evidence) { e.PlanetRadius = 30 }, RpBig, 1, 2},
		{"momentum dump", func(e *Evidence) { e.HasMomentumDump, e.MomentumDumpFraction = true, 0.95 }, MoDump, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev := clean()
			tt.mutate(&ev)
			res := New(DefaultThresholds()).Classify(ev)

			assert.Equal(t, []Flag{tt.flag}, res.Flags.Flags())
			assert.Equal(t, tt.counted, res.Counted)
			assert.False(t, res.Eligible)
			assert.Equal(t, tt.tier, res.Tier)
		})
	}
}

func TestClassify_HighSNROddEven(t *testing.T) {
	t.Parallel()

	ev := clean()
	ev.Primary.OddEvenSig = 3.5
	ev.SNR = 31
	res := New(DefaultThresholds()).Classify(ev)
	assert.Equal(t, 1, res.Tier)

	ev.SNR = 30
	res = New(DefaultThresholds()).Classify(ev)
	assert.True(t, res.Flags.Has(OEPri))
}

func TestClassify_SweetOnlyIsOverridden(t *testing.T) {
	t.Parallel()

	ev := clean()
	ev.SweetRatio = 0.5
	res := New(DefaultThresholds()).Classify(ev)

	assert.True(t, res.Flags.Has(Sweet))
	assert.True(t, res.SweetOverridden)
	assert.False(t, res.SweetFailed)
	assert.True(t, res.Eligible)
	assert.Equal(t, 1, res.Tier)
}

func TestClassify_SweetWithCentroid(t *testing.T) {
	t.Parallel()

	ev := clean()
	ev.SweetRatio = 0.5
	ev.CentOOTSig = 4
	res := New(DefaultThresholds()).Classify(ev)

	assert.Equal(t, 1, res.Counted)
	assert.True(t, res.SweetOverridden)
	assert.False(t, res.Eligible)
	assert.Equal(t, 2, res.Tier)
}

func TestClassify_SweetWithOtherCountedFlag(t *testing.T) {
	t.Parallel()

	ev := clean()
	ev.SweetRatio = 0.5
	ev.PlanetRadius = 40
	res := New(DefaultThresholds()).Classify(ev)

	assert.Equal(t, 2, res.Counted)
	assert.False(t, res.SweetOverridden)
	assert.True(t, res.SweetFailed)
	assert.Equal(t, 3, res.Tier)
	assert.Equal(t, "Tier 3 false true", res.Annotation())
}

func TestClassify_Combined(t *testing.T) {
	t.Parallel()

	ev := clean()
	ev.CentTICErr = -0.5
	ev.Alternate.Unique = false
	ev.PDCNoise = 0.1
	res := New(DefaultThresholds()).Classify(ev)

	assert.Equal(t, []Flag{CenTIC, UniqAlt, PDCNoise}, res.Flags.Flags())
	assert.Equal(t, 2, res.Counted)
	assert.Equal(t, 2, res.Tier)
	assert.Equal(t, "010100000010000", res.Flags.Bits())
	assert.Equal(t, "CenTIC_UniqAlt_PDCNoise_", res.Flags.String())
	assert.Equal(t, "Tier 2 CenTIC_UniqAlt_PDCNoise_", res.Annotation())
}

func TestClassify_Deterministic(t *testing.T) {
	t.Parallel()

	ev := clean()
	ev.Primary.Secondary = true
	ev.OtherTCEMatch = true
	c := New(DefaultThresholds())
	first := c.Classify(ev)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify(ev))
	}
}

func TestFlagSet_ParseBits(t *testing.T) {
	t.Parallel()

	s := FlagSet(0).With(CenOOT).With(MoDump).With(HasSecAltPlanet)
	got, ok := ParseBits(s.Bits())
	require.True(t, ok)
	assert.Equal(t, s, got)

	_, ok = ParseBits("0101")
	assert.False(t, ok)
	_, ok = ParseBits("01010000001000x")
	assert.False(t, ok)
}

func TestFlag_String(t *testing.T) {
	t.Parallel()

	assert.Len(t, AllFlags(), 15)
	assert.Equal(t, "OthTCEMtch", OthTCEMtch.String())
	assert.Equal(t, "Unknown", Flag(40).String())
	assert.False(t, CenOOT.Counted())
	assert.True(t, Sweet.Counted())
	assert.False(t, HasSecPriPlanet.Counted())
}
