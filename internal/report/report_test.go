package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/tess-exoclass/internal/model"
	"github.com/sells-group/tess-exoclass/internal/tier"
	"github.com/sells-group/tess-exoclass/internal/vetting"
)

func sampleRows() []Row {
	return []Row{
		{Key: model.Key{TIC: 261136679, PlanetNum: 1}, Rank: 0, Score: 0.95, MatchFlag: 1, Result: tier.Result{Tier: 1, Eligible: true}},
		{Key: model.Key{TIC: 12, PlanetNum: 2}, Rank: 1, Score: 0.5, MatchFlag: 0,
			Result: tier.Result{Tier: 2, Flags: tier.FlagSet(0).With(tier.CenOOT).With(tier.RpBig)}},
		{Key: model.Key{TIC: 13, PlanetNum: 1}, Rank: 2, Score: 0.25, MatchFlag: 4,
			Result: tier.Result{Tier: 3, HasSecondary: true, Flags: tier.FlagSet(0).With(tier.HasSecPri)}},
	}
}

func TestTierFileName(t *testing.T) {
	assert.Equal(t, "spoc_ranking_Tier1_s0001.txt", TierFileName("spoc_ranking", "s0001", 1, 0, 1))
	assert.Equal(t, "spoc_ranking_Tier3_s0001_w2of4.txt", TierFileName("spoc_ranking", "s0001", 3, 2, 4))

	assert.Equal(t, "", ShardSuffix(0, 1))
	assert.Equal(t, "_w0of2", ShardSuffix(0, 2))
}

func TestFormatTierLine(t *testing.T) {
	rows := sampleRows()
	assert.Equal(t, "0000000261136679 1 0.950000 1", FormatTierLine(rows[0]))
	assert.Equal(t, "0000000000000012 2 0.500000 0 100000000001000 CenOOT_RpBig_", FormatTierLine(rows[1]))
	assert.Equal(t, "0000000000000013 1 0.250000 4 true false", FormatTierLine(rows[2]))
}

func TestWriteTiers(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteTiers(dir, "spoc_ranking", "s0001", 0, 1, sampleRows())
	require.NoError(t, err)
	require.Len(t, paths, 3)

	for i, p := range paths {
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, FormatTierLine(sampleRows()[i])+"\n", string(b))
	}

	paths, err = WriteTiers(dir, "spoc_ranking", "s0001", 1, 2, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(paths[0], "_w1of2.txt"))
	b, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestWriteTiers_InvalidTier(t *testing.T) {
	_, err := WriteTiers(t.TempDir(), "p", "r", 0, 1, []Row{{Key: model.Key{TIC: 1, PlanetNum: 1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tier 0")
}

func TestWriteFederation_ReadBack(t *testing.T) {
	rows := []model.FederationResult{
		{CatalogTIC: 261136679, CatalogID: 123.01, Label: "PC", Match: model.Key{TIC: 261136679, PlanetNum: 1},
			Quality: model.MatchExact, Statistic: 0.95, PeriodRatio: 1, Federated: true},
		{CatalogTIC: 5, CatalogID: 9.01, Label: "KP", Quality: model.MatchUnavailable, Statistic: -1, PeriodRatio: -1},
		{CatalogID: 3, Match: model.Key{TIC: 77, PlanetNum: 2}, Quality: model.MatchAliased,
			Statistic: 0.7, RatioFlag: false, PeriodRatio: 2},
	}
	var buf bytes.Buffer
	n, err := WriteFederation(&buf, "toi.csv", "tces.csv", rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, strings.HasPrefix(buf.String(), "# Match toi.csv\n# To tces.csv\n"))

	got, err := vetting.LoadFederation(context.Background(), &buf, "fed.txt")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rows[0].Match, got[0].Match)
	assert.True(t, got[0].Federated)
	assert.Equal(t, "-", got[1].Label)
	assert.Equal(t, model.MatchAliased, got[1].Quality)
	assert.InDelta(t, 2.0, got[1].PeriodRatio, 1e-9)
}

func TestWriteSelfMatch_ReadBack(t *testing.T) {
	rows := []vetting.SelfMatch{{
		Key: model.Key{TIC: 10, PlanetNum: 1}, Other: model.Key{TIC: 20, PlanetNum: 1},
		Quality: model.MatchExact, Statistic: 1, PeriodRatio: 1, Federated: true,
		Separation: 1.414, NFederated: 1,
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteSelfMatch(&buf, "tces.csv", rows))

	got, err := vetting.LoadSelfMatch(context.Background(), &buf, "self.txt")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rows[0].Other, got[0].Other)
	assert.True(t, got[0].Matched(3.3))
}

func TestWriteWorkbook(t *testing.T) {
	var rows []model.TierRow
	for _, r := range sampleRows() {
		rows = append(rows, r.TierRow("run-1"))
	}
	path := filepath.Join(t.TempDir(), "tiers.xlsx")
	require.NoError(t, WriteWorkbook(path, rows))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 4)
	assert.Len(t, f.Sheet["all"].Rows, 4)
	assert.Len(t, f.Sheet["tier2"].Rows, 2)
	assert.Equal(t, "CenOOT_RpBig_", f.Sheet["tier2"].Rows[1].Cells[7].String())
}

func TestSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.yaml")
	s := Summary{
		Run:        "s0001",
		Command:    "rank",
		StartedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		FinishedAt: time.Date(2026, 1, 2, 3, 5, 5, 0, time.UTC),
		Counts:     map[string]int{"loaded": 10, "tier1": 3},
		Outputs:    []string{"a.txt"},
	}
	require.NoError(t, WriteSummary(path, s))

	got, err := ReadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = ReadSummary(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
