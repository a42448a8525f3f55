package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Run.FirstValidSector)
	assert.Equal(t, 8, cfg.Run.Concurrency)
	assert.InDelta(t, 3.0, cfg.Tier.CentroidSigma, 0.001)
	assert.InDelta(t, 2.8, cfg.Tier.OddEvenSigma, 0.001)
	assert.InDelta(t, 4.0, cfg.Tier.OddEvenHighSNRSigma, 0.001)
	assert.InDelta(t, 30, cfg.Tier.HighSNR, 0.001)
	assert.InDelta(t, 0.8, cfg.Tier.MinSweetRatio, 0.001)
	assert.InDelta(t, 0.8, cfg.Tier.MinPDCNoise, 0.001)
	assert.InDelta(t, 25, cfg.Tier.MaxPlanetRadius, 0.001)
	assert.InDelta(t, 0.9, cfg.Tier.MaxMomentumDumpFraction, 0.001)
	assert.InDelta(t, 3.3, cfg.Tier.SelfMatchSeparation, 0.001)
	assert.Equal(t, RampConfig{Best: 2, Worst: 6}, cfg.Rank.PlanetRadius)
	assert.Equal(t, RampConfig{Best: 12, Worst: 9}, cfg.Rank.MES)
	assert.Equal(t, RampConfig{Best: 0.9, Worst: 1.1}, cfg.Rank.SNRRatio)
	assert.Equal(t, 5, cfg.Federation.MaxHarmonic)
	assert.Equal(t, 200000, cfg.Federation.MaxTransits)
	assert.InDelta(t, 13, cfg.Federation.WindowAfterDays, 0.001)
	assert.InDelta(t, 180, cfg.Federation.SearchRadiusArcsec, 0.001)
	assert.Equal(t, "mast", cfg.Federation.ConeSource)
	assert.InDelta(t, 30, cfg.Spatial.SearchRadiusArcsec, 0.001)
	assert.Equal(t, "https://mast.stsci.edu/api/v0/invoke", cfg.MAST.BaseURL)
	assert.Equal(t, 5, cfg.MAST.PollIntervalSecs)
	assert.Equal(t, 30, cfg.MAST.HeartbeatSecs)
	assert.Equal(t, 1800, cfg.MAST.PollDeadlineSecs)
	assert.Equal(t, "spoc_ranking", cfg.Files.TierPrefix)
}

func TestDefaultsMatchLoad(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
run:
  name: s0014-s0026
  start_sector: 14
  end_sector: 26
store:
  driver: postgres
log:
  level: debug
  format: console
tier:
  centroid_sigma: 3.5
rank:
  tmag:
    best: 8
    worst: 13
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "s0014-s0026", cfg.Run.Name)
	assert.Equal(t, 14, cfg.Run.StartSector)
	assert.Equal(t, 26, cfg.Run.EndSector)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 3.5, cfg.Tier.CentroidSigma, 0.001)
	assert.Equal(t, RampConfig{Best: 8, Worst: 13}, cfg.Rank.Tmag)
	// Defaults still apply for unset values
	assert.InDelta(t, 2.8, cfg.Tier.OddEvenSigma, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("TEC_STORE_DRIVER", "postgres")
	t.Setenv("TEC_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("TEC_SERVER_PORT", "3000")
	t.Setenv("TEC_TIER_MAX_PLANET_RADIUS", "20")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 20, cfg.Tier.MaxPlanetRadius, 0.001)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("run: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestFilesResolve(t *testing.T) {
	f := Defaults().Files
	assert.Equal(t, "spoc_sweet_s0001.txt", f.Resolve(f.Sweet, "s0001"))
	assert.Equal(t, "s0001_tces*.csv", f.Resolve(f.Candidates, "s0001"))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := Defaults()
	cfg.Run.Name = "s0001"
	return cfg
}

func TestValidateRank_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("rank"))
}

func TestValidateRank_MissingName(t *testing.T) {
	cfg := validDefaults()
	cfg.Run.Name = ""

	err := cfg.Validate("rank")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "run.name is required")
}

func TestValidateRank_SectorOrder(t *testing.T) {
	cfg := validDefaults()
	cfg.Run.StartSector = 10
	cfg.Run.EndSector = 2

	err := cfg.Validate("rank")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "run.end_sector")
}

func TestValidateRank_ConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Run.Concurrency = 0
	err := cfg.Validate("rank")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "run.concurrency must be between 1 and 256")

	cfg.Run.Concurrency = 256
	assert.NoError(t, cfg.Validate("rank"))
}

func TestValidateRank_DegenerateRamp(t *testing.T) {
	cfg := validDefaults()
	cfg.Rank.MES = RampConfig{Best: 9, Worst: 9}

	err := cfg.Validate("rank")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rank.mes best and worst must differ")
}

func TestValidateRank_Tier(t *testing.T) {
	cfg := validDefaults()
	cfg.Tier.MaxMomentumDumpFraction = 1.5
	cfg.Tier.CentroidSigma = 0

	err := cfg.Validate("rank")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tier.max_momentum_dump_fraction")
	assert.Contains(t, err.Error(), "tier.centroid_sigma")
}

func TestValidateFederate(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("federate"))

	cfg.Federation.ConeSource = "table"
	err := cfg.Validate("federate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "federation.position_table")

	cfg.Federation.PositionTable = "tic_positions.csv"
	assert.NoError(t, cfg.Validate("federate"))

	cfg.Federation.ConeSource = "gaia"
	err = cfg.Validate("federate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cone_source")

	cfg.Federation.ConeSource = "none"
	cfg.Federation.ExactStatistic = 0.1
	err = cfg.Validate("federate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exact_statistic")
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be between 1 and 65535")
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
