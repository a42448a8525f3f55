package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Run        RunConfig        `yaml:"run" mapstructure:"run"`
	Files      FilesConfig      `yaml:"files" mapstructure:"files"`
	Tier       TierConfig       `yaml:"tier" mapstructure:"tier"`
	Rank       RankConfig       `yaml:"rank" mapstructure:"rank"`
	Federation FederationConfig `yaml:"federation" mapstructure:"federation"`
	Spatial    SpatialConfig    `yaml:"spatial" mapstructure:"spatial"`
	SelfMatch  SelfMatchConfig  `yaml:"selfmatch" mapstructure:"selfmatch"`
	MAST       MASTConfig       `yaml:"mast" mapstructure:"mast"`
	Archive    ArchiveConfig    `yaml:"archive" mapstructure:"archive"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// RunConfig identifies a pipeline run and its sector range.
type RunConfig struct {
	Name             string `yaml:"name" mapstructure:"name"`             // substituted for {run} in file patterns
	Dir              string `yaml:"dir" mapstructure:"dir"`               // input tables; federation outputs land here too
	OutputDir        string `yaml:"output_dir" mapstructure:"output_dir"` // tier files, workbook and summaries
	StartSector      int    `yaml:"start_sector" mapstructure:"start_sector"`
	EndSector        int    `yaml:"end_sector" mapstructure:"end_sector"`
	FirstValidSector int    `yaml:"first_valid_sector" mapstructure:"first_valid_sector"` // earlier PDC sectors are ignored
	Concurrency      int    `yaml:"concurrency" mapstructure:"concurrency"`               // classifier goroutines per shard
	Workbook         bool   `yaml:"workbook" mapstructure:"workbook"`
}

// FilesConfig holds the file name patterns of a run directory. "{run}" is
// replaced by the run name; glob metacharacters are allowed. A pattern must
// match exactly one file. Only Candidates and FluxTriage are required; an
// empty optional pattern skips its table.
type FilesConfig struct {
	Candidates string `yaml:"candidates" mapstructure:"candidates"`
	// FluxTriage gates ranking: a candidate without a row here counts as a
	// failed flux triage and is dropped before scoring, unlike the other
	// tables whose missing rows never disqualify.
	FluxTriage       string `yaml:"flux_triage" mapstructure:"flux_triage"`
	ModshiftPrimary  string `yaml:"modshift_primary" mapstructure:"modshift_primary"`
	ModshiftAlt      string `yaml:"modshift_alt" mapstructure:"modshift_alt"`
	Sweet            string `yaml:"sweet" mapstructure:"sweet"`
	SelfMatch        string `yaml:"selfmatch" mapstructure:"selfmatch"`
	TOIFederation    string `yaml:"toi_federation" mapstructure:"toi_federation"`
	KnownFederation  string `yaml:"known_federation" mapstructure:"known_federation"`
	MomentumDump     string `yaml:"momentum_dump" mapstructure:"momentum_dump"`
	PDCMetrics       string `yaml:"pdc_metrics" mapstructure:"pdc_metrics"`
	SpatialFederated string `yaml:"spatial_federation" mapstructure:"spatial_federation"`
	TierPrefix       string `yaml:"tier_prefix" mapstructure:"tier_prefix"` // tier file names start with this
}

// Resolve substitutes the run name into a pattern.
func (f FilesConfig) Resolve(pattern, run string) string {
	return strings.ReplaceAll(pattern, "{run}", run)
}

// TierConfig holds the tier classifier thresholds.
type TierConfig struct {
	CentroidSigma           float64 `yaml:"centroid_sigma" mapstructure:"centroid_sigma"`
	OddEvenSigma            float64 `yaml:"odd_even_sigma" mapstructure:"odd_even_sigma"`
	OddEvenHighSNRSigma     float64 `yaml:"odd_even_high_snr_sigma" mapstructure:"odd_even_high_snr_sigma"`
	HighSNR                 float64 `yaml:"high_snr" mapstructure:"high_snr"`
	MinSweetRatio           float64 `yaml:"min_sweet_ratio" mapstructure:"min_sweet_ratio"`
	MinPDCNoise             float64 `yaml:"min_pdc_noise" mapstructure:"min_pdc_noise"`
	MaxPlanetRadius         float64 `yaml:"max_planet_radius" mapstructure:"max_planet_radius"`
	MaxMomentumDumpFraction float64 `yaml:"max_momentum_dump_fraction" mapstructure:"max_momentum_dump_fraction"`
	SelfMatchSeparation     float64 `yaml:"selfmatch_separation" mapstructure:"selfmatch_separation"`
}

// RampConfig is one linear ranking ramp. Best may be above or below Worst.
type RampConfig struct {
	Best  float64 `yaml:"best" mapstructure:"best"`
	Worst float64 `yaml:"worst" mapstructure:"worst"`
}

// RankConfig holds the composite ranking ramps.
type RankConfig struct {
	PlanetRadius  RampConfig `yaml:"planet_radius" mapstructure:"planet_radius"`
	MES           RampConfig `yaml:"mes" mapstructure:"mes"`
	Tmag          RampConfig `yaml:"tmag" mapstructure:"tmag"`
	DurationRatio RampConfig `yaml:"duration_ratio" mapstructure:"duration_ratio"`
	Insolation    RampConfig `yaml:"insolation" mapstructure:"insolation"`
	SNRRatio      RampConfig `yaml:"snr_ratio" mapstructure:"snr_ratio"`
	DepthDiff     RampConfig `yaml:"depth_diff" mapstructure:"depth_diff"`
	Floor         float64    `yaml:"floor" mapstructure:"floor"`
}

// FederationConfig configures the ephemeris matcher and catalog runs.
type FederationConfig struct {
	MinStatistic       float64 `yaml:"min_statistic" mapstructure:"min_statistic"`
	ExactStatistic     float64 `yaml:"exact_statistic" mapstructure:"exact_statistic"`
	RatioTolerance     float64 `yaml:"ratio_tolerance" mapstructure:"ratio_tolerance"`
	MaxHarmonic        int     `yaml:"max_harmonic" mapstructure:"max_harmonic"`
	MaxTransits        int     `yaml:"max_transits" mapstructure:"max_transits"`
	WindowBeforeDays   float64 `yaml:"window_before_days" mapstructure:"window_before_days"`
	WindowAfterDays    float64 `yaml:"window_after_days" mapstructure:"window_after_days"`
	EpochOffset        float64 `yaml:"epoch_offset" mapstructure:"epoch_offset"`
	SearchRadiusArcsec float64 `yaml:"search_radius_arcsec" mapstructure:"search_radius_arcsec"`
	// ConeSource selects how neighbouring targets are found: "mast",
	// "table" (local TIC position file) or "none" (same target only).
	ConeSource    string `yaml:"cone_source" mapstructure:"cone_source"`
	PositionTable string `yaml:"position_table" mapstructure:"position_table"`
	Concurrency   int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// SpatialConfig configures the spatial period matcher.
type SpatialConfig struct {
	SearchRadiusArcsec float64 `yaml:"search_radius_arcsec" mapstructure:"search_radius_arcsec"`
}

// SelfMatchConfig configures TCE-against-TCE federation.
type SelfMatchConfig struct {
	SearchRadiusArcsec float64 `yaml:"search_radius_arcsec" mapstructure:"search_radius_arcsec"`
	PixelScaleArcsec   float64 `yaml:"pixel_scale_arcsec" mapstructure:"pixel_scale_arcsec"`
}

// MASTConfig configures the MAST catalog client.
type MASTConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	PollIntervalSecs int     `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	HeartbeatSecs    int     `yaml:"heartbeat_secs" mapstructure:"heartbeat_secs"`
	PollDeadlineSecs int     `yaml:"poll_deadline_secs" mapstructure:"poll_deadline_secs"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	MaxTmag          float64 `yaml:"max_tmag" mapstructure:"max_tmag"`
}

// ArchiveConfig configures the NASA Exoplanet Archive TAP client.
type ArchiveConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// TransitingFilter selects planets for ephemeris federation.
	TransitingFilter string `yaml:"transiting_filter" mapstructure:"transiting_filter"`
	// NonTransitingFilter selects planets for spatial period matching.
	NonTransitingFilter string  `yaml:"nontransiting_filter" mapstructure:"nontransiting_filter"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit           float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxAttempts         int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the results API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Defaults returns the configuration with no file or environment applied.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		zap.L().Error("config: unmarshal defaults", zap.Error(err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "tec.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("run.dir", ".")
	v.SetDefault("run.output_dir", ".")
	v.SetDefault("run.start_sector", 1)
	v.SetDefault("run.end_sector", 1)
	v.SetDefault("run.first_valid_sector", 4)
	v.SetDefault("run.concurrency", 8)

	v.SetDefault("files.candidates", "{run}_tces*.csv")
	v.SetDefault("files.flux_triage", "spoc_fluxtriage_{run}.txt")
	v.SetDefault("files.modshift_primary", "spoc_modshift_{run}.txt")
	v.SetDefault("files.modshift_alt", "spoc_modshift_med_{run}.txt")
	v.SetDefault("files.sweet", "spoc_sweet_{run}.txt")
	v.SetDefault("files.selfmatch", "selfMatch_{run}.txt")
	v.SetDefault("files.toi_federation", "federate_toiWtce_{run}.txt")
	v.SetDefault("files.known_federation", "federate_knownP_{run}.txt")
	v.SetDefault("files.momentum_dump", "spoc_modump_{run}.txt")
	v.SetDefault("files.pdc_metrics", "spoc_pdcstats_{run}.txt")
	v.SetDefault("files.spatial_federation", "spatialmatch_otherP_{run}.txt")
	v.SetDefault("files.tier_prefix", "spoc_ranking")

	v.SetDefault("tier.centroid_sigma", 3.0)
	v.SetDefault("tier.odd_even_sigma", 2.8)
	v.SetDefault("tier.odd_even_high_snr_sigma", 4.0)
	v.SetDefault("tier.high_snr", 30.0)
	v.SetDefault("tier.min_sweet_ratio", 0.8)
	v.SetDefault("tier.min_pdc_noise", 0.8)
	v.SetDefault("tier.max_planet_radius", 25.0)
	v.SetDefault("tier.max_momentum_dump_fraction", 0.9)
	v.SetDefault("tier.selfmatch_separation", 3.3)

	v.SetDefault("rank.planet_radius.best", 2.0)
	v.SetDefault("rank.planet_radius.worst", 6.0)
	v.SetDefault("rank.mes.best", 12.0)
	v.SetDefault("rank.mes.worst", 9.0)
	v.SetDefault("rank.tmag.best", 9.0)
	v.SetDefault("rank.tmag.worst", 12.0)
	v.SetDefault("rank.duration_ratio.best", 0.1)
	v.SetDefault("rank.duration_ratio.worst", 1.5)
	v.SetDefault("rank.insolation.best", 1.5)
	v.SetDefault("rank.insolation.worst", 4.0)
	v.SetDefault("rank.snr_ratio.best", 0.9)
	v.SetDefault("rank.snr_ratio.worst", 1.1)
	v.SetDefault("rank.depth_diff.best", 0.1)
	v.SetDefault("rank.depth_diff.worst", 0.3)
	v.SetDefault("rank.floor", 0.1)

	v.SetDefault("federation.min_statistic", 0.3)
	v.SetDefault("federation.exact_statistic", 0.8)
	v.SetDefault("federation.ratio_tolerance", 0.01)
	v.SetDefault("federation.max_harmonic", 5)
	v.SetDefault("federation.max_transits", 200000)
	v.SetDefault("federation.window_before_days", 1.0)
	v.SetDefault("federation.window_after_days", 13.0)
	v.SetDefault("federation.epoch_offset", 2457000.0)
	v.SetDefault("federation.search_radius_arcsec", 180.0)
	v.SetDefault("federation.cone_source", "mast")
	v.SetDefault("federation.concurrency", 4)

	v.SetDefault("spatial.search_radius_arcsec", 30.0)
	v.SetDefault("selfmatch.search_radius_arcsec", 120.0)
	v.SetDefault("selfmatch.pixel_scale_arcsec", 21.0)

	v.SetDefault("mast.base_url", "https://mast.stsci.edu/api/v0/invoke")
	v.SetDefault("mast.poll_interval_secs", 5)
	v.SetDefault("mast.heartbeat_secs", 30)
	v.SetDefault("mast.poll_deadline_secs", 1800)
	v.SetDefault("mast.timeout_secs", 60)
	v.SetDefault("mast.rate_limit", 2.0)
	v.SetDefault("mast.max_attempts", 3)
	v.SetDefault("mast.max_tmag", 20.0)

	v.SetDefault("archive.base_url", "https://exoplanetarchive.ipac.caltech.edu/TAP/sync")
	v.SetDefault("archive.transiting_filter", "default_flag = 1 and tran_flag = 1")
	v.SetDefault("archive.nontransiting_filter", "default_flag = 1 and tran_flag = 0")
	v.SetDefault("archive.timeout_secs", 60)
	v.SetDefault("archive.rate_limit", 2.0)
	v.SetDefault("archive.max_attempts", 3)
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "rank":
		if c.Run.Name == "" {
			errs = append(errs, "run.name is required")
		}
		if c.Run.Concurrency < 1 || c.Run.Concurrency > 256 {
			errs = append(errs, "run.concurrency must be between 1 and 256")
		}
		if c.Run.EndSector < c.Run.StartSector {
			errs = append(errs, "run.end_sector must be >= run.start_sector")
		}
		errs = append(errs, c.validateTier()...)
		errs = append(errs, c.validateRank()...)
	case "federate":
		if c.Run.Name == "" {
			errs = append(errs, "run.name is required")
		}
		errs = append(errs, c.validateFederation()...)
	case "serve":
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
		}
		errs = append(errs, c.validateStore()...)
	case "store":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateTier() []string {
	var errs []string
	t := c.Tier
	if t.CentroidSigma <= 0 {
		errs = append(errs, "tier.centroid_sigma must be > 0")
	}
	if t.OddEvenSigma <= 0 || t.OddEvenHighSNRSigma <= 0 {
		errs = append(errs, "tier.odd_even_sigma thresholds must be > 0")
	}
	if t.MinSweetRatio < 0 || t.MinPDCNoise < 0 {
		errs = append(errs, "tier ratio thresholds must be >= 0")
	}
	if t.MaxMomentumDumpFraction < 0 || t.MaxMomentumDumpFraction > 1 {
		errs = append(errs, "tier.max_momentum_dump_fraction must be between 0 and 1")
	}
	return errs
}

func (c *Config) validateRank() []string {
	var errs []string
	ramps := map[string]RampConfig{
		"planet_radius":  c.Rank.PlanetRadius,
		"mes":            c.Rank.MES,
		"tmag":           c.Rank.Tmag,
		"duration_ratio": c.Rank.DurationRatio,
		"insolation":     c.Rank.Insolation,
		"snr_ratio":      c.Rank.SNRRatio,
		"depth_diff":     c.Rank.DepthDiff,
	}
	for name, r := range ramps {
		if r.Best == r.Worst {
			errs = append(errs, fmt.Sprintf("rank.%s best and worst must differ", name))
		}
	}
	if c.Rank.Floor <= 0 || c.Rank.Floor >= 1 {
		errs = append(errs, "rank.floor must be between 0 and 1 (exclusive)")
	}
	return errs
}

func (c *Config) validateFederation() []string {
	var errs []string
	f := c.Federation
	if f.MinStatistic < 0 || f.MinStatistic > 1 {
		errs = append(errs, "federation.min_statistic must be between 0 and 1")
	}
	if f.ExactStatistic < f.MinStatistic || f.ExactStatistic > 1 {
		errs = append(errs, "federation.exact_statistic must be between min_statistic and 1")
	}
	if f.MaxHarmonic < 1 {
		errs = append(errs, "federation.max_harmonic must be >= 1")
	}
	if f.RatioTolerance <= 0 {
		errs = append(errs, "federation.ratio_tolerance must be > 0")
	}
	switch f.ConeSource {
	case "mast", "none":
	case "table":
		if f.PositionTable == "" {
			errs = append(errs, "federation.position_table is required when cone_source is table")
		}
	default:
		errs = append(errs, fmt.Sprintf("federation.cone_source %q is not one of mast, table, none", f.ConeSource))
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	default:
		return []string{fmt.Sprintf("store.driver %q is not one of sqlite, postgres", c.Store.Driver)}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
