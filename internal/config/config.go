// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Inputs   InputConfig    `yaml:"inputs" mapstructure:"inputs"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Download DownloadConfig `yaml:"download" mapstructure:"download"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Coverage CoverageConfig `yaml:"coverage" mapstructure:"coverage"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// InputConfig locates the input feature sets.
type InputConfig struct {
	ZCTAShapefile  string `yaml:"zcta_shapefile" mapstructure:"zcta_shapefile"`
	StateDir       string `yaml:"state_dir" mapstructure:"state_dir"`
	StateShapefile string `yaml:"state_shapefile" mapstructure:"state_shapefile"`
	ReferenceGPKG  string `yaml:"reference_gpkg" mapstructure:"reference_gpkg"`
}

// OutputConfig configures the export sinks.
type OutputConfig struct {
	Dir   string `yaml:"dir" mapstructure:"dir"`
	Layer string `yaml:"layer" mapstructure:"layer"`
}

// DownloadConfig configures the state boundary download.
type DownloadConfig struct {
	StateURL    string  `yaml:"state_url" mapstructure:"state_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// PipelineConfig configures the transform stages.
type PipelineConfig struct {
	DissolveSimplifyCRS string  `yaml:"dissolve_simplify_crs" mapstructure:"dissolve_simplify_crs"`
	DissolveToleranceM  float64 `yaml:"dissolve_tolerance_m" mapstructure:"dissolve_tolerance_m"`
	TrimSimplifyCRS     string  `yaml:"trim_simplify_crs" mapstructure:"trim_simplify_crs"`
	TrimToleranceM      float64 `yaml:"trim_tolerance_m" mapstructure:"trim_tolerance_m"`
	Concurrency         int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// CoverageConfig configures the coverage analyzer.
type CoverageConfig struct {
	EqualAreaCRS string  `yaml:"equal_area_crs" mapstructure:"equal_area_crs"`
	MaxRatio     float64 `yaml:"max_ratio" mapstructure:"max_ratio"`
}

// PostgresConfig configures the optional PostGIS publish sink.
type PostgresConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	Table       string `yaml:"table" mapstructure:"table"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
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
	v.SetEnvPrefix("ZIP3")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("inputs.zcta_shapefile", "cb_2018_us_zcta510_500k.shp")
	v.SetDefault("inputs.state_dir", "state_shp")
	v.SetDefault("inputs.state_shapefile", "state_shp/cb_2018_us_state_500k.shp")
	v.SetDefault("inputs.reference_gpkg", "out/state_zip3_dissolved.gpkg")
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.layer", "zip3_state")
	v.SetDefault("download.state_url", "https://www2.census.gov/geo/tiger/GENZ2018/shp/cb_2018_us_state_500k.zip")
	v.SetDefault("download.timeout_secs", 600)
	v.SetDefault("download.rate_per_sec", 1.0)
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("pipeline.dissolve_simplify_crs", "EPSG:3857")
	v.SetDefault("pipeline.dissolve_tolerance_m", 100.0)
	v.SetDefault("pipeline.trim_simplify_crs", "EPSG:5070")
	v.SetDefault("pipeline.trim_tolerance_m", 75.0)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("coverage.equal_area_crs", "EPSG:5070")
	v.SetDefault("coverage.max_ratio", 1.05)
	v.SetDefault("postgres.schema", "geo")
	v.SetDefault("postgres.table", "state_zip3")
	v.SetDefault("postgres.batch_size", 5000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
