// Package config loads the CLI configuration from config.yaml and SDI_*
// environment variables and initializes the global logger.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/sdi-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Road     RoadConfig     `yaml:"road" mapstructure:"road"`
	Rutting  RuttingConfig  `yaml:"rutting" mapstructure:"rutting"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Survey   model.Survey   `yaml:"survey" mapstructure:"survey"`
}

// RoadConfig describes the carriageway and the coordinate systems.
type RoadConfig struct {
	WidthM       float64 `yaml:"width_m" mapstructure:"width_m"`
	IntervalM    float64 `yaml:"interval_m" mapstructure:"interval_m"`
	ProjectedCRS string  `yaml:"projected_crs" mapstructure:"projected_crs"`
	// InputCRS is assumed for a road layer without a .prj sidecar.
	InputCRS string `yaml:"input_crs" mapstructure:"input_crs"`
}

// RuttingConfig configures DSM sampling.
type RuttingConfig struct {
	BufferDistance float64 `yaml:"buffer_distance" mapstructure:"buffer_distance"`
	UnitScale      float64 `yaml:"unit_scale" mapstructure:"unit_scale"`
	MaxDepthCM     float64 `yaml:"max_depth_cm" mapstructure:"max_depth_cm"`
}

// PipelineConfig configures run execution.
type PipelineConfig struct {
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	WorkDir     string `yaml:"work_dir" mapstructure:"work_dir"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ExportConfig configures report output.
type ExportConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// FetchConfig configures remote DSM downloads.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
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
	v.SetEnvPrefix("SDI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("road.width_m", 3.0)
	v.SetDefault("road.interval_m", 100.0)
	v.SetDefault("road.projected_crs", "EPSG:32749")
	v.SetDefault("road.input_crs", "EPSG:4326")
	v.SetDefault("rutting.buffer_distance", 0.3)
	v.SetDefault("rutting.unit_scale", 100.0)
	v.SetDefault("rutting.max_depth_cm", 15.0)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.work_dir", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "sdi.db")
	v.SetDefault("export.dir", "out")
	v.SetDefault("export.formats", []string{"xlsx", "geojson", "gpkg", "png"})
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "sdi-cli/1.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	// Registered so SDI_SURVEY_* variables bind without a config file.
	for _, k := range []string{"location", "sta_range", "surveyor", "date", "agency"} {
		v.SetDefault("survey."+k, "")
	}

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

// Validate checks the settings a command mode needs. Modes are "analyze",
// "serve" and "store". Out-of-range run parameters are reported as
// *model.InvalidParameterError.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	switch mode {
	case "analyze":
		if err := c.validateRunParams(); err != nil {
			return err
		}
		if len(c.Export.Formats) == 0 {
			problems = append(problems, "export.formats must list at least one format")
		}
		if c.Fetch.TimeoutSecs <= 0 {
			problems = append(problems, "fetch.timeout_secs must be > 0")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
	case "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateRunParams() error {
	for _, p := range []struct {
		name  string
		value float64
	}{
		{"road.width_m", c.Road.WidthM},
		{"road.interval_m", c.Road.IntervalM},
		{"rutting.buffer_distance", c.Rutting.BufferDistance},
		{"rutting.unit_scale", c.Rutting.UnitScale},
		{"rutting.max_depth_cm", c.Rutting.MaxDepthCM},
		{"pipeline.concurrency", float64(c.Pipeline.Concurrency)},
	} {
		if !(p.value > 0) {
			return &model.InvalidParameterError{Name: p.name, Value: p.value}
		}
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
