package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/shopper-cli/internal/model"
	"github.com/sells-group/shopper-cli/internal/mutate"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Catalog     CatalogConfig     `yaml:"catalog" mapstructure:"catalog"`
	Generate    GenerateConfig    `yaml:"generate" mapstructure:"generate"`
	Tags        TagsConfig        `yaml:"tags" mapstructure:"tags"`
	Attribution AttributionConfig `yaml:"attribution" mapstructure:"attribution"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CatalogConfig locates the seed catalog.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// GenerateConfig configures batch generation.
type GenerateConfig struct {
	OutputDir       string  `yaml:"output_dir" mapstructure:"output_dir"`
	BatchSize       int     `yaml:"batch_size" mapstructure:"batch_size"`
	PageSize        int     `yaml:"page_size" mapstructure:"page_size"`
	Mode            string  `yaml:"mode" mapstructure:"mode"`
	Category        string  `yaml:"category" mapstructure:"category"`
	Seed            uint64  `yaml:"seed" mapstructure:"seed"`
	PriceMultiplier float64 `yaml:"price_multiplier" mapstructure:"price_multiplier"`
	PlanPath        string  `yaml:"plan_path" mapstructure:"plan_path"`
}

// TagsConfig configures commercial tag injection.
type TagsConfig struct {
	Enabled   bool           `yaml:"enabled" mapstructure:"enabled"`
	Injection mutate.TagPlan `yaml:"injection" mapstructure:"injection"`
	Limits    mutate.TagPlan `yaml:"limits" mapstructure:"limits"`
}

// AttributionConfig configures the attribution join and export.
type AttributionConfig struct {
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	Format      string `yaml:"format" mapstructure:"format"`
	Output      string `yaml:"output" mapstructure:"output"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SHOPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	inj := mutate.DefaultInjection()
	lim := mutate.DefaultLimits()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "shopper.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("catalog.path", "data/seed_catalog.json")
	v.SetDefault("generate.output_dir", "data/experiments")
	v.SetDefault("generate.batch_size", 8)
	v.SetDefault("generate.page_size", model.DefaultPageSize)
	v.SetDefault("generate.mode", string(model.PositionRandom))
	v.SetDefault("generate.seed", 0)
	v.SetDefault("generate.price_multiplier", 1.0)
	v.SetDefault("tags.enabled", true)
	v.SetDefault("tags.injection.sponsored.min", inj.Sponsored.Min)
	v.SetDefault("tags.injection.sponsored.max", inj.Sponsored.Max)
	v.SetDefault("tags.injection.best_seller.min", inj.BestSeller.Min)
	v.SetDefault("tags.injection.best_seller.max", inj.BestSeller.Max)
	v.SetDefault("tags.injection.overall_pick.min", inj.OverallPick.Min)
	v.SetDefault("tags.injection.overall_pick.max", inj.OverallPick.Max)
	v.SetDefault("tags.limits.sponsored.min", lim.Sponsored.Min)
	v.SetDefault("tags.limits.sponsored.max", lim.Sponsored.Max)
	v.SetDefault("tags.limits.best_seller.min", lim.BestSeller.Min)
	v.SetDefault("tags.limits.best_seller.max", lim.BestSeller.Max)
	v.SetDefault("tags.limits.overall_pick.min", lim.OverallPick.Min)
	v.SetDefault("tags.limits.overall_pick.max", lim.OverallPick.Max)
	v.SetDefault("attribution.concurrency", 4)
	v.SetDefault("attribution.format", "csv")
	v.SetDefault("attribution.output", "attribution.csv")

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

// Validate checks the settings a command depends on. command is one of
// "generate", "attribute", "decisions" or "artifacts".
func (c *Config) Validate(command string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres (got %q)", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch command {
	case "generate":
		if c.Catalog.Path == "" {
			errs = append(errs, "catalog.path is required")
		}
		if c.Generate.OutputDir == "" {
			errs = append(errs, "generate.output_dir is required")
		}
		if c.Generate.BatchSize < 1 {
			errs = append(errs, "generate.batch_size must be >= 1")
		}
		if c.Generate.PageSize < 1 {
			errs = append(errs, "generate.page_size must be >= 1")
		}
		if !model.PositionMode(c.Generate.Mode).Valid() {
			errs = append(errs, fmt.Sprintf("generate.mode %q is not a known position mode", c.Generate.Mode))
		}
		if c.Generate.PriceMultiplier <= 0 {
			errs = append(errs, "generate.price_multiplier must be > 0")
		}
		if c.Tags.Enabled {
			if err := c.Tags.Injection.Validate(); err != nil {
				errs = append(errs, "tags.injection: "+err.Error())
			}
			if err := c.Tags.Limits.Validate(); err != nil {
				errs = append(errs, "tags.limits: "+err.Error())
			}
		}
	case "attribute":
		if c.Attribution.Concurrency < 1 || c.Attribution.Concurrency > 64 {
			errs = append(errs, "attribution.concurrency must be between 1 and 64")
		}
		switch c.Attribution.Format {
		case "csv", "xlsx":
		default:
			errs = append(errs, fmt.Sprintf("attribution.format must be csv or xlsx (got %q)", c.Attribution.Format))
		}
	case "decisions", "artifacts":
	default:
		return eris.Errorf("config: unknown mode %q", command)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
