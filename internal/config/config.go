package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TimelineConfig holds change store limits.
type TimelineConfig struct {
	BatchSize         int    `yaml:"batch_size"`
	DefaultPageSize   int    `yaml:"default_page_size"`
	DefaultUnitSystem string `yaml:"default_unit_system"`
}

// Config defines service configuration.
type Config struct {
	DatabaseURL    string        `yaml:"database_url"`
	HTTPAddr       string        `yaml:"http_addr"`
	JWTSecret      string        `yaml:"jwt_secret"`
	JWTIssuer      string        `yaml:"jwt_issuer"`
	JWTAudience    string        `yaml:"jwt_audience"`
	JWTLeeway      time.Duration `yaml:"jwt_leeway"`
	PublicPaths    []string      `yaml:"public_paths"`
	MetricsEnabled bool          `yaml:"metrics_enabled"`
	ExportTitle    string        `yaml:"export_title"`

	Timeline TimelineConfig `yaml:"timeline"`
	// Projects overrides timeline limits per "OFFICE/PROJECT" key.
	Projects map[string]TimelineConfig `yaml:"projects"`
}

const (
	defaultBatchSize = 1000
	defaultPageSize  = 500
)

// Load reads the yaml file named by RESERVOIR_CONFIG, then applies environment
// overrides and defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:       ":8080",
		PublicPaths:    []string{"/healthz", "/metrics"},
		MetricsEnabled: true,
		ExportTitle:    "Operational Changes",
		Timeline: TimelineConfig{
			BatchSize:         defaultBatchSize,
			DefaultPageSize:   defaultPageSize,
			DefaultUnitSystem: "EN",
		},
	}

	if path := os.Getenv("RESERVOIR_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.JWTSecret))
	cfg.JWTIssuer = getenvDefault("AUTH_JWT_ISSUER", cfg.JWTIssuer)
	cfg.JWTAudience = getenvDefault("AUTH_JWT_AUDIENCE", cfg.JWTAudience)
	cfg.JWTLeeway = getenvDurationDefault("AUTH_JWT_LEEWAY", cfg.JWTLeeway)
	cfg.MetricsEnabled = getenvBoolDefault("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.Timeline.BatchSize = getenvIntDefault("TIMELINE_BATCH_SIZE", cfg.Timeline.BatchSize)
	cfg.Timeline.DefaultPageSize = getenvIntDefault("TIMELINE_DEFAULT_PAGE_SIZE", cfg.Timeline.DefaultPageSize)
	cfg.Timeline.DefaultUnitSystem = strings.ToUpper(getenvDefault("DEFAULT_UNIT_SYSTEM", cfg.Timeline.DefaultUnitSystem))

	if cfg.Timeline.BatchSize <= 0 {
		cfg.Timeline.BatchSize = defaultBatchSize
	}
	if cfg.Timeline.DefaultPageSize == 0 {
		cfg.Timeline.DefaultPageSize = defaultPageSize
	}
	if cfg.HTTPAddr == "" {
		return cfg, errors.New("config: http addr required")
	}
	switch cfg.Timeline.DefaultUnitSystem {
	case "EN", "SI":
	default:
		return cfg, errors.New("config: default unit system must be EN or SI")
	}
	return cfg, nil
}

// TimelineFor returns the timeline limits for a project key.
func (c Config) TimelineFor(project string) TimelineConfig {
	if c.Projects != nil {
		if override, ok := c.Projects[project]; ok {
			return mergeTimeline(c.Timeline, override)
		}
	}
	return c.Timeline
}

func mergeTimeline(base, override TimelineConfig) TimelineConfig {
	if override.BatchSize > 0 {
		base.BatchSize = override.BatchSize
	}
	if override.DefaultPageSize != 0 {
		base.DefaultPageSize = override.DefaultPageSize
	}
	if override.DefaultUnitSystem != "" {
		base.DefaultUnitSystem = strings.ToUpper(override.DefaultUnitSystem)
	}
	return base
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDurationDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
