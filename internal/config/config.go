package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/mkoziy/crmsync/internal/apperrors"
	"github.com/mkoziy/crmsync/internal/database"
	"github.com/mkoziy/crmsync/internal/reconcile"
)

// Config holds all configuration for crmsync.
// Values come from an optional YAML file; environment variables always win.
// The access token is only read from the environment.
type Config struct {
	Warehouse WarehouseConfig `yaml:"warehouse"`
	CRM       CRMConfig       `yaml:"crm"`
	Sync      SyncConfig      `yaml:"sync"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// WarehouseConfig locates the destination tables.
type WarehouseConfig struct {
	Driver string `yaml:"driver" env:"WAREHOUSE_DRIVER" env-default:"sqlite"`
	// Project is the database path for sqlite and duckdb, a connection string for postgres.
	Project      string `yaml:"project" env:"WAREHOUSE_PROJECT"`
	Dataset      string `yaml:"dataset" env:"WAREHOUSE_DATASET"`
	MasterTable  string `yaml:"master_table" env:"MASTER_TABLE"`
	StagingTable string `yaml:"staging_table" env:"STAGING_TABLE"`
	Debug        bool   `yaml:"debug" env:"WAREHOUSE_DEBUG" env-default:"false"`
}

// CRMConfig holds source API settings.
type CRMConfig struct {
	AccessToken string `yaml:"-" env:"CRM_ACCESS_TOKEN"` // Secret - not in YAML
	BaseURL     string `yaml:"base_url" env:"CRM_BASE_URL" env-default:"https://api.hubapi.com"`
	Entity      string `yaml:"entity" env:"SYNC_ENTITY" env-default:"contacts"`
	// RateLimitsFile is a YAML file of per-source limiter settings.
	RateLimitsFile string `yaml:"rate_limits_file" env:"RATE_LIMITS_FILE"`
}

// SyncConfig tunes extraction, loading and cleanup.
type SyncConfig struct {
	DefaultLookback         time.Duration `yaml:"default_lookback" env:"DEFAULT_LOOKBACK" env-default:"720h"`
	MaxPropertiesPerRequest int           `yaml:"max_properties_per_request" env:"MAX_PROPERTIES_PER_REQUEST" env-default:"100"`
	LoadBatchSize           int           `yaml:"load_batch_size" env:"LOAD_BATCH_SIZE" env-default:"500"`
	CleanupStrategy         string        `yaml:"cleanup_strategy" env:"CLEANUP_STRATEGY" env-default:"anti_join"`
}

// MetricsConfig holds the optional push target.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" env:"PUSHGATEWAY_URL"`
}

// Load reads configuration from path (optional) with environment overrides and
// validates it. Every returned error wraps apperrors.ErrConfig.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", apperrors.ErrConfig, path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("%w: read environment: %v", apperrors.ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required options and enumerations.
func (c *Config) Validate() error {
	var missing []string
	required := []struct {
		env, value string
	}{
		{"WAREHOUSE_PROJECT", c.Warehouse.Project},
		{"WAREHOUSE_DATASET", c.Warehouse.Dataset},
		{"MASTER_TABLE", c.Warehouse.MasterTable},
		{"STAGING_TABLE", c.Warehouse.StagingTable},
		{"CRM_ACCESS_TOKEN", c.CRM.AccessToken},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required options: %s", apperrors.ErrConfig, strings.Join(missing, ", "))
	}

	if c.Warehouse.MasterTable == c.Warehouse.StagingTable {
		return fmt.Errorf("%w: MASTER_TABLE and STAGING_TABLE must differ", apperrors.ErrConfig)
	}
	if _, err := database.ParseDriver(c.Warehouse.Driver); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrConfig, err)
	}
	if _, err := reconcile.ParseStrategy(c.Sync.CleanupStrategy); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrConfig, err)
	}
	if c.Sync.DefaultLookback <= 0 {
		return fmt.Errorf("%w: DEFAULT_LOOKBACK must be positive", apperrors.ErrConfig)
	}
	if c.Sync.MaxPropertiesPerRequest <= 0 {
		return fmt.Errorf("%w: MAX_PROPERTIES_PER_REQUEST must be positive", apperrors.ErrConfig)
	}
	return nil
}

// Driver returns the parsed warehouse driver. Call after Validate.
func (c *Config) Driver() database.Driver {
	d, _ := database.ParseDriver(c.Warehouse.Driver)
	return d
}

// Strategy returns the parsed cleanup strategy. Call after Validate.
func (c *Config) Strategy() reconcile.Strategy {
	s, _ := reconcile.ParseStrategy(c.Sync.CleanupStrategy)
	return s
}

// DatabaseOptions returns the warehouse connection options.
func (c *Config) DatabaseOptions() database.Options {
	return database.Options{
		Driver: c.Driver(),
		DSN:    c.Warehouse.Project,
		Schema: c.Warehouse.Dataset,
		Debug:  c.Warehouse.Debug,
	}
}
