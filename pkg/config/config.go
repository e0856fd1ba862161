// Package config provides configuration management for jacoco-filter.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. JACOCO_FILTER_FILTER_WORKERS.
const EnvPrefix = "JACOCO_FILTER"

var validate = validator.New()

// Config holds all configuration for the application.
type Config struct {
	Filter    FilterConfig    `mapstructure:"filter"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// FilterConfig holds defaults for filter runs. Command line flags win.
type FilterConfig struct {
	Methods        []string `mapstructure:"methods"`
	MismatchPolicy string   `mapstructure:"mismatch_policy" validate:"omitempty,oneof=add skip"`
	Workers        int      `mapstructure:"workers" validate:"gte=0,lte=256"`
	Include        []string `mapstructure:"include"`
	Exclude        []string `mapstructure:"exclude"`
	Compression    string   `mapstructure:"compression" validate:"omitempty,oneof=none gzip zstd"`
	Classpath      []string `mapstructure:"classpath"`
}

// CacheConfig holds probe cache configuration.
type CacheConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// LedgerConfig holds run ledger database configuration.
type LedgerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type" validate:"oneof=sqlite postgres mysql"`
	DSN      string `mapstructure:"dsn"`  // sqlite file (default jacoco-filter.db), or a full driver DSN
	Host     string `mapstructure:"host"` // postgres and mysql
	Port     int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns" validate:"gte=0"`

	// RawSQL switches the repository from GORM queries to hand-written SQL
	// over the same connection. Only mysql and postgres support it.
	RawSQL bool `mapstructure:"raw_sql"`
}

// StorageConfig holds object storage configuration for store:// records.
type StorageConfig struct {
	Type      string `mapstructure:"type" validate:"oneof=local cos"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage
}

// MetricsConfig holds metrics output configuration.
type MetricsConfig struct {
	// Textfile receives the run metrics in the node exporter textfile
	// format. Empty disables it.
	Textfile string `mapstructure:"textfile"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	OutputPath string `mapstructure:"output_path"` // empty writes to stderr
}

// TelemetryConfig holds OpenTelemetry tracing configuration. Empty fields
// fall back to the OTEL_EXPORTER_OTLP_* environment variables.
type TelemetryConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol" validate:"oneof=grpc http http/protobuf"`
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	SampleRatio float64           `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

// Load reads configuration from the specified file path. Without a path the
// standard locations are searched; a missing file leaves the defaults.
func Load(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/jacoco-filter")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromReader loads configuration from content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return decode(v)
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("invalid default config: %v", err))
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("filter.mismatch_policy", "add")
	v.SetDefault("filter.workers", 0)
	v.SetDefault("filter.compression", "none")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.path", defaultCachePath())

	v.SetDefault("ledger.enabled", false)
	v.SetDefault("ledger.type", "sqlite")
	v.SetDefault("ledger.max_conns", 4)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")
	v.SetDefault("storage.scheme", "https")
	v.SetDefault("storage.domain", "myqcloud.com")

	v.SetDefault("log.level", "info")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

func defaultCachePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + string(os.PathSeparator) + "jacoco-filter"
	}
	return ".jacoco-filter-cache"
}

// Validate checks field constraints and the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Cache.Enabled && !c.Cache.InMemory && c.Cache.Path == "" {
		return fmt.Errorf("cache path is required when the cache is enabled")
	}

	if c.Ledger.Enabled {
		if c.Ledger.Type != "sqlite" && c.Ledger.DSN == "" && c.Ledger.Host == "" {
			return fmt.Errorf("ledger host or dsn is required for %s", c.Ledger.Type)
		}
	}

	if c.Ledger.RawSQL && c.Ledger.Type == "sqlite" {
		return fmt.Errorf("ledger raw_sql is not supported for sqlite")
	}

	if c.Storage.Type == "cos" {
		if c.Storage.Bucket == "" || c.Storage.Region == "" {
			return fmt.Errorf("cos storage requires bucket and region")
		}
	}

	return nil
}
