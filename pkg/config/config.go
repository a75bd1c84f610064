// Package config provides configuration management for perf-snapshot.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PERF_SNAPSHOT_STORAGE_TYPE.
const EnvPrefix = "PERF_SNAPSHOT"

// Config holds all configuration for the application.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Paging    PagingConfig    `mapstructure:"paging"`
	Export    ExportConfig    `mapstructure:"export"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// StorageConfig holds snapshot storage configuration.
type StorageConfig struct {
	Type      string `mapstructure:"type"`       // local, cos or blob
	LocalPath string `mapstructure:"local_path"` // for local storage
	BucketURL string `mapstructure:"bucket_url"` // for blob storage, e.g. "file:///var/snapshots" or "mem://"
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"` // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"` // e.g., "https" or "http"
}

// CatalogConfig holds the snapshot catalog database configuration.
type CatalogConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type"`   // sqlite, postgres or mysql
	Driver   string `mapstructure:"driver"` // gorm or sql
	Path     string `mapstructure:"path"`   // sqlite database file
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// SnapshotConfig controls how snapshot files are written.
type SnapshotConfig struct {
	Compression string `mapstructure:"compression"` // none, gzip, zstd or lz4
	Level       int    `mapstructure:"level"`
}

// PagingConfig tunes the paged result engine.
type PagingConfig struct {
	MaxBufferSize   int `mapstructure:"max_buffer_size"`
	SampleThreshold int `mapstructure:"sample_threshold"`
	SampleCount     int `mapstructure:"sample_count"`
}

// ExportConfig holds tree export defaults.
type ExportConfig struct {
	Workers int    `mapstructure:"workers"`
	Format  string `mapstructure:"format"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	ServiceName string            `mapstructure:"service_name"`
	Endpoint    string            `mapstructure:"endpoint"` // OTLP collector, e.g. "http://localhost:4317"
	Protocol    string            `mapstructure:"protocol"` // grpc or http/protobuf
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	Sampler     string            `mapstructure:"sampler"` // always_on, traceidratio, parentbased_traceidratio, ...
	SampleRatio float64           `mapstructure:"sample_ratio"`
	Attributes  map[string]string `mapstructure:"attributes"` // extra resource attributes
}

// otelEnv maps telemetry keys to the standard OpenTelemetry variables.
var otelEnv = map[string]string{
	"telemetry.service_name": "OTEL_SERVICE_NAME",
	"telemetry.endpoint":     "OTEL_EXPORTER_OTLP_ENDPOINT",
	"telemetry.protocol":     "OTEL_EXPORTER_OTLP_PROTOCOL",
	"telemetry.insecure":     "OTEL_EXPORTER_OTLP_INSECURE",
	"telemetry.sampler":      "OTEL_TRACES_SAMPLER",
	"telemetry.sample_ratio": "OTEL_TRACES_SAMPLER_ARG",
}

// Load reads configuration from the specified file path. A missing file
// leaves the defaults in place.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".perf-snapshot"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range otelEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	return unmarshal(v)
}

// LoadFromReader loads configuration from an io.Reader (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := unmarshal(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./snapshots")
	v.SetDefault("storage.bucket_url", "")
	v.SetDefault("storage.scheme", "https")
	v.SetDefault("storage.domain", "myqcloud.com")

	v.SetDefault("catalog.enabled", false)
	v.SetDefault("catalog.type", "sqlite")
	v.SetDefault("catalog.driver", "gorm")
	v.SetDefault("catalog.path", "./snapshots/catalog.db")
	v.SetDefault("catalog.host", "localhost")
	v.SetDefault("catalog.port", 5432)
	v.SetDefault("catalog.max_conns", 10)

	v.SetDefault("snapshot.compression", "zstd")
	v.SetDefault("snapshot.level", 0)

	v.SetDefault("paging.max_buffer_size", 1_000_000)
	v.SetDefault("paging.sample_threshold", 10_000)
	v.SetDefault("paging.sample_count", 100)

	v.SetDefault("export.workers", 4)
	v.SetDefault("export.format", "xml")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "perf-snapshot")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.sampler", "parentbased_always_on")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// pagingBucketSize is the number of objects per paged bucket; a sorted scan
// never holds fewer.
const pagingBucketSize = 1000

var (
	catalogTypes     = []string{"sqlite", "postgres", "postgresql", "mysql"}
	catalogDrivers   = []string{"gorm", "sql"}
	compressionTypes = []string{"none", "gzip", "zstd", "lz4"}
)

// Validate validates the configuration. Storage settings are checked by the
// storage package when a backend is created.
func (c *Config) Validate() error {
	if c.Catalog.Enabled && !slices.Contains(catalogTypes, c.Catalog.Type) {
		return fmt.Errorf("unsupported catalog type: %s", c.Catalog.Type)
	}
	if c.Catalog.Enabled && c.Catalog.Driver != "" && !slices.Contains(catalogDrivers, c.Catalog.Driver) {
		return fmt.Errorf("unsupported catalog driver: %s", c.Catalog.Driver)
	}
	if c.Catalog.Enabled && c.Catalog.Type != "sqlite" && c.Catalog.Host == "" {
		return fmt.Errorf("catalog host is required")
	}
	if !slices.Contains(compressionTypes, c.Snapshot.Compression) {
		return fmt.Errorf("unsupported snapshot compression: %s", c.Snapshot.Compression)
	}
	if c.Paging.MaxBufferSize < pagingBucketSize {
		return fmt.Errorf("paging max buffer size must be at least %d", pagingBucketSize)
	}
	if c.Paging.SampleCount < 1 {
		return fmt.Errorf("paging sample count must be at least 1")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio must be within [0, 1]")
	}
	if c.Export.Workers < 1 {
		return fmt.Errorf("export workers must be at least 1")
	}
	return nil
}

// EnsureLocalDirs creates the directories local storage and the sqlite
// catalog write into.
func (c *Config) EnsureLocalDirs() error {
	if c.Storage.Type == "local" && c.Storage.LocalPath != "" {
		if err := os.MkdirAll(c.Storage.LocalPath, 0755); err != nil {
			return err
		}
	}
	if c.Catalog.Enabled && c.Catalog.Type == "sqlite" && c.Catalog.Path != "" && c.Catalog.Path != ":memory:" {
		return os.MkdirAll(filepath.Dir(c.Catalog.Path), 0755)
	}
	return nil
}
