// Package config provides configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jobrunner/scenekit/internal/domain"
)

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "SCENEKIT"

// Config holds all application configuration.
type Config struct {
	EarthEngine EarthEngineConfig `mapstructure:"earthengine"`
	Masking     MaskingConfig     `mapstructure:"masking"`
	Export      ExportConfig      `mapstructure:"export"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Server      ServerConfig      `mapstructure:"server"`
	Watch       WatchConfig       `mapstructure:"watch"`
	Batch       BatchConfig       `mapstructure:"batch"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// EarthEngineConfig holds the remote image service configuration.
type EarthEngineConfig struct {
	Project    string        `mapstructure:"project"`
	BaseURL    string        `mapstructure:"base_url"`
	APIVersion string        `mapstructure:"api_version"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Auth       AuthConfig    `mapstructure:"auth"`
}

// AuthConfig holds remote service credentials.
type AuthConfig struct {
	Type            string   `mapstructure:"type"` // google, client_credentials, none
	CredentialsFile string   `mapstructure:"credentials_file"`
	ClientID        string   `mapstructure:"client_id"`
	ClientSecret    string   `mapstructure:"client_secret"`
	TokenURL        string   `mapstructure:"token_url"`
	Scopes          []string `mapstructure:"scopes"`
}

// MaskingConfig holds cloud and shadow masking configuration.
type MaskingConfig struct {
	JoinPolicy string  `mapstructure:"join_policy"` // drop, passthrough, error
	Buffer     float64 `mapstructure:"buffer"`      // cloud mask dilation in metres
}

// ExportConfig holds download and export task configuration.
type ExportConfig struct {
	Folder       string        `mapstructure:"folder"`
	CRS          string        `mapstructure:"crs"`
	Scale        float64       `mapstructure:"scale"`
	Format       string        `mapstructure:"format"`
	ChunkSize    int           `mapstructure:"chunk_size"`
	Progress     bool          `mapstructure:"progress"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Type      string      `mapstructure:"type"` // none, local, s3, azure
	LocalPath string      `mapstructure:"local_path"`
	S3        S3Config    `mapstructure:"s3"`
	Azure     AzureConfig `mapstructure:"azure"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// LedgerConfig holds the download and task ledger configuration.
type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Path     string `mapstructure:"path"`
	Textfile string `mapstructure:"textfile"` // written after CLI runs when set
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // Full origins or "*.host" wildcards
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// WatchConfig holds region directory watch configuration.
type WatchConfig struct {
	Paths    []string      `mapstructure:"paths"`
	Debounce time.Duration `mapstructure:"debounce"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// BatchConfig holds batch manifest run configuration.
type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json, text
	File       string `mapstructure:"file"`   // rotated log file, stderr when empty
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Defaults sets the default configuration values.
func Defaults(v *viper.Viper) {
	// Remote service defaults
	v.SetDefault("earthengine.project", "")
	v.SetDefault("earthengine.base_url", "https://earthengine.googleapis.com")
	v.SetDefault("earthengine.api_version", "v1")
	v.SetDefault("earthengine.timeout", 5*time.Minute)
	v.SetDefault("earthengine.auth.type", "google")
	v.SetDefault("earthengine.auth.scopes", []string{})
	// Empty defaults make the keys visible to AutomaticEnv on Unmarshal.
	for _, key := range []string{
		"earthengine.auth.credentials_file",
		"earthengine.auth.client_id",
		"earthengine.auth.client_secret",
		"earthengine.auth.token_url",
		"storage.s3.bucket",
		"storage.s3.region",
		"storage.s3.prefix",
		"storage.s3.endpoint",
		"storage.s3.access_key_id",
		"storage.s3.secret_access_key",
		"storage.azure.container",
		"storage.azure.account_name",
		"storage.azure.account_key",
		"storage.azure.connection_string",
		"storage.azure.prefix",
	} {
		v.SetDefault(key, "")
	}

	// Masking defaults
	v.SetDefault("masking.join_policy", string(domain.JoinDrop))
	v.SetDefault("masking.buffer", domain.DefaultMaskParams().BufferMeters)

	// Export defaults
	v.SetDefault("export.folder", ".")
	v.SetDefault("export.crs", "EPSG:4326")
	v.SetDefault("export.scale", 30.0)
	v.SetDefault("export.format", domain.FormatGeoTIFF)
	v.SetDefault("export.chunk_size", 1<<20)
	v.SetDefault("export.progress", false)
	v.SetDefault("export.timeout", 10*time.Minute)
	v.SetDefault("export.poll_interval", time.Minute)

	// Storage defaults
	v.SetDefault("storage.type", "none")
	v.SetDefault("storage.local_path", "./exports")

	// Ledger defaults
	v.SetDefault("ledger.enabled", false)
	v.SetDefault("ledger.path", "./scenekit.db")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.textfile", "")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors.allowed_origins", []string{})

	// Watch defaults
	v.SetDefault("watch.paths", []string{})
	v.SetDefault("watch.debounce", 2*time.Second)
	v.SetDefault("watch.cooldown", 30*time.Second)

	// Batch defaults
	v.SetDefault("batch.concurrency", 2)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	Defaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load loads configuration from environment and config file into v.
// Flags bound to v before Load take precedence over both.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/scenekit")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &domain.ConfigError{Field: "server.port", Message: fmt.Sprintf("invalid port %d", c.Server.Port)}
	}

	switch c.EarthEngine.Auth.Type {
	case "google", "client_credentials":
		if c.EarthEngine.Project == "" {
			return &domain.ConfigError{Field: "earthengine.project", Message: "project is required"}
		}
	case "none":
	default:
		return &domain.ConfigError{Field: "earthengine.auth.type", Message: fmt.Sprintf("unknown auth type %q", c.EarthEngine.Auth.Type)}
	}

	if _, err := domain.ParseJoinPolicy(c.Masking.JoinPolicy); err != nil {
		return &domain.ConfigError{Field: "masking.join_policy", Message: err.Error()}
	}
	if c.Masking.Buffer <= 0 {
		return &domain.ConfigError{Field: "masking.buffer", Message: "buffer must be positive"}
	}

	if c.Export.Scale <= 0 {
		return &domain.ConfigError{Field: "export.scale", Message: "scale must be positive"}
	}

	switch c.Storage.Type {
	case "none":
	case "local":
		if c.Storage.LocalPath == "" {
			return &domain.ConfigError{Field: "storage.local_path", Message: "local storage path is required"}
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return &domain.ConfigError{Field: "storage.s3.bucket", Message: "S3 bucket is required"}
		}
		if c.Storage.S3.Region == "" {
			return &domain.ConfigError{Field: "storage.s3.region", Message: "S3 region is required"}
		}
	case "azure":
		if c.Storage.Azure.Container == "" {
			return &domain.ConfigError{Field: "storage.azure.container", Message: "azure container is required"}
		}
		if c.Storage.Azure.AccountName == "" && c.Storage.Azure.ConnectionString == "" {
			return &domain.ConfigError{Field: "storage.azure", Message: "azure account name or connection string is required"}
		}
	default:
		return &domain.ConfigError{Field: "storage.type", Message: fmt.Sprintf("unknown storage type %q", c.Storage.Type)}
	}

	if c.Ledger.Enabled && c.Ledger.Path == "" {
		return &domain.ConfigError{Field: "ledger.path", Message: "ledger path is required"}
	}

	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaskParams returns the masking parameters with configured overrides.
func (c *Config) MaskParams() domain.MaskParams {
	p := domain.DefaultMaskParams()
	p.BufferMeters = c.Masking.Buffer
	p.JoinPolicy, _ = domain.ParseJoinPolicy(c.Masking.JoinPolicy)
	return p
}
