package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Charts   ChartsConfig   `yaml:"charts"`
	Logger   LoggerConfig   `yaml:"logger"`
	Security SecurityConfig `yaml:"security"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatasetConfig struct {
	FallbackFile   string        `yaml:"fallback_file"`
	CacheDir       string        `yaml:"cache_dir"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	UploadTTL      time.Duration `yaml:"upload_ttl"`
	MaxDatasets    int           `yaml:"max_datasets"`
	TableRowLimit  int           `yaml:"table_row_limit"`
	LoadTimeout    time.Duration `yaml:"load_timeout"`
	FallbackRetry  time.Duration `yaml:"fallback_retry"`
}

type ChartsConfig struct {
	Theme      string        `yaml:"theme"`
	AssetsHost string        `yaml:"assets_host"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SecurityConfig struct {
	EnableRateLimit bool     `yaml:"enable_rate_limit"`
	RateLimitRPS    int      `yaml:"rate_limit_rps"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	TrustedProxies  []string `yaml:"trusted_proxies"`
}

// Default returns the built-in configuration before any file or environment
// overrides are applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8501,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Dataset: DatasetConfig{
			FallbackFile:   "Sample - Superstore.xls",
			CacheDir:       ".cache",
			MaxUploadBytes: 200 << 20,
			UploadTTL:      2 * time.Hour,
			MaxDatasets:    32,
			TableRowLimit:  1000,
			LoadTimeout:    30 * time.Second,
			FallbackRetry:  30 * time.Second,
		},
		Charts: ChartsConfig{
			Theme:      "westeros",
			AssetsHost: "https://go-echarts.github.io/go-echarts-assets/assets/",
			CacheTTL:   5 * time.Minute,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
		},
		Security: SecurityConfig{
			EnableRateLimit: true,
			RateLimitRPS:    50,
			RateLimitBurst:  20,
			AllowedOrigins:  []string{"http://localhost:8501"},
			TrustedProxies:  []string{"127.0.0.1"},
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if set), then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnvString("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Dataset.FallbackFile = getEnvString("DATASET_FALLBACK_FILE", c.Dataset.FallbackFile)
	c.Dataset.CacheDir = getEnvString("DATASET_CACHE_DIR", c.Dataset.CacheDir)
	c.Dataset.MaxUploadBytes = int64(getEnvInt("DATASET_MAX_UPLOAD_BYTES", int(c.Dataset.MaxUploadBytes)))
	c.Dataset.UploadTTL = getEnvDuration("DATASET_UPLOAD_TTL", c.Dataset.UploadTTL)
	c.Dataset.MaxDatasets = getEnvInt("DATASET_MAX_DATASETS", c.Dataset.MaxDatasets)
	c.Dataset.TableRowLimit = getEnvInt("DATASET_TABLE_ROW_LIMIT", c.Dataset.TableRowLimit)
	c.Dataset.LoadTimeout = getEnvDuration("DATASET_LOAD_TIMEOUT", c.Dataset.LoadTimeout)
	c.Dataset.FallbackRetry = getEnvDuration("DATASET_FALLBACK_RETRY", c.Dataset.FallbackRetry)

	c.Charts.Theme = getEnvString("CHARTS_THEME", c.Charts.Theme)
	c.Charts.AssetsHost = getEnvString("CHARTS_ASSETS_HOST", c.Charts.AssetsHost)
	c.Charts.CacheTTL = getEnvDuration("CHARTS_CACHE_TTL", c.Charts.CacheTTL)

	c.Logger.Level = getEnvString("LOG_LEVEL", c.Logger.Level)
	c.Logger.Format = getEnvString("LOG_FORMAT", c.Logger.Format)

	c.Security.EnableRateLimit = getEnvBool("SECURITY_RATE_LIMIT_ENABLED", c.Security.EnableRateLimit)
	c.Security.RateLimitRPS = getEnvInt("SECURITY_RATE_LIMIT_RPS", c.Security.RateLimitRPS)
	c.Security.RateLimitBurst = getEnvInt("SECURITY_RATE_LIMIT_BURST", c.Security.RateLimitBurst)
	c.Security.AllowedOrigins = getEnvStringSlice("SECURITY_ALLOWED_ORIGINS", c.Security.AllowedOrigins)
	c.Security.TrustedProxies = getEnvStringSlice("SECURITY_TRUSTED_PROXIES", c.Security.TrustedProxies)
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if strings.TrimSpace(c.Dataset.FallbackFile) == "" {
		return fmt.Errorf("fallback dataset path cannot be empty")
	}

	if c.Dataset.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}

	if c.Dataset.MaxDatasets <= 0 {
		return fmt.Errorf("max datasets must be positive")
	}

	if c.Dataset.TableRowLimit < 0 {
		return fmt.Errorf("table row limit cannot be negative")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
