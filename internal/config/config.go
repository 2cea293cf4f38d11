package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for xdeploy
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
	Deploy   DeployConfig
	Verify   VerifyConfig
	Networks NetworksConfig
}

// ServerConfig holds HTTP server configuration for the report API
type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	IdleTimeout    int // seconds
	RequestTimeout int // seconds
	TrustProxy     bool
	APIKeys        []string // empty = open API
	RateLimit      RateLimitConfig
}

// RateLimitConfig holds per-client rate limiting for the report API
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool
	Addr    string // optional listener for `run`
}

// DeployConfig holds deployer settings
type DeployConfig struct {
	Factory     string // "arachnid" or "create2deployer"
	GasLimit    uint64 // 0 = estimate
	MaxAttempts int
	Backoff     BackoffConfig
	RPCTimeout  time.Duration
	Concurrency int // max concurrent chain pipelines, 0 = unbounded
}

// VerifyConfig holds verification dispatcher settings
type VerifyConfig struct {
	Enabled      bool
	SettleDelay  time.Duration
	MaxAttempts  int
	Backoff      BackoffConfig
	PollInterval time.Duration
	PollTimeout  time.Duration
	HTTPTimeout  time.Duration
	RateLimit    float64 // requests per second per explorer
}

// BackoffConfig holds exponential backoff bounds
type BackoffConfig struct {
	Initial time.Duration
	Max     time.Duration
}

// NetworksConfig points at the optional network file merged over the built-in catalog
type NetworksConfig struct {
	File string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("XDEPLOY_PORT", 8080),
			Host:           getEnv("XDEPLOY_HOST", "0.0.0.0"),
			ReadTimeout:    getEnvInt("XDEPLOY_SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("XDEPLOY_SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:    getEnvInt("XDEPLOY_SERVER_IDLE_TIMEOUT", 120),
			RequestTimeout: getEnvInt("XDEPLOY_SERVER_REQUEST_TIMEOUT", 30),
			TrustProxy:     getEnvBool("XDEPLOY_TRUST_PROXY", false),
			APIKeys:        getEnvList("XDEPLOY_API_KEYS"),
			RateLimit: RateLimitConfig{
				Enabled:        getEnvBool("XDEPLOY_RATE_LIMIT_ENABLED", true),
				RequestsPerMin: getEnvInt("XDEPLOY_RATE_LIMIT_RPM", 120),
				BurstSize:      getEnvInt("XDEPLOY_RATE_LIMIT_BURST", 20),
			},
		},
		Storage: StorageConfig{
			Type: getEnv("XDEPLOY_STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("XDEPLOY_SQLITE_PATH", "./data/xdeploy.db"),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("XDEPLOY_LOG_LEVEL", "info"),
			Format: getEnv("XDEPLOY_LOG_FORMAT", "text"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("XDEPLOY_METRICS_ENABLED", true),
			Addr:    getEnv("XDEPLOY_METRICS_ADDR", ""),
		},
		Deploy: DeployConfig{
			Factory:     getEnv("XDEPLOY_FACTORY", "create2deployer"),
			GasLimit:    uint64(getEnvInt("XDEPLOY_GAS_LIMIT", 1_200_000)),
			MaxAttempts: getEnvInt("XDEPLOY_DEPLOY_MAX_ATTEMPTS", 5),
			Backoff: BackoffConfig{
				Initial: getEnvDuration("XDEPLOY_DEPLOY_BACKOFF_INITIAL", 2*time.Second),
				Max:     getEnvDuration("XDEPLOY_DEPLOY_BACKOFF_MAX", 30*time.Second),
			},
			RPCTimeout:  getEnvDuration("XDEPLOY_RPC_TIMEOUT", 30*time.Second),
			Concurrency: getEnvInt("XDEPLOY_CONCURRENCY", 0),
		},
		Verify: VerifyConfig{
			Enabled:     getEnvBool("XDEPLOY_VERIFY", true),
			SettleDelay: getEnvDuration("XDEPLOY_SETTLE_DELAY", 30*time.Second),
			MaxAttempts: getEnvInt("XDEPLOY_VERIFY_MAX_ATTEMPTS", 5),
			Backoff: BackoffConfig{
				Initial: getEnvDuration("XDEPLOY_VERIFY_BACKOFF_INITIAL", 5*time.Second),
				Max:     getEnvDuration("XDEPLOY_VERIFY_BACKOFF_MAX", 2*time.Minute),
			},
			PollInterval: getEnvDuration("XDEPLOY_POLL_INTERVAL", 5*time.Second),
			PollTimeout:  getEnvDuration("XDEPLOY_POLL_TIMEOUT", 5*time.Minute),
			HTTPTimeout:  getEnvDuration("XDEPLOY_HTTP_TIMEOUT", 30*time.Second),
			RateLimit:    getEnvFloat("XDEPLOY_EXPLORER_RPS", 4),
		},
		Networks: NetworksConfig{
			File: getEnv("XDEPLOY_NETWORKS_FILE", ""),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the loaded values are usable
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	switch c.Deploy.Factory {
	case "arachnid", "create2deployer":
	default:
		return fmt.Errorf("unsupported factory: %s", c.Deploy.Factory)
	}
	if c.Deploy.MaxAttempts < 1 {
		return fmt.Errorf("deploy max attempts must be at least 1, got %d", c.Deploy.MaxAttempts)
	}
	if c.Verify.MaxAttempts < 1 {
		return fmt.Errorf("verify max attempts must be at least 1, got %d", c.Verify.MaxAttempts)
	}
	if c.Verify.SettleDelay < 0 {
		return fmt.Errorf("settle delay must not be negative")
	}
	if c.Verify.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or bare seconds ("45")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
