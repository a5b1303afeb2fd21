// Package config loads process configuration from YAML with
// environment variable overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Meta      MetaConfig      `yaml:"meta"`
	Auth      AuthConfig      `yaml:"auth"`
	Worker    WorkerConfig    `yaml:"worker"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Reports   ReportsConfig   `yaml:"reports"`
	Settings  SettingsConfig  `yaml:"settings"`
	Storage   StorageConfig   `yaml:"storage"`
	AI        AIConfig        `yaml:"ai"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Environment    string   `yaml:"environment"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// IsProduction reports whether the server runs in production mode.
// Production mode scrubs internal error details from API responses.
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis connection settings for caching and locks.
// Redis is optional: when disabled or unreachable the app runs without
// caching and falls back to PG advisory locks for leader election.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MetaConfig holds the upstream ad platform API settings
type MetaConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIVersion     string `yaml:"api_version"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// AuthConfig holds JWT authentication settings
type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
}

// WorkerConfig holds background job worker settings
type WorkerConfig struct {
	Concurrency         int `yaml:"concurrency"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

// SchedulerConfig holds the periodic beat settings
type SchedulerConfig struct {
	AlertTickSeconds   int `yaml:"alert_tick_seconds"`
	ReportTickSeconds  int `yaml:"report_tick_seconds"`
	CleanupTickHours   int `yaml:"cleanup_tick_hours"`
	JobRetentionDays   int `yaml:"job_retention_days"`
	LockTTLSeconds     int `yaml:"lock_ttl_seconds"`
}

// ReportsConfig holds report file output settings
type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

// SettingsConfig holds the runtime settings store location
type SettingsConfig struct {
	FilePath string `yaml:"file_path"`
}

// StorageConfig holds S3 archive settings for generated report files
type StorageConfig struct {
	Enabled  bool   `yaml:"enabled"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
	Prefix   string `yaml:"prefix"`
}

// AIConfig holds AI analysis provider settings
type AIConfig struct {
	Provider       string `yaml:"provider"` // "anthropic", "bedrock", or "" for built-in summaries
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Region         string `yaml:"region"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "development"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Meta.BaseURL == "" {
		cfg.Meta.BaseURL = "https://graph.facebook.com"
	}
	if cfg.Meta.APIVersion == "" {
		cfg.Meta.APIVersion = "v21.0"
	}
	if cfg.Meta.TimeoutSeconds == 0 {
		cfg.Meta.TimeoutSeconds = 30
	}
	if cfg.Auth.TokenTTLMinutes == 0 {
		cfg.Auth.TokenTTLMinutes = 480
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Worker.PollIntervalSeconds == 0 {
		cfg.Worker.PollIntervalSeconds = 2
	}
	if cfg.Scheduler.AlertTickSeconds == 0 {
		cfg.Scheduler.AlertTickSeconds = 900
	}
	if cfg.Scheduler.ReportTickSeconds == 0 {
		cfg.Scheduler.ReportTickSeconds = 60
	}
	if cfg.Scheduler.CleanupTickHours == 0 {
		cfg.Scheduler.CleanupTickHours = 24
	}
	if cfg.Scheduler.JobRetentionDays == 0 {
		cfg.Scheduler.JobRetentionDays = 30
	}
	if cfg.Scheduler.LockTTLSeconds == 0 {
		cfg.Scheduler.LockTTLSeconds = 120
	}
	if cfg.Reports.Dir == "" {
		cfg.Reports.Dir = "exports"
	}
	if cfg.Settings.FilePath == "" {
		cfg.Settings.FilePath = "settings.json"
	}
	if cfg.Storage.S3Region == "" {
		cfg.Storage.S3Region = "us-east-1"
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 120
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://api.anthropic.com"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Server.Environment = v
	}

	// Database override (critical for container deployment where
	// config.yaml carries local defaults)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("META_BASE_URL"); v != "" {
		cfg.Meta.BaseURL = v
	}
	if v := os.Getenv("META_API_VERSION"); v != "" {
		cfg.Meta.APIVersion = v
	}

	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	if v := os.Getenv("REPORTS_DIR"); v != "" {
		cfg.Reports.Dir = v
	}
	if v := os.Getenv("SETTINGS_FILE"); v != "" {
		cfg.Settings.FilePath = v
	}

	if v := os.Getenv("STORAGE_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
		cfg.Storage.Enabled = true
	}
	if v := os.Getenv("STORAGE_S3_REGION"); v != "" {
		cfg.Storage.S3Region = v
	}

	if v := os.Getenv("AI_PROVIDER"); v != "" {
		cfg.AI.Provider = v
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}

	return cfg, nil
}

// MetaTimeout returns the configured upstream request timeout.
func (c *Config) MetaTimeout() time.Duration {
	return time.Duration(c.Meta.TimeoutSeconds) * time.Second
}

// TokenTTL returns the configured JWT lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}
