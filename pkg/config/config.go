package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/mediahub/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	S3            S3Config            `yaml:"s3"`
	Stripe        StripeConfig        `yaml:"stripe"`
	App           AppConfig           `yaml:"app"`
	Media         MediaConfig         `yaml:"media"`
	Repair        RepairConfig        `yaml:"repair"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// DatabaseConfig selects PostgreSQL. An empty URL runs on the in-memory store.
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	ReplicaURLs string        `yaml:"replica_urls"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RedisConfig enables the shared ledger and rate limiter when URL is set
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// S3Config locates the media bucket. An empty bucket runs on the in-memory object store.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// StripeConfig holds billing credentials and the plan price ids
type StripeConfig struct {
	SecretKey        string        `yaml:"secret_key"`
	WebhookSecret    string        `yaml:"webhook_secret"`
	PricePlus        string        `yaml:"price_plus"`
	PricePro         string        `yaml:"price_pro"`
	WebhookTolerance time.Duration `yaml:"webhook_tolerance"`
}

// AppConfig holds the public URL and the operator setup key
type AppConfig struct {
	URL      string `yaml:"url"`
	SetupKey string `yaml:"setup_key"`
}

// MediaConfig is the upload policy
type MediaConfig struct {
	AllowedContentTypes []string      `yaml:"allowed_content_types"`
	MaxUploadBytes      int64         `yaml:"max_upload_bytes"`
	UploadURLTTL        time.Duration `yaml:"upload_url_ttl"`
	DownloadURLTTL      time.Duration `yaml:"download_url_ttl"`
}

// RepairConfig drives the scheduled storage repair
type RepairConfig struct {
	Schedule    string `yaml:"schedule"`
	Concurrency int    `yaml:"concurrency"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel           string  `yaml:"log_level"`
	MetricsEnabled     bool    `yaml:"metrics_enabled"`
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level parses LogLevel
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
			MaxBodyBytes:    1 << 20,
		},
		Database: DatabaseConfig{MaxConns: 20, MinConns: 2, Timeout: 5 * time.Second},
		S3:       S3Config{Region: "us-east-1"},
		Stripe:   StripeConfig{WebhookTolerance: 5 * time.Minute},
		App:      AppConfig{URL: "http://localhost:3000"},
		Media: MediaConfig{
			AllowedContentTypes: []string{"image/jpeg", "image/png", "image/heic", "video/mp4", "video/quicktime"},
			MaxUploadBytes:      300 * 1024 * 1024,
			UploadURLTTL:        15 * time.Minute,
			DownloadURLTTL:      15 * time.Minute,
		},
		Repair: RepairConfig{Schedule: "@every 6h", Concurrency: 4},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "mediahub",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1.0,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// MEDIAHUB_CONFIG_FILE, then environment variables. A .env file in the working
// directory seeds the environment without overriding variables already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("MEDIAHUB_CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile reads only defaults and the YAML file at path
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("MEDIAHUB_HOST", c.Server.Host)
	c.Server.Port = getEnv("MEDIAHUB_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("MEDIAHUB_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("MEDIAHUB_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("MEDIAHUB_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("MEDIAHUB_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.AllowedOrigins = getEnvList("MEDIAHUB_ALLOWED_ORIGINS", c.Server.AllowedOrigins)

	c.Database.URL = getEnv("MEDIAHUB_DATABASE_URL", c.Database.URL)
	c.Database.ReplicaURLs = getEnv("MEDIAHUB_DATABASE_REPLICA_URLS", c.Database.ReplicaURLs)
	c.Database.MaxConns = getEnvInt("MEDIAHUB_DATABASE_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvInt("MEDIAHUB_DATABASE_MIN_CONNS", c.Database.MinConns)

	c.Redis.URL = getEnv("MEDIAHUB_REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnv("MEDIAHUB_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("MEDIAHUB_REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getEnvInt("MEDIAHUB_REDIS_POOL_SIZE", c.Redis.PoolSize)

	c.S3.Bucket = getEnv("MEDIA_BUCKET", getEnv("MEDIAHUB_S3_BUCKET", c.S3.Bucket))
	c.S3.Region = getEnv("MEDIAHUB_S3_REGION", c.S3.Region)
	c.S3.Endpoint = getEnv("MEDIAHUB_S3_ENDPOINT", c.S3.Endpoint)
	c.S3.AccessKey = getEnv("MEDIAHUB_S3_ACCESS_KEY", c.S3.AccessKey)
	c.S3.SecretKey = getEnv("MEDIAHUB_S3_SECRET_KEY", c.S3.SecretKey)
	c.S3.UsePathStyle = getEnvBool("MEDIAHUB_S3_USE_PATH_STYLE", c.S3.UsePathStyle)

	c.Stripe.SecretKey = getEnv("STRIPE_SECRET_KEY", c.Stripe.SecretKey)
	c.Stripe.WebhookSecret = getEnv("STRIPE_WEBHOOK_SECRET", c.Stripe.WebhookSecret)
	c.Stripe.PricePlus = getEnv("STRIPE_PRICE_50GB", c.Stripe.PricePlus)
	c.Stripe.PricePro = getEnv("STRIPE_PRICE_200GB", c.Stripe.PricePro)

	c.App.URL = getEnv("APP_URL", c.App.URL)
	c.App.SetupKey = getEnv("SETUP_KEY", c.App.SetupKey)

	c.Media.AllowedContentTypes = getEnvList("MEDIAHUB_ALLOWED_CONTENT_TYPES", c.Media.AllowedContentTypes)
	c.Media.MaxUploadBytes = getEnvInt64("MEDIAHUB_MAX_UPLOAD_BYTES", c.Media.MaxUploadBytes)

	c.Repair.Schedule = getEnv("MEDIAHUB_REPAIR_SCHEDULE", c.Repair.Schedule)
	c.Repair.Concurrency = getEnvInt("MEDIAHUB_REPAIR_CONCURRENCY", c.Repair.Concurrency)

	c.Observability.LogLevel = getEnv("MEDIAHUB_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("MEDIAHUB_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("MEDIAHUB_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("MEDIAHUB_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("MEDIAHUB_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("MEDIAHUB_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("MEDIAHUB_OTEL_INSECURE", c.Observability.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Media.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}
	if len(c.Media.AllowedContentTypes) == 0 {
		return fmt.Errorf("at least one allowed content type is required")
	}
	if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("stripe webhook secret is required when a stripe secret key is set")
	}
	if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
		return fmt.Errorf("S3 access key and secret key must be set together")
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
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

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
