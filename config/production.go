// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database    DatabaseConfig    `json:"database"`
	Server      ServerConfig      `json:"server"`
	Security    SecurityConfig    `json:"security"`
	JWT         JWTConfig         `json:"jwt"`
	Provider    ProviderConfig    `json:"provider"`
	Vault       VaultConfig       `json:"vault"`
	Scheduler   SchedulerConfig   `json:"scheduler"`
	Dispatcher  DispatcherConfig  `json:"dispatcher"`
	RateLimiter RateLimiterConfig `json:"rate_limiter"`
	Webhook     WebhookConfig     `json:"webhook"`
	Health      HealthConfig      `json:"health"`
	Logging     LoggingConfig     `json:"logging"`
	Metrics     MetricsConfig     `json:"metrics"`
	Cache       CacheConfig       `json:"cache"`
	Deployment  DeploymentConfig  `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	EnableMetrics   bool          `json:"enable_metrics"`
	TrustedProxies  []string      `json:"trusted_proxies"`
	ProxyHeader     string        `json:"proxy_header"`
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`

	// HTTP rate limiting (distinct from per-account send pacing)
	GlobalRateLimit int           `json:"global_rate_limit"` // requests per window
	RateLimitWindow time.Duration `json:"rate_limit_window"`
}

type JWTConfig struct {
	SecretKey       string        `json:"secret_key"`
	AccessTokenTTL  time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl"`
	Issuer          string        `json:"issuer"`
	Audience        string        `json:"audience"`
}

// ProviderConfig configures outbound mail provider backends
type ProviderConfig struct {
	// Default backend for accounts without an explicit provider: gmail, ses, mock
	DefaultBackend string        `json:"default_backend"`
	Timeout        time.Duration `json:"timeout"`

	// Gmail-style REST API
	GmailAPIBase  string `json:"gmail_api_base"`
	GmailTokenURL string `json:"gmail_token_url"`
	GmailClientID string `json:"gmail_client_id"`
	GmailSecret   string `json:"gmail_secret"`

	// SES
	SESRegion    string `json:"ses_region"`
	SESAccessKey string `json:"ses_access_key"`
	SESSecretKey string `json:"ses_secret_key"`

	// Circuit breaker around provider calls
	BreakerMaxFailures  uint32        `json:"breaker_max_failures"`
	BreakerOpenInterval time.Duration `json:"breaker_open_interval"`
}

// VaultConfig configures credential encryption at rest
type VaultConfig struct {
	// 32-byte key, hex encoded. The process must not start without it.
	EncryptionKey string        `json:"-"`
	RefreshMargin time.Duration `json:"refresh_margin"`
}

type SchedulerConfig struct {
	Interval        time.Duration `json:"interval"`
	RampUpVolume    int           `json:"ramp_up_volume"` // first-day cap for fresh campaigns
	JitterMin       time.Duration `json:"jitter_min"`
	JitterMax       time.Duration `json:"jitter_max"`
	DefaultTimezone string        `json:"default_timezone"`
	StartHour       int           `json:"start_hour"`
	EndHour         int           `json:"end_hour"`
}

type DispatcherConfig struct {
	Interval            time.Duration `json:"interval"`
	BatchSize           int           `json:"batch_size"`
	SendTimeout         time.Duration `json:"send_timeout"`
	RetryBackoffBase    time.Duration `json:"retry_backoff_base"`
	RequeueDelay        time.Duration `json:"requeue_delay"`
	StaleClaimThreshold time.Duration `json:"stale_claim_threshold"`
	PerAccountRate      float64       `json:"per_account_rate"`  // sends per second
	PerAccountBurst     int           `json:"per_account_burst"` // token bucket burst
}

// RateLimiterConfig bounds sends per account over a sliding window
type RateLimiterConfig struct {
	Store         string        `json:"store"` // redis, memory
	Limit         int           `json:"limit"` // sends per window per account
	Window        time.Duration `json:"window"`
	Retention     time.Duration `json:"retention"`      // idle identities older than this are swept
	MaxIdentities int           `json:"max_identities"` // memory store eviction bound
}

type WebhookConfig struct {
	// HMAC-SHA256 signing secret for delivery event callbacks
	SigningSecret string `json:"-"`
	// Signature verification may be relaxed only outside production
	RequireSignature bool   `json:"require_signature"`
	SignatureHeader  string `json:"signature_header"`
}

// HealthConfig holds auto-pause thresholds for the campaign health monitor
type HealthConfig struct {
	Window              time.Duration `json:"window"`
	BounceRateThreshold float64       `json:"bounce_rate_threshold"`
	SpamRateThreshold   float64       `json:"spam_rate_threshold"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Format     string `json:"format"` // json, text
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`

	// Pipeline worker log (scheduler and dispatcher cycles)
	EnablePipelineLog bool   `json:"enable_pipeline_log"`
	PipelineLogPath   string `json:"pipeline_log_path"`

	// Audit Logs
	EnableAuditLog bool   `json:"enable_audit_log"`
	AuditLogPath   string `json:"audit_log_path"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`

	CollectDBMetrics  bool `json:"collect_db_metrics"`
	CollectAppMetrics bool `json:"collect_app_metrics"`
}

type CacheConfig struct {
	Enabled     bool   `json:"enabled"`
	RedisURL    string `json:"redis_url"`
	RedisDB     int    `json:"redis_db"`
	RedisPrefix string `json:"redis_prefix"`
}

type DeploymentConfig struct {
	Domain      string `json:"domain"`
	APIDomain   string `json:"api_domain"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "postgres"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024), // 4MB
			EnableMetrics:   getEnvBool("SERVER_ENABLE_METRICS", true),
			TrustedProxies:  getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:     getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
		},
		Security: SecurityConfig{
			AllowedOrigins:   getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"https://susanoo.dev", "https://api.susanoo.dev"}),
			AllowedMethods:   getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			CORSMaxAge:       getEnvInt("CORS_MAX_AGE", 86400),
			GlobalRateLimit:  getEnvInt("GLOBAL_RATE_LIMIT", 2000),
			RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
		},
		JWT: JWTConfig{
			SecretKey:       getEnvString("JWT_SECRET_KEY", ""),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TOKEN_TTL", 7*24*time.Hour),
			Issuer:          getEnvString("JWT_ISSUER", "susanoo"),
			Audience:        getEnvString("JWT_AUDIENCE", "susanoo-api"),
		},
		Provider: ProviderConfig{
			DefaultBackend:      getEnvString("PROVIDER_DEFAULT_BACKEND", "mock"),
			Timeout:             getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
			GmailAPIBase:        getEnvString("PROVIDER_GMAIL_API_BASE", "https://gmail.googleapis.com"),
			GmailTokenURL:       getEnvString("PROVIDER_GMAIL_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			GmailClientID:       getEnvString("PROVIDER_GMAIL_CLIENT_ID", ""),
			GmailSecret:         getEnvString("PROVIDER_GMAIL_SECRET", ""),
			SESRegion:           getEnvString("PROVIDER_SES_REGION", "us-east-1"),
			SESAccessKey:        getEnvString("PROVIDER_SES_ACCESS_KEY", ""),
			SESSecretKey:        getEnvString("PROVIDER_SES_SECRET_KEY", ""),
			BreakerMaxFailures:  uint32(getEnvInt("PROVIDER_BREAKER_MAX_FAILURES", 5)),
			BreakerOpenInterval: getEnvDuration("PROVIDER_BREAKER_OPEN_INTERVAL", 1*time.Minute),
		},
		Vault: VaultConfig{
			EncryptionKey: getEnvString("VAULT_ENCRYPTION_KEY", ""),
			RefreshMargin: getEnvDuration("VAULT_REFRESH_MARGIN", 5*time.Minute),
		},
		Scheduler: SchedulerConfig{
			Interval:        getEnvDuration("SCHEDULER_INTERVAL", 15*time.Minute),
			RampUpVolume:    getEnvInt("SCHEDULER_RAMP_UP_VOLUME", 10),
			JitterMin:       getEnvDuration("SCHEDULER_JITTER_MIN", 1*time.Minute),
			JitterMax:       getEnvDuration("SCHEDULER_JITTER_MAX", 5*time.Minute),
			DefaultTimezone: getEnvString("SCHEDULER_DEFAULT_TIMEZONE", "UTC"),
			StartHour:       getEnvInt("SCHEDULER_START_HOUR", 9),
			EndHour:         getEnvInt("SCHEDULER_END_HOUR", 17),
		},
		Dispatcher: DispatcherConfig{
			Interval:            getEnvDuration("DISPATCHER_INTERVAL", 1*time.Minute),
			BatchSize:           getEnvInt("DISPATCHER_BATCH_SIZE", 100),
			SendTimeout:         getEnvDuration("DISPATCHER_SEND_TIMEOUT", 30*time.Second),
			RetryBackoffBase:    getEnvDuration("DISPATCHER_RETRY_BACKOFF_BASE", 5*time.Minute),
			RequeueDelay:        getEnvDuration("DISPATCHER_REQUEUE_DELAY", 2*time.Minute),
			StaleClaimThreshold: getEnvDuration("DISPATCHER_STALE_CLAIM_THRESHOLD", 15*time.Minute),
			PerAccountRate:      getEnvFloat("DISPATCHER_PER_ACCOUNT_RATE", 0.5),
			PerAccountBurst:     getEnvInt("DISPATCHER_PER_ACCOUNT_BURST", 1),
		},
		RateLimiter: RateLimiterConfig{
			Store:         getEnvString("RATE_LIMITER_STORE", "redis"),
			Limit:         getEnvInt("RATE_LIMITER_LIMIT", 100),
			Window:        getEnvDuration("RATE_LIMITER_WINDOW", 24*time.Hour),
			Retention:     getEnvDuration("RATE_LIMITER_RETENTION", 48*time.Hour),
			MaxIdentities: getEnvInt("RATE_LIMITER_MAX_IDENTITIES", 10000),
		},
		Webhook: WebhookConfig{
			SigningSecret:    getEnvString("WEBHOOK_SIGNING_SECRET", ""),
			RequireSignature: getEnvBool("WEBHOOK_REQUIRE_SIGNATURE", true),
			SignatureHeader:  getEnvString("WEBHOOK_SIGNATURE_HEADER", "X-Webhook-Signature"),
		},
		Health: HealthConfig{
			Window:              getEnvDuration("HEALTH_WINDOW", 24*time.Hour),
			BounceRateThreshold: getEnvFloat("HEALTH_BOUNCE_RATE_THRESHOLD", 0.05),
			SpamRateThreshold:   getEnvFloat("HEALTH_SPAM_RATE_THRESHOLD", 0.01),
		},
		Logging: LoggingConfig{
			Level:             getEnvString("LOG_LEVEL", "info"),
			Format:            getEnvString("LOG_FORMAT", "json"),
			Output:            getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:          getEnvString("LOG_FILE_PATH", "/var/log/susanoo/app.log"),
			MaxSize:           getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:        getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:            getEnvInt("LOG_MAX_AGE", 30),
			Compress:          getEnvBool("LOG_COMPRESS", true),
			EnablePipelineLog: getEnvBool("LOG_ENABLE_PIPELINE", true),
			PipelineLogPath:   getEnvString("LOG_PIPELINE_PATH", "/var/log/susanoo/pipeline.log"),
			EnableAuditLog:    getEnvBool("LOG_ENABLE_AUDIT", true),
			AuditLogPath:      getEnvString("LOG_AUDIT_PATH", "/var/log/susanoo/audit.log"),
		},
		Metrics: MetricsConfig{
			Enabled:           getEnvBool("METRICS_ENABLED", true),
			Port:              getEnvInt("METRICS_PORT", 9090),
			Path:              getEnvString("METRICS_PATH", "/metrics"),
			CollectDBMetrics:  getEnvBool("METRICS_COLLECT_DB", true),
			CollectAppMetrics: getEnvBool("METRICS_COLLECT_APP", true),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "susanoo:"),
		},
		Deployment: DeploymentConfig{
			Domain:      getEnvString("DOMAIN", "susanoo.dev"),
			APIDomain:   getEnvString("API_DOMAIN", "api.susanoo.dev"),
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether the process runs with production settings
func (c *ProductionConfig) IsProduction() bool {
	return strings.EqualFold(c.Deployment.Environment, "production")
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value pairs
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	// Validate JWT configuration
	if cfg.JWT.SecretKey == "" {
		errors = append(errors, "JWT_SECRET_KEY is required")
	}
	if len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errors = append(errors, "JWT_ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.JWT.RefreshTokenTTL <= 0 {
		errors = append(errors, "JWT_REFRESH_TOKEN_TTL must be positive")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}

	// Validate vault configuration. Credentials are never stored without
	// encryption, so a missing or malformed key is fatal.
	if cfg.Vault.EncryptionKey == "" {
		errors = append(errors, "VAULT_ENCRYPTION_KEY is required")
	} else if raw, err := hex.DecodeString(cfg.Vault.EncryptionKey); err != nil || len(raw) != 32 {
		errors = append(errors, "VAULT_ENCRYPTION_KEY must be 32 bytes hex encoded")
	}
	if cfg.Vault.RefreshMargin <= 0 {
		errors = append(errors, "VAULT_REFRESH_MARGIN must be positive")
	}

	// Validate provider configuration
	switch cfg.Provider.DefaultBackend {
	case "gmail", "ses", "mock":
	default:
		errors = append(errors, "PROVIDER_DEFAULT_BACKEND must be one of: gmail, ses, mock")
	}
	if cfg.Provider.DefaultBackend == "ses" {
		if cfg.Provider.SESAccessKey == "" || cfg.Provider.SESSecretKey == "" {
			errors = append(errors, "PROVIDER_SES_ACCESS_KEY and PROVIDER_SES_SECRET_KEY are required for the ses backend")
		}
	}

	// Validate scheduler configuration
	if cfg.Scheduler.StartHour < 0 || cfg.Scheduler.StartHour > 23 {
		errors = append(errors, "SCHEDULER_START_HOUR must be between 0 and 23")
	}
	if cfg.Scheduler.EndHour <= cfg.Scheduler.StartHour || cfg.Scheduler.EndHour > 24 {
		errors = append(errors, "SCHEDULER_END_HOUR must be after SCHEDULER_START_HOUR and at most 24")
	}
	if cfg.Scheduler.RampUpVolume <= 0 {
		errors = append(errors, "SCHEDULER_RAMP_UP_VOLUME must be positive")
	}

	// Validate dispatcher configuration
	if cfg.Dispatcher.BatchSize <= 0 {
		errors = append(errors, "DISPATCHER_BATCH_SIZE must be positive")
	}
	if cfg.Dispatcher.RetryBackoffBase <= 0 {
		errors = append(errors, "DISPATCHER_RETRY_BACKOFF_BASE must be positive")
	}

	// Validate rate limiter configuration
	if cfg.RateLimiter.Store != "redis" && cfg.RateLimiter.Store != "memory" {
		errors = append(errors, "RATE_LIMITER_STORE must be redis or memory")
	}
	if cfg.RateLimiter.Limit <= 0 {
		errors = append(errors, "RATE_LIMITER_LIMIT must be positive")
	}
	if cfg.RateLimiter.Window <= 0 {
		errors = append(errors, "RATE_LIMITER_WINDOW must be positive")
	}

	// Validate webhook configuration. Production never runs with signature
	// verification relaxed.
	if cfg.Webhook.RequireSignature && cfg.Webhook.SigningSecret == "" {
		errors = append(errors, "WEBHOOK_SIGNING_SECRET is required when signature verification is on")
	}
	if !cfg.Webhook.RequireSignature && strings.EqualFold(getEnvString("APP_ENV", "production"), "production") {
		errors = append(errors, "WEBHOOK_REQUIRE_SIGNATURE cannot be disabled in production")
	}

	// Validate health thresholds
	if cfg.Health.BounceRateThreshold <= 0 || cfg.Health.BounceRateThreshold >= 1 {
		errors = append(errors, "HEALTH_BOUNCE_RATE_THRESHOLD must be between 0 and 1")
	}
	if cfg.Health.SpamRateThreshold <= 0 || cfg.Health.SpamRateThreshold >= 1 {
		errors = append(errors, "HEALTH_SPAM_RATE_THRESHOLD must be between 0 and 1")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled")
	}
	if cfg.RateLimiter.Store == "redis" && !cfg.Cache.Enabled {
		errors = append(errors, "CACHE_ENABLED is required for the redis rate limiter store")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
