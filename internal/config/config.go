package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kode4food/flowgate/pkg/log"
)

type (
	// Config holds configuration settings for the flow endpoint service
	Config struct {
		// API Server
		Env      string
		APIHost  string
		APIPort  int
		LogLevel string

		// Key Material & Platform Secrets
		PrivateKey     string
		PrivateKeyFile string
		Passphrase     string
		AppSecret      string
		VerifyToken    string

		// Stores & Archiving
		DatabaseURL string
		FlowsFile   string
		Redis       RedisConfig
		Archive     ArchiveConfig

		// Callback Delivery
		Callback CallbackConfig

		// Flows & Sessions
		DefaultFlowName string
		TokenCacheTTL   time.Duration
		SessionExpiry   time.Duration
		SweepInterval   time.Duration

		// Timeouts
		FlowEndpointTimeout   time.Duration
		WebhookProcessTimeout time.Duration
		ShutdownTimeout       time.Duration
	}

	// RedisConfig selects the Redis-backed token cache when Addr is set
	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}

	// ArchiveConfig selects raw webhook archival when BucketURL is set
	ArchiveConfig struct {
		BucketURL string
		Prefix    string
	}

	// CallbackConfig controls delivery of completion data to the system of
	// record
	CallbackConfig struct {
		URL        string
		Timeout    time.Duration
		MaxRetries int
		Backoff    time.Duration
	}
)

const (
	DefaultEnv      = "development"
	DefaultAPIPort  = 8080
	DefaultAPIHost  = "0.0.0.0"
	DefaultLogLevel = "info"
	MaxTCPPort      = 65535

	DefaultFlowName      = "csat-feedback"
	DefaultRedisPrefix   = "flowgate"
	DefaultArchivePrefix = "webhooks/"

	DefaultFlowEndpointTimeout   = 2500 * time.Millisecond
	DefaultWebhookProcessTimeout = 30 * time.Second
	DefaultShutdownTimeout       = 10 * time.Second
	DefaultCallbackTimeout       = 5 * time.Second
	DefaultCallbackMaxRetries    = 3
	DefaultCallbackBackoff       = time.Second
	DefaultTokenCacheTTL         = time.Hour
	DefaultSessionExpiry         = 24 * time.Hour
	DefaultSweepInterval         = 5 * time.Minute

	MaxTimeout            = time.Hour
	MaxCallbackMaxRetries = 100
	MaxCallbackBackoff    = 10 * time.Minute
	MaxRetention          = 365 * 24 * time.Hour
	MaxRedisDB            = 15
)

var (
	ErrInvalidAPIPort       = errors.New("invalid API port")
	ErrInvalidLogLevel      = errors.New("invalid log level")
	ErrInvalidTimeout       = errors.New("timeout must be positive")
	ErrInvalidCallbackURL   = errors.New("invalid callback URL")
	ErrInvalidBackoff       = errors.New("callback backoff must be positive")
	ErrInvalidTokenCacheTTL = errors.New("token cache TTL must be positive")
	ErrInvalidSessionExpiry = errors.New("session expiry must be positive")
	ErrInvalidSweepInterval = errors.New("sweep interval must be positive")
	ErrDefaultFlowNameEmpty = errors.New("default flow name empty")
	ErrPrivateKeyMissing    = errors.New("private key not configured")
	ErrPrivateKeyUnreadable = errors.New("private key file unreadable")
	ErrInvalidMaxRetries    = errors.New(
		"callback max retries cannot be negative",
	)
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// endpoint, callback delivery, and session handling
func NewDefaultConfig() *Config {
	return &Config{
		Env:      DefaultEnv,
		APIPort:  DefaultAPIPort,
		APIHost:  DefaultAPIHost,
		LogLevel: DefaultLogLevel,
		Redis: RedisConfig{
			Prefix: DefaultRedisPrefix,
		},
		Archive: ArchiveConfig{
			Prefix: DefaultArchivePrefix,
		},
		Callback: CallbackConfig{
			Timeout:    DefaultCallbackTimeout,
			MaxRetries: DefaultCallbackMaxRetries,
			Backoff:    DefaultCallbackBackoff,
		},
		DefaultFlowName:       DefaultFlowName,
		TokenCacheTTL:         DefaultTokenCacheTTL,
		SessionExpiry:         DefaultSessionExpiry,
		SweepInterval:         DefaultSweepInterval,
		FlowEndpointTimeout:   DefaultFlowEndpointTimeout,
		WebhookProcessTimeout: DefaultWebhookProcessTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
	}
}

// LoadDotEnv loads variables from the named .env file into the process
// environment without overriding values that are already set. A missing
// file is not an error
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv populates configuration values from environment variables.
// Durations are expressed in milliseconds. Returns an error if any env var
// cannot be parsed.
func (c *Config) LoadFromEnv() error {
	loadEnvString("ENV", &c.Env)
	loadEnvString("API_HOST", &c.APIHost)
	loadEnvString("LOG_LEVEL", &c.LogLevel)
	loadEnvString("PRIVATE_KEY", &c.PrivateKey)
	loadEnvString("PRIVATE_KEY_FILE", &c.PrivateKeyFile)
	loadEnvString("PASSPHRASE", &c.Passphrase)
	loadEnvString("META_APP_SECRET", &c.AppSecret)
	loadEnvString("META_VERIFY_TOKEN", &c.VerifyToken)
	loadEnvString("DATABASE_URL", &c.DatabaseURL)
	loadEnvString("FLOWS_FILE", &c.FlowsFile)
	loadEnvString("CALLBACK_WEBHOOK_URL", &c.Callback.URL)
	loadEnvString("DEFAULT_FLOW_NAME", &c.DefaultFlowName)
	loadEnvString("REDIS_ADDR", &c.Redis.Addr)
	loadEnvString("REDIS_PASSWORD", &c.Redis.Password)
	loadEnvString("REDIS_PREFIX", &c.Redis.Prefix)
	loadEnvString("ARCHIVE_BUCKET_URL", &c.Archive.BucketURL)
	loadEnvString("ARCHIVE_PREFIX", &c.Archive.Prefix)

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"REDIS_DB", &c.Redis.DB, -1, MaxRedisDB,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"CALLBACK_MAX_RETRIES", &c.Callback.MaxRetries,
		-1, MaxCallbackMaxRetries,
	); err != nil {
		return err
	}

	durations := []struct {
		key string
		dst *time.Duration
		max time.Duration
	}{
		{"FLOW_ENDPOINT_TIMEOUT", &c.FlowEndpointTimeout, MaxTimeout},
		{"WEBHOOK_PROCESS_TIMEOUT", &c.WebhookProcessTimeout, MaxTimeout},
		{"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout, MaxTimeout},
		{"CALLBACK_TIMEOUT", &c.Callback.Timeout, MaxTimeout},
		{"CALLBACK_BACKOFF", &c.Callback.Backoff, MaxCallbackBackoff},
		{"TOKEN_CACHE_TTL", &c.TokenCacheTTL, MaxRetention},
		{"SESSION_EXPIRY", &c.SessionExpiry, MaxRetention},
		{"SWEEP_INTERVAL", &c.SweepInterval, MaxRetention},
	}
	for _, d := range durations {
		if err := loadEnvMillis(d.key, d.dst, d.max); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: %s", ErrInvalidLogLevel, c.LogLevel)
	}

	timeouts := map[string]time.Duration{
		"flow endpoint":   c.FlowEndpointTimeout,
		"webhook process": c.WebhookProcessTimeout,
		"shutdown":        c.ShutdownTimeout,
		"callback":        c.Callback.Timeout,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidTimeout, name)
		}
	}

	if c.Callback.URL != "" {
		u, err := url.Parse(c.Callback.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") ||
			u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidCallbackURL, c.Callback.URL)
		}
	}

	if c.Callback.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}

	if c.Callback.Backoff <= 0 {
		return ErrInvalidBackoff
	}

	if c.TokenCacheTTL <= 0 {
		return ErrInvalidTokenCacheTTL
	}

	if c.SessionExpiry <= 0 {
		return ErrInvalidSessionExpiry
	}

	if c.SweepInterval <= 0 {
		return ErrInvalidSweepInterval
	}

	if strings.TrimSpace(c.DefaultFlowName) == "" {
		return ErrDefaultFlowNameEmpty
	}

	return nil
}

// PrivateKeyPEM returns the PEM-encoded private key, either inline from
// PRIVATE_KEY (escaped newlines allowed) or read from PRIVATE_KEY_FILE
func (c *Config) PrivateKeyPEM() (string, error) {
	if c.PrivateKey != "" {
		return strings.ReplaceAll(c.PrivateKey, `\n`, "\n"), nil
	}
	if c.PrivateKeyFile == "" {
		return "", ErrPrivateKeyMissing
	}
	data, err := os.ReadFile(c.PrivateKeyFile)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPrivateKeyUnreadable, err)
	}
	return string(data), nil
}

// IsProduction reports whether the service runs in the production
// environment
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func loadEnvString(key string, dst *string) {
	if s := os.Getenv(key); s != "" {
		*dst = s
	}
}

// loadEnvMillis reads key as a millisecond count and stores it in *dst as a
// duration, using the same range rules as loadEnvInt
func loadEnvMillis(key string, dst *time.Duration, max time.Duration) error {
	ms := dst.Milliseconds()
	if err := loadEnvInt(key, &ms, 0, max.Milliseconds()); err != nil {
		return err
	}
	*dst = time.Duration(ms) * time.Millisecond
	return nil
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]. Returns an error if
// the value cannot be parsed or falls outside the valid range.
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}
