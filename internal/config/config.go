// Package config loads and validates app config from env and an optional
// .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment. The hub
// and the terminal agent share one config type; each binary validates only
// the fields it needs.
type Config struct {
	// HTTPAddr is the address the hub HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN for the operators table.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or a path
	// to a key file; used with JWT_PUBLIC_KEY.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or a path to a key file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "clinic-sync-hub").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "clinic-sync-terminals").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "12h"; a clinic shift).
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// CORSAllowOrigins is a comma-separated list of allowed browser origins
	// for the hub API. Empty allows none beyond same-origin.
	CORSAllowOrigins string `mapstructure:"CORS_ALLOW_ORIGINS"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// Telemetry (optional). When Kafka brokers are set, the hub mirrors
	// connect/disconnect ops events to Kafka.
	// KafkaBrokers is a comma-separated list of broker addresses.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the topic for ops events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// LokiURL is used by cmd/worker to push ops events to Loki.
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for cmd/worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// Terminal-agent settings.
	// HubURL is the base URL of the presence hub (e.g. http://localhost:8080).
	HubURL string `mapstructure:"HUB_URL"`
	// SessionDir is the directory holding the terminal's persisted visit
	// session.
	SessionDir string `mapstructure:"SESSION_DIR"`
	// TerminalUsername/TerminalPassword are the operator credentials the
	// terminal agent logs in with.
	TerminalUsername string `mapstructure:"TERMINAL_USERNAME"`
	TerminalPassword string `mapstructure:"TERMINAL_PASSWORD"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored (e.g. in CI); env vars
// override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "clinic-sync-hub")
	v.SetDefault("JWT_AUDIENCE", "clinic-sync-terminals")
	v.SetDefault("JWT_ACCESS_TTL", "12h")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("CORS_ALLOW_ORIGINS", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "clinic-sync-ops")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "clinic-sync-ops-worker")
	v.SetDefault("HUB_URL", "http://localhost:8080")
	v.SetDefault("SESSION_DIR", ".")
	v.SetDefault("TERMINAL_USERNAME", "")
	v.SetDefault("TERMINAL_PASSWORD", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 12h if unset or
// invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 12 * time.Hour
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset
// or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// KafkaBrokersList returns broker addresses from the comma-separated config.
// A non-empty list means ops telemetry is enabled.
func (c *Config) KafkaBrokersList() []string {
	return splitCSV(c.KafkaBrokers)
}

// CORSAllowOriginsList returns allowed origins from the comma-separated
// config.
func (c *Config) CORSAllowOriginsList() []string {
	return splitCSV(c.CORSAllowOrigins)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
