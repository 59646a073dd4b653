// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (COVERLINE_ prefix)
//  2. Config file (~/.coverline/config.yaml or --config)
//  3. Default values
//
// Sensitive values (database password, JWT secret) are never logged.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation, checked with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the SSL mode is not recognized.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrMissingJWTSecret indicates the JWT signing secret is not set.
	ErrMissingJWTSecret = errors.New("missing JWT secret")

	// ErrWeakJWTSecret indicates the JWT signing secret is too short.
	ErrWeakJWTSecret = errors.New("JWT secret too short")

	// ErrInvalidMaxTurns indicates the agent turn ceiling is out of range.
	ErrInvalidMaxTurns = errors.New("invalid max turns")

	// ErrInvalidRetrievalTopK indicates the retrieval top-K is out of range.
	ErrInvalidRetrievalTopK = errors.New("invalid retrieval top-k")
)

const (
	// DefaultModelName is the provider-qualified default chat model.
	DefaultModelName = "googleai/gemini-2.5-flash"

	// DefaultEmbedderModel is the default embedding model. It outputs 3072
	// dimensions by default but supports truncation to 768; the
	// document_chunks schema uses 768 (see knowledge.VectorDimension).
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultMaxTurns bounds the agent's tool-call loop per turn.
	DefaultMaxTurns = 5

	// MaxAllowedTurns is the absolute ceiling for the tool-call loop.
	MaxAllowedTurns = 20

	// DefaultRetrievalTopK is the number of passages returned per
	// retrieval query.
	DefaultRetrievalTopK = 10

	// MinJWTSecretLength is the minimum accepted JWT secret length.
	MinJWTSecretLength = 32
)

// Config holds all application configuration.
type Config struct {
	// Server
	Addr string `mapstructure:"addr"`

	// AI
	ModelName     string `mapstructure:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model"`

	// Agent
	MaxTurns      int `mapstructure:"max_turns"`
	RetrievalTopK int `mapstructure:"retrieval_top_k"`

	// Auth
	JWTSecret   string `mapstructure:"jwt_secret"`
	TokenTTLHrs int    `mapstructure:"token_ttl_hours"`

	// PostgreSQL
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Observability (optional; empty endpoint disables tracing)
	OtelEndpoint    string `mapstructure:"otel_endpoint"`
	OtelServiceName string `mapstructure:"otel_service_name"`
	OtelEnvironment string `mapstructure:"otel_environment"`
}

// Load reads configuration from file and environment.
// configFile may be empty, in which case only defaults and environment apply
// (a missing config file is not an error).
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("addr", "127.0.0.1:8080")
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("max_turns", DefaultMaxTurns)
	v.SetDefault("retrieval_top_k", DefaultRetrievalTopK)
	v.SetDefault("token_ttl_hours", 24)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "coverline")
	v.SetDefault("postgres_dbname", "coverline")
	v.SetDefault("postgres_sslmode", "disable")
	v.SetDefault("otel_service_name", "coverline")

	v.SetEnvPrefix("COVERLINE")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.coverline")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && configFile != "" {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks all fields a serving process depends on.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidEmbedderModel)
	}
	if c.MaxTurns <= 0 || c.MaxTurns > MaxAllowedTurns {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidMaxTurns, c.MaxTurns, MaxAllowedTurns)
	}
	if c.RetrievalTopK <= 0 || c.RetrievalTopK > 100 {
		return fmt.Errorf("%w: %d (must be 1..100)", ErrInvalidRetrievalTopK, c.RetrievalTopK)
	}

	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if len(c.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("%w: need at least %d bytes", ErrWeakJWTSecret, MinJWTSecretLength)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return ErrInvalidPostgresDBName
	}
	switch c.PostgresSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}

// PostgresURL returns the postgres:// connection URL, suitable for both
// pgxpool and golang-migrate.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	if c.PostgresUser != "" {
		if c.PostgresPassword != "" {
			u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
		} else {
			u.User = url.User(c.PostgresUser)
		}
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
