// Package config provides configuration management for Vitrine.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for Vitrine.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Storage selects where conversation memory is persisted.
	Storage StorageConfig `mapstructure:"storage"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`

	// Conversation bounds per-session memory.
	Conversation ConversationConfig `mapstructure:"conversation"`

	// Catalog configures the catalog search and suggestion capabilities.
	Catalog CatalogConfig `mapstructure:"catalog"`

	// Retrieval configures the fallback tiers.
	Retrieval RetrievalConfig `mapstructure:"retrieval"`

	// Ranking configures the diversity-constrained ranker.
	Ranking RankingConfig `mapstructure:"ranking"`

	// Generation configures the generative language service.
	Generation GenerationConfig `mapstructure:"generation"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`

	// WebSocket configures the chat websocket endpoint.
	WebSocket WebSocketConfig `mapstructure:"websocket"`

	// RateLimit throttles API requests per client address.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig holds per-client API throttling settings.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// RequestsPerSecond is the sustained rate allowed per client.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`

	// Burst is the bucket size per client.
	Burst int `mapstructure:"burst" validate:"min=1"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// RequestTimeout bounds a single API request, turn included.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// WebSocketConfig holds chat websocket settings.
type WebSocketConfig struct {
	// Enabled exposes /api/v1/sessions/{sessionID}/ws.
	Enabled bool `mapstructure:"enabled"`

	// MaxConnections caps concurrent websocket clients.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// PingInterval is the keepalive ping period.
	PingInterval time.Duration `mapstructure:"ping_interval"`

	// AllowedOrigins restricts the websocket handshake origin. Empty allows same-host only.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// StorageConfig holds persistence settings for conversation memory.
type StorageConfig struct {
	// Type is the storage backend (memory, badger, redis, postgres).
	Type string `mapstructure:"type" validate:"oneof=memory badger redis postgres"`

	// Badger is the BadgerDB configuration.
	Badger BadgerConfig `mapstructure:"badger"`

	// Redis is the Redis configuration.
	Redis RedisConfig `mapstructure:"redis"`

	// Postgres is the PostgreSQL configuration.
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	Path              string `mapstructure:"path"`
	SyncWrites        bool   `mapstructure:"sync_writes"`
	ValueLogFileSize  int64  `mapstructure:"value_log_file_size"`
	NumVersionsToKeep int    `mapstructure:"num_versions_to_keep"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"min=0"`

	// KeyPrefix namespaces every key written by Vitrine.
	KeyPrefix string `mapstructure:"key_prefix"`

	// SessionTTL expires idle session records. Zero keeps them forever.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// PostgresConfig holds PostgreSQL settings.
type PostgresConfig struct {
	// DSN is the connection string understood by pgx.
	DSN string `mapstructure:"dsn"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	Enabled    bool              `mapstructure:"enabled"`
	Exporter   string            `mapstructure:"exporter" validate:"oneof=otlp"`
	Endpoint   string            `mapstructure:"endpoint"`
	Headers    map[string]string `mapstructure:"headers"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	Sampler    string            `mapstructure:"sampler" validate:"oneof=always_on always_off ratio"`
	SampleRate float64           `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// ConversationConfig bounds per-session memory.
type ConversationConfig struct {
	// ContextStackSize caps the number of context frames kept per session.
	ContextStackSize int `mapstructure:"context_stack_size" validate:"min=1"`

	// HistoryLimit caps the number of messages kept per session.
	HistoryLimit int `mapstructure:"history_limit" validate:"min=2"`

	// SignalLimit caps the number of behavior signals kept per session.
	SignalLimit int `mapstructure:"signal_limit" validate:"min=1"`

	// CacheSize is the number of sessions held in the in-process LRU in front
	// of a persistent backend.
	CacheSize int `mapstructure:"cache_size" validate:"min=1"`

	// CarryOverLimit is how many previously shown products may seed a new turn.
	CarryOverLimit int `mapstructure:"carry_over_limit" validate:"min=0"`
}

// CatalogConfig configures the catalog search and suggestion capabilities.
type CatalogConfig struct {
	// Mode selects the backend (static, http).
	Mode string `mapstructure:"mode" validate:"oneof=static http"`

	// BaseURL is the catalog service root for mode http.
	BaseURL string `mapstructure:"base_url"`

	// FixturePath is the YAML product list for mode static.
	FixturePath string `mapstructure:"fixture_path"`

	// Timeout bounds each search or suggestion call.
	Timeout time.Duration `mapstructure:"timeout"`

	// RateLimit is the sustained requests per second sent to the catalog.
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`

	// Burst is the rate limiter burst.
	Burst int `mapstructure:"burst" validate:"min=1"`

	// CacheTTL enables the redis search cache when positive.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RetrievalConfig configures the fallback tiers.
type RetrievalConfig struct {
	// CorrectionThreshold is the minimum similarity for a spelling correction.
	CorrectionThreshold float64 `mapstructure:"correction_threshold" validate:"gt=0,lte=1"`

	// Vocabulary is the fixed term list used by the correction tier.
	Vocabulary []string `mapstructure:"vocabulary"`

	// MaxSuggestions is how many alternate terms the reformulation tier joins.
	MaxSuggestions int `mapstructure:"max_suggestions" validate:"min=1"`
}

// RankingConfig configures the diversity-constrained ranker.
type RankingConfig struct {
	// TopN is the size of the ranked window handed to the manifest.
	TopN int `mapstructure:"top_n" validate:"min=1"`

	// TopK is the size of the headline subset.
	TopK int `mapstructure:"top_k" validate:"min=1"`

	// PerStoreCap limits entries per store when more than one store is present.
	PerStoreCap int `mapstructure:"per_store_cap" validate:"min=1"`
}

// GenerationConfig configures the generative language service.
type GenerationConfig struct {
	// Provider selects the backend (openai, anthropic, scripted).
	Provider string `mapstructure:"provider" validate:"oneof=openai anthropic scripted"`

	// Model is the provider model name.
	Model string `mapstructure:"model"`

	// APIKey authenticates against the provider.
	APIKey string `mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `mapstructure:"base_url"`

	// Timeout bounds a single generation call.
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxTokens caps the generated output.
	MaxTokens int `mapstructure:"max_tokens" validate:"min=1"`

	// RateLimit is the sustained generation calls per second.
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s, Storage: %s, Catalog: %s, Generation: %s}",
		c.App.Name, c.Server.Port, c.App.Environment, c.Storage.Type, c.Catalog.Mode, c.Generation.Provider)
}
