// Package config holds process-wide configuration, read once at startup
// (spec.md §6) and threaded through request handling via context.Context.
package config

import (
	"context"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// ListenerConfig holds the network settings for the HTTP listener.
type ListenerConfig struct {
	Port              int
	ReadHeaderTimeout time.Duration
	TLSCertFile       string
	TLSKeyFile        string
}

// Config holds all process-wide configuration for the journal service.
type Config struct {
	// Server
	Listener    ListenerConfig
	SchemaName  string
	MaxBodySize int64

	// Database
	DBURL          string
	DBMaxOpenConns int
	DBMaxIdleConns int
	MigrateAtStart bool

	// Key-encryption-key backend: "local", "awskms", or "vault".
	KEKBackend string
	// KEKLocalKey is a hex or base64-encoded 32-byte AES/ChaCha key, used by
	// the "local" backend.
	KEKLocalKey string
	// KEKVersionTag is recorded on every VoiceEntry/DEK row as the active
	// encryption-provider version.
	KEKVersionTag string

	// AWS KMS
	AWSKMSKeyID string
	AWSRegion   string

	// HashiCorp Vault Transit
	VaultTransitKey string
	VaultAddr       string
	VaultToken      string

	// Audio blob storage
	BlobBackend  string // defaults to "s3"; not consulted: serve always builds an S3 store
	S3Bucket     string
	S3Prefix     string
	S3Endpoint   string
	S3UsePathStyle bool

	// Default providers, overridable per-request.
	DefaultTranscriptionProvider string
	DefaultLLMProvider           string

	// Provider credentials (read once at startup; adapters read these via cfg).
	GroqAPIKey           string
	AssemblyAIAPIKey     string
	OllamaBaseURL        string
	WhisperLocalEndpoint string
	SlovenianASREndpoint string

	// Timeouts (spec.md §5).
	TranscriptionTimeout time.Duration
	LLMTimeout           time.Duration

	// Retry policy (spec.md §4.5).
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryFactor      float64
	RetryJitter      float64

	// Backpressure: max in-flight provider calls per provider (spec.md §5).
	MaxInFlightPerProvider int

	// Graceful shutdown drain timeout.
	DrainTimeout time.Duration

	// Identity middleware (ambient seam; full auth is out of scope).
	TrustedUserHeader string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Listener: ListenerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
		},
		SchemaName:                   "journal",
		MaxBodySize:                  50 * 1024 * 1024, // 50 MB
		DBMaxOpenConns:               25,
		DBMaxIdleConns:               5,
		MigrateAtStart:               true,
		KEKBackend:                   "local",
		KEKVersionTag:                "v1",
		BlobBackend:                  "s3",
		DefaultTranscriptionProvider: "noop",
		DefaultLLMProvider:           "noop",
		TranscriptionTimeout:         120 * time.Second,
		LLMTimeout:                   60 * time.Second,
		RetryMaxAttempts:             3,
		RetryBaseDelay:               time.Second,
		RetryFactor:                  2.0,
		RetryJitter:                  0.2,
		MaxInFlightPerProvider:       4,
		DrainTimeout:                 30 * time.Second,
		TrustedUserHeader:            "X-User-ID",
	}
}
