package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	registryllm "github.com/gaspermerela/journal-service-sub002/internal/registry/llm"
	registrytranscription "github.com/gaspermerela/journal-service-sub002/internal/registry/transcription"

	// Import all plugins to trigger init() registration.
	_ "github.com/gaspermerela/journal-service-sub002/internal/provider/kek/awskms"
	_ "github.com/gaspermerela/journal-service-sub002/internal/provider/kek/local"
	_ "github.com/gaspermerela/journal-service-sub002/internal/provider/kek/vault"
	_ "github.com/gaspermerela/journal-service-sub002/internal/provider/llm/groq"
	_ "github.com/gaspermerela/journal-service-sub002/internal/provider/llm/noop"
	_ "github.com/gaspermerela/journal-service-sub002/internal/provider/llm/ollama"
	_ "github.com/gaspermerela/journal-service-sub002/internal/provider/transcription/assemblyai"
	_ "github.com/gaspermerela/journal-service-sub002/internal/provider/transcription/groq"
	_ "github.com/gaspermerela/journal-service-sub002/internal/provider/transcription/noop"
	_ "github.com/gaspermerela/journal-service-sub002/internal/provider/transcription/slovenianasr"
	_ "github.com/gaspermerela/journal-service-sub002/internal/provider/transcription/whisperlocal"
	_ "github.com/gaspermerela/journal-service-sub002/internal/store/postgres"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	maxBodySizeBytes := int(cfg.MaxBodySize)
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the voice journal HTTP API",
		CustomHelpTemplate: cli.CommandHelpTemplate + `NOTES:
   Caller identity is read from a trusted header (default X-User-ID),
   set by whatever reverse proxy terminates real authentication in
   front of this service.
`,
		Flags: flags(&cfg, &maxBodySizeBytes),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.MaxBodySize = int64(maxBodySizeBytes)
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, maxBodySizeBytes *int) []cli.Flag {
	return []cli.Flag{
		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("JOURNAL_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.DurationFlag{
			Name:        "read-header-timeout",
			Category:    "Server:",
			Sources:     cli.EnvVars("JOURNAL_READ_HEADER_TIMEOUT"),
			Destination: &cfg.Listener.ReadHeaderTimeout,
			Value:       cfg.Listener.ReadHeaderTimeout,
			Usage:       "HTTP read header timeout",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("JOURNAL_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file; leave unset to serve plaintext HTTP",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("JOURNAL_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file",
		},
		&cli.StringFlag{
			Name:        "trusted-user-header",
			Category:    "Server:",
			Sources:     cli.EnvVars("JOURNAL_TRUSTED_USER_HEADER"),
			Destination: &cfg.TrustedUserHeader,
			Value:       cfg.TrustedUserHeader,
			Usage:       "Header carrying the authenticated user ID",
		},
		&cli.IntFlag{
			Name:        "max-body-size-bytes",
			Category:    "Server:",
			Sources:     cli.EnvVars("JOURNAL_MAX_BODY_SIZE_BYTES"),
			Destination: maxBodySizeBytes,
			Value:       *maxBodySizeBytes,
			Usage:       "Maximum request body size for non-streaming endpoints, in bytes",
		},
		&cli.DurationFlag{
			Name:        "drain-timeout",
			Category:    "Server:",
			Sources:     cli.EnvVars("JOURNAL_DRAIN_TIMEOUT"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown drain timeout",
		},

		// ── Database ──────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("JOURNAL_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "PostgreSQL connection URL",
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "db-schema",
			Category:    "Database:",
			Sources:     cli.EnvVars("JOURNAL_DB_SCHEMA"),
			Destination: &cfg.SchemaName,
			Value:       cfg.SchemaName,
			Usage:       "PostgreSQL schema to use/create",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("JOURNAL_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("JOURNAL_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("JOURNAL_DB_MIGRATE_AT_START"),
			Destination: &cfg.MigrateAtStart,
			Value:       cfg.MigrateAtStart,
			Usage:       "Run schema migrations automatically at startup",
		},

		// ── Encryption: KEK ───────────────────────────────────────
		&cli.StringFlag{
			Name:        "kek-backend",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("JOURNAL_KEK_BACKEND"),
			Destination: &cfg.KEKBackend,
			Value:       cfg.KEKBackend,
			Usage:       "Key-encryption-key backend (local|awskms|vault)",
		},
		&cli.StringFlag{
			Name:        "kek-local-key",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("JOURNAL_KEK_LOCAL_KEY"),
			Destination: &cfg.KEKLocalKey,
			Usage:       "Hex/base64 32-byte key for the 'local' KEK backend",
		},
		&cli.StringFlag{
			Name:        "kek-version-tag",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("JOURNAL_KEK_VERSION_TAG"),
			Destination: &cfg.KEKVersionTag,
			Value:       cfg.KEKVersionTag,
			Usage:       "Version tag recorded against every encrypted row",
		},
		&cli.StringFlag{
			Name:        "kms-key-id",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("JOURNAL_KMS_KEY_ID"),
			Destination: &cfg.AWSKMSKeyID,
			Usage:       "AWS KMS key ID or ARN for the 'awskms' backend",
		},
		&cli.StringFlag{
			Name:        "aws-region",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("AWS_REGION"),
			Destination: &cfg.AWSRegion,
			Usage:       "AWS region",
		},
		&cli.StringFlag{
			Name:        "vault-transit-key",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("JOURNAL_VAULT_TRANSIT_KEY"),
			Destination: &cfg.VaultTransitKey,
			Usage:       "Vault Transit key name for the 'vault' backend",
		},
		&cli.StringFlag{
			Name:        "vault-addr",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("VAULT_ADDR"),
			Destination: &cfg.VaultAddr,
			Usage:       "Vault server URL",
		},
		&cli.StringFlag{
			Name:        "vault-token",
			Category:    "Encryption:",
			Sources:     cli.EnvVars("VAULT_TOKEN"),
			Destination: &cfg.VaultToken,
			Usage:       "Vault token",
		},

		// ── Audio Storage ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "blob-s3-bucket",
			Category:    "Audio Storage:",
			Sources:     cli.EnvVars("JOURNAL_BLOB_S3_BUCKET"),
			Destination: &cfg.S3Bucket,
			Usage:       "S3 bucket audio recordings are stored under",
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "blob-s3-prefix",
			Category:    "Audio Storage:",
			Sources:     cli.EnvVars("JOURNAL_BLOB_S3_PREFIX"),
			Destination: &cfg.S3Prefix,
			Usage:       "Key prefix within the bucket",
		},
		&cli.StringFlag{
			Name:        "blob-s3-endpoint",
			Category:    "Audio Storage:",
			Sources:     cli.EnvVars("JOURNAL_BLOB_S3_ENDPOINT"),
			Destination: &cfg.S3Endpoint,
			Usage:       "S3-compatible endpoint override (e.g. MinIO)",
		},
		&cli.BoolFlag{
			Name:        "blob-s3-use-path-style",
			Category:    "Audio Storage:",
			Sources:     cli.EnvVars("JOURNAL_BLOB_S3_USE_PATH_STYLE"),
			Destination: &cfg.S3UsePathStyle,
			Usage:       "Use path-style S3 addressing (required for MinIO/LocalStack)",
		},

		// ── Providers ─────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "default-transcription-provider",
			Category:    "Providers:",
			Sources:     cli.EnvVars("JOURNAL_DEFAULT_TRANSCRIPTION_PROVIDER"),
			Destination: &cfg.DefaultTranscriptionProvider,
			Value:       cfg.DefaultTranscriptionProvider,
			Usage:       "Default transcription provider (" + strings.Join(registrytranscription.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "default-llm-provider",
			Category:    "Providers:",
			Sources:     cli.EnvVars("JOURNAL_DEFAULT_LLM_PROVIDER"),
			Destination: &cfg.DefaultLLMProvider,
			Value:       cfg.DefaultLLMProvider,
			Usage:       "Default cleanup LLM provider (" + strings.Join(registryllm.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "groq-api-key",
			Category:    "Providers:",
			Sources:     cli.EnvVars("JOURNAL_GROQ_API_KEY", "GROQ_API_KEY"),
			Destination: &cfg.GroqAPIKey,
			Usage:       "Groq API key (shared by the groq transcription and LLM providers)",
		},
		&cli.StringFlag{
			Name:        "assemblyai-api-key",
			Category:    "Providers:",
			Sources:     cli.EnvVars("JOURNAL_ASSEMBLYAI_API_KEY", "ASSEMBLYAI_API_KEY"),
			Destination: &cfg.AssemblyAIAPIKey,
			Usage:       "AssemblyAI API key",
		},
		&cli.StringFlag{
			Name:        "ollama-base-url",
			Category:    "Providers:",
			Sources:     cli.EnvVars("JOURNAL_OLLAMA_BASE_URL"),
			Destination: &cfg.OllamaBaseURL,
			Usage:       "Ollama base URL",
		},
		&cli.StringFlag{
			Name:        "whisper-local-endpoint",
			Category:    "Providers:",
			Sources:     cli.EnvVars("JOURNAL_WHISPER_LOCAL_ENDPOINT"),
			Destination: &cfg.WhisperLocalEndpoint,
			Usage:       "Self-hosted Whisper endpoint",
		},
		&cli.StringFlag{
			Name:        "slovenian-asr-endpoint",
			Category:    "Providers:",
			Sources:     cli.EnvVars("JOURNAL_SLOVENIAN_ASR_ENDPOINT"),
			Destination: &cfg.SlovenianASREndpoint,
			Usage:       "Slovenian ASR provider endpoint",
		},

		// ── Pipeline ──────────────────────────────────────────────
		&cli.DurationFlag{
			Name:        "transcription-timeout",
			Category:    "Pipeline:",
			Sources:     cli.EnvVars("JOURNAL_TRANSCRIPTION_TIMEOUT"),
			Destination: &cfg.TranscriptionTimeout,
			Value:       cfg.TranscriptionTimeout,
			Usage:       "Per-attempt transcription provider timeout",
		},
		&cli.DurationFlag{
			Name:        "llm-timeout",
			Category:    "Pipeline:",
			Sources:     cli.EnvVars("JOURNAL_LLM_TIMEOUT"),
			Destination: &cfg.LLMTimeout,
			Value:       cfg.LLMTimeout,
			Usage:       "Per-attempt LLM provider timeout",
		},
		&cli.IntFlag{
			Name:        "retry-max-attempts",
			Category:    "Pipeline:",
			Sources:     cli.EnvVars("JOURNAL_RETRY_MAX_ATTEMPTS"),
			Destination: &cfg.RetryMaxAttempts,
			Value:       cfg.RetryMaxAttempts,
			Usage:       "Maximum provider call attempts before giving up",
		},
		&cli.DurationFlag{
			Name:        "retry-base-delay",
			Category:    "Pipeline:",
			Sources:     cli.EnvVars("JOURNAL_RETRY_BASE_DELAY"),
			Destination: &cfg.RetryBaseDelay,
			Value:       cfg.RetryBaseDelay,
			Usage:       "Base delay for exponential backoff between retries",
		},
		&cli.FloatFlag{
			Name:        "retry-factor",
			Category:    "Pipeline:",
			Sources:     cli.EnvVars("JOURNAL_RETRY_FACTOR"),
			Destination: &cfg.RetryFactor,
			Value:       cfg.RetryFactor,
			Usage:       "Exponential backoff multiplier",
		},
		&cli.FloatFlag{
			Name:        "retry-jitter",
			Category:    "Pipeline:",
			Sources:     cli.EnvVars("JOURNAL_RETRY_JITTER"),
			Destination: &cfg.RetryJitter,
			Value:       cfg.RetryJitter,
			Usage:       "Jitter fraction applied to each backoff delay",
		},
		&cli.IntFlag{
			Name:        "max-inflight-per-provider",
			Category:    "Pipeline:",
			Sources:     cli.EnvVars("JOURNAL_MAX_INFLIGHT_PER_PROVIDER"),
			Destination: &cfg.MaxInFlightPerProvider,
			Value:       cfg.MaxInFlightPerProvider,
			Usage:       "Max concurrent in-flight calls per provider",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:    "metrics-labels",
			Category: "Monitoring:",
			Sources: cli.EnvVars("JOURNAL_METRICS_LABELS"),
			Value:   "service=voice-journal",
			Usage:   "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isStreamingRequest(c.Request) {
			c.Next()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}

// isStreamingRequest exempts the multipart audio-upload endpoint from the
// blanket body-size cap: the multipart reader already enforces MaxBodySize
// per-part in the handler, and wrapping a large audio file in MaxBytesReader
// twice produces a less useful error.
func isStreamingRequest(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	if req.Method != http.MethodPost || req.URL.Path != "/api/v1/upload" {
		return false
	}
	contentType := strings.ToLower(strings.TrimSpace(req.Header.Get("Content-Type")))
	return strings.HasPrefix(contentType, "multipart/form-data")
}
