package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/gaspermerela/journal-service-sub002/internal/blob"
	"github.com/gaspermerela/journal-service-sub002/internal/config"
	pipelinecleanup "github.com/gaspermerela/journal-service-sub002/internal/pipeline/cleanup"
	pipelinetranscription "github.com/gaspermerela/journal-service-sub002/internal/pipeline/transcription"
	registrykek "github.com/gaspermerela/journal-service-sub002/internal/registry/kek"
	registrymigrate "github.com/gaspermerela/journal-service-sub002/internal/registry/migrate"
	registrystore "github.com/gaspermerela/journal-service-sub002/internal/registry/store"
	routecleanup "github.com/gaspermerela/journal-service-sub002/internal/route/cleanup"
	routeerasure "github.com/gaspermerela/journal-service-sub002/internal/route/erasure"
	routeoptions "github.com/gaspermerela/journal-service-sub002/internal/route/options"
	routesystem "github.com/gaspermerela/journal-service-sub002/internal/route/system"
	routetranscriptions "github.com/gaspermerela/journal-service-sub002/internal/route/transcriptions"
	routevoiceentries "github.com/gaspermerela/journal-service-sub002/internal/route/voiceentries"
	"github.com/gaspermerela/journal-service-sub002/internal/security"
	"github.com/gaspermerela/journal-service-sub002/internal/service"
)

// Server holds the running HTTP server and its background subsystems.
type Server struct {
	Config  *config.Config
	Store   registrystore.Store
	Router  *gin.Engine
	Running *RunningServer
}

// Shutdown gracefully shuts down the HTTP listener. Background dispatcher
// goroutines are left to the parent context cancellation (wired in main.go
// via signal.NotifyContext).
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Running.Close(ctx)
}

// StartServer initializes all subsystems (store, KEK backend, blob storage,
// pipeline dispatchers, routes) and starts the HTTP listener.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting voice journal service",
		"port", cfg.Listener.Port,
		"kekBackend", cfg.KEKBackend,
		"defaultTranscriptionProvider", cfg.DefaultTranscriptionProvider,
		"defaultLLMProvider", cfg.DefaultLLMProvider,
	)

	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	if cfg.MigrateAtStart {
		if err := registrymigrate.RunAll(ctx); err != nil {
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
	}

	storeLoader, err := registrystore.Select("postgres")
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	kekPlugin, err := registrykek.Select(cfg.KEKBackend)
	if err != nil {
		return nil, fmt.Errorf("unknown kek backend: %w", err)
	}
	kekBackend, err := kekPlugin.Loader(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize kek backend: %w", err)
	}

	audio, err := blob.NewS3Store(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob storage: %w", err)
	}

	transcriptionDispatcher := pipelinetranscription.NewDispatcher(store, audio, kekBackend, cfg)
	cleanupDispatcher := pipelinecleanup.NewDispatcher(store, kekBackend, cfg)
	go transcriptionDispatcher.Start(ctx)
	go cleanupDispatcher.Start(ctx)

	orchestrator := service.NewOrchestrator(store, kekBackend, transcriptionDispatcher)
	erasureCoordinator := service.NewErasureCoordinator(store)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(security.AccessLogMiddleware("/health"))
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))

	auth := security.AuthMiddleware(cfg)

	routesystem.MountRoutes(router, store)
	routevoiceentries.MountRoutes(router, orchestrator, audio, cfg, auth)
	routetranscriptions.MountRoutes(router, store, transcriptionDispatcher, kekBackend, auth)
	routecleanup.MountRoutes(router, store, cleanupDispatcher, auth)
	routeoptions.MountRoutes(router, cfg, auth)
	routeerasure.MountRoutes(router, erasureCoordinator, auth)

	running, err := StartHTTPServer(cfg.Listener, router)
	if err != nil {
		return nil, err
	}

	log.Info("Server listening", "port", running.Port, "tls", cfg.Listener.TLSCertFile != "")

	return &Server{
		Config:  cfg,
		Store:   store,
		Router:  router,
		Running: running,
	}, nil
}
