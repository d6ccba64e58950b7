package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/dennisdiepolder/monti/agentkpi/internal/api"
	"github.com/dennisdiepolder/monti/agentkpi/internal/auth"
	"github.com/dennisdiepolder/monti/agentkpi/internal/config"
	"github.com/dennisdiepolder/monti/agentkpi/internal/dataset"
	"github.com/dennisdiepolder/monti/agentkpi/internal/faq"
	"github.com/dennisdiepolder/monti/agentkpi/internal/metrics"
	"github.com/dennisdiepolder/monti/agentkpi/internal/normalize"
	"github.com/dennisdiepolder/monti/agentkpi/internal/storage"
	"github.com/dennisdiepolder/monti/agentkpi/internal/types"
	"github.com/dennisdiepolder/monti/agentkpi/internal/watcher"
	"github.com/dennisdiepolder/monti/agentkpi/internal/websocket"
	"github.com/dennisdiepolder/monti/agentkpi/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serviceName = "agentkpi"

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("data_dir", cfg.DataDir).
		Str("log_level", cfg.LogLevel).
		Msg("starting agent KPI server")

	if cfg.JWTSecret == config.DefaultJWTSecret && !cfg.SkipAuth {
		log.Warn().Msg("JWT_SECRET not set, using the development secret")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Data pipeline
	canon, err := newCanonicalizer(cfg.HeaderSynonymsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load header synonyms")
	}
	data := dataset.NewService(dataset.NewLoader(cfg.DataDir, canon, log.Logger), log.Logger)

	// Credential store
	storeCfg := storage.LoadConfig()
	store, err := storage.NewStore(ctx, storeCfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize credential store")
	}

	faqStore, err := faq.Open(cfg.FAQDBPath, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open FAQ database")
	}
	defer faqStore.Close()

	authn, err := auth.NewAuthenticator(auth.Config{
		Secret:     cfg.JWTSecret,
		TokenTTL:   cfg.TokenTTL,
		OIDCIssuer: cfg.OIDCIssuer,
		SkipAuth:   cfg.SkipAuth,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize authentication")
	}

	// Create WebSocket hub
	hub := websocket.NewHub(log.Logger)
	go hub.Run(ctx)
	wsHandler := websocket.NewHandler(hub, cfg, log.Logger)

	if cfg.WatchData {
		w, err := watcher.New(cfg.DataDir, cfg.WatchDebounce, notifyChanges(cfg.DataDir, data, hub), log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create data watcher")
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Error().Err(err).Msg("data watcher stopped")
			}
		}()
	}

	r := newRouter(cfg, authn, api.Handlers{
		Auth:      api.NewAuthHandler(store, authn.Issuer(), log.Logger),
		Reports:   api.NewReportHandler(data, log.Logger),
		Users:     api.NewUserHandler(store, data, storeCfg.DefaultPassword, log.Logger),
		FAQ:       api.NewFAQHandler(faqStore, log.Logger),
		WebSocket: wsHandler,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stops the hub and the watcher
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func newRouter(cfg *config.Config, authn *auth.Authenticator, h api.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	api.Mount(r, authn, h)
	return r
}

func newCanonicalizer(synonymsFile string) (*normalize.Canonicalizer, error) {
	canon := normalize.NewCanonicalizer()
	if synonymsFile == "" {
		return canon, nil
	}
	extra, err := normalize.LoadSynonyms(synonymsFile)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", synonymsFile).Int("fields", len(extra)).Msg("loaded header synonyms")
	return canon.WithSynonyms(extra), nil
}

// notifyChanges drops cached tables and tells websocket clients which
// files changed, relative to the data directory
func notifyChanges(root string, data *dataset.Service, hub *websocket.Hub) watcher.ChangeFunc {
	return func(paths []string) {
		data.Invalidate()

		sort.Strings(paths)
		now := time.Now().UTC()
		for _, p := range paths {
			rel, err := filepath.Rel(root, p)
			if err != nil {
				rel = filepath.Base(p)
			}
			hub.Notify(types.Notification{
				Type:      types.NotificationDataChanged,
				Path:      filepath.ToSlash(rel),
				Timestamp: now,
			})
		}
		log.Info().Int("files", len(paths)).Msg("data changed, cache invalidated")
	}
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"%s"}`, serviceName)
}
