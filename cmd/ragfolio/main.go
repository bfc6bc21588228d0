package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ragfolio/ragfolio/internal/config"
	"github.com/ragfolio/ragfolio/internal/db"
	dbRedis "github.com/ragfolio/ragfolio/internal/db/redis"
	"github.com/ragfolio/ragfolio/internal/domain"
	"github.com/ragfolio/ragfolio/internal/guard"
	"github.com/ragfolio/ragfolio/internal/index"
	logpkg "github.com/ragfolio/ragfolio/internal/logger"
	"github.com/ragfolio/ragfolio/internal/metrics"
	"github.com/ragfolio/ragfolio/internal/repository/corpus"
	"github.com/ragfolio/ragfolio/internal/repository/embcache"
	chiTransport "github.com/ragfolio/ragfolio/internal/transport/chi"
	openaiProv "github.com/ragfolio/ragfolio/internal/transport/openai"
	healthuc "github.com/ragfolio/ragfolio/internal/usecase/health"
	queryuc "github.com/ragfolio/ragfolio/internal/usecase/query"
	rebuilduc "github.com/ragfolio/ragfolio/internal/usecase/rebuild"
	"github.com/ragfolio/ragfolio/internal/version"
)

const cacheReadinessTimeout = 10 * time.Second

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragfolio API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("corpus_dir", cfg.Corpus.Dir),
	)

	// Optional embedding-cache store. The service runs without it.
	var store db.Store
	if len(cfg.Cache.Addrs) > 0 {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(context.Background(), cacheReadinessTimeout); err != nil {
			logger.Warn("Cache store not ready, running without embedding cache", zap.Error(err))
			store = nil
		} else {
			logger.Info("Connected to embedding cache", zap.Strings("addrs", cfg.Cache.Addrs))
		}
	}

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterQueryMetrics()

	// Providers — composition root
	base := openaiProv.NewEmbedder(&openaiProv.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	var queryEmbedder domain.Embedder = base
	var batchEmbedder domain.BatchEmbedder = base
	if store != nil {
		cached := embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
		queryEmbedder = cached
		batchEmbedder = cached
	}
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Bool("cached", store != nil),
	)

	var answerer domain.Answerer = openaiProv.NewChat(&openaiProv.ChatConfig{
		APIKey:      cfg.Embedding.APIKey,
		BaseURL:     cfg.Embedding.BaseURL,
		Model:       cfg.Answer.Model,
		Temperature: cfg.Answer.Temperature,
		Logger:      logger,
	})

	// Per-agent index stores
	stores := make(map[domain.Kind]*index.Store)
	sources := make(map[domain.Kind]queryuc.SnapshotSource)
	publishers := make(map[domain.Kind]rebuilduc.Publisher)
	for _, kind := range domain.Kinds() {
		s := index.NewStore(kind)
		stores[kind] = s
		sources[kind] = s
		publishers[kind] = s
	}

	scorer := index.NewScorer(index.Weights{
		Fields:   cfg.Scoring.FieldWeights,
		MaxBoost: cfg.Scoring.MaxBoost,
	})
	usage := metrics.NewSet()

	// Use case services
	querySvc := queryuc.New(
		guard.New(),
		queryEmbedder,
		answerer,
		scorer,
		sources,
		usage,
		queryuc.Options{
			TopK:            cfg.Query.TopK,
			MinScore:        cfg.Scoring.MinScore,
			ExternalTimeout: time.Duration(cfg.Query.ExternalTimeoutSec) * time.Second,
			RetryAttempts:   cfg.Query.RetryAttempts,
			RetryBackoff:    time.Duration(cfg.Query.RetryBackoffMs) * time.Millisecond,
			MaxContextChars: cfg.Answer.MaxContextChars,
			CompanyName:     cfg.Corpus.CompanyName,
		},
		logger,
	)

	loader := corpus.New(cfg.Corpus.Dir, cfg.Corpus.ProjectsFile, cfg.Corpus.AwardsFile)
	rebuildSvc := rebuilduc.New(loader, batchEmbedder, publishers, logger)

	var cachePinger healthuc.CachePinger
	if store != nil {
		cachePinger = store
	}
	healthSvc := healthuc.New(cachePinger, base)

	// Boot build: a missing corpus file leaves that agent empty.
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	if err := rebuildSvc.RebuildAll(bootCtx); err != nil {
		logger.Warn("Initial index build incomplete, agents with missing corpora stay empty",
			zap.Error(err))
	}
	bootCancel()
	for kind, s := range stores {
		logger.Info("Agent index ready",
			zap.String("agent", string(kind)),
			zap.Int("records", s.Current().Len()),
		)
	}

	// HTTP surface
	server := chiTransport.NewServer(querySvc, rebuildSvc, healthSvc, usage, stores, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
