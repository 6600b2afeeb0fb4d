package main

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"docdiff/api/internal/app"
	"docdiff/api/internal/attachments"
	"docdiff/api/internal/cache"
	"docdiff/api/internal/config"
	"docdiff/api/internal/diff"
	"docdiff/api/internal/email"
	"docdiff/api/internal/export"
	"docdiff/api/internal/gitrepo"
	"docdiff/api/internal/htmldiff"
	"docdiff/api/internal/merge"
	"docdiff/api/internal/observability"
	"docdiff/api/internal/store"
)

const serviceName = "docdiff-api"

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(os.Stderr, cfg.LogLevel, serviceName)
	observability.RegisterRuntimeCollectors(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := observability.Start(ctx, observability.Config{
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() { _ = telemetryShutdown(context.Background()) }()

	db, err := store.Open(ctx, cfg.DatabaseURL, 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, migrations(cfg.MigrationsDir)); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create repos dir")
	}

	dataStore := store.NewPostgresStore(db)
	deps := app.Dependencies{
		Store:    dataStore,
		Git:      gitrepo.New(cfg.ReposDir),
		Merger:   merge.NewEngine(logger),
		Mailer:   newMailer(cfg, logger),
		Exporter: export.NewService(logger),
	}

	var signer diff.Signer
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioSigner, err := attachments.NewMinioSigner(attachments.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Region:    cfg.MinioRegion,
			Bucket:    cfg.MinioBucket,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("object storage setup failed")
		}
		signer = attachments.NewService(dataStore, minioSigner, logger)
		logger.Info().Str("endpoint", cfg.MinioEndpoint).Msg("signing attachment urls")
	}
	deps.Diffs = diff.NewService(htmldiff.New(), signer, dataStore, logger)

	if strings.TrimSpace(cfg.RedisURL) != "" {
		// Cached email diffs embed signed URLs, so they must not outlive them.
		ttl := cfg.DiffCacheTTL
		if signer != nil {
			ttl = min(ttl, cfg.SignedURLExpiry)
		}
		diffCache, err := cache.NewDiffCache(ctx, cfg.RedisURL, ttl)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer diffCache.Close()
		deps.Cache = diffCache
	} else {
		logger.Warn().Msg("REDIS_URL is empty, email diffs are not cached")
	}

	service := app.New(cfg, deps, logger)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("http server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

func migrations(dir string) fs.FS {
	if strings.TrimSpace(dir) == "" {
		return store.MigrationsFS()
	}
	return os.DirFS(dir)
}

func newMailer(cfg config.Config, logger zerolog.Logger) *email.Service {
	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, logger)
	if !mailer.IsConfigured() {
		logger.Warn().Msg("SMTP is not configured, notifications are disabled")
	}
	return mailer
}
