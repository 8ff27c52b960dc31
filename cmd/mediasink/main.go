package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/mediasink/internal/api"
	"github.com/snarg/mediasink/internal/config"
	"github.com/snarg/mediasink/internal/dlq"
	"github.com/snarg/mediasink/internal/ingest"
	"github.com/snarg/mediasink/internal/metrics"
	"github.com/snarg/mediasink/internal/queue"
	"github.com/snarg/mediasink/internal/registry"
	"github.com/snarg/mediasink/internal/storage"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.UploadDir, "upload-dir", "", "upload directory (overrides UPLOAD_DIR)")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("mediasink starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	store, err := storage.NewFileStore(cfg.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("failed to open upload directory")
	}

	// Registry
	regLog := log.With().Str("component", "registry").Logger()
	reg, err := registry.Load(cfg.RegistryPath, regLog)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.RegistryPath).Msg("failed to load registry")
	}
	log.Info().Int("entries", reg.Size()).Str("path", cfg.RegistryPath).Msg("registry loaded")

	// Queue and DLQ
	q := queue.NewBoundedQueue(cfg.QueueCapacity)
	dl := dlq.NewStore(log)

	prometheus.MustRegister(metrics.NewCollector(q, dl, reg))

	// Optional S3 archival
	var archiver *storage.Archiver
	if cfg.S3.Enabled() {
		s3Log := log.With().Str("component", "s3").Logger()
		s3, err := storage.NewS3Store(cfg.S3, s3Log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure s3")
		}
		headCtx, headCancel := context.WithTimeout(ctx, 10*time.Second)
		err = s3.HeadBucket(headCtx)
		headCancel()
		if err != nil {
			log.Fatal().Err(err).Str("bucket", cfg.S3.Bucket).Msg("s3 bucket not reachable")
		}
		archiver = storage.NewArchiver(s3, cfg.S3.QueueSize, s3Log)
		archiver.Start(cfg.S3.UploadWorkers)
	}

	// Consumer pool
	pool := ingest.NewPool(ingest.PoolOptions{
		Queue:        q,
		Persister:    store,
		Registry:     reg,
		DLQ:          dl,
		Archiver:     archiver,
		Workers:      cfg.ConsumerWorkers,
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialDelay,
		Log:          log,
	})
	pool.Start()

	// Registry sweeper
	janitor := ingest.NewJanitor(reg, cfg.RegistrySweepInterval, log)
	janitor.Start()

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, q, reg, dl, version, startTime, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout. The pool stops last so jobs
	// already queued still get persisted.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	janitor.Stop()
	pool.Stop()
	if archiver != nil {
		archiver.Stop()
	}

	log.Info().
		Int64("persisted", pool.Persisted()).
		Int64("dead_lettered", pool.DeadLettered()).
		Msg("mediasink stopped")
}
