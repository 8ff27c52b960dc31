package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/mediasink/internal/config"
	"github.com/snarg/mediasink/internal/producer"
)

var version = "dev"

func main() {
	var overrides config.ProducerOverrides
	var sourceDirs string
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.ServerURL, "server", "", "ingestion server URL (overrides SERVER_URL)")
	flag.StringVar(&sourceDirs, "source", "", "comma-separated source directories (overrides SOURCE_DIRS)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.BoolVar(&overrides.Watch, "watch", false, "keep watching source directories for new files")
	flag.Parse()
	if sourceDirs != "" {
		overrides.SourceDirs = strings.Split(sourceDirs, ",")
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "watch" {
			overrides.WatchSet = true
		}
	})

	cfg, err := config.LoadProducer(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "producer"
	}
	producerID := hostname + "-" + uuid.NewString()[:8]
	log.Info().
		Str("version", version).
		Str("producer_id", producerID).
		Str("server", cfg.ServerURL).
		Msg("producer starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := producer.NewClient(producer.ClientOptions{
		ServerURL:      cfg.ServerURL,
		ProducerID:     producerID,
		AuthToken:      cfg.AuthToken,
		ChunkSize:      cfg.ChunkSize,
		MaxAttempts:    cfg.UploadAttempts,
		InitialBackoff: cfg.UploadBackoff,
		Log:            log,
	})

	readyCtx, cancel := context.WithTimeout(ctx, cfg.ReadyTimeout)
	err = client.WaitReady(readyCtx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("server", cfg.ServerURL).Msg("server not reachable")
	}

	runner := producer.NewRunner(client, cfg.ProducerWorkers, log)
	runner.Start(ctx)

	var watcher *producer.Watcher
	if cfg.WatchSource {
		watcher = producer.NewWatcher(cfg.SourceDirs, func(path string) {
			runner.Enqueue(ctx, path)
		}, log)
		if err := watcher.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to watch source directories")
		}
	}

	files := producer.Discover(cfg.SourceDirs, log)
	log.Info().Int("files", len(files)).Strs("dirs", cfg.SourceDirs).Msg("source scan complete")
	for _, path := range files {
		if !runner.Enqueue(ctx, path) {
			break
		}
	}

	if cfg.WatchSource {
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")
		watcher.Stop()
	}

	runner.Stop()
	log.Info().Msg("producer stopped")
}
