package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"submission-grader/internal/api"
	"submission-grader/internal/app"
	"submission-grader/internal/config"
	"submission-grader/internal/monitor"
	"submission-grader/internal/similarity"
	"submission-grader/internal/storage"
	"submission-grader/internal/worker"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg *config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
	} else {
		log.Info().Msg("no config file found, using defaults")
		cfg = config.DefaultConfig()
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = os.Getenv("DATABASE_URL")
	}
	if cfg.Database.DSN == "" {
		log.Fatal().Msg("worker needs database.dsn or DATABASE_URL for its job queue")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var metrics *monitor.Metrics
	if cfg.Metrics.Enabled {
		metrics = monitor.NewMetrics()
	}

	components, err := app.New(ctx, cfg, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build grading components")
	}
	defer func() {
		if err := components.Close(); err != nil {
			log.Error().Err(err).Msg("sandbox close error")
		}
	}()

	db, err := storage.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer db.Close()

	// Buffered result writer, flushed after the worker stops.
	results := storage.NewResultWriter(db, cfg.Worker.ResultBuffer, metrics)
	results.Start()

	if n, err := db.RequeueStale(ctx, cfg.Worker.ShutdownTimeout*2); err != nil {
		log.Warn().Err(err).Msg("could not requeue stale jobs")
	} else if n > 0 {
		log.Info().Int64("jobs", n).Msg("requeued jobs left running by a previous worker")
	}

	checks := []api.Check{
		{Name: "database", Required: true, Probe: func(ctx context.Context) error {
			if !db.Healthy(ctx) {
				return errors.New("ping failed")
			}
			return nil
		}},
	}
	for _, tool := range []string{"python3", "gcc"} {
		checks = append(checks, api.Check{Name: "tool:" + tool, Probe: func(context.Context) error {
			_, err := exec.LookPath(tool)
			return err
		}})
	}
	if emb := cfg.Similarity.Embedding; emb.Endpoint != "" {
		encoder := similarity.NewHTTPEncoder(emb.Endpoint, emb.Model, emb.Timeout)
		checks = append(checks, api.Check{Name: "embedding", Probe: encoder.Probe})
	}
	server := api.NewServer(cfg.Address(), cfg.Metrics.Path, metrics, checks...)

	w := worker.New(db, db, results, components.Grader, components.Similarity, components.Estimator, metrics, worker.Options{
		PollInterval:       cfg.Worker.PollInterval,
		BatchSize:          cfg.Worker.BatchSize,
		SyntacticThreshold: cfg.Similarity.SyntacticThreshold,
		SemanticThreshold:  cfg.Similarity.SemanticThreshold,
	})

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Str("isolation", cfg.Sandbox.Isolation).
		Bool("metrics_enabled", metrics != nil).
		Msg("grading worker starting")

	if err := w.Run(ctx); err != nil {
		log.Error().Err(err).Msg("worker stopped with error")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	results.Flush(cfg.Worker.ShutdownTimeout)

	log.Info().Msg("worker stopped")
}
