package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/couchcryptid/pump-status-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/pump-status-service/internal/adapter/kafka"
	"github.com/couchcryptid/pump-status-service/internal/adapter/model"
	"github.com/couchcryptid/pump-status-service/internal/config"
	"github.com/couchcryptid/pump-status-service/internal/features"
	"github.com/couchcryptid/pump-status-service/internal/inference"
	"github.com/couchcryptid/pump-status-service/internal/observability"
	"github.com/couchcryptid/pump-status-service/internal/pipeline"
	"github.com/couchcryptid/pump-status-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", "pump-status")
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, metrics); err != nil {
		logger.Error("service stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	ds, err := store.LoadFile(cfg.DataPath)
	if err != nil {
		return err
	}
	metrics.RecordsLoaded.Set(float64(ds.Len()))
	logger.Info("pump records loaded", "path", cfg.DataPath, "records", ds.Len())

	classifier, schema, err := newClassifier(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	aligner, err := features.NewAligner(schema)
	if err != nil {
		return err
	}
	svc := inference.NewService(aligner, inference.NewPredictor(classifier), ds, clockwork.NewRealClock(), logger, metrics)

	api := httpadapter.NewAPI(ds, svc, httpadapter.APIConfig{
		ReferenceYear:   cfg.ReferenceYear,
		MaxPredictBatch: cfg.MaxPredictBatch,
		StatsCacheTTL:   cfg.StatsCacheTTL,
	}, logger, metrics)

	ready := httpadapter.ReadinessChecks{svc}
	var (
		p      *pipeline.Pipeline
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
	)
	if cfg.ScoringEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		p = pipeline.New(reader, svc, writer, logger, metrics, cfg.BatchSize)
		ready = append(ready, p)
		logger.Info("kafka scoring enabled", "source", cfg.KafkaSourceTopic, "sink", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka scoring disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, api, ready, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if p != nil {
		g.Go(func() error { return p.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		if reader != nil {
			if err := reader.Close(); err != nil {
				logger.Error("kafka reader close error", "error", err)
			}
		}
		if writer != nil {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}

// newClassifier builds the configured classifier backend and returns the
// feature schema it was trained with.
func newClassifier(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (inference.Classifier, features.Schema, error) {
	var (
		classifier inference.Classifier
		schema     features.Schema
	)
	switch cfg.ModelBackend {
	case config.BackendRemote:
		client := model.NewClient(cfg.ModelServerURL, cfg.ModelTimeout, logger, metrics)
		s, err := client.FetchSchema(ctx)
		if err != nil {
			return nil, features.Schema{}, err
		}
		classifier, schema = client, s
		logger.Info("remote classifier", "url", cfg.ModelServerURL, "schema_version", s.Version, "features", s.Width())
	default:
		artifact, err := model.LoadArtifact(cfg.ModelArtifactPath)
		if err != nil {
			return nil, features.Schema{}, err
		}
		sm, err := model.NewSoftmax(artifact)
		if err != nil {
			return nil, features.Schema{}, err
		}
		classifier, schema = sm, artifact.Schema
		logger.Info("local classifier", "artifact", cfg.ModelArtifactPath, "schema_version", schema.Version, "features", schema.Width())
	}

	if cfg.ModelCacheSize > 0 {
		classifier = model.NewCachedClassifier(classifier, cfg.ModelCacheSize, metrics)
		logger.Info("prediction cache enabled", "max_entries", cfg.ModelCacheSize)
	}
	return classifier, schema, nil
}
