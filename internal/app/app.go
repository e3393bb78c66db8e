// Package app wires the bounded contexts into a runnable pipeline and HTTP
// surface.
package app

import (
	"fmt"
	"log/slog"

	"logforge/internal/config"
	ingestports "logforge/internal/ingest/core/ports"
	ingestusecase "logforge/internal/ingest/core/usecase"
	metricsusecase "logforge/internal/metrics/core/usecase"
	normalizeusecase "logforge/internal/normalize/core/usecase"
	"logforge/internal/pipeline"
	"logforge/internal/telemetry"
	tenantusecase "logforge/internal/tenants/core/usecase"
)

type App struct {
	Runner     *pipeline.Runner
	GetMetrics *metricsusecase.GetMetricsUseCase
}

// New builds every stage from cfg. lock may be nil.
func New(cfg *config.Config, store Store, source ingestports.LogSourcePort, lock pipeline.RunLock, logger *slog.Logger) (*App, error) {
	hooks := telemetry.StageHooks()
	directory := tenantusecase.NewDirectory(store)

	policy, err := ingestusecase.ParseFailurePolicy(cfg.Fetch.FailurePolicy)
	if err != nil {
		return nil, err
	}
	fetcher, err := ingestusecase.NewFetcher(directory, source, ingestusecase.FetcherConfig{
		MaxConcurrent: cfg.Fetch.MaxConcurrent,
		Timeout:       cfg.Fetch.Timeout,
		RetryAttempts: cfg.Fetch.RetryAttempts,
		RetryDelay:    cfg.Fetch.RetryDelay,
		RateLimit:     cfg.Fetch.RateLimitRPS,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build fetcher: %w", err)
	}
	fetchStage := ingestusecase.NewFetchStage(
		ingestusecase.NewPartitioner(directory, logger),
		fetcher,
		ingestusecase.NewRawLogWriter(store, store, logger),
		cfg.Fetch.GridSize,
		policy,
		hooks,
		logger,
	)

	normalizeStage, err := normalizeusecase.NewNormalizeStage(
		store,
		store,
		store,
		normalizeusecase.NewNormalizer(),
		normalizeusecase.NewDeadLetterSink(store, logger),
		normalizeusecase.StageConfig{ChunkSize: cfg.Normalize.ChunkSize, SkipLimit: cfg.Normalize.SkipLimit},
		hooks,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("build normalize stage: %w", err)
	}

	aggregateStage, err := metricsusecase.NewAggregateStage(
		store,
		metricsusecase.NewUpsertWriter(store, logger),
		store,
		cfg.Aggregate.ChunkSize,
		hooks,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("build aggregate stage: %w", err)
	}

	runner := pipeline.NewRunner(pipeline.Stages{
		Fetch:     fetchStage,
		Normalize: normalizeStage,
		Aggregate: aggregateStage,
	}, policy == ingestusecase.PolicyFailFast, lock, logger)

	return &App{
		Runner:     runner,
		GetMetrics: metricsusecase.NewGetMetricsUseCase(directory, store),
	}, nil
}

