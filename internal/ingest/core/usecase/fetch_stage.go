package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"logforge/internal/batch"
	"logforge/internal/ingest/core/domain"
	"logforge/internal/telemetry"
)

// FailurePolicy decides what a failed partition does to its siblings.
type FailurePolicy string

const (
	// PolicyIsolate records the failure and lets the other partitions finish.
	PolicyIsolate FailurePolicy = "isolate"
	// PolicyFailFast cancels the remaining partitions on the first failure.
	PolicyFailFast FailurePolicy = "fail-fast"
)

var ErrUnknownFailurePolicy = errors.New("unknown fetch failure policy")

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", PolicyIsolate:
		return PolicyIsolate, nil
	case PolicyFailFast:
		return PolicyFailFast, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFailurePolicy, s)
}

type LogFetcher interface {
	Fetch(ctx context.Context, tenantID string, window batch.Window) ([]domain.FetchedLog, error)
}

type PartitionSource interface {
	Partition(ctx context.Context) ([]domain.Partition, error)
}

type LogWriter interface {
	Write(ctx context.Context, tenantID string, logs []domain.FetchedLog) (int, error)
}

type FetchStage struct {
	partitioner PartitionSource
	fetcher     LogFetcher
	writer      LogWriter
	gridSize    int
	policy      FailurePolicy
	hooks       batch.Hooks
	logger      *slog.Logger
}

func NewFetchStage(partitioner PartitionSource, fetcher LogFetcher, writer LogWriter, gridSize int, policy FailurePolicy, hooks batch.Hooks, logger *slog.Logger) *FetchStage {
	if gridSize <= 0 {
		gridSize = 1
	}
	return &FetchStage{
		partitioner: partitioner,
		fetcher:     fetcher,
		writer:      writer,
		gridSize:    gridSize,
		policy:      policy,
		hooks:       hooks,
		logger:      logger.With("component", "fetch_stage"),
	}
}

// Run fans the window out over every active tenant partition, at most
// gridSize at a time. Report.Err joins every partition failure.
func (s *FetchStage) Run(ctx context.Context, window batch.Window) batch.StageReport {
	startedAt := time.Now()
	ctx, span := telemetry.Tracer("fetch_stage").Start(ctx, "stage.fetch")
	defer span.End()

	var counters batch.Counters
	finish := func(err error) batch.StageReport {
		report := counters.Report(batch.StageFetch, startedAt, err)
		s.hooks.Complete(report)
		if err != nil {
			span.RecordError(err)
		}
		return report
	}

	partitions, err := s.partitioner.Partition(ctx)
	if err != nil {
		return finish(err)
	}
	span.SetAttributes(attribute.Int("partitions", len(partitions)))
	if len(partitions) == 0 {
		return finish(nil)
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	fail := func(p domain.Partition, err error) {
		counters.AddFailure()
		mu.Lock()
		failures = append(failures, fmt.Errorf("partition %s: %w", p.Key, err))
		mu.Unlock()
		s.logger.Error("partition failed", "partition", p.Key, "tenant_id", p.TenantID, "error", err)
	}

	var g *errgroup.Group
	gctx := ctx
	if s.policy == PolicyFailFast {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}
	g.SetLimit(s.gridSize)

	for _, p := range partitions {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if err := s.runPartition(gctx, p, window, &counters); err != nil {
				if s.policy == PolicyFailFast && gctx.Err() != nil && errors.Is(err, context.Canceled) {
					return nil
				}
				fail(p, err)
				if s.policy == PolicyFailFast {
					return err
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil && len(failures) == 0 {
		return finish(err)
	}
	return finish(errors.Join(failures...))
}

func (s *FetchStage) runPartition(ctx context.Context, p domain.Partition, window batch.Window, counters *batch.Counters) error {
	start := time.Now()
	s.logger.Info("partition started", "partition", p.Key, "tenant_id", p.TenantID)

	logs, err := s.fetcher.Fetch(ctx, p.TenantID, window)
	if err != nil {
		return err
	}
	counters.AddRead(len(logs))
	for range logs {
		s.hooks.Item(batch.StageFetch)
	}

	written, err := s.writer.Write(ctx, p.TenantID, logs)
	if err != nil {
		return err
	}
	counters.AddWritten(written)

	s.logger.Info("partition finished",
		"partition", p.Key,
		"tenant_id", p.TenantID,
		"read", len(logs),
		"written", written,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
