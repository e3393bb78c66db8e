package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"logforge/internal/batch"
	"logforge/internal/metrics/core/domain"
	"logforge/internal/metrics/core/ports"
	"logforge/internal/telemetry"
)

var ErrInvalidChunkSize = errors.New("aggregate chunk size must be positive")

type MetricWriter interface {
	Write(ctx context.Context, groups []domain.Aggregation) (int, error)
}

type AggregateStage struct {
	reader    ports.AggregationReaderPort
	writer    MetricWriter
	tx        ports.Transactor
	chunkSize int
	hooks     batch.Hooks
	logger    *slog.Logger
}

func NewAggregateStage(reader ports.AggregationReaderPort, writer MetricWriter, tx ports.Transactor, chunkSize int, hooks batch.Hooks, logger *slog.Logger) (*AggregateStage, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	return &AggregateStage{
		reader:    reader,
		writer:    writer,
		tx:        tx,
		chunkSize: chunkSize,
		hooks:     hooks,
		logger:    logger.With("component", "aggregate_stage"),
	}, nil
}

// Run pages grouped events of the half-open window and upserts every page in
// its own transaction.
func (s *AggregateStage) Run(ctx context.Context, window batch.Window) batch.StageReport {
	startedAt := time.Now()
	ctx, span := telemetry.Tracer("aggregate_stage").Start(ctx, "stage.aggregate")
	defer span.End()

	var counters batch.Counters
	finish := func(err error) batch.StageReport {
		report := counters.Report(batch.StageAggregate, startedAt, err)
		s.hooks.Complete(report)
		span.SetAttributes(attribute.Int64("groups", report.Read))
		if err != nil {
			span.RecordError(err)
			s.logger.Error("aggregate stage failed", "window", window.String(), "error", err)
		}
		return report
	}

	var after *domain.MetricKey
	for chunk := 1; ; chunk++ {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		groups, err := s.reader.ReadAggregations(ctx, window, after, s.chunkSize)
		if err != nil {
			return finish(fmt.Errorf("read aggregations: %w", err))
		}
		if len(groups) == 0 {
			break
		}
		last := groups[len(groups)-1].Key()
		after = &last

		counters.AddRead(len(groups))
		for range groups {
			s.hooks.Item(batch.StageAggregate)
		}

		var written int
		err = s.tx.InTx(ctx, func(ctx context.Context) error {
			n, err := s.writer.Write(ctx, groups)
			written = n
			return err
		})
		if err != nil {
			return finish(fmt.Errorf("write chunk %d: %w", chunk, err))
		}
		counters.AddWritten(written)

		if len(groups) < s.chunkSize {
			break
		}
	}

	report := finish(nil)
	s.logger.Info("aggregate stage finished",
		"window", window.String(),
		"groups", report.Read,
		"written", report.Written,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report
}
