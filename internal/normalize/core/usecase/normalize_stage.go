package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"logforge/internal/batch"
	ingestdomain "logforge/internal/ingest/core/domain"
	"logforge/internal/normalize/core/domain"
	"logforge/internal/normalize/core/ports"
	"logforge/internal/telemetry"
)

var ErrInvalidStageConfig = errors.New("invalid normalize stage config")

type EventNormalizer interface {
	Normalize(raw ingestdomain.RawLog) (domain.NormalizedEvent, error)
}

type DeadLetterRecorder interface {
	Record(ctx context.Context, raw ingestdomain.RawLog, cause error)
}

type StageConfig struct {
	ChunkSize int
	SkipLimit int
}

type NormalizeStage struct {
	reader     ports.RawLogReaderPort
	events     ports.NormalizedEventRepositoryPort
	tx         ports.Transactor
	normalizer EventNormalizer
	deadLetter DeadLetterRecorder
	cfg        StageConfig
	hooks      batch.Hooks
	logger     *slog.Logger
}

func NewNormalizeStage(
	reader ports.RawLogReaderPort,
	events ports.NormalizedEventRepositoryPort,
	tx ports.Transactor,
	normalizer EventNormalizer,
	deadLetter DeadLetterRecorder,
	cfg StageConfig,
	hooks batch.Hooks,
	logger *slog.Logger,
) (*NormalizeStage, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive", ErrInvalidStageConfig)
	}
	if cfg.SkipLimit < 0 {
		return nil, fmt.Errorf("%w: skip limit must not be negative", ErrInvalidStageConfig)
	}
	return &NormalizeStage{
		reader:     reader,
		events:     events,
		tx:         tx,
		normalizer: normalizer,
		deadLetter: deadLetter,
		cfg:        cfg,
		hooks:      hooks,
		logger:     logger.With("component", "normalize_stage"),
	}, nil
}

// Run normalizes every raw log in the window chunk by chunk. Rejected items
// are dead-lettered and left out of the chunk's commit set. Once the run-wide
// skip count exceeds the limit the stage stops before committing the chunk.
func (s *NormalizeStage) Run(ctx context.Context, window batch.Window) batch.StageReport {
	startedAt := time.Now()
	ctx, span := telemetry.Tracer("normalize_stage").Start(ctx, "stage.normalize")
	defer span.End()

	var counters batch.Counters
	finish := func(err error) batch.StageReport {
		report := counters.Report(batch.StageNormalize, startedAt, err)
		s.hooks.Complete(report)
		if err != nil {
			span.RecordError(err)
			s.logger.Error("normalize stage failed", "window", window.String(), "error", err)
		}
		span.SetAttributes(
			attribute.Int64("read", report.Read),
			attribute.Int64("written", report.Written),
			attribute.Int64("skipped", report.Skipped),
		)
		return report
	}

	skips := batch.NewSkipCounter(s.cfg.SkipLimit)
	var afterID int64
	for chunk := 1; ; chunk++ {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		page, err := s.reader.ReadPage(ctx, window, afterID, s.cfg.ChunkSize)
		if err != nil {
			return finish(fmt.Errorf("read raw logs after id %d: %w", afterID, err))
		}
		if len(page) == 0 {
			break
		}
		afterID = page[len(page)-1].ID

		events := make([]domain.NormalizedEvent, 0, len(page))
		for _, raw := range page {
			counters.AddRead(1)
			s.hooks.Item(batch.StageNormalize)

			ev, err := s.normalizer.Normalize(raw)
			if err != nil {
				s.deadLetter.Record(ctx, raw, err)
				counters.AddSkipped(1)
				s.hooks.Skip(batch.StageNormalize, err)
				if limitErr := skips.Record(); limitErr != nil {
					return finish(fmt.Errorf("chunk %d: %w", chunk, limitErr))
				}
				continue
			}
			events = append(events, ev)
		}

		if len(events) > 0 {
			var inserted int
			err := s.tx.InTx(ctx, func(ctx context.Context) error {
				n, err := s.events.InsertEvents(ctx, events)
				inserted = n
				return err
			})
			if err != nil {
				return finish(fmt.Errorf("write chunk %d: %w", chunk, err))
			}
			counters.AddWritten(inserted)
			if inserted < len(events) {
				s.logger.Info("events already normalized were left untouched", "chunk", chunk, "duplicates", len(events)-inserted)
			}
		}

		s.logger.Debug("chunk committed", "chunk", chunk, "read", len(page), "written", len(events), "skipped_total", skips.Count())
		if len(page) < s.cfg.ChunkSize {
			break
		}
	}

	report := finish(nil)
	s.logger.Info("normalize stage finished",
		"window", window.String(),
		"read", report.Read,
		"written", report.Written,
		"skipped", report.Skipped,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report
}
