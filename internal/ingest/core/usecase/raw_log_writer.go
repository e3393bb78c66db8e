package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"logforge/internal/ingest/core/domain"
	"logforge/internal/ingest/core/ports"
)

// InsertBatchSize bounds the rows sent in one insert statement.
const InsertBatchSize = 1000

type RawLogWriter struct {
	repo      ports.RawLogRepositoryPort
	tx        ports.Transactor
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

func NewRawLogWriter(repo ports.RawLogRepositoryPort, tx ports.Transactor, logger *slog.Logger) *RawLogWriter {
	return &RawLogWriter{
		repo:      repo,
		tx:        tx,
		batchSize: InsertBatchSize,
		logger:    logger.With("component", "raw_log_writer"),
		now:       time.Now,
	}
}

// Write persists one fetch result atomically. All rows share a single
// ingestion timestamp. Large results are inserted in bounded batches inside
// the same transaction. An empty batch is a no-op.
func (w *RawLogWriter) Write(ctx context.Context, tenantID string, logs []domain.FetchedLog) (int, error) {
	if len(logs) == 0 {
		w.logger.Info("no logs to persist", "tenant_id", tenantID)
		return 0, nil
	}

	ingestedAt := w.now().UTC()
	rows := make([]domain.RawLog, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, domain.RawLog{
			TenantID:    tenantID,
			OccurredAt:  l.OccurredAt.UTC(),
			PayloadJSON: l.Payload,
			IngestedAt:  ingestedAt,
		})
	}

	err := w.tx.InTx(ctx, func(ctx context.Context) error {
		for _, part := range lo.Chunk(rows, w.batchSize) {
			if err := w.repo.InsertRawLogs(ctx, part); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("persist raw logs for tenant %s: %w", tenantID, err)
	}

	w.logger.Info("raw logs persisted", "tenant_id", tenantID, "count", len(rows))
	return len(rows), nil
}

