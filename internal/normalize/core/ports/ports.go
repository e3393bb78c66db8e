package ports

import (
	"context"

	"logforge/internal/batch"
	ingestdomain "logforge/internal/ingest/core/domain"
	"logforge/internal/normalize/core/domain"
)

// RawLogReaderPort pages raw logs whose occurrence time lies within the
// window, inclusive on both ends, in ascending id order.
type RawLogReaderPort interface {
	ReadPage(ctx context.Context, window batch.Window, afterID int64, limit int) ([]ingestdomain.RawLog, error)
}

// NormalizedEventRepositoryPort stores events keyed by raw log id. Events
// whose raw log was already normalized are ignored; the returned count is
// the number of rows actually inserted.
type NormalizedEventRepositoryPort interface {
	InsertEvents(ctx context.Context, events []domain.NormalizedEvent) (int, error)
}

type FailedLogRepositoryPort interface {
	InsertFailed(ctx context.Context, failed domain.FailedLog) error
}

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
