package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"logforge/internal/ingest/core/domain"
	"logforge/internal/ingest/core/ports"
	"logforge/internal/platform/postgres"
)

type RawLogRepository struct {
	db postgres.Session
}

func NewRawLogRepository(db postgres.Session) *RawLogRepository {
	return &RawLogRepository{db: db}
}

var _ ports.RawLogRepositoryPort = (*RawLogRepository)(nil)

// InsertRawLogs writes the batch with one statement. All rows of a batch belong
// to one tenant and share one ingestion timestamp.
func (r *RawLogRepository) InsertRawLogs(ctx context.Context, logs []domain.RawLog) error {
	if len(logs) == 0 {
		return nil
	}

	tenantID := logs[0].TenantID
	ingestedAt := logs[0].IngestedAt

	occurredAt := make([]string, len(logs))
	payloads := make([]string, len(logs))
	for i, l := range logs {
		if l.TenantID != tenantID {
			return fmt.Errorf("raw log batch mixes tenants %s and %s", tenantID, l.TenantID)
		}
		occurredAt[i] = l.OccurredAt.UTC().Format(time.RFC3339Nano)
		payloads[i] = l.PayloadJSON
	}

	const q = `
INSERT INTO raw_logs (tenant_id, occurred_at, payload_json, ingested_at, created_at, updated_at)
SELECT $1, t.occurred_at, t.payload_json, $4, now(), now()
FROM unnest($2::timestamptz[], $3::text[]) AS t(occurred_at, payload_json)
`
	res, err := r.db.ExecContext(ctx, q, tenantID, pq.Array(occurredAt), pq.Array(payloads), ingestedAt)
	if err != nil {
		return fmt.Errorf("insert raw logs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n != int64(len(logs)) {
		return fmt.Errorf("insert raw logs: wrote %d of %d rows", n, len(logs))
	}
	return nil
}
