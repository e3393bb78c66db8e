package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"logforge/internal/batch"
	ingestdomain "logforge/internal/ingest/core/domain"
	"logforge/internal/normalize/core/domain"
	"logforge/internal/normalize/core/ports"
	"logforge/internal/platform/money"
	"logforge/internal/platform/postgres"
)

type Repository struct {
	db postgres.Session
}

func NewRepository(db postgres.Session) *Repository {
	return &Repository{db: db}
}

var (
	_ ports.RawLogReaderPort              = (*Repository)(nil)
	_ ports.NormalizedEventRepositoryPort = (*Repository)(nil)
	_ ports.FailedLogRepositoryPort       = (*Repository)(nil)
)

// ------------------------------------------------------------
// RAW LOG READER
// ------------------------------------------------------------

func (r *Repository) ReadPage(ctx context.Context, window batch.Window, afterID int64, limit int) ([]ingestdomain.RawLog, error) {
	const q = `
SELECT id, tenant_id, occurred_at, payload_json, ingested_at, created_at, updated_at
FROM raw_logs
WHERE occurred_at BETWEEN $1 AND $2
  AND id > $3
ORDER BY id
LIMIT $4
`
	rows, err := r.db.QueryContext(ctx, q, window.From, window.To, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ingestdomain.RawLog, 0, limit)
	for rows.Next() {
		var l ingestdomain.RawLog
		if err := rows.Scan(&l.ID, &l.TenantID, &l.OccurredAt, &l.PayloadJSON, &l.IngestedAt, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan raw log: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ------------------------------------------------------------
// NORMALIZED EVENTS
// ------------------------------------------------------------

func (r *Repository) InsertEvents(ctx context.Context, events []domain.NormalizedEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	var (
		rawLogIDs  = make([]int64, len(events))
		tenantIDs  = make([]string, len(events))
		eventTypes = make([]string, len(events))
		eventTimes = make([]string, len(events))
		userIDs    = make([]sql.NullString, len(events))
		sessionIDs = make([]sql.NullString, len(events))
		amounts    = make([]sql.NullString, len(events))
		metadata   = make([]sql.NullString, len(events))
	)
	for i, ev := range events {
		rawLogIDs[i] = ev.RawLogID
		tenantIDs[i] = ev.TenantID
		eventTypes[i] = ev.EventType
		eventTimes[i] = ev.EventTime.UTC().Format(time.RFC3339Nano)
		userIDs[i] = nullString(ev.UserID)
		sessionIDs[i] = nullString(ev.SessionID)
		metadata[i] = nullString(ev.MetadataJSON)
		if ev.Amount != nil {
			amounts[i] = sql.NullString{String: money.String(*ev.Amount), Valid: true}
		}
	}

	const q = `
INSERT INTO normalized_events (
  raw_log_id, tenant_id, event_type, event_time, user_id, session_id, amount, metadata_json, created_at, updated_at
)
SELECT t.raw_log_id, t.tenant_id, t.event_type, t.event_time, t.user_id, t.session_id, t.amount, t.metadata_json, now(), now()
FROM unnest(
  $1::bigint[], $2::text[], $3::text[], $4::timestamptz[],
  $5::text[], $6::text[], $7::numeric[], $8::text[]
) AS t(raw_log_id, tenant_id, event_type, event_time, user_id, session_id, amount, metadata_json)
ON CONFLICT (raw_log_id) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q,
		pq.Array(rawLogIDs),
		pq.Array(tenantIDs),
		pq.Array(eventTypes),
		pq.Array(eventTimes),
		pq.Array(userIDs),
		pq.Array(sessionIDs),
		pq.Array(amounts),
		pq.Array(metadata),
	)
	if err != nil {
		return 0, fmt.Errorf("insert normalized events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert normalized events: %w", err)
	}
	return int(n), nil
}

// ------------------------------------------------------------
// FAILED LOGS
// ------------------------------------------------------------

// InsertFailed records a dead letter. A raw log already dead-lettered by an
// earlier run keeps its first record.
func (r *Repository) InsertFailed(ctx context.Context, f domain.FailedLog) error {
	var rawLogID sql.NullInt64
	if f.RawLogID != nil {
		rawLogID = sql.NullInt64{Int64: *f.RawLogID, Valid: true}
	}
	const q = `
INSERT INTO failed_logs (tenant_id, raw_log_id, reason, payload_json, created_at, updated_at)
VALUES ($1, $2, $3, $4, now(), now())
ON CONFLICT (raw_log_id) WHERE raw_log_id IS NOT NULL DO NOTHING
`
	if _, err := r.db.ExecContext(ctx, q, f.TenantID, rawLogID, f.Reason, f.PayloadJSON); err != nil {
		return fmt.Errorf("insert failed log: %w", err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
