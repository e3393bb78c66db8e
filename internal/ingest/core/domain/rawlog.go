package domain

import (
	"time"

	"logforge/internal/platform/audit"
)

// FetchedLog is one item returned by the external log source.
type FetchedLog struct {
	OccurredAt time.Time
	Payload    string
}

// RawLog is a fetched payload persisted verbatim. Rows are append-only and
// serve as the replay source of truth.
type RawLog struct {
	ID          int64
	TenantID    string
	OccurredAt  time.Time
	PayloadJSON string
	IngestedAt  time.Time
	audit.Record
}

// Partition is one independent unit of fetch work scoped to a single tenant.
type Partition struct {
	Key      string
	TenantID string
}
