package domain

import (
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"

	"logforge/internal/platform/audit"
)

// Column limits of normalized_events.
const (
	MaxEventTypeLen = 50
	MaxUserIDLen    = 100
	MaxSessionIDLen = 150
)

// MaxReasonLen bounds FailedLog.Reason in characters.
const MaxReasonLen = 500

// NormalizedEvent is the canonical form of exactly one RawLog. Nil pointers
// mark absent optional fields.
type NormalizedEvent struct {
	ID           int64
	RawLogID     int64
	TenantID     string
	EventType    string
	EventTime    time.Time
	UserID       *string
	SessionID    *string
	Amount       *apd.Decimal
	MetadataJSON *string
	audit.Record
}

// FailedLog is a dead-lettered raw log kept for operator triage.
type FailedLog struct {
	ID          int64
	TenantID    string
	RawLogID    *int64
	Reason      string
	PayloadJSON string
	audit.Record
}

// NormalizeError classifies a raw log the normalizer rejected.
type NormalizeError struct {
	RawLogID int64
	TenantID string
	Message  string
	Err      error
}

func (e *NormalizeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *NormalizeError) Unwrap() error {
	return e.Err
}
