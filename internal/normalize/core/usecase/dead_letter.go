package usecase

import (
	"context"
	"errors"
	"log/slog"

	ingestdomain "logforge/internal/ingest/core/domain"
	"logforge/internal/normalize/core/domain"
	"logforge/internal/normalize/core/ports"
)

// DeadLetterSink records rejected raw logs. It never fails its caller.
type DeadLetterSink struct {
	repo   ports.FailedLogRepositoryPort
	logger *slog.Logger
}

func NewDeadLetterSink(repo ports.FailedLogRepositoryPort, logger *slog.Logger) *DeadLetterSink {
	return &DeadLetterSink{repo: repo, logger: logger.With("component", "dead_letter_sink")}
}

func (s *DeadLetterSink) Record(ctx context.Context, raw ingestdomain.RawLog, cause error) {
	reason := Reason(cause)

	failed := domain.FailedLog{
		TenantID:    raw.TenantID,
		Reason:      truncate(reason, domain.MaxReasonLen),
		PayloadJSON: raw.PayloadJSON,
	}
	if raw.ID != 0 {
		id := raw.ID
		failed.RawLogID = &id
	}

	if err := s.repo.InsertFailed(ctx, failed); err != nil {
		s.logger.Error("failed to record dead letter",
			"tenant_id", raw.TenantID,
			"raw_log_id", raw.ID,
			"reason", reason,
			"error", err,
		)
		return
	}
	s.logger.Warn("raw log rejected", "tenant_id", raw.TenantID, "raw_log_id", raw.ID, "reason", reason)
}

// Reason is the operator-facing text stored with a dead letter.
func Reason(err error) string {
	var ne *domain.NormalizeError
	if errors.As(err, &ne) {
		return ne.Error()
	}
	if err == nil {
		return "unexpected normalize failure"
	}
	return "unexpected normalize failure: " + err.Error()
}

func truncate(s string, max int) string {
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
