package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"logforge/internal/metrics/core/domain"
	"logforge/internal/metrics/core/ports"
	"logforge/internal/platform/money"
)

type UpsertWriter struct {
	repo   ports.DailyMetricRepositoryPort
	logger *slog.Logger
}

func NewUpsertWriter(repo ports.DailyMetricRepositoryPort, logger *slog.Logger) *UpsertWriter {
	return &UpsertWriter{repo: repo, logger: logger.With("component", "upsert_writer")}
}

// Write merges a batch of groups into the metric store. Stored counts and
// sums are overwritten, never accumulated, so re-aggregating a window is
// idempotent. Callers run it inside a transaction.
func (w *UpsertWriter) Write(ctx context.Context, groups []domain.Aggregation) (int, error) {
	if len(groups) == 0 {
		return 0, nil
	}

	groups = lo.UniqBy(lo.Reverse(append([]domain.Aggregation(nil), groups...)), func(a domain.Aggregation) domain.MetricKey {
		return a.Key()
	})

	tenantIDs := lo.Uniq(lo.Map(groups, func(a domain.Aggregation, _ int) string { return a.TenantID }))
	eventTypes := lo.Uniq(lo.Map(groups, func(a domain.Aggregation, _ int) string { return a.EventType }))
	minDate := lo.MinBy(groups, func(a, b domain.Aggregation) bool { return a.EventDate.Before(b.EventDate) }).EventDate
	maxDate := lo.MaxBy(groups, func(a, b domain.Aggregation) bool { return a.EventDate.After(b.EventDate) }).EventDate

	existing, err := w.repo.FindInRange(ctx, tenantIDs, eventTypes, domain.DateOf(minDate), domain.DateOf(maxDate))
	if err != nil {
		return 0, fmt.Errorf("find existing metrics: %w", err)
	}
	byKey := lo.KeyBy(existing, func(m domain.DailyMetric) domain.MetricKey { return m.Key() })

	upserts := make([]domain.DailyMetric, 0, len(groups))
	updated := 0
	for _, g := range groups {
		sum, err := money.Round(g.AmountSum)
		if err != nil {
			return 0, fmt.Errorf("metric %s/%s/%s: %w", g.TenantID, g.EventDate.Format(domain.DateLayout), g.EventType, err)
		}
		if m, ok := byKey[g.Key()]; ok {
			m.EventCount = g.EventCount
			m.AmountSum = sum
			upserts = append(upserts, m)
			updated++
			continue
		}
		upserts = append(upserts, domain.DailyMetric{
			TenantID:   g.TenantID,
			EventDate:  domain.DateOf(g.EventDate),
			EventType:  g.EventType,
			EventCount: g.EventCount,
			AmountSum:  sum,
		})
	}

	if err := w.repo.SaveAll(ctx, upserts); err != nil {
		return 0, fmt.Errorf("save metrics: %w", err)
	}

	w.logger.Debug("metrics upserted",
		"batch_size", len(upserts),
		"updated", updated,
		"created", len(upserts)-updated,
		"tenant_count", len(tenantIDs),
		"event_type_count", len(eventTypes),
	)
	return len(upserts), nil
}
