package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/lib/pq"

	"logforge/internal/batch"
	"logforge/internal/metrics/core/domain"
	"logforge/internal/metrics/core/ports"
	"logforge/internal/platform/money"
	"logforge/internal/platform/postgres"
)

type MetricsRepository struct {
	db postgres.Session
}

func NewMetricsRepository(db postgres.Session) *MetricsRepository {
	return &MetricsRepository{db: db}
}

var (
	_ ports.MetricsReaderPort         = (*MetricsRepository)(nil)
	_ ports.AggregationReaderPort     = (*MetricsRepository)(nil)
	_ ports.DailyMetricRepositoryPort = (*MetricsRepository)(nil)
)

const eventDateExpr = "(event_time AT TIME ZONE 'UTC')::date"

// whereBuilder numbers placeholders as clauses are appended.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *whereBuilder) addArg(arg any) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereBuilder) String() string {
	return strings.Join(w.clauses, " AND ")
}

// ------------------------------------------------------------
// QUERY
// ------------------------------------------------------------

func (r *MetricsRepository) QueryMetrics(ctx context.Context, f domain.MetricsFilter, page domain.PageRequest) (domain.MetricsPage, error) {
	var where whereBuilder
	where.add("tenant_id = $%d", f.TenantID)
	if f.FromDate != nil {
		where.add("event_date >= $%d", domain.DateOf(*f.FromDate))
	}
	if f.ToDate != nil {
		where.add("event_date <= $%d", domain.DateOf(*f.ToDate))
	}
	if len(f.EventTypes) > 0 {
		where.add("event_type = ANY($%d)", pq.Array(f.EventTypes))
	}

	total, err := r.countMetrics(ctx, where)
	if err != nil {
		return domain.MetricsPage{}, err
	}
	if total == 0 || int64(page.Offset()) >= total {
		return domain.NewMetricsPage(nil, page, total), nil
	}

	limit := where.addArg(page.Size)
	offset := where.addArg(page.Offset())
	query := `
SELECT id, tenant_id, event_date, event_type, event_count, amount_sum, created_at, updated_at
FROM tenant_daily_metrics
WHERE ` + where.String() + `
ORDER BY event_date DESC, event_type ASC, id ASC
LIMIT ` + limit + ` OFFSET ` + offset

	rows, err := r.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return domain.MetricsPage{}, err
	}
	defer rows.Close()

	content := make([]domain.DailyMetric, 0, page.Size)
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return domain.MetricsPage{}, err
		}
		content = append(content, m)
	}
	if err := rows.Err(); err != nil {
		return domain.MetricsPage{}, err
	}

	return domain.NewMetricsPage(content, page, total), nil
}

func (r *MetricsRepository) countMetrics(ctx context.Context, where whereBuilder) (int64, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT COUNT(*)
FROM tenant_daily_metrics
WHERE `+where.String(), where.args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var total int64
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, err
		}
	}
	return total, rows.Err()
}

// ------------------------------------------------------------
// AGGREGATION READER
// ------------------------------------------------------------

func (r *MetricsRepository) ReadAggregations(ctx context.Context, window batch.Window, after *domain.MetricKey, limit int) ([]domain.Aggregation, error) {
	var where whereBuilder
	where.add("event_time >= $%d", window.From)
	where.add("event_time < $%d", window.To)

	var having string
	if after != nil {
		t := where.addArg(after.TenantID)
		d := where.addArg(after.EventDate.Format(domain.DateLayout))
		e := where.addArg(after.EventType)
		having = fmt.Sprintf("\nHAVING (tenant_id, %s, event_type) > (%s, %s::date, %s)", eventDateExpr, t, d, e)
	}
	lim := where.addArg(limit)

	query := `
SELECT tenant_id, ` + eventDateExpr + ` AS event_date, event_type,
       COUNT(*) AS event_count, COALESCE(SUM(amount), 0) AS amount_sum
FROM normalized_events
WHERE ` + where.String() + `
GROUP BY tenant_id, ` + eventDateExpr + `, event_type` + having + `
ORDER BY tenant_id, event_date, event_type
LIMIT ` + lim

	rows, err := r.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Aggregation, 0, limit)
	for rows.Next() {
		var (
			a    domain.Aggregation
			date time.Time
		)
		if err := rows.Scan(&a.TenantID, &date, &a.EventType, &a.EventCount, &a.AmountSum); err != nil {
			return nil, fmt.Errorf("scan aggregation: %w", err)
		}
		a.EventDate = domain.DateOf(date)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ------------------------------------------------------------
// DAILY METRICS
// ------------------------------------------------------------

func (r *MetricsRepository) FindInRange(ctx context.Context, tenantIDs, eventTypes []string, minDate, maxDate time.Time) ([]domain.DailyMetric, error) {
	const q = `
SELECT id, tenant_id, event_date, event_type, event_count, amount_sum, created_at, updated_at
FROM tenant_daily_metrics
WHERE tenant_id = ANY($1)
  AND event_type = ANY($2)
  AND event_date BETWEEN $3 AND $4
FOR UPDATE
`
	rows, err := r.db.QueryContext(ctx, q, pq.Array(tenantIDs), pq.Array(eventTypes), domain.DateOf(minDate), domain.DateOf(maxDate))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DailyMetric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveAll writes the batch with one upsert keyed by the unique constraint.
// Rows whose count and sum are unchanged are not rewritten.
func (r *MetricsRepository) SaveAll(ctx context.Context, metrics []domain.DailyMetric) error {
	if len(metrics) == 0 {
		return nil
	}

	var (
		tenantIDs  = make([]string, len(metrics))
		dates      = make([]string, len(metrics))
		eventTypes = make([]string, len(metrics))
		counts     = make([]int64, len(metrics))
		sums       = make([]string, len(metrics))
	)
	for i, m := range metrics {
		if m.EventCount < 0 {
			return fmt.Errorf("metric %s/%s/%s has negative count", m.TenantID, m.EventDate.Format(domain.DateLayout), m.EventType)
		}
		tenantIDs[i] = m.TenantID
		dates[i] = domain.DateOf(m.EventDate).Format(domain.DateLayout)
		eventTypes[i] = m.EventType
		counts[i] = m.EventCount
		sums[i] = money.String(m.AmountSum)
	}

	const q = `
INSERT INTO tenant_daily_metrics (tenant_id, event_date, event_type, event_count, amount_sum, created_at, updated_at)
SELECT t.tenant_id, t.event_date, t.event_type, t.event_count, t.amount_sum, now(), now()
FROM unnest($1::text[], $2::date[], $3::text[], $4::bigint[], $5::numeric[])
  AS t(tenant_id, event_date, event_type, event_count, amount_sum)
ON CONFLICT (tenant_id, event_date, event_type) DO UPDATE
SET event_count = EXCLUDED.event_count,
    amount_sum  = EXCLUDED.amount_sum,
    updated_at  = now()
WHERE (tenant_daily_metrics.event_count, tenant_daily_metrics.amount_sum)
      IS DISTINCT FROM (EXCLUDED.event_count, EXCLUDED.amount_sum)
`
	if _, err := r.db.ExecContext(ctx, q, pq.Array(tenantIDs), pq.Array(dates), pq.Array(eventTypes), pq.Array(counts), pq.Array(sums)); err != nil {
		return fmt.Errorf("upsert daily metrics: %w", err)
	}
	return nil
}

func scanMetric(rows postgres.RowScanner) (domain.DailyMetric, error) {
	var (
		m    domain.DailyMetric
		date time.Time
		sum  apd.Decimal
	)
	if err := rows.Scan(&m.ID, &m.TenantID, &date, &m.EventType, &m.EventCount, &sum, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return domain.DailyMetric{}, fmt.Errorf("scan daily metric: %w", err)
	}
	m.EventDate = domain.DateOf(date)
	m.AmountSum = sum
	return m, nil
}
