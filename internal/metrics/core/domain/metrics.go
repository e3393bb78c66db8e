package domain

import (
	"time"

	"github.com/cockroachdb/apd/v3"

	"logforge/internal/platform/audit"
)

const DateLayout = "2006-01-02"

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MetricKey is the unique key of a daily metric row.
type MetricKey struct {
	TenantID  string
	EventDate time.Time
	EventType string
}

func NewMetricKey(tenantID string, eventDate time.Time, eventType string) MetricKey {
	return MetricKey{TenantID: tenantID, EventDate: DateOf(eventDate), EventType: eventType}
}

// Less orders keys by tenant, then date, then event type.
func (k MetricKey) Less(o MetricKey) bool {
	if k.TenantID != o.TenantID {
		return k.TenantID < o.TenantID
	}
	if !k.EventDate.Equal(o.EventDate) {
		return k.EventDate.Before(o.EventDate)
	}
	return k.EventType < o.EventType
}

// Aggregation is one (tenant, date, type) group computed over a window.
type Aggregation struct {
	TenantID   string
	EventDate  time.Time
	EventType  string
	EventCount int64
	AmountSum  apd.Decimal
}

func (a Aggregation) Key() MetricKey {
	return NewMetricKey(a.TenantID, a.EventDate, a.EventType)
}

// DailyMetric is the stored aggregate. There is at most one row per key.
type DailyMetric struct {
	ID         int64
	TenantID   string
	EventDate  time.Time
	EventType  string
	EventCount int64
	AmountSum  apd.Decimal
	audit.Record
}

func (m DailyMetric) Key() MetricKey {
	return NewMetricKey(m.TenantID, m.EventDate, m.EventType)
}

// MetricsFilter selects daily metrics. Every set clause is ANDed; TenantID is
// always required.
type MetricsFilter struct {
	TenantID   string
	FromDate   *time.Time
	ToDate     *time.Time
	EventTypes []string
}

// Matches evaluates the filter in memory.
func (f MetricsFilter) Matches(m DailyMetric) bool {
	if m.TenantID != f.TenantID {
		return false
	}
	date := DateOf(m.EventDate)
	if f.FromDate != nil && date.Before(DateOf(*f.FromDate)) {
		return false
	}
	if f.ToDate != nil && date.After(DateOf(*f.ToDate)) {
		return false
	}
	if len(f.EventTypes) > 0 {
		for _, t := range f.EventTypes {
			if t == m.EventType {
				return true
			}
		}
		return false
	}
	return true
}

type PageRequest struct {
	Page int
	Size int
}

func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// MetricsPage is one page of daily metrics ordered by event date descending,
// then event type.
type MetricsPage struct {
	Content       []DailyMetric
	Page          int
	Size          int
	TotalElements int64
	TotalPages    int
}

func NewMetricsPage(content []DailyMetric, req PageRequest, total int64) MetricsPage {
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	if content == nil {
		content = []DailyMetric{}
	}
	return MetricsPage{Content: content, Page: req.Page, Size: req.Size, TotalElements: total, TotalPages: pages}
}
