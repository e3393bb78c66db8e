// Package memstore keeps every pipeline table in process memory. It backs
// `--store memory` runs and end-to-end tests.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"logforge/internal/batch"
	ingestdomain "logforge/internal/ingest/core/domain"
	ingestports "logforge/internal/ingest/core/ports"
	metricsdomain "logforge/internal/metrics/core/domain"
	metricsports "logforge/internal/metrics/core/ports"
	normalizedomain "logforge/internal/normalize/core/domain"
	normalizeports "logforge/internal/normalize/core/ports"
	"logforge/internal/platform/money"
	tenantdomain "logforge/internal/tenants/core/domain"
	tenantports "logforge/internal/tenants/core/ports"
)

var ErrNegativeCount = errors.New("event count must not be negative")

type state struct {
	tenants  []tenantdomain.Tenant
	rawLogs  []ingestdomain.RawLog
	events   []normalizedomain.NormalizedEvent
	eventFor map[int64]bool
	failed   []normalizedomain.FailedLog
	metrics  map[metricsdomain.MetricKey]metricsdomain.DailyMetric
	seq      int64
}

func (s *state) clone() state {
	return state{
		tenants:  append([]tenantdomain.Tenant(nil), s.tenants...),
		rawLogs:  append([]ingestdomain.RawLog(nil), s.rawLogs...),
		events:   append([]normalizedomain.NormalizedEvent(nil), s.events...),
		eventFor: maps.Clone(s.eventFor),
		failed:   append([]normalizedomain.FailedLog(nil), s.failed...),
		metrics:  maps.Clone(s.metrics),
		seq:      s.seq,
	}
}

// Store is safe for concurrent use. Transactions are serialized; a rollback
// restores the state captured when the transaction began.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   state
	now  func() time.Time
}

var (
	_ tenantports.TenantRepositoryPort             = (*Store)(nil)
	_ ingestports.RawLogRepositoryPort             = (*Store)(nil)
	_ ingestports.Transactor                       = (*Store)(nil)
	_ normalizeports.RawLogReaderPort              = (*Store)(nil)
	_ normalizeports.NormalizedEventRepositoryPort = (*Store)(nil)
	_ normalizeports.FailedLogRepositoryPort       = (*Store)(nil)
	_ metricsports.AggregationReaderPort           = (*Store)(nil)
	_ metricsports.DailyMetricRepositoryPort       = (*Store)(nil)
	_ metricsports.MetricsReaderPort               = (*Store)(nil)
)

func New() *Store {
	return &Store{
		st: state{
			eventFor: map[int64]bool{},
			metrics:  map[metricsdomain.MetricKey]metricsdomain.DailyMetric{},
		},
		now: time.Now,
	}
}

type txKey struct{}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) nextID() int64 {
	s.st.seq++
	return s.st.seq
}

func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

// ---- tenants ----

// AddTenant inserts a tenant and returns it with its assigned id.
func (s *Store) AddTenant(t tenantdomain.Tenant) tenantdomain.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.nextID()
	}
	t.Touch(s.stamp())
	s.st.tenants = append(s.st.tenants, t)
	return t
}

func (s *Store) FindByStatus(ctx context.Context, status tenantdomain.Status) ([]tenantdomain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := lo.Filter(s.st.tenants, func(t tenantdomain.Tenant, _ int) bool { return t.Status == status })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (tenantdomain.Tenant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := lo.Find(s.st.tenants, func(t tenantdomain.Tenant) bool { return t.ID == id })
	return t, ok, nil
}

// ---- raw logs ----

func (s *Store) InsertRawLogs(ctx context.Context, logs []ingestdomain.RawLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.stamp()
	for _, l := range logs {
		l.ID = s.nextID()
		l.Touch(now)
		s.st.rawLogs = append(s.st.rawLogs, l)
	}
	return nil
}

func (s *Store) ReadPage(ctx context.Context, window batch.Window, afterID int64, limit int) ([]ingestdomain.RawLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ingestdomain.RawLog
	for _, l := range s.st.rawLogs {
		if len(out) == limit {
			break
		}
		if l.ID > afterID && window.Contains(l.OccurredAt) {
			out = append(out, l)
		}
	}
	return out, nil
}

// ---- normalized events and dead letters ----

func (s *Store) InsertEvents(ctx context.Context, events []normalizedomain.NormalizedEvent) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.stamp()
	inserted := 0
	for _, e := range events {
		if s.st.eventFor[e.RawLogID] {
			continue
		}
		e.ID = s.nextID()
		e.Touch(now)
		s.st.events = append(s.st.events, e)
		s.st.eventFor[e.RawLogID] = true
		inserted++
	}
	return inserted, nil
}

func (s *Store) InsertFailed(ctx context.Context, failed normalizedomain.FailedLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if failed.RawLogID != nil {
		for _, f := range s.st.failed {
			if f.RawLogID != nil && *f.RawLogID == *failed.RawLogID {
				return nil
			}
		}
	}
	failed.ID = s.nextID()
	failed.Touch(s.stamp())
	s.st.failed = append(s.st.failed, failed)
	return nil
}

// ---- daily metrics ----

func (s *Store) ReadAggregations(ctx context.Context, window batch.Window, after *metricsdomain.MetricKey, limit int) ([]metricsdomain.Aggregation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := map[metricsdomain.MetricKey]*metricsdomain.Aggregation{}
	for _, e := range s.st.events {
		if !window.ContainsHalfOpen(e.EventTime) {
			continue
		}
		key := metricsdomain.NewMetricKey(e.TenantID, e.EventTime, e.EventType)
		g, ok := groups[key]
		if !ok {
			g = &metricsdomain.Aggregation{
				TenantID:  key.TenantID,
				EventDate: key.EventDate,
				EventType: key.EventType,
				AmountSum: money.Zero(),
			}
			groups[key] = g
		}
		g.EventCount++
		if e.Amount != nil {
			sum, err := money.Add(g.AmountSum, *e.Amount)
			if err != nil {
				return nil, fmt.Errorf("aggregate %v: %w", key, err)
			}
			g.AmountSum = sum
		}
	}

	keys := lo.Keys(groups)
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	var out []metricsdomain.Aggregation
	for _, k := range keys {
		if after != nil && !after.Less(k) {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, *groups[k])
	}
	return out, nil
}

func (s *Store) FindInRange(ctx context.Context, tenantIDs, eventTypes []string, minDate, maxDate time.Time) ([]metricsdomain.DailyMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	minDate, maxDate = metricsdomain.DateOf(minDate), metricsdomain.DateOf(maxDate)
	var out []metricsdomain.DailyMetric
	for _, m := range s.st.metrics {
		if !lo.Contains(tenantIDs, m.TenantID) || !lo.Contains(eventTypes, m.EventType) {
			continue
		}
		if m.EventDate.Before(minDate) || m.EventDate.After(maxDate) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out, nil
}

func (s *Store) SaveAll(ctx context.Context, metrics []metricsdomain.DailyMetric) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, m := range metrics {
		if m.EventCount < 0 {
			return fmt.Errorf("%w: %v", ErrNegativeCount, m.Key())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.stamp()
	for _, m := range metrics {
		key := m.Key()
		m.EventDate = key.EventDate
		if existing, ok := s.st.metrics[key]; ok {
			if existing.EventCount == m.EventCount && existing.AmountSum.Cmp(&m.AmountSum) == 0 {
				continue
			}
			m.ID = existing.ID
			m.CreatedAt = existing.CreatedAt
		} else {
			m.ID = s.nextID()
		}
		m.Touch(now)
		s.st.metrics[key] = m
	}
	return nil
}

func (s *Store) QueryMetrics(ctx context.Context, f metricsdomain.MetricsFilter, page metricsdomain.PageRequest) (metricsdomain.MetricsPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := lo.Filter(lo.Values(s.st.metrics), func(m metricsdomain.DailyMetric, _ int) bool { return f.Matches(m) })
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.EventDate.Equal(b.EventDate) {
			return a.EventDate.After(b.EventDate)
		}
		if a.EventType != b.EventType {
			return a.EventType < b.EventType
		}
		return a.ID < b.ID
	})

	total := int64(len(matched))
	start := min(page.Offset(), len(matched))
	end := min(start+page.Size, len(matched))
	return metricsdomain.NewMetricsPage(matched[start:end], page, total), nil
}

// ---- inspection ----

func (s *Store) RawLogs() []ingestdomain.RawLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ingestdomain.RawLog(nil), s.st.rawLogs...)
}

func (s *Store) Events() []normalizedomain.NormalizedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]normalizedomain.NormalizedEvent(nil), s.st.events...)
}

func (s *Store) FailedLogs() []normalizedomain.FailedLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]normalizedomain.FailedLog(nil), s.st.failed...)
}

// Metrics returns every stored daily metric in key order.
func (s *Store) Metrics() []metricsdomain.DailyMetric {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := lo.Values(s.st.metrics)
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}
