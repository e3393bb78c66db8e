package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"

	"logforge/internal/batch"
	"logforge/internal/metrics/core/domain"
	"logforge/internal/metrics/core/usecase"
	"logforge/internal/platform/money"
)

// fakeMetricStore keeps daily metrics keyed like the unique constraint.
type fakeMetricStore struct {
	rows      map[domain.MetricKey]domain.DailyMetric
	nextID    int64
	findCalls int
	saveCalls int
	lastFind  []string
	saveErr   error
}

func newFakeMetricStore() *fakeMetricStore {
	return &fakeMetricStore{rows: map[domain.MetricKey]domain.DailyMetric{}}
}

func (s *fakeMetricStore) FindInRange(ctx context.Context, tenantIDs, eventTypes []string, minDate, maxDate time.Time) ([]domain.DailyMetric, error) {
	s.findCalls++
	s.lastFind = append(append([]string{}, tenantIDs...), eventTypes...)
	var out []domain.DailyMetric
	for k, m := range s.rows {
		if contains(tenantIDs, k.TenantID) && contains(eventTypes, k.EventType) &&
			!k.EventDate.Before(minDate) && !k.EventDate.After(maxDate) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeMetricStore) SaveAll(ctx context.Context, metrics []domain.DailyMetric) error {
	s.saveCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	for _, m := range metrics {
		if m.ID == 0 {
			if _, exists := s.rows[m.Key()]; exists {
				return errors.New("duplicate key")
			}
			s.nextID++
			m.ID = s.nextID
		}
		s.rows[m.Key()] = m
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// event is a normalized event reduced to what aggregation reads.
type event struct {
	tenantID  string
	eventType string
	at        time.Time
	amount    string
}

// eventAggregator groups events in memory the way the database query does.
type eventAggregator struct {
	events []event
}

func (a *eventAggregator) ReadAggregations(ctx context.Context, window batch.Window, after *domain.MetricKey, limit int) ([]domain.Aggregation, error) {
	groups := map[domain.MetricKey]*domain.Aggregation{}
	for _, e := range a.events {
		if !window.ContainsHalfOpen(e.at) {
			continue
		}
		k := domain.NewMetricKey(e.tenantID, e.at, e.eventType)
		g, ok := groups[k]
		if !ok {
			g = &domain.Aggregation{TenantID: k.TenantID, EventDate: k.EventDate, EventType: k.EventType, AmountSum: money.Zero()}
			groups[k] = g
		}
		g.EventCount++
		if e.amount != "" {
			sum, err := money.Add(g.AmountSum, money.MustParse(e.amount))
			if err != nil {
				return nil, err
			}
			g.AmountSum = sum
		}
	}
	var out []domain.Aggregation
	for k, g := range groups {
		if after != nil && !after.Less(k) {
			continue
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type passTx struct{ calls int }

func (p *passTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(d int) time.Time {
	return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
}

func aggWindow(t *testing.T) batch.Window {
	t.Helper()
	w, err := batch.ParseWindow("2025-01-01T00:00:00Z", "2025-01-03T00:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return w
}

func runAggregate(t *testing.T, agg *eventAggregator, store *fakeMetricStore, chunk int) batch.StageReport {
	t.Helper()
	stage, err := usecase.NewAggregateStage(agg, usecase.NewUpsertWriter(store, discardLogger()), &passTx{}, chunk, batch.Hooks{}, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report := stage.Run(context.Background(), aggWindow(t))
	if report.Err != nil {
		t.Fatalf("unexpected stage error: %v", report.Err)
	}
	return report
}

func assertMetric(t *testing.T, store *fakeMetricStore, tenant string, date time.Time, eventType string, count int64, sum string) {
	t.Helper()
	m, ok := store.rows[domain.NewMetricKey(tenant, date, eventType)]
	if !ok {
		t.Fatalf("missing metric %s/%s/%s", tenant, date.Format(domain.DateLayout), eventType)
	}
	if m.EventCount != count {
		t.Fatalf("expected count %d for %s, got %d", count, eventType, m.EventCount)
	}
	if got := m.AmountSum.Text('f'); got != sum {
		t.Fatalf("expected sum %s for %s, got %s", sum, eventType, got)
	}
}

// ------------------------------------------------------------
// UPSERT WRITER
// ------------------------------------------------------------

func TestUpsertWriter_OneLookupOneSave(t *testing.T) {
	store := newFakeMetricStore()
	w := usecase.NewUpsertWriter(store, discardLogger())

	n, err := w.Write(context.Background(), []domain.Aggregation{
		{TenantID: "1", EventDate: day(1), EventType: "LOGIN", EventCount: 2, AmountSum: money.Zero()},
		{TenantID: "1", EventDate: day(2), EventType: "PURCHASE", EventCount: 1, AmountSum: money.MustParse("10")},
		{TenantID: "2", EventDate: day(1), EventType: "LOGIN", EventCount: 5, AmountSum: money.Zero()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 upserts, got %d", n)
	}
	if store.findCalls != 1 || store.saveCalls != 1 {
		t.Fatalf("expected one lookup and one save, got %d/%d", store.findCalls, store.saveCalls)
	}
	if len(store.lastFind) != 4 {
		t.Fatalf("expected distinct tenant and type sets, got %v", store.lastFind)
	}
}

func TestUpsertWriter_OverwritesExisting(t *testing.T) {
	store := newFakeMetricStore()
	w := usecase.NewUpsertWriter(store, discardLogger())
	ctx := context.Background()

	if _, err := w.Write(ctx, []domain.Aggregation{{TenantID: "1", EventDate: day(1), EventType: "PURCHASE", EventCount: 1, AmountSum: money.MustParse("100")}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := store.rows[domain.NewMetricKey("1", day(1), "PURCHASE")]

	if _, err := w.Write(ctx, []domain.Aggregation{{TenantID: "1", EventDate: day(1), EventType: "PURCHASE", EventCount: 2, AmountSum: money.MustParse("120")}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.rows) != 1 {
		t.Fatalf("expected a single row, got %d", len(store.rows))
	}
	second := store.rows[domain.NewMetricKey("1", day(1), "PURCHASE")]
	if second.ID != first.ID {
		t.Fatalf("expected row %d to be updated in place, got %d", first.ID, second.ID)
	}
	assertMetric(t, store, "1", day(1), "PURCHASE", 2, "120.00")
}

func TestUpsertWriter_Empty(t *testing.T) {
	store := newFakeMetricStore()
	n, err := usecase.NewUpsertWriter(store, discardLogger()).Write(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("expected no-op, got n=%d err=%v", n, err)
	}
	if store.findCalls != 0 || store.saveCalls != 0 {
		t.Fatalf("expected no storage calls")
	}
}

func TestUpsertWriter_SaveError(t *testing.T) {
	store := newFakeMetricStore()
	store.saveErr = errors.New("constraint violation")

	_, err := usecase.NewUpsertWriter(store, discardLogger()).Write(context.Background(), []domain.Aggregation{
		{TenantID: "1", EventDate: day(1), EventType: "LOGIN", EventCount: 1, AmountSum: apd.Decimal{}},
	})
	if !errors.Is(err, store.saveErr) {
		t.Fatalf("expected save error, got %v", err)
	}
}

// ------------------------------------------------------------
// AGGREGATE STAGE
// ------------------------------------------------------------

func TestAggregate_EndToEndScenario(t *testing.T) {
	agg := &eventAggregator{events: []event{
		{tenantID: "t1", eventType: "LOGIN", at: day(1).Add(8 * time.Hour)},
		{tenantID: "t1", eventType: "LOGIN", at: day(1).Add(9 * time.Hour)},
		{tenantID: "t1", eventType: "PURCHASE", at: day(1).Add(10 * time.Hour), amount: "100.00"},
	}}
	store := newFakeMetricStore()

	runAggregate(t, agg, store, 500)
	assertMetric(t, store, "t1", day(1), "LOGIN", 2, "0.00")
	assertMetric(t, store, "t1", day(1), "PURCHASE", 1, "100.00")

	agg.events = append(agg.events, event{tenantID: "t1", eventType: "PURCHASE", at: day(1).Add(11 * time.Hour), amount: "20.00"})
	runAggregate(t, agg, store, 500)
	assertMetric(t, store, "t1", day(1), "LOGIN", 2, "0.00")
	assertMetric(t, store, "t1", day(1), "PURCHASE", 2, "120.00")
	if len(store.rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(store.rows))
	}
}

func TestAggregate_IdempotentRerun(t *testing.T) {
	agg := &eventAggregator{events: []event{
		{tenantID: "1", eventType: "VIEW", at: day(1).Add(time.Hour), amount: "1.10"},
		{tenantID: "1", eventType: "VIEW", at: day(2).Add(time.Hour)},
		{tenantID: "2", eventType: "VIEW", at: day(2).Add(2 * time.Hour), amount: "3"},
	}}
	store := newFakeMetricStore()

	runAggregate(t, agg, store, 2)
	stamped := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	snapshot := map[domain.MetricKey]string{}
	before := map[domain.MetricKey]domain.DailyMetric{}
	for k, m := range store.rows {
		m.CreatedAt, m.UpdatedAt = stamped, stamped
		store.rows[k] = m
		snapshot[k] = m.AmountSum.Text('f')
		before[k] = m
	}

	report := runAggregate(t, agg, store, 2)
	if report.Read != 3 || report.Written != 3 {
		t.Fatalf("unexpected counters: %+v", report)
	}
	if len(store.rows) != len(snapshot) {
		t.Fatalf("row count changed: %d -> %d", len(snapshot), len(store.rows))
	}
	for k, sum := range snapshot {
		row := store.rows[k]
		if got := row.AmountSum.Text('f'); got != sum {
			t.Fatalf("sum for %+v changed: %s -> %s", k, sum, got)
		}
		got, want := store.rows[k], before[k]
		if got.ID != want.ID || got.EventCount != want.EventCount || got.Record != want.Record {
			t.Fatalf("row %+v changed on rerun: %+v -> %+v", k, want, got)
		}
	}
}

func TestAggregate_MissingAmountCountsAsZero(t *testing.T) {
	agg := &eventAggregator{events: []event{
		{tenantID: "1", eventType: "PURCHASE", at: day(1).Add(time.Hour), amount: "5.25"},
		{tenantID: "1", eventType: "PURCHASE", at: day(1).Add(2 * time.Hour)},
	}}
	store := newFakeMetricStore()

	runAggregate(t, agg, store, 10)
	assertMetric(t, store, "1", day(1), "PURCHASE", 2, "5.25")
}

func TestAggregate_WindowIsHalfOpen(t *testing.T) {
	agg := &eventAggregator{events: []event{
		{tenantID: "1", eventType: "LOGIN", at: day(3)},
		{tenantID: "1", eventType: "LOGIN", at: day(1)},
	}}
	store := newFakeMetricStore()

	runAggregate(t, agg, store, 10)
	if _, ok := store.rows[domain.NewMetricKey("1", day(3), "LOGIN")]; ok {
		t.Fatalf("event at window end must be excluded")
	}
	assertMetric(t, store, "1", day(1), "LOGIN", 1, "0.00")
}

func TestNewAggregateStage_RejectsChunkSize(t *testing.T) {
	_, err := usecase.NewAggregateStage(&eventAggregator{}, usecase.NewUpsertWriter(newFakeMetricStore(), discardLogger()), &passTx{}, 0, batch.Hooks{}, discardLogger())
	if !errors.Is(err, usecase.ErrInvalidChunkSize) {
		t.Fatalf("expected ErrInvalidChunkSize, got %v", err)
	}
}
