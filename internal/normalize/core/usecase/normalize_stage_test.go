package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logforge/internal/batch"
	ingestdomain "logforge/internal/ingest/core/domain"
	"logforge/internal/normalize/core/domain"
)

// ---- fakes ----

type pagedReader struct {
	logs  []ingestdomain.RawLog
	err   error
	calls int
}

func (r *pagedReader) ReadPage(ctx context.Context, window batch.Window, afterID int64, limit int) ([]ingestdomain.RawLog, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	var out []ingestdomain.RawLog
	for _, l := range r.logs {
		if l.ID > afterID && window.Contains(l.OccurredAt) {
			out = append(out, l)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type eventStore struct {
	byRawLog map[int64]domain.NormalizedEvent
	commits  int
	err      error
}

func (s *eventStore) InsertEvents(ctx context.Context, events []domain.NormalizedEvent) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.byRawLog == nil {
		s.byRawLog = map[int64]domain.NormalizedEvent{}
	}
	n := 0
	for _, ev := range events {
		if _, ok := s.byRawLog[ev.RawLogID]; ok {
			continue
		}
		s.byRawLog[ev.RawLogID] = ev
		n++
	}
	s.commits++
	return n, nil
}

type failedStore struct {
	rows []domain.FailedLog
	err  error
}

func (s *failedStore) InsertFailed(ctx context.Context, f domain.FailedLog) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, f)
	return nil
}

type passTx struct{}

func (passTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mixedLogs returns k raw logs where every item whose index is in bad is malformed.
func mixedLogs(k int, bad map[int]bool) []ingestdomain.RawLog {
	logs := make([]ingestdomain.RawLog, 0, k)
	for i := 0; i < k; i++ {
		payload := fmt.Sprintf(`{"eventType":"LOGIN","userId":"u%d"}`, i)
		if bad[i] {
			payload = `{"userId":"broken"}`
		}
		logs = append(logs, rawLog(int64(i+1), payload))
	}
	return logs
}

func newStage(t *testing.T, reader *pagedReader, events *eventStore, failed *failedStore, cfg StageConfig, hooks batch.Hooks) *NormalizeStage {
	t.Helper()
	s, err := NewNormalizeStage(reader, events, passTx{}, NewNormalizer(), NewDeadLetterSink(failed, discardLogger()), cfg, hooks, discardLogger())
	require.NoError(t, err)
	return s
}

func normalizeWindow(t *testing.T) batch.Window {
	t.Helper()
	w, err := batch.ParseWindow("2025-01-01T00:00:00Z", "2025-01-02T00:00:00Z")
	require.NoError(t, err)
	return w
}

// ---- skip accounting ----

func TestNormalizeStage_SkipAccounting(t *testing.T) {
	reader := &pagedReader{logs: mixedLogs(12, map[int]bool{1: true, 5: true, 10: true})}
	events := &eventStore{}
	failed := &failedStore{}
	var skipped []error
	hooks := batch.Hooks{OnSkip: func(stage string, err error) { skipped = append(skipped, err) }}
	stage := newStage(t, reader, events, failed, StageConfig{ChunkSize: 5, SkipLimit: 10}, hooks)

	report := stage.Run(context.Background(), normalizeWindow(t))
	require.NoError(t, report.Err)
	assert.Equal(t, int64(12), report.Read)
	assert.Equal(t, int64(9), report.Written)
	assert.Equal(t, int64(3), report.Skipped)
	assert.Len(t, events.byRawLog, 9)
	assert.Len(t, failed.rows, 3)
	assert.Len(t, skipped, 3)
	assert.Equal(t, 3, events.commits)

	for _, f := range failed.rows {
		require.NotNil(t, f.RawLogID)
		assert.Equal(t, "payload has no eventType", f.Reason)
		assert.Equal(t, `{"userId":"broken"}`, f.PayloadJSON)
	}
}

func TestNormalizeStage_RerunDoesNotDuplicate(t *testing.T) {
	reader := &pagedReader{logs: mixedLogs(4, nil)}
	events := &eventStore{}
	stage := newStage(t, reader, events, &failedStore{}, StageConfig{ChunkSize: 10, SkipLimit: 0}, batch.Hooks{})

	first := stage.Run(context.Background(), normalizeWindow(t))
	second := stage.Run(context.Background(), normalizeWindow(t))

	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.Equal(t, int64(4), first.Written)
	assert.Equal(t, int64(0), second.Written)
	assert.Len(t, events.byRawLog, 4)
}

func TestNormalizeStage_SkipLimitExceededAbortsBeforeCommit(t *testing.T) {
	reader := &pagedReader{logs: mixedLogs(6, map[int]bool{0: true, 2: true, 4: true})}
	events := &eventStore{}
	failed := &failedStore{}
	stage := newStage(t, reader, events, failed, StageConfig{ChunkSize: 6, SkipLimit: 2}, batch.Hooks{})

	report := stage.Run(context.Background(), normalizeWindow(t))
	require.Error(t, report.Err)
	assert.ErrorIs(t, report.Err, batch.ErrSkipLimitExceeded)
	assert.Empty(t, events.byRawLog)
	assert.Len(t, failed.rows, 3)
	assert.Equal(t, int64(3), report.Skipped)
}

func TestNormalizeStage_SkipsAtLimitStillComplete(t *testing.T) {
	reader := &pagedReader{logs: mixedLogs(4, map[int]bool{0: true, 3: true})}
	stage := newStage(t, reader, &eventStore{}, &failedStore{}, StageConfig{ChunkSize: 2, SkipLimit: 2}, batch.Hooks{})

	report := stage.Run(context.Background(), normalizeWindow(t))
	require.NoError(t, report.Err)
	assert.Equal(t, int64(2), report.Skipped)
	assert.Equal(t, int64(2), report.Written)
}

func TestNormalizeStage_DeadLetterFailureDoesNotAbort(t *testing.T) {
	reader := &pagedReader{logs: mixedLogs(3, map[int]bool{1: true})}
	events := &eventStore{}
	stage := newStage(t, reader, events, &failedStore{err: errors.New("failed_logs unavailable")}, StageConfig{ChunkSize: 10, SkipLimit: 5}, batch.Hooks{})

	report := stage.Run(context.Background(), normalizeWindow(t))
	require.NoError(t, report.Err)
	assert.Equal(t, int64(2), report.Written)
	assert.Equal(t, int64(1), report.Skipped)
}

func TestNormalizeStage_WriteFailureIsFatal(t *testing.T) {
	dbErr := errors.New("insert failed")
	reader := &pagedReader{logs: mixedLogs(3, nil)}
	stage := newStage(t, reader, &eventStore{err: dbErr}, &failedStore{}, StageConfig{ChunkSize: 10, SkipLimit: 5}, batch.Hooks{})

	report := stage.Run(context.Background(), normalizeWindow(t))
	assert.ErrorIs(t, report.Err, dbErr)
	assert.Equal(t, int64(3), report.Read)
	assert.Equal(t, int64(0), report.Written)
}

func TestNormalizeStage_EmptyWindow(t *testing.T) {
	reader := &pagedReader{}
	var completed int
	stage := newStage(t, reader, &eventStore{}, &failedStore{}, StageConfig{ChunkSize: 10, SkipLimit: 5}, batch.Hooks{
		OnComplete: func(batch.StageReport) { completed++ },
	})

	report := stage.Run(context.Background(), normalizeWindow(t))
	require.NoError(t, report.Err)
	assert.Zero(t, report.Read)
	assert.Equal(t, 1, reader.calls)
	assert.Equal(t, 1, completed)
}

func TestNewNormalizeStage_RejectsBadConfig(t *testing.T) {
	_, err := NewNormalizeStage(&pagedReader{}, &eventStore{}, passTx{}, NewNormalizer(), nil, StageConfig{ChunkSize: 0}, batch.Hooks{}, discardLogger())
	assert.ErrorIs(t, err, ErrInvalidStageConfig)
}

// ---- dead letter ----

func TestDeadLetterSink_TruncatesReason(t *testing.T) {
	failed := &failedStore{}
	sink := NewDeadLetterSink(failed, discardLogger())
	long := strings.Repeat("é", 600)

	sink.Record(context.Background(), rawLog(7, "{}"), &domain.NormalizeError{RawLogID: 7, TenantID: "1", Message: long})

	require.Len(t, failed.rows, 1)
	assert.Equal(t, 500, len([]rune(failed.rows[0].Reason)))
	assert.Equal(t, int64(7), *failed.rows[0].RawLogID)
}

func TestReason_UnexpectedError(t *testing.T) {
	assert.Equal(t, "unexpected normalize failure: boom", Reason(errors.New("boom")))
	assert.Equal(t, "payload has no eventType", Reason(&domain.NormalizeError{Message: "payload has no eventType"}))
}
