package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logforge/internal/ingest/core/domain"
)

type fakeRawRepo struct {
	inserted [][]domain.RawLog
	err      error
}

func (r *fakeRawRepo) InsertRawLogs(ctx context.Context, logs []domain.RawLog) error {
	if r.err != nil {
		return r.err
	}
	r.inserted = append(r.inserted, logs)
	return nil
}

type fakeTx struct{ calls int }

func (t *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

func TestRawLogWriter_SharesIngestedAt(t *testing.T) {
	repo := &fakeRawRepo{}
	tx := &fakeTx{}
	w := NewRawLogWriter(repo, tx, discardLogger())
	fixed := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	n, err := w.Write(context.Background(), "4", logsOf(3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, tx.calls)
	require.Len(t, repo.inserted, 1)
	for _, r := range repo.inserted[0] {
		assert.Equal(t, "4", r.TenantID)
		assert.Equal(t, fixed, r.IngestedAt)
		assert.Equal(t, "{}", r.PayloadJSON)
	}
}

func TestRawLogWriter_SplitsLargeResultInOneTransaction(t *testing.T) {
	repo := &fakeRawRepo{}
	tx := &fakeTx{}
	w := NewRawLogWriter(repo, tx, discardLogger())
	w.batchSize = 2

	n, err := w.Write(context.Background(), "4", logsOf(5))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 1, tx.calls)
	require.Len(t, repo.inserted, 3)
	assert.Len(t, repo.inserted[0], 2)
	assert.Len(t, repo.inserted[1], 2)
	assert.Len(t, repo.inserted[2], 1)
}

func TestRawLogWriter_EmptyIsNoop(t *testing.T) {
	repo := &fakeRawRepo{}
	tx := &fakeTx{}
	w := NewRawLogWriter(repo, tx, discardLogger())

	n, err := w.Write(context.Background(), "4", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, tx.calls)
	assert.Empty(t, repo.inserted)
}

func TestRawLogWriter_PropagatesStorageError(t *testing.T) {
	dbErr := errors.New("insert failed")
	w := NewRawLogWriter(&fakeRawRepo{err: dbErr}, &fakeTx{}, discardLogger())

	_, err := w.Write(context.Background(), "4", logsOf(1))
	assert.ErrorIs(t, err, dbErr)
}
