// Package pgtest provides in-process fakes of postgres.Session for adapter
// tests.
package pgtest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"logforge/internal/platform/postgres"
)

// Result implements sql.Result.
type Result struct {
	Rows int64
}

func (r Result) LastInsertId() (int64, error) {
	return 0, errors.New("not implemented")
}

func (r Result) RowsAffected() (int64, error) {
	return r.Rows, nil
}

// Rows implements postgres.RowScanner over canned values.
type Rows struct {
	Values [][]any
	Error  error

	i      int
	closed bool
}

func NewRows(values ...[]any) *Rows {
	return &Rows{Values: values}
}

func (r *Rows) Next() bool {
	return r.i < len(r.Values)
}

func (r *Rows) Scan(dest ...any) error {
	if r.i >= len(r.Values) {
		return errors.New("no more rows")
	}
	row := r.Values[r.i]
	if len(dest) != len(row) {
		return fmt.Errorf("dest length mismatch: %d != %d", len(dest), len(row))
	}
	for i := range dest {
		if err := assign(dest[i], row[i]); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	r.i++
	return nil
}

func (r *Rows) Err() error {
	return r.Error
}

func (r *Rows) Close() error {
	r.closed = true
	return nil
}

func (r *Rows) Closed() bool {
	return r.closed
}

func assign(dest, v any) error {
	if s, ok := dest.(sql.Scanner); ok {
		return s.Scan(v)
	}
	switch d := dest.(type) {
	case *int64:
		x, ok := v.(int64)
		if !ok {
			return errors.New("type assertion to int64 failed")
		}
		*d = x
	case *string:
		x, ok := v.(string)
		if !ok {
			return errors.New("type assertion to string failed")
		}
		*d = x
	case *time.Time:
		x, ok := v.(time.Time)
		if !ok {
			return errors.New("type assertion to time.Time failed")
		}
		*d = x
	case *bool:
		x, ok := v.(bool)
		if !ok {
			return errors.New("type assertion to bool failed")
		}
		*d = x
	default:
		return fmt.Errorf("unsupported dest type %T", dest)
	}
	return nil
}

// Call records one statement sent to a Session.
type Call struct {
	Query string
	Args  []any
}

// Session is a scriptable postgres.Session. ExecFn and QueryFn may be nil, in
// which case Exec reports one affected row and Query returns no rows.
type Session struct {
	ExecFn  func(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryFn func(ctx context.Context, query string, args ...any) (postgres.RowScanner, error)

	mu    sync.Mutex
	Execs []Call
	Reads []Call
}

var _ postgres.Session = (*Session)(nil)

func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.mu.Lock()
	s.Execs = append(s.Execs, Call{Query: query, Args: args})
	s.mu.Unlock()
	if s.ExecFn != nil {
		return s.ExecFn(ctx, query, args...)
	}
	return Result{Rows: 1}, nil
}

func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (postgres.RowScanner, error) {
	s.mu.Lock()
	s.Reads = append(s.Reads, Call{Query: query, Args: args})
	s.mu.Unlock()
	if s.QueryFn != nil {
		return s.QueryFn(ctx, query, args...)
	}
	return NewRows(), nil
}

// LastExec returns the most recent Exec call.
func (s *Session) LastExec() Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Execs) == 0 {
		return Call{}
	}
	return s.Execs[len(s.Execs)-1]
}

// LastRead returns the most recent Query call.
func (s *Session) LastRead() Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Reads) == 0 {
		return Call{}
	}
	return s.Reads[len(s.Reads)-1]
}
