package batch

import (
	"errors"
	"fmt"
	"sync"
)

var ErrSkipLimitExceeded = errors.New("skip limit exceeded")

// SkipCounter accumulates item-level skips across a whole run and turns
// fatal once the count goes past the limit.
type SkipCounter struct {
	mu    sync.Mutex
	limit int
	count int
}

func NewSkipCounter(limit int) *SkipCounter {
	return &SkipCounter{limit: limit}
}

// Record counts one skip. It returns ErrSkipLimitExceeded when the total is
// now strictly greater than the limit.
func (s *SkipCounter) Record() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	if s.count > s.limit {
		return fmt.Errorf("%w: %d skipped, limit %d", ErrSkipLimitExceeded, s.count, s.limit)
	}
	return nil
}

func (s *SkipCounter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
