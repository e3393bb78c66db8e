package batch

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError reports a bad or missing run boundary. It is always fatal
// and is raised before any partitioning or fetch work begins.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid run parameter %q: %s", e.Field, e.Reason)
}

// Window is the caller-supplied time range a run operates on.
type Window struct {
	From time.Time
	To   time.Time
}

// ParseWindow parses ISO-8601 (RFC 3339) instants. Both are required and
// from must not be after to.
func ParseWindow(from, to string) (Window, error) {
	f, err := parseInstant("from", from)
	if err != nil {
		return Window{}, err
	}
	t, err := parseInstant("to", to)
	if err != nil {
		return Window{}, err
	}
	return NewWindow(f, t)
}

// NewWindow validates an already parsed range.
func NewWindow(from, to time.Time) (Window, error) {
	if from.IsZero() {
		return Window{}, &ValidationError{Field: "from", Reason: "required"}
	}
	if to.IsZero() {
		return Window{}, &ValidationError{Field: "to", Reason: "required"}
	}
	if from.After(to) {
		return Window{}, &ValidationError{Field: "from", Reason: "must not be after 'to'"}
	}
	return Window{From: from.UTC(), To: to.UTC()}, nil
}

func parseInstant(name, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &ValidationError{Field: name, Reason: "required"}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, &ValidationError{Field: name, Reason: "must be an ISO-8601 instant"}
	}
	return t.UTC(), nil
}

// Contains reports whether t lies in [From, To].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// ContainsHalfOpen reports whether t lies in [From, To).
func (w Window) ContainsHalfOpen(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

func (w Window) String() string {
	return w.From.Format(time.RFC3339) + "/" + w.To.Format(time.RFC3339)
}
