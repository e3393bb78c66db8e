package batch

import (
	"sync/atomic"
	"time"
)

// Stage names shared by the pipeline stages and their telemetry labels.
const (
	StageFetch     = "fetch"
	StageNormalize = "normalize"
	StageAggregate = "aggregate"
)

// StageReport carries the counters every stage exposes regardless of outcome.
type StageReport struct {
	Stage     string        `json:"stage"`
	Read      int64         `json:"read"`
	Written   int64         `json:"written"`
	Skipped   int64         `json:"skipped"`
	Failures  int64         `json:"failures"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// Failed reports whether the stage ended with an error.
func (r StageReport) Failed() bool {
	return r.Err != nil
}

// Counters is the concurrency-safe accumulator a stage driver fills in while
// running. Partitions of the fetch stage update it from several goroutines.
type Counters struct {
	read     atomic.Int64
	written  atomic.Int64
	skipped  atomic.Int64
	failures atomic.Int64
}

func (c *Counters) AddRead(n int)    { c.read.Add(int64(n)) }
func (c *Counters) AddWritten(n int) { c.written.Add(int64(n)) }
func (c *Counters) AddSkipped(n int) { c.skipped.Add(int64(n)) }
func (c *Counters) AddFailure()      { c.failures.Add(1) }

// Report snapshots the counters into a StageReport.
func (c *Counters) Report(stage string, startedAt time.Time, err error) StageReport {
	return StageReport{
		Stage:     stage,
		Read:      c.read.Load(),
		Written:   c.written.Load(),
		Skipped:   c.skipped.Load(),
		Failures:  c.failures.Load(),
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Err:       err,
	}
}
