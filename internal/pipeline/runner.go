// Package pipeline sequences the fetch, normalize and aggregate stages over
// one caller-supplied window and reports the outcome of the whole run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"logforge/internal/batch"
	"logforge/internal/telemetry"
)

type Status string

const (
	StatusCompleted          Status = "COMPLETED"
	StatusCompletedWithSkips Status = "COMPLETED_WITH_SKIPS"
	StatusFailed             Status = "FAILED"
)

// Order is the fixed execution order of stages within a run.
var Order = []string{batch.StageFetch, batch.StageNormalize, batch.StageAggregate}

var ErrStageNotConfigured = errors.New("stage not configured")

// StageRunner is implemented by every stage driver.
type StageRunner interface {
	Run(ctx context.Context, window batch.Window) batch.StageReport
}

// RunLock serializes whole runs across processes. Acquire fails when another
// run holds the lock.
type RunLock interface {
	Acquire(ctx context.Context, owner string) (release func(context.Context) error, err error)
}

type Stages struct {
	Fetch     StageRunner
	Normalize StageRunner
	Aggregate StageRunner
}

func (s Stages) lookup(name string) StageRunner {
	switch name {
	case batch.StageFetch:
		return s.Fetch
	case batch.StageNormalize:
		return s.Normalize
	case batch.StageAggregate:
		return s.Aggregate
	}
	return nil
}

type RunParams struct {
	From string
	To   string
	// Stages selects a subset of Order. Empty means all of them.
	Stages []string
}

type RunReport struct {
	RunID     uuid.UUID
	Window    batch.Window
	Status    Status
	Stages    []batch.StageReport
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Skipped is the total of item-level skips over every stage.
func (r RunReport) Skipped() int64 {
	var n int64
	for _, s := range r.Stages {
		n += s.Skipped
	}
	return n
}

type Runner struct {
	stages   Stages
	failFast bool
	lock     RunLock
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner builds a runner. lock may be nil. With failFast a failed fetch
// stage ends the run; otherwise later stages still process whatever landed.
func NewRunner(stages Stages, failFast bool, lock RunLock, logger *slog.Logger) *Runner {
	return &Runner{
		stages:   stages,
		failFast: failFast,
		lock:     lock,
		logger:   logger.With("component", "pipeline_runner"),
		now:      time.Now,
	}
}

// Run executes the selected stages in Order. Validation and lock failures
// come back as a FAILED report with Err set and no stage executed.
func (r *Runner) Run(ctx context.Context, params RunParams) (report RunReport) {
	report = RunReport{RunID: uuid.New(), StartedAt: r.now()}

	ctx, span := telemetry.Tracer("pipeline").Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", report.RunID.String()))

	defer func() {
		report.Duration = r.now().Sub(report.StartedAt)
		telemetry.RunsTotal.WithLabelValues(string(report.Status)).Inc()
		if report.Err != nil {
			span.RecordError(report.Err)
			span.SetStatus(codes.Error, string(report.Status))
		}
		r.logSummary(report)
	}()

	window, err := batch.ParseWindow(params.From, params.To)
	if err != nil {
		return failed(report, err)
	}
	report.Window = window

	selected, err := r.selectStages(params.Stages)
	if err != nil {
		return failed(report, err)
	}

	if r.lock != nil {
		release, err := r.lock.Acquire(ctx, report.RunID.String())
		if err != nil {
			return failed(report, fmt.Errorf("acquire run lock: %w", err))
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("release run lock failed", "run_id", report.RunID, "error", err)
			}
		}()
	}

	r.logger.Info("run started", "run_id", report.RunID, "window", window.String(), "stages", strings.Join(selected, ","))

	var errs []error
	for _, name := range selected {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		stageReport := r.stages.lookup(name).Run(ctx, window)
		report.Stages = append(report.Stages, stageReport)
		if stageReport.Err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("%s stage: %w", name, stageReport.Err))
		if name == batch.StageFetch && !r.failFast {
			r.logger.Warn("fetch stage failed, continuing with landed data", "run_id", report.RunID, "failures", stageReport.Failures)
			continue
		}
		break
	}

	report.Err = errors.Join(errs...)
	report.Status = statusOf(report)
	return report
}

func failed(report RunReport, err error) RunReport {
	report.Err = err
	report.Status = StatusFailed
	return report
}

func (r *Runner) selectStages(names []string) ([]string, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if !isKnown(n) {
			return nil, &batch.ValidationError{Field: "stages", Reason: fmt.Sprintf("unknown stage %q", n)}
		}
		want[n] = true
	}

	selected := make([]string, 0, len(Order))
	for _, n := range Order {
		if len(want) > 0 && !want[n] {
			continue
		}
		if r.stages.lookup(n) == nil {
			return nil, fmt.Errorf("%w: %s", ErrStageNotConfigured, n)
		}
		selected = append(selected, n)
	}
	return selected, nil
}

func isKnown(name string) bool {
	for _, n := range Order {
		if n == name {
			return true
		}
	}
	return false
}

func statusOf(r RunReport) Status {
	if r.Err != nil {
		return StatusFailed
	}
	if r.Skipped() > 0 {
		return StatusCompletedWithSkips
	}
	return StatusCompleted
}

func (r *Runner) logSummary(rep RunReport) {
	attrs := []any{
		"run_id", rep.RunID,
		"status", rep.Status,
		"duration_ms", rep.Duration.Milliseconds(),
	}
	for _, s := range rep.Stages {
		attrs = append(attrs, slog.Group(s.Stage,
			"read", s.Read,
			"written", s.Written,
			"skipped", s.Skipped,
			"failures", s.Failures,
			"duration_ms", s.Duration.Milliseconds(),
		))
	}
	if rep.Err != nil {
		r.logger.Error("run finished", append(attrs, "error", rep.Err)...)
		return
	}
	r.logger.Info("run finished", attrs...)
}
