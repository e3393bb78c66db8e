package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"logforge/internal/batch"
	"logforge/internal/ingest/core/domain"
	"logforge/internal/ingest/core/ports"
	"logforge/internal/ingest/core/retry"
	"logforge/internal/telemetry"
)

var ErrInvalidFetcherConfig = errors.New("invalid fetcher config")

// errAttemptTimeout marks an attempt that outlived its own deadline. Timeouts
// raised inside the source, such as a dial timeout, do not carry it.
var errAttemptTimeout = errors.New("per-attempt timeout")

// FetchError is returned once a tenant fetch gives up.
type FetchError struct {
	TenantID string
	Attempts int
	Timeout  bool
	Err      error
}

func (e *FetchError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("fetch tenant %s: attempt %d timed out: %v", e.TenantID, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch tenant %s failed after %d attempt(s): %v", e.TenantID, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type FetcherConfig struct {
	MaxConcurrent int
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// RateLimit caps outbound attempts per second across all tenants. Zero disables it.
	RateLimit float64
}

func (c FetcherConfig) validate() error {
	switch {
	case c.MaxConcurrent <= 0:
		return fmt.Errorf("%w: max concurrent must be positive", ErrInvalidFetcherConfig)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidFetcherConfig)
	case c.RetryAttempts <= 0:
		return fmt.Errorf("%w: retry attempts must be positive", ErrInvalidFetcherConfig)
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: retry delay must not be negative", ErrInvalidFetcherConfig)
	case c.RateLimit < 0:
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalidFetcherConfig)
	}
	return nil
}

// Fetcher calls the external log source for one tenant with a process-wide
// permit pool, a hard per-attempt deadline and fixed-delay retries.
type Fetcher struct {
	tenants ports.TenantDirectoryPort
	source  ports.LogSourcePort
	permits *semaphore.Weighted
	limiter *rate.Limiter
	cfg     FetcherConfig
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewFetcher(tenants ports.TenantDirectoryPort, source ports.LogSourcePort, cfg FetcherConfig, logger *slog.Logger) (*Fetcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	f := &Fetcher{
		tenants: tenants,
		source:  source,
		permits: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		cfg:     cfg,
		logger:  logger.With("component", "fetcher"),
		sleep:   sleepContext,
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return f, nil
}

// Fetch resolves the tenant and retrieves its logs for the window. A permit is
// held for the whole call, retries included.
func (f *Fetcher) Fetch(ctx context.Context, tenantID string, window batch.Window) ([]domain.FetchedLog, error) {
	ctx, span := telemetry.Tracer("fetcher").Start(ctx, "fetcher.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID))

	logs, err := f.fetch(ctx, tenantID, window)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("logs", len(logs)))
	return logs, nil
}

func (f *Fetcher) fetch(ctx context.Context, tenantID string, window batch.Window) ([]domain.FetchedLog, error) {
	tenant, err := f.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return nil, &FetchError{TenantID: tenantID, Err: err}
	}

	if !f.permits.TryAcquire(1) {
		telemetry.FetchPermitWaits.Inc()
		if err := f.permits.Acquire(ctx, 1); err != nil {
			return nil, &FetchError{TenantID: tenantID, Err: err}
		}
	}
	defer f.permits.Release(1)

	var lastErr error
	for attempt := 1; attempt <= f.cfg.RetryAttempts; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, &FetchError{TenantID: tenantID, Attempts: attempt - 1, Err: err}
			}
		}

		logs, err := f.attempt(ctx, tenant.Key(), func(actx context.Context) ([]domain.FetchedLog, error) {
			return f.source.Fetch(actx, tenant, window)
		})
		if err == nil {
			return logs, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, &FetchError{TenantID: tenantID, Attempts: attempt, Err: ctx.Err()}
		}
		if errors.Is(err, errAttemptTimeout) {
			f.logger.Warn("fetch attempt timed out", "tenant_id", tenantID, "attempt", attempt, "timeout", f.cfg.Timeout)
			return nil, &FetchError{TenantID: tenantID, Attempts: attempt, Timeout: true, Err: err}
		}
		decision := retry.Classify(err)
		if !decision.IsTransient() {
			return nil, &FetchError{TenantID: tenantID, Attempts: attempt, Err: err}
		}
		if attempt == f.cfg.RetryAttempts {
			break
		}

		f.logger.Warn("fetch attempt failed, retrying",
			"tenant_id", tenantID,
			"attempt", attempt,
			"max_attempts", f.cfg.RetryAttempts,
			"reason", decision.Reason,
			"error", err,
		)
		if err := f.sleep(ctx, f.cfg.RetryDelay); err != nil {
			return nil, &FetchError{TenantID: tenantID, Attempts: attempt, Err: err}
		}
	}

	return nil, &FetchError{TenantID: tenantID, Attempts: f.cfg.RetryAttempts, Err: lastErr}
}

type attemptResult struct {
	logs []domain.FetchedLog
	err  error
}

// attempt runs one call under the attempt deadline. The deadline holds even if
// the source ignores its context.
func (f *Fetcher) attempt(ctx context.Context, tenantID string, call func(context.Context) ([]domain.FetchedLog, error)) ([]domain.FetchedLog, error) {
	actx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan attemptResult, 1)
	go func() {
		logs, err := call(actx)
		done <- attemptResult{logs: logs, err: err}
	}()

	var res attemptResult
	select {
	case res = <-done:
		if res.err != nil && actx.Err() != nil && ctx.Err() == nil {
			res.err = f.timeoutError()
		}
	case <-actx.Done():
		if ctx.Err() != nil {
			res.err = ctx.Err()
		} else {
			res.err = f.timeoutError()
		}
	}

	outcome := "ok"
	switch {
	case res.err == nil:
	case errors.Is(res.err, errAttemptTimeout):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	telemetry.FetchAttempts.WithLabelValues(outcome).Inc()
	telemetry.FetchLatency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	f.logger.Debug("fetch attempt finished", "tenant_id", tenantID, "outcome", outcome, "duration_ms", time.Since(start).Milliseconds())

	return res.logs, res.err
}

func (f *Fetcher) timeoutError() error {
	return fmt.Errorf("%w exceeded %s: %w", errAttemptTimeout, f.cfg.Timeout, context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
