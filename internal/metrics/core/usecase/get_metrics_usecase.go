package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"logforge/internal/metrics/core/domain"
	"logforge/internal/metrics/core/ports"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	ErrInvalidMetricsQuery = errors.New("invalid metrics query")
	ErrInvalidDateRange    = errors.New("invalid date range")
	ErrInvalidPage         = errors.New("invalid page request")
)

type GetMetricsInput struct {
	TenantID   string
	FromDate   *time.Time
	ToDate     *time.Time
	EventTypes []string
	Page       int
	Size       int
}

type GetMetricsUseCase struct {
	tenants ports.TenantResolverPort
	reader  ports.MetricsReaderPort
}

func NewGetMetricsUseCase(tenants ports.TenantResolverPort, reader ports.MetricsReaderPort) *GetMetricsUseCase {
	return &GetMetricsUseCase{tenants: tenants, reader: reader}
}

// Execute validates the input, checks the tenant is active and returns one page
// of its daily metrics.
func (uc *GetMetricsUseCase) Execute(ctx context.Context, in GetMetricsInput) (domain.MetricsPage, error) {
	tenantID := strings.TrimSpace(in.TenantID)
	if tenantID == "" {
		return domain.MetricsPage{}, fmt.Errorf("%w: tenant id is required", ErrInvalidMetricsQuery)
	}
	if in.FromDate != nil && in.ToDate != nil && domain.DateOf(*in.FromDate).After(domain.DateOf(*in.ToDate)) {
		return domain.MetricsPage{}, fmt.Errorf("%w: from date is after to date", ErrInvalidDateRange)
	}

	page := domain.PageRequest{Page: in.Page, Size: in.Size}
	if page.Size == 0 {
		page.Size = DefaultPageSize
	}
	if page.Page < 0 || page.Size < 1 || page.Size > MaxPageSize {
		return domain.MetricsPage{}, fmt.Errorf("%w: page must be >= 0 and size within 1..%d", ErrInvalidPage, MaxPageSize)
	}

	tenant, err := uc.tenants.Resolve(ctx, tenantID)
	if err != nil {
		return domain.MetricsPage{}, err
	}

	filter := domain.MetricsFilter{
		TenantID:   tenant.Key(),
		FromDate:   in.FromDate,
		ToDate:     in.ToDate,
		EventTypes: sanitizeEventTypes(in.EventTypes),
	}

	return uc.reader.QueryMetrics(ctx, filter, page)
}

func sanitizeEventTypes(types []string) []string {
	trimmed := lo.Map(types, func(s string, _ int) string { return strings.TrimSpace(s) })
	return lo.Uniq(lo.Compact(trimmed))
}
