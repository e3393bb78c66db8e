package fiber

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"logforge/internal/metrics/core/domain"
	"logforge/internal/metrics/core/usecase"
	"logforge/internal/platform/money"
	tenantusecase "logforge/internal/tenants/core/usecase"
)

type GetMetricsUseCase interface {
	Execute(ctx context.Context, in usecase.GetMetricsInput) (domain.MetricsPage, error)
}

type MetricsHandler struct {
	uc GetMetricsUseCase
}

func NewMetricsHandler(uc GetMetricsUseCase) *MetricsHandler {
	return &MetricsHandler{uc: uc}
}

// GetMetrics godoc
// @Summary Query daily metrics of a tenant
// @Description Returns daily per-event-type counts and amount sums, newest date first
// @Tags Metrics
// @Produce json
// @Param tenantId path string true "Tenant ID"
// @Param from query string false "From date (YYYY-MM-DD, inclusive)"
// @Param to query string false "To date (YYYY-MM-DD, inclusive)"
// @Param event_type query []string false "Event types" collectionFormat(multi)
// @Param page query int false "Page index, starting at 0"
// @Param size query int false "Page size (1..100, default 20)"
// @Success 200 {object} MetricsPageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /tenants/{tenantId}/metrics [get]
func (h *MetricsHandler) GetMetrics(c *fiber.Ctx) error {
	in := usecase.GetMetricsInput{TenantID: c.Params("tenantId")}

	var err error
	if in.FromDate, err = parseDate(c.Query("from", "")); err != nil {
		return badRequest(c, "invalid 'from' parameter, expected YYYY-MM-DD")
	}
	if in.ToDate, err = parseDate(c.Query("to", "")); err != nil {
		return badRequest(c, "invalid 'to' parameter, expected YYYY-MM-DD")
	}
	if in.Page, err = parseInt(c.Query("page", "")); err != nil {
		return badRequest(c, "invalid 'page' parameter")
	}
	if in.Size, err = parseInt(c.Query("size", "")); err != nil {
		return badRequest(c, "invalid 'size' parameter")
	}
	for _, v := range c.Context().QueryArgs().PeekMulti("event_type") {
		in.EventTypes = append(in.EventTypes, strings.Split(string(v), ",")...)
	}

	res, err := h.uc.Execute(c.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidMetricsQuery),
			errors.Is(err, usecase.ErrInvalidDateRange),
			errors.Is(err, usecase.ErrInvalidPage):
			return badRequest(c, err.Error())
		case errors.Is(err, tenantusecase.ErrInvalidTenantID):
			return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_tenant_id",
				Message: err.Error(),
			})
		case errors.Is(err, tenantusecase.ErrTenantInactive):
			return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
				Error:   "tenant_inactive",
				Message: err.Error(),
			})
		case errors.Is(err, tenantusecase.ErrTenantNotFound):
			return c.Status(http.StatusNotFound).JSON(ErrorResponse{
				Error:   "tenant_not_found",
				Message: err.Error(),
			})
		default:
			return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
				Error: "internal_server_error",
			})
		}
	}

	resp := MetricsPageResponse{
		Content:       make([]DailyMetricResponse, 0, len(res.Content)),
		Page:          res.Page,
		Size:          res.Size,
		TotalElements: res.TotalElements,
		TotalPages:    res.TotalPages,
	}
	for _, m := range res.Content {
		resp.Content = append(resp.Content, DailyMetricResponse{
			TenantID:   m.TenantID,
			EventDate:  m.EventDate.Format(domain.DateLayout),
			EventType:  m.EventType,
			EventCount: m.EventCount,
			AmountSum:  money.String(m.AmountSum),
		})
	}

	return c.Status(http.StatusOK).JSON(resp)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
		Error:   "invalid_request",
		Message: msg,
	})
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
