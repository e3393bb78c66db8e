package fiber

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"logforge/internal/batch"
	"logforge/internal/pipeline"
)

type PipelineRunner interface {
	Run(ctx context.Context, params pipeline.RunParams) pipeline.RunReport
}

type RunHandler struct {
	runner PipelineRunner
}

func NewRunHandler(runner PipelineRunner) *RunHandler {
	return &RunHandler{runner: runner}
}

// TriggerRun godoc
// @Summary Run the pipeline over a window
// @Description Runs fetch, normalize and aggregate (or the selected subset) synchronously and returns per-stage counters
// @Tags Runs
// @Accept json
// @Produce json
// @Param request body RunRequest true "Run window"
// @Success 200 {object} RunResponse
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} RunResponse "Run failed, counters still reported"
// @Router /runs [post]
func (h *RunHandler) TriggerRun(c *fiber.Ctx) error {
	var req RunRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Error: "invalid_json",
		})
	}

	report := h.runner.Run(c.UserContext(), pipeline.RunParams{
		From:   req.From,
		To:     req.To,
		Stages: req.Stages,
	})

	var verr *batch.ValidationError
	if errors.As(report.Err, &verr) {
		return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_run_parameters",
			Message: verr.Error(),
		})
	}

	status := http.StatusOK
	if report.Status == pipeline.StatusFailed {
		status = http.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(toResponse(report))
}

func toResponse(r pipeline.RunReport) RunResponse {
	resp := RunResponse{
		RunID:      r.RunID.String(),
		Status:     string(r.Status),
		Stages:     make([]StageReportResponse, 0, len(r.Stages)),
		DurationMS: r.Duration.Milliseconds(),
	}
	if !r.Window.From.IsZero() {
		resp.From = r.Window.From.Format(time.RFC3339Nano)
		resp.To = r.Window.To.Format(time.RFC3339Nano)
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	for _, s := range r.Stages {
		sr := StageReportResponse{
			Stage:      s.Stage,
			Read:       s.Read,
			Written:    s.Written,
			Skipped:    s.Skipped,
			Failures:   s.Failures,
			DurationMS: s.Duration.Milliseconds(),
		}
		if s.Err != nil {
			sr.Error = s.Err.Error()
		}
		resp.Stages = append(resp.Stages, sr)
	}
	return resp
}
