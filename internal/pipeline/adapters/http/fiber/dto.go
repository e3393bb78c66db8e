package fiber

type RunRequest struct {
	From   string   `json:"from" example:"2025-01-01T00:00:00Z"`
	To     string   `json:"to" example:"2025-01-02T00:00:00Z"`
	Stages []string `json:"stages,omitempty" example:"fetch,normalize,aggregate"`
}

type StageReportResponse struct {
	Stage      string `json:"stage" example:"normalize"`
	Read       int64  `json:"read"`
	Written    int64  `json:"written"`
	Skipped    int64  `json:"skipped"`
	Failures   int64  `json:"failures"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type RunResponse struct {
	RunID      string                `json:"run_id"`
	Status     string                `json:"status" example:"COMPLETED"`
	From       string                `json:"from,omitempty"`
	To         string                `json:"to,omitempty"`
	Stages     []StageReportResponse `json:"stages"`
	DurationMS int64                 `json:"duration_ms"`
	Error      string                `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error" example:"invalid_run_parameters"`
	Message string `json:"message" example:"invalid run parameter \"from\": required"`
}
