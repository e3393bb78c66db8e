package fiber

type DailyMetricResponse struct {
	TenantID   string `json:"tenant_id" example:"1"`
	EventDate  string `json:"event_date" example:"2025-01-01"`
	EventType  string `json:"event_type" example:"PURCHASE"`
	EventCount int64  `json:"event_count" example:"2"`
	AmountSum  string `json:"amount_sum" example:"120.00"`
}

type MetricsPageResponse struct {
	Content       []DailyMetricResponse `json:"content"`
	Page          int                   `json:"page"`
	Size          int                   `json:"size"`
	TotalElements int64                 `json:"total_elements"`
	TotalPages    int                   `json:"total_pages"`
}

type ErrorResponse struct {
	Error   string `json:"error" example:"invalid_request"`
	Message string `json:"message" example:"from date is after to date"`
}
