package domain

import (
	"strconv"

	"logforge/internal/platform/audit"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

type Tenant struct {
	ID                 int64
	Name               string
	Status             Status
	ExternalAPIBaseURL string
	APIKey             string
	audit.Record
}

// Key is the string identifier the pipeline tags every record with.
func (t Tenant) Key() string {
	return strconv.FormatInt(t.ID, 10)
}

func (t Tenant) Active() bool {
	return t.Status == StatusActive
}
