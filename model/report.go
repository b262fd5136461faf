package model

import (
	"time"
)

// Report represents an uploaded clinical lab report document
type Report struct {
	ID             string           `json:"id"`
	Filename       string           `json:"filename"`
	Tenant         string           `json:"tenant"`
	ObjectName     string           `json:"object_name"`
	ContentType    string           `json:"content_type"`
	FileURL        string           `json:"file_url"`
	Status         string           `json:"status"` // pending, processing, completed, failed
	JobID          string           `json:"job_id,omitempty"`
	AnalysisResult *CanonicalResult `json:"analysis_result,omitempty"`
	ErrorMsg       string           `json:"error_msg,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Report status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)
