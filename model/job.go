package model

import (
	"time"
)

// JobStatus is the lifecycle state of an analysis job
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// AnalysisJob tracks one asynchronous analysis request. The job runner is
// the only writer; status readers get value copies so fields only ever move
// forward from their point of view.
type AnalysisJob struct {
	ID        string           `json:"id"`
	ReportID  string           `json:"report_id,omitempty"`
	Tenant    string           `json:"tenant"`
	Status    JobStatus        `json:"status"`
	Progress  int              `json:"progress"`
	RawResult any              `json:"raw_result,omitempty"`
	Result    *CanonicalResult `json:"result,omitempty"`
	ErrorMsg  string           `json:"error_msg,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
