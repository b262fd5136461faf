package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/marcussviniciusa/lyz-sub000/middleware"
	"github.com/marcussviniciusa/lyz-sub000/model"
	"github.com/marcussviniciusa/lyz-sub000/service"
)

type AnalysisHandler struct {
	runner *service.JobRunner
	store  *service.ReportStore
	blobs  BlobStore
}

func NewAnalysisHandler(runner *service.JobRunner, store *service.ReportStore, blobs BlobStore) *AnalysisHandler {
	return &AnalysisHandler{
		runner: runner,
		store:  store,
		blobs:  blobs,
	}
}

type SubmitAnalysisRequest struct {
	ReportID          string `json:"reportId"`
	ManualSummaryText string `json:"manualSummaryText"`
}

// Submit accepts a new analysis job. The job runs in the background; the
// response carries only the job ID for status polling.
func (h *AnalysisHandler) Submit(c *gin.Context) {
	tenant := middleware.GetTenant(c)

	var req SubmitAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	input := service.SubmitInput{
		Tenant:        tenant,
		ManualSummary: strings.TrimSpace(req.ManualSummaryText),
	}

	if req.ReportID != "" {
		report := h.store.Get(req.ReportID)
		if report == nil || report.Tenant != tenant {
			c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
			return
		}

		data, err := h.blobs.Download(c.Request.Context(), report.ObjectName)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stored document: " + err.Error()})
			return
		}

		input.ReportID = report.ID
		input.Document = data
		input.ContentType = report.ContentType
	}

	jobID, err := h.runner.Submit(input)
	if err != nil {
		if errors.Is(err, model.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit analysis"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
}

// StatusResponse is the polled job status contract.
type StatusResponse struct {
	Status       string                 `json:"status"`
	Progress     int                    `json:"progress"`
	IsProcessing bool                   `json:"isProcessing"`
	Data         *model.CanonicalResult `json:"data,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// Status returns the job's status snapshot for polling clients.
func (h *AnalysisHandler) Status(c *gin.Context) {
	tenant := middleware.GetTenant(c)
	id := c.Param("id")

	job := h.runner.GetStatus(id)
	if job == nil || job.Tenant != tenant {
		c.JSON(http.StatusNotFound, gin.H{"error": "Analysis job not found"})
		return
	}

	resp := StatusResponse{
		Status:       string(job.Status),
		Progress:     job.Progress,
		IsProcessing: job.Status == model.JobProcessing,
	}

	switch job.Status {
	case model.JobPending:
		resp.Message = "Analysis queued"
	case model.JobProcessing:
		resp.Message = "Analysis in progress"
	case model.JobCompleted:
		resp.Data = job.Result
	case model.JobFailed:
		resp.Error = job.ErrorMsg
	}

	c.JSON(http.StatusOK, resp)
}
