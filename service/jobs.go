package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcussviniciusa/lyz-sub000/model"
	"github.com/marcussviniciusa/lyz-sub000/pkg/logger"
	"github.com/marcussviniciusa/lyz-sub000/pkg/metrics"
)

// Progress milestones for the analysis pipeline. Extraction accounts for the
// first quarter; AI page analysis fills up to 90; 100 is set only together
// with the completed status.
const (
	progressStarted    = 10
	progressExtracted  = 25
	progressAnalysisHi = 90
)

// SubmitInput is one analysis request. Either Document or ManualSummary must
// be supplied.
type SubmitInput struct {
	ReportID      string
	Tenant        string
	Document      []byte
	ContentType   string
	ManualSummary string
}

// JobRunner owns the lifecycle of analysis jobs: submission, background
// extraction and AI invocation, progress reporting and persistence of the
// final canonical result. It is the only writer of job records.
type JobRunner struct {
	jobs       *JobStore
	reports    *ReportStore
	extractor  *Extractor
	analyzer   Analyzer
	normalizer *Normalizer
	metrics    *metrics.Metrics

	mu       sync.Mutex
	inflight map[string]string // report id -> job id currently running
}

func NewJobRunner(jobs *JobStore, reports *ReportStore, extractor *Extractor, analyzer Analyzer, normalizer *Normalizer, m *metrics.Metrics) *JobRunner {
	return &JobRunner{
		jobs:       jobs,
		reports:    reports,
		extractor:  extractor,
		analyzer:   analyzer,
		normalizer: normalizer,
		metrics:    m,
		inflight:   make(map[string]string),
	}
}

// Submit accepts an analysis request and returns the job ID immediately;
// extraction and the AI call run on a background goroutine. A second
// submission for a report whose job is still running is coalesced into
// watching the existing job, preventing duplicate AI spend.
func (r *JobRunner) Submit(input SubmitInput) (string, error) {
	if len(input.Document) == 0 && strings.TrimSpace(input.ManualSummary) == "" {
		return "", model.ErrInvalidInput
	}

	r.mu.Lock()
	if input.ReportID != "" {
		if existing, ok := r.inflight[input.ReportID]; ok {
			r.mu.Unlock()
			return existing, nil
		}
	}

	jobID := uuid.New().String()
	job := &model.AnalysisJob{
		ID:       jobID,
		ReportID: input.ReportID,
		Tenant:   input.Tenant,
		Status:   model.JobPending,
	}
	r.jobs.Create(job)

	if input.ReportID != "" {
		r.inflight[input.ReportID] = jobID
	}
	r.mu.Unlock()

	r.metrics.JobsSubmitted.Inc()

	go r.run(jobID, input)

	return jobID, nil
}

// GetStatus returns a read-only snapshot of the job, or nil if unknown.
func (r *JobRunner) GetStatus(jobID string) *model.AnalysisJob {
	return r.jobs.Get(jobID)
}

// SaveFinalResult records the canonical result on the job and persists it
// under the owning report. Idempotent: the first call wins, the job is
// immutable once completed.
func (r *JobRunner) SaveFinalResult(jobID string, raw any, result model.CanonicalResult) {
	job := r.jobs.Get(jobID)
	if job == nil {
		return
	}

	if !r.jobs.Complete(jobID, raw, &result) {
		return
	}

	if job.ReportID != "" {
		r.reports.SetAnalysisResult(job.ReportID, jobID, &result)
	}

	r.metrics.JobsCompleted.Inc()
	r.metrics.JobDuration.Observe(time.Since(job.CreatedAt).Seconds())
}

// run executes the extraction + AI pipeline for one job.
func (r *JobRunner) run(jobID string, input SubmitInput) {
	ctx := logger.WithJob(context.Background(), jobID, input.ReportID)

	defer func() {
		if input.ReportID != "" {
			r.mu.Lock()
			delete(r.inflight, input.ReportID)
			r.mu.Unlock()
		}
	}()

	logger.Info(ctx, "analysis job started",
		"document_bytes", len(input.Document),
		"has_manual_summary", input.ManualSummary != "",
	)

	// Cheap size and format gates run before the job leaves pending; a
	// trivially invalid document fails without ever reporting processing
	if len(input.Document) > 0 {
		if err := r.extractor.ValidateDocument(input.Document); err != nil {
			r.fail(ctx, jobID, input.ReportID, err)
			return
		}
	}

	r.jobs.SetProcessing(jobID, progressStarted)
	if input.ReportID != "" {
		r.reports.UpdateStatus(input.ReportID, model.StatusProcessing, "")
	}

	raw, err := r.analyze(ctx, jobID, input)
	if err != nil {
		r.fail(ctx, jobID, input.ReportID, err)
		return
	}

	result := r.normalizer.Normalize(raw)
	r.SaveFinalResult(jobID, raw, result)

	logger.Info(ctx, "analysis job completed",
		"markers", len(result.Markers),
		"recommendations", len(result.Recommendations),
	)
}

// analyze produces the raw AI output for the input, reporting progress along
// the way.
func (r *JobRunner) analyze(ctx context.Context, jobID string, input SubmitInput) (any, error) {
	// Manual summaries skip extraction entirely
	if len(input.Document) == 0 {
		r.jobs.SetProgress(jobID, progressExtracted)
		return r.analyzer.AnalyzeText(ctx, input.ManualSummary)
	}

	// Scanned report images go to the vision model; they have no text layer
	if kind := DocumentKind(input.Document); kind == "jpeg" || kind == "png" {
		r.jobs.SetProgress(jobID, progressExtracted)
		return r.analyzer.AnalyzeImage(ctx, input.Document, "image/"+kind)
	}

	doc, err := r.extractor.Extract(ctx, input.Document)
	if err != nil {
		return nil, err
	}
	r.jobs.SetProgress(jobID, progressExtracted)

	logger.Info(ctx, "document extracted",
		"pages", len(doc.Pages),
		"avg_chars_per_page", int(doc.Quality.AverageCharsPerPage),
		"high_quality", doc.Quality.IsLikelyHighQuality,
	)

	if len(doc.Pages) == 1 {
		raw, err := r.analyzer.AnalyzeText(ctx, doc.Pages[0].RawText)
		if err != nil {
			return nil, err
		}
		r.jobs.SetProgress(jobID, progressAnalysisHi)
		return raw, nil
	}

	// Multi-page documents are analyzed per page; the raw output is the
	// ordered array of page results, which the normalizer aggregates
	pageResults := make([]any, 0, len(doc.Pages))
	for i, page := range doc.Pages {
		raw, err := r.analyzer.AnalyzeText(ctx, page.RawText)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		pageResults = append(pageResults, raw)

		span := progressAnalysisHi - progressExtracted
		r.jobs.SetProgress(jobID, progressExtracted+span*(i+1)/len(doc.Pages))
	}
	return pageResults, nil
}

// fail transitions the job to failed and records the error on the owning
// report. Demo data is never substituted server side; the error propagates
// through the status endpoint.
func (r *JobRunner) fail(ctx context.Context, jobID, reportID string, err error) {
	msg := err.Error()

	var extErr *model.ExtractionError
	var anaErr *model.AnalysisError
	switch {
	case errors.As(err, &extErr):
		msg = extErr.UserMessage()
		r.metrics.ExtractionErrors.WithLabelValues(string(extErr.Kind)).Inc()
	case errors.As(err, &anaErr):
		msg = anaErr.UserMessage()
		r.metrics.AnalysisErrors.WithLabelValues(string(anaErr.Kind)).Inc()
	}

	if !r.jobs.Fail(jobID, msg) {
		return
	}
	if reportID != "" {
		r.reports.UpdateStatus(reportID, model.StatusFailed, msg)
	}

	r.metrics.JobsFailed.Inc()
	logger.Error(ctx, "analysis job failed", "error", err, "user_message", msg)
}
