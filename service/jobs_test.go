package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/marcussviniciusa/lyz-sub000/config"
	"github.com/marcussviniciusa/lyz-sub000/model"
	"github.com/marcussviniciusa/lyz-sub000/pkg/metrics"
)

// stubAnalyzer returns canned results, optionally blocking until released.
type stubAnalyzer struct {
	result  any
	err     error
	release chan struct{}
}

func (s *stubAnalyzer) AnalyzeText(ctx context.Context, text string) (any, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-time.After(5 * time.Second):
		}
	}
	return s.result, s.err
}

func (s *stubAnalyzer) AnalyzeImage(ctx context.Context, data []byte, mimeType string) (any, error) {
	return s.result, s.err
}

func newTestRunner(analyzer Analyzer) (*JobRunner, *ReportStore, *JobStore) {
	storeCfg := &config.StoreConfig{MaxReports: 100, MaxJobs: 100}
	jobs := NewJobStore(storeCfg)
	reports := NewReportStore(storeCfg)
	extractor := NewExtractor(&config.ExtractConfig{TimeoutSeconds: 5, MinBytes: 100, MaxBytes: 20 << 20})
	runner := NewJobRunner(jobs, reports, extractor, analyzer, NewNormalizer(), metrics.New())
	return runner, reports, jobs
}

func waitForTerminal(t *testing.T, runner *JobRunner, jobID string) *model.AnalysisJob {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job := runner.GetStatus(jobID)
		if job != nil && job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Job %s did not reach a terminal status in time", jobID)
	return nil
}

func TestSubmitManualSummaryCompletes(t *testing.T) {
	analyzer := &stubAnalyzer{result: map[string]any{
		"summary": "Fasting glucose is elevated above the reference range.",
		"outOfRange": []any{
			map[string]any{"name": "Glucose", "value": "112", "unit": "mg/dL", "referenceRange": "70-99", "status": "High"},
		},
		"recommendations": []any{"Repeat the fasting glucose test in 3 months"},
	}}
	runner, reports, _ := newTestRunner(analyzer)
	reports.Save(&model.Report{ID: "r1", Tenant: "alice", Status: model.StatusPending})

	jobID, err := runner.Submit(SubmitInput{
		ReportID:      "r1",
		Tenant:        "alice",
		ManualSummary: "glucose 112 mg/dL, reference 70-99",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if jobID == "" {
		t.Fatal("Expected a job ID")
	}

	job := waitForTerminal(t, runner, jobID)
	if job.Status != model.JobCompleted {
		t.Fatalf("Expected completed, got %s (%s)", job.Status, job.ErrorMsg)
	}
	if job.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", job.Progress)
	}
	if job.Result == nil || len(job.Result.Markers) != 1 {
		t.Fatalf("Expected 1 marker in result, got %+v", job.Result)
	}
	if job.Result.Markers[0].Name != "Glucose" {
		t.Errorf("Expected Glucose marker, got %s", job.Result.Markers[0].Name)
	}

	report := reports.Get("r1")
	if report.Status != model.StatusCompleted {
		t.Errorf("Expected report completed, got %s", report.Status)
	}
	if report.JobID != jobID {
		t.Errorf("Expected report to reference job %s, got %s", jobID, report.JobID)
	}
	if report.AnalysisResult == nil {
		t.Error("Expected analysis result persisted on the report")
	}
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	runner, _, _ := newTestRunner(&stubAnalyzer{})

	_, err := runner.Submit(SubmitInput{ReportID: "r1", ManualSummary: "   "})
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestSubmitCoalescesInflightJob(t *testing.T) {
	release := make(chan struct{})
	analyzer := &stubAnalyzer{
		result:  map[string]any{"summary": "ok", "recommendations": []any{}},
		release: release,
	}
	runner, _, _ := newTestRunner(analyzer)

	first, err := runner.Submit(SubmitInput{ReportID: "r1", ManualSummary: "sample text"})
	if err != nil {
		t.Fatalf("First submit failed: %v", err)
	}
	second, err := runner.Submit(SubmitInput{ReportID: "r1", ManualSummary: "sample text"})
	if err != nil {
		t.Fatalf("Second submit failed: %v", err)
	}
	if first != second {
		t.Errorf("Expected the in-flight job to be reused, got %s and %s", first, second)
	}

	close(release)
	waitForTerminal(t, runner, first)

	// After completion a new submission starts a fresh job
	third, err := runner.Submit(SubmitInput{ReportID: "r1", ManualSummary: "sample text"})
	if err != nil {
		t.Fatalf("Third submit failed: %v", err)
	}
	if third == first {
		t.Error("Expected a new job after the previous one finished")
	}
	waitForTerminal(t, runner, third)
}

func TestSubmitAnalysisFailureSurfacesUserMessage(t *testing.T) {
	analyzer := &stubAnalyzer{
		err: model.NewAnalysisError(model.AnalysisUpstreamUnavailable, errors.New("status 503")),
	}
	runner, reports, _ := newTestRunner(analyzer)
	reports.Save(&model.Report{ID: "r1", Tenant: "alice", Status: model.StatusPending})

	jobID, err := runner.Submit(SubmitInput{ReportID: "r1", ManualSummary: "sample text"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	job := waitForTerminal(t, runner, jobID)
	if job.Status != model.JobFailed {
		t.Fatalf("Expected failed, got %s", job.Status)
	}
	if !strings.Contains(job.ErrorMsg, "temporarily unavailable") {
		t.Errorf("Expected user-facing message, got %q", job.ErrorMsg)
	}
	if strings.Contains(job.ErrorMsg, "503") {
		t.Errorf("Expected internal detail hidden from clients, got %q", job.ErrorMsg)
	}

	report := reports.Get("r1")
	if report.Status != model.StatusFailed {
		t.Errorf("Expected report failed, got %s", report.Status)
	}
	if report.ErrorMsg != job.ErrorMsg {
		t.Errorf("Expected report error to match job error, got %q", report.ErrorMsg)
	}
}

func TestSubmitTinyDocumentFailsExtraction(t *testing.T) {
	runner, reports, _ := newTestRunner(&stubAnalyzer{})
	reports.Save(&model.Report{ID: "r1", Tenant: "alice", Status: model.StatusPending})

	jobID, err := runner.Submit(SubmitInput{
		ReportID: "r1",
		Document: []byte("%PDF-1.4 truncated"),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// The undersized document is rejected before the job leaves pending, so
	// no poll may ever observe the processing state
	var job *model.AnalysisJob
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job = runner.GetStatus(jobID)
		if job.Status == model.JobProcessing {
			t.Fatal("Job must not reach processing for an undersized document")
		}
		if job.Status.Terminal() {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if job == nil || !job.Status.Terminal() {
		t.Fatal("Job did not reach a terminal status in time")
	}

	if job.Status != model.JobFailed {
		t.Fatalf("Expected failed, got %s", job.Status)
	}
	if !strings.Contains(job.ErrorMsg, "too small") {
		t.Errorf("Expected too-small message, got %q", job.ErrorMsg)
	}
	if job.Progress != 0 {
		t.Errorf("Expected progress to stay 0 when failing from pending, got %d", job.Progress)
	}

	report := reports.Get("r1")
	if report.Status != model.StatusFailed {
		t.Errorf("Expected report failed, got %s", report.Status)
	}
}

func TestSubmitImageRoutedToVisionModel(t *testing.T) {
	analyzer := &stubAnalyzer{result: map[string]any{
		"summary":         "Scanned report shows values within range.",
		"recommendations": []any{"Maintain current supplementation"},
	}}
	runner, _, _ := newTestRunner(analyzer)

	doc := append([]byte{0xFF, 0xD8, 0xFF}, make([]byte, 200)...)
	jobID, err := runner.Submit(SubmitInput{ReportID: "r1", Document: doc, ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	job := waitForTerminal(t, runner, jobID)
	if job.Status != model.JobCompleted {
		t.Fatalf("Expected completed, got %s (%s)", job.Status, job.ErrorMsg)
	}
	if job.Result.Summary == "" {
		t.Error("Expected a summary from the vision path")
	}
}
