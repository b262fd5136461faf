package service

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/marcussviniciusa/lyz-sub000/config"
	"github.com/marcussviniciusa/lyz-sub000/model"
)

// ReportStore is an in-memory store for report records, a bounded map behind
// the same surface a database adapter would implement.
type ReportStore struct {
	reports    map[string]*model.Report
	mu         sync.RWMutex
	maxReports int // 0 = unlimited
}

func NewReportStore(cfg *config.StoreConfig) *ReportStore {
	maxReports := cfg.MaxReports
	if maxReports < 0 {
		maxReports = 0
	}
	return &ReportStore{
		reports:    make(map[string]*model.Report),
		maxReports: maxReports,
	}
}

func (s *ReportStore) Save(report *model.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report.UpdatedAt = time.Now()

	// Store an own copy so the caller's pointer never aliases the record
	// mutated by UpdateStatus and SetAnalysisResult
	stored := *report
	s.reports[report.ID] = &stored

	s.cleanupIfNeeded()
}

// Get returns a snapshot copy of the report, or nil if unknown. Readers never
// share the stored record with the job goroutine that mutates it.
func (s *ReportStore) Get(id string) *model.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reports[id]
	if !ok {
		return nil
	}
	snapshot := *report
	return &snapshot
}

// GetByTenant returns snapshot copies of the tenant's reports, newest first.
func (s *ReportStore) GetByTenant(tenant string) []*model.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Report
	for _, r := range s.reports {
		if r.Tenant == tenant {
			snapshot := *r
			result = append(result, &snapshot)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (s *ReportStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, id)
}

func (s *ReportStore) UpdateStatus(id, status string, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.reports[id]; ok {
		r.Status = status
		r.ErrorMsg = errMsg
		r.UpdatedAt = time.Now()
	}
}

// SetAnalysisResult persists the canonical result under the owning report so
// it can be re-served without re-running the AI call.
func (s *ReportStore) SetAnalysisResult(id string, jobID string, result *model.CanonicalResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.reports[id]; ok {
		r.JobID = jobID
		r.AnalysisResult = result
		r.Status = model.StatusCompleted
		r.ErrorMsg = ""
		r.UpdatedAt = time.Now()
	}
}

// cleanupIfNeeded removes oldest reports if the store exceeds maxReports.
// Must be called with lock held.
func (s *ReportStore) cleanupIfNeeded() {
	if s.maxReports <= 0 {
		return
	}
	if len(s.reports) <= s.maxReports {
		return
	}

	reports := make([]*model.Report, 0, len(s.reports))
	for _, r := range s.reports {
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.Before(reports[j].CreatedAt)
	})

	removeCount := len(reports) - s.maxReports
	for i := 0; i < removeCount; i++ {
		slog.Info("auto-cleaning old report",
			"report_id", reports[i].ID,
			"created_at", reports[i].CreatedAt,
		)
		delete(s.reports, reports[i].ID)
	}
}

func (s *ReportStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

// JobStore holds analysis job records. The job runner is the single writer;
// Get returns value snapshots so status readers never observe a record
// mid-mutation. All transitions are forward-only: progress never decreases
// and a terminal status is immutable.
type JobStore struct {
	jobs    map[string]*model.AnalysisJob
	mu      sync.RWMutex
	maxJobs int
}

func NewJobStore(cfg *config.StoreConfig) *JobStore {
	maxJobs := cfg.MaxJobs
	if maxJobs < 0 {
		maxJobs = 0
	}
	return &JobStore{
		jobs:    make(map[string]*model.AnalysisJob),
		maxJobs: maxJobs,
	}
}

func (s *JobStore) Create(job *model.AnalysisJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = model.JobPending
	}
	s.jobs[job.ID] = job

	s.cleanupIfNeeded()
}

// Get returns a snapshot copy of the job, or nil if unknown.
func (s *JobStore) Get(id string) *model.AnalysisJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	snapshot := *job
	return &snapshot
}

// SetProcessing transitions a pending job to processing. No-op once the job
// has left pending.
func (s *JobStore) SetProcessing(id string, progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != model.JobPending {
		return
	}
	job.Status = model.JobProcessing
	if progress > job.Progress {
		job.Progress = progress
	}
	job.UpdatedAt = time.Now()
}

// SetProgress raises the job's progress. Lower values and terminal jobs are
// ignored, keeping progress monotonically non-decreasing. Progress is capped
// at 99 here; only Complete may set 100.
func (s *JobStore) SetProgress(id string, progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		return
	}
	if progress > 99 {
		progress = 99
	}
	if progress > job.Progress {
		job.Progress = progress
		job.UpdatedAt = time.Now()
	}
}

// Complete records the final result. Idempotent: the first call wins and the
// job is immutable afterwards. Reports whether this call was the first.
func (s *JobStore) Complete(id string, raw any, result *model.CanonicalResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		return false
	}
	job.Status = model.JobCompleted
	job.Progress = 100
	job.RawResult = raw
	job.Result = result
	job.UpdatedAt = time.Now()
	return true
}

// Fail transitions the job to failed with a descriptive error. No-op on
// already-terminal jobs. Reports whether this call won.
func (s *JobStore) Fail(id string, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		return false
	}
	job.Status = model.JobFailed
	job.ErrorMsg = errMsg
	job.UpdatedAt = time.Now()
	return true
}

// cleanupIfNeeded removes oldest terminal jobs over the cap. Must be called
// with lock held.
func (s *JobStore) cleanupIfNeeded() {
	if s.maxJobs <= 0 {
		return
	}
	if len(s.jobs) <= s.maxJobs {
		return
	}

	jobs := make([]*model.AnalysisJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Status.Terminal() {
			jobs = append(jobs, j)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	removeCount := len(s.jobs) - s.maxJobs
	for i := 0; i < removeCount && i < len(jobs); i++ {
		delete(s.jobs, jobs[i].ID)
	}
}

func (s *JobStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
