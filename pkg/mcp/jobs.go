package mcp

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"url-spider/pkg/crawler"
	"url-spider/pkg/output"
)

// JobStatus represents the current state of a crawl job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsActive reports whether the job has not reached a terminal status
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

// Job represents a background crawl job
type Job struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"` // Site key, or the joined seed list for ad-hoc crawls
	Seeds        []string  `json:"seeds"`
	Status       JobStatus `json:"status"`
	RunID        string    `json:"run_id,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
	Discovered   int       `json:"discovered"`
	PagesFetched int       `json:"pages_fetched"`
	Failures     int       `json:"failures"`
	Queued       int       `json:"queued"`
	ErrorMessage string    `json:"error_message,omitempty"`

	// Internal fields
	report *output.Report
	ctx    context.Context
	cancel context.CancelFunc
}

// JobManager manages background crawl jobs
type JobManager struct {
	jobs  map[string]*Job
	mu    sync.RWMutex
	byKey map[string]string // key -> jobID for active jobs
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:  make(map[string]*Job),
		byKey: make(map[string]string),
	}
}

// CreateJob registers a pending job for key. If a job for the same key is still active it is returned
// instead, with created set to false.
func (m *JobManager) CreateJob(key string, seeds []string) (job *Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, exists := m.byKey[key]; exists {
		if existing := m.jobs[existingID]; existing != nil && existing.Status.IsActive() {
			return snapshot(existing), false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	job = &Job{
		ID:        uuid.New().String(),
		Key:       key,
		Seeds:     append([]string(nil), seeds...),
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.jobs[job.ID] = job
	m.byKey[key] = job.ID
	return snapshot(job), true
}

// snapshot copies a job so callers can read it without holding the lock
func snapshot(job *Job) *Job {
	cp := *job
	cp.Seeds = append([]string(nil), job.Seeds...)
	return &cp
}

// GetJob retrieves a copy of a job by ID, or nil
func (m *JobManager) GetJob(jobID string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, exists := m.jobs[jobID]; exists {
		return snapshot(job)
	}
	return nil
}

// GetJobByKey retrieves the active job for key, or nil
func (m *JobManager) GetJobByKey(key string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if jobID, exists := m.byKey[key]; exists {
		if job := m.jobs[jobID]; job != nil {
			return snapshot(job)
		}
	}
	return nil
}

// IsRunning checks if a job is currently active for key
func (m *JobManager) IsRunning(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if jobID, exists := m.byKey[key]; exists {
		job := m.jobs[jobID]
		return job != nil && job.Status.IsActive()
	}
	return false
}

// UpdateStatus moves a job to status. A job that was already cancelled keeps that status.
func (m *JobManager) UpdateStatus(jobID string, status JobStatus, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists || job.Status == JobStatusCancelled {
		return
	}
	job.Status = status
	if !status.IsActive() {
		job.CompletedAt = time.Now()
		delete(m.byKey, job.Key)
	}
	if errorMsg != "" {
		job.ErrorMessage = errorMsg
	}
}

// UpdateProgress copies the engine's progress counters onto a job
func (m *JobManager) UpdateProgress(jobID string, p crawler.Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists {
		job.RunID = p.RunID
		job.Discovered = p.Discovered
		job.PagesFetched = p.PagesFetched
		job.Failures = p.Failures
		job.Queued = p.Queued
	}
}

// SetReport stores the final report of a job; partial reports of cancelled jobs are kept as well
func (m *JobManager) SetReport(jobID string, rep *output.Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, exists := m.jobs[jobID]; exists {
		job.report = rep
	}
}

// Report returns the stored report of a job, or nil while the job has none
func (m *JobManager) Report(jobID string) *output.Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, exists := m.jobs[jobID]; exists {
		return job.report
	}
	return nil
}

// CancelJob cancels an active job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists && job.Status.IsActive() {
		job.cancel()
		job.Status = JobStatusCancelled
		job.CompletedAt = time.Now()
		delete(m.byKey, job.Key)
		return true
	}
	return false
}

// CancelAll cancels all active jobs
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.Status.IsActive() {
			job.cancel()
			job.Status = JobStatusCancelled
			job.CompletedAt = time.Now()
		}
	}
	m.byKey = make(map[string]string)
}

// ListJobs returns copies of all jobs, oldest first
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, snapshot(job))
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.Before(jobs[j].StartedAt) })
	return jobs
}

// GetContext returns the context for a job (for running the engine)
func (m *JobManager) GetContext(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job, exists := m.jobs[jobID]; exists {
		return job.ctx
	}
	return context.Background()
}
