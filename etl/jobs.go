/*
jobs.go - Job status tracking and background job manager

PURPOSE:
  JobStatus is the externally visible state of one load job; Job wraps
  it with a mutex so the loader can update it while the API polls it.
  Manager owns the job table and runs submitted loads in the background.

OWNERSHIP:
  The loader is the only writer of a running job's status; readers get
  copies. A job id stays resolvable until ClearCompleted evicts it.

SEE ALSO:
  - loader.go: Produces the status updates
  - api: Exposes submit/status over HTTP
*/
package etl

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stperic/snapqc/qc"
)

// =============================================================================
// JOB STATUS
// =============================================================================

// JobState is the lifecycle position of a load job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobStatus is a point-in-time view of one load job. Either the job
// completed with exact counts, or it failed carrying the validation
// error list or a single persistence/source error message - never both.
type JobStatus struct {
	JobID      string
	FiscalYear int
	File       string
	State      JobState

	StartedAt   *time.Time
	CompletedAt *time.Time

	RowsProcessed  int
	RowsSkipped    int
	CasesCreated   int
	MembersCreated int
	ErrorsCreated  int

	TransformErrors    []string
	ValidationErrors   []string
	ValidationWarnings []string
	ErrorMessage       string
}

// Job is a mutable job record shared between the loader goroutine and
// status readers.
type Job struct {
	mu     sync.Mutex
	status JobStatus
}

// NewJob creates a queued job.
func NewJob(id string, fiscalYear int, file string) *Job {
	return &Job{status: JobStatus{
		JobID:      id,
		FiscalYear: fiscalYear,
		File:       file,
		State:      JobQueued,
	}}
}

// ID returns the job identifier.
func (j *Job) ID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status.JobID
}

// Update applies fn under the job lock.
func (j *Job) Update(fn func(*JobStatus)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.status)
}

// Status returns a copy safe to hand to other goroutines.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := j.status
	s.TransformErrors = append([]string(nil), j.status.TransformErrors...)
	s.ValidationErrors = append([]string(nil), j.status.ValidationErrors...)
	s.ValidationWarnings = append([]string(nil), j.status.ValidationWarnings...)
	return s
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager tracks load jobs and runs them in the background. In a
// multi-process deployment this table would live in the store instead.
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewManager() *Manager {
	return &Manager{jobs: make(map[string]*Job)}
}

// Submit registers a job and starts the load in a goroutine, returning
// the job id immediately.
func (m *Manager) Submit(ctx context.Context, loader *Loader, path string) string {
	id := uuid.NewString()
	job := NewJob(id, loader.FiscalYear, path)

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	go loader.Load(ctx, path, job)
	return id
}

// Run executes a load synchronously and returns the final status.
// Used by the CLI; Submit is the API path.
func (m *Manager) Run(ctx context.Context, loader *Loader, path string) JobStatus {
	id := uuid.NewString()
	job := NewJob(id, loader.FiscalYear, path)

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return loader.Load(ctx, path, job)
}

// Get returns a copy of the job status.
func (m *Manager) Get(id string) (JobStatus, error) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return JobStatus{}, qc.ErrJobNotFound
	}
	return job.Status(), nil
}

// List returns every known job, newest submissions last.
func (m *Manager) List() []JobStatus {
	m.mu.RLock()
	statuses := make([]JobStatus, 0, len(m.jobs))
	for _, job := range m.jobs {
		statuses = append(statuses, job.Status())
	}
	m.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool {
		a, b := statuses[i].StartedAt, statuses[j].StartedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return statuses
}

// ClearCompleted evicts finished jobs older than maxAge and returns how
// many were removed.
func (m *Manager) ClearCompleted(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, job := range m.jobs {
		s := job.Status()
		if s.State != JobCompleted && s.State != JobFailed {
			continue
		}
		if s.CompletedAt != nil && s.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}
