package pipeline

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/alignread/internal/config"
)

// JobStatus represents the state of an extraction job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusOpening    JobStatus = "opening"
	StatusExtracting JobStatus = "extracting"
	StatusCompleted  JobStatus = "completed"
	StatusPartial    JobStatus = "partial"
	StatusFailed     JobStatus = "failed"
)

// Done reports whether the status is final.
func (s JobStatus) Done() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// Request is the body of a job submission: the corpus files plus the
// extraction settings. Settings left out take the server defaults.
type Request struct {
	Files
	config.Extract
}

// Job tracks the state of a single extraction run.
type Job struct {
	mu sync.Mutex

	ID      string
	Request Request

	Status JobStatus
	Phase  string

	Progress Progress
	Summary  *Summary

	// OutputPath is where the worker writes the result.
	OutputPath string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Progress counts finished document pairs while a job runs.
type Progress struct {
	Groups        int      `json:"groups"`
	SkippedGroups int      `json:"skipped_groups"`
	Pairs         int      `json:"pairs"`
	Errors        []string `json:"errors"`
}

// NewJob returns a queued job for req.
func NewJob(req Request) *Job {
	now := time.Now()
	return &Job{
		ID:        newJobID(),
		Request:   req,
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// List returns every job held, ordered by ID and so by creation time.
func (s *JobStore) List() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	slices.SortFunc(out, func(a, b *Job) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Delete removes a job from the store.
func (s *JobStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// Len returns the number of jobs held.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes finished jobs not updated within the TTL and returns them,
// so their output can be removed too.
func (s *JobStore) Cleanup() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*Job
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		stale := job.Status.Done() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if stale {
			delete(s.jobs, id)
			expired = append(expired, job)
		}
	}
	return expired
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Errors = append(j.Progress.Errors, err)
	j.UpdatedAt = time.Now()
}

// RecordGroup folds one finished document pair into the progress.
func (j *Job) RecordGroup(r GroupReport) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Groups++
	j.Progress.Pairs += r.Pairs
	if r.Skipped {
		j.Progress.SkippedGroups++
		if r.Err != nil {
			j.Progress.Errors = append(j.Progress.Errors, r.Err.Error())
		}
	}
	j.UpdatedAt = time.Now()
}

// Finish stores the run summary and sets the final status: partial when
// document pairs were skipped.
func (j *Job) Finish(sum Summary) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Summary = &sum
	j.Status = StatusCompleted
	if sum.SkippedGroups > 0 {
		j.Status = StatusPartial
	}
	j.Phase = "done"
	j.UpdatedAt = time.Now()
}

// SetOutputPath records where the result is written.
func (j *Job) SetOutputPath(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = path
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Phase     string    `json:"phase"`
	Alignment string    `json:"alignment"`
	WriteMode string    `json:"write_mode"`
	Progress  Progress  `json:"progress"`
	Summary   *Summary  `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OutputPath string `json:"-"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)
	var sum *Summary
	if j.Summary != nil {
		s := *j.Summary
		sum = &s
	}
	return JobSnapshot{
		ID:        j.ID,
		Status:    j.Status,
		Phase:     j.Phase,
		Alignment: j.Request.Alignment,
		WriteMode: j.Request.WriteMode,
		Progress: Progress{
			Groups:        j.Progress.Groups,
			SkippedGroups: j.Progress.SkippedGroups,
			Pairs:         j.Progress.Pairs,
			Errors:        errs,
		},
		Summary:    sum,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
		OutputPath: j.OutputPath,
	}
}
