package api

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/convertkit/core/errors"
	"github.com/FocuswithJustin/convertkit/core/units"
	"github.com/FocuswithJustin/convertkit/internal/logging"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// ErrJobFinished is returned when cancelling a job that already ended.
var ErrJobFinished = errors.Wrap(errors.ErrInvalidInput, "job already finished")

// Job is an asynchronous grid conversion.
type Job struct {
	ID          string         `json:"id"`
	Status      JobStatus      `json:"status"`
	Progress    int            `json:"progress"` // 0-100
	Done        int            `json:"done"`     // rows converted
	Total       int            `json:"total"`    // rows in the grid
	From        string         `json:"from"`
	To          string         `json:"to"`
	Mode        string         `json:"mode"`
	Result      *ConvertResult `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	CompletedAt string         `json:"completed_at,omitempty"`

	req      *gridRequest
	ctx      context.Context
	cancel   context.CancelFunc
	finished time.Time
}

// DefaultJobRetention is how long a finished job stays in the store.
const DefaultJobRetention = time.Hour

// JobStore manages conversion jobs in memory. Finished jobs are dropped
// once they are older than the retention period.
type JobStore struct {
	jobs      map[string]*Job
	retention time.Duration
	mu        sync.RWMutex
}

// NewJobStore creates a new job store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:      make(map[string]*Job),
		retention: DefaultJobRetention,
	}
}

// SetRetention changes how long finished jobs are kept. d <= 0 restores
// DefaultJobRetention.
func (s *JobStore) SetRetention(d time.Duration) {
	if d <= 0 {
		d = DefaultJobRetention
	}
	s.mu.Lock()
	s.retention = d
	s.mu.Unlock()
}

// pruneLocked removes finished jobs older than the retention period.
func (s *JobStore) pruneLocked(t time.Time) {
	for id, job := range s.jobs {
		if job.Status.Terminal() && t.Sub(job.finished) > s.retention {
			delete(s.jobs, id)
		}
	}
}

// finishLocked records a terminal transition and releases what the job
// no longer needs.
func (j *Job) finishLocked() {
	j.finished = time.Now()
	j.CompletedAt = j.finished.UTC().Format(time.RFC3339)
	j.UpdatedAt = j.CompletedAt
	j.req = nil
	j.cancel()
}

var globalJobStore = NewJobStore()

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// snapshot copies the exported fields so callers can encode a job while
// its conversion keeps running.
func (j *Job) snapshot() *Job {
	return &Job{
		ID:          j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		Done:        j.Done,
		Total:       j.Total,
		From:        j.From,
		To:          j.To,
		Mode:        j.Mode,
		Result:      j.Result,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		CompletedAt: j.CompletedAt,
	}
}

// Create registers a pending job for req.
func (s *JobStore) Create(req *gridRequest) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	ts := now()

	job := &Job{
		ID:        uuid.New().String(),
		Status:    JobStatusPending,
		Total:     len(req.Grid),
		From:      req.From,
		To:        req.To,
		Mode:      req.Mode.String(),
		CreatedAt: ts,
		UpdatedAt: ts,
		req:       req,
		ctx:       ctx,
		cancel:    cancel,
	}

	s.jobs[job.ID] = job
	return job.snapshot()
}

// Get returns a snapshot of a job.
func (s *JobStore) Get(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, false
	}
	return job.snapshot(), true
}

// List returns snapshots of all jobs, oldest first.
func (s *JobStore) List() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(time.Now())

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.SliceStable(jobs, func(a, b int) bool { return jobs[a].CreatedAt < jobs[b].CreatedAt })
	return jobs
}

// update applies fn to a job unless it has already reached a terminal
// state. It reports whether fn ran.
func (s *JobStore) update(id string, fn func(*Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists || job.Status.Terminal() {
		return false
	}
	fn(job)
	job.UpdatedAt = now()
	if job.Status.Terminal() {
		job.finishLocked()
	}
	return true
}

// Delete cancels a job if it is still running and forgets it.
func (s *JobStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return errors.NewNotFound("job", id)
	}
	job.cancel()
	delete(s.jobs, id)
	return nil
}

// Cancel stops a pending or running job.
func (s *JobStore) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return errors.NewNotFound("job", id)
	}
	if job.Status.Terminal() {
		return errors.Wrapf(ErrJobFinished, "status %s", job.Status)
	}

	job.Status = JobStatusCancelled
	job.Error = "cancelled by user"
	job.finishLocked()
	return nil
}

// runJob converts the job's grid in the background, reporting progress
// through the store and the socket hub.
func (s *JobStore) runJob(id string, workers int) {
	s.mu.RLock()
	job, exists := s.jobs[id]
	var (
		req *gridRequest
		ctx context.Context
	)
	if exists {
		req, ctx = job.req, job.ctx
	}
	s.mu.RUnlock()
	if !exists || req == nil {
		return
	}

	go func() {
		s.update(id, func(j *Job) { j.Status = JobStatusRunning })
		logging.JobEvent(id, "started", "from", req.From, "to", req.To, "rows", len(req.Grid))

		start := time.Now()
		lastPercent := -1
		out, stats, err := units.ConvertGridParallel(ctx, req.Grid, req.From, req.To, req.Mode, workers,
			func(done, total int) {
				p := percent(done, total)
				if p == lastPercent {
					return
				}
				lastPercent = p
				s.update(id, func(j *Job) {
					j.Done = done
					j.Progress = p
				})
				BroadcastProgress(id, done, total)
			})

		if err != nil {
			// Usually Cancel has already recorded the state; this covers
			// a job deleted while running.
			if s.update(id, func(j *Job) {
				j.Status = JobStatusCancelled
				j.Error = err.Error()
			}) {
				BroadcastError(id, "cancelled", err.Error())
			}
			logging.JobEvent(id, "cancelled", "rows_done", stats.Rows)
			return
		}

		_, supported := units.Lookup(req.From, req.To)
		result := &ConvertResult{
			Data:      nonNilGrid(out),
			From:      req.From,
			To:        req.To,
			Mode:      req.Mode.String(),
			Supported: supported,
			Stats:     stats,
		}
		if !s.update(id, func(j *Job) {
			j.Status = JobStatusCompleted
			j.Progress = 100
			j.Done = len(out)
			j.Result = result
		}) {
			return
		}

		logging.GridConversion(ctx, req.From, req.To, req.Mode.String(),
			stats.Rows, stats.Converted, stats.Unchanged, time.Since(start), "job_id", id)
		logging.JobEvent(id, "completed", "converted", stats.Converted, "unchanged", stats.Unchanged)
		BroadcastComplete(id, map[string]interface{}{
			"rows":      stats.Rows,
			"converted": stats.Converted,
			"unchanged": stats.Unchanged,
		})
	}()
}

// handleJobs handles GET /jobs (list) and POST /jobs (create).
func handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs := globalJobStore.List()
		respondWithMeta(w, http.StatusOK, jobs, len(jobs))
	case http.MethodPost:
		req, err := decodeGridRequest(w, r)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		job := globalJobStore.Create(req)
		logging.JobEvent(job.ID, "created", "rows", job.Total)
		globalJobStore.runJob(job.ID, ServerConfig.JobWorkers)
		respond(w, http.StatusCreated, job)
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and POST are allowed")
	}
}

// handleJobByID handles GET /jobs/{id} (status) and DELETE /jobs/{id}, which
// cancels an active job and removes a finished one.
func handleJobByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" {
		respondError(w, http.StatusBadRequest, "MISSING_ID", "Job ID is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, exists := globalJobStore.Get(id)
		if !exists {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
			return
		}
		respond(w, http.StatusOK, job)
	case http.MethodDelete:
		if err := globalJobStore.Cancel(id); err != nil {
			if !errors.Is(err, ErrJobFinished) {
				respondErr(w, r, err)
				return
			}
			if err := globalJobStore.Delete(id); err != nil {
				respondErr(w, r, err)
				return
			}
			logging.JobEvent(id, "deleted")
			respond(w, http.StatusOK, map[string]string{"message": "Job deleted"})
			return
		}
		logging.JobEvent(id, "cancel_requested")
		BroadcastError(id, "cancelled", "cancelled by user")
		respond(w, http.StatusOK, map[string]string{"message": "Job cancelled"})
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and DELETE are allowed")
	}
}
