package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgallion1/alignread/internal/config"
)

// Orchestrator queues extraction jobs and runs them on a fixed pool of
// workers.
type Orchestrator struct {
	jobs  *JobStore
	queue chan *Job
	stats *PairStats
	log   *slog.Logger
	cfg   config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Start launches the workers.
func NewOrchestrator(cfg config.Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:  NewJobStore(cfg.JobTTL),
		queue: make(chan *Job, cfg.MaxQueueSize),
		stats: NewPairStats(time.Hour),
		log:   log,
		cfg:   cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.cfg.CorpusRoot, o.cfg.OutputDir, o.stats, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.cleanup()
			}
		}
	}()
}

func (o *Orchestrator) cleanup() {
	for _, job := range o.jobs.Cleanup() {
		if err := removeOutput(job); err != nil {
			o.log.Warn("remove expired output", "job_id", job.ID, "error", err)
		}
	}
}

func removeOutput(job *Job) error {
	path := job.Snapshot().OutputPath
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return nil
	default:
		job.AddError("queue full")
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Stats returns the pair timing statistics shared by all workers.
func (o *Orchestrator) Stats() *PairStats {
	return o.stats
}

// ListJobs returns snapshots of every held job, oldest first.
func (o *Orchestrator) ListJobs() []JobSnapshot {
	jobs := o.jobs.List()
	out := make([]JobSnapshot, len(jobs))
	for i, job := range jobs {
		out[i] = job.Snapshot()
	}
	return out
}

// ErrJobRunning is returned when removing a job that has not finished.
var ErrJobRunning = errors.New("job has not finished")

// RemoveJob forgets a finished job and deletes its output. It reports
// whether the job existed.
func (o *Orchestrator) RemoveJob(id string) (bool, error) {
	job := o.jobs.Get(id)
	if job == nil {
		return false, nil
	}
	if !job.Snapshot().Status.Done() {
		return true, ErrJobRunning
	}
	if err := removeOutput(job); err != nil {
		return true, fmt.Errorf("remove output: %w", err)
	}
	o.jobs.Delete(id)
	return true, nil
}
