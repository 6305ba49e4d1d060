package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prompt-general/answerhub/internal/events"
	"github.com/prompt-general/answerhub/internal/provider"
	"github.com/prompt-general/answerhub/pkg/models"
)

var (
	// ErrJobAlreadyRunning is returned with the existing job when
	// maintenance is requested for a collection that already has one
	ErrJobAlreadyRunning = errors.New("embedding job already running for collection")

	// ErrJobNotFound is returned for unknown job IDs
	ErrJobNotFound = errors.New("embedding job not found")
)

// MaintenanceStore is the slice of the knowledge store the pipeline needs
type MaintenanceStore interface {
	ListStaleEntries(ctx context.Context, collection string) ([]models.Entry, error)
	UpdateEmbedding(ctx context.Context, id string, vector []float32) error
}

// Dispatcher runs maintenance work off the request path
type Dispatcher interface {
	Submit(name string, fn func(ctx context.Context)) error
}

// Config holds pipeline tunables
type Config struct {
	// BatchSize bounds provider calls and memory per iteration
	BatchSize int
	// FailureTolerance is the per-run fraction of entries allowed to fail
	// before the whole job is marked failed
	FailureTolerance float64
	// JobTimeout bounds one maintenance run end to end
	JobTimeout time.Duration
}

// Runner maintains the derived embedding index: it recomputes vectors for
// entries whose embedding is missing or stale and writes them back, one
// run per collection at a time.
//
// The at-most-one-running-job-per-collection invariant is enforced by an
// atomic check-and-set on the collection-keyed registry; duplicate
// requests are coalesced onto the existing job. The pipeline is idempotent,
// so at-least-once dispatch of the same run is harmless.
type Runner struct {
	store      MaintenanceStore
	embedder   provider.Embedder
	dispatcher Dispatcher
	publisher  events.Publisher
	cfg        Config

	mu        sync.Mutex
	jobs      map[string]*models.EmbeddingJob
	runningBy map[string]string // collection -> job ID
}

// NewRunner creates a maintenance runner. publisher may be nil.
func NewRunner(store MaintenanceStore, embedder provider.Embedder, dispatcher Dispatcher, publisher events.Publisher, cfg Config) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if publisher == nil {
		publisher = events.NewNoop()
	}
	return &Runner{
		store:      store,
		embedder:   embedder,
		dispatcher: dispatcher,
		publisher:  publisher,
		cfg:        cfg,
		jobs:       make(map[string]*models.EmbeddingJob),
		runningBy:  make(map[string]string),
	}
}

// Run starts a maintenance job for collection and returns its handle
// immediately; processing happens on the dispatcher. If a job is already
// active for the collection, the existing job is returned together with
// ErrJobAlreadyRunning.
func (r *Runner) Run(collection string) (*models.EmbeddingJob, error) {
	if collection == "" {
		collection = models.DefaultCollection
	}

	r.mu.Lock()
	if existingID, ok := r.runningBy[collection]; ok {
		job := copyJob(r.jobs[existingID])
		r.mu.Unlock()
		return job, ErrJobAlreadyRunning
	}

	job := &models.EmbeddingJob{
		ID:         uuid.NewString(),
		Collection: collection,
		Status:     models.JobPending,
		CreatedAt:  time.Now().UTC(),
	}
	r.jobs[job.ID] = job
	r.runningBy[collection] = job.ID
	r.pruneLocked()
	// Snapshot before Submit: once the dispatcher has the job the worker
	// mutates the shared struct under r.mu, which this handle must not touch.
	handle := copyJob(job)
	r.mu.Unlock()

	err := r.dispatcher.Submit("embed:"+collection, func(ctx context.Context) {
		r.process(ctx, job.ID, collection)
	})
	if err != nil {
		r.mu.Lock()
		delete(r.jobs, job.ID)
		delete(r.runningBy, collection)
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to dispatch embedding job: %w", err)
	}

	return handle, nil
}

// JobStatus returns a snapshot of the job with the given ID
func (r *Runner) JobStatus(jobID string) (*models.EmbeddingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return copyJob(job), nil
}

func (r *Runner) process(ctx context.Context, jobID, collection string) {
	// A panicking run must still fail the job and free the collection slot,
	// or maintenance for the collection is blocked forever.
	defer func() {
		if rec := recover(); rec != nil {
			r.finish(jobID, collection, 0, 0, fmt.Errorf("maintenance run panicked: %v", rec))
		}
	}()

	if r.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.JobTimeout)
		defer cancel()
	}

	r.transition(jobID, collection, func(job *models.EmbeddingJob) {
		now := time.Now().UTC()
		job.Status = models.JobRunning
		job.StartedAt = &now
	}, false)

	entries, err := r.store.ListStaleEntries(ctx, collection)
	if err != nil {
		r.finish(jobID, collection, 0, 0, err)
		return
	}

	// Nothing stale: the run is a no-op and succeeds immediately.
	if len(entries) == 0 {
		r.finish(jobID, collection, 0, 0, nil)
		return
	}

	var (
		processed int
		failed    int
		firstErr  error
		fatalErr  error
	)

	record := func(entryID string, err error) {
		failed++
		if firstErr == nil {
			firstErr = err
		}
		log.Printf("pipeline: entry %s embedding failed: %v", entryID, err)
	}

batches:
	for start := 0; start < len(entries); start += r.cfg.BatchSize {
		// Cancellation is cooperative and checked between batches only,
		// so an in-flight batch always completes or fails cleanly.
		if err := ctx.Err(); err != nil {
			fatalErr = fmt.Errorf("maintenance canceled: %w", err)
			break
		}

		end := start + r.cfg.BatchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		texts := make([]string, len(batch))
		for i, entry := range batch {
			texts[i] = entry.Question
		}

		vectors, err := r.embedder.EmbedBatch(ctx, texts)
		if err == nil {
			for i, entry := range batch {
				if err := r.store.UpdateEmbedding(ctx, entry.ID, vectors[i]); err != nil {
					record(entry.ID, err)
					continue
				}
				processed++
			}
			continue
		}

		if !provider.IsRetryable(err) {
			fatalErr = err
			break
		}

		// The batched call failed transiently; fall back to one call per
		// entry so a single bad input cannot sink the whole batch.
		for _, entry := range batch {
			vector, err := r.embedder.Embed(ctx, entry.Question)
			if err != nil {
				if !provider.IsRetryable(err) {
					fatalErr = err
					break batches
				}
				record(entry.ID, err)
				continue
			}
			if err := r.store.UpdateEmbedding(ctx, entry.ID, vector); err != nil {
				record(entry.ID, err)
				continue
			}
			processed++
		}
	}

	var jobErr error
	switch {
	case fatalErr != nil:
		jobErr = fatalErr
	case failed > 0 && float64(failed)/float64(len(entries)) > r.cfg.FailureTolerance:
		jobErr = fmt.Errorf("failure rate %d/%d exceeds tolerance: %w", failed, len(entries), firstErr)
	}

	r.finish(jobID, collection, processed, failed, jobErr)
}

func (r *Runner) finish(jobID, collection string, processed, failed int, jobErr error) {
	r.transition(jobID, collection, func(job *models.EmbeddingJob) {
		now := time.Now().UTC()
		job.ProcessedCount = processed
		job.FailedCount = failed
		job.FinishedAt = &now
		if jobErr != nil {
			job.Status = models.JobFailed
			job.Error = jobErr.Error()
		} else {
			job.Status = models.JobSucceeded
		}
	}, true)
}

// transition mutates the job under the registry lock and publishes the
// resulting state. release frees the collection slot for the next run.
func (r *Runner) transition(jobID, collection string, mutate func(*models.EmbeddingJob), release bool) {
	r.mu.Lock()
	job, ok := r.jobs[jobID]
	if !ok || job.Status.Terminal() {
		r.mu.Unlock()
		return
	}
	mutate(job)
	if release {
		delete(r.runningBy, collection)
	}
	snapshot := copyJob(job)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.publisher.PublishJob(ctx, models.JobEvent{
		JobID:          snapshot.ID,
		Collection:     snapshot.Collection,
		Status:         snapshot.Status,
		ProcessedCount: snapshot.ProcessedCount,
		FailedCount:    snapshot.FailedCount,
		Error:          snapshot.Error,
		Timestamp:      time.Now().UTC(),
	}); err != nil {
		log.Printf("pipeline: failed to publish job event for %s: %v", snapshot.ID, err)
	}
}

// maxFinishedJobs bounds how many terminal jobs stay queryable; older ones
// are archived away when new jobs register.
const maxFinishedJobs = 64

func (r *Runner) pruneLocked() {
	finished := make([]*models.EmbeddingJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		if job.Status.Terminal() {
			finished = append(finished, job)
		}
	}
	if len(finished) <= maxFinishedJobs {
		return
	}

	sort.Slice(finished, func(i, j int) bool {
		return finished[i].FinishedAt.Before(*finished[j].FinishedAt)
	})
	for _, job := range finished[:len(finished)-maxFinishedJobs] {
		delete(r.jobs, job.ID)
	}
}

func copyJob(job *models.EmbeddingJob) *models.EmbeddingJob {
	if job == nil {
		return nil
	}
	snapshot := *job
	return &snapshot
}
