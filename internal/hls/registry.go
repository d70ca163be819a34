package hls

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	"github.com/harmoniaapp/harmonia-server/internal/id"
)

// Job is the handle for one running transcoder process.
type Job struct {
	ID      string
	ItemID  string
	Variant domain.Variant
	WorkDir string

	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	mu     sync.Mutex
	result domain.JobResult
}

// Running reports whether the process has not yet reached a terminal state.
func (j *Job) Running() bool {
	select {
	case <-j.done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel kills the process if it is still running.
func (j *Job) Cancel() { j.cancel() }

// Result returns the job outcome. Zero-valued until Done is closed.
func (j *Job) Result() domain.JobResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

func (j *Job) finish(result domain.JobResult) {
	j.mu.Lock()
	j.result = result
	j.mu.Unlock()
	close(j.done)
}

// Registry serializes and bounds concurrent transcodes: at most one
// running job per item, at most maxJobs running jobs server-wide. The
// mutex guards only map mutations and spawning, never I/O waits.
type Registry struct {
	runner  *Runner
	maxJobs int
	logger  *slog.Logger
	metrics *Metrics

	mu   sync.Mutex
	jobs map[string]*Job // itemID -> active job
}

// NewRegistry creates a job registry backed by runner.
func NewRegistry(runner *Runner, maxJobs int, logger *slog.Logger, metrics *Metrics) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Registry{
		runner:  runner,
		maxJobs: maxJobs,
		logger:  logger,
		metrics: metrics,
		jobs:    make(map[string]*Job),
	}
}

// EnsureRunning returns the active job for itemID, applying the
// admission policy:
//
//   - same variant already running: reuse the existing handle
//   - different variant running: cancel it, then spawn the new one
//   - registry full: cancel the job with the oldest start time
//
// onExit, if non-nil, runs once after a newly spawned job terminates,
// for any reason, before the job is deregistered. It is ignored on reuse.
func (r *Registry) EnsureRunning(itemID string, variant domain.Variant, workDir string, argv []string, onExit func(domain.JobResult)) *Job {
	r.mu.Lock()

	if existing, ok := r.jobs[itemID]; ok {
		if existing.Variant == variant {
			r.mu.Unlock()
			return existing
		}
		r.logger.Info("preempting transcode for variant change",
			slog.String("item_id", itemID),
			slog.String("old_variant", existing.Variant.Key()),
			slog.String("new_variant", variant.Key()),
		)
		existing.cancel()
		delete(r.jobs, itemID)
	}

	// Admission control: newest demand wins over the longest-running job.
	if len(r.jobs) >= r.maxJobs {
		r.evictOldestLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        id.MustGenerate("job"),
		ItemID:    itemID,
		Variant:   variant,
		WorkDir:   workDir,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	r.jobs[itemID] = job
	r.metrics.JobsStarted.Inc()
	r.metrics.JobsRunning.Inc()

	go r.run(ctx, job, argv, onExit)

	r.mu.Unlock()

	r.logger.Info("transcode started",
		slog.String("job_id", job.ID),
		slog.String("item_id", itemID),
		slog.String("variant", variant.Key()),
	)
	return job
}

// run executes the process and deregisters the job on termination.
// Runs without the registry lock.
func (r *Registry) run(ctx context.Context, job *Job, argv []string, onExit func(domain.JobResult)) {
	result, err := r.runner.Run(ctx, argv)
	if err != nil {
		r.logger.Error("transcoder spawn failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	job.finish(result)
	r.metrics.JobsRunning.Dec()
	switch result.Status {
	case domain.JobStatusCompleted:
		r.metrics.JobsCompleted.Inc()
	case domain.JobStatusCancelled:
		r.metrics.JobsCancelled.Inc()
	default:
		r.metrics.JobsFailed.Inc()
	}

	if onExit != nil {
		onExit(result)
	}

	r.mu.Lock()
	if current, ok := r.jobs[job.ItemID]; ok && current == job {
		delete(r.jobs, job.ItemID)
	}
	r.mu.Unlock()

	r.logger.Info("transcode finished",
		slog.String("job_id", job.ID),
		slog.String("item_id", job.ItemID),
		slog.String("status", string(result.Status)),
		slog.Int("exit_code", result.ExitCode),
	)
}

// evictOldestLocked cancels the job with the oldest start time.
// Caller holds the mutex.
func (r *Registry) evictOldestLocked() {
	var oldest *Job
	for _, job := range r.jobs {
		if oldest == nil || job.startedAt.Before(oldest.startedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return
	}
	r.logger.Info("evicting oldest transcode for admission",
		slog.String("job_id", oldest.ID),
		slog.String("item_id", oldest.ItemID),
	)
	oldest.cancel()
	delete(r.jobs, oldest.ItemID)
}

// Active returns the number of registered jobs.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// CancelAll cancels every registered job and waits for their processes
// to terminate. Used on shutdown.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		job.cancel()
		jobs = append(jobs, job)
	}
	r.mu.Unlock()

	for _, job := range jobs {
		<-job.Done()
	}
}
