// Package jobs runs long operations requested over REST one at a time on
// a single background worker.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fortuna/courtcast/internal/logging"
	"github.com/fortuna/courtcast/internal/metrics"
)

var (
	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("job not found")
	// ErrUnknownType is returned by Submit when no handler is registered.
	ErrUnknownType = errors.New("unknown job type")
	// ErrQueueFull is returned by Submit when the queue has no room.
	ErrQueueFull = errors.New("job queue full")
	// ErrStopped is returned by Submit after Shutdown.
	ErrStopped = errors.New("job runner stopped")
)

// Options tunes a Runner.
type Options struct {
	QueueSize    int
	HistoryLimit int
	Now          func() time.Time
}

// Runner coordinates job bookkeeping and execution.
type Runner struct {
	handlers map[Type]Handler
	queue    chan string
	opts     Options

	mu      sync.RWMutex
	jobs    map[string]*Job
	order   []string
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// NewRunner constructs a Runner. Call Start to launch the worker.
func NewRunner(handlers map[Type]Handler, opts Options) *Runner {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		handlers: handlers,
		queue:    make(chan string, opts.QueueSize),
		opts:     opts,
		jobs:     make(map[string]*Job),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logging.Component("jobs"),
	}
}

// Start launches the background worker loop.
func (r *Runner) Start() {
	r.wg.Add(1)
	go r.worker()
}

// Shutdown stops the worker and waits for the running job to return.
// Queued jobs are marked failed.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.opts.Now()
	for _, j := range r.jobs {
		if j.Status == StatusQueued {
			j.Status, j.Error, j.CompletedAt = StatusFailed, ErrStopped.Error(), &now
		}
	}
	return nil
}

// Submit queues a job and returns a snapshot of it.
func (r *Runner) Submit(t Type, params map[string]string) (*Job, error) {
	if _, ok := r.handlers[t]; !ok {
		return nil, errors.Wrapf(ErrUnknownType, "%q", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, ErrStopped
	}

	job := &Job{
		ID:        uuid.NewString(),
		Type:      t,
		Params:    params,
		Status:    StatusQueued,
		CreatedAt: r.opts.Now(),
	}
	select {
	case r.queue <- job.ID:
	default:
		return nil, ErrQueueFull
	}
	r.jobs[job.ID] = job
	r.order = append(r.order, job.ID)
	r.trim()

	r.logger.Info().Str("job_id", job.ID).Str("type", string(t)).Msg("job queued")
	return job.Copy(), nil
}

// Get returns a snapshot of a job.
func (r *Runner) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", id)
	}
	return j.Copy(), nil
}

// Recent lists up to n jobs, newest first.
func (r *Runner) Recent(n int) []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Job, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0 && (n <= 0 || len(out) < n); i-- {
		out = append(out, r.jobs[r.order[i]].Copy())
	}
	return out
}

// trim drops the oldest finished jobs beyond the history limit. Callers
// hold mu.
func (r *Runner) trim() {
	excess := len(r.order) - r.opts.HistoryLimit
	if excess <= 0 {
		return
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if excess > 0 && r.jobs[id].Done() {
			delete(r.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case id := <-r.queue:
			r.execute(id)
		}
	}
}

func (r *Runner) execute(id string) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	started := r.opts.Now()
	job.Status, job.StartedAt = StatusRunning, &started
	handler := r.handlers[job.Type]
	params := job.Copy().Params
	r.mu.Unlock()

	logger := r.logger.With().Str("job_id", id).Str("type", string(job.Type)).Logger()
	logger.Info().Msg("job started")

	result, err := r.run(handler, params)

	r.mu.Lock()
	completed := r.opts.Now()
	job.CompletedAt = &completed
	if err != nil {
		job.Status, job.Error = StatusFailed, err.Error()
	} else {
		job.Status, job.Result = StatusCompleted, result
	}
	r.mu.Unlock()

	if err != nil {
		metrics.RecordError("jobs", string(job.Type))
		logger.Error().Err(err).Dur("duration", completed.Sub(started)).Msg("job failed")
		return
	}
	logger.Info().Dur("duration", completed.Sub(started)).Msg("job completed")
}

// run calls the handler, turning a panic into a failed job.
func (r *Runner) run(h Handler, params map[string]string) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("job panicked: %v", p)
		}
	}()
	return h(r.ctx, params)
}

// Types lists the registered job types.
func (r *Runner) Types() []Type {
	out := make([]Type, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
