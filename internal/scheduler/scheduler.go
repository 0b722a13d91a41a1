// Package scheduler runs the periodic ingestion, training and prediction
// tasks on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/logging"
	"github.com/fortuna/courtcast/internal/metrics"
)

// Task is one scheduled unit of work.
type Task func(ctx context.Context) error

// Task names
const (
	TaskIncremental   = "incremental_refresh"
	TaskLivePoll      = "live_poll"
	TaskFullIngestion = "full_ingestion"
	TaskRetrain       = "retrain"
	TaskPredict       = "predict"
)

// Config holds scheduler configuration
type Config struct {
	IncrementalInterval time.Duration
	LivePollInterval    time.Duration
	FullIngestionCron   string
	RetrainCron         string
	PredictCron         string
	MaxRetries          int
	RetryDelay          time.Duration
	// MaxConsecutiveErrors failures in a row make a task log at error
	// level until it next succeeds.
	MaxConsecutiveErrors int
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		IncrementalInterval:  5 * time.Minute,
		LivePollInterval:     30 * time.Second,
		FullIngestionCron:    "0 4 * * *",
		RetrainCron:          "0 5 * * 1",
		PredictCron:          "30 6 * * *",
		MaxRetries:           3,
		RetryDelay:           5 * time.Second,
		MaxConsecutiveErrors: 5,
	}
}

// Tasks are the jobs to schedule. Nil tasks are not scheduled.
type Tasks struct {
	Incremental   Task
	LivePoll      Task
	FullIngestion Task
	Retrain       Task
	Predict       Task
}

// Entry describes a scheduled task.
type Entry struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cfg    Config
	tasks  Tasks
	cron   *cron.Cron
	logger zerolog.Logger

	mu       sync.Mutex
	entries  map[string]cron.EntryID
	specs    map[string]string
	failures map[string]int
}

// New creates a scheduler. Overlapping runs of the same task are skipped
// and panics are recovered.
func New(cfg Config, tasks Tasks) *Scheduler {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = def.MaxConsecutiveErrors
	}

	logger := logging.Component("scheduler")
	cl := cronLogger{logger}
	return &Scheduler{
		cfg:      cfg,
		tasks:    tasks,
		cron:     cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		logger:   logger,
		entries:  make(map[string]cron.EntryID),
		specs:    make(map[string]string),
		failures: make(map[string]int),
	}
}

// Start registers every configured task and starts the cron loop. Tasks
// run with ctx; cancel it to abort in-flight runs.
func (s *Scheduler) Start(ctx context.Context) error {
	every := func(d time.Duration) string {
		if d <= 0 {
			return ""
		}
		return "@every " + d.String()
	}

	for _, t := range []struct {
		name string
		spec string
		task Task
	}{
		{TaskIncremental, every(s.cfg.IncrementalInterval), s.tasks.Incremental},
		{TaskLivePoll, every(s.cfg.LivePollInterval), s.tasks.LivePoll},
		{TaskFullIngestion, s.cfg.FullIngestionCron, s.tasks.FullIngestion},
		{TaskRetrain, s.cfg.RetrainCron, s.tasks.Retrain},
		{TaskPredict, s.cfg.PredictCron, s.tasks.Predict},
	} {
		if t.task == nil || t.spec == "" {
			continue
		}
		name, task := t.name, t.task
		id, err := s.cron.AddFunc(t.spec, func() { s.run(ctx, name, task) })
		if err != nil {
			return fmt.Errorf("failed to schedule %s (%q): %w", name, t.spec, err)
		}
		s.mu.Lock()
		s.entries[name], s.specs[name] = id, t.spec
		s.mu.Unlock()
		s.logger.Info().Str("task", name).Str("schedule", t.spec).Msg("task scheduled")
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for running tasks until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries lists the scheduled tasks by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for name, id := range s.entries {
		out = append(out, Entry{Name: name, Schedule: s.specs[name], Next: s.cron.Entry(id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RunNow runs a scheduled task immediately, with the same retries.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	task := s.task(name)
	if task == nil {
		return fmt.Errorf("unknown task %q", name)
	}
	return s.run(ctx, name, task)
}

func (s *Scheduler) task(name string) Task {
	switch name {
	case TaskIncremental:
		return s.tasks.Incremental
	case TaskLivePoll:
		return s.tasks.LivePoll
	case TaskFullIngestion:
		return s.tasks.FullIngestion
	case TaskRetrain:
		return s.tasks.Retrain
	case TaskPredict:
		return s.tasks.Predict
	}
	return nil
}

// run executes a task with retries. Store outages and fatal errors are
// not retried.
func (s *Scheduler) run(ctx context.Context, name string, task Task) error {
	start := time.Now()
	var err error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		if err = task(ctx); err == nil {
			break
		}
		if apperr.Classify(err) != apperr.Skip || ctx.Err() != nil {
			break
		}
		s.logger.Warn().Err(err).Str("task", name).Int("attempt", attempt).Int("max", s.cfg.MaxRetries).Msg("task attempt failed")
		if attempt < s.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.RetryDelay):
			}
		}
	}

	s.mu.Lock()
	if err != nil {
		s.failures[name]++
	} else {
		s.failures[name] = 0
	}
	failures := s.failures[name]
	s.mu.Unlock()

	if err != nil {
		metrics.RecordError("scheduler", name)
		ev := s.logger.Warn()
		if failures >= s.cfg.MaxConsecutiveErrors {
			ev = s.logger.Error()
		}
		ev.Err(err).Str("task", name).Int("consecutive_failures", failures).Msg("task failed")
		return err
	}
	s.logger.Debug().Str("task", name).Dur("duration", time.Since(start)).Msg("task complete")
	return nil
}

// ConsecutiveFailures reports how many runs of a task failed in a row.
func (s *Scheduler) ConsecutiveFailures(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[name]
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
