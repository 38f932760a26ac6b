// Package scheduler runs the periodic background jobs: refreshing weather
// snapshots of upcoming events and syncing ICS subscriptions.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "journeycal/internal/log"
)

// JobFunc is one unit of scheduled work.
type JobFunc func(ctx context.Context) error

// Observer is told about every finished run.
type Observer func(name string, err error)

// Scheduler wraps a cron runner. Runs of the same job never overlap.
type Scheduler struct {
	cron     *cron.Cron
	timeout  time.Duration
	observer Observer

	mu   sync.Mutex
	jobs map[string]JobFunc
	ctx  context.Context
}

// New builds a scheduler evaluating specs in loc. Each run is bounded by
// timeout (zero means 5 minutes).
func New(loc *time.Location, timeout time.Duration, observer Observer) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	logger := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		timeout:  timeout,
		observer: observer,
		jobs:     make(map[string]JobFunc),
		ctx:      context.Background(),
	}
}

// Add registers fn under name on the standard five-field cron spec.
func (s *Scheduler) Add(spec, name string, fn JobFunc) error {
	s.mu.Lock()
	if _, dup := s.jobs[name]; dup {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: job %q already registered", name)
	}
	s.jobs[name] = fn
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(spec, func() { _ = s.run(name, fn) }); err != nil {
		s.mu.Lock()
		delete(s.jobs, name)
		s.mu.Unlock()
		return fmt.Errorf("scheduler: job %q: bad spec %q: %w", name, spec, err)
	}
	appLog.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

// Start begins firing jobs. Runs derive their context from ctx, so
// cancelling it aborts in-flight work.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop prevents new runs and waits for running ones to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunNow runs a registered job synchronously, outside the schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	fn, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return s.run(name, fn)
}

func (s *Scheduler) run(name string, fn JobFunc) error {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if err != nil {
		appLog.Error("job failed", err, "job", name, "took", time.Since(start).String())
	} else {
		appLog.Debug("job done", "job", name, "took", time.Since(start).String())
	}
	if s.observer != nil {
		s.observer(name, err)
	}
	return err
}

// cronLogger routes cron's own messages into internal/log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
