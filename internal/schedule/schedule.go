// Package schedule runs recurring pipeline jobs on cron expressions.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Job is one unit of recurring work.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner. A job still running when its next tick
// fires is skipped rather than stacked.
type Scheduler struct {
	cron   *cron.Cron
	parser cron.Parser
	log    *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
}

// New creates a Scheduler accepting five-field expressions and descriptors
// such as @hourly or @every 30m.
func New() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		parser:  parser,
		log:     zap.L().With(zap.String("component", "schedule")),
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers job under name. Names must be unique.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return eris.Wrapf(err, "schedule: parse %q for %s", spec, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return eris.Errorf("schedule: job %s already registered", name)
	}

	id, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return eris.Wrapf(err, "schedule: add %s", name)
	}
	s.entries[name] = id
	s.log.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Next returns the next activation time of a registered job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for
// in-flight jobs to return. Jobs receive ctx.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.entries)))

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run(name string, job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	s.log.Info("job started", zap.String("job", name))
	if err := job(ctx); err != nil {
		s.log.Error("job failed", zap.String("job", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	s.log.Info("job complete", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
}
