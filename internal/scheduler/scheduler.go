// Package scheduler triggers pipeline runs on cron schedules. Overlapping
// triggers of one pipeline are skipped by the runner and recorded as such.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/mapviz/internal/config"
	"github.com/couchcryptid/mapviz/internal/domain"
	"github.com/couchcryptid/mapviz/internal/pipeline"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, name, trigger string) (domain.Run, error)
}

// Upcoming is the next scheduled trigger of a pipeline.
type Upcoming struct {
	Pipeline string    `json:"pipeline"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
}

type job struct {
	pipeline string
	spec     string
	schedule cron.Schedule
}

// Scheduler owns the cron loop. Schedules are evaluated in UTC.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	clock  clockwork.Clock
	logger *slog.Logger
	jobs   []job

	mu  sync.Mutex
	ctx context.Context
}

// New registers every catalog pipeline that has a schedule.
func New(catalog *config.Catalog, runner Runner, clock clockwork.Clock, logger *slog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		runner: runner,
		clock:  clock,
		logger: logger,
		ctx:    context.Background(),
	}

	for _, p := range catalog.Pipelines {
		if p.Schedule == "" {
			continue
		}
		sched, err := cron.ParseStandard(p.Schedule)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: schedule %q: %v", domain.ErrConfig, p.Name, p.Schedule, err)
		}
		name := p.Name
		s.cron.Schedule(sched, cron.FuncJob(func() { s.trigger(name) }))
		s.jobs = append(s.jobs, job{pipeline: name, spec: p.Schedule, schedule: sched})
		logger.Info("pipeline scheduled", "pipeline", name, "schedule", p.Schedule)
	}
	return s, nil
}

// Start runs the cron loop in the background. Runs it triggers use ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts the cron loop and returns a context that is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Upcoming lists the next trigger of each scheduled pipeline, soonest first.
func (s *Scheduler) Upcoming() []Upcoming {
	now := s.clock.Now().UTC()
	out := make([]Upcoming, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, Upcoming{Pipeline: j.pipeline, Schedule: j.spec, Next: j.schedule.Next(now)})
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].Next.Before(out[k].Next) })
	return out
}

func (s *Scheduler) trigger(name string) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	run, err := s.runner.Run(ctx, name, domain.TriggerSchedule)
	switch {
	case errors.Is(err, pipeline.ErrRunning):
		s.logger.Info("scheduled run skipped", "pipeline", name, "run_id", run.ID)
	case err != nil:
		s.logger.Error("scheduled run failed", "pipeline", name, "run_id", run.ID, "error", err)
	default:
		s.logger.Debug("scheduled run finished", "pipeline", name, "run_id", run.ID, "duration", run.Duration())
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
