package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/oggyb/scene-match/internal/app"
	"github.com/oggyb/scene-match/internal/db"
	svcErr "github.com/oggyb/scene-match/internal/errors"
	"github.com/oggyb/scene-match/internal/metrics"
	"github.com/oggyb/scene-match/internal/repository"
)

const (
	StatusSuccess  = "success"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// Result is what a job reports after a run that did not fail outright.
type Result struct {
	ItemFailures int
	Degraded     bool
}

// Job is one periodic unit of work.
type Job interface {
	Name() string
	Every() time.Duration
	Run(ctx context.Context) (Result, error)
}

// JobStatus is the externally visible state of a job.
type JobStatus struct {
	Name                string
	Every               time.Duration
	LastRunAt           *time.Time
	LastSuccessAt       *time.Time
	LastStatus          string
	LastError           string
	ConsecutiveFailures int
	LastItemFailures    int
	NextDueAt           time.Time
	Running             bool
}

// Scheduler evaluates every job's due predicate on each tick and runs the
// due ones one after another. Jobs never overlap, manual triggers included.
type Scheduler struct {
	jobs    []Job
	byName  map[string]Job
	runs    *repository.TaskRunRepository
	clock   clockwork.Clock
	log     *slog.Logger
	metrics *metrics.Metrics

	tick       time.Duration
	jobTimeout time.Duration
	backoff    time.Duration

	runMu   sync.Mutex
	mu      sync.RWMutex
	state   map[string]db.TaskRun
	running string

	cron gocron.Scheduler
}

func New(appCtx *app.AppContext, jobs ...Job) (*Scheduler, error) {
	s := &Scheduler{
		byName:     make(map[string]Job, len(jobs)),
		runs:       repository.NewTaskRunRepository(appCtx.DB),
		clock:      appCtx.Clock,
		log:        appCtx.Logger.With("component", "scheduler"),
		metrics:    appCtx.Metrics,
		tick:       appCtx.Config.Scheduler.Tick,
		jobTimeout: appCtx.Config.Scheduler.JobTimeout,
		backoff:    appCtx.Config.Scheduler.RetryBackoff,
		state:      make(map[string]db.TaskRun, len(jobs)),
	}
	for _, j := range jobs {
		if _, dup := s.byName[j.Name()]; dup {
			return nil, fmt.Errorf("duplicate job %q", j.Name())
		}
		if j.Every() <= 0 {
			return nil, fmt.Errorf("job %q: cadence must be positive", j.Name())
		}
		s.jobs = append(s.jobs, j)
		s.byName[j.Name()] = j
	}
	return s, nil
}

// Load restores run records persisted by a previous process.
func (s *Scheduler) Load(ctx context.Context) error {
	stored, err := s.runs.LoadAll(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, run := range stored {
		if _, ok := s.byName[name]; ok {
			s.state[name] = run
		}
	}
	return nil
}

// Tick runs every due job in registration order and returns the names run.
func (s *Scheduler) Tick(ctx context.Context) []string {
	var ran []string
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			break
		}
		if !s.due(job, s.clock.Now()) {
			continue
		}
		s.run(ctx, job)
		ran = append(ran, job.Name())
	}
	return ran
}

// Trigger runs name right away regardless of its cadence. Only that job's
// record changes, so other jobs keep their next due time.
func (s *Scheduler) Trigger(ctx context.Context, name string) (JobStatus, error) {
	job, ok := s.byName[name]
	if !ok {
		return JobStatus{}, svcErr.NotFound("job %s", name)
	}
	s.run(ctx, job)
	return s.status(job), nil
}

// Status reports every job sorted by name.
func (s *Scheduler) Status() []JobStatus {
	out := make([]JobStatus, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, s.status(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start loads persisted records and drives Tick from gocron.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Load(ctx); err != nil {
		return err
	}

	cron, err := gocron.NewScheduler(
		gocron.WithClock(s.clock),
		gocron.WithLogger(s.log),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return err
	}
	_, err = cron.NewJob(
		gocron.DurationJob(s.tick),
		gocron.NewTask(func() { s.Tick(ctx) }),
		gocron.WithName("scheduler-tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = cron.Shutdown()
		return err
	}

	cron.Start()
	s.cron = cron
	s.log.Info("scheduler started", "tick", s.tick, "jobs", len(s.jobs))
	return nil
}

// Stop waits for the running tick to finish.
func (s *Scheduler) Stop() error {
	if s.cron == nil {
		return nil
	}
	err := s.cron.Shutdown()
	s.cron = nil
	s.log.Info("scheduler stopped")
	return err
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	name := s.setRunning(job.Name())
	defer s.setRunning("")

	start := s.clock.Now().UTC().Truncate(time.Millisecond)
	var (
		jctx   context.Context
		cancel context.CancelFunc
	)
	if s.jobTimeout > 0 {
		jctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
	} else {
		jctx, cancel = context.WithCancel(ctx)
	}
	res, err := job.Run(jctx)
	cancel()
	elapsed := s.clock.Since(start)

	status := StatusSuccess
	switch {
	case errors.Is(err, context.Canceled):
		status = StatusCanceled
	case err != nil:
		status = StatusFailed
	case res.Degraded:
		status = StatusDegraded
	}

	s.mu.Lock()
	rec := s.state[name]
	rec.TaskName = name
	rec.LastRunAt = &start
	rec.LastStatus = status
	rec.LastItemFailures = res.ItemFailures
	rec.LastError = ""
	if err != nil {
		rec.LastError = err.Error()
	}
	if status == StatusSuccess {
		rec.ConsecutiveFailures = 0
		rec.LastSuccessAt = &start
	} else {
		rec.ConsecutiveFailures++
	}
	s.state[name] = rec
	s.mu.Unlock()

	s.metrics.JobFinished(name, status, elapsed.Seconds(), res.ItemFailures)

	log := s.log.With("job", name, "status", status, "elapsed", elapsed, "item_failures", res.ItemFailures)
	switch status {
	case StatusSuccess:
		log.Info("job finished")
	case StatusDegraded:
		log.Warn("job finished degraded", "consecutive_failures", rec.ConsecutiveFailures)
	default:
		log.Error("job failed", "err", err, "consecutive_failures", rec.ConsecutiveFailures)
	}

	if err := s.runs.Save(context.WithoutCancel(ctx), rec); err != nil {
		s.log.Error("persist task run", "job", name, "err", err)
	}
}

func (s *Scheduler) setRunning(name string) string {
	s.mu.Lock()
	s.running = name
	s.mu.Unlock()
	return name
}

func (s *Scheduler) due(job Job, now time.Time) bool {
	s.mu.RLock()
	rec, ok := s.state[job.Name()]
	s.mu.RUnlock()
	if !ok || rec.LastRunAt == nil {
		return true
	}
	return !now.Before(s.nextDue(job, rec))
}

// nextDue backs off exponentially after failures, never past the cadence.
func (s *Scheduler) nextDue(job Job, rec db.TaskRun) time.Time {
	if rec.LastRunAt == nil {
		return time.Time{}
	}
	wait := job.Every()
	if rec.ConsecutiveFailures > 0 && s.backoff > 0 {
		wait = s.backoff
		for i := 1; i < rec.ConsecutiveFailures && wait < job.Every(); i++ {
			wait *= 2
		}
		wait = min(wait, job.Every())
	}
	return rec.LastRunAt.Add(wait)
}

func (s *Scheduler) status(job Job) JobStatus {
	s.mu.RLock()
	rec := s.state[job.Name()]
	running := s.running == job.Name()
	s.mu.RUnlock()

	st := JobStatus{
		Name:                job.Name(),
		Every:               job.Every(),
		LastRunAt:           rec.LastRunAt,
		LastSuccessAt:       rec.LastSuccessAt,
		LastStatus:          rec.LastStatus,
		LastError:           rec.LastError,
		ConsecutiveFailures: rec.ConsecutiveFailures,
		LastItemFailures:    rec.LastItemFailures,
		NextDueAt:           s.nextDue(job, rec),
		Running:             running,
	}
	if st.NextDueAt.IsZero() {
		st.NextDueAt = s.clock.Now().UTC()
	}
	return st
}
