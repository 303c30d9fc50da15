// Package scheduler starts due audits. Every poll it loads the scheduled
// audits and, when the cracking host is free, starts the one with the
// earliest start time that is not in the future.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/crackomatic/crackomatic/internal/domain"
	"github.com/crackomatic/crackomatic/internal/job"
	"github.com/crackomatic/crackomatic/internal/metrics"
)

// DefaultInterval is the polling period.
const DefaultInterval = time.Second

// AuditSource lists audits in state Scheduled whose start is not after now.
type AuditSource interface {
	LoadDueAudits(ctx context.Context, now time.Time) ([]domain.Audit, error)
}

// Runner is a started audit. *job.Job implements it.
type Runner interface {
	ID() string
	Start(ctx context.Context) error
	Abort()
	Done() <-chan struct{}
}

// Factory builds the runner for an audit.
type Factory func(domain.Audit) Runner

// JobFactory adapts job.New to a Factory.
func JobFactory(settings func() job.Settings, deps job.Deps) Factory {
	return func(a domain.Audit) Runner {
		return job.New(a, settings(), deps)
	}
}

// Options configures a Scheduler.
type Options struct {
	Source   AuditSource
	Factory  Factory
	Resource *job.Resource
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Scheduler owns the polling loop.
type Scheduler struct {
	source   AuditSource
	factory  Factory
	resource *job.Resource
	interval time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	// jobCtx outlives the polling loop so that stopping the loop does not
	// abort the running audit.
	jobCtx context.Context

	mu     sync.Mutex
	active Runner
}

// New returns a scheduler. Source, Factory and Resource are required.
func New(opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		source:   opts.Source,
		factory:  opts.Factory,
		resource: opts.Resource,
		interval: opts.Interval,
		log:      opts.Logger.With("component", "scheduler"),
		metrics:  opts.Metrics,
		now:      opts.Now,
		jobCtx:   context.Background(),
	}
}

// Run polls until ctx is done. Failing ticks are logged and counted; the
// loop keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.jobCtx = context.WithoutCancel(ctx)
	s.mu.Unlock()
	s.log.Info("scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.metrics.IncSchedulerErrors()
				s.log.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick performs one poll. Errors and panics are returned as
// *domain.SchedulingError.
func (s *Scheduler) Tick(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Debug("tick panicked", "stack", string(debug.Stack()))
			err = &domain.SchedulingError{Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	if s.resource.Busy() {
		return nil
	}
	now := s.now()
	due, err := s.source.LoadDueAudits(ctx, now)
	if err != nil {
		return &domain.SchedulingError{Err: err}
	}
	next, ok := earliest(due, now)
	if !ok {
		return nil
	}

	r := s.factory(next)
	if err := r.Start(s.baseContext()); err != nil {
		if domain.IsResourceBusy(err) {
			return nil
		}
		return &domain.SchedulingError{Err: fmt.Errorf("starting audit %s: %w", next.ID, err)}
	}
	s.log.Info("started audit", "audit_id", next.ID, "domain", next.Domain)
	s.setActive(r)
	return nil
}

// earliest picks the due audit with the smallest start time. Ties keep
// the source order.
func earliest(audits []domain.Audit, now time.Time) (domain.Audit, bool) {
	var (
		best  domain.Audit
		found bool
	)
	for _, a := range audits {
		if a.State != domain.StateScheduled || a.Start.After(now) {
			continue
		}
		if !found || a.Start.Before(best.Start) {
			best, found = a, true
		}
	}
	return best, found
}

// StartNow starts audit immediately, regardless of its start time. It
// returns a *domain.ResourceBusyError while another audit runs.
func (s *Scheduler) StartNow(audit domain.Audit) (Runner, error) {
	r := s.factory(audit)
	if err := r.Start(s.baseContext()); err != nil {
		return nil, err
	}
	s.log.Info("started audit on request", "audit_id", audit.ID)
	s.setActive(r)
	return r, nil
}

// Active returns the running audit, or nil.
func (s *Scheduler) Active() Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	select {
	case <-s.active.Done():
		s.active = nil
	default:
	}
	return s.active
}

// Abort aborts the audit with the given ID if it is the running one.
func (s *Scheduler) Abort(id string) error {
	r := s.Active()
	if r == nil || r.ID() != id {
		return fmt.Errorf("scheduler: audit %s is not running: %w", id, domain.ErrNotFound)
	}
	r.Abort()
	return nil
}

// Shutdown waits for the running audit by taking the resource, which is
// kept afterwards so nothing new can start. With abort set the running
// audit is aborted first.
func (s *Scheduler) Shutdown(ctx context.Context, abort bool) error {
	if r := s.Active(); r != nil {
		s.log.Info("waiting for running audit", "audit_id", r.ID(), "abort", abort)
		if abort {
			r.Abort()
		}
	}
	if err := s.resource.Acquire(ctx, "shutdown"); err != nil {
		return fmt.Errorf("scheduler: waiting for running audit: %w", err)
	}
	return nil
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobCtx
}

func (s *Scheduler) setActive(r Runner) {
	s.mu.Lock()
	s.active = r
	s.mu.Unlock()
}
