// Package sweeps runs the periodic reconciliation jobs: expiring
// locally-managed subscriptions and raising seat quantities to match live
// tenant membership. Each job runs in singleton mode so a slow sweep is
// rescheduled rather than stacked.
package sweeps

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/clipmetrics/billing/pkg/logger"
	"github.com/clipmetrics/billing/svc/subscription"
)

// Config controls sweep intervals.
type Config struct {
	CleanupInterval time.Duration `env:"SWEEPS_CLEANUP_INTERVAL" envDefault:"1h"`
	SyncInterval    time.Duration `env:"SWEEPS_SYNC_INTERVAL" envDefault:"6h"`
}

// Runner owns the scheduler and the registered sweep jobs.
type Runner struct {
	scheduler  gocron.Scheduler
	subs       *subscription.Service
	dispatcher subscription.Dispatcher
	log        *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRunner creates a sweep runner and registers its jobs.
// Panics if required dependencies are nil to fail fast during initialization.
func NewRunner(subs *subscription.Service, dispatcher subscription.Dispatcher, cfg Config, opts ...RunnerOption) (*Runner, error) {
	if subs == nil {
		panic("sweeps: subscription service is required")
	}
	if dispatcher == nil {
		dispatcher = subscription.NoopDispatcher{}
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	r := &Runner{
		scheduler:  scheduler,
		subs:       subs,
		dispatcher: dispatcher,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if _, err := scheduler.NewJob(
		gocron.DurationJob(cfg.CleanupInterval),
		gocron.NewTask(r.cleanupLocalStatuses),
		gocron.WithName("cleanup-local-statuses"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("register cleanup job: %w", err)
	}

	if _, err := scheduler.NewJob(
		gocron.DurationJob(cfg.SyncInterval),
		gocron.NewTask(r.syncQuantities),
		gocron.WithName("sync-seat-quantities"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, fmt.Errorf("register sync job: %w", err)
	}

	return r, nil
}

// Start begins running the registered jobs.
func (r *Runner) Start() {
	r.scheduler.Start()
	r.log.Info("sweep scheduler started", logger.Component("sweeps"))
}

// Stop shuts the scheduler down, waiting for running jobs to finish.
func (r *Runner) Stop() error {
	return r.scheduler.Shutdown()
}

func (r *Runner) cleanupLocalStatuses() {
	ctx := context.Background()

	events, err := r.subs.CleanupLocalStatuses(ctx)
	if err != nil {
		r.log.ErrorContext(ctx, "local status cleanup failed",
			logger.Component("sweeps"), logger.Error(err))
	}
	if len(events) > 0 {
		r.dispatcher.Dispatch(ctx, events...)
	}
}

func (r *Runner) syncQuantities() {
	ctx := context.Background()

	if err := r.subs.SyncQuantities(ctx); err != nil {
		r.log.ErrorContext(ctx, "seat quantity sync failed",
			logger.Component("sweeps"), logger.Error(err))
	}
}
