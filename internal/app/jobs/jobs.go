// Package jobs runs the periodic billing work on a cron schedule inside the API process.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/retgrow/billing/internal/app/service/notifier"
	"github.com/retgrow/billing/internal/app/service/reconciler"
	"github.com/retgrow/billing/internal/app/service/renewal"
	"github.com/retgrow/billing/internal/app/service/statistics"
	"github.com/retgrow/billing/pkg/config"
	"github.com/retgrow/billing/pkg/logctx"
	"github.com/retgrow/billing/pkg/tool"
)

// Job is one unit of scheduled work. An empty Schedule leaves the job unregistered.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	cron   *cron.Cron
	log    *zap.SugaredLogger
	ctx    context.Context
	cancel context.CancelFunc
	names  map[cron.EntryID]string
}

// cronLogger routes robfig/cron's internal logging through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron_"+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron_"+msg, append(keysAndValues, "error", err)...)
}

func newScheduler(log *zap.SugaredLogger, jobs []Job) (*Scheduler, error) {
	logger := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, log: log, ctx: ctx, cancel: cancel, names: map[cron.EntryID]string{}}

	for _, job := range jobs {
		if job.Schedule == "" {
			log.Infow("job_disabled", "job", job.Name)
			continue
		}
		id, err := c.AddFunc(job.Schedule, s.wrap(job))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("schedule %s (%q): %w", job.Name, job.Schedule, err)
		}
		s.names[id] = job.Name
		log.Infow("job_scheduled", "job", job.Name, "schedule", job.Schedule)
	}
	return s, nil
}

func (s *Scheduler) wrap(job Job) func() {
	return func() {
		traceID := "job-" + tool.GenerateUUIDV7()
		log := s.log.With("job", job.Name, "trace_id", traceID)
		ctx := context.WithValue(s.ctx, logctx.KeyTraceID, traceID)
		ctx = context.WithValue(ctx, logctx.KeyLogger, log)

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			log.Errorw("job_failed", "error", err, "elapsed", time.Since(start))
			return
		}
		log.Infow("job_finished", "elapsed", time.Since(start))
	}
}

// Entries lists the registered job names.
func (s *Scheduler) Entries() []string {
	var names []string
	for _, e := range s.cron.Entries() {
		names = append(names, s.names[e.ID])
	}
	return names
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels in-flight jobs and waits for them to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func billingJobs(
	cfg *config.Config,
	renewals *renewal.Service,
	rec *reconciler.Reconciler,
	dispatcher *notifier.Dispatcher,
	stats *statistics.Service,
) []Job {
	return []Job{
		{
			Name:     "renew_subscriptions",
			Schedule: cfg.Renewal.Schedule,
			Run: func(ctx context.Context) error {
				res, err := renewals.Run(ctx)
				if err != nil {
					return err
				}
				logctx.FromCtx(ctx, nil).Infow("renewal_summary", "processed", res.Processed, "success", res.Success, "failed", res.Failed)
				return nil
			},
		},
		{
			Name:     "reconcile_pending",
			Schedule: cfg.Reconciler.Schedule,
			Run: func(ctx context.Context) error {
				_, err := rec.Run(ctx)
				return err
			},
		},
		{
			Name:     "dispatch_notifications",
			Schedule: cfg.Notification.DispatchSchedule,
			Run: func(ctx context.Context) error {
				_, err := dispatcher.Dispatch(ctx)
				return err
			},
		},
		{
			Name:     "snapshot_subscriptions",
			Schedule: cfg.Statistics.SnapshotSchedule,
			Run: func(ctx context.Context) error {
				n, err := stats.SnapshotSubscriptions(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				logctx.FromCtx(ctx, nil).Infow("snapshot_written", "rows", n)
				return nil
			},
		},
	}
}

func NewScheduler(
	lc fx.Lifecycle,
	cfg *config.Config,
	log *zap.SugaredLogger,
	renewals *renewal.Service,
	rec *reconciler.Reconciler,
	dispatcher *notifier.Dispatcher,
	stats *statistics.Service,
) (*Scheduler, error) {
	s, err := newScheduler(log, billingJobs(cfg, renewals, rec, dispatcher, stats))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping job scheduler")
			return s.Stop(ctx)
		},
	})
	return s, nil
}

var Module = fx.Options(
	fx.Provide(NewScheduler),
	fx.Invoke(func(*Scheduler) {}),
)
