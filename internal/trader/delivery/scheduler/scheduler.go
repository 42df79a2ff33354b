// Package scheduler runs the engine's periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"golang-news-trader/internal/trader/config"
	"golang-news-trader/internal/trader/service"
	"golang-news-trader/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one periodic unit of work.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// CronScheduler drives Jobs with robfig/cron. Overlapping runs of the same job are skipped.
type CronScheduler struct {
	cron    *cron.Cron
	parser  cron.Parser
	timeout time.Duration
	logger  *logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewCronScheduler creates a scheduler whose jobs each run under timeout.
func NewCronScheduler(timeout time.Duration, log *logger.Logger) *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronLogger := cronLogAdapter{log: log.Logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &CronScheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		parser:  parser,
		timeout: timeout,
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register validates the job's schedule and adds it.
func (s *CronScheduler) Register(job Job) error {
	if _, err := s.parser.Parse(job.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Schedule, job.Name, err)
	}
	if _, err := s.cron.AddFunc(job.Schedule, func() { s.run(job) }); err != nil {
		return fmt.Errorf("register job %s: %w", job.Name, err)
	}
	s.logger.Info("Registered job", logger.StringField("job", job.Name), logger.StringField("schedule", job.Schedule))
	return nil
}

func (s *CronScheduler) run(job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	fields := []zap.Field{
		logger.StringField("job", job.Name),
		logger.Field("duration", time.Since(start)),
	}
	if err != nil {
		s.logger.Error("Job failed", append(fields, logger.ErrorField(err))...)
		return
	}
	s.logger.Debug("Job finished", fields...)
}

func (s *CronScheduler) Start() {
	s.cron.Start()
	s.logger.Info("Cron scheduler started", logger.IntField("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them to return.
func (s *CronScheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Cron scheduler stopped")
}

// MonitorSchedule returns the configured monitor cron expression, falling back to the
// active trading config's monitoring frequency.
func MonitorSchedule(cfg *config.Config, interval time.Duration) string {
	if cfg.Trader.MonitorSchedule != "" {
		return cfg.Trader.MonitorSchedule
	}
	return "@every " + interval.String()
}

// EngineJobs builds the monitor, order sync, broker sync and reconciliation jobs.
func EngineJobs(
	cfg *config.Config,
	monitorInterval time.Duration,
	monitorSvc service.MonitorService,
	orderSyncSvc service.OrderSyncService,
	reconcileSvc service.ReconcileService,
	log *logger.Logger,
) []Job {
	return []Job{
		{
			Name:     "monitor-tick",
			Schedule: MonitorSchedule(cfg, monitorInterval),
			Run: func(ctx context.Context) error {
				report, err := monitorSvc.Tick(ctx)
				if err != nil {
					return err
				}
				if report.Triggered > 0 || report.Failed > 0 {
					log.Info("Monitor tick",
						logger.IntField("checked", report.Checked),
						logger.IntField("skipped", report.Skipped),
						logger.IntField("triggered", report.Triggered),
						logger.IntField("failed", report.Failed))
				}
				return nil
			},
		},
		{
			Name:     "order-sync",
			Schedule: cfg.Trader.OrderSyncSchedule,
			Run: func(ctx context.Context) error {
				_, err := orderSyncSvc.SyncOrders(ctx)
				return err
			},
		},
		{
			Name:     "broker-sync",
			Schedule: cfg.Trader.BrokerSyncSchedule,
			Run: func(ctx context.Context) error {
				_, err := reconcileSvc.SyncBroker(ctx, false)
				return err
			},
		},
		{
			Name:     "reconcile",
			Schedule: cfg.Trader.ReconcileSchedule,
			Run: func(ctx context.Context) error {
				report, err := reconcileSvc.Reconcile(ctx, false)
				if err != nil {
					return err
				}
				log.Info("Reconciliation finished",
					logger.IntField("corrections", report.Changed()),
					logger.IntField("errors", len(report.Errors)))
				return nil
			},
		},
	}
}

// cronLogAdapter satisfies cron.Logger with the service logger.
type cronLogAdapter struct {
	log *zap.SugaredLogger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.log.Debugw(msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
