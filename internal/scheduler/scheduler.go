// Package scheduler runs ingestion on a cron schedule, independent of HTTP traffic.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-ingest-service/internal/models"
	"github.com/kjstillabower/weather-ingest-service/internal/observability"
)

// Ingester produces and records one observation per call.
type Ingester interface {
	Ingest(ctx context.Context, location string) (models.Observation, error)
}

// Config selects the schedule and the labels ingested on each tick.
type Config struct {
	Spec       string // standard 5-field cron spec or descriptor such as @hourly
	Locations  []string
	RunTimeout time.Duration // per location; 0 means no deadline
}

// Scheduler triggers Ingest for every configured location on each tick.
type Scheduler struct {
	cfg      Config
	ingester Ingester
	logger   *zap.Logger
	cron     *cron.Cron
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// New validates the cron expression and registers the job. Call Start to begin ticking.
func New(cfg Config, ingester Ingester, logger *zap.Logger) (*Scheduler, error) {
	if len(cfg.Locations) == 0 {
		return nil, fmt.Errorf("scheduler: no locations configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := zapCronLogger{logger: logger}
	s := &Scheduler{
		cfg:      cfg,
		ingester: ingester,
		logger:   logger,
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	if _, err := s.cron.AddFunc(cfg.Spec, func() { s.RunOnce(s.baseCtx) }); err != nil {
		s.cancel()
		return nil, fmt.Errorf("scheduler: invalid cron spec %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start begins ticking in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("cron", s.cfg.Spec),
		zap.Strings("locations", s.cfg.Locations))
}

// Stop halts new ticks, cancels a run in progress and waits for it to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	s.cancel()
	select {
	case <-stopped.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce ingests every location sequentially and returns the number of failures.
// Errors are logged and counted, never propagated.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	failures := 0
	for _, loc := range s.cfg.Locations {
		if ctx.Err() != nil {
			break
		}
		if err := s.ingestOne(ctx, loc); err != nil {
			failures++
			observability.SchedulerRunsTotal.WithLabelValues("failure").Inc()
			s.logger.Error("scheduled ingest failed", zap.String("location", loc), zap.Error(err))
			continue
		}
		observability.SchedulerRunsTotal.WithLabelValues("success").Inc()
	}
	return failures
}

func (s *Scheduler) ingestOne(ctx context.Context, location string) error {
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}
	ctx = observability.WithLogger(ctx, s.logger.With(zap.String("trigger", "scheduler")))
	obs, err := s.ingester.Ingest(ctx, location)
	if err != nil {
		return err
	}
	s.logger.Debug("scheduled ingest", zap.String("location", location), zap.String("conditions", obs.Conditions))
	return nil
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	logger *zap.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
