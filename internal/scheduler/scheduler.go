// Package scheduler runs rocketcore's two background tick loops: the §4.8 webhook retry
// scheduler (every 30s) and the §4.10 workflow timeout scheduler (every 60s). Grounded on
// station's internal/services/scheduler.go for the WithSeconds cron setup and idempotent
// Start/Stop shape.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"rocketcore/internal/metrics"
	"rocketcore/internal/webhookdispatch"
	"rocketcore/internal/workflow"
)

// Scheduler owns the two cron-driven background passes.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher *webhookdispatch.Dispatcher
	workflows  *workflow.Engine
	logger     *log.Logger

	retryEntryID   cron.EntryID
	timeoutEntryID cron.EntryID
	started        bool
}

// New constructs a Scheduler with a seconds-precision cron, the way station wires its
// agent scheduler.
func New(dispatcher *webhookdispatch.Dispatcher, workflows *workflow.Engine, logger *log.Logger) *Scheduler {
	cronLogger := cron.DefaultLogger
	if logger != nil {
		cronLogger = cron.VerbosePrintfLogger(logger)
	}
	c := cron.New(cron.WithSeconds(), cron.WithLogger(cronLogger))
	return &Scheduler{cron: c, dispatcher: dispatcher, workflows: workflows, logger: logger}
}

// Start registers the two tick jobs and starts the cron loop. Safe to call more than once;
// a second call is a no-op.
func (s *Scheduler) Start() error {
	if s.started {
		return nil
	}

	retryID, err := s.cron.AddFunc("*/30 * * * * *", s.runRetryTick)
	if err != nil {
		return err
	}
	s.retryEntryID = retryID

	timeoutID, err := s.cron.AddFunc("0 * * * * *", s.runTimeoutTick)
	if err != nil {
		return err
	}
	s.timeoutEntryID = timeoutID

	s.cron.Start()
	s.started = true
	return nil
}

// Stop stops the cron loop, waiting for in-flight jobs to finish. Safe to call more than
// once, or before Start.
func (s *Scheduler) Stop() {
	if !s.started {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.started = false
}

func (s *Scheduler) runRetryTick() {
	metrics.SchedulerTicks.WithLabelValues("webhook_retry").Inc()
	if err := RetryPendingWebhooks(context.Background(), s.dispatcher); err != nil {
		s.logf("webhook retry tick failed: %v", err)
	}
}

func (s *Scheduler) runTimeoutTick() {
	metrics.SchedulerTicks.WithLabelValues("workflow_timeout").Inc()
	s.workflows.HandleTimeouts(context.Background(), time.Now().UTC())
}

func (s *Scheduler) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
