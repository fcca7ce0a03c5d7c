package service

import (
	"context"
	"time"

	"civicrelay/internal/constants"

	"github.com/sirupsen/logrus"
)

// Job is one pass of the pipeline run by the Scheduler.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs a fixed sequence of jobs immediately and then on every tick,
// replacing an external cron trigger when the process runs long-lived.
type Scheduler struct {
	jobs     []Job
	interval time.Duration
	logger   *logrus.Logger
	stopCh   chan struct{}
}

func NewScheduler(jobs []Job, interval time.Duration, logger *logrus.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Duration(constants.DefaultWatchIntervalMinutes) * time.Minute
	}
	return &Scheduler{
		jobs:     jobs,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval.String()).Info("Starting scheduler")

	s.runJobs(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runJobs(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// runJobs runs every job in order. A failing job does not stop the ones
// after it; jobs sharing a tenant must tolerate that.
func (s *Scheduler) runJobs(ctx context.Context) {
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		logger := s.logger.WithField(LogFieldCommand, job.Name)
		started := time.Now()
		if err := job.Run(ctx); err != nil {
			logger.WithError(err).Error("Scheduled job failed")
			continue
		}
		logger.WithField(LogFieldDuration, time.Since(started).Milliseconds()).Info("Completed scheduled job")
	}
}
