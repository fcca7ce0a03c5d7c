package service

import (
	"context"
	"time"

	"civicrelay/internal/baseline"
	"civicrelay/internal/constants"
	"civicrelay/internal/metrics"
	"civicrelay/internal/models"
	"civicrelay/internal/queue"
	"civicrelay/internal/stats"
	"civicrelay/internal/tracing"

	"github.com/sirupsen/logrus"
)

// StatsService renders the weekly report and queues it on every channel.
type StatsService struct {
	tenant   models.TenantConfig
	baseline *baseline.Store
	queue    *queue.Queue
	metrics  *metrics.Registry
	logger   *logrus.Logger
	now      func() time.Time
}

func NewStatsService(tenant models.TenantConfig, baseline *baseline.Store, q *queue.Queue, registry *metrics.Registry, logger *logrus.Logger) *StatsService {
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	return &StatsService{
		tenant:   tenant,
		baseline: baseline,
		queue:    q,
		metrics:  registry,
		logger:   logger,
		now:      time.Now,
	}
}

// Run returns the rendered report and the number of channels it was queued on.
func (s *StatsService) Run(ctx context.Context) (text string, enqueued int, err error) {
	ctx, span := tracing.StartPhase(ctx, "stats", tracing.AttrTenant.String(s.tenant.Key))
	defer func() { tracing.End(span, err) }()

	logger := LogWithContext(ctx, s.logger).WithField(LogFieldTenant, s.tenant.Key)

	ledger, err := s.baseline.LoadAll(ctx)
	if err != nil {
		return "", 0, err
	}

	now := s.now()
	if loc, err := time.LoadLocation(s.tenant.Timezone); err == nil {
		now = now.In(loc)
	}
	text = stats.WeeklyReport(ledger, now, constants.DefaultStatsTitle, s.tenant.StatsHashtag)
	LogComposedText(ctx, logger, text)

	if !s.queue.Enabled() {
		logger.Info("Queueing is disabled, report not enqueued")
		return text, 0, nil
	}

	for _, ch := range s.tenant.EnabledChannels() {
		labels := map[string]string{LogFieldChannel: ch.Name, LogFieldPurpose: string(models.PurposePeriodicReport)}
		ok, err := s.queue.Enqueue(ctx, ch.Name, models.PurposePeriodicReport, models.QueueItem{
			Text:       text,
			EnqueuedAt: now,
		})
		if err != nil {
			return text, enqueued, err
		}
		if ok {
			enqueued++
			s.metrics.IncrementCounter(metrics.ItemsEnqueued, labels)
		} else {
			s.metrics.IncrementCounter(metrics.ItemsDropped, labels)
		}
	}

	logger.WithField(LogFieldCount, enqueued).Info("Weekly report enqueued")
	return text, enqueued, nil
}
