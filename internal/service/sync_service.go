package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"civicrelay/internal/archive"
	"civicrelay/internal/baseline"
	"civicrelay/internal/detect"
	"civicrelay/internal/dispatch"
	apperrors "civicrelay/internal/errors"
	"civicrelay/internal/media"
	"civicrelay/internal/metrics"
	"civicrelay/internal/models"
	"civicrelay/internal/queue"
	"civicrelay/internal/records"
	"civicrelay/internal/retry"
	"civicrelay/internal/tracing"
	"civicrelay/pkg/source"

	"github.com/sirupsen/logrus"
)

// SyncDeps are the collaborators of a SyncService.
type SyncDeps struct {
	Source     source.Client
	Baseline   *baseline.Store
	Queue      *queue.Queue
	Images     *media.Store
	Records    records.Store
	Archiver   *archive.Archiver
	Dispatcher *dispatch.Dispatcher
	Backoff    *retry.Backoff
	Metrics    *metrics.Registry
	Logger     *logrus.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// SyncService runs one incremental sync of a tenant: search, detect,
// dispatch new and updated entities, archive.
type SyncService struct {
	tenant models.TenantConfig
	SyncDeps
}

// SyncReport summarises a finished sync run.
type SyncReport struct {
	Fetched     int
	New         int
	Updated     int
	Unchanged   int
	Unmatched   int
	NewBatch    dispatch.Result
	UpdateBatch dispatch.Result
	Enqueued    int
	Dropped     int
	Archived    []models.EntityID
}

func NewSyncService(tenant models.TenantConfig, deps SyncDeps) *SyncService {
	if deps.Records == nil {
		deps.Records = records.Noop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &SyncService{tenant: tenant, SyncDeps: deps}
}

// Run performs the sync. Only a failed search or an unreadable baseline
// aborts the run; per-entity failures are logged and counted.
func (s *SyncService) Run(ctx context.Context) (*SyncReport, error) {
	logger := LogWithContext(ctx, s.Logger).WithField(LogFieldTenant, s.tenant.Key)
	report := &SyncReport{}
	labels := map[string]string{LogFieldTenant: s.tenant.Key}

	current, err := s.search(ctx)
	if err != nil {
		return nil, err
	}
	report.Fetched = len(current)
	s.Metrics.AddToCounter(metrics.EntitiesFetched, float64(len(current)), labels)

	partition, err := s.detect(ctx, current)
	if err != nil {
		return nil, err
	}
	report.New = len(partition.New)
	report.Updated = len(partition.Updated)
	report.Unchanged = len(partition.Unchanged)
	report.Unmatched = len(partition.Unmatched)
	s.Metrics.AddToCounter(metrics.EntitiesNew, float64(report.New), labels)
	s.Metrics.AddToCounter(metrics.EntitiesUpdated, float64(report.Updated), labels)
	s.Metrics.AddToCounter(metrics.EntitiesUnmatched, float64(report.Unmatched), labels)

	logger.WithFields(logrus.Fields{
		"fetched":   report.Fetched,
		"new":       report.New,
		"updated":   report.Updated,
		"unchanged": report.Unchanged,
		"unmatched": report.Unmatched,
	}).Info("Detected changes")

	toRecord := make([]models.Entity, 0, len(partition.New)+len(partition.Updated))
	toRecord = append(toRecord, partition.New...)
	for _, u := range partition.Updated {
		toRecord = append(toRecord, u.New)
	}
	if err := s.Baseline.Record(ctx, toRecord...); err != nil {
		return nil, err
	}

	var counts enqueueCounts

	if len(partition.New) == 0 {
		logger.Info("No new entities to process")
	} else {
		report.NewBatch = s.dispatchPhase(ctx, "dispatch_new", partition.New, dispatch.Options{
			Delay:     s.tenant.PerItemDelay(),
			MaxPerRun: s.tenant.MaxPerRun,
			OrderBy:   dispatch.ByCreatedDate,
			Name:      "new entity",
		}, func(ctx context.Context, e models.Entity, publish bool) error {
			return s.processNew(ctx, e, publish, &counts)
		})
	}

	if len(partition.Updated) > 0 {
		olds := make(map[models.EntityID]models.Entity, len(partition.Updated))
		updated := make([]models.Entity, 0, len(partition.Updated))
		for _, u := range partition.Updated {
			olds[u.New.ID] = u.Old
			updated = append(updated, u.New)
		}
		report.UpdateBatch = s.dispatchPhase(ctx, "dispatch_updates", updated, dispatch.Options{
			Delay:     s.tenant.PerItemDelay(),
			MaxPerRun: s.tenant.MaxPerRun,
			OrderBy:   dispatch.ByLastUpdated,
			Name:      "update",
		}, func(ctx context.Context, e models.Entity, publish bool) error {
			return s.processUpdate(ctx, olds[e.ID], e, publish, &counts)
		})
	}

	report.Enqueued, report.Dropped = counts.snapshot()

	if s.tenant.ArchiveOldEntities && s.Archiver != nil {
		archived, err := s.archive(ctx, current)
		if err != nil {
			logger.WithError(err).Warn("Some artifacts could not be archived")
		}
		report.Archived = archived
	}

	logger.WithFields(logrus.Fields{
		"enqueued": report.Enqueued,
		"dropped":  report.Dropped,
		"archived": len(report.Archived),
	}).Info("Completed sync")
	return report, nil
}

func (s *SyncService) search(ctx context.Context) (current []models.Entity, err error) {
	ctx, span := tracing.StartPhase(ctx, "search", tracing.AttrTenant.String(s.tenant.Key))
	defer func() { tracing.End(span, err) }()
	defer s.Metrics.Time(metrics.PhaseDuration, map[string]string{LogFieldPhase: "search"})()

	search := func(ctx context.Context) ([]models.Entity, error) {
		return s.Source.Search(ctx, s.tenant.LimitFetch)
	}
	if s.Backoff == nil {
		current, err = search(ctx)
	} else {
		current, err = retry.Do(ctx, s.Backoff, search, apperrors.IsRetryable)
	}
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return current, nil
}

func (s *SyncService) detect(ctx context.Context, current []models.Entity) (p detect.Partition, err error) {
	ctx, span := tracing.StartPhase(ctx, "detect", tracing.AttrTenant.String(s.tenant.Key))
	defer func() { tracing.End(span, err) }()
	defer s.Metrics.Time(metrics.PhaseDuration, map[string]string{LogFieldPhase: "detect"})()

	ledger, err := s.Baseline.LoadAll(ctx)
	if err != nil {
		return p, err
	}
	details, err := s.Baseline.DetailsFor(ctx, current)
	if err != nil {
		return p, err
	}
	return detect.Detect(current, ledger, details), nil
}

func (s *SyncService) dispatchPhase(ctx context.Context, phase string, items []models.Entity, opts dispatch.Options, handler dispatch.Handler) dispatch.Result {
	ctx, span := tracing.StartPhase(ctx, phase, tracing.AttrTenant.String(s.tenant.Key))
	defer span.End()
	defer s.Metrics.Time(metrics.PhaseDuration, map[string]string{LogFieldPhase: phase})()

	result := s.Dispatcher.Dispatch(ctx, items, opts, handler)
	s.Metrics.AddToCounter(metrics.TasksFailed, float64(result.Failed), map[string]string{LogFieldPhase: phase})
	return result
}

// processNew fetches and stores the detail of a new entity, mirrors it to the
// record store, stores its image and enqueues the publish jobs.
func (s *SyncService) processNew(ctx context.Context, e models.Entity, publish bool, counts *enqueueCounts) (err error) {
	ctx, span := tracing.StartSpan(ctx, "entity.new", tracing.AttrEntityID.String(e.ID.String()))
	defer func() { tracing.End(span, err) }()

	detail, err := s.fetchDetail(ctx, e.ID)
	if err != nil {
		return err
	}

	s.storeImage(ctx, detail)

	if !publish {
		s.entryFor(ctx, e.ID).Info("Publish budget exhausted, not enqueueing")
		return nil
	}
	s.enqueueAll(ctx, models.PurposeNewEntity, detail, counts)
	if len(detail.Responses) > 0 {
		s.enqueueAll(ctx, models.PurposeResponseUpdate, detail, counts)
	}
	return nil
}

// processUpdate refreshes the detail of a known entity and enqueues
// follow-ups for new responses and status changes.
func (s *SyncService) processUpdate(ctx context.Context, old, e models.Entity, publish bool, counts *enqueueCounts) (err error) {
	ctx, span := tracing.StartSpan(ctx, "entity.update", tracing.AttrEntityID.String(e.ID.String()))
	defer func() { tracing.End(span, err) }()

	detail, err := s.fetchDetail(ctx, e.ID)
	if err != nil {
		return err
	}

	change := detect.UpdatePair{Old: old, New: *detail}
	logger := s.entryFor(ctx, e.ID)
	if !publish {
		logger.Info("Publish budget exhausted, not enqueueing")
		return nil
	}
	if n := change.NewResponses(); n > 0 {
		logger.WithField(LogFieldCount, n).Info("New responses")
		s.enqueueAll(ctx, models.PurposeResponseUpdate, detail, counts)
	}
	if change.StatusChanged() {
		logger.WithFields(logrus.Fields{"from": old.Status, "to": detail.Status}).Info("Status changed")
		s.enqueueAll(ctx, models.PurposeStatusUpdate, detail, counts)
	}
	return nil
}

// fetchDetail loads the detail record from the portal and stores it. A record
// store failure is logged and does not fail the entity.
func (s *SyncService) fetchDetail(ctx context.Context, id models.EntityID) (*models.Entity, error) {
	s.entryFor(ctx, id).Info("Fetching details")
	detail, err := s.Source.Detail(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Baseline.SaveDetail(ctx, detail); err != nil {
		return nil, err
	}
	if err := s.Records.Upsert(ctx, s.tenant.Key, detail); err != nil {
		apperrors.WithAppContext(s.entryFor(ctx, id).WithError(err), err).Warn("Failed to mirror detail to record store")
	}
	return detail, nil
}

func (s *SyncService) storeImage(ctx context.Context, detail *models.Entity) {
	if detail.Image == nil || s.Images == nil {
		return
	}
	logger := s.entryFor(ctx, detail.ID).WithField(LogFieldMediaID, detail.Image.ID)

	img, err := s.Source.Image(ctx, detail.Image.ID)
	if err == nil {
		_, err = s.Images.Save(ctx, detail, img.Data)
	}
	if err != nil {
		apperrors.WithAppContext(logger.WithError(err), err).Warn("Failed to store image, posts go out without it")
	}
}

func (s *SyncService) enqueueAll(ctx context.Context, purpose models.Purpose, detail *models.Entity, counts *enqueueCounts) {
	if !s.Queue.Enabled() {
		return
	}
	for _, ch := range s.tenant.EnabledChannels() {
		labels := map[string]string{LogFieldChannel: ch.Name, LogFieldPurpose: string(purpose)}
		logger := s.entryFor(ctx, detail.ID).WithFields(logrus.Fields{
			LogFieldChannel: ch.Name,
			LogFieldPurpose: purpose,
		})

		ok, err := s.Queue.Enqueue(ctx, ch.Name, purpose, models.QueueItem{
			Entity:     detail,
			EnqueuedAt: s.Now(),
		})
		switch {
		case err != nil:
			apperrors.WithAppContext(logger.WithError(err), err).Error("Failed to enqueue item")
		case ok:
			counts.add(true)
			s.Metrics.IncrementCounter(metrics.ItemsEnqueued, labels)
			logger.Info("Item enqueued")
		default:
			counts.add(false)
			s.Metrics.IncrementCounter(metrics.ItemsDropped, labels)
		}
	}
}

func (s *SyncService) archive(ctx context.Context, current []models.Entity) (ids []models.EntityID, err error) {
	ctx, span := tracing.StartPhase(ctx, "archive", tracing.AttrTenant.String(s.tenant.Key))
	defer func() { tracing.End(span, err) }()
	defer s.Metrics.Time(metrics.PhaseDuration, map[string]string{LogFieldPhase: "archive"})()

	ledger, err := s.Baseline.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	threshold := archive.Threshold(s.Now(), s.tenant.RetentionMonths)
	ids, err = s.Archiver.Archive(ctx, ledger, current, threshold)
	s.Metrics.AddToCounter(metrics.EntitiesArchived, float64(len(ids)), map[string]string{LogFieldTenant: s.tenant.Key})
	return ids, err
}

func (s *SyncService) entryFor(ctx context.Context, id models.EntityID) *logrus.Entry {
	return LogWithContext(ctx, s.Logger).WithFields(logrus.Fields{
		LogFieldTenant:   s.tenant.Key,
		LogFieldEntityID: id.String(),
	})
}

type enqueueCounts struct {
	mu       sync.Mutex
	enqueued int
	dropped  int
}

func (c *enqueueCounts) add(enqueued bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enqueued {
		c.enqueued++
	} else {
		c.dropped++
	}
}

func (c *enqueueCounts) snapshot() (enqueued, dropped int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueued, c.dropped
}
