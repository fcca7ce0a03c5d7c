package service

import (
	"context"
	"io"
	"testing"
	"time"

	"civicrelay/internal/archive"
	"civicrelay/internal/baseline"
	"civicrelay/internal/compose"
	"civicrelay/internal/dispatch"
	"civicrelay/internal/media"
	"civicrelay/internal/metrics"
	"civicrelay/internal/models"
	"civicrelay/internal/queue"
	"civicrelay/internal/receipts"
	"civicrelay/internal/storage"
	"civicrelay/pkg/publisher"
	"civicrelay/pkg/source"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
)

const testTenantBaseURL = "https://include-md.example.test/mobileportalpms/1"

// Mock portal client
type mockSource struct {
	mock.Mock
}

func (m *mockSource) Search(ctx context.Context, limit int) ([]models.Entity, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Entity), args.Error(1)
}

func (m *mockSource) Detail(ctx context.Context, id models.EntityID) (*models.Entity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entity), args.Error(1)
}

func (m *mockSource) Image(ctx context.Context, imageID string) (*source.Image, error) {
	args := m.Called(ctx, imageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*source.Image), args.Error(1)
}

// Mock publish backend
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Upload(ctx context.Context, media publisher.Media) (string, error) {
	args := m.Called(ctx, media)
	return args.String(0), args.Error(1)
}

func (m *mockPublisher) Publish(ctx context.Context, text string, opts publisher.Options) (*publisher.Result, error) {
	args := m.Called(ctx, text, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*publisher.Result), args.Error(1)
}

func (m *mockPublisher) MaxLength() int {
	return 280
}

// pipeline bundles the stores of one tenant over a shared memory backend.
type pipeline struct {
	tenant   models.TenantConfig
	mem      *storage.MemoryStore
	baseline *baseline.Store
	queue    *queue.Queue
	receipts *receipts.Store
	images   *media.Store
	metrics  *metrics.Registry
	logger   *logrus.Logger
	hook     *test.Hook
	now      time.Time
}

func testTenant() models.TenantConfig {
	return models.TenantConfig{
		Key:                 "md",
		Active:              true,
		LimitFetch:          50,
		ProcessDelaySeconds: 2,
		MaxQueueSize:        10,
		RetentionMonths:     6,
		Timezone:            "UTC",
		ImageCredit:         "LH Magdeburg",
		StatsHashtag:        "MDStats",
		Channels: []models.ChannelConfig{
			{Name: "twitter", Kind: models.ChannelKindTwitter, Enabled: true, WithImage: true},
		},
	}
}

func newPipeline(t *testing.T, tenant models.TenantConfig) *pipeline {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	hook := test.NewLocal(logger)

	mem := storage.NewMemoryStore()
	return &pipeline{
		tenant:   tenant,
		mem:      mem,
		baseline: baseline.New(mem, tenant.Key),
		queue:    queue.New(mem, tenant.Key, tenant.MaxQueueSize, logger),
		receipts: receipts.New(mem, tenant.Key),
		images:   media.New(mem, tenant.Key, 1<<20, logger),
		metrics:  metrics.NewRegistry(),
		logger:   logger,
		hook:     hook,
		now:      time.Date(2024, 9, 18, 10, 0, 0, 0, time.UTC),
	}
}

func (p *pipeline) clock() time.Time { return p.now }

func (p *pipeline) syncService(src source.Client) (*SyncService, *dispatch.RecordingScheduler) {
	scheduler := dispatch.NewRecordingScheduler()
	return NewSyncService(p.tenant, SyncDeps{
		Source:     src,
		Baseline:   p.baseline,
		Queue:      p.queue,
		Images:     p.images,
		Archiver:   archive.New(p.mem, p.tenant.Key, p.logger),
		Dispatcher: dispatch.New(scheduler, p.logger),
		Metrics:    p.metrics,
		Logger:     p.logger,
		Now:        p.clock,
	}), scheduler
}

func (p *pipeline) publishService(channel string, pub publisher.Publisher) *PublishService {
	ch, _ := p.tenant.Channel(channel)
	return NewPublishService(p.tenant, ch, PublishDeps{
		Publisher: pub,
		Queue:     p.queue,
		Receipts:  p.receipts,
		Images:    p.images,
		Composer:  compose.New(compose.BudgetFor(ch.Kind), time.UTC, testTenantBaseURL, p.tenant.ImageCredit),
		Metrics:   p.metrics,
		Logger:    p.logger,
		Now:       p.clock,
	})
}

func (p *pipeline) occupancy(t *testing.T, channel string, purpose models.Purpose) int {
	t.Helper()
	n, err := p.queue.Occupancy(context.Background(), channel, purpose)
	if err != nil {
		t.Fatalf("occupancy: %v", err)
	}
	return n
}

func (p *pipeline) enqueue(t *testing.T, channel string, purpose models.Purpose, item models.QueueItem) {
	t.Helper()
	ok, err := p.queue.Enqueue(context.Background(), channel, purpose, item)
	if err != nil || !ok {
		t.Fatalf("enqueue %s/%s: ok=%v err=%v", channel, purpose, ok, err)
	}
}

func millis(t time.Time) models.Millis {
	return models.MillisOf(t)
}
