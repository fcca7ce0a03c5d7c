package service

import (
	"context"
	"time"
	"unicode/utf8"

	"civicrelay/internal/alert"
	"civicrelay/internal/compose"
	apperrors "civicrelay/internal/errors"
	"civicrelay/internal/geo"
	"civicrelay/internal/media"
	"civicrelay/internal/metrics"
	"civicrelay/internal/models"
	"civicrelay/internal/queue"
	"civicrelay/internal/receipts"
	"civicrelay/internal/tracing"
	"civicrelay/pkg/publisher"

	"github.com/sirupsen/logrus"
)

// PublishDeps are the collaborators of a PublishService.
type PublishDeps struct {
	Publisher publisher.Publisher
	Queue     *queue.Queue
	Receipts  *receipts.Store
	Images    *media.Store
	Composer  *compose.Composer
	Metrics   *metrics.Registry
	Logger    *logrus.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// PublishService is the publish worker of one channel. Each Run publishes at
// most one queued item.
type PublishService struct {
	tenant  models.TenantConfig
	channel models.ChannelConfig
	PublishDeps
}

// PublishOutcome describes the item a run worked on.
type PublishOutcome struct {
	Item      string
	Purpose   models.Purpose
	EntityID  models.EntityID
	Published bool
	// Kept is true when the item stays queued for the next run.
	Kept      bool
	ReceiptID string
}

func NewPublishService(tenant models.TenantConfig, channel models.ChannelConfig, deps PublishDeps) *PublishService {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &PublishService{tenant: tenant, channel: channel, PublishDeps: deps}
}

// Run pops the oldest item of the highest priority non-empty queue and
// publishes it. It returns a nil outcome when every queue is empty.
//
// A failed publish removes the item unless the failure is retryable, in
// which case the item stays at the head of its queue.
func (p *PublishService) Run(ctx context.Context) (*PublishOutcome, error) {
	logger := LogWithContext(ctx, p.Logger).WithFields(logrus.Fields{
		LogFieldTenant:  p.tenant.Key,
		LogFieldChannel: p.channel.Name,
	})

	for _, purpose := range models.PublishPriority {
		item, err := p.Queue.PeekOldest(ctx, p.channel.Name, purpose)
		if err != nil {
			return nil, err
		}
		if item == nil {
			continue
		}
		return p.process(ctx, logger, item)
	}

	logger.Info("All queues are empty")
	return nil, nil
}

func (p *PublishService) process(ctx context.Context, logger *logrus.Entry, item *models.QueueItem) (outcome *PublishOutcome, err error) {
	outcome = &PublishOutcome{Item: queue.ItemName(*item), Purpose: item.Purpose}
	if item.Entity != nil {
		outcome.EntityID = item.Entity.ID
	}

	ctx, span := tracing.StartSpan(ctx, "publish."+string(item.Purpose),
		tracing.AttrChannel.String(p.channel.Name),
		tracing.AttrPurpose.String(string(item.Purpose)),
		tracing.AttrEntityID.String(outcome.EntityID.String()))
	defer func() { tracing.End(span, err) }()

	logger = logger.WithFields(logrus.Fields{
		LogFieldPurpose: item.Purpose,
		LogFieldItem:    outcome.Item,
	})
	if item.Entity != nil {
		logger = logger.WithField(LogFieldEntityID, outcome.EntityID.String())
	}
	logger.Info("Found item to publish")

	labels := map[string]string{LogFieldChannel: p.channel.Name, LogFieldPurpose: string(item.Purpose)}
	defer p.Metrics.Time(metrics.PhaseDuration, map[string]string{LogFieldPhase: "publish"})()

	var receipt *models.Receipt
	switch item.Purpose {
	case models.PurposeNewEntity:
		receipt, err = p.publishNewEntity(ctx, logger, item.Entity)
	case models.PurposeResponseUpdate, models.PurposeStatusUpdate:
		receipt, err = p.publishFollowUp(ctx, logger, item)
	case models.PurposePeriodicReport:
		receipt, err = p.publishReport(ctx, logger, item.Text)
	}

	if err != nil {
		p.Metrics.IncrementCounter(metrics.PublishFailed, labels)
		apperrors.WithAppContext(logger.WithError(err), err).Error("Failed to publish item")
		if apperrors.IsRetryable(err) {
			outcome.Kept = true
			return outcome, err
		}
		if rmErr := p.Queue.Remove(ctx, item); rmErr != nil {
			return outcome, rmErr
		}
		return outcome, err
	}

	if receipt != nil {
		outcome.Published = true
		outcome.ReceiptID = receipt.ChannelReceiptID
		p.Metrics.IncrementCounter(metrics.ItemsPublished, labels)
	} else {
		p.Metrics.IncrementCounter(metrics.ItemsSkipped, labels)
	}

	if err := p.Queue.Remove(ctx, item); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (p *PublishService) publishNewEntity(ctx context.Context, logger *logrus.Entry, e *models.Entity) (*models.Receipt, error) {
	var opts publisher.Options

	withImage := false
	if p.channel.WithImage && p.Images != nil {
		img, ok, err := p.Images.Load(ctx, e)
		if err != nil {
			return nil, err
		}
		if ok {
			logger.WithField(LogFieldMediaID, e.Image.ID).Info("Uploading image")
			mediaID, err := p.Publisher.Upload(ctx, *img)
			if err != nil {
				return nil, err
			}
			opts.MediaIDs = []string{mediaID}
			withImage = true
		} else if e.Image != nil {
			logger.Warn("Image was never stored, publishing without it")
		}
	}

	if point, ok := geo.Locate(e); ok {
		opts.Location = &publisher.Location{Latitude: point.Latitude, Longitude: point.Longitude}
	}

	text := p.Composer.NewEntity(e, withImage)
	receipt, err := p.publish(ctx, logger, text, opts)
	if err != nil {
		return nil, err
	}
	receipt.EntityID = e.ID
	if err := p.Receipts.Append(ctx, p.channel.Name, e.ID, *receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// publishFollowUp replies to the last receipt of the entity. Without one the
// follow-up is not sent.
func (p *PublishService) publishFollowUp(ctx context.Context, logger *logrus.Entry, item *models.QueueItem) (*models.Receipt, error) {
	e := item.Entity

	parent, ok, err := p.Receipts.Last(ctx, p.channel.Name, e.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		missing := apperrors.NewThreadMissingError(p.channel.Name, e.ID.String())
		apperrors.WithAppContext(logger.WithError(missing), missing).
			WithField(alert.FieldAlert, true).
			Warn("Skipping follow-up: origin post could not be found")
		return nil, nil
	}

	var text string
	if item.Purpose == models.PurposeStatusUpdate {
		text = p.Composer.StatusUpdate(e)
	} else {
		text, ok = p.Composer.ResponseUpdate(e)
		if !ok {
			logger.Warn("Skipping response update: entity has no responses")
			return nil, nil
		}
	}

	receipt, err := p.publish(ctx, logger.WithField(LogFieldReplyTo, parent.ChannelReceiptID), text,
		publisher.Options{ReplyTo: parent.ChannelReceiptID})
	if err != nil {
		return nil, err
	}
	receipt.EntityID = e.ID
	if err := p.Receipts.Append(ctx, p.channel.Name, e.ID, *receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (p *PublishService) publishReport(ctx context.Context, logger *logrus.Entry, text string) (*models.Receipt, error) {
	receipt, err := p.publish(ctx, logger, text, publisher.Options{})
	if err != nil {
		return nil, err
	}
	if err := p.Receipts.AppendReport(ctx, p.channel.Name, *receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (p *PublishService) publish(ctx context.Context, logger *logrus.Entry, text string, opts publisher.Options) (*models.Receipt, error) {
	LogComposedText(ctx, logger, text)
	if n := utf8.RuneCountInString(text); n > p.Publisher.MaxLength() {
		logger.WithFields(logrus.Fields{"length": n, "max_length": p.Publisher.MaxLength()}).
			Warn("Post text exceeds the channel limit")
	}

	result, err := p.Publisher.Publish(ctx, text, opts)
	if err != nil {
		return nil, err
	}

	logger.WithField(LogFieldReceiptID, result.ID).Info("Published")
	return &models.Receipt{
		Channel:          p.channel.Name,
		ChannelReceiptID: result.ID,
		PublishedAt:      p.Now(),
		Raw:              result.Raw,
	}, nil
}
