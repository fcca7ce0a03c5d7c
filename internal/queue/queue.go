// Package queue implements the bounded per (channel, purpose) publish queues.
// Items are storage keys; the lexicographically smallest key is the oldest.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "civicrelay/internal/errors"
	"civicrelay/internal/models"
	"civicrelay/internal/storage"

	"github.com/sirupsen/logrus"
)

const rejectedDir = "rejected"

type Queue struct {
	store   storage.Store
	layout  storage.Layout
	maxSize int
	logger  *logrus.Logger
}

// New creates the queues of one tenant. maxSize <= 0 disables queueing.
func New(store storage.Store, tenantKey string, maxSize int, logger *logrus.Logger) *Queue {
	return &Queue{
		store:   store,
		layout:  storage.NewLayout(tenantKey),
		maxSize: maxSize,
		logger:  logger,
	}
}

func (q *Queue) Enabled() bool {
	return q.maxSize > 0
}

// ItemName is the file name an item is stored under.
func ItemName(item models.QueueItem) string {
	if item.Entity != nil {
		return fmt.Sprintf("message-%s.json", item.Entity.ID)
	}
	return fmt.Sprintf("stats-%s.txt", item.EnqueuedAt.Format("2006-01-02"))
}

// Enqueue stores item unless the queue is full or disabled. A dropped item is
// logged as a warning and reported as false. Re-enqueueing a key that is
// already queued replaces the payload without growing the queue.
func (q *Queue) Enqueue(ctx context.Context, channel string, purpose models.Purpose, item models.QueueItem) (bool, error) {
	if !q.Enabled() {
		return false, nil
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}

	name := ItemName(item)
	key := storage.Join(q.layout.Queue(channel, string(purpose)), name)
	fields := logrus.Fields{"channel": channel, "purpose": purpose, "item": name}

	exists, err := q.store.Exists(ctx, key)
	if err != nil {
		return false, apperrors.NewStorageError("exists", key, err)
	}

	if !exists {
		occupancy, err := q.Occupancy(ctx, channel, purpose)
		if err != nil {
			return false, err
		}
		if occupancy >= q.maxSize {
			q.logger.WithFields(fields).WithField("max_queue_size", q.maxSize).Warn("Queue is full, dropping item")
			return false, nil
		}
	}

	data, err := encode(item)
	if err != nil {
		return false, apperrors.NewStorageError("encode", key, err)
	}
	if err := q.store.Write(ctx, key, data); err != nil {
		return false, apperrors.NewStorageError("write", key, err)
	}

	q.logger.WithFields(fields).Info("Item queued")
	return true, nil
}

// PeekOldest returns the oldest item without removing it, or nil when the
// queue is empty. Items that cannot be decoded are moved aside.
func (q *Queue) PeekOldest(ctx context.Context, channel string, purpose models.Purpose) (*models.QueueItem, error) {
	keys, err := q.keys(ctx, channel, purpose)
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		data, err := q.store.Read(ctx, key)
		if err != nil {
			return nil, apperrors.NewStorageError("read", key, err)
		}

		item, err := decode(purpose, data)
		if err != nil {
			q.reject(ctx, channel, key, err)
			continue
		}
		item.Key = key
		item.Channel = channel
		item.Purpose = purpose
		return item, nil
	}
	return nil, nil
}

// Remove deletes an item returned by PeekOldest.
func (q *Queue) Remove(ctx context.Context, item *models.QueueItem) error {
	if err := q.store.Delete(ctx, item.Key); err != nil {
		return apperrors.NewStorageError("delete", item.Key, err)
	}
	q.logger.WithFields(logrus.Fields{
		"channel": item.Channel,
		"purpose": item.Purpose,
		"item":    storage.Base(item.Key),
	}).Info("Item removed from queue")
	return nil
}

// Occupancy counts the items of one queue.
func (q *Queue) Occupancy(ctx context.Context, channel string, purpose models.Purpose) (int, error) {
	keys, err := q.keys(ctx, channel, purpose)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (q *Queue) keys(ctx context.Context, channel string, purpose models.Purpose) ([]string, error) {
	prefix := q.layout.Queue(channel, string(purpose)) + "/"
	keys, err := q.store.List(ctx, prefix)
	if err != nil {
		return nil, apperrors.NewStorageError("list", prefix, err)
	}

	items := keys[:0]
	for _, key := range keys {
		// Only direct children are items.
		if !strings.Contains(strings.TrimPrefix(key, prefix), "/") {
			items = append(items, key)
		}
	}
	return items, nil
}

func (q *Queue) reject(ctx context.Context, channel, key string, cause error) {
	dst := storage.Join(q.layout.Queue(channel, rejectedDir), storage.Base(key))
	entry := q.logger.WithError(cause).WithFields(logrus.Fields{"channel": channel, "item": key})
	if err := q.store.Move(ctx, key, dst); err != nil {
		entry.WithField("move_error", err.Error()).Error("Failed to set aside undecodable queue item")
		return
	}
	entry.Warn("Undecodable queue item set aside")
}

func encode(item models.QueueItem) ([]byte, error) {
	if item.Entity != nil {
		return json.MarshalIndent(item.Entity, "", "  ")
	}
	return []byte(item.Text), nil
}

func decode(purpose models.Purpose, data []byte) (*models.QueueItem, error) {
	if purpose == models.PurposePeriodicReport {
		return &models.QueueItem{Text: string(data)}, nil
	}

	var entity models.Entity
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, err
	}
	if entity.ID == "" {
		return nil, fmt.Errorf("queued entity has no id")
	}
	return &models.QueueItem{Entity: &entity}, nil
}
