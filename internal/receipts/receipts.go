// Package receipts keeps the append-only publish receipts per channel and
// entity. The newest receipt is the parent follow-ups reply to.
package receipts

import (
	"context"
	"encoding/json"
	"errors"

	apperrors "civicrelay/internal/errors"
	"civicrelay/internal/models"
	"civicrelay/internal/storage"
)

type Store struct {
	store  storage.Store
	layout storage.Layout
}

func New(store storage.Store, tenantKey string) *Store {
	return &Store{store: store, layout: storage.NewLayout(tenantKey)}
}

// Append adds receipt to the thread of entityID on channel.
func (s *Store) Append(ctx context.Context, channel string, entityID models.EntityID, receipt models.Receipt) error {
	receipt.EntityID = entityID
	receipt.Channel = channel
	return s.appendTo(ctx, s.layout.Receipts(channel, entityID.String()), receipt)
}

// Last returns the newest receipt of entityID on channel.
func (s *Store) Last(ctx context.Context, channel string, entityID models.EntityID) (*models.Receipt, bool, error) {
	list, err := s.All(ctx, channel, entityID)
	if err != nil || len(list) == 0 {
		return nil, false, err
	}
	return &list[len(list)-1], true, nil
}

// All returns the thread of entityID on channel, oldest first.
func (s *Store) All(ctx context.Context, channel string, entityID models.EntityID) ([]models.Receipt, error) {
	return s.load(ctx, s.layout.Receipts(channel, entityID.String()))
}

// AppendReport records the receipt of a periodic report.
func (s *Store) AppendReport(ctx context.Context, channel string, receipt models.Receipt) error {
	receipt.Channel = channel
	return s.appendTo(ctx, s.layout.ReportReceipts(channel), receipt)
}

func (s *Store) Reports(ctx context.Context, channel string) ([]models.Receipt, error) {
	return s.load(ctx, s.layout.ReportReceipts(channel))
}

func (s *Store) appendTo(ctx context.Context, key string, receipt models.Receipt) error {
	list, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	list = append(list, receipt)

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return apperrors.NewStorageError("encode", key, err)
	}
	if err := s.store.Write(ctx, key, data); err != nil {
		return apperrors.NewStorageError("write", key, err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, key string) ([]models.Receipt, error) {
	data, err := s.store.Read(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("read", key, err)
	}

	var list []models.Receipt
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, apperrors.NewStorageError("decode", key, err)
	}
	return list, nil
}
