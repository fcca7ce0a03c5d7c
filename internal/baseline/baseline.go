// Package baseline persists what a tenant has already seen: a ledger of every
// entity ever observed and one detail record per active entity.
package baseline

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

// LoadAll returns the ledger. A tenant without a ledger yet has seen nothing.
func (s *Store) LoadAll(ctx context.Context) ([]models.Entity, error) {
	key := s.layout.Ledger()
	data, err := s.store.Read(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return []models.Entity{}, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("read", key, err)
	}

	var entities []models.Entity
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, apperrors.NewStorageError("decode", key, err)
	}
	return entities, nil
}

// Record upserts entities into the ledger. Known ids are replaced in place,
// unknown ids are appended in the order given.
func (s *Store) Record(ctx context.Context, entities ...models.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	ledger, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}

	index := make(map[models.EntityID]int, len(ledger))
	for i, e := range ledger {
		index[e.ID] = i
	}
	for _, e := range entities {
		if i, ok := index[e.ID]; ok {
			ledger[i] = e
			continue
		}
		index[e.ID] = len(ledger)
		ledger = append(ledger, e)
	}

	return s.writeJSON(ctx, s.layout.Ledger(), ledger)
}

// SaveDetail stores the full detail record of an entity, replacing any
// previous version.
func (s *Store) SaveDetail(ctx context.Context, entity *models.Entity) error {
	return s.writeJSON(ctx, s.layout.Detail(entity.ID.String()), entity)
}

// Detail loads the active detail record of id. Archived entities have none.
func (s *Store) Detail(ctx context.Context, id models.EntityID) (*models.Entity, bool, error) {
	key := s.layout.Detail(id.String())
	data, err := s.store.Read(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewStorageError("read", key, err)
	}

	var entity models.Entity
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, false, apperrors.NewStorageError("decode", key, err)
	}
	return &entity, true, nil
}

// DetailsFor loads the active detail records of the given ids, skipping ids
// without one.
func (s *Store) DetailsFor(ctx context.Context, entities []models.Entity) (map[models.EntityID]models.Entity, error) {
	details := make(map[models.EntityID]models.Entity, len(entities))
	for _, e := range entities {
		detail, ok, err := s.Detail(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			details[e.ID] = *detail
		}
	}
	return details, nil
}

// Details loads every active detail record.
func (s *Store) Details(ctx context.Context) ([]models.Entity, error) {
	keys, err := s.store.List(ctx, s.layout.DetailPrefix())
	if err != nil {
		return nil, apperrors.NewStorageError("list", s.layout.DetailPrefix(), err)
	}

	details := make([]models.Entity, 0, len(keys))
	for _, key := range keys {
		id, ok := storage.MessageID(key)
		if !ok {
			continue
		}
		detail, found, err := s.Detail(ctx, models.EntityID(id))
		if err != nil {
			return nil, err
		}
		if found {
			details = append(details, *detail)
		}
	}
	return details, nil
}

func (s *Store) writeJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.NewStorageError("encode", key, err)
	}
	if err := s.store.Write(ctx, key, data); err != nil {
		return apperrors.NewStorageError("write", key, err)
	}
	return nil
}
