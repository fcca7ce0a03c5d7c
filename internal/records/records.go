// Package records mirrors every fetched detail record into a document table
// keyed by (tenant_key, id), together with its WGS84 location.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"civicrelay/internal/database"
	apperrors "civicrelay/internal/errors"
	"civicrelay/internal/geo"
	"civicrelay/internal/migrations"
	"civicrelay/internal/models"

	_ "github.com/lib/pq"
)

// ProviderKey identifies the portal family records originate from.
const ProviderKey = "sue"

type Store interface {
	Upsert(ctx context.Context, tenantKey string, entity *models.Entity) error
	Close() error
}

// Record is one stored row.
type Record struct {
	TenantKey   string
	ID          models.EntityID
	ProviderKey string
	Location    *geo.Point
	Data        models.Entity
}

type dialect struct {
	name      string
	upsert    string
	selectOne string
}

var (
	postgresDialect = dialect{
		name: "postgres",
		upsert: `
			INSERT INTO records (tenant_key, id, provider_key, location, data)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (tenant_key, id) DO UPDATE
			SET provider_key = EXCLUDED.provider_key,
			    location = EXCLUDED.location,
			    data = EXCLUDED.data,
			    updated_at = NOW()
		`,
		selectOne: `
			SELECT provider_key, location, data FROM records
			WHERE tenant_key = $1 AND id = $2
		`,
	}

	sqliteDialect = dialect{
		name: "sqlite",
		upsert: `
			INSERT INTO records (tenant_key, id, provider_key, location, data)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (tenant_key, id) DO UPDATE
			SET provider_key = excluded.provider_key,
			    location = excluded.location,
			    data = excluded.data,
			    updated_at = CURRENT_TIMESTAMP
		`,
		selectOne: `
			SELECT provider_key, location, data FROM records
			WHERE tenant_key = ? AND id = ?
		`,
	}
)

// SQLStore persists records in Postgres or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// NewPostgres connects to dsn and ensures the records table exists.
func NewPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to open postgres")
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to ping postgres")
	}

	schema, err := migrations.Schema(migrations.RecordsPostgresSchema)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, apperrors.NewDatabaseError("initialize schema", err)
	}

	return &SQLStore{db: db, dialect: postgresDialect}, nil
}

// NewSQLite opens a SQLite file holding the records table.
func NewSQLite(path string) (*SQLStore, error) {
	db, err := database.Open(path, migrations.RecordsSQLiteSchema)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeDatabaseConnection, "failed to open sqlite records")
	}
	return &SQLStore{db: db, dialect: sqliteDialect}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Upsert(ctx context.Context, tenantKey string, entity *models.Entity) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", entity.ID, err)
	}

	var location sql.NullString
	if p, ok := geo.Locate(entity); ok {
		encoded, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode location of %s: %w", entity.ID, err)
		}
		location = sql.NullString{String: string(encoded), Valid: true}
	}

	err = database.Retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, s.dialect.upsert,
			tenantKey, entity.ID.String(), ProviderKey, location, string(data))
		return err
	}, "upsert record")
	if err != nil {
		return apperrors.NewDatabaseError("upsert record", err).
			WithContext("tenant_key", tenantKey).
			WithContext("entity_id", entity.ID.String()).
			WithContext("dialect", s.dialect.name)
	}
	return nil
}

// Get loads a stored record.
func (s *SQLStore) Get(ctx context.Context, tenantKey string, id models.EntityID) (*Record, error) {
	var (
		providerKey string
		location    sql.NullString
		data        string
	)

	err := s.db.QueryRowContext(ctx, s.dialect.selectOne, tenantKey, id.String()).
		Scan(&providerKey, &location, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("record", id.String())
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("select record", err)
	}

	rec := &Record{TenantKey: tenantKey, ID: id, ProviderKey: providerKey}
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	if location.Valid {
		rec.Location = &geo.Point{}
		if err := json.Unmarshal([]byte(location.String), rec.Location); err != nil {
			return nil, fmt.Errorf("failed to decode location of %s: %w", id, err)
		}
	}
	return rec, nil
}

// Noop discards records; used when no record sink is configured.
type Noop struct{}

func (Noop) Upsert(context.Context, string, *models.Entity) error { return nil }
func (Noop) Close() error { return nil }
