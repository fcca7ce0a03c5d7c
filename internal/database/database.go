// Package database provides the SQLite backed key/blob store and the shared
// connection helpers used by the record store.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"civicrelay/internal/migrations"
	"civicrelay/internal/security"
	"civicrelay/internal/storage"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (creating if needed) the SQLite database at dbPath and applies
// the named schemas.
func Open(dbPath string, schemas ...string) (*sql.DB, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Serialise writers; SQLite allows only one at a time anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, closeOnError(db, fmt.Errorf("failed to ping database: %w", err))
	}

	for _, name := range schemas {
		schema, err := migrations.Schema(name)
		if err != nil {
			return nil, closeOnError(db, fmt.Errorf("failed to read schema: %w", err))
		}
		if _, err := db.Exec(schema); err != nil {
			return nil, closeOnError(db, fmt.Errorf("failed to initialize schema %s: %w", name, err))
		}
	}

	return db, nil
}

func closeOnError(db *sql.DB, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		return fmt.Errorf("%w (close error: %v)", err, closeErr)
	}
	return err
}

// Database is a storage.Store keeping every key as a row of the blobs table.
type Database struct {
	db *sql.DB
}

var _ storage.Store = (*Database)(nil)

func New(dbPath string) (*Database, error) {
	db, err := Open(dbPath, migrations.BlobStoreSchema)
	if err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) List(ctx context.Context, prefix string) ([]string, error) {
	return RetryValue(ctx, func() ([]string, error) {
		rows, err := d.db.QueryContext(ctx, ListBlobKeysQuery, prefix)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var keys []string
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
		return keys, rows.Err()
	}, "list blobs")
}

func (d *Database) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := RetryValue(ctx, func() ([]byte, error) {
		var data []byte
		err := d.db.QueryRowContext(ctx, SelectBlobQuery, key).Scan(&data)
		return data, err
	}, "read blob")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return data, err
}

func (d *Database) Write(ctx context.Context, key string, data []byte) error {
	if err := security.ValidateKey(key); err != nil {
		return err
	}
	return Retry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, UpsertBlobQuery, key, data)
		return err
	}, "write blob")
}

// Move relocates src to dst in one transaction, replacing any existing dst.
func (d *Database) Move(ctx context.Context, src, dst string) error {
	if err := security.ValidateKey(dst); err != nil {
		return err
	}
	err := Retry(ctx, func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var data []byte
		if err := tx.QueryRowContext(ctx, SelectBlobQuery, src).Scan(&data); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, UpsertBlobQuery, dst, data); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, DeleteBlobQuery, src); err != nil {
			return err
		}
		return tx.Commit()
	}, "move blob")
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func (d *Database) Delete(ctx context.Context, key string) error {
	return Retry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, DeleteBlobQuery, key)
		return err
	}, "delete blob")
}

func (d *Database) Exists(ctx context.Context, key string) (bool, error) {
	return RetryValue(ctx, func() (bool, error) {
		var n int
		err := d.db.QueryRowContext(ctx, ExistsBlobQuery, key).Scan(&n)
		return n > 0, err
	}, "check blob")
}
