package migrations

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed sql/*.sql
var embedded embed.FS

const (
	BlobStoreSchema       = "001_blob_store.sql"
	RecordsSQLiteSchema   = "002_records_sqlite.sql"
	RecordsPostgresSchema = "002_records_postgres.sql"
)

var (
	// MigrationsDir can be overridden in tests or by the application to
	// load schema files from disk instead of the embedded copies.
	MigrationsDir = ""
)

// Schema returns the named schema, preferring an override in MigrationsDir.
func Schema(name string) (string, error) {
	if MigrationsDir != "" {
		content, err := os.ReadFile(filepath.Join(MigrationsDir, name))
		if err == nil {
			return string(content), nil
		}
	}

	content, err := embedded.ReadFile("sql/" + name)
	if err != nil {
		return "", fmt.Errorf("could not find schema %s: %w", name, err)
	}
	return string(content), nil
}
