package database

// Blob store queries
const (
	UpsertBlobQuery = `
		INSERT INTO blobs (key, data) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data
	`

	SelectBlobQuery = `
		SELECT data FROM blobs WHERE key = ?
	`

	// instr is case sensitive, unlike LIKE, and ORDER BY key uses the
	// binary collation so keys come back in byte order.
	ListBlobKeysQuery = `
		SELECT key FROM blobs
		WHERE instr(key, ?) = 1
		ORDER BY key
	`

	ExistsBlobQuery = `
		SELECT COUNT(1) FROM blobs WHERE key = ?
	`

	DeleteBlobQuery = `
		DELETE FROM blobs WHERE key = ?
	`
)
