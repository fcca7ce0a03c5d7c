package database

import (
	"context"
	"path/filepath"
	"testing"

	"civicrelay/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "civicrelay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("../../etc/civicrelay.db")
	assert.Error(t, err)
}

func TestDatabase_WriteRead(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Read(ctx, "tenants/md/all-messages.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, db.Write(ctx, "tenants/md/all-messages.json", []byte(`[]`)))
	require.NoError(t, db.Write(ctx, "tenants/md/all-messages.json", []byte(`[{"id":1}]`)))

	data, err := db.Read(ctx, "tenants/md/all-messages.json")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, string(data))

	ok, err := db.Exists(ctx, "tenants/md/all-messages.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDatabase_ListIsCaseSensitiveAndOrdered(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, k := range []string{
		"tenants/md/queues/tw/new_messages/message-20.json",
		"tenants/md/queues/tw/new_messages/message-10.json",
		"tenants/md/queues/TW/new_messages/message-30.json",
		"tenants/md/queues/tw/status_updates/message-40.json",
	} {
		require.NoError(t, db.Write(ctx, k, []byte("{}")))
	}

	keys, err := db.List(ctx, "tenants/md/queues/tw/new_messages/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"tenants/md/queues/tw/new_messages/message-10.json",
		"tenants/md/queues/tw/new_messages/message-20.json",
	}, keys)

	keys, err = db.List(ctx, "tenants/none/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDatabase_MoveDelete(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Write(ctx, "tenants/md/images/7-1.jpeg", []byte("jpeg")))
	require.NoError(t, db.Move(ctx, "tenants/md/images/7-1.jpeg", "archive/md/images/7-1.jpeg"))

	ok, err := db.Exists(ctx, "tenants/md/images/7-1.jpeg")
	require.NoError(t, err)
	assert.False(t, ok)

	data, err := db.Read(ctx, "archive/md/images/7-1.jpeg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	err = db.Move(ctx, "tenants/md/images/7-1.jpeg", "archive/md/images/7-1.jpeg")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, db.Delete(ctx, "archive/md/images/7-1.jpeg"))
	_, err = db.Read(ctx, "archive/md/images/7-1.jpeg")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDatabase_RejectsInvalidKeys(t *testing.T) {
	db := setupTestDB(t)
	assert.Error(t, db.Write(context.Background(), "../outside", []byte("x")))
}
