package receipts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"civicrelay/internal/models"
	"civicrelay/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ThreadContinuity(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemoryStore(), "md")

	_, ok, err := s.Last(ctx, "twitter", "42")
	require.NoError(t, err)
	assert.False(t, ok)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(ctx, "twitter", "42", models.Receipt{ChannelReceiptID: "R1", PublishedAt: now}))
	require.NoError(t, s.Append(ctx, "twitter", "42", models.Receipt{ChannelReceiptID: "R2", PublishedAt: now.Add(time.Hour)}))

	last, ok, err := s.Last(ctx, "twitter", "42")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "R2", last.ChannelReceiptID)
	assert.Equal(t, models.EntityID("42"), last.EntityID)
	assert.Equal(t, "twitter", last.Channel)

	all, err := s.All(ctx, "twitter", "42")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "R1", all[0].ChannelReceiptID)
}

func TestStore_ChannelsAreSeparate(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemoryStore(), "md")

	require.NoError(t, s.Append(ctx, "twitter", "42", models.Receipt{ChannelReceiptID: "T1"}))

	_, ok, err := s.Last(ctx, "mastodon", "42")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_KeepsRawResponse(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	s := New(mem, "md")

	raw := json.RawMessage(`{"id_str":"123","text":"hello"}`)
	require.NoError(t, s.Append(ctx, "twitter", "7", models.Receipt{ChannelReceiptID: "123", Raw: raw}))

	data, err := mem.Read(ctx, "tenants/md/receipts/twitter/receipts-7.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id_str": "123"`)
}

func TestStore_Reports(t *testing.T) {
	ctx := context.Background()
	s := New(storage.NewMemoryStore(), "md")

	require.NoError(t, s.AppendReport(ctx, "mastodon", models.Receipt{ChannelReceiptID: "S1"}))
	require.NoError(t, s.AppendReport(ctx, "mastodon", models.Receipt{ChannelReceiptID: "S2"}))

	reports, err := s.Reports(ctx, "mastodon")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "S2", reports[1].ChannelReceiptID)
	assert.Empty(t, reports[1].EntityID)
}
