package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayout(t *testing.T) {
	l := NewLayout("md")

	assert.Equal(t, "tenants/md/messages/all-messages.json", l.Ledger())
	assert.Equal(t, "tenants/md/messages/message-42.json", l.Detail("42"))
	assert.Equal(t, "tenants/md/messages/message-", l.DetailPrefix())
	assert.Equal(t, "tenants/md/images/42-7.jpeg", l.Image("42", "7", ".jpeg"))
	assert.Equal(t, "tenants/md/images/42-", l.MediaPrefix("42"))
	assert.Equal(t, "tenants/md/queues/twitter/new_messages", l.Queue("twitter", "new_messages"))
	assert.Equal(t, "tenants/md/receipts/mastodon/receipts-42.json", l.Receipts("mastodon", "42"))
	assert.Equal(t, "tenants/md/receipts/mastodon/weekly-stats.json", l.ReportReceipts("mastodon"))
	assert.Equal(t, "archive/md/messages/message-42.json", l.ArchivedDetail("42"))
	assert.Equal(t, "archive/md/images/42-7.jpeg", l.ArchivedImage("42-7.jpeg"))
	assert.Equal(t, "tenants/md/output-fetch.log", l.LogFile("fetch"))
}

func TestMessageID(t *testing.T) {
	id, ok := MessageID("tenants/md/messages/message-4711.json")
	assert.True(t, ok)
	assert.Equal(t, "4711", id)

	_, ok = MessageID("tenants/md/messages/all-messages.json")
	assert.False(t, ok)
	_, ok = MessageID("message-.json")
	assert.False(t, ok)
}
