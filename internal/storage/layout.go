package storage

import (
	"fmt"
	"strings"

	"civicrelay/internal/constants"
)

// Layout names every key a tenant's data lives under. Active data sits below
// tenants/<key>/, archived data mirrors it below archive/<key>/.
type Layout struct {
	TenantKey string
}

func NewLayout(tenantKey string) Layout {
	return Layout{TenantKey: tenantKey}
}

func (l Layout) TenantDir() string {
	return Join(constants.TenantsDir, l.TenantKey)
}

func (l Layout) MessagesDir() string {
	return Join(l.TenantDir(), "messages")
}

// Ledger is the list of every entity ever seen.
func (l Layout) Ledger() string {
	return Join(l.MessagesDir(), constants.AllMessagesFile)
}

// DetailPrefix matches every active detail record.
func (l Layout) DetailPrefix() string {
	return Join(l.MessagesDir(), "message-")
}

func (l Layout) Detail(id string) string {
	return MessageFile(l.MessagesDir(), id)
}

func (l Layout) ImagesDir() string {
	return Join(l.TenantDir(), "images")
}

// MediaPrefix matches every media file belonging to one entity.
func (l Layout) MediaPrefix(id string) string {
	return Join(l.ImagesDir(), id+"-")
}

func (l Layout) Image(id, imageID, ext string) string {
	return Join(l.ImagesDir(), fmt.Sprintf("%s-%s%s", id, imageID, ext))
}

func (l Layout) Queue(channel, purpose string) string {
	return Join(l.TenantDir(), "queues", channel, purpose)
}

func (l Layout) ReceiptsDir(channel string) string {
	return Join(l.TenantDir(), "receipts", channel)
}

func (l Layout) Receipts(channel, id string) string {
	return Join(l.ReceiptsDir(channel), fmt.Sprintf("receipts-%s.json", id))
}

func (l Layout) ReportReceipts(channel string) string {
	return Join(l.ReceiptsDir(channel), constants.WeeklyStatsFile)
}

func (l Layout) ArchiveDir() string {
	return Join(constants.ArchiveDir, l.TenantKey)
}

func (l Layout) ArchivedDetail(id string) string {
	return MessageFile(Join(l.ArchiveDir(), "messages"), id)
}

func (l Layout) ArchivedImage(name string) string {
	return Join(l.ArchiveDir(), "images", name)
}

// LogFile is the per-command log file, kept on local disk for every driver.
func (l Layout) LogFile(command string) string {
	return Join(l.TenantDir(), fmt.Sprintf("output-%s.log", command))
}

func MessageFile(dir, id string) string {
	return Join(dir, fmt.Sprintf("message-%s.json", id))
}

// MessageID extracts the entity id from a message-<id>.json key.
func MessageID(key string) (string, bool) {
	name := Base(key)
	if !strings.HasPrefix(name, "message-") || !strings.HasSuffix(name, ".json") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, "message-"), ".json")
	return id, id != ""
}
