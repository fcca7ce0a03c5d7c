package models

import (
	"encoding/json"
	"time"
)

// Purpose selects one of the independent queues of a channel
type Purpose string

const (
	PurposeNewEntity      Purpose = "new_messages"
	PurposeResponseUpdate Purpose = "response_updates"
	PurposeStatusUpdate   Purpose = "status_updates"
	PurposePeriodicReport Purpose = "periodic_reports"
)

// PublishPriority is the order in which a publish worker looks for work.
var PublishPriority = []Purpose{
	PurposeNewEntity,
	PurposeResponseUpdate,
	PurposeStatusUpdate,
	PurposePeriodicReport,
}

func (p Purpose) Valid() bool {
	switch p {
	case PurposeNewEntity, PurposeResponseUpdate, PurposeStatusUpdate, PurposePeriodicReport:
		return true
	}
	return false
}

// QueueItem is one pending publish job. Exactly one of Entity and Text is set:
// entity purposes carry the detail record, periodic reports carry rendered text.
type QueueItem struct {
	Key        string    `json:"-"`
	Channel    string    `json:"-"`
	Purpose    Purpose   `json:"-"`
	Entity     *Entity   `json:"-"`
	Text       string    `json:"-"`
	EnqueuedAt time.Time `json:"-"`
}

// Receipt is a backend acknowledgement of a successful publish
type Receipt struct {
	EntityID         EntityID        `json:"entityId,omitempty"`
	Channel          string          `json:"channel"`
	ChannelReceiptID string          `json:"channelReceiptId"`
	PublishedAt      time.Time       `json:"publishedAt"`
	Raw              json.RawMessage `json:"raw,omitempty"`
}
