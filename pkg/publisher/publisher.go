// Package publisher defines what the publish worker needs from a backend.
package publisher

import (
	"context"
	"encoding/json"
)

// Media is an attachment uploaded before the post that references it.
type Media struct {
	Name     string
	MimeType string
	Data     []byte
}

// Location is a WGS84 coordinate attached to a post.
type Location struct {
	Latitude  float64
	Longitude float64
}

type Options struct {
	MediaIDs []string
	// ReplyTo is the backend id of the post this one answers.
	ReplyTo  string
	Location *Location
}

// Result is the backend acknowledgement of a successful post.
type Result struct {
	ID  string
	Raw json.RawMessage
}

type Publisher interface {
	Upload(ctx context.Context, media Media) (string, error)
	Publish(ctx context.Context, text string, opts Options) (*Result, error)
	MaxLength() int
}
