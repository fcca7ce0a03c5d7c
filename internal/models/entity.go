package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// EntityID is the portal-assigned identifier of a report. The portal sends
// numbers; strings are accepted and round-trip unchanged.
type EntityID string

func (id EntityID) String() string {
	return string(id)
}

func (id EntityID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *EntityID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = EntityID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid entity id %s: %w", string(data), err)
	}
	*id = EntityID(n.String())
	return nil
}

// Millis is an instant encoded as epoch milliseconds on the wire.
type Millis int64

func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m))
}

func MillisOf(t time.Time) Millis {
	return Millis(t.UnixMilli())
}

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
	StatusHold   Status = "hold"
)

// Response is an answer of the city administration to a report
type Response struct {
	Message     string `json:"message"`
	MessageDate Millis `json:"messageDate"`
}

// Image references the photo attached to a report
type Image struct {
	ID       string `json:"id"`
	MimeType string `json:"mimeType"`
}

// GeoCoding is a coordinate pair tagged with the coordinate system it is
// expressed in.
type GeoCoding struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	CoordinateSystem string  `json:"coordinateSystem"`
}

type Position struct {
	GeoCoding *GeoCoding `json:"geoCoding,omitempty"`
}

// Entity is one civic report as delivered by the portal
type Entity struct {
	ID          EntityID   `json:"id"`
	CreatedDate Millis     `json:"createdDate"`
	LastUpdated Millis     `json:"lastUpdated"`
	Subject     string     `json:"subject"`
	Message     string     `json:"message,omitempty"`
	Responses   []Response `json:"responses"`
	Image       *Image     `json:"messageImage,omitempty"`
	Status      Status     `json:"status,omitempty"`
	Position    *Position  `json:"messagePosition,omitempty"`

	// extra holds the portal fields the struct does not model, so that
	// stored records stay a verbatim copy of what the portal sent.
	extra map[string]json.RawMessage
}

// entityFields has Entity's fields without its JSON methods.
type entityFields Entity

var modeledEntityFields = map[string]bool{
	"id":              true,
	"createdDate":     true,
	"lastUpdated":     true,
	"subject":         true,
	"message":         true,
	"responses":       true,
	"messageImage":    true,
	"status":          true,
	"messagePosition": true,
}

func (e *Entity) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var fields entityFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for key := range all {
		if modeledEntityFields[key] {
			delete(all, key)
		}
	}
	fields.extra = nil
	if len(all) > 0 {
		fields.extra = all
	}

	*e = Entity(fields)
	return nil
}

// MarshalJSON writes the modeled fields over the unmodeled ones.
func (e Entity) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(entityFields(e))
	if err != nil || len(e.extra) == 0 {
		return data, err
	}

	var modeled map[string]json.RawMessage
	if err := json.Unmarshal(data, &modeled); err != nil {
		return nil, err
	}
	merged := make(map[string]json.RawMessage, len(e.extra)+len(modeled))
	for key, value := range e.extra {
		merged[key] = value
	}
	for key, value := range modeled {
		merged[key] = value
	}
	return json.Marshal(merged)
}

// Extra returns an unmodeled portal field, if present.
func (e *Entity) Extra(key string) (json.RawMessage, bool) {
	value, ok := e.extra[key]
	return value, ok
}

// LatestResponse returns the response with the newest messageDate.
func (e *Entity) LatestResponse() (Response, bool) {
	if len(e.Responses) == 0 {
		return Response{}, false
	}
	sorted := make([]Response, len(e.Responses))
	copy(sorted, e.Responses)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MessageDate > sorted[j].MessageDate
	})
	return sorted[0], true
}

// Geo returns the raw coordinate of the report, if any.
func (e *Entity) Geo() *GeoCoding {
	if e.Position == nil {
		return nil
	}
	return e.Position.GeoCoding
}
