package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError_Error(t *testing.T) {
	err := ConfigError{Message: "test error"}
	assert.Equal(t, "test error", err.Error())
}

func TestSourceConfig_URLs(t *testing.T) {
	src := SourceConfig{System: "magdeburg", ID: "1234"}
	assert.Equal(t, "https://include-magdeburg.zfinder.de", src.Host())
	assert.Equal(t, "https://include-magdeburg.zfinder.de/mobileportalpms/1234", src.TenantBaseURL())

	src.BaseURL = "http://127.0.0.1:9000/"
	assert.Equal(t, "http://127.0.0.1:9000/mobileportalpms/1234", src.TenantBaseURL())
}

func TestTenantConfig_Channels(t *testing.T) {
	tenant := TenantConfig{
		Key:                 "md",
		ProcessDelaySeconds: 3,
		Channels: []ChannelConfig{
			{Name: "twitter", Kind: ChannelKindTwitter, Enabled: true},
			{Name: "mastodon", Kind: ChannelKindMastodon, Enabled: false},
		},
	}

	assert.Equal(t, 3*time.Second, tenant.PerItemDelay())
	require.Len(t, tenant.EnabledChannels(), 1)

	_, ok := tenant.Channel("twitter")
	assert.True(t, ok)
	_, ok = tenant.Channel("mastodon")
	assert.False(t, ok, "disabled channels are not selectable")
}

func TestConfig_Tenant(t *testing.T) {
	cfg := Config{Tenants: []TenantConfig{
		{Key: "a", Active: true},
		{Key: "b", Active: false},
	}}

	_, ok := cfg.Tenant("a")
	assert.True(t, ok)
	_, ok = cfg.Tenant("b")
	assert.False(t, ok)
	_, ok = cfg.Tenant("missing")
	assert.False(t, ok)
}

func TestEntityID_JSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want EntityID
		out  string
	}{
		{name: "number", in: `12345`, want: "12345", out: `12345`},
		{name: "string", in: `"abc-1"`, want: "abc-1", out: `"abc-1"`},
		{name: "numeric string", in: `"77"`, want: "77", out: `77`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id EntityID
			require.NoError(t, json.Unmarshal([]byte(tt.in), &id))
			assert.Equal(t, tt.want, id)

			out, err := json.Marshal(id)
			require.NoError(t, err)
			assert.Equal(t, tt.out, string(out))
		})
	}
}

func TestEntity_DecodePortalPayload(t *testing.T) {
	payload := `{
		"id": 4711,
		"createdDate": 1700000000000,
		"lastUpdated": 1700000500000,
		"subject": "Laterne defekt",
		"status": "open",
		"responses": [
			{"message": "Erste", "messageDate": 1700000100000},
			{"message": "Zweite", "messageDate": 1700000400000}
		],
		"messageImage": {"id": "99", "mimeType": "image/png"},
		"messagePosition": {"geoCoding": {"latitude": 5776000.5, "longitude": 681000.25, "coordinateSystem": "EPSG:25832"}}
	}`

	var e Entity
	require.NoError(t, json.Unmarshal([]byte(payload), &e))

	assert.Equal(t, EntityID("4711"), e.ID)
	assert.Equal(t, time.UnixMilli(1700000000000), e.CreatedDate.Time())
	assert.Equal(t, StatusOpen, e.Status)
	require.NotNil(t, e.Image)
	assert.Equal(t, "image/png", e.Image.MimeType)
	require.NotNil(t, e.Geo())
	assert.Equal(t, "EPSG:25832", e.Geo().CoordinateSystem)

	latest, ok := e.LatestResponse()
	require.True(t, ok)
	assert.Equal(t, "Zweite", latest.Message)
	assert.Equal(t, "Erste", e.Responses[0].Message, "LatestResponse must not reorder the entity")
}

func TestEntity_NoResponsesNoGeo(t *testing.T) {
	e := Entity{ID: "1"}
	_, ok := e.LatestResponse()
	assert.False(t, ok)
	assert.Nil(t, e.Geo())
}

func TestPurpose_Valid(t *testing.T) {
	for _, p := range PublishPriority {
		assert.True(t, p.Valid())
	}
	assert.False(t, Purpose("bogus").Valid())
	assert.Equal(t, PurposeNewEntity, PublishPriority[0])
	assert.Equal(t, PurposePeriodicReport, PublishPriority[len(PublishPriority)-1])
}
