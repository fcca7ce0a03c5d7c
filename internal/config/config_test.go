package config

import (
	"os"
	"path/filepath"
	"testing"

	"civicrelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validJSON = `{
	"log_level": "debug",
	"storage": {"driver": "file"},
	"retry": {"initialBackoffMs": 500, "maxBackoffMs": 5000, "maxAttempts": 4},
	"tenants": [
		{
			"key": "md",
			"active": true,
			"source": {"system": "magdeburg", "id": "1234"},
			"process_delay_seconds": 5,
			"max_per_run": 3,
			"max_queue_size": 20,
			"archive_old_entities": true,
			"image_credit": "Stadt Magdeburg",
			"channels": [
				{"name": "twitter", "kind": "twitter", "enabled": true, "with_image": true},
				{"name": "mastodon", "kind": "mastodon", "enabled": true, "env_prefix": "MD_MASTODON"}
			]
		}
	]
}`

const validYAML = `
tenants:
  - key: hh
    active: true
    source:
      base_url: http://127.0.0.1:9000
      id: "77"
    limit_fetch: 50
    channels:
      - name: toots
        kind: mastodon
        enabled: true
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_JSON(t *testing.T) {
	t.Setenv("TWITTER_API_KEY", "key")
	t.Setenv("TWITTER_API_SECRET", "secret")
	t.Setenv("TWITTER_ACCESS_TOKEN", "token")
	t.Setenv("TWITTER_ACCESS_TOKEN_SECRET", "token-secret")
	t.Setenv("MD_MASTODON_ACCESS_TOKEN", "bearer")
	t.Setenv("MD_MASTODON_API_URL", "https://social.example/api/v1")

	cfg, err := LoadConfig(writeConfig(t, "config.json", validJSON))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ".", cfg.DataDir)
	assert.Equal(t, 500, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)

	tenant, ok := cfg.Tenant("md")
	require.True(t, ok)
	assert.Equal(t, 100, tenant.LimitFetch, "default limit")
	assert.Equal(t, 6, tenant.RetentionMonths, "default retention")
	assert.Equal(t, "Europe/Berlin", tenant.Timezone)
	assert.Equal(t, "MeldungenStats", tenant.StatsHashtag)
	assert.Equal(t, 30, tenant.Source.TimeoutSec)

	twitter, ok := tenant.Channel("twitter")
	require.True(t, ok)
	assert.Equal(t, "TWITTER", twitter.EnvPrefix)
	assert.Equal(t, "key", twitter.Credentials.APIKey)
	assert.Equal(t, "token-secret", twitter.Credentials.AccessTokenSecret)
	assert.NoError(t, ValidateChannelCredentials(twitter))

	mastodon, ok := tenant.Channel("mastodon")
	require.True(t, ok)
	assert.Equal(t, "bearer", mastodon.Credentials.AccessToken)
	assert.Equal(t, "https://social.example/api/v1", mastodon.APIURL)
	assert.NoError(t, ValidateChannelCredentials(mastodon))
}

func TestLoadConfig_YAML(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "config.yaml", validYAML))
	require.NoError(t, err)

	tenant, ok := cfg.Tenant("hh")
	require.True(t, ok)
	assert.Equal(t, "77", tenant.Source.ID)
	assert.Equal(t, "http://127.0.0.1:9000/mobileportalpms/77", tenant.Source.TenantBaseURL())
	assert.Equal(t, 50, tenant.LimitFetch)
	assert.Equal(t, "file", cfg.Storage.Driver)
	require.Len(t, tenant.EnabledChannels(), 1)
	assert.Equal(t, models.ChannelKindMastodon, tenant.Channels[0].Kind)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CIVICRELAY_DATA_DIR", "/var/lib/civicrelay")
	t.Setenv("CIVICRELAY_LOG_LEVEL", "warn")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.test/x")
	t.Setenv("DATABASE_URL", "postgres://localhost/civic")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	content := `{
		"storage": {"driver": "redis"},
		"records": {"driver": "postgres"},
		"tenants": [{"key": "md", "source": {"system": "magdeburg", "id": "1"}}]
	}`
	cfg, err := LoadConfig(writeConfig(t, "config.json", content))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/civicrelay", cfg.DataDir)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "https://hooks.slack.test/x", cfg.Alert.SlackWebhookURL)
	assert.Equal(t, "postgres://localhost/civic", cfg.Records.DSN)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Storage.URL)
}

func TestLoadConfig_SQLiteDefaultPath(t *testing.T) {
	content := `{
		"data_dir": "/data",
		"storage": {"driver": "sqlite"},
		"tenants": [{"key": "md", "source": {"system": "magdeburg", "id": "1"}}]
	}`
	cfg, err := Parse([]byte(content), false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "civicrelay.db"), cfg.Storage.Path)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no tenants",
			content: `{"tenants": []}`,
			wantErr: "does not match schema",
		},
		{
			name:    "unknown field",
			content: `{"tenants": [{"key": "md", "source": {"id": "1", "system": "x"}, "colour": "red"}]}`,
			wantErr: "does not match schema",
		},
		{
			name:    "bad channel kind",
			content: `{"tenants": [{"key": "md", "source": {"id": "1", "system": "x"}, "channels": [{"name": "a", "kind": "fax"}]}]}`,
			wantErr: "does not match schema",
		},
		{
			name:    "invalid tenant key",
			content: `{"tenants": [{"key": "../etc", "source": {"id": "1", "system": "x"}}]}`,
			wantErr: "does not match schema",
		},
		{
			name:    "missing system",
			content: `{"tenants": [{"key": "md", "source": {"id": "1"}}]}`,
			wantErr: "source.system or source.base_url is required",
		},
		{
			name:    "duplicate tenant",
			content: `{"tenants": [{"key": "md", "source": {"id": "1", "system": "x"}}, {"key": "md", "source": {"id": "2", "system": "y"}}]}`,
			wantErr: "duplicate tenant key: md",
		},
		{
			name:    "duplicate channel",
			content: `{"tenants": [{"key": "md", "source": {"id": "1", "system": "x"}, "channels": [{"name": "a", "kind": "twitter"}, {"name": "a", "kind": "mastodon"}]}]}`,
			wantErr: `duplicate channel "a"`,
		},
		{
			name:    "redis without url",
			content: `{"storage": {"driver": "redis"}, "tenants": [{"key": "md", "source": {"id": "1", "system": "x"}}]}`,
			wantErr: "storage.url is required",
		},
		{
			name:    "malformed json",
			content: `{"tenants": [`,
			wantErr: "failed to decode config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content), false)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_InvalidPath(t *testing.T) {
	_, err := LoadConfig("../config.json")
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "config.yml", "tenants: [\n  - key"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode YAML config")
}

func TestValidateChannelCredentials(t *testing.T) {
	err := ValidateChannelCredentials(models.ChannelConfig{
		Name:      "twitter",
		Kind:      models.ChannelKindTwitter,
		EnvPrefix: "TW",
		Credentials: models.ChannelCredentials{
			APIKey: "k",
		},
	})
	require.Error(t, err)
	assert.Equal(t, "channel twitter is missing TW_API_SECRET, TW_ACCESS_TOKEN, TW_ACCESS_TOKEN_SECRET", err.Error())

	err = ValidateChannelCredentials(models.ChannelConfig{Name: "m", Kind: models.ChannelKindMastodon, EnvPrefix: "M"})
	assert.EqualError(t, err, "channel m is missing M_ACCESS_TOKEN")

	assert.Error(t, ValidateChannelCredentials(models.ChannelConfig{Kind: "fax"}))
}

func TestEmbeddedSchemaCompiles(t *testing.T) {
	sch, err := schema()
	require.NoError(t, err)
	assert.NotNil(t, sch)
}
