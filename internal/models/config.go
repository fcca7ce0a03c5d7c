package models

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	LogLevel string         `json:"log_level"`
	DataDir  string         `json:"data_dir"`
	Storage  StorageConfig  `json:"storage"`
	Records  RecordsConfig  `json:"records"`
	Retry    RetryConfig    `json:"retry"`
	Alert    AlertConfig    `json:"alert"`
	Tracing  TracingConfig  `json:"tracing"`
	Tenants  []TenantConfig `json:"tenants"`
}

// StorageConfig selects the backend behind queues, receipts and baseline files
type StorageConfig struct {
	Driver string `json:"driver"` // file, sqlite or redis
	Path   string `json:"path"`   // sqlite database file
	URL    string `json:"url"`    // redis URL
}

// RecordsConfig configures the document sink that mirrors every detail record
type RecordsConfig struct {
	Driver string `json:"driver"` // postgres, sqlite or empty to disable
	DSN    string `json:"dsn"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// AlertConfig holds the operational notification sink
type AlertConfig struct {
	SlackWebhookURL string `json:"slack_webhook_url"`
}

type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	ServiceName  string  `json:"service_name"`
	Environment  string  `json:"environment"`
	OTLPEndpoint string  `json:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate"`
	UseStdout    bool    `json:"use_stdout"`
}

// SourceConfig locates the tenant on the report portal
type SourceConfig struct {
	System     string `json:"system"`
	ID         string `json:"id"`
	BaseURL    string `json:"base_url"`
	TimeoutSec int    `json:"timeout_sec"`
}

// TenantBaseURL is the portal endpoint serving search and detail requests.
func (s SourceConfig) TenantBaseURL() string {
	return fmt.Sprintf("%s/mobileportalpms/%s", s.Host(), s.ID)
}

// Host is the portal host serving the tenant, also used for media downloads.
func (s SourceConfig) Host() string {
	if s.BaseURL != "" {
		return strings.TrimSuffix(s.BaseURL, "/")
	}
	return fmt.Sprintf("https://include-%s.zfinder.de", s.System)
}

type ChannelKind string

const (
	ChannelKindTwitter  ChannelKind = "twitter"
	ChannelKindMastodon ChannelKind = "mastodon"
)

// ChannelConfig is one publish destination with its own queue and receipts
type ChannelConfig struct {
	Name       string      `json:"name"`
	Kind       ChannelKind `json:"kind"`
	Enabled    bool        `json:"enabled"`
	WithImage  bool        `json:"with_image"`
	APIURL     string      `json:"api_url"`
	EnvPrefix  string      `json:"env_prefix"`
	TimeoutSec int         `json:"timeout_sec"`

	// Secrets are resolved from the environment, never from the config file.
	Credentials ChannelCredentials `json:"-"`
}

type ChannelCredentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
}

// TenantConfig is the immutable per-tenant configuration threaded through
// every component of a run.
type TenantConfig struct {
	Key                 string          `json:"key"`
	Active              bool            `json:"active"`
	Source              SourceConfig    `json:"source"`
	LimitFetch          int             `json:"limit_fetch"`
	ProcessDelaySeconds int             `json:"process_delay_seconds"`
	MaxPerRun           int             `json:"max_per_run"`
	MaxQueueSize        int             `json:"max_queue_size"`
	ArchiveOldEntities  bool            `json:"archive_old_entities"`
	RetentionMonths     int             `json:"retention_months"`
	LogToSlackChannel   bool            `json:"log_to_slack_channel"`
	Timezone            string          `json:"timezone"`
	ImageCredit         string          `json:"image_credit"`
	StatsHashtag        string          `json:"stats_hashtag"`
	Channels            []ChannelConfig `json:"channels"`
}

func (t TenantConfig) PerItemDelay() time.Duration {
	return time.Duration(t.ProcessDelaySeconds) * time.Second
}

// EnabledChannels returns the channels that take part in queueing and publishing.
func (t TenantConfig) EnabledChannels() []ChannelConfig {
	channels := make([]ChannelConfig, 0, len(t.Channels))
	for _, c := range t.Channels {
		if c.Enabled {
			channels = append(channels, c)
		}
	}
	return channels
}

// Channel looks up an enabled channel by name.
func (t TenantConfig) Channel(name string) (ChannelConfig, bool) {
	for _, c := range t.EnabledChannels() {
		if c.Name == name {
			return c, true
		}
	}
	return ChannelConfig{}, false
}

// Tenant returns the active tenant with the given key.
func (c *Config) Tenant(key string) (TenantConfig, bool) {
	for _, t := range c.Tenants {
		if t.Key == key && t.Active {
			return t, true
		}
	}
	return TenantConfig{}, false
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
