// Package config loads the tenant configuration file.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"civicrelay/internal/constants"
	"civicrelay/internal/models"
	"civicrelay/internal/security"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "civicrelay-config.json"

var (
	ErrNoTenants        = models.ConfigError{Message: "at least one tenant is required"}
	ErrMissingSystem    = models.ConfigError{Message: "source.system or source.base_url is required"}
	ErrMissingRedisURL  = models.ConfigError{Message: "storage.url is required for the redis driver"}
	ErrMissingRecordDSN = models.ConfigError{Message: "records.dsn is required for the postgres driver"}

	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

// LoadConfig reads a JSON or YAML config file, validates it against the
// embedded schema, applies defaults and then environment overrides.
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return Parse(file, true)
	default:
		return Parse(file, false)
	}
}

// Parse decodes and validates raw config content.
func Parse(data []byte, isYAML bool) (*models.Config, error) {
	if isYAML {
		var err error
		if data, err = yamlToJSON(data); err != nil {
			return nil, err
		}
	}

	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validateBackends(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode YAML config: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("config is not representable as JSON: %w", err)
	}
	return out, nil
}

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			compileErr = fmt.Errorf("invalid embedded schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("invalid embedded schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

func validateSchema(data []byte) error {
	sch, err := schema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("config does not match schema: %v", err)}
	}
	return nil
}

// validate checks what the schema cannot express and fills in defaults.
func validate(c *models.Config) error {
	if len(c.Tenants) == 0 {
		return ErrNoTenants
	}
	if c.LogLevel == "" {
		c.LogLevel = constants.DefaultLogLevel
	}
	if c.DataDir == "" {
		c.DataDir = constants.DefaultDataDir
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = constants.DefaultStorageDriver
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "civicrelay.db")
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "civicrelay"
	}

	keys := make(map[string]bool)
	for i := range c.Tenants {
		t := &c.Tenants[i]
		if keys[t.Key] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate tenant key: %s", t.Key)}
		}
		keys[t.Key] = true

		if t.Source.System == "" && t.Source.BaseURL == "" {
			return ErrMissingSystem
		}
		if t.Source.TimeoutSec <= 0 {
			t.Source.TimeoutSec = constants.DefaultSourceTimeoutSec
		}
		if t.LimitFetch <= 0 {
			t.LimitFetch = constants.DefaultLimitFetch
		}
		if t.RetentionMonths <= 0 {
			t.RetentionMonths = constants.DefaultRetentionMonths
		}
		if t.Timezone == "" {
			t.Timezone = constants.DefaultTimezone
		}
		if t.StatsHashtag == "" {
			t.StatsHashtag = constants.DefaultStatsHashtag
		}

		names := make(map[string]bool)
		for j := range t.Channels {
			ch := &t.Channels[j]
			if names[ch.Name] {
				return models.ConfigError{Message: fmt.Sprintf("duplicate channel %q in tenant %s", ch.Name, t.Key)}
			}
			names[ch.Name] = true

			if ch.EnvPrefix == "" {
				ch.EnvPrefix = strings.ToUpper(string(ch.Kind))
			}
			if ch.TimeoutSec <= 0 {
				ch.TimeoutSec = constants.DefaultPublishTimeoutSec
			}
		}
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if dir := os.Getenv("CIVICRELAY_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if level := os.Getenv("CIVICRELAY_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if url := os.Getenv("SLACK_WEBHOOK_URL"); url != "" {
		c.Alert.SlackWebhookURL = url
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Records.DSN = dsn
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		c.Storage.URL = url
	}

	// SECURITY: publish credentials only ever come from the environment
	for i := range c.Tenants {
		for j := range c.Tenants[i].Channels {
			ch := &c.Tenants[i].Channels[j]
			ch.Credentials = models.ChannelCredentials{
				APIKey:            os.Getenv(ch.EnvPrefix + "_API_KEY"),
				APISecret:         os.Getenv(ch.EnvPrefix + "_API_SECRET"),
				AccessToken:       os.Getenv(ch.EnvPrefix + "_ACCESS_TOKEN"),
				AccessTokenSecret: os.Getenv(ch.EnvPrefix + "_ACCESS_TOKEN_SECRET"),
			}
			if url := os.Getenv(ch.EnvPrefix + "_API_URL"); url != "" {
				ch.APIURL = url
			}
		}
	}
}

// validateBackends runs after environment overrides since URLs and DSNs
// usually come from there.
func validateBackends(c *models.Config) error {
	if c.Storage.Driver == "redis" && c.Storage.URL == "" {
		return ErrMissingRedisURL
	}
	if c.Records.Driver == "postgres" && c.Records.DSN == "" {
		return ErrMissingRecordDSN
	}
	return nil
}

// ValidateChannelCredentials reports the credentials a publish run needs but
// the environment does not provide.
func ValidateChannelCredentials(ch models.ChannelConfig) error {
	var missing []string
	switch ch.Kind {
	case models.ChannelKindTwitter:
		if ch.Credentials.APIKey == "" {
			missing = append(missing, ch.EnvPrefix+"_API_KEY")
		}
		if ch.Credentials.APISecret == "" {
			missing = append(missing, ch.EnvPrefix+"_API_SECRET")
		}
		if ch.Credentials.AccessToken == "" {
			missing = append(missing, ch.EnvPrefix+"_ACCESS_TOKEN")
		}
		if ch.Credentials.AccessTokenSecret == "" {
			missing = append(missing, ch.EnvPrefix+"_ACCESS_TOKEN_SECRET")
		}
	case models.ChannelKindMastodon:
		if ch.Credentials.AccessToken == "" {
			missing = append(missing, ch.EnvPrefix+"_ACCESS_TOKEN")
		}
	default:
		return models.ConfigError{Message: fmt.Sprintf("unknown channel kind %q", ch.Kind)}
	}
	if len(missing) > 0 {
		return models.ConfigError{Message: fmt.Sprintf("channel %s is missing %s", ch.Name, strings.Join(missing, ", "))}
	}
	return nil
}
