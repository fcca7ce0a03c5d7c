// Package wire builds the configured backends shared by the commands.
package wire

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"civicrelay/internal/constants"
	"civicrelay/internal/database"
	apperrors "civicrelay/internal/errors"
	"civicrelay/internal/models"
	"civicrelay/internal/privacy"
	"civicrelay/internal/records"
	"civicrelay/internal/retry"
	"civicrelay/internal/storage"
	"civicrelay/pkg/circuitbreaker"
	"civicrelay/pkg/mastodon"
	"civicrelay/pkg/publisher"
	"civicrelay/pkg/source"
	"civicrelay/pkg/twitter"

	"github.com/sirupsen/logrus"
)

const redisNamespace = "civicrelay"

// OpenStorage opens the storage backend selected by cfg.Storage. Backends
// that need a connection are retried with the configured backoff.
func OpenStorage(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "", "file":
		store, err := storage.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, apperrors.NewStorageError("open", cfg.DataDir, err)
		}
		return store, nil

	case "sqlite":
		path := cfg.Storage.Path
		if path == "" {
			path = filepath.Join(cfg.DataDir, "civicrelay.db")
		}
		return retry.Do(ctx, newBackoff(cfg, logger, "sqlite"), func(ctx context.Context) (storage.Store, error) {
			db, err := database.New(path)
			if err != nil {
				return nil, err
			}
			return db, nil
		}, nil)

	case "redis":
		logger.WithField("url", privacy.RedactURL(cfg.Storage.URL)).Debug("Opening redis storage")
		return retry.Do(ctx, newBackoff(cfg, logger, "redis"), func(ctx context.Context) (storage.Store, error) {
			store, err := storage.NewRedisStore(ctx, cfg.Storage.URL, redisNamespace)
			if err != nil {
				return nil, err
			}
			return store, nil
		}, nil)
	}
	return nil, apperrors.NewConfigError("storage.driver", fmt.Sprintf("unknown storage driver %q", cfg.Storage.Driver))
}

// OpenRecords opens the record store mirroring detail records. An empty
// driver disables mirroring.
func OpenRecords(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (records.Store, error) {
	switch cfg.Records.Driver {
	case "":
		return records.Noop{}, nil

	case "sqlite":
		path := cfg.Records.DSN
		if path == "" {
			path = filepath.Join(cfg.DataDir, "records.db")
		}
		return retry.Do(ctx, newBackoff(cfg, logger, "sqlite records"), func(ctx context.Context) (records.Store, error) {
			store, err := records.NewSQLite(path)
			if err != nil {
				return nil, err
			}
			return store, nil
		}, nil)

	case "postgres":
		logger.WithField("dsn", privacy.RedactURL(cfg.Records.DSN)).Debug("Opening postgres record store")
		return retry.Do(ctx, newBackoff(cfg, logger, "postgres records"), func(ctx context.Context) (records.Store, error) {
			store, err := records.NewPostgres(ctx, cfg.Records.DSN)
			if err != nil {
				return nil, err
			}
			return store, nil
		}, nil)
	}
	return nil, apperrors.NewConfigError("records.driver", fmt.Sprintf("unknown records driver %q", cfg.Records.Driver))
}

func newBackoff(cfg *models.Config, logger *logrus.Logger, backend string) *retry.Backoff {
	return retry.NewBackoff(retry.FromConfig(cfg.Retry)).OnRetry(func(attempt int, delay time.Duration, err error) {
		logger.WithError(err).WithFields(logrus.Fields{
			"backend": backend,
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("Failed to open backend, retrying")
	})
}

// NewSource builds the portal client of a tenant, guarded by a circuit breaker
// so that a dead portal fails the remaining entities of a batch fast.
func NewSource(tenant models.TenantConfig, logger *logrus.Logger) *source.PortalClient {
	timeout := tenant.Source.TimeoutSec
	if timeout <= 0 {
		timeout = constants.DefaultSourceTimeoutSec
	}
	breaker := circuitbreaker.New("portal-"+tenant.Key,
		constants.DefaultSourceMaxFailures,
		time.Duration(constants.DefaultSourceBreakerResetSec)*time.Second,
		circuitbreaker.WithLogger(logger),
		circuitbreaker.WithFailurePredicate(apperrors.IsRetryable))

	return source.NewClientWithLogger(tenant.Source,
		&http.Client{Timeout: time.Duration(timeout) * time.Second},
		logger,
		source.WithBreaker(breaker))
}

// NewPublisher builds the backend client of a channel.
func NewPublisher(ch models.ChannelConfig, logger *logrus.Logger) (publisher.Publisher, error) {
	timeout := ch.TimeoutSec
	if timeout <= 0 {
		timeout = constants.DefaultPublishTimeoutSec
	}
	httpClient := &http.Client{Timeout: time.Duration(timeout) * time.Second}

	switch ch.Kind {
	case models.ChannelKindTwitter:
		// A custom API URL serves uploads too.
		return twitter.NewClientWithLogger(ch.APIURL, ch.APIURL, ch.Credentials, httpClient, logger), nil
	case models.ChannelKindMastodon:
		return mastodon.NewClientWithLogger(ch.APIURL, ch.Credentials.AccessToken, httpClient, logger), nil
	}
	return nil, apperrors.NewConfigError("channels.kind", fmt.Sprintf("unknown channel kind %q", ch.Kind))
}
