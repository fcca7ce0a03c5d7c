// Package source talks to the civic report portal.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "civicrelay/internal/errors"
	"civicrelay/internal/models"
	"civicrelay/pkg/circuitbreaker"
	"civicrelay/pkg/constants"

	"github.com/sirupsen/logrus"
)

const serviceName = "portal"

type Client interface {
	Search(ctx context.Context, limit int) ([]models.Entity, error)
	Detail(ctx context.Context, id models.EntityID) (*models.Entity, error)
	Image(ctx context.Context, imageID string) (*Image, error)
}

// Image is a downloaded report photo.
type Image struct {
	ID          string
	ContentType string
	Data        []byte
}

type PortalClient struct {
	host          string
	tenantBaseURL string
	client        *http.Client
	breaker       *circuitbreaker.CircuitBreaker
	maxImageBytes int64
	logger        *logrus.Logger
}

// Option tweaks a PortalClient.
type Option func(*PortalClient)

func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *PortalClient) { c.breaker = cb }
}

func WithMaxImageBytes(n int64) Option {
	return func(c *PortalClient) { c.maxImageBytes = n }
}

func NewClient(src models.SourceConfig, httpClient *http.Client) *PortalClient {
	return NewClientWithLogger(src, httpClient, nil)
}

func NewClientWithLogger(src models.SourceConfig, httpClient *http.Client, logger *logrus.Logger, opts ...Option) *PortalClient {
	if httpClient == nil {
		timeout := src.TimeoutSec
		if timeout <= 0 {
			timeout = constants.DefaultHTTPTimeoutSec
		}
		httpClient = &http.Client{Timeout: time.Duration(timeout) * time.Second}
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	c := &PortalClient{
		host:          src.Host(),
		tenantBaseURL: strings.TrimSuffix(src.TenantBaseURL(), "/"),
		client:        httpClient,
		maxImageBytes: constants.DefaultMaxImageSizeMB * constants.BytesPerMegabyte,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = circuitbreaker.New(serviceName, 3, time.Minute,
			circuitbreaker.WithLogger(logger),
			circuitbreaker.WithFailurePredicate(apperrors.IsRetryable))
	}
	return c
}

// Search lists the most recent reports of the tenant. It bypasses the
// breaker: a failed search aborts the run and is retried by the caller.
func (c *PortalClient) Search(ctx context.Context, limit int) ([]models.Entity, error) {
	query := url.Values{}
	query.Set("format", "json")
	query.Set("action", "search")
	query.Set("limit", fmt.Sprintf("%d", limit))
	endpoint := c.tenantBaseURL + "?" + query.Encode()

	var entities []models.Entity
	if err := c.getJSON(ctx, "search", endpoint, &entities); err != nil {
		return nil, err
	}
	if entities == nil {
		entities = []models.Entity{}
	}

	c.logger.WithFields(logrus.Fields{
		"limit": limit,
		"count": len(entities),
	}).Debug("Fetched current entities")
	return entities, nil
}

// Detail fetches the full record of one report. The portal answers with a
// list holding at most one element; an empty list is DETAIL_NOT_FOUND.
func (c *PortalClient) Detail(ctx context.Context, id models.EntityID) (*models.Entity, error) {
	query := url.Values{}
	query.Set("format", "json")
	query.Set("action", "detail")
	query.Set("id", id.String())
	endpoint := c.tenantBaseURL + "?" + query.Encode()

	return circuitbreaker.Do(ctx, c.breaker, func(ctx context.Context) (*models.Entity, error) {
		var details []models.Entity
		if err := c.getJSON(ctx, "detail", endpoint, &details); err != nil {
			return nil, err
		}
		if len(details) == 0 {
			return nil, apperrors.NewDetailNotFoundError(id.String())
		}
		return &details[0], nil
	})
}

func (c *PortalClient) Image(ctx context.Context, imageID string) (*Image, error) {
	endpoint := fmt.Sprintf("%s/IWImageLoader?mediaId=%s", c.host, url.QueryEscape(imageID))

	return circuitbreaker.Do(ctx, c.breaker, func(ctx context.Context) (*Image, error) {
		resp, err := c.get(ctx, "image", endpoint)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxImageBytes+1))
		if err != nil {
			return nil, apperrors.NewMediaError("download", imageID, err)
		}
		if int64(len(data)) > c.maxImageBytes {
			return nil, apperrors.NewMediaError("download", imageID,
				fmt.Errorf("image exceeds %d bytes", c.maxImageBytes))
		}

		return &Image{
			ID:          imageID,
			ContentType: resp.Header.Get("Content-Type"),
			Data:        data,
		}, nil
	})
}

func (c *PortalClient) getJSON(ctx context.Context, action, endpoint string, out interface{}) error {
	resp, err := c.get(ctx, action, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	return nil
}

// get performs the request and turns transport failures and non-2xx
// statuses into TRANSPORT errors. The caller closes the body.
func (c *PortalClient) get(ctx context.Context, action, endpoint string) (*http.Response, error) {
	c.logger.WithFields(logrus.Fields{
		"action":   action,
		"endpoint": endpoint,
	}).Debug("Sending portal request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewTransportError(serviceName, action, 0, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, constants.MaxErrorBodyBytes))
		return nil, apperrors.NewTransportError(serviceName, action, resp.StatusCode,
			fmt.Errorf("portal API error: status %d, body: %s", resp.StatusCode, string(bodyBytes)))
	}
	return resp, nil
}
