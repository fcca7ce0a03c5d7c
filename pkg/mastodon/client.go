// Package mastodon publishes statuses through the Mastodon REST API.
package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	apperrors "civicrelay/internal/errors"
	"civicrelay/pkg/constants"
	"civicrelay/pkg/publisher"

	"github.com/sirupsen/logrus"
)

const serviceName = "mastodon"

type Client struct {
	apiURL      string
	accessToken string
	client      *http.Client
	logger      *logrus.Logger
}

var _ publisher.Publisher = (*Client)(nil)

type statusRequest struct {
	Status      string   `json:"status"`
	MediaIDs    []string `json:"media_ids,omitempty"`
	InReplyToID string   `json:"in_reply_to_id,omitempty"`
}

// both media attachments and statuses answer with a string id
type idResponse struct {
	ID string `json:"id"`
}

func NewClient(apiURL, accessToken string, httpClient *http.Client) *Client {
	return NewClientWithLogger(apiURL, accessToken, httpClient, nil)
}

func NewClientWithLogger(apiURL, accessToken string, httpClient *http.Client, logger *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.DefaultPublishHTTPTimeoutSec * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if apiURL == "" {
		apiURL = constants.DefaultMastodonAPIURL
	}

	return &Client{
		apiURL:      strings.TrimSuffix(apiURL, "/"),
		accessToken: accessToken,
		client:      httpClient,
		logger:      logger,
	}
}

func (c *Client) MaxLength() int {
	return constants.MastodonMaxStatusLength
}

// Upload posts the image as multipart form file and returns the attachment id.
func (c *Client) Upload(ctx context.Context, media publisher.Media) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(media.Name)))
	contentType := media.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(media.Data); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var result idResponse
	_, status, err := c.post(ctx, "media", writer.FormDataContentType(), &body, &result)
	if err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", apperrors.NewTransportError(serviceName, "media", status, fmt.Errorf("media response without id"))
	}

	c.logger.WithFields(logrus.Fields{
		"media_id": result.ID,
		"name":     media.Name,
	}).Debug("Uploaded media")
	return result.ID, nil
}

// Publish posts a status. Mastodon has no coordinates on statuses, so
// opts.Location is ignored.
func (c *Client) Publish(ctx context.Context, text string, opts publisher.Options) (*publisher.Result, error) {
	payload := statusRequest{
		Status:      text,
		MediaIDs:    opts.MediaIDs,
		InReplyToID: opts.ReplyTo,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result idResponse
	raw, status, err := c.post(ctx, "statuses", "application/json", bytes.NewReader(jsonData), &result)
	if err != nil {
		return nil, err
	}
	if result.ID == "" {
		return nil, apperrors.NewTransportError(serviceName, "statuses", status, fmt.Errorf("status response without id"))
	}

	c.logger.WithFields(logrus.Fields{
		"status_id": result.ID,
		"reply_to":  opts.ReplyTo,
	}).Debug("Toot sent")
	return &publisher.Result{ID: result.ID, Raw: raw}, nil
}

func (c *Client) post(ctx context.Context, action, contentType string, body io.Reader, out interface{}) (json.RawMessage, int, error) {
	endpoint := fmt.Sprintf("%s/%s", c.apiURL, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, apperrors.NewTransportError(serviceName, action, 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, apperrors.NewTransportError(serviceName, action, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(respBody) > constants.MaxErrorBodyBytes {
			respBody = respBody[:constants.MaxErrorBodyBytes]
		}
		return nil, resp.StatusCode, apperrors.NewTransportError(serviceName, action, resp.StatusCode,
			fmt.Errorf("mastodon API error: status %d, body: %s", resp.StatusCode, string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	return json.RawMessage(respBody), resp.StatusCode, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
