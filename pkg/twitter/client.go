// Package twitter publishes to the v1.1 API with OAuth 1.0a user context.
package twitter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "civicrelay/internal/errors"
	"civicrelay/internal/models"
	"civicrelay/pkg/constants"
	"civicrelay/pkg/publisher"

	"github.com/dghubble/oauth1"
	"github.com/sirupsen/logrus"
)

const serviceName = "twitter"

type Client struct {
	apiURL    string
	uploadURL string
	client    *http.Client
	logger    *logrus.Logger
}

var _ publisher.Publisher = (*Client)(nil)

type uploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

type statusResponse struct {
	IDStr string `json:"id_str"`
}

func NewClient(apiURL, uploadURL string, creds models.ChannelCredentials, httpClient *http.Client) *Client {
	return NewClientWithLogger(apiURL, uploadURL, creds, httpClient, nil)
}

// NewClientWithLogger signs every request with the channel credentials.
// httpClient, when set, supplies the transport and timeout underneath the
// signer.
func NewClientWithLogger(apiURL, uploadURL string, creds models.ChannelCredentials, httpClient *http.Client, logger *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.DefaultPublishHTTPTimeoutSec * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if apiURL == "" {
		apiURL = constants.DefaultTwitterAPIURL
	}
	if uploadURL == "" {
		uploadURL = constants.DefaultTwitterUploadURL
	}

	config := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, httpClient)
	signed := config.Client(ctx, token)
	signed.Timeout = httpClient.Timeout

	return &Client{
		apiURL:    strings.TrimSuffix(apiURL, "/"),
		uploadURL: strings.TrimSuffix(uploadURL, "/"),
		client:    signed,
		logger:    logger,
	}
}

func (c *Client) MaxLength() int {
	return constants.TwitterMaxStatusLength
}

// Upload sends the image base64 encoded and returns the media id to attach.
func (c *Client) Upload(ctx context.Context, media publisher.Media) (string, error) {
	form := url.Values{}
	form.Set("media_data", base64.StdEncoding.EncodeToString(media.Data))

	var result uploadResponse
	_, status, err := c.postForm(ctx, "media/upload", c.uploadURL+"/media/upload.json", form, &result)
	if err != nil {
		return "", err
	}
	if result.MediaIDString == "" {
		return "", apperrors.NewTransportError(serviceName, "media/upload", status,
			fmt.Errorf("upload response without media id"))
	}

	c.logger.WithFields(logrus.Fields{
		"media_id": result.MediaIDString,
		"name":     media.Name,
		"size":     len(media.Data),
	}).Debug("Uploaded media")
	return result.MediaIDString, nil
}

func (c *Client) Publish(ctx context.Context, text string, opts publisher.Options) (*publisher.Result, error) {
	form := url.Values{}
	form.Set("status", text)
	if len(opts.MediaIDs) > 0 {
		form.Set("media_ids", strings.Join(opts.MediaIDs, ","))
	}
	if opts.ReplyTo != "" {
		form.Set("in_reply_to_status_id", opts.ReplyTo)
	}
	if opts.Location != nil {
		form.Set("display_coordinates", "true")
		form.Set("lat", strconv.FormatFloat(opts.Location.Latitude, 'f', -1, 64))
		form.Set("long", strconv.FormatFloat(opts.Location.Longitude, 'f', -1, 64))
	}

	var result statusResponse
	raw, status, err := c.postForm(ctx, "statuses/update", c.apiURL+"/statuses/update.json", form, &result)
	if err != nil {
		return nil, err
	}
	if result.IDStr == "" {
		return nil, apperrors.NewTransportError(serviceName, "statuses/update", status,
			fmt.Errorf("status response without id_str"))
	}

	c.logger.WithFields(logrus.Fields{
		"status_id": result.IDStr,
		"reply_to":  opts.ReplyTo,
	}).Debug("Tweet sent")
	return &publisher.Result{ID: result.IDStr, Raw: raw}, nil
}

func (c *Client) postForm(ctx context.Context, action, endpoint string, form url.Values, out interface{}) (json.RawMessage, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, apperrors.NewTransportError(serviceName, action, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, apperrors.NewTransportError(serviceName, action, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > constants.MaxErrorBodyBytes {
			body = body[:constants.MaxErrorBodyBytes]
		}
		return nil, resp.StatusCode, apperrors.NewTransportError(serviceName, action, resp.StatusCode,
			fmt.Errorf("twitter API error: status %d, body: %s", resp.StatusCode, string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	return json.RawMessage(body), resp.StatusCode, nil
}
