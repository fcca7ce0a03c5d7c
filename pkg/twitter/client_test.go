package twitter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "civicrelay/internal/errors"
	"civicrelay/internal/models"
	"civicrelay/pkg/publisher"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	creds := models.ChannelCredentials{
		APIKey:            "consumer-key",
		APISecret:         "consumer-secret",
		AccessToken:       "access-token",
		AccessTokenSecret: "access-secret",
	}
	return NewClientWithLogger(server.URL, server.URL+"/upload", creds, server.Client(), logger)
}

func TestUpload(t *testing.T) {
	data := []byte("jpeg bytes")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload/media/upload.json", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "OAuth "))
		assert.Contains(t, r.Header.Get("Authorization"), `oauth_consumer_key="consumer-key"`)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, base64.StdEncoding.EncodeToString(data), r.PostForm.Get("media_data"))
		_, _ = w.Write([]byte(`{"media_id": 710511363345354753, "media_id_string": "710511363345354753"}`))
	})

	id, err := client.Upload(context.Background(), publisher.Media{Name: "1-2.jpeg", MimeType: "image/jpeg", Data: data})
	require.NoError(t, err)
	assert.Equal(t, "710511363345354753", id)
}

func TestPublish_WithMediaAndLocation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/statuses/update.json", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Laterne defekt", r.PostForm.Get("status"))
		assert.Equal(t, "m1,m2", r.PostForm.Get("media_ids"))
		assert.Equal(t, "true", r.PostForm.Get("display_coordinates"))
		assert.Equal(t, "52.1", r.PostForm.Get("lat"))
		assert.Equal(t, "11.6", r.PostForm.Get("long"))
		assert.Empty(t, r.PostForm.Get("in_reply_to_status_id"))
		_, _ = w.Write([]byte(`{"id": 1050118621198921728, "id_str": "1050118621198921728", "text": "Laterne defekt"}`))
	})

	res, err := client.Publish(context.Background(), "Laterne defekt", publisher.Options{
		MediaIDs: []string{"m1", "m2"},
		Location: &publisher.Location{Latitude: 52.1, Longitude: 11.6},
	})
	require.NoError(t, err)
	assert.Equal(t, "1050118621198921728", res.ID)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Raw, &raw))
	assert.Equal(t, "Laterne defekt", raw["text"])
}

func TestPublish_Reply(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "123", r.PostForm.Get("in_reply_to_status_id"))
		assert.Empty(t, r.PostForm.Get("lat"))
		assert.Empty(t, r.PostForm.Get("media_ids"))
		_, _ = w.Write([]byte(`{"id_str": "124"}`))
	})

	res, err := client.Publish(context.Background(), "Neuer Status: erledigt", publisher.Options{ReplyTo: "123"})
	require.NoError(t, err)
	assert.Equal(t, "124", res.ID)
}

func TestPublish_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":[{"code":187,"message":"Status is a duplicate."}]}`))
	})

	_, err := client.Publish(context.Background(), "dup", publisher.Options{})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeTransport, apperrors.GetCode(err))
	assert.False(t, apperrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "Status is a duplicate.")
}

func TestPublish_MissingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := client.Publish(context.Background(), "x", publisher.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id_str")
	assert.False(t, apperrors.IsRetryable(err), "a 2xx without id must not be reposted")
}

func TestUpload_MissingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"media_id": 0}`))
	})

	_, err := client.Upload(context.Background(), publisher.Media{Name: "1-2.jpeg", Data: []byte("x")})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeTransport, apperrors.GetCode(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestMaxLength(t *testing.T) {
	assert.Equal(t, 280, NewClient("", "", models.ChannelCredentials{}, nil).MaxLength())
}
