package alert

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (rec *webhookRecorder) handler(t *testing.T, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg slackMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		rec.mu.Lock()
		rec.texts = append(rec.texts, msg.Text)
		rec.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (rec *webhookRecorder) sorted() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := append([]string(nil), rec.texts...)
	sort.Strings(out)
	return out
}

func newLogger(hook logrus.Hook) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(hook)
	return logger
}

func TestSlackHook_ForwardsErrorsAndTaggedEntries(t *testing.T) {
	rec := &webhookRecorder{}
	server := httptest.NewServer(rec.handler(t, http.StatusOK))
	defer server.Close()

	hook := NewSlackHook(server.URL, "md", server.Client())
	logger := newLogger(hook)

	logger.Info("Run started")
	logger.Warn("Queue is full")
	logger.WithField(FieldAlert, true).Warn("No prior receipt")
	logger.WithError(errors.New("status 503")).Error("Processing new message failed")

	assert.Equal(t, 0, hook.Flush())
	assert.Equal(t, []string{
		"md: No prior receipt",
		"md: Processing new message failed: status 503",
	}, rec.sorted())
}

func TestSlackHook_CountsFailedDeliveries(t *testing.T) {
	rec := &webhookRecorder{}
	server := httptest.NewServer(rec.handler(t, http.StatusInternalServerError))
	defer server.Close()

	hook := NewSlackHook(server.URL, "md", server.Client())
	logger := newLogger(hook)

	logger.Error("one")
	logger.Error("two")

	assert.Equal(t, 2, hook.Flush())
	assert.Len(t, rec.sorted(), 2)
}

func TestSlackHook_UnreachableWebhookDoesNotFailLogging(t *testing.T) {
	hook := NewSlackHook("http://127.0.0.1:1/hook", "md", nil)
	logger := newLogger(hook)

	logger.Error("boom")
	assert.Equal(t, 1, hook.Flush())
}

func TestSlackHook_Levels(t *testing.T) {
	assert.Equal(t, logrus.AllLevels, NewSlackHook("", "", nil).Levels())
}
