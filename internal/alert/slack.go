// Package alert forwards failures of a run to an operator chat channel.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"civicrelay/internal/constants"

	"github.com/sirupsen/logrus"
)

// FieldAlert tags an entry below error level for forwarding.
const FieldAlert = "alert"

type slackMessage struct {
	Text string `json:"text"`
}

// SlackHook is a logrus hook that posts error entries, and entries carrying
// alert=true, to a Slack incoming webhook as "<tenant>: <message>".
type SlackHook struct {
	webhookURL string
	tenantKey  string
	client     *http.Client

	mu      sync.Mutex
	pending sync.WaitGroup
	failed  int
}

func NewSlackHook(webhookURL, tenantKey string, httpClient *http.Client) *SlackHook {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.DefaultAlertTimeoutSec * time.Second}
	}
	return &SlackHook{
		webhookURL: webhookURL,
		tenantKey:  tenantKey,
		client:     httpClient,
	}
}

// Levels returns every level so that tagged warnings reach Fire too.
func (h *SlackHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *SlackHook) Fire(entry *logrus.Entry) error {
	if !shouldAlert(entry) {
		return nil
	}

	text := fmt.Sprintf("%s: %s", h.tenantKey, entry.Message)
	if err, ok := entry.Data[logrus.ErrorKey].(error); ok && err != nil {
		text = fmt.Sprintf("%s: %v", text, err)
	}

	// Fire runs with the logger lock held; post asynchronously and let Flush
	// wait for delivery before the process exits.
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		if err := h.post(context.Background(), text); err != nil {
			h.mu.Lock()
			h.failed++
			h.mu.Unlock()
		}
	}()
	return nil
}

// Flush blocks until all alerts fired so far were delivered or failed and
// returns the number of failed deliveries.
func (h *SlackHook) Flush() int {
	h.pending.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failed
}

func shouldAlert(entry *logrus.Entry) bool {
	if entry.Level <= logrus.ErrorLevel {
		return true
	}
	tagged, _ := entry.Data[FieldAlert].(bool)
	return tagged
}

func (h *SlackHook) post(ctx context.Context, text string) error {
	body, err := json.Marshal(slackMessage{Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack API error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}
