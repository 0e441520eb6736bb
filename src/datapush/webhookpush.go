// Package datapush posts refresh results to an external webhook so chat
// channels or downstream dashboards hear about new numbers without polling
// the API.
package datapush

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"DeliveryAnalytics/src/storage"
)

const (
	RetryTimes    = 3
	RetryInterval = 2 * time.Second
	PushTimeout   = 10 * time.Second
)

// SummaryPayload is the webhook body: the metric cards plus run metadata.
type SummaryPayload struct {
	GeneratedAt time.Time   `json:"generated_at"`
	SourceMD5   string      `json:"source_md5"`
	Summary     interface{} `json:"summary"`
	TopViews    interface{} `json:"top_views,omitempty"`
}

var httpClient = &http.Client{Timeout: PushTimeout}

// PushSummary posts the payload as JSON, retrying transient failures. A
// non-2xx response counts as a failure.
func PushSummary(webhookURL string, payload SummaryPayload, logger *storage.Logger) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode summary payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= RetryTimes; attempt++ {
		lastErr = postOnce(webhookURL, body)
		if lastErr == nil {
			logger.Info(fmt.Sprintf("summary pushed to webhook (attempt %d)", attempt))
			return nil
		}
		logger.Warning(fmt.Sprintf("webhook push attempt %d failed: %v", attempt, lastErr))
		if attempt < RetryTimes {
			time.Sleep(RetryInterval)
		}
	}
	return fmt.Errorf("webhook push failed after %d attempts: %w", RetryTimes, lastErr)
}

func postOnce(webhookURL string, body []byte) error {
	resp, err := httpClient.Post(webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
