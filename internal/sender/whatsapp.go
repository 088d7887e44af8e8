// Package sender holds the clients of the channel-send functions.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/unclebandit/crm-sms-fallback/internal/config"
	"github.com/unclebandit/crm-sms-fallback/internal/metrics"
)

// TemplateMessage is the body of POST /send-whatsapp.
type TemplateMessage struct {
	Phone        string            `json:"phone"`
	TemplateSlug string            `json:"templateSlug"`
	Variables    map[string]string `json:"variables"`
	ContactID    *string           `json:"contactId,omitempty"`
}

type sendResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// WhatsAppClient calls the send-whatsapp function.
type WhatsAppClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewWhatsAppClient creates a client whose calls are bounded by cfg.Timeout.
func NewWhatsAppClient(cfg config.WhatsAppConfig) *WhatsAppClient {
	return &WhatsAppClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SendTemplate sends msg and returns an error carrying the provider's
// failure reason when the send did not succeed.
func (c *WhatsAppClient) SendTemplate(ctx context.Context, msg TemplateMessage) error {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.WhatsAppSendDuration.WithLabelValues(msg.TemplateSlug, status).Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal whatsapp request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send-whatsapp", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create whatsapp request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send whatsapp request")
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return errors.Wrap(err, "read whatsapp response")
	}

	var out sendResponse
	if jsonErr := json.Unmarshal(raw, &out); jsonErr != nil {
		if resp.StatusCode >= 300 {
			return errors.Errorf("whatsapp send failed: status %d", resp.StatusCode)
		}
		return errors.Wrap(jsonErr, "decode whatsapp response")
	}
	if resp.StatusCode >= 300 || !out.Success {
		reason := out.Error
		if reason == "" {
			reason = "status " + status
		}
		return errors.Errorf("whatsapp send failed: %s", reason)
	}
	return nil
}
