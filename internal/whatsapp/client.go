package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"whatsapp-agent/backend/pkg/logger"
	"whatsapp-agent/backend/pkg/resilience"
)

const DefaultBaseURL = "https://graph.facebook.com/v21.0"

// ErrNotConfigured is returned when the phone number id or access token is missing
var ErrNotConfigured = errors.New("whatsapp client not configured")

// Config configures the Cloud API client
type Config struct {
	PhoneNumberID string
	AccessToken   string
	BaseURL       string
	Timeout       time.Duration
}

// SendResult identifies an accepted outbound message
type SendResult struct {
	MessageID string `json:"message_id"`
}

// Client sends messages through the WhatsApp Cloud API
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	log        *logger.Logger
}

// NewClient creates a new Cloud API client
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	breakerCfg := resilience.DefaultCircuitBreakerConfig("whatsapp")
	breakerCfg.Timeout = cfg.Timeout

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		breaker:    resilience.NewCircuitBreaker(breakerCfg, log),
		log:        log,
	}
}

// Configured reports whether the client has credentials
func (c *Client) Configured() bool {
	return c.cfg.PhoneNumberID != "" && c.cfg.AccessToken != ""
}

// SendMessage sends a plain text message
func (c *Client) SendMessage(ctx context.Context, to, text string) (*SendResult, error) {
	return c.post(ctx, "whatsapp.send_message", map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text": map[string]any{
			"preview_url": false,
			"body":        text,
		},
	})
}

// SendTemplate sends a pre-approved template with positional body parameters
func (c *Client) SendTemplate(ctx context.Context, to, name, language string, params []string) (*SendResult, error) {
	if language == "" {
		language = "en"
	}
	template := map[string]any{
		"name":     name,
		"language": map[string]string{"code": language},
	}
	if len(params) > 0 {
		parameters := make([]map[string]string, 0, len(params))
		for _, p := range params {
			parameters = append(parameters, map[string]string{"type": "text", "text": p})
		}
		template["components"] = []map[string]any{{"type": "body", "parameters": parameters}}
	}
	return c.post(ctx, "whatsapp.send_template", map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template":          template,
	})
}

// MarkAsRead marks an inbound message as read
func (c *Client) MarkAsRead(ctx context.Context, messageID string) error {
	_, err := c.post(ctx, "whatsapp.mark_as_read", map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	})
	return err
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (c *Client) post(ctx context.Context, op string, payload map[string]any) (*SendResult, error) {
	if !c.Configured() {
		return nil, &resilience.CallError{Op: op, Err: ErrNotConfigured}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", op, err)
	}

	result := &SendResult{}
	err = c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		endpoint := fmt.Sprintf("%s/%s/messages", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.PhoneNumberID)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
		req.Header.Set("Content-Type", "application/json")

		res, err := c.httpClient.Do(req)
		if err != nil {
			return resilience.NewCallError(op, err)
		}
		defer res.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if err != nil {
			return resilience.NewCallError(op, err)
		}
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			c.log.Error("whatsapp request failed", "op", op, "status", res.StatusCode, "body", string(respBody))
			return resilience.StatusError(op, res.StatusCode, string(respBody))
		}

		var decoded sendResponse
		if err := json.Unmarshal(respBody, &decoded); err == nil && len(decoded.Messages) > 0 {
			result.MessageID = decoded.Messages[0].ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
