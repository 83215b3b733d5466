package ai

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

const (
	DefaultBaseURL      = "https://api.anthropic.com/v1"
	DefaultModel        = "claude-sonnet-4-20250514"
	DefaultMaxTokens    = 1024
	DefaultMaxToolTurns = 6
	apiVersion          = "2023-06-01"
	maxResponseBytes    = 4 << 20
)

var (
	// ErrUnavailable is returned when no API key is configured
	ErrUnavailable = errors.New("language model unavailable")
	// ErrToolLoop is returned when the model keeps calling tools past the turn limit
	ErrToolLoop = errors.New("tool loop did not finish")
)

// Config configures the Anthropic Messages API client
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Timeout      time.Duration
	MaxToolTurns int
}

// ToolHandler executes one tool call and returns the text handed back to the model.
// A returned error is reported to the model as a failed tool result.
type ToolHandler func(ctx context.Context, call ToolCall) (string, error)

// Client talks to the Anthropic Messages API
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	log        *logger.Logger
}

// NewClient creates a new Anthropic client. Per-call deadlines come from the caller's context.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxToolTurns <= 0 {
		cfg.MaxToolTurns = DefaultMaxToolTurns
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig("anthropic")
	breakerCfg.Timeout = cfg.Timeout

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		breaker:    resilience.NewCircuitBreaker(breakerCfg, log),
		log:        log,
	}
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete runs a single-turn completion and returns the response text
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.send(ctx, messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		System:    system,
		Messages:  []apiMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

// RunTools runs the model with the given tools, dispatching every tool call to handle
// until the model stops asking for tools. It returns the final response text.
func (c *Client) RunTools(ctx context.Context, system, prompt string, tools []Tool, handle ToolHandler) (string, error) {
	messages := []apiMessage{{Role: "user", Content: prompt}}

	for turn := 0; turn < c.cfg.MaxToolTurns; turn++ {
		resp, err := c.send(ctx, messagesRequest{
			Model:     c.cfg.Model,
			MaxTokens: c.cfg.MaxTokens,
			System:    system,
			Messages:  messages,
			Tools:     tools,
		})
		if err != nil {
			return "", err
		}
		if resp.StopReason != "tool_use" {
			return responseText(resp), nil
		}

		var results []toolResultBlock
		for _, block := range resp.Content {
			if block.Type != "tool_use" {
				continue
			}
			call := ToolCall{ID: block.ID, Name: block.Name, Input: block.Input}
			out, err := handle(ctx, call)
			result := toolResultBlock{Type: "tool_result", ToolUseID: block.ID, Content: out}
			if err != nil {
				c.log.Warn("Tool call failed", "tool", block.Name, "error", err)
				result.Content = err.Error()
				result.IsError = true
			}
			results = append(results, result)
		}
		if len(results) == 0 {
			return responseText(resp), nil
		}

		messages = append(messages,
			apiMessage{Role: "assistant", Content: resp.Content},
			apiMessage{Role: "user", Content: results},
		)
	}
	return "", resilience.NewCallError("anthropic.tools", fmt.Errorf("%w after %d turns", ErrToolLoop, c.cfg.MaxToolTurns))
}

func (c *Client) send(ctx context.Context, payload messagesRequest) (*messagesResponse, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, &resilience.CallError{Op: "anthropic.messages", Err: ErrUnavailable}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	var out messagesResponse
	err = c.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/messages"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("x-api-key", c.cfg.APIKey)
		req.Header.Set("anthropic-version", apiVersion)
		req.Header.Set("content-type", "application/json")

		res, err := c.httpClient.Do(req)
		if err != nil {
			return resilience.NewCallError("anthropic.messages", err)
		}
		defer res.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
		if err != nil {
			return resilience.NewCallError("anthropic.messages", err)
		}
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			c.log.Error("anthropic request failed", "status", res.StatusCode, "body", string(respBody))
			return resilience.StatusError("anthropic.messages", res.StatusCode, string(respBody))
		}
		if err := json.Unmarshal(respBody, &out); err != nil {
			return &resilience.CallError{Op: "anthropic.messages", Err: fmt.Errorf("decode anthropic response: %w", err)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func responseText(resp *messagesResponse) string {
	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			parts = append(parts, strings.TrimSpace(block.Text))
		}
	}
	return strings.Join(parts, "\n")
}
