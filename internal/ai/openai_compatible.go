package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GatewayError is the typed failure of an LLM call. StatusCode is zero for
// transport-level failures, Timeout marks deadline expiry. Temporary reports
// whether a caller-side retry could plausibly succeed; this client never
// retries on its own.
type GatewayError struct {
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("llm gateway timeout: %v", e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm gateway status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm gateway: %v", e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Temporary() bool {
	return e.Timeout || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Complete sends the message sequence and returns the assistant content.
// Every failure path yields a *GatewayError; an empty completion is treated
// as a failure rather than passed through.
func (c *Client) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	reqBody := map[string]interface{}{
		"model":    c.cfg.Model,
		"messages": messages,
		"stream":   false,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", &GatewayError{Err: fmt.Errorf("marshal request failed: %w", err)}
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &GatewayError{Err: fmt.Errorf("build request failed: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &GatewayError{Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &GatewayError{Timeout: isTimeout(err), Err: fmt.Errorf("read response failed: %w", err)}
	}
	if resp.StatusCode >= 300 {
		return "", &GatewayError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("upstream returned %q", truncateBody(raw)),
		}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &GatewayError{Err: fmt.Errorf("parse response failed: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &GatewayError{Err: errors.New("response contains no choices")}
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", &GatewayError{Err: errors.New("response content is empty")}
	}
	return content, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncateBody(raw []byte) string {
	const max = 512
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
