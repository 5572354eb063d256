// Package translate provides the chat-completion based text translation
// client used for converting caption text into the target language.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"loom/internal/config"
	"loom/internal/services"
)

// Translator converts one caption's text into the target language.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey     string
	endpoint   string
	model      string
	source     string
	target     string
	httpClient *http.Client
}

var _ Translator = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a translation client from configuration.
func New(cfg config.Translation, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "translate", "new", "translation api key required", nil)
	}
	endpoint := strings.TrimSpace(cfg.BaseURL)
	if endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "translate", "new", "translation base url required", nil)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &Client{
		apiKey:     apiKey,
		endpoint:   endpoint,
		model:      strings.TrimSpace(cfg.Model),
		source:     cfg.SourceLanguage,
		target:     cfg.TargetLanguage,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

const systemPromptTemplate = "You translate short video caption lines from %s to %s for dubbing. " +
	"Keep the translation natural and roughly as long as the original when spoken. " +
	"Return only the translated line with no quotes or commentary."

// Translate converts a single caption line. Blank input returns blank output
// without a network call.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPromptTemplate, languageName(c.source), languageName(c.target))},
			{Role: "user", Content: text},
		},
		Temperature: 0.3,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "translate", "request", "encode request", err)
	}

	raw, err := c.send(ctx, body)
	if err != nil {
		return "", err
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", services.Wrap(services.ErrTransient, "translate", "response", "decode response", err)
	}
	if decoded.Error != nil {
		return "", services.Wrap(services.ErrTransient, "translate", "response", decoded.Error.Message, nil)
	}
	if len(decoded.Choices) == 0 {
		return "", services.Wrap(services.ErrTransient, "translate", "response", "no choices in response", nil)
	}
	result := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if result == "" {
		return "", services.Wrap(services.ErrTransient, "translate", "response", "empty translation", nil)
	}
	return result, nil
}

// maxRetryAfter caps how long a single call waits out a rate limit before
// handing the transient error back to the caller's retry loop.
const maxRetryAfter = 10 * time.Second

// send posts the request body, waiting out at most one Retry-After backed
// rate limit before giving up with a transient error.
func (c *Client) send(ctx context.Context, body []byte) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "translate", "request", "build request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("X-Request-ID", uuid.NewString())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, services.Wrap(services.ErrTimeout, "translate", "request", "request cancelled", err)
			}
			return nil, services.Wrap(services.ErrTransient, "translate", "request", "execute request", err)
		}

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "translate", "response", "read response", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt == 0 {
			delay := retryAfter(resp.Header)
			if delay <= maxRetryAfter {
				if err := sleepContext(ctx, delay); err != nil {
					return nil, services.Wrap(services.ErrTimeout, "translate", "request", "cancelled during rate limit wait", err)
				}
				continue
			}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, classifyStatus("translate", resp.StatusCode, raw)
		}
		return raw, nil
	}
}

// retryAfter reads the Retry-After response header, defaulting to one second
// when it is absent or unparseable.
func retryAfter(header http.Header) time.Duration {
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return time.Second
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay
		}
		return 0
	}
	return time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func classifyStatus(stage string, status int, body []byte) error {
	detail := fmt.Sprintf("http %d: %s", status, truncate(string(body), 256))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, stage, "response", detail, nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return services.Wrap(services.ErrTransient, stage, "response", detail, nil)
	case status == http.StatusRequestTimeout:
		return services.Wrap(services.ErrTimeout, stage, "response", detail, nil)
	default:
		return services.Wrap(services.ErrValidation, stage, "response", detail, nil)
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func languageName(code string) string {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}
