// Package eleven provides the ElevenLabs voice cloning and text-to-speech
// client used for synthesizing dubbed segment audio.
package eleven

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"loom/internal/config"
	"loom/internal/services"
)

// Synthesizer manages a cloned voice and produces per-segment audio files.
type Synthesizer interface {
	CloneVoice(ctx context.Context, name, samplePath string) (string, error)
	Synthesize(ctx context.Context, voiceID, text, outPath string) error
	DeleteVoice(ctx context.Context, voiceID string) error
}

// Client talks to the ElevenLabs HTTP API.
type Client struct {
	apiKey       string
	baseURL      string
	modelID      string
	outputFormat string
	settings     voiceSettings
	httpClient   *http.Client
}

var _ Synthesizer = (*Client)(nil)

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

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

// New creates an ElevenLabs client from configuration.
func New(cfg config.Voice, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "synthesize", "new", "voice api key required", nil)
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "synthesize", "new", "voice base url required", nil)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := &Client{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		modelID:      cfg.ModelID,
		outputFormat: cfg.OutputFormat,
		settings: voiceSettings{
			Stability:       cfg.Stability,
			SimilarityBoost: cfg.SimilarityBoost,
			Style:           cfg.Style,
			SpeakerBoost:    cfg.SpeakerBoost,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// CloneVoice uploads a voice sample and returns the new voice identifier.
func (c *Client) CloneVoice(ctx context.Context, name, samplePath string) (string, error) {
	sample, err := os.Open(samplePath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "clone voice", "sample", "open voice sample", err)
	}
	defer sample.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("name", name); err != nil {
		return "", services.Wrap(services.ErrValidation, "clone voice", "request", "encode form", err)
	}
	part, err := writer.CreateFormFile("files", filepath.Base(samplePath))
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "clone voice", "request", "encode form", err)
	}
	if _, err := io.Copy(part, sample); err != nil {
		return "", services.Wrap(services.ErrValidation, "clone voice", "request", "copy sample", err)
	}
	if err := writer.Close(); err != nil {
		return "", services.Wrap(services.ErrValidation, "clone voice", "request", "finish form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/voices/add", &body)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "clone voice", "request", "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrTimeout, "clone voice", "request", "request cancelled", err)
		}
		return "", services.Wrap(services.ErrTransient, "clone voice", "request", "execute request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "clone voice", "response", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus("clone voice", resp.StatusCode, raw)
	}

	var decoded struct {
		VoiceID string `json:"voice_id"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", services.Wrap(services.ErrTransient, "clone voice", "response", "decode response", err)
	}
	if decoded.VoiceID == "" {
		return "", services.Wrap(services.ErrTransient, "clone voice", "response", "missing voice_id", nil)
	}
	return decoded.VoiceID, nil
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize renders text with the given voice and writes the audio bytes to
// outPath.
func (c *Client) Synthesize(ctx context.Context, voiceID, text, outPath string) error {
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		return services.Wrap(services.ErrValidation, "synthesize", "request", "voice id required", nil)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return services.Wrap(services.ErrValidation, "synthesize", "request", "text required", nil)
	}

	payload, err := json.Marshal(ttsRequest{Text: text, ModelID: c.modelID, VoiceSettings: c.settings})
	if err != nil {
		return services.Wrap(services.ErrValidation, "synthesize", "request", "encode request", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", c.baseURL, voiceID, c.outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return services.Wrap(services.ErrValidation, "synthesize", "request", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrTimeout, "synthesize", "request", "request cancelled", err)
		}
		return services.Wrap(services.ErrTransient, "synthesize", "request", "execute request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyStatus("synthesize", resp.StatusCode, raw)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return services.Wrap(services.ErrValidation, "synthesize", "output", "create output directory", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "synthesize", "output", "create output file", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(outPath)
		return services.Wrap(services.ErrTransient, "synthesize", "output", "write audio", err)
	}
	return nil
}

// DeleteVoice removes a cloned voice from the account.
func (c *Client) DeleteVoice(ctx context.Context, voiceID string) error {
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/voices/"+voiceID, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "delete voice", "request", "build request", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "delete voice", "request", "execute request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyStatus("delete voice", resp.StatusCode, raw)
	}
	return nil
}

func classifyStatus(stage string, status int, body []byte) error {
	detail := fmt.Sprintf("http %d: %s", status, truncate(string(body), 256))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, stage, "response", detail, nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return services.Wrap(services.ErrTransient, stage, "response", detail, nil)
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
