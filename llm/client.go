package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"agent-workspace/metrics"
)

const (
	defaultBaseURL       = "https://openrouter.ai/api/v1"
	defaultModel         = "openai/gpt-4o-mini"
	defaultTimeout       = 60 * time.Second
	defaultReferer       = "http://localhost:8080"
	defaultTitle         = "Agent Workspace"
	maxResponseSize      = 10 * 1024 * 1024
	DefaultSystemMessage = "You are a helpful AI assistant."
)

// Source tags where a completion's text came from.
type Source string

const (
	// SourceLive is text produced by the remote model.
	SourceLive Source = "live"
	// SourceSimulated is canned text because no credential is configured.
	SourceSimulated Source = "simulated"
	// SourceDegraded is canned text because the remote call failed.
	SourceDegraded Source = "degraded"
)

// Request is a single-turn completion request.
type Request struct {
	Prompt        string
	Model         string
	SystemMessage string
	MaxTokens     int
	Temperature   float64
}

// Usage mirrors the endpoint's token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the provider's answer. Reason is set for degraded results.
type Completion struct {
	Text     string
	Source   Source
	Model    string
	Reason   string
	Usage    Usage
	Duration time.Duration
}

// Completer turns a prompt into text. Client never returns an error;
// other implementations may, and callers absorb it.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (Completion, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (Completion, error) {
	return f(ctx, req)
}

// Config holds the OpenAI-compatible endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Referer string
	Title   string
	Timeout time.Duration
}

// ConfigFromEnv reads OPENROUTER_* and APP_* variables with defaults.
func ConfigFromEnv() Config {
	cfg := Config{
		BaseURL: pickEnv("OPENROUTER_BASE_URL", defaultBaseURL),
		APIKey:  resolveAPIKey(),
		Model:   pickEnv("OPENROUTER_MODEL", defaultModel),
		Referer: pickEnv("APP_URL", defaultReferer),
		Title:   pickEnv("APP_TITLE", defaultTitle),
		Timeout: defaultTimeout,
	}
	if raw := strings.TrimSpace(os.Getenv("OPENROUTER_TIMEOUT")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	return cfg
}

// Client calls an OpenAI-compatible /chat/completions endpoint and falls
// back to simulated text whenever it cannot get a usable answer.
type Client struct {
	client  *http.Client
	apiURL  string
	apiKey  string
	model   string
	referer string
	title   string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient builds a client. An empty APIKey yields an unconfigured
// client that only produces simulated completions.
func NewClient(cfg Config, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		client:  &http.Client{},
		apiURL:  base + "/chat/completions",
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   firstNonEmpty(cfg.Model, defaultModel),
		referer: firstNonEmpty(cfg.Referer, defaultReferer),
		title:   firstNonEmpty(cfg.Title, defaultTitle),
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a credential is present.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// DefaultModel returns the model used when a request leaves Model empty.
func (c *Client) DefaultModel() string {
	if c == nil {
		return defaultModel
	}
	return c.model
}

// Complete performs one attempt against the endpoint. The returned error
// is always nil.
func (c *Client) Complete(ctx context.Context, req Request) (Completion, error) {
	if strings.TrimSpace(req.SystemMessage) == "" {
		req.SystemMessage = DefaultSystemMessage
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.DefaultModel()
	}

	if !c.Configured() {
		out := simulatedCompletion(req.Prompt, SourceSimulated, "completion provider not configured")
		out.Model = model
		metrics.CompletionsTotal.WithLabelValues(string(out.Source)).Inc()
		return out, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.call(callCtx, model, req)
	elapsed := time.Since(start)
	metrics.CompletionLatency.Observe(elapsed.Seconds())

	if err != nil {
		log.Warn().Err(err).Str("model", model).Dur("elapsed", elapsed).Msg("completion failed, using simulated response")
		out = simulatedCompletion(req.Prompt, SourceDegraded, err.Error())
		out.Model = model
		out.Duration = elapsed
		metrics.CompletionsTotal.WithLabelValues(string(out.Source)).Inc()
		return out, nil
	}

	out.Duration = elapsed
	log.Debug().
		Str("model", out.Model).
		Int("prompt_tokens", out.Usage.PromptTokens).
		Int("completion_tokens", out.Usage.CompletionTokens).
		Dur("elapsed", elapsed).
		Msg("completion ok")
	metrics.CompletionsTotal.WithLabelValues(string(out.Source)).Inc()
	return out, nil
}

func (c *Client) call(ctx context.Context, model string, req Request) (Completion, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemMessage},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      false,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("HTTP-Referer", c.referer)
	httpReq.Header.Set("X-Title", c.title)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("call completion endpoint: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Completion{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Completion{}, fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Completion{}, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Completion{}, errors.New("completion endpoint returned no choices")
	}
	content := parsed.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return Completion{}, errors.New("completion endpoint returned empty content")
	}

	return Completion{
		Text:   content,
		Source: SourceLive,
		Model:  firstNonEmpty(parsed.Model, model),
		Usage:  parsed.Usage,
	}, nil
}

func resolveAPIKey() string {
	for _, key := range []string{
		"OPENROUTER_API_KEY",
		"COMPLETION_API_KEY",
	} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

func pickEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}
