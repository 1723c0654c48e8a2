// Package genai provides generation backend operations using an OpenAI-compatible API.
//
// All language generation and intent classification in IntakeFlow goes through
// the Client in this package. Callers treat it as a best-effort collaborator:
// every call is bounded by a configurable timeout and failures are returned as
// plain errors for the caller to absorb.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default generation parameters, overridable via options.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1024
	DefaultTimeout     = 30 * time.Second
)

// Error variables for error handling and testability
var (
	ErrAPIKeyNotSet      = errors.New("OpenAI API key not set")
	ErrNoChoicesReturned = errors.New("no choices returned from completion")
)

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
	DebugMode   bool
	StateDir    string
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the API key for the OpenAI-compatible backend.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the API base URL (for OpenAI-compatible providers).
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the model used for completions.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(o *Opts) { o.Temperature = temp }
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(max int64) Option {
	return func(o *Opts) { o.MaxTokens = max }
}

// WithTimeout bounds each backend call. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithDebugMode enables request/response logging to the state directory.
func WithDebugMode(stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = true
		o.StateDir = stateDir
	}
}

// chatService defines the minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openaiChat adapts the OpenAI SDK client to the chatService interface.
type openaiChat struct {
	client openai.Client
}

func (o openaiChat) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat        chatService
	model       string
	temperature float64
	maxTokens   int64
	timeout     time.Duration
	debugMode   bool
	stateDir    string
}

// ClientInterface defines the generation operations consumed by the flow package.
type ClientInterface interface {
	// GeneratePrompt generates a response from a system and user prompt pair.
	GeneratePrompt(systemPrompt, userPrompt string) (string, error)
	// GeneratePromptWithContext is GeneratePrompt with caller-controlled cancellation.
	GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// GenerateWithMessages generates a response from a full message sequence.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// Compile-time check that Client implements ClientInterface.
var _ ClientInterface = (*Client)(nil)

// NewClient initializes a new GenAI client. An API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.APIKey == "" {
		slog.Error("NewClient: API key not provided")
		return nil, ErrAPIKeyNotSet
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)

	slog.Debug("GenAI client initialized", "model", cfg.Model, "base_url_set", cfg.BaseURL != "",
		"temperature", cfg.Temperature, "max_tokens", cfg.MaxTokens, "timeout", cfg.Timeout, "debug", cfg.DebugMode)
	return &Client{
		chat:        openaiChat{client: cli},
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		debugMode:   cfg.DebugMode,
		stateDir:    cfg.StateDir,
	}, nil
}

// withTimeout bounds ctx by the configured call timeout.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// GeneratePrompt generates a response based on the provided system and user prompts.
func (c *Client) GeneratePrompt(systemPrompt, userPrompt string) (string, error) {
	return c.GeneratePromptWithContext(context.Background(), systemPrompt, userPrompt)
}

// GeneratePromptWithContext generates a response with caller-controlled cancellation.
func (c *Client) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	}
	content, err := c.complete(ctx, "GeneratePromptWithContext", messages)
	if err != nil {
		return "", err
	}
	return content, nil
}

// GenerateWithMessages generates a response from a full message sequence,
// typically system prompt plus conversation history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return c.complete(ctx, "GenerateWithMessages", messages)
}

// complete performs one bounded chat completion call.
func (c *Client) complete(ctx context.Context, method string, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	}

	start := time.Now()
	resp, err := c.chat.Create(ctx, params)
	elapsed := time.Since(start)
	if err != nil {
		slog.Warn("Client.complete: completion failed", "method", method, "model", c.model, "elapsed", elapsed, "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("Client.complete: empty choices", "method", method, "model", c.model)
		return "", ErrNoChoicesReturned
	}

	content := resp.Choices[0].Message.Content
	slog.Debug("Client.complete: completion succeeded", "method", method, "model", c.model,
		"elapsed", elapsed, "messages", len(messages), "response_length", len(content))
	c.logDebug(method, params, resp)
	return content, nil
}

// logDebug writes the request and response to a debug file when debug mode is
// enabled. Writes happen off the request path.
func (c *Client) logDebug(method string, params openai.ChatCompletionNewParams, resp openai.ChatCompletion) {
	if !c.debugMode || c.stateDir == "" {
		return
	}

	entry := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339Nano),
		"method":    method,
		"model":     c.model,
		"params":    params,
		"response":  resp,
	}

	go func() {
		debugDir := filepath.Join(c.stateDir, "debug")
		if err := os.MkdirAll(debugDir, 0755); err != nil {
			slog.Warn("Client.logDebug: failed to create debug directory", "error", err, "dir", debugDir)
			return
		}
		data, err := json.MarshalIndent(entry, "", "  ")
		if err != nil {
			slog.Warn("Client.logDebug: failed to marshal debug entry", "error", err)
			return
		}
		name := fmt.Sprintf("genai_%s_%s.json", time.Now().Format("20060102T150405.000000000"), method)
		if err := os.WriteFile(filepath.Join(debugDir, name), data, 0644); err != nil {
			slog.Warn("Client.logDebug: failed to write debug file", "error", err, "file", name)
		}
	}()
}
