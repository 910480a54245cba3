// Package llm talks to a locally hosted OpenAI-compatible inference server
// (LM Studio, llama.cpp server, vLLM and friends all expose this API).
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"findoc/internal/logger"
)

// ErrServerUnavailable is returned when the inference server cannot be reached.
var ErrServerUnavailable = errors.New("LLM server is not reachable")

// Config configures the LLM client.
type Config struct {
	BaseURL        string        // e.g. http://localhost:1234/v1
	APIKey         string        // usually empty for local servers
	Model          string        // model identifier, local servers often ignore it
	MaxRetries     int           // attempts per request
	ParseTimeout   time.Duration // per-attempt timeout for document parsing
	AnalyzeTimeout time.Duration // per-attempt timeout for financial analysis
}

// Client sends document text to the inference server for analysis.
type Client struct {
	api *openai.Client
	cfg Config
	log zerolog.Logger
}

// New creates a client for the configured inference server.
func New(cfg Config) *Client {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.ParseTimeout <= 0 {
		cfg.ParseTimeout = 300 * time.Second
	}
	if cfg.AnalyzeTimeout <= 0 {
		cfg.AnalyzeTimeout = 360 * time.Second
	}

	apiConfig := openai.DefaultConfig(cfg.APIKey)
	apiConfig.BaseURL = cfg.BaseURL

	return &Client{
		api: openai.NewClientWithConfig(apiConfig),
		cfg: cfg,
		log: logger.WithComponent("llm"),
	}
}

// CheckServer reports whether the inference server answers the models
// endpoint. Local servers expose this even before a model is loaded.
func (c *Client) CheckServer(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.api.ListModels(ctx)
	if err != nil {
		c.log.Debug().Err(err).Str("base_url", c.cfg.BaseURL).Msg("LLM server check failed")
		return false
	}
	return true
}

// ParseDocument runs the first pass: summarize the asset-side content of the
// OCR text as a markdown overview.
func (c *Client) ParseDocument(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, "ParseDocument", parseSystemPrompt, text, 1500, c.cfg.ParseTimeout)
}

// AnalyzeFinancials runs the second pass: locate the income statement in the
// OCR text and return the key figures as a JSON object.
func (c *Client) AnalyzeFinancials(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, "AnalyzeFinancials", analyzeSystemPrompt, text, 2000, c.cfg.AnalyzeTimeout)
}

// complete sends one chat completion with retries. Timeouts grow by 30s per
// timed-out attempt since local models can be slow to warm up; other failures
// back off exponentially.
func (c *Client) complete(ctx context.Context, op, systemPrompt, userText string, maxTokens int, timeout time.Duration) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		c.log.Debug().
			Str("op", op).
			Int("attempt", attempt).
			Int("max_retries", c.cfg.MaxRetries).
			Dur("timeout", timeout).
			Msg("Sending request to LLM server")

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := c.api.CreateChatCompletion(attemptCtx, openai.ChatCompletionRequest{
			Model: c.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userText},
			},
			Temperature: 0.3,
			MaxTokens:   maxTokens,
			Stream:      false,
		})
		cancel()

		if err == nil {
			if len(resp.Choices) == 0 {
				lastErr = fmt.Errorf("no response choices from LLM server")
				continue
			}
			content := resp.Choices[0].Message.Content
			c.log.Debug().
				Str("op", op).
				Int("attempt", attempt).
				Int("content_length", len(content)).
				Msg("LLM request succeeded")
			return content, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			// Caller gave up, no point retrying.
			return "", fmt.Errorf("%s: %w", op, ctx.Err())
		}

		if attempt == c.cfg.MaxRetries {
			break
		}

		if errors.Is(err, context.DeadlineExceeded) {
			timeout += 30 * time.Second
			c.log.Warn().
				Str("op", op).
				Int("attempt", attempt).
				Dur("next_timeout", timeout).
				Msg("LLM request timed out, retrying with longer timeout")
			if !sleepCtx(ctx, 2*time.Second) {
				return "", fmt.Errorf("%s: %w", op, ctx.Err())
			}
			continue
		}

		wait := time.Duration(1<<(attempt-1)) * time.Second
		c.log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("LLM request failed, retrying")
		if !sleepCtx(ctx, wait) {
			return "", fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}

	return "", fmt.Errorf("%s: all %d attempts failed, last error: %w", op, c.cfg.MaxRetries, lastErr)
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
