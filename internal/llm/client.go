// Package llm implements dialogue.Generator over an OpenAI-compatible chat
// completions API (OpenRouter by default).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/roundtable/internal/dialogue"
	ierr "github.com/mark3labs/roundtable/internal/errors"
	"github.com/mark3labs/roundtable/internal/logger"
)

// DefaultBaseURL is the OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Config holds client settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration // HTTP client timeout; 0 leaves the deadline to the request context
	Referer     string        // optional HTTP-Referer for OpenRouter rankings
	Title       string        // optional X-Title
}

// ChatMessage is one OpenAI-compatible chat message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the /chat/completions request body.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      ChatMessage `json:"message"`
}

// Usage tokens information. Not all providers return it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse is the /chat/completions response body.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Client calls the chat completions endpoint.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logger.Named
}

// New creates a Client. The API key is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required (set ROUNDTABLE_API_KEY or OPENROUTER_API_KEY)")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout < 0 {
		cfg.Timeout = 0
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger.For("llm"),
	}, nil
}

// Generate implements dialogue.Generator.
func (c *Client) Generate(ctx context.Context, req dialogue.Request) (dialogue.Response, error) {
	messages := make([]ChatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: req.Prompt})

	resp, err := c.CreateChatCompletion(ctx, ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return dialogue.Response{}, err
	}
	if len(resp.Choices) == 0 {
		return dialogue.Response{}, fmt.Errorf("llm: response has no choices")
	}
	if resp.Usage != nil {
		c.log.Debug("model=%s tokens prompt=%d completion=%d", resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
	return dialogue.Response{Text: resp.Choices[0].Message.Content}, nil
}

// CreateChatCompletion posts one request. 429 and 5xx responses come back as
// transient errors.
func (c *Client) CreateChatCompletion(ctx context.Context, body ChatCompletionRequest) (*ChatCompletionResponse, error) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, fmt.Errorf("llm: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", buf)
	if err != nil {
		return nil, fmt.Errorf("llm: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return nil, ierr.NewTransientError("chat completion", err)
	}
	defer res.Body.Close()
	c.log.Debug("POST /chat/completions %d in %s", res.StatusCode, time.Since(start).Round(time.Millisecond))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
		err := fmt.Errorf("llm: status %d: %s", res.StatusCode, errorMessage(b))
		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
			return nil, ierr.NewTransientError("chat completion", err)
		}
		return nil, err
	}

	var cr ChatCompletionResponse
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("llm: decoding response: %w", err)
	}
	return &cr, nil
}

func errorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	return strings.TrimSpace(string(body))
}
