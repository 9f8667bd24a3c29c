package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/llm"
	"transcript-backend/internal/shared/telemetry"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 120 * time.Second
)

// Client implements llm.Analyzer using OpenAI Chat Completions.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient constructs a new OpenAI client. A non-positive timeout uses two minutes.
func NewClient(apiKey, model string, timeout time.Duration, opts ...Option) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("LLM_API_KEY is required for OpenAI")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Analyze sends the prompt as a single user message.
func (c *Client) Analyze(ctx context.Context, in llm.Request) (llm.Response, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return llm.Response{}, errors.Wrap(llm.ErrInvalidInput, "empty prompt")
	}
	reqBody := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: in.Prompt}},
	}
	if !isGPT5(c.model) {
		temp := float32(0.7)
		reqBody.Temperature = &temp
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return llm.Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return llm.Response{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return llm.Response{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Response{}, errors.Mark(errors.Wrap(err, "openai read body"), llm.ErrUpstream)
	}

	var parsed chatResponse
	parseErr := json.Unmarshal(body, &parsed)
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(body))
		if parseErr == nil && parsed.Error != nil {
			msg = parsed.Error.Message + " (" + parsed.Error.Type + ")"
		}
		return llm.Response{}, classifyStatus(resp.StatusCode, msg)
	}
	if parseErr != nil {
		return llm.Response{}, errors.Mark(errors.Wrap(parseErr, "openai response parse"), llm.ErrUpstream)
	}
	if len(parsed.Choices) == 0 {
		return llm.Response{}, errors.Wrap(llm.ErrUpstream, "openai response missing choices")
	}
	if parsed.Choices[0].FinishReason == "content_filter" {
		return llm.Response{}, errors.Wrap(llm.ErrContentRejected, "openai content filter")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return llm.Response{}, errors.Wrap(llm.ErrUpstream, "openai response empty content")
	}

	out := llm.Response{Text: content, Model: parsed.Model}
	if parsed.Usage != nil {
		out.PromptTokens = parsed.Usage.PromptTokens
		out.CompletionTokens = parsed.Usage.CompletionTokens
	}
	telemetry.Info("llm.response", map[string]any{
		"model":             c.model,
		"label":             in.Label,
		"prompt_tokens":     out.PromptTokens,
		"completion_tokens": out.CompletionTokens,
	})
	return out, nil
}

func classifyStatus(status int, msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case status == http.StatusTooManyRequests:
		return errors.Wrapf(llm.ErrRateLimited, "openai http status %d: %s", status, msg)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return errors.Wrapf(llm.ErrTimeout, "openai http status %d: %s", status, msg)
	case status >= 500:
		return errors.Wrapf(llm.ErrUpstream, "openai http status %d: %s", status, msg)
	case strings.Contains(lower, "content_policy") || strings.Contains(lower, "content management policy") || strings.Contains(lower, "safety"):
		return errors.Wrapf(llm.ErrContentRejected, "openai http status %d: %s", status, msg)
	default:
		return errors.Wrapf(llm.ErrInvalidInput, "openai http status %d: %s", status, msg)
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
		return errors.Mark(errors.Wrap(err, "openai request timeout"), llm.ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Mark(errors.Wrap(err, "openai request timeout"), llm.ErrTimeout)
	}
	return errors.Mark(errors.Wrap(err, "openai transport"), llm.ErrUpstream)
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

var _ llm.Analyzer = (*Client)(nil)
