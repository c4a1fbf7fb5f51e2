package llm

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

// AnthropicClient calls the Anthropic Messages API. The API has no
// schema-constrained output mode, so the declared shape is appended to the
// prompt as an explicit output contract.
type AnthropicClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewAnthropicClient(apiKey, model, baseURL string, timeout time.Duration) *AnthropicClient {
	return &AnthropicClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *AnthropicClient) Invoke(ctx context.Context, req Request) (*Result, error) {
	prompt := req.Prompt
	if req.Shape != nil {
		schemaJSON, err := json.Marshal(req.Shape.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshal shape schema: %w", err)
		}
		prompt += "\n\nRespond with a single JSON object matching this schema, and nothing else:\n" + string(schemaJSON)
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &InvocationError{
			Kind:       kindForStatus(resp.StatusCode),
			Backend:    "anthropic",
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, &InvocationError{
			Kind:    anthropicErrorKind(apiResp.Error.Type),
			Backend: "anthropic",
			Message: apiResp.Error.Type + ": " + apiResp.Error.Message,
		}
	}
	if apiResp.StopReason == "refusal" {
		return nil, &InvocationError{
			Kind:    KindRefused,
			Backend: "anthropic",
			Message: "model declined to respond",
		}
	}
	if len(apiResp.Content) == 0 {
		return nil, &InvocationError{
			Kind:    KindUnavailable,
			Backend: "anthropic",
			Message: "empty response",
		}
	}

	return decodeResult(apiResp.Content[0].Text, req.Shape), nil
}

func anthropicErrorKind(errType string) ErrorKind {
	switch errType {
	case "authentication_error", "permission_error":
		return KindAuth
	case "rate_limit_error":
		return KindRateLimited
	case "overloaded_error", "api_error":
		return KindUnavailable
	default:
		return KindBadRequest
	}
}

func (c *AnthropicClient) transportError(err error) error {
	kind := KindUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &InvocationError{Kind: kind, Backend: "anthropic", Message: "request failed", Err: err}
}

func (c *AnthropicClient) Model() string { return c.model }

// Close releases resources.
func (c *AnthropicClient) Close() {
	c.httpClient.CloseIdleConnections()
}
