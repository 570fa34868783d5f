package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "animgen/internal/errors"
	"animgen/internal/httpclient"
	"animgen/internal/logging"
)

const (
	defaultAnthropicBaseURL     = "https://api.anthropic.com/v1"
	defaultAnthropicVersion     = "2023-06-01"
	defaultAnthropicTimeout     = 120 * time.Second
	anthropicVersionHeaderKey   = "anthropic-version"
	anthropicRequestHeaderKey   = "x-api-key"
	anthropicMessagesPath       = "/messages"
	anthropicRequestContentType = "application/json"
)

type anthropicClient struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
	headers    map[string]string
}

// NewAnthropicClient returns a Messages API client for model.
func NewAnthropicClient(model string, config Config) (Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("anthropic: model is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}

	timeout := defaultAnthropicTimeout
	if config.Timeout > 0 {
		timeout = time.Duration(config.Timeout) * time.Second
	}

	logger := logging.NewComponentLogger("llm.anthropic")

	return &anthropicClient{
		model:      model,
		apiKey:     strings.TrimSpace(config.APIKey),
		baseURL:    baseURL,
		httpClient: httpclient.New(timeout, logger),
		logger:     logger,
		headers:    config.Headers,
	}, nil
}

func (c *anthropicClient) Model() string {
	return c.model
}

func (c *anthropicClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	requestID := extractRequestID(req.Metadata)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	prefix := fmt.Sprintf("[req:%s] ", requestID)

	if c.apiKey == "" && !c.hasCustomAuthHeader() {
		return nil, ErrMissingAPIKey
	}

	payload := anthropicRequest{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Messages:    convertMessages(req.Messages),
		Temperature: req.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + anthropicMessagesPath
	c.logger.Debug("%s=== LLM Request ===", prefix)
	c.logger.Debug("%sURL: POST %s", prefix, endpoint)
	c.logger.Debug("%sModel: %s, max_tokens: %d", prefix, c.model, req.MaxTokens)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", anthropicRequestContentType)
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	if c.apiKey != "" && httpReq.Header.Get(anthropicRequestHeaderKey) == "" {
		httpReq.Header.Set(anthropicRequestHeaderKey, c.apiKey)
	}
	if httpReq.Header.Get(anthropicVersionHeaderKey) == "" {
		httpReq.Header.Set(anthropicVersionHeaderKey, defaultAnthropicVersion)
	}

	c.logger.Debug("%sRequest Headers:", prefix)
	for k, v := range httpReq.Header {
		if strings.EqualFold(k, anthropicRequestHeaderKey) || strings.EqualFold(k, "Authorization") {
			c.logger.Debug("%s  %s: (hidden)", prefix, k)
		} else {
			c.logger.Debug("%s  %s: %s", prefix, k, strings.Join(v, ", "))
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("%sHTTP request failed: %v", prefix, err)
		return nil, wrapRequestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("%s=== LLM Response ===", prefix)
	c.logger.Debug("%sStatus: %d %s", prefix, resp.StatusCode, resp.Status)

	respBody, err := httpclient.ReadAllWithLimit(resp.Body, httpclient.DefaultResponseLimit)
	if err != nil {
		c.logger.Debug("%sFailed to read response body: %v", prefix, err)
		if httpclient.IsResponseTooLarge(err) {
			return nil, &apperrors.PermanentError{
				Err:        fmt.Errorf("read response: %w", err),
				StatusCode: resp.StatusCode,
				Message:    "Model API response exceeded the size limit.",
			}
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("%sError Response Body: %s", prefix, string(respBody))
		return nil, mapHTTPError(resp.StatusCode, respBody, resp.Header)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		c.logger.Debug("%sFailed to decode response: %v", prefix, err)
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if apiResp.Error != nil && apiResp.Error.Message != "" {
		errMsg := apiResp.Error.Message
		if apiResp.Error.Type != "" {
			errMsg = fmt.Sprintf("%s: %s", apiResp.Error.Type, apiResp.Error.Message)
		}
		return nil, mapHTTPError(resp.StatusCode, []byte(errMsg), resp.Header)
	}

	content, hasText := parseAnthropicContent(apiResp.Content)
	result := &CompletionResponse{
		Content:    content,
		HasText:    hasText,
		StopReason: apiResp.StopReason,
		Usage: TokenUsage{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
		Metadata: map[string]any{
			"request_id": requestID,
			"message_id": strings.TrimSpace(apiResp.ID),
		},
	}

	c.logger.Debug("%s=== LLM Response Summary ===", prefix)
	c.logger.Debug("%sStop Reason: %s", prefix, result.StopReason)
	c.logger.Debug("%sContent Length: %d chars", prefix, len(result.Content))
	c.logger.Debug("%sUsage: %d prompt + %d completion = %d total tokens",
		prefix,
		result.Usage.PromptTokens,
		result.Usage.CompletionTokens,
		result.Usage.TotalTokens,
	)

	return result, nil
}

func (c *anthropicClient) hasCustomAuthHeader() bool {
	for k, v := range c.headers {
		if (strings.EqualFold(k, anthropicRequestHeaderKey) || strings.EqualFold(k, "Authorization")) && strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func convertMessages(msgs []Message) []anthropicMessage {
	messages := make([]anthropicMessage, 0, len(msgs))
	for _, msg := range msgs {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		if role == "" || role == "system" || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		messages = append(messages, anthropicMessage{Role: role, Content: msg.Content})
	}
	return messages
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
	Error      *anthropicError         `json:"error"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// parseAnthropicContent returns the text of the first content block when it
// is a text block. Any other leading block means there is no usable text.
func parseAnthropicContent(blocks []anthropicContentBlock) (string, bool) {
	if len(blocks) == 0 {
		return "", false
	}
	first := blocks[0]
	if strings.ToLower(strings.TrimSpace(first.Type)) != "text" {
		return "", false
	}
	return first.Text, true
}
