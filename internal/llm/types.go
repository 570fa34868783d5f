// Package llm talks to hosted text-generation APIs.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Stop reasons reported by the Messages API.
const (
	StopReasonEndTurn      = "end_turn"
	StopReasonMaxTokens    = "max_tokens"
	StopReasonStopSequence = "stop_sequence"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest carries a system instruction and conversation turns.
type CompletionRequest struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
	Metadata    map[string]any
}

// TokenUsage reports token accounting returned by the provider.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the provider's answer. HasText is false when the
// provider returned no text content block.
type CompletionResponse struct {
	Content    string
	HasText    bool
	StopReason string
	Usage      TokenUsage
	Metadata   map[string]any
}

// Client completes a single request.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Model() string
}

// Config holds connection settings shared by providers.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout int // seconds; 0 keeps the provider default
	Headers map[string]string
}

// Providers understood by NewClient.
const (
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// ErrUnsupportedProvider is returned by NewClient for unknown providers.
var ErrUnsupportedProvider = fmt.Errorf("unsupported llm provider")

// NewClient builds a client for provider.
func NewClient(provider, model string, config Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderAnthropic, "":
		return NewAnthropicClient(model, config)
	case ProviderMock:
		return NewMockClient(model), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
}

func extractRequestID(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if id, ok := metadata["request_id"].(string); ok {
		return strings.TrimSpace(id)
	}
	return ""
}
