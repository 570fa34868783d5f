package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "animgen/internal/errors"
)

func TestAnthropicClientCompleteSuccess(t *testing.T) {
	t.Parallel()

	server := newIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.URL.Path; got != "/messages" {
			t.Errorf("unexpected path: %s", got)
		}
		if got := r.Header.Get(anthropicRequestHeaderKey); got != "sk-ant-test" {
			t.Errorf("expected api key header, got %q", got)
		}
		if got := r.Header.Get(anthropicVersionHeaderKey); got != defaultAnthropicVersion {
			t.Errorf("unexpected anthropic version header %q", got)
		}

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if payload["model"] != "claude-test" {
			t.Errorf("unexpected model: %v", payload["model"])
		}
		if payload["system"] != "system rules" {
			t.Errorf("unexpected system prompt: %v", payload["system"])
		}
		if payload["max_tokens"] != float64(16000) {
			t.Errorf("unexpected max_tokens: %v", payload["max_tokens"])
		}
		if _, ok := payload["temperature"]; ok {
			t.Errorf("temperature should be omitted when unset")
		}
		rawMsgs, ok := payload["messages"].([]any)
		if !ok || len(rawMsgs) != 1 {
			t.Errorf("expected 1 message, got %#v", payload["messages"])
		} else {
			msg := rawMsgs[0].(map[string]any)
			if msg["role"] != "user" || msg["content"] != "User's animation prompt: draw a red circle" {
				t.Errorf("unexpected message: %#v", msg)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":          "msg-1",
			"role":        "assistant",
			"stop_reason": "end_turn",
			"content": []any{
				map[string]any{"type": "text", "text": "from manim import *"},
			},
			"usage": map[string]any{
				"input_tokens":  4,
				"output_tokens": 6,
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))

	client, err := NewAnthropicClient("claude-test", Config{
		APIKey:  "sk-ant-test",
		BaseURL: server.URL + "/",
	})
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}

	resp, err := client.Complete(context.Background(), CompletionRequest{
		System: "system rules",
		Messages: []Message{
			{Role: "user", Content: "User's animation prompt: draw a red circle"},
		},
		MaxTokens: 16000,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !resp.HasText || resp.Content != "from manim import *" {
		t.Fatalf("unexpected content: %+v", resp)
	}
	if resp.StopReason != StopReasonEndTurn {
		t.Fatalf("unexpected stop reason %q", resp.StopReason)
	}
	if resp.Usage.TotalTokens != 10 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if resp.Metadata["message_id"] != "msg-1" {
		t.Fatalf("unexpected metadata: %+v", resp.Metadata)
	}
}

func TestAnthropicClientNonTextContent(t *testing.T) {
	t.Parallel()

	server := newIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"stop_reason":"tool_use","content":[{"type":"tool_use"}]}`))
	}))

	client, err := NewAnthropicClient("claude-test", Config{APIKey: "sk-ant-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}
	resp, err := client.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.HasText {
		t.Fatalf("expected no text content, got %+v", resp)
	}
}

func TestAnthropicClientMapsAuthenticationError(t *testing.T) {
	t.Parallel()

	server := newIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))

	client, err := NewAnthropicClient("claude-test", Config{APIKey: "sk-ant-bad", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}
	_, err = client.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: "user", Content: "hi"}}})

	var perr *apperrors.PermanentError
	if !errors.As(err, &perr) {
		t.Fatalf("expected permanent error, got %T %v", err, err)
	}
	if perr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", perr.StatusCode)
	}
	if !apperrors.IsCredentialError(err) {
		t.Fatalf("expected credential error classification for %v", err)
	}
}

func TestAnthropicClientMapsRateLimit(t *testing.T) {
	t.Parallel()

	server := newIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))

	client, err := NewAnthropicClient("claude-test", Config{APIKey: "sk-ant-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}
	_, err = client.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: "user", Content: "hi"}}})

	var terr *apperrors.TransientError
	if !errors.As(err, &terr) {
		t.Fatalf("expected transient error, got %T", err)
	}
	if terr.RetryAfter != 3 || terr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected transient error %+v", terr)
	}
}

func TestAnthropicClientRejectsOversizedResponse(t *testing.T) {
	t.Parallel()

	chunk := strings.Repeat("x", 1<<20)
	server := newIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 9; i++ {
			_, _ = w.Write([]byte(chunk))
		}
	}))

	client, err := NewAnthropicClient("claude-test", Config{APIKey: "sk-ant-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}
	_, err = client.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: "user", Content: "hi"}}})

	var perr *apperrors.PermanentError
	if !errors.As(err, &perr) {
		t.Fatalf("expected permanent error, got %T %v", err, err)
	}
	if perr.Message != "Model API response exceeded the size limit." {
		t.Fatalf("unexpected message %q", perr.Message)
	}
}

func TestAnthropicClientRequiresAPIKey(t *testing.T) {
	client, err := NewAnthropicClient("claude-test", Config{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewAnthropicClient: %v", err)
	}
	_, err = client.Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if !apperrors.IsCredentialError(err) {
		t.Fatalf("missing key should classify as credential error")
	}
}

func TestNewClientProviders(t *testing.T) {
	if _, err := NewClient("mock", "m", Config{}); err != nil {
		t.Fatalf("mock provider: %v", err)
	}
	if _, err := NewClient("", "claude-test", Config{}); err != nil {
		t.Fatalf("default provider: %v", err)
	}
	if _, err := NewClient("palm", "x", Config{}); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
	if _, err := NewAnthropicClient(" ", Config{}); err == nil {
		t.Fatalf("expected error for empty model")
	}
}

func TestMockClientQueue(t *testing.T) {
	mock := NewMockClient("")
	boom := errors.New("boom")
	mock.Enqueue(nil, boom).Enqueue(&CompletionResponse{Content: "x", HasText: true}, nil)

	if _, err := mock.Complete(context.Background(), CompletionRequest{}); !errors.Is(err, boom) {
		t.Fatalf("expected queued error, got %v", err)
	}
	if resp, err := mock.Complete(context.Background(), CompletionRequest{}); err != nil || resp.Content != "x" {
		t.Fatalf("expected queued response, got %+v %v", resp, err)
	}
	resp, err := mock.Complete(context.Background(), CompletionRequest{Metadata: map[string]any{"scene": "Intro"}})
	if err != nil {
		t.Fatalf("default reply: %v", err)
	}
	if want := "class Intro(Scene):"; !strings.Contains(resp.Content, want) {
		t.Fatalf("expected %q in default script, got %q", want, resp.Content)
	}
	if got := len(mock.Requests()); got != 3 {
		t.Fatalf("expected 3 recorded requests, got %d", got)
	}
	if mock.Model() != "mock" {
		t.Fatalf("unexpected model %q", mock.Model())
	}
}

func newIPv4TestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: unable to create loopback listener: %v", err)
	}

	server := httptest.NewUnstartedServer(handler)
	server.Listener = ln
	server.Start()
	t.Cleanup(server.Close)

	return server
}
