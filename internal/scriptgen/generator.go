// Package scriptgen asks a language model for a Manim scene script and
// reduces the reply to plain Python source.
package scriptgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "animgen/internal/errors"
	"animgen/internal/llm"
	"animgen/internal/logging"
	"animgen/internal/observability"
	"animgen/internal/prompts"
	"animgen/internal/tokenutil"
)

// DefaultMaxTokens caps the length of the generated script.
const DefaultMaxTokens = 16000

var (
	// ErrClientUnavailable is returned when no model client is configured.
	ErrClientUnavailable = errors.New("llm client unavailable")

	// ErrEmptyResponse is returned when the reply carries no text content or
	// nothing is left of it once fences are stripped.
	ErrEmptyResponse = errors.New("llm response contained no text content")

	// ErrTruncated is returned when the reply hit the output token limit.
	ErrTruncated = errors.New("llm response truncated at max_tokens")
)

// Kind distinguishes a model-authored script from the fallback template.
type Kind int

const (
	Generated Kind = iota
	FallbackUsed
)

func (k Kind) String() string {
	switch k {
	case Generated:
		return "generated"
	case FallbackUsed:
		return "fallback"
	default:
		return "unknown"
	}
}

// Outcome is a script ready to be written to disk. Reason is set only for
// FallbackUsed: a *errors.DegradedError wrapping the client error that
// triggered the fallback.
type Outcome struct {
	Kind       Kind
	Script     string
	Reason     error
	StopReason string
	Usage      llm.TokenUsage
}

// Generator turns an animation prompt into a scene script.
type Generator struct {
	client      llm.Client
	prompts     *prompts.Library
	logger      logging.Logger
	metrics     *observability.MetricsCollector
	tracer      *observability.TracerProvider
	maxTokens   int
	countTokens func(string) int
}

// Option customises a Generator.
type Option func(*Generator)

// WithLogger sets the component logger.
func WithLogger(logger logging.Logger) Option {
	return func(g *Generator) {
		g.logger = logging.OrNop(logger)
	}
}

// WithMetrics records generation counters and latency.
func WithMetrics(metrics *observability.MetricsCollector) Option {
	return func(g *Generator) {
		g.metrics = metrics
	}
}

// WithTracer wraps each generation in a span.
func WithTracer(tracer *observability.TracerProvider) Option {
	return func(g *Generator) {
		if tracer != nil {
			g.tracer = tracer
		}
	}
}

// WithMaxTokens overrides the output token cap. Non-positive values are ignored.
func WithMaxTokens(maxTokens int) Option {
	return func(g *Generator) {
		if maxTokens > 0 {
			g.maxTokens = maxTokens
		}
	}
}

// WithTokenCounter replaces the prompt-size estimator used in debug logs.
func WithTokenCounter(count func(string) int) Option {
	return func(g *Generator) {
		if count != nil {
			g.countTokens = count
		}
	}
}

// WithPrompts supplies a pre-loaded template library.
func WithPrompts(library *prompts.Library) Option {
	return func(g *Generator) {
		if library != nil {
			g.prompts = library
		}
	}
}

// New builds a Generator. client may be nil, in which case every call to
// Generate fails with ErrClientUnavailable.
func New(client llm.Client, opts ...Option) (*Generator, error) {
	g := &Generator{
		client:      client,
		logger:      logging.NewComponentLogger("ScriptGenerator"),
		tracer:      observability.NoopTracerProvider(),
		maxTokens:   DefaultMaxTokens,
		countTokens: tokenutil.CountTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.prompts == nil {
		library, err := prompts.Load()
		if err != nil {
			return nil, err
		}
		g.prompts = library
	}
	return g, nil
}

// Generate requests a script for prompt whose scene class is named scene.
//
// Errors from the model client never surface here: they are logged and the
// fallback template is returned with Kind FallbackUsed. A returned error
// means no script is available at all.
func (g *Generator) Generate(ctx context.Context, prompt, scene string) (Outcome, error) {
	start := time.Now()
	model := g.modelName()
	ctx, span := g.tracer.StartSpan(ctx, observability.SpanGenerate,
		attribute.String(observability.AttrScene, scene),
		attribute.String(observability.AttrModel, model),
	)

	outcome, err := g.generate(ctx, prompt, scene)

	label := outcome.Kind.String()
	if err != nil {
		label = "error"
	}
	span.SetAttributes(attribute.String(observability.AttrOutcome, label))
	if outcome.Reason != nil {
		span.SetAttributes(attribute.String(observability.AttrErrorType, apperrors.GetErrorType(errors.Unwrap(outcome.Reason)).String()))
	}
	if outcome.StopReason != "" {
		span.SetAttributes(attribute.String(observability.AttrStopReason, outcome.StopReason))
	}
	span.SetAttributes(observability.LLMAttrs(model, outcome.Usage.PromptTokens, outcome.Usage.CompletionTokens)...)
	g.metrics.RecordGeneration(ctx, model, label, time.Since(start), outcome.Usage.PromptTokens, outcome.Usage.CompletionTokens)
	observability.EndSpan(span, err)

	return outcome, err
}

func (g *Generator) generate(ctx context.Context, prompt, scene string) (Outcome, error) {
	if g.client == nil {
		g.logger.Error("No LLM client configured. Set ANTHROPIC_API_KEY (or llm.api_key in the config file) and try again.")
		return Outcome{}, ErrClientUnavailable
	}

	vars := prompts.Vars{Prompt: prompt, Scene: scene}
	system, err := g.prompts.Render(prompts.System, vars)
	if err != nil {
		return Outcome{}, err
	}
	user, err := g.prompts.Render(prompts.User, vars)
	if err != nil {
		return Outcome{}, err
	}

	req := llm.CompletionRequest{
		System:    system,
		Messages:  []llm.Message{{Role: "user", Content: user}},
		MaxTokens: g.maxTokens,
		Metadata:  map[string]any{"scene": scene},
	}
	if logging.DebugEnabled(g.logger) {
		g.logger.Debug("Requesting script from %s (max_tokens=%d, ~%d prompt tokens)",
			g.client.Model(), g.maxTokens, g.countTokens(system+"\n"+user))
	}

	resp, err := g.client.Complete(ctx, req)
	if err != nil {
		return g.fallback(prompt, scene, err)
	}
	if resp == nil || !resp.HasText {
		g.logger.Error("Model response contained no text content")
		return Outcome{}, ErrEmptyResponse
	}

	switch resp.StopReason {
	case llm.StopReasonEndTurn:
	case llm.StopReasonMaxTokens:
		g.logger.Error("Model response was cut off at max_tokens=%d; the script would be incomplete", g.maxTokens)
		return Outcome{StopReason: resp.StopReason, Usage: resp.Usage}, fmt.Errorf("%w (limit %d)", ErrTruncated, g.maxTokens)
	default:
		g.logger.Warn("Model stopped with unexpected reason %q; using the response anyway", resp.StopReason)
	}

	script := StripFences(resp.Content)
	if script == "" {
		g.logger.Error("Model response was empty once code fences were removed")
		return Outcome{StopReason: resp.StopReason, Usage: resp.Usage}, ErrEmptyResponse
	}
	if logging.DebugEnabled(g.logger) {
		g.logger.Debug("Received script: %d lines, ~%d tokens", strings.Count(script, "\n")+1, g.countTokens(script))
	}
	return Outcome{
		Kind:       Generated,
		Script:     script,
		StopReason: resp.StopReason,
		Usage:      resp.Usage,
	}, nil
}

func (g *Generator) fallback(prompt, scene string, cause error) (Outcome, error) {
	if apperrors.IsCredentialError(cause) {
		g.logger.Error("Model API authentication failed. Check that ANTHROPIC_API_KEY is set and valid: %v", cause)
	} else {
		g.logger.Error("Model API call failed: %v", cause)
	}

	script, err := g.prompts.Render(prompts.Fallback, prompts.Vars{Prompt: prompt, Scene: scene})
	if err != nil {
		return Outcome{}, fmt.Errorf("render fallback script: %w", err)
	}
	return Outcome{
		Kind:   FallbackUsed,
		Script: script,
		Reason: apperrors.NewDegradedError(cause, apperrors.Describe(cause), script),
	}, nil
}

func (g *Generator) modelName() string {
	if g.client == nil {
		return ""
	}
	return g.client.Model()
}

// StripFences removes a leading markdown fence line (with or without a
// language tag) and a trailing closing fence line, then trims whitespace.
// CRLF line endings become LF. Text without fences is only trimmed.
func StripFences(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
