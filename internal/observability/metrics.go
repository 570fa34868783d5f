package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector records generation and render metrics for one run.
type MetricsCollector struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider
	textfile string

	generations     metric.Int64Counter
	generationTime  metric.Float64Histogram
	llmTokensInput  metric.Int64Counter
	llmTokensOutput metric.Int64Counter
	renders         metric.Int64Counter
	renderTime      metric.Float64Histogram
}

// MetricsConfig configures the metrics collector. Textfile, when set,
// receives the registry in Prometheus exposition format at shutdown
// (node_exporter textfile collector layout).
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// NewMetricsCollector creates a new metrics collector. A disabled collector
// is safe to call and records nothing.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("animgen")

	collector := &MetricsCollector{
		registry: registry,
		provider: provider,
		textfile: config.Textfile,
	}

	if collector.generations, err = meter.Int64Counter(
		"animgen.generation.requests",
		metric.WithDescription("Script generation attempts by outcome"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create generation counter: %w", err)
	}

	if collector.generationTime, err = meter.Float64Histogram(
		"animgen.generation.latency",
		metric.WithDescription("Script generation latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create generation latency histogram: %w", err)
	}

	if collector.llmTokensInput, err = meter.Int64Counter(
		"animgen.llm.tokens.input",
		metric.WithDescription("Input tokens sent to the LLM"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create input token counter: %w", err)
	}

	if collector.llmTokensOutput, err = meter.Int64Counter(
		"animgen.llm.tokens.output",
		metric.WithDescription("Output tokens returned by the LLM"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create output token counter: %w", err)
	}

	if collector.renders, err = meter.Int64Counter(
		"animgen.render.runs",
		metric.WithDescription("Renderer invocations by status"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create render counter: %w", err)
	}

	if collector.renderTime, err = meter.Float64Histogram(
		"animgen.render.latency",
		metric.WithDescription("Renderer wall time in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create render latency histogram: %w", err)
	}

	return collector, nil
}

// Registry exposes the backing Prometheus registry, nil when disabled.
func (m *MetricsCollector) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordGeneration records one script generation attempt.
func (m *MetricsCollector) RecordGeneration(ctx context.Context, model, outcome string, latency time.Duration, inputTokens, outputTokens int) {
	if m == nil || m.generations == nil {
		return
	}
	modelAttr := metric.WithAttributes(attribute.String("model", model))
	m.generations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("outcome", outcome),
	))
	m.generationTime.Record(ctx, latency.Seconds(), modelAttr)
	if inputTokens > 0 {
		m.llmTokensInput.Add(ctx, int64(inputTokens), modelAttr)
	}
	if outputTokens > 0 {
		m.llmTokensOutput.Add(ctx, int64(outputTokens), modelAttr)
	}
}

// RecordRender records one renderer invocation.
func (m *MetricsCollector) RecordRender(ctx context.Context, quality, status string, latency time.Duration) {
	if m == nil || m.renders == nil {
		return
	}
	m.renders.Add(ctx, 1, metric.WithAttributes(
		attribute.String("quality", quality),
		attribute.String("status", status),
	))
	m.renderTime.Record(ctx, latency.Seconds(), metric.WithAttributes(attribute.String("quality", quality)))
}

// Shutdown writes the textfile (when configured) and stops the provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	if m.textfile != "" {
		if err := prometheus.WriteToTextfile(m.textfile, m.registry); err != nil {
			return fmt.Errorf("write metrics textfile: %w", err)
		}
	}
	return m.provider.Shutdown(ctx)
}
