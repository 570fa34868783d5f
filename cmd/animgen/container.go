package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"animgen/internal/config"
	"animgen/internal/llm"
	"animgen/internal/logging"
	"animgen/internal/observability"
	"animgen/internal/output"
	"animgen/internal/pipeline"
	"animgen/internal/render"
	"animgen/internal/scriptgen"
)

// Container holds the services built for one invocation.
type Container struct {
	Config   config.RuntimeConfig
	Logger   *observability.Logger
	Tracer   *observability.TracerProvider
	Metrics  *observability.MetricsCollector
	Pipeline *pipeline.Pipeline
}

func buildContainer(cfg config.RuntimeConfig, stdout, stderr io.Writer) (*Container, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: stderr,
	})
	logging.SetDefault(logger)

	tracer, err := observability.NewTracerProvider(cfg.Observability.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	metrics, err := observability.NewMetricsCollector(cfg.Observability.Metrics)
	if err != nil {
		_ = tracer.Shutdown(context.Background())
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	client, err := llm.NewClient(cfg.LLM.Provider, cfg.LLM.Model, llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.TimeoutSeconds,
	})
	if err != nil {
		logger.Error("LLM client unavailable", "provider", cfg.LLM.Provider, "error", err)
		client = nil
	}

	generator, err := scriptgen.New(client,
		scriptgen.WithMaxTokens(cfg.LLM.MaxTokens),
		scriptgen.WithMetrics(metrics),
		scriptgen.WithTracer(tracer),
	)
	if err != nil {
		return nil, errors.Join(err, shutdown(context.Background(), tracer, metrics))
	}

	presets := render.DefaultPresets()
	if cfg.Render.PresetsFile != "" {
		presets, err = render.LoadPresetFile(cfg.Render.PresetsFile)
		if err != nil {
			return nil, errors.Join(err, shutdown(context.Background(), tracer, metrics))
		}
	}
	invoker := render.NewInvoker(
		render.WithBinary(cfg.Render.Binary),
		render.WithMediaDir(cfg.Render.MediaDir),
		render.WithPresets(presets),
		render.WithMetrics(metrics),
		render.WithTracer(tracer),
	)

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Tracer:   tracer,
		Metrics:  metrics,
		Pipeline: pipeline.New(generator, invoker, output.NewPrinter(stdout)),
	}, nil
}

// Cleanup flushes spans and writes the metrics textfile when configured.
func (c *Container) Cleanup(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return shutdown(context.WithoutCancel(ctx), c.Tracer, c.Metrics)
}

func shutdown(ctx context.Context, tracer *observability.TracerProvider, metrics *observability.MetricsCollector) error {
	return errors.Join(metrics.Shutdown(ctx), tracer.Shutdown(ctx))
}
