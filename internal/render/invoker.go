// Package render writes a scene script to disk, runs the Manim renderer on
// it and locates the video the renderer produced.
package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"animgen/internal/logging"
	"animgen/internal/observability"
	"animgen/internal/scriptdiff"
)

const (
	// DefaultBinary is the renderer executable looked up on PATH.
	DefaultBinary = "manim"

	// DefaultMediaDir is where the renderer writes output, relative to the working directory.
	DefaultMediaDir = "media"

	// InteractiveEnvKey is set to InteractiveEnvValue for renderer runs.
	InteractiveEnvKey   = "MANIM_INTERACTIVE"
	InteractiveEnvValue = "True"
)

var (
	// ErrRendererNotFound is returned when the renderer executable is not on PATH.
	ErrRendererNotFound = errors.New("renderer executable not found")

	// ErrRenderFailed is returned when the renderer exits with a non-zero status.
	ErrRenderFailed = errors.New("renderer exited with an error")
)

// Request describes one render.
type Request struct {
	Script     string
	ScriptPath string
	Scene      string
	Quality    string
	Preview    bool
	Silent     bool
	Env        []string
}

// Result describes a finished render. VideoPath is absolute and only set
// when the predicted file exists.
type Result struct {
	Command       Command
	ExitCode      int
	Stdout        string
	Stderr        string
	Succeeded     bool
	PredictedPath string
	VideoPath     string
	Replaced      bool
	Diff          scriptdiff.Summary
}

// Invoker runs the renderer.
type Invoker struct {
	binary   string
	mediaDir string
	presets  *PresetLibrary
	runner   CommandRunner
	logger   logging.Logger
	metrics  *observability.MetricsCollector
	tracer   *observability.TracerProvider
	stat     func(string) (os.FileInfo, error)
}

// Option customises an Invoker.
type Option func(*Invoker)

// WithBinary sets the renderer executable.
func WithBinary(binary string) Option {
	return func(i *Invoker) {
		if strings.TrimSpace(binary) != "" {
			i.binary = strings.TrimSpace(binary)
		}
	}
}

// WithMediaDir sets the renderer's media root.
func WithMediaDir(dir string) Option {
	return func(i *Invoker) {
		if strings.TrimSpace(dir) != "" {
			i.mediaDir = strings.TrimSpace(dir)
		}
	}
}

// WithPresets replaces the quality preset table.
func WithPresets(presets *PresetLibrary) Option {
	return func(i *Invoker) {
		if presets != nil {
			i.presets = presets
		}
	}
}

// WithRunner replaces the process runner.
func WithRunner(runner CommandRunner) Option {
	return func(i *Invoker) {
		if runner != nil {
			i.runner = runner
		}
	}
}

// WithLogger sets the component logger.
func WithLogger(logger logging.Logger) Option {
	return func(i *Invoker) {
		i.logger = logging.OrNop(logger)
	}
}

// WithMetrics records render counters and latency.
func WithMetrics(metrics *observability.MetricsCollector) Option {
	return func(i *Invoker) {
		i.metrics = metrics
	}
}

// WithTracer wraps each render in a span.
func WithTracer(tracer *observability.TracerProvider) Option {
	return func(i *Invoker) {
		if tracer != nil {
			i.tracer = tracer
		}
	}
}

// WithStat replaces the existence check used to confirm the video file.
func WithStat(stat func(string) (os.FileInfo, error)) Option {
	return func(i *Invoker) {
		if stat != nil {
			i.stat = stat
		}
	}
}

// NewInvoker builds an Invoker that runs DefaultBinary through ExecRunner.
func NewInvoker(opts ...Option) *Invoker {
	i := &Invoker{
		binary:   DefaultBinary,
		mediaDir: DefaultMediaDir,
		presets:  DefaultPresets(),
		runner:   ExecRunner{},
		logger:   logging.NewComponentLogger("RenderInvoker"),
		tracer:   observability.NoopTracerProvider(),
		stat:     os.Stat,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InteractiveEnv returns a copy of base with MANIM_INTERACTIVE=True,
// replacing any existing entry for that key.
func InteractiveEnv(base []string) []string {
	env := make([]string, 0, len(base)+1)
	prefix := InteractiveEnvKey + "="
	for _, entry := range base {
		if strings.HasPrefix(entry, prefix) {
			continue
		}
		env = append(env, entry)
	}
	return append(env, prefix+InteractiveEnvValue)
}

// BuildCommand returns the renderer invocation for req:
// <binary> [-p] -q<code> [--progress_bar none] <script> <scene>.
func (i *Invoker) BuildCommand(req Request) Command {
	args := make([]string, 0, 7)
	if req.Preview {
		args = append(args, "-p")
	}
	args = append(args, i.presets.Resolve(req.Quality).Args()...)
	if req.Silent {
		args = append(args, "--progress_bar", "none")
	}
	args = append(args, req.ScriptPath, req.Scene)
	return Command{Name: i.binary, Args: args, Env: req.Env}
}

// PredictPath returns where the renderer writes the video for a scene:
// <media>/videos/<script stem>/<quality dir>/<scene>.mp4.
func (i *Invoker) PredictPath(scriptPath, scene, quality string) string {
	base := filepath.Base(scriptPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(i.mediaDir, "videos", stem, i.presets.Resolve(quality).Directory, scene+".mp4")
}

// Run writes the script, runs the renderer to completion and looks for the
// video. The Result is populated as far as the run got, including when an
// error is returned. A successful render whose video cannot be found is
// not an error; VideoPath is left empty.
func (i *Invoker) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	ctx, span := i.tracer.StartSpan(ctx, observability.SpanRender,
		attribute.String(observability.AttrScene, req.Scene),
		attribute.String(observability.AttrQuality, req.Quality),
	)

	result, status, err := i.run(ctx, req)

	span.SetAttributes(attribute.Int(observability.AttrExitCode, result.ExitCode))
	i.metrics.RecordRender(ctx, req.Quality, status, time.Since(start))
	observability.EndSpan(span, err)
	return result, err
}

func (i *Invoker) run(ctx context.Context, req Request) (Result, string, error) {
	var result Result

	replaced, diff, err := i.writeScript(req.ScriptPath, req.Script)
	if err != nil {
		return result, "error", err
	}
	result.Replaced = replaced
	result.Diff = diff
	i.logger.Debug("Manim script saved to %s", req.ScriptPath)
	if replaced {
		i.logger.Info("Replaced existing %s: %s", req.ScriptPath, diff)
	}

	cmd := i.BuildCommand(req)
	result.Command = cmd
	i.logger.Debug("Running renderer: %s", cmd)

	out, err := i.runner.Run(ctx, cmd)
	result.Stdout = out.Stdout
	result.Stderr = out.Stderr
	result.ExitCode = out.ExitCode
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			i.logger.Error("%q was not found. Make sure Manim Community is installed and on your PATH.", i.binary)
			return result, "error", fmt.Errorf("%w: %s (is Manim installed and on PATH?)", ErrRendererNotFound, i.binary)
		}
		i.logger.Error("Running the renderer failed: %v", err)
		return result, "error", fmt.Errorf("run %s: %w", i.binary, err)
	}
	if out.ExitCode != 0 {
		i.logger.Error("Renderer exited with code %d", out.ExitCode)
		return result, "failed", fmt.Errorf("%w: exit code %d", ErrRenderFailed, out.ExitCode)
	}

	result.Succeeded = true
	if _, ok := i.presets.Get(req.Quality); !ok {
		i.logger.Warn("Unknown quality %q (known: %s); looking for the video under %s",
			req.Quality, strings.Join(i.presets.Codes(), ", "), FallbackDirectory)
	}
	result.PredictedPath = i.PredictPath(req.ScriptPath, req.Scene, req.Quality)
	if _, err := i.stat(result.PredictedPath); err != nil {
		i.logger.Warn("Could not automatically find video file at %s. Check the %s directory.", result.PredictedPath, i.mediaDir)
		return result, "not_found", nil
	}

	abs, err := filepath.Abs(result.PredictedPath)
	if err != nil {
		abs = result.PredictedPath
	}
	result.VideoPath = abs
	i.logger.Debug("Video rendered at %s", abs)
	return result, "succeeded", nil
}

func (i *Invoker) writeScript(path, script string) (bool, scriptdiff.Summary, error) {
	var (
		replaced bool
		diff     scriptdiff.Summary
	)
	previous, err := os.ReadFile(path)
	switch {
	case err == nil:
		replaced = true
		diff = scriptdiff.Compare(string(previous), script)
	case !errors.Is(err, fs.ErrNotExist):
		i.logger.Debug("Could not read existing %s for comparison: %v", path, err)
	}

	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		return false, scriptdiff.Summary{}, fmt.Errorf("write script %s: %w", path, err)
	}
	return replaced, diff, nil
}
