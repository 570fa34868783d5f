// Package pipeline runs one prompt-to-video invocation: generate a script,
// show it, render it and report where the video ended up.
package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	apperrors "animgen/internal/errors"
	"animgen/internal/logging"
	"animgen/internal/output"
	"animgen/internal/render"
	"animgen/internal/scriptgen"
)

// Final status lines.
const (
	CompleteMessage     = "Process complete. Video available at: %s"
	IncompleteMessage   = "Process completed with errors or video path not found."
	NoScriptMessage     = "Could not generate Manim script from the prompt. Exiting."
	RendererMissingHint = "Manim command not found. Please ensure Manim is installed and in your PATH."
)

// Generator produces a scene script for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt, scene string) (scriptgen.Outcome, error)
}

// Renderer writes and renders a scene script.
type Renderer interface {
	Run(ctx context.Context, req render.Request) (render.Result, error)
}

// Options are the per-run inputs.
type Options struct {
	Prompt     string
	ScriptPath string
	Scene      string
	Quality    string
	Preview    bool
	Silent     bool
}

// Report summarises a run for callers that need more than the printed
// stream. VideoPath is empty unless the video was found.
type Report struct {
	Outcome     scriptgen.Outcome
	Result      render.Result
	VideoPath   string
	GenerateErr error
	RenderErr   error
}

// Pipeline wires a Generator and a Renderer to a Printer.
type Pipeline struct {
	generator Generator
	renderer  Renderer
	printer   *output.Printer
	logger    logging.Logger
	environ   func() []string
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the component logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logging.OrNop(logger)
	}
}

// WithEnviron replaces the source of the base renderer environment.
func WithEnviron(environ func() []string) Option {
	return func(p *Pipeline) {
		if environ != nil {
			p.environ = environ
		}
	}
}

// New builds a Pipeline. A nil printer writes to stdout.
func New(generator Generator, renderer Renderer, printer *output.Printer, opts ...Option) *Pipeline {
	if printer == nil {
		printer = output.NewPrinter(os.Stdout)
	}
	p := &Pipeline{
		generator: generator,
		renderer:  renderer,
		printer:   printer,
		logger:    logging.NewComponentLogger("Pipeline"),
		environ:   os.Environ,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the whole flow. Domain failures are printed and reflected in
// the Report; Run itself never fails.
func (p *Pipeline) Run(ctx context.Context, opts Options) Report {
	var report Report

	p.printer.Status("Generating Manim script for prompt: '%s'...", opts.Prompt)
	outcome, err := p.generator.Generate(ctx, opts.Prompt, opts.Scene)
	if err != nil {
		report.GenerateErr = err
		p.logger.Warn("Script generation failed: %v", err)
		p.printer.Error("%s", describeGenerateError(err))
		p.printer.Info(NoScriptMessage)
		return report
	}
	report.Outcome = outcome
	if outcome.Kind == scriptgen.FallbackUsed || apperrors.IsDegraded(outcome.Reason) {
		p.printer.Warn("%s", describeFallback(outcome.Reason))
	}

	p.printer.Script(outcome.Script)

	if err := ctx.Err(); err != nil {
		report.RenderErr = err
		p.printer.Error("interrupted before rendering: %v", err)
		p.finish(report)
		return report
	}

	p.printer.Blank()
	p.printer.Status("Rendering animation with Manim...")
	result, err := p.renderer.Run(ctx, render.Request{
		Script:     outcome.Script,
		ScriptPath: opts.ScriptPath,
		Scene:      opts.Scene,
		Quality:    opts.Quality,
		Preview:    opts.Preview,
		Silent:     opts.Silent,
		Env:        render.InteractiveEnv(p.environ()),
	})
	report.Result = result
	report.RenderErr = err
	p.reportRender(opts, result, err)
	report.VideoPath = result.VideoPath

	p.finish(report)
	return report
}

func (p *Pipeline) reportRender(opts Options, result render.Result, err error) {
	if result.Command.Name != "" {
		p.printer.Info("Manim script saved to: %s", opts.ScriptPath)
		p.printer.Info("Running Manim: %s", result.Command)
	}

	switch {
	case err == nil:
		p.printer.Success("Manim rendering successful!")
		if result.Stdout != "" {
			p.printer.Section("Output from Manim", result.Stdout)
		}
		if result.VideoPath != "" {
			p.printer.Info("Video saved to: %s", result.VideoPath)
			return
		}
		p.printer.Warn("Could not automatically find video file. Check Manim output above or the '%s' directory.",
			filepath.Dir(filepath.Dir(result.PredictedPath)))
	case errors.Is(err, render.ErrRendererNotFound):
		p.printer.Error(RendererMissingHint)
	case errors.Is(err, render.ErrRenderFailed):
		p.printer.Error("Manim rendering failed with exit code %d:", result.ExitCode)
		p.printer.Section("STDOUT", result.Stdout)
		p.printer.Section("STDERR", result.Stderr)
	default:
		p.printer.Error("%v", err)
	}
}

func (p *Pipeline) finish(report Report) {
	p.printer.Blank()
	if report.VideoPath != "" {
		p.printer.Success(CompleteMessage, report.VideoPath)
		return
	}
	p.printer.Info(IncompleteMessage)
}

// describeFallback explains why the placeholder script is used and whether
// running again is likely to help.
func describeFallback(reason error) string {
	message := strings.TrimSuffix(apperrors.Describe(reason), ".") + ". Using a placeholder fallback script."
	cause := reason
	if apperrors.IsDegraded(reason) {
		cause = errors.Unwrap(reason)
	}
	switch {
	case apperrors.IsTransient(cause):
		return message + " The failure looks temporary; running again may succeed."
	case apperrors.IsPermanent(cause):
		return message + " Fix the configuration before running again."
	}
	return message
}

func describeGenerateError(err error) string {
	switch {
	case errors.Is(err, scriptgen.ErrClientUnavailable):
		return "no LLM client is available. Set ANTHROPIC_API_KEY and try again."
	case errors.Is(err, scriptgen.ErrTruncated):
		return "the response was truncated due to the token limit. Consider increasing llm.max_tokens or simplifying the prompt."
	case errors.Is(err, scriptgen.ErrEmptyResponse):
		return "the model response did not contain any text content."
	default:
		return err.Error()
	}
}
