package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "animgen/internal/errors"
	"animgen/internal/llm"
	"animgen/internal/logging"
	"animgen/internal/output"
	"animgen/internal/render"
	"animgen/internal/scriptgen"
	"animgen/internal/tokenutil"
)

type scriptedRunner struct {
	out      render.RunOutput
	err      error
	commands []render.Command
}

func (r *scriptedRunner) Run(_ context.Context, cmd render.Command) (render.RunOutput, error) {
	r.commands = append(r.commands, cmd)
	return r.out, r.err
}

type harness struct {
	client   *llm.MockClient
	runner   *scriptedRunner
	existing map[string]bool
	out      bytes.Buffer
	pipeline *Pipeline
	opts     Options
}

func newHarness(t *testing.T, client llm.Client) *harness {
	t.Helper()
	h := &harness{runner: &scriptedRunner{}, existing: map[string]bool{}}
	if mock, ok := client.(*llm.MockClient); ok {
		h.client = mock
	}

	gen, err := scriptgen.New(client, scriptgen.WithLogger(logging.Nop()), scriptgen.WithTokenCounter(tokenutil.EstimateFast))
	require.NoError(t, err)
	stat := func(path string) (os.FileInfo, error) {
		if h.existing[path] {
			return os.Stat(t.TempDir())
		}
		return nil, fs.ErrNotExist
	}
	inv := render.NewInvoker(render.WithRunner(h.runner), render.WithStat(stat), render.WithLogger(logging.Nop()))

	h.pipeline = New(gen, inv, output.NewPrinter(&h.out),
		WithLogger(logging.Nop()),
		WithEnviron(func() []string { return []string{"PATH=/usr/bin"} }),
	)
	h.opts = Options{
		Prompt:     "a blue circle",
		ScriptPath: filepath.Join(t.TempDir(), "generated_manim_scene.py"),
		Scene:      "PromptAnimationScene",
		Quality:    "l",
	}
	return h
}

func lastLine(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	return lines[len(lines)-1]
}

func TestRunHappyPath(t *testing.T) {
	client := llm.NewMockClient("test-model")
	client.Enqueue(&llm.CompletionResponse{
		Content:    "```python\nfrom manim import *\n\nclass PromptAnimationScene(Scene):\n    def construct(self):\n        self.play(Create(Circle(color=BLUE)))\n```",
		HasText:    true,
		StopReason: llm.StopReasonEndTurn,
	}, nil)
	h := newHarness(t, client)
	predicted := filepath.Join("media", "videos", "generated_manim_scene", "480p15", "PromptAnimationScene.mp4")
	h.existing[predicted] = true

	report := h.pipeline.Run(context.Background(), h.opts)

	require.NoError(t, report.GenerateErr)
	require.NoError(t, report.RenderErr)
	abs, err := filepath.Abs(predicted)
	require.NoError(t, err)
	assert.Equal(t, abs, report.VideoPath)
	assert.Equal(t, scriptgen.Generated, report.Outcome.Kind)

	written, err := os.ReadFile(h.opts.ScriptPath)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(written), "```"))
	assert.True(t, strings.HasPrefix(string(written), "from manim import *"))

	require.Len(t, h.runner.commands, 1)
	cmd := h.runner.commands[0]
	assert.Equal(t, []string{"-ql", h.opts.ScriptPath, "PromptAnimationScene"}, cmd.Args)
	assert.Contains(t, cmd.Env, "MANIM_INTERACTIVE=True")

	text := h.out.String()
	assert.Contains(t, text, "Generating Manim script for prompt: 'a blue circle'...")
	assert.Contains(t, text, "--- Generated Manim Script ---\nfrom manim import *")
	assert.Contains(t, text, "--- End of Script ---")
	assert.Contains(t, text, "Rendering animation with Manim...")
	assert.Equal(t, fmt.Sprintf(CompleteMessage, abs), lastLine(text))
}

func TestRunFallsBackWhenAPIFails(t *testing.T) {
	client := llm.NewMockClient("test-model")
	client.Enqueue(nil, errors.New("status 500: upstream exploded"))
	h := newHarness(t, client)
	h.opts.Preview = true
	h.opts.Silent = true

	report := h.pipeline.Run(context.Background(), h.opts)

	assert.Equal(t, scriptgen.FallbackUsed, report.Outcome.Kind)
	assert.True(t, apperrors.IsDegraded(report.Outcome.Reason))
	want := "\nfrom manim import *\nimport numpy as np\n\nclass PromptAnimationScene(Scene):\n" +
		"    def construct(self):\n" +
		"        # Script generated based on prompt: \"a blue circle\" (Anthropic API Call Failed)\n" +
		"        text = Text(\"Anthropic API call failed. This is a fallback script.\")\n" +
		"        self.play(Write(text))\n" +
		"        self.wait(2)\n"
	written, err := os.ReadFile(h.opts.ScriptPath)
	require.NoError(t, err)
	assert.Equal(t, want, string(written))

	require.Len(t, h.runner.commands, 1, "the fallback script is still rendered")
	args := h.runner.commands[0].Args
	assert.Contains(t, args, "-p")
	assert.Contains(t, args, "--progress_bar")
	assert.Contains(t, h.out.String(), "Warning: status 500: upstream exploded. Using a placeholder fallback script. The failure looks temporary; running again may succeed.")
}

func TestRunFallbackWordingForPermanentFailure(t *testing.T) {
	client := llm.NewMockClient("test-model")
	client.Enqueue(nil, &apperrors.PermanentError{Err: errors.New("status 404: model not found"), StatusCode: 404})
	h := newHarness(t, client)

	h.pipeline.Run(context.Background(), h.opts)

	text := h.out.String()
	assert.Contains(t, text, "Using a placeholder fallback script. Fix the configuration before running again.")
	assert.NotContains(t, text, "temporary")
}

func TestRunDoesNotRenderScriptEmptyAfterStripping(t *testing.T) {
	client := llm.NewMockClient("test-model")
	client.Enqueue(&llm.CompletionResponse{Content: "```python\n```", HasText: true, StopReason: llm.StopReasonEndTurn}, nil)
	h := newHarness(t, client)

	report := h.pipeline.Run(context.Background(), h.opts)

	require.ErrorIs(t, report.GenerateErr, scriptgen.ErrEmptyResponse)
	assert.Empty(t, h.runner.commands)
	_, err := os.Stat(h.opts.ScriptPath)
	assert.True(t, errors.Is(err, fs.ErrNotExist), "no script file is written")
	assert.Equal(t, NoScriptMessage, lastLine(h.out.String()))
}

func TestRunReportsRendererFailure(t *testing.T) {
	h := newHarness(t, llm.NewMockClient("test-model"))
	h.runner.out = render.RunOutput{Stdout: "Manim Community v0.18", Stderr: "NameError: name 'Circl' is not defined", ExitCode: 1}

	report := h.pipeline.Run(context.Background(), h.opts)

	require.ErrorIs(t, report.RenderErr, render.ErrRenderFailed)
	assert.Empty(t, report.VideoPath)
	text := h.out.String()
	assert.Contains(t, text, "Error: Manim rendering failed with exit code 1:")
	assert.Contains(t, text, "STDOUT:\nManim Community v0.18\n")
	assert.Contains(t, text, "STDERR:\nNameError: name 'Circl' is not defined\n")
	assert.Equal(t, IncompleteMessage, lastLine(text))
}

func TestRunVideoNotFound(t *testing.T) {
	h := newHarness(t, llm.NewMockClient("test-model"))
	h.opts.Quality = "h"

	report := h.pipeline.Run(context.Background(), h.opts)

	require.NoError(t, report.RenderErr)
	assert.True(t, report.Result.Succeeded)
	assert.Empty(t, report.VideoPath)
	text := h.out.String()
	assert.Contains(t, text, "Manim rendering successful!")
	assert.Contains(t, text, "Could not automatically find video file")
	assert.Contains(t, text, filepath.Join("media", "videos", "generated_manim_scene"))
	assert.Equal(t, IncompleteMessage, lastLine(text))
}

func TestRunRendererMissing(t *testing.T) {
	h := newHarness(t, llm.NewMockClient("test-model"))
	h.runner.err = &exec.Error{Name: "manim", Err: exec.ErrNotFound}

	report := h.pipeline.Run(context.Background(), h.opts)

	require.ErrorIs(t, report.RenderErr, render.ErrRendererNotFound)
	assert.Contains(t, h.out.String(), "Error: "+RendererMissingHint)
	assert.Equal(t, IncompleteMessage, lastLine(h.out.String()))
}

func TestRunWithoutClientStopsBeforeRendering(t *testing.T) {
	h := newHarness(t, nil)

	report := h.pipeline.Run(context.Background(), h.opts)

	require.ErrorIs(t, report.GenerateErr, scriptgen.ErrClientUnavailable)
	assert.Empty(t, h.runner.commands)
	_, err := os.Stat(h.opts.ScriptPath)
	assert.True(t, errors.Is(err, fs.ErrNotExist), "no script file is written")
	assert.Equal(t, NoScriptMessage, lastLine(h.out.String()))
}

func TestRunTruncatedResponse(t *testing.T) {
	client := llm.NewMockClient("test-model")
	client.Enqueue(&llm.CompletionResponse{Content: "from manim import *", HasText: true, StopReason: llm.StopReasonMaxTokens}, nil)
	h := newHarness(t, client)

	report := h.pipeline.Run(context.Background(), h.opts)

	require.ErrorIs(t, report.GenerateErr, scriptgen.ErrTruncated)
	assert.Contains(t, h.out.String(), "truncated due to the token limit")
	assert.Empty(t, h.runner.commands)
}

func TestRunCancelledBeforeRendering(t *testing.T) {
	h := newHarness(t, llm.NewMockClient("test-model"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := h.pipeline.Run(ctx, h.opts)

	assert.Equal(t, scriptgen.FallbackUsed, report.Outcome.Kind, "a cancelled request is a client error")
	assert.ErrorIs(t, report.RenderErr, context.Canceled)
	assert.Empty(t, h.runner.commands)
	assert.Equal(t, IncompleteMessage, lastLine(h.out.String()))
}
