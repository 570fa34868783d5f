package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunMissingPromptIsUsageError(t *testing.T) {
	cfg := writeConfig(t, "llm:\n  provider: mock\n")
	code, _, stderr := runCLI(t, "--config", cfg)
	if code != exitCodeUsage {
		t.Fatalf("exit code = %d, want %d (stderr=%q)", code, exitCodeUsage, stderr)
	}
	if !strings.Contains(stderr, "a prompt is required") {
		t.Fatalf("unexpected stderr %q", stderr)
	}
}

func TestRunInvalidQualityIsUsageError(t *testing.T) {
	cfg := writeConfig(t, "llm:\n  provider: mock\n")
	code, _, stderr := runCLI(t, "--config", cfg, "--quality", "z", "--prompt", "x")
	if code != exitCodeUsage {
		t.Fatalf("exit code = %d, want %d (stderr=%q)", code, exitCodeUsage, stderr)
	}
}

func TestRunUnknownFlagIsUsageError(t *testing.T) {
	code, _, stderr := runCLI(t, "--no-such-flag")
	if code != exitCodeUsage {
		t.Fatalf("exit code = %d, want %d (stderr=%q)", code, exitCodeUsage, stderr)
	}
	if !strings.Contains(stderr, "--help") {
		t.Fatalf("expected usage hint, got %q", stderr)
	}
}

func TestRunMissingConfigFileFails(t *testing.T) {
	code, _, _ := runCLI(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "--prompt", "x")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestRunRendererMissingStillExitsZero(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, "llm:\n  provider: mock\nrender:\n  binary: animgen-test-missing-renderer\n")
	script := filepath.Join(dir, "scene.py")

	code, stdout, stderr := runCLI(t, "--config", cfg, "--output_script", script, "a", "green", "triangle")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr=%q)", code, stderr)
	}
	for _, want := range []string{
		"Generating Manim script for prompt: 'a green triangle'...",
		"--- Generated Manim Script ---",
		"class PromptAnimationScene(Scene):",
		"Rendering animation with Manim...",
		"Manim command not found",
		"Process completed with errors or video path not found.",
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if _, err := os.Stat(script); err != nil {
		t.Fatalf("script was not written: %v", err)
	}
}

func TestRunVersion(t *testing.T) {
	code, stdout, _ := runCLI(t, "--version")
	if code != 0 || !strings.Contains(stdout, "animgen version") {
		t.Fatalf("code=%d stdout=%q", code, stdout)
	}
}

func TestDetectVersionPrefersEnv(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "ANIMGEN_VERSION" {
			return " 1.2.3 ", true
		}
		return "", false
	}
	if got := detectVersion(lookup); got != "1.2.3" {
		t.Fatalf("detectVersion = %q", got)
	}
}

func TestExitCodeErrorUnwrap(t *testing.T) {
	var nilErr *ExitCodeError
	if nilErr.Error() != "" || nilErr.Unwrap() != nil {
		t.Fatal("nil ExitCodeError should be inert")
	}
}
