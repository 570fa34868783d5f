package render

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// Command is a fully resolved renderer invocation. A nil Env inherits the
// current process environment.
type Command struct {
	Name string
	Args []string
	Env  []string
	Dir  string
}

// String renders the command line for display, quoting arguments that
// contain whitespace or quotes.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quoteArg(c.Name))
	for _, arg := range c.Args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\n'\"\\$") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// RunOutput is what a finished process produced.
type RunOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner starts a process and waits for it. A process that ran and
// exited non-zero is reported through RunOutput.ExitCode with a nil error;
// the error is reserved for processes that could not be run at all.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (RunOutput, error)
}

// ExecRunner runs commands with os/exec, capturing stdout and stderr.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, cmd Command) (RunOutput, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Env = cmd.Env
	c.Dir = cmd.Dir
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	out := RunOutput{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}
	return out, err
}
