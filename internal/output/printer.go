// Package output writes the user-facing progress stream of a run.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"golang.org/x/term"
)

const defaultWidth = 100

// MarkdownRenderer renders markdown for terminal display.
type MarkdownRenderer interface {
	Render(string) (string, error)
}

var (
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
)

// Printer writes progress lines, the generated script and renderer output.
// When the destination is not a terminal everything is written as plain
// text so the stream can be piped or captured.
type Printer struct {
	out    io.Writer
	styled bool
	md     MarkdownRenderer
}

// Option customises a Printer.
type Option func(*Printer)

// WithStyle forces styling on or off instead of detecting a terminal.
func WithStyle(styled bool) Option {
	return func(p *Printer) {
		p.styled = styled
	}
}

// WithMarkdownRenderer supplies the renderer used for the script listing
// when styling is on.
func WithMarkdownRenderer(md MarkdownRenderer) Option {
	return func(p *Printer) {
		p.md = md
	}
}

// NewPrinter returns a Printer writing to out (os.Stdout when nil).
func NewPrinter(out io.Writer, opts ...Option) *Printer {
	if out == nil {
		out = os.Stdout
	}
	p := &Printer{out: out, styled: IsTerminal(out)}
	for _, opt := range opts {
		opt(p)
	}
	if p.styled && p.md == nil {
		if md := buildMarkdownRenderer(detectWidth(out)); md != nil {
			p.md = md
		}
	}
	return p
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

func detectWidth(w io.Writer) int {
	file, ok := w.(*os.File)
	if !ok {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(file.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

func buildMarkdownRenderer(width int) MarkdownRenderer {
	wrap := width - 4
	if wrap < 40 {
		wrap = 40
	}
	options := []glamour.TermRendererOption{
		glamour.WithWordWrap(wrap),
		glamour.WithPreservedNewLines(),
	}
	if value, ok := os.LookupEnv("GLAMOUR_STYLE"); ok && value != "" {
		options = append(options, glamour.WithEnvironmentConfig())
	} else {
		options = append(options, glamour.WithAutoStyle())
	}
	renderer, err := glamour.NewTermRenderer(options...)
	if err != nil {
		return nil
	}
	return renderer
}

func (p *Printer) paint(fn func(...any) string, text string) string {
	if !p.styled {
		return text
	}
	return fn(text)
}

func (p *Printer) writeln(text string) {
	fmt.Fprintln(p.out, text)
}

// Blank writes an empty line.
func (p *Printer) Blank() {
	p.writeln("")
}

// Status writes a progress line.
func (p *Printer) Status(format string, args ...any) {
	p.writeln(p.paint(cyan, fmt.Sprintf(format, args...)))
}

// Info writes an unstyled line.
func (p *Printer) Info(format string, args ...any) {
	p.writeln(fmt.Sprintf(format, args...))
}

// Success writes a line reporting that something worked.
func (p *Printer) Success(format string, args ...any) {
	p.writeln(p.paint(green, fmt.Sprintf(format, args...)))
}

// Warn writes a warning line.
func (p *Printer) Warn(format string, args ...any) {
	p.writeln(p.paint(yellow, "Warning: "+fmt.Sprintf(format, args...)))
}

// Error writes an error line.
func (p *Printer) Error(format string, args ...any) {
	p.writeln(p.paint(red, "Error: "+fmt.Sprintf(format, args...)))
}

// Header writes a "--- title ---" separator.
func (p *Printer) Header(title string) {
	text := "--- " + title + " ---"
	if p.styled {
		text = headerStyle.Render(text)
	}
	p.writeln(text)
}

// Script writes the generated script between header and footer markers.
// With styling on the script is rendered as a highlighted Python block.
func (p *Printer) Script(script string) {
	p.Blank()
	p.Header("Generated Manim Script")
	p.writeln(p.renderCode(script))
	p.Header("End of Script")
}

func (p *Printer) renderCode(script string) string {
	if !p.styled || p.md == nil {
		return script
	}
	rendered, err := p.md.Render("```python\n" + script + "\n```\n")
	if err != nil {
		return script
	}
	return strings.TrimRight(rendered, "\n")
}

// Section writes a "label:" line followed by body, used for captured
// process output.
func (p *Printer) Section(label, body string) {
	p.writeln(p.paint(cyan, label+":"))
	p.writeln(strings.TrimRight(body, "\n"))
}
