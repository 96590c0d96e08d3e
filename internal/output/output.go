// Package output provides consistent CLI status/progress formatting for
// the amanmcp command-line tool: plain status lines, icon prefixes,
// carriage-return progress bars, no color.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Writer formats status, warning, error, and progress output for one
// cobra command invocation.
type Writer struct {
	out io.Writer
}

// New creates a Writer over out (typically cmd.OutOrStdout()).
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints an icon-prefixed status line. An empty icon indents the
// message to align with icon-prefixed lines above it.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf formats and prints a status line.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a checkmark-prefixed line.
func (w *Writer) Success(msg string) { w.Status("✓", msg) }

// Successf formats and prints a checkmark-prefixed line.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning-prefixed line.
func (w *Writer) Warning(msg string) { w.Status("!", msg) }

// Warningf formats and prints a warning-prefixed line.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error-prefixed line.
func (w *Writer) Error(msg string) { w.Status("x", msg) }

// Errorf formats and prints an error-prefixed line.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints a single blank line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Progress renders an in-place text progress bar via carriage return.
// Emits a trailing newline once current reaches total.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}
	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, 30)
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", bar, pct, msg)
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// ProgressDone terminates an in-progress bar with a newline.
func (w *Writer) ProgressDone() {
	_, _ = fmt.Fprintln(w.out)
}

func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
