// Package output renders command results as styled text, markdown or
// JSON. Commands pick the concrete renderer behavior through a Mode;
// ModeAuto resolves to text on a TTY and markdown when piped.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Mode selects how a command renders its results.
type Mode string

const (
	// ModeAuto picks text on a TTY and markdown otherwise.
	ModeAuto Mode = "auto"
	// ModeText renders styled terminal output.
	ModeText Mode = "text"
	// ModeMarkdown renders plain markdown suitable for piping.
	ModeMarkdown Mode = "markdown"
	// ModeJSON renders machine readable JSON.
	ModeJSON Mode = "json"
)

// ParseMode normalizes a config or flag string into a Mode. Unknown
// values fall back to ModeAuto.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeText, ModeMarkdown, ModeJSON:
		return Mode(s)
	default:
		return ModeAuto
	}
}

// Renderer writes command output in the selected mode. Normal output
// goes to out, errors and warnings to errOut.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	isTTY  bool
	styles Styles
}

// NewRenderer creates a renderer, detecting TTY from the out writer.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	isTTY := false
	if f, ok := out.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}
	return NewRendererWithTTY(out, errOut, isTTY, mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY flag.
// Tests use it to pin the effective mode regardless of where output
// actually goes.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	r := &Renderer{out: out, errOut: errOut, mode: mode, isTTY: isTTY}
	r.styles = newStyles(r.EffectiveMode() == ModeText)
	return r
}

// EffectiveMode resolves ModeAuto against the TTY state.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode == ModeText || r.mode == ModeMarkdown || r.mode == ModeJSON {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Writer returns the underlying output writer for callers that stream
// their own encoding, such as JSON encoders or table writers.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrWriter returns the error output writer.
func (r *Renderer) ErrWriter() io.Writer { return r.errOut }

// Styles returns the style set matching the effective mode. Outside
// text mode every style is a no-op so piped output stays clean.
func (r *Renderer) Styles() Styles { return r.styles }

// Println writes a line to the output writer.
func (r *Renderer) Println(s string) {
	_, _ = fmt.Fprintln(r.out, s)
}

// Printf writes formatted output to the output writer.
func (r *Renderer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

// Header writes a styled section header in text mode.
func (r *Renderer) Header(level int, text string) {
	switch level {
	case 1:
		r.Println(r.styles.Header1.Render(text))
	default:
		r.Println(r.styles.Header2.Render(text))
	}
}

// Success writes a success line to the output writer.
func (r *Renderer) Success(msg string) {
	r.Println(r.styles.Success.Render(msg))
}

// Warning writes a warning line to the error writer.
func (r *Renderer) Warning(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render(msg))
}

// Error writes an error line to the error writer.
func (r *Renderer) Error(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render(msg))
}

// Muted writes a de-emphasized line to the output writer.
func (r *Renderer) Muted(msg string) {
	r.Println(r.styles.Muted.Render(msg))
}

// StatusLine writes a "  ✓ name  detail" line. Status is "success" or
// "failed"; anything else renders an unmarked line.
func (r *Renderer) StatusLine(name, status, detail string) {
	var icon string
	switch status {
	case "success":
		icon = r.styles.StatusSuccess.String()
	case "failed":
		icon = r.styles.StatusFailed.String()
	default:
		icon = " "
	}
	if detail != "" {
		r.Printf("  %s %s  %s\n", icon, name, r.styles.Muted.Render(detail))
		return
	}
	r.Printf("  %s %s\n", icon, name)
}

// JSON writes v to the output writer as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
