package output

import (
	"bytes"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func newBufferRenderer(isTTY bool, mode Mode) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, isTTY, mode), out, errOut
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"text", ModeText},
		{"markdown", ModeMarkdown},
		{"json", ModeJSON},
		{"auto", ModeAuto},
		{"", ModeAuto},
		{"yaml", ModeAuto},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseMode(tt.in), "ParseMode(%q)", tt.in)
	}
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		name  string
		mode  Mode
		isTTY bool
		want  Mode
	}{
		{"auto on tty", ModeAuto, true, ModeText},
		{"auto piped", ModeAuto, false, ModeMarkdown},
		{"explicit text piped", ModeText, false, ModeText},
		{"explicit markdown on tty", ModeMarkdown, true, ModeMarkdown},
		{"explicit json on tty", ModeJSON, true, ModeJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newBufferRenderer(tt.isTTY, tt.mode)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestPrintlnAndPrintf(t *testing.T) {
	r, out, _ := newBufferRenderer(false, ModeMarkdown)
	r.Println("hello")
	r.Printf("%d events\n", 3)
	assert.Equal(t, "hello\n3 events\n", out.String())
}

func TestErrorAndWarningGoToErrWriter(t *testing.T) {
	r, out, errOut := newBufferRenderer(false, ModeMarkdown)
	r.Error("boom")
	r.Warning("careful")
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "boom")
	assert.Contains(t, errOut.String(), "careful")
}

func TestMarkdownModeEmitsNoANSI(t *testing.T) {
	r, out, errOut := newBufferRenderer(false, ModeMarkdown)
	r.Header(1, "Spool")
	r.Success("delivered")
	r.Muted("3 pending")
	r.Error("nope")
	r.StatusLine("connections.yaml", "success", "written")
	assert.False(t, ansiPattern.MatchString(out.String()), "stdout carries ANSI escapes: %q", out.String())
	assert.False(t, ansiPattern.MatchString(errOut.String()), "stderr carries ANSI escapes: %q", errOut.String())
}

func TestStatusLine(t *testing.T) {
	r, out, _ := newBufferRenderer(false, ModeMarkdown)
	r.StatusLine("leapflow.yaml", "success", "")
	r.StatusLine("connections.yaml", "failed", "exists")
	got := out.String()
	assert.Contains(t, got, "+ leapflow.yaml")
	assert.Contains(t, got, "x connections.yaml")
	assert.Contains(t, got, "exists")
}

func TestJSON(t *testing.T) {
	r, out, _ := newBufferRenderer(false, ModeJSON)
	require.NoError(t, r.JSON(map[string]int{"pending": 2}))

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, 2, decoded["pending"])
	assert.Contains(t, out.String(), "\n", "output should be indented and newline terminated")
}

func TestFormatHeader(t *testing.T) {
	assert.Equal(t, "# Spool", FormatHeader(1, "Spool"))
	assert.Equal(t, "## Batches", FormatHeader(2, "Batches"))
	assert.Equal(t, "# Clamped", FormatHeader(0, "Clamped"))
	assert.Equal(t, "###### Deep", FormatHeader(9, "Deep"))
}

func TestFormatKeyValue(t *testing.T) {
	assert.Equal(t, "**Pending**: 4", FormatKeyValue("Pending", "4"))
}

func TestFormatCodeBlock(t *testing.T) {
	got := FormatCodeBlock("sh", "leapflow-posthog relay\n")
	assert.Equal(t, "```sh\nleapflow-posthog relay\n```", got)
}

func TestIsTTY(t *testing.T) {
	r, _, _ := newBufferRenderer(true, ModeAuto)
	assert.True(t, r.IsTTY())
	r, _, _ = newBufferRenderer(false, ModeAuto)
	assert.False(t, r.IsTTY())
}

func TestWriterExposesOut(t *testing.T) {
	r, out, errOut := newBufferRenderer(false, ModeJSON)
	_, err := r.Writer().Write([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", out.String())
	_, err = r.ErrWriter().Write([]byte("err"))
	require.NoError(t, err)
	assert.Equal(t, "err", errOut.String())
}
