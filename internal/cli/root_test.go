package cli

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapflow-posthog/internal/cli/config"
	"github.com/leapstack-labs/leapflow-posthog/internal/cli/output"
)

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	if cmd.Use != "leapflow-posthog" {
		t.Errorf("expected Use 'leapflow-posthog', got %q", cmd.Use)
	}
	if cmd.Version != Version {
		t.Errorf("expected Version %q, got %q", Version, cmd.Version)
	}
	if !strings.Contains(cmd.Short, "PostHog") {
		t.Errorf("Short should mention PostHog, got %q", cmd.Short)
	}
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	want := []string{
		"version", "init", "doctor", "send", "console", "connections",
		"spool", "relay", "watch", "flags", "providers", "docs", "completion",
	}

	have := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		have[sub.Name()] = true
	}

	for _, name := range want {
		if !have[name] {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := NewRootCmd()

	for _, name := range []string{
		"config", "env", "conn", "connections", "spool", "metastore",
		"transforms-dir", "docs-dir", "project-dir", "verbose", "output",
	} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected persistent flag --%s", name)
		}
	}
}

func TestNewRootCmd_VersionOutput(t *testing.T) {
	cmd := NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("--version failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "leapflow-posthog") {
		t.Errorf("version output missing binary name: %q", out)
	}
	if !strings.Contains(out, "3.0.0") {
		t.Errorf("version output missing version: %q", out)
	}
}

func TestGetConfig_Fallback(t *testing.T) {
	cfg := GetConfig(context.Background())

	if cfg == nil {
		t.Fatal("expected a default config, got nil")
	}
	if cfg.ConnID != config.DefaultConnID {
		t.Errorf("expected default conn id %q, got %q", config.DefaultConnID, cfg.ConnID)
	}
	if cfg.ConnectionsFile != config.DefaultConnectionsFile {
		t.Errorf("expected default connections file %q, got %q", config.DefaultConnectionsFile, cfg.ConnectionsFile)
	}
	if cfg.SpoolPath != config.DefaultSpoolFile {
		t.Errorf("expected default spool path %q, got %q", config.DefaultSpoolFile, cfg.SpoolPath)
	}
}

func TestGetConfig_FromContext(t *testing.T) {
	want := &config.Config{ConnID: "posthog_custom"}
	ctx := context.WithValue(context.Background(), configKey{}, want)

	if got := GetConfig(ctx); got != want {
		t.Errorf("expected config from context, got %+v", got)
	}
}

func TestGetRenderer_Fallback(t *testing.T) {
	r := GetRenderer(context.Background())

	if r == nil {
		t.Fatal("expected a default renderer, got nil")
	}
}

func TestGetRenderer_FromContext(t *testing.T) {
	want := output.NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, output.ModeJSON)
	ctx := context.WithValue(context.Background(), rendererKey{}, want)

	if got := GetRenderer(ctx); got != want {
		t.Error("expected renderer from context")
	}
}

func TestNewLogger_Levels(t *testing.T) {
	quiet := newLogger(false)
	if quiet.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("default logger should not log at info")
	}
	if !quiet.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("default logger should log at warn")
	}

	verbose := newLogger(true)
	if !verbose.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("verbose logger should log at debug")
	}
}

func TestNewCompletionCommand(t *testing.T) {
	cmd := NewCompletionCommand()

	if !strings.HasPrefix(cmd.Use, "completion") {
		t.Errorf("expected Use to start with 'completion', got %q", cmd.Use)
	}

	want := []string{"bash", "zsh", "fish", "powershell"}
	if len(cmd.ValidArgs) != len(want) {
		t.Fatalf("expected %d valid args, got %d", len(want), len(cmd.ValidArgs))
	}
	for i, shell := range want {
		if cmd.ValidArgs[i] != shell {
			t.Errorf("expected valid arg %q at %d, got %q", shell, i, cmd.ValidArgs[i])
		}
	}
}

func TestCompletionCommand_Bash(t *testing.T) {
	cmd := NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"completion", "bash"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("completion bash failed: %v", err)
	}
	if !strings.Contains(buf.String(), "leapflow-posthog") {
		t.Error("bash completion script should reference the binary name")
	}
}
