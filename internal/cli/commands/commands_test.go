// Package commands_test provides tests for CLI command creation.
package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSendCommand(t *testing.T) {
	cmd := NewSendCommand()

	assert.Equal(t, "send", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")

	// Verify event subcommands exist
	subs := map[string]bool{}
	for _, sub := range cmd.Commands() {
		subs[sub.Name()] = true
	}
	for _, name := range []string{"capture", "identify", "alias", "group", "page"} {
		assert.True(t, subs[name], "send should have %q subcommand", name)
	}
}

func TestNewSendCaptureCommand(t *testing.T) {
	cmd := newSendCaptureCommand()

	assert.Equal(t, "capture <event>", cmd.Use)
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	flags := []string{"distinct-id", "prop", "timestamp"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewConnectionsCommand(t *testing.T) {
	cmd := NewConnectionsCommand()

	assert.Equal(t, "connections", cmd.Use)
	assert.Contains(t, cmd.Aliases, "conns")

	subs := map[string]bool{}
	for _, sub := range cmd.Commands() {
		subs[sub.Name()] = true
	}
	for _, name := range []string{"list", "get", "test", "add", "delete", "export"} {
		assert.True(t, subs[name], "connections should have %q subcommand", name)
	}
}

func TestNewSpoolCommand(t *testing.T) {
	cmd := NewSpoolCommand()

	assert.Equal(t, "spool", cmd.Use)

	subs := map[string]bool{}
	for _, sub := range cmd.Commands() {
		subs[sub.Name()] = true
	}
	for _, name := range []string{"list", "stats", "replay", "export", "purge"} {
		assert.True(t, subs[name], "spool should have %q subcommand", name)
	}
}

func TestNewRelayCommand(t *testing.T) {
	cmd := NewRelayCommand()

	assert.Equal(t, "relay", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")

	flags := []string{"port", "watch", "open"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewFlagsCommand(t *testing.T) {
	cmd := NewFlagsCommand()

	assert.Equal(t, "flags", cmd.Use)

	subs := map[string]bool{}
	for _, sub := range cmd.Commands() {
		subs[sub.Name()] = true
	}
	assert.True(t, subs["list"], "flags should have list subcommand")
	assert.True(t, subs["check"], "flags should have check subcommand")
}

func TestNewConsoleCommand(t *testing.T) {
	cmd := NewConsoleCommand()

	assert.Equal(t, "console", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
}

func TestNewWatchCommand(t *testing.T) {
	cmd := NewWatchCommand()

	assert.Equal(t, "watch", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
}

func TestNewProvidersCommand(t *testing.T) {
	cmd := NewProvidersCommand()

	assert.Equal(t, "providers", cmd.Use)

	subs := map[string]bool{}
	for _, sub := range cmd.Commands() {
		subs[sub.Name()] = true
	}
	assert.True(t, subs["list"], "providers should have list subcommand")
	assert.True(t, subs["info"], "providers should have info subcommand")
}

func TestNewDocsCommand(t *testing.T) {
	cmd := NewDocsCommand()

	assert.Equal(t, "docs", cmd.Use)

	subs := map[string]bool{}
	for _, sub := range cmd.Commands() {
		subs[sub.Name()] = true
	}
	for _, name := range []string{"build", "serve", "verify"} {
		assert.True(t, subs[name], "docs should have %q subcommand", name)
	}
}

func TestNewDoctorCommand(t *testing.T) {
	cmd := NewDoctorCommand()

	assert.Equal(t, "doctor", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")

	flags := []string{"format", "ping"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}
