package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
	phclient "github.com/leapstack-labs/leapflow-posthog/pkg/posthog"
	phposthog "github.com/leapstack-labs/leapflow-posthog/pkg/providers/posthog"
)

// NewConsoleCommand creates the interactive console command.
func NewConsoleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive console for sending events",
		Long: `Start an interactive console against the configured connection.

Events queue in the client and deliver in batches. Use 'flush' to force
delivery, .stats to see session counters, and .quit to exit (pending
events are flushed on exit).`,
		Args: cobra.NoArgs,
		RunE: runConsole,
	}
	return cmd
}

// consoleSession holds the hook and per-session delivery counters. The
// counters are atomics since the client invokes the callback from its
// own goroutine.
type consoleSession struct {
	hook      *phposthog.Hook
	resolver  provider.ConnectionResolver
	out       io.Writer
	errOut    io.Writer
	enqueued  atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

// Success implements posthog.Callback.
func (s *consoleSession) Success(_ phclient.Message) { s.delivered.Add(1) }

// Failure implements posthog.Callback.
func (s *consoleSession) Failure(_ phclient.Message, _ error) { s.failed.Add(1) }

func runConsole(cmd *cobra.Command, _ []string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	session := &consoleSession{
		resolver: cmdCtx.Chain,
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
	}
	session.hook = phposthog.NewHook(provider.HookConfig{
		ConnID:   cmdCtx.Cfg.ConnID,
		Resolver: cmdCtx.Chain,
		Logger:   cmdCtx.Logger,
	}, phposthog.WithDebug(cmdCtx.Cfg.Verbose), phposthog.WithCallback(session))

	// Setup history file (project-local, next to the spool)
	historyFile := filepath.Join(filepath.Dir(cmdCtx.Cfg.SpoolPath), "console_history")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "posthog> ",
		HistoryFile:     historyFile,
		AutoComplete:    newConsoleCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize console: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(session.out, "LeapFlow PostHog Console (connection: %s)\n", session.hook.ConnID())
	_, _ = fmt.Fprintln(session.out, "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(session.out)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if handled := session.handleDotCommand(cmd.Context(), line); handled {
				if line == ".quit" || line == ".exit" {
					break
				}
				continue
			}
		}

		if err := session.handleEventLine(cmd.Context(), line); err != nil {
			_, _ = fmt.Fprintf(session.errOut, "Error: %v\n", err)
		}
	}

	if pending := session.pending(); pending > 0 {
		_, _ = fmt.Fprintf(session.out, "Flushing %d pending events...\n", pending)
	}
	if err := session.hook.Close(); err != nil {
		_, _ = fmt.Fprintf(session.errOut, "Error: %v\n", err)
	}
	return nil
}

func (s *consoleSession) pending() int64 {
	return s.enqueued.Load() - s.delivered.Load() - s.failed.Load()
}

// handleEventLine parses and executes an event verb. The grammar matches
// the hook method signatures: identifiers first, properties last.
func (s *consoleSession) handleEventLine(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	verb := strings.ToLower(parts[0])

	switch verb {
	case "capture":
		if len(parts) < 3 {
			return errors.New("usage: capture <distinct-id> <event> [key=value ...]")
		}
		props, err := parseKeyValues(parts[3:])
		if err != nil {
			return err
		}
		if err := s.hook.Capture(ctx, parts[1], parts[2], props); err != nil {
			return err
		}
		s.enqueued.Add(1)
		_, _ = fmt.Fprintf(s.out, "queued capture %q for %s\n", parts[2], parts[1])
		return nil

	case "identify":
		if len(parts) < 2 {
			return errors.New("usage: identify <distinct-id> [key=value ...]")
		}
		props, err := parseKeyValues(parts[2:])
		if err != nil {
			return err
		}
		if err := s.hook.Identify(ctx, parts[1], props); err != nil {
			return err
		}
		s.enqueued.Add(1)
		_, _ = fmt.Fprintf(s.out, "queued identify for %s\n", parts[1])
		return nil

	case "alias":
		if len(parts) != 3 {
			return errors.New("usage: alias <distinct-id> <alias>")
		}
		if err := s.hook.Alias(ctx, parts[1], parts[2]); err != nil {
			return err
		}
		s.enqueued.Add(1)
		_, _ = fmt.Fprintf(s.out, "queued alias %s -> %s\n", parts[1], parts[2])
		return nil

	case "group":
		if len(parts) < 3 {
			return errors.New("usage: group <type> <key> [key=value ...]")
		}
		props, err := parseKeyValues(parts[3:])
		if err != nil {
			return err
		}
		if err := s.hook.GroupIdentify(ctx, parts[1], parts[2], props); err != nil {
			return err
		}
		s.enqueued.Add(1)
		_, _ = fmt.Fprintf(s.out, "queued group identify %s/%s\n", parts[1], parts[2])
		return nil

	case "page":
		if len(parts) < 3 {
			return errors.New("usage: page <distinct-id> <url> [key=value ...]")
		}
		props, err := parseKeyValues(parts[3:])
		if err != nil {
			return err
		}
		if err := s.hook.Page(ctx, parts[1], parts[2], props); err != nil {
			return err
		}
		s.enqueued.Add(1)
		_, _ = fmt.Fprintf(s.out, "queued page view for %s\n", parts[1])
		return nil

	case "flush":
		if err := s.hook.Flush(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(s.out, "flushed (delivered=%d failed=%d)\n", s.delivered.Load(), s.failed.Load())
		return nil

	default:
		return fmt.Errorf("unknown command: %s (type .help for commands)", verb)
	}
}

func (s *consoleSession) handleDotCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printConsoleHelp(s.out)
		return true

	case ".conn":
		if err := s.printConnection(ctx); err != nil {
			_, _ = fmt.Fprintf(s.errOut, "Error: %v\n", err)
		}
		return true

	case ".flags":
		if err := s.printFlags(ctx); err != nil {
			_, _ = fmt.Fprintf(s.errOut, "Error: %v\n", err)
		}
		return true

	case ".stats":
		_, _ = fmt.Fprintf(s.out, "enqueued:  %d\n", s.enqueued.Load())
		_, _ = fmt.Fprintf(s.out, "delivered: %d\n", s.delivered.Load())
		_, _ = fmt.Fprintf(s.out, "failed:    %d\n", s.failed.Load())
		_, _ = fmt.Fprintf(s.out, "pending:   %d\n", s.pending())
		return true

	case ".clear":
		fmt.Print("\033[H\033[2J")
		return true

	default:
		_, _ = fmt.Fprintf(s.errOut, "Unknown command: %s (type .help for commands)\n", command)
		return true
	}
}

func (s *consoleSession) printConnection(ctx context.Context) error {
	conn, err := s.resolver.Resolve(ctx, s.hook.ConnID())
	if err != nil {
		return err
	}
	var extra phposthog.Extra
	if err := conn.DecodeExtra(&extra); err != nil {
		return err
	}
	endpoint := extra.Host
	if endpoint == "" {
		endpoint = phclient.DefaultEndpoint
	}
	_, _ = fmt.Fprintf(s.out, "connection:      %s\n", s.hook.ConnID())
	_, _ = fmt.Fprintf(s.out, "endpoint:        %s\n", endpoint)
	_, _ = fmt.Fprintf(s.out, "project_api_key: %s\n", maskKey(extra.ProjectAPIKey))
	if extra.PersonalAPIKey != "" {
		_, _ = fmt.Fprintf(s.out, "personal_api_key: %s\n", maskKey(extra.PersonalAPIKey))
	}
	return nil
}

func (s *consoleSession) printFlags(ctx context.Context) error {
	client, err := s.hook.Conn(ctx)
	if err != nil {
		return err
	}
	flags, err := client.FeatureFlags(ctx)
	if err != nil {
		return err
	}
	if len(flags) == 0 {
		_, _ = fmt.Fprintln(s.out, "no feature flags")
		return nil
	}
	for _, f := range flags {
		state := "inactive"
		if f.Active {
			state = "active"
		}
		_, _ = fmt.Fprintf(s.out, "%-10s %s\n", state, f.Key)
	}
	return nil
}

func printConsoleHelp(w io.Writer) {
	help := `
Events:
  capture <distinct-id> <event> [key=value ...]   Queue a capture event
  identify <distinct-id> [key=value ...]          Queue person properties
  alias <distinct-id> <alias>                     Queue an alias
  group <type> <key> [key=value ...]              Queue group properties
  page <distinct-id> <url> [key=value ...]        Queue a page view
  flush                                           Deliver queued events now

Commands:
  .help           Show this help message
  .conn           Show the active connection
  .flags          List feature flags (needs personal_api_key)
  .stats          Show session delivery counters
  .clear          Clear the screen
  .quit / .exit   Exit (flushes pending events)

Tips:
  - Property values parse as JSON when possible (count=3, beta=true)
  - Use arrow keys to navigate history
`
	_, _ = fmt.Fprintln(w, help)
}

// newConsoleCompleter creates a readline completer for event verbs and
// dot-commands.
func newConsoleCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("capture"),
		readline.PcItem("identify"),
		readline.PcItem("alias"),
		readline.PcItem("group"),
		readline.PcItem("page"),
		readline.PcItem("flush"),
		readline.PcItem(".help"),
		readline.PcItem(".conn"),
		readline.PcItem(".flags"),
		readline.PcItem(".stats"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
