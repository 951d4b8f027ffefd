package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/leapflow-posthog/internal/cli/output"
	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
	phclient "github.com/leapstack-labs/leapflow-posthog/pkg/posthog"
	phposthog "github.com/leapstack-labs/leapflow-posthog/pkg/providers/posthog"
	"github.com/spf13/cobra"
)

// SendOutput is the JSON output for send subcommands.
type SendOutput struct {
	Type       string         `json:"type"`
	Event      string         `json:"event,omitempty"`
	DistinctID string         `json:"distinct_id,omitempty"`
	ConnID     string         `json:"conn_id"`
	Properties map[string]any `json:"properties,omitempty"`
}

// NewSendCommand creates the send command and its event subcommands.
func NewSendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a one-off event to PostHog",
		Long: `Send a single event through the configured connection.

Each subcommand maps to one PostHog message type. The event is queued,
flushed and its delivery outcome reported before the command returns,
so failures surface immediately instead of landing in the spool.`,
		Example: `  # Track an event with properties
  leapflow-posthog send capture signed_up -d user-1 -p plan=pro -p seats=5

  # Set person properties
  leapflow-posthog send identify -d user-1 -s name=Ada -s role=admin

  # Link two distinct IDs
  leapflow-posthog send alias -d anon-42 --alias user-1

  # Set group properties
  leapflow-posthog send group --type company --key acme -s tier=enterprise

  # Record a pageview
  leapflow-posthog send page -d user-1 --url https://example.com/pricing`,
	}

	cmd.AddCommand(newSendCaptureCommand())
	cmd.AddCommand(newSendIdentifyCommand())
	cmd.AddCommand(newSendAliasCommand())
	cmd.AddCommand(newSendGroupCommand())
	cmd.AddCommand(newSendPageCommand())

	return cmd
}

func newSendCaptureCommand() *cobra.Command {
	var distinctID, timestamp string
	var props []string

	cmd := &cobra.Command{
		Use:   "capture <event>",
		Short: "Track an event for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			properties, err := parseKeyValues(props)
			if err != nil {
				return err
			}
			ts, err := parseTimestamp(timestamp)
			if err != nil {
				return err
			}
			msg := phclient.Capture{
				DistinctID: distinctID,
				Event:      args[0],
				Properties: phclient.Properties(properties),
				Timestamp:  ts,
			}
			return runSend(cmd, msg, &SendOutput{
				Type:       "capture",
				Event:      args[0],
				DistinctID: distinctID,
				Properties: properties,
			})
		},
	}

	cmd.Flags().StringVarP(&distinctID, "distinct-id", "d", "", "User the event belongs to")
	cmd.Flags().StringArrayVarP(&props, "prop", "p", nil, "Event property as key=value (repeatable)")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Event time as RFC3339 (default now)")
	_ = cmd.MarkFlagRequired("distinct-id")

	return cmd
}

func newSendIdentifyCommand() *cobra.Command {
	var distinctID string
	var set []string

	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Set person properties for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			properties, err := parseKeyValues(set)
			if err != nil {
				return err
			}
			msg := phclient.Identify{
				DistinctID: distinctID,
				Properties: phclient.Properties(properties),
			}
			return runSend(cmd, msg, &SendOutput{
				Type:       "identify",
				DistinctID: distinctID,
				Properties: properties,
			})
		},
	}

	cmd.Flags().StringVarP(&distinctID, "distinct-id", "d", "", "User to identify")
	cmd.Flags().StringArrayVarP(&set, "set", "s", nil, "Person property as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("distinct-id")

	return cmd
}

func newSendAliasCommand() *cobra.Command {
	var distinctID, alias string

	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Link a new distinct ID to a known one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			msg := phclient.Alias{
				DistinctID: distinctID,
				Alias:      alias,
			}
			return runSend(cmd, msg, &SendOutput{
				Type:       "alias",
				DistinctID: distinctID,
				Properties: map[string]any{"alias": alias},
			})
		},
	}

	cmd.Flags().StringVarP(&distinctID, "distinct-id", "d", "", "Previous, already known ID")
	cmd.Flags().StringVar(&alias, "alias", "", "New ID to associate with it")
	_ = cmd.MarkFlagRequired("distinct-id")
	_ = cmd.MarkFlagRequired("alias")

	return cmd
}

func newSendGroupCommand() *cobra.Command {
	var groupType, groupKey string
	var set []string

	cmd := &cobra.Command{
		Use:   "group",
		Short: "Set properties on a group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			properties, err := parseKeyValues(set)
			if err != nil {
				return err
			}
			msg := phclient.GroupIdentify{
				Type:       groupType,
				Key:        groupKey,
				Properties: phclient.Properties(properties),
			}
			return runSend(cmd, msg, &SendOutput{
				Type:       "group",
				Event:      fmt.Sprintf("%s:%s", groupType, groupKey),
				Properties: properties,
			})
		},
	}

	cmd.Flags().StringVar(&groupType, "type", "", "Group type, e.g. company")
	cmd.Flags().StringVar(&groupKey, "key", "", "Group key, e.g. acme")
	cmd.Flags().StringArrayVarP(&set, "set", "s", nil, "Group property as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func newSendPageCommand() *cobra.Command {
	var distinctID, url string
	var props []string

	cmd := &cobra.Command{
		Use:   "page",
		Short: "Record a pageview for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			properties, err := parseKeyValues(props)
			if err != nil {
				return err
			}
			msg := phclient.Page{
				DistinctID: distinctID,
				URL:        url,
				Properties: phclient.Properties(properties),
			}
			return runSend(cmd, msg, &SendOutput{
				Type:       "page",
				Event:      url,
				DistinctID: distinctID,
				Properties: properties,
			})
		},
	}

	cmd.Flags().StringVarP(&distinctID, "distinct-id", "d", "", "User the pageview belongs to")
	cmd.Flags().StringVar(&url, "url", "", "Page URL")
	cmd.Flags().StringArrayVarP(&props, "prop", "p", nil, "Event property as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("distinct-id")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

// runSend queues one message, flushes it and renders the outcome.
func runSend(cmd *cobra.Command, msg phclient.Message, result *SendOutput) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	hook := phposthog.NewHook(provider.HookConfig{
		ConnID:   cmdCtx.Cfg.ConnID,
		Resolver: cmdCtx.Chain,
		Logger:   cmdCtx.Logger,
	}, phposthog.WithDebug(cmdCtx.Cfg.Verbose))
	defer func() { _ = hook.Close() }()

	result.ConnID = hook.ConnID()

	if err := hook.Enqueue(cmd.Context(), msg); err != nil {
		return err
	}

	// Show spinner for TTY mode
	var spinner *output.Spinner
	if r.EffectiveMode() == output.ModeText {
		spinner = r.NewSpinner("Delivering to PostHog...")
		spinner.Start()
	}

	if err := hook.Flush(cmd.Context()); err != nil {
		if spinner != nil {
			spinner.Fail("Delivery failed")
		}
		return err
	}

	if spinner != nil {
		spinner.Success("Delivered")
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(result)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Event Sent"))
		r.Println("")
		r.Println(output.FormatKeyValue("Type", result.Type))
		if result.Event != "" {
			r.Println(output.FormatKeyValue("Event", result.Event))
		}
		if result.DistinctID != "" {
			r.Println(output.FormatKeyValue("Distinct ID", result.DistinctID))
		}
		r.Println(output.FormatKeyValue("Connection", result.ConnID))
	default:
		if result.Event != "" {
			r.Muted("  event: " + result.Event)
		}
		if result.DistinctID != "" {
			r.Muted("  distinct_id: " + result.DistinctID)
		}
		r.Muted("  connection: " + result.ConnID)
	}
	return nil
}

// parseKeyValues turns repeated key=value flags into a property map.
// Values are decoded as JSON when possible, so numbers, booleans and
// quoted strings come through typed; everything else stays a string.
func parseKeyValues(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	props := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("property %q is not in key=value form", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err == nil {
			props[key] = v
		} else {
			props[key] = value
		}
	}
	return props, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q, want RFC3339: %w", s, err)
	}
	return ts, nil
}
