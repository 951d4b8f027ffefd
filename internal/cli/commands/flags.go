package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapflow-posthog/internal/cli/output"
	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
	phclient "github.com/leapstack-labs/leapflow-posthog/pkg/posthog"
	phposthog "github.com/leapstack-labs/leapflow-posthog/pkg/providers/posthog"
)

// NewFlagsCommand creates the flags command and its subcommands.
func NewFlagsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Inspect PostHog feature flags",
		Long: `List flag definitions and evaluate them for a user.

Flag definitions come from the flags API, which needs a
personal_api_key in the connection extra next to the project_api_key.
Evaluation happens locally against the fetched definitions, the same
way the delivery client evaluates them.`,
		Example: `  # All flags, grouped by state
  leapflow-posthog flags list

  # Would user-1 see the new dashboard?
  leapflow-posthog flags check new-dashboard -d user-1`,
	}

	cmd.AddCommand(newFlagsListCommand())
	cmd.AddCommand(newFlagsCheckCommand())

	return cmd
}

// flagClient builds a client for the configured connection.
func flagClient(cmd *cobra.Command) (*CommandContext, phclient.Client, func(), error) {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	hook := phposthog.NewHook(provider.HookConfig{
		ConnID:   cmdCtx.Cfg.ConnID,
		Resolver: cmdCtx.Chain,
		Logger:   cmdCtx.Logger,
	})
	client, err := hook.Conn(cmd.Context())
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	closeAll := func() {
		_ = hook.Close()
		cleanup()
	}
	return cmdCtx, client, closeAll, nil
}

func newFlagsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List flag definitions grouped by state",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, client, closeAll, err := flagClient(cmd)
			if err != nil {
				return err
			}
			defer closeAll()

			flags, err := client.FeatureFlags(cmd.Context())
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(flags)
			case output.ModeMarkdown:
				return renderFlagsMarkdown(r, flags)
			default:
				return renderFlagsText(r, flags)
			}
		},
	}
}

func splitFlags(flags []phclient.FeatureFlag) (active, inactive []phclient.FeatureFlag) {
	for _, f := range flags {
		if f.Active {
			active = append(active, f)
		} else {
			inactive = append(inactive, f)
		}
	}
	return active, inactive
}

func rolloutLabel(f phclient.FeatureFlag) string {
	if f.RolloutPercentage != nil {
		return fmt.Sprintf("%d%% rollout", *f.RolloutPercentage)
	}
	if f.IsSimpleFlag {
		return "simple"
	}
	return ""
}

func renderFlagsText(r *output.Renderer, flags []phclient.FeatureFlag) error {
	styles := r.Styles()
	if len(flags) == 0 {
		r.Muted("No feature flags defined in this project.")
		return nil
	}

	active, inactive := splitFlags(flags)

	r.Println(styles.Header2.Render(fmt.Sprintf("Feature Flags (%d)", len(flags))))
	r.Println("")

	if len(active) > 0 {
		r.Println(styles.Bold.Render("  Active"))
		for _, f := range active {
			line := fmt.Sprintf("  %s %s", styles.StatusSuccess.String(), f.Key)
			if label := rolloutLabel(f); label != "" {
				line += "  " + styles.Muted.Render(label)
			}
			if f.Name != "" && f.Name != f.Key {
				line += "  " + styles.Muted.Render(f.Name)
			}
			r.Println(line)
		}
		r.Println("")
	}

	if len(inactive) > 0 {
		r.Println(styles.Bold.Render("  Inactive"))
		for _, f := range inactive {
			line := fmt.Sprintf("  %s %s", styles.StatusFailed.String(), f.Key)
			if f.Name != "" && f.Name != f.Key {
				line += "  " + styles.Muted.Render(f.Name)
			}
			r.Println(line)
		}
		r.Println("")
	}

	return nil
}

func renderFlagsMarkdown(r *output.Renderer, flags []phclient.FeatureFlag) error {
	r.Println(output.FormatHeader(1, "Feature Flags"))
	r.Println("")
	if len(flags) == 0 {
		r.Println("No feature flags defined in this project.")
		return nil
	}

	active, inactive := splitFlags(flags)

	r.Println(output.FormatHeader(2, "Active"))
	for _, f := range active {
		entry := "- `" + f.Key + "`"
		if label := rolloutLabel(f); label != "" {
			entry += " (" + label + ")"
		}
		if f.Name != "" && f.Name != f.Key {
			entry += ": " + f.Name
		}
		r.Println(entry)
	}
	r.Println("")

	r.Println(output.FormatHeader(2, "Inactive"))
	for _, f := range inactive {
		entry := "- `" + f.Key + "`"
		if f.Name != "" && f.Name != f.Key {
			entry += ": " + f.Name
		}
		r.Println(entry)
	}

	return nil
}

func newFlagsCheckCommand() *cobra.Command {
	var distinctID string

	cmd := &cobra.Command{
		Use:   "check <key>",
		Short: "Evaluate a flag for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, client, closeAll, err := flagClient(cmd)
			if err != nil {
				return err
			}
			defer closeAll()

			key := args[0]
			enabled, err := client.IsFeatureEnabled(cmd.Context(), key, distinctID)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(map[string]any{
					"key":         key,
					"distinct_id": distinctID,
					"enabled":     enabled,
				})
			}
			if enabled {
				r.Success(fmt.Sprintf("Flag %s is enabled for %s", key, distinctID))
			} else {
				r.Println(fmt.Sprintf("Flag %s is disabled for %s", key, distinctID))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&distinctID, "distinct-id", "d", "", "User to evaluate the flag for")
	_ = cmd.MarkFlagRequired("distinct-id")

	return cmd
}
