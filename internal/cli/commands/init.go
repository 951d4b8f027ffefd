package commands

import (
	"fmt"
	"os"

	"github.com/leapstack-labs/leapflow-posthog/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new LeapFlow PostHog project",
		Long: `Initialize a new LeapFlow PostHog project with default configuration.

This creates:
  - leapflow.yaml configuration file
  - connections.yaml with a posthog_default placeholder
  - transforms/ directory for Starlark event transforms

Use --example to create a full working demo project with sample
transforms for enrichment, redaction and event filtering.`,
		Example: `  # Initialize in current directory
  leapflow-posthog init

  # Initialize with working example transforms
  leapflow-posthog init --example

  # Initialize in a new directory
  leapflow-posthog init my-project --example

  # Force overwrite existing config
  leapflow-posthog init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			// Create renderer
			cfg := getConfig()
			mode := output.ParseMode(cfg.OutputFormat)
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

			if example {
				return runInitExample(r, dir, force)
			}
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&example, "example", false, "Create a full example project with sample transforms")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	// Create directory if specified and doesn't exist
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// Check if config already exists
	configPath := dir + "/leapflow.yaml"
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("leapflow.yaml already exists. Use --force to overwrite")
	}

	// Copy minimal template
	if err := copyTemplate("minimal", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	// List created files
	files, _ := listTemplateFiles("minimal")
	for _, f := range files {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("LeapFlow PostHog project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Add your project API key to connections.yaml")
	r.Println("  2. Run 'leapflow-posthog doctor' to verify the setup")
	r.Println("  3. Run 'leapflow-posthog send capture ...' to emit a test event")
	r.Println("  4. Run 'leapflow-posthog relay' to start the local relay")

	return nil
}

func runInitExample(r *output.Renderer, dir string, force bool) error {
	// Create directory if specified and doesn't exist
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// Check if config already exists
	configPath := dir + "/leapflow.yaml"
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("leapflow.yaml already exists. Use --force to overwrite")
	}

	// Copy example template
	if err := copyTemplate("example", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	// List created files by category
	files, _ := listTemplateFiles("example")
	groups := groupTemplateFiles(files)

	// Display files by category
	r.Header(2, "Configuration")
	for _, f := range groups["config"] {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Header(2, "Transforms")
	for _, f := range groups["transforms"] {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("LeapFlow PostHog project initialized with example transforms!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  leapflow-posthog doctor         Verify config and connections")
	r.Println("  leapflow-posthog send capture   Emit a one-off test event")
	r.Println("  leapflow-posthog relay          Start the local relay with transforms")
	r.Println("  leapflow-posthog watch          Watch spool activity live")

	return nil
}
