// Package cli provides the command-line interface for the LeapFlow
// PostHog provider.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapflow-posthog/internal/cli/commands"
	"github.com/leapstack-labs/leapflow-posthog/internal/cli/config"
	"github.com/leapstack-labs/leapflow-posthog/internal/cli/output"
	phposthog "github.com/leapstack-labs/leapflow-posthog/pkg/providers/posthog"
)

var (
	cfgFile string
	envFlag string
	cfg     *config.Config
)

// Version information (set at build time).
var (
	Version   = phposthog.ProviderVersion
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// configKey is used to store config in context.
type configKey struct{}

// rendererKey is used to store renderer in context.
type rendererKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leapflow-posthog",
		Short: "LeapFlow PostHog Provider - Event Delivery CLI",
		Long: `LeapFlow provider for PostHog event delivery.

It resolves PostHog connections from the environment, files or the
metastore, batches events with retry and a durable spool, applies
Starlark transforms, and runs a local relay for debugging pipelines.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			// Load configuration with optional environment override and CLI flags
			var err error
			cfg, err = config.LoadConfigWithEnv(cfgFile, envFlag, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			// Store config in context
			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)

			// Create and store renderer based on output mode
			mode := output.ParseMode(cfg.OutputFormat)
			renderer := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)
			ctx = context.WithValue(ctx, rendererKey{}, renderer)

			// Store a leveled logger. Warnings stay visible so delivery
			// failures surface even without --verbose.
			ctx = context.WithValue(ctx, config.LoggerKey(), newLogger(cfg.Verbose))
			cmd.SetContext(ctx)

			// Print config file used (if verbose)
			if cfg.Verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					fmt.Fprintf(os.Stderr, "Using config file: %s\n", configFile)
				}
				if envFlag != "" {
					fmt.Fprintf(os.Stderr, "Using environment: %s\n", envFlag)
				}
			}

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set version template
	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
PostHog event delivery provider built with Go
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./leapflow.yaml)")
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "", "Environment to use (e.g., dev, staging, prod)")
	rootCmd.PersistentFlags().String("conn", "", "Connection ID to deliver through")
	rootCmd.PersistentFlags().String("connections", "", "Path to connections file")
	rootCmd.PersistentFlags().String("spool", "", "Path to the spool database")
	rootCmd.PersistentFlags().String("metastore", "", "Metastore DSN (sqlite path, :memory: or postgres://)")
	rootCmd.PersistentFlags().String("transforms-dir", "", "Path to transforms directory")
	rootCmd.PersistentFlags().String("docs-dir", "", "Path to the docs output directory")
	rootCmd.PersistentFlags().String("project-dir", "", "Project root directory")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (auto|text|markdown|json)")

	// Register completion for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Register completion for env flag
	_ = rootCmd.RegisterFlagCompletionFunc("env", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		// Return common environment names
		return []string{"dev", "staging", "prod"}, cobra.ShellCompDirectiveNoFileComp
	})

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(commands.NewDoctorCommand())
	rootCmd.AddCommand(commands.NewSendCommand())
	rootCmd.AddCommand(commands.NewConsoleCommand())
	rootCmd.AddCommand(commands.NewConnectionsCommand())
	rootCmd.AddCommand(commands.NewSpoolCommand())
	rootCmd.AddCommand(commands.NewRelayCommand())
	rootCmd.AddCommand(commands.NewWatchCommand())
	rootCmd.AddCommand(commands.NewFlagsCommand())
	rootCmd.AddCommand(commands.NewProvidersCommand())
	rootCmd.AddCommand(commands.NewDocsCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// newLogger builds the CLI logger. Delivery problems log at warn or
// above, so the default level keeps them visible without drowning
// one-shot commands in info noise.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	// Return default config if none in context
	return &config.Config{
		ConnectionsFile: config.DefaultConnectionsFile,
		Metastore:       config.DefaultMetastoreFile,
		SpoolPath:       config.DefaultSpoolFile,
		TransformsDir:   config.DefaultTransformsDir,
		DocsDir:         config.DefaultDocsDir,
		ConnID:          config.DefaultConnID,
		Environment:     config.DefaultEnv,
	}
}

// GetRenderer retrieves the renderer from the command context.
func GetRenderer(ctx context.Context) *output.Renderer {
	if r, ok := ctx.Value(rendererKey{}).(*output.Renderer); ok {
		return r
	}
	// Return default renderer if none in context
	return output.NewRenderer(os.Stdout, os.Stderr, output.ModeAuto)
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for leapflow-posthog.

To load completions:

Bash:
  $ source <(leapflow-posthog completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ leapflow-posthog completion bash > /etc/bash_completion.d/leapflow-posthog
  # macOS:
  $ leapflow-posthog completion bash > $(brew --prefix)/etc/bash_completion.d/leapflow-posthog

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ leapflow-posthog completion zsh > "${fpath[1]}/_leapflow-posthog"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ leapflow-posthog completion fish | source

  # To load completions for each session, execute once:
  $ leapflow-posthog completion fish > ~/.config/fish/completions/leapflow-posthog.fish

PowerShell:
  PS> leapflow-posthog completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> leapflow-posthog completion powershell > leapflow-posthog.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
	return cmd
}
