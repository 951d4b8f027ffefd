package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapflow-posthog/internal/docs"
	phposthog "github.com/leapstack-labs/leapflow-posthog/pkg/providers/posthog"
)

// NewDocsCommand creates the docs command with subcommands.
func NewDocsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Generate and serve the provider documentation",
		Long: `Generate the provider documentation site or serve it locally.

Pages are rendered from the live provider manifest, so the published
connection guide, operator reference and dependency table always match
the linked code. Every build verifies that relative links resolve.`,
	}

	cmd.AddCommand(newDocsBuildCommand())
	cmd.AddCommand(newDocsServeCommand())
	cmd.AddCommand(newDocsVerifyCommand())

	return cmd
}

func newDocsBuildCommand() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Generate the documentation site",
		Example: `  # Build docs with defaults
  leapflow-posthog docs build

  # Build to a custom directory
  leapflow-posthog docs build --out ./public`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDocsBuild(outputPath)
		},
	}

	cfg := getConfig()
	cmd.Flags().StringVar(&outputPath, "out", cfg.DocsDir, "Output directory for the generated site")

	return cmd
}

func newDocsServeCommand() *cobra.Command {
	var outputPath string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build and serve the documentation locally",
		Example: `  # Serve docs on the default port
  leapflow-posthog docs serve

  # Serve on a custom port
  leapflow-posthog docs serve --port 3000`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDocsServe(outputPath, port)
		},
	}

	cfg := getConfig()
	cmd.Flags().StringVar(&outputPath, "out", cfg.DocsDir, "Output directory for the generated site")
	cmd.Flags().IntVar(&port, "port", 8080, "Port to serve on")

	return cmd
}

func newDocsVerifyCommand() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check links in an already built site",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := docs.VerifyLinks(outputPath); err != nil {
				return fmt.Errorf("link check failed: %w", err)
			}
			fmt.Printf("All links in %s resolve\n", outputPath)
			return nil
		},
	}

	cfg := getConfig()
	cmd.Flags().StringVar(&outputPath, "out", cfg.DocsDir, "Directory holding the built site")

	return cmd
}

func runDocsBuild(outputPath string) error {
	info := phposthog.ProviderInfo()

	fmt.Printf("Building documentation...\n")
	fmt.Printf("  Provider: %s %s\n", info.PackageName, info.Version)
	fmt.Printf("  Output:   %s\n", outputPath)
	fmt.Println()

	gen := docs.NewGenerator(info)
	if err := gen.Build(outputPath); err != nil {
		return fmt.Errorf("failed to build docs: %w", err)
	}

	fmt.Printf("Documentation generated successfully!\n")
	fmt.Printf("Open %s/index.md or serve with 'docs serve'\n", outputPath)

	return nil
}

func runDocsServe(outputPath string, port int) error {
	info := phposthog.ProviderInfo()

	fmt.Printf("Building documentation...\n")
	fmt.Printf("  Provider: %s %s\n", info.PackageName, info.Version)
	fmt.Println()

	gen := docs.NewGenerator(info)
	if err := gen.Serve(outputPath, port); err != nil {
		return fmt.Errorf("failed to serve docs: %w", err)
	}

	return nil
}
