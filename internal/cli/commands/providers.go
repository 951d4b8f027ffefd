package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapflow-posthog/internal/cli/output"
	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

// NewProvidersCommand creates the providers command group.
func NewProvidersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List installed provider packages",
		Long: `List the provider packages linked into this binary and inspect
their manifests: shipped hooks, operators, connection types, and the
minimum runtime versions they require.`,
		Args: cobra.NoArgs,
		RunE: runProvidersList,
	}

	cmd.AddCommand(newProvidersListCommand())
	cmd.AddCommand(newProvidersInfoCommand())
	return cmd
}

func newProvidersListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed providers",
		Args:    cobra.NoArgs,
		RunE:    runProvidersList,
	}
}

func newProvidersInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <package>",
		Short: "Show a provider manifest",
		Example: `  # Show the PostHog provider manifest
  leapflow-posthog providers info leapflow-providers-posthog

  # The short name works too
  leapflow-posthog providers info posthog`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvidersInfo(cmd, args[0])
		},
	}
}

func runProvidersList(cmd *cobra.Command, _ []string) error {
	cmdCtx := NewCommandContextWithoutStores(cmd)
	r := cmdCtx.Renderer
	infos := provider.Infos()

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(infos)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, "Installed Providers"))
		r.Println("")
		r.Println("| Package | Name | Version | Connection Types |")
		r.Println("|---------|------|---------|------------------|")
		for _, info := range infos {
			r.Printf("| %s | %s | %s | %s |\n",
				info.PackageName, info.Name, info.Version, strings.Join(info.ConnectionTypes, ", "))
		}
		return nil
	default:
		t := table.NewWriter()
		t.SetOutputMirror(r.Writer())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Package", "Name", "Version", "Connection Types"})
		for _, info := range infos {
			t.AppendRow(table.Row{info.PackageName, info.Name, info.Version, strings.Join(info.ConnectionTypes, ", ")})
		}
		t.Render()
		r.Printf("(%d providers)\n", len(infos))
		return nil
	}
}

func runProvidersInfo(cmd *cobra.Command, name string) error {
	cmdCtx := NewCommandContextWithoutStores(cmd)
	r := cmdCtx.Renderer

	info, ok := findProvider(name)
	if !ok {
		return fmt.Errorf("provider %s is not installed (try 'providers list')", name)
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(info)
	case output.ModeMarkdown:
		return renderProviderInfoMarkdown(r, info)
	default:
		return renderProviderInfoText(r, info)
	}
}

// findProvider matches by package name or display name, case folded.
func findProvider(name string) (provider.Info, bool) {
	for _, info := range provider.Infos() {
		if strings.EqualFold(info.PackageName, name) || strings.EqualFold(info.Name, name) {
			return info, true
		}
	}
	return provider.Info{}, false
}

func renderProviderInfoText(r *output.Renderer, info provider.Info) error {
	r.Header(1, fmt.Sprintf("%s (%s)", info.Name, info.PackageName))
	r.Println(info.Description)
	r.Println("")
	r.Println(fmt.Sprintf("Version: %s", info.Version))
	r.Println("")

	r.Header(2, "Requirements")
	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Dependency", "Minimum Version"})
	for _, req := range info.Requirements {
		t.AppendRow(table.Row{req.Name, req.MinVersion})
	}
	t.Render()
	r.Println("")

	r.Header(2, "Ships")
	for _, ct := range info.ConnectionTypes {
		r.Printf("  connection type: %s\n", ct)
	}
	for _, h := range info.Hooks {
		r.Printf("  hook:            %s\n", h)
	}
	for _, op := range info.Operators {
		r.Printf("  operator:        %s\n", op)
	}
	return nil
}

func renderProviderInfoMarkdown(r *output.Renderer, info provider.Info) error {
	r.Println(output.FormatHeader(1, fmt.Sprintf("%s (%s)", info.Name, info.PackageName)))
	r.Println("")
	r.Println(info.Description)
	r.Println("")
	r.Println(output.FormatKeyValue("Version", info.Version))
	r.Println("")

	r.Println(output.FormatHeader(2, "Requirements"))
	r.Println("")
	r.Println("| Dependency | Minimum Version |")
	r.Println("|------------|-----------------|")
	for _, req := range info.Requirements {
		r.Printf("| `%s` | `%s` |\n", req.Name, req.MinVersion)
	}
	r.Println("")

	r.Println(output.FormatHeader(2, "Connection Types"))
	for _, ct := range info.ConnectionTypes {
		r.Printf("- `%s`\n", ct)
	}
	r.Println("")

	r.Println(output.FormatHeader(2, "Hooks"))
	for _, h := range info.Hooks {
		r.Printf("- `%s`\n", h)
	}
	r.Println("")

	r.Println(output.FormatHeader(2, "Operators"))
	for _, op := range info.Operators {
		r.Printf("- `%s`\n", op)
	}
	return nil
}
