package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapflow-posthog/internal/cli/config"
	"github.com/leapstack-labs/leapflow-posthog/internal/cli/output"
	"github.com/leapstack-labs/leapflow-posthog/internal/transform"
	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
	phclient "github.com/leapstack-labs/leapflow-posthog/pkg/posthog"
	phposthog "github.com/leapstack-labs/leapflow-posthog/pkg/providers/posthog"
	"github.com/spf13/cobra"
)

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	Format string // Output format: text, json
	Ping   bool   // Probe the PostHog endpoint over HTTP
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run a comprehensive project health check",
		Long: `Analyze your LeapFlow PostHog setup for potential issues.

The doctor command checks every link in the delivery path and provides
a report including:
- Project summary (config, connections, transforms, spool)
- Health checks grouped by category (Configuration, Connections, Delivery)
- Health score (0-100)
- Actionable recommendations

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run health check
  leapflow-posthog doctor

  # Also probe the PostHog endpoint over HTTP
  leapflow-posthog doctor --ping

  # Output as JSON
  leapflow-posthog doctor --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.Ping, "ping", false, "Probe the PostHog endpoint over HTTP")

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Summary         ProjectSummary `json:"summary"`
	HealthChecks    []HealthCheck  `json:"health_checks"`
	Score           int            `json:"score"`
	Recommendations []string       `json:"recommendations"`
	IssueCount      int            `json:"issue_count"`
}

// ProjectSummary contains project-level statistics.
type ProjectSummary struct {
	ConfigFile   string `json:"config_file,omitempty"`
	Environment  string `json:"environment"`
	ConnID       string `json:"conn_id"`
	Connections  int    `json:"connections"`
	Transforms   int    `json:"transforms"`
	SpoolPending int    `json:"spool_pending"`
	SpoolDead    int    `json:"spool_dead"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	CheckID string   `json:"check_id"`
	Name    string   `json:"name"`
	Group   string   `json:"group"`
	Status  string   `json:"status"` // "pass", "warn", "error"
	Details []string `json:"details,omitempty"`
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	// Override renderer if format flag is set
	if opts.Format != "" {
		r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ParseMode(opts.Format))
	}

	doctorOutput := buildDoctorOutput(cmd.Context(), cmdCtx, opts)

	// Render based on mode
	effectiveMode := r.EffectiveMode()
	switch effectiveMode {
	case output.ModeJSON:
		return r.JSON(doctorOutput)
	case output.ModeMarkdown:
		return renderDoctorMarkdown(r, doctorOutput)
	default:
		return renderDoctorText(r, cfg, doctorOutput)
	}
}

func buildDoctorOutput(ctx context.Context, cmdCtx *CommandContext, opts *DoctorOptions) *DoctorOutput {
	cfg := cmdCtx.Cfg

	summary := ProjectSummary{
		ConfigFile:  config.GetConfigFileUsed(),
		Environment: cfg.Environment,
		ConnID:      cfg.ConnID,
	}

	var checks []HealthCheck

	// Configuration checks
	if summary.ConfigFile != "" {
		checks = append(checks, HealthCheck{
			CheckID: "CFG01", Name: "Config file", Group: "configuration",
			Status: "pass", Details: []string{summary.ConfigFile},
		})
	} else {
		checks = append(checks, HealthCheck{
			CheckID: "CFG01", Name: "Config file", Group: "configuration",
			Status: "warn", Details: []string{"no leapflow.yaml found, running on defaults"},
		})
	}

	if _, err := os.Stat(cfg.ConnectionsFile); err == nil {
		checks = append(checks, HealthCheck{
			CheckID: "CFG02", Name: "Connections file", Group: "configuration",
			Status: "pass", Details: []string{cfg.ConnectionsFile},
		})
	} else {
		checks = append(checks, HealthCheck{
			CheckID: "CFG02", Name: "Connections file", Group: "configuration",
			Status: "warn", Details: []string{fmt.Sprintf("%s does not exist", cfg.ConnectionsFile)},
		})
	}

	pipeline, err := transform.Load(cfg.TransformsDir, cmdCtx.Logger)
	if err != nil {
		checks = append(checks, HealthCheck{
			CheckID: "CFG03", Name: "Transforms", Group: "configuration",
			Status: "error", Details: []string{err.Error()},
		})
	} else {
		summary.Transforms = pipeline.Len()
		detail := fmt.Sprintf("%d transforms in %s", pipeline.Len(), cfg.TransformsDir)
		if pipeline.Len() == 0 {
			detail = "no transforms, events pass through unchanged"
		}
		checks = append(checks, HealthCheck{
			CheckID: "CFG03", Name: "Transforms", Group: "configuration",
			Status: "pass", Details: []string{detail},
		})
	}

	// Connection checks
	summary.Connections = countConnections(ctx, cmdCtx)

	conn, src := resolveWithSource(ctx, cmdCtx, cfg.ConnID)
	if conn != nil {
		checks = append(checks, HealthCheck{
			CheckID: "CN01", Name: "Connection resolves", Group: "connections",
			Status: "pass", Details: []string{fmt.Sprintf("%s via %s", cfg.ConnID, src)},
		})
	} else {
		checks = append(checks, HealthCheck{
			CheckID: "CN01", Name: "Connection resolves", Group: "connections",
			Status: "error", Details: []string{fmt.Sprintf("connection %q not found in environment, file or metastore", cfg.ConnID)},
		})
	}

	checks = append(checks, checkWriteKey(conn))

	// Delivery checks
	spoolCheck := HealthCheck{CheckID: "DL01", Name: "Spool", Group: "delivery", Status: "pass"}
	store, err := openSpool(cfg, cmdCtx.Logger)
	if err != nil {
		spoolCheck.Status = "error"
		spoolCheck.Details = []string{err.Error()}
	} else {
		stats, statsErr := store.Stats(ctx)
		_ = store.Close()
		switch {
		case statsErr != nil:
			spoolCheck.Status = "error"
			spoolCheck.Details = []string{statsErr.Error()}
		case stats.Dead > 0:
			summary.SpoolPending = stats.Pending
			summary.SpoolDead = stats.Dead
			spoolCheck.Status = "error"
			spoolCheck.Details = []string{fmt.Sprintf("%d dead batches need attention", stats.Dead)}
		case stats.Pending > 0:
			summary.SpoolPending = stats.Pending
			spoolCheck.Status = "warn"
			spoolCheck.Details = []string{fmt.Sprintf("%d pending batches (%d events) await replay", stats.Pending, stats.PendingEvents)}
		default:
			spoolCheck.Details = []string{"no backlog"}
		}
	}
	checks = append(checks, spoolCheck)

	if opts.Ping {
		checks = append(checks, pingEndpoint(ctx, conn))
	}

	// Sort health checks by group then by check ID
	sort.Slice(checks, func(i, j int) bool {
		if checks[i].Group != checks[j].Group {
			return checks[i].Group < checks[j].Group
		}
		return checks[i].CheckID < checks[j].CheckID
	})

	score := calculateHealthScore(checks)
	recommendations := generateRecommendations(checks)

	issues := 0
	for _, c := range checks {
		if c.Status != "pass" {
			issues++
		}
	}

	return &DoctorOutput{
		Summary:         summary,
		HealthChecks:    checks,
		Score:           score,
		Recommendations: recommendations,
		IssueCount:      issues,
	}
}

// resolveWithSource walks the chain by hand so the report can name the
// source that won.
func resolveWithSource(ctx context.Context, cmdCtx *CommandContext, id string) (*provider.Connection, string) {
	for _, src := range cmdCtx.Chain.Sources() {
		conn, err := src.Resolve(ctx, id)
		if err == nil {
			return conn, src.Name()
		}
	}
	return nil, ""
}

// countConnections totals the definitions visible in the file and the
// metastore. Environment connections cannot be enumerated.
func countConnections(ctx context.Context, cmdCtx *CommandContext) int {
	count := len(cmdCtx.File.IDs())
	if conns, err := cmdCtx.Meta.List(ctx); err == nil {
		count += len(conns)
	}
	return count
}

func checkWriteKey(conn *provider.Connection) HealthCheck {
	check := HealthCheck{CheckID: "CN02", Name: "Write key", Group: "connections"}
	if conn == nil {
		check.Status = "warn"
		check.Details = []string{"skipped, connection did not resolve"}
		return check
	}

	var extra phposthog.Extra
	if err := conn.DecodeExtra(&extra); err != nil {
		check.Status = "error"
		check.Details = []string{err.Error()}
		return check
	}
	if extra.ProjectAPIKey == "" {
		check.Status = "error"
		check.Details = []string{"connection extra carries no project_api_key"}
		return check
	}

	check.Status = "pass"
	check.Details = []string{fmt.Sprintf("project_api_key set (%s)", maskKey(extra.ProjectAPIKey))}
	if extra.PersonalAPIKey != "" {
		check.Details = append(check.Details, "personal_api_key set, local flag evaluation available")
	}
	return check
}

// pingEndpoint probes the configured PostHog instance. Any HTTP
// response counts as reachable; only transport failures do not.
func pingEndpoint(ctx context.Context, conn *provider.Connection) HealthCheck {
	check := HealthCheck{CheckID: "DL02", Name: "Endpoint", Group: "delivery"}
	if conn == nil {
		check.Status = "warn"
		check.Details = []string{"skipped, connection did not resolve"}
		return check
	}

	endpoint := phclient.DefaultEndpoint
	var extra phposthog.Extra
	if err := conn.DecodeExtra(&extra); err == nil && extra.Host != "" {
		endpoint = extra.Host
	}

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		check.Status = "error"
		check.Details = []string{fmt.Sprintf("%s is not a usable endpoint: %v", endpoint, err)}
		return check
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		check.Status = "error"
		check.Details = []string{fmt.Sprintf("%s unreachable: %v", endpoint, err)}
		return check
	}
	_ = resp.Body.Close()

	check.Status = "pass"
	check.Details = []string{fmt.Sprintf("%s responded with %s", endpoint, resp.Status)}
	return check
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// calculateHealthScore computes a health score from 0-100. Warnings
// cost 10 points, errors 20.
func calculateHealthScore(checks []HealthCheck) int {
	if len(checks) == 0 {
		return 100
	}

	score := 100.0
	for _, check := range checks {
		switch check.Status {
		case "error":
			score -= 20
		case "warn":
			score -= 10
		}
	}

	// Clamp to 0-100
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return int(score)
}

// generateRecommendations creates actionable recommendations based on findings.
func generateRecommendations(checks []HealthCheck) []string {
	var recommendations []string
	seen := make(map[string]bool)

	for _, check := range checks {
		if check.Status == "pass" {
			continue
		}

		rec := getRecommendation(check.CheckID)
		if rec != "" && !seen[rec] {
			recommendations = append(recommendations, rec)
			seen[rec] = true
		}
	}

	// Limit to top 5 recommendations
	if len(recommendations) > 5 {
		recommendations = recommendations[:5]
	}

	return recommendations
}

// getRecommendation returns a recommendation for a specific check.
func getRecommendation(checkID string) string {
	switch checkID {
	case "CFG01":
		return "Run 'leapflow-posthog init' to scaffold leapflow.yaml"
	case "CFG02":
		return "Run 'leapflow-posthog init' to create connections.yaml, or point --connections at your file"
	case "CFG03":
		return "Fix the failing transform file or move it out of the transforms directory"
	case "CN01":
		return "Define the connection in connections.yaml or export LEAPFLOW_CONN_<ID> as a URI"
	case "CN02":
		return "Add project_api_key to the connection extra"
	case "DL01":
		return "Run 'leapflow-posthog spool replay' to redeliver the backlog"
	case "DL02":
		return "Check the endpoint host and your network path to PostHog"
	default:
		return ""
	}
}

func renderDoctorText(r *output.Renderer, cfg *config.Config, out *DoctorOutput) error {
	styles := r.Styles()

	// Header
	r.Println("")
	r.Println(styles.Header1.Render("LeapFlow PostHog Health Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Println("")

	// Project Summary
	r.Println(styles.Header2.Render("Project Summary"))
	configFile := out.Summary.ConfigFile
	if configFile == "" {
		configFile = "(defaults)"
	}
	r.Printf("   Config: %s | Environment: %s\n", configFile, out.Summary.Environment)
	r.Printf("   Connection: %s | Definitions: %d | Transforms: %d\n", out.Summary.ConnID, out.Summary.Connections, out.Summary.Transforms)
	r.Printf("   Spool: %d pending | %d dead (%s)\n", out.Summary.SpoolPending, out.Summary.SpoolDead, cfg.SpoolPath)
	r.Println("")

	// Health Checks grouped by category
	r.Println(styles.Header2.Render("Health Checks"))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}

		icon := styles.StatusSuccess.String()
		switch check.Status {
		case "warn":
			icon = styles.Warning.Render("!")
		case "error":
			icon = styles.StatusFailed.String()
		}

		r.Printf("   %s %s: %s\n", icon, check.CheckID, check.Name)
		for _, detail := range check.Details {
			r.Println(styles.Muted.Render("       - " + detail))
		}
	}
	r.Println("")

	// Health Score
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Health Score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
	r.Println("")

	// Recommendations
	if len(out.Recommendations) > 0 {
		r.Println(styles.Header2.Render("Recommendations"))
		for i, rec := range out.Recommendations {
			r.Printf("   %d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) error {
	r.Println("# LeapFlow PostHog Health Report")
	r.Println("")

	// Project Summary
	r.Println("## Project Summary")
	r.Println("")
	if out.Summary.ConfigFile != "" {
		r.Printf("- **Config**: %s\n", out.Summary.ConfigFile)
	} else {
		r.Println("- **Config**: defaults (no leapflow.yaml)")
	}
	r.Printf("- **Environment**: %s\n", out.Summary.Environment)
	r.Printf("- **Connection**: %s\n", out.Summary.ConnID)
	r.Printf("- **Connection definitions**: %d\n", out.Summary.Connections)
	r.Printf("- **Transforms**: %d\n", out.Summary.Transforms)
	r.Printf("- **Spool**: %d pending, %d dead\n", out.Summary.SpoolPending, out.Summary.SpoolDead)
	r.Println("")

	// Health Checks
	r.Println("## Health Checks")
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("### " + titleCaser.String(currentGroup))
			r.Println("")
		}

		status := "PASS"
		switch check.Status {
		case "warn":
			status = "WARN"
		case "error":
			status = "ERROR"
		}

		r.Printf("- **[%s]** %s: %s\n", status, check.CheckID, check.Name)
		for _, detail := range check.Details {
			r.Printf("  - %s\n", detail)
		}
	}
	r.Println("")

	// Health Score
	r.Println("## Health Score")
	r.Println("")
	r.Printf("**%d/100**\n", out.Score)
	r.Println("")

	// Recommendations
	if len(out.Recommendations) > 0 {
		r.Println("## Recommendations")
		r.Println("")
		for i, rec := range out.Recommendations {
			r.Printf("%d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}
