package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapflow-posthog/internal/cli/output"
	"github.com/leapstack-labs/leapflow-posthog/internal/connections"
	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
	phposthog "github.com/leapstack-labs/leapflow-posthog/pkg/providers/posthog"
)

// ConnectionRow is one connection in list output.
type ConnectionRow struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Source      string `json:"source"`
	Host        string `json:"host,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewConnectionsCommand creates the connections command and its
// subcommands.
func NewConnectionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conns"},
		Short:   "Manage PostHog connections",
		Long: `Manage the connections events are delivered through.

Connections are resolved from three sources, first hit wins:
  1. LEAPFLOW_CONN_<ID> environment variables (URI form)
  2. the connections file (connections.yaml)
  3. the metastore

list, get and test read through all three. add and delete write to the
metastore; the connections file is owned by you and never modified.`,
		Example: `  # List every defined connection
  leapflow-posthog connections list

  # Inspect one
  leapflow-posthog connections get posthog_default

  # Verify it builds a usable client
  leapflow-posthog connections test posthog_default

  # Store a connection in the metastore
  leapflow-posthog connections add posthog_eu --uri 'posthog://eu.posthog.com?project_api_key=phc_...'

  # Dump file and metastore connections as YAML
  leapflow-posthog connections export`,
	}

	cmd.AddCommand(newConnectionsListCommand())
	cmd.AddCommand(newConnectionsGetCommand())
	cmd.AddCommand(newConnectionsTestCommand())
	cmd.AddCommand(newConnectionsAddCommand())
	cmd.AddCommand(newConnectionsDeleteCommand())
	cmd.AddCommand(newConnectionsExportCommand())

	return cmd
}

func newConnectionsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List defined connections",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			rows, err := collectConnections(cmd.Context(), cmdCtx)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(rows)
			case output.ModeMarkdown:
				return renderConnectionsMarkdown(r, rows)
			default:
				return renderConnectionsTable(r, rows)
			}
		},
	}
}

// collectConnections merges the file and metastore definitions. The
// source column names the source the chain would actually use, so a
// shadowed metastore entry shows up as file or environment.
func collectConnections(ctx context.Context, cmdCtx *CommandContext) ([]ConnectionRow, error) {
	byID := map[string]*provider.Connection{}
	sources := map[string]string{}

	metaConns, err := cmdCtx.Meta.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, conn := range metaConns {
		byID[conn.ID] = conn
		sources[conn.ID] = cmdCtx.Meta.Name()
	}

	for _, id := range cmdCtx.File.IDs() {
		conn, err := cmdCtx.File.Resolve(ctx, id)
		if err != nil {
			continue
		}
		byID[id] = conn
		sources[id] = cmdCtx.File.Name()
	}

	env := connections.EnvSource{}
	for id := range byID {
		if conn, err := env.Resolve(ctx, id); err == nil {
			byID[id] = conn
			sources[id] = env.Name()
		}
	}

	rows := make([]ConnectionRow, 0, len(byID))
	for id, conn := range byID {
		rows = append(rows, ConnectionRow{
			ID:          id,
			Type:        conn.Type,
			Source:      sources[id],
			Host:        connectionHost(conn),
			Description: conn.Description,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

// connectionHost prefers the endpoint in the extra, the place the hook
// reads it from.
func connectionHost(conn *provider.Connection) string {
	var extra phposthog.Extra
	if err := conn.DecodeExtra(&extra); err == nil && extra.Host != "" {
		return extra.Host
	}
	return conn.Host
}

func renderConnectionsTable(r *output.Renderer, rows []ConnectionRow) error {
	if len(rows) == 0 {
		r.Muted("No connections defined. Add one with 'connections add' or edit connections.yaml.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Type", "Source", "Host", "Description"})
	for _, row := range rows {
		t.AppendRow(table.Row{row.ID, row.Type, row.Source, row.Host, row.Description})
	}
	t.Render()
	r.Printf("(%d connections)\n", len(rows))
	return nil
}

func renderConnectionsMarkdown(r *output.Renderer, rows []ConnectionRow) error {
	r.Println(output.FormatHeader(1, "Connections"))
	r.Println("")
	if len(rows) == 0 {
		r.Println("No connections defined.")
		return nil
	}
	r.Println("| ID | Type | Source | Host | Description |")
	r.Println("|----|------|--------|------|-------------|")
	for _, row := range rows {
		r.Printf("| %s | %s | %s | %s | %s |\n", row.ID, row.Type, row.Source, row.Host, row.Description)
	}
	return nil
}

func newConnectionsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one connection with secrets masked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			conn, src := resolveWithSource(cmd.Context(), cmdCtx, args[0])
			if conn == nil {
				return &provider.NotFoundError{ID: args[0]}
			}

			extra, err := conn.ExtraMap()
			if err != nil {
				return err
			}
			maskSecrets(extra)

			r := cmdCtx.Renderer
			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(map[string]any{
					"id":          conn.ID,
					"type":        conn.Type,
					"source":      src,
					"description": conn.Description,
					"host":        conn.Host,
					"port":        conn.Port,
					"schema":      conn.Schema,
					"login":       conn.Login,
					"extra":       extra,
				})
			case output.ModeMarkdown:
				r.Println(output.FormatHeader(1, "Connection "+conn.ID))
				r.Println("")
				r.Println(output.FormatKeyValue("Type", conn.Type))
				r.Println(output.FormatKeyValue("Source", src))
				if conn.Description != "" {
					r.Println(output.FormatKeyValue("Description", conn.Description))
				}
				for _, kv := range sortedKeys(extra) {
					r.Println(output.FormatKeyValue("extra."+kv, fmt.Sprint(extra[kv])))
				}
				return nil
			default:
				styles := r.Styles()
				r.Println(styles.Header2.Render("Connection " + conn.ID))
				r.Printf("  type:        %s\n", conn.Type)
				r.Printf("  source:      %s\n", src)
				if conn.Description != "" {
					r.Printf("  description: %s\n", conn.Description)
				}
				if conn.Host != "" {
					r.Printf("  host:        %s\n", conn.Host)
				}
				for _, k := range sortedKeys(extra) {
					r.Printf("  extra.%s: %v\n", k, extra[k])
				}
			}
			return nil
		},
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// maskSecrets hides key material in place.
func maskSecrets(extra map[string]any) {
	for _, k := range []string{"project_api_key", "personal_api_key"} {
		if v, ok := extra[k].(string); ok && v != "" {
			extra[k] = maskKey(v)
		}
	}
}

func newConnectionsTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test [id]",
		Short: "Verify a connection builds a usable client",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			connID := cmdCtx.Cfg.ConnID
			if len(args) > 0 {
				connID = args[0]
			}

			r := cmdCtx.Renderer
			hook := phposthog.NewHook(provider.HookConfig{
				ConnID:   connID,
				Resolver: cmdCtx.Chain,
				Logger:   cmdCtx.Logger,
			})
			defer func() { _ = hook.Close() }()

			var spinner *output.Spinner
			if r.EffectiveMode() == output.ModeText {
				spinner = r.NewSpinner(fmt.Sprintf("Testing connection %s...", connID))
				spinner.Start()
			}

			if err := hook.Test(cmd.Context()); err != nil {
				if spinner != nil {
					spinner.Fail(fmt.Sprintf("Connection %s failed", connID))
				}
				return err
			}

			if spinner != nil {
				spinner.Success(fmt.Sprintf("Connection %s OK", connID))
				return nil
			}

			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(map[string]any{"conn_id": connID, "ok": true})
			default:
				r.Success(fmt.Sprintf("Connection %s OK", connID))
			}
			return nil
		},
	}
}

func newConnectionsAddCommand() *cobra.Command {
	var uri, connType, host, schema, login, password, description string
	var port int
	var extras []string

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Store a connection in the metastore",
		Example: `  # From a URI
  leapflow-posthog connections add posthog_eu --uri 'posthog://eu.posthog.com?project_api_key=phc_...'

  # Field by field
  leapflow-posthog connections add posthog_eu \
    --extra project_api_key=phc_... --extra host=https://eu.posthog.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			id := args[0]
			var conn *provider.Connection
			if uri != "" {
				conn, err = provider.ParseURI(id, uri)
				if err != nil {
					return err
				}
			} else {
				conn = &provider.Connection{
					ID:          id,
					Type:        connType,
					Description: description,
					Host:        host,
					Port:        port,
					Schema:      schema,
					Login:       login,
					Password:    password,
				}
				extra, err := parseKeyValues(extras)
				if err != nil {
					return err
				}
				if len(extra) > 0 {
					raw, err := json.Marshal(extra)
					if err != nil {
						return err
					}
					conn.Extra = string(raw)
				}
			}

			if err := cmdCtx.Meta.Upsert(cmd.Context(), conn); err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Connection %s stored in metastore", id))
			return nil
		},
	}

	cmd.Flags().StringVar(&uri, "uri", "", "Connection URI, e.g. posthog://host?project_api_key=...")
	cmd.Flags().StringVar(&connType, "type", phposthog.ConnType, "Connection type")
	cmd.Flags().StringVar(&host, "host", "", "Host")
	cmd.Flags().IntVar(&port, "port", 0, "Port")
	cmd.Flags().StringVar(&schema, "schema", "", "Schema")
	cmd.Flags().StringVar(&login, "login", "", "Login")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	cmd.Flags().StringVar(&description, "description", "", "Free-form description")
	cmd.Flags().StringArrayVar(&extras, "extra", nil, "Extra field as key=value (repeatable)")

	return cmd
}

func newConnectionsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a connection from the metastore",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cmdCtx.Meta.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Connection %s removed from metastore", args[0]))
			return nil
		},
	}
}

func newConnectionsExportCommand() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump file and metastore connections as YAML",
		Long: `Write every connection from the file and the metastore in the
connections.yaml format, secrets included. Use it to move definitions
between machines or to seed a connections file from the metastore.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			export := map[string]map[string]any{}

			metaConns, err := cmdCtx.Meta.List(ctx)
			if err != nil {
				return err
			}
			for _, conn := range metaConns {
				entry, err := exportEntry(conn)
				if err != nil {
					return err
				}
				export[conn.ID] = entry
			}
			for _, id := range cmdCtx.File.IDs() {
				conn, err := cmdCtx.File.Resolve(ctx, id)
				if err != nil {
					continue
				}
				entry, err := exportEntry(conn)
				if err != nil {
					return err
				}
				export[id] = entry
			}

			data, err := yaml.Marshal(export)
			if err != nil {
				return fmt.Errorf("failed to encode connections: %w", err)
			}

			if out != "" {
				if err := os.WriteFile(out, data, 0600); err != nil {
					return fmt.Errorf("failed to write %s: %w", out, err)
				}
				cmdCtx.Renderer.Success(fmt.Sprintf("Exported %d connections to %s", len(export), out))
				return nil
			}
			cmdCtx.Renderer.Printf("%s", data)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "O", "", "Write to a file instead of stdout")

	return cmd
}

func exportEntry(conn *provider.Connection) (map[string]any, error) {
	entry := map[string]any{"conn_type": conn.Type}
	if conn.Description != "" {
		entry["description"] = conn.Description
	}
	if conn.Host != "" {
		entry["host"] = conn.Host
	}
	if conn.Port != 0 {
		entry["port"] = conn.Port
	}
	if conn.Schema != "" {
		entry["schema"] = conn.Schema
	}
	if conn.Login != "" {
		entry["login"] = conn.Login
	}
	if conn.Password != "" {
		entry["password"] = conn.Password
	}
	if conn.Extra != "" {
		extra, err := conn.ExtraMap()
		if err != nil {
			return nil, err
		}
		entry["extra"] = extra
	}
	return entry, nil
}
