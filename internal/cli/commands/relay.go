package commands

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapflow-posthog/internal/connections"
	"github.com/leapstack-labs/leapflow-posthog/internal/relay"
	"github.com/leapstack-labs/leapflow-posthog/internal/relay/server"
)

// RelayOptions holds options for the relay command.
type RelayOptions struct {
	Port  int
	Watch bool
	Open  bool
}

// NewRelayCommand creates the relay command.
func NewRelayCommand() *cobra.Command {
	opts := &RelayOptions{}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the local relay server",
		Long: `Run the HTTP relay that accepts PostHog events, applies Starlark
transforms and forwards them in batches.

Endpoints:
  POST /capture        accept one event
  POST /batch          accept a batch of events
  GET  /               live dashboard
  GET  /healthz        liveness probe
  GET  /stats          counters as JSON
  GET  /spool          spooled batches
  POST /flush          force a flush (admin)
  POST /spool/replay   replay the backlog (admin)
  POST /spool/purge    purge old batches (admin)

Failed deliveries are parked in the spool and can be replayed with
'leapflow-posthog spool replay' or the dashboard. With --watch, edits
to transform files and the connections file apply without a restart.`,
		Example: `  # Run with settings from leapflow.yaml
  leapflow-posthog relay

  # Pick a port and open the dashboard
  leapflow-posthog relay --port 9000 --open

  # Run without file watching, e.g. under a supervisor
  leapflow-posthog relay --watch=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRelay(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "Port to listen on (default from config, then 8765)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", true, "Reload transforms and connections on file change")
	cmd.Flags().BoolVar(&opts.Open, "open", false, "Open the dashboard in a browser")

	return cmd
}

func runRelay(cmd *cobra.Command, opts *RelayOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cmdCtx.Cfg
	relayCfg := cfg.GetRelayConfig()

	// CLI flags override config file
	port := relayCfg.Port
	if opts.Port != 0 {
		port = opts.Port
	}
	watch := relayCfg.Watch
	if cmd.Flags().Changed("watch") {
		watch = opts.Watch
	}

	store, err := openSpool(cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc, err := relay.NewService(relay.ServiceConfig{
		ConnID:        cfg.ConnID,
		Resolver:      cmdCtx.Chain,
		TransformsDir: cfg.TransformsDir,
		Spool:         store,
		Logger:        cmdCtx.Logger,
		Debug:         cfg.Verbose,
	})
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	var connWatcher *connections.Watcher
	if watch {
		connWatcher = connections.NewWatcher(cmdCtx.File, cmdCtx.Logger)
	}

	srv := server.New(server.Config{
		Service:       svc,
		Port:          port,
		Watch:         watch,
		ConnWatcher:   connWatcher,
		AdminToken:    relayCfg.AdminToken,
		SessionSecret: sessionSecret(relayCfg.SessionSecret),
		Logger:        cmdCtx.Logger,
	})

	url := fmt.Sprintf("http://localhost:%d", port)
	if opts.Open {
		go openBrowser(url)
	}

	r := cmdCtx.Renderer
	r.Printf("Relay listening on %s\n", url)
	r.Printf("Delivering through connection %s with %d transforms\n", svc.ConnID(), svc.TransformCount())
	r.Println("Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}

// sessionSecret falls back to the environment, then to a fixed
// development secret.
func sessionSecret(configured string) string {
	if configured != "" {
		return configured
	}
	if secret := os.Getenv("LEAPFLOW_SESSION_SECRET"); secret != "" {
		return secret
	}
	return "leapflow-dev-secret-change-in-production" //nolint:gosec
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url) //nolint:noctx
	case "linux":
		cmd = exec.Command("xdg-open", url) //nolint:noctx
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url) //nolint:noctx
	default:
		return
	}

	_ = cmd.Start()
}
