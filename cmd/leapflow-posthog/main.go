// Command leapflow-posthog delivers analytics events to PostHog from
// LeapFlow pipelines: one-off sends, an interactive console, a local
// relay with Starlark transforms, and tooling around the durable spool.
package main

import (
	"os"

	"github.com/leapstack-labs/leapflow-posthog/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
