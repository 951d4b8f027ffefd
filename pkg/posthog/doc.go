// Package posthog provides a batching client for the PostHog event
// ingestion API.
//
// A Client queues messages locally and ships them to the /batch endpoint
// in the background, so enqueueing is cheap and never blocks on the
// network:
//
//	client, err := posthog.New(os.Getenv("POSTHOG_PROJECT_API_KEY"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.Enqueue(posthog.Capture{
//	    DistinctID: "user-42",
//	    Event:      "signed up",
//	    Properties: posthog.NewProperties().Set("plan", "team"),
//	})
//
// # Delivery semantics
//
// Delivery is asynchronous and best effort. Messages accumulate until a
// batch reaches Config.BatchSize or Config.Interval elapses, whichever
// comes first. Failed batches are retried with exponential backoff up to
// Config.MaxRetries times; responses in the 4xx range (other than 408 and
// 429) are treated as permanent and are not retried. Messages are dropped
// when the queue holds Config.MaxQueueSize pending messages, and may be
// lost if the process exits without Close being called. Attach a
// Callback to observe the outcome of every message and spool failures
// somewhere durable.
//
// # Shutdown
//
// Close stops intake, drains the queue, delivers the remaining batches
// and waits for callbacks to finish. Enqueue returns ErrClosed afterward.
//
// # Feature flags
//
// When Config.PersonalAPIKey is set the client polls the feature flag
// definitions and evaluates simple rollout flags locally with the same
// consistent hash the server uses. Everything else is resolved through
// the /decide endpoint.
//
// The Client is safe for concurrent use.
package posthog
