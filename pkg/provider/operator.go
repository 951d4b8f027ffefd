package provider

import (
	"context"
	"log/slog"
	"time"
)

// TaskContext is what the host framework hands an operator when it runs.
type TaskContext struct {
	Context     context.Context
	Logger      *slog.Logger
	Connections ConnectionResolver
	RunID       string
	TaskID      string
	LogicalDate time.Time
	Params      map[string]any
}

// Log returns the task logger, or a discard logger when none is set.
func (tc TaskContext) Log() *slog.Logger {
	if tc.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return tc.Logger
}

// Ctx returns the task context, or context.Background when none is set.
func (tc TaskContext) Ctx() context.Context {
	if tc.Context == nil {
		return context.Background()
	}
	return tc.Context
}

// Operator is a single schedulable unit of work.
type Operator interface {
	// Name identifies the operator in logs and manifests.
	Name() string

	// Execute performs the work. Errors fail the task.
	Execute(tc TaskContext) error
}

// Hook is a configured handle to an external service, built from a
// connection.
type Hook interface {
	// ConnID returns the connection the hook was built from.
	ConnID() string

	// Test verifies the hook can reach its service.
	Test(ctx context.Context) error

	// Close releases the hook's resources.
	Close() error
}

// HookConfig carries what a provider needs to build a hook.
type HookConfig struct {
	ConnID   string
	Resolver ConnectionResolver
	Logger   *slog.Logger
}
