package posthog

import (
	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

// TrackEventOperator sends a track event to PostHog for a user.
type TrackEventOperator struct {
	// UserID is the ID for this user in your database.
	UserID string
	// Event is the name of the event you're tracking.
	Event string
	// Properties carries event attributes.
	Properties map[string]any
	// ConnID overrides the connection, DefaultConnID otherwise.
	ConnID string
	// DebugMode puts the PostHog client in debug mode.
	DebugMode bool
}

func (o *TrackEventOperator) Name() string { return "TrackEventOperator" }

func (o *TrackEventOperator) Execute(tc provider.TaskContext) error {
	hook := o.hook(tc)
	defer hook.Close()

	tc.Log().Info("sending track event",
		"event", o.Event,
		"user_id", o.UserID,
		"properties", o.Properties,
	)

	if err := hook.Capture(tc.Ctx(), o.UserID, o.Event, o.Properties); err != nil {
		return err
	}
	return hook.Flush(tc.Ctx())
}

func (o *TrackEventOperator) hook(tc provider.TaskContext) *Hook {
	return NewHook(provider.HookConfig{
		ConnID:   o.ConnID,
		Resolver: tc.Connections,
		Logger:   tc.Log(),
	}, WithDebug(o.DebugMode))
}

// IdentifyOperator sets person properties for a user.
type IdentifyOperator struct {
	UserID     string
	Properties map[string]any
	ConnID     string
	DebugMode  bool
}

func (o *IdentifyOperator) Name() string { return "IdentifyOperator" }

func (o *IdentifyOperator) Execute(tc provider.TaskContext) error {
	hook := NewHook(provider.HookConfig{
		ConnID:   o.ConnID,
		Resolver: tc.Connections,
		Logger:   tc.Log(),
	}, WithDebug(o.DebugMode))
	defer hook.Close()

	tc.Log().Info("sending identify",
		"user_id", o.UserID,
		"properties", o.Properties,
	)

	if err := hook.Identify(tc.Ctx(), o.UserID, o.Properties); err != nil {
		return err
	}
	return hook.Flush(tc.Ctx())
}

// AliasOperator links a new distinct ID to a previously known one.
type AliasOperator struct {
	// PreviousID is the ID PostHog already knows the user by.
	PreviousID string
	// Alias is the new ID to associate.
	Alias     string
	ConnID    string
	DebugMode bool
}

func (o *AliasOperator) Name() string { return "AliasOperator" }

func (o *AliasOperator) Execute(tc provider.TaskContext) error {
	hook := NewHook(provider.HookConfig{
		ConnID:   o.ConnID,
		Resolver: tc.Connections,
		Logger:   tc.Log(),
	}, WithDebug(o.DebugMode))
	defer hook.Close()

	tc.Log().Info("sending alias",
		"previous_id", o.PreviousID,
		"alias", o.Alias,
	)

	if err := hook.Alias(tc.Ctx(), o.PreviousID, o.Alias); err != nil {
		return err
	}
	return hook.Flush(tc.Ctx())
}

// GroupIdentifyOperator sets properties on a group.
type GroupIdentifyOperator struct {
	GroupType  string
	GroupKey   string
	Properties map[string]any
	ConnID     string
	DebugMode  bool
}

func (o *GroupIdentifyOperator) Name() string { return "GroupIdentifyOperator" }

func (o *GroupIdentifyOperator) Execute(tc provider.TaskContext) error {
	hook := NewHook(provider.HookConfig{
		ConnID:   o.ConnID,
		Resolver: tc.Connections,
		Logger:   tc.Log(),
	}, WithDebug(o.DebugMode))
	defer hook.Close()

	tc.Log().Info("sending group identify",
		"group_type", o.GroupType,
		"group_key", o.GroupKey,
		"properties", o.Properties,
	)

	if err := hook.GroupIdentify(tc.Ctx(), o.GroupType, o.GroupKey, o.Properties); err != nil {
		return err
	}
	return hook.Flush(tc.Ctx())
}
