// Package tools defines the client-side tool contract: tools the model can
// request during a conversation and the bot executes against Discord on its
// behalf. Execution never fails upward; every problem becomes a descriptive
// result string the model can read and react to.
package tools

import (
	"context"
	"encoding/json"
	"time"
)

// Permission is a capability token a caller may hold. Tools requiring a
// permission the caller lacks are omitted from the offered set entirely.
type Permission string

const (
	// PermManageMessages gates deleting other users' messages.
	PermManageMessages Permission = "manage_messages"
	// PermModerateMembers gates member timeouts.
	PermModerateMembers Permission = "moderate_members"
)

// ExecContext carries the identity and capabilities of one invocation. It is
// built fresh per conversation; grants are never cached across callers.
type ExecContext struct {
	GuildID     string
	ChannelID   string
	InvokerID   string
	InvokerName string
	// BotUserID identifies the bot itself, so tools can tell own content
	// from other users' content.
	BotUserID string
	Grants    map[Permission]bool
	// Now is the clock used for temporal filters; zero means time.Now.
	Now time.Time
}

// Has reports whether the context holds a permission.
func (ec ExecContext) Has(p Permission) bool {
	return ec.Grants[p]
}

// Clock returns the context's time, defaulting to the wall clock.
func (ec ExecContext) Clock() time.Time {
	if ec.Now.IsZero() {
		return time.Now()
	}
	return ec.Now
}

// Tool is one client-side tool.
//
// Execute returns a result string in every case; errors, rejections, and
// partial failures are all phrased as text for the model. Implementations
// must not panic; the registry still recovers if one does.
type Tool interface {
	Name() string
	Description() string

	// Schema returns the JSON schema for the tool's input.
	Schema() json.RawMessage

	// RequiredPermission returns the permission needed to offer this tool,
	// or empty if it is available to everyone.
	RequiredPermission() Permission

	// Status returns the progress line shown to the user while the tool
	// runs, e.g. "Reading history from #general...".
	Status(input json.RawMessage) string

	Execute(ctx context.Context, input json.RawMessage, ec ExecContext) string
}

// Spec is the declaration shape handed to the model API.
type Spec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}
