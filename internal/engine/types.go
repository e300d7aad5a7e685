// Package engine drives one bounded conversation with the model provider: a
// loop of streaming rounds that dispatches on the stop signal, executes
// client tool requests, and collects text and artifacts across rounds.
package engine

import (
	"context"
	"encoding/json"

	"github.com/namielle/summabot/internal/artifacts"
	"github.com/namielle/summabot/internal/tools"
)

// Role is a conversation turn role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall is a client tool request decoded from an assistant round.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is the outcome of one tool call, fed back to the model.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Turn is one conversation turn.
//
// An assistant turn produced by a provider carries the provider's own encoded
// form in raw, so resubmitting it on a continuation preserves server tool
// blocks the portable fields cannot represent.
type Turn struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult

	raw any
}

// UserTurn builds a plain-text user turn.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// ResultsTurn builds a user turn carrying tool results.
func ResultsTurn(results []ToolResult) Turn {
	return Turn{Role: RoleUser, ToolResults: results}
}

// StopSignal is the terminal condition of one streaming round.
type StopSignal string

const (
	// StopEndTurn is a normal completion.
	StopEndTurn StopSignal = "end_turn"
	// StopPauseTurn asks the caller to resubmit so the provider can keep
	// running its own server-side tools.
	StopPauseTurn StopSignal = "pause_turn"
	// StopToolUse asks the caller to execute client tools and reply with
	// their results.
	StopToolUse StopSignal = "tool_use"
)

// PartKind distinguishes prose from machine output in a round's text.
type PartKind int

const (
	PartText PartKind = iota
	// PartStdout is sandboxed code execution output, rendered fenced so it
	// stays visually distinct from prose.
	PartStdout
)

// Part is one text block emitted during a round.
type Part struct {
	Kind PartKind
	Text string
}

// Round is the decoded outcome of one streaming call.
type Round struct {
	Parts     []Part
	ToolCalls []ToolCall
	Artifacts []artifacts.Ref
	Stop      StopSignal

	// Assistant is the round's content as a resubmittable turn.
	Assistant Turn

	InputTokens  int64
	OutputTokens int64
}

// RoundRequest is one streaming call's input.
type RoundRequest struct {
	System string
	Turns  []Turn
	Tools  []tools.Spec

	// Status receives progress strings during the round; may be nil.
	Status StatusFunc
}

// Provider opens streaming rounds against a model API. Stream blocks until
// the round terminates and returns its decoded form; it fails only on
// transport or authentication problems.
type Provider interface {
	Stream(ctx context.Context, req RoundRequest) (*Round, error)
}

// ToolExecutor supplies and runs client tools for one conversation. Execute
// never fails; problems come back as result text for the model.
type ToolExecutor interface {
	Specs() []tools.Spec
	Status(name string, input json.RawMessage) string
	Execute(ctx context.Context, name string, input json.RawMessage) string
}

// StatusFunc receives human-readable progress strings. Delivery is
// fire-and-forget; a sink that panics or blocks briefly never aborts a round.
type StatusFunc func(status string)

// Result is the outcome of one orchestration call.
type Result struct {
	Text      string
	Artifacts []artifacts.Resolved

	// Degraded marks a response finalized by ceiling exhaustion rather than
	// a normal completion. Still a success from the caller's side.
	Degraded bool
}
