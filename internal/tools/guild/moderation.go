package guild

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/namielle/summabot/internal/timeparse"
	"github.com/namielle/summabot/internal/tools"
)

// maxTimeout is Discord's ceiling for member timeouts.
const maxTimeout = 28 * 24 * time.Hour

// DeleteMessagesTool deletes one or more messages in a channel. Deleting the
// bot's own messages needs no permission; deleting anyone else's requires
// manage_messages, checked per message.
type DeleteMessagesTool struct {
	session Session
}

// NewDeleteMessagesTool creates the delete_messages tool.
func NewDeleteMessagesTool(session Session) *DeleteMessagesTool {
	return &DeleteMessagesTool{session: session}
}

func (t *DeleteMessagesTool) Name() string { return "delete_messages" }

func (t *DeleteMessagesTool) Description() string {
	return "Delete one or more messages from a channel by message ID. Deleting other users' messages requires the manage messages permission."
}

// RequiredPermission is empty: own-message deletion is always allowed, so
// the tool stays offered and the elevated check happens per message.
func (t *DeleteMessagesTool) RequiredPermission() tools.Permission { return "" }

func (t *DeleteMessagesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"channel_name": {
				"type": "string",
				"description": "Name of the channel containing the messages."
			},
			"message_ids": {
				"type": "array",
				"items": {"type": "string"},
				"minItems": 1,
				"description": "IDs of the messages to delete."
			}
		},
		"required": ["channel_name", "message_ids"]
	}`)
}

type deleteInput struct {
	ChannelName string   `json:"channel_name"`
	MessageIDs  []string `json:"message_ids"`
}

func (t *DeleteMessagesTool) Status(input json.RawMessage) string {
	var in deleteInput
	_ = json.Unmarshal(input, &in)
	if n := len(in.MessageIDs); n > 1 {
		return fmt.Sprintf("Deleting %d messages...", n)
	}
	return "Deleting a message..."
}

func (t *DeleteMessagesTool) Execute(ctx context.Context, input json.RawMessage, ec tools.ExecContext) string {
	var in deleteInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errText("invalid arguments: %v", err)
	}

	g, err := t.session.GuildState(ec.GuildID)
	if err != nil {
		return errText("could not load server data: %v", err)
	}
	ch, findErr := findChannel(g, in.ChannelName, textChannels)
	if findErr != "" {
		return findErr
	}

	deleteOne := func(id string) error {
		msg, err := t.session.ChannelMessage(ch.ID, id)
		if err != nil {
			return fmt.Errorf("message not found")
		}
		own := msg.Author != nil && msg.Author.ID == ec.BotUserID
		if !own && !ec.Has(tools.PermManageMessages) {
			return fmt.Errorf("deleting other users' messages requires the manage messages permission")
		}
		return t.session.ChannelMessageDelete(ch.ID, id)
	}

	return runBatch(in.MessageIDs, deleteOne,
		"Deleted the message.",
		fmt.Sprintf("Could not delete the message in #%s", ch.Name),
		"Deleted", "message")
}

// ReactionTool adds an emoji reaction to one or more messages.
type ReactionTool struct {
	session Session
}

// NewReactionTool creates the add_reaction tool.
func NewReactionTool(session Session) *ReactionTool {
	return &ReactionTool{session: session}
}

func (t *ReactionTool) Name() string { return "add_reaction" }

func (t *ReactionTool) Description() string {
	return "Add an emoji reaction to one or more messages in a channel."
}

func (t *ReactionTool) RequiredPermission() tools.Permission { return "" }

func (t *ReactionTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"channel_name": {
				"type": "string",
				"description": "Name of the channel containing the messages."
			},
			"message_ids": {
				"type": "array",
				"items": {"type": "string"},
				"minItems": 1,
				"description": "IDs of the messages to react to."
			},
			"emoji": {
				"type": "string",
				"description": "The emoji to react with, e.g. \"👍\" or a custom emoji as name:id."
			}
		},
		"required": ["channel_name", "message_ids", "emoji"]
	}`)
}

type reactionInput struct {
	ChannelName string   `json:"channel_name"`
	MessageIDs  []string `json:"message_ids"`
	Emoji       string   `json:"emoji"`
}

func (t *ReactionTool) Status(json.RawMessage) string {
	return "Adding a reaction..."
}

func (t *ReactionTool) Execute(ctx context.Context, input json.RawMessage, ec tools.ExecContext) string {
	var in reactionInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errText("invalid arguments: %v", err)
	}

	g, err := t.session.GuildState(ec.GuildID)
	if err != nil {
		return errText("could not load server data: %v", err)
	}
	ch, findErr := findChannel(g, in.ChannelName, textChannels)
	if findErr != "" {
		return findErr
	}

	reactOne := func(id string) error {
		return t.session.MessageReactionAdd(ch.ID, id, in.Emoji)
	}

	return runBatch(in.MessageIDs, reactOne,
		fmt.Sprintf("Added %s to the message.", in.Emoji),
		fmt.Sprintf("Could not react in #%s", ch.Name),
		"Reacted to", "message")
}

// TimeoutTool times out a member for a human-phrased duration. It affects
// another actor, so it is only offered when moderate_members is granted.
type TimeoutTool struct {
	session Session
}

// NewTimeoutTool creates the timeout_member tool.
func NewTimeoutTool(session Session) *TimeoutTool {
	return &TimeoutTool{session: session}
}

func (t *TimeoutTool) Name() string { return "timeout_member" }

func (t *TimeoutTool) Description() string {
	return "Temporarily time out a server member so they cannot send messages. Duration accepts phrases like \"10 minutes\" or \"1 day\"."
}

func (t *TimeoutTool) RequiredPermission() tools.Permission {
	return tools.PermModerateMembers
}

func (t *TimeoutTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"member_name": {
				"type": "string",
				"description": "Display name or username of the member to time out."
			},
			"duration": {
				"type": "string",
				"description": "How long, e.g. \"30 seconds\", \"10 minutes\", \"2 hours\", \"1 day\"."
			},
			"reason": {
				"type": "string",
				"description": "Optional reason, visible in the audit log."
			}
		},
		"required": ["member_name", "duration"]
	}`)
}

type timeoutInput struct {
	MemberName string `json:"member_name"`
	Duration   string `json:"duration"`
	Reason     string `json:"reason"`
}

func (t *TimeoutTool) Status(input json.RawMessage) string {
	var in timeoutInput
	_ = json.Unmarshal(input, &in)
	if in.MemberName != "" {
		return fmt.Sprintf("Timing out %s...", in.MemberName)
	}
	return "Timing out a member..."
}

func (t *TimeoutTool) Execute(ctx context.Context, input json.RawMessage, ec tools.ExecContext) string {
	var in timeoutInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errText("invalid arguments: %v", err)
	}

	d, err := timeparse.ParseDuration(in.Duration)
	if err != nil {
		return errText("%v", err)
	}
	if d > maxTimeout {
		return errText("timeouts cannot exceed 28 days")
	}

	g, err := t.session.GuildState(ec.GuildID)
	if err != nil {
		return errText("could not load server data: %v", err)
	}
	member, findErr := findMember(g, in.MemberName)
	if findErr != "" {
		return findErr
	}
	if member.User != nil && member.User.ID == ec.InvokerID {
		return "Error: you cannot time yourself out through me."
	}
	if member.User != nil && member.User.ID == ec.BotUserID {
		return "Error: I am not going to time myself out."
	}

	until := ec.Clock().Add(d)
	if err := t.session.GuildMemberTimeout(ec.GuildID, member.User.ID, &until); err != nil {
		return errText("could not time out %s: %v", displayName(member), err)
	}
	return fmt.Sprintf("Timed out %s for %s.", displayName(member), in.Duration)
}

// runBatch applies op to each target with per-item isolation. A single
// target returns a plain message; multiple targets return a tally with the
// first few failure reasons.
func runBatch(ids []string, op func(id string) error, singleOK, singleFail, verb, noun string) string {
	if len(ids) == 0 {
		return errText("no %ss given", noun)
	}
	if len(ids) == 1 {
		if err := op(ids[0]); err != nil {
			return fmt.Sprintf("%s: %v", singleFail, err)
		}
		return singleOK
	}

	var failures []string
	ok := 0
	for _, id := range ids {
		if err := op(id); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		ok++
	}
	result := fmt.Sprintf("%s %d of %d %ss.", verb, ok, len(ids), noun)
	if len(failures) > 0 {
		shown := failures
		if len(shown) > 3 {
			shown = shown[:3]
		}
		result += fmt.Sprintf(" %d failed (%s)", len(failures), strings.Join(shown, "; "))
	}
	return result
}
