package guild

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/namielle/summabot/internal/timeparse"
	"github.com/namielle/summabot/internal/tools"
)

// History read caps. Long messages are clipped per line and the whole
// transcript is clipped once it would exceed maxHistoryChars.
const (
	defaultHistoryCount = 25
	maxHistoryCount     = 50
	maxMessageChars     = 200
	maxHistoryChars     = 4000
)

// HistoryTool reads recent messages from a channel or thread, with optional
// author, text, and recency filters that combine with AND.
type HistoryTool struct {
	session Session
}

// NewHistoryTool creates the read_channel_history tool.
func NewHistoryTool(session Session) *HistoryTool {
	return &HistoryTool{session: session}
}

func (t *HistoryTool) Name() string { return "read_channel_history" }

func (t *HistoryTool) Description() string {
	return "Read recent messages from a channel or thread in the server. Optional filters narrow by author, text content, or recency."
}

func (t *HistoryTool) RequiredPermission() tools.Permission { return "" }

func (t *HistoryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"channel_name": {
				"type": "string",
				"description": "Name of the channel or thread to read from."
			},
			"num_messages": {
				"type": "integer",
				"description": "Number of recent messages to fetch (default 25, max 50)."
			},
			"author": {
				"type": "string",
				"description": "Only include messages whose author name contains this text (case-insensitive)."
			},
			"contains": {
				"type": "string",
				"description": "Only include messages containing this text (case-insensitive)."
			},
			"since": {
				"type": "string",
				"description": "Only include messages newer than this, e.g. '2 hours' or '2026-03-01 09:00'."
			}
		},
		"required": ["channel_name"]
	}`)
}

type historyInput struct {
	ChannelName string `json:"channel_name"`
	NumMessages int    `json:"num_messages"`
	Author      string `json:"author"`
	Contains    string `json:"contains"`
	Since       string `json:"since"`
}

func (t *HistoryTool) Status(input json.RawMessage) string {
	var in historyInput
	_ = json.Unmarshal(input, &in)
	name := in.ChannelName
	if name == "" {
		name = "unknown"
	}
	return fmt.Sprintf("Reading history from #%s...", name)
}

func (t *HistoryTool) Execute(ctx context.Context, input json.RawMessage, ec tools.ExecContext) string {
	var in historyInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errText("invalid arguments: %v", err)
	}
	if in.ChannelName == "" {
		return "Error: channel_name is required."
	}

	count := in.NumMessages
	if count <= 0 {
		count = defaultHistoryCount
	}
	if count > maxHistoryCount {
		count = maxHistoryCount
	}

	cutoff, errMsg := parseSince(in.Since, ec.Clock())
	if errMsg != "" {
		return errMsg
	}

	g, err := t.session.GuildState(ec.GuildID)
	if err != nil {
		return errText("could not load server data: %v", err)
	}
	ch, findErr := findChannel(g, in.ChannelName, anyChannel)
	if findErr != "" {
		return findErr
	}

	perms, err := t.session.UserChannelPermissions(ec.BotUserID, ch.ID)
	if err == nil && perms&discordgo.PermissionReadMessageHistory == 0 {
		return fmt.Sprintf("I don't have permission to read message history in #%s.", ch.Name)
	}

	messages, err := t.session.ChannelMessages(ch.ID, count, "", "", "")
	if err != nil {
		return fmt.Sprintf("I don't have permission to read #%s.", ch.Name)
	}
	if len(messages) == 0 {
		return fmt.Sprintf("No recent messages in #%s.", ch.Name)
	}

	// The API returns newest first; render chronologically.
	filtered := make([]*discordgo.Message, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		if matchesFilters(messages[i], in, cutoff) {
			filtered = append(filtered, messages[i])
		}
	}
	if len(filtered) == 0 {
		return fmt.Sprintf("No messages in #%s matched the filters.", ch.Name)
	}

	var lines []string
	totalChars := 0
	for _, msg := range filtered {
		content := msg.Content
		if content == "" {
			content = "[no text]"
		}
		if len(content) > maxMessageChars {
			content = content[:maxMessageChars] + "..."
		}
		author := "unknown"
		if msg.Author != nil {
			author = msg.Author.GlobalName
			if author == "" {
				author = msg.Author.Username
			}
		}
		line := fmt.Sprintf("[%s] %s: %s", msg.Timestamp.Format("15:04"), author, content)
		totalChars += len(line)
		if totalChars > maxHistoryChars {
			lines = append(lines, "... (truncated)")
			break
		}
		lines = append(lines, line)
	}

	return fmt.Sprintf("Recent messages in #%s:\n%s", ch.Name, strings.Join(lines, "\n"))
}

// parseSince turns the since filter into a cutoff time. It accepts a
// duration back from now ("2 hours") or an absolute expression.
func parseSince(expr string, now time.Time) (time.Time, string) {
	if expr == "" {
		return time.Time{}, ""
	}
	if d, err := timeparse.ParseDuration(expr); err == nil {
		return now.Add(-d), ""
	}
	if t, err := timeparse.ParseFuture(expr, now.Add(-365*24*time.Hour)); err == nil {
		return t, ""
	}
	return time.Time{}, errText("could not parse since %q (try \"2 hours\" or \"2026-03-01 09:00\")", expr)
}

func matchesFilters(msg *discordgo.Message, in historyInput, cutoff time.Time) bool {
	if in.Author != "" {
		name := ""
		if msg.Author != nil {
			name = msg.Author.GlobalName + " " + msg.Author.Username
		}
		if !strings.Contains(strings.ToLower(name), strings.ToLower(in.Author)) {
			return false
		}
	}
	if in.Contains != "" && !strings.Contains(strings.ToLower(msg.Content), strings.ToLower(in.Contains)) {
		return false
	}
	if !cutoff.IsZero() && msg.Timestamp.Before(cutoff) {
		return false
	}
	return true
}
