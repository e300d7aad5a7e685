package guild

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/namielle/summabot/internal/tools"
)

// ChannelsTool lists the server's channels organized by category, with voice
// occupancy and optional active threads.
type ChannelsTool struct {
	session Session
}

// NewChannelsTool creates the list_channels tool.
func NewChannelsTool(session Session) *ChannelsTool {
	return &ChannelsTool{session: session}
}

func (t *ChannelsTool) Name() string { return "list_channels" }

func (t *ChannelsTool) Description() string {
	return "List all channels in the Discord server, organized by category. Shows channel types and voice channel occupancy."
}

func (t *ChannelsTool) RequiredPermission() tools.Permission { return "" }

func (t *ChannelsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"include_threads": {
				"type": "boolean",
				"description": "Whether to include active threads. Defaults to false."
			}
		},
		"required": []
	}`)
}

func (t *ChannelsTool) Status(json.RawMessage) string {
	return "Listing server channels..."
}

type channelsInput struct {
	IncludeThreads bool `json:"include_threads"`
}

func (t *ChannelsTool) Execute(ctx context.Context, input json.RawMessage, ec tools.ExecContext) string {
	var in channelsInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errText("invalid arguments: %v", err)
	}

	g, err := t.session.GuildState(ec.GuildID)
	if err != nil {
		return errText("could not load server data: %v", err)
	}

	occupants := voiceOccupants(g)

	var categories []*discordgo.Channel
	byParent := make(map[string][]*discordgo.Channel)
	var uncategorized []*discordgo.Channel
	for _, ch := range g.Channels {
		switch {
		case ch.Type == discordgo.ChannelTypeGuildCategory:
			categories = append(categories, ch)
		case ch.ParentID != "":
			byParent[ch.ParentID] = append(byParent[ch.ParentID], ch)
		default:
			uncategorized = append(uncategorized, ch)
		}
	}
	sort.SliceStable(categories, func(i, j int) bool {
		return categories[i].Position < categories[j].Position
	})

	var lines []string
	appendChannels := func(chs []*discordgo.Channel) {
		sort.SliceStable(chs, func(i, j int) bool { return chs[i].Position < chs[j].Position })
		for _, ch := range chs {
			lines = append(lines, formatChannel(ch, len(occupants[ch.ID])))
		}
	}

	for _, cat := range categories {
		lines = append(lines, fmt.Sprintf("\n**%s**", cat.Name))
		appendChannels(byParent[cat.ID])
	}
	if len(uncategorized) > 0 {
		lines = append(lines, "\n**Uncategorized**")
		appendChannels(uncategorized)
	}

	if in.IncludeThreads && len(g.Threads) > 0 {
		channelNames := make(map[string]string, len(g.Channels))
		for _, ch := range g.Channels {
			channelNames[ch.ID] = ch.Name
		}
		lines = append(lines, "\n**Active Threads**")
		for _, th := range g.Threads {
			parent := channelNames[th.ParentID]
			if parent == "" {
				parent = "unknown"
			}
			lines = append(lines, fmt.Sprintf("  - #%s (thread in #%s)", th.Name, parent))
		}
	}

	return "Server channels:" + strings.Join(lines, "\n")
}

func formatChannel(ch *discordgo.Channel, voiceCount int) string {
	kind := channelKind(ch)
	if kind == "voice" || kind == "stage" {
		occupancy := ""
		if voiceCount > 0 {
			occupancy = fmt.Sprintf(" — %d member%s", voiceCount, plural(voiceCount))
		}
		return fmt.Sprintf("  - #%s (%s%s)", ch.Name, kind, occupancy)
	}
	return fmt.Sprintf("  - #%s (%s)", ch.Name, kind)
}
