package guild

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/namielle/summabot/internal/tools"
)

// maxMembersShown caps the "all members" listing.
const maxMembersShown = 200

// MembersTool lists server members, optionally filtered to voice channels or
// to recent activity in a text channel.
type MembersTool struct {
	session Session
}

// NewMembersTool creates the get_server_members tool.
func NewMembersTool(session Session) *MembersTool {
	return &MembersTool{session: session}
}

func (t *MembersTool) Name() string { return "get_server_members" }

func (t *MembersTool) Description() string {
	return "See who is in the Discord server. Can show all members, members in voice channels, or members recently active in a specific channel."
}

func (t *MembersTool) RequiredPermission() tools.Permission { return "" }

func (t *MembersTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filter": {
				"type": "string",
				"enum": ["all", "voice", "channel"],
				"description": "Filter type: 'all' lists server members, 'voice' lists members in voice channels, 'channel' lists recently active members in a text channel."
			},
			"channel_name": {
				"type": "string",
				"description": "Channel name to filter by. Required when filter is 'channel', optional for 'voice' to check a specific voice channel."
			}
		},
		"required": ["filter"]
	}`)
}

type membersInput struct {
	Filter      string `json:"filter"`
	ChannelName string `json:"channel_name"`
}

func (t *MembersTool) Status(input json.RawMessage) string {
	var in membersInput
	_ = json.Unmarshal(input, &in)
	if in.ChannelName != "" {
		return fmt.Sprintf("Checking who's in #%s...", in.ChannelName)
	}
	if in.Filter == "voice" {
		return "Checking voice channels..."
	}
	return "Checking server members..."
}

func (t *MembersTool) Execute(ctx context.Context, input json.RawMessage, ec tools.ExecContext) string {
	var in membersInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errText("invalid arguments: %v", err)
	}

	g, err := t.session.GuildState(ec.GuildID)
	if err != nil {
		return errText("could not load server data: %v", err)
	}

	switch in.Filter {
	case "all":
		return t.allMembers(g)
	case "voice":
		return t.voiceMembers(g, in.ChannelName)
	case "channel":
		return t.activeMembers(g, in.ChannelName, ec)
	default:
		return fmt.Sprintf("Unknown filter: %s", in.Filter)
	}
}

func (t *MembersTool) allMembers(g *discordgo.Guild) string {
	occupants := voiceOccupants(g)
	voiceChannelOf := make(map[string]string) // user ID -> voice channel name
	channelNames := make(map[string]string, len(g.Channels))
	for _, ch := range g.Channels {
		channelNames[ch.ID] = ch.Name
	}
	for chID, members := range occupants {
		for _, m := range members {
			if m.User != nil {
				voiceChannelOf[m.User.ID] = channelNames[chID]
			}
		}
	}

	total := g.MemberCount
	if total == 0 {
		total = len(g.Members)
	}

	var lines []string
	for _, m := range g.Members {
		if len(lines) >= maxMembersShown {
			break
		}
		var parts []string
		if m.User != nil && m.User.Bot {
			parts = append(parts, "bot")
		}
		if m.User != nil {
			if vc := voiceChannelOf[m.User.ID]; vc != "" {
				parts = append(parts, fmt.Sprintf("in voice: #%s", vc))
			}
		}
		suffix := ""
		if len(parts) > 0 {
			suffix = fmt.Sprintf(" (%s)", strings.Join(parts, ", "))
		}
		lines = append(lines, fmt.Sprintf("- %s%s", displayName(m), suffix))
	}
	return fmt.Sprintf("Server members (%d shown, %d total):\n%s",
		len(lines), total, strings.Join(lines, "\n"))
}

func (t *MembersTool) voiceMembers(g *discordgo.Guild, channelName string) string {
	occupants := voiceOccupants(g)

	if channelName != "" {
		ch, errMsg := findChannel(g, channelName, voiceChannels)
		if errMsg != "" {
			return errMsg
		}
		members := occupants[ch.ID]
		if len(members) == 0 {
			return fmt.Sprintf("No one is in #%s right now.", ch.Name)
		}
		var lines []string
		for _, m := range members {
			lines = append(lines, "- "+displayName(m))
		}
		return fmt.Sprintf("Members in #%s:\n%s", ch.Name, strings.Join(lines, "\n"))
	}

	var lines []string
	for _, ch := range g.Channels {
		if !voiceChannels(ch) {
			continue
		}
		members := occupants[ch.ID]
		if len(members) == 0 {
			continue
		}
		names := make([]string, len(members))
		for i, m := range members {
			names[i] = displayName(m)
		}
		lines = append(lines, fmt.Sprintf("#%s: %s", ch.Name, strings.Join(names, ", ")))
	}
	if len(lines) == 0 {
		return "No one is in any voice channel right now."
	}
	return "Members in voice channels:\n" + strings.Join(lines, "\n")
}

// activeMembers lists unique non-bot authors from the channel's recent
// history, most recent first.
func (t *MembersTool) activeMembers(g *discordgo.Guild, channelName string, ec tools.ExecContext) string {
	if channelName == "" {
		return "Error: channel_name is required when filter is 'channel'."
	}
	ch, errMsg := findChannel(g, channelName, textChannels)
	if errMsg != "" {
		return errMsg
	}

	messages, err := t.session.ChannelMessages(ch.ID, 50, "", "", "")
	if err != nil {
		return fmt.Sprintf("I don't have permission to read #%s.", ch.Name)
	}

	seen := make(map[string]bool)
	var lines []string
	for _, msg := range messages {
		if msg.Author == nil || msg.Author.Bot || seen[msg.Author.ID] {
			continue
		}
		seen[msg.Author.ID] = true
		name := msg.Author.GlobalName
		if name == "" {
			name = msg.Author.Username
		}
		lines = append(lines, "- "+name)
	}
	if len(lines) == 0 {
		return fmt.Sprintf("No recent non-bot activity in #%s.", ch.Name)
	}
	return fmt.Sprintf("Recently active members in #%s:\n%s", ch.Name, strings.Join(lines, "\n"))
}
