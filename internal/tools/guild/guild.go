// Package guild implements the Discord-side tools the model can call:
// member and channel lookups, history reads, moderation actions, scheduled
// tasks, and saved memories. Every tool returns its outcome as text.
package guild

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Session is the slice of discordgo the tools need. *discordgo.Session
// satisfies everything except GuildState, which the adapter layers over the
// gateway state cache; tests use fakes.
type Session interface {
	// GuildState returns the cached guild including members, channels,
	// threads, and voice states.
	GuildState(guildID string) (*discordgo.Guild, error)

	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

// displayName mirrors Discord's display precedence: server nickname, then
// global name, then username.
func displayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return "unknown"
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

// channelKind labels a channel for listings.
func channelKind(ch *discordgo.Channel) string {
	switch ch.Type {
	case discordgo.ChannelTypeGuildVoice:
		return "voice"
	case discordgo.ChannelTypeGuildStageVoice:
		return "stage"
	case discordgo.ChannelTypeGuildForum:
		return "forum"
	default:
		return "text"
	}
}

func isThread(ch *discordgo.Channel) bool {
	switch ch.Type {
	case discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread,
		discordgo.ChannelTypeGuildNewsThread:
		return true
	}
	return false
}

// voiceOccupants maps voice channel ID to the members currently in it.
func voiceOccupants(g *discordgo.Guild) map[string][]*discordgo.Member {
	byUser := make(map[string]*discordgo.Member, len(g.Members))
	for _, m := range g.Members {
		if m.User != nil {
			byUser[m.User.ID] = m
		}
	}
	out := make(map[string][]*discordgo.Member)
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == "" {
			continue
		}
		if m := byUser[vs.UserID]; m != nil {
			out[vs.ChannelID] = append(out[vs.ChannelID], m)
		}
	}
	return out
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func errText(format string, args ...any) string {
	return fmt.Sprintf("Error: "+format, args...)
}
