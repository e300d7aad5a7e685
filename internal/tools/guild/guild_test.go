package guild

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/namielle/summabot/internal/tools"
)

// fakeSession is an in-memory Session for tests.
type fakeSession struct {
	guild    *discordgo.Guild
	messages map[string][]*discordgo.Message // channel ID -> newest first
	perms    map[string]int64                // channel ID -> bot permissions

	deleted   []string
	reactions []string
	timeouts  map[string]time.Time

	historyErr error
	deleteErr  map[string]error
}

func (f *fakeSession) GuildState(guildID string) (*discordgo.Guild, error) {
	if f.guild == nil {
		return nil, errors.New("guild not cached")
	}
	return f.guild, nil
}

func (f *fakeSession) ChannelMessage(channelID, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	for _, m := range f.messages[channelID] {
		if m.ID == messageID {
			return m, nil
		}
	}
	return nil, errors.New("unknown message")
}

func (f *fakeSession) ChannelMessages(channelID string, limit int, _, _, _ string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	msgs := f.messages[channelID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (f *fakeSession) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	if err := f.deleteErr[messageID]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeSession) MessageReactionAdd(channelID, messageID, emojiID string, _ ...discordgo.RequestOption) error {
	f.reactions = append(f.reactions, messageID+":"+emojiID)
	return nil
}

func (f *fakeSession) GuildMemberTimeout(guildID, userID string, until *time.Time, _ ...discordgo.RequestOption) error {
	if f.timeouts == nil {
		f.timeouts = map[string]time.Time{}
	}
	f.timeouts[userID] = *until
	return nil
}

func (f *fakeSession) UserChannelPermissions(userID, channelID string, _ ...discordgo.RequestOption) (int64, error) {
	if f.perms == nil {
		return discordgo.PermissionAll, nil
	}
	return f.perms[channelID], nil
}

func member(id, nick, username string, bot bool) *discordgo.Member {
	return &discordgo.Member{
		Nick: nick,
		User: &discordgo.User{ID: id, Username: username, Bot: bot},
	}
}

func textChannel(id, name string) *discordgo.Channel {
	return &discordgo.Channel{ID: id, Name: name, Type: discordgo.ChannelTypeGuildText}
}

func voiceChannel(id, name string) *discordgo.Channel {
	return &discordgo.Channel{ID: id, Name: name, Type: discordgo.ChannelTypeGuildVoice}
}

// testGuild builds a small guild: two text channels, one voice channel with
// one occupant, a category, and a thread.
func testGuild() *discordgo.Guild {
	category := &discordgo.Channel{ID: "cat1", Name: "General", Type: discordgo.ChannelTypeGuildCategory}
	general := textChannel("c1", "general")
	general.ParentID = "cat1"
	random := textChannel("c2", "rock-n-roll")
	lounge := voiceChannel("v1", "lounge")
	lounge.ParentID = "cat1"

	return &discordgo.Guild{
		ID:          "g1",
		MemberCount: 3,
		Members: []*discordgo.Member{
			member("u1", "Ada", "ada", false),
			member("u2", "", "grace", false),
			member("bot1", "", "summabot", true),
		},
		Channels: []*discordgo.Channel{category, general, random, lounge},
		Threads: []*discordgo.Channel{
			{ID: "t1", Name: "book-club", Type: discordgo.ChannelTypeGuildPublicThread, ParentID: "c1"},
		},
		VoiceStates: []*discordgo.VoiceState{
			{UserID: "u1", ChannelID: "v1"},
		},
	}
}

func messagesFor(authors ...string) []*discordgo.Message {
	out := make([]*discordgo.Message, len(authors))
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	for i, a := range authors {
		out[i] = &discordgo.Message{
			ID:        fmt.Sprintf("m%d", i+1),
			Content:   "hello from " + a,
			Author:    &discordgo.User{ID: "id-" + a, Username: a},
			Timestamp: base.Add(-time.Duration(i) * time.Minute),
		}
	}
	return out
}

func ec() tools.ExecContext {
	return tools.ExecContext{
		GuildID:     "g1",
		InvokerID:   "u2",
		InvokerName: "grace",
		BotUserID:   "bot1",
		Now:         time.Date(2026, 2, 10, 12, 30, 0, 0, time.UTC),
	}
}

func ecWith(perms ...tools.Permission) tools.ExecContext {
	c := ec()
	c.Grants = map[tools.Permission]bool{}
	for _, p := range perms {
		c.Grants[p] = true
	}
	return c
}
