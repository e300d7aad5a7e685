package discord

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/namielle/summabot/internal/engine"
	"github.com/namielle/summabot/internal/memory"
	"github.com/namielle/summabot/internal/prompt"
)

const (
	// historyLimit bounds the conversation window built from the channel.
	historyLimit = 50
	// maxMessageLen is Discord's message size cap.
	maxMessageLen = 2000
	// maxAttachments is Discord's per-message attachment cap.
	maxAttachments = 10
)

const errorReply = "Sorry, something went wrong while I was thinking. Please try again."

// respond runs the engine for one triggering message and delivers the
// result. Progress statuses edit a placeholder reply in place.
func (b *Bot) respond(ctx context.Context, m *discordgo.Message) {
	placeholder, err := b.session.ChannelMessageSendReply(m.ChannelID, "Thinking...", m.Reference())
	if err != nil {
		b.logger.Error(ctx, "failed to send placeholder", "channel_id", m.ChannelID, "error", err)
		return
	}

	sink := func(status string) {
		if _, err := b.session.ChannelMessageEdit(placeholder.ChannelID, placeholder.ID, status); err != nil {
			b.logger.Debug(ctx, "status edit failed", "error", err)
		}
	}

	turns := b.conversation(m)
	system := b.systemPrompt(ctx, m, turns)
	bound := b.deps.Registry.Bind(b.execContext(m))

	res, err := b.deps.Engine.Run(ctx, system, turns, bound, sink)
	if err != nil {
		b.logger.Error(ctx, "engine call failed", "channel_id", m.ChannelID, "error", err)
		b.edit(ctx, placeholder, errorReply)
		return
	}

	b.deliver(ctx, placeholder, res)
}

// conversation builds engine turns from the channel's recent history,
// oldest first. The bot's own messages become assistant turns; consecutive
// turns of the same role merge so the transcript alternates.
func (b *Bot) conversation(m *discordgo.Message) []engine.Turn {
	history, err := b.session.ChannelMessages(m.ChannelID, historyLimit, "", "", "")
	if err != nil {
		b.logger.Warn(b.ctx, "history fetch failed, using trigger only", "error", err)
		history = nil
	}

	// Newest-first from the API; walk backwards for chronological order.
	var turns []engine.Turn
	botID := b.botUserID()
	seen := false
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg.Content == "" || msg.Author == nil {
			continue
		}
		if msg.ID == m.ID {
			seen = true
		}
		turns = appendTurn(turns, formatTurn(msg, botID))
	}
	if !seen && m.Content != "" {
		turns = appendTurn(turns, formatTurn(m, botID))
	}
	if len(turns) == 0 {
		turns = []engine.Turn{engine.UserTurn(m.Content)}
	}
	// The transcript must open with the user's side.
	if turns[0].Role == engine.RoleAssistant {
		turns = turns[1:]
	}
	return turns
}

func formatTurn(msg *discordgo.Message, botID string) engine.Turn {
	if msg.Author.ID == botID {
		return engine.Turn{Role: engine.RoleAssistant, Text: msg.Content}
	}
	line := fmt.Sprintf("[%s] %s: %s",
		msg.Timestamp.Format("15:04"), msg.Author.Username, msg.Content)
	return engine.UserTurn(line)
}

// appendTurn merges consecutive same-role turns so the transcript
// alternates strictly.
func appendTurn(turns []engine.Turn, t engine.Turn) []engine.Turn {
	if n := len(turns); n > 0 && turns[n-1].Role == t.Role {
		turns[n-1].Text += "\n" + t.Text
		return turns
	}
	return append(turns, t)
}

func (b *Bot) systemPrompt(ctx context.Context, m *discordgo.Message, turns []engine.Turn) string {
	p := prompt.Params{
		Persona: b.deps.Persona,
		BotName: b.botName(),
		Now:     time.Now(),
	}

	if ch, err := b.session.State.Channel(m.ChannelID); err == nil && ch.Name != "" {
		p.ChannelName = ch.Name
		if ch.IsThread() {
			if parent, err := b.session.State.Channel(ch.ParentID); err == nil {
				p.ThreadParent = parent.Name
			}
		}
	}

	if b.deps.Memories != nil && m.GuildID != "" {
		if memories, err := b.deps.Memories.List(ctx, m.GuildID); err == nil {
			p.Memories = memory.FormatPrompt(memories)
		}
	}

	p.Profiles = b.profiles(m)
	return prompt.System(p)
}

// profiles collects registered profiles for users involved in the trigger.
func (b *Bot) profiles(m *discordgo.Message) []prompt.Profile {
	ids := []string{m.Author.ID}
	for _, u := range m.Mentions {
		ids = append(ids, u.ID)
	}
	var out []prompt.Profile
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if profile, ok := b.deps.State.UserProfileFor(id); ok && profile.Info != "" {
			name := profile.Name
			if name == "" {
				name = id
			}
			out = append(out, prompt.Profile{Name: name, Info: profile.Info})
		}
	}
	return out
}

// deliver edits the placeholder with the first response chunk, sends the
// rest as follow-ups, and attaches resolved artifacts.
func (b *Bot) deliver(ctx context.Context, placeholder *discordgo.Message, res *engine.Result) {
	text := strings.TrimSpace(res.Text)
	if text == "" && len(res.Artifacts) == 0 {
		b.edit(ctx, placeholder, "I don't have anything to say to that.")
		return
	}

	chunks := chunkMessage(text, maxMessageLen)
	if len(chunks) == 0 {
		chunks = []string{"Here you go:"}
	}
	b.edit(ctx, placeholder, chunks[0])
	for _, chunk := range chunks[1:] {
		if _, err := b.session.ChannelMessageSend(placeholder.ChannelID, chunk); err != nil {
			b.logger.Error(ctx, "failed to send follow-up chunk", "error", err)
			return
		}
	}

	if len(res.Artifacts) == 0 {
		return
	}
	artifacts := res.Artifacts
	if len(artifacts) > maxAttachments {
		b.logger.Warn(ctx, "dropping artifacts over attachment cap", "count", len(artifacts)-maxAttachments)
		artifacts = artifacts[:maxAttachments]
	}
	files := make([]*discordgo.File, 0, len(artifacts))
	for _, a := range artifacts {
		files = append(files, &discordgo.File{
			Name:        a.Filename,
			ContentType: a.MimeType,
			Reader:      bytes.NewReader(a.Data),
		})
	}
	if _, err := b.session.ChannelMessageSendComplex(placeholder.ChannelID, &discordgo.MessageSend{Files: files}); err != nil {
		b.logger.Error(ctx, "failed to send artifacts", "error", err)
	}
}

func (b *Bot) edit(ctx context.Context, msg *discordgo.Message, content string) {
	if _, err := b.session.ChannelMessageEdit(msg.ChannelID, msg.ID, content); err != nil {
		b.logger.Error(ctx, "failed to edit reply", "error", err)
	}
}
