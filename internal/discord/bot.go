// Package discord is the bot surface: gateway wiring, the mention/DM
// trigger, slash commands, and delivery of engine results back to channels.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/namielle/summabot/internal/config"
	"github.com/namielle/summabot/internal/engine"
	"github.com/namielle/summabot/internal/memory"
	"github.com/namielle/summabot/internal/observability"
	"github.com/namielle/summabot/internal/tools"
	"github.com/namielle/summabot/internal/tools/guild"
)

// politeDecline is sent once per guild in polite mode.
const politeDecline = "Sorry, I'm not set up to chat in this server. Please ask my operator to authorize it."

// Deps collects the bot's collaborators. The scheduler is wired the other
// way around: the bot implements scheduler.Runner.
type Deps struct {
	Config   *config.Config
	State    *config.State
	Engine   *engine.Engine
	Registry *tools.Registry
	Memories *memory.Store
	Logger   *observability.Logger
	Metrics  *observability.Metrics

	// Persona is the raw persona text; {{BOT_NAME}} expands at prompt time.
	Persona string
}

// Bot owns the gateway session and dispatches events.
type Bot struct {
	session *discordgo.Session
	deps    Deps
	logger  *observability.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a bot over a fresh gateway session. Start opens the
// connection.
func New(deps Deps) (*Bot, error) {
	session, err := discordgo.New("Bot " + deps.Config.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildVoiceStates
	session.State.MaxMessageCount = 0

	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}

	b := &Bot{session: session, deps: deps, logger: logger}
	session.AddHandler(b.handleReady)
	session.AddHandler(b.handleMessageCreate)
	session.AddHandler(b.handleGuildCreate)
	session.AddHandler(b.handleInteractionCreate)
	return b, nil
}

// Start opens the gateway connection and registers slash commands.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	if err := b.registerCommands(); err != nil {
		b.session.Close()
		return err
	}
	b.logger.Info(ctx, "discord bot started")
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	return b.session.Close()
}

func (b *Bot) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info(b.ctx, "logged in",
		"user", r.User.Username,
		"guilds", len(r.Guilds))
}

// handleGuildCreate enforces server authorization on join. Leave mode drops
// the guild immediately; the other modes act when someone talks to the bot.
func (b *Bot) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.deps.State.IsServerAuthorized(g.ID) {
		return
	}
	if b.deps.State.UnauthorizedModeValue() == config.UnauthorizedLeave {
		b.logger.Info(b.ctx, "leaving unauthorized guild", "guild_id", g.ID, "guild", g.Name)
		if err := s.GuildLeave(g.ID); err != nil {
			b.logger.Error(b.ctx, "failed to leave guild", "guild_id", g.ID, "error", err)
		}
	}
}

func (b *Bot) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	isDM := m.GuildID == ""
	if !isDM {
		if !b.authorizedOrHandled(s, m) {
			return
		}
		if !b.deps.State.IsChannelAllowed(m.GuildID, m.ChannelID) {
			return
		}
		if !b.mentioned(m.Message) {
			return
		}
	}

	go b.respond(b.ctx, m.Message)
}

// authorizedOrHandled gates a guild message on server authorization,
// applying the configured unauthorized mode. It returns true when the
// message should proceed to normal handling.
func (b *Bot) authorizedOrHandled(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	if b.deps.State.IsServerAuthorized(m.GuildID) {
		return true
	}

	switch b.deps.State.UnauthorizedModeValue() {
	case config.UnauthorizedPolite:
		if !b.mentioned(m.Message) {
			return false
		}
		first, err := b.deps.State.MarkPoliteDeclined(m.GuildID)
		if err != nil {
			b.logger.Error(b.ctx, "failed to record polite decline", "error", err)
		}
		if first {
			if _, err := s.ChannelMessageSendReply(m.ChannelID, politeDecline, m.Reference()); err != nil {
				b.logger.Warn(b.ctx, "failed to send polite decline", "error", err)
			}
		}
	case config.UnauthorizedLeave:
		b.logger.Info(b.ctx, "leaving unauthorized guild on message", "guild_id", m.GuildID)
		if err := s.GuildLeave(m.GuildID); err != nil {
			b.logger.Error(b.ctx, "failed to leave guild", "guild_id", m.GuildID, "error", err)
		}
	case config.UnauthorizedBadBot:
		if b.mentioned(m.Message) {
			if _, err := s.ChannelMessageSendReply(m.ChannelID, "No.", m.Reference()); err != nil {
				b.logger.Warn(b.ctx, "failed to send refusal", "error", err)
			}
		}
	}
	return false
}

func (b *Bot) mentioned(m *discordgo.Message) bool {
	me := b.session.State.User
	if me == nil {
		return false
	}
	for _, u := range m.Mentions {
		if u.ID == me.ID {
			return true
		}
	}
	return false
}

func (b *Bot) botUserID() string {
	if me := b.session.State.User; me != nil {
		return me.ID
	}
	return ""
}

func (b *Bot) botName() string {
	if me := b.session.State.User; me != nil {
		return me.Username
	}
	return "the bot"
}

// execContext builds the tool execution context for one invocation. Grants
// derive from the invoking user's channel permissions, so the model can only
// take destructive actions the human asking for them could take.
func (b *Bot) execContext(m *discordgo.Message) tools.ExecContext {
	grants := map[tools.Permission]bool{}
	if perms, err := b.session.UserChannelPermissions(m.Author.ID, m.ChannelID); err == nil {
		if perms&discordgo.PermissionManageMessages != 0 {
			grants[tools.PermManageMessages] = true
		}
		if perms&discordgo.PermissionModerateMembers != 0 {
			grants[tools.PermModerateMembers] = true
		}
	}
	name := m.Author.Username
	if member, err := b.session.State.Member(m.GuildID, m.Author.ID); err == nil && member.Nick != "" {
		name = member.Nick
	}
	return tools.ExecContext{
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		InvokerID:   m.Author.ID,
		InvokerName: name,
		BotUserID:   b.botUserID(),
		Grants:      grants,
		Now:         time.Now(),
	}
}

// sessionAdapter exposes the gateway state cache through the tool session
// interface, falling back to the REST API when the cache misses.
type sessionAdapter struct {
	*discordgo.Session
}

func (a sessionAdapter) GuildState(guildID string) (*discordgo.Guild, error) {
	if g, err := a.State.Guild(guildID); err == nil {
		return g, nil
	}
	return a.Guild(guildID)
}

// ToolSession returns the session view the guild tools consume.
func (b *Bot) ToolSession() guild.Session {
	return sessionAdapter{b.session}
}
