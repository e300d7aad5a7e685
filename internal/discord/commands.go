package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/namielle/summabot/internal/config"
	"github.com/namielle/summabot/internal/engine"
)

const noPermissionReply = "Sorry, you don't have permission to use this command!"

func commandDefinitions() []*discordgo.ApplicationCommand {
	minMessages := float64(1)
	return []*discordgo.ApplicationCommand{
		{
			Name:        "summarize",
			Description: "Summarize recent messages in this channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "num_messages",
					Description: "How many messages to summarize (default 20)",
					MinValue:    &minMessages,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "accent",
					Description: "Write the summary in this accent or style",
				},
			},
		},
		{
			Name:        "register_user",
			Description: "Tell the bot a bit about yourself",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "info",
					Description: "One line about you",
					Required:    true,
				},
			},
		},
		{
			Name:        "chat_allowlist_add",
			Description: "Allow the bot to chat in a channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "Channel to allow",
					Required:    true,
				},
			},
		},
		{
			Name:        "chat_allowlist_remove",
			Description: "Remove a channel from the chat allowlist",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "Channel to remove",
					Required:    true,
				},
			},
		},
		{
			Name:        "chat_allowlist_list",
			Description: "List channels the bot may chat in",
		},
		{
			Name:        "chat_allowlist_clear",
			Description: "Clear this server's chat allowlist",
		},
		{
			Name:        "server_authorize",
			Description: "Authorize a server to use the bot",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "server_id",
					Description: "Server ID (defaults to this server)",
				},
			},
		},
		{
			Name:        "server_deauthorize",
			Description: "Deauthorize a server from using the bot",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "server_id",
					Description: "Server ID (defaults to this server)",
				},
			},
		},
		{
			Name:        "server_auth_list",
			Description: "List authorized servers and the unauthorized mode",
		},
		{
			Name:        "server_auth_mode",
			Description: "Set behavior toward unauthorized servers",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mode",
					Description: "How to handle unauthorized servers",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "ignore", Value: string(config.UnauthorizedIgnore)},
						{Name: "polite", Value: string(config.UnauthorizedPolite)},
						{Name: "leave", Value: string(config.UnauthorizedLeave)},
						{Name: "bad_bot", Value: string(config.UnauthorizedBadBot)},
					},
				},
			},
		},
	}
}

func (b *Bot) registerCommands() error {
	if b.session.State.User == nil {
		return fmt.Errorf("discord: session not ready, cannot register commands")
	}
	appID := b.session.State.User.ID
	if _, err := b.session.ApplicationCommandBulkOverwrite(appID, "", commandDefinitions()); err != nil {
		return fmt.Errorf("discord: register commands: %w", err)
	}
	b.logger.Info(b.ctx, "slash commands registered", "count", len(commandDefinitions()))
	return nil
}

func (b *Bot) handleInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	b.logger.Info(b.ctx, "slash command", "command", data.Name, "user", invokerID(i))

	switch data.Name {
	case "summarize":
		go b.cmdSummarize(s, i)
	case "register_user":
		b.cmdRegisterUser(s, i)
	case "chat_allowlist_add":
		b.rootOnly(s, i, b.cmdAllowlistAdd)
	case "chat_allowlist_remove":
		b.rootOnly(s, i, b.cmdAllowlistRemove)
	case "chat_allowlist_list":
		b.rootOnly(s, i, b.cmdAllowlistList)
	case "chat_allowlist_clear":
		b.rootOnly(s, i, b.cmdAllowlistClear)
	case "server_authorize":
		b.rootOnly(s, i, b.cmdServerAuthorize)
	case "server_deauthorize":
		b.rootOnly(s, i, b.cmdServerDeauthorize)
	case "server_auth_list":
		b.rootOnly(s, i, b.cmdServerAuthList)
	case "server_auth_mode":
		b.rootOnly(s, i, b.cmdServerAuthMode)
	}
}

func invokerID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func (b *Bot) rootOnly(s *discordgo.Session, i *discordgo.InteractionCreate, handler func(*discordgo.Session, *discordgo.InteractionCreate)) {
	if !b.deps.Config.IsRootUser(invokerID(i)) {
		b.logger.Warn(b.ctx, "unauthorized command attempt",
			"command", i.ApplicationCommandData().Name, "user", invokerID(i))
		b.reply(s, i, noPermissionReply, true)
		return
	}
	handler(s, i)
}

func (b *Bot) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.logger.Error(b.ctx, "interaction respond failed", "error", err)
	}
}

func option(i *discordgo.InteractionCreate, name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

func (b *Bot) cmdSummarize(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		b.logger.Error(b.ctx, "summarize defer failed", "error", err)
		return
	}
	followup := func(content string) {
		if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: content}); err != nil {
			b.logger.Error(b.ctx, "summarize followup failed", "error", err)
		}
	}

	count := 20
	if opt := option(i, "num_messages"); opt != nil {
		count = int(opt.IntValue())
	}
	if count > historyLimit {
		count = historyLimit
	}
	accent := ""
	if opt := option(i, "accent"); opt != nil {
		accent = opt.StringValue()
	}

	history, err := s.ChannelMessages(i.ChannelID, count, "", "", "")
	if err != nil {
		followup("Sorry, it looks like I can't read this channel!")
		return
	}

	var lines []string
	for idx := len(history) - 1; idx >= 0; idx-- {
		msg := history[idx]
		if msg.Author == nil || msg.Author.Bot || msg.Content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s",
			msg.Timestamp.Format("15:04"), msg.Author.Username, msg.Content))
	}
	if len(lines) == 0 {
		followup("Sorry, there was nothing to summarize :)")
		return
	}

	instructions := ""
	if accent != "" {
		instructions = fmt.Sprintf(
			"Write your summary in an accent obviously from or in the manner of %s. "+
				"If that is something non-human, summarize while roleplaying as that thing.", accent)
	}
	request := fmt.Sprintf("Additional instructions: %s\n\nChat log:\n%s\n\nSummary: ",
		instructions, strings.Join(lines, "\n"))

	res, err := b.deps.Engine.Run(b.ctx, b.summaryPrompt(), []engine.Turn{engine.UserTurn(request)}, nil, nil)
	if err != nil {
		b.logger.Error(b.ctx, "summarize failed", "error", err)
		followup(errorReply)
		return
	}
	chunks := chunkMessage(res.Text, maxMessageLen)
	if len(chunks) == 0 {
		followup("Sorry, there was nothing to summarize :)")
		return
	}
	for _, chunk := range chunks {
		followup(chunk)
	}
}

func (b *Bot) summaryPrompt() string {
	return "You summarize chat conversations concisely, keeping who said what clear. " +
		"Do not invent content that is not in the log."
}

func (b *Bot) cmdRegisterUser(s *discordgo.Session, i *discordgo.InteractionCreate) {
	info := strings.TrimSpace(option(i, "info").StringValue())
	if len(info) > 128 {
		b.reply(s, i, "Info too big", true)
		return
	}
	if strings.Contains(info, "\n") {
		b.reply(s, i, "Newlines are not allowed", true)
		return
	}

	name := ""
	if i.Member != nil && i.Member.User != nil {
		name = i.Member.User.Username
		if i.Member.Nick != "" {
			name = i.Member.Nick
		}
	} else if i.User != nil {
		name = i.User.Username
	}

	if err := b.deps.State.SetUserProfile(invokerID(i), config.UserProfile{Name: name, Info: info}); err != nil {
		b.logger.Error(b.ctx, "failed to save user profile", "error", err)
		b.reply(s, i, "Sorry, I couldn't save that.", true)
		return
	}
	b.reply(s, i, "User configuration updated <3", false)
}

func (b *Bot) cmdAllowlistAdd(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channel := option(i, "channel").ChannelValue(s)
	if err := b.deps.State.AllowChannel(i.GuildID, channel.ID); err != nil {
		b.logger.Error(b.ctx, "allowlist add failed", "error", err)
		b.reply(s, i, "Sorry, I couldn't update the allowlist.", true)
		return
	}
	b.reply(s, i, fmt.Sprintf("Channel added to allowlist: **%s**", channel.Name), false)
}

func (b *Bot) cmdAllowlistRemove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channel := option(i, "channel").ChannelValue(s)
	if err := b.deps.State.DisallowChannel(i.GuildID, channel.ID); err != nil {
		b.reply(s, i, "No chat allowlist found", true)
		return
	}
	b.reply(s, i, fmt.Sprintf("Channel removed from allowlist: **%s**", channel.Name), false)
}

func (b *Bot) cmdAllowlistList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ids := b.deps.State.AllowedChannels(i.GuildID)
	if len(ids) == 0 {
		b.reply(s, i, "No chat allowlist found", true)
		return
	}
	var names []string
	for _, id := range ids {
		name := id
		if ch, err := s.State.Channel(id); err == nil {
			name = ch.Name
		}
		names = append(names, fmt.Sprintf("**%s**", name))
	}
	b.reply(s, i, "I am allowed to chat in the following channels:\n"+strings.Join(names, "\n"), false)
}

func (b *Bot) cmdAllowlistClear(s *discordgo.Session, i *discordgo.InteractionCreate) {
	for _, id := range b.deps.State.AllowedChannels(i.GuildID) {
		if err := b.deps.State.DisallowChannel(i.GuildID, id); err != nil {
			b.logger.Error(b.ctx, "allowlist clear failed", "error", err)
			b.reply(s, i, "Sorry, I couldn't clear the allowlist.", true)
			return
		}
	}
	b.reply(s, i, "Server chat allowlist cleared.", false)
}

func (b *Bot) targetGuildID(i *discordgo.InteractionCreate) (string, string) {
	if opt := option(i, "server_id"); opt != nil && opt.StringValue() != "" {
		return strings.TrimSpace(opt.StringValue()), ""
	}
	if i.GuildID == "" {
		return "", "Must provide a server ID when used in DMs."
	}
	return i.GuildID, ""
}

func (b *Bot) cmdServerAuthorize(s *discordgo.Session, i *discordgo.InteractionCreate) {
	guildID, problem := b.targetGuildID(i)
	if problem != "" {
		b.reply(s, i, problem, true)
		return
	}

	_, wasActive := b.deps.State.AuthorizedServers()
	if err := b.deps.State.AuthorizeServer(guildID); err != nil {
		b.logger.Error(b.ctx, "authorize failed", "error", err)
		b.reply(s, i, "Sorry, I couldn't update the authorization list.", true)
		return
	}

	msg := fmt.Sprintf("Server `%s` authorized.", guildID)
	if !wasActive {
		msg += "\n\n**Warning:** Server authorization is now active. Only listed servers will be served. Use `/server_authorize` to add more."
	}
	b.reply(s, i, msg, true)
}

func (b *Bot) cmdServerDeauthorize(s *discordgo.Session, i *discordgo.InteractionCreate) {
	guildID, problem := b.targetGuildID(i)
	if problem != "" {
		b.reply(s, i, problem, true)
		return
	}
	if err := b.deps.State.DeauthorizeServer(guildID); err != nil {
		b.reply(s, i, fmt.Sprintf("Server `%s` is not in the authorized list.", guildID), true)
		return
	}
	b.reply(s, i, fmt.Sprintf("Server `%s` deauthorized.", guildID), true)
}

func (b *Bot) cmdServerAuthList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	servers, active := b.deps.State.AuthorizedServers()
	mode := b.deps.State.UnauthorizedModeValue()

	if !active {
		b.reply(s, i, fmt.Sprintf(
			"Server authorization is **not active** (all servers allowed).\nUnauthorized mode: `%s`", mode), true)
		return
	}

	list := "(none)"
	if len(servers) > 0 {
		var lines []string
		for _, id := range servers {
			name := "unknown"
			if g, err := s.State.Guild(id); err == nil {
				name = g.Name
			}
			lines = append(lines, fmt.Sprintf("- `%s` (%s)", id, name))
		}
		list = strings.Join(lines, "\n")
	}
	b.reply(s, i, fmt.Sprintf("**Authorized servers:**\n%s\n\n**Unauthorized mode:** `%s`", list, mode), true)
}

func (b *Bot) cmdServerAuthMode(s *discordgo.Session, i *discordgo.InteractionCreate) {
	mode := config.UnauthorizedMode(option(i, "mode").StringValue())
	if err := b.deps.State.SetUnauthorizedMode(mode); err != nil {
		b.reply(s, i, fmt.Sprintf("Invalid mode: %v", err), true)
		return
	}
	b.reply(s, i, fmt.Sprintf("Unauthorized mode set to `%s`.", mode), true)
}
