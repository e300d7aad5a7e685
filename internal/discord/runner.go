package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/namielle/summabot/internal/engine"
	"github.com/namielle/summabot/internal/prompt"
	"github.com/namielle/summabot/internal/scheduler"
	"github.com/namielle/summabot/internal/tools"
)

// RunTask executes a due scheduled task. Static tasks post their content as
// is; dynamic tasks run the engine with the stored instruction and full
// tools, attributed to the scheduling user.
func (b *Bot) RunTask(ctx context.Context, task scheduler.Task) error {
	switch task.Type {
	case scheduler.TaskStatic:
		_, err := b.session.ChannelMessageSend(task.ChannelID, task.Content)
		return err

	case scheduler.TaskDynamic:
		return b.runDynamicTask(ctx, task)

	default:
		return fmt.Errorf("unknown task type %q", task.Type)
	}
}

func (b *Bot) runDynamicTask(ctx context.Context, task scheduler.Task) error {
	ec := tools.ExecContext{
		GuildID:     task.GuildID,
		ChannelID:   task.ChannelID,
		InvokerID:   task.CreatedBy,
		InvokerName: task.CreatedBy,
		BotUserID:   b.botUserID(),
		// Scheduled runs carry no live invoker, so no elevated grants.
		Grants: map[tools.Permission]bool{},
		Now:    time.Now(),
	}
	system := prompt.System(prompt.Params{
		Persona: b.deps.Persona,
		BotName: b.botName(),
		Now:     time.Now(),
	})

	res, err := b.deps.Engine.Run(ctx, system,
		[]engine.Turn{engine.UserTurn(task.Content)},
		b.deps.Registry.Bind(ec), nil)
	if err != nil {
		return err
	}

	for _, chunk := range chunkMessage(res.Text, maxMessageLen) {
		if _, err := b.session.ChannelMessageSend(task.ChannelID, chunk); err != nil {
			return err
		}
	}
	return nil
}
