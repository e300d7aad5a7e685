package guild

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/namielle/summabot/internal/scheduler"
	"github.com/namielle/summabot/internal/timeparse"
	"github.com/namielle/summabot/internal/tools"
)

// ScheduleTool creates a future task: either a fixed message or an
// instruction the engine runs when the time comes.
type ScheduleTool struct {
	session Session
	sched   *scheduler.Service
}

// NewScheduleTool creates the schedule_task tool.
func NewScheduleTool(session Session, sched *scheduler.Service) *ScheduleTool {
	return &ScheduleTool{session: session, sched: sched}
}

func (t *ScheduleTool) Name() string { return "schedule_task" }

func (t *ScheduleTool) Description() string {
	return "Schedule a future action in a channel. A 'static' task posts the given text verbatim; a 'dynamic' task runs the given instruction with full tool access when it fires. Accepts times like \"in 2 hours\" or \"tomorrow at 9:00\", and an optional cron expression for recurring tasks."
}

func (t *ScheduleTool) RequiredPermission() tools.Permission { return "" }

func (t *ScheduleTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"channel_name": {
				"type": "string",
				"description": "Channel where the task fires."
			},
			"when": {
				"type": "string",
				"description": "When to fire, e.g. \"in 30 minutes\", \"tomorrow at 9:00\", \"2026-03-01 09:00\"."
			},
			"type": {
				"type": "string",
				"enum": ["static", "dynamic"],
				"description": "static posts the content verbatim; dynamic runs it as an instruction."
			},
			"content": {
				"type": "string",
				"description": "The message text (static) or instruction (dynamic)."
			},
			"repeat": {
				"type": "string",
				"description": "Optional cron expression for recurrence, e.g. \"0 9 * * *\" for daily at 09:00."
			}
		},
		"required": ["channel_name", "when", "type", "content"]
	}`)
}

type scheduleInput struct {
	ChannelName string `json:"channel_name"`
	When        string `json:"when"`
	Type        string `json:"type"`
	Content     string `json:"content"`
	Repeat      string `json:"repeat"`
}

func (t *ScheduleTool) Status(json.RawMessage) string {
	return "Scheduling a task..."
}

func (t *ScheduleTool) Execute(ctx context.Context, input json.RawMessage, ec tools.ExecContext) string {
	var in scheduleInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errText("invalid arguments: %v", err)
	}
	if strings.TrimSpace(in.Content) == "" {
		return "Error: content must not be empty."
	}

	executeAt, err := timeparse.ParseFuture(in.When, ec.Clock())
	if err != nil {
		return errText("%v", err)
	}

	g, err := t.session.GuildState(ec.GuildID)
	if err != nil {
		return errText("could not load server data: %v", err)
	}
	ch, findErr := findChannel(g, in.ChannelName, textChannels)
	if findErr != "" {
		return findErr
	}

	task, err := t.sched.Schedule(ctx, ec.GuildID, ch.ID,
		scheduler.TaskType(in.Type), in.Content, executeAt, in.Repeat, ec.InvokerID)
	if err != nil {
		return errText("%v", err)
	}

	when := task.ExecuteAt.Format("2006-01-02 15:04 MST")
	if task.CronSpec != "" {
		return fmt.Sprintf("Scheduled recurring task %s in #%s, first firing %s (then %q).",
			task.ID, ch.Name, when, task.CronSpec)
	}
	return fmt.Sprintf("Scheduled task %s in #%s for %s.", task.ID, ch.Name, when)
}

// ListTasksTool shows a guild's pending scheduled tasks.
type ListTasksTool struct {
	sched *scheduler.Service
}

// NewListTasksTool creates the list_scheduled_tasks tool.
func NewListTasksTool(sched *scheduler.Service) *ListTasksTool {
	return &ListTasksTool{sched: sched}
}

func (t *ListTasksTool) Name() string { return "list_scheduled_tasks" }

func (t *ListTasksTool) Description() string {
	return "List this server's pending scheduled tasks with their IDs and firing times."
}

func (t *ListTasksTool) RequiredPermission() tools.Permission { return "" }

func (t *ListTasksTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}, "required": []}`)
}

func (t *ListTasksTool) Status(json.RawMessage) string {
	return "Checking scheduled tasks..."
}

func (t *ListTasksTool) Execute(ctx context.Context, _ json.RawMessage, ec tools.ExecContext) string {
	tasks, err := t.sched.List(ctx, ec.GuildID)
	if err != nil {
		return errText("could not list tasks: %v", err)
	}
	if len(tasks) == 0 {
		return "No scheduled tasks in this server."
	}
	var lines []string
	for _, task := range tasks {
		content := task.Content
		if len(content) > 80 {
			content = content[:80] + "..."
		}
		line := fmt.Sprintf("- %s at %s (%s): %s",
			task.ID, task.ExecuteAt.Format("2006-01-02 15:04"), task.Type, content)
		if task.CronSpec != "" {
			line += fmt.Sprintf(" [repeats %q]", task.CronSpec)
		}
		lines = append(lines, line)
	}
	return fmt.Sprintf("Scheduled tasks (%d):\n%s", len(tasks), strings.Join(lines, "\n"))
}

// CancelTaskTool cancels a pending scheduled task by ID.
type CancelTaskTool struct {
	sched *scheduler.Service
}

// NewCancelTaskTool creates the cancel_task tool.
func NewCancelTaskTool(sched *scheduler.Service) *CancelTaskTool {
	return &CancelTaskTool{sched: sched}
}

func (t *CancelTaskTool) Name() string { return "cancel_task" }

func (t *CancelTaskTool) Description() string {
	return "Cancel a pending scheduled task by its ID (see list_scheduled_tasks)."
}

func (t *CancelTaskTool) RequiredPermission() tools.Permission { return "" }

func (t *CancelTaskTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id": {
				"type": "string",
				"description": "ID of the task to cancel."
			}
		},
		"required": ["task_id"]
	}`)
}

func (t *CancelTaskTool) Status(json.RawMessage) string {
	return "Cancelling a task..."
}

func (t *CancelTaskTool) Execute(ctx context.Context, input json.RawMessage, ec tools.ExecContext) string {
	var in struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return errText("invalid arguments: %v", err)
	}
	if err := t.sched.Cancel(ctx, ec.GuildID, in.TaskID); err != nil {
		return errText("%v", err)
	}
	return fmt.Sprintf("Cancelled task %s.", in.TaskID)
}
