package guild

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/namielle/summabot/internal/memory"
	"github.com/namielle/summabot/internal/tools"
)

// SaveMemoryTool stores a short keyed note that gets included in future
// system prompts for this server.
type SaveMemoryTool struct {
	store *memory.Store
}

// NewSaveMemoryTool creates the save_memory tool.
func NewSaveMemoryTool(store *memory.Store) *SaveMemoryTool {
	return &SaveMemoryTool{store: store}
}

func (t *SaveMemoryTool) Name() string { return "save_memory" }

func (t *SaveMemoryTool) Description() string {
	return "Save a short note about this server to remember in future conversations. Saving to an existing key overwrites it."
}

func (t *SaveMemoryTool) RequiredPermission() tools.Permission { return "" }

func (t *SaveMemoryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"key": {
				"type": "string",
				"description": "Short identifier for the memory, e.g. \"weekly-standup-time\"."
			},
			"content": {
				"type": "string",
				"description": "What to remember, at most 500 characters."
			}
		},
		"required": ["key", "content"]
	}`)
}

type saveMemoryInput struct {
	Key     string `json:"key"`
	Content string `json:"content"`
}

func (t *SaveMemoryTool) Status(json.RawMessage) string {
	return "Saving a memory..."
}

func (t *SaveMemoryTool) Execute(ctx context.Context, input json.RawMessage, ec tools.ExecContext) string {
	var in saveMemoryInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errText("invalid arguments: %v", err)
	}
	updated, err := t.store.Save(ctx, ec.GuildID, in.Key, in.Content)
	if err != nil {
		return errText("%v", err)
	}
	if updated {
		return fmt.Sprintf("Updated memory %q.", in.Key)
	}
	return fmt.Sprintf("Saved memory %q.", in.Key)
}

// DeleteMemoryTool removes a saved note by key.
type DeleteMemoryTool struct {
	store *memory.Store
}

// NewDeleteMemoryTool creates the delete_memory tool.
func NewDeleteMemoryTool(store *memory.Store) *DeleteMemoryTool {
	return &DeleteMemoryTool{store: store}
}

func (t *DeleteMemoryTool) Name() string { return "delete_memory" }

func (t *DeleteMemoryTool) Description() string {
	return "Delete a previously saved memory by its key."
}

func (t *DeleteMemoryTool) RequiredPermission() tools.Permission { return "" }

func (t *DeleteMemoryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"key": {
				"type": "string",
				"description": "Key of the memory to delete."
			}
		},
		"required": ["key"]
	}`)
}

func (t *DeleteMemoryTool) Status(json.RawMessage) string {
	return "Deleting a memory..."
}

func (t *DeleteMemoryTool) Execute(ctx context.Context, input json.RawMessage, ec tools.ExecContext) string {
	var in struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return errText("invalid arguments: %v", err)
	}
	if err := t.store.Delete(ctx, ec.GuildID, in.Key); err != nil {
		return errText("%v", err)
	}
	return fmt.Sprintf("Deleted memory %q.", in.Key)
}
