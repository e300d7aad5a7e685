package guild

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/namielle/summabot/internal/tools"
)

func ownMessage(id string) *discordgo.Message {
	return &discordgo.Message{ID: id, Author: &discordgo.User{ID: "bot1", Username: "summabot"}}
}

func userMessage(id, userID string) *discordgo.Message {
	return &discordgo.Message{ID: id, Author: &discordgo.User{ID: userID, Username: "someone"}}
}

func TestDeleteOwnMessageWithoutGrant(t *testing.T) {
	s := &fakeSession{
		guild:    testGuild(),
		messages: map[string][]*discordgo.Message{"c1": {ownMessage("m1")}},
	}
	tool := NewDeleteMessagesTool(s)

	out := tool.Execute(context.Background(),
		json.RawMessage(`{"channel_name":"general","message_ids":["m1"]}`), ec())
	if out != "Deleted the message." {
		t.Errorf("unexpected output: %q", out)
	}
	if len(s.deleted) != 1 || s.deleted[0] != "m1" {
		t.Errorf("deleted = %v", s.deleted)
	}
}

func TestDeleteOthersMessageNeedsGrant(t *testing.T) {
	s := &fakeSession{
		guild:    testGuild(),
		messages: map[string][]*discordgo.Message{"c1": {userMessage("m1", "u9")}},
	}
	tool := NewDeleteMessagesTool(s)

	out := tool.Execute(context.Background(),
		json.RawMessage(`{"channel_name":"general","message_ids":["m1"]}`), ec())
	if !strings.Contains(out, "manage messages permission") {
		t.Errorf("unexpected output: %q", out)
	}
	if len(s.deleted) != 0 {
		t.Errorf("nothing should be deleted, got %v", s.deleted)
	}

	out = tool.Execute(context.Background(),
		json.RawMessage(`{"channel_name":"general","message_ids":["m1"]}`),
		ecWith(tools.PermManageMessages))
	if out != "Deleted the message." {
		t.Errorf("granted delete failed: %q", out)
	}
}

func TestDeleteBatchPartialFailure(t *testing.T) {
	msgs := []*discordgo.Message{
		ownMessage("m1"), ownMessage("m2"), ownMessage("m4"), ownMessage("m5"),
	}
	s := &fakeSession{
		guild:    testGuild(),
		messages: map[string][]*discordgo.Message{"c1": msgs},
	}
	tool := NewDeleteMessagesTool(s)

	// m3 does not exist; the batch must not abort around it.
	out := tool.Execute(context.Background(),
		json.RawMessage(`{"channel_name":"general","message_ids":["m1","m2","m3","m4","m5"]}`), ec())

	if !strings.Contains(out, "Deleted 4 of 5 messages.") {
		t.Errorf("tally missing: %q", out)
	}
	if !strings.Contains(out, "1 failed") {
		t.Errorf("failure count missing: %q", out)
	}
	if len(s.deleted) != 4 {
		t.Errorf("deleted = %v", s.deleted)
	}
}

func TestDeleteSingleFailureIsPlainMessage(t *testing.T) {
	s := &fakeSession{
		guild:    testGuild(),
		messages: map[string][]*discordgo.Message{"c1": {ownMessage("m1")}},
		deleteErr: map[string]error{
			"m1": errors.New("already gone"),
		},
	}
	tool := NewDeleteMessagesTool(s)

	out := tool.Execute(context.Background(),
		json.RawMessage(`{"channel_name":"general","message_ids":["m1"]}`), ec())
	if strings.Contains(out, " of ") {
		t.Errorf("single-item batch should not produce a tally: %q", out)
	}
	if !strings.Contains(out, "already gone") {
		t.Errorf("failure reason missing: %q", out)
	}
}

func TestReactionBatch(t *testing.T) {
	s := &fakeSession{
		guild:    testGuild(),
		messages: map[string][]*discordgo.Message{"c1": {ownMessage("m1"), ownMessage("m2")}},
	}
	tool := NewReactionTool(s)

	out := tool.Execute(context.Background(),
		json.RawMessage(`{"channel_name":"general","message_ids":["m1","m2"],"emoji":"👍"}`), ec())
	if !strings.Contains(out, "Reacted to 2 of 2 messages.") {
		t.Errorf("unexpected output: %q", out)
	}
	if len(s.reactions) != 2 {
		t.Errorf("reactions = %v", s.reactions)
	}
}

func TestTimeoutRequiresKnownDuration(t *testing.T) {
	s := &fakeSession{guild: testGuild()}
	tool := NewTimeoutTool(s)

	out := tool.Execute(context.Background(),
		json.RawMessage(`{"member_name":"Ada","duration":"3 fortnights"}`),
		ecWith(tools.PermModerateMembers))
	if !strings.Contains(out, "could not parse duration") {
		t.Errorf("unexpected output: %q", out)
	}
	if len(s.timeouts) != 0 {
		t.Errorf("no timeout should be applied, got %v", s.timeouts)
	}
}

func TestTimeoutMember(t *testing.T) {
	s := &fakeSession{guild: testGuild()}
	tool := NewTimeoutTool(s)
	c := ecWith(tools.PermModerateMembers)

	out := tool.Execute(context.Background(),
		json.RawMessage(`{"member_name":"Ada","duration":"10 minutes"}`), c)
	if out != "Timed out Ada for 10 minutes." {
		t.Errorf("unexpected output: %q", out)
	}
	until, ok := s.timeouts["u1"]
	if !ok {
		t.Fatal("timeout not applied")
	}
	if want := c.Now.Add(10 * time.Minute); !until.Equal(want) {
		t.Errorf("until = %v, want %v", until, want)
	}
}

func TestTimeoutSelfAndBotRefused(t *testing.T) {
	s := &fakeSession{guild: testGuild()}
	tool := NewTimeoutTool(s)
	c := ecWith(tools.PermModerateMembers)

	out := tool.Execute(context.Background(),
		json.RawMessage(`{"member_name":"grace","duration":"1 minute"}`), c)
	if !strings.Contains(out, "cannot time yourself out") {
		t.Errorf("unexpected output: %q", out)
	}

	out = tool.Execute(context.Background(),
		json.RawMessage(`{"member_name":"summabot","duration":"1 minute"}`), c)
	if !strings.Contains(out, "not going to time myself out") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestTimeoutIsPermissionGated(t *testing.T) {
	tool := NewTimeoutTool(&fakeSession{guild: testGuild()})
	if tool.RequiredPermission() != tools.PermModerateMembers {
		t.Error("timeout_member must require moderate_members")
	}
}
