package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/namielle/summabot/internal/artifacts"
	"github.com/namielle/summabot/internal/tools"
)

type scriptedProvider struct {
	rounds []*Round
	calls  []RoundRequest
}

func (p *scriptedProvider) Stream(_ context.Context, req RoundRequest) (*Round, error) {
	p.calls = append(p.calls, req)
	if len(p.rounds) == 0 {
		return nil, errors.New("script exhausted")
	}
	r := p.rounds[0]
	p.rounds = p.rounds[1:]
	return r, nil
}

type failingProvider struct{}

func (failingProvider) Stream(context.Context, RoundRequest) (*Round, error) {
	return nil, errors.New("401 unauthorized")
}

type fakeExecutor struct {
	specs    []tools.Spec
	executed []string
	result   string
}

func (f *fakeExecutor) Specs() []tools.Spec { return f.specs }

func (f *fakeExecutor) Status(name string, _ json.RawMessage) string {
	return "Using " + name + "..."
}

func (f *fakeExecutor) Execute(_ context.Context, name string, _ json.RawMessage) string {
	f.executed = append(f.executed, name)
	return f.result
}

func newExecutor() *fakeExecutor {
	return &fakeExecutor{
		specs: []tools.Spec{{
			Name:        "get_server_members",
			Description: "List members",
			InputSchema: json.RawMessage(`{"type":"object"}`),
		}},
		result: "tool result text",
	}
}

func textRound(stop StopSignal, text string) *Round {
	r := &Round{Stop: stop, Assistant: Turn{Role: RoleAssistant, Text: text}}
	if text != "" {
		r.Parts = []Part{{Kind: PartText, Text: text}}
	}
	return r
}

// pauseRound is a server tool continuation with no text yet.
func pauseRound() *Round {
	return &Round{Stop: StopPauseTurn, Assistant: Turn{Role: RoleAssistant}}
}

func toolRound(ids ...string) *Round {
	r := &Round{Stop: StopToolUse, Assistant: Turn{Role: RoleAssistant}}
	for _, id := range ids {
		r.ToolCalls = append(r.ToolCalls, ToolCall{
			ID:    id,
			Name:  "get_server_members",
			Input: json.RawMessage(`{}`),
		})
	}
	r.Assistant.ToolCalls = r.ToolCalls
	return r
}

func ask(text string) []Turn { return []Turn{UserTurn(text)} }

func TestRunReturnsText(t *testing.T) {
	p := &scriptedProvider{rounds: []*Round{textRound(StopEndTurn, "Hello!")}}
	e := New(p)

	res, err := e.Run(context.Background(), "sys", ask("hi"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "Hello!" {
		t.Errorf("text = %q", res.Text)
	}
	if res.Degraded {
		t.Error("normal completion must not be degraded")
	}
	if len(p.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(p.calls))
	}
}

func TestRunSingleContinuation(t *testing.T) {
	p := &scriptedProvider{rounds: []*Round{
		pauseRound(),
		textRound(StopEndTurn, "Search result"),
	}}
	e := New(p)

	res, err := e.Run(context.Background(), "sys", ask("search"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "Search result" {
		t.Errorf("text = %q", res.Text)
	}
	if len(p.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(p.calls))
	}
}

func TestRunContinuationCeilingTriggersWrapUp(t *testing.T) {
	var rounds []*Round
	for i := 0; i < DefaultMaxServerContinuations+1; i++ {
		rounds = append(rounds, pauseRound())
	}
	rounds = append(rounds, textRound(StopEndTurn, "Wrapped up"))
	p := &scriptedProvider{rounds: rounds}
	e := New(p)

	res, err := e.Run(context.Background(), "sys", ask("search"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "Wrapped up" {
		t.Errorf("text = %q", res.Text)
	}
	if !res.Degraded {
		t.Error("ceiling exhaustion must mark the result degraded")
	}
	// ceiling+1 loop rounds, then exactly one wrap-up.
	if want := DefaultMaxServerContinuations + 2; len(p.calls) != want {
		t.Errorf("calls = %d, want %d", len(p.calls), want)
	}

	wrapup := p.calls[len(p.calls)-1]
	if len(wrapup.Tools) != 0 {
		t.Error("wrap-up round must not offer client tools")
	}
	last := wrapup.Turns[len(wrapup.Turns)-1]
	if last.Role != RoleUser || !strings.Contains(last.Text, "final answer") {
		t.Errorf("wrap-up prompt missing, got %+v", last)
	}
}

func TestRunSingleToolRound(t *testing.T) {
	p := &scriptedProvider{rounds: []*Round{
		toolRound("t1"),
		textRound(StopEndTurn, "Here are the members"),
	}}
	e := New(p)
	exec := newExecutor()

	res, err := e.Run(context.Background(), "sys", ask("who is online"), exec, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "Here are the members" {
		t.Errorf("text = %q", res.Text)
	}
	if len(exec.executed) != 1 || exec.executed[0] != "get_server_members" {
		t.Errorf("executed = %v", exec.executed)
	}

	// The second request carries the result turn after the assistant turn.
	second := p.calls[1]
	last := second.Turns[len(second.Turns)-1]
	if len(last.ToolResults) != 1 || last.ToolResults[0].Content != "tool result text" {
		t.Errorf("tool result turn missing, got %+v", last)
	}
	if last.ToolResults[0].ToolCallID != "t1" {
		t.Errorf("result not paired with request: %+v", last.ToolResults[0])
	}
}

func TestRunToolCeilingTriggersWrapUpWithErrorResults(t *testing.T) {
	var rounds []*Round
	for i := 0; i < DefaultMaxToolRounds+1; i++ {
		rounds = append(rounds, toolRound("t1"))
	}
	rounds = append(rounds, textRound(StopEndTurn, "Done"))
	p := &scriptedProvider{rounds: rounds}
	e := New(p)
	exec := newExecutor()

	res, err := e.Run(context.Background(), "sys", ask("check stuff"), exec, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "Done" {
		t.Errorf("text = %q", res.Text)
	}
	if !res.Degraded {
		t.Error("expected degraded result")
	}
	// The over-ceiling round's calls are answered, not executed.
	if len(exec.executed) != DefaultMaxToolRounds {
		t.Errorf("executed %d times, want %d", len(exec.executed), DefaultMaxToolRounds)
	}

	wrapup := p.calls[len(p.calls)-1]
	var errResult *ToolResult
	for _, turn := range wrapup.Turns {
		for i := range turn.ToolResults {
			if turn.ToolResults[i].IsError {
				errResult = &turn.ToolResults[i]
			}
		}
	}
	if errResult == nil {
		t.Fatal("over-ceiling tool calls must still get result turns")
	}
	if !strings.Contains(errResult.Content, "tool call limit") {
		t.Errorf("unexpected error result: %q", errResult.Content)
	}
}

func TestRunToolUseWithoutExecutor(t *testing.T) {
	p := &scriptedProvider{rounds: []*Round{
		toolRound("t1"),
		textRound(StopEndTurn, "Recovered"),
	}}
	e := New(p)

	res, err := e.Run(context.Background(), "sys", ask("hi"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	// No executor: the round falls through, and the empty transcript fires
	// the recovery round.
	if res.Text != "Recovered" {
		t.Errorf("text = %q", res.Text)
	}
	if len(p.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(p.calls))
	}
}

func TestRunEmptyTranscriptTriggersRecovery(t *testing.T) {
	p := &scriptedProvider{rounds: []*Round{
		textRound(StopEndTurn, ""),
		textRound(StopEndTurn, "Recovery!"),
	}}
	e := New(p)

	res, err := e.Run(context.Background(), "sys", ask("hi"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "Recovery!" {
		t.Errorf("text = %q", res.Text)
	}

	recovery := p.calls[1]
	if len(recovery.Tools) != 0 {
		t.Error("recovery round must not offer client tools")
	}
	last := recovery.Turns[len(recovery.Turns)-1]
	if last.Role != RoleUser || !strings.Contains(last.Text, "short text answer") {
		t.Errorf("recovery prompt missing, got %+v", last)
	}
}

func TestRunRecoveryStillEmptyReturnsEmpty(t *testing.T) {
	p := &scriptedProvider{rounds: []*Round{
		textRound(StopEndTurn, ""),
		textRound(StopEndTurn, ""),
	}}
	e := New(p)

	res, err := e.Run(context.Background(), "sys", ask("hi"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "" {
		t.Errorf("text = %q, want empty", res.Text)
	}
	if len(p.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(p.calls))
	}
}

func TestRunMixedContinuationThenToolThenEnd(t *testing.T) {
	p := &scriptedProvider{rounds: []*Round{
		pauseRound(),
		toolRound("t1"),
		textRound(StopEndTurn, "All done"),
	}}
	e := New(p)
	exec := newExecutor()

	res, err := e.Run(context.Background(), "sys", ask("do it all"), exec, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "All done" {
		t.Errorf("text = %q", res.Text)
	}
	if len(p.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(p.calls))
	}
	if len(exec.executed) != 1 {
		t.Errorf("executed = %v", exec.executed)
	}
}

type mapFileStore struct {
	files map[string][]byte
}

func (s *mapFileStore) Metadata(_ context.Context, fileID string) (artifacts.Metadata, error) {
	data, ok := s.files[fileID]
	if !ok {
		return artifacts.Metadata{}, errors.New("not found")
	}
	return artifacts.Metadata{Filename: fileID + ".png", SizeBytes: int64(len(data))}, nil
}

func (s *mapFileStore) Download(_ context.Context, fileID string) ([]byte, error) {
	return s.files[fileID], nil
}

func TestRunCollectsArtifactsAcrossRounds(t *testing.T) {
	first := pauseRound()
	first.Artifacts = []artifacts.Ref{{FileID: "file_1"}}
	second := textRound(StopEndTurn, "Here's your chart")
	second.Artifacts = []artifacts.Ref{{FileID: "file_2"}}

	p := &scriptedProvider{rounds: []*Round{first, second}}
	store := &mapFileStore{files: map[string][]byte{
		"file_1": []byte("a"),
		"file_2": []byte("b"),
	}}
	e := New(p, WithResolver(artifacts.NewResolver(store)))

	res, err := e.Run(context.Background(), "sys", ask("make a chart"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Artifacts) != 2 {
		t.Fatalf("artifacts = %d, want 2", len(res.Artifacts))
	}
	if res.Artifacts[0].FileID != "file_1" || res.Artifacts[1].FileID != "file_2" {
		t.Errorf("discovery order lost: %v, %v", res.Artifacts[0].FileID, res.Artifacts[1].FileID)
	}
}

func TestRunStdoutRenderedFenced(t *testing.T) {
	r := &Round{
		Stop: StopEndTurn,
		Parts: []Part{
			{Kind: PartText, Text: "Ran the numbers:"},
			{Kind: PartStdout, Text: "42"},
		},
		Assistant: Turn{Role: RoleAssistant, Text: "Ran the numbers:"},
	}
	p := &scriptedProvider{rounds: []*Round{r}}
	e := New(p)

	res, err := e.Run(context.Background(), "sys", ask("compute"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "```\n42\n```") {
		t.Errorf("stdout not fenced: %q", res.Text)
	}
	if !strings.HasPrefix(res.Text, "Ran the numbers:") {
		t.Errorf("emission order lost: %q", res.Text)
	}
}

func TestRunStatusSinkReceivesProgress(t *testing.T) {
	p := &scriptedProvider{rounds: []*Round{
		pauseRound(),
		textRound(StopEndTurn, "done"),
	}}
	e := New(p)

	var statuses []string
	_, err := e.Run(context.Background(), "sys", ask("hi"), nil, func(s string) {
		statuses = append(statuses, s)
	})
	if err != nil {
		t.Fatal(err)
	}
	thinking := 0
	for _, s := range statuses {
		if s == "Thinking..." {
			thinking++
		}
	}
	if thinking != 2 {
		t.Errorf("expected one Thinking... per round, got %v", statuses)
	}
}

func TestRunStatusSinkPanicDoesNotAbort(t *testing.T) {
	p := &scriptedProvider{rounds: []*Round{textRound(StopEndTurn, "fine")}}
	e := New(p)

	res, err := e.Run(context.Background(), "sys", ask("hi"), nil, func(string) {
		panic("sink exploded")
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "fine" {
		t.Errorf("text = %q", res.Text)
	}
}

func TestRunProviderFailureIsTerminal(t *testing.T) {
	e := New(failingProvider{})

	_, err := e.Run(context.Background(), "sys", ask("hi"), nil, nil)
	if err == nil {
		t.Fatal("transport/auth failure must surface as a call error")
	}
}

func TestWithCeilings(t *testing.T) {
	p := &scriptedProvider{rounds: []*Round{
		pauseRound(),
		pauseRound(),
		textRound(StopEndTurn, "capped"),
	}}
	e := New(p, WithCeilings(1, 1))

	res, err := e.Run(context.Background(), "sys", ask("hi"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Degraded {
		t.Error("expected degraded result at ceiling 1")
	}
	// 2 loop rounds (ceiling+1) plus the wrap-up.
	if len(p.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(p.calls))
	}
	if res.Text != "capped" {
		t.Errorf("text = %q", res.Text)
	}
}
