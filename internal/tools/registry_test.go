package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

type stubTool struct {
	name   string
	perm   Permission
	schema string
	fn     func(ctx context.Context, input json.RawMessage, ec ExecContext) string
}

func (s *stubTool) Name() string                   { return s.name }
func (s *stubTool) Description() string            { return "stub" }
func (s *stubTool) RequiredPermission() Permission { return s.perm }
func (s *stubTool) Status(json.RawMessage) string  { return "Working..." }

func (s *stubTool) Schema() json.RawMessage {
	if s.schema != "" {
		return json.RawMessage(s.schema)
	}
	return json.RawMessage(`{"type":"object"}`)
}

func (s *stubTool) Execute(ctx context.Context, input json.RawMessage, ec ExecContext) string {
	if s.fn != nil {
		return s.fn(ctx, input, ec)
	}
	return "done"
}

func TestRegisterRejectsReservedNames(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "web_search"}); err == nil {
		t.Error("expected error registering a server-side tool name")
	}
	if err := r.Register(&stubTool{name: "code_execution"}); err == nil {
		t.Error("expected error registering a server-side tool name")
	}
}

func TestRegisterRejectsDuplicatesAndBadSchemas(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&stubTool{name: "a"}); err == nil {
		t.Error("expected duplicate registration error")
	}
	if err := r.Register(&stubTool{name: "b", schema: `{"type":`}); err == nil {
		t.Error("expected schema compile error")
	}
}

func TestAvailableFiltersByPermission(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		&stubTool{name: "open"},
		&stubTool{name: "gated", perm: PermModerateMembers},
	)

	names := func(ec ExecContext) []string {
		var out []string
		for _, tool := range r.Available(ec) {
			out = append(out, tool.Name())
		}
		return out
	}

	got := names(ExecContext{})
	if len(got) != 1 || got[0] != "open" {
		t.Errorf("ungranted context sees %v, want [open]", got)
	}

	got = names(ExecContext{Grants: map[Permission]bool{PermModerateMembers: true}})
	if len(got) != 2 {
		t.Errorf("granted context sees %v, want both tools", got)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	out := r.Execute(context.Background(), "nope", nil, ExecContext{})
	if !strings.Contains(out, "unknown tool") {
		t.Errorf("unexpected result: %q", out)
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&stubTool{name: "boom", fn: func(context.Context, json.RawMessage, ExecContext) string {
		panic("kaboom")
	}})
	out := r.Execute(context.Background(), "boom", nil, ExecContext{})
	if !strings.Contains(out, "failed unexpectedly") {
		t.Errorf("unexpected result: %q", out)
	}
}

func TestExecuteValidatesArguments(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&stubTool{
		name:   "strict",
		schema: `{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"],"additionalProperties":false}`,
	})

	out := r.Execute(context.Background(), "strict", json.RawMessage(`{"n":"three"}`), ExecContext{})
	if !strings.Contains(out, "invalid arguments") {
		t.Errorf("wrong-typed argument: %q", out)
	}
	out = r.Execute(context.Background(), "strict", json.RawMessage(`{`), ExecContext{})
	if !strings.Contains(out, "not valid JSON") {
		t.Errorf("malformed JSON: %q", out)
	}
	out = r.Execute(context.Background(), "strict", json.RawMessage(`{"n":3}`), ExecContext{})
	if out != "done" {
		t.Errorf("valid call: %q", out)
	}
}

func TestExecuteRechecksPermission(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&stubTool{name: "gated", perm: PermManageMessages})
	out := r.Execute(context.Background(), "gated", nil, ExecContext{})
	if !strings.Contains(out, "permission") {
		t.Errorf("unexpected result: %q", out)
	}
}

func TestStatusFallback(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&stubTool{name: "a"})
	if got := r.Status("a", nil); got != "Working..." {
		t.Errorf("Status = %q", got)
	}
	if got := r.Status("missing", nil); got != "Using a tool..." {
		t.Errorf("fallback Status = %q", got)
	}
}
