package config

import (
	"path/filepath"
	"testing"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	s, err := LoadState(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	return s
}

func TestNoListAllowsAllServers(t *testing.T) {
	s := newTestState(t)
	if !s.IsServerAuthorized("g1") {
		t.Error("expected all servers authorized when no list is configured")
	}
}

func TestAuthorizeCreatesAllowlist(t *testing.T) {
	s := newTestState(t)
	if err := s.AuthorizeServer("g1"); err != nil {
		t.Fatalf("AuthorizeServer: %v", err)
	}
	if !s.IsServerAuthorized("g1") {
		t.Error("g1 should be authorized")
	}
	if s.IsServerAuthorized("g2") {
		t.Error("g2 should not be authorized once a list exists")
	}
}

func TestDeauthorizeLastLeavesEmptyList(t *testing.T) {
	s := newTestState(t)
	if err := s.AuthorizeServer("g1"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeauthorizeServer("g1"); err != nil {
		t.Fatal(err)
	}
	// Empty list blocks everything; it does not revert to allow-all.
	if s.IsServerAuthorized("g1") || s.IsServerAuthorized("g2") {
		t.Error("empty authorization list should block all servers")
	}
}

func TestDeauthorizeWithoutListErrors(t *testing.T) {
	s := newTestState(t)
	if err := s.DeauthorizeServer("g1"); err == nil {
		t.Error("expected error deauthorizing with no list configured")
	}
}

func TestAuthorizationSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s, err := LoadState(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AuthorizeServer("g1"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeauthorizeServer("g1"); err != nil {
		t.Fatal(err)
	}

	reloaded, err := LoadState(path)
	if err != nil {
		t.Fatal(err)
	}
	// nil vs empty must survive the round-trip.
	if reloaded.IsServerAuthorized("g2") {
		t.Error("reloaded empty allowlist should still block all servers")
	}
}

func TestUnauthorizedModeDefaultsToIgnore(t *testing.T) {
	s := newTestState(t)
	if got := s.UnauthorizedModeValue(); got != UnauthorizedIgnore {
		t.Errorf("default mode = %q, want ignore", got)
	}
	if err := s.SetUnauthorizedMode(UnauthorizedPolite); err != nil {
		t.Fatal(err)
	}
	if got := s.UnauthorizedModeValue(); got != UnauthorizedPolite {
		t.Errorf("mode = %q, want polite", got)
	}
	if err := s.SetUnauthorizedMode("shrug"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestPoliteDeclinedOnce(t *testing.T) {
	s := newTestState(t)
	first, err := s.MarkPoliteDeclined("g1")
	if err != nil {
		t.Fatal(err)
	}
	if !first {
		t.Error("first decline should report true")
	}
	second, err := s.MarkPoliteDeclined("g1")
	if err != nil {
		t.Fatal(err)
	}
	if second {
		t.Error("second decline should report false")
	}
}

func TestAuthorizeClearsPoliteDecline(t *testing.T) {
	s := newTestState(t)
	if _, err := s.MarkPoliteDeclined("g1"); err != nil {
		t.Fatal(err)
	}
	if err := s.AuthorizeServer("g1"); err != nil {
		t.Fatal(err)
	}
	// Deauthorizing later should allow a fresh polite decline.
	first, err := s.MarkPoliteDeclined("g1")
	if err != nil {
		t.Fatal(err)
	}
	if !first {
		t.Error("polite decline should reset when a server is authorized")
	}
}

func TestChannelAllowlist(t *testing.T) {
	s := newTestState(t)
	if !s.IsChannelAllowed("g1", "c1") {
		t.Error("no allowlist should permit every channel")
	}
	if err := s.AllowChannel("g1", "c1"); err != nil {
		t.Fatal(err)
	}
	if !s.IsChannelAllowed("g1", "c1") {
		t.Error("c1 should be allowed")
	}
	if s.IsChannelAllowed("g1", "c2") {
		t.Error("c2 should be blocked once an allowlist exists")
	}
	if err := s.DisallowChannel("g1", "c1"); err != nil {
		t.Fatal(err)
	}
	if !s.IsChannelAllowed("g1", "c2") {
		t.Error("empty allowlist should reopen every channel")
	}
}

func TestParseYAMLConfigDefaults(t *testing.T) {
	cfg, err := Parse([]byte("anthropic:\n  api_key: test-key\n"), "config.yaml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Anthropic.Model != DefaultModel {
		t.Errorf("model = %q, want default", cfg.Anthropic.Model)
	}
	if cfg.Engine.MaxServerContinuations != DefaultMaxServerContinuations {
		t.Errorf("max continuations = %d, want %d", cfg.Engine.MaxServerContinuations, DefaultMaxServerContinuations)
	}
	if cfg.Engine.MaxToolRounds != DefaultMaxToolRounds {
		t.Errorf("max tool rounds = %d, want %d", cfg.Engine.MaxToolRounds, DefaultMaxToolRounds)
	}
	if cfg.Engine.MaxArtifactBytes != DefaultMaxArtifactBytes {
		t.Errorf("max artifact bytes = %d, want %d", cfg.Engine.MaxArtifactBytes, DefaultMaxArtifactBytes)
	}
}

func TestParseJSON5Config(t *testing.T) {
	raw := `{
		// bot settings
		anthropic: { api_key: "k", model: "claude-opus-4-1" },
		engine: { max_tool_rounds: 5 },
	}`
	cfg, err := Parse([]byte(raw), "config.json5")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Anthropic.Model != "claude-opus-4-1" {
		t.Errorf("model = %q", cfg.Anthropic.Model)
	}
	if cfg.Engine.MaxToolRounds != 5 {
		t.Errorf("max tool rounds = %d, want 5", cfg.Engine.MaxToolRounds)
	}
}

func TestIsRootUser(t *testing.T) {
	cfg := &Config{RootUsers: []string{"u1"}}
	if !cfg.IsRootUser("u1") || cfg.IsRootUser("u2") {
		t.Error("root user check mismatch")
	}
}
