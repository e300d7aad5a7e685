// Package config loads the bot's static configuration file and manages the
// mutable per-guild state (server authorization, channel allowlists, user
// profiles) that operators and slash commands change at runtime.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Config is the static bot configuration, loaded once at startup.
// Environment references like ${DISCORD_TOKEN} are expanded before parsing.
type Config struct {
	Discord   DiscordConfig   `json:"discord" yaml:"discord"`
	Anthropic AnthropicConfig `json:"anthropic" yaml:"anthropic"`
	Engine    EngineConfig    `json:"engine" yaml:"engine"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Store     StoreConfig     `json:"store" yaml:"store"`

	// PersonaPath points at a text file prepended to every system prompt.
	PersonaPath string `json:"persona_path" yaml:"persona_path"`

	// RootUsers are Discord user IDs allowed to run administrative
	// slash commands (server authorization, allowlist management).
	RootUsers []string `json:"root_users" yaml:"root_users"`
}

type DiscordConfig struct {
	Token string `json:"token" yaml:"token"`
}

type AnthropicConfig struct {
	APIKey    string `json:"api_key" yaml:"api_key"`
	Model     string `json:"model" yaml:"model"`
	MaxTokens int64  `json:"max_tokens" yaml:"max_tokens"`
}

type EngineConfig struct {
	MaxServerContinuations int  `json:"max_server_continuations" yaml:"max_server_continuations"`
	MaxToolRounds          int  `json:"max_tool_rounds" yaml:"max_tool_rounds"`
	WebSearch              bool `json:"web_search" yaml:"web_search"`
	WebFetch               bool `json:"web_fetch" yaml:"web_fetch"`
	CodeExecution          bool `json:"code_execution" yaml:"code_execution"`

	// MaxArtifactBytes caps downloaded artifact size; larger files are
	// skipped with a log line. Zero means the 25 MiB default.
	MaxArtifactBytes int64 `json:"max_artifact_bytes" yaml:"max_artifact_bytes"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type StoreConfig struct {
	// Path is the SQLite database file for memories and scheduled tasks.
	Path string `json:"path" yaml:"path"`

	// StatePath is the JSON file holding mutable guild state.
	StatePath string `json:"state_path" yaml:"state_path"`
}

// Defaults applied by Validate.
const (
	DefaultModel                  = "claude-sonnet-4-5"
	DefaultMaxTokens              = 8192
	DefaultMaxServerContinuations = 3
	DefaultMaxToolRounds          = 3
	DefaultMaxArtifactBytes       = 25 << 20
)

// Load reads and parses a JSON5 or YAML configuration file, expanding
// environment variable references first.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse([]byte(os.ExpandEnv(string(data))), path)
}

// Parse decodes config bytes. The path hint selects the format by extension:
// .json/.json5 use JSON5, everything else parses as YAML.
func Parse(data []byte, pathHint string) (*Config, error) {
	cfg := &Config{}
	ext := strings.ToLower(filepath.Ext(pathHint))
	if ext == ".json" || ext == ".json5" {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if err := decoder.Decode(&struct{}{}); err != io.EOF {
			return nil, fmt.Errorf("parse config: expected single document")
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies defaults and rejects configurations the bot cannot run
// with. Token and API key may still come from the environment at this point.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		c.Discord.Token = os.Getenv("DISCORD_TOKEN")
	}
	if c.Anthropic.APIKey == "" {
		c.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = DefaultModel
	}
	if c.Anthropic.MaxTokens <= 0 {
		c.Anthropic.MaxTokens = DefaultMaxTokens
	}
	if c.Engine.MaxServerContinuations <= 0 {
		c.Engine.MaxServerContinuations = DefaultMaxServerContinuations
	}
	if c.Engine.MaxToolRounds <= 0 {
		c.Engine.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.Engine.MaxArtifactBytes <= 0 {
		c.Engine.MaxArtifactBytes = DefaultMaxArtifactBytes
	}
	if c.Store.Path == "" {
		c.Store.Path = "summabot.db"
	}
	if c.Store.StatePath == "" {
		c.Store.StatePath = "state.json"
	}
	return nil
}

// IsRootUser reports whether the given Discord user ID may run
// administrative commands.
func (c *Config) IsRootUser(userID string) bool {
	for _, id := range c.RootUsers {
		if id == userID {
			return true
		}
	}
	return false
}
