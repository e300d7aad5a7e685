package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// UnauthorizedMode controls how the bot reacts when addressed in a guild
// that is not on the authorization list.
type UnauthorizedMode string

const (
	// UnauthorizedIgnore silently drops the message.
	UnauthorizedIgnore UnauthorizedMode = "ignore"
	// UnauthorizedPolite replies once per guild that the bot is not set up here.
	UnauthorizedPolite UnauthorizedMode = "polite"
	// UnauthorizedLeave makes the bot leave the guild.
	UnauthorizedLeave UnauthorizedMode = "leave"
	// UnauthorizedBadBot replies with a short refusal every time.
	UnauthorizedBadBot UnauthorizedMode = "bad_bot"
)

// State holds the mutable bot state that slash commands and operators change
// at runtime. It is persisted as a JSON file with atomic writes.
//
// A nil AuthorizedServers list means every guild is allowed; an empty list
// blocks all guilds. The distinction survives round-trips: nil encodes as
// null, empty as [].
type State struct {
	mu   sync.Mutex
	path string
	data stateData
}

type stateData struct {
	AuthorizedServers []string                `json:"authorized_servers"`
	UnauthorizedMode  UnauthorizedMode        `json:"unauthorized_mode,omitempty"`
	PoliteDeclined    []string                `json:"polite_declined,omitempty"`
	Guilds            map[string]*guildState  `json:"guilds,omitempty"`
	Users             map[string]*UserProfile `json:"users,omitempty"`
}

type guildState struct {
	// AllowedChannels restricts where the bot responds. Empty means all.
	AllowedChannels []string `json:"allowed_channels,omitempty"`
}

// UserProfile is free-form info a user has asked the bot to remember about
// them, included in the system prompt when they speak.
type UserProfile struct {
	Name string `json:"name,omitempty"`
	Info string `json:"info,omitempty"`
}

// LoadState reads the state file at path. A missing file yields empty state.
func LoadState(path string) (*State, error) {
	s := &State{path: path}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", path, err)
	}
	return s, nil
}

// Save writes the state atomically (write temp file, then rename).
func (s *State) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *State) saveLocked() error {
	if s.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(&s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// IsServerAuthorized reports whether the bot should operate in the guild.
// With no authorization list configured, every guild is authorized.
func (s *State) IsServerAuthorized(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.AuthorizedServers == nil {
		return true
	}
	for _, id := range s.data.AuthorizedServers {
		if id == guildID {
			return true
		}
	}
	return false
}

// AuthorizeServer adds a guild to the authorization list, creating the list
// if it did not exist. Adding to a previously nil list switches the bot from
// allow-all to allowlist mode containing just that guild.
func (s *State) AuthorizeServer(guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.data.AuthorizedServers {
		if id == guildID {
			return nil
		}
	}
	if s.data.AuthorizedServers == nil {
		s.data.AuthorizedServers = []string{}
	}
	s.data.AuthorizedServers = append(s.data.AuthorizedServers, guildID)
	s.removePoliteDeclinedLocked(guildID)
	return s.saveLocked()
}

// DeauthorizeServer removes a guild from the authorization list. Removing
// the last entry leaves an empty list, which blocks every guild.
func (s *State) DeauthorizeServer(guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.AuthorizedServers == nil {
		return fmt.Errorf("no authorization list configured; all servers are currently allowed")
	}
	kept := s.data.AuthorizedServers[:0]
	for _, id := range s.data.AuthorizedServers {
		if id != guildID {
			kept = append(kept, id)
		}
	}
	s.data.AuthorizedServers = kept
	return s.saveLocked()
}

// AuthorizedServers returns a copy of the authorization list and whether a
// list is configured at all. active=false means allow-all.
func (s *State) AuthorizedServers() (servers []string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.AuthorizedServers == nil {
		return nil, false
	}
	return append([]string(nil), s.data.AuthorizedServers...), true
}

// UnauthorizedModeValue returns the configured reaction to unauthorized
// guilds, defaulting to ignore.
func (s *State) UnauthorizedModeValue() UnauthorizedMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.UnauthorizedMode == "" {
		return UnauthorizedIgnore
	}
	return s.data.UnauthorizedMode
}

// SetUnauthorizedMode updates the unauthorized-guild reaction.
func (s *State) SetUnauthorizedMode(mode UnauthorizedMode) error {
	switch mode {
	case UnauthorizedIgnore, UnauthorizedPolite, UnauthorizedLeave, UnauthorizedBadBot:
	default:
		return fmt.Errorf("unknown unauthorized mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.UnauthorizedMode = mode
	return s.saveLocked()
}

// MarkPoliteDeclined records that the bot already sent its one polite
// decline in the guild. Returns false if it was already recorded, so the
// caller can suppress repeats.
func (s *State) MarkPoliteDeclined(guildID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.data.PoliteDeclined {
		if id == guildID {
			return false, nil
		}
	}
	s.data.PoliteDeclined = append(s.data.PoliteDeclined, guildID)
	return true, s.saveLocked()
}

func (s *State) removePoliteDeclinedLocked(guildID string) {
	kept := s.data.PoliteDeclined[:0]
	for _, id := range s.data.PoliteDeclined {
		if id != guildID {
			kept = append(kept, id)
		}
	}
	s.data.PoliteDeclined = kept
	if len(s.data.PoliteDeclined) == 0 {
		s.data.PoliteDeclined = nil
	}
}

// IsChannelAllowed reports whether the bot responds in the channel. A guild
// with no allowlist permits every channel.
func (s *State) IsChannelAllowed(guildID, channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.data.Guilds[guildID]
	if g == nil || len(g.AllowedChannels) == 0 {
		return true
	}
	for _, id := range g.AllowedChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

// AllowChannel adds a channel to the guild's allowlist.
func (s *State) AllowChannel(guildID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Guilds == nil {
		s.data.Guilds = map[string]*guildState{}
	}
	g := s.data.Guilds[guildID]
	if g == nil {
		g = &guildState{}
		s.data.Guilds[guildID] = g
	}
	for _, id := range g.AllowedChannels {
		if id == channelID {
			return nil
		}
	}
	g.AllowedChannels = append(g.AllowedChannels, channelID)
	return s.saveLocked()
}

// DisallowChannel removes a channel from the guild's allowlist. Removing the
// last entry reopens every channel.
func (s *State) DisallowChannel(guildID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.data.Guilds[guildID]
	if g == nil {
		return nil
	}
	kept := g.AllowedChannels[:0]
	for _, id := range g.AllowedChannels {
		if id != channelID {
			kept = append(kept, id)
		}
	}
	g.AllowedChannels = kept
	return s.saveLocked()
}

// AllowedChannels returns a copy of the guild's channel allowlist.
func (s *State) AllowedChannels(guildID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.data.Guilds[guildID]
	if g == nil {
		return nil
	}
	return append([]string(nil), g.AllowedChannels...)
}

// SetUserProfile stores or replaces a user's profile info.
func (s *State) SetUserProfile(userID string, profile UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Users == nil {
		s.data.Users = map[string]*UserProfile{}
	}
	s.data.Users[userID] = &profile
	return s.saveLocked()
}

// UserProfileFor returns the stored profile for a user, if any.
func (s *State) UserProfileFor(userID string) (UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.data.Users[userID]
	if p == nil {
		return UserProfile{}, false
	}
	return *p, true
}
