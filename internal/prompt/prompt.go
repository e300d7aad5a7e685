// Package prompt assembles the system prompt: the configured persona
// followed by a per-request context block with the clock, the source
// channel, saved memories, and known user profiles.
package prompt

import (
	"fmt"
	"strings"
	"time"
)

// Profile is a user-supplied self description surfaced to the model.
type Profile struct {
	Name string
	Info string
}

// Params carries everything the system prompt is built from.
type Params struct {
	// Persona is the configured persona text; {{BOT_NAME}} expands to BotName.
	Persona string
	BotName string

	Now time.Time

	// ChannelName names the source channel; ThreadParent is set when the
	// source is a thread.
	ChannelName  string
	ThreadParent string

	// Memories is the pre-formatted saved-memories section, if any.
	Memories string

	Profiles []Profile
}

// System renders the full system prompt.
func System(p Params) string {
	var b strings.Builder

	persona := strings.ReplaceAll(p.Persona, "{{BOT_NAME}}", p.BotName)
	if persona != "" {
		b.WriteString(persona)
		b.WriteString("\n\n")
	}

	b.WriteString("# Current Context\n\n")
	fmt.Fprintf(&b, "Current date: %s\n", p.Now.Format("2006-01-02"))
	fmt.Fprintf(&b, "Current time: %s\n", p.Now.Format("15:04 MST"))

	if p.ChannelName != "" {
		if p.ThreadParent != "" {
			fmt.Fprintf(&b, "Source channel: thread #%s in #%s\n", p.ChannelName, p.ThreadParent)
		} else {
			fmt.Fprintf(&b, "Source channel: #%s\n", p.ChannelName)
		}
	}

	if p.Memories != "" {
		b.WriteString("\n")
		b.WriteString(p.Memories)
		b.WriteString("\n")
	}

	if len(p.Profiles) > 0 {
		b.WriteString("\nKnown user profiles:\n")
		for _, prof := range p.Profiles {
			fmt.Fprintf(&b, "- %s: %s\n", prof.Name, prof.Info)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
