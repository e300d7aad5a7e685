package guild

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// normalizeName folds Unicode quote variants to ASCII so a channel named
// with a right single quote still matches a plain apostrophe in the query.
func normalizeName(s string) string {
	r := strings.NewReplacer(
		"‘", "'", // left single quote
		"’", "'", // right single quote
		"ʼ", "'", // modifier letter apostrophe
		"′", "'", // prime
		"“", `"`, // left double quote
		"”", `"`, // right double quote
	)
	return r.Replace(s)
}

// channelFilter restricts fuzzy matching to certain channel kinds.
type channelFilter func(*discordgo.Channel) bool

func anyChannel(*discordgo.Channel) bool { return true }

func voiceChannels(ch *discordgo.Channel) bool {
	return ch.Type == discordgo.ChannelTypeGuildVoice || ch.Type == discordgo.ChannelTypeGuildStageVoice
}

func textChannels(ch *discordgo.Channel) bool {
	switch ch.Type {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews,
		discordgo.ChannelTypeGuildForum:
		return true
	}
	return isThread(ch)
}

// findChannel resolves a channel name against the guild's channels and
// active threads. Match precedence: exact, then normalized exact, then
// case-insensitive, then substring; within each tier the first candidate in
// enumeration order wins. On no match it returns an error string listing
// available channels.
func findChannel(g *discordgo.Guild, name string, filter channelFilter) (*discordgo.Channel, string) {
	name = strings.TrimPrefix(name, "#")

	candidates := make([]*discordgo.Channel, 0, len(g.Channels)+len(g.Threads))
	for _, ch := range g.Channels {
		if ch.Type != discordgo.ChannelTypeGuildCategory && filter(ch) {
			candidates = append(candidates, ch)
		}
	}
	for _, th := range g.Threads {
		if filter(th) {
			candidates = append(candidates, th)
		}
	}

	normalized := normalizeName(name)
	for _, ch := range candidates {
		if ch.Name == name || normalizeName(ch.Name) == normalized {
			return ch, ""
		}
	}

	lower := strings.ToLower(normalized)
	for _, ch := range candidates {
		if strings.ToLower(normalizeName(ch.Name)) == lower {
			return ch, ""
		}
	}
	for _, ch := range candidates {
		if strings.Contains(strings.ToLower(normalizeName(ch.Name)), lower) {
			return ch, ""
		}
	}

	seen := make(map[string]bool)
	var names []string
	for _, ch := range candidates {
		if !seen[ch.Name] {
			seen[ch.Name] = true
			names = append(names, ch.Name)
		}
	}
	sort.Strings(names)
	if len(names) > 20 {
		names = names[:20]
	}
	for i, n := range names {
		names[i] = "#" + n
	}
	return nil, fmt.Sprintf("Could not find a channel matching '%s'. Available channels: %s",
		name, strings.Join(names, ", "))
}

// findMember resolves a member by display name, global name, or username
// with the same precedence as channels: exact, case-insensitive, substring.
func findMember(g *discordgo.Guild, name string) (*discordgo.Member, string) {
	name = strings.TrimPrefix(name, "@")

	namesOf := func(m *discordgo.Member) []string {
		var out []string
		if m.Nick != "" {
			out = append(out, m.Nick)
		}
		if m.User != nil {
			if m.User.GlobalName != "" {
				out = append(out, m.User.GlobalName)
			}
			out = append(out, m.User.Username)
		}
		return out
	}

	for _, m := range g.Members {
		for _, n := range namesOf(m) {
			if n == name {
				return m, ""
			}
		}
	}
	lower := strings.ToLower(name)
	for _, m := range g.Members {
		for _, n := range namesOf(m) {
			if strings.ToLower(n) == lower {
				return m, ""
			}
		}
	}
	for _, m := range g.Members {
		for _, n := range namesOf(m) {
			if strings.Contains(strings.ToLower(n), lower) {
				return m, ""
			}
		}
	}
	return nil, fmt.Sprintf("Could not find a member matching '%s'.", name)
}
