package discord

import "strings"

// chunkMessage splits text into pieces of at most limit runes, preferring to
// break on newlines, then spaces, and hard-splitting only as a last resort.
func chunkMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		runes := []rune(text)
		if len(runes) <= limit {
			chunks = append(chunks, text)
			break
		}
		window := string(runes[:limit])
		rest := string(runes[limit:])
		cut := strings.LastIndex(window, "\n")
		if cut < len(window)/2 {
			if sp := strings.LastIndex(window, " "); sp > cut {
				cut = sp
			}
		}
		if cut <= 0 {
			cut = len(window)
		}
		chunks = append(chunks, strings.TrimSpace(window[:cut]))
		text = strings.TrimSpace(window[cut:] + rest)
	}
	return chunks
}
