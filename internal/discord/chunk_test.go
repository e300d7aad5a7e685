package discord

import (
	"strings"
	"testing"
)

func TestChunkMessageShortTextIsOnePiece(t *testing.T) {
	chunks := chunkMessage("hello there", 2000)
	if len(chunks) != 1 || chunks[0] != "hello there" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestChunkMessageEmpty(t *testing.T) {
	if chunks := chunkMessage("  \n ", 2000); chunks != nil {
		t.Errorf("chunks = %v, want nil", chunks)
	}
}

func TestChunkMessageBreaksOnNewline(t *testing.T) {
	text := strings.Repeat("a", 60) + "\n" + strings.Repeat("b", 60)
	chunks := chunkMessage(text, 100)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[0] != strings.Repeat("a", 60) {
		t.Errorf("first chunk = %q", chunks[0])
	}
	if chunks[1] != strings.Repeat("b", 60) {
		t.Errorf("second chunk = %q", chunks[1])
	}
}

func TestChunkMessageBreaksOnSpace(t *testing.T) {
	var words []string
	for i := 0; i < 50; i++ {
		words = append(words, "word")
	}
	chunks := chunkMessage(strings.Join(words, " "), 100)
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d is %d chars", i, len(c))
		}
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
			t.Errorf("chunk %d not trimmed: %q", i, c)
		}
	}
	if got := strings.Join(chunks, " "); got != strings.Join(words, " ") {
		t.Error("content lost while chunking")
	}
}

func TestChunkMessageHardSplitWithoutBreakpoints(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := chunkMessage(text, 100)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	total := 0
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d is %d chars", i, len(c))
		}
		total += len(c)
	}
	if total != 250 {
		t.Errorf("total = %d, want 250", total)
	}
}

func TestChunkMessageMultibyteSafe(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 30)
	chunks := chunkMessage(text, 50)
	for i, c := range chunks {
		if !strings.HasPrefix("héllo wörld "+c, "héllo") && !strings.Contains(text, c) {
			t.Errorf("chunk %d corrupted: %q", i, c)
		}
		if len([]rune(c)) > 50 {
			t.Errorf("chunk %d is %d runes", i, len([]rune(c)))
		}
	}
}
