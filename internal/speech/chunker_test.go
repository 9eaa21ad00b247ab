package speech

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func drain(c *Chunker) []string {
	var chunks []string
	for {
		chunk, ok := c.Current()
		if !ok {
			return chunks
		}
		chunks = append(chunks, chunk)
		c.Advance()
	}
}

func TestChunkerSentenceBoundaries(t *testing.T) {
	text := "Pip found a notebook. It glowed in every tree! Could anyone erase it? Nobody could."
	c := NewChunker(text, 50)

	chunks := drain(c)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}

	for _, chunk := range chunks {
		if utf8.RuneCountInString(chunk) > 50 {
			t.Fatalf("chunk exceeds limit: %q", chunk)
		}
	}

	// Every word survives, in order.
	joined := strings.Join(chunks, " ")
	if strings.Join(strings.Fields(joined), " ") != strings.Join(strings.Fields(text), " ") {
		t.Fatalf("words lost or reordered:\n%q\n%q", text, joined)
	}
}

func TestChunkerNeverSplitsWords(t *testing.T) {
	text := "supercalifragilistic notebook adventure with extraordinarily enthusiastic squirrels everywhere"
	c := NewChunker(text, 25)

	words := strings.Fields(text)
	seen := make(map[string]bool)
	for _, chunk := range drain(c) {
		for _, w := range strings.Fields(chunk) {
			seen[w] = true
		}
	}

	for _, w := range words {
		if !seen[w] {
			t.Fatalf("word %q was split or dropped", w)
		}
	}
}

func TestChunkerOverlongWord(t *testing.T) {
	long := strings.Repeat("a", 40)
	c := NewChunker("tiny "+long+" tail.", 10)

	found := false
	for _, chunk := range drain(c) {
		if chunk == long {
			found = true
		}
	}
	if !found {
		t.Fatal("overlong word should become its own chunk, unsplit")
	}
}

func TestChunkerStateMachine(t *testing.T) {
	c := NewChunker("One. Two. Three.", 4)

	if c.Done() {
		t.Fatal("fresh chunker should not be done")
	}
	if c.Remaining() != 3 {
		t.Fatalf("expected 3 chunks, got %d", c.Remaining())
	}

	first, ok := c.Current()
	if !ok || first != "One." {
		t.Fatalf("unexpected first chunk: %q ok=%v", first, ok)
	}

	// Current is stable until playback completes.
	again, _ := c.Current()
	if again != first {
		t.Fatal("Current advanced without Advance")
	}

	if !c.Advance() {
		t.Fatal("expected more chunks after first advance")
	}
	second, _ := c.Current()
	if second != "Two." {
		t.Fatalf("unexpected second chunk: %q", second)
	}

	c.Advance()
	if c.Advance() {
		t.Fatal("expected exhaustion after final chunk")
	}
	if !c.Done() {
		t.Fatal("chunker should be done")
	}
	if _, ok := c.Current(); ok {
		t.Fatal("Current should fail once done")
	}

	// Advancing past the end stays done.
	if c.Advance() {
		t.Fatal("advance past end should keep reporting done")
	}
}

func TestChunkerEmptyText(t *testing.T) {
	c := NewChunker("   ", 10)
	if !c.Done() {
		t.Fatal("whitespace-only text should produce no chunks")
	}
}

func TestChunkerPacksShortSentences(t *testing.T) {
	c := NewChunker("Hi. Ho. Hum.", 100)
	chunks := drain(c)
	if len(chunks) != 1 {
		t.Fatalf("short sentences should pack into one chunk, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != "Hi. Ho. Hum." {
		t.Fatalf("unexpected packed chunk: %q", chunks[0])
	}
}
