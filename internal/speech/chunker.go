package speech

import (
	"strings"
	"unicode/utf8"
)

const defaultChunkRunes = 200

// Chunker walks story text one playback chunk at a time. The caller reads
// Current, plays it, and calls Advance when playback completes; there is
// no callback chaining. Chunks break on sentence boundaries where
// possible and never mid-word.
type Chunker struct {
	chunks []string
	pos    int
}

func NewChunker(text string, maxRunes int) *Chunker {
	if maxRunes <= 0 {
		maxRunes = defaultChunkRunes
	}
	return &Chunker{chunks: splitChunks(text, maxRunes)}
}

// Current returns the chunk awaiting playback. ok is false once the
// chunker is exhausted.
func (c *Chunker) Current() (chunk string, ok bool) {
	if c.pos >= len(c.chunks) {
		return "", false
	}
	return c.chunks[c.pos], true
}

// Advance moves past the current chunk. It reports whether another chunk
// remains.
func (c *Chunker) Advance() bool {
	if c.pos < len(c.chunks) {
		c.pos++
	}
	return c.pos < len(c.chunks)
}

func (c *Chunker) Done() bool {
	return c.pos >= len(c.chunks)
}

func (c *Chunker) Remaining() int {
	return len(c.chunks) - c.pos
}

func splitChunks(text string, maxRunes int) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, sentence := range sentences {
		sentenceLen := utf8.RuneCountInString(sentence)

		if sentenceLen > maxRunes {
			flush()
			chunks = append(chunks, splitByWords(sentence, maxRunes)...)
			continue
		}

		// +1 for the joining space.
		if currentLen > 0 && currentLen+1+sentenceLen > maxRunes {
			flush()
		}

		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(sentence)
		currentLen += sentenceLen
	}

	flush()
	return chunks
}

// splitSentences breaks text on terminal punctuation, keeping the
// punctuation with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// splitByWords packs words into chunks of at most maxRunes. A single word
// longer than maxRunes becomes its own chunk rather than being split.
func splitByWords(sentence string, maxRunes int) []string {
	words := strings.Fields(sentence)

	var chunks []string
	var current strings.Builder
	currentLen := 0

	for _, word := range words {
		wordLen := utf8.RuneCountInString(word)

		if currentLen > 0 && currentLen+1+wordLen > maxRunes {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}

		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(word)
		currentLen += wordLen
	}

	if currentLen > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}
