package story

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/blocktales/storyteller/internal/store"
)

// Fragment is one piece of streamed story text. A Fragment with Err set is
// the final element on the channel.
type Fragment struct {
	Text string
	Err  error
}

// GenerateStream starts a streaming completion and returns a channel of
// fragments in emission order. The channel is closed when the model sends
// its done marker, the upstream fails, or ctx is cancelled; the stream
// cannot be restarted. Fragment spacing is normalized so concatenation
// reconstructs the text with no doubled or missing spaces.
func (c *Client) GenerateStream(ctx context.Context, history []store.Message, userMessage string) (<-chan Fragment, error) {
	prompt, err := c.buildPrompt(history, userMessage)
	if err != nil {
		return nil, err
	}

	payload := chatAPIRequest{
		Model:       c.model,
		Messages:    prompt,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      true,
	}

	body, err := c.post(ctx, payload)
	if err != nil {
		return nil, err
	}

	fragments := make(chan Fragment)
	go c.readStream(ctx, body, fragments)
	return fragments, nil
}

func (c *Client) readStream(ctx context.Context, body io.ReadCloser, out chan<- Fragment) {
	defer close(out)
	defer body.Close()

	emit := func(f Fragment) bool {
		select {
		case out <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}

	spacing := newSpacingNormalizer()
	reader := bufio.NewReader(body)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := reader.ReadString('\n')
		// A final line can arrive together with EOF when the upstream
		// closes without a trailing newline.
		if line != "" && c.consumeStreamLine(line, spacing, emit) {
			return
		}
		if err != nil {
			if err != io.EOF {
				emit(Fragment{Err: &GenerationError{Err: fmt.Errorf("read stream: %w", err)}})
			}
			return
		}
	}
}

// consumeStreamLine handles one SSE line, emitting any fragments it
// carries. It reports whether the stream is finished.
func (c *Client) consumeStreamLine(line string, spacing *spacingNormalizer, emit func(Fragment) bool) bool {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "data: ") {
		return false
	}

	data := strings.TrimPrefix(line, "data: ")
	if data == "[DONE]" {
		return true
	}

	var chunk chatAPIResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// Malformed chunks are skipped, not fatal.
		c.logger.Debugw("skipping malformed stream chunk", "error", err)
		return false
	}

	if chunk.Error != nil && chunk.Error.Message != "" {
		emit(Fragment{Err: &GenerationError{Err: fmt.Errorf("model error: %s", chunk.Error.Message)}})
		return true
	}

	for _, choice := range chunk.Choices {
		text := spacing.normalize(choice.Delta.Content)
		if text == "" {
			continue
		}
		if !emit(Fragment{Text: text}) {
			return true
		}
	}

	return false
}

// spacingNormalizer enforces the fragment-boundary contract: no fragment
// begins with a space when the previous one ended in whitespace, and a
// single space is inserted between two fragments that would otherwise run
// together.
type spacingNormalizer struct {
	prevEndsInSpace bool
}

func newSpacingNormalizer() *spacingNormalizer {
	// Treat the stream start as following whitespace so an initial
	// leading space is dropped.
	return &spacingNormalizer{prevEndsInSpace: true}
}

func (n *spacingNormalizer) normalize(text string) string {
	if text == "" {
		return ""
	}

	startsInSpace := unicode.IsSpace(firstRune(text))

	switch {
	case n.prevEndsInSpace && startsInSpace:
		text = strings.TrimLeftFunc(text, unicode.IsSpace)
	case !n.prevEndsInSpace && !startsInSpace:
		text = " " + text
	}

	if text == "" {
		// Whitespace-only fragment collapsed away; the boundary state
		// still ends in whitespace.
		return ""
	}

	n.prevEndsInSpace = unicode.IsSpace(lastRune(text))
	return text
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		last = r
	}
	return last
}
