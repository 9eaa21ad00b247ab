package story

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSpacingNormalizer(t *testing.T) {
	cases := []struct {
		name      string
		fragments []string
		want      string
	}{
		{"correct spacing passes through", []string{"Once", " upon", " a time"}, "Once upon a time"},
		{"missing spaces inserted", []string{"Once", "upon", "a", "time"}, "Once upon a time"},
		{"doubled spaces collapsed", []string{"Once ", " upon ", " a time"}, "Once upon a time"},
		{"leading space dropped", []string{" Once", " upon"}, "Once upon"},
		{"whitespace-only fragments", []string{"Once", " ", " upon"}, "Once upon"},
		{"empty fragments ignored", []string{"Once", "", " upon"}, "Once upon"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := newSpacingNormalizer()
			var builder strings.Builder
			for _, fragment := range tc.fragments {
				builder.WriteString(n.normalize(fragment))
			}
			if got := builder.String(); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func sseChunk(content string) string {
	return fmt.Sprintf(`data: {"choices":[{"index":0,"delta":{"role":"assistant","content":%q}}]}`+"\n\n", content)
}

func TestGenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, piece := range []string{"Once", " upon", " a time"} {
			fmt.Fprint(w, sseChunk(piece))
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), stubPrompts{system: "x"}, nil)

	fragments, err := client.GenerateStream(context.Background(), nil, "story please")
	if err != nil {
		t.Fatalf("stream failed to start: %v", err)
	}

	var builder strings.Builder
	for fragment := range fragments {
		if fragment.Err != nil {
			t.Fatalf("unexpected stream error: %v", fragment.Err)
		}
		builder.WriteString(fragment.Text)
	}

	if got := builder.String(); got != "Once upon a time" {
		t.Fatalf("expected %q, got %q", "Once upon a time", got)
	}
}

func TestGenerateStreamNormalizesSpacing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Word fragments with no spacing at all.
		for _, piece := range []string{"Once", "upon", "a", "time"} {
			fmt.Fprint(w, sseChunk(piece))
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), stubPrompts{system: "x"}, nil)

	fragments, err := client.GenerateStream(context.Background(), nil, "story please")
	if err != nil {
		t.Fatalf("stream failed to start: %v", err)
	}

	var builder strings.Builder
	for fragment := range fragments {
		if fragment.Err != nil {
			t.Fatalf("unexpected stream error: %v", fragment.Err)
		}
		builder.WriteString(fragment.Text)
	}

	if got := builder.String(); got != "Once upon a time" {
		t.Fatalf("expected %q, got %q", "Once upon a time", got)
	}
}

func TestGenerateStreamSkipsMalformedChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sseChunk("Hello"))
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, sseChunk(" world"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), stubPrompts{system: "x"}, nil)

	fragments, err := client.GenerateStream(context.Background(), nil, "story please")
	if err != nil {
		t.Fatalf("stream failed to start: %v", err)
	}

	var builder strings.Builder
	for fragment := range fragments {
		if fragment.Err != nil {
			t.Fatalf("unexpected stream error: %v", fragment.Err)
		}
		builder.WriteString(fragment.Text)
	}

	if got := builder.String(); got != "Hello world" {
		t.Fatalf("expected %q, got %q", "Hello world", got)
	}
}

func TestGenerateStreamFinalLineWithoutNewline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sseChunk("Hello"))
		// Connection closes right after the last data line, no
		// trailing newline.
		fmt.Fprint(w, strings.TrimSuffix(sseChunk(" world"), "\n\n"))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), stubPrompts{system: "x"}, nil)

	fragments, err := client.GenerateStream(context.Background(), nil, "story please")
	if err != nil {
		t.Fatalf("stream failed to start: %v", err)
	}

	var builder strings.Builder
	for fragment := range fragments {
		if fragment.Err != nil {
			t.Fatalf("unexpected stream error: %v", fragment.Err)
		}
		builder.WriteString(fragment.Text)
	}

	if got := builder.String(); got != "Hello world" {
		t.Fatalf("expected %q, got %q", "Hello world", got)
	}
}

func TestGenerateStreamUpstreamRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"down for maintenance"}}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), stubPrompts{system: "x"}, nil)

	_, err := client.GenerateStream(context.Background(), nil, "story please")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GenerationError, got %v", err)
	}
}

func TestGenerateStreamMidStreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sseChunk("Hello"))
		fmt.Fprint(w, `data: {"error":{"message":"stream broke"}}`+"\n\n")
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), stubPrompts{system: "x"}, nil)

	fragments, err := client.GenerateStream(context.Background(), nil, "story please")
	if err != nil {
		t.Fatalf("stream failed to start: %v", err)
	}

	var last Fragment
	for fragment := range fragments {
		last = fragment
	}

	var genErr *GenerationError
	if !errors.As(last.Err, &genErr) {
		t.Fatalf("expected trailing *GenerationError fragment, got %+v", last)
	}
}
