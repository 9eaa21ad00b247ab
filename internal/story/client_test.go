package story

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blocktales/storyteller/internal/store"
	"github.com/blocktales/storyteller/internal/utils"
)

type stubPrompts struct {
	system    string
	knowledge string
	err       error
}

func (s stubPrompts) SystemPrompt() (string, error)     { return s.system, s.err }
func (s stubPrompts) KnowledgeContext() (string, error) { return s.knowledge, s.err }

func testConfig(baseURL string) utils.StoryAPIConfig {
	return utils.StoryAPIConfig{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		Model:       "test-model",
		Temperature: 0.8,
		MaxTokens:   800,
		Timeout:     5 * time.Second,
	}
}

func TestGenerateBuildsPromptSequence(t *testing.T) {
	var captured chatAPIRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Once upon a time..."},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), stubPrompts{system: "be a storyteller", knowledge: "facts here"}, nil)

	history := []store.Message{
		{Role: store.RoleUser, Content: "hi"},
		{Role: store.RoleAssistant, Content: "hello"},
	}

	reply, err := client.Generate(context.Background(), history, "Tell me about Solana")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if reply != "Once upon a time..." {
		t.Fatalf("unexpected reply: %q", reply)
	}

	if captured.Model != "test-model" {
		t.Fatalf("unexpected model: %q", captured.Model)
	}
	if captured.Temperature != 0.8 || captured.MaxTokens != 800 {
		t.Fatalf("sampling params not forwarded: %+v", captured)
	}

	want := []ChatMessage{
		{Role: "system", Content: "be a storyteller\n\nfacts here"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "Tell me about Solana"},
	}
	if len(captured.Messages) != len(want) {
		t.Fatalf("expected %d prompt messages, got %d", len(want), len(captured.Messages))
	}
	for i, msg := range want {
		if captured.Messages[i] != msg {
			t.Fatalf("prompt message %d: expected %+v, got %+v", i, msg, captured.Messages[i])
		}
	}
}

func TestGenerateEmptyMessage(t *testing.T) {
	client := NewClient(testConfig("http://example.invalid"), stubPrompts{system: "x"}, nil)

	if _, err := client.Generate(context.Background(), nil, "   "); !errors.Is(err, ErrEmptyUserMessage) {
		t.Fatalf("expected ErrEmptyUserMessage, got %v", err)
	}
}

func TestGenerateUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":{"message":"model overloaded"}}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), stubPrompts{system: "x"}, nil)

	_, err := client.Generate(context.Background(), nil, "story please")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GenerationError, got %v", err)
	}
}

func TestGeneratePromptSourceError(t *testing.T) {
	sourceErr := errors.New("not initialized")
	client := NewClient(testConfig("http://example.invalid"), stubPrompts{err: sourceErr}, nil)

	if _, err := client.Generate(context.Background(), nil, "story please"); !errors.Is(err, sourceErr) {
		t.Fatalf("expected prompt source error to propagate, got %v", err)
	}
}

func TestGenerateNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), stubPrompts{system: "x"}, nil)

	_, err := client.Generate(context.Background(), nil, "story please")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GenerationError for empty choices, got %v", err)
	}
}
