// Package story wraps the remote language model behind a small client:
// one buffered call and one streaming call, both fed the same prompt
// sequence of system context, conversation history and the new message.
package story

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blocktales/storyteller/internal/store"
	"github.com/blocktales/storyteller/internal/utils"
)

var ErrEmptyUserMessage = errors.New("story: user message cannot be empty")

// GenerationError wraps an upstream model or transport failure. Callers
// surface it; they do not retry.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("story: generate: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PromptSource supplies the system prompt and knowledge digest composed
// into every request. *knowledge.Service satisfies it.
type PromptSource interface {
	SystemPrompt() (string, error)
	KnowledgeContext() (string, error)
}

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// ChatMessage mirrors OpenAI-style chat message payloads.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      httpDoer
	prompts     PromptSource
	logger      *zap.SugaredLogger
}

func NewClient(cfg utils.StoryAPIConfig, prompts PromptSource, logger *zap.SugaredLogger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		baseURL:     base,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: timeout},
		prompts:     prompts,
		logger:      logger,
	}
}

// Generate returns the full text of the first completion for userMessage
// against the given history.
func (c *Client) Generate(ctx context.Context, history []store.Message, userMessage string) (string, error) {
	prompt, err := c.buildPrompt(history, userMessage)
	if err != nil {
		return "", err
	}

	payload := chatAPIRequest{
		Model:       c.model,
		Messages:    prompt,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	respBody, err := c.post(ctx, payload)
	if err != nil {
		return "", err
	}
	defer respBody.Close()

	body, err := io.ReadAll(respBody)
	if err != nil {
		return "", &GenerationError{Err: fmt.Errorf("read response: %w", err)}
	}

	var apiResp chatAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", &GenerationError{Err: fmt.Errorf("decode response: %w", err)}
	}

	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return "", &GenerationError{Err: fmt.Errorf("model error: %s", apiResp.Error.Message)}
	}

	if len(apiResp.Choices) == 0 {
		return "", &GenerationError{Err: errors.New("response contained no choices")}
	}

	reply := strings.TrimSpace(apiResp.Choices[0].Message.Content)
	if reply == "" {
		return "", &GenerationError{Err: errors.New("response contained empty completion")}
	}

	return reply, nil
}

// buildPrompt assembles [system, ...history, user]. History messages with
// empty content are dropped; roles default to user.
func (c *Client) buildPrompt(history []store.Message, userMessage string) ([]ChatMessage, error) {
	userInput := strings.TrimSpace(userMessage)
	if userInput == "" {
		return nil, ErrEmptyUserMessage
	}

	systemPrompt, err := c.prompts.SystemPrompt()
	if err != nil {
		return nil, err
	}

	knowledgeContext, err := c.prompts.KnowledgeContext()
	if err != nil {
		return nil, err
	}

	system := systemPrompt
	if knowledgeContext != "" {
		system = systemPrompt + "\n\n" + knowledgeContext
	}

	prompt := make([]ChatMessage, 0, 2+len(history))
	prompt = append(prompt, ChatMessage{Role: store.RoleSystem, Content: system})

	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := msg.Role
		if role == "" {
			role = store.RoleUser
		}
		prompt = append(prompt, ChatMessage{Role: role, Content: content})
	}

	prompt = append(prompt, ChatMessage{Role: store.RoleUser, Content: userInput})
	return prompt, nil
}

// post sends the payload and returns the response body on 2xx. Non-2xx
// statuses and transport failures come back as *GenerationError.
func (c *Client) post(ctx context.Context, payload chatAPIRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &GenerationError{Err: fmt.Errorf("marshal payload: %w", err)}
	}

	endpoint := c.baseURL + "/chat/completions"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &GenerationError{Err: fmt.Errorf("create request: %w", err)}
	}

	request.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	response, err := c.client.Do(request)
	if err != nil {
		return nil, &GenerationError{Err: fmt.Errorf("call model api: %w", err)}
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		respBody, _ := io.ReadAll(response.Body)
		response.Body.Close()
		return nil, &GenerationError{Err: buildAPIError(response.StatusCode, respBody)}
	}

	return response.Body, nil
}

func buildAPIError(statusCode int, body []byte) error {
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return fmt.Errorf("model api error (%d): %s", statusCode, envelope.Error.Message)
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return fmt.Errorf("model api error (%d): %s", statusCode, snippet)
}

type chatAPIRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type apiError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type chatAPIChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	Delta        ChatMessage `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type chatAPIResponse struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Choices []chatAPIChoice `json:"choices"`
	Error   *apiError       `json:"error,omitempty"`
}
