// Package session ties the conversation store and the story generator
// together for a single request. Each call is stateless given persisted
// history; nothing here serializes concurrent requests for one session.
package session

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/blocktales/storyteller/internal/store"
	"github.com/blocktales/storyteller/internal/story"
)

// WelcomeText seeds every brand-new session as its first assistant turn.
// It is display material only and is never sent to the model as history.
const WelcomeText = "Hi there! I'm Fable, your storytelling friend. " +
	"Ask me for a story and I'll spin you a tale about the magical world of blockchains!"

var (
	ErrSessionIDRequired = errors.New("session: session id is required")
	ErrEmptyUserMessage  = errors.New("session: user message is required")
)

// Generator produces assistant replies. *story.Client satisfies it; tests
// substitute stubs.
type Generator interface {
	Generate(ctx context.Context, history []store.Message, userMessage string) (string, error)
	GenerateStream(ctx context.Context, history []store.Message, userMessage string) (<-chan story.Fragment, error)
}

// Snapshot is what a session-fetch call returns.
type Snapshot struct {
	SessionID string          `json:"sessionId"`
	Messages  []store.Message `json:"messages"`
}

type Orchestrator struct {
	store     store.Store
	generator Generator
	logger    *zap.SugaredLogger
}

func NewOrchestrator(st store.Store, gen Generator, logger *zap.SugaredLogger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Orchestrator{store: st, generator: gen, logger: logger}
}

// FetchOrCreate loads a session's messages, seeding the welcome message
// when the session has no prior history. Repeat calls never seed twice.
func (o *Orchestrator) FetchOrCreate(ctx context.Context, sessionID, userID string) (*Snapshot, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}

	messages, err := o.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if len(messages) == 0 {
		welcome, err := o.seedWelcome(ctx, sessionID, userID)
		if err != nil {
			return nil, err
		}
		messages = []store.Message{*welcome}
	}

	return &Snapshot{SessionID: sessionID, Messages: messages}, nil
}

// GenerateReply runs one full turn: persist the user message, invoke the
// model with the pre-turn history, persist and return the reply.
//
// If generation fails after the user message was appended, that message
// stays in the log; resubmission is the recovery path.
func (o *Orchestrator) GenerateReply(ctx context.Context, sessionID, userID, userMessage string) (*store.Message, error) {
	history, err := o.beginTurn(ctx, sessionID, userID, userMessage)
	if err != nil {
		return nil, err
	}

	reply, err := o.generator.Generate(ctx, history, userMessage)
	if err != nil {
		o.logger.Errorw("story generation failed", "session_id", sessionID, "error", err)
		return nil, err
	}

	return o.persistReply(ctx, sessionID, userID, reply)
}

// GenerateReplyStream runs one turn with incremental output. Fragments go
// to emit in order; when emit returns false the sink is gone and
// forwarding stops (the upstream call is abandoned, not cleaned up). The
// accumulated text is persisted after the stream completes and the stored
// assistant message is returned.
func (o *Orchestrator) GenerateReplyStream(ctx context.Context, sessionID, userID, userMessage string, emit func(fragment string) bool) (*store.Message, error) {
	history, err := o.beginTurn(ctx, sessionID, userID, userMessage)
	if err != nil {
		return nil, err
	}

	fragments, err := o.generator.GenerateStream(ctx, history, userMessage)
	if err != nil {
		o.logger.Errorw("story stream failed to start", "session_id", sessionID, "error", err)
		return nil, err
	}

	var builder strings.Builder
	for fragment := range fragments {
		if fragment.Err != nil {
			o.logger.Errorw("story stream aborted", "session_id", sessionID, "error", fragment.Err)
			return nil, fragment.Err
		}
		builder.WriteString(fragment.Text)
		if !emit(fragment.Text) {
			o.logger.Debugw("stream consumer gone, dropping remaining fragments", "session_id", sessionID)
			for range fragments {
			}
			break
		}
	}

	reply := strings.TrimSpace(builder.String())
	if reply == "" {
		return nil, &story.GenerationError{Err: errors.New("stream produced no text")}
	}

	return o.persistReply(ctx, sessionID, userID, reply)
}

// beginTurn validates input, seeds the welcome message for a fresh
// session, appends the user message, and returns the history to prompt
// with. The welcome seed and the just-appended user message are excluded:
// the former is display-only, the latter travels as the current turn.
func (o *Orchestrator) beginTurn(ctx context.Context, sessionID, userID, userMessage string) ([]store.Message, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrEmptyUserMessage
	}

	history, err := o.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if len(history) == 0 {
		if _, err := o.seedWelcome(ctx, sessionID, userID); err != nil {
			return nil, err
		}
	}

	if _, err := o.store.Append(ctx, store.Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      store.RoleUser,
		Content:   userMessage,
	}); err != nil {
		return nil, err
	}

	return trimWelcomeSeed(history), nil
}

func (o *Orchestrator) seedWelcome(ctx context.Context, sessionID, userID string) (*store.Message, error) {
	welcome, err := o.store.Append(ctx, store.Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      store.RoleAssistant,
		Content:   WelcomeText,
	})
	if err != nil {
		return nil, err
	}

	o.logger.Infow("seeded new session", "session_id", sessionID)
	return welcome, nil
}

func (o *Orchestrator) persistReply(ctx context.Context, sessionID, userID, reply string) (*store.Message, error) {
	stored, err := o.store.Append(ctx, store.Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      store.RoleAssistant,
		Content:   reply,
	})
	if err != nil {
		// The generated text is lost here; there is no compensating
		// cache or retry.
		o.logger.Errorw("failed to persist assistant reply", "session_id", sessionID, "error", err)
		return nil, err
	}
	return stored, nil
}

// trimWelcomeSeed drops the synthesized welcome message from prompt
// history. It only ever sits at position zero.
func trimWelcomeSeed(history []store.Message) []store.Message {
	if len(history) > 0 && history[0].Role == store.RoleAssistant && history[0].Content == WelcomeText {
		return history[1:]
	}
	return history
}
