// Package knowledge loads the static reference assets that seed every
// story prompt: the system prompt, blockchain facts, story exemplars and
// community discussion samples.
package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	systemPromptAsset = "system_prompt.txt"
	factsAsset        = "facts.json"
	storiesAsset      = "stories.json"
	communityAsset    = "community.json"

	// Bounds applied when composing the knowledge context so the prompt
	// stays a predictable size no matter how large the source assets grow.
	maxItemsPerCategory = 5
	maxExcerptRunes     = 400
	maxLabelRunes       = 80
)

var ErrNotInitialized = errors.New("knowledge: service not initialized")

// InitError reports a missing or malformed asset during Initialize.
type InitError struct {
	Asset string
	Err   error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("knowledge: load %s: %v", e.Asset, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Fact is one entry of the blockchain reference collection.
type Fact struct {
	Topic   string `json:"topic"`
	Summary string `json:"summary"`
}

// StoryExemplar is a sample story used to steer tone and structure.
type StoryExemplar struct {
	Title string `json:"title"`
	Moral string `json:"moral"`
	Text  string `json:"text"`
}

// CommunityPost is a sampled community discussion snippet.
type CommunityPost struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// Service owns the loaded assets. It is constructed explicitly and passed
// to whoever needs prompt material; there is no package-level state.
type Service struct {
	dir    string
	logger *zap.SugaredLogger

	mu           sync.RWMutex
	initialized  bool
	systemPrompt string
	facts        []Fact
	stories      []StoryExemplar
	community    []CommunityPost
}

func NewService(assetDir string, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{dir: assetDir, logger: logger}
}

// Initialize loads every required asset. It is idempotent: a second call
// after success is a no-op. A failed call leaves the service uninitialized
// so a retry performs a full reload.
func (s *Service) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	promptBytes, err := os.ReadFile(filepath.Join(s.dir, systemPromptAsset))
	if err != nil {
		return &InitError{Asset: systemPromptAsset, Err: err}
	}
	prompt := strings.TrimSpace(string(promptBytes))
	if prompt == "" {
		return &InitError{Asset: systemPromptAsset, Err: errors.New("asset is empty")}
	}

	var facts []Fact
	if err := loadJSONAsset(s.dir, factsAsset, &facts); err != nil {
		return err
	}

	var stories []StoryExemplar
	if err := loadJSONAsset(s.dir, storiesAsset, &stories); err != nil {
		return err
	}

	var community []CommunityPost
	if err := loadJSONAsset(s.dir, communityAsset, &community); err != nil {
		return err
	}

	s.systemPrompt = prompt
	s.facts = facts
	s.stories = stories
	s.community = community
	s.initialized = true

	s.logger.Infow("knowledge base loaded",
		"facts", len(facts),
		"stories", len(stories),
		"community", len(community),
	)

	return nil
}

// SystemPrompt returns the loaded system prompt text.
func (s *Service) SystemPrompt() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return "", ErrNotInitialized
	}
	return s.systemPrompt, nil
}

// KnowledgeContext composes a bounded digest of the reference material.
// Output is deterministic for a given set of loaded assets: fixed section
// order, at most maxItemsPerCategory entries per section, each entry
// truncated to maxExcerptRunes runes and labels to maxLabelRunes.
func (s *Service) KnowledgeContext() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return "", ErrNotInitialized
	}

	var builder strings.Builder

	builder.WriteString("Blockchain facts for kids:\n")
	for i, fact := range s.facts {
		if i >= maxItemsPerCategory {
			break
		}
		builder.WriteString(fmt.Sprintf("- %s: %s\n", truncateRunes(fact.Topic, maxLabelRunes), truncateRunes(fact.Summary, maxExcerptRunes)))
	}

	builder.WriteString("\nStory exemplars:\n")
	for i, story := range s.stories {
		if i >= maxItemsPerCategory {
			break
		}
		builder.WriteString(fmt.Sprintf("- %q (moral: %s): %s\n", truncateRunes(story.Title, maxLabelRunes), truncateRunes(story.Moral, maxLabelRunes), truncateRunes(story.Text, maxExcerptRunes)))
	}

	builder.WriteString("\nCommunity voices:\n")
	for i, post := range s.community {
		if i >= maxItemsPerCategory {
			break
		}
		builder.WriteString(fmt.Sprintf("- %s: %s\n", truncateRunes(post.Author, maxLabelRunes), truncateRunes(post.Text, maxExcerptRunes)))
	}

	return strings.TrimSpace(builder.String()), nil
}

func loadJSONAsset(dir, name string, out interface{}) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return &InitError{Asset: name, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &InitError{Asset: name, Err: err}
	}
	return nil
}

func truncateRunes(input string, max int) string {
	if max <= 0 {
		return input
	}
	if utf8.RuneCountInString(input) <= max {
		return input
	}

	var builder strings.Builder
	count := 0
	for _, r := range input {
		if count >= max {
			builder.WriteRune('…')
			break
		}
		builder.WriteRune(r)
		count++
	}
	return builder.String()
}
