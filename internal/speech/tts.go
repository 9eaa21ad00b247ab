// Package speech proxies text-to-speech synthesis to the voice vendor and
// provides the chunked playback iterator used by the reading view.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blocktales/storyteller/internal/utils"
)

var ErrTextRequired = errors.New("speech: text cannot be empty")

// SynthesizeRequest describes one synthesis task.
type SynthesizeRequest struct {
	Text       string
	VoiceType  string
	Encoding   string
	SpeedRatio float64
}

// Result carries the decoded audio along with vendor metadata.
type Result struct {
	ReqID    string          `json:"reqid"`
	Audio    []byte          `json:"audio"`
	Duration string          `json:"duration"`
	Raw      json.RawMessage `json:"raw"`
}

// VoiceInfo describes one available voice.
type VoiceInfo struct {
	VoiceName string `json:"voice_name"`
	VoiceType string `json:"voice_type"`
	Category  string `json:"category"`
}

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Service wraps the vendor's RESTful TTS API.
type Service struct {
	baseURL       string
	apiKey        string
	defaultVoice  string
	defaultFormat string
	client        httpDoer
	logger        *zap.SugaredLogger
}

func NewService(cfg utils.SpeechConfig, logger *zap.SugaredLogger) *Service {
	base := strings.TrimRight(cfg.BaseURL, "/")

	voice := strings.TrimSpace(cfg.VoiceType)
	if voice == "" {
		voice = "en_us_storyteller_female"
	}

	format := strings.TrimSpace(cfg.Format)
	if format == "" {
		format = "mp3"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		// Synthesis responses are slow; a short timeout causes premature 504s.
		timeout = 60 * time.Second
	}

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Service{
		baseURL:       base,
		apiKey:        cfg.APIKey,
		defaultVoice:  voice,
		defaultFormat: format,
		client:        &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// Synthesize sends text to the vendor and returns the synthesized audio.
func (s *Service) Synthesize(ctx context.Context, req SynthesizeRequest) (*Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrTextRequired
	}

	voice := strings.TrimSpace(req.VoiceType)
	if voice == "" {
		voice = s.defaultVoice
	}

	encoding := strings.TrimSpace(req.Encoding)
	if encoding == "" {
		encoding = s.defaultFormat
	}

	speed := req.SpeedRatio
	if speed <= 0 {
		speed = 1.0
	}

	payload := map[string]interface{}{
		"audio": map[string]interface{}{
			"voice_type":  voice,
			"encoding":    encoding,
			"speed_ratio": speed,
		},
		"request": map[string]interface{}{
			"text": text,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("speech: marshal payload: %w", err)
	}

	endpoint := s.baseURL + "/voice/tts"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("speech: create request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("speech: call tts api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("speech: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, buildVendorError(resp.StatusCode, respBody)
	}

	var envelope ttsAPIResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("speech: decode response: %w", err)
	}

	if envelope.Error != nil && envelope.Error.Message != "" {
		return nil, fmt.Errorf("speech: vendor error: %s", envelope.Error.Message)
	}

	if envelope.Data == "" {
		return nil, fmt.Errorf("speech: response contained no audio data")
	}

	audio, err := base64.StdEncoding.DecodeString(envelope.Data)
	if err != nil {
		return nil, fmt.Errorf("speech: decode audio: %w", err)
	}

	return &Result{
		ReqID:    envelope.ReqID,
		Audio:    audio,
		Duration: envelope.Addition.Duration,
		Raw:      json.RawMessage(respBody),
	}, nil
}

// ListVoices fetches the available voices.
func (s *Service) ListVoices(ctx context.Context) ([]VoiceInfo, error) {
	endpoint := s.baseURL + "/voice/list"
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("speech: create voice list request: %w", err)
	}

	if s.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("speech: call voice list api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("speech: read voice list response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, buildVendorError(resp.StatusCode, body)
	}

	var voices []VoiceInfo
	if err := json.Unmarshal(body, &voices); err != nil {
		return nil, fmt.Errorf("speech: decode voice list response: %w", err)
	}

	return voices, nil
}

func buildVendorError(statusCode int, body []byte) error {
	var envelope struct {
		Error *vendorAPIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return fmt.Errorf("speech: vendor error (%d): %s", statusCode, envelope.Error.Message)
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return fmt.Errorf("speech: vendor error (%d): %s", statusCode, snippet)
}

type vendorAPIError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type ttsAPIResponse struct {
	ReqID    string          `json:"reqid"`
	Data     string          `json:"data"`
	Addition ttsAddition     `json:"addition"`
	Error    *vendorAPIError `json:"error,omitempty"`
}

type ttsAddition struct {
	Duration string `json:"duration"`
}
