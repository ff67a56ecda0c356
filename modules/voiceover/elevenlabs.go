package voiceover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io/v1"
	DefaultVoiceID = "L1aJrPa7pLJEyYlh3Ilq"
	DefaultModelID = "eleven_multilingual_v2"

	outputFormat   = "mp3_44100_128"
	requestTimeout = 30 * time.Second

	MinSpeed = 0.7
	MaxSpeed = 1.2
)

var (
	ErrEmptyText = errors.New("text cannot be empty")
	ErrTimeout   = errors.New("voice generation request timed out after 30 seconds")
)

// APIError - ElevenLabs 비정상 응답
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ElevenLabs API error (%d): %s", e.StatusCode, e.Body)
}

// VoiceSettings - TTS 음성 설정
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

// DefaultSettings - 기본 음성 설정
func DefaultSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.75, SimilarityBoost: 0.9, Style: 0.5}
}

// SettingsForSpeed - 속도에 맞춰 stability 조정
// 빠를수록 stability가 낮아지고 [0.1, 0.95] 범위로 제한
func SettingsForSpeed(speed float64) VoiceSettings {
	settings := DefaultSettings()
	settings.Stability = clamp(0.75-(speed-1.0)*0.2, 0.1, 0.95)
	return settings
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

// Client - ElevenLabs Text-to-Speech 클라이언트
type Client struct {
	apiKey       string
	baseURL      string
	modelID      string
	defaultVoice string
	httpClient   *http.Client
}

// NewClient - ElevenLabs 클라이언트 생성 (빈 값은 기본값 사용)
func NewClient(apiKey, baseURL, voiceID, modelID string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	if modelID == "" {
		modelID = DefaultModelID
	}
	return &Client{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		modelID:      modelID,
		defaultVoice: voiceID,
		httpClient:   &http.Client{Timeout: requestTimeout},
	}
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// Synthesize - 텍스트를 mp3로 변환
func (c *Client) Synthesize(ctx context.Context, text, voiceID string, settings VoiceSettings) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if voiceID == "" {
		voiceID = c.defaultVoice
	}

	body, err := json.Marshal(synthesizeRequest{Text: text, ModelID: c.modelID, VoiceSettings: settings})
	if err != nil {
		return nil, fmt.Errorf("failed to encode TTS request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", c.baseURL, voiceID, outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	log.Printf("🎙️  [VoiceOver] Synthesizing (voice: %s, model: %s, stability: %.2f): %s",
		voiceID, c.modelID, settings.Stability, truncateString(text, 50))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("failed to call ElevenLabs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	log.Printf("✅ [VoiceOver] Audio generated (%d bytes)", len(audio))
	return audio, nil
}

// ListVoices - 사용 가능한 음성 목록 (원본 JSON 그대로)
func (c *Client) ListVoices(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create voices request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch voices: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read voices: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncateString(string(body), 2048)}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("voices response is not JSON")
	}
	return json.RawMessage(body), nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
