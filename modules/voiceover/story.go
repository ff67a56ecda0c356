package voiceover

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// TextGenerator - 나레이션용 텍스트 모델
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

const storyPromptTemplate = `You are a storyteller. You are given prompts users used to generate a comic and you need to create a narration for it. Keep it short and fun.
The prompts are: %s

Please respond with a JSON object containing the generated story narration.`

// StoryPrompt - 패널 프롬프트들로 나레이션 요청 프롬프트 구성
func StoryPrompt(story string) string {
	return fmt.Sprintf(storyPromptTemplate, story)
}

// ParseStory - 모델 응답을 JSON 객체로 변환
// ```json 펜스를 벗기고, 객체가 아니면 {"story": 원문}
func ParseStory(text string) map[string]interface{} {
	content := strings.TrimSpace(text)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(content), &parsed); err == nil && parsed != nil {
		return parsed
	}
	return map[string]interface{}{"story": content}
}

// FallbackStory - 모델 실패 시 응답
func FallbackStory(story string) map[string]interface{} {
	return map[string]interface{}{
		"story": "Once upon a time, there was a story about: " + story,
		"error": "Failed to generate custom story",
	}
}

// GenerateStory - 나레이션 생성 (실패해도 fallback 반환)
func GenerateStory(ctx context.Context, gen TextGenerator, story string) map[string]interface{} {
	text, err := gen.GenerateText(ctx, StoryPrompt(story))
	if err != nil {
		log.Printf("❌ [VoiceOver] Story generation failed: %v", err)
		return FallbackStory(story)
	}
	log.Printf("✅ [VoiceOver] Story generated (%d chars): %s", len(text), truncateString(text, 100))
	return ParseStory(text)
}
