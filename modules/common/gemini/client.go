package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"
)

// ErrNoImage - 모델 응답에 디코딩 가능한 이미지 파트가 없음
var ErrNoImage = errors.New("no image data in model response")

// Image - 모델에 전달할 조건 이미지
type Image struct {
	Data     []byte
	MIMEType string
}

// Client - Gemini 이미지/텍스트 생성 클라이언트
type Client struct {
	genai      *genai.Client
	imageModel string
	textModel  string
}

// NewClient - Genai 클라이언트 생성
func NewClient(ctx context.Context, apiKey, imageModel, textModel string) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	log.Printf("✅ [Gemini] Client initialized (image: %s, text: %s)", imageModel, textModel)
	return &Client{
		genai:      genaiClient,
		imageModel: imageModel,
		textModel:  textModel,
	}, nil
}

// GenerateImage - 이미지 1장 생성 (재시도 없음, 호출 1회)
// images 순서 그대로 파트에 들어가고 마지막에 텍스트 파트가 붙음
func (c *Client) GenerateImage(ctx context.Context, systemPrompt, userPrompt string, images []Image, aspectRatio string) ([]byte, error) {
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(BuildImagePrompt(systemPrompt, userPrompt)))

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if aspectRatio != "" {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: aspectRatio}
	}

	log.Printf("🎨 [Gemini] Generating image - model: %s, ratio: %s, images: %d", c.imageModel, aspectRatio, len(images))

	result, err := c.genai.Models.GenerateContent(ctx, c.imageModel, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
	if err != nil {
		if IsRateLimitError(err) {
			log.Printf("⚠️  [Gemini] Rate limited: %v", err)
		}
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	return ExtractImage(result)
}

// GenerateText - 텍스트 생성 (스토리 내레이션용)
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	result, err := c.genai.Models.GenerateContent(ctx, c.textModel, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate text: %w", err)
	}

	text := ExtractText(result)
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text")
	}
	return text, nil
}

// BuildImagePrompt - 시스템 지시문과 사용자 프롬프트를 하나의 텍스트 파트로 결합
func BuildImagePrompt(systemPrompt, userPrompt string) string {
	if systemPrompt == "" {
		return "Text prompt: " + userPrompt
	}
	return systemPrompt + "\n\nText prompt: " + userPrompt
}

// ExtractImage - 응답에서 첫 번째 인라인 이미지 추출
// 이미지가 없으면 ErrNoImage를 감싸서 종료 사유와 모델 텍스트를 함께 반환
func ExtractImage(result *genai.GenerateContentResponse) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: empty response", ErrNoImage)
	}

	var finishReason genai.FinishReason
	for _, candidate := range result.Candidates {
		if candidate == nil {
			continue
		}
		if finishReason == "" {
			finishReason = candidate.FinishReason
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				log.Printf("✅ [Gemini] Image generated: %d bytes", len(part.InlineData.Data))
				return part.InlineData.Data, nil
			}
		}
	}

	details := []string{}
	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		details = append(details, fmt.Sprintf("block reason: %s", result.PromptFeedback.BlockReason))
	}
	if finishReason != "" {
		details = append(details, fmt.Sprintf("finish reason: %s", finishReason))
	}
	if text := ExtractText(result); text != "" {
		details = append(details, fmt.Sprintf("model said: %s", truncateString(text, 200)))
	}
	if len(details) == 0 {
		return nil, ErrNoImage
	}
	return nil, fmt.Errorf("%w (%s)", ErrNoImage, strings.Join(details, ", "))
}

// ExtractText - 첫 번째 후보의 텍스트 파트 결합
func ExtractText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0] == nil || result.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// IsRateLimitError - 429 Rate Limit 에러인지 확인
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "resource_exhausted") ||
		strings.Contains(errStr, "quota")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
