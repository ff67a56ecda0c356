package panel

import "encoding/base64"

// PanelContext - 이전 패널 정보 (프롬프트 + base64 이미지)
type PanelContext struct {
	Prompt    string `json:"prompt"`
	ImageData string `json:"image_data"`
}

// GenerationRequest - 패널/표지 생성 요청
type GenerationRequest struct {
	TextPrompt           string        `json:"text_prompt"`
	ReferenceImage       string        `json:"reference_image,omitempty"`
	PreviousPanelContext *PanelContext `json:"previous_panel_context,omitempty"`
	IsThumbnail          bool          `json:"is_thumbnail"`
	SessionID            string        `json:"session_id,omitempty"` // 서버 측 컨텍스트 세션 (선택)
	PanelID              *int          `json:"panel_id,omitempty"`   // 로그용
}

// GeneratedImage - 후처리까지 끝난 PNG 결과
type GeneratedImage struct {
	PNG    []byte
	Width  int
	Height int
	Prompt string // 모델에 실제로 전달된 프롬프트
}

// Base64 - 응답용 base64 PNG
func (g *GeneratedImage) Base64() string {
	return base64.StdEncoding.EncodeToString(g.PNG)
}

// GenerateResponse - POST /api/comics/generate 응답
type GenerateResponse struct {
	Success   bool   `json:"success"`
	ImageData string `json:"image_data"`
	Message   string `json:"message"`
}

// ThumbnailRequest - POST /api/comics/generate-thumbnail 요청
type ThumbnailRequest struct {
	Prompts []string `json:"prompts"`
}

// ThumbnailResponse - 표지 생성 응답
type ThumbnailResponse struct {
	Success       bool   `json:"success"`
	ThumbnailData string `json:"thumbnail_data"`
	Message       string `json:"message"`
}
