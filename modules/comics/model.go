package comics

import (
	"pixelpanel-server/modules/common/model"
	"pixelpanel-server/modules/panel"
)

// PanelInput - 저장할 패널 1개
type PanelInput struct {
	ID              int     `json:"id"`
	Prompt          string  `json:"prompt"`
	ImageData       string  `json:"image_data"`
	LargeCanvasData string  `json:"largeCanvasData,omitempty"` // 구 프론트엔드 필드
	IsZoomed        bool    `json:"is_zoomed"`
	Narration       *string `json:"narration,omitempty"`
	AudioData       string  `json:"audio_data,omitempty"` // base64 mp3
}

func (p PanelInput) image() string {
	if p.ImageData != "" {
		return p.ImageData
	}
	return p.LargeCanvasData
}

// SaveComicRequest - POST /api/comics/save-comic
// title/comic_title, panels/panels_data 둘 다 허용
type SaveComicRequest struct {
	Title         string       `json:"title"`
	ComicTitle    string       `json:"comic_title,omitempty"`
	Panels        []PanelInput `json:"panels"`
	PanelsData    []PanelInput `json:"panels_data,omitempty"`
	ThumbnailData string       `json:"thumbnail_data,omitempty"`
	IsPublic      bool         `json:"is_public"`
}

func (r SaveComicRequest) title() string {
	if r.Title != "" {
		return r.Title
	}
	return r.ComicTitle
}

func (r SaveComicRequest) panels() []PanelInput {
	if len(r.Panels) > 0 {
		return r.Panels
	}
	return r.PanelsData
}

type SaveComicResponse struct {
	ComicID            string  `json:"comic_id"`
	CompositePublicURL *string `json:"composite_public_url"`
}

type ComicsResponse struct {
	Comics []model.Comic `json:"comics"`
}

// UpdatePanelRequest - PATCH /api/comics/panels/{panelId}
type UpdatePanelRequest struct {
	Narration       *string  `json:"narration,omitempty"`
	Prompt          *string  `json:"prompt,omitempty"`
	VoiceID         string   `json:"voice_id,omitempty"`
	Speed           *float64 `json:"speed,omitempty"`
	RegenerateAudio bool     `json:"regenerate_audio"`
}

type UpdatePanelResponse struct {
	Success  bool    `json:"success"`
	Message  string  `json:"message"`
	AudioURL *string `json:"audio_url"`
}

// RegenerateRequest - POST /api/comics/panels/{panelId}/regenerate
// previous_panel_context.image_data는 base64 또는 http(s) URL
type RegenerateRequest struct {
	TextPrompt           string              `json:"text_prompt"`
	PreviousPanelContext *panel.PanelContext `json:"previous_panel_context,omitempty"`
}

type RegenerateResponse struct {
	Success   bool   `json:"success"`
	PublicURL string `json:"public_url"`
	Message   string `json:"message"`
}

type VisibilityRequest struct {
	IsPublic bool `json:"is_public"`
}

type VisibilityResponse struct {
	Success  bool `json:"success"`
	IsPublic bool `json:"is_public"`
}

type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
