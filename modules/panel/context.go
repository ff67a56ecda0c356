package panel

import (
	"fmt"
	"strings"

	"pixelpanel-server/modules/common/gemini"
	"pixelpanel-server/modules/common/utils"
)

// ContinuationPrefix - 이어지는 장면 프롬프트 접두사
const ContinuationPrefix = "Create the next scene using this context: "

// Composition - 모델에 넘길 최종 프롬프트와 조건 이미지 목록
type Composition struct {
	Prompt     string
	Images     []gemini.Image
	HasContext bool
}

// Compose - 프롬프트와 이미지 순서 결정
// 컨텍스트가 있으면 [이전 패널, 참조 스케치], 없으면 [참조 스케치] 또는 []
// 외부 호출 없음, 같은 입력이면 같은 결과
func Compose(textPrompt, referenceImage string, previous *PanelContext) (*Composition, error) {
	if strings.TrimSpace(textPrompt) == "" {
		return nil, fmt.Errorf("%w: text_prompt is required", ErrInvalidInput)
	}

	comp := &Composition{Prompt: textPrompt, Images: []gemini.Image{}}

	if previous != nil {
		if strings.TrimSpace(previous.Prompt) == "" {
			return nil, fmt.Errorf("%w: previous_panel_context.prompt is required", ErrInvalidInput)
		}
		prevImage, err := decodeConditioningImage(previous.ImageData, "previous_panel_context.image_data")
		if err != nil {
			return nil, err
		}
		comp.Prompt = ContinuationPrefix + previous.Prompt + ". " + textPrompt
		comp.Images = append(comp.Images, prevImage)
		comp.HasContext = true
	}

	if referenceImage != "" {
		ref, err := decodeConditioningImage(referenceImage, "reference_image")
		if err != nil {
			return nil, err
		}
		comp.Images = append(comp.Images, ref)
	}

	return comp, nil
}

func decodeConditioningImage(encoded, field string) (gemini.Image, error) {
	data, err := utils.DecodeBase64Data(encoded)
	if err != nil {
		return gemini.Image{}, fmt.Errorf("%w: %s: %v", ErrImageDecode, field, err)
	}
	if err := utils.ValidateImage(data); err != nil {
		return gemini.Image{}, fmt.Errorf("%w: %s: %v", ErrImageDecode, field, err)
	}
	return gemini.Image{Data: data, MIMEType: utils.DetectImageMIMEType(data)}, nil
}
