package panel

import "strings"

// 표지 크기 (3:4 세로)
const (
	CoverWidth  = 600
	CoverHeight = 800
)

const (
	panelAspectRatio = "4:3"
	coverAspectRatio = "3:4"
)

const firstPanelInstruction = "You are a comic art generator. You generate art for panels based on a reference sketch from the user. " +
	"Create clean, professional comic book style artwork that matches the reference sketch's composition and elements. " +
	"Use bold lines, clear forms, and comic book aesthetics. Maintain the same perspective, character positions, " +
	"and scene composition as shown in the reference sketch. " +
	"Fill the entire image frame with artwork - the composition should extend edge-to-edge without empty borders. " +
	"Do NOT include white borders or empty white space around the artwork unless specifically requested in the prompt. " +
	"Generate the image with a 4:3 aspect ratio (landscape orientation) - width should be wider than height. " +
	"Ideal dimensions are 800x600 pixels or similar 4:3 proportions."

const continuationInstruction = "You are a comic art generator creating the next scene in a comic sequence. " +
	"You have been provided with the previous panel as context. Create a new scene that follows naturally from the context, " +
	"maintaining visual consistency in style, characters, and setting. Use the reference sketch as a guide for composition. " +
	"Create clean, professional comic book style artwork with bold lines, clear forms, and comic book aesthetics. " +
	"The new scene should feel like a natural continuation of the story. " +
	"Fill the entire image frame with artwork - the composition should extend edge-to-edge without empty borders. " +
	"Do NOT include white borders or empty white space around the artwork unless specifically requested in the prompt. " +
	"Generate the image with a 4:3 aspect ratio (landscape orientation) - width should be wider than height. " +
	"Ideal dimensions are 800x600 pixels or similar 4:3 proportions."

const coverInstruction = "You are a comic book cover art generator. Create a stunning, eye-catching comic book cover that captures the essence of the story. " +
	"Use bold, dynamic composition with professional comic book style artwork. " +
	"Create clean lines, vibrant colors, and dramatic composition typical of comic book covers. " +
	"Fill the entire image frame with artwork - the composition should extend edge-to-edge without empty borders. " +
	"Do NOT include white borders, text, titles, or empty white space around the artwork unless specifically requested. " +
	"Generate the image with a 3:4 aspect ratio (portrait orientation) - height should be taller than width. " +
	"Ideal dimensions are 600x800 pixels or similar 3:4 proportions suitable for a comic book cover."

type instructionKey struct {
	thumbnail  bool
	hasContext bool
}

// 표지는 컨텍스트 없이 생성되므로 (true, true)도 표지 지시문으로 매핑
var systemInstructions = map[instructionKey]string{
	{thumbnail: false, hasContext: false}: firstPanelInstruction,
	{thumbnail: false, hasContext: true}:  continuationInstruction,
	{thumbnail: true, hasContext: false}:  coverInstruction,
	{thumbnail: true, hasContext: true}:   coverInstruction,
}

// SystemInstruction - (표지 여부, 컨텍스트 여부)로 시스템 지시문 선택
func SystemInstruction(isThumbnail, hasContext bool) string {
	return systemInstructions[instructionKey{thumbnail: isThumbnail, hasContext: hasContext}]
}

// AspectRatio - 표지는 3:4, 패널은 4:3
func AspectRatio(isThumbnail bool) string {
	if isThumbnail {
		return coverAspectRatio
	}
	return panelAspectRatio
}

// CoverPrompt - 패널 프롬프트 앞 3개로 표지 프롬프트 생성
func CoverPrompt(prompts []string) string {
	picked := prompts
	if len(picked) > 3 {
		picked = picked[:3]
	}
	return "Comic book cover art featuring: " + strings.Join(picked, ", ")
}
