package panel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pixelpanel-server/modules/common/gemini"
	"pixelpanel-server/modules/common/utils"
)

// ImageSynthesizer - 외부 이미지 생성 모델
type ImageSynthesizer interface {
	GenerateImage(ctx context.Context, systemPrompt, userPrompt string, images []gemini.Image, aspectRatio string) ([]byte, error)
}

// CreditLedger - 크레딧 확인/차감
type CreditLedger interface {
	HasSufficientCredits(ctx context.Context, userID string, amount int) (bool, error)
	DeductCredits(ctx context.Context, userID string, amount int) (int, error)
}

// ContextStore - 사용자+세션별 마지막 패널 컨텍스트 저장소
// Load는 저장된 값이 없으면 (nil, nil)을 반환
type ContextStore interface {
	Load(ctx context.Context, userID, sessionID string) (*PanelContext, error)
	Save(ctx context.Context, userID, sessionID string, panelCtx PanelContext) error
}

// Options - Generator 설정
type Options struct {
	Ledger          CreditLedger // nil이면 크레딧 확인 생략
	Store           ContextStore // nil이면 세션 컨텍스트 사용 안 함
	Timeout         time.Duration
	BorderThreshold float64
	CreditCost      int
}

// Generator - 패널 연속성 생성기
type Generator struct {
	synth           ImageSynthesizer
	ledger          CreditLedger
	store           ContextStore
	timeout         time.Duration
	borderThreshold float64
	creditCost      int
}

func NewGenerator(synth ImageSynthesizer, opts Options) *Generator {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	return &Generator{
		synth:           synth,
		ledger:          opts.Ledger,
		store:           opts.Store,
		timeout:         opts.Timeout,
		borderThreshold: opts.BorderThreshold,
		creditCost:      opts.CreditCost,
	}
}

// Generate - 패널 또는 표지 1장 생성
// 검증 → 조합 → 크레딧 확인 → 모델 호출 1회 → 여백 제거 → (표지) 600x800 → 차감
func (g *Generator) Generate(ctx context.Context, userID string, req GenerationRequest) (*GeneratedImage, error) {
	previous := req.PreviousPanelContext
	if req.IsThumbnail && previous != nil {
		log.Printf("⚠️  [Panel] Cover requests are context-free, ignoring previous_panel_context")
		previous = nil
	}

	comp, err := Compose(req.TextPrompt, req.ReferenceImage, previous)
	if err != nil {
		return nil, err
	}

	if !comp.HasContext && g.usesSession(userID, req) {
		if stored := g.loadSessionContext(ctx, userID, req.SessionID); stored != nil {
			if withCtx, err := Compose(req.TextPrompt, req.ReferenceImage, stored); err == nil {
				comp = withCtx
			} else {
				log.Printf("⚠️  [Panel] Ignoring unusable session context %s: %v", req.SessionID, err)
			}
		}
	}

	if err := g.checkCredits(ctx, userID); err != nil {
		return nil, err
	}

	systemPrompt := SystemInstruction(req.IsThumbnail, comp.HasContext)
	log.Printf("🎨 [Panel] Generating %s (context: %v, images: %d): %s",
		kindLabel(req.IsThumbnail), comp.HasContext, len(comp.Images), truncateString(comp.Prompt, 100))

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	raw, err := g.synth.GenerateImage(callCtx, systemPrompt, comp.Prompt, comp.Images, AspectRatio(req.IsThumbnail))
	if err != nil {
		return nil, classifySynthesisError(callCtx, err)
	}
	log.Printf("✅ [Panel] Model responded in %s (%d bytes)", time.Since(started).Round(time.Millisecond), len(raw))

	img, _, err := utils.DecodeImage(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable image part: %v", ErrNoImageProduced, err)
	}

	img = StripBorders(img, g.borderThreshold)
	if req.IsThumbnail {
		img = utils.ResizeExact(img, CoverWidth, CoverHeight)
	}

	pngData, err := utils.EncodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	g.deductCredits(ctx, userID)

	if g.usesSession(userID, req) {
		g.saveSessionContext(ctx, userID, req.SessionID, PanelContext{
			Prompt:    req.TextPrompt,
			ImageData: utils.ConvertImageToBase64(pngData),
		})
	}

	b := img.Bounds()
	return &GeneratedImage{
		PNG:    pngData,
		Width:  b.Dx(),
		Height: b.Dy(),
		Prompt: comp.Prompt,
	}, nil
}

func (g *Generator) checkCredits(ctx context.Context, userID string) error {
	if g.ledger == nil || userID == "" || g.creditCost <= 0 {
		return nil
	}
	ok, err := g.ledger.HasSufficientCredits(ctx, userID, g.creditCost)
	if err != nil {
		log.Printf("❌ [Panel] Credit check failed for user %s: %v", userID, err)
		return fmt.Errorf("%w: %w", ErrCreditCheck, err)
	}
	if !ok {
		return ErrInsufficientCredits
	}
	return nil
}

// deductCredits - 차감 실패는 로그만 남기고 이미지는 그대로 반환
func (g *Generator) deductCredits(ctx context.Context, userID string) {
	if g.ledger == nil || userID == "" || g.creditCost <= 0 {
		return
	}
	balance, err := g.ledger.DeductCredits(context.WithoutCancel(ctx), userID, g.creditCost)
	if err != nil {
		log.Printf("❌ [Panel] Credit deduction failed for user %s (%d credits): %v", userID, g.creditCost, err)
		return
	}
	log.Printf("💰 [Panel] Deducted %d credits from user %s, balance: %d", g.creditCost, userID, balance)
}

// usesSession - 세션 컨텍스트는 인증된 사용자의 패널 요청에서만 사용
func (g *Generator) usesSession(userID string, req GenerationRequest) bool {
	return g.store != nil && userID != "" && req.SessionID != "" && !req.IsThumbnail
}

func (g *Generator) loadSessionContext(ctx context.Context, userID, sessionID string) *PanelContext {
	stored, err := g.store.Load(ctx, userID, sessionID)
	if err != nil {
		log.Printf("⚠️  [Panel] Failed to load session context %s: %v", sessionID, err)
		return nil
	}
	return stored
}

func (g *Generator) saveSessionContext(ctx context.Context, userID, sessionID string, panelCtx PanelContext) {
	if err := g.store.Save(context.WithoutCancel(ctx), userID, sessionID, panelCtx); err != nil {
		log.Printf("⚠️  [Panel] Failed to save session context %s: %v", sessionID, err)
	}
}

func classifySynthesisError(callCtx context.Context, err error) error {
	switch {
	case errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		log.Printf("❌ [Panel] Image synthesis timed out: %v", err)
		return fmt.Errorf("%w: %w", ErrGenerationTimeout, err)
	case errors.Is(err, gemini.ErrNoImage):
		log.Printf("❌ [Panel] Model returned no image: %v", err)
		return fmt.Errorf("%w: %w", ErrNoImageProduced, err)
	default:
		log.Printf("❌ [Panel] Image synthesis call failed: %v", err)
		return fmt.Errorf("%w: image synthesis call: %w", ErrGenerationFailed, err)
	}
}

func kindLabel(isThumbnail bool) string {
	if isThumbnail {
		return "cover"
	}
	return "panel"
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
