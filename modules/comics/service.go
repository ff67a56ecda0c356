package comics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pixelpanel-server/modules/common/database"
	"pixelpanel-server/modules/common/model"
	"pixelpanel-server/modules/common/storage"
	"pixelpanel-server/modules/common/utils"
	"pixelpanel-server/modules/panel"
	"pixelpanel-server/modules/voiceover"
)

// Store - comics / comic_panels 테이블 접근
type Store interface {
	CreateComic(ctx context.Context, userID, title string, isPublic bool) (*model.Comic, error)
	UpdateComic(ctx context.Context, comicID, userID string, fields map[string]interface{}) (*model.Comic, error)
	GetComicForUser(ctx context.Context, comicID, userID string) (*model.Comic, error)
	ListUserComics(ctx context.Context, userID string) ([]model.Comic, error)
	ListPublicComics(ctx context.Context, limit int) ([]model.Comic, error)
	DeleteComic(ctx context.Context, comicID, userID string) error
	InsertPanels(ctx context.Context, panels []map[string]interface{}) ([]model.ComicPanel, error)
	GetPanel(ctx context.Context, panelID string) (*model.ComicPanel, error)
	GetPanelByNumber(ctx context.Context, comicID string, panelNumber int) (*model.ComicPanel, error)
	UpdatePanel(ctx context.Context, panelID string, fields map[string]interface{}) (*model.ComicPanel, error)
}

// ObjectStore - 이미지/오디오 파일 저장소
type ObjectStore interface {
	UploadImage(ctx context.Context, pathWithoutExt string, imageData []byte) (*storage.StoredObject, error)
	UploadAudio(ctx context.Context, pathWithoutExt string, audio []byte) (*storage.StoredObject, error)
	Remove(ctx context.Context, paths []string) error
	Download(ctx context.Context, url string) ([]byte, error)
	PathFromPublicURL(publicURL string) (string, bool)
}

// PanelGenerator - 패널 재생성에 쓰는 생성기
type PanelGenerator interface {
	Generate(ctx context.Context, userID string, req panel.GenerationRequest) (*panel.GeneratedImage, error)
}

type CreditLedger interface {
	HasSufficientCredits(ctx context.Context, userID string, amount int) (bool, error)
	DeductCredits(ctx context.Context, userID string, amount int) (int, error)
}

// Options - Service 설정
type Options struct {
	Voice             voiceover.Synthesizer // nil이면 오디오 재생성 불가
	Ledger            CreditLedger
	NarrationCost     int
	PublicLimit       int
	UploadConcurrency int
}

// Service - 만화 저장/조회/수정
type Service struct {
	store             Store
	objects           ObjectStore
	generator         PanelGenerator
	voice             voiceover.Synthesizer
	ledger            CreditLedger
	narrationCost     int
	publicLimit       int
	uploadConcurrency int
}

func NewService(store Store, objects ObjectStore, generator PanelGenerator, opts Options) *Service {
	if opts.PublicLimit <= 0 {
		opts.PublicLimit = 50
	}
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = 4
	}
	return &Service{
		store:             store,
		objects:           objects,
		generator:         generator,
		voice:             opts.Voice,
		ledger:            opts.Ledger,
		narrationCost:     opts.NarrationCost,
		publicLimit:       opts.PublicLimit,
		uploadConcurrency: opts.UploadConcurrency,
	}
}

type preparedPanel struct {
	number    int
	prompt    string
	narration *string
	isZoomed  bool
	image     []byte
	audio     []byte
}

type uploadedPanel struct {
	image *storage.StoredObject
	audio *storage.StoredObject
}

// SaveComic - 만화 생성 + 패널/표지/오디오 업로드 + 합본 이미지
// 업로드 중 하나라도 실패하면 올린 파일과 comics 행을 되돌림
func (s *Service) SaveComic(ctx context.Context, userID string, req SaveComicRequest) (*SaveComicResponse, error) {
	title := strings.TrimSpace(req.title())
	if title == "" {
		return nil, fmt.Errorf("%w: title or comic_title", ErrMissingField)
	}
	inputs := req.panels()
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: panels or panels_data", ErrMissingField)
	}

	prepared, err := preparePanels(inputs)
	if err != nil {
		return nil, err
	}

	var cover []byte
	if req.ThumbnailData != "" {
		if cover, err = decodeImageData(req.ThumbnailData); err != nil {
			return nil, fmt.Errorf("%w: thumbnail_data: %v", ErrInvalidPanelData, err)
		}
	}

	comic, err := s.store.CreateComic(ctx, userID, title, req.IsPublic)
	if err != nil {
		return nil, err
	}
	log.Printf("📚 [Comics] Saving comic %s for user %s (%d panels, cover: %v, public: %v)",
		comic.ID, userID, len(prepared), cover != nil, req.IsPublic)

	prefix := comicPrefix(userID, comic.ID)
	uploads := make([]uploadedPanel, len(prepared))
	var coverObj, compositeObj *storage.StoredObject

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.uploadConcurrency)

	for i, p := range prepared {
		g.Go(func() error {
			img, err := s.objects.UploadImage(gctx, fmt.Sprintf("%s/panel_%d", prefix, p.number), p.image)
			if err != nil {
				return fmt.Errorf("panel %d image: %w", p.number, err)
			}
			uploads[i].image = img

			if len(p.audio) > 0 {
				audio, err := s.objects.UploadAudio(gctx, fmt.Sprintf("%s/audio/panel_%d", prefix, p.number), p.audio)
				if err != nil {
					return fmt.Errorf("panel %d audio: %w", p.number, err)
				}
				uploads[i].audio = audio
			}
			return nil
		})
	}

	if cover != nil {
		g.Go(func() error {
			obj, err := s.objects.UploadImage(gctx, fmt.Sprintf("%s/panel_%d", prefix, model.CoverPanelNumber), cover)
			if err != nil {
				return fmt.Errorf("cover image: %w", err)
			}
			coverObj = obj
			return nil
		})
	}

	// 합본 실패는 저장을 막지 않음
	g.Go(func() error {
		compositeObj = s.uploadComposite(gctx, prefix, prepared)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("❌ [Comics] Upload failed for comic %s: %v", comic.ID, err)
		s.rollback(ctx, comic.ID, userID, uploadedPaths(uploads, coverObj, compositeObj))
		return nil, fmt.Errorf("failed to upload comic assets: %w", err)
	}

	rows := make([]map[string]interface{}, 0, len(prepared)+1)
	if coverObj != nil {
		rows = append(rows, map[string]interface{}{
			"comic_id":     comic.ID,
			"panel_number": model.CoverPanelNumber,
			"prompt":       panel.CoverPrompt(panelPrompts(prepared)),
			"storage_path": coverObj.Path,
			"public_url":   coverObj.PublicURL,
			"file_size":    coverObj.Size,
			"is_zoomed":    false,
		})
	}
	for i, p := range prepared {
		row := map[string]interface{}{
			"comic_id":     comic.ID,
			"panel_number": p.number,
			"prompt":       p.prompt,
			"narration":    p.narration,
			"storage_path": uploads[i].image.Path,
			"public_url":   uploads[i].image.PublicURL,
			"file_size":    uploads[i].image.Size,
			"is_zoomed":    p.isZoomed,
		}
		if uploads[i].audio != nil {
			row["audio_url"] = uploads[i].audio.PublicURL
		}
		rows = append(rows, row)
	}

	if _, err := s.store.InsertPanels(ctx, rows); err != nil {
		s.rollback(ctx, comic.ID, userID, uploadedPaths(uploads, coverObj, compositeObj))
		return nil, err
	}

	resp := &SaveComicResponse{ComicID: comic.ID}
	if compositeObj != nil {
		if _, err := s.store.UpdateComic(ctx, comic.ID, userID, map[string]interface{}{"composite_url": compositeObj.PublicURL}); err != nil {
			log.Printf("⚠️  [Comics] Failed to store composite url for %s: %v", comic.ID, err)
		}
		resp.CompositePublicURL = &compositeObj.PublicURL
	}

	log.Printf("✅ [Comics] Comic saved: %s (%d panel rows)", comic.ID, len(rows))
	return resp, nil
}

func (s *Service) uploadComposite(ctx context.Context, prefix string, prepared []preparedPanel) *storage.StoredObject {
	images := make([][]byte, len(prepared))
	for i, p := range prepared {
		images[i] = p.image
	}

	sheet, err := utils.BuildComicSheet(images, 2)
	if err != nil {
		log.Printf("⚠️  [Comics] Failed to build comic sheet: %v", err)
		return nil
	}
	obj, err := s.objects.UploadImage(ctx, prefix+"/comic_full", sheet)
	if err != nil {
		log.Printf("⚠️  [Comics] Failed to upload comic sheet: %v", err)
		return nil
	}
	return obj
}

func (s *Service) rollback(ctx context.Context, comicID, userID string, paths []string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.objects.Remove(ctx, paths); err != nil {
		log.Printf("⚠️  [Comics] Rollback: failed to remove %d objects: %v", len(paths), err)
	}
	if err := s.store.DeleteComic(ctx, comicID, userID); err != nil {
		log.Printf("⚠️  [Comics] Rollback: failed to delete comic %s: %v", comicID, err)
	}
}

// ListUserComics - 사용자 만화 목록 (패널 번호순)
func (s *Service) ListUserComics(ctx context.Context, userID string) ([]model.Comic, error) {
	comics, err := s.store.ListUserComics(ctx, userID)
	if err != nil {
		return nil, err
	}
	sortPanels(comics)
	return comics, nil
}

// ListPublicComics - 공개 만화 목록
func (s *Service) ListPublicComics(ctx context.Context) ([]model.Comic, error) {
	comics, err := s.store.ListPublicComics(ctx, s.publicLimit)
	if err != nil {
		return nil, err
	}
	sortPanels(comics)
	return comics, nil
}

// UpdatePanel - 나레이션/프롬프트 수정, 필요하면 음성 재생성
func (s *Service) UpdatePanel(ctx context.Context, userID, panelID string, req UpdatePanelRequest) (*UpdatePanelResponse, error) {
	if req.Narration == nil && req.Prompt == nil {
		return nil, fmt.Errorf("%w: narration or prompt", ErrMissingField)
	}
	speed, ok := voiceover.ValidateSpeed(req.Speed)
	if req.RegenerateAudio && !ok {
		return nil, ErrInvalidSpeed
	}

	p, err := s.authorizePanel(ctx, userID, panelID)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.Narration != nil {
		fields["narration"] = *req.Narration
	}
	if req.Prompt != nil {
		fields["prompt"] = *req.Prompt
	}

	var audioURL *string
	if req.RegenerateAudio && req.Narration != nil && strings.TrimSpace(*req.Narration) != "" {
		url, err := s.regenerateAudio(ctx, userID, p, *req.Narration, req.VoiceID, speed)
		switch {
		case errors.Is(err, panel.ErrInsufficientCredits), errors.Is(err, ErrVoiceUnavailable):
			return nil, err
		case err != nil:
			log.Printf("❌ [Comics] Audio regeneration failed for panel %s, saving text only: %v", panelID, err)
		default:
			audioURL = &url
			fields["audio_url"] = url
		}
	}

	if _, err := s.store.UpdatePanel(ctx, p.ID, fields); err != nil {
		return nil, err
	}

	log.Printf("✅ [Comics] Panel %s updated (audio regenerated: %v)", panelID, audioURL != nil)
	return &UpdatePanelResponse{Success: true, Message: "Panel updated successfully", AudioURL: audioURL}, nil
}

func (s *Service) regenerateAudio(ctx context.Context, userID string, p *model.ComicPanel, narration, voiceID string, speed float64) (string, error) {
	if s.voice == nil {
		return "", ErrVoiceUnavailable
	}
	if s.ledger != nil {
		ok, err := s.ledger.HasSufficientCredits(ctx, userID, s.narrationCost)
		if err != nil {
			return "", fmt.Errorf("%w: %w", panel.ErrCreditCheck, err)
		}
		if !ok {
			return "", panel.ErrInsufficientCredits
		}
	}

	audio, err := s.voice.Synthesize(ctx, narration, voiceID, voiceover.SettingsForSpeed(speed))
	if err != nil {
		return "", err
	}

	obj, err := s.objects.UploadAudio(ctx, fmt.Sprintf("%s/audio/panel_%d", comicPrefix(userID, p.ComicID), p.PanelNumber), audio)
	if err != nil {
		return "", err
	}

	if s.ledger != nil {
		if _, err := s.ledger.DeductCredits(context.WithoutCancel(ctx), userID, s.narrationCost); err != nil {
			log.Printf("❌ [Comics] Failed to deduct narration credits for %s: %v", userID, err)
		}
	}
	return obj.PublicURL, nil
}

// RegeneratePanel - 패널 이미지를 새 프롬프트로 다시 생성
// 명시적 컨텍스트가 없으면 직전 패널(1번은 표지)을 DB에서 가져옴
func (s *Service) RegeneratePanel(ctx context.Context, userID, panelID string, req RegenerateRequest) (*RegenerateResponse, error) {
	if strings.TrimSpace(req.TextPrompt) == "" {
		return nil, fmt.Errorf("%w: text_prompt", ErrMissingField)
	}

	p, err := s.authorizePanel(ctx, userID, panelID)
	if err != nil {
		return nil, err
	}

	isCover := p.PanelNumber == model.CoverPanelNumber
	panelNumber := p.PanelNumber
	genReq := panel.GenerationRequest{
		TextPrompt:  req.TextPrompt,
		IsThumbnail: isCover,
		PanelID:     &panelNumber,
	}
	if !isCover {
		genReq.PreviousPanelContext = s.resolveContext(ctx, p, req.PreviousPanelContext)
	}

	result, err := s.generator.Generate(ctx, userID, genReq)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("%s/panel_%d_regenerated_%s", comicPrefix(userID, p.ComicID), p.PanelNumber, uuid.NewString()[:8])
	obj, err := s.objects.UploadImage(ctx, path, result.PNG)
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}

	_, err = s.store.UpdatePanel(ctx, p.ID, map[string]interface{}{
		"public_url":   obj.PublicURL,
		"storage_path": obj.Path,
		"file_size":    obj.Size,
		"prompt":       req.TextPrompt,
	})
	if err != nil {
		s.removeQuietly(ctx, obj.Path)
		return nil, err
	}

	if p.StoragePath != "" && p.StoragePath != obj.Path {
		s.removeQuietly(ctx, p.StoragePath)
	}

	log.Printf("✅ [Comics] Panel %s regenerated: %s", panelID, obj.PublicURL)
	return &RegenerateResponse{Success: true, PublicURL: obj.PublicURL, Message: "Panel image regenerated successfully"}, nil
}

// resolveContext - 명시적 컨텍스트(버킷 URL이면 다운로드) 또는 DB의 직전 패널
// 가져오지 못하면 컨텍스트 없이 진행
func (s *Service) resolveContext(ctx context.Context, p *model.ComicPanel, explicit *panel.PanelContext) *panel.PanelContext {
	if explicit != nil {
		if !isHTTPURL(explicit.ImageData) {
			return explicit
		}
		if _, ok := s.objects.PathFromPublicURL(explicit.ImageData); !ok {
			log.Printf("⚠️  [Comics] Context image is not a stored panel, continuing without context")
			return nil
		}
		data, err := s.objects.Download(ctx, explicit.ImageData)
		if err != nil {
			log.Printf("⚠️  [Comics] Failed to fetch context image, continuing without context: %v", err)
			return nil
		}
		return &panel.PanelContext{Prompt: explicit.Prompt, ImageData: utils.ConvertImageToBase64(data)}
	}

	prev, err := s.store.GetPanelByNumber(ctx, p.ComicID, p.PanelNumber-1)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.Printf("⚠️  [Comics] Failed to load panel %d for context: %v", p.PanelNumber-1, err)
		}
		return nil
	}
	if prev.PublicURL == "" || strings.TrimSpace(prev.PromptText()) == "" {
		log.Printf("ℹ️  [Comics] Panel %d has no usable context, regenerating without it", prev.PanelNumber)
		return nil
	}

	data, err := s.objects.Download(ctx, prev.PublicURL)
	if err != nil {
		log.Printf("⚠️  [Comics] Failed to fetch panel %d image for context: %v", prev.PanelNumber, err)
		return nil
	}
	log.Printf("🔗 [Comics] Using panel %d as context for panel %d", prev.PanelNumber, p.PanelNumber)
	return &panel.PanelContext{Prompt: prev.PromptText(), ImageData: utils.ConvertImageToBase64(data)}
}

// UpdateVisibility - 공개/비공개 전환 (공개 시 완성도 검사)
func (s *Service) UpdateVisibility(ctx context.Context, userID, comicID string, isPublic bool) error {
	if isPublic {
		comic, err := s.store.GetComicForUser(ctx, comicID, userID)
		if err != nil {
			return notFoundAs(err, ErrComicNotFound)
		}
		if err := ValidatePublishable(comic); err != nil {
			return err
		}
	}

	if _, err := s.store.UpdateComic(ctx, comicID, userID, map[string]interface{}{"is_public": isPublic}); err != nil {
		return notFoundAs(err, ErrComicNotFound)
	}
	log.Printf("✅ [Comics] Comic %s visibility → public=%v", comicID, isPublic)
	return nil
}

// PublishError - 공개 조건 미충족
type PublishError struct {
	Reason string
}

func (e *PublishError) Error() string { return "cannot publish: " + e.Reason }

func (e *PublishError) Is(target error) bool { return target == ErrPublishIncomplete }

// ValidatePublishable - 제목, 모든 패널(표지 제외) 나레이션, 표지 존재
func ValidatePublishable(comic *model.Comic) error {
	if strings.TrimSpace(comic.Title) == "" {
		return &PublishError{Reason: "Comic title is required"}
	}
	hasCover := false
	for _, p := range comic.Panels {
		if p.PanelNumber == model.CoverPanelNumber {
			hasCover = true
			continue
		}
		if strings.TrimSpace(p.NarrationText()) == "" {
			return &PublishError{Reason: "All panels must have narrations"}
		}
	}
	if !hasCover {
		return &PublishError{Reason: "Comic thumbnail is required"}
	}
	return nil
}

// DeleteComic - 저장된 파일 삭제 후 comics 행 삭제
func (s *Service) DeleteComic(ctx context.Context, userID, comicID string) error {
	comic, err := s.store.GetComicForUser(ctx, comicID, userID)
	if err != nil {
		return notFoundAs(err, ErrComicNotFound)
	}

	var paths []string
	for _, p := range comic.Panels {
		if p.StoragePath != "" {
			paths = append(paths, p.StoragePath)
		}
		if p.AudioURL != nil {
			if path, ok := s.objects.PathFromPublicURL(*p.AudioURL); ok {
				paths = append(paths, path)
			}
		}
	}
	if comic.CompositeURL != nil {
		if path, ok := s.objects.PathFromPublicURL(*comic.CompositeURL); ok {
			paths = append(paths, path)
		}
	}

	if err := s.objects.Remove(ctx, paths); err != nil {
		log.Printf("⚠️  [Comics] Failed to remove stored files for %s: %v", comicID, err)
	}

	if err := s.store.DeleteComic(ctx, comicID, userID); err != nil {
		return notFoundAs(err, ErrComicNotFound)
	}
	return nil
}

func (s *Service) authorizePanel(ctx context.Context, userID, panelID string) (*model.ComicPanel, error) {
	p, err := s.store.GetPanel(ctx, panelID)
	if err != nil {
		return nil, notFoundAs(err, ErrPanelNotFound)
	}
	if _, err := s.store.GetComicForUser(ctx, p.ComicID, userID); err != nil {
		return nil, notFoundAs(err, ErrForbidden)
	}
	return p, nil
}

func (s *Service) removeQuietly(ctx context.Context, path string) {
	if err := s.objects.Remove(context.WithoutCancel(ctx), []string{path}); err != nil {
		log.Printf("⚠️  [Comics] Failed to remove %s: %v", path, err)
	}
}

func preparePanels(inputs []PanelInput) ([]preparedPanel, error) {
	prepared := make([]preparedPanel, 0, len(inputs))
	seen := make(map[int]bool, len(inputs))

	for _, in := range inputs {
		if in.ID <= 0 {
			return nil, fmt.Errorf("%w: panel id must be positive, got %d", ErrInvalidPanelData, in.ID)
		}
		if seen[in.ID] {
			return nil, fmt.Errorf("%w: duplicate panel id %d", ErrInvalidPanelData, in.ID)
		}
		seen[in.ID] = true

		if in.image() == "" {
			log.Printf("⚠️  [Comics] Panel %d has no image data, skipping", in.ID)
			continue
		}
		img, err := decodeImageData(in.image())
		if err != nil {
			return nil, fmt.Errorf("%w: panel %d: %v", ErrInvalidPanelData, in.ID, err)
		}

		p := preparedPanel{
			number:    in.ID,
			prompt:    in.Prompt,
			narration: in.Narration,
			isZoomed:  in.IsZoomed,
			image:     img,
		}
		if p.prompt == "" {
			p.prompt = fmt.Sprintf("Panel %d", in.ID)
		}
		if in.AudioData != "" {
			if p.audio, err = utils.DecodeBase64Data(in.AudioData); err != nil {
				return nil, fmt.Errorf("%w: panel %d audio: %v", ErrInvalidPanelData, in.ID, err)
			}
		}
		prepared = append(prepared, p)
	}

	if len(prepared) == 0 {
		return nil, fmt.Errorf("%w: no panel carries image data", ErrInvalidPanelData)
	}
	sort.Slice(prepared, func(i, j int) bool { return prepared[i].number < prepared[j].number })
	return prepared, nil
}

func decodeImageData(encoded string) ([]byte, error) {
	data, err := utils.DecodeBase64Data(encoded)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateImage(data); err != nil {
		return nil, err
	}
	return data, nil
}

func panelPrompts(prepared []preparedPanel) []string {
	prompts := make([]string, 0, len(prepared))
	for _, p := range prepared {
		prompts = append(prompts, p.prompt)
	}
	return prompts
}

func uploadedPaths(uploads []uploadedPanel, extra ...*storage.StoredObject) []string {
	var paths []string
	for _, u := range uploads {
		if u.image != nil {
			paths = append(paths, u.image.Path)
		}
		if u.audio != nil {
			paths = append(paths, u.audio.Path)
		}
	}
	for _, obj := range extra {
		if obj != nil {
			paths = append(paths, obj.Path)
		}
	}
	return paths
}

func sortPanels(comics []model.Comic) {
	for i := range comics {
		panels := comics[i].Panels
		sort.Slice(panels, func(a, b int) bool { return panels[a].PanelNumber < panels[b].PanelNumber })
	}
}

func comicPrefix(userID, comicID string) string {
	return fmt.Sprintf("users/%s/comics/%s", userID, comicID)
}

func notFoundAs(err, target error) error {
	if errors.Is(err, database.ErrNotFound) {
		return target
	}
	return err
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
