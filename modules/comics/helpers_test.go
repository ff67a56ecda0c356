package comics

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pixelpanel-server/modules/common/database"
	"pixelpanel-server/modules/common/model"
	"pixelpanel-server/modules/common/storage"
	"pixelpanel-server/modules/panel"
	"pixelpanel-server/modules/voiceover"
)

const testBaseURL = "https://proj.supabase.co/storage/v1/object/public/PixelPanel/"

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pngB64(t *testing.T) string {
	return base64.StdEncoding.EncodeToString(pngBytes(t, 8, 6, color.RGBA{200, 40, 40, 255}))
}

func strPtr(s string) *string { return &s }

// memStore - comics/comic_panels 메모리 구현
type memStore struct {
	mu        sync.Mutex
	comics    map[string]*model.Comic
	panels    map[string]*model.ComicPanel
	nextComic int
	nextPanel int
	insertErr error
	updates   []map[string]interface{}
}

func newMemStore() *memStore {
	return &memStore{comics: map[string]*model.Comic{}, panels: map[string]*model.ComicPanel{}}
}

func (s *memStore) addComic(id, userID, title string, panels ...model.ComicPanel) {
	s.comics[id] = &model.Comic{ID: id, UserID: userID, Title: title}
	for i := range panels {
		p := panels[i]
		p.ComicID = id
		s.panels[p.ID] = &p
	}
}

func (s *memStore) withPanels(c model.Comic) *model.Comic {
	for _, p := range s.panels {
		if p.ComicID == c.ID {
			c.Panels = append(c.Panels, *p)
		}
	}
	sort.Slice(c.Panels, func(i, j int) bool { return c.Panels[i].PanelNumber < c.Panels[j].PanelNumber })
	return &c
}

func (s *memStore) CreateComic(ctx context.Context, userID, title string, isPublic bool) (*model.Comic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextComic++
	c := &model.Comic{ID: fmt.Sprintf("comic-%d", s.nextComic), UserID: userID, Title: title, IsPublic: isPublic}
	s.comics[c.ID] = c
	return c, nil
}

func (s *memStore) UpdateComic(ctx context.Context, comicID, userID string, fields map[string]interface{}) (*model.Comic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comics[comicID]
	if !ok || c.UserID != userID {
		return nil, database.ErrNotFound
	}
	if v, ok := fields["is_public"].(bool); ok {
		c.IsPublic = v
	}
	if v, ok := fields["composite_url"].(string); ok {
		c.CompositeURL = &v
	}
	return c, nil
}

func (s *memStore) GetComicForUser(ctx context.Context, comicID, userID string) (*model.Comic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comics[comicID]
	if !ok || c.UserID != userID {
		return nil, database.ErrNotFound
	}
	return s.withPanels(*c), nil
}

func (s *memStore) ListUserComics(ctx context.Context, userID string) ([]model.Comic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Comic
	for _, c := range s.comics {
		if c.UserID == userID {
			out = append(out, *s.withPanels(*c))
		}
	}
	return out, nil
}

func (s *memStore) ListPublicComics(ctx context.Context, limit int) ([]model.Comic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Comic
	for _, c := range s.comics {
		if c.IsPublic && len(out) < limit {
			out = append(out, *s.withPanels(*c))
		}
	}
	return out, nil
}

func (s *memStore) DeleteComic(ctx context.Context, comicID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comics[comicID]
	if !ok || c.UserID != userID {
		return database.ErrNotFound
	}
	delete(s.comics, comicID)
	for id, p := range s.panels {
		if p.ComicID == comicID {
			delete(s.panels, id)
		}
	}
	return nil
}

func (s *memStore) InsertPanels(ctx context.Context, rows []map[string]interface{}) ([]model.ComicPanel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	var out []model.ComicPanel
	for _, row := range rows {
		s.nextPanel++
		p := model.ComicPanel{
			ID:          fmt.Sprintf("panel-%d", s.nextPanel),
			ComicID:     row["comic_id"].(string),
			PanelNumber: row["panel_number"].(int),
			StoragePath: row["storage_path"].(string),
			PublicURL:   row["public_url"].(string),
			FileSize:    row["file_size"].(int64),
			IsZoomed:    row["is_zoomed"].(bool),
		}
		if v, ok := row["prompt"].(string); ok {
			p.Prompt = &v
		}
		if v, ok := row["narration"].(*string); ok {
			p.Narration = v
		}
		if v, ok := row["audio_url"].(string); ok {
			p.AudioURL = &v
		}
		s.panels[p.ID] = &p
		out = append(out, p)
	}
	return out, nil
}

func (s *memStore) GetPanel(ctx context.Context, panelID string) (*model.ComicPanel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panels[panelID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetPanelByNumber(ctx context.Context, comicID string, panelNumber int) (*model.ComicPanel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.panels {
		if p.ComicID == comicID && p.PanelNumber == panelNumber {
			cp := *p
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *memStore) UpdatePanel(ctx context.Context, panelID string, fields map[string]interface{}) (*model.ComicPanel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panels[panelID]
	if !ok {
		return nil, database.ErrNotFound
	}
	s.updates = append(s.updates, fields)
	for k, v := range fields {
		switch k {
		case "narration":
			n := v.(string)
			p.Narration = &n
		case "prompt":
			n := v.(string)
			p.Prompt = &n
		case "audio_url":
			n := v.(string)
			p.AudioURL = &n
		case "public_url":
			p.PublicURL = v.(string)
		case "storage_path":
			p.StoragePath = v.(string)
		}
	}
	cp := *p
	return &cp, nil
}

// memObjects - 오브젝트 저장소 메모리 구현
type memObjects struct {
	mu        sync.Mutex
	uploads   map[string][]byte
	removed   []string
	downloads map[string][]byte
	fetched   []string
	failOn    string
}

func newMemObjects() *memObjects {
	return &memObjects{uploads: map[string][]byte{}, downloads: map[string][]byte{}}
}

func (o *memObjects) put(path string, data []byte) (*storage.StoredObject, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failOn != "" && strings.Contains(path, o.failOn) {
		return nil, errors.New("storage unavailable")
	}
	o.uploads[path] = data
	return &storage.StoredObject{Path: path, PublicURL: testBaseURL + path, Size: int64(len(data))}, nil
}

func (o *memObjects) UploadImage(ctx context.Context, pathWithoutExt string, imageData []byte) (*storage.StoredObject, error) {
	return o.put(pathWithoutExt+".webp", imageData)
}

func (o *memObjects) UploadAudio(ctx context.Context, pathWithoutExt string, audio []byte) (*storage.StoredObject, error) {
	return o.put(pathWithoutExt+".mp3", audio)
}

func (o *memObjects) Remove(ctx context.Context, paths []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removed = append(o.removed, paths...)
	return nil
}

func (o *memObjects) Download(ctx context.Context, url string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetched = append(o.fetched, url)
	data, ok := o.downloads[url]
	if !ok {
		return nil, errors.New("404")
	}
	return data, nil
}

func (o *memObjects) PathFromPublicURL(publicURL string) (string, bool) {
	path, ok := strings.CutPrefix(publicURL, testBaseURL)
	return path, ok && path != ""
}

func (o *memObjects) paths() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for p := range o.uploads {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

type stubGenerator struct {
	calls  int
	gotReq panel.GenerationRequest
	result *panel.GeneratedImage
	err    error
}

func (g *stubGenerator) Generate(ctx context.Context, userID string, req panel.GenerationRequest) (*panel.GeneratedImage, error) {
	g.calls++
	g.gotReq = req
	return g.result, g.err
}

type stubVoice struct {
	calls    int
	settings voiceover.VoiceSettings
	err      error
}

func (v *stubVoice) Synthesize(ctx context.Context, text, voiceID string, settings voiceover.VoiceSettings) ([]byte, error) {
	v.calls++
	v.settings = settings
	if v.err != nil {
		return nil, v.err
	}
	return []byte("mp3:" + text), nil
}

type stubLedger struct {
	balance  int
	deducted []int
}

func (l *stubLedger) HasSufficientCredits(ctx context.Context, userID string, amount int) (bool, error) {
	return l.balance >= amount, nil
}

func (l *stubLedger) DeductCredits(ctx context.Context, userID string, amount int) (int, error) {
	l.deducted = append(l.deducted, amount)
	l.balance -= amount
	return l.balance, nil
}

type fixture struct {
	store   *memStore
	objects *memObjects
	gen     *stubGenerator
	voice   *stubVoice
	ledger  *stubLedger
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   newMemStore(),
		objects: newMemObjects(),
		gen:     &stubGenerator{result: &panel.GeneratedImage{PNG: pngBytes(t, 4, 3, color.White)}},
		voice:   &stubVoice{},
		ledger:  &stubLedger{balance: 100},
	}
	f.service = NewService(f.store, f.objects, f.gen, Options{
		Voice:         f.voice,
		Ledger:        f.ledger,
		NarrationCost: 1,
	})
	return f
}
