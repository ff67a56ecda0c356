package panel

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pixelpanel-server/modules/common/gemini"
)

// gradient - 모든 행/열의 분산이 큰 이미지 (여백 없음)
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / max(w-1, 1)),
				G: uint8(y * 255 / max(h-1, 1)),
				B: uint8((x * y) % 256),
				A: 255,
			})
		}
	}
	return img
}

// framed - inner 이미지를 border 두께의 단색 테두리로 감쌈
func framed(inner image.Image, border int, c color.Color) *image.RGBA {
	ib := inner.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, ib.Dx()+2*border, ib.Dy()+2*border))
	for y := 0; y < img.Bounds().Dy(); y++ {
		for x := 0; x < img.Bounds().Dx(); x++ {
			img.Set(x, y, c)
		}
	}
	for y := 0; y < ib.Dy(); y++ {
		for x := 0; x < ib.Dx(); x++ {
			img.Set(x+border, y+border, inner.At(ib.Min.X+x, ib.Min.Y+y))
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func b64PNG(t *testing.T, img image.Image) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString(encodePNG(t, img))
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

// samePixels - 크기와 모든 픽셀이 같은지
func samePixels(a, b image.Image) bool {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return false
	}
	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			r1, g1, b1, a1 := a.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			r2, g2, b2, a2 := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
				return false
			}
		}
	}
	return true
}

type synthCall struct {
	system string
	prompt string
	images []gemini.Image
	ratio  string
}

// fakeSynth - 호출 기록용 ImageSynthesizer
type fakeSynth struct {
	mu     sync.Mutex
	calls  []synthCall
	output []byte
	err    error
	block  bool // ctx가 끝날 때까지 대기
}

func (f *fakeSynth) GenerateImage(ctx context.Context, systemPrompt, userPrompt string, images []gemini.Image, aspectRatio string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, synthCall{system: systemPrompt, prompt: userPrompt, images: images, ratio: aspectRatio})
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.output, f.err
}

func (f *fakeSynth) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSynth) lastCall() synthCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// fakeLedger - 메모리 크레딧 장부
type fakeLedger struct {
	mu        sync.Mutex
	balance   int
	checkErr  error
	deductErr error
	deducted  []int
}

func (l *fakeLedger) HasSufficientCredits(ctx context.Context, userID string, amount int) (bool, error) {
	if l.checkErr != nil {
		return false, l.checkErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance >= amount, nil
}

func (l *fakeLedger) DeductCredits(ctx context.Context, userID string, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deducted = append(l.deducted, amount)
	if l.deductErr != nil {
		return 0, l.deductErr
	}
	l.balance -= amount
	return l.balance, nil
}

// memoryStore - 메모리 ContextStore
type memoryStore struct {
	mu      sync.Mutex
	values  map[string]PanelContext
	loadErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]PanelContext{}}
}

func (s *memoryStore) Load(ctx context.Context, userID, sessionID string) (*PanelContext, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[sessionKey(userID, sessionID)]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *memoryStore) Save(ctx context.Context, userID, sessionID string, panelCtx PanelContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[sessionKey(userID, sessionID)] = panelCtx
	return nil
}

var errNetwork = errors.New("dial tcp 142.250.0.1:443: connect: connection refused")
