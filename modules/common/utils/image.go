package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // GIF 디코더 등록
	_ "image/jpeg" // JPEG 디코더 등록
	"image/png"
	"log"
	"net/http"
	"strings"

	_ "github.com/kolesa-team/go-webp/decoder" // WebP 디코더 등록
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"golang.org/x/image/draw"
)

// ConvertImageToBase64 - 이미지 바이너리를 base64로 변환
func ConvertImageToBase64(imageData []byte) string {
	return base64.StdEncoding.EncodeToString(imageData)
}

// DecodeBase64Data - base64 문자열 디코딩 (data URL 접두사 허용)
// "data:image/png;base64,AAAA" 와 "AAAA" 둘 다 받음
func DecodeBase64Data(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") {
		comma := strings.Index(encoded, ",")
		if comma < 0 {
			return nil, fmt.Errorf("malformed data URL")
		}
		encoded = encoded[comma+1:]
	}
	if encoded == "" {
		return nil, fmt.Errorf("empty base64 data")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// 패딩 없는 base64도 허용
		if raw, rawErr := base64.RawStdEncoding.DecodeString(encoded); rawErr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("invalid base64 data: %w", err)
	}
	return data, nil
}

// DecodeImage - 바이너리를 image.Image로 디코딩 (PNG, JPEG, GIF, WebP 자동 감지)
func DecodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// MaxImagePixels - 디코딩 허용 최대 픽셀 수 (헤더 기준)
const MaxImagePixels = 64 << 20

// ValidateImage - 헤더로 크기 확인 후 전체 래스터 디코딩
// 잘린 파일처럼 헤더만 정상인 데이터도 거부
func ValidateImage(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("unsupported image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxImagePixels {
		return fmt.Errorf("image dimensions %dx%d out of range", cfg.Width, cfg.Height)
	}
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	return nil
}

// DetectImageMIMEType - 매직 바이트로 MIME 타입 판별
func DetectImageMIMEType(data []byte) string {
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return "image/png"
	}
	return mimeType
}

// EncodePNG - image.Image를 PNG 바이너리로 인코딩
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// ConvertToWebP - 이미지 바이너리(PNG/JPEG/WebP)를 WebP로 변환
func ConvertToWebP(data []byte, quality float32) ([]byte, error) {
	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebP encoder options: %w", err)
	}

	var webpBuffer bytes.Buffer
	if err := webp.Encode(&webpBuffer, img, options); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}

	webpData := webpBuffer.Bytes()
	log.Printf("🔄 Image converted to WebP: %d bytes → %d bytes", len(data), len(webpData))
	return webpData, nil
}

// ResizeExact - 정확히 width x height로 리사이즈 (비율 무시, Catmull-Rom 보간)
func ResizeExact(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return src
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// BuildComicSheet - 패널들을 columns 열 그리드로 배치한 한 장짜리 이미지 생성
// 모든 패널은 첫 패널 크기로 맞추고 빈 칸은 흰 배경
func BuildComicSheet(panels [][]byte, columns int) ([]byte, error) {
	if len(panels) == 0 {
		return nil, fmt.Errorf("no images to merge")
	}
	if columns <= 0 {
		columns = 2
	}

	decoded := make([]image.Image, 0, len(panels))
	for i, data := range panels {
		img, _, err := DecodeImage(data)
		if err != nil {
			log.Printf("⚠️  Failed to decode panel %d for comic sheet: %v", i, err)
			continue
		}
		decoded = append(decoded, img)
	}
	if len(decoded) == 0 {
		return nil, fmt.Errorf("no valid images to merge")
	}

	cellWidth := decoded[0].Bounds().Dx()
	cellHeight := decoded[0].Bounds().Dy()
	rows := (len(decoded) + columns - 1) / columns

	sheet := image.NewRGBA(image.Rect(0, 0, cellWidth*columns, cellHeight*rows))
	draw.Draw(sheet, sheet.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	for idx, img := range decoded {
		img = ResizeExact(img, cellWidth, cellHeight)
		x := (idx % columns) * cellWidth
		y := (idx / columns) * cellHeight
		draw.Draw(sheet, image.Rect(x, y, x+cellWidth, y+cellHeight), img, img.Bounds().Min, draw.Src)
	}

	log.Printf("✅ Comic sheet built: %d panels, %dx%d grid (%dx%d total)",
		len(decoded), rows, columns, sheet.Bounds().Dx(), sheet.Bounds().Dy())

	return EncodePNG(sheet)
}
