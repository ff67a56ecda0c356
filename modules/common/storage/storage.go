package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"pixelpanel-server/modules/common/utils"
)

const (
	webpQuality      = 90
	maxDownloadBytes = 25 << 20
)

// ErrForeignURL - 이 버킷의 공개 URL이 아님
var ErrForeignURL = errors.New("url is outside the storage bucket")

// Client - Supabase Storage REST 클라이언트
type Client struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

// NewClient - Storage 클라이언트 생성
func NewClient(supabaseURL, serviceKey, bucket string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(supabaseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// StoredObject - 업로드 결과
type StoredObject struct {
	Path      string
	PublicURL string
	Size      int64
}

// Upload - 오브젝트 업로드
func (c *Client) Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) (*StoredObject, error) {
	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", contentType)
	if upsert {
		req.Header.Set("x-upsert", "true")
	}

	log.Printf("📤 Uploading to storage: %s (%s, %d bytes)", path, contentType, len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	log.Printf("✅ Uploaded: %s", path)
	return &StoredObject{Path: path, PublicURL: c.PublicURL(path), Size: int64(len(data))}, nil
}

// UploadImage - 이미지를 WebP(quality 90)로 변환 후 업로드
// pathWithoutExt에 .webp 확장자가 붙음
func (c *Client) UploadImage(ctx context.Context, pathWithoutExt string, imageData []byte) (*StoredObject, error) {
	webpData, err := utils.ConvertToWebP(imageData, webpQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image to WebP: %w", err)
	}
	return c.Upload(ctx, pathWithoutExt+".webp", webpData, "image/webp", true)
}

// UploadAudio - mp3 업로드
func (c *Client) UploadAudio(ctx context.Context, pathWithoutExt string, audio []byte) (*StoredObject, error) {
	return c.Upload(ctx, pathWithoutExt+".mp3", audio, "audio/mpeg", true)
}

// Remove - 오브젝트 여러 개 삭제
func (c *Client) Remove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	body, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return fmt.Errorf("failed to encode remove request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/storage/v1/object/%s", c.baseURL, c.bucket), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create remove request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to remove objects: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("remove failed with status %d: %s", resp.StatusCode, string(msg))
	}

	log.Printf("🗑️  Removed %d objects from storage", len(paths))
	return nil
}

// PublicURL - 공개 버킷 URL
func (c *Client) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, c.bucket, path)
}

// PathFromPublicURL - 이 버킷의 공개 URL이면 오브젝트 경로 반환
func (c *Client) PathFromPublicURL(publicURL string) (string, bool) {
	path, ok := strings.CutPrefix(publicURL, c.PublicURL(""))
	if !ok || path == "" {
		return "", false
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.Contains(path, "..") {
		return "", false
	}
	return path, true
}

// Download - 이 버킷의 공개 URL에서 바이너리 다운로드 (이전 패널 이미지 등)
// 다른 호스트나 버킷 URL은 요청 없이 ErrForeignURL
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	if _, ok := c.PathFromPublicURL(url); !ok {
		return nil, fmt.Errorf("%w: %s", ErrForeignURL, url)
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	log.Printf("📥 Downloading: %s", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read download: %w", err)
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("download exceeds %d bytes", maxDownloadBytes)
	}
	return data, nil
}
