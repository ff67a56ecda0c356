package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/auth/credentials"
	"google.golang.org/genai"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// VertexOptions - Vertex AI 백엔드 설정
type VertexOptions struct {
	Project         string
	Location        string
	CredentialsJSON string // 배포 환경용
	CredentialsPath string // 로컬 테스트용
}

// NewVertexClient - Vertex AI 백엔드 Genai 클라이언트
// 자격증명 우선순위: CredentialsJSON → CredentialsPath → Application Default Credentials
func NewVertexClient(ctx context.Context, opts VertexOptions, imageModel, textModel string) (*Client, error) {
	cfg := &genai.ClientConfig{
		Project:  opts.Project,
		Location: opts.Location,
		Backend:  genai.BackendVertexAI,
	}

	credsJSON, err := loadCredentialsJSON(opts.CredentialsJSON, opts.CredentialsPath)
	if err != nil {
		return nil, err
	}
	if credsJSON != nil {
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			Scopes:          []string{cloudPlatformScope},
			CredentialsJSON: credsJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load Vertex AI credentials: %w", err)
		}
		cfg.Credentials = creds
	} else {
		log.Println("⚠️  [VertexAI] No explicit credentials found, using Application Default Credentials")
	}

	genaiClient, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	log.Printf("✅ [VertexAI] Client initialized for project=%s, location=%s", opts.Project, opts.Location)
	return &Client{genai: genaiClient, imageModel: imageModel, textModel: textModel}, nil
}

// loadCredentialsJSON - 명시적 자격증명이 없으면 (nil, nil)
func loadCredentialsJSON(inline, path string) ([]byte, error) {
	if inline != "" {
		log.Println("✅ [VertexAI] Using VERTEXAI_CREDENTIALS_JSON from environment")
		return validCredentials([]byte(inline))
	}
	if path == "" {
		return nil, nil
	}

	log.Printf("✅ [VertexAI] Using credentials from file: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	return validCredentials(data)
}

func validCredentials(data []byte) ([]byte, error) {
	var creds map[string]interface{}
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("invalid JSON credentials: %w", err)
	}
	return data, nil
}
