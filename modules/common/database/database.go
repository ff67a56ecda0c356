package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"pixelpanel-server/modules/common/model"
)

var ErrNotFound = errors.New("record not found")

const (
	comicsTable   = "comics"
	panelsTable   = "comic_panels"
	profilesTable = "user_profiles"

	comicColumns         = "id, title, user_id, is_public, composite_url, created_at, updated_at"
	comicWithPanels      = comicColumns + ", comic_panels(*)"
	returnRepresentation = "representation"
)

type Client struct {
	supabase *supabase.Client
}

// NewClient - Database 클라이언트 생성
func NewClient(supabaseURL, serviceKey string) (*Client, error) {
	supabaseClient, err := supabase.NewClient(supabaseURL, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}
	return &Client{supabase: supabaseClient}, nil
}

// Supabase - RPC 호출용 원본 클라이언트
func (c *Client) Supabase() *supabase.Client {
	return c.supabase
}

// CreateComic - comics 행 생성
func (c *Client) CreateComic(ctx context.Context, userID, title string, isPublic bool) (*model.Comic, error) {
	data, _, err := c.supabase.From(comicsTable).
		Insert(map[string]interface{}{
			"title":     title,
			"user_id":   userID,
			"is_public": isPublic,
		}, false, "", returnRepresentation, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to create comic: %w", err)
	}

	comic, err := first[model.Comic](data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created comic: %w", err)
	}
	log.Printf("✅ Comic created: %s (%s)", comic.ID, title)
	return comic, nil
}

// UpdateComic - comics 행 갱신 (user_id 일치 조건)
func (c *Client) UpdateComic(ctx context.Context, comicID, userID string, fields map[string]interface{}) (*model.Comic, error) {
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	data, _, err := c.supabase.From(comicsTable).
		Update(fields, returnRepresentation, "").
		Eq("id", comicID).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to update comic: %w", err)
	}
	return first[model.Comic](data)
}

// GetComicForUser - 사용자 소유 만화 + 패널 조회
func (c *Client) GetComicForUser(ctx context.Context, comicID, userID string) (*model.Comic, error) {
	data, _, err := c.supabase.From(comicsTable).
		Select(comicWithPanels, "", false).
		Eq("id", comicID).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query comic: %w", err)
	}
	return first[model.Comic](data)
}

// ListUserComics - 사용자 만화 목록 (최신순)
func (c *Client) ListUserComics(ctx context.Context, userID string) ([]model.Comic, error) {
	data, _, err := c.supabase.From(comicsTable).
		Select(comicWithPanels, "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list user comics: %w", err)
	}
	return list[model.Comic](data)
}

// ListPublicComics - 공개 만화 목록 (최신순)
func (c *Client) ListPublicComics(ctx context.Context, limit int) ([]model.Comic, error) {
	data, _, err := c.supabase.From(comicsTable).
		Select(comicWithPanels, "", false).
		Eq("is_public", "true").
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list public comics: %w", err)
	}
	return list[model.Comic](data)
}

// DeleteComic - 만화 삭제 (패널은 FK cascade)
func (c *Client) DeleteComic(ctx context.Context, comicID, userID string) error {
	data, _, err := c.supabase.From(comicsTable).
		Delete(returnRepresentation, "").
		Eq("id", comicID).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete comic: %w", err)
	}
	if _, err := first[model.Comic](data); err != nil {
		return err
	}
	log.Printf("🗑️  Comic deleted: %s", comicID)
	return nil
}

// InsertPanels - comic_panels 여러 행 삽입
func (c *Client) InsertPanels(ctx context.Context, panels []map[string]interface{}) ([]model.ComicPanel, error) {
	if len(panels) == 0 {
		return nil, nil
	}
	data, _, err := c.supabase.From(panelsTable).
		Insert(panels, false, "", returnRepresentation, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert panels: %w", err)
	}
	return list[model.ComicPanel](data)
}

// GetPanel - 패널 단건 조회
func (c *Client) GetPanel(ctx context.Context, panelID string) (*model.ComicPanel, error) {
	data, _, err := c.supabase.From(panelsTable).
		Select("*", "", false).
		Eq("id", panelID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query panel: %w", err)
	}
	return first[model.ComicPanel](data)
}

// GetPanelByNumber - 만화의 n번째 패널 조회
func (c *Client) GetPanelByNumber(ctx context.Context, comicID string, panelNumber int) (*model.ComicPanel, error) {
	data, _, err := c.supabase.From(panelsTable).
		Select("*", "", false).
		Eq("comic_id", comicID).
		Eq("panel_number", fmt.Sprintf("%d", panelNumber)).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query panel %d: %w", panelNumber, err)
	}
	return first[model.ComicPanel](data)
}

// ListPanels - 만화의 패널 목록 (번호순)
func (c *Client) ListPanels(ctx context.Context, comicID string) ([]model.ComicPanel, error) {
	data, _, err := c.supabase.From(panelsTable).
		Select("*", "", false).
		Eq("comic_id", comicID).
		Order("panel_number", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list panels: %w", err)
	}
	return list[model.ComicPanel](data)
}

// UpdatePanel - 패널 갱신
func (c *Client) UpdatePanel(ctx context.Context, panelID string, fields map[string]interface{}) (*model.ComicPanel, error) {
	data, _, err := c.supabase.From(panelsTable).
		Update(fields, returnRepresentation, "").
		Eq("id", panelID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to update panel: %w", err)
	}
	return first[model.ComicPanel](data)
}

// GetProfile - user_profiles 조회
func (c *Client) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	data, _, err := c.supabase.From(profilesTable).
		Select("*", "", false).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return first[model.UserProfile](data)
}

// CreateProfile - 신규 사용자 프로필 (무료 플랜 기본 크레딧)
func (c *Client) CreateProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	data, _, err := c.supabase.From(profilesTable).
		Insert(map[string]interface{}{
			"user_id":   userID,
			"credits":   model.FreePlanCredits,
			"plan_type": model.PlanFree,
			"status":    model.SubscriptionActive,
		}, false, "", returnRepresentation, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	log.Printf("👤 Profile created for user %s", userID)
	return first[model.UserProfile](data)
}

// FindProfileByCustomer - Stripe customer id로 프로필 조회
func (c *Client) FindProfileByCustomer(ctx context.Context, customerID string) (*model.UserProfile, error) {
	data, _, err := c.supabase.From(profilesTable).
		Select("*", "", false).
		Eq("stripe_customer_id", customerID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query profile by customer: %w", err)
	}
	return first[model.UserProfile](data)
}

// UpdateProfile - user_profiles 갱신
func (c *Client) UpdateProfile(ctx context.Context, userID string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	_, _, err := c.supabase.From(profilesTable).
		Update(fields, "", "").
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

func list[T any](data []byte) ([]T, error) {
	var rows []T
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return rows, nil
}

func first[T any](data []byte) (*T, error) {
	rows, err := list[T](data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}
