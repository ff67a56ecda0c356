package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"pixelpanel-server/modules/common/respond"
)

var (
	ErrUnauthorized = errors.New("invalid authentication token")
	// ErrAuthUnavailable - Supabase Auth에 닿지 못함 (토큰 자체는 판정 불가)
	ErrAuthUnavailable = errors.New("authentication service unavailable")
)

// User - 검증된 Supabase 사용자
type User struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
}

// Middleware - 인증이 필요한 핸들러 래퍼
type Middleware func(http.HandlerFunc) http.HandlerFunc

type contextKey struct{}

// Verifier - Supabase /auth/v1/user로 Bearer 토큰 검증
type Verifier struct {
	supabaseURL string
	apiKey      string
	httpClient  *http.Client
	cache       *cache.Cache
}

func NewVerifier(supabaseURL, apiKey string) *Verifier {
	return &Verifier{
		supabaseURL: strings.TrimRight(supabaseURL, "/"),
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		cache:       cache.New(60*time.Second, 5*time.Minute),
	}
}

// Verify - 토큰 검증 후 사용자 반환 (60초 캐시)
func (v *Verifier) Verify(ctx context.Context, token string) (*User, error) {
	if strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("%w: malformed token", ErrUnauthorized)
	}
	if cached, ok := v.cache.Get(token); ok {
		return cached.(*User), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.supabaseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", v.apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrAuthUnavailable, resp.StatusCode)
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: failed to parse auth response: %v", ErrAuthUnavailable, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: no user id", ErrUnauthorized)
	}

	v.cache.SetDefault(token, &user)
	return &user, nil
}

// Require - Authorization 헤더 검증 미들웨어
func (v *Verifier) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			respond.Error(w, http.StatusUnauthorized, "Missing or invalid authorization header")
			return
		}

		user, err := v.Verify(r.Context(), strings.TrimSpace(token))
		if errors.Is(err, ErrAuthUnavailable) {
			log.Printf("❌ [Auth] Supabase Auth unreachable: %v", err)
			respond.Error(w, http.StatusServiceUnavailable, "Authentication service unavailable")
			return
		}
		if err != nil {
			log.Printf("⚠️  [Auth] Token rejected: %v", err)
			respond.Error(w, http.StatusUnauthorized, "Invalid authentication token")
			return
		}

		next(w, r.WithContext(WithUser(r.Context(), user)))
	}
}

// HandleMe - GET /api/auth/me
func HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	respond.JSON(w, http.StatusOK, user)
}

// WithUser - 컨텍스트에 사용자 저장
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext - 컨텍스트에서 사용자 조회
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(contextKey{}).(*User)
	return user, ok && user != nil
}

// Static - 테스트용 고정 사용자 미들웨어
func Static(user *User) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			next(w, r.WithContext(WithUser(r.Context(), user)))
		}
	}
}
