package ratelimit

import (
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"pixelpanel-server/modules/common/respond"
)

// Limiter - 클라이언트 IP별 토큰 버킷 (분당 N회)
type Limiter struct {
	name       string
	perMinute  int
	trustProxy bool
	buckets    *cache.Cache
	mu         sync.Mutex
}

// PerMinute - 분당 n회 허용하는 Limiter 생성
func PerMinute(name string, n int) *Limiter {
	return &Limiter{
		name:      name,
		perMinute: n,
		buckets:   cache.New(10*time.Minute, 10*time.Minute),
	}
}

// TrustProxy - 리버스 프록시 뒤에서만 X-Forwarded-For 사용
func (l *Limiter) TrustProxy(trust bool) *Limiter {
	l.trustProxy = trust
	return l
}

// Allow - key의 요청 허용 여부
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets.Get(key); ok {
		l.buckets.SetDefault(key, b)
		return b.(*rate.Limiter)
	}
	b := rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
	l.buckets.SetDefault(key, b)
	return b
}

// Wrap - 한도 초과 시 429 응답 (nil Limiter는 통과)
func (l *Limiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	if l == nil || l.perMinute <= 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := ClientIP(r, l.trustProxy)
		if !l.Allow(key) {
			log.Printf("⚠️  [RateLimit] %s limit hit by %s on %s", l.name, key, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			respond.Error(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		next(w, r)
	}
}

// ClientIP - 요청 클라이언트 IP
// trustProxy면 프록시가 덧붙인 X-Forwarded-For 마지막 값, 아니면 RemoteAddr
// 클라이언트가 보낸 앞쪽 값은 위조 가능하므로 사용하지 않음
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		forwarded := r.Header.Values("X-Forwarded-For")
		if n := len(forwarded); n > 0 {
			last := forwarded[n-1]
			if i := strings.LastIndexByte(last, ','); i >= 0 {
				last = last[i+1:]
			}
			if ip := net.ParseIP(strings.TrimSpace(last)); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Set - 라우트 종류별 Limiter 묶음
type Set struct {
	Generate *Limiter // 이미지 생성
	Write    *Limiter // 저장/수정
	Read     *Limiter // 목록 조회
	Webhook  *Limiter
}

// DefaultSet - 생성 10/분, 쓰기 30/분, 읽기 50/분, 웹훅 100/분
func DefaultSet(trustProxy bool) *Set {
	return &Set{
		Generate: PerMinute("generate", 10).TrustProxy(trustProxy),
		Write:    PerMinute("write", 30).TrustProxy(trustProxy),
		Read:     PerMinute("read", 50).TrustProxy(trustProxy),
		Webhook:  PerMinute("webhook", 100).TrustProxy(trustProxy),
	}
}
