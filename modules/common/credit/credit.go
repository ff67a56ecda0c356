package credit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
)

// RPCCaller - Supabase RPC 호출 (supabase.Client가 만족)
type RPCCaller interface {
	Rpc(name, count string, rpcBody interface{}) string
}

// Ledger - 사용자 크레딧 장부 (차감/충전 계산은 DB 함수가 원자적으로 처리)
type Ledger struct {
	rpc RPCCaller
}

// NewLedger - Credit 장부 생성
func NewLedger(rpc RPCCaller) *Ledger {
	return &Ledger{rpc: rpc}
}

// GetCredits - 현재 잔액 조회
func (l *Ledger) GetCredits(ctx context.Context, userID string) (int, error) {
	raw := l.rpc.Rpc("get_user_credits", "", map[string]interface{}{
		"user_uuid": userID,
	})
	credits, err := parseInt(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch user credits: %w", err)
	}
	return credits, nil
}

// HasSufficientCredits - amount 이상 보유 여부
func (l *Ledger) HasSufficientCredits(ctx context.Context, userID string, amount int) (bool, error) {
	raw := l.rpc.Rpc("has_sufficient_credits", "", map[string]interface{}{
		"user_uuid":        userID,
		"required_credits": amount,
	})
	ok, err := parseBool(raw)
	if err != nil {
		return false, fmt.Errorf("failed to check user credits: %w", err)
	}
	return ok, nil
}

// DeductCredits - 크레딧 차감 후 새 잔액 반환
func (l *Ledger) DeductCredits(ctx context.Context, userID string, amount int) (int, error) {
	log.Printf("💰 Deducting credits: User=%s, Amount=%d", userID, amount)

	raw := l.rpc.Rpc("deduct_user_credits", "", map[string]interface{}{
		"user_uuid":         userID,
		"credits_to_deduct": amount,
	})
	balance, err := parseInt(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to deduct credits: %w", err)
	}

	log.Printf("✅ Credits deducted: %d from user %s (balance: %d)", amount, userID, balance)
	return balance, nil
}

// AddCredits - 크레딧 충전 후 새 잔액 반환 (결제 웹훅)
func (l *Ledger) AddCredits(ctx context.Context, userID string, amount int) (int, error) {
	log.Printf("💰 Adding credits: User=%s, Amount=%d", userID, amount)

	raw := l.rpc.Rpc("add_user_credits", "", map[string]interface{}{
		"user_uuid":      userID,
		"credits_to_add": amount,
	})
	balance, err := parseInt(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to add credits: %w", err)
	}

	log.Printf("✅ Credits added: %d to user %s (balance: %d)", amount, userID, balance)
	return balance, nil
}

// rpcError - PostgREST 에러 본문
type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint"`
}

// RPC 결과는 본문 문자열 그대로 오므로 스칼라가 아니면 에러로 취급
func parseScalar(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return "", fmt.Errorf("empty rpc response")
	}
	if strings.HasPrefix(raw, "{") {
		var rpcErr rpcError
		if err := json.Unmarshal([]byte(raw), &rpcErr); err == nil && rpcErr.Message != "" {
			return "", fmt.Errorf("rpc error %s: %s", rpcErr.Code, rpcErr.Message)
		}
		return "", fmt.Errorf("unexpected rpc response: %s", truncateString(raw, 120))
	}
	return strings.Trim(raw, `"`), nil
}

func parseInt(raw string) (int, error) {
	value, err := parseScalar(raw)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("unexpected rpc response: %s", truncateString(value, 120))
	}
	return n, nil
}

func parseBool(raw string) (bool, error) {
	value, err := parseScalar(raw)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("unexpected rpc response: %s", truncateString(value, 120))
	}
	return b, nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
