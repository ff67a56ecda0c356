package respond

import (
	"encoding/json"
	"log"
	"net/http"
)

// ErrorResponse - 에러 응답 본문
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// JSON - JSON 응답 작성
func JSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("❌ Failed to encode response: %v", err)
	}
}

// Error - {"detail": "..."} 에러 응답
func Error(w http.ResponseWriter, status int, detail string) {
	JSON(w, status, ErrorResponse{Detail: detail})
}

// DecodeJSON - 요청 본문 파싱 (실패 시 400 응답 후 false)
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Printf("❌ Invalid request body on %s: %v", r.URL.Path, err)
		Error(w, http.StatusBadRequest, "Invalid request format")
		return false
	}
	return true
}
