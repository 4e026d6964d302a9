package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/timecapsule/internal/model"
)

// ErrorResponseBody はすべてのエラーレスポンスで共通のJSON形式。
type ErrorResponseBody struct {
	Error    string             `json:"error"`
	Code     string             `json:"code"`
	Category string             `json:"category"`
	Action   string             `json:"action"`
	Details  []model.FieldError `json:"details,omitempty"`
}

// NewErrorResponseBody はAPIErrorをレスポンスボディに変換する。nilは内部エラーとして扱う。
func NewErrorResponseBody(apiErr *model.APIError) ErrorResponseBody {
	if apiErr == nil {
		apiErr = model.NewInternalError()
	}
	return ErrorResponseBody{
		Error:    apiErr.Message,
		Code:     apiErr.Code,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Details:  apiErr.Details,
	}
}

// WriteErrorResponse はstatusCodeとエラーボディを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(NewErrorResponseBody(apiErr)); err != nil {
		slog.Error("failed to encode error response", slog.String("error", err.Error()))
	}
}

// WriteInternalServerError は詳細を含まない500を書き込む。原因は呼び出し側でログに残すこと。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
