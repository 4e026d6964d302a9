package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/timecapsule/internal/middleware"
	"github.com/hitoshi/timecapsule/internal/model"
	"github.com/hitoshi/timecapsule/internal/validation"
)

// requestValidator はリクエストボディの検証に使う共有Validator。
var requestValidator = validation.New()

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// writeUnauthorized は認証情報がない場合の401レスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// decodeAndValidate はJSONボディをdstにデコードし、validateタグで検証する。
// 失敗した場合はエラーレスポンスを書き込んでfalseを返す。
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	if err := requestValidator.Struct(dst); err != nil {
		handleServiceError(w, err)
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// *model.APIError以外は内部情報を含めずINTERNAL_ERRORとして返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidationFailed,
		model.ErrCodeInvalidRequest,
		model.ErrCodeInvalidState,
		model.ErrCodeUnsupportedProvider,
		model.ErrCodeInvalidCapsuleID,
		model.ErrCodeProviderError,
		model.ErrCodeIncompleteProfile:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidOrExpiredToken:
		return http.StatusUnauthorized
	case model.ErrCodeFreeLimitReached:
		return http.StatusPaymentRequired
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound, model.ErrCodeCapsuleNotFound, model.ErrCodePaymentNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailAlreadyRegistered:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodePaymentsNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
