package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/timecapsule/internal/middleware"
	"github.com/hitoshi/timecapsule/internal/model"
)

// SettingsServiceInterface は設定ハンドラーが必要とするサービスインターフェース。
type SettingsServiceInterface interface {
	GetSettings(ctx context.Context, userID string) (*model.UserSettings, error)
	UpdateSettings(ctx context.Context, userID string, update model.SettingsUpdate) (*model.UserSettings, error)
}

// SettingsHandler はユーザー設定のHTTPハンドラー。
type SettingsHandler struct {
	service SettingsServiceInterface
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(service SettingsServiceInterface) *SettingsHandler {
	return &SettingsHandler{service: service}
}

// updateSettingsRequest は設定の部分更新リクエスト。省略したフィールドは変更しない。
type updateSettingsRequest struct {
	EmailNotifications *bool   `json:"emailNotifications"`
	Theme              *string `json:"theme" validate:"omitnil,oneof=light dark"`
	Language           *string `json:"language" validate:"omitnil,min=2,max=10"`
	Timezone           *string `json:"timezone" validate:"omitnil,timezone"`
}

type settingsResponse struct {
	EmailNotifications bool      `json:"emailNotifications"`
	Theme              string    `json:"theme"`
	Language           string    `json:"language"`
	Timezone           string    `json:"timezone"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func toSettingsResponse(s *model.UserSettings) settingsResponse {
	return settingsResponse{
		EmailNotifications: s.EmailNotifications,
		Theme:              s.Theme,
		Language:           s.Language,
		Timezone:           s.Timezone,
		UpdatedAt:          s.UpdatedAt,
	}
}

// GetSettings はユーザー設定を返す。
// GET /api/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	settings, err := h.service.GetSettings(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"settings": toSettingsResponse(settings)})
}

// UpdateSettings はユーザー設定を部分更新する。
// PUT /api/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req updateSettingsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	settings, err := h.service.UpdateSettings(r.Context(), userID, model.SettingsUpdate{
		EmailNotifications: req.EmailNotifications,
		Theme:              req.Theme,
		Language:           req.Language,
		Timezone:           req.Timezone,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"settings": toSettingsResponse(settings)})
}
