package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/timecapsule/internal/capsule"
	"github.com/hitoshi/timecapsule/internal/middleware"
	"github.com/hitoshi/timecapsule/internal/model"
)

// CapsuleServiceInterface はカプセルハンドラーが必要とするサービスインターフェース。
type CapsuleServiceInterface interface {
	List(ctx context.Context, userID string) ([]capsule.View, error)
	Create(ctx context.Context, userID, message, deliveryDate string) (*model.TimeCapsule, error)
	Delete(ctx context.Context, userID, capsuleID string) error
}

// CapsuleHandler はタイムカプセルのHTTPハンドラー。
type CapsuleHandler struct {
	service CapsuleServiceInterface
}

// NewCapsuleHandler はCapsuleHandlerを生成する。
func NewCapsuleHandler(service CapsuleServiceInterface) *CapsuleHandler {
	return &CapsuleHandler{service: service}
}

// createCapsuleRequest はカプセル作成リクエストのボディ。
// 内容の検証はサービス層で行う。
type createCapsuleRequest struct {
	Message      string `json:"message"`
	DeliveryDate string `json:"deliveryDate"`
}

type timeRemainingResponse struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// capsuleResponse はカプセルのAPIレスポンス。
// ロック中のカプセルはmessageを含まない。
type capsuleResponse struct {
	ID            string                 `json:"id"`
	Message       *string                `json:"message,omitempty"`
	DeliveryDate  time.Time              `json:"deliveryDate"`
	CreatedAt     time.Time              `json:"createdAt"`
	IsUnlocked    bool                   `json:"isUnlocked"`
	IsDelivered   bool                   `json:"isDelivered"`
	DeliveredAt   *time.Time             `json:"deliveredAt"`
	TimeRemaining *timeRemainingResponse `json:"timeRemaining,omitempty"`
}

func toCapsuleResponse(v capsule.View) capsuleResponse {
	c := v.Capsule
	resp := capsuleResponse{
		ID:           c.ID,
		DeliveryDate: c.DeliveryDate,
		CreatedAt:    c.CreatedAt,
		IsUnlocked:   v.Unlocked,
		IsDelivered:  c.IsDelivered,
		DeliveredAt:  c.DeliveredAt,
	}
	if v.Unlocked {
		msg := c.Message
		resp.Message = &msg
	}
	if v.Remaining != nil {
		resp.TimeRemaining = &timeRemainingResponse{
			Days:    v.Remaining.Days,
			Hours:   v.Remaining.Hours,
			Minutes: v.Remaining.Minutes,
		}
	}
	return resp
}

// ListCapsules はログインユーザーのカプセル一覧を配信日の昇順で返す。
// GET /api/capsules
func (h *CapsuleHandler) ListCapsules(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	views, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]capsuleResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, toCapsuleResponse(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"capsules": resp})
}

// CreateCapsule はカプセルを作成する。作成者には本文を含めて返す。
// POST /api/capsules
func (h *CapsuleHandler) CreateCapsule(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createCapsuleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), userID, req.Message, req.DeliveryDate)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toCapsuleResponse(capsule.View{Capsule: created})
	resp.Message = &created.Message
	writeJSON(w, http.StatusCreated, map[string]any{"capsule": resp})
}

// DeleteCapsule は自分のカプセルを削除する。
// DELETE /api/capsules?id=xxx
func (h *CapsuleHandler) DeleteCapsule(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Delete(r.Context(), userID, r.URL.Query().Get("id")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
