package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/timecapsule/internal/middleware"
	"github.com/hitoshi/timecapsule/internal/model"
	"github.com/hitoshi/timecapsule/internal/payment"
)

// PaymentServiceInterface は決済ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	PublicConfig() payment.PublicConfig
	CreateIntent(ctx context.Context, userID string) (*payment.Intent, error)
	Confirm(ctx context.Context, userID, intentID string) (*model.Payment, error)
	List(ctx context.Context, userID string) ([]*model.Payment, error)
}

// PaymentHandler はプレミアム購入のHTTPハンドラー。
type PaymentHandler struct {
	service PaymentServiceInterface
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentServiceInterface) *PaymentHandler {
	return &PaymentHandler{service: service}
}

type confirmPaymentRequest struct {
	PaymentIntentID string `json:"paymentIntentId" validate:"required"`
}

type paymentResponse struct {
	ID              string    `json:"id"`
	PaymentIntentID string    `json:"paymentIntentId"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	PremiumMonths   int       `json:"premiumMonths"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toPaymentResponse(p *model.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		PaymentIntentID: p.StripePaymentIntentID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Status:          p.Status,
		PremiumMonths:   p.PremiumMonths,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// Config はクライアント向けのStripe公開設定と設定状況を返す。
// GET /api/stripe/config
func (h *PaymentHandler) Config(w http.ResponseWriter, r *http.Request) {
	cfg := h.service.PublicConfig()
	writeJSON(w, http.StatusOK, map[string]any{
		"stripeConfig": map[string]string{
			"publishableKey": cfg.PublishableKey,
			"priceId":        cfg.PriceID,
		},
		"validation": map[string]any{
			"configured": cfg.Configured,
			"missing":    cfg.Missing,
		},
	})
}

// CreateIntent はプレミアム購入用のPaymentIntentを作成する。
// POST /api/payments/intent
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	intent, err := h.service.CreateIntent(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"clientSecret":    intent.ClientSecret,
		"paymentIntentId": intent.ID,
	})
}

// Confirm はStripe上のPaymentIntentの状態を取り込み、成功していればプレミアムを付与する。
// POST /api/payments/confirm
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req confirmPaymentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	p, err := h.service.Confirm(r.Context(), userID, req.PaymentIntentID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payment":   toPaymentResponse(p),
		"isPremium": p.Status == model.PaymentStatusSucceeded,
	})
}

// ListPayments はログインユーザーの決済履歴を新しい順に返す。
// GET /api/payments
func (h *PaymentHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	payments, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, toPaymentResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": resp})
}
