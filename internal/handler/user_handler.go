package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/timecapsule/internal/middleware"
	"github.com/hitoshi/timecapsule/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.User, error)
	GetForCaller(ctx context.Context, callerID, targetID string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error)
	ListAll(ctx context.Context, callerID string) ([]*model.User, error)
	// Withdraw はカプセル、決済記録、設定、ユーザーの順に削除する。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookie  CookieConfig
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, cookie CookieConfig) *UserHandler {
	return &UserHandler{
		service: service,
		cookie:  cookie,
	}
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	Picture          *string    `json:"picture"`
	Provider         string     `json:"provider"`
	IsPremium        bool       `json:"isPremium"`
	PremiumExpiresAt *time.Time `json:"premiumExpiresAt"`
}

// adminUserResponse は管理者向け一覧の各ユーザー。
type adminUserResponse struct {
	userResponse
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
type updateProfileRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=100"`
	Email string `json:"email" validate:"required,email,max=255"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Picture:          u.Picture,
		Provider:         u.Provider,
		IsPremium:        u.IsPremium,
		PremiumExpiresAt: u.PremiumExpiresAt,
	}
}

// Session は現在のセッションのユーザー情報を返す。
// GET /api/session
func (h *UserHandler) Session(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(user)})
}

// GetUser は呼び出し元自身のユーザー情報を返す。
// GET /api/users?id=xxx
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	user, err := h.service.GetForCaller(r.Context(), userID, r.URL.Query().Get("id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(user)})
}

// UpdateProfile は名前とメールアドレスを更新する。
// PATCH /api/users, POST /api/users
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req updateProfileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, model.ProfileUpdate{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(user)})
}

// Withdraw はユーザーの退会処理を実行し、セッションCookieを削除する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.cookie.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// AdminListUsers は管理者に全ユーザーを返す。
// GET /api/admin/users
func (h *UserHandler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	users, err := h.service.ListAll(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]adminUserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, adminUserResponse{
			userResponse: toUserResponse(u),
			CreatedAt:    u.CreatedAt,
			UpdatedAt:    u.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": resp})
}
