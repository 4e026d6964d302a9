// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/timecapsule/internal/auth"
	"github.com/hitoshi/timecapsule/internal/model"
	"github.com/hitoshi/timecapsule/internal/repository"
)

// knownProviders は設定状況を返す対象のプロバイダー。
var knownProviders = []string{model.ProviderGoogle, model.ProviderGitHub}

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	LoginURL(providerName string) (loginURL, state string, err error)
	Complete(ctx context.Context, code, rawState, redirectURI string) (*auth.LoginResult, error)
	TokenTTL() int
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL string
	Cookie  CookieConfig
	// OAuthConfig は有効なプロバイダーの公開設定。キーはプロバイダー名。
	OAuthConfig map[string]auth.PublicConfig
	// OAuthMissing は未設定のプロバイダーについて、空の環境変数名を保持する。
	OAuthMissing map[string][]string
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	now     func() time.Time
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
		now:     time.Now,
	}
}

// completeRequest はクライアント主導のコード交換リクエスト。
type completeRequest struct {
	Code        string `json:"code" validate:"required"`
	State       string `json:"state" validate:"required"`
	RedirectURI string `json:"redirectUri"`
}

// providerValidation はプロバイダーごとの設定状況。
type providerValidation struct {
	Configured bool     `json:"configured"`
	Missing    []string `json:"missing"`
}

// Login はOAuthフローを開始する。
// GET /auth/{provider}/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	loginURL, state, err := h.service.LoginURL(provider)
	if err != nil {
		h.writeAuthError(w, err, provider)
		return
	}

	// stateをCookieに保存（CSRF対策）
	h.config.Cookie.setStateCookie(w, state, oauthStateMaxAge)
	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// Callback はプロバイダーからのリダイレクトを処理する。
// GET /auth/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidStateError())
		return
	}
	h.config.Cookie.setStateCookie(w, "", -1)

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError([]model.FieldError{
			{Field: "code", Message: "code is required"},
		}))
		return
	}

	// 3. 認証処理
	result, err := h.service.Complete(r.Context(), code, state, "")
	if err != nil {
		h.writeAuthError(w, err, providerFromState(state))
		return
	}

	// 4. セッションCookieを設定してフロントエンドにリダイレクト
	h.config.Cookie.setSessionCookie(w, result.Token, h.service.TokenTTL())
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Complete はクライアントが受け取った認可コードを交換し、セッションを開始する。
// POST /api/auth/complete
func (h *AuthHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Complete(r.Context(), req.Code, req.State, req.RedirectURI)
	if err != nil {
		h.writeAuthError(w, err, providerFromState(req.State))
		return
	}

	h.config.Cookie.setSessionCookie(w, result.Token, h.service.TokenTTL())
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    toUserResponse(result.User),
	})
}

// Config はクライアント向けのOAuth公開設定を返す。
// GET /api/auth/config
func (h *AuthHandler) Config(w http.ResponseWriter, r *http.Request) {
	oauthConfig := make(map[string]auth.PublicConfig, len(h.config.OAuthConfig))
	validation := make(map[string]providerValidation, len(knownProviders))

	for _, name := range knownProviders {
		cfg, ok := h.config.OAuthConfig[name]
		v := providerValidation{Configured: ok && cfg.ClientID != "", Missing: []string{}}
		if v.Configured {
			oauthConfig[name] = cfg
		} else if missing := h.config.OAuthMissing[name]; len(missing) > 0 {
			v.Missing = append(v.Missing, missing...)
		} else {
			prefix := strings.ToUpper(name)
			v.Missing = append(v.Missing, prefix+"_CLIENT_ID", prefix+"_CLIENT_SECRET")
		}
		validation[name] = v
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"oauthConfig": oauthConfig,
		"validation":  validation,
		"serverTime":  h.now().UTC().Format(time.RFC3339),
	})
}

// Logout はセッションCookieを削除する。トークンはステートレスなので失効処理はない。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.config.Cookie.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// writeAuthError は認証フローのエラーをレスポンスに変換する。
func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error, provider string) {
	if errors.Is(err, repository.ErrEmailConflict) {
		writeAPIErrorResponse(w, http.StatusConflict, model.NewEmailAlreadyRegisteredError())
		return
	}
	if apiErr := auth.ToAPIError(err, provider); apiErr != nil {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("authentication failed",
		slog.String("provider", provider),
		slog.String("error", err.Error()),
	)
	writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewAuthenticationFailedError())
}

// providerFromState はエラーメッセージ用にstateからプロバイダー名を取り出す。
func providerFromState(rawState string) string {
	state, err := auth.DecodeState(rawState)
	if err != nil {
		return "OAuth"
	}
	return state.Provider
}
