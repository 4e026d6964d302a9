// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/timecapsule/internal/auth"
	"github.com/hitoshi/timecapsule/internal/model"
)

// SessionCookieName はセッショントークンを運ぶCookie名。
const SessionCookieName = "access_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// claimsContextKey はリクエストコンテキストに検証済みクレームを格納するためのキー。
var claimsContextKey = contextKey("session_claims")

// TokenVerifier はセッショントークンの検証に必要なインターフェース。
type TokenVerifier interface {
	Verify(token string) (*auth.SessionClaims, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッショントークンを読み取り、
// 署名と有効期限を検証するミドルウェアを返す。
// Cookieがない場合は401 UNAUTHORIZED、検証に失敗した場合は401 INVALID_OR_EXPIRED_TOKENを返す。
// 検証済みクレームをリクエストコンテキストに注入する。
func NewSessionMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			claims, err := verifier.Verify(cookie.Value)
			if err != nil {
				slog.Debug("session token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidOrExpiredTokenError())
				return
			}

			annotateUserID(r.Context(), claims.UserID)
			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext はリクエストコンテキストから検証済みクレームを取得する。
func ClaimsFromContext(ctx context.Context) (*auth.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.SessionClaims)
	return claims, ok && claims != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return claims.UserID, nil
}

// ContextWithClaims はコンテキストにクレームを注入する。
func ContextWithClaims(ctx context.Context, claims *auth.SessionClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ContextWithUserID はコンテキストにユーザーIDのみを持つクレームを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithClaims(ctx, &auth.SessionClaims{UserID: userID})
}
