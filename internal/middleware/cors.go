package middleware

import "net/http"

const (
	corsAllowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders  = "Content-Type, X-Request-Id"
	corsExposeHeaders = "Retry-After"
	corsMaxAge        = "86400"
)

// NewCORSMiddleware は単一オリジンからの資格情報付きリクエストを許可するCORSミドルウェアを返す。
// Originヘッダーが許可オリジンと異なる場合はCORSヘッダーを付けない（ブラウザ側で拒否される）。
// Originのない同一オリジン・サーバー間リクエストはそのまま通す。
// OPTIONSプリフライトには204で応答し、後続ハンドラーは呼ばない。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if origin == "" || origin == allowedOrigin {
				h.Set("Access-Control-Allow-Origin", allowedOrigin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			}

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
