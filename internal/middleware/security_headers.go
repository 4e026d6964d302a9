package middleware

import "net/http"

const hstsValue = "max-age=31536000; includeSubDomains"

// NewSecurityHeadersMiddleware はセキュリティ関連のレスポンスヘッダーを付与する。
// APIはJSONしか返さないのでCSPはすべて拒否にする。httpsで配信する場合はhstsをtrueにする。
func NewSecurityHeadersMiddleware(hsts bool) func(next http.Handler) http.Handler {
	headers := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
		"Permissions-Policy":      "camera=(), microphone=(), geolocation=()",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Cache-Control":           "no-store",
	}
	if hsts {
		headers["Strict-Transport-Security"] = hstsValue
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range headers {
				h.Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}
