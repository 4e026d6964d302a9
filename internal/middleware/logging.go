package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// responseRecorder はステータスコードと書き込みバイト数を記録する。
type responseRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rr *responseRecorder) WriteHeader(code int) {
	if !rr.wroteHeader {
		rr.status = code
		rr.wroteHeader = true
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.wroteHeader = true
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

// requestLogKey はアクセスログの付加情報を格納するコンテキストキー。
var requestLogKey = contextKey("request_log")

// requestLog は内側のミドルウェアからアクセスログへ渡す情報。
// セッション検証はログより内側で行われるため、ポインタ経由で書き戻す。
type requestLog struct {
	userID string
}

// annotateUserID はアクセスログに認証済みユーザーIDを記録する。
func annotateUserID(ctx context.Context, userID string) {
	if entry, ok := ctx.Value(requestLogKey).(*requestLog); ok {
		entry.userID = userID
	}
}

// NewLoggingMiddleware はリクエストごとにJSON構造化ログを1行出力するミドルウェアを返す。
// 出力項目: method, path, status, bytes, duration_ms, client, request_id, user_id（認証済みの場合）。
// 5xxはERROR、4xxはWARN、それ以外はINFOで出力する。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &requestLog{}
			rec := newResponseRecorder(w)

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestLogKey, entry)))

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
				slog.String("client", ClientIdentity(r)),
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				attrs = append(attrs, slog.String("request_id", reqID))
			}

			userID := entry.userID
			if userID == "" {
				// テスト等でコンテキストに直接注入された場合
				userID, _ = UserIDFromContext(r.Context())
			}
			if userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request", attrs...)
		})
	}
}
