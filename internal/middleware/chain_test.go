package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/timecapsule/internal/auth"
	"github.com/hitoshi/timecapsule/internal/model"
)

// buildChain はルーターと同じ順序でミドルウェアを組み立てる。
// Recovery -> SecurityHeaders -> CORS -> Logging -> Session -> Handler
func buildChain(logger *slog.Logger, tokens *auth.TokenService, h http.Handler) http.Handler {
	return NewRecoveryMiddleware()(
		NewSecurityHeadersMiddleware(false)(
			NewCORSMiddleware("http://localhost:3000")(
				NewLoggingMiddleware(logger)(
					NewSessionMiddleware(tokens)(h),
				),
			),
		),
	)
}

func TestMiddlewareChain_AuthenticatedRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	tokens := auth.NewTokenService("test-secret")

	handler := buildChain(logger, tokens, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil || userID != "user-chain" {
			t.Errorf("UserIDFromContext() = %q, %v", userID, err)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/capsules", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: signTestToken(t, tokens, "user-chain")})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers should be set")
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("CORS headers should be set")
	}
}

func TestMiddlewareChain_NoSession_Returns401(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := buildChain(logger, auth.NewTokenService("test-secret"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/capsules?id=x", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", code, model.ErrCodeUnauthorized)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"status":401`)) {
		t.Errorf("request log should contain status 401: %s", buf.String())
	}
}

func TestMiddlewareChain_PanicRecovered(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	tokens := auth.NewTokenService("test-secret")

	handler := buildChain(logger, tokens, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/capsules", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: signTestToken(t, tokens, "u1")})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", code, model.ErrCodeInternal)
	}
}
