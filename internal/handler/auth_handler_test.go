package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/timecapsule/internal/auth"
	"github.com/hitoshi/timecapsule/internal/model"
	"github.com/hitoshi/timecapsule/internal/repository"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	loginURLFn func(providerName string) (string, string, error)
	completeFn func(ctx context.Context, code, rawState, redirectURI string) (*auth.LoginResult, error)
}

func (m *mockAuthService) LoginURL(providerName string) (string, string, error) {
	if m.loginURLFn != nil {
		return m.loginURLFn(providerName)
	}
	return "", "", nil
}

func (m *mockAuthService) Complete(ctx context.Context, code, rawState, redirectURI string) (*auth.LoginResult, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, code, rawState, redirectURI)
	}
	return nil, nil
}

func (m *mockAuthService) TokenTTL() int {
	return 900
}

func testAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		BaseURL: "http://localhost:3000",
		Cookie:  CookieConfig{Secure: true},
		OAuthConfig: map[string]auth.PublicConfig{
			"google": {
				ClientID:    "google-client",
				RedirectURI: "http://localhost:3000/auth/callback",
				Scope:       "openid email profile",
				AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
			},
		},
	}
}

func encodedState(t *testing.T, provider string) string {
	t.Helper()
	s, err := auth.NewState(provider).Encode()
	if err != nil {
		t.Fatalf("failed to encode state: %v", err)
	}
	return s
}

func loggedInResult() *auth.LoginResult {
	return &auth.LoginResult{
		Token: "signed-token",
		User: &model.User{
			ID:       "0123456789abcdef01234567",
			Email:    "alice@example.com",
			Name:     "Alice",
			Provider: model.ProviderGoogle,
		},
	}
}

// --- GET /auth/{provider}/login ---

func TestAuthHandler_Login_RedirectsAndSetsStateCookie(t *testing.T) {
	svc := &mockAuthService{
		loginURLFn: func(providerName string) (string, string, error) {
			if providerName != "github" {
				t.Errorf("provider = %q, want %q", providerName, "github")
			}
			return "https://github.com/login/oauth/authorize?state=s1", "s1", nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/github/login", nil)
	req = withChiURLParam(req, "provider", "github")
	w := httptest.NewRecorder()

	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if loc := resp.Header.Get("Location"); loc != "https://github.com/login/oauth/authorize?state=s1" {
		t.Errorf("Location = %q", loc)
	}

	c := findCookie(resp, oauthStateCookie)
	if c == nil {
		t.Fatal("expected oauth_state cookie")
	}
	if c.Value != "s1" || c.MaxAge != oauthStateMaxAge || !c.HttpOnly {
		t.Errorf("cookie = %+v", c)
	}
}

func TestAuthHandler_Login_UnsupportedProvider(t *testing.T) {
	svc := &mockAuthService{
		loginURLFn: func(providerName string) (string, string, error) {
			return "", "", fmt.Errorf("%w: %q", auth.ErrUnsupportedProvider, providerName)
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/twitter/login", nil)
	req = withChiURLParam(req, "provider", "twitter")
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeUnsupportedProvider {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnsupportedProvider)
	}
}

// --- GET /auth/callback ---

func TestAuthHandler_Callback_StateMismatch(t *testing.T) {
	called := false
	svc := &mockAuthService{
		completeFn: func(ctx context.Context, code, rawState, redirectURI string) (*auth.LoginResult, error) {
			called = true
			return loggedInResult(), nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"no cookie", nil},
		{"different value", &http.Cookie{Name: oauthStateCookie, Value: "other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=c&state=s1", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()

			h.Callback(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInvalidState {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidState)
			}
		})
	}

	if called {
		t.Error("Complete must not be called when state does not match")
	}
}

func TestAuthHandler_Callback_Success(t *testing.T) {
	state := encodedState(t, "google")
	svc := &mockAuthService{
		completeFn: func(ctx context.Context, code, rawState, redirectURI string) (*auth.LoginResult, error) {
			if code != "auth-code" || rawState != state || redirectURI != "" {
				t.Errorf("Complete(%q, %q, %q)", code, rawState, redirectURI)
			}
			return loggedInResult(), nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=auth-code&state="+url.QueryEscape(state), nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: state})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if loc := resp.Header.Get("Location"); loc != "http://localhost:3000" {
		t.Errorf("Location = %q", loc)
	}

	c := findCookie(resp, "access_token")
	if c == nil {
		t.Fatal("expected access_token cookie")
	}
	if c.Value != "signed-token" || c.MaxAge != 900 || !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Errorf("cookie = %+v", c)
	}
}

// --- POST /api/auth/complete ---

func TestAuthHandler_Complete_Success(t *testing.T) {
	state := encodedState(t, "google")
	svc := &mockAuthService{
		completeFn: func(ctx context.Context, code, rawState, redirectURI string) (*auth.LoginResult, error) {
			if redirectURI != "http://localhost:3000/auth/callback" {
				t.Errorf("redirectURI = %q", redirectURI)
			}
			return loggedInResult(), nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	body := fmt.Sprintf(`{"code":"auth-code","state":%q,"redirectUri":"http://localhost:3000/auth/callback"}`, state)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/complete", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Complete(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if c := findCookie(resp, "access_token"); c == nil || c.Value != "signed-token" {
		t.Errorf("access_token cookie = %+v", c)
	}

	var got struct {
		Success bool         `json:"success"`
		User    userResponse `json:"user"`
	}
	decodeJSON(t, w, &got)
	if !got.Success || got.User.ID != "0123456789abcdef01234567" || got.User.Email != "alice@example.com" {
		t.Errorf("response = %+v", got)
	}
}

func TestAuthHandler_Complete_MissingCode(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/complete", strings.NewReader(`{"state":"x"}`))
	w := httptest.NewRecorder()

	h.Complete(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body := parseAPIErrorResponse(t, w)
	if body.Code != model.ErrCodeValidationFailed {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeValidationFailed)
	}
	if len(body.Details) != 1 || body.Details[0].Field != "code" {
		t.Errorf("details = %+v", body.Details)
	}
}

func TestAuthHandler_Complete_InvalidJSON(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/complete", strings.NewReader(`{`))
	w := httptest.NewRecorder()

	h.Complete(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidRequest)
	}
}

func TestAuthHandler_Complete_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid state", auth.ErrInvalidState, http.StatusBadRequest, model.ErrCodeInvalidState},
		{"provider token", fmt.Errorf("%w: status 400", auth.ErrProviderToken), http.StatusBadRequest, model.ErrCodeProviderError},
		{"incomplete profile", auth.ErrIncompleteProfile, http.StatusBadRequest, model.ErrCodeIncompleteProfile},
		{"email conflict", fmt.Errorf("failed to upsert user: %w", repository.ErrEmailConflict), http.StatusConflict, model.ErrCodeEmailAlreadyRegistered},
		{"unexpected", errors.New("db down"), http.StatusInternalServerError, model.ErrCodeAuthenticationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				completeFn: func(ctx context.Context, code, rawState, redirectURI string) (*auth.LoginResult, error) {
					return nil, tt.err
				},
			}
			h := NewAuthHandler(svc, testAuthConfig())

			body := fmt.Sprintf(`{"code":"c","state":%q}`, encodedState(t, "github"))
			req := httptest.NewRequest(http.MethodPost, "/api/auth/complete", strings.NewReader(body))
			w := httptest.NewRecorder()

			h.Complete(w, req)

			resp := w.Result()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if c := findCookie(resp, "access_token"); c != nil {
				t.Errorf("access_token cookie must not be set on failure: %+v", c)
			}
			if got := parseAPIErrorResponse(t, w); got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

// --- GET /api/auth/config ---

func TestAuthHandler_Config_ReportsConfiguredProviders(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/auth/config", nil)
	w := httptest.NewRecorder()

	h.Config(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var got struct {
		OAuthConfig map[string]auth.PublicConfig  `json:"oauthConfig"`
		Validation  map[string]providerValidation `json:"validation"`
		ServerTime  string                        `json:"serverTime"`
	}
	decodeJSON(t, w, &got)

	if got.OAuthConfig["google"].ClientID != "google-client" {
		t.Errorf("google config = %+v", got.OAuthConfig["google"])
	}
	if _, ok := got.OAuthConfig["github"]; ok {
		t.Error("github should not be exposed when not configured")
	}
	if !got.Validation["google"].Configured {
		t.Error("google should be configured")
	}
	gh := got.Validation["github"]
	if gh.Configured || len(gh.Missing) != 2 || gh.Missing[0] != "GITHUB_CLIENT_ID" || gh.Missing[1] != "GITHUB_CLIENT_SECRET" {
		t.Errorf("github validation = %+v", gh)
	}
	if got.ServerTime == "" {
		t.Error("serverTime should be set")
	}
}

func TestAuthHandler_Config_ReportsEmptyVariables(t *testing.T) {
	tests := []struct {
		name    string
		missing map[string][]string
		want    []string
	}{
		{
			name:    "シークレットのみ未設定",
			missing: map[string][]string{"github": {"GITHUB_CLIENT_SECRET"}},
			want:    []string{"GITHUB_CLIENT_SECRET"},
		},
		{
			name:    "クライアントIDのみ未設定",
			missing: map[string][]string{"github": {"GITHUB_CLIENT_ID"}},
			want:    []string{"GITHUB_CLIENT_ID"},
		},
		{
			name:    "両方未設定",
			missing: map[string][]string{"github": {"GITHUB_CLIENT_ID", "GITHUB_CLIENT_SECRET"}},
			want:    []string{"GITHUB_CLIENT_ID", "GITHUB_CLIENT_SECRET"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testAuthConfig()
			cfg.OAuthMissing = tt.missing
			h := NewAuthHandler(&mockAuthService{}, cfg)

			req := httptest.NewRequest(http.MethodGet, "/api/auth/config", nil)
			w := httptest.NewRecorder()

			h.Config(w, req)

			var got struct {
				Validation map[string]providerValidation `json:"validation"`
			}
			decodeJSON(t, w, &got)

			gh := got.Validation["github"]
			if gh.Configured {
				t.Fatal("github should not be configured")
			}
			if strings.Join(gh.Missing, ",") != strings.Join(tt.want, ",") {
				t.Errorf("missing = %v, want %v", gh.Missing, tt.want)
			}
			if g := got.Validation["google"]; !g.Configured || len(g.Missing) != 0 {
				t.Errorf("google validation = %+v", g)
			}
		})
	}
}

// --- POST /api/auth/logout ---

func TestAuthHandler_Logout_ClearsCookie(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "signed-token"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	c := findCookie(resp, "access_token")
	if c == nil || c.Value != "" || c.MaxAge >= 0 {
		t.Errorf("access_token cookie = %+v, want cleared", c)
	}

	var got map[string]bool
	decodeJSON(t, w, &got)
	if !got["ok"] {
		t.Errorf("response = %v, want ok=true", got)
	}
}
