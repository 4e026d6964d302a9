package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/timecapsule/internal/model"
)

// --- モック定義 ---

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	getFn           func(ctx context.Context, userID string) (*model.User, error)
	getForCallerFn  func(ctx context.Context, callerID, targetID string) (*model.User, error)
	updateProfileFn func(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error)
	listAllFn       func(ctx context.Context, callerID string) ([]*model.User, error)
	withdrawFn      func(ctx context.Context, userID string) error
}

func (m *mockUserService) Get(ctx context.Context, userID string) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) GetForCaller(ctx context.Context, callerID, targetID string) (*model.User, error) {
	if m.getForCallerFn != nil {
		return m.getForCallerFn(ctx, callerID, targetID)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, update)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) ListAll(ctx context.Context, callerID string) ([]*model.User, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx, callerID)
	}
	return nil, nil
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

const testUserID = "0123456789abcdef01234567"

func testUser() *model.User {
	picture := "https://example.com/a.png"
	return &model.User{
		ID:        testUserID,
		Email:     "alice@example.com",
		Name:      "Alice",
		Picture:   &picture,
		Provider:  model.ProviderGitHub,
		IsPremium: true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

// --- GET /api/session ---

func TestUserHandler_Session_ReturnsUser(t *testing.T) {
	svc := &mockUserService{
		getFn: func(ctx context.Context, userID string) (*model.User, error) {
			if userID != testUserID {
				t.Errorf("userID = %q, want %q", userID, testUserID)
			}
			return testUser(), nil
		},
	}
	h := NewUserHandler(svc, CookieConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req = withUserID(req, testUserID)
	w := httptest.NewRecorder()

	h.Session(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got struct {
		User userResponse `json:"user"`
	}
	decodeJSON(t, w, &got)
	if got.User.ID != testUserID || !got.User.IsPremium || got.User.Provider != "github" {
		t.Errorf("user = %+v", got.User)
	}
	if got.User.Picture == nil || *got.User.Picture != "https://example.com/a.png" {
		t.Errorf("picture = %v", got.User.Picture)
	}
}

func TestUserHandler_Session_UserNotFound(t *testing.T) {
	h := NewUserHandler(&mockUserService{}, CookieConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req = withUserID(req, testUserID)
	w := httptest.NewRecorder()

	h.Session(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUserHandler_NoUserID_ReturnsUnauthorized(t *testing.T) {
	h := NewUserHandler(&mockUserService{}, CookieConfig{})

	tests := []struct {
		name    string
		method  string
		target  string
		handler http.HandlerFunc
	}{
		{"session", http.MethodGet, "/api/session", h.Session},
		{"get user", http.MethodGet, "/api/users?id=" + testUserID, h.GetUser},
		{"update profile", http.MethodPatch, "/api/users", h.UpdateProfile},
		{"withdraw", http.MethodDelete, "/api/users/me", h.Withdraw},
		{"admin list", http.MethodGet, "/api/admin/users", h.AdminListUsers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			// ユーザーIDを注入しない
			w := httptest.NewRecorder()

			tt.handler(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

// --- GET /api/users ---

func TestUserHandler_GetUser_PassesQueryID(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"own user", nil, http.StatusOK},
		{"missing id", model.NewValidationError([]model.FieldError{{Field: "id", Message: "id is required"}}), http.StatusBadRequest},
		{"other user", model.NewForbiddenError(), http.StatusForbidden},
		{"not found", model.NewUserNotFoundError(), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockUserService{
				getForCallerFn: func(ctx context.Context, callerID, targetID string) (*model.User, error) {
					if callerID != testUserID || targetID != "target" {
						t.Errorf("GetForCaller(%q, %q)", callerID, targetID)
					}
					if tt.err != nil {
						return nil, tt.err
					}
					return testUser(), nil
				},
			}
			h := NewUserHandler(svc, CookieConfig{})

			req := httptest.NewRequest(http.MethodGet, "/api/users?id=target", nil)
			req = withUserID(req, testUserID)
			w := httptest.NewRecorder()

			h.GetUser(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

// --- PATCH /api/users ---

func TestUserHandler_UpdateProfile_Success(t *testing.T) {
	svc := &mockUserService{
		updateProfileFn: func(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
			if update.Name != "Bob" || update.Email != "Bob@Example.com" {
				t.Errorf("update = %+v", update)
			}
			u := testUser()
			u.Name = update.Name
			u.Email = "bob@example.com"
			return u, nil
		},
	}
	h := NewUserHandler(svc, CookieConfig{})

	req := httptest.NewRequest(http.MethodPatch, "/api/users", strings.NewReader(`{"name":"Bob","email":"Bob@Example.com"}`))
	req = withUserID(req, testUserID)
	w := httptest.NewRecorder()

	h.UpdateProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got struct {
		User userResponse `json:"user"`
	}
	decodeJSON(t, w, &got)
	if got.User.Email != "bob@example.com" {
		t.Errorf("email = %q", got.User.Email)
	}
}

func TestUserHandler_UpdateProfile_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"missing name", `{"email":"a@example.com"}`, "name"},
		{"invalid email", `{"name":"A","email":"not-an-email"}`, "email"},
		{"name too long", `{"name":"` + strings.Repeat("a", 101) + `","email":"a@example.com"}`, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockUserService{
				updateProfileFn: func(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
					called = true
					return testUser(), nil
				},
			}
			h := NewUserHandler(svc, CookieConfig{})

			req := httptest.NewRequest(http.MethodPatch, "/api/users", strings.NewReader(tt.body))
			req = withUserID(req, testUserID)
			w := httptest.NewRecorder()

			h.UpdateProfile(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			body := parseAPIErrorResponse(t, w)
			if body.Code != model.ErrCodeValidationFailed {
				t.Errorf("code = %q", body.Code)
			}
			if len(body.Details) == 0 || body.Details[0].Field != tt.wantField {
				t.Errorf("details = %+v, want field %q", body.Details, tt.wantField)
			}
			if called {
				t.Error("UpdateProfile must not be called for invalid input")
			}
		})
	}
}

func TestUserHandler_UpdateProfile_EmailConflict(t *testing.T) {
	svc := &mockUserService{
		updateProfileFn: func(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
			return nil, model.NewEmailAlreadyRegisteredError()
		},
	}
	h := NewUserHandler(svc, CookieConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"name":"A","email":"taken@example.com"}`))
	req = withUserID(req, testUserID)
	w := httptest.NewRecorder()

	h.UpdateProfile(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

// --- DELETE /api/users/me ---

func TestUserHandler_Withdraw_Success(t *testing.T) {
	withdrawCalled := false
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, userID string) error {
			withdrawCalled = true
			if userID != testUserID {
				t.Errorf("userID = %q, want %q", userID, testUserID)
			}
			return nil
		},
	}
	h := NewUserHandler(svc, CookieConfig{})

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	req = withUserID(req, testUserID)
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if !withdrawCalled {
		t.Error("expected Withdraw to be called")
	}
	if c := findCookie(resp, "access_token"); c == nil || c.MaxAge >= 0 {
		t.Errorf("access_token cookie = %+v, want cleared", c)
	}
}

func TestUserHandler_Withdraw_InternalError(t *testing.T) {
	svc := &mockUserService{
		withdrawFn: func(ctx context.Context, userID string) error {
			return errors.New("transaction failed")
		},
	}
	h := NewUserHandler(svc, CookieConfig{})

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	req = withUserID(req, testUserID)
	w := httptest.NewRecorder()

	h.Withdraw(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	if c := findCookie(resp, "access_token"); c != nil {
		t.Errorf("cookie must not be cleared on failure: %+v", c)
	}
	body := parseAPIErrorResponse(t, w)
	if strings.Contains(body.Error, "transaction") {
		t.Errorf("error message leaks internals: %q", body.Error)
	}
}

// --- GET /api/admin/users ---

func TestUserHandler_AdminListUsers(t *testing.T) {
	t.Run("admin", func(t *testing.T) {
		svc := &mockUserService{
			listAllFn: func(ctx context.Context, callerID string) ([]*model.User, error) {
				return []*model.User{testUser(), {ID: "ffffffffffffffffffffffff", Email: "b@example.com"}}, nil
			},
		}
		h := NewUserHandler(svc, CookieConfig{})

		req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
		req = withUserID(req, testUserID)
		w := httptest.NewRecorder()

		h.AdminListUsers(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var got struct {
			Users []adminUserResponse `json:"users"`
		}
		decodeJSON(t, w, &got)
		if len(got.Users) != 2 || got.Users[0].ID != testUserID || got.Users[0].CreatedAt.IsZero() {
			t.Errorf("users = %+v", got.Users)
		}
	})

	t.Run("non admin", func(t *testing.T) {
		svc := &mockUserService{
			listAllFn: func(ctx context.Context, callerID string) ([]*model.User, error) {
				return nil, model.NewForbiddenError()
			},
		}
		h := NewUserHandler(svc, CookieConfig{})

		req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
		req = withUserID(req, testUserID)
		w := httptest.NewRecorder()

		h.AdminListUsers(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}
