package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kfujimura/contactdesk/internal/model"
)

// --- モック定義 ---

type mockSessionController struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	currentFn        func(ctx context.Context, sessionID string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	invalidated      []string
}

func (m *mockSessionController) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "https://login.microsoftonline.com/common/oauth2/v2.0/authorize?state=" + state
}

func (m *mockSessionController) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return &model.Session{ID: "session-id-1", Status: model.StatusAuthenticated}, nil
}

func (m *mockSessionController) Current(ctx context.Context, sessionID string) (*model.Session, error) {
	if m.currentFn != nil {
		return m.currentFn(ctx, sessionID)
	}
	return nil, model.NewAuthRequiredError()
}

func (m *mockSessionController) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockSessionController) Invalidate(ctx context.Context, sessionID string) {
	m.invalidated = append(m.invalidated, sessionID)
}

type mockLoginRecorder struct {
	results []bool
}

func (m *mockLoginRecorder) RecordLogin(success bool) {
	m.results = append(m.results, success)
}

// --- compile-time interface checks ---
var _ SessionControllerInterface = (*mockSessionController)(nil)
var _ LoginRecorder = (*mockLoginRecorder)(nil)

func newTestAuthHandler(controller SessionControllerInterface) *AuthHandler {
	return NewAuthHandler(controller, &mockLoginRecorder{}, AuthHandlerConfig{
		FrontendBaseURL: "http://localhost:3000",
	})
}

// --- テスト ---

func TestLogin_SetsStateCookieAndRedirects(t *testing.T) {
	h := newTestAuthHandler(&mockSessionController{})

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	w := httptest.NewRecorder()
	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}

	var stateCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == oauthStateCookie {
			stateCookie = c
		}
	}
	if stateCookie == nil {
		t.Fatal("oauth_state cookie should be set")
	}
	if !stateCookie.HttpOnly {
		t.Error("state cookie must be HttpOnly")
	}

	location := resp.Header.Get("Location")
	if !strings.Contains(location, "state="+stateCookie.Value) {
		t.Errorf("redirect %q should carry the state from the cookie", location)
	}
}

func TestCallback_Success_RedirectsWithToken(t *testing.T) {
	metrics := &mockLoginRecorder{}
	h := NewAuthHandler(&mockSessionController{}, metrics, AuthHandlerConfig{
		FrontendBaseURL: "http://localhost:3000",
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=auth-code&state=state-1", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-1"})
	w := httptest.NewRecorder()
	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	location := resp.Header.Get("Location")
	want := "http://localhost:3000/token-callback?token=session-id-1"
	if location != want {
		t.Errorf("redirect = %q, want %q", location, want)
	}
	if len(metrics.results) != 1 || !metrics.results[0] {
		t.Errorf("login metrics = %v, want [true]", metrics.results)
	}
}

func TestCallback_StateMismatch_RedirectsWithError(t *testing.T) {
	h := newTestAuthHandler(&mockSessionController{})

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=auth-code&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-1"})
	w := httptest.NewRecorder()
	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	location := resp.Header.Get("Location")
	if !strings.Contains(location, "error=login_failed") {
		t.Errorf("redirect = %q, want error=login_failed", location)
	}
	if strings.Contains(location, "token=") {
		t.Errorf("redirect %q must not carry a token", location)
	}
}

func TestCallback_MissingStateCookie_RedirectsWithError(t *testing.T) {
	h := newTestAuthHandler(&mockSessionController{})

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=auth-code&state=state-1", nil)
	w := httptest.NewRecorder()
	h.Callback(w, req)

	location := w.Result().Header.Get("Location")
	if !strings.Contains(location, "error=login_failed") {
		t.Errorf("redirect = %q, want error=login_failed", location)
	}
}

func TestCallback_ControllerFails_RedirectsWithError(t *testing.T) {
	controller := &mockSessionController{
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			return nil, model.NewLoginFailedError()
		},
	}
	h := newTestAuthHandler(controller)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=bad-code&state=state-1", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-1"})
	w := httptest.NewRecorder()
	h.Callback(w, req)

	location := w.Result().Header.Get("Location")
	if !strings.Contains(location, "error=login_failed") {
		t.Errorf("redirect = %q, want error=login_failed", location)
	}
}

func TestLogout_WithToken_ReturnsNoContent(t *testing.T) {
	var loggedOut string
	controller := &mockSessionController{
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOut = sessionID
			return nil
		},
	}
	h := newTestAuthHandler(controller)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer session-id-1")
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if loggedOut != "session-id-1" {
		t.Errorf("logged out session = %q, want %q", loggedOut, "session-id-1")
	}
}

func TestLogout_WithoutToken_StillNoContent(t *testing.T) {
	h := newTestAuthHandler(&mockSessionController{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestSessionCheck_InvalidToken_ReturnsUnauthenticated(t *testing.T) {
	h := newTestAuthHandler(&mockSessionController{
		currentFn: func(ctx context.Context, sessionID string) (*model.Session, error) {
			return nil, model.NewAuthExpiredError()
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", "Bearer expired")
	w := httptest.NewRecorder()
	h.SessionCheck(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (invalid token is not an error here)", w.Code, http.StatusOK)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["authenticated"] != false {
		t.Errorf("authenticated = %v, want false", body["authenticated"])
	}
}

func TestSessionCheck_ValidToken_ReturnsAuthenticated(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	h := newTestAuthHandler(&mockSessionController{
		currentFn: func(ctx context.Context, sessionID string) (*model.Session, error) {
			return &model.Session{
				ID:        sessionID,
				Status:    model.StatusAuthenticated,
				ExpiresAt: expires,
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", "Bearer session-id-1")
	w := httptest.NewRecorder()
	h.SessionCheck(w, req)

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["authenticated"] != true {
		t.Errorf("authenticated = %v, want true", body["authenticated"])
	}
}
