// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/kfujimura/contactdesk/internal/middleware"
	"github.com/kfujimura/contactdesk/internal/model"
)

const oauthStateCookie = "oauth_state"

// SessionControllerInterface は認証ハンドラーが必要とするセッション操作のインターフェース。
type SessionControllerInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	Current(ctx context.Context, sessionID string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// LoginRecorder はログイン試行の計測インターフェース。
type LoginRecorder interface {
	RecordLogin(success bool)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendBaseURL string
	CookieSecure    bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	controller SessionControllerInterface
	metrics    LoginRecorder
	config     AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(controller SessionControllerInterface, metrics LoginRecorder, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		controller: controller,
		metrics:    metrics,
		config:     config,
	}
}

// Login はMicrosoft OAuthフローを開始する。
// GET /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.controller.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// 認証結果の成否にかかわらずフロントエンドのトークン受け取りページへリダイレクトする。
// 成功時はクエリにbearerトークン、失敗時はエラーコードを載せる。
// GET /auth/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		h.metrics.RecordLogin(false)
		h.redirectWithError(w, r)
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得と認証処理
	session, err := h.controller.HandleCallback(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		h.metrics.RecordLogin(false)
		h.redirectWithError(w, r)
		return
	}

	// 3. フロントエンドへトークンを引き渡す
	h.metrics.RecordLogin(true)
	target := h.config.FrontendBaseURL + "/token-callback?token=" + url.QueryEscape(session.ID)
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// redirectWithError はログイン失敗をフロントエンドへ通知するリダイレクトを返す。
func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request) {
	target := h.config.FrontendBaseURL + "/token-callback?error=login_failed"
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。
// 上位プロバイダーへの通知が失敗してもローカルのセッション削除は必ず実行されるため、
// トークンさえ提示されれば常に204を返す。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token != "" {
		if err := h.controller.Logout(r.Context(), token); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// セッションミドルウェアの背後に配置される。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"displayName": sess.DisplayName,
		"mail":        sess.Mail,
		"status":      sess.Status,
		"expiresAt":   sess.ExpiresAt,
	})
}

// SessionCheck はトークンの有効性を確認する軽量エンドポイント。
// 無効なトークンでも401ではなくauthenticated:falseを返すため、
// フロントエンドは起動時の状態復元に使える。
// GET /auth/session
func (h *AuthHandler) SessionCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	token := middleware.BearerToken(r)
	if token == "" {
		json.NewEncoder(w).Encode(map[string]any{"authenticated": false})
		return
	}

	sess, err := h.controller.Current(r.Context(), token)
	if err != nil || sess.Status != model.StatusAuthenticated {
		json.NewEncoder(w).Encode(map[string]any{"authenticated": false})
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"authenticated": true,
		"status":        sess.Status,
		"expiresAt":     sess.ExpiresAt,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
