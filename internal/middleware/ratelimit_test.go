package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kfujimura/contactdesk/internal/model"
)

func newTestRateLimiter(generalPerMinute, mergePerMinute int) *RateLimiter {
	config := NewRateLimiterConfig(generalPerMinute, mergePerMinute)
	config.CleanupInterval = time.Hour
	return NewRateLimiter(config)
}

func requestWithSession(sessionID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	sess := &model.Session{ID: sessionID, Status: model.StatusAuthenticated}
	return req.WithContext(ContextWithSession(req.Context(), sess))
}

func TestGeneralMiddleware_WithinBurst_Allows(t *testing.T) {
	rl := newTestRateLimiter(3, 1)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestWithSession("session-a"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}
}

func TestGeneralMiddleware_ExceedsBurst_Returns429(t *testing.T) {
	rl := newTestRateLimiter(2, 1)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestWithSession("session-a"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithSession("session-a"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}

func TestGeneralMiddleware_SessionsAreIndependent(t *testing.T) {
	rl := newTestRateLimiter(1, 1)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// session-aのバーストを使い切る
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithSession("session-a"))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithSession("session-a"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("session-a status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// session-bは影響を受けない
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithSession("session-b"))
	if w.Code != http.StatusOK {
		t.Errorf("session-b status = %d, want %d", w.Code, http.StatusOK)
	}

	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("GeneralLimiterCount() = %d, want 2", got)
	}
}

func TestMergeMiddleware_IndependentFromGeneral(t *testing.T) {
	rl := newTestRateLimiter(1, 1)
	defer rl.Stop()

	general := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	merge := rl.MergeMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// API全般のバーストを使い切ってもマージ側は独立に許可される
	w := httptest.NewRecorder()
	general.ServeHTTP(w, requestWithSession("session-a"))
	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestWithSession("session-a"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("general status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	w = httptest.NewRecorder()
	merge.ServeHTTP(w, requestWithSession("session-a"))
	if w.Code != http.StatusOK {
		t.Errorf("merge status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestGeneralMiddleware_NoSession_Returns401(t *testing.T) {
	rl := newTestRateLimiter(10, 10)
	defer rl.Stop()

	called := false
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if called {
		t.Error("next handler must not run without a session")
	}
}

func TestCleanup_RemovesStaleEntries(t *testing.T) {
	rl := newTestRateLimiter(10, 10)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithSession("session-a"))
	if got := rl.GeneralLimiterCount(); got != 1 {
		t.Fatalf("GeneralLimiterCount() = %d, want 1", got)
	}

	// 最終アクセスを過去に書き換えてクリーンアップ対象にする
	rl.generalMu.Lock()
	rl.generalLimiters["session-a"].lastAccess = time.Now().Add(-3 * time.Hour)
	rl.generalMu.Unlock()

	rl.cleanup()

	if got := rl.GeneralLimiterCount(); got != 0 {
		t.Errorf("GeneralLimiterCount() after cleanup = %d, want 0", got)
	}
}
