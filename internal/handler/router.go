package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kfujimura/contactdesk/internal/metrics"
	"github.com/kfujimura/contactdesk/internal/middleware"
	"github.com/kfujimura/contactdesk/internal/repository"
)

// HealthChecker はDB接続の死活確認インターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 認証
	SessionController  SessionControllerInterface
	SessionInvalidator SessionInvalidator
	AuthConfig         AuthHandlerConfig

	// ディレクトリと公開
	Directory DirectoryServiceInterface
	Publisher CategoryPublisher
	Receipts  repository.PublishReceiptRepository

	// マージ
	MergeEngine MergeEngineInterface

	// 計測
	Metrics metrics.MetricsCollector
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → SessionMiddleware → RateLimit(General)
//
// 認証ルート（/auth/*）とヘルスチェックはセッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.SessionController, deps.Metrics, deps.AuthConfig)
	categoryHandler := NewCategoryHandler(deps.Directory, deps.Publisher, deps.MergeEngine, deps.Receipts, deps.Metrics, deps.SessionInvalidator)
	mergeHandler := NewMergeHandler(deps.MergeEngine, deps.Metrics)

	// --- 認証不要のルート ---

	r.Get("/health", newHealthHandler(deps.HealthChecker))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/session", authHandler.SessionCheck)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/auth/me", authHandler.Me)

		// カテゴリディレクトリ
		r.Route("/api/categories", func(r chi.Router) {
			r.Get("/", categoryHandler.ListCategories)
			r.Post("/publish", categoryHandler.Publish)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/contacts", categoryHandler.ListContacts)
				r.Get("/export", categoryHandler.ExportContacts)
			})
		})

		// 名簿マージ
		r.Route("/api/merge", func(r chi.Router) {
			// POST /api/merge - マージ実行（専用レート制限を追加）
			r.With(deps.RateLimiter.MergeMiddleware()).Post("/", mergeHandler.Merge)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", mergeHandler.Get)
				r.Get("/export", mergeHandler.Export)
			})
		})
	})

	return r
}

// newHealthHandler は死活監視用のエンドポイントを返す。
// DB接続が確認できない場合は503を返す。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}
