package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kfujimura/contactdesk/internal/auth"
	"github.com/kfujimura/contactdesk/internal/model"
	"github.com/kfujimura/contactdesk/internal/repository"
)

// IdentityProber はbearerトークンの生存確認のインターフェース。
// graph.Clientの部分集合として定義する。
type IdentityProber interface {
	GetIdentity(ctx context.Context, token string) (*model.Identity, error)
}

// LogoutNotifier は上位へのログアウト通知のインターフェース。
// 通知はベストエフォートで、結果はローカルの状態に影響しない。
type LogoutNotifier interface {
	NotifyLogout(ctx context.Context) error
}

// ValidationRecorder は生存確認の結果を計測するインターフェース。
type ValidationRecorder interface {
	RecordSessionValidation(success bool)
}

// ControllerConfig はControllerの設定。
type ControllerConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	// LogoutTimeout はリモートログアウト通知の上限時間。ゼロ値は10秒。
	LogoutTimeout time.Duration
}

// Controller はセッションライフサイクルの唯一の所有者。
// 「認証済みエンドポイントを呼んでよいか」という問いへの唯一の回答者であり、
// Session.Statusの遷移はすべてこの型を経由する。
type Controller struct {
	provider auth.OAuthProvider
	prober   IdentityProber
	notifier LogoutNotifier
	repo     repository.SessionRepository
	metrics  ValidationRecorder
	config   ControllerConfig

	// validations は同一セッションに対する生存確認を合流させる。
	// 複数コンポーネントが同時に認証確認を起動しても、実際の/me呼び出しは
	// セッションあたり常に1つで、後続の呼び出しは勝者の結果を受け取る。
	validations singleflight.Group
}

// NewController はControllerを生成する。notifierとmetricsはnilでもよい。
func NewController(
	provider auth.OAuthProvider,
	prober IdentityProber,
	notifier LogoutNotifier,
	repo repository.SessionRepository,
	metrics ValidationRecorder,
	config ControllerConfig,
) *Controller {
	if config.LogoutTimeout == 0 {
		config.LogoutTimeout = 10 * time.Second
	}
	return &Controller{
		provider: provider,
		prober:   prober,
		notifier: notifier,
		repo:     repo,
		metrics:  metrics,
		config:   config,
	}
}

// recordValidation はmetricsがnilでないときだけ結果を記録する。
func (c *Controller) recordValidation(success bool) {
	if c.metrics != nil {
		c.metrics.RecordSessionValidation(success)
	}
}

// GetLoginURL はIdPの認証URLを生成する。
// この呼び出し以降、クライアントはpending_callback相当の状態になる。
func (c *Controller) GetLoginURL(state string) string {
	return c.provider.AuthCodeURL(state)
}

// HandleCallback はOAuthコールバックを処理する。
// 認可コードをトークンに交換して保存し（validating）、直ちに/meによる
// 生存確認を行う。確認に成功した場合のみ認証済みセッションを返す。
// トークンが得られない場合はセッションを作らずLoginFailedを返す
// （pending_callback → unauthenticated）。
func (c *Controller) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if code == "" {
		return nil, model.NewLoginFailedError()
	}

	// 1. 認可コードをbearerトークンに交換
	token, err := c.provider.Exchange(ctx, code)
	if err != nil {
		slog.Warn("oauth code exchange failed", slog.String("error", err.Error()))
		return nil, model.NewLoginFailedError()
	}

	// 2. トークンを保存し、validating状態のセッションを作成
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	sess := &model.Session{
		ID:          sessionID,
		AccessToken: token,
		Status:      model.StatusValidating,
		ExpiresAt:   now.Add(time.Duration(c.config.SessionMaxAge) * time.Second),
		CreatedAt:   now,
	}
	if err := c.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	// 3. 生存確認。失敗時はトークンごとセッションが破棄される。
	validated, err := c.Validate(ctx, sessionID)
	if err != nil {
		return nil, model.NewLoginFailedError()
	}

	slog.Info("session authenticated",
		slog.String("session_id", sessionID),
		slog.String("mail", validated.Mail),
	)
	return validated, nil
}

// Validate は保存済みトークンの生存確認を行う。
// ローカルにトークンが存在することはvalidatingを試みる根拠にしかならず、
// アクセスを許可するのは常に/me呼び出しの2xxのみ。
// 確認失敗（非2xx、ネットワーク障害、タイムアウト）はトークンを破棄して
// unauthenticatedへ降格する。
// 同一セッションへの並行呼び出しはsingleflightで合流される。
func (c *Controller) Validate(ctx context.Context, sessionID string) (*model.Session, error) {
	v, err, _ := c.validations.Do(sessionID, func() (any, error) {
		return c.validate(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Session), nil
}

// validate は生存確認の本体。singleflight配下でのみ呼ばれる。
func (c *Controller) validate(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, err := c.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if sess == nil {
		return nil, model.NewAuthRequiredError()
	}

	// 既に別の検証が完了している場合は再度の生存呼び出しは行わない。
	// authenticatedに到達した事実そのものが過去の2xxの証明になっている。
	if sess.Status == model.StatusAuthenticated {
		return sess, nil
	}

	if !CanTransition(sess.Status, model.StatusAuthenticated) {
		return nil, model.NewAuthRequiredError()
	}

	ident, probeErr := c.prober.GetIdentity(ctx, sess.AccessToken)
	if probeErr != nil {
		// キャンセル済みのリクエストから状態を書き換えない
		if ctx.Err() != nil {
			return nil, probeErr
		}
		// validating → unauthenticated。トークンは残さない。
		if delErr := c.repo.DeleteByID(ctx, sessionID); delErr != nil {
			slog.Error("failed to delete session after validation failure",
				slog.String("session_id", sessionID),
				slog.String("error", delErr.Error()),
			)
		}
		slog.Warn("session validation failed",
			slog.String("session_id", sessionID),
			slog.String("error", probeErr.Error()),
		)
		c.recordValidation(false)
		return nil, model.NewAuthExpiredError()
	}

	if err := c.repo.MarkAuthenticated(ctx, sessionID, *ident); err != nil {
		return nil, fmt.Errorf("failed to mark session authenticated: %w", err)
	}

	c.recordValidation(true)
	sess.Status = model.StatusAuthenticated
	sess.DisplayName = ident.DisplayName
	sess.Mail = ident.Mail
	return sess, nil
}

// Current は現在のセッションを解決する。
// validating状態のセッションは生存確認を経てから返される。
func (c *Controller) Current(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, model.NewAuthRequiredError()
	}

	sess, err := c.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if sess == nil {
		return nil, model.NewAuthRequiredError()
	}

	if sess.Status != model.StatusAuthenticated {
		return c.Validate(ctx, sessionID)
	}
	return sess, nil
}

// Invalidate は認証済みの呼び出しがトークン失効を検出した際の降格処理。
// 生存確認失敗と同一の扱いで、トークンを破棄してunauthenticatedへ遷移させる。
func (c *Controller) Invalidate(ctx context.Context, sessionID string) {
	if err := c.repo.DeleteByID(ctx, sessionID); err != nil {
		slog.Error("failed to invalidate session",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}

// Logout はセッションを終了する。
// リモート通知はベストエフォート（上限時間つき、結果は無視）だが、
// ローカルのトークン破棄は通知の成否にかかわらず必ず行われる。
// 失効したトークンを残す方がリモートセッションの残留より害が大きい。
// 未知のセッションIDに対しては何も起こさず成功を返す。任意のbearer文字列で
// リモート通知を誘発させないため。
func (c *Controller) Logout(ctx context.Context, sessionID string) error {
	sess, err := c.repo.FindByID(context.WithoutCancel(ctx), sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if sess == nil {
		return nil
	}

	if c.notifier != nil {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.LogoutTimeout)
		if err := c.notifier.NotifyLogout(notifyCtx); err != nil {
			slog.Warn("remote logout notification failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}

	// リクエストのキャンセルでローカル破棄が飛ばされないようにする
	if err := c.repo.DeleteByID(context.WithoutCancel(ctx), sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
// このIDがクライアントに渡るbearerトークンとなり、Microsoftの
// アクセストークン自体はサーバーの外に出ない。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
