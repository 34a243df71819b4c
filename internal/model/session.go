// Package model はドメインモデルを定義する。
package model

import "time"

// SessionStatus はセッションの認証状態を表す。
// 状態遷移はsessionパッケージのTransitionのみが行う。
type SessionStatus string

const (
	// StatusUnauthenticated は未認証状態。トークンを保持しない初期状態。
	StatusUnauthenticated SessionStatus = "unauthenticated"
	// StatusPendingCallback はIdPへのリダイレクト後、コールバック待ちの状態。
	StatusPendingCallback SessionStatus = "pending_callback"
	// StatusValidating はトークンを保持し、/meによる生存確認中の状態。
	StatusValidating SessionStatus = "validating"
	// StatusAuthenticated は生存確認済みの認証完了状態。
	StatusAuthenticated SessionStatus = "authenticated"
)

// Session はログインセッションを表す。
// Microsoftのbearerトークンをセッションごとに1つだけ保持する。
// トークンの書き込み（コールバック時の保存、ログアウト/失効時の破棄）は
// SessionRepositoryを通じて行単位でアトミックに行われる。
type Session struct {
	ID          string
	AccessToken string
	Status      SessionStatus
	DisplayName string
	Mail        string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Identity は/meエンドポイントから取得した最小限のユーザー情報を表す。
// 認証完了時にセッションへキャッシュされる。
type Identity struct {
	DisplayName string
	Mail        string
}
