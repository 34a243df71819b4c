// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/kfujimura/contactdesk/internal/model"
)

// SessionRepository はセッション（トークンストア）の永続化インターフェース。
// セッション行がbearerトークンの唯一の保存場所であり、
// 書き込みは行単位でアトミックに行われる。
type SessionRepository interface {
	// Create はセッションを作成する。トークンはこの時点で保存される。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// MarkAuthenticated は生存確認に成功したセッションを認証済みに更新し、
	// 取得したユーザー情報をキャッシュする。
	MarkAuthenticated(ctx context.Context, id string, ident model.Identity) error

	// DeleteByID は指定IDのセッションを削除する。トークンも同時に破棄される。
	// 対象が存在しない場合でもエラーにならない（冪等）。
	DeleteByID(ctx context.Context, id string) error
}

// MergeResultRepository はマージ結果の永続化インターフェース。
type MergeResultRepository interface {
	// Replace は正規化カテゴリキー配下の統合レコードセット全体を
	// 単一トランザクションで置き換える（last merge wins）。
	// 部分的な書き込みは残らない。
	Replace(ctx context.Context, result *model.MergeResult) error

	// FindByCategoryKey は正規化カテゴリキーでマージ結果を取得する。
	// 見つからない場合はnilを返す。
	FindByCategoryKey(ctx context.Context, key string) (*model.MergeResult, error)
}

// PublishReceiptRepository はOutlookカテゴリ公開履歴の永続化インターフェース。
type PublishReceiptRepository interface {
	// Create は公開履歴を作成する。
	Create(ctx context.Context, receipt *model.PublishReceipt) error
}
