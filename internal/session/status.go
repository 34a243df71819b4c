// Package session はセッションライフサイクルの状態機械を提供する。
// 状態はmodel.SessionStatusのタグ付き列挙で表現され、遷移の合法性は
// このファイルの単一の遷移関数のみが判定する。
package session

import "github.com/kfujimura/contactdesk/internal/model"

// CanTransition はfromからtoへの状態遷移が合法かどうかを判定する純粋関数。
//
// 合法な遷移:
//
//	unauthenticated  → pending_callback  ログイン開始（IdPへのリダイレクト）
//	pending_callback → validating        コールバックでトークンを取得
//	pending_callback → unauthenticated   コールバックにトークンがない
//	validating       → authenticated     /meによる生存確認に成功
//	validating       → unauthenticated   生存確認の失敗（トークン破棄）
//	authenticated    → unauthenticated   ログアウトまたはトークン失効
//
// これ以外の遷移はすべて不正。特にvalidatingを経ずにauthenticatedへ
// 到達する遷移は存在しない（トークンの有効性は常に生存呼び出しで確認される）。
func CanTransition(from, to model.SessionStatus) bool {
	switch from {
	case model.StatusUnauthenticated:
		return to == model.StatusPendingCallback
	case model.StatusPendingCallback:
		return to == model.StatusValidating || to == model.StatusUnauthenticated
	case model.StatusValidating:
		return to == model.StatusAuthenticated || to == model.StatusUnauthenticated
	case model.StatusAuthenticated:
		return to == model.StatusUnauthenticated
	default:
		return false
	}
}
