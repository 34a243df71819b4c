// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, roster, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// IsAuthError は認証カテゴリのAPIErrorかどうかを判定する。
// 認証エラーは常にセッションの降格（再ログイン強制）として扱われる。
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category == "auth"
	}
	return false
}

// 定義済みエラーコード
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeAuthRequired  = "AUTH_REQUIRED"
	ErrCodeAuthExpired   = "AUTH_EXPIRED"
	ErrCodeLoginFailed   = "LOGIN_FAILED"
	ErrCodeFormat        = "FORMAT_ERROR"
	ErrCodePersistence   = "PERSISTENCE_ERROR"
	ErrCodeUpstream      = "UPSTREAM_ERROR"
	ErrCodeMergeNotFound = "MERGE_NOT_FOUND"
)

// NewValidationError は入力検証エラーを生成する。
// リモート呼び出しの前に検出され、セッション状態を変更しない。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewAuthRequiredError は未認証エラーを生成する。
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "Microsoftアカウントでログインしてください。",
	}
}

// NewAuthExpiredError はトークン失効エラーを生成する。
// このエラーは常にセッションをunauthenticatedへ降格させる。
func NewAuthExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthExpired,
		Message:  "トークンが無効または期限切れです。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewLoginFailedError はOAuthコールバックでトークンを取得できなかった場合のエラーを生成する。
func NewLoginFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginFailed,
		Message:  "ログインに失敗しました。",
		Category: "auth",
		Action:   "再度ログインをお試しください。",
	}
}

// NewFormatError は名簿ファイルの解析失敗エラーを生成する。
func NewFormatError(filename string, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFormat,
		Message:  fmt.Sprintf("名簿ファイルを解析できませんでした: %s (%s)", filename, reason),
		Category: "roster",
		Action:   "CSVまたはExcel形式で、名前とメールアドレスの列を含むファイルを指定してください。",
	}
}

// NewPersistenceError はマージ結果の保存失敗エラーを生成する。
// マージは未完了として扱われ、再送信は置き換えセマンティクスにより安全。
func NewPersistenceError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePersistence,
		Message:  fmt.Sprintf("マージ結果の保存に失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度マージを実行してください。",
	}
}

// NewUpstreamError は上位プロバイダーへの接続失敗エラーを生成する。
func NewUpstreamError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  fmt.Sprintf("Outlookへの接続に失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewMergeNotFoundError は保存済みマージ結果が存在しない場合のエラーを生成する。
func NewMergeNotFoundError(categoryName string) *APIError {
	return &APIError{
		Code:     ErrCodeMergeNotFound,
		Message:  fmt.Sprintf("指定されたカテゴリのマージ結果が見つかりません: %s", categoryName),
		Category: "roster",
		Action:   "カテゴリ名を確認するか、先にマージを実行してください。",
	}
}
