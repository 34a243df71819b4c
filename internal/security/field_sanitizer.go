// Package security はアプリケーションのセキュリティ機能を提供する。
//
// FieldSanitizerService はアップロードされた名簿ファイル由来の文字列を
// サニタイズする。名簿ファイルは信頼できない入力であり、値はそのまま
// CSVエクスポートやOutlookへの公開に再利用されるため、保存前に
// マークアップを除去する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// FieldSanitizerService は名簿フィールドのサニタイズ機能のインターフェースを定義する。
type FieldSanitizerService interface {
	// Sanitize は入力文字列からすべてのHTMLタグを除去し、前後の空白をtrimして返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// fieldSanitizer はFieldSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type fieldSanitizer struct {
	policy *bluemonday.Policy
}

// NewFieldSanitizer はFieldSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはすべてのタグと属性を除去する。名簿の表示名やメールアドレスに
// マークアップが現れることは正当なケースでは有り得ない。
func NewFieldSanitizer() *fieldSanitizer {
	return &fieldSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力文字列からすべてのHTMLタグを除去して返す。
func (s *fieldSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
