// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// RosterRecord は名簿ファイル1行分の生データを表す。
// マージ処理の間だけ存在する一時的な値で、永続化されない。
type RosterRecord struct {
	// IdentityKey は照合キー。通常はメールアドレスで、trim+小文字化済み。
	IdentityKey string
	// DisplayName は表示名。
	DisplayName string
	// Present はソース固有の在籍フラグ。行に否定的なステータスが
	// 明示されていない限りtrue。
	Present bool
}

// SourceAPresence はプラットフォームA（Moodle）側の在籍シグナルを表す。
type SourceAPresence string

const (
	// PresenceAPresent はプラットフォームAに在籍していることを示す。
	PresenceAPresent SourceAPresence = "Presente"
	// PresenceAAbsent はプラットフォームAに不在であることを示す。
	PresenceAAbsent SourceAPresence = "Ausente"
)

// SourceBPresence はプラットフォームB（Galileo）側の在籍シグナルを表す。
type SourceBPresence string

const (
	// PresenceBActive はプラットフォームBでアクティブであることを示す。
	PresenceBActive SourceBPresence = "Activo"
	// PresenceBInactive はプラットフォームBで非アクティブであることを示す。
	PresenceBInactive SourceBPresence = "Inactivo"
)

// MatchStatus は両ソースの在籍シグナルから導出されるマッチ分類を表す。
type MatchStatus string

const (
	// MatchUnified は両ソースに在籍し、統合済みであることを示す。
	MatchUnified MatchStatus = "Unificado"
	// MatchPending は片側の在籍しか確認できず、確認待ちであることを示す。
	MatchPending MatchStatus = "Pendiente"
	// MatchConflict は両ソースの在籍シグナルが矛盾していることを示す。
	MatchConflict MatchStatus = "Conflicto"
)

// Classify は両ソースの在籍シグナルからマッチ分類を導出する純粋関数。
// 分類規則:
//   - Presente × Activo   → Unificado
//   - Presente × Inactivo → Pendiente
//   - Ausente  × Activo   → Conflicto（シグナルの矛盾）
//   - Ausente  × Inactivo → Pendiente（矛盾はないが統合が確認できない）
func Classify(a SourceAPresence, b SourceBPresence) MatchStatus {
	switch {
	case a == PresenceAPresent && b == PresenceBActive:
		return MatchUnified
	case a == PresenceAAbsent && b == PresenceBActive:
		return MatchConflict
	default:
		return MatchPending
	}
}

// UnifiedRecord はマージ済みの学生1人分の統合レコードを表す。
// 生成後はイミュータブルで、同じカテゴリ名での再マージはセット全体を置き換える。
type UnifiedRecord struct {
	ID           string          `json:"id"`
	Name         string          `json:"nombre"`
	Email        string          `json:"email"`
	CategoryName string          `json:"curso"`
	PresenceA    SourceAPresence `json:"plataforma_a"`
	PresenceB    SourceBPresence `json:"plataforma_b"`
	Status       MatchStatus     `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// MergeResult はカテゴリ1件分のマージ結果を表す。
// 正規化カテゴリキーごとに保存され、再マージで全体が置き換わる。
type MergeResult struct {
	CategoryKey  string          `json:"-"`
	CategoryName string          `json:"categoryName"`
	Records      []UnifiedRecord `json:"records"`
	TotalRecords int             `json:"totalRecords"`
	CSVPath      string          `json:"csvPath"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// PublishReceipt はOutlookカテゴリとして公開した履歴を表す。
type PublishReceipt struct {
	ID            string    `json:"categoryId"`
	CategoryName  string    `json:"categoryName"`
	ContactCount  int       `json:"contactsCreated"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NormalizeCategoryKey はカテゴリ名を保存キーへ正規化する。
// 空白をアンダースコアに置換し小文字化する（元システムのキー規約を踏襲）。
func NormalizeCategoryKey(name string) string {
	key := strings.TrimSpace(name)
	key = strings.Join(strings.Fields(key), "_")
	return strings.ToLower(key)
}

// NormalizeIdentityKey は照合キーをtrim+小文字化で正規化する。
func NormalizeIdentityKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
