// Package model はドメインモデルを定義する。
package model

// Category はOutlookカテゴリ（連絡先のグルーピング）を表す。
// 上位プロバイダーにカテゴリ固有のIDは存在しないため、IDとNameは同一の文字列。
// ディレクトリ取得のたびに再構築される読み取り専用の投影。
type Category struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContactCount int    `json:"count"`
	Color        string `json:"color"`
}

// Contact はOutlook連絡先を表す。
// 単一カテゴリ表示の間だけ保持され、カテゴリをまたいでキャッシュされない。
type Contact struct {
	ID         string   `json:"id"`
	GivenName  string   `json:"givenName"`
	Surname    string   `json:"surname"`
	Emails     []string `json:"emails"`
	Phones     []string `json:"phones"`
	Company    string   `json:"company,omitempty"`
}

// PrimaryEmail は連絡先の先頭メールアドレスを返す。未設定の場合は空文字列。
func (c *Contact) PrimaryEmail() string {
	if len(c.Emails) == 0 {
		return ""
	}
	return c.Emails[0]
}
