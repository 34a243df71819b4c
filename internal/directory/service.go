// Package directory はOutlook連絡先のカテゴリディレクトリ投影を提供する。
package directory

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/kfujimura/contactdesk/internal/model"
)

// palette はカテゴリ表示色。カテゴリの表示順に基づいて循環的に割り当てる。
var palette = []string{"blue", "green", "yellow", "red"}

// ContactSource はカテゴリ別連絡先の取得元。
type ContactSource interface {
	// ContactsByCategory はカテゴリ名をキーとした連絡先一覧を返す。
	// カテゴリ未設定の連絡先は含まれない。
	ContactsByCategory(ctx context.Context, token string) (map[string][]model.Contact, error)
}

// Service はカテゴリディレクトリの読み取り専用ビューを構築する。
// 投影は呼び出しのたびに上位プロバイダーから再構築され、キャッシュしない。
type Service struct {
	source ContactSource
	logger *slog.Logger
}

// NewService はServiceを生成する。
func NewService(source ContactSource, logger *slog.Logger) *Service {
	return &Service{
		source: source,
		logger: logger,
	}
}

// ListCategories はカテゴリ一覧を名前順で返す。
// 各カテゴリの色は表示順（名前順の序数）から決定されるため、
// 同じカテゴリ集合に対して常に同じ色が割り当てられる。
// 取得に失敗した場合は空のスライスとエラーを返す。
func (s *Service) ListCategories(ctx context.Context, token string) ([]model.Category, error) {
	grouped, err := s.source.ContactsByCategory(ctx, token)
	if err != nil {
		s.logger.Warn("カテゴリ一覧の取得に失敗", "error", err)
		return []model.Category{}, err
	}

	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make([]model.Category, 0, len(names))
	for i, name := range names {
		categories = append(categories, model.Category{
			ID:           name,
			Name:         name,
			ContactCount: len(grouped[name]),
			Color:        palette[i%len(palette)],
		})
	}
	return categories, nil
}

// ListContacts は指定カテゴリの連絡先一覧を返す。
// カテゴリが存在しない場合は空のスライスを返す（エラーではない）。
func (s *Service) ListContacts(ctx context.Context, token, categoryName string) ([]model.Contact, error) {
	grouped, err := s.source.ContactsByCategory(ctx, token)
	if err != nil {
		s.logger.Warn("連絡先一覧の取得に失敗", "category", categoryName, "error", err)
		return []model.Contact{}, err
	}

	contacts, ok := grouped[categoryName]
	if !ok {
		return []model.Contact{}, nil
	}
	return contacts, nil
}

// Search は指定カテゴリ内の連絡先を検索語で絞り込む。
// 検索語が空の場合は全件を返す。照合は名・姓・先頭メールアドレスに対する
// 大文字小文字を無視した部分一致で、取得済みデータに対する純粋なフィルタ。
func (s *Service) Search(ctx context.Context, token, categoryName, term string) ([]model.Contact, error) {
	contacts, err := s.ListContacts(ctx, token, categoryName)
	if err != nil {
		return []model.Contact{}, err
	}
	return Filter(contacts, term), nil
}

// Filter は連絡先一覧を検索語で絞り込む純粋関数。入力のスライスは変更しない。
func Filter(contacts []model.Contact, term string) []model.Contact {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return contacts
	}

	matched := make([]model.Contact, 0, len(contacts))
	for _, c := range contacts {
		if strings.Contains(strings.ToLower(c.GivenName), term) ||
			strings.Contains(strings.ToLower(c.Surname), term) ||
			strings.Contains(strings.ToLower(c.PrimaryEmail()), term) {
			matched = append(matched, c)
		}
	}
	return matched
}
