// Package graph はMicrosoft Graph API（上位の連絡先プロバイダー）のクライアントを提供する。
// 生存確認（/me）、カテゴリ別連絡先の取得、統合レコードのカテゴリ公開を担う。
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kfujimura/contactdesk/internal/model"
)

const (
	// defaultBaseURL はMicrosoft Graph APIのベースURL。
	defaultBaseURL = "https://graph.microsoft.com/v1.0"
	// contactsPageSize は連絡先取得の1ページあたりの件数。
	contactsPageSize = 200
)

// CallRecorder はGraph呼び出しのステータスとレイテンシを計測するインターフェース。
type CallRecorder interface {
	RecordGraphStatus(statusCode int)
	RecordGraphLatency(d time.Duration)
}

// Client はMicrosoft Graph APIのクライアント。
// トークンの有効性は常にAPI呼び出しの結果で判定され、ローカルの
// トークン保持だけでアクセスが許可されることはない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にエンドポイントを差し替え可能
	metrics    CallRecorder
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientには呼び出し上限のタイムアウトを設定したクライアントを渡すこと。
// metricsはnilでもよい。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string, metrics CallRecorder) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		metrics:    metrics,
	}
}

// graphIdentity は/meエンドポイントのレスポンス。
type graphIdentity struct {
	DisplayName string `json:"displayName"`
	Mail        string `json:"mail"`
}

// graphContact はGraphの連絡先リソースのうち本システムが利用するフィールド。
type graphContact struct {
	ID             string   `json:"id"`
	GivenName      string   `json:"givenName"`
	Surname        string   `json:"surname"`
	EmailAddresses []struct {
		Address string `json:"address"`
	} `json:"emailAddresses"`
	BusinessPhones []string `json:"businessPhones"`
	CompanyName    string   `json:"companyName"`
	Categories     []string `json:"categories"`
}

// graphContactsPage は連絡先一覧のレスポンスページ。
type graphContactsPage struct {
	Value    []graphContact `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

// GetIdentity は/meを呼び出してトークンの生存確認を行う。
// 2xxの場合のみ最小限のユーザー情報を返す。401はAuthExpiredとして返し、
// 呼び出し元がセッションを降格させる。
func (c *Client) GetIdentity(ctx context.Context, token string) (*model.Identity, error) {
	body, err := c.get(ctx, c.baseURL+"/me", token)
	if err != nil {
		return nil, err
	}

	var ident graphIdentity
	if err := json.Unmarshal(body, &ident); err != nil {
		return nil, model.NewUpstreamError("レスポンスの解析に失敗しました")
	}

	return &model.Identity{
		DisplayName: ident.DisplayName,
		Mail:        ident.Mail,
	}, nil
}

// ContactsByCategory は連絡先をページネーションで全件取得し、
// カテゴリ名でグルーピングして返す。カテゴリ未設定の連絡先は含めない。
// グルーピングは取得のたびに再構築されるスナップショットで、共有状態を持たない。
func (c *Client) ContactsByCategory(ctx context.Context, token string) (map[string][]model.Contact, error) {
	grouped := make(map[string][]model.Contact)

	next := fmt.Sprintf("%s/me/contacts?$top=%d", c.baseURL, contactsPageSize)
	for next != "" {
		body, err := c.get(ctx, next, token)
		if err != nil {
			return nil, err
		}

		var page graphContactsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, model.NewUpstreamError("連絡先レスポンスの解析に失敗しました")
		}

		for _, gc := range page.Value {
			contact := toContact(gc)
			for _, cat := range gc.Categories {
				grouped[cat] = append(grouped[cat], contact)
			}
		}

		next = page.NextLink
	}

	return grouped, nil
}

// PublishCategory は統合レコードをOutlookのマスターカテゴリと連絡先として公開する。
// カテゴリ作成後、レコードごとに連絡先を作成し、作成できた件数を返す。
// 途中で認証エラーが発生した場合は即座に中断する。
func (c *Client) PublishCategory(ctx context.Context, token, categoryName string, records []model.UnifiedRecord) (int, error) {
	payload := map[string]string{
		"displayName": categoryName,
		"color":       "preset0",
	}
	if err := c.post(ctx, c.baseURL+"/me/outlook/masterCategories", token, payload); err != nil {
		// 同名カテゴリが既に存在する場合、Graphは409を返す。公開は続行する。
		apiErr, ok := err.(*model.APIError)
		if !ok || apiErr.Category == "auth" {
			return 0, err
		}
		c.logger.Warn("master category creation failed, continuing with contacts",
			slog.String("category", categoryName),
			slog.String("error", err.Error()),
		)
	}

	created := 0
	for _, rec := range records {
		contact := map[string]any{
			"givenName":  rec.Name,
			"categories": []string{categoryName},
			"emailAddresses": []map[string]string{
				{"address": rec.Email},
			},
		}
		if err := c.post(ctx, c.baseURL+"/me/contacts", token, contact); err != nil {
			if model.IsAuthError(err) {
				return created, err
			}
			c.logger.Error("contact creation failed",
				slog.String("category", categoryName),
				slog.String("email", rec.Email),
				slog.String("error", err.Error()),
			)
			return created, err
		}
		created++
	}

	return created, nil
}

// get はbearerトークン付きGETを実行し、2xxの場合のみボディを返す。
func (c *Client) get(ctx context.Context, url, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, model.NewUpstreamError(err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

// post はbearerトークン付きPOSTを実行する。2xx以外はエラー。
func (c *Client) post(ctx context.Context, url, token string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return model.NewUpstreamError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return model.NewUpstreamError(err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req)
	return err
}

// do はHTTPリクエストを実行し、ステータスをエラー分類に変換する。
// 401/403はAuthExpired、その他の非2xxとネットワーク失敗はUpstreamとして扱う。
func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.RecordGraphLatency(time.Since(start))
	}
	if err != nil {
		c.logger.Error("graph request failed",
			slog.String("url", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamError(err.Error())
	}
	defer resp.Body.Close()
	if c.metrics != nil {
		c.metrics.RecordGraphStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewUpstreamError("レスポンスボディの読み取りに失敗しました")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, model.NewAuthExpiredError()
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.logger.Error("graph returned error status",
			slog.String("url", req.URL.Path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewUpstreamError(fmt.Sprintf("status %d", resp.StatusCode))
	}

	return body, nil
}

// toContact はGraphの連絡先リソースをドメインモデルへ正規化する。
func toContact(gc graphContact) model.Contact {
	emails := make([]string, 0, len(gc.EmailAddresses))
	for _, e := range gc.EmailAddresses {
		if e.Address != "" {
			emails = append(emails, e.Address)
		}
	}

	return model.Contact{
		ID:        gc.ID,
		GivenName: gc.GivenName,
		Surname:   gc.Surname,
		Emails:    emails,
		Phones:    gc.BusinessPhones,
		Company:   gc.CompanyName,
	}
}
