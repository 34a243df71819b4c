// Package auth はMicrosoft identity platformによるOAuth認証フローを提供する。
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// IdPの同意/リダイレクトフローは外部コラボレーターであり、
// 本システムは「ここへリダイレクトせよ」と「これがbearerトークンだ」
// という2つの事実のみを消費する。
type OAuthProvider interface {
	// AuthCodeURL はOAuth認証URLを生成する。
	AuthCodeURL(state string) string
	// Exchange は認可コードをbearerトークンに交換する。
	Exchange(ctx context.Context, code string) (string, error)
}

// MicrosoftOAuthConfig はMicrosoft OAuthプロバイダーの設定。
type MicrosoftOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Tenant はAzure ADテナント。個人・組織アカウント両対応の場合は"common"。
	Tenant string

	// テスト用にオーバーライド可能なエンドポイント
	Endpoint oauth2.Endpoint
}

// MicrosoftOAuthProvider はMicrosoft identity platformによる認可コードフローを提供する。
// トークン交換はサーバー間で行われ、bearerトークンがブラウザに直接渡ることはない。
type MicrosoftOAuthProvider struct {
	config    *oauth2.Config
	logoutURL string
}

// NewMicrosoftOAuthProvider はMicrosoftOAuthProviderを生成する。
// スコープにはGraphの/meとカテゴリ別連絡先の読み書きに必要な権限を含む。
func NewMicrosoftOAuthProvider(cfg MicrosoftOAuthConfig) *MicrosoftOAuthProvider {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		tenant := cfg.Tenant
		if tenant == "" {
			tenant = "common"
		}
		endpoint = microsoft.AzureADEndpoint(tenant)
	}

	return &MicrosoftOAuthProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "profile", "email", "User.Read", "Contacts.ReadWrite"},
			Endpoint:     endpoint,
		},
		logoutURL: strings.Replace(endpoint.AuthURL, "/authorize", "/logout", 1),
	}
}

// AuthCodeURL はMicrosoftの認証URLを生成する。
// stateはCSRF対策用で、コールバック時にCookieの値と照合される。
func (p *MicrosoftOAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange は認可コードをbearerトークンに交換する。
// トークンリフレッシュは行わない。期限切れは再ログインを強制する。
func (p *MicrosoftOAuthProvider) Exchange(ctx context.Context, code string) (string, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange oauth code: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}
	return token.AccessToken, nil
}

// NotifyLogout はIdPのログアウトエンドポイントへベストエフォートで通知する。
// 呼び出しの成否はローカルのセッション破棄に影響しない。
func (p *MicrosoftOAuthProvider) NotifyLogout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.logoutURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create logout request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	defer resp.Body.Close()

	// どのレスポンスも受け入れる
	return nil
}

// compile-time interface check
var _ OAuthProvider = (*MicrosoftOAuthProvider)(nil)
