package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hitoshi/timecapsule/internal/model"
)

const (
	defaultGitHubAuthURL  = "https://github.com/login/oauth/authorize"
	defaultGitHubTokenURL = "https://github.com/login/oauth/access_token"
	defaultGitHubAPIURL   = "https://api.github.com"
	githubAcceptHeader    = "application/vnd.github+json"
	githubUserAgentHeader = "timecapsule"
	githubScope           = "read:user user:email"
)

// GitHubOAuthConfig はGitHub OAuthプロバイダーの設定。
type GitHubOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
	APIURL   string

	HTTPClient *http.Client
}

// GitHubOAuthProvider はGitHub OAuthによる認証を提供する。
type GitHubOAuthProvider struct {
	config GitHubOAuthConfig
	client *http.Client
}

// NewGitHubOAuthProvider はGitHubOAuthProviderを生成する。
func NewGitHubOAuthProvider(config GitHubOAuthConfig) *GitHubOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGitHubAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGitHubTokenURL
	}
	if config.APIURL == "" {
		config.APIURL = defaultGitHubAPIURL
	}
	return &GitHubOAuthProvider{config: config, client: newHTTPClient(config.HTTPClient)}
}

// Name はプロバイダー識別子を返す。
func (p *GitHubOAuthProvider) Name() string {
	return model.ProviderGitHub
}

// LoginURL はGitHubの認可画面へのURLを返す。
func (p *GitHubOAuthProvider) LoginURL(state string) string {
	return authCodeURL(p.config.AuthURL, p.config.ClientID, p.config.RedirectURL, githubScope, state, nil)
}

// PublicConfig はクライアントに公開するGitHubの設定を返す。
func (p *GitHubOAuthProvider) PublicConfig() PublicConfig {
	return PublicConfig{
		ClientID:    p.config.ClientID,
		RedirectURI: p.config.RedirectURL,
		Scope:       githubScope,
		AuthURL:     p.config.AuthURL,
	}
}

// GitHubはトークン交換の失敗も200で返し、errorフィールドに理由を入れる。
type githubTokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Exchange は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
// 公開メールアドレスがない場合は/user/emailsからprimaryかつverifiedのものを使う。
func (p *GitHubOAuthProvider) Exchange(ctx context.Context, code, redirectURI string) (*model.OAuthProfile, error) {
	if redirectURI == "" {
		redirectURI = p.config.RedirectURL
	}

	accessToken, err := p.exchangeToken(ctx, code, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: github: %v", ErrProviderToken, err)
	}

	user, err := p.fetchUser(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: github: %v", ErrProviderProfile, err)
	}

	email := user.Email
	if email == "" {
		email, err = p.fetchPrimaryEmail(ctx, accessToken)
		if err != nil {
			return nil, fmt.Errorf("%w: github: %v", ErrProviderProfile, err)
		}
	}

	// 表示名が未設定のアカウントはログイン名で代替する
	name := user.Name
	if name == "" {
		name = user.Login
	}

	if email == "" || name == "" {
		return nil, fmt.Errorf("%w: github", ErrIncompleteProfile)
	}

	return &model.OAuthProfile{
		ProviderID: strconv.FormatInt(user.ID, 10),
		Email:      email,
		Name:       name,
		Picture:    optionalString(user.AvatarURL),
		Provider:   model.ProviderGitHub,
	}, nil
}

// exchangeToken は認可コードをJSONでPOSTし、アクセストークンを返す。
func (p *GitHubOAuthProvider) exchangeToken(ctx context.Context, code, redirectURI string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"client_id":     p.config.ClientID,
		"client_secret": p.config.ClientSecret,
		"code":          code,
		"redirect_uri":  redirectURI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var tokenResp githubTokenResponse
	if err := doJSON(p.client, req, &tokenResp); err != nil {
		return "", err
	}
	if tokenResp.Error != "" {
		return "", fmt.Errorf("%s: %s", tokenResp.Error, tokenResp.ErrorDescription)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	return tokenResp.AccessToken, nil
}

// githubHeaders はREST API呼び出しに付けるヘッダー。User-Agentは必須。
var githubHeaders = map[string]string{
	"Accept":     githubAcceptHeader,
	"User-Agent": githubUserAgentHeader,
}

func (p *GitHubOAuthProvider) fetchUser(ctx context.Context, accessToken string) (*githubUser, error) {
	var user githubUser
	if err := getWithBearer(ctx, p.client, p.config.APIURL+"/user", accessToken, githubHeaders, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("empty id in user response")
	}
	return &user, nil
}

// fetchPrimaryEmail はprimaryかつverifiedのメールアドレスを返す。見つからなければ空文字を返す。
func (p *GitHubOAuthProvider) fetchPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	var emails []githubEmail
	if err := getWithBearer(ctx, p.client, p.config.APIURL+"/user/emails", accessToken, githubHeaders, &emails); err != nil {
		return "", err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

var _ OAuthProvider = (*GitHubOAuthProvider)(nil)
