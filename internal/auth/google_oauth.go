package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/timecapsule/internal/model"
)

const (
	defaultGoogleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	googleScope              = "openid email profile"
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

// GoogleOAuthProvider はGoogle OAuth 2.0による認証を提供する。
type GoogleOAuthProvider struct {
	config GoogleOAuthConfig
	client *http.Client
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGoogleAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultGoogleUserInfoURL
	}
	return &GoogleOAuthProvider{config: config, client: newHTTPClient(config.HTTPClient)}
}

// Name はプロバイダー識別子を返す。
func (p *GoogleOAuthProvider) Name() string {
	return model.ProviderGoogle
}

// LoginURL はGoogleの同意画面へのURLを返す。
func (p *GoogleOAuthProvider) LoginURL(state string) string {
	return authCodeURL(p.config.AuthURL, p.config.ClientID, p.config.RedirectURL, googleScope, state,
		url.Values{"response_type": {"code"}, "access_type": {"offline"}})
}

// PublicConfig はクライアントに公開するGoogleの設定を返す。
func (p *GoogleOAuthProvider) PublicConfig() PublicConfig {
	return PublicConfig{
		ClientID:    p.config.ClientID,
		RedirectURI: p.config.RedirectURL,
		Scope:       googleScope,
		AuthURL:     p.config.AuthURL,
	}
}

type googleTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Exchange は認可コードをトークンに交換し、userinfoエンドポイントからプロフィールを取得する。
func (p *GoogleOAuthProvider) Exchange(ctx context.Context, code, redirectURI string) (*model.OAuthProfile, error) {
	if redirectURI == "" {
		redirectURI = p.config.RedirectURL
	}

	form := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {redirectURI},
		"grant_type":    {"authorization_code"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: google: %v", ErrProviderToken, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var token googleTokenResponse
	if err := doJSON(p.client, req, &token); err != nil {
		return nil, fmt.Errorf("%w: google: %v", ErrProviderToken, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: google: empty access token", ErrProviderToken)
	}

	var info googleUserInfo
	if err := getWithBearer(ctx, p.client, p.config.UserInfoURL, token.AccessToken, nil, &info); err != nil {
		return nil, fmt.Errorf("%w: google: %v", ErrProviderProfile, err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("%w: google: empty id", ErrProviderProfile)
	}
	if info.Email == "" || info.Name == "" {
		return nil, fmt.Errorf("%w: google", ErrIncompleteProfile)
	}

	return &model.OAuthProfile{
		ProviderID: info.ID,
		Email:      info.Email,
		Name:       info.Name,
		Picture:    optionalString(info.Picture),
		Provider:   model.ProviderGoogle,
	}, nil
}

var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
