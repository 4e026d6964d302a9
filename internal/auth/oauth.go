package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/hitoshi/timecapsule/internal/model"
)

var (
	// ErrInvalidState はstateパラメータを復号できないかproviderを含まないことを表す。
	ErrInvalidState = errors.New("invalid oauth state")
	// ErrUnsupportedProvider は未対応または未設定のプロバイダーを表す。
	ErrUnsupportedProvider = errors.New("unsupported oauth provider")
	// ErrProviderToken はトークンエンドポイントが失敗を返したことを表す。
	ErrProviderToken = errors.New("oauth token exchange failed")
	// ErrProviderProfile はプロフィール取得に失敗したことを表す。
	ErrProviderProfile = errors.New("oauth profile fetch failed")
	// ErrIncompleteProfile はプロバイダーからメールアドレスまたは名前を取得できないことを表す。
	ErrIncompleteProfile = errors.New("oauth profile is incomplete")
)

// defaultHTTPTimeout はプロバイダー呼び出しのタイムアウト。リトライはしない。
const defaultHTTPTimeout = 10 * time.Second

// レスポンスボディの読み込み上限
const maxResponseBytes = 1 << 20

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// プロバイダーごとの差異はこの実装内に閉じ込め、呼び出し側は正規化済みプロフィールのみを扱う。
type OAuthProvider interface {
	// Name はプロバイダー識別子（"google", "github"）を返す。
	Name() string
	// LoginURL はOAuth認証URLを生成する。
	LoginURL(state string) string
	// Exchange は認可コードをアクセストークンに交換し、正規化したプロフィールを返す。
	// redirectURIが空の場合は設定済みのリダイレクトURIを使う。
	Exchange(ctx context.Context, code, redirectURI string) (*model.OAuthProfile, error)
}

// PublicConfig はクライアントに公開してよいプロバイダー設定。シークレットは含まない。
type PublicConfig struct {
	ClientID    string `json:"clientId"`
	RedirectURI string `json:"redirectUri"`
	Scope       string `json:"scope"`
	AuthURL     string `json:"authUrl"`
}

// ProviderRegistry は有効化されたプロバイダーを名前で引けるようにまとめる。
type ProviderRegistry struct {
	providers map[string]OAuthProvider
}

// NewProviderRegistry はProviderRegistryを生成する。
func NewProviderRegistry(providers ...OAuthProvider) *ProviderRegistry {
	r := &ProviderRegistry{providers: make(map[string]OAuthProvider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get は名前に対応するプロバイダーを返す。
func (r *ProviderRegistry) Get(name string) (OAuthProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}
	return p, nil
}

// Names は有効なプロバイダー名を昇順で返す。
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// doJSON はリクエストを送信し、2xxのJSONレスポンスをoutに読み込む。
// 2xx以外の場合はステータスとボディを含むエラーを返す。
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// authCodeURL は認可エンドポイントへのURLを組み立てる。extraは共通パラメータに追加される。
func authCodeURL(endpoint, clientID, redirectURI, scope, state string, extra url.Values) string {
	params := url.Values{
		"client_id":    {clientID},
		"redirect_uri": {redirectURI},
		"scope":        {scope},
		"state":        {state},
	}
	for k, v := range extra {
		params[k] = v
	}
	return endpoint + "?" + params.Encode()
}

// getWithBearer はアクセストークン付きでGETし、JSONレスポンスをoutに読み込む。
func getWithBearer(ctx context.Context, client *http.Client, endpoint, accessToken string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doJSON(client, req, out)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
