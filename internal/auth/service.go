// Package auth はOAuth認証フローとセッショントークンの発行・検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/timecapsule/internal/metrics"
	"github.com/hitoshi/timecapsule/internal/model"
)

// UserUpserter はOAuthプロフィールからユーザーを作成・更新するインターフェース。
type UserUpserter interface {
	UpsertByProvider(ctx context.Context, profile *model.OAuthProfile) (*model.User, error)
}

// LoginResult は認証完了時の結果。
type LoginResult struct {
	Token string
	User  *model.User
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	providers *ProviderRegistry
	users     UserUpserter
	tokens    *TokenService
	metrics   metrics.MetricsCollector
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	providers *ProviderRegistry,
	users UserUpserter,
	tokens *TokenService,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		providers: providers,
		users:     users,
		tokens:    tokens,
		metrics:   collector,
	}
}

// Providers は有効なプロバイダー名を返す。
func (s *Service) Providers() []string {
	return s.providers.Names()
}

// TokenTTL はセッショントークンの有効期間（秒）を返す。
func (s *Service) TokenTTL() int {
	return int(s.tokens.TTL().Seconds())
}

// LoginURL はプロバイダーの認証URLと、照合用にエンコード済みのstateを返す。
func (s *Service) LoginURL(providerName string) (loginURL, state string, err error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return "", "", err
	}

	state, err = NewState(providerName).Encode()
	if err != nil {
		return "", "", err
	}
	return provider.LoginURL(state), state, nil
}

// Complete はOAuthコールバックの認可コードを処理し、セッショントークンを発行する。
// 手順: stateの検証 → コード交換 → ユーザーのUPSERT → トークン署名。
// コード交換に失敗した場合はユーザーを書き込まない。
func (s *Service) Complete(ctx context.Context, code, rawState, redirectURI string) (*LoginResult, error) {
	state, err := DecodeState(rawState)
	if err != nil {
		return nil, err
	}

	provider, err := s.providers.Get(state.Provider)
	if err != nil {
		return nil, err
	}

	profile, err := provider.Exchange(ctx, code, redirectURI)
	if err != nil {
		s.metrics.RecordLogin(state.Provider, metrics.LoginFailure)
		slog.Warn("OAuthコード交換に失敗しました",
			slog.String("provider", state.Provider),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	user, err := s.users.UpsertByProvider(ctx, profile)
	if err != nil {
		s.metrics.RecordLogin(state.Provider, metrics.LoginFailure)
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	token, err := s.tokens.Sign(SessionClaims{
		UserID:   user.ID,
		Email:    user.Email,
		Provider: user.Provider,
	})
	if err != nil {
		s.metrics.RecordLogin(state.Provider, metrics.LoginFailure)
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	s.metrics.RecordLogin(state.Provider, metrics.LoginSuccess)
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("provider", user.Provider),
	)

	return &LoginResult{Token: token, User: user}, nil
}

// ToAPIError は認証フローのエラーをAPIエラーに変換する。
// 既知のエラー以外は呼び出し元でINTERNAL_ERRORとして扱うためnilを返す。
func ToAPIError(err error, provider string) *model.APIError {
	switch {
	case errors.Is(err, ErrInvalidState):
		return model.NewInvalidStateError()
	case errors.Is(err, ErrUnsupportedProvider):
		return model.NewUnsupportedProviderError(provider)
	case errors.Is(err, ErrProviderToken), errors.Is(err, ErrProviderProfile):
		return model.NewProviderError(provider)
	case errors.Is(err, ErrIncompleteProfile):
		return model.NewIncompleteProfileError(provider)
	default:
		return nil
	}
}
