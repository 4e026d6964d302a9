package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "timecapsule-app"
	tokenAudience = "timecapsule-users"

	// DefaultTokenTTL はセッショントークンの有効期間。リフレッシュトークンは発行しない。
	DefaultTokenTTL = 15 * time.Minute
)

var (
	// ErrTokenExpired はトークンの有効期限切れを表す。
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid は署名・形式・アルゴリズム・発行者・受信者のいずれかが不正なトークンを表す。
	ErrTokenInvalid = errors.New("token invalid")
	// ErrSigningSecretMissing は署名鍵が未設定であることを表す。
	ErrSigningSecretMissing = errors.New("signing secret is not configured")
)

// SessionClaims はセッショントークンに含めるユーザー情報。
type SessionClaims struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Provider string `json:"provider"`
}

type sessionTokenClaims struct {
	SessionClaims
	jwt.RegisteredClaims
}

// TokenService はHS256署名のセッショントークンを発行・検証する。
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption はTokenServiceのオプション。
type TokenOption func(*TokenService)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// WithTTL はトークンの有効期間を変更する。
func WithTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		s.ttl = ttl
	}
}

// NewTokenService はTokenServiceを生成する。
// secretが空の場合も生成は成功し、Sign/Verify時にErrSigningSecretMissingを返す。
func NewTokenService(secret string, opts ...TokenOption) *TokenService {
	s := &TokenService{
		secret: []byte(secret),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL はトークンの有効期間を返す。Cookieの有効期限に使う。
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Sign はクレームに発行時刻・有効期限・発行者・受信者を付与して署名する。
func (s *TokenService) Sign(claims SessionClaims) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrSigningSecretMissing
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionTokenClaims{
		SessionClaims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証しクレームを返す。
// 有効期限切れはErrTokenExpired、それ以外の失敗はErrTokenInvalidを返す。
func (s *TokenService) Verify(tokenString string) (*SessionClaims, error) {
	if len(s.secret) == 0 {
		return nil, ErrSigningSecretMissing
	}

	var claims sessionTokenClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId", ErrTokenInvalid)
	}

	return &claims.SessionClaims, nil
}
