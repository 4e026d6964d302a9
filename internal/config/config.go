package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Token
	JWTSecret string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string
	OAuthHTTPTimeout   time.Duration

	// Payment
	StripeSecretKey      string
	StripePublishableKey string
	StripePriceID        string
	PremiumPriceCents    int64
	PremiumCurrency      string
	PremiumMonths        int

	// Capsule
	FreeCapsuleLimit int

	// Admin
	AdminEmail string

	// Rate Limit
	RateLimitWindow      time.Duration
	RateLimitMaxRequests int
	RateLimitGeneral     int

	// Logging
	LogLevel string

	// Server
	AppEnv     string
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// GoogleEnabled はGoogleログインの設定が揃っているかを返す。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// GitHubEnabled はGitHubログインの設定が揃っているかを返す。
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// OAuthMissing はプロバイダーごとに未設定のOAuth環境変数名を返す。
// 設定が揃っているプロバイダーはキーに含まれない。
func (c *Config) OAuthMissing() map[string][]string {
	missing := make(map[string][]string)
	for provider, vars := range map[string][2]string{
		"google": {c.GoogleClientID, c.GoogleClientSecret},
		"github": {c.GitHubClientID, c.GitHubClientSecret},
	} {
		prefix := strings.ToUpper(provider)
		if vars[0] == "" {
			missing[provider] = append(missing[provider], prefix+"_CLIENT_ID")
		}
		if vars[1] == "" {
			missing[provider] = append(missing[provider], prefix+"_CLIENT_SECRET")
		}
	}
	return missing
}

// StripeMissing は決済機能に必要で未設定の環境変数名を返す。
func (c *Config) StripeMissing() []string {
	var missing []string
	if c.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.StripePublishableKey == "" {
		missing = append(missing, "STRIPE_PUBLISHABLE_KEY")
	}
	return missing
}

// IsProduction は本番環境で動作しているかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GitHubClientID = os.Getenv("GITHUB_CLIENT_ID")
	cfg.GitHubClientSecret = os.Getenv("GITHUB_CLIENT_SECRET")

	// プロバイダーは少なくとも1つ設定されている必要がある
	if !cfg.GoogleEnabled() && !cfg.GitHubEnabled() {
		missing = append(missing, "GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET or GITHUB_CLIENT_ID/GITHUB_CLIENT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	// Optional fields with defaults
	cfg.GoogleRedirectURL = getEnvString("GOOGLE_REDIRECT_URL", baseURL+"/auth/callback")
	cfg.GitHubRedirectURL = getEnvString("GITHUB_REDIRECT_URL", baseURL+"/auth/callback")
	cfg.OAuthHTTPTimeout = getEnvDuration("OAUTH_HTTP_TIMEOUT", 10*time.Second)
	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.StripePublishableKey = os.Getenv("STRIPE_PUBLISHABLE_KEY")
	cfg.StripePriceID = os.Getenv("STRIPE_PRICE_ID")
	cfg.PremiumPriceCents = getEnvInt64("PREMIUM_PRICE_CENTS", 999)
	cfg.PremiumCurrency = strings.ToLower(getEnvString("PREMIUM_CURRENCY", "usd"))
	cfg.PremiumMonths = getEnvInt("PREMIUM_MONTHS", 0)
	cfg.FreeCapsuleLimit = getEnvInt("FREE_CAPSULE_LIMIT", 10)
	cfg.AdminEmail = strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute)
	cfg.RateLimitMaxRequests = getEnvInt("RATE_LIMIT_MAX_REQUESTS", 5)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.AppEnv = getEnvString("APP_ENV", "development")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = cfg.IsProduction() || strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", baseURL)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	return envOr(key, defaultVal, func(v string) (string, error) { return v, nil })
}

func getEnvInt(key string, defaultVal int) int {
	return envOr(key, defaultVal, strconv.Atoi)
}

func getEnvInt64(key string, defaultVal int64) int64 {
	return envOr(key, defaultVal, func(v string) (int64, error) { return strconv.ParseInt(v, 10, 64) })
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	return envOr(key, defaultVal, time.ParseDuration)
}

// envOr は環境変数をparseで変換する。未設定ならデフォルト値、変換できなければ警告を出してデフォルト値を使う。
func envOr[T any](key string, defaultVal T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal
	}
	v, err := parse(raw)
	if err != nil {
		slog.Warn("invalid environment variable, using default",
			slog.String("key", key),
			slog.Any("default", defaultVal),
		)
		return defaultVal
	}
	return v
}
