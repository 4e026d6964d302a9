package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/timecapsule/internal/auth"
	"github.com/hitoshi/timecapsule/internal/capsule"
	"github.com/hitoshi/timecapsule/internal/config"
	"github.com/hitoshi/timecapsule/internal/database"
	"github.com/hitoshi/timecapsule/internal/handler"
	"github.com/hitoshi/timecapsule/internal/logger"
	"github.com/hitoshi/timecapsule/internal/metrics"
	"github.com/hitoshi/timecapsule/internal/middleware"
	"github.com/hitoshi/timecapsule/internal/model"
	"github.com/hitoshi/timecapsule/internal/payment"
	"github.com/hitoshi/timecapsule/internal/repository"
	"github.com/hitoshi/timecapsule/internal/security"
	"github.com/hitoshi/timecapsule/internal/user"
)

const (
	limiterSweepInterval = 5 * time.Minute
	shutdownTimeout      = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数を読み込む。
// ログレベルは設定読み込み前に必要なためLOG_LEVELを直接参照する。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// Server はワイヤリング済みのHTTPハンドラーと、停止時に解放するリソースを持つ。
type Server struct {
	Handler http.Handler

	limiters []interface{ Stop() }
}

// Close はレート制限のスイープを停止する。
func (s *Server) Close() {
	for _, l := range s.limiters {
		l.Stop()
	}
}

// NewServer は設定とDB接続から全依存関係を構築し、ルーターを返す。
// regにはメトリクスの登録先を渡す。
func NewServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) *Server {
	collector := metrics.NewCollector(reg)

	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	settingsRepo := repository.NewPostgresSettingsRepo(db)
	capsuleRepo := repository.NewPostgresCapsuleRepo(db)
	paymentRepo := repository.NewPostgresPaymentRepo(db)

	sanitizer := security.NewContentSanitizer()

	// 認証
	oauthClient := &http.Client{Timeout: cfg.OAuthHTTPTimeout}
	var providers []auth.OAuthProvider
	oauthConfig := make(map[string]auth.PublicConfig)
	if cfg.GoogleEnabled() {
		google := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			HTTPClient:   oauthClient,
		})
		providers = append(providers, google)
		oauthConfig[model.ProviderGoogle] = google.PublicConfig()
	}
	if cfg.GitHubEnabled() {
		github := auth.NewGitHubOAuthProvider(auth.GitHubOAuthConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
			HTTPClient:   oauthClient,
		})
		providers = append(providers, github)
		oauthConfig[model.ProviderGitHub] = github.PublicConfig()
	}
	tokens := auth.NewTokenService(cfg.JWTSecret)
	authService := auth.NewService(auth.NewProviderRegistry(providers...), userRepo, tokens, collector)

	// ドメインサービス
	userService := user.NewService(userRepo, settingsRepo, sanitizer, cfg.AdminEmail)
	capsuleService := capsule.NewService(capsuleRepo, userRepo, sanitizer, collector,
		capsule.WithFreeLimit(cfg.FreeCapsuleLimit),
	)

	var gateway payment.Gateway
	if cfg.StripeSecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.StripeSecretKey)
	}
	paymentService := payment.NewService(paymentRepo, gateway, collector, payment.Config{
		PublishableKey: cfg.StripePublishableKey,
		PriceID:        cfg.StripePriceID,
		PriceCents:     cfg.PremiumPriceCents,
		Currency:       cfg.PremiumCurrency,
		PremiumMonths:  cfg.PremiumMonths,
		Missing:        cfg.StripeMissing(),
	})

	// レート制限
	ipLimiter := middleware.NewFixedWindowLimiter(
		cfg.RateLimitWindow, cfg.RateLimitMaxRequests, limiterSweepInterval,
		middleware.WithWindowMetrics(collector),
	)
	userLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitGeneral), collector)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Metrics:           collector,
		TokenVerifier:     tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       userLimiter,
		IPRateLimiter:     ipLimiter,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL: cfg.BaseURL,
			Cookie: handler.CookieConfig{
				Domain: cfg.CookieDomain,
				Secure: cfg.CookieSecure,
			},
			OAuthConfig:  oauthConfig,
			OAuthMissing: cfg.OAuthMissing(),
		},

		UserService:     userService,
		SettingsService: userService,
		CapsuleService:  capsuleService,
		PaymentService:  paymentService,
	})

	return &Server{
		Handler:  router,
		limiters: []interface{ Stop() }{ipLimiter, userLimiter},
	}
}

// newRegistry はGo・プロセスのコレクターを登録したレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	slog.Info("database connection established")

	srv := NewServer(cfg, db, newRegistry())
	defer srv.Close()

	if missing := cfg.StripeMissing(); len(missing) > 0 {
		slog.Warn("payments are disabled", slog.Any("missing", missing))
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はすべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はdistroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、200以外はエラーとする。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// パースできない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
