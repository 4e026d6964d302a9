package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/timecapsule/internal/metrics"
	"github.com/hitoshi/timecapsule/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	// RateLimiter はユーザー単位の汎用レート制限。nilの場合は適用しない。
	RateLimiter *middleware.RateLimiter
	// IPRateLimiter は認証・カプセルAPIに適用するIP単位の固定ウィンドウ制限。nilの場合は適用しない。
	IPRateLimiter *middleware.FixedWindowLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー・設定
	UserService     UserServiceInterface
	SettingsService SettingsServiceInterface

	// カプセル
	CapsuleService CapsuleServiceInterface

	// 決済
	PaymentService PaymentServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → CORS → Logging → Metrics
//	  → (IPRateLimit) → Session → RateLimit(per user)
//
// IP単位の制限はセッション検証より前に適用し、未認証のリクエストも数える。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.AuthConfig.Cookie.Secure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig.Cookie)
	settingsHandler := NewSettingsHandler(deps.SettingsService)
	capsuleHandler := NewCapsuleHandler(deps.CapsuleService)
	paymentHandler := NewPaymentHandler(deps.PaymentService)

	ipLimit := passThrough
	if deps.IPRateLimiter != nil {
		ipLimit = deps.IPRateLimiter.Middleware()
	}
	userLimit := passThrough
	if deps.RateLimiter != nil {
		userLimit = deps.RateLimiter.Middleware()
	}
	session := middleware.NewSessionMiddleware(deps.TokenVerifier)

	// --- 認証不要のルート ---

	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// サーバー主導のOAuthフロー
	r.Route("/auth", func(r chi.Router) {
		r.Get("/{provider}/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
	})

	r.Get("/api/auth/config", authHandler.Config)
	r.Post("/api/auth/logout", authHandler.Logout)
	r.Get("/api/stripe/config", paymentHandler.Config)

	// --- IP単位のレート制限を適用するルート ---
	r.Group(func(r chi.Router) {
		r.Use(ipLimit)

		r.Post("/api/auth/complete", authHandler.Complete)

		r.Group(func(r chi.Router) {
			r.Use(session)
			r.Use(userLimit)

			r.Get("/api/session", userHandler.Session)

			r.Route("/api/capsules", func(r chi.Router) {
				r.Get("/", capsuleHandler.ListCapsules)
				r.Post("/", capsuleHandler.CreateCapsule)
				r.Delete("/", capsuleHandler.DeleteCapsule)
			})
		})
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(per user)
	r.Group(func(r chi.Router) {
		r.Use(session)
		r.Use(userLimit)

		r.Route("/api/users", func(r chi.Router) {
			r.Get("/", userHandler.GetUser)
			r.Patch("/", userHandler.UpdateProfile)
			r.Post("/", userHandler.UpdateProfile)
			r.Delete("/me", userHandler.Withdraw)
		})

		r.Get("/api/admin/users", userHandler.AdminListUsers)

		r.Route("/api/settings", func(r chi.Router) {
			r.Get("/", settingsHandler.GetSettings)
			r.Put("/", settingsHandler.UpdateSettings)
		})

		r.Route("/api/payments", func(r chi.Router) {
			r.Get("/", paymentHandler.ListPayments)
			r.Post("/intent", paymentHandler.CreateIntent)
			r.Post("/confirm", paymentHandler.Confirm)
		})
	})

	return r
}

func passThrough(next http.Handler) http.Handler {
	return next
}
