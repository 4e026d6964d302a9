package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/timecapsule/internal/metrics"
	"github.com/hitoshi/timecapsule/internal/model"
)

// RateLimiterConfig はユーザー単位のトークンバケットの設定。
type RateLimiterConfig struct {
	Rate  rate.Limit // 1秒あたりの補充トークン数
	Burst int
	// IdleTTL より長くアクセスのないユーザーのバケットは破棄する。
	IdleTTL time.Duration
}

// DefaultRateLimiterConfig は1分あたりperMinuteリクエスト（バーストも同数）の設定を返す。
// perMinuteが0以下の場合は120を使う。
func DefaultRateLimiterConfig(perMinute int) RateLimiterConfig {
	if perMinute <= 0 {
		perMinute = 120
	}
	return RateLimiterConfig{
		Rate:    rate.Limit(float64(perMinute) / 60.0),
		Burst:   perMinute,
		IdleTTL: 10 * time.Minute,
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter は認証済みユーザーごとのレート制限。
type RateLimiter struct {
	config  RateLimiterConfig
	metrics metrics.MetricsCollector

	mu      sync.Mutex
	buckets map[string]*bucket

	sweeper *sweeper
}

// NewRateLimiter はRateLimiterを生成し、IdleTTLの半分の間隔で古いバケットの掃除を開始する。
func NewRateLimiter(config RateLimiterConfig, collector metrics.MetricsCollector) *RateLimiter {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		metrics: collector,
		buckets: make(map[string]*bucket),
	}
	rl.sweeper = startSweeper(config.IdleTTL/2, rl.Sweep)
	return rl
}

// Stop は掃除のゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.sweeper.Stop()
}

// Allow はユーザーのリクエストを1件消費できるか判定する。
// 拒否した場合は次のトークンが補充されるまでの時間を返す。
func (rl *RateLimiter) Allow(userID string) (bool, time.Duration) {
	now := time.Now()

	rl.mu.Lock()
	b, ok := rl.buckets[userID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.config.Rate, rl.config.Burst)}
		rl.buckets[userID] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Middleware はユーザー単位のレート制限ミドルウェアを返す。
// SessionMiddlewareの内側に置くこと。
func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			allowed, retryAfter := rl.Allow(userID)
			if !allowed {
				rl.metrics.RecordRateLimited("user")
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", "token_bucket"),
					slog.Duration("retry_after", retryAfter),
				)
				writeRateLimitResponse(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Len は保持しているバケット数を返す。
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Sweep はIdleTTLを超えて使われていないバケットを削除する。
func (rl *RateLimiter) Sweep() {
	cutoff := time.Now().Add(-rl.config.IdleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for userID, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, userID)
		}
	}
}
