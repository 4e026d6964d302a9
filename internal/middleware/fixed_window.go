package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/timecapsule/internal/metrics"
)

// 固定ウィンドウのデフォルト値
const (
	DefaultWindow        = 15 * time.Minute
	DefaultMaxRequests   = 5
	DefaultSweepInterval = 5 * time.Minute
)

// windowRecord はクライアントごとのカウンター。
type windowRecord struct {
	count   int
	resetAt time.Time
}

// FixedWindowLimiter はクライアントIPごとの固定ウィンドウ型レート制限。
// プロセス内で1インスタンスを共有し、状態は永続化しない。
type FixedWindowLimiter struct {
	window      time.Duration
	maxRequests int
	now         func() time.Time
	metrics     metrics.MetricsCollector

	mu      sync.Mutex
	records map[string]*windowRecord

	sweeper *sweeper
}

// FixedWindowOption はFixedWindowLimiterのオプション。
type FixedWindowOption func(*FixedWindowLimiter)

// WithWindowClock は現在時刻の取得関数を差し替える。
func WithWindowClock(now func() time.Time) FixedWindowOption {
	return func(l *FixedWindowLimiter) {
		l.now = now
	}
}

// WithWindowMetrics は拒否時に記録するメトリクスを設定する。
func WithWindowMetrics(collector metrics.MetricsCollector) FixedWindowOption {
	return func(l *FixedWindowLimiter) {
		l.metrics = collector
	}
}

// NewFixedWindowLimiter はFixedWindowLimiterを生成し、期限切れレコードの掃除を開始する。
// windowまたはmaxRequestsが0以下の場合はデフォルト値を使う。
func NewFixedWindowLimiter(window time.Duration, maxRequests int, sweepInterval time.Duration, opts ...FixedWindowOption) *FixedWindowLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	l := &FixedWindowLimiter{
		window:      window,
		maxRequests: maxRequests,
		now:         time.Now,
		metrics:     metrics.NopCollector{},
		records:     make(map[string]*windowRecord),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.sweeper = startSweeper(sweepInterval, l.Sweep)

	return l
}

// Stop は掃除のバックグラウンドゴルーチンを停止する。
func (l *FixedWindowLimiter) Stop() {
	l.sweeper.Stop()
}

// Allow はキーのリクエストを許可するかを判定する。
// 拒否した場合はウィンドウがリセットされるまでの時間を返す。
//
//	レコードなし、またはnow > resetAt → {1, now+window} にリセットして許可
//	count >= max → 拒否
//	それ以外 → countを加算して許可
func (l *FixedWindowLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok || now.After(rec.resetAt) {
		l.records[key] = &windowRecord{count: 1, resetAt: now.Add(l.window)}
		return true, 0
	}

	if rec.count >= l.maxRequests {
		return false, rec.resetAt.Sub(now)
	}

	rec.count++
	return true, 0
}

// Middleware はクライアントIPごとのレート制限ミドルウェアを返す。
// 超過時は429とRetry-After（秒）を返す。
func (l *FixedWindowLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIdentity(r)
			allowed, retryAfter := l.Allow(key)
			if !allowed {
				l.metrics.RecordRateLimited("ip")
				slog.Warn("rate limit exceeded",
					slog.String("client", key),
					slog.String("path", r.URL.Path),
					slog.String("limit_type", "fixed_window"),
				)
				writeRateLimitResponse(w, retryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Len は保持しているレコード数を返す。
func (l *FixedWindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Sweep は期限切れのレコードを削除する。
func (l *FixedWindowLimiter) Sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, rec := range l.records {
		if now.After(rec.resetAt) {
			delete(l.records, key)
		}
	}
}

// ClientIdentity はレート制限のキーにするクライアント識別子を返す。
// X-Forwarded-Forの先頭、X-Real-IP、"unknown"の順に採用する。
func ClientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return "unknown"
}
