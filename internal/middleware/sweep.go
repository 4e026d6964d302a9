package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/timecapsule/internal/model"
)

// sweeper はintervalごとにfnを呼ぶバックグラウンドゴルーチンを持つ。
type sweeper struct {
	stopCh   chan struct{}
	stopOnce sync.Once
}

func startSweeper(interval time.Duration, fn func()) *sweeper {
	s := &sweeper{stopCh: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-s.stopCh:
				return
			}
		}
	}()
	return s
}

// Stop はゴルーチンを停止する。複数回呼んでもよい。
func (s *sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// retryAfterSeconds はRetry-Afterヘッダー用に待ち時間を秒へ切り上げる。最小1秒。
func retryAfterSeconds(d time.Duration) int {
	sec := int(math.Ceil(d.Seconds()))
	if sec < 1 {
		sec = 1
	}
	return sec
}

// writeRateLimitResponse は429とRetry-Afterを書き込む。
func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
