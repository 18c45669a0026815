package ratelimit

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/api/apierror"
	"github.com/platform-factory/backend/internal/metrics"
	"github.com/platform-factory/backend/internal/middleware/auth"
)

// log holds the admission times inside the current window, oldest first.
type log struct {
	hits []time.Time
}

type RateLimiter struct {
	logs          map[string]*log
	mu            sync.Mutex
	maxRequests   int
	window        time.Duration
	keyFunc       func(*fiber.Ctx) string
	logger        *zap.Logger
	now           func() time.Time
	cleanupTicker *time.Ticker
	done          chan struct{}
	stopOnce      sync.Once
}

type Config struct {
	MaxRequests     int
	Window          time.Duration
	CleanupInterval time.Duration
	// KeyFunc names the caller; defaults to auth.CallerKey.
	KeyFunc func(*fiber.Ctx) string
	Logger  *zap.Logger
}

func New(cfg Config) *RateLimiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 30
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = auth.CallerKey
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	rl := &RateLimiter{
		logs:          make(map[string]*log),
		maxRequests:   cfg.MaxRequests,
		window:        cfg.Window,
		keyFunc:       cfg.KeyFunc,
		logger:        cfg.Logger,
		now:           time.Now,
		cleanupTicker: time.NewTicker(cfg.CleanupInterval),
		done:          make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := rl.keyFunc(c)

		ok, retryAfter := rl.Allow(key)
		if !ok {
			metrics.RateLimited.Inc()
			rl.logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
				zap.Int("retry_after", retryAfter),
			)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(apierror.Body{
				Error:      "Rate limit exceeded. Please try again later.",
				Code:       apierror.CodeRateLimited,
				RetryAfter: retryAfter,
			})
		}

		return c.Next()
	}
}

// Allow admits a request for key when fewer than maxRequests were admitted in
// the trailing window. On rejection it returns the whole seconds until the
// oldest admission leaves the window, between 1 and the window length.
func (rl *RateLimiter) Allow(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, exists := rl.logs[key]
	if !exists {
		l = &log{}
		rl.logs[key] = l
	}

	now := rl.now()
	l.evict(now.Add(-rl.window))

	if len(l.hits) < rl.maxRequests {
		l.hits = append(l.hits, now)
		return true, 0
	}

	wait := l.hits[0].Add(rl.window).Sub(now)
	return false, clampSeconds(wait, rl.window)
}

func (l *log) evict(cutoff time.Time) {
	i := 0
	for i < len(l.hits) && !l.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.hits = append(l.hits[:0], l.hits[i:]...)
	}
}

func clampSeconds(d, window time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	max := int(math.Ceil(window.Seconds()))
	if secs < 1 {
		secs = 1
	}
	if secs > max {
		secs = max
	}
	return secs
}

func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.sweep()
		case <-rl.done:
			return
		}
	}
}

// sweep drops callers with nothing left in their window.
func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	for key, l := range rl.logs {
		l.evict(cutoff)
		if len(l.hits) == 0 {
			delete(rl.logs, key)
		}
	}
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		rl.cleanupTicker.Stop()
		close(rl.done)
	})
}
