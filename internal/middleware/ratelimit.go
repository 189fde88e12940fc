package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mp-analyst-bot-go/internal/config"
)

// Telegram caps a single message at 4096 characters, so anything longer
// did not come from a normal client.
const maxInputRunes = 4096

const limiterMapThreshold = 10000

// RateLimiter limits how often a user may trigger AI work
type RateLimiter interface {
	Allow(userID int64) bool
	Reset(userID int64)
	Size() int
}

// UserRateLimiter keeps one token bucket per user
type UserRateLimiter struct {
	enabled         bool
	limiters        map[int64]*rate.Limiter
	mu              sync.RWMutex
	rpm             int
	burst           int
	logger          *logrus.Logger
	cleanupInterval time.Duration
}

// NewRateLimiter creates a per-user rate limiter
func NewRateLimiter(cfg *config.RateLimitConfig, logger *logrus.Logger) RateLimiter {
	if !cfg.Enabled {
		return &UserRateLimiter{enabled: false}
	}

	rl := &UserRateLimiter{
		enabled:         true,
		limiters:        make(map[int64]*rate.Limiter),
		rpm:             cfg.RequestsPerMinute,
		burst:           cfg.Burst,
		logger:          logger,
		cleanupInterval: time.Hour,
	}

	go rl.cleanup()

	return rl
}

// Allow reports whether the user may make a request right now
func (r *UserRateLimiter) Allow(userID int64) bool {
	if !r.enabled {
		return true
	}

	allowed := r.getLimiter(userID).Allow()
	if !allowed {
		r.logger.WithField("user_id", userID).Warn("Rate limit exceeded")
	}

	return allowed
}

// Reset drops the user's bucket so the next request starts fresh
func (r *UserRateLimiter) Reset(userID int64) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	delete(r.limiters, userID)
	r.mu.Unlock()
}

// Size returns the number of users with an active bucket
func (r *UserRateLimiter) Size() int {
	if !r.enabled {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}

func (r *UserRateLimiter) getLimiter(userID int64) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[userID]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have created it between the locks.
	if limiter, exists := r.limiters[userID]; exists {
		return limiter
	}

	rps := float64(r.rpm) / 60.0
	limiter = rate.NewLimiter(rate.Limit(rps), r.burst)
	r.limiters[userID] = limiter

	return limiter
}

func (r *UserRateLimiter) cleanup() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		r.mu.Lock()
		if len(r.limiters) > limiterMapThreshold {
			r.logger.Warn("Rate limiter map size exceeded threshold, clearing")
			r.limiters = make(map[int64]*rate.Limiter)
		}
		r.mu.Unlock()
	}
}

// SecurityMiddleware validates incoming text and cleans outgoing text
type SecurityMiddleware struct {
	logger *logrus.Logger
}

// NewSecurityMiddleware creates security middleware
func NewSecurityMiddleware(logger *logrus.Logger) *SecurityMiddleware {
	return &SecurityMiddleware{logger: logger}
}

// ValidateInput rejects messages no Telegram client could have sent.
// Runes, not bytes: a max-length Cyrillic message is twice its rune
// count in bytes and is still legitimate.
func (s *SecurityMiddleware) ValidateInput(text string) error {
	if utf8.RuneCountInString(text) > maxInputRunes {
		return fmt.Errorf("message too long: %d characters", utf8.RuneCountInString(text))
	}
	return nil
}

// SanitizeOutput cleans a model reply before it is sent to the user
func (s *SecurityMiddleware) SanitizeOutput(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(text)
}
