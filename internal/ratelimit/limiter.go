// Package ratelimit implements fixed-window request counting keyed by
// operation and client address.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/class-booking/internal/logging"
)

// Counter stores the per-window hit counters.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Rule describes the budget of one operation.
type Rule struct {
	Operation string
	Limit     int
	Window    time.Duration
}

// Result reports the outcome of a single Allow call.
type Result struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds the retry delay up to whole seconds, never below one.
func (r Result) RetryAfterSeconds() int {
	secs := int((r.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Rules used by the public account endpoints.
var (
	RuleLogin          = Rule{Operation: "login", Limit: 10, Window: 5 * time.Minute}
	RuleRegister       = Rule{Operation: "register", Limit: 5, Window: time.Minute}
	RuleSendVerifyCode = Rule{Operation: "send_verify_code", Limit: 5, Window: 15 * time.Minute}
	RuleVerifyEmail    = Rule{Operation: "verify_email_code", Limit: 10, Window: 10 * time.Minute}
	RuleForgotPassword = Rule{Operation: "forgot_password", Limit: 5, Window: 15 * time.Minute}
	RuleResetPassword  = Rule{Operation: "reset_password", Limit: 10, Window: 10 * time.Minute}
	RuleDeleteAccount  = Rule{Operation: "account_delete", Limit: 3, Window: time.Hour}
)

// Limiter applies fixed-window rules against a Counter.
type Limiter struct {
	counter Counter
	now     func() time.Time
	logger  *slog.Logger
}

// NewLimiter constructs a Limiter. A nil now defaults to time.Now.
func NewLimiter(counter Counter, now func() time.Time, logger *slog.Logger) *Limiter {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{counter: counter, now: now, logger: logger}
}

// Key builds the counter key rl:{operation}:{client}:{windowID}.
func Key(operation, client string, windowID int64) string {
	return fmt.Sprintf("rl:%s:%s:%d", operation, client, windowID)
}

// WindowID returns the index of the fixed window containing now.
func WindowID(now time.Time, window time.Duration) int64 {
	return now.UnixMilli() / windowSeconds(window).Milliseconds()
}

func windowSeconds(window time.Duration) time.Duration {
	secs := (window + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}

// Allow counts one hit for client under rule. When the counter store fails the
// request is let through and the failure is logged.
func (l *Limiter) Allow(ctx context.Context, rule Rule, client string) (Result, error) {
	if l == nil || l.counter == nil {
		return Result{Allowed: true}, nil
	}
	client = strings.TrimSpace(client)
	if client == "" {
		client = "unknown"
	}

	window := windowSeconds(rule.Window)
	key := Key(rule.Operation, client, WindowID(l.now(), window))

	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = l.logger
	}
	logger = logger.With("component", "ratelimit", "operation", rule.Operation)

	count, err := l.counter.Incr(ctx, key)
	if err != nil {
		logger.WarnContext(ctx, "rate limit counter unavailable", "error", err)
		return Result{Allowed: true}, err
	}
	if count == 1 {
		if err := l.counter.Expire(ctx, key, window); err != nil {
			logger.WarnContext(ctx, "failed to set rate limit expiry", "error", err)
		}
	}

	if count <= int64(rule.Limit) {
		return Result{Allowed: true, Count: count}, nil
	}

	retry := window
	if ttl, err := l.counter.TTL(ctx, key); err == nil && ttl > 0 {
		retry = ttl
	}
	logger.InfoContext(ctx, "rate limit exceeded", "count", count, "limit", rule.Limit)
	return Result{Allowed: false, Count: count, RetryAfter: retry}, nil
}
