package rpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/soltide/vrf-oracle/internal/metrics"
)

// GuardConfig controls rate-limit backoff behavior.
type GuardConfig struct {
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	MaxRetries uint64        `yaml:"max_retries"`
}

// DefaultGuardConfig backs off 1s, 2s, 4s ... capped at 15s, 8 retries.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		BaseDelay:  1 * time.Second,
		MaxDelay:   15 * time.Second,
		MaxRetries: 8,
	}
}

// Guard wraps RPC calls with exponential backoff plus jitter on rate-limit
// errors. Any other error propagates immediately: the scanner and pipeline
// burst enough calls to trip provider throttling, and without this guard a
// single 429 would abort a whole scan.
type Guard struct {
	cfg GuardConfig
}

func NewGuard(cfg GuardConfig) *Guard {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 15 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 8
	}
	return &Guard{cfg: cfg}
}

// Do runs fn, retrying while it reports a rate-limit error.
func (g *Guard) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := retry.NewExponential(g.cfg.BaseDelay)
	b = retry.WithJitter(g.cfg.BaseDelay/2, b)
	b = retry.WithCappedDuration(g.cfg.MaxDelay, b)
	b = retry.WithMaxRetries(g.cfg.MaxRetries, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsRateLimited(err) {
			metrics.RPCRetriesTotal.WithLabelValues(op).Inc()
			return retry.RetryableError(err)
		}
		return err
	})
}

// IsRateLimited reports whether err looks like provider-side throttling.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "rate limit")
}

// IsTransient reports whether err is a network-level failure worth a full
// resend, as opposed to an answer from the chain.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimited(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "timed out") ||
		strings.Contains(s, "eof") ||
		strings.Contains(s, "broken pipe") ||
		strings.Contains(s, "no such host") ||
		strings.Contains(s, "502") ||
		strings.Contains(s, "503")
}
