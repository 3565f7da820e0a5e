package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/careloop/careloop/internal/platform/keyedstore"
)

const (
	// MaxAttempts failed verifications in a row lock the token.
	MaxAttempts = 3
	// LockoutDuration is how long a locked token rejects all attempts.
	LockoutDuration = 15 * time.Minute
)

// AttemptLimiter tracks consecutive verification failures per access-token.
// The token is the unit of limiting, not the patient or the caller's IP,
// since the token is what names the document under attack.
type AttemptLimiter struct {
	store       keyedstore.Store
	maxAttempts int64
	lockout     time.Duration
}

func NewAttemptLimiter(store keyedstore.Store) *AttemptLimiter {
	return &AttemptLimiter{store: store, maxAttempts: MaxAttempts, lockout: LockoutDuration}
}

func attemptsKey(token string) string { return "attempts:" + token }
func lockoutKey(token string) string  { return "lockout:" + token }

// Locked reports whether the token is currently locked out. Locked tokens
// are rejected before any credential evaluation runs. The lock carries a
// TTL in the store, so expiry makes the token usable again with a fresh
// failure budget.
func (l *AttemptLimiter) Locked(ctx context.Context, token string) (bool, error) {
	_, err := l.store.Get(ctx, lockoutKey(token))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, keyedstore.ErrMiss) {
		return false, nil
	}
	return false, fmt.Errorf("limiter: check lockout: %w", err)
}

// RecordFailure counts a failed attempt. The third consecutive failure sets
// a lockout and resets the counter; the return values report attempts
// remaining and whether the token just locked.
func (l *AttemptLimiter) RecordFailure(ctx context.Context, token string) (int, bool, error) {
	n, err := l.store.Incr(ctx, attemptsKey(token), l.lockout)
	if err != nil {
		return 0, false, fmt.Errorf("limiter: record failure: %w", err)
	}
	if n >= l.maxAttempts {
		if err := l.store.Set(ctx, lockoutKey(token), "1", l.lockout); err != nil {
			return 0, false, fmt.Errorf("limiter: set lockout: %w", err)
		}
		if err := l.store.Delete(ctx, attemptsKey(token)); err != nil {
			return 0, false, fmt.Errorf("limiter: reset counter: %w", err)
		}
		return 0, true, nil
	}
	remaining := int(l.maxAttempts - n)
	return remaining, false, nil
}

// Clear wipes the failure counter after a successful verification.
func (l *AttemptLimiter) Clear(ctx context.Context, token string) error {
	if err := l.store.Delete(ctx, attemptsKey(token)); err != nil {
		return fmt.Errorf("limiter: clear: %w", err)
	}
	return nil
}
