package identity

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
)

// RateLimiter gates verification code sends.
type RateLimiter interface {
	Allow(ctx context.Context, email string) error
}

// counterStore is the slice of the redis client the limiter needs.
type counterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	CounterKey(name string) string
}

// OTPLimiter caps code sends per email over a fixed window so the external
// verifier cannot be used to spam an inbox.
type OTPLimiter struct {
	store  counterStore
	max    int64
	window time.Duration
}

func NewOTPLimiter(store counterStore, maxSends int, window time.Duration) (*OTPLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("counter store required")
	}
	if maxSends <= 0 {
		return nil, fmt.Errorf("max sends must be positive")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}
	return &OTPLimiter{store: store, max: int64(maxSends), window: window}, nil
}

func (l *OTPLimiter) Allow(ctx context.Context, email string) error {
	key := l.store.CounterKey("otp:" + email)
	n, err := l.store.IncrWithTTL(ctx, key, l.window)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "otp throttle")
	}
	if n > l.max {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many verification codes requested")
	}
	return nil
}
