package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pinksky/orderflow/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyDiscountAttempt = "orderflow:ratelimit:discount:%s"

// CheckoutGuard throttles discount code guessing and serializes payment
// callbacks. A nil or disabled guard allows everything.
type CheckoutGuard struct {
	bucket *TokenBucket
	locker *Locker

	attemptRate  float64
	attemptBurst int
	lockTTL      time.Duration
}

func NewCheckoutGuard(cfg config.Config, client *redis.Client) *CheckoutGuard {
	if client == nil {
		return nil
	}
	g := &CheckoutGuard{
		bucket:       NewTokenBucket(client),
		locker:       NewLocker(client),
		attemptRate:  cfg.Redis.DiscountAttemptRate,
		attemptBurst: cfg.Redis.DiscountAttemptBurst,
		lockTTL:      cfg.Redis.CallbackLockTTL,
	}
	if g.lockTTL <= 0 {
		g.lockTTL = 30 * time.Second
	}
	return g
}

func (g *CheckoutGuard) Enabled() bool {
	return g != nil && g.bucket != nil && g.locker != nil
}

// AllowDiscountAttempt limits code attempts per subject (a session id or a
// checkout id).
func (g *CheckoutGuard) AllowDiscountAttempt(ctx context.Context, subject string) (bool, error) {
	if !g.Enabled() || g.attemptRate <= 0 || g.attemptBurst <= 0 {
		return true, nil
	}
	res, err := g.bucket.Allow(ctx, fmt.Sprintf(keyDiscountAttempt, strings.TrimSpace(subject)), g.attemptRate, g.attemptBurst)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

// LockPaymentCallback returns ok=true with an empty token when locking is off.
func (g *CheckoutGuard) LockPaymentCallback(ctx context.Context, paymentID string) (string, bool, error) {
	if !g.Enabled() {
		return "", true, nil
	}
	return g.locker.Acquire(ctx, ScopePaymentCallback, paymentID, g.lockTTL)
}

func (g *CheckoutGuard) ReleasePaymentCallback(ctx context.Context, paymentID, token string) error {
	if !g.Enabled() {
		return nil
	}
	return g.locker.Release(ctx, ScopePaymentCallback, paymentID, token)
}
