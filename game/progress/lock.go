package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/learnquest/cache"
	"github.com/kasuganosora/learnquest/metrics"
	"go.uber.org/zap"
)

const (
	defaultLockTTL  = 10 * time.Second
	defaultLockWait = 5 * time.Second
	lockPoll        = 15 * time.Millisecond
)

func lockKey(userID string) string { return "lock:progress:" + userID }

// userLock serialises one user's progress writes through SetNX on the
// shared cache, so with Redis it holds across server instances.
type userLock struct {
	cache  cache.Cache
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// acquire blocks until the user's lock is held, ctx ends or the wait
// budget runs out. The returned release is safe to call once.
func (l *userLock) acquire(ctx context.Context, userID string) (func(), error) {
	if l.cache == nil {
		return func() {}, nil
	}
	key := lockKey(userID)
	token := uuid.NewString()
	start := time.Now()
	deadline := start.Add(l.wait)

	for {
		ok, err := l.cache.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire progress lock: %w", err)
		}
		if ok {
			metrics.ObserveLockWait(time.Since(start))
			return func() { l.release(ctx, key, token) }, nil
		}
		if time.Now().After(deadline) {
			metrics.ObserveLockWait(time.Since(start))
			return nil, fmt.Errorf("%w: lock %s held longer than %s", ErrBusy, userID, l.wait)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPoll):
		}
	}
}

func (l *userLock) release(ctx context.Context, key, token string) {
	// Release even when the request context is already cancelled.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if _, err := l.cache.DelIfEquals(rctx, key, token); err != nil {
		l.logger.Warn("release progress lock failed", zap.String("key", key), zap.Error(err))
	}
}
