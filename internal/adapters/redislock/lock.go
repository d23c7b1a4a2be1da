package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/teatimedev/polymarket-trader/internal/domain"
	"github.com/teatimedev/polymarket-trader/internal/ports"
)

// unlockLua deletes the key only if it still holds the caller's token, so a holder
// whose TTL expired can never release the next holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const (
	DefaultTTL  = 30 * time.Second
	defaultPoll = 100 * time.Millisecond
)

// Backend is the part of go-redis the locker needs. *redis.Client satisfies it.
type Backend interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Locker implements ports.AccountLocker with SET NX + TTL and a Lua conditional unlock.
type Locker struct {
	rdb    Backend
	unlock *redis.Script
	ttl    time.Duration
	poll   time.Duration
}

var _ ports.AccountLocker = (*Locker)(nil)

// New creates a Locker. ttl bounds how long a crashed holder can block others.
func New(rdb Backend, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{
		rdb:    rdb,
		unlock: redis.NewScript(unlockLua),
		ttl:    ttl,
		poll:   defaultPoll,
	}
}

func lockKey(account string) string {
	return "lock:orders:" + account
}

// TryLock makes one attempt. It returns domain.ErrLockHeld when another holder has the key.
func (l *Locker) TryLock(ctx context.Context, account string) (func(), error) {
	token := uuid.New().String()
	key := lockKey(account)

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redislock: acquire %s: %v: %w", account, err, domain.ErrProviderUnavailable)
	}
	if !ok {
		return nil, fmt.Errorf("redislock: %s: %w", account, domain.ErrLockHeld)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be cancelled
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := l.unlock.Run(unlockCtx, l.rdb, []string{key}, token).Err(); err != nil {
				slog.Warn("redis unlock failed, lock expires with its ttl", "account", account, "err", err)
			}
		})
	}, nil
}

// Lock waits until the account lock is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, account string) (func(), error) {
	for {
		unlock, err := l.TryLock(ctx, account)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, err
		}

		t := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("redislock: wait for %s: %w", account, errors.Join(domain.ErrLockHeld, ctx.Err()))
		case <-t.C:
		}
	}
}
