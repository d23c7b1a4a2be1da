package orders

import (
	"context"
	"sync"

	"github.com/teatimedev/polymarket-trader/internal/ports"
)

// LocalLocker serializes submissions per account inside one process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

var _ ports.AccountLocker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

// Lock blocks until the account is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, account string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[account]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[account] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
	default:
		select {
		case slot <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(func() { <-slot }) }, nil
}
