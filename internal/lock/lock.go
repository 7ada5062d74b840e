// Package lock предоставляет блокировки по ключу для сериализации операций над кошельком магазина.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/mmeshcher/storefront-payouts/internal/model"
)

// Locker захватывает блокировку по ключу. Release освобождает её.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// MemoryLocker блокировки внутри одного процесса.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewMemoryLocker создаёт MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]chan struct{})}
}

func (m *MemoryLocker) slot(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.slots[key] = ch
	}
	return ch
}

// Acquire ждёт освобождения ключа или отмены контекста.
func (m *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	ch := m.slot(key)

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("lock %s: %w: %w", key, model.ErrLockHeld, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
