package session

import (
	"context"
	"sync"
)

// Locker scopes mutual exclusion to a market ID. The orchestrator holds
// the lock for the full join critical section so two concurrent joins
// can never both act as "first join". A single-instance deployment uses
// KeyedLock; multi-instance deployments use the Redis-backed locker.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// KeyedLock is an in-process Locker: one semaphore per key. Entries are
// never removed — the key space is the set of market IDs, which is
// small and bounded by market creation.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewKeyedLock creates an empty in-process locker.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]chan struct{})}
}

func (k *KeyedLock) sem(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()

	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	return ch
}

// Acquire blocks until the key's lock is held or ctx is done.
func (k *KeyedLock) Acquire(ctx context.Context, key string) (func(), error) {
	sem := k.sem(key)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() { <-sem })
	}
	return release, nil
}
