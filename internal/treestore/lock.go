package treestore

import (
	"context"
	"sync"
	"time"
)

type UnlockFunc func()

// Locker serializes read-modify-write cycles on a single tree. The ttl
// bounds how long a distributed lock may outlive a crashed holder; local
// implementations ignore it.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

// LocalLocker hands out one mutex per key for the lifetime of the process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, key string, _ time.Duration) (UnlockFunc, error) {
	slot := l.slot(key)
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.locks[key]
	if ok {
		return slot
	}
	slot = make(chan struct{}, 1)
	l.locks[key] = slot
	return slot
}
