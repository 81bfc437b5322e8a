package concurrency

import (
	"context"
	"sync"

	apperrors "github.com/Pranjal0410/real-estate-project-sub000/internal/errors"
)

// keyLock is a one-slot semaphore shared by every waiter on the same key.
type keyLock struct {
	slot chan struct{}
	refs int
}

// LockRegistry hands out exclusive in-process locks per aggregate key.
// Uses per-key locks instead of a global lock; entries are dropped once no
// goroutine holds or waits on them.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewLockRegistry creates an empty lock registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is held or ctx is done. The returned release func
// must be called exactly once.
func (r *LockRegistry) Lock(ctx context.Context, key string) (func(), error) {
	r.mu.Lock()
	l := r.locks[key]
	if l == nil {
		l = &keyLock{slot: make(chan struct{}, 1)}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		r.unref(key, l)
		return nil, apperrors.Wrap(apperrors.ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.slot
			r.unref(key, l)
		})
	}, nil
}

// LockAll acquires keys in the order given, skipping duplicates. On failure
// every lock already taken is released before returning.
func (r *LockRegistry) LockAll(ctx context.Context, keys ...string) (func(), error) {
	releases := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		release, err := r.Lock(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// Len reports how many keys are currently held or awaited.
func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

func (r *LockRegistry) unref(key string, l *keyLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 && r.locks[key] == l {
		delete(r.locks, key)
	}
}
