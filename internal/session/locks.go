package session

import (
	"context"
	"sync"
)

// Locks serializes work per user. Each user id gets its own single-slot
// lock; different users never contend. Idle entries are dropped as soon as
// the last holder or waiter releases them.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	slot chan struct{}
	refs int
}

func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*userLock)}
}

// Acquire blocks until the caller owns userID's scope or ctx is done. The
// returned release func must be called exactly once on success.
func (l *Locks) Acquire(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{slot: make(chan struct{}, 1)}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case ul.slot <- struct{}{}:
	case <-ctx.Done():
		l.unref(userID, ul)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ul.slot
			l.unref(userID, ul)
		})
	}, nil
}

// Do runs fn while holding userID's scope.
func (l *Locks) Do(ctx context.Context, userID string, fn func() error) error {
	release, err := l.Acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// ActiveCount reports how many users currently hold or wait on a lock.
func (l *Locks) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *Locks) unref(userID string, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.refs--
	if ul.refs == 0 && l.locks[userID] == ul {
		delete(l.locks, userID)
	}
}
