package hos

import (
	"context"
	"sync"
)

// driverLocks serializes transitions per driver inside one process. Entries
// are reference counted and removed when the last holder releases.
type driverLocks struct {
	mu    sync.Mutex
	locks map[string]*driverLock
}

type driverLock struct {
	sem  chan struct{}
	refs int
}

func newDriverLocks() *driverLocks {
	return &driverLocks{locks: make(map[string]*driverLock)}
}

// acquire blocks until the driver's lock is held or ctx is done
func (l *driverLocks) acquire(ctx context.Context, driverID string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[driverID]
	if !ok {
		lock = &driverLock{sem: make(chan struct{}, 1)}
		l.locks[driverID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(driverID, lock, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(driverID, lock, true) })
	}, nil
}

func (l *driverLocks) release(driverID string, lock *driverLock, held bool) {
	if held {
		<-lock.sem
	}
	l.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, driverID)
	}
	l.mu.Unlock()
}

func (l *driverLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
