package game

import (
	"context"
	"sync"
)

// Locker hands out one mutex per player so actions on the same game run one
// at a time. Entries are dropped when nobody holds or waits for them.
type Locker struct {
	mu    sync.Mutex
	locks map[PlayerID]*playerLock
}

type playerLock struct {
	sem  chan struct{}
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[PlayerID]*playerLock)}
}

// Lock blocks until id's lock is held or ctx is done. The returned func
// releases it and must be called exactly once.
func (l *Locker) Lock(ctx context.Context, id PlayerID) (func(), error) {
	l.mu.Lock()
	pl, ok := l.locks[id]
	if !ok {
		pl = &playerLock{sem: make(chan struct{}, 1)}
		l.locks[id] = pl
	}
	pl.refs++
	l.mu.Unlock()

	select {
	case pl.sem <- struct{}{}:
		return func() {
			<-pl.sem
			l.release(id, pl)
		}, nil
	case <-ctx.Done():
		l.release(id, pl)
		return nil, ctx.Err()
	}
}

func (l *Locker) release(id PlayerID, pl *playerLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pl.refs--
	if pl.refs == 0 {
		delete(l.locks, id)
	}
}

// Len is the number of players with a held or awaited lock.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
