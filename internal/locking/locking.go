// Package locking serializes writes to a single group's ledger.
package locking

import (
	"context"
	"sync"
)

// Locker grants exclusive access to one group at a time. The returned
// unlock func is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, groupID string) (unlock func(), err error)
}

type entry struct {
	sem  chan struct{}
	refs int
}

// Local is a process-wide keyed mutex. Waiters give up when ctx is done.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

func (l *Local) Lock(ctx context.Context, groupID string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[groupID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.locks[groupID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(groupID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(groupID, e)
		})
	}, nil
}

func (l *Local) release(groupID string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, groupID)
	}
}

// held reports how many callers hold or wait for groupID.
func (l *Local) held(groupID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.locks[groupID]; ok {
		return e.refs
	}
	return 0
}
