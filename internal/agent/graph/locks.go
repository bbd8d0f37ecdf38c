package graph

import (
	"context"
	"sync"
)

// threadLocks serialises turns per thread. Distinct threads never contend.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	ch   chan struct{}
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

// Lock blocks until the thread is free or ctx is done. The returned func releases it.
func (t *threadLocks) Lock(ctx context.Context, threadID string) (func(), error) {
	t.mu.Lock()
	l, ok := t.locks[threadID]
	if !ok {
		l = &threadLock{ch: make(chan struct{}, 1)}
		t.locks[threadID] = l
	}
	l.refs++
	t.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			t.release(threadID, l)
		}, nil
	case <-ctx.Done():
		t.release(threadID, l)
		return nil, ctx.Err()
	}
}

func (t *threadLocks) release(threadID string, l *threadLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, threadID)
	}
}

// held reports how many threads have a holder or waiter.
func (t *threadLocks) held() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
