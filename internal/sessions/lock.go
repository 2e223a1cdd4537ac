package sessions

import (
	"context"
	"sync"
)

// OwnerLocker serializes session creation per owner. The returned unlock
// func must be called exactly once.
type OwnerLocker interface {
	Lock(ctx context.Context, ownerID string) (unlock func(), error)
}

// LocalLocker is an in-process keyed mutex.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
}

type ownerLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*ownerLock)}
}

// Lock blocks until ownerID is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, ownerID string) (func(), error) {
	l.mu.Lock()
	ol, ok := l.locks[ownerID]
	if !ok {
		ol = &ownerLock{ch: make(chan struct{}, 1)}
		l.locks[ownerID] = ol
	}
	ol.refs++
	l.mu.Unlock()

	select {
	case ol.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(ownerID, ol)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ol.ch
			l.release(ownerID, ol)
		})
	}, nil
}

func (l *LocalLocker) release(ownerID string, ol *ownerLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ol.refs--
	if ol.refs == 0 {
		delete(l.locks, ownerID)
	}
}
