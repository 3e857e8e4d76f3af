package cas

import (
	"context"
	"sync"
)

// lockMap hands out per-key mutual exclusion, reclaiming entries once
// their last holder releases them. It is used to serialize
// materialization of the same directory digest while allowing
// unrelated digests to materialize in parallel.
type lockMap struct {
	lock    sync.Mutex
	entries map[string]*lockMapEntry
}

type lockMapEntry struct {
	waiters int
	busy    chan struct{}
}

func newLockMap() *lockMap {
	return &lockMap{
		entries: map[string]*lockMapEntry{},
	}
}

// Lock acquires the lock for key, blocking until it is available or
// ctx is canceled. The returned function releases the lock and must be
// called exactly once.
func (m *lockMap) Lock(ctx context.Context, key string) (func(), error) {
	for {
		m.lock.Lock()
		e, ok := m.entries[key]
		if !ok {
			e = &lockMapEntry{busy: make(chan struct{}, 1)}
			m.entries[key] = e
		}
		e.waiters++
		busy := e.busy
		m.lock.Unlock()

		select {
		case busy <- struct{}{}:
			return func() { m.unlock(key, e) }, nil
		case <-ctx.Done():
			m.lock.Lock()
			e.waiters--
			if e.waiters == 0 {
				delete(m.entries, key)
			}
			m.lock.Unlock()
			return nil, ctx.Err()
		}
	}
}

func (m *lockMap) unlock(key string, e *lockMapEntry) {
	<-e.busy
	m.lock.Lock()
	e.waiters--
	if e.waiters == 0 {
		delete(m.entries, key)
	}
	m.lock.Unlock()
}
