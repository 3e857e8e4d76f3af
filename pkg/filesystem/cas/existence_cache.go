package cas

import (
	"sync"
	"time"

	"github.com/buildbarn/bb-file-cache/pkg/clock"
)

// existenceDeadlineDuration is the positive-cache duration used to
// avoid re-verifying that a cache file is present on disk.
const existenceDeadlineDuration = 10 * time.Second

// existenceCache remembers, for a fixed duration, that a given key was
// last observed to exist on disk. It is used both to avoid restatting
// blob files on every directory materialization and to avoid
// re-walking a materialized directory tree that was recently verified.
//
// Safe for concurrent use.
type existenceCache struct {
	clock clock.Clock

	lock      sync.Mutex
	deadlines map[string]time.Time
}

func newExistenceCache(clock clock.Clock) *existenceCache {
	return &existenceCache{
		clock:     clock,
		deadlines: map[string]time.Time{},
	}
}

// Valid reports whether key was marked present less than
// existenceDeadlineDuration ago.
func (ec *existenceCache) Valid(key string) bool {
	ec.lock.Lock()
	defer ec.lock.Unlock()
	deadline, ok := ec.deadlines[key]
	return ok && ec.clock.Now().Before(deadline)
}

// Mark records that key was just observed to exist on disk.
func (ec *existenceCache) Mark(key string) {
	ec.lock.Lock()
	defer ec.lock.Unlock()
	ec.deadlines[key] = ec.clock.Now().Add(existenceDeadlineDuration)
}

// Forget removes any cached existence record for key, e.g. because the
// underlying file was just removed.
func (ec *existenceCache) Forget(key string) {
	ec.lock.Lock()
	defer ec.lock.Unlock()
	delete(ec.deadlines, key)
}
