package cas

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/buildbarn/bb-file-cache/pkg/clock"
	"github.com/buildbarn/bb-file-cache/pkg/digest"
	"github.com/buildbarn/bb-file-cache/pkg/util"

	"github.com/google/uuid"
)

// Hooks let a caller observe the cache's internal lifecycle events
// without requiring a bespoke event bus; all are optional.
type Hooks struct {
	// OnPut is invoked every time a blob-key transitions from absent
	// to present, whether through Put, a write, or the startup scan.
	OnPut func(key string, sizeBytes int64)
	// OnPutAll is invoked once after the startup scan completes.
	OnPutAll func(count int, sizeBytes int64)
	// OnExpire is invoked whenever an entry is evicted.
	OnExpire func(key string, sizeBytes int64)
}

// FileCache is a content-addressable file cache: a single on-disk
// root holding hash-named blobs and hard-link
// materialized directory trees, governed by one reference-counted LRU
// and an auxiliary DirectoriesIndex.
//
// FileCache acts as its own monitor: storage, lru, sizeBytes and
// directoryEntries are all only ever mutated while
// holding lock, a single mutex guarding all block bookkeeping.
type FileCache struct {
	name              string
	root              string
	digestFunction    digest.Function
	maxSizeBytes      int64
	maxEntrySizeBytes int64
	directoriesIndex  DirectoriesIndex
	delegate          Delegate
	clock             clock.Clock
	errorLogger       util.ErrorLogger
	hooks             Hooks

	directoryLocks  *lockMap
	directoryExists *existenceCache
	writes          *writeRegistry

	lock             sync.Mutex
	cond             *sync.Cond
	storage          map[string]*entry
	lru              *lruList
	sizeBytes        int64
	directoryEntries map[string]*directoryStorageEntry
	evictedCount     uint64
	evictedSizeBytes uint64
}

// directoryStorageEntry records, for a materialized directory tree,
// the ordered blob-keys its leaves reference -- the same information
// held by the DirectoriesIndex, cached here to avoid round-tripping
// through it on the materialization fast path.
type directoryStorageEntry struct {
	path     string
	blobKeys []string
}

// NewFileCache constructs a FileCache rooted at root. Start must be
// called before use. name labels this instance's Prometheus metrics;
// multiple FileCache instances in one process must use distinct names.
func NewFileCache(name, root string, digestFunction digest.Function, maxSizeBytes, maxEntrySizeBytes int64, directoriesIndex DirectoriesIndex, delegate Delegate, clk clock.Clock, errorLogger util.ErrorLogger, hooks Hooks) *FileCache {
	fc := &FileCache{
		name:              name,
		root:              root,
		digestFunction:    digestFunction,
		maxSizeBytes:      maxSizeBytes,
		maxEntrySizeBytes: maxEntrySizeBytes,
		directoriesIndex:  directoriesIndex,
		delegate:          delegate,
		clock:             clk,
		errorLogger:       errorLogger,
		hooks:             hooks,

		directoryLocks:  newLockMap(),
		directoryExists: newExistenceCache(clk),

		storage:          map[string]*entry{},
		lru:              newLRUList(),
		directoryEntries: map[string]*directoryStorageEntry{},
	}
	fc.cond = sync.NewCond(&fc.lock)
	fc.writes = newWriteRegistry(clk)
	return fc
}

func (fc *FileCache) path(key string) string {
	return filepath.Join(fc.root, key)
}

// Contains reports whether blobDigest is present locally (under
// either executable variant) or, failing that, in the delegate.
// A local hit records an access.
func (fc *FileCache) Contains(ctx context.Context, blobDigest digest.Digest) bool {
	for _, executable := range [...]bool{false, true} {
		key := blobKey(blobDigest, executable)
		fc.lock.Lock()
		e, ok := fc.storage[key]
		if ok {
			fc.lru.touch(e)
		}
		fc.lock.Unlock()
		if ok {
			return true
		}
	}
	if fc.delegate == nil {
		return false
	}
	missing, err := fc.delegate.FindMissing(ctx, digest.NewSetBuilder().Add(blobDigest).Build())
	if err != nil {
		return false
	}
	return missing.Empty()
}

// FindMissing returns the subset of digests not present locally,
// further filtered through the delegate if one is configured.
func (fc *FileCache) FindMissing(ctx context.Context, digests digest.Set) (digest.Set, error) {
	sb := digest.NewSetBuilder()
	for _, d := range digests.Items() {
		local := false
		for _, executable := range [...]bool{false, true} {
			key := blobKey(d, executable)
			fc.lock.Lock()
			e, ok := fc.storage[key]
			if ok {
				fc.lru.touch(e)
			}
			fc.lock.Unlock()
			if ok {
				local = true
				break
			}
		}
		if !local {
			sb = sb.Add(d)
		}
	}
	locallyMissing := sb.Build()
	if fc.delegate == nil || locallyMissing.Empty() {
		return locallyMissing, nil
	}
	return fc.delegate.FindMissing(ctx, locallyMissing)
}

// Size returns the total number of bytes currently occupied by blobs
// and directory trees.
func (fc *FileCache) Size() int64 {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	return fc.sizeBytes
}

// EntryCount returns the number of storage entries, referenced or not.
func (fc *FileCache) EntryCount() int {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	return len(fc.storage)
}

// UnreferencedEntryCount returns the number of entries eligible for
// eviction (ref_count == 0), i.e. the length of the LRU list.
func (fc *FileCache) UnreferencedEntryCount() int {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	n := 0
	for e := fc.lru.header.next; e != &fc.lru.header; e = e.next {
		n++
	}
	return n
}

// DirectoryStorageCount returns the number of materialized directory
// trees currently registered.
func (fc *FileCache) DirectoryStorageCount() int {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	return len(fc.directoryEntries)
}

// GetEvictedCount returns the lifetime number of evicted entries.
func (fc *FileCache) GetEvictedCount() uint64 {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	return fc.evictedCount
}

// GetEvictedSize returns the lifetime number of bytes freed by eviction.
func (fc *FileCache) GetEvictedSize() uint64 {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	return fc.evictedSizeBytes
}

// Put writes blob as a non-executable entry, idempotent on collision.
// Ingestion failures are logged, never returned to the caller. Unlike
// GetWrite, Put exposes no handle the caller can use to release the
// reference Close takes on install, so Put releases it itself the
// moment the write completes: a plain Put leaves its entry
// immediately evictable, exactly as if nobody had ever held it.
func (fc *FileCache) Put(ctx context.Context, blobDigest digest.Digest, data []byte) {
	key := blobKey(blobDigest, false)
	w, err := fc.getWrite(ctx, blobDigest, false, uuid.NewString(), nil, nil)
	if err != nil {
		fc.errorLogger.Log(err)
		return
	}
	if w.duplicate {
		w.Close()
		fc.DecrementReferences([]string{key}, nil)
		return
	}
	if _, err := w.Write(data); err != nil {
		w.Cancel()
		fc.errorLogger.Log(err)
		return
	}
	if _, err := w.Close(); err != nil {
		fc.errorLogger.Log(err)
		return
	}
	fc.DecrementReferences([]string{key}, nil)
}

// DecrementReferences atomically decrements the reference count of
// every blob-key and directory-digest in the given sets, waking any
// goroutine blocked in waitForLastUnreferenced.
func (fc *FileCache) DecrementReferences(blobKeys []string, directoryDigests []digest.Digest) {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	for _, key := range blobKeys {
		if e, ok := fc.storage[key]; ok {
			fc.lru.decrementReference(e)
		}
	}
	for _, d := range directoryDigests {
		key := directoryKey(d)
		if dse, ok := fc.directoryEntries[key]; ok {
			for _, blobKey := range dse.blobKeys {
				if e, ok := fc.storage[blobKey]; ok {
					fc.lru.decrementReference(e)
				}
			}
		}
		// Every successful PutDirectory (fast-path reuse or fresh
		// materialization) takes one reference on the directory's own
		// entry in addition to its inputs'; release it here so the
		// directory itself becomes evictable once its last holder lets
		// go, matching the reference it took in directory_builder.go.
		if e, ok := fc.storage[key]; ok {
			fc.lru.decrementReference(e)
		}
	}
	fc.cond.Broadcast()
}

// removeFromStorageLocked atomically removes e from the storage map
// and LRU list, discharging its size from the budget. Callers must
// hold fc.lock. e is only unlinked from the LRU list if it is
// currently on it (refCount == 0): most call sites only ever reach a
// zero-reference entry, but self-healing removal (a vanished on-disk
// file detected on read, or a stale directory entry invalidated out
// from under a concurrent holder) can observe a referenced entry
// here too, and such an entry was never linked in the first place.
func (fc *FileCache) removeFromStorageLocked(e *entry) {
	if fc.storage[e.key] == e {
		delete(fc.storage, e.key)
	}
	if e.refCount == 0 {
		fc.lru.unlink(e)
	}
	fc.sizeBytes -= e.sizeBytes
	fc.evictedCount++
	fc.evictedSizeBytes += uint64(e.sizeBytes)
	cafcEvictedCount.WithLabelValues(fc.name).Inc()
	cafcEvictedSizeBytes.WithLabelValues(fc.name).Add(float64(e.sizeBytes))
}

func (fc *FileCache) fireOnPut(key string, sizeBytes int64) {
	if fc.hooks.OnPut != nil {
		fc.hooks.OnPut(key, sizeBytes)
	}
}

func (fc *FileCache) fireOnExpire(key string, sizeBytes int64) {
	if fc.hooks.OnExpire != nil {
		fc.hooks.OnExpire(key, sizeBytes)
	}
}

// removePath deletes the on-disk object at key, tolerating its prior
// absence (self-healing: a missing file is not an error).
func removePath(path string) error {
	if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// waitForLastUnreferenced blocks until the LRU list is non-empty,
// i.e. until some entry has a reference count of zero, or the context
// is canceled. Callers must hold fc.lock; it is released while
// waiting and re-acquired before returning, following the usual
// sync.Cond idiom for monitor-style blocking waits.
func (fc *FileCache) waitForLastUnreferenced(ctx context.Context) error {
	done := make(chan struct{})
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				fc.cond.Broadcast()
			case <-done:
			}
		}()
		defer close(done)
	}
	for fc.lru.empty() {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		fc.cond.Wait()
	}
	return nil
}
