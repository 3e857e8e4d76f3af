package cas

import (
	"context"
	"os"
	"strings"

	"github.com/buildbarn/bb-file-cache/pkg/blobstore/buffer"
)

// expireOneLocked evicts the single least-recently-used entry.
// The caller must hold fc.lock; it is released while performing
// blocking I/O (the delegate cascade and file removal) and re-acquired
// before returning, matching wait_for_last_unreferenced's contract of
// always returning with the monitor held.
func (fc *FileCache) expireOneLocked(ctx context.Context) error {
	if err := fc.waitForLastUnreferenced(ctx); err != nil {
		return err
	}
	if fc.sizeBytes <= fc.maxSizeBytes {
		return nil
	}

	e := fc.lru.leastRecentlyUsed()
	if e.refCount != 0 {
		panic("least-recently-used entry has a non-zero reference count")
	}
	key := e.key
	sizeBytes := e.sizeBytes
	onExpiration := e.onExpiration
	path := fc.path(key)

	fc.removeFromStorageLocked(e)
	if isDirectoryKey(key) {
		delete(fc.directoryEntries, key)
		fc.directoryExists.Forget(key)
	}

	var affectedDirectories []string
	fc.lock.Unlock()

	if err := fc.cascadeToDelegate(ctx, key, path); err != nil {
		fc.lock.Lock()
		return err
	}
	if isDirectoryKey(key) {
		if err := fc.directoriesIndex.Remove(key); err != nil {
			fc.errorLogger.Log(err)
		}
		removePath(path)
	} else {
		var err error
		affectedDirectories, err = fc.directoriesIndex.RemoveEntry(key)
		if err != nil {
			fc.errorLogger.Log(err)
		}
		removePath(path)
		for _, directoryKey := range affectedDirectories {
			fc.expireDirectory(directoryKey)
		}
	}

	fc.fireOnExpire(key, sizeBytes)
	if onExpiration != nil {
		onExpiration()
	}

	fc.lock.Lock()
	return nil
}

func isDirectoryKey(key string) bool {
	return strings.HasSuffix(key, directorySuffix)
}

// expireDirectory removes a directory that transitively referenced an
// evicted blob: its on-disk tree, its DirectoriesIndex forward
// mapping, and its DirectoryStorage entry.
func (fc *FileCache) expireDirectory(directoryKey string) {
	fc.lock.Lock()
	e, ok := fc.storage[directoryKey]
	if ok {
		if e.refCount != 0 {
			// Referenced directories cannot be invalidated out
			// from under their holders; leave it be.
			fc.lock.Unlock()
			return
		}
		fc.removeFromStorageLocked(e)
	}
	delete(fc.directoryEntries, directoryKey)
	fc.directoryExists.Forget(directoryKey)
	fc.lock.Unlock()

	if err := fc.directoriesIndex.Remove(directoryKey); err != nil {
		fc.errorLogger.Log(err)
	}
	removePath(fc.path(directoryKey))
	if ok {
		fc.fireOnExpire(directoryKey, e.sizeBytes)
	}
}

// cascadeToDelegate streams the evicted object through the delegate's
// write path on a best-effort basis: any I/O error is logged rather
// than propagated, so eviction is never blocked on an unreachable
// delegate. The one exception is the context carried by the caller
// being cancelled mid-stream: that is reported back to
// expireOneLocked as the expiration's terminal error, rather than
// silently discarded, mirroring the teacher's treatment of an
// interrupted discharge as a reportable failure rather than a
// background no-op.
func (fc *FileCache) cascadeToDelegate(ctx context.Context, key, path string) error {
	if fc.delegate == nil || isDirectoryKey(key) {
		return nil
	}
	blobDigest, executable, ok := parseBlobKey(fc.digestFunction, key, statSize(path))
	if !ok {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	_ = executable
	b := buffer.NewValidatedBufferFromReaderAt(f, blobDigest.GetSizeBytes())
	if err := fc.delegate.Put(ctx, blobDigest, b); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		fc.errorLogger.Log(err)
	}
	return nil
}

func statSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}
