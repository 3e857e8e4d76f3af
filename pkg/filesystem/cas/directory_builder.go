package cas

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	remoteexecution "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"

	"github.com/buildbarn/bb-file-cache/pkg/digest"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DirectoryFetcher resolves a directory digest to its REv2 Directory
// message, typically backed by the delegate's Action Cache / CAS
//.
type DirectoryFetcher interface {
	GetDirectory(ctx context.Context, directoryDigest digest.Digest) (*remoteexecution.Directory, error)
}

// PutDirectory materializes the tree rooted at treeDigest on disk and
// returns its path. Materializations of the same treeDigest
// serialize behind the directory LockMap; different digests proceed
// in parallel.
func (fc *FileCache) PutDirectory(ctx context.Context, treeDigest digest.Digest, fetcher DirectoryFetcher) (string, error) {
	key := directoryKey(treeDigest)
	unlock, err := fc.directoryLocks.Lock(ctx, key)
	if err != nil {
		return "", err
	}
	defer unlock()

	if path, ok := fc.reuseExistingDirectory(key); ok {
		return path, nil
	}

	fc.invalidateStaleDirectory(key)

	path := fc.path(key)
	acquired, err := fc.materialize(ctx, path, treeDigest, fetcher)
	if err != nil {
		fc.rollbackDirectory(key, path, acquired)
		return "", err
	}

	if err := lockdownTree(path); err != nil {
		fc.rollbackDirectory(key, path, acquired)
		return "", err
	}

	if err := fc.directoriesIndex.Put(key, acquired); err != nil {
		fc.rollbackDirectory(key, path, acquired)
		return "", err
	}

	fc.lock.Lock()
	fc.storage[key] = &entry{key: key, sizeBytes: 0, refCount: 1}
	fc.directoryEntries[key] = &directoryStorageEntry{path: path, blobKeys: acquired}
	fc.lock.Unlock()
	fc.directoryExists.Mark(key)

	return path, nil
}

// reuseExistingDirectory handles the fast path: if a DirectoryEntry
// already exists and every input it lists is still present, take a
// reference on the directory and on each of its inputs and return its
// path without touching the filesystem.
func (fc *FileCache) reuseExistingDirectory(key string) (string, bool) {
	fc.lock.Lock()
	e, ok := fc.storage[key]
	dse, dseOK := fc.directoryEntries[key]
	if !ok || !dseOK {
		fc.lock.Unlock()
		return "", false
	}
	acquired := make([]*entry, 0, len(dse.blobKeys))
	for _, blobKey := range dse.blobKeys {
		inputEntry, present := fc.storage[blobKey]
		if !present {
			for _, a := range acquired {
				fc.lru.decrementReference(a)
			}
			fc.lock.Unlock()
			return "", false
		}
		fc.lru.incrementReference(inputEntry)
		acquired = append(acquired, inputEntry)
	}
	fc.lru.incrementReference(e)
	path := dse.path
	fc.lock.Unlock()

	if fc.directoryExists.Valid(key) {
		return path, true
	}
	if _, err := os.Stat(path); err == nil {
		fc.directoryExists.Mark(key)
		return path, true
	}

	// The tree disappeared from under a valid-looking DirectoryEntry;
	// release everything we just acquired and fall through to rebuild.
	fc.lock.Lock()
	fc.lru.decrementReference(e)
	for _, a := range acquired {
		fc.lru.decrementReference(a)
	}
	fc.lock.Unlock()
	return "", false
}

// invalidateStaleDirectory discards whatever
// DirectoryEntry and on-disk tree currently occupy key.
func (fc *FileCache) invalidateStaleDirectory(key string) {
	fc.lock.Lock()
	e, ok := fc.storage[key]
	if ok {
		fc.removeFromStorageLocked(e)
	}
	delete(fc.directoryEntries, key)
	fc.directoryExists.Forget(key)
	fc.lock.Unlock()

	if err := fc.directoriesIndex.Remove(key); err != nil {
		fc.errorLogger.Log(err)
	}
	removePath(fc.path(key))
}

// materialize recursively builds the tree rooted at treeDigest at
// path, fetching file content through fc.put as needed. It returns
// the blob-keys referenced by the tree's file nodes so far, even on
// failure, so the caller can roll back partial acquisitions. File nodes
// are fetched concurrently, so the keys appear in completion order.
func (fc *FileCache) materialize(ctx context.Context, path string, treeDigest digest.Digest, fetcher DirectoryFetcher) ([]string, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	directory, err := fetcher.GetDirectory(ctx, treeDigest)
	if err != nil {
		return nil, &PutDirectoryError{Causes: []error{err}}
	}

	var acquired []string
	var causes []error
	var resultLock sync.Mutex
	recordCause := func(err error) {
		resultLock.Lock()
		causes = append(causes, err)
		resultLock.Unlock()
	}
	recordAcquired := func(blobKey string) {
		resultLock.Lock()
		acquired = append(acquired, blobKey)
		resultLock.Unlock()
	}

	files := append([]*remoteexecution.FileNode(nil), directory.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	// Every file node's content is independent of its siblings, so
	// the fetch-and-hardlink step for each one runs concurrently,
	// bounded the same way the startup rescan bounds its per-entry
	// goroutines.
	fetchGroup, _ := errgroup.WithContext(ctx)
	fetchGroup.SetLimit(runtime.NumCPU())
	for _, fileNode := range files {
		fileNode := fileNode
		targetPath := filepath.Join(path, fileNode.Name)
		if fileNode.Digest.GetSizeBytes() == 0 {
			if err := createEmptyFile(targetPath, fileNode.IsExecutable); err != nil {
				recordCause(err)
			}
			continue
		}
		fetchGroup.Go(func() error {
			fileDigest, err := treeDigest.NewDerivedDigest(fileNode.Digest)
			if err != nil {
				recordCause(err)
				return nil
			}
			cachePath, blobKey, err := fc.fetchAndReference(ctx, fileDigest, fileNode.IsExecutable)
			if err != nil {
				recordCause(err)
				return nil
			}
			if err := os.Link(cachePath, targetPath); err != nil {
				recordCause(err)
				return nil
			}
			recordAcquired(blobKey)
			return nil
		})
	}
	fetchGroup.Wait()

	symlinks := append([]*remoteexecution.SymlinkNode(nil), directory.Symlinks...)
	sort.Slice(symlinks, func(i, j int) bool { return symlinks[i].Name < symlinks[j].Name })
	for _, symlinkNode := range symlinks {
		targetPath := filepath.Join(path, symlinkNode.Name)
		if err := os.Symlink(symlinkNode.Target, targetPath); err != nil {
			causes = append(causes, err)
		}
	}

	directories := append([]*remoteexecution.DirectoryNode(nil), directory.Directories...)
	sort.Slice(directories, func(i, j int) bool { return directories[i].Name < directories[j].Name })
	for _, directoryNode := range directories {
		childDigest, err := treeDigest.NewDerivedDigest(directoryNode.Digest)
		if err != nil {
			causes = append(causes, err)
			continue
		}
		childAcquired, err := fc.materialize(ctx, filepath.Join(path, directoryNode.Name), childDigest, fetcher)
		acquired = append(acquired, childAcquired...)
		if err != nil {
			if pde, ok := err.(*PutDirectoryError); ok {
				causes = append(causes, pde.Causes...)
			} else {
				causes = append(causes, err)
			}
		}
	}

	if len(causes) > 0 {
		return acquired, &PutDirectoryError{Causes: causes}
	}
	return acquired, nil
}

func createEmptyFile(path string, executable bool) error {
	mode := os.FileMode(0o444)
	if executable {
		mode = 0o555
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	return f.Close()
}

// fetchAndReference ensures fileDigest is present locally under the
// given executable bit, taking a reference on it, and returns its
// cache path and blob-key.
func (fc *FileCache) fetchAndReference(ctx context.Context, fileDigest digest.Digest, executable bool) (string, string, error) {
	key := blobKey(fileDigest, executable)

	fc.lock.Lock()
	if e, ok := fc.storage[key]; ok {
		fc.lru.incrementReference(e)
		fc.lock.Unlock()
		return fc.path(key), key, nil
	}
	fc.lock.Unlock()

	if fc.delegate == nil {
		return "", "", ErrNotFound
	}

	w, err := fc.getWrite(ctx, fileDigest, executable, uuid.NewString(), nil, nil)
	if err != nil {
		return "", "", err
	}
	if w.duplicate {
		path, err := w.Close()
		return path, key, err
	}

	b := fc.delegate.Get(ctx, fileDigest)
	path, err := ingestFully(w, b)
	if err != nil {
		return "", "", err
	}
	return path, key, nil
}

// lockdownTree recursively clears write permission bits from path and
// everything beneath it.
func lockdownTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		mode := info.Mode().Perm() &^ 0o222
		return os.Chmod(path, mode)
	})
}

// rollbackDirectory undoes a failed materialization: remove the index entry,
// release every input reference acquired so far, and delete the
// partially materialized tree.
func (fc *FileCache) rollbackDirectory(key, path string, acquired []string) {
	if err := fc.directoriesIndex.Remove(key); err != nil {
		fc.errorLogger.Log(err)
	}

	fc.lock.Lock()
	for _, blobKey := range acquired {
		if e, ok := fc.storage[blobKey]; ok {
			fc.lru.decrementReference(e)
		}
	}
	fc.cond.Broadcast()
	fc.lock.Unlock()

	removePath(path)
}
