package cas

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"syscall"
	"time"

	remoteexecution "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"

	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/proto"
)

// StartupCacheResults summarizes a completed startup rescan.
type StartupCacheResults struct {
	BlobsLoaded         int
	BlobsRejected       int
	DirectoriesLoaded   int
	DirectoriesRejected int
	SizeBytes           int64
}

// fileIdentity identifies an on-disk file by device and inode, used
// to recognize which blob a hard-linked directory entry refers back
// to during the startup rescan's Compute phase. This relies on
// POSIX hard-link semantics (same (dev, ino) pair); there is no
// portable Go standard library equivalent, so syscall.Stat_t is used
// directly.
type fileIdentity struct {
	dev, ino uint64
}

func identityOf(info os.FileInfo) (fileIdentity, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fileIdentity{}, false
	}
	return fileIdentity{dev: uint64(stat.Dev), ino: stat.Ino}, true
}

// Start prepares the cache for use. If skipLoad is true, the root is
// wiped and recreated empty. Otherwise a bounded-concurrency rescan
// recovers state from a pre-existing root, after which the
// DirectoriesIndex is started and the write-registry idle-TTL reaper
// is launched in the background.
func (fc *FileCache) Start(ctx context.Context, skipLoad bool, writeIdleReapInterval time.Duration) (StartupCacheResults, error) {
	var results StartupCacheResults

	if skipLoad {
		if err := os.RemoveAll(fc.root); err != nil {
			return results, err
		}
		if err := os.MkdirAll(fc.root, 0o755); err != nil {
			return results, err
		}
		if err := fc.directoriesIndex.Start(); err != nil {
			return results, err
		}
		fc.startReaper(writeIdleReapInterval)
		return results, nil
	}

	identities := map[fileIdentity]string{}
	var identitiesLock sync.Mutex

	var toDelete []string
	var toDeleteLock sync.Mutex
	scheduleDelete := func(name string) {
		toDeleteLock.Lock()
		toDelete = append(toDelete, name)
		toDeleteLock.Unlock()
	}

	var directoryNames []string

	dirents, err := os.ReadDir(fc.root)
	if err != nil {
		return results, err
	}

	scanGroup, scanCtx := errgroup.WithContext(ctx)
	scanGroup.SetLimit(runtime.NumCPU())
	var resultsLock sync.Mutex

	for _, dirent := range dirents {
		dirent := dirent
		name := dirent.Name()

		if isDirectoryKey(name) {
			if dirent.IsDir() {
				directoryNames = append(directoryNames, name)
			} else {
				scheduleDelete(name)
			}
			continue
		}

		scanGroup.Go(func() error {
			if scanCtx.Err() != nil {
				return scanCtx.Err()
			}
			info, err := dirent.Info()
			if err != nil {
				scheduleDelete(name)
				return nil
			}
			blobDigest, executable, ok := parseBlobKey(fc.digestFunction, name, info.Size())
			accept := ok &&
				info.Size() > 0 &&
				info.Size() <= fc.maxEntrySizeBytes &&
				(info.Mode().Perm()&0o111 != 0) == executable
			if !accept {
				scheduleDelete(name)
				return nil
			}

			resultsLock.Lock()
			overflow := results.SizeBytes+blobDigest.GetSizeBytes() > fc.maxSizeBytes
			if !overflow {
				results.SizeBytes += blobDigest.GetSizeBytes()
				results.BlobsLoaded++
			} else {
				results.BlobsRejected++
			}
			resultsLock.Unlock()
			if overflow {
				scheduleDelete(name)
				return nil
			}

			e := &entry{key: name, sizeBytes: blobDigest.GetSizeBytes()}
			fc.lock.Lock()
			fc.storage[name] = e
			fc.lru.linkAtMostRecentlyUsed(e)
			fc.sizeBytes += e.sizeBytes
			fc.lock.Unlock()

			if id, ok := identityOf(info); ok {
				identitiesLock.Lock()
				identities[id] = name
				identitiesLock.Unlock()
			}
			return nil
		})
	}
	if err := scanGroup.Wait(); err != nil {
		return results, err
	}

	computeGroup, computeCtx := errgroup.WithContext(ctx)
	computeGroup.SetLimit(runtime.NumCPU())
	for _, name := range directoryNames {
		name := name
		computeGroup.Go(func() error {
			if computeCtx.Err() != nil {
				return computeCtx.Err()
			}
			inputs, ok := fc.computeDirectory(fc.path(name), name, identities)
			if !ok {
				scheduleDelete(name)
				resultsLock.Lock()
				results.DirectoriesRejected++
				resultsLock.Unlock()
				return nil
			}
			if err := fc.directoriesIndex.Put(name, inputs); err != nil {
				return err
			}
			e := &entry{key: name, refCount: 1}
			fc.lock.Lock()
			fc.storage[name] = e
			fc.directoryEntries[name] = &directoryStorageEntry{path: fc.path(name), blobKeys: inputs}
			for _, blobKey := range inputs {
				if inputEntry, ok := fc.storage[blobKey]; ok {
					fc.lru.incrementReference(inputEntry)
				}
			}
			fc.lock.Unlock()
			fc.directoryExists.Mark(name)

			resultsLock.Lock()
			results.DirectoriesLoaded++
			resultsLock.Unlock()
			return nil
		})
	}
	if err := computeGroup.Wait(); err != nil {
		return results, err
	}

	for _, name := range toDelete {
		removePath(fc.path(name))
	}

	if err := fc.directoriesIndex.Start(); err != nil {
		return results, err
	}
	if fc.hooks.OnPutAll != nil {
		fc.hooks.OnPutAll(results.BlobsLoaded, results.SizeBytes)
	}
	fc.startReaper(writeIdleReapInterval)
	return results, nil
}

// computeDirectory reconstructs the Directory message materialized at
// path by walking it in sorted dirent order and looking up each
// file's identity in the scan's fileKey -> blob-key map, then verifies
// the reconstructed message's digest matches directoryName.
func (fc *FileCache) computeDirectory(path, directoryName string, identities map[fileIdentity]string) ([]string, bool) {
	directory, inputs, ok := fc.walkForCompute(path, identities)
	if !ok {
		return nil, false
	}

	data, err := proto.Marshal(directory)
	if err != nil {
		return nil, false
	}
	generator := fc.digestFunction.NewGenerator(int64(len(data)))
	if _, err := generator.Write(data); err != nil {
		return nil, false
	}
	computed := generator.Sum()

	expected, ok := parseDirectoryKey(fc.digestFunction, directoryName)
	if !ok || computed.GetHashString() != expected.GetHashString() || computed.GetSizeBytes() != expected.GetSizeBytes() {
		return nil, false
	}
	return inputs, true
}

func (fc *FileCache) walkForCompute(path string, identities map[fileIdentity]string) (*remoteexecution.Directory, []string, bool) {
	dirents, err := os.ReadDir(path)
	if err != nil {
		return nil, nil, false
	}
	sort.Slice(dirents, func(i, j int) bool { return dirents[i].Name() < dirents[j].Name() })

	directory := &remoteexecution.Directory{}
	var inputs []string
	for _, dirent := range dirents {
		childPath := filepath.Join(path, dirent.Name())
		switch {
		case dirent.IsDir():
			childDirectory, childInputs, ok := fc.walkForCompute(childPath, identities)
			if !ok {
				return nil, nil, false
			}
			childData, err := proto.Marshal(childDirectory)
			if err != nil {
				return nil, nil, false
			}
			gen := fc.digestFunction.NewGenerator(int64(len(childData)))
			if _, err := gen.Write(childData); err != nil {
				return nil, nil, false
			}
			childDigest := gen.Sum()
			directory.Directories = append(directory.Directories, &remoteexecution.DirectoryNode{
				Name:   dirent.Name(),
				Digest: childDigest.GetPartialDigest(),
			})
			inputs = append(inputs, childInputs...)
		case dirent.Type()&os.ModeSymlink != 0:
			target, err := os.Readlink(childPath)
			if err != nil {
				return nil, nil, false
			}
			directory.Symlinks = append(directory.Symlinks, &remoteexecution.SymlinkNode{
				Name:   dirent.Name(),
				Target: target,
			})
		default:
			info, err := dirent.Info()
			if err != nil {
				return nil, nil, false
			}
			id, ok := identityOf(info)
			if !ok {
				return nil, nil, false
			}
			blobKeyName, ok := identities[id]
			if !ok {
				return nil, nil, false
			}
			fileDigest, executable, ok := parseBlobKey(fc.digestFunction, blobKeyName, info.Size())
			if !ok {
				return nil, nil, false
			}
			directory.Files = append(directory.Files, &remoteexecution.FileNode{
				Name:         dirent.Name(),
				Digest:       fileDigest.GetPartialDigest(),
				IsExecutable: executable,
			})
			inputs = append(inputs, blobKeyName)
		}
	}
	return directory, inputs, true
}

// startReaper launches the background goroutine that cancels idle
// in-flight writes.
func (fc *FileCache) startReaper(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			fc.writes.reapIdle(writeIdleTTL)
		}
	}()
}
