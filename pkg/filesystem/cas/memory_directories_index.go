package cas

import "sync"

// memoryDirectoriesIndex is the reference DirectoriesIndex
// implementation: a pair of in-memory maps. The inverse map's
// iteration order makes no ordering claim -- no caller depends
// on the order in which RemoveEntry returns containing directories.
type memoryDirectoriesIndex struct {
	lock sync.Mutex

	// forward holds, for every materialized directory, the ordered
	// list of blob-keys it references.
	forward map[string][]string
	// inverse holds, for every referenced blob-key, the set of
	// directory-keys that reference it.
	inverse map[string]map[string]struct{}
}

func newMemoryDirectoriesIndex() DirectoriesIndex {
	return &memoryDirectoriesIndex{
		forward: map[string][]string{},
		inverse: map[string]map[string]struct{}{},
	}
}

func (di *memoryDirectoriesIndex) Start() error { return nil }
func (di *memoryDirectoriesIndex) Close() error { return nil }

func (di *memoryDirectoriesIndex) Put(directoryKey string, blobKeys []string) error {
	di.lock.Lock()
	defer di.lock.Unlock()

	di.removeLocked(directoryKey)
	keysCopy := append([]string(nil), blobKeys...)
	di.forward[directoryKey] = keysCopy
	for _, blobKey := range keysCopy {
		directories, ok := di.inverse[blobKey]
		if !ok {
			directories = map[string]struct{}{}
			di.inverse[blobKey] = directories
		}
		directories[directoryKey] = struct{}{}
	}
	return nil
}

func (di *memoryDirectoriesIndex) DirectoryEntries(directoryKey string) ([]string, error) {
	di.lock.Lock()
	defer di.lock.Unlock()
	return append([]string(nil), di.forward[directoryKey]...), nil
}

func (di *memoryDirectoriesIndex) Remove(directoryKey string) error {
	di.lock.Lock()
	defer di.lock.Unlock()
	di.removeLocked(directoryKey)
	return nil
}

func (di *memoryDirectoriesIndex) removeLocked(directoryKey string) {
	blobKeys, ok := di.forward[directoryKey]
	if !ok {
		return
	}
	delete(di.forward, directoryKey)
	for _, blobKey := range blobKeys {
		if directories, ok := di.inverse[blobKey]; ok {
			delete(directories, directoryKey)
			if len(directories) == 0 {
				delete(di.inverse, blobKey)
			}
		}
	}
}

func (di *memoryDirectoriesIndex) RemoveEntry(blobKey string) ([]string, error) {
	di.lock.Lock()
	defer di.lock.Unlock()

	directories, ok := di.inverse[blobKey]
	if !ok {
		return nil, nil
	}

	affected := make([]string, 0, len(directories))
	for directoryKey := range directories {
		affected = append(affected, directoryKey)
	}
	// removeLocked retracts every blob-key of each affected
	// directory from the inverse map, including blobKey itself, so
	// no stray entry is left behind for sibling inputs of the same
	// directory.
	for _, directoryKey := range affected {
		di.removeLocked(directoryKey)
	}
	return affected, nil
}
