package cas

// DirectoriesIndex is a secondary index relating materialized
// directory digests to the ordered list of blob-keys they reference,
// plus the inverse mapping needed to cascade eviction.
//
// Three interchangeable implementations are provided:
// newMemoryDirectoriesIndex, newFileDirectoriesIndex, and
// newSQLiteDirectoriesIndex. For any sequence of
// Put/Remove/RemoveEntry/DirectoryEntries calls, all three MUST
// produce the same observable multimap state.
type DirectoriesIndex interface {
	// Put inserts the forward mapping directoryKey -> blobKeys, and
	// the corresponding inverse mapping for each blob-key.
	Put(directoryKey string, blobKeys []string) error

	// DirectoryEntries returns the ordered list of blob-keys
	// associated with directoryKey, in the order they were passed
	// to Put. It returns an empty slice if directoryKey is absent.
	DirectoryEntries(directoryKey string) ([]string, error)

	// Remove deletes the forward mapping for directoryKey and
	// retracts the corresponding inverse entries.
	Remove(directoryKey string) error

	// RemoveEntry removes blobKey from the inverse mapping, deletes
	// the forward mapping for every directory-key that referenced
	// it, and returns those directory-keys so the caller can cascade
	// eviction of their materialized trees and DirectoryStorage
	// entries.
	RemoveEntry(blobKey string) ([]string, error)

	// Start prepares the index for use (e.g. opening a database
	// file). It must be called before any other method.
	Start() error

	// Close releases any resources held by the index.
	Close() error
}
