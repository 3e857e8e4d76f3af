package cas

import (
	"fmt"
	"path/filepath"
)

// DirectoriesIndexBackend selects which DirectoriesIndex
// implementation NewDirectoriesIndex constructs.
type DirectoriesIndexBackend int

const (
	// DirectoriesIndexMemory keeps the forward/inverse multimap
	// entirely in memory. Simplest, and the one lost on restart
	// (rebuilt by the startup rescan).
	DirectoriesIndexMemory DirectoriesIndexBackend = iota
	// DirectoriesIndexFile stores the forward mapping as one file
	// per materialized directory, alongside the directory tree
	// itself, and rebuilds the inverse mapping from those files on
	// Start.
	DirectoriesIndexFile
	// DirectoriesIndexSQLite stores both mappings in an embedded
	// SQLite database.
	DirectoriesIndexSQLite
)

// NewDirectoriesIndex constructs the DirectoriesIndex implementation
// selected by backend. root is the cache root (used by
// DirectoriesIndexFile); databasePath is the SQLite database file
// (used by DirectoriesIndexSQLite, relative paths resolved against
// root; ":memory:" selects an in-process database and is passed
// through unchanged).
func NewDirectoriesIndex(backend DirectoriesIndexBackend, root, databasePath string) (DirectoriesIndex, error) {
	switch backend {
	case DirectoriesIndexMemory:
		return newMemoryDirectoriesIndex(), nil
	case DirectoriesIndexFile:
		return newFileDirectoriesIndex(root), nil
	case DirectoriesIndexSQLite:
		if databasePath == "" {
			return nil, fmt.Errorf("sqlite directories index requires a database path")
		}
		if databasePath != ":memory:" && !filepath.IsAbs(databasePath) {
			databasePath = filepath.Join(root, databasePath)
		}
		return newSQLiteDirectoriesIndex(databasePath), nil
	default:
		return nil, fmt.Errorf("unknown directories index backend %d", backend)
	}
}
