package cas

import (
	"strconv"
	"strings"

	"github.com/buildbarn/bb-file-cache/pkg/digest"
)

// directorySuffix is appended to a digest's blob-key to form the name
// of a materialized directory tree under the cache root.
const directorySuffix = "_dir"

// executableSuffix is appended to a digest's blob-key to mark the
// executable variant of a blob.
const executableSuffix = "_exec"

// blobKey returns the deterministic on-disk file name for a blob with
// the given digest and executable bit.
func blobKey(blobDigest digest.Digest, executable bool) string {
	key := blobDigest.GetHashString() + "_" + strconv.FormatInt(blobDigest.GetSizeBytes(), 10)
	if executable {
		key += executableSuffix
	}
	return key
}

// directoryKey returns the deterministic on-disk directory name for a
// materialized tree whose root Directory message has the given digest.
func directoryKey(treeDigest digest.Digest) string {
	return blobKey(treeDigest, false) + directorySuffix
}

// parseBlobKey parses a regular file name found at the cache root back
// into a digest and executable bit, using digestFunction to validate
// and construct the hash component. It returns false if the name does
// not correspond to a well-formed blob-key, or if the declared size
// does not match fileSizeBytes.
func parseBlobKey(digestFunction digest.Function, name string, fileSizeBytes int64) (digest.Digest, bool, bool) {
	executable := false
	rest := name
	if strings.HasSuffix(rest, executableSuffix) {
		executable = true
		rest = strings.TrimSuffix(rest, executableSuffix)
	}

	underscore := strings.LastIndexByte(rest, '_')
	if underscore < 0 {
		return digest.BadDigest, false, false
	}
	hash, sizeStr := rest[:underscore], rest[underscore+1:]
	sizeBytes, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil || sizeBytes < 0 {
		return digest.BadDigest, false, false
	}
	if sizeBytes != fileSizeBytes {
		return digest.BadDigest, false, false
	}

	blobDigest, err := digestFunction.NewDigest(hash, sizeBytes)
	if err != nil {
		return digest.BadDigest, false, false
	}
	return blobDigest, executable, true
}

// parseDirectoryKey parses a directory name found at the cache root
// back into the digest of the Directory message it is expected to
// correspond to.
func parseDirectoryKey(digestFunction digest.Function, name string) (digest.Digest, bool) {
	if !strings.HasSuffix(name, directorySuffix) {
		return digest.BadDigest, false
	}
	rest := strings.TrimSuffix(name, directorySuffix)
	underscore := strings.LastIndexByte(rest, '_')
	if underscore < 0 {
		return digest.BadDigest, false
	}
	hash, sizeStr := rest[:underscore], rest[underscore+1:]
	sizeBytes, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil || sizeBytes < 0 {
		return digest.BadDigest, false
	}
	treeDigest, err := digestFunction.NewDigest(hash, sizeBytes)
	if err != nil {
		return digest.BadDigest, false
	}
	return treeDigest, true
}

// writeKey returns the name of the in-flight temporary file for a
// write against the given blob-key.
func writeKey(key string, writeID string) string {
	return key + "." + writeID
}
