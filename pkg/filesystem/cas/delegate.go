package cas

import (
	"context"

	"github.com/buildbarn/bb-file-cache/pkg/blobstore/buffer"
	"github.com/buildbarn/bb-file-cache/pkg/digest"
)

// Delegate is the upstream object store consulted on a local miss and
// written to when the cache evicts an object. It is
// intentionally narrower than pkg/blobstore.BlobAccess: the CAFC only
// ever needs to fetch, store and probe individual blobs, never the
// full CAS/AC surface, so it is declared here directly against the
// modern digest.Digest/digest.Set/buffer.Buffer signatures that the
// concrete BlobAccess implementations already use.
type Delegate interface {
	// Get returns the contents of a blob known to the delegate. The
	// returned Buffer must be consumed or discarded by the caller.
	Get(ctx context.Context, blobDigest digest.Digest) buffer.Buffer

	// Put uploads a blob to the delegate. It is called when the
	// local cache evicts an entry that was never acknowledged
	// upstream. NewInput's read-through path only reads from the
	// delegate and never calls Put.
	Put(ctx context.Context, blobDigest digest.Digest, b buffer.Buffer) error

	// FindMissing reports which of the given digests are absent from
	// the delegate.
	FindMissing(ctx context.Context, digests digest.Set) (digest.Set, error)
}
