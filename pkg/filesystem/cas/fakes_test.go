package cas

import (
	"context"
	"sync"
	"time"

	remoteexecution "github.com/bazelbuild/remote-apis/build/bazel/remote/execution/v2"

	"github.com/buildbarn/bb-file-cache/pkg/blobstore/buffer"
	"github.com/buildbarn/bb-file-cache/pkg/clock"
	"github.com/buildbarn/bb-file-cache/pkg/digest"
)

// fakeClock is a deterministic clock.Clock for tests that care about
// existence-cache TTLs and write idle timeouts. Only Now() is
// exercised by this package's production code (see existence_cache.go
// and write.go); the remaining methods are never invoked on the paths
// under test, so they're implemented just well enough to satisfy the
// interface.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1600000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) NewContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}

func (c *fakeClock) NewTimer(d time.Duration) (clock.Timer, <-chan time.Time) {
	t := time.NewTimer(d)
	return t, t.C
}

func (c *fakeClock) NewTicker(d time.Duration) (clock.Ticker, <-chan time.Time) {
	t := time.NewTicker(d)
	return t, t.C
}

// fakeDelegate is an in-memory Delegate backed by a plain map, used to
// exercise the eviction cascade and read-through paths without a real
// upstream CAS.
type fakeDelegate struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	gets    int
	puts    int
	onPut   func(blobDigest digest.Digest, data []byte)
	missing func(d digest.Digest) bool
}

func newFakeDelegate() *fakeDelegate {
	return &fakeDelegate{blobs: map[string][]byte{}}
}

func (fd *fakeDelegate) put(blobDigest digest.Digest, data []byte) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.blobs[blobDigest.GetKey(digest.KeyWithoutInstance)] = append([]byte(nil), data...)
}

func (fd *fakeDelegate) Get(ctx context.Context, blobDigest digest.Digest) buffer.Buffer {
	fd.mu.Lock()
	data, ok := fd.blobs[blobDigest.GetKey(digest.KeyWithoutInstance)]
	fd.gets++
	fd.mu.Unlock()
	if !ok {
		return buffer.NewBufferFromError(ErrNotFound)
	}
	return buffer.NewCASBufferFromByteSlice(blobDigest, data, buffer.BackendProvided(buffer.Irreparable(blobDigest)))
}

func (fd *fakeDelegate) Put(ctx context.Context, blobDigest digest.Digest, b buffer.Buffer) error {
	data, err := b.ToByteSlice(int(blobDigest.GetSizeBytes()) + 1)
	if err != nil {
		return err
	}
	fd.mu.Lock()
	fd.blobs[blobDigest.GetKey(digest.KeyWithoutInstance)] = data
	fd.puts++
	fd.mu.Unlock()
	if fd.onPut != nil {
		fd.onPut(blobDigest, data)
	}
	return nil
}

func (fd *fakeDelegate) FindMissing(ctx context.Context, digests digest.Set) (digest.Set, error) {
	sb := digest.NewSetBuilder()
	fd.mu.Lock()
	defer fd.mu.Unlock()
	for _, d := range digests.Items() {
		if fd.missing != nil && fd.missing(d) {
			sb = sb.Add(d)
			continue
		}
		if _, ok := fd.blobs[d.GetKey(digest.KeyWithoutInstance)]; !ok {
			sb = sb.Add(d)
		}
	}
	return sb.Build(), nil
}

// fakeDirectoryFetcher resolves directory digests from a plain map,
// used to drive PutDirectory without a real Action Cache.
type fakeDirectoryFetcher struct {
	directories map[string]*remoteexecution.Directory
}

func newFakeDirectoryFetcher() *fakeDirectoryFetcher {
	return &fakeDirectoryFetcher{directories: map[string]*remoteexecution.Directory{}}
}

func (f *fakeDirectoryFetcher) add(d digest.Digest, directory *remoteexecution.Directory) {
	f.directories[d.GetKey(digest.KeyWithoutInstance)] = directory
}

func (f *fakeDirectoryFetcher) GetDirectory(ctx context.Context, directoryDigest digest.Digest) (*remoteexecution.Directory, error) {
	directory, ok := f.directories[directoryDigest.GetKey(digest.KeyWithoutInstance)]
	if !ok {
		return nil, ErrNotFound
	}
	return directory, nil
}
