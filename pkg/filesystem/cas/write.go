package cas

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/buildbarn/bb-file-cache/pkg/clock"
	"github.com/buildbarn/bb-file-cache/pkg/digest"
)

// installRaceWait is how long an installer waits for a concurrent
// writer's Entry to appear after losing a createLink race.
const installRaceWait = 100 * time.Millisecond

// writeIdleTTL bounds how long an abandoned Write may keep its
// reservation and partial file around before the reaper in
// FileCache.Start cancels it.
const writeIdleTTL = 10 * time.Minute

// Write is a resumable handle for ingesting the bytes of a single
// blob, returned by FileCache.GetWrite. Exactly one of Close or
// Cancel must be called.
type Write struct {
	fc         *FileCache
	blobDigest digest.Digest
	key        string
	writeID    string
	path       string

	duplicate bool
	installed *entry

	file         *os.File
	generator    *digest.Generator
	committed    int64
	onInsert     func()
	onExpiration func()

	lastActivity time.Time
	closed       bool
	startedAt    time.Time
}

// writeRegistry tracks in-flight Write handles so that an idle-TTL
// reaper can cancel abandoned ones.
type writeRegistry struct {
	clock clock.Clock

	lock   sync.Mutex
	writes map[string]*Write
}

func newWriteRegistry(clk clock.Clock) *writeRegistry {
	return &writeRegistry{
		clock:  clk,
		writes: map[string]*Write{},
	}
}

func (wr *writeRegistry) register(w *Write) {
	wr.lock.Lock()
	defer wr.lock.Unlock()
	wr.writes[w.path] = w
}

func (wr *writeRegistry) unregister(w *Write) {
	wr.lock.Lock()
	defer wr.lock.Unlock()
	delete(wr.writes, w.path)
}

func (wr *writeRegistry) touch(w *Write) {
	wr.lock.Lock()
	defer wr.lock.Unlock()
	w.lastActivity = wr.clock.Now()
}

// reapIdle cancels every registered Write whose last activity exceeds
// idleTTL. Called periodically by FileCache.Start's background loop.
func (wr *writeRegistry) reapIdle(idleTTL time.Duration) {
	now := wr.clock.Now()
	wr.lock.Lock()
	var stale []*Write
	for _, w := range wr.writes {
		if now.Sub(w.lastActivity) > idleTTL {
			stale = append(stale, w)
		}
	}
	wr.lock.Unlock()

	for _, w := range stale {
		w.Cancel()
	}
}

// GetWrite returns a resumable write handle for blobDigest. If
// an entry already exists under this key, a reference is taken on it
// and the returned handle is a no-op duplicate: the caller must not
// write any bytes to it, only Close it.
func (fc *FileCache) GetWrite(ctx context.Context, blobDigest digest.Digest, executable bool, writeID string, onInsert func(), onExpiration func()) (*Write, error) {
	return fc.getWrite(ctx, blobDigest, executable, writeID, onInsert, onExpiration)
}

func (fc *FileCache) getWrite(ctx context.Context, blobDigest digest.Digest, executable bool, writeID string, onInsert, onExpiration func()) (*Write, error) {
	if blobDigest.GetSizeBytes() > fc.maxEntrySizeBytes {
		return nil, &EntryLimitError{SizeBytes: blobDigest.GetSizeBytes(), MaxSizeBytes: fc.maxEntrySizeBytes}
	}

	key := blobKey(blobDigest, executable)
	w := &Write{
		fc:           fc,
		blobDigest:   blobDigest,
		key:          key,
		writeID:      writeID,
		path:         fc.path(writeKey(key, writeID)),
		onInsert:     onInsert,
		onExpiration: onExpiration,
		lastActivity: fc.clock.Now(),
		startedAt:    fc.clock.Now(),
	}

	fc.lock.Lock()
	if e, ok := fc.storage[key]; ok {
		fc.lru.incrementReference(e)
		fc.lock.Unlock()
		w.duplicate = true
		w.installed = e
		return w, nil
	}

	// Reserve the budget, evicting as needed to make room.
	fc.sizeBytes += blobDigest.GetSizeBytes()
	for fc.sizeBytes > fc.maxSizeBytes {
		if err := fc.expireOneLocked(ctx); err != nil {
			fc.sizeBytes -= blobDigest.GetSizeBytes()
			fc.lock.Unlock()
			return nil, err
		}
	}
	fc.lock.Unlock()

	if blobDigest.GetSizeBytes() == 0 {
		// Trivially complete: no file necessary.
		w.duplicate = true
		return w, nil
	}

	generator := fc.digestFunction.NewGenerator(blobDigest.GetSizeBytes())
	f, committed, err := resumePartialWrite(w.path, generator)
	if err != nil {
		fc.lock.Lock()
		fc.sizeBytes -= blobDigest.GetSizeBytes()
		fc.lock.Unlock()
		return nil, err
	}
	w.file = f
	w.generator = generator
	w.committed = committed

	fc.writes.register(w)
	return w, nil
}

// resumePartialWrite opens {path} for appending, replaying any bytes
// already present through generator (without rewriting them) so the
// hash reflects the full prefix.
func resumePartialWrite(path string, generator *digest.Generator) (*os.File, int64, error) {
	if existing, err := os.Open(path); err == nil {
		n, copyErr := io.Copy(generator, existing)
		existing.Close()
		if copyErr != nil {
			return nil, 0, copyErr
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, 0, err
		}
		return f, n, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, 0, err
	}
	return f, 0, nil
}

// Write appends p to the in-flight partial file, updating the running
// digest. A no-op on a duplicate or zero-size handle.
func (w *Write) Write(p []byte) (int, error) {
	if w.duplicate || w.file == nil {
		return len(p), nil
	}
	n, err := w.file.Write(p)
	if n > 0 {
		if _, genErr := w.generator.Write(p[:n]); genErr != nil && err == nil {
			err = genErr
		}
		w.committed += int64(n)
	}
	w.fc.writes.touch(w)
	return n, err
}

// Close verifies the written bytes against the declared digest,
// installs the file by hard link, and returns the path to the
// installed (or pre-existing) object.
func (w *Write) Close() (string, error) {
	if w.closed {
		return w.fc.path(w.key), nil
	}
	w.closed = true

	if w.duplicate {
		return w.fc.path(w.key), nil
	}

	if err := w.file.Close(); err != nil {
		w.abort()
		return "", err
	}
	w.fc.writes.unregister(w)

	declared := w.blobDigest.GetSizeBytes()
	if w.committed != declared {
		removePath(w.path)
		w.releaseReservation()
		return "", &IncompleteBlobError{SizeBytesExpected: declared, SizeBytesObserved: w.committed}
	}
	observed := w.generator.Sum()
	if observed.GetHashString() != w.blobDigest.GetHashString() {
		removePath(w.path)
		w.releaseReservation()
		return "", &DigestMismatchError{Expected: w.blobDigest.GetHashString(), Observed: observed.GetHashString()}
	}

	return w.install()
}

// install hard-links the verified partial file into place, resolving
// a concurrent-writer race in favor of whoever won it.
func (w *Write) install() (string, error) {
	finalPath := w.fc.path(w.key)
	if err := os.Link(w.path, finalPath); err != nil {
		removePath(w.path)
		if !os.IsExist(err) {
			w.releaseReservation()
			return "", err
		}
		// Lost the race: wait briefly for the winner's Entry to appear.
		deadline := w.fc.clock.Now().Add(installRaceWait)
		for {
			w.fc.lock.Lock()
			if e, ok := w.fc.storage[w.key]; ok {
				w.fc.lru.incrementReference(e)
				w.fc.sizeBytes -= w.blobDigest.GetSizeBytes()
				w.fc.lock.Unlock()
				return finalPath, nil
			}
			w.fc.lock.Unlock()
			if w.fc.clock.Now().After(deadline) {
				w.releaseReservation()
				return finalPath, nil
			}
			time.Sleep(time.Millisecond)
		}
	}
	os.Chmod(finalPath, 0o444)
	removePath(w.path)
	return w.publish()
}

// publish registers the newly installed file as a ref-count-1 Entry
// and fires the insertion hooks.
func (w *Write) publish() (string, error) {
	e := &entry{
		key:          w.key,
		sizeBytes:    w.blobDigest.GetSizeBytes(),
		refCount:     1,
		onExpiration: w.onExpiration,
	}
	w.fc.lock.Lock()
	w.fc.storage[w.key] = e
	w.fc.lock.Unlock()
	w.installed = e

	w.fc.fireOnPut(w.key, e.sizeBytes)
	registerMetrics()
	cafcPutDurationSeconds.WithLabelValues(w.fc.name).Observe(w.fc.clock.Now().Sub(w.startedAt).Seconds())
	if w.onInsert != nil {
		w.onInsert()
	}
	return w.fc.path(w.key), nil
}

func (w *Write) releaseReservation() {
	w.fc.lock.Lock()
	w.fc.sizeBytes -= w.blobDigest.GetSizeBytes()
	w.fc.cond.Broadcast()
	w.fc.lock.Unlock()
}

func (w *Write) abort() {
	removePath(w.path)
	w.releaseReservation()
}

// Cancel discards an in-progress write, deleting its partial file and
// releasing its reservation.
func (w *Write) Cancel() {
	if w.closed {
		return
	}
	w.closed = true
	if w.duplicate || w.file == nil {
		if w.duplicate && w.installed != nil {
			w.fc.lock.Lock()
			w.fc.lru.decrementReference(w.installed)
			w.fc.cond.Broadcast()
			w.fc.lock.Unlock()
		}
		return
	}
	w.file.Close()
	w.fc.writes.unregister(w)
	w.abort()
}
