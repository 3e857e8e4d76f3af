package cas

import (
	"context"
	"io"
	"os"

	"github.com/buildbarn/bb-file-cache/pkg/blobstore/buffer"
	"github.com/buildbarn/bb-file-cache/pkg/digest"

	"github.com/google/uuid"
)

// readThroughChunkSizeBytes bounds a single ChunkReader.Read() call
// when adapting a Buffer's streamed chunks into an io.Reader.
const readThroughChunkSizeBytes = 1 << 16

// chunkReaderReader adapts a buffer.ChunkReader into an io.ReadCloser,
// the same way pkg/blobstore/buffer's own unexported
// chunkReaderBackedReader does.
type chunkReaderReader struct {
	r         buffer.ChunkReader
	lastChunk []byte
}

func newChunkReaderReader(r buffer.ChunkReader) io.ReadCloser {
	return &chunkReaderReader{r: r}
}

func (r *chunkReaderReader) Read(p []byte) (int, error) {
	nTotal := copy(p, r.lastChunk)
	p = p[nTotal:]
	r.lastChunk = r.lastChunk[nTotal:]

	for len(p) > 0 {
		chunk, err := r.r.Read()
		if err != nil {
			return nTotal, err
		}
		n := copy(p, chunk)
		nTotal += n
		p = p[n:]
		r.lastChunk = chunk[n:]
	}
	return nTotal, nil
}

func (r *chunkReaderReader) Close() error {
	r.r.Close()
	return nil
}

// NewInput opens a read stream for blobDigest starting at offset
//. Local hits are served directly; on a total local miss with
// a delegate configured, a read-through stream is constructed that
// simultaneously serves the delegate's bytes to the caller and
// ingests them into a new local entry.
func (fc *FileCache) NewInput(ctx context.Context, blobDigest digest.Digest, offset int64) (io.ReadCloser, error) {
	if r, err, handled := fc.tryLocalInput(blobDigest, offset); handled {
		return r, err
	}

	if fc.delegate == nil || blobDigest.GetSizeBytes() > fc.maxEntrySizeBytes {
		return fc.delegateInputDirect(ctx, blobDigest, offset)
	}
	return fc.newReadThroughInput(ctx, blobDigest, offset)
}

// tryLocalInput attempts to serve the read from a locally stored
// file, self-healing any Entry that has lost its backing file. The
// third return value reports whether a conclusive local outcome was
// reached (success, or a local I/O error other than "file missing").
func (fc *FileCache) tryLocalInput(blobDigest digest.Digest, offset int64) (io.ReadCloser, error, bool) {
	for _, executable := range [...]bool{false, true} {
		key := blobKey(blobDigest, executable)

		fc.lock.Lock()
		e, ok := fc.storage[key]
		if ok {
			fc.lru.touch(e)
		}
		fc.lock.Unlock()
		if !ok {
			continue
		}

		f, err := os.Open(fc.path(key))
		if err == nil {
			if offset > 0 {
				if _, err := f.Seek(offset, io.SeekStart); err != nil {
					f.Close()
					return nil, err, true
				}
			}
			return f, nil, true
		}
		if !os.IsNotExist(err) {
			return nil, err, true
		}

		fc.lock.Lock()
		if fc.storage[key] == e {
			fc.removeFromStorageLocked(e)
		}
		fc.lock.Unlock()
	}
	return nil, nil, false
}

func (fc *FileCache) delegateInputDirect(ctx context.Context, blobDigest digest.Digest, offset int64) (io.ReadCloser, error) {
	if fc.delegate == nil {
		return nil, ErrNotFound
	}
	b := fc.delegate.Get(ctx, blobDigest)
	return newChunkReaderReader(b.ToChunkReader(offset, readThroughChunkSizeBytes)), nil
}

// newReadThroughInput implements the read-through input stream: the
// delegate's buffer is split via CloneStream into a foreground half
// (served to the caller, starting at offset) and a background half
// (written in full, from byte 0, into a new local Write). The
// caller-facing stream is decorated with WithBackgroundTask so that
// draining it waits for -- and surfaces errors from -- the background
// ingestion, the same multiplexing convention used by
// pkg/blobstore/buffer/with_background_task.go.
func (fc *FileCache) newReadThroughInput(ctx context.Context, blobDigest digest.Digest, offset int64) (io.ReadCloser, error) {
	key := blobKey(blobDigest, false)
	w, err := fc.getWrite(ctx, blobDigest, false, uuid.NewString(), nil, nil)
	if err != nil {
		return fc.delegateInputDirect(ctx, blobDigest, offset)
	}
	if w.duplicate {
		// Another writer installed the entry between our miss check
		// and this reservation attempt; fall back to the now-local
		// copy. The caller of NewInput is not a reference holder, so
		// release the reservation Close kept open on our behalf.
		w.Close()
		fc.DecrementReferences([]string{key}, nil)
		if r, err, handled := fc.tryLocalInput(blobDigest, offset); handled {
			return r, err
		}
		return fc.delegateInputDirect(ctx, blobDigest, offset)
	}

	source := fc.delegate.Get(ctx, blobDigest)
	background, foreground := source.CloneStream()

	wrapped, task := buffer.WithBackgroundTask(foreground)
	reader := newChunkReaderReader(wrapped.ToChunkReader(offset, readThroughChunkSizeBytes))

	go func() {
		_, err := ingestFully(w, background)
		if err == nil {
			// As above: NewInput's caller only ever sees bytes, never
			// a held reference, so the entry must come out of the
			// write immediately evictable.
			fc.DecrementReferences([]string{key}, nil)
		}
		task.Finish(err)
	}()

	return reader, nil
}

// ingestFully writes the full contents of src (from byte 0) into w and
// closes it, returning the path the write installed to.
func ingestFully(w *Write, src buffer.Buffer) (string, error) {
	r := src.ToReader()
	defer r.Close()

	if _, err := io.Copy(w, r); err != nil {
		w.Cancel()
		return "", err
	}
	return w.Close()
}
