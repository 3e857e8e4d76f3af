package cas

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteDetectsDigestMismatch(t *testing.T) {
	fc, _ := newTestFileCache(t, "write-digest-mismatch", 1<<20, 1<<20, nil)
	ctx := context.Background()

	data := []byte("the real contents")
	wrongHash := mustDigest(t, []byte("something else entirely, but same length!"))
	declared, err := fc.digestFunction.NewDigest(wrongHash.GetHashString(), int64(len(data)))
	require.NoError(t, err)

	w, err := fc.GetWrite(ctx, declared, false, "w1", nil, nil)
	require.NoError(t, err)
	require.False(t, w.duplicate)

	_, err = w.Write(data)
	require.NoError(t, err)

	_, err = w.Close()
	require.Error(t, err)
	require.IsType(t, &DigestMismatchError{}, err)
}

func TestWriteDetectsIncompleteBlob(t *testing.T) {
	fc, _ := newTestFileCache(t, "write-incomplete-blob", 1<<20, 1<<20, nil)
	ctx := context.Background()

	data := []byte("twenty bytes of data")
	d := mustDigest(t, data)

	w, err := fc.GetWrite(ctx, d, false, "w1", nil, nil)
	require.NoError(t, err)
	require.False(t, w.duplicate)

	_, err = w.Write(data[:len(data)-5])
	require.NoError(t, err)

	_, err = w.Close()
	require.Error(t, err)
	require.IsType(t, &IncompleteBlobError{}, err)
}

func TestWriteResumesFromCommittedSize(t *testing.T) {
	fc, _ := newTestFileCache(t, "write-resume", 1<<20, 1<<20, nil)
	ctx := context.Background()

	data := []byte("a partial write that gets resumed later")
	d := mustDigest(t, data)

	w1, err := fc.GetWrite(ctx, d, false, "resumable-write-id", nil, nil)
	require.NoError(t, err)
	require.False(t, w1.duplicate)
	_, err = w1.Write(data[:10])
	require.NoError(t, err)
	// Abandon w1 without closing it; its partial file stays on disk
	// under the same writeID.

	w2, err := fc.GetWrite(ctx, d, false, "resumable-write-id", nil, nil)
	require.NoError(t, err)
	require.False(t, w2.duplicate)
	require.Equal(t, int64(10), w2.committed, "the resumed write must pick up where the abandoned one left off")

	_, err = w2.Write(data[10:])
	require.NoError(t, err)
	path, err := w2.Close()
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, data, contents)
}

func TestWriteConcurrentDuplicateReservationsBothSucceed(t *testing.T) {
	fc, _ := newTestFileCache(t, "write-concurrent-duplicate", 1<<20, 1<<20, nil)
	ctx := context.Background()

	data := []byte("written once, reserved twice")
	d := mustDigest(t, data)
	fc.Put(ctx, d, data)

	w1, err := fc.GetWrite(ctx, d, false, "dup1", nil, nil)
	require.NoError(t, err)
	require.True(t, w1.duplicate)

	w2, err := fc.GetWrite(ctx, d, false, "dup2", nil, nil)
	require.NoError(t, err)
	require.True(t, w2.duplicate)

	e := fc.storage[blobKey(d, false)]
	require.Equal(t, int32(2), e.refCount, "Put releases its own hold once installed, leaving only the two duplicate reservations")

	path1, err := w1.Close()
	require.NoError(t, err)
	path2, err := w2.Close()
	require.NoError(t, err)
	require.Equal(t, path1, path2)
}

func TestWriteRejectsBlobsExceedingEntryLimit(t *testing.T) {
	fc, _ := newTestFileCache(t, "write-entry-limit", 1<<20, 10, nil)
	ctx := context.Background()

	oversized := mustDigest(t, []byte("this is more than ten bytes long"))
	_, err := fc.GetWrite(ctx, oversized, false, "w1", nil, nil)
	require.Error(t, err)
	require.IsType(t, &EntryLimitError{}, err)
}

func TestWriteOfZeroSizeDigestIsTriviallyComplete(t *testing.T) {
	fc, _ := newTestFileCache(t, "write-zero-size", 1<<20, 1<<20, nil)
	ctx := context.Background()

	emptyDigest := mustDigest(t, nil)
	w, err := fc.GetWrite(ctx, emptyDigest, false, "w1", nil, nil)
	require.NoError(t, err)
	require.True(t, w.duplicate, "a zero-size write needs no backing file and is trivially complete")

	path, err := w.Close()
	require.NoError(t, err)
	require.NotEmpty(t, path)
}
