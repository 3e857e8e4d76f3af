package filesystem

import (
	"io"
)

// FileReader is the read-only handle required by buffer's file-backed
// Buffer implementations (e.g. NewValidatedBufferFromFileReader). It
// is deliberately narrower than File, since those buffers never need
// to seek or write.
type FileReader interface {
	io.ReaderAt
	io.Closer
}
