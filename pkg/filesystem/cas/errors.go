package cas

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DigestMismatchError is returned by Write.Close() when the bytes
// written to a blob do not hash to the digest the write was opened
// for.
type DigestMismatchError struct {
	Expected string
	Observed string
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("blob has checksum %s, while %s was expected", e.Observed, e.Expected)
}

// GRPCStatus allows this error to be converted to a gRPC status
// through status.Convert(), matching the convention used throughout
// this codebase for error propagation.
func (e *DigestMismatchError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Error())
}

// IncompleteBlobError is returned by Write.Close() when fewer bytes
// were written than the digest declared.
type IncompleteBlobError struct {
	SizeBytesExpected int64
	SizeBytesObserved int64
}

func (e *IncompleteBlobError) Error() string {
	return fmt.Sprintf("blob is %d bytes in size, while %d bytes were expected", e.SizeBytesObserved, e.SizeBytesExpected)
}

// GRPCStatus converts this error to a gRPC status.
func (e *IncompleteBlobError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Error())
}

// EntryLimitError is returned by GetWrite()/Put() when a blob exceeds
// the cache's configured maximum entry size.
type EntryLimitError struct {
	SizeBytes    int64
	MaxSizeBytes int64
}

func (e *EntryLimitError) Error() string {
	return fmt.Sprintf("blob is %d bytes in size, which exceeds the maximum of %d bytes permitted by this cache", e.SizeBytes, e.MaxSizeBytes)
}

// GRPCStatus converts this error to a gRPC status.
func (e *EntryLimitError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Error())
}

// PutDirectoryError is returned by FileCache.PutDirectory() when one or
// more of the underlying file fetches failed. It carries every
// underlying cause so callers can report the full picture rather than
// just the first failure observed.
type PutDirectoryError struct {
	Causes []error
}

func (e *PutDirectoryError) Error() string {
	if len(e.Causes) == 1 {
		return fmt.Sprintf("failed to materialize directory: %s", e.Causes[0])
	}
	return fmt.Sprintf("failed to materialize directory: %d underlying errors, first is: %s", len(e.Causes), e.Causes[0])
}

// Unwrap exposes every underlying cause to errors.Is/errors.As.
func (e *PutDirectoryError) Unwrap() []error {
	return e.Causes
}

// GRPCStatus converts this error to a gRPC status.
func (e *PutDirectoryError) GRPCStatus() *status.Status {
	return status.New(codes.Internal, e.Error())
}

// ErrNotFound is returned when a digest cannot be located locally and
// either there is no delegate configured, or the delegate also
// reported the object as missing.
var ErrNotFound = status.Error(codes.NotFound, "object not found")
