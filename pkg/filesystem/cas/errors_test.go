package cas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestDigestMismatchErrorGRPCStatus(t *testing.T) {
	err := &DigestMismatchError{Expected: "aaaa", Observed: "bbbb"}
	require.Equal(t, codes.InvalidArgument, status.Code(err))
	require.Contains(t, err.Error(), "aaaa")
	require.Contains(t, err.Error(), "bbbb")
}

func TestIncompleteBlobErrorGRPCStatus(t *testing.T) {
	err := &IncompleteBlobError{SizeBytesExpected: 10, SizeBytesObserved: 3}
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestEntryLimitErrorGRPCStatus(t *testing.T) {
	err := &EntryLimitError{SizeBytes: 100, MaxSizeBytes: 10}
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestPutDirectoryErrorUnwrapsEveryCause(t *testing.T) {
	first := errors.New("first failure")
	second := errors.New("second failure")
	err := &PutDirectoryError{Causes: []error{first, second}}

	require.Equal(t, codes.Internal, status.Code(err))
	require.True(t, errors.Is(err, first))
	require.True(t, errors.Is(err, second))
	require.Contains(t, err.Error(), "2 underlying errors")
}

func TestErrNotFoundIsNotFound(t *testing.T) {
	require.Equal(t, codes.NotFound, status.Code(ErrNotFound))
}
