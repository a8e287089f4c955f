package client

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hraban/kennyfs/internal/wire"
)

func TestRetToErrno(t *testing.T) {
	assert.Equal(t, syscall.Errno(0), retToErrno(0))
	assert.Equal(t, syscall.Errno(0), retToErrno(5))
	assert.Equal(t, syscall.ENOENT, retToErrno(-int32(syscall.ENOENT)))
}

func TestDecodeDirEntriesRoundTrip(t *testing.T) {
	st := wire.Stat{Mode: 0o644, Size: 42}
	var buf []byte
	buf, err := wire.EncodeDirEntry(buf, st, 1, "one")
	require.NoError(t, err)
	buf, err = wire.EncodeDirEntry(buf, st, 2, "two")
	require.NoError(t, err)

	entries, errno := decodeDirEntries(buf)
	require.Equal(t, syscall.Errno(0), errno)
	require.Len(t, entries, 2)
	assert.Equal(t, "one", entries[0].Name)
	assert.Equal(t, uint64(1), entries[0].Offset)
	assert.Equal(t, "two", entries[1].Name)
	assert.Equal(t, uint64(2), entries[1].Offset)
}

func TestDecodeDirEntriesTruncatedIsEREMOTEIO(t *testing.T) {
	_, errno := decodeDirEntries([]byte{1, 2, 3})
	assert.Equal(t, syscall.EREMOTEIO, errno)
}
