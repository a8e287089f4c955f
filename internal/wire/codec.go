package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShort is returned by decoders when the supplied span is too small to
// hold the value being decoded.
var ErrShort = errors.New("wire: buffer too short")

// PutUint16/PutUint32/PutUint64 write a fixed-width big-endian integer into
// b[0:n] and return the number of bytes consumed. They panic if b is too
// short, mirroring encoding/binary's own contract — callers size their
// buffers up front and never hit this path in practice.

// PutUint16 writes v as 2 big-endian bytes at the start of b.
func PutUint16(b []byte, v uint16) int {
	binary.BigEndian.PutUint16(b, v)
	return 2
}

// PutUint32 writes v as 4 big-endian bytes at the start of b.
func PutUint32(b []byte, v uint32) int {
	binary.BigEndian.PutUint32(b, v)
	return 4
}

// PutUint64 writes v as 8 big-endian bytes at the start of b.
func PutUint64(b []byte, v uint64) int {
	binary.BigEndian.PutUint64(b, v)
	return 8
}

// GetUint16 decodes a 2-byte big-endian integer from the start of b.
func GetUint16(b []byte) (uint16, error) {
	if len(b) < 2 {
		return 0, fmt.Errorf("%w: need 2 bytes, have %d", ErrShort, len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

// GetUint32 decodes a 4-byte big-endian integer from the start of b.
func GetUint32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("%w: need 4 bytes, have %d", ErrShort, len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// GetUint64 decodes an 8-byte big-endian integer from the start of b.
func GetUint64(b []byte) (uint64, error) {
	if len(b) < 8 {
		return 0, fmt.Errorf("%w: need 8 bytes, have %d", ErrShort, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// Stat mirrors a POSIX stat(2) result, widened to Go's native integer types.
// The wire encoding truncates every field to 32 bits (see EncodeStat); this
// struct keeps the full-width values so callers on both sides can decide
// whether the truncation lost information.
type Stat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    uint64
	Blksize uint32
	Blocks  uint64
	Atime   int64
	Mtime   int64
	Ctime   int64
}

// StatSize is the wire size in bytes of an encoded Stat: thirteen 32-bit
// fields.
const StatSize = 13 * 4

// EncodeStat writes st into b[0:StatSize] as thirteen big-endian u32 fields,
// in the order dev, ino, mode, nlink, uid, gid, rdev, size, blksize, blocks,
// atime, mtime, ctime.
//
// This is a lossy, truncating encoding: any field whose true value exceeds
// 32 bits (size, ino, times, blocks on a large or long-lived file) has its
// high bits silently discarded on the wire. This is the historical KennyFS
// wire format and is preserved bit-for-bit for interop; see
// EncodeStatV1/DecodeStatV1 naming for where a widened v2 would be added
// without disturbing this one.
func EncodeStat(b []byte, st Stat) error {
	if len(b) < StatSize {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrShort, StatSize, len(b))
	}
	fields := [13]uint64{
		st.Dev, st.Ino, uint64(st.Mode), uint64(st.Nlink), uint64(st.UID),
		uint64(st.GID), st.Rdev, st.Size, uint64(st.Blksize), st.Blocks,
		uint64(st.Atime), uint64(st.Mtime), uint64(st.Ctime),
	}
	for i, v := range fields {
		binary.BigEndian.PutUint32(b[i*4:], uint32(v))
	}
	return nil
}

// EncodeStatV1 is an alias for EncodeStat, named to make room for a future
// widened v2 stat encoding without renaming this one out from under existing
// callers.
func EncodeStatV1(b []byte, st Stat) error { return EncodeStat(b, st) }

// DecodeStat reads a Stat from b[0:StatSize]. Every field decodes as an
// unsigned 32-bit value widened into the struct's wider integer types; no
// sign- or zero-extension ambiguity is possible on decode (the loss already
// happened on encode).
func DecodeStat(b []byte) (Stat, error) {
	if len(b) < StatSize {
		return Stat{}, fmt.Errorf("%w: need %d bytes, have %d", ErrShort, StatSize, len(b))
	}
	u := func(i int) uint32 { return binary.BigEndian.Uint32(b[i*4:]) }
	return Stat{
		Dev:     uint64(u(0)),
		Ino:     uint64(u(1)),
		Mode:    u(2),
		Nlink:   u(3),
		UID:     u(4),
		GID:     u(5),
		Rdev:    uint64(u(6)),
		Size:    uint64(u(7)),
		Blksize: u(8),
		Blocks:  uint64(u(9)),
		Atime:   int64(u(10)),
		Mtime:   int64(u(11)),
		Ctime:   int64(u(12)),
	}, nil
}

// DecodeStatV1 is an alias for DecodeStat; see EncodeStatV1.
func DecodeStatV1(b []byte) (Stat, error) { return DecodeStat(b) }

// Timespec is a POSIX seconds+nanoseconds timestamp.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// TimespecPairSize is the wire size of two timespecs: four 64-bit fields.
const TimespecPairSize = 4 * 8

// EncodeTimespecPair writes atime then mtime into b[0:TimespecPairSize] as
// four big-endian u64 fields: atime.sec, atime.nsec, mtime.sec, mtime.nsec.
func EncodeTimespecPair(b []byte, atime, mtime Timespec) error {
	if len(b) < TimespecPairSize {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrShort, TimespecPairSize, len(b))
	}
	binary.BigEndian.PutUint64(b[0:], uint64(atime.Sec))
	binary.BigEndian.PutUint64(b[8:], uint64(atime.Nsec))
	binary.BigEndian.PutUint64(b[16:], uint64(mtime.Sec))
	binary.BigEndian.PutUint64(b[24:], uint64(mtime.Nsec))
	return nil
}

// DecodeTimespecPair reads atime and mtime from b[0:TimespecPairSize].
func DecodeTimespecPair(b []byte) (atime, mtime Timespec, err error) {
	if len(b) < TimespecPairSize {
		return Timespec{}, Timespec{}, fmt.Errorf("%w: need %d bytes, have %d", ErrShort, TimespecPairSize, len(b))
	}
	atime = Timespec{
		Sec:  int64(binary.BigEndian.Uint64(b[0:])),
		Nsec: int64(binary.BigEndian.Uint64(b[8:])),
	}
	mtime = Timespec{
		Sec:  int64(binary.BigEndian.Uint64(b[16:])),
		Nsec: int64(binary.BigEndian.Uint64(b[24:])),
	}
	return atime, mtime, nil
}

// EncodeDualPath appends a two-path argument (used by symlink, rename and
// link) to dst: u32 len(path1) | path1 | 0x00 | path2. The single NUL
// separator is part of the wire contract; DecodeDualPath treats its absence
// as corruption.
func EncodeDualPath(dst []byte, path1, path2 string) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(path1)))
	dst = append(dst, lenBuf[:]...)
	dst = append(dst, path1...)
	dst = append(dst, 0x00)
	dst = append(dst, path2...)
	return dst
}

// DecodeDualPath parses a two-path argument out of b. It returns an error if
// b is shorter than the announced path1 length, or if the byte immediately
// following path1 is not the mandatory NUL separator.
func DecodeDualPath(b []byte) (path1, path2 string, err error) {
	n, err := GetUint32(b)
	if err != nil {
		return "", "", fmt.Errorf("decode dual-path length: %w", err)
	}
	b = b[4:]
	if uint64(len(b)) < uint64(n)+1 {
		return "", "", fmt.Errorf("%w: dual-path body shorter than announced path1 length", ErrShort)
	}
	path1 = string(b[:n])
	if b[n] != 0x00 {
		return "", "", fmt.Errorf("dual-path: missing NUL separator after path1 (corruption signal)")
	}
	path2 = string(b[n+1:])
	return path1, path2, nil
}

// DecodePath treats the whole of b as an unterminated path. The caller is
// responsible for establishing b's length from the enclosing frame; a path
// payload never carries its own length prefix or NUL terminator on the
// wire.
func DecodePath(b []byte) string {
	return string(b)
}
