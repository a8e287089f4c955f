// Package client implements the network brick's blocking operation
// dispatcher: the symmetric counterpart to internal/server's handler table.
// Every filesystem call from the upper layer is translated into one
// request frame, written, and blocked on until its one reply arrives.
package client

import (
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/hraban/kennyfs/internal/backend"
	"github.com/hraban/kennyfs/internal/wire"
)

// Dispatcher owns one TCP connection to a kennyfsd server and serializes
// every call across it with a mutex: only one outstanding request per
// connection at a time, matching the server's strict per-connection FIFO.
type Dispatcher struct {
	conn net.Conn
	mu   sync.Mutex
}

// Dial connects to addr, performs the SOP handshake (send ours, read and
// validate the server's), and returns a ready-to-use Dispatcher.
func Dial(addr string) (*Dispatcher, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	d := &Dispatcher{conn: conn}
	if err := d.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) handshake() error {
	if _, err := d.conn.Write([]byte(wire.SOP)); err != nil {
		return fmt.Errorf("client: writing SOP: %w", err)
	}
	got := make([]byte, len(wire.SOP))
	if _, err := readFull(d.conn, got); err != nil {
		return fmt.Errorf("client: reading peer SOP: %w", err)
	}
	if string(got) != wire.SOP {
		return fmt.Errorf("client: peer SOP mismatch: got %q", got)
	}
	return nil
}

// Close shuts down the underlying connection. Any call blocked in
// roundTrip when this happens returns EREMOTEIO to its caller.
func (d *Dispatcher) Close() error {
	return d.conn.Close()
}

// roundTrip builds a request frame for op with body as its payload,
// writes it, and blocks for exactly one reply. It returns the reply's
// return code and body. A transport-level failure at any point — write,
// read, or a malformed reply header — is reported to the caller as
// syscall.EREMOTEIO, per the propagation rule: the server never sees this
// failure and the upper filesystem layer never sees the raw socket error.
func (d *Dispatcher) roundTrip(op wire.OpID, body []byte) (ret int32, reply []byte, errno syscall.Errno) {
	d.mu.Lock()
	defer d.mu.Unlock()

	frame := make([]byte, wire.FrameHeaderSize+len(body))
	wire.PutRequestHeader(frame, uint32(len(body)), op)
	copy(frame[wire.FrameHeaderSize:], body)

	if _, err := d.conn.Write(frame); err != nil {
		return 0, nil, syscall.EREMOTEIO
	}

	var header [wire.ReplyHeaderSize]byte
	if _, err := readFull(d.conn, header[:]); err != nil {
		return 0, nil, syscall.EREMOTEIO
	}
	ret, bodyLen, err := wire.GetReplyHeader(header[:])
	if err != nil {
		return 0, nil, syscall.EREMOTEIO
	}
	if bodyLen == 0 {
		return ret, nil, 0
	}
	replyBody := make([]byte, bodyLen)
	if _, err := readFull(d.conn, replyBody); err != nil {
		return 0, nil, syscall.EREMOTEIO
	}
	return ret, replyBody, 0
}

func retToErrno(ret int32) syscall.Errno {
	if ret >= 0 {
		return 0
	}
	return syscall.Errno(-ret)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Quit sends the quit operation and closes the connection without waiting
// for a reply — the server closes its end on receipt, and sends nothing
// back.
func (d *Dispatcher) Quit() error {
	d.mu.Lock()
	frame := make([]byte, wire.FrameHeaderSize)
	wire.PutRequestHeader(frame, 0, wire.OpQuit)
	_, err := d.conn.Write(frame)
	d.mu.Unlock()
	if err != nil {
		return syscall.EREMOTEIO
	}
	return d.conn.Close()
}

func (d *Dispatcher) GetAttr(path string) (wire.Stat, syscall.Errno) {
	ret, body, errno := d.roundTrip(wire.OpGetattr, []byte(path))
	if errno != 0 {
		return wire.Stat{}, errno
	}
	if e := retToErrno(ret); e != 0 {
		return wire.Stat{}, e
	}
	st, err := wire.DecodeStat(body)
	if err != nil {
		return wire.Stat{}, syscall.EREMOTEIO
	}
	return st, 0
}

func (d *Dispatcher) Readlink(path string) (string, syscall.Errno) {
	ret, body, errno := d.roundTrip(wire.OpReadlink, []byte(path))
	if errno != 0 {
		return "", errno
	}
	if e := retToErrno(ret); e != 0 {
		return "", e
	}
	return string(body), 0
}

func (d *Dispatcher) Mknod(path string, mode uint32) syscall.Errno {
	body := make([]byte, 4+len(path))
	wire.PutUint32(body, mode)
	copy(body[4:], path)
	return d.simpleCall(wire.OpMknod, body)
}

func (d *Dispatcher) Mkdir(path string, mode uint32) syscall.Errno {
	body := make([]byte, 4+len(path))
	wire.PutUint32(body, mode)
	copy(body[4:], path)
	return d.simpleCall(wire.OpMkdir, body)
}

func (d *Dispatcher) Unlink(path string) syscall.Errno {
	return d.simpleCall(wire.OpUnlink, []byte(path))
}

func (d *Dispatcher) Rmdir(path string) syscall.Errno {
	return d.simpleCall(wire.OpRmdir, []byte(path))
}

func (d *Dispatcher) Symlink(target, linkpath string) syscall.Errno {
	body := wire.EncodeDualPath(nil, target, linkpath)
	return d.simpleCall(wire.OpSymlink, body)
}

func (d *Dispatcher) Rename(oldpath, newpath string) syscall.Errno {
	body := wire.EncodeDualPath(nil, oldpath, newpath)
	return d.simpleCall(wire.OpRename, body)
}

func (d *Dispatcher) Link(oldpath, newpath string) syscall.Errno {
	body := wire.EncodeDualPath(nil, oldpath, newpath)
	return d.simpleCall(wire.OpLink, body)
}

func (d *Dispatcher) Chmod(path string, mode uint32) syscall.Errno {
	body := make([]byte, 4+len(path))
	wire.PutUint32(body, mode)
	copy(body[4:], path)
	return d.simpleCall(wire.OpChmod, body)
}

func (d *Dispatcher) Chown(path string, uid, gid uint32) syscall.Errno {
	body := make([]byte, 8+len(path))
	wire.PutUint32(body, uid)
	wire.PutUint32(body[4:], gid)
	copy(body[8:], path)
	return d.simpleCall(wire.OpChown, body)
}

func (d *Dispatcher) Truncate(path string, size uint64) syscall.Errno {
	body := make([]byte, 8+len(path))
	wire.PutUint64(body, size)
	copy(body[8:], path)
	return d.simpleCall(wire.OpTruncate, body)
}

func (d *Dispatcher) Utimens(path string, atime, mtime wire.Timespec) syscall.Errno {
	body := make([]byte, wire.TimespecPairSize+len(path))
	if err := wire.EncodeTimespecPair(body, atime, mtime); err != nil {
		return syscall.EINVAL
	}
	copy(body[wire.TimespecPairSize:], path)
	return d.simpleCall(wire.OpUtimens, body)
}

// OpenHandle is a remote file handle, opaque to the caller and valid only
// on the Dispatcher that produced it.
type OpenHandle uint64

func (d *Dispatcher) decodeOpenReply(ret int32, body []byte, errno syscall.Errno) (OpenHandle, bool, bool, bool, syscall.Errno) {
	if errno != 0 {
		return 0, false, false, false, errno
	}
	if e := retToErrno(ret); e != 0 {
		return 0, false, false, false, e
	}
	if len(body) != 9 {
		return 0, false, false, false, syscall.EREMOTEIO
	}
	handle, _ := wire.GetUint64(body)
	flags := body[8]
	return OpenHandle(handle),
		flags&wire.OpenFlagDirectIO != 0,
		flags&wire.OpenFlagKeepCache != 0,
		flags&wire.OpenFlagNonSeekable != 0,
		0
}

func (d *Dispatcher) Open(path string, flags uint32) (h OpenHandle, directIO, keepCache, nonSeekable bool, errno syscall.Errno) {
	body := make([]byte, 4+len(path))
	wire.PutUint32(body, flags)
	copy(body[4:], path)
	ret, replyBody, errno := d.roundTrip(wire.OpOpen, body)
	return d.decodeOpenReply(ret, replyBody, errno)
}

func (d *Dispatcher) Create(path string, flags, mode uint32) (h OpenHandle, directIO, keepCache, nonSeekable bool, errno syscall.Errno) {
	body := make([]byte, 8+len(path))
	wire.PutUint32(body, flags)
	wire.PutUint32(body[4:], mode)
	copy(body[8:], path)
	ret, replyBody, errno := d.roundTrip(wire.OpCreate, body)
	return d.decodeOpenReply(ret, replyBody, errno)
}

func (d *Dispatcher) Read(h OpenHandle, length uint32, offset uint64) ([]byte, syscall.Errno) {
	body := make([]byte, 20)
	wire.PutUint64(body, uint64(h))
	wire.PutUint32(body[8:], length)
	wire.PutUint64(body[12:], offset)
	ret, replyBody, errno := d.roundTrip(wire.OpRead, body)
	if errno != 0 {
		return nil, errno
	}
	if e := retToErrno(ret); e != 0 {
		return nil, e
	}
	return replyBody, 0
}

func (d *Dispatcher) Write(h OpenHandle, data []byte, offset uint64) (int, syscall.Errno) {
	body := make([]byte, 16+len(data))
	wire.PutUint64(body, uint64(h))
	wire.PutUint64(body[8:], offset)
	copy(body[16:], data)
	ret, _, errno := d.roundTrip(wire.OpWrite, body)
	if errno != 0 {
		return 0, errno
	}
	if ret < 0 {
		return 0, retToErrno(ret)
	}
	return int(ret), 0
}

func (d *Dispatcher) Flush(h OpenHandle) syscall.Errno {
	var body [8]byte
	wire.PutUint64(body[:], uint64(h))
	return d.simpleCall(wire.OpFlush, body[:])
}

func (d *Dispatcher) Release(h OpenHandle) syscall.Errno {
	var body [8]byte
	wire.PutUint64(body[:], uint64(h))
	return d.simpleCall(wire.OpRelease, body[:])
}

func (d *Dispatcher) Fsync(h OpenHandle, datasync bool) syscall.Errno {
	body := make([]byte, 9)
	wire.PutUint64(body, uint64(h))
	if datasync {
		body[8] = 1
	}
	return d.simpleCall(wire.OpFsync, body)
}

func (d *Dispatcher) Fgetattr(h OpenHandle) (wire.Stat, syscall.Errno) {
	var body [8]byte
	wire.PutUint64(body[:], uint64(h))
	ret, replyBody, errno := d.roundTrip(wire.OpFgetattr, body[:])
	if errno != 0 {
		return wire.Stat{}, errno
	}
	if e := retToErrno(ret); e != 0 {
		return wire.Stat{}, e
	}
	st, err := wire.DecodeStat(replyBody)
	if err != nil {
		return wire.Stat{}, syscall.EREMOTEIO
	}
	return st, 0
}

// DirHandle is a remote directory handle, opaque to the caller.
type DirHandle uint64

func (d *Dispatcher) Opendir(path string) (DirHandle, syscall.Errno) {
	ret, body, errno := d.roundTrip(wire.OpOpendir, []byte(path))
	if errno != 0 {
		return 0, errno
	}
	if e := retToErrno(ret); e != 0 {
		return 0, e
	}
	if len(body) != 8 {
		return 0, syscall.EREMOTEIO
	}
	handle, _ := wire.GetUint64(body)
	return DirHandle(handle), 0
}

// Readdir returns every entry the server reports for one readdir call
// starting at offset; the caller re-invokes with the last entry's Offset to
// continue past a reply that filled the server's scratch buffer.
func (d *Dispatcher) Readdir(h DirHandle, offset uint64) ([]backend.DirEntry, syscall.Errno) {
	body := make([]byte, 16)
	wire.PutUint64(body, uint64(h))
	wire.PutUint64(body[8:], offset)
	ret, replyBody, errno := d.roundTrip(wire.OpReaddir, body)
	if errno != 0 {
		return nil, errno
	}
	if e := retToErrno(ret); e != 0 {
		return nil, e
	}
	return decodeDirEntries(replyBody)
}

func decodeDirEntries(b []byte) ([]backend.DirEntry, syscall.Errno) {
	var entries []backend.DirEntry
	for len(b) > 0 {
		if len(b) < wire.DirEntryHeaderSize {
			return nil, syscall.EREMOTEIO
		}
		st, err := wire.DecodeStat(b)
		if err != nil {
			return nil, syscall.EREMOTEIO
		}
		off, _ := wire.GetUint64(b[wire.StatSize:])
		nameLen, _ := wire.GetUint32(b[wire.StatSize+8:])
		nameStart := wire.DirEntryHeaderSize
		// +1 for the trailing 0x00 every entry carries after its name (see
		// wire.EncodeDirEntry); omitting it here would leave that byte at
		// the front of the next entry and shift every field after it.
		if len(b) < nameStart+int(nameLen)+1 {
			return nil, syscall.EREMOTEIO
		}
		name := string(b[nameStart : nameStart+int(nameLen)])
		entries = append(entries, backend.DirEntry{Attr: st, Offset: off, Name: name})
		b = b[nameStart+int(nameLen)+1:]
	}
	return entries, 0
}

func (d *Dispatcher) Releasedir(h DirHandle) syscall.Errno {
	var body [8]byte
	wire.PutUint64(body[:], uint64(h))
	return d.simpleCall(wire.OpReleasedir, body[:])
}

// simpleCall issues a round trip and maps it down to a single errno, for
// operations whose reply body is always empty on success.
func (d *Dispatcher) simpleCall(op wire.OpID, body []byte) syscall.Errno {
	ret, _, errno := d.roundTrip(op, body)
	if errno != 0 {
		return errno
	}
	return retToErrno(ret)
}

// SetDeadline forwards to the underlying connection, for a caller wanting
// to bound a single slow backend call rather than leave Read/Write blocked
// forever — the wire protocol itself specifies no such deadline.
func (d *Dispatcher) SetDeadline(t time.Time) error {
	return d.conn.SetDeadline(t)
}
