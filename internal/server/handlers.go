package server

import (
	"syscall"

	"github.com/hraban/kennyfs/internal/backend"
	"github.com/hraban/kennyfs/internal/wire"
	"github.com/hraban/kennyfs/pkg/bufpool"
)

// disposition tells the event loop what to do with the connection after a
// handler returns, a (connection, body) -> status shape:
// positive disconnects gracefully, zero continues, negative disconnects
// with an error, which the event loop logs.
type disposition int

const (
	dispositionContinue disposition = 0
	dispositionClose    disposition = 1
	dispositionError    disposition = -1
)

// handlerFunc decodes one operation's request body, invokes the backend, and
// queues a reply (except quit, which queues nothing). body is exactly the
// announced body length, with the leading fh/dh/flags fields still attached
// -- no frame header.
type handlerFunc func(srv *Server, c *Connection, body []byte) disposition

// errnoToRet converts a backend syscall.Errno into the signed return-code
// convention sendReply/wire.EncodeReturnCode expects: 0 on success, the
// negated errno magnitude otherwise.
func errnoToRet(e syscall.Errno) int32 {
	if e == 0 {
		return 0
	}
	return -int32(e)
}

// replyOrClose queues an empty-body reply carrying ret (if it cannot be
// queued, the TX ring is full and the connection is closed instead); callers
// use this for the common "reply with this return code and an empty body"
// case.
func replyOrClose(c *Connection, ret int32) disposition {
	if err := sendEmptyReply(c, ret); err != nil {
		return dispositionError
	}
	return dispositionContinue
}

func handleGetattr(srv *Server, c *Connection, body []byte) disposition {
	path := wire.DecodePath(body)
	st, errno := srv.backend.GetAttr(srv.opContext(), path)
	if errno != 0 {
		return replyOrClose(c, errnoToRet(errno))
	}
	var statBuf [wire.StatSize]byte
	_ = wire.EncodeStat(statBuf[:], st)
	if err := sendReply(c, 0, statBuf[:]); err != nil {
		return dispositionError
	}
	return dispositionContinue
}

func handleReadlink(srv *Server, c *Connection, body []byte) disposition {
	path := wire.DecodePath(body)
	target, errno := srv.backend.Readlink(srv.opContext(), path)
	if errno != 0 {
		return replyOrClose(c, errnoToRet(errno))
	}
	if err := sendReply(c, 0, []byte(target)); err != nil {
		return dispositionError
	}
	return dispositionContinue
}

func handleMknod(srv *Server, c *Connection, body []byte) disposition {
	if len(body) < 4 {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	mode, _ := wire.GetUint32(body)
	path := wire.DecodePath(body[4:])
	errno := srv.backend.Mknod(srv.opContext(), path, mode)
	return replyOrClose(c, errnoToRet(errno))
}

func handleMkdir(srv *Server, c *Connection, body []byte) disposition {
	if len(body) < 4 {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	mode, _ := wire.GetUint32(body)
	path := wire.DecodePath(body[4:])
	errno := srv.backend.Mkdir(srv.opContext(), path, mode)
	return replyOrClose(c, errnoToRet(errno))
}

func handleUnlink(srv *Server, c *Connection, body []byte) disposition {
	errno := srv.backend.Unlink(srv.opContext(), wire.DecodePath(body))
	return replyOrClose(c, errnoToRet(errno))
}

func handleRmdir(srv *Server, c *Connection, body []byte) disposition {
	errno := srv.backend.Rmdir(srv.opContext(), wire.DecodePath(body))
	return replyOrClose(c, errnoToRet(errno))
}

func handleSymlink(srv *Server, c *Connection, body []byte) disposition {
	target, linkpath, err := wire.DecodeDualPath(body)
	if err != nil {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	errno := srv.backend.Symlink(srv.opContext(), target, linkpath)
	return replyOrClose(c, errnoToRet(errno))
}

func handleRename(srv *Server, c *Connection, body []byte) disposition {
	oldpath, newpath, err := wire.DecodeDualPath(body)
	if err != nil {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	errno := srv.backend.Rename(srv.opContext(), oldpath, newpath)
	return replyOrClose(c, errnoToRet(errno))
}

func handleLink(srv *Server, c *Connection, body []byte) disposition {
	oldpath, newpath, err := wire.DecodeDualPath(body)
	if err != nil {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	errno := srv.backend.Link(srv.opContext(), oldpath, newpath)
	return replyOrClose(c, errnoToRet(errno))
}

func handleChmod(srv *Server, c *Connection, body []byte) disposition {
	if len(body) < 4 {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	mode, _ := wire.GetUint32(body)
	path := wire.DecodePath(body[4:])
	errno := srv.backend.Chmod(srv.opContext(), path, mode)
	return replyOrClose(c, errnoToRet(errno))
}

func handleChown(srv *Server, c *Connection, body []byte) disposition {
	if len(body) < 8 {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	uid, _ := wire.GetUint32(body)
	gid, _ := wire.GetUint32(body[4:])
	path := wire.DecodePath(body[8:])
	errno := srv.backend.Chown(srv.opContext(), path, uid, gid)
	return replyOrClose(c, errnoToRet(errno))
}

func handleTruncate(srv *Server, c *Connection, body []byte) disposition {
	if len(body) < 8 {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	size, _ := wire.GetUint64(body)
	path := wire.DecodePath(body[8:])
	errno := srv.backend.Truncate(srv.opContext(), path, size)
	return replyOrClose(c, errnoToRet(errno))
}

func encodeOpenReply(res backend.OpenResult) []byte {
	var buf [9]byte
	wire.PutUint64(buf[0:], uint64(res.Handle))
	var flags byte
	if res.DirectIO {
		flags |= wire.OpenFlagDirectIO
	}
	if res.KeepCache {
		flags |= wire.OpenFlagKeepCache
	}
	if res.NonSeekable {
		flags |= wire.OpenFlagNonSeekable
	}
	buf[8] = flags
	return buf[:]
}

func handleOpen(srv *Server, c *Connection, body []byte) disposition {
	if len(body) < 4 {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	flags, _ := wire.GetUint32(body)
	path := wire.DecodePath(body[4:])
	res, errno := srv.backend.Open(srv.opContext(), path, flags)
	if errno != 0 {
		return replyOrClose(c, errnoToRet(errno))
	}
	wireHandle := c.fileHandles.Alloc(res.Handle)
	res.Handle = backend.FileHandle(wireHandle)
	if err := sendReply(c, 0, encodeOpenReply(res)); err != nil {
		return dispositionError
	}
	return dispositionContinue
}

func handleCreate(srv *Server, c *Connection, body []byte) disposition {
	if len(body) < 8 {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	flags, _ := wire.GetUint32(body)
	mode, _ := wire.GetUint32(body[4:])
	path := wire.DecodePath(body[8:])
	res, errno := srv.backend.Create(srv.opContext(), path, flags, mode)
	if errno != 0 {
		return replyOrClose(c, errnoToRet(errno))
	}
	wireHandle := c.fileHandles.Alloc(res.Handle)
	res.Handle = backend.FileHandle(wireHandle)
	if err := sendReply(c, 0, encodeOpenReply(res)); err != nil {
		return dispositionError
	}
	return dispositionContinue
}

// lookupFileHandle resolves the wire's 8-byte file handle to the backend's
// own handle value via this connection's generation-guarded table.
func lookupFileHandle(c *Connection, wireHandle uint64) (backend.FileHandle, bool) {
	return c.fileHandles.Lookup(wireHandle)
}

func handleRead(srv *Server, c *Connection, body []byte) disposition {
	if len(body) < 20 {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	wireHandle, _ := wire.GetUint64(body)
	length, _ := wire.GetUint32(body[8:])
	offset, _ := wire.GetUint64(body[12:])
	fh, ok := lookupFileHandle(c, wireHandle)
	if !ok {
		return replyOrClose(c, -int32(syscall.EBADF))
	}
	buf := bufpool.Get(int(length))
	defer bufpool.Put(buf)
	n, errno := srv.backend.Read(srv.opContext(), fh, buf, offset)
	if errno != 0 {
		// On a failed read the reply body is empty; the return code alone
		// carries the result.
		return replyOrClose(c, errnoToRet(errno))
	}
	if err := sendReply(c, 0, buf[:n]); err != nil {
		return dispositionError
	}
	return dispositionContinue
}

func handleWrite(srv *Server, c *Connection, body []byte) disposition {
	if len(body) < 16 {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	wireHandle, _ := wire.GetUint64(body)
	offset, _ := wire.GetUint64(body[8:])
	data := body[16:]
	fh, ok := lookupFileHandle(c, wireHandle)
	if !ok {
		return replyOrClose(c, -int32(syscall.EBADF))
	}
	n, errno := srv.backend.Write(srv.opContext(), fh, data, offset)
	if errno != 0 {
		return replyOrClose(c, errnoToRet(errno))
	}
	// The return code itself carries the byte count on success; the body
	// is empty.
	return replyOrClose(c, int32(n))
}

func handleFlush(srv *Server, c *Connection, body []byte) disposition {
	if len(body) != 8 {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	wireHandle, _ := wire.GetUint64(body)
	fh, ok := lookupFileHandle(c, wireHandle)
	if !ok {
		return replyOrClose(c, -int32(syscall.EBADF))
	}
	errno := srv.backend.Flush(srv.opContext(), fh)
	return replyOrClose(c, errnoToRet(errno))
}

func handleRelease(srv *Server, c *Connection, body []byte) disposition {
	if len(body) != 8 {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	wireHandle, _ := wire.GetUint64(body)
	fh, ok := lookupFileHandle(c, wireHandle)
	if !ok {
		return replyOrClose(c, -int32(syscall.EBADF))
	}
	errno := srv.backend.Release(srv.opContext(), fh)
	c.fileHandles.Release(wireHandle)
	return replyOrClose(c, errnoToRet(errno))
}

func handleFsync(srv *Server, c *Connection, body []byte) disposition {
	if len(body) != 9 {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	wireHandle, _ := wire.GetUint64(body)
	datasync := body[8] != 0
	fh, ok := lookupFileHandle(c, wireHandle)
	if !ok {
		return replyOrClose(c, -int32(syscall.EBADF))
	}
	errno := srv.backend.Fsync(srv.opContext(), fh, datasync)
	return replyOrClose(c, errnoToRet(errno))
}

func handleOpendir(srv *Server, c *Connection, body []byte) disposition {
	path := wire.DecodePath(body)
	dh, errno := srv.backend.Opendir(srv.opContext(), path)
	if errno != 0 {
		return replyOrClose(c, errnoToRet(errno))
	}
	wireHandle := c.dirHandles.Alloc(dh)
	var buf [8]byte
	wire.PutUint64(buf[:], wireHandle)
	if err := sendReply(c, 0, buf[:]); err != nil {
		return dispositionError
	}
	return dispositionContinue
}

func handleReaddir(srv *Server, c *Connection, body []byte) disposition {
	if len(body) != 16 {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	wireHandle, _ := wire.GetUint64(body)
	offset, _ := wire.GetUint64(body[8:])
	dh, ok := c.dirHandles.Lookup(wireHandle)
	if !ok {
		return replyOrClose(c, -int32(syscall.EBADF))
	}

	maxLen := c.tx.Cap() - wire.ReplyHeaderSize
	out := bufpool.Get(maxLen)[:0]
	defer func() { bufpool.Put(out) }()
	errno := srv.backend.Readdir(srv.opContext(), dh, offset, func(entry backend.DirEntry) bool {
		next, encErr := wire.EncodeDirEntry(out, entry.Attr, entry.Offset, entry.Name)
		if encErr != nil || len(next) > maxLen {
			return false
		}
		out = next
		return true
	})
	if errno != 0 {
		return replyOrClose(c, errnoToRet(errno))
	}
	if err := sendReply(c, 0, out); err != nil {
		return dispositionError
	}
	return dispositionContinue
}

func handleReleasedir(srv *Server, c *Connection, body []byte) disposition {
	if len(body) != 8 {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	wireHandle, _ := wire.GetUint64(body)
	dh, ok := c.dirHandles.Lookup(wireHandle)
	if !ok {
		return replyOrClose(c, -int32(syscall.EBADF))
	}
	errno := srv.backend.Releasedir(srv.opContext(), dh)
	c.dirHandles.Release(wireHandle)
	return replyOrClose(c, errnoToRet(errno))
}

func handleFgetattr(srv *Server, c *Connection, body []byte) disposition {
	if len(body) != 8 {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	wireHandle, _ := wire.GetUint64(body)
	fh, ok := lookupFileHandle(c, wireHandle)
	if !ok {
		return replyOrClose(c, -int32(syscall.EBADF))
	}
	st, errno := srv.backend.Fgetattr(srv.opContext(), fh)
	if errno != 0 {
		return replyOrClose(c, errnoToRet(errno))
	}
	var statBuf [wire.StatSize]byte
	_ = wire.EncodeStat(statBuf[:], st)
	if err := sendReply(c, 0, statBuf[:]); err != nil {
		return dispositionError
	}
	return dispositionContinue
}

func handleUtimens(srv *Server, c *Connection, body []byte) disposition {
	if len(body) < wire.TimespecPairSize {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	atime, mtime, err := wire.DecodeTimespecPair(body)
	if err != nil {
		return replyOrClose(c, -int32(syscall.EINVAL))
	}
	path := wire.DecodePath(body[wire.TimespecPairSize:])
	errno := srv.backend.Utimens(srv.opContext(), path, atime, mtime)
	return replyOrClose(c, errnoToRet(errno))
}

func handleQuit(srv *Server, c *Connection, body []byte) disposition {
	return dispositionClose
}

// newOpTable builds the dense operation dispatch table (see
// "operation table"). Unassigned slots stay nil and are answered with
// ENOSYS by the event loop's dispatch wrapper (see dispatchFor in eventloop.go)
// rather than by a handler entry, so a null slot and a handler that always
// fails are told apart for free.
func newOpTable() [wire.OpCount]handlerFunc {
	var t [wire.OpCount]handlerFunc
	t[wire.OpQuit] = handleQuit
	t[wire.OpGetattr] = handleGetattr
	t[wire.OpReadlink] = handleReadlink
	t[wire.OpMknod] = handleMknod
	t[wire.OpMkdir] = handleMkdir
	t[wire.OpUnlink] = handleUnlink
	t[wire.OpRmdir] = handleRmdir
	t[wire.OpSymlink] = handleSymlink
	t[wire.OpRename] = handleRename
	t[wire.OpLink] = handleLink
	t[wire.OpChmod] = handleChmod
	t[wire.OpChown] = handleChown
	t[wire.OpTruncate] = handleTruncate
	t[wire.OpOpen] = handleOpen
	t[wire.OpRead] = handleRead
	t[wire.OpWrite] = handleWrite
	t[wire.OpFlush] = handleFlush
	t[wire.OpRelease] = handleRelease
	t[wire.OpFsync] = handleFsync
	t[wire.OpOpendir] = handleOpendir
	t[wire.OpReaddir] = handleReaddir
	t[wire.OpReleasedir] = handleReleasedir
	t[wire.OpFgetattr] = handleFgetattr
	t[wire.OpCreate] = handleCreate
	t[wire.OpUtimens] = handleUtimens
	// Statfs, setxattr/getxattr/listxattr/removexattr, fsyncdir, access,
	// ftruncate, lock, bmap, ioctl, poll: left nil. None of these has a
	// corresponding method on backend.Ops (see internal/backend); the
	// uniform ENOSYS path in dispatchFor is the correct behavior, not a gap.
	return t
}
