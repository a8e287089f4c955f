// Package backend declares the filesystem-operation interface the network
// protocol subsystem dispatches to (server side) and emulates (client
// side). Concrete backends — the local POSIX brick, the cache/mirror/pass
// bricks — are external collaborators; this package specifies only
// the calls this subsystem makes on them; this package is that boundary.
package backend

import (
	"syscall"

	"github.com/hraban/kennyfs/internal/wire"
)

// Context carries the ambient, per-operation state a handler builds fresh
// for every call: the caller's credentials and a brick-private pointer a
// stacked brick (cache, mirror) may use to thread state through without
// this interface knowing about it.
type Context struct {
	UID     uint32
	GID     uint32
	Private any
}

// FileHandle is the backend's own opaque file-handle value. The server
// never interprets its bytes; it stores and forwards exactly what Open or
// Create returned.
type FileHandle uint64

// DirHandle is the backend's own opaque directory-handle value, analogous
// to FileHandle but returned by Opendir.
type DirHandle uint64

// DirEntry is one child yielded by a ReadDir filler callback.
type DirEntry struct {
	Name   string
	Offset uint64
	Attr   wire.Stat
}

// Filler is passed to ReadDir; the backend calls it once per child starting
// at Offset, in the order it wants them transmitted. Filler returns false
// once the handler's accumulating reply buffer is full, signaling the
// backend to stop producing entries early — the directory read will be
// continued by a subsequent READDIR call with a later Offset.
type Filler func(entry DirEntry) (more bool)

// OpenResult is returned by Open and Create.
type OpenResult struct {
	Handle      FileHandle
	DirectIO    bool
	KeepCache   bool
	NonSeekable bool
}

// Ops is the full backend-operations interface. Every method returns 0 on
// success or a syscall.Errno on failure; the wire-encoding boundary (see
// internal/wire's offset-binary return code) is where the sign convention
// is applied, not here. A backend with nothing meaningful to do for a given
// call returns syscall.ENOSYS, which the server forwards as the reply's
// return code without treating it as a handler crash. Operations with no
// method here (extended attributes, locking, statfs, ...) are answered with
// ENOSYS by the server itself.
type Ops interface {
	GetAttr(ctx *Context, path string) (wire.Stat, syscall.Errno)
	Readlink(ctx *Context, path string) (target string, errno syscall.Errno)
	Mknod(ctx *Context, path string, mode uint32) syscall.Errno
	Mkdir(ctx *Context, path string, mode uint32) syscall.Errno
	Unlink(ctx *Context, path string) syscall.Errno
	Rmdir(ctx *Context, path string) syscall.Errno
	Symlink(ctx *Context, target, linkpath string) syscall.Errno
	Rename(ctx *Context, oldpath, newpath string) syscall.Errno
	Link(ctx *Context, oldpath, newpath string) syscall.Errno
	Chmod(ctx *Context, path string, mode uint32) syscall.Errno
	Chown(ctx *Context, path string, uid, gid uint32) syscall.Errno
	Truncate(ctx *Context, path string, size uint64) syscall.Errno
	Open(ctx *Context, path string, flags uint32) (OpenResult, syscall.Errno)
	Create(ctx *Context, path string, flags uint32, mode uint32) (OpenResult, syscall.Errno)
	Read(ctx *Context, fh FileHandle, buf []byte, offset uint64) (n int, errno syscall.Errno)
	Write(ctx *Context, fh FileHandle, data []byte, offset uint64) (n int, errno syscall.Errno)
	Flush(ctx *Context, fh FileHandle) syscall.Errno
	Release(ctx *Context, fh FileHandle) syscall.Errno
	Fsync(ctx *Context, fh FileHandle, datasync bool) syscall.Errno
	Opendir(ctx *Context, path string) (DirHandle, syscall.Errno)
	Readdir(ctx *Context, dh DirHandle, offset uint64, fill Filler) syscall.Errno
	Releasedir(ctx *Context, dh DirHandle) syscall.Errno
	Fgetattr(ctx *Context, fh FileHandle) (wire.Stat, syscall.Errno)
	Utimens(ctx *Context, path string, atime, mtime wire.Timespec) syscall.Errno
}
