// Package posix implements a minimal reference backend.Ops rooted at a
// directory on the local filesystem, using ordinary os/syscall calls.
//
// The local POSIX backend sits outside the wire protocol's own scope,
// describing it only as an external collaborator behind the
// backend.Ops interface. A full-featured local backend (extended
// attributes, advisory locking, cross-device rename fallback, hard-link
// accounting) belongs to that out-of-scope component; this package exists
// only so the protocol subsystem has something real to dispatch to in
// tests and in a minimal standalone server.
package posix

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hraban/kennyfs/internal/backend"
	"github.com/hraban/kennyfs/internal/wire"
)

func timespecToTime(ts wire.Timespec) time.Time {
	return time.Unix(ts.Sec, ts.Nsec)
}

// Backend implements backend.Ops rooted at Root. All paths received from
// the wire are treated as relative to Root; ".." components are collapsed at
// Root before lookup, so "../../etc/passwd" names Root/etc/passwd rather than
// a file outside Root.
type Backend struct {
	Root string

	mu        sync.Mutex
	files     map[backend.FileHandle]*os.File
	nextFile  uint64
	dirs      map[backend.DirHandle]*dirState
	nextDir   uint64
}

type dirState struct {
	path     string
	children []os.DirEntry
}

// New constructs a Backend rooted at root. root must already exist.
func New(root string) *Backend {
	return &Backend{
		Root:     root,
		files:    make(map[backend.FileHandle]*os.File),
		dirs:     make(map[backend.DirHandle]*dirState),
	}
}

// resolve maps a wire path to an absolute path beneath Root, rejecting any
// attempt to escape Root via "..".
func (b *Backend) resolve(path string) (string, syscall.Errno) {
	clean := filepath.Join("/", path)
	full := filepath.Join(b.Root, clean)
	if !strings.HasPrefix(full, filepath.Clean(b.Root)) {
		return "", syscall.EACCES
	}
	return full, 0
}

func errnoOf(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	if errno, ok := err.(*os.PathError); ok {
		if e, ok := errno.Err.(syscall.Errno); ok {
			return e
		}
	}
	if e, ok := err.(syscall.Errno); ok {
		return e
	}
	return syscall.EIO
}

func toStat(fi os.FileInfo) wire.Stat {
	st := wire.Stat{
		Mode: uint32(fi.Mode()),
		Size: uint64(fi.Size()),
	}
	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		st.Dev = uint64(sys.Dev)
		st.Ino = sys.Ino
		st.Nlink = uint32(sys.Nlink)
		st.UID = sys.Uid
		st.GID = sys.Gid
		st.Rdev = uint64(sys.Rdev)
		st.Blksize = uint32(sys.Blksize)
		st.Blocks = uint64(sys.Blocks)
		st.Atime = sys.Atim.Sec
		st.Mtime = sys.Mtim.Sec
		st.Ctime = sys.Ctim.Sec
	}
	return st
}

func (b *Backend) GetAttr(ctx *backend.Context, path string) (wire.Stat, syscall.Errno) {
	full, errno := b.resolve(path)
	if errno != 0 {
		return wire.Stat{}, errno
	}
	fi, err := os.Lstat(full)
	if err != nil {
		return wire.Stat{}, errnoOf(err)
	}
	return toStat(fi), 0
}

func (b *Backend) Readlink(ctx *backend.Context, path string) (string, syscall.Errno) {
	full, errno := b.resolve(path)
	if errno != 0 {
		return "", errno
	}
	target, err := os.Readlink(full)
	if err != nil {
		return "", errnoOf(err)
	}
	return target, 0
}

func (b *Backend) Mknod(ctx *backend.Context, path string, mode uint32) syscall.Errno {
	full, errno := b.resolve(path)
	if errno != 0 {
		return errno
	}
	// Regular-file mknod only: the file-type bits of mode are ignored, so a
	// request for a device node or FIFO also creates a regular file.
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL, os.FileMode(mode&0o7777))
	if err != nil {
		return errnoOf(err)
	}
	return errnoOf(f.Close())
}

func (b *Backend) Mkdir(ctx *backend.Context, path string, mode uint32) syscall.Errno {
	full, errno := b.resolve(path)
	if errno != 0 {
		return errno
	}
	return errnoOf(os.Mkdir(full, os.FileMode(mode&0o7777)))
}

func (b *Backend) Unlink(ctx *backend.Context, path string) syscall.Errno {
	full, errno := b.resolve(path)
	if errno != 0 {
		return errno
	}
	return errnoOf(os.Remove(full))
}

func (b *Backend) Rmdir(ctx *backend.Context, path string) syscall.Errno {
	full, errno := b.resolve(path)
	if errno != 0 {
		return errno
	}
	return errnoOf(os.Remove(full))
}

func (b *Backend) Symlink(ctx *backend.Context, target, linkpath string) syscall.Errno {
	full, errno := b.resolve(linkpath)
	if errno != 0 {
		return errno
	}
	return errnoOf(os.Symlink(target, full))
}

func (b *Backend) Rename(ctx *backend.Context, oldpath, newpath string) syscall.Errno {
	oldFull, errno := b.resolve(oldpath)
	if errno != 0 {
		return errno
	}
	newFull, errno := b.resolve(newpath)
	if errno != 0 {
		return errno
	}
	return errnoOf(os.Rename(oldFull, newFull))
}

func (b *Backend) Link(ctx *backend.Context, oldpath, newpath string) syscall.Errno {
	oldFull, errno := b.resolve(oldpath)
	if errno != 0 {
		return errno
	}
	newFull, errno := b.resolve(newpath)
	if errno != 0 {
		return errno
	}
	return errnoOf(os.Link(oldFull, newFull))
}

func (b *Backend) Chmod(ctx *backend.Context, path string, mode uint32) syscall.Errno {
	full, errno := b.resolve(path)
	if errno != 0 {
		return errno
	}
	return errnoOf(os.Chmod(full, os.FileMode(mode&0o7777)))
}

func (b *Backend) Chown(ctx *backend.Context, path string, uid, gid uint32) syscall.Errno {
	full, errno := b.resolve(path)
	if errno != 0 {
		return errno
	}
	return errnoOf(os.Chown(full, int(uid), int(gid)))
}

func (b *Backend) Truncate(ctx *backend.Context, path string, size uint64) syscall.Errno {
	full, errno := b.resolve(path)
	if errno != 0 {
		return errno
	}
	return errnoOf(os.Truncate(full, int64(size)))
}

func (b *Backend) openFlags(flags uint32) int {
	// The wire's open flags follow POSIX O_* bit layout closely enough that
	// we pass the low bits through; an implementation targeting a
	// non-POSIX host would translate here instead.
	return int(flags)
}

func (b *Backend) Open(ctx *backend.Context, path string, flags uint32) (backend.OpenResult, syscall.Errno) {
	full, errno := b.resolve(path)
	if errno != 0 {
		return backend.OpenResult{}, errno
	}
	f, err := os.OpenFile(full, b.openFlags(flags), 0)
	if err != nil {
		return backend.OpenResult{}, errnoOf(err)
	}
	return b.registerFile(f), 0
}

func (b *Backend) Create(ctx *backend.Context, path string, flags uint32, mode uint32) (backend.OpenResult, syscall.Errno) {
	full, errno := b.resolve(path)
	if errno != 0 {
		return backend.OpenResult{}, errno
	}
	f, err := os.OpenFile(full, b.openFlags(flags)|os.O_CREATE, os.FileMode(mode&0o7777))
	if err != nil {
		return backend.OpenResult{}, errnoOf(err)
	}
	return b.registerFile(f), 0
}

func (b *Backend) registerFile(f *os.File) backend.OpenResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextFile++
	fh := backend.FileHandle(b.nextFile)
	b.files[fh] = f
	return backend.OpenResult{Handle: fh}
}

func (b *Backend) lookupFile(fh backend.FileHandle) (*os.File, syscall.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.files[fh]
	if !ok {
		return nil, syscall.EBADF
	}
	return f, 0
}

func (b *Backend) Read(ctx *backend.Context, fh backend.FileHandle, buf []byte, offset uint64) (int, syscall.Errno) {
	f, errno := b.lookupFile(fh)
	if errno != 0 {
		return 0, errno
	}
	n, err := f.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return n, errnoOf(err)
	}
	return n, 0
}

func (b *Backend) Write(ctx *backend.Context, fh backend.FileHandle, data []byte, offset uint64) (int, syscall.Errno) {
	f, errno := b.lookupFile(fh)
	if errno != 0 {
		return 0, errno
	}
	n, err := f.WriteAt(data, int64(offset))
	if err != nil {
		return n, errnoOf(err)
	}
	return n, 0
}

func (b *Backend) Flush(ctx *backend.Context, fh backend.FileHandle) syscall.Errno {
	f, errno := b.lookupFile(fh)
	if errno != 0 {
		return errno
	}
	return errnoOf(f.Sync())
}

func (b *Backend) Release(ctx *backend.Context, fh backend.FileHandle) syscall.Errno {
	b.mu.Lock()
	f, ok := b.files[fh]
	if ok {
		delete(b.files, fh)
	}
	b.mu.Unlock()
	if !ok {
		return syscall.EBADF
	}
	return errnoOf(f.Close())
}

func (b *Backend) Fsync(ctx *backend.Context, fh backend.FileHandle, datasync bool) syscall.Errno {
	f, errno := b.lookupFile(fh)
	if errno != 0 {
		return errno
	}
	return errnoOf(f.Sync())
}

func (b *Backend) Opendir(ctx *backend.Context, path string) (backend.DirHandle, syscall.Errno) {
	full, errno := b.resolve(path)
	if errno != 0 {
		return 0, errno
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return 0, errnoOf(err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextDir++
	dh := backend.DirHandle(b.nextDir)
	b.dirs[dh] = &dirState{path: full, children: entries}
	return dh, 0
}

func (b *Backend) Readdir(ctx *backend.Context, dh backend.DirHandle, offset uint64, fill backend.Filler) syscall.Errno {
	b.mu.Lock()
	ds, ok := b.dirs[dh]
	b.mu.Unlock()
	if !ok {
		return syscall.EBADF
	}
	for i := int(offset); i < len(ds.children); i++ {
		child := ds.children[i]
		info, err := child.Info()
		var st wire.Stat
		if err == nil {
			st = toStat(info)
		}
		if !fill(backend.DirEntry{Name: child.Name(), Offset: uint64(i + 1), Attr: st}) {
			break
		}
	}
	return 0
}

func (b *Backend) Releasedir(ctx *backend.Context, dh backend.DirHandle) syscall.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.dirs[dh]; !ok {
		return syscall.EBADF
	}
	delete(b.dirs, dh)
	return 0
}

func (b *Backend) Fgetattr(ctx *backend.Context, fh backend.FileHandle) (wire.Stat, syscall.Errno) {
	f, errno := b.lookupFile(fh)
	if errno != 0 {
		return wire.Stat{}, errno
	}
	fi, err := f.Stat()
	if err != nil {
		return wire.Stat{}, errnoOf(err)
	}
	return toStat(fi), 0
}

func (b *Backend) Utimens(ctx *backend.Context, path string, atime, mtime wire.Timespec) syscall.Errno {
	full, errno := b.resolve(path)
	if errno != 0 {
		return errno
	}
	at := timespecToTime(atime)
	mt := timespecToTime(mtime)
	return errnoOf(os.Chtimes(full, at, mt))
}
