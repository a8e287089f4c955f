package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Operation & Dispatch
	// ========================================================================
	KeyOpID   = "op_id"   // Numeric operation id from the dispatch table
	KeyOpName = "op_name" // Operation name: GETATTR, READ, WRITE, etc.

	// ========================================================================
	// File System Operations
	// ========================================================================
	KeyPath       = "path"        // Full file/directory path
	KeyOldPath    = "old_path"    // Source path for rename/link operations
	KeyNewPath    = "new_path"    // Destination path for rename/link operations
	KeyFileHandle = "file_handle" // Opaque backend file handle
	KeyDirHandle  = "dir_handle"  // Opaque backend directory handle
	KeyMode       = "mode"        // File mode/permissions (Unix-style)

	// ========================================================================
	// I/O Operations
	// ========================================================================
	KeyOffset       = "offset"        // File offset for read/write operations
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientAddr = "client_addr" // Remote address of the connected socket
	KeyUID        = "uid"         // User ID presented by the client
	KeyGID        = "gid"         // Group ID presented by the client

	// ========================================================================
	// Connection
	// ========================================================================
	KeyConnID = "conn_id" // Connection identifier (the listening fd's accepted fd)
	KeyFD     = "fd"      // Raw file descriptor

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrno      = "errno"       // POSIX errno returned to the client
)

// OpID returns a slog.Attr for a dispatch table operation id.
func OpID(id uint16) slog.Attr {
	return slog.Any(KeyOpID, id)
}

// OpName returns a slog.Attr for an operation's human-readable name.
func OpName(name string) slog.Attr {
	return slog.String(KeyOpName, name)
}

// Path returns a slog.Attr for a file/directory path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// OldPath returns a slog.Attr for the source path in a rename/link operation.
func OldPath(p string) slog.Attr {
	return slog.String(KeyOldPath, p)
}

// NewPath returns a slog.Attr for the destination path in a rename/link operation.
func NewPath(p string) slog.Attr {
	return slog.String(KeyNewPath, p)
}

// FileHandle returns a slog.Attr for an opaque backend file handle.
func FileHandle(h uint64) slog.Attr {
	return slog.String(KeyFileHandle, fmt.Sprintf("%016x", h))
}

// DirHandle returns a slog.Attr for an opaque backend directory handle.
func DirHandle(h uint64) slog.Attr {
	return slog.String(KeyDirHandle, fmt.Sprintf("%016x", h))
}

// Mode returns a slog.Attr for a file mode/permission bitmask.
func Mode(m uint32) slog.Attr {
	return slog.Any(KeyMode, m)
}

// Offset returns a slog.Attr for a file offset.
func Offset(off uint64) slog.Attr {
	return slog.Uint64(KeyOffset, off)
}

// BytesRead returns a slog.Attr for actual bytes read.
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// BytesWritten returns a slog.Attr for actual bytes written.
func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

// ClientAddr returns a slog.Attr for the remote address of a connection.
func ClientAddr(addr string) slog.Attr {
	return slog.String(KeyClientAddr, addr)
}

// UID returns a slog.Attr for the client's presented user ID.
func UID(uid uint32) slog.Attr {
	return slog.Any(KeyUID, uid)
}

// GID returns a slog.Attr for the client's presented group ID.
func GID(gid uint32) slog.Attr {
	return slog.Any(KeyGID, gid)
}

// ConnID returns a slog.Attr for a connection identifier.
func ConnID(id int) slog.Attr {
	return slog.Int(KeyConnID, id)
}

// FD returns a slog.Attr for a raw file descriptor.
func FD(fd int) slog.Attr {
	return slog.Int(KeyFD, fd)
}

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Errno returns a slog.Attr for a POSIX errno returned to the client.
func Errno(errno int) slog.Attr {
	return slog.Int(KeyErrno, errno)
}
