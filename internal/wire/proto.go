package wire

// SOP is the start-of-protocol handshake string. Both peers send it,
// unprompted, immediately after the TCP connection is established, and each
// peer must see the other's before anything else is parsed. Changing this
// string changes the wire protocol version; keep it stable across releases.
const SOP = "KFS1"

// FrameHeaderSize is the size in bytes of a request frame header:
// 4-byte body length + 2-byte operation id.
const FrameHeaderSize = 6

// ReplyHeaderSize is the size in bytes of a reply frame header:
// 4-byte offset-binary return code + 4-byte body length.
const ReplyHeaderSize = 8

// replyBias is added to a handler's signed return value before it is put on
// the wire, and subtracted back off on decode: the reply return-code field
// is offset-binary encoded so an all-zero bit pattern is never a valid
// frame boundary.
const replyBias = 1 << 31

// OpID identifies a KennyFS operation. The id space is dense and small; see
// the Op* constants below for the full catalogue. Ids with no registered
// handler are answered with ENOSYS (see internal/server).
type OpID uint16

// Operation catalogue. The numbering is part of the wire format: do not
// renumber an existing op without bumping SOP.
const (
	OpQuit OpID = iota
	OpGetattr
	OpReadlink
	OpMknod
	OpMkdir
	OpUnlink
	OpRmdir
	OpSymlink
	OpRename
	OpLink
	OpChmod
	OpChown
	OpTruncate
	OpOpen
	OpRead
	OpWrite
	OpStatfs
	OpFlush
	OpRelease
	OpFsync
	OpSetxattr
	OpGetxattr
	OpListxattr
	OpRemovexattr
	OpOpendir
	OpReaddir
	OpReleasedir
	OpFsyncdir
	OpAccess
	OpCreate
	OpFtruncate
	OpFgetattr
	OpLock
	OpUtimens
	OpBmap
	OpIoctl
	OpPoll

	// OpCount is one past the highest assigned operation id; it sizes the
	// dense dispatch table in internal/server.
	OpCount
)

var opNames = [OpCount]string{
	OpQuit:        "QUIT",
	OpGetattr:     "GETATTR",
	OpReadlink:    "READLINK",
	OpMknod:       "MKNOD",
	OpMkdir:       "MKDIR",
	OpUnlink:      "UNLINK",
	OpRmdir:       "RMDIR",
	OpSymlink:     "SYMLINK",
	OpRename:      "RENAME",
	OpLink:        "LINK",
	OpChmod:       "CHMOD",
	OpChown:       "CHOWN",
	OpTruncate:    "TRUNCATE",
	OpOpen:        "OPEN",
	OpRead:        "READ",
	OpWrite:       "WRITE",
	OpStatfs:      "STATFS",
	OpFlush:       "FLUSH",
	OpRelease:     "RELEASE",
	OpFsync:       "FSYNC",
	OpSetxattr:    "SETXATTR",
	OpGetxattr:    "GETXATTR",
	OpListxattr:   "LISTXATTR",
	OpRemovexattr: "REMOVEXATTR",
	OpOpendir:     "OPENDIR",
	OpReaddir:     "READDIR",
	OpReleasedir:  "RELEASEDIR",
	OpFsyncdir:    "FSYNCDIR",
	OpAccess:      "ACCESS",
	OpCreate:      "CREATE",
	OpFtruncate:   "FTRUNCATE",
	OpFgetattr:    "FGETATTR",
	OpLock:        "LOCK",
	OpUtimens:     "UTIMENS",
	OpBmap:        "BMAP",
	OpIoctl:       "IOCTL",
	OpPoll:        "POLL",
}

// String returns the operation's mnemonic, or "OP(n)" if n is outside the
// known catalogue (which can happen for a malformed or future-versioned
// frame).
func (op OpID) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "OP(" + itoa(uint16(op)) + ")"
}

func itoa(n uint16) string {
	if n == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// OpenFlag bits returned in byte 9 of an OPEN/CREATE reply.
const (
	OpenFlagDirectIO   = 1 << 0
	OpenFlagKeepCache  = 1 << 1
	OpenFlagNonSeekable = 1 << 2
)
