package server

import (
	"github.com/hraban/kennyfs/internal/backend"
	"github.com/hraban/kennyfs/internal/logger"
	"github.com/hraban/kennyfs/internal/ring"
)

// Connection is the per-client record: a socket, its RX/TX rings, the RX
// framer's state, and sibling pointers that thread it into the server's
// client set. Everything here is owned exclusively by the event loop
// goroutine; nothing is locked because nothing else touches it.
type Connection struct {
	fd     int
	addr   string
	rx     *ring.Buffer
	tx     *ring.Buffer
	framer *ring.Framer

	fileHandles *handleTable[backend.FileHandle]
	dirHandles  *handleTable[backend.DirHandle]

	logCtx *logger.LogContext

	// closing is set once this connection has been marked for disconnection
	// during the current event-loop pass: the loop finishes the current
	// pass's read/write handling before tearing it down, so marking must not
	// immediately free anything this connection still references.
	closing bool

	prev, next *Connection
}

func newConnection(fd int, addr string, bufCap int, sop string) *Connection {
	c := &Connection{
		fd:          fd,
		addr:        addr,
		rx:          ring.New(bufCap),
		tx:          ring.New(bufCap),
		fileHandles: newHandleTable[backend.FileHandle](),
		dirHandles:  newHandleTable[backend.DirHandle](),
		logCtx:      logger.NewLogContext(fd, addr),
	}
	c.framer = ring.NewFramer(c.rx, sop)
	return c
}

// FD returns the connection's raw socket descriptor.
func (c *Connection) FD() int { return c.fd }
