package server

import (
	"errors"

	"github.com/hraban/kennyfs/internal/wire"
	"github.com/hraban/kennyfs/pkg/bufpool"
)

// errQueueFull is returned by sendReply when a connection's TX ring has no
// room for the reply. On resource exhaustion,
// reply that cannot be queued is fatal to the connection — every request
// must get exactly one reply, and there is nowhere else to put this one.
var errQueueFull = errors.New("server: TX ring full")

// sendReply stamps an 8-byte reply header (offset-binary return code, body
// length) in front of body and enqueues the whole thing onto c's TX ring.
func sendReply(c *Connection, ret int32, body []byte) error {
	buf := bufpool.Get(wire.ReplyHeaderSize + len(body))
	defer bufpool.Put(buf)
	wire.PutReplyHeader(buf[:wire.ReplyHeaderSize], ret, uint32(len(body)))
	copy(buf[wire.ReplyHeaderSize:], body)

	if _, err := c.tx.Write(buf[:wire.ReplyHeaderSize+len(body)]); err != nil {
		return errQueueFull
	}
	return nil
}

// sendEmptyReply is the common case: a handler whose reply body is always
// empty on success.
func sendEmptyReply(c *Connection, ret int32) error {
	return sendReply(c, ret, nil)
}
