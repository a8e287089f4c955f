package ring

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hraban/kennyfs/internal/wire"
)

// ErrPoisoned is returned by Framer.Drain when the connection has violated
// the protocol in a way that admits no reply: a bad SOP string, or an
// announced body length that does not fit the ring. The caller must close
// the connection without sending anything further.
var ErrPoisoned = errors.New("ring: connection poisoned")

// state is the RX framer's three-state machine.
type state int

const (
	stateAwaitSOP state = iota
	stateAwaitHeader
	stateAwaitBody
)

// Dispatch is called once per fully-framed request. body is exactly the
// announced body length; it does not include the operation id. Any non-nil
// error from Dispatch stops the drain loop and is returned by Drain as is;
// a dispatch function that answers a request with an error reply (EINVAL,
// ENOSYS, ...) queues that reply itself and returns nil.
type Dispatch func(op wire.OpID, body []byte) error

// Framer drives the RX ring's await-SOP / await-header / await-body state
// machine above. One Framer exists per connection; it owns
// no bytes itself, only the ring it was constructed with and a small amount
// of state about where in a frame the next extraction will land.
type Framer struct {
	rx          *Buffer
	sop         string
	state       state
	pendingSize uint32
}

// NewFramer constructs a Framer over rx, starting in the await-SOP state.
// The handshake string it expects to see first is sop; if sop is empty it
// defaults to wire.SOP, so existing callers that never configured a custom
// handshake string keep working unchanged.
func NewFramer(rx *Buffer, sop ...string) *Framer {
	f := &Framer{rx: rx, state: stateAwaitSOP, sop: wire.SOP}
	if len(sop) > 0 && sop[0] != "" {
		f.sop = sop[0]
	}
	return f
}

// SOPReceived reports whether this connection's handshake string has been
// validated yet.
func (f *Framer) SOPReceived() bool { return f.state != stateAwaitSOP }

// Drain runs the state machine until either the ring has fewer buffered
// bytes than the current state needs (the ordinary case: wait for the next
// readable event) or a full frame has been extracted and dispatched, in
// which case it loops back to drain any further frames already buffered —
// this is what makes one recv() able to satisfy many pipelined requests in
// a single event-loop pass.
//
// Drain returns ErrPoisoned (do not reply; close the connection) on a bad
// SOP or an oversize announced body length. Any other non-nil error is
// whatever dispatch returned, and is likewise fatal to the connection (the
// handler table's own error paths reply with EINVAL/ENOSYS before
// returning nil; a non-nil error here means something lower-level broke,
// e.g. the TX ring could not hold a reply).
func (f *Framer) Drain(dispatch Dispatch) error {
	for {
		switch f.state {
		case stateAwaitSOP:
			sopLen := len(f.sop)
			if f.rx.Used() < sopLen {
				return nil
			}
			got, err := f.rx.Read(sopLen)
			if err != nil {
				return err
			}
			if string(got[:sopLen]) != f.sop {
				return fmt.Errorf("%w: bad start-of-protocol string", ErrPoisoned)
			}
			f.state = stateAwaitHeader

		case stateAwaitHeader:
			if f.rx.Used() < 4 {
				return nil
			}
			got, err := f.rx.Read(4)
			if err != nil {
				return err
			}
			bodyLen := binary.BigEndian.Uint32(got[:4])
			if bodyLen > uint32(f.rx.Cap())-2 {
				return fmt.Errorf("%w: body length %d exceeds capacity", ErrPoisoned, bodyLen)
			}
			f.pendingSize = bodyLen
			f.state = stateAwaitBody

		case stateAwaitBody:
			need := int(f.pendingSize) + 2
			if f.rx.Used() < need {
				return nil
			}
			got, err := f.rx.Read(need)
			if err != nil {
				return err
			}
			op := wire.OpID(binary.BigEndian.Uint16(got[:2]))
			body := got[2 : 2+f.pendingSize]
			f.pendingSize = 0
			f.state = stateAwaitHeader
			if err := dispatch(op, body); err != nil {
				return err
			}
		}
	}
}
