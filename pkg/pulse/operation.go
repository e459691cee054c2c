package pulse

import (
	"sync/atomic"
	"time"

	"github.com/brindlecove/pulseclient/internal/guard"
	"github.com/brindlecove/pulseclient/internal/pulse/dispatch"
	"github.com/brindlecove/pulseclient/internal/pulse/wire"
)

// OperationCallback observes the outcome of a [Operation] submitted with
// [Context.Submit]: success is true only when the server replied with
// REPLY; errCode carries the server's ERROR payload, [Timeout] (also
// reported when the Context reaches a terminal state with the request
// still pending), [Protocol], or [ConnectionTerminated] when the Context
// left Ready before the request was sent (spec §4.4).
type OperationCallback func(op *Operation, success bool, errCode ErrorCode)

// Operation is the handle returned by [Context.Submit]: a single
// outstanding request, completed exactly once (spec §4.4, §8 invariant 2).
type Operation struct {
	done int32 // atomic
	cb   OperationCallback
}

func newOperation(cb OperationCallback) *Operation {
	return &Operation{cb: cb}
}

// Done reports whether the operation has completed (successfully, with an
// error, or by timeout).
func (o *Operation) Done() bool {
	return atomic.LoadInt32(&o.done) == 1
}

func (o *Operation) complete(success bool, code ErrorCode, g *guard.Callback) {
	if !atomic.CompareAndSwapInt32(&o.done, 0, 1) {
		return
	}
	if o.cb != nil {
		g.Run(func() { o.cb(o, success, code) })
	}
}

// markDoneSilently marks the operation done without invoking its callback.
// Used for the drain coordinator's "no-op indicator" (spec §4.5: an idle
// drain call returns an already-done handle and never fires cb) and to
// discard a still-pending drain Operation when the Context reaches a
// terminal state before it could complete naturally.
func (o *Operation) markDoneSilently() {
	atomic.CompareAndSwapInt32(&o.done, 0, 1)
}

// Submit sends a generic request to the server: opcode and payload are
// application-defined and opaque to the core (spec §4.4 "Operation"). cb
// fires exactly once, from the Context's loop goroutine, once a REPLY,
// ERROR, or timeout is observed. Submit is only valid while State() is
// Ready.
func (c *Context) Submit(opcode uint32, payload []byte, timeout time.Duration, cb OperationCallback) (*Operation, error) {
	if c.State() != Ready {
		return nil, ErrNotReady
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	op := newOperation(cb)
	tag := c.nextTag()
	c.withSelfRef(func() {
		c.postToLoop(func(c *Context) {
			if c.State() != Ready {
				op.complete(false, ConnectionTerminated, c.cbGuard)
				return
			}
			req := wire.NewRequest(wire.CommandOperation, tag).PutU32(opcode).PutBytes(payload)
			c.disp.Register(tag, timeout, func(r dispatch.Reply) { c.completeOperation(op, r) }, func(t uint32) {
				select {
				case c.tagExpired <- t:
				case <-c.loopDone:
				}
			})
			if err := c.framer.SendMessage(req); err != nil {
				c.fail(ConnectionTerminated)
			}
		})
	})
	return op, nil
}

func (c *Context) completeOperation(op *Operation, r dispatch.Reply) {
	if r.TimedOut {
		op.complete(false, Timeout, c.cbGuard)
		return
	}
	msg := r.Msg
	if msg.Command == wire.CommandError {
		code, ok := decodeErrorReply(msg)
		if !ok {
			op.complete(false, Protocol, c.cbGuard)
			c.fail(Protocol)
			return
		}
		op.complete(false, code, c.cbGuard)
		return
	}
	if msg.Command != wire.CommandReply {
		op.complete(false, Protocol, c.cbGuard)
		c.fail(Protocol)
		return
	}
	if err := msg.EOF(); err != nil {
		op.complete(false, Protocol, c.cbGuard)
		c.fail(Protocol)
		return
	}
	op.complete(true, Ok, c.cbGuard)
}

// decodeErrorReply reads an ERROR message's u32 code field — the one decode
// path spec §4.3 describes for every reply consumer (the handshake and
// Submit's completion handler both call this rather than each guessing at
// a fixed code). ok is false if the body is malformed, in which case the
// caller should treat the reply as a Protocol failure instead of trusting
// the zero value.
func decodeErrorReply(msg *wire.Message) (ErrorCode, bool) {
	code, err := msg.GetU32()
	if err != nil {
		return Protocol, false
	}
	return ErrorCode(code), true
}

// ExitDaemon sends a fire-and-forget EXIT request: the core neither
// registers a reply callback nor waits for one (spec §8 scenario 5). It
// returns ErrNotReady outside Ready and nil otherwise; the message is
// enqueued afterwards from the loop goroutine, and a failed enqueue fails
// the Context with ConnectionTerminated. Nothing reports whether the
// server acted on it.
func (c *Context) ExitDaemon() error {
	if c.State() != Ready {
		return ErrNotReady
	}
	c.withSelfRef(func() {
		c.postToLoop(func(c *Context) {
			if c.State() != Ready {
				return
			}
			req := wire.NewRequest(wire.CommandExit, c.nextTag())
			if err := c.framer.SendMessage(req); err != nil {
				c.fail(ConnectionTerminated)
			}
		})
	})
	return nil
}

// Drain requests cb be called, from the loop goroutine, the next time the
// Context has no pending I/O (spec §4.5). If the Context is already
// quiescent, Drain returns immediately with an already-[Operation.Done]
// no-op handle and cb is never invoked — spec §4.5's "no-op indicator" for
// an idle drain. Otherwise it returns a not-yet-done Operation that
// completes (firing cb exactly once, from the loop goroutine) the next
// time both the send queue and the pending-reply set are empty. If the
// Context reaches a terminal state before draining, the returned
// Operation is marked done without firing cb.
func (c *Context) Drain(cb DrainCallback) *Operation {
	noop := func() *Operation {
		op := newOperation(nil)
		op.markDoneSilently()
		return op
	}
	if s := c.State(); s.Terminal() || s == Unconnected {
		return noop()
	}
	result := make(chan *Operation, 1)
	c.withSelfRef(func() {
		c.postToLoop(func(c *Context) {
			if c.State().Terminal() {
				result <- noop()
				return
			}
			result <- c.drain.request(cb)
		})
	})
	select {
	case op := <-result:
		return op
	case <-c.loopDone:
		return noop()
	}
}

// CreateStream attaches a new child stream for channel (spec §3, §4.3). A
// record stream is fed the memblock chunks for its channel as they arrive.
// REQUEST pushes are validated by the Context and are not forwarded to
// playback streams. Only valid while State() is Ready.
func (c *Context) CreateStream(channel uint32, dir Direction) (*Stream, error) {
	if c.State() != Ready {
		return nil, ErrNotReady
	}
	result := make(chan *Stream, 1)
	c.withSelfRef(func() {
		c.postToLoop(func(c *Context) {
			if c.State() != Ready {
				result <- nil
				return
			}
			result <- c.streams.add(channel, dir)
		})
	})
	if s := <-result; s != nil {
		return s, nil
	}
	return nil, ErrNotReady
}
