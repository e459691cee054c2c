// Package pulse implements the client-side session state machine for the
// pulse native audio daemon protocol described in spec.md: transport
// establishment over a UNIX socket or TCP, a cookie-based AUTH/SET_NAME
// handshake, tag-multiplexed request/reply operations alongside
// asynchronously pushed server events, and a lifecycle child application
// code can observe and drive.
//
// The whole package runs its mutable state on a single goroutine per
// [Context] (the "loop"), matching spec §5's single-threaded cooperative
// model: every exported method either completes synchronously by reading
// lock-free atomics, or posts a closure onto the Context's command channel
// for the loop goroutine to run, so "mutual exclusion is structural"
// rather than achieved with locks.
package pulse

import (
	stdcontext "context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/brindlecove/pulseclient/internal/guard"
	"github.com/brindlecove/pulseclient/internal/pulse/dispatch"
	"github.com/brindlecove/pulseclient/internal/pulse/memblock"
	"github.com/brindlecove/pulseclient/internal/pulse/transport"
)

// DefaultTimeout is the default per-request reply timeout used by the
// handshake and by simple-ack request submission (spec §4.2, §4.4).
const DefaultTimeout = 5 * time.Second

// StateCallback observes Context lifecycle transitions (spec §4.1).
type StateCallback func(c *Context, state State)

// SubscribeCallback observes SUBSCRIBE_EVENT server pushes (spec §4.3).
type SubscribeCallback func(c *Context, eventType, index uint32)

// Context is the central entity of spec §3: one client session against one
// server. Construct with [New]; drive it with [Context.Connect] and
// [Context.Disconnect].
type Context struct {
	name string

	ref     int64 // atomic; strong reference count (spec §4.1 ref/unref)
	state   int32 // atomic State
	errCode int32 // atomic ErrorCode
	ctag    uint32

	cookiePath string

	// loop-owned fields below are touched only from inside loop() (or
	// before it starts / after it has exited); see the package doc.
	framer  *transport.Framer
	disp    *dispatch.Dispatcher
	memStat *memblock.Stat
	cookie  [256]byte

	streams *streamRegistry
	cbGuard *guard.Callback

	stateCb     StateCallback
	subscribeCb SubscribeCallback

	drain drainCoordinator

	cmds       chan func(*Context)
	tagExpired chan uint32
	loopDone   chan struct{}

	cancelDial stdcontext.CancelFunc
}

// New creates a Context in state Unconnected. name must be non-empty; it is
// sent as the display name during the handshake's SET_NAME step and is
// immutable thereafter (spec §3).
func New(name string) (*Context, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	c := &Context{
		name:       name,
		ref:        1,
		state:      int32(Unconnected),
		streams:    newStreamRegistry(),
		cbGuard:    guard.New(name),
		cmds:       make(chan func(*Context), 16),
		tagExpired: make(chan uint32, 16),
		loopDone:   make(chan struct{}),
	}
	c.drain.ctx = c
	return c, nil
}

// Name returns the client display name.
func (c *Context) Name() string { return c.name }

// State returns the current lifecycle state.
func (c *Context) State() State {
	return State(atomic.LoadInt32(&c.state))
}

// Errno returns the last recorded protocol error, meaningful once State()
// is Failed (or as the detail on an Operation's completion callback).
func (c *Context) Errno() ErrorCode {
	return ErrorCode(atomic.LoadInt32(&c.errCode))
}

// SetStateCallback installs cb as the Context's lifecycle observer,
// replacing any previously installed callback. May be called at any time.
func (c *Context) SetStateCallback(cb StateCallback) {
	c.withSelfRef(func() {
		c.cmds <- func(c *Context) { c.stateCb = cb }
	})
}

// SetSubscribeCallback installs cb as the observer for SUBSCRIBE_EVENT
// server pushes (spec §4.3).
func (c *Context) SetSubscribeCallback(cb SubscribeCallback) {
	c.withSelfRef(func() {
		c.cmds <- func(c *Context) { c.subscribeCb = cb }
	})
}

// Ref increments the strong reference count (spec §4.1).
func (c *Context) Ref() *Context {
	atomic.AddInt64(&c.ref, 1)
	return c
}

// Unref decrements the strong reference count. The Context is considered
// destroyed once the count reaches zero; callers must not use it again
// afterwards. Unref never itself blocks or panics, matching spec §4.1's
// requirement that user code may call Unref from inside a callback.
func (c *Context) Unref() {
	atomic.AddInt64(&c.ref, -1)
}

// withSelfRef takes a reference before running fn and releases it
// afterwards, so that a user callback invoked transitively by fn calling
// Unref cannot cause the Context to be torn down mid-routine (spec §4.1
// "Re-entry discipline").
func (c *Context) withSelfRef(fn func()) {
	c.Ref()
	defer c.Unref()
	fn()
}

// nextTag returns a fresh, monotonically increasing tag (spec §3 "ctag",
// §8 invariant 4). Wrapping on overflow is intentional (spec §9 Open
// Questions: the server treats tags as opaque and reuse-on-wrap is not
// guarded against, matching the documented upstream behavior).
func (c *Context) nextTag() uint32 {
	return atomic.AddUint32(&c.ctag, 1)
}

// IsPending reports whether the Context has outstanding I/O: either the
// framer's send queue is non-empty or the dispatcher has pending replies
// (spec §8 invariant 5). It is always false outside Ready.
func (c *Context) IsPending() bool {
	if c.State() != Ready {
		return false
	}
	result := make(chan bool, 1)
	select {
	case c.cmds <- func(c *Context) {
		result <- (c.framer != nil && c.framer.Pending()) || (c.disp != nil && c.disp.Len() > 0)
	}:
		return <-result
	case <-c.loopDone:
		return false
	}
}

func (c *Context) setState(s State) {
	atomic.StoreInt32(&c.state, int32(s))
}

func (c *Context) setError(e ErrorCode) {
	atomic.StoreInt32(&c.errCode, int32(e))
}

// traceID returns a short correlation id for a single Connect attempt's log
// lines, the same way the teacher repo tags a voice session's log lines by
// session id.
func traceID() string {
	return uuid.NewString()[:8]
}

func (c *Context) logPrefix(traceID string) string {
	return fmt.Sprintf("pulse[%s/%s]", c.name, traceID)
}
