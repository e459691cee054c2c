// Package dispatch implements the tag-keyed reply registry spec.md calls
// "pdispatch" (§1, §4.3, §4.4): a registry that matches incoming tagged
// messages to pending callbacks by tag, with a per-entry timeout.
//
// Grounded on the single-goroutine "outstanding map" pattern used by the
// p9p transport's handle() loop: a Dispatcher has no internal locking of
// its own because spec §5 requires it be touched only from the Context's
// single loop goroutine (see pkg/pulse/loop.go). Timeouts are expressed as
// plain *time.Timer values whose fire event is folded back into that same
// loop via a caller-supplied callback, rather than a dedicated timer
// goroutine per entry — mirroring how spec §4.2/§4.4 describe timeouts as
// requests registered "at a default timeout" against the opaque
// mainloop_api, here made concrete with the stdlib timer.
package dispatch

import (
	"time"

	"github.com/brindlecove/pulseclient/internal/pulse/wire"
)

// Reply is what a pending entry's callback receives: either a decoded
// REPLY/ERROR message, or TimedOut set when no reply arrived in time.
type Reply struct {
	Msg      *wire.Message
	TimedOut bool
}

// Callback is invoked exactly once per registered tag, from Dispatch or
// from the timer fired by Register's default-timeout housekeeping.
type Callback func(Reply)

type entry struct {
	cb    Callback
	timer *time.Timer
}

// Dispatcher tracks in-flight requests by tag. It is NOT safe for
// concurrent use — callers must only invoke Register/Dispatch/Expire/
// CancelAll/Len from the single goroutine that owns the surrounding
// Context (spec §5).
//
// Timer expiry is the one event that does NOT originate on that goroutine
// (Go's time.AfterFunc always runs its function on a dedicated runtime
// goroutine). To keep the map itself single-goroutine-owned, Register
// never lets the timer touch pending directly: it calls the caller-supplied
// notify function instead, whose only job is to hand the tag back to the
// owning loop (e.g. by sending it on a channel) so that loop can call
// [Dispatcher.Expire] itself.
type Dispatcher struct {
	pending map[uint32]*entry
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{pending: make(map[uint32]*entry)}
}

// Register records cb as the handler for tag, to be invoked once Dispatch
// or Expire is called for that tag. If timeout is zero, no timer is armed
// (used by tests and by fire-and-forget requests that never register at
// all). When timeout elapses, notify(tag) is called from a timer
// goroutine — it must not touch the Dispatcher directly; it should instead
// arrange for the owning loop to call [Dispatcher.Expire](tag).
func (d *Dispatcher) Register(tag uint32, timeout time.Duration, cb Callback, notify func(uint32)) {
	e := &entry{cb: cb}
	if timeout > 0 {
		e.timer = time.AfterFunc(timeout, func() { notify(tag) })
	}
	d.pending[tag] = e
}

// Expire completes tag's pending entry, if still present, with a timed-out
// reply. It is a no-op if the tag already completed via Dispatch (spec §8
// invariant 2: no operation callback fires more than once) — this is what
// makes a timer racing a just-arrived REPLY safe.
func (d *Dispatcher) Expire(tag uint32) {
	if e := d.takeIfPresent(tag); e != nil {
		e.cb(Reply{TimedOut: true})
	}
}

// Dispatch delivers msg to the callback registered for msg.Tag, if any. It
// reports whether a matching registration was found; a false return with
// no error is not itself a protocol failure — the caller checks the
// server-event command table next (spec §4.3).
func (d *Dispatcher) Dispatch(msg *wire.Message) bool {
	e := d.takeIfPresent(msg.Tag)
	if e == nil {
		return false
	}
	e.cb(Reply{Msg: msg})
	return true
}

// takeIfPresent removes and returns the entry for tag, stopping its timer,
// or nil if no entry is registered. Used by both Dispatch and timeout
// firing so a tag is completed exactly once (spec §8 invariant 2/3).
func (d *Dispatcher) takeIfPresent(tag uint32) *entry {
	e, ok := d.pending[tag]
	if !ok {
		return nil
	}
	delete(d.pending, tag)
	if e.timer != nil {
		e.timer.Stop()
	}
	return e
}

// CancelAll forcibly completes every pending entry with a TimedOut-shaped
// reply (used on disconnect, spec §5 "Cancellation and timeouts"). The
// message is nil, not a timeout in the literal sense, but contract-wise the
// operation is told "you will get no REPLY"; callers treating Reply.Msg ==
// nil as terminal failure get the right behavior either way.
func (d *Dispatcher) CancelAll() {
	pending := d.pending
	d.pending = make(map[uint32]*entry)
	for _, e := range pending {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.cb(Reply{TimedOut: true})
	}
}

// Len reports the number of pending entries — part of spec §8 invariant
// 5's `is_pending` definition.
func (d *Dispatcher) Len() int {
	return len(d.pending)
}
