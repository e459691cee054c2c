package pulse

// DrainCallback is invoked at most once, from the loop goroutine, the next
// time the Context has no pending I/O at all (spec §4.5 "Drain"). It is
// not invoked for an idle (no-op) drain, a drain superseded by a later
// request, or a drain cancelled by a terminal transition.
type DrainCallback func(c *Context)

// drainCoordinator implements spec §4.5: a caller asks to be told when both
// the framer's send queue and the dispatcher's pending-reply set have
// drained to empty. Grounded on the teacher's utterance buffer, which fires
// its own flush callback once both the producer side (buffered frames) and
// the consumer side (in-flight transcription calls) have gone quiet;
// here the two queues are the framer's outbound bytes and pdispatch's
// outstanding tags instead.
//
// Spec §4.5 describes two distinct returns: an idle call "returns the
// no-op indicator" (no callback invocation implied), a busy call "returns
// an operation and, at some later point, invokes cb". Both are modeled
// here as an [Operation] — already [Operation.Done] with no callback
// stored for the idle case, not-yet-done and wrapping cb for the busy one
// — rather than collapsing both branches into "always invoke cb".
//
// Only ever touched from the owning Context's loop goroutine.
type drainCoordinator struct {
	ctx     *Context
	pending *Operation
}

// request returns the no-op indicator (an already-done Operation whose
// callback never fires) if the Context is already quiescent. Otherwise it
// stashes an Operation wrapping cb as the pending drain and returns it,
// not yet done; [drainCoordinator.check] completes it (firing cb exactly
// once, still from the loop goroutine) once both queues are observed
// empty. Only one drain may be outstanding at a time; a new call to
// request replaces whichever Operation is currently pending — that
// superseded Operation never completes, matching how a single
// mainloop_api "once idle" registration is meant to be used.
func (d *drainCoordinator) request(cb DrainCallback) *Operation {
	if d.quiescent() {
		op := newOperation(nil)
		op.markDoneSilently()
		return op
	}
	op := newOperation(func(_ *Operation, _ bool, _ ErrorCode) {
		if cb != nil {
			cb(d.ctx)
		}
	})
	d.pending = op
	return op
}

// quiescent reports whether both queues are currently empty.
func (d *drainCoordinator) quiescent() bool {
	c := d.ctx
	framerEmpty := c.framer == nil || !c.framer.Pending()
	dispatchEmpty := c.disp == nil || c.disp.Len() == 0
	return framerEmpty && dispatchEmpty
}

// check completes and clears the pending Operation (firing its wrapped
// cb) if the Context has since become quiescent. Called by the loop after
// any event that could have shrunk either queue (a QueueEmpty signal from
// the framer, or a completed dispatch entry).
func (d *drainCoordinator) check() {
	if d.pending == nil {
		return
	}
	if !d.quiescent() {
		return
	}
	op := d.pending
	d.pending = nil
	op.complete(true, Ok, d.ctx.cbGuard)
}

// cancel discards any pending Operation without completing it, used when
// the Context reaches a terminal state instead of draining (spec §4.5: "a
// Context that fails or is disconnected before draining never fires the
// drain callback").
func (d *drainCoordinator) cancel() {
	if d.pending != nil {
		d.pending.markDoneSilently()
		d.pending = nil
	}
}
