package pulse

import (
	"log/slog"

	"github.com/brindlecove/pulseclient/internal/pulse/transport"
	"github.com/brindlecove/pulseclient/internal/pulse/wire"
)

// loop is the single goroutine that owns every non-atomic field on c, from
// the moment Connect starts it until the Context reaches a terminal state
// (spec §5). Every other goroutine only ever reaches into c by posting a
// closure on c.cmds (see postToLoop) or by sending a tag on c.tagExpired;
// loop is the only reader of either channel, and the only writer of
// c.framer, c.disp, c.streams, c.drain, c.stateCb and c.subscribeCb.
func (c *Context) loop() {
	defer close(c.loopDone)
	for {
		select {
		case fn := <-c.cmds:
			fn(c)
		case tag := <-c.tagExpired:
			if c.disp != nil {
				c.disp.Expire(tag)
			}
			c.drain.check()
		case pkt := <-c.framerPackets():
			c.handlePacket(pkt)
		case err := <-c.framerDied():
			c.handleFramerDied(err)
		case <-c.framerQueueEmpty():
			c.drain.check()
		}
		if c.State().Terminal() {
			return
		}
	}
}

func (c *Context) framerPackets() <-chan transport.Packet {
	if c.framer == nil {
		return nil
	}
	return c.framer.Packets
}

func (c *Context) framerDied() <-chan error {
	if c.framer == nil {
		return nil
	}
	return c.framer.Died
}

func (c *Context) framerQueueEmpty() <-chan struct{} {
	if c.framer == nil {
		return nil
	}
	return c.framer.QueueEmpty
}

func (c *Context) handleFramerDied(err error) {
	if c.State().Terminal() {
		return
	}
	slog.Warn("transport died", "prefix", c.logPrefix(traceID()), "error", err)
	c.fail(ConnectionTerminated)
}

// handlePacket routes one decoded unit from the framer: a tagged message
// goes through the reply dispatcher and, failing that, the server-event
// table; a memblock chunk is routed to its owning stream by channel id
// (spec §4.3).
func (c *Context) handlePacket(pkt transport.Packet) {
	if pkt.Msg != nil {
		c.handleMessage(pkt.Msg)
		return
	}
	c.handleMemblock(pkt)
}

func (c *Context) handleMemblock(pkt transport.Packet) {
	s := c.streams.lookup(pkt.Channel)
	if s == nil {
		// The stream may have just been killed server-side; a trailing
		// chunk for it is not a protocol violation.
		return
	}
	c.memStat.Account(len(pkt.Data))
	c.cbGuard.Run(func() { s.deliver(pkt.Data) })
}

func (c *Context) handleMessage(msg *wire.Message) {
	switch msg.Command {
	case wire.CommandReply, wire.CommandError:
		if !c.disp.Dispatch(msg) {
			c.fail(Protocol)
			return
		}
		c.drain.check()

	case wire.CommandPlaybackStreamKilled, wire.CommandRecordStreamKilled:
		channel, err := msg.GetU32()
		if err != nil {
			c.fail(Protocol)
			return
		}
		if s := c.streams.lookup(channel); s != nil {
			c.streams.remove(channel)
			c.cbGuard.Run(func() { s.forceTerminal(Terminated) })
		}

	case wire.CommandSubscribeEvent:
		eventType, err := msg.GetU32()
		if err != nil {
			c.fail(Protocol)
			return
		}
		index, err := msg.GetU32()
		if err != nil {
			c.fail(Protocol)
			return
		}
		if c.subscribeCb != nil {
			c.cbGuard.Run(func() { c.subscribeCb(c, eventType, index) })
		}

	case wire.CommandRequest:
		// The server is asking a playback stream for more data. The
		// channel id is checked for presence and the request is then
		// dropped; it is not forwarded to the stream.
		if _, err := msg.GetU32(); err != nil {
			c.fail(Protocol)
		}

	default:
		c.fail(Protocol)
	}
}

// transition moves the Context to state, updating the recorded error code
// and firing the state callback exactly once. Moving to a terminal state
// additionally cancels every pending operation, drops any pending drain
// callback, fans terminal state out to every child stream, tears down the
// transport, and releases every transport collaborator so that
// state ∈ {Failed, Terminated} ⇒ framer/dispatcher/memblock accounting are
// all nil (spec §3, §4.1 "Terminal fan-out", §8 invariant 1: terminal
// states are sticky).
func (c *Context) transition(state State, errCode ErrorCode) {
	if c.State().Terminal() {
		return
	}
	if errCode != Ok {
		c.setError(errCode)
	}
	if state.Terminal() {
		if c.disp != nil {
			c.disp.CancelAll()
		}
		c.drain.cancel()
		c.streams.forceAllTerminal(state, c.cbGuard.Run)
		if c.framer != nil {
			_ = c.framer.Close()
		}
		if c.cancelDial != nil {
			c.cancelDial()
		}
		c.framer = nil
		c.disp = nil
		c.memStat = nil
	}
	c.setState(state)
	if c.stateCb != nil {
		c.cbGuard.Run(func() { c.stateCb(c, state) })
	}
}

// fail moves the Context to Failed with the given error code.
func (c *Context) fail(code ErrorCode) {
	c.transition(Failed, code)
}
