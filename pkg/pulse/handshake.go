package pulse

import (
	"github.com/brindlecove/pulseclient/internal/pulse/dispatch"
	"github.com/brindlecove/pulseclient/internal/pulse/wire"
)

// protocolVersion is the client-side wire protocol version advertised in
// the AUTH request (spec §4.2). It is a fixed constant rather than a
// negotiated value: the server's version in the AUTH reply is read but not
// compared against it.
const protocolVersion uint32 = 35

// startAuth sends the AUTH request that begins the handshake, the first
// thing the Context does once the transport is up (spec §4.2
// "Authorizing"). Called only from the loop goroutine, from the
// dial-result closure that dialWorker posts.
func (c *Context) startAuth(tid string) {
	c.transition(Authorizing, Ok)
	tag := c.nextTag()
	req := wire.NewRequest(wire.CommandAuth, tag).PutU32(protocolVersion).PutBytes(c.cookie[:])
	c.registerAndSend(tag, req, c.handleAuthReply)
}

func (c *Context) handleAuthReply(r dispatch.Reply) {
	if c.State().Terminal() {
		return
	}
	if r.TimedOut {
		c.fail(Timeout)
		return
	}
	msg := r.Msg
	if msg.Command == wire.CommandError {
		code, ok := decodeErrorReply(msg)
		if !ok {
			c.fail(Protocol)
			return
		}
		c.fail(code)
		return
	}
	if msg.Command != wire.CommandReply {
		c.fail(Protocol)
		return
	}
	if _, err := msg.GetU32(); err != nil { // server protocol version, unused beyond validation
		c.fail(Protocol)
		return
	}
	if err := msg.EOF(); err != nil {
		c.fail(Protocol)
		return
	}
	c.startSetName()
}

// startSetName sends the SET_NAME request that completes the handshake
// once AUTH has succeeded (spec §4.2 "SettingName").
func (c *Context) startSetName() {
	c.transition(SettingName, Ok)
	tag := c.nextTag()
	req := wire.NewRequest(wire.CommandSetName, tag).PutString(c.name)
	c.registerAndSend(tag, req, c.handleSetNameReply)
}

func (c *Context) handleSetNameReply(r dispatch.Reply) {
	if c.State().Terminal() {
		return
	}
	if r.TimedOut {
		c.fail(Timeout)
		return
	}
	msg := r.Msg
	if msg.Command == wire.CommandError {
		code, ok := decodeErrorReply(msg)
		if !ok {
			c.fail(Protocol)
			return
		}
		c.fail(code)
		return
	}
	if msg.Command != wire.CommandReply {
		c.fail(Protocol)
		return
	}
	if err := msg.EOF(); err != nil {
		c.fail(Protocol)
		return
	}
	c.transition(Ready, Ok)
}

// registerAndSend registers cb against tag with the default handshake/
// operation timeout, then sends req. A send failure fails the Context with
// ConnectionTerminated rather than leaving the registration dangling; the
// ensuing terminal transition cancels it via Dispatcher.CancelAll.
func (c *Context) registerAndSend(tag uint32, req *wire.Message, cb func(dispatch.Reply)) {
	c.disp.Register(tag, DefaultTimeout, cb, func(t uint32) {
		select {
		case c.tagExpired <- t:
		case <-c.loopDone:
		}
	})
	if err := c.framer.SendMessage(req); err != nil {
		c.fail(ConnectionTerminated)
	}
}
