package pulse

import (
	stdcontext "context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/brindlecove/pulseclient/internal/pulse/cookie"
	"github.com/brindlecove/pulseclient/internal/pulse/dispatch"
	"github.com/brindlecove/pulseclient/internal/pulse/memblock"
	"github.com/brindlecove/pulseclient/internal/pulse/transport"
)

// defaultServerEnv is the environment variable consulted when Connect is
// called with an empty server string (spec §6 "Server address resolution").
const defaultServerEnv = "PULSE_SERVER"

// defaultServerAddress is used when neither an explicit argument nor
// PULSE_SERVER is set.
const defaultServerAddress = "/run/pulse/native"

// CookiePath overrides the authentication cookie path that would otherwise
// be resolved from PULSE_COOKIE or the per-user default (spec §6). Must be
// called before Connect.
func (c *Context) CookiePath(path string) {
	c.cookiePath = path
}

// Connect begins establishing a session against server, following spec
// §6's address resolution order: the server argument if non-empty,
// otherwise the PULSE_SERVER environment variable, otherwise the built-in
// default socket path. Connect is only valid from Unconnected (spec §4.1);
// it returns immediately, before the socket is established — progress is
// observed through the state callback.
func (c *Context) Connect(server string) error {
	if !atomic.CompareAndSwapInt32(&c.state, int32(Unconnected), int32(Connecting)) {
		return ErrAlreadyConnected
	}
	addr := resolveServerAddress(server)

	c.disp = dispatch.New()
	c.memStat = memblock.New()

	dctx, cancel := stdcontext.WithCancel(stdcontext.Background())
	c.cancelDial = cancel

	go c.loop()
	go c.dialWorker(dctx, addr)
	return nil
}

// Disconnect tears the session down unconditionally from any state,
// forcing Terminated and fanning that state out to every child stream
// (spec §4.1 "Disconnect"). It is idempotent; calling it on an already
// terminal Context is a no-op.
func (c *Context) Disconnect() {
	c.withSelfRef(func() {
		c.postToLoop(func(c *Context) {
			if c.State().Terminal() {
				return
			}
			c.transition(Terminated, Ok)
		})
	})
}

func resolveServerAddress(server string) string {
	if server != "" {
		return server
	}
	if env := os.Getenv(defaultServerEnv); env != "" {
		return env
	}
	return defaultServerAddress
}

// postToLoop hands fn to the loop goroutine, or drops it silently if the
// loop has already exited — matching how every other post-a-closure entry
// point on Context behaves once the session is torn down.
func (c *Context) postToLoop(fn func(*Context)) {
	select {
	case c.cmds <- fn:
	case <-c.loopDone:
	}
}

// dialWorker resolves the auth cookie and dials the transport off the loop
// goroutine, since both can block, then hands the outcome back to loop()
// as a single closure (spec §4.2 "Connecting" step).
func (c *Context) dialWorker(ctx stdcontext.Context, addr string) {
	tid := traceID()
	log := slog.With("prefix", c.logPrefix(tid))

	path := c.cookiePath
	if path == "" {
		p, err := cookie.DefaultPath()
		if err != nil {
			log.Warn("resolve cookie path", "error", err)
			c.postToLoop(func(c *Context) { c.fail(AuthKey) })
			return
		}
		path = p
	}
	cookieBytes, err := cookie.Load(path)
	if err != nil {
		log.Warn("load auth cookie", "path", path, "error", err)
		c.postToLoop(func(c *Context) { c.fail(AuthKey) })
		return
	}

	log.Info("dialing", "server", addr)
	conn, err := transport.Dial(ctx, addr)
	if err != nil {
		code := ConnectionRefused
		if errors.Is(err, transport.ErrInvalidServer) {
			code = InvalidServer
		}
		log.Warn("dial failed", "error", err)
		c.postToLoop(func(c *Context) { c.fail(code) })
		return
	}

	c.postToLoop(func(c *Context) {
		if c.State() != Connecting {
			// Disconnected while the dial was in flight.
			_ = conn.Close()
			return
		}
		c.framer = transport.NewFramer(conn)
		c.cookie = cookieBytes
		c.startAuth(tid)
	})
}

