// Package guard makes user-supplied callbacks non-fatal to the pulse loop
// goroutine. Grounded on the teacher's MemoryGuard: the same
// wrap-a-collaborator / swallow-the-failure / expose-a-degraded-flag shape,
// repurposed from guarding a flaky storage backend to guarding the panic
// surface of callbacks a caller hands to [pulse.Context] (state, subscribe,
// operation, stream, and drain callbacks all run on that one goroutine —
// see pkg/pulse's package doc — so a callback that panics would otherwise
// take the whole session down with it).
package guard

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Callback wraps invocation of a single user-supplied function, recovering
// any panic raised inside it and tracking a degraded flag instead of
// letting the panic propagate.
//
// All methods are safe for concurrent use.
type Callback struct {
	name     string
	degraded atomic.Bool
}

// New creates a [Callback] guard identified by name in its log lines.
func New(name string) *Callback {
	return &Callback{name: name}
}

// Run invokes fn, recovering any panic. On panic the guard is marked
// degraded and the panic is logged instead of propagated; on a normal
// return the degraded flag is cleared.
func (g *Callback) Run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			g.degraded.Store(true)
			slog.Warn("guard: recovered panic in callback",
				"guard", g.name,
				"panic", fmt.Sprint(r),
			)
			return
		}
		g.degraded.Store(false)
	}()
	fn()
}

// IsDegraded reports whether the most recent call to Run recovered a panic.
func (g *Callback) IsDegraded() bool {
	return g.degraded.Load()
}
