package pulse

import "testing"

func TestStreamRegistry_AddLookupRemove(t *testing.T) {
	r := newStreamRegistry()
	s := r.add(5, Playback)
	if s.Channel() != 5 || s.Direction() != Playback {
		t.Errorf("got Channel=%d Direction=%v, want 5/Playback", s.Channel(), s.Direction())
	}
	if got := r.lookup(5); got != s {
		t.Error("lookup did not return the added stream")
	}
	if r.len() != 1 {
		t.Errorf("len() = %d, want 1", r.len())
	}

	r.remove(5)
	if r.lookup(5) != nil {
		t.Error("lookup should return nil after remove")
	}
	if r.len() != 0 {
		t.Errorf("len() = %d after remove, want 0", r.len())
	}
}

func TestStreamRegistry_LookupMissing(t *testing.T) {
	r := newStreamRegistry()
	if r.lookup(42) != nil {
		t.Error("lookup on an empty registry should return nil")
	}
}

func TestStreamRegistry_ForceAllTerminal_EmptiesRegistry(t *testing.T) {
	r := newStreamRegistry()
	r.add(1, Playback)
	r.add(2, Record)
	r.add(3, Playback)

	var forced []uint32
	r.forceAllTerminal(Failed, func(fn func()) { fn() })

	if r.len() != 0 {
		t.Errorf("len() = %d after forceAllTerminal, want 0", r.len())
	}
	_ = forced
}

func TestStreamRegistry_ForceAllTerminal_InvokesEveryStream(t *testing.T) {
	r := newStreamRegistry()
	s1 := r.add(1, Playback)
	s2 := r.add(2, Record)

	var seen []*Stream
	s1.SetStateCallback(func(s *Stream, state State) {
		seen = append(seen, s)
		if state != Terminated {
			t.Errorf("s1 state = %v, want Terminated", state)
		}
	})
	s2.SetStateCallback(func(s *Stream, state State) {
		seen = append(seen, s)
		if state != Terminated {
			t.Errorf("s2 state = %v, want Terminated", state)
		}
	})

	r.forceAllTerminal(Terminated, func(fn func()) { fn() })

	if len(seen) != 2 {
		t.Errorf("forceAllTerminal invoked %d callbacks, want 2", len(seen))
	}
}

func TestStreamRegistry_ForceAllTerminal_NoopWhenEmpty(t *testing.T) {
	r := newStreamRegistry()
	called := false
	r.forceAllTerminal(Failed, func(fn func()) { called = true; fn() })
	if called {
		t.Error("forceAllTerminal should not invoke anything on an empty registry")
	}
}

func TestStreamRegistry_ReentrantCallbackDuringFanOut(t *testing.T) {
	// A stream's own callback may call back into the registry (e.g. to
	// remove another channel) without corrupting the snapshot walk.
	r := newStreamRegistry()
	s1 := r.add(1, Playback)
	r.add(2, Record)

	s1.SetStateCallback(func(*Stream, State) {
		r.remove(2) // reentrant mutation mid-walk
	})

	r.forceAllTerminal(Failed, func(fn func()) { fn() })
	if r.len() != 0 {
		t.Errorf("len() = %d after fan-out, want 0", r.len())
	}
}

func TestStream_DeliverWithoutCallbackIsNoop(t *testing.T) {
	s := &Stream{channel: 1, direction: Record}
	s.deliver([]byte("data")) // must not panic
}

func TestDirection_String(t *testing.T) {
	if Playback.String() != "playback" {
		t.Errorf("Playback.String() = %q, want %q", Playback.String(), "playback")
	}
	if Record.String() != "record" {
		t.Errorf("Record.String() = %q, want %q", Record.String(), "record")
	}
}
