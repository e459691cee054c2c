package pulse

import (
	"testing"
	"time"
)

func TestNew_RejectsEmptyName(t *testing.T) {
	if _, err := New(""); err != ErrEmptyName {
		t.Errorf("New(\"\") = %v, want ErrEmptyName", err)
	}
}

func TestNew_InitialState(t *testing.T) {
	c, err := New("probe")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Name() != "probe" {
		t.Errorf("Name() = %q, want %q", c.Name(), "probe")
	}
	if c.State() != Unconnected {
		t.Errorf("State() = %v, want Unconnected", c.State())
	}
	if c.Errno() != Ok {
		t.Errorf("Errno() = %v, want Ok", c.Errno())
	}
}

func TestRefUnref(t *testing.T) {
	c, err := New("probe")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Ref()
	c.Unref()
	c.Unref() // back to the original strong ref from New; should not panic
}

func TestIsPending_FalseBeforeReady(t *testing.T) {
	c, err := New("probe")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.IsPending() {
		t.Error("IsPending() should be false before the session reaches Ready")
	}
}

func TestSetStateCallback_DoesNotBlockBeforeConnect(t *testing.T) {
	c, err := New("probe")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// The loop goroutine only starts on Connect; SetStateCallback must not
	// block waiting for it to drain the command channel.
	done := make(chan struct{})
	go func() {
		c.SetStateCallback(func(*Context, State) {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SetStateCallback blocked before Connect")
	}
}

func TestNextTag_Monotonic(t *testing.T) {
	c, err := New("probe")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first := c.nextTag()
	second := c.nextTag()
	if second != first+1 {
		t.Errorf("nextTag sequence = %d, %d; want consecutive", first, second)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Unconnected, "Unconnected"},
		{Connecting, "Connecting"},
		{Authorizing, "Authorizing"},
		{SettingName, "SettingName"},
		{Ready, "Ready"},
		{Failed, "Failed"},
		{Terminated, "Terminated"},
		{State(99), "Unknown"},
	}
	for _, tc := range tests {
		if got := tc.s.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.s, got, tc.want)
		}
	}
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{Failed, Terminated} {
		if !s.Terminal() {
			t.Errorf("%v.Terminal() = false, want true", s)
		}
	}
	for _, s := range []State{Unconnected, Connecting, Authorizing, SettingName, Ready} {
		if s.Terminal() {
			t.Errorf("%v.Terminal() = true, want false", s)
		}
	}
}
