package transport

import (
	"net"
	"testing"
	"time"

	"github.com/brindlecove/pulseclient/internal/pulse/wire"
)

func TestFramer_SendMessageRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cf := NewFramer(client)
	defer cf.Close()
	sf := NewFramer(server)
	defer sf.Close()

	msg := wire.NewRequest(wire.CommandAuth, 3).PutU32(35)
	if err := cf.SendMessage(msg); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	select {
	case pkt := <-sf.Packets:
		if pkt.Msg == nil {
			t.Fatal("expected a control packet, got a memblock packet")
		}
		if pkt.Msg.Command != wire.CommandAuth || pkt.Msg.Tag != 3 {
			t.Errorf("got Command=%v Tag=%d, want CommandAuth/3", pkt.Msg.Command, pkt.Msg.Tag)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for packet")
	}
}

func TestFramer_SendMemblockRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cf := NewFramer(client)
	defer cf.Close()
	sf := NewFramer(server)
	defer sf.Close()

	payload := []byte("audio-samples")
	if err := cf.SendMemblock(7, 42, payload); err != nil {
		t.Fatalf("SendMemblock: %v", err)
	}

	select {
	case pkt := <-sf.Packets:
		if pkt.Msg != nil {
			t.Fatal("expected a memblock packet, got a control packet")
		}
		if pkt.Channel != 7 || pkt.Seq != 42 {
			t.Errorf("got Channel=%d Seq=%d, want 7/42", pkt.Channel, pkt.Seq)
		}
		if string(pkt.Data) != string(payload) {
			t.Errorf("Data = %q, want %q", pkt.Data, payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for packet")
	}
}

func TestFramer_Pending(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cf := NewFramer(client)
	defer cf.Close()
	sf := NewFramer(server)
	defer sf.Close()

	if cf.Pending() {
		t.Error("Pending() should be false before any send")
	}

	// Drain the other side concurrently so the write loop can flush.
	go func() {
		for range sf.Packets {
		}
	}()

	if err := cf.SendMessage(wire.NewReply(1)); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	// Give the write loop a chance to drain the queue; Pending is
	// best-effort and should settle back to false quickly.
	deadline := time.Now().Add(time.Second)
	for cf.Pending() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if cf.Pending() {
		t.Error("Pending() stayed true after the queue should have drained")
	}
}

func TestFramer_QueueEmptySignal(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cf := NewFramer(client)
	defer cf.Close()
	sf := NewFramer(server)
	defer sf.Close()

	go func() {
		for range sf.Packets {
		}
	}()

	if err := cf.SendMessage(wire.NewReply(1)); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	select {
	case <-cf.QueueEmpty:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for QueueEmpty signal")
	}
}

func TestFramer_DiedOnConnectionClose(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	cf := NewFramer(client)
	defer cf.Close()
	NewFramer(server).Close() // kill the remote end immediately

	select {
	case err := <-cf.Died:
		if err == nil {
			t.Error("Died delivered a nil error")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Died notification")
	}
}

func TestFramer_CloseIsIdempotent(t *testing.T) {
	client, _ := net.Pipe()
	cf := NewFramer(client)

	if err := cf.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := cf.Close(); err != nil {
		t.Fatalf("second Close should not error: %v", err)
	}
}

func TestFramer_SendAfterCloseFails(t *testing.T) {
	client, _ := net.Pipe()
	cf := NewFramer(client)
	cf.Close()

	// The send queue is buffered, so an enqueue can still succeed against a
	// closed framer until the buffer fills; once it does, every further
	// send must observe the close and error out.
	var lastErr error
	for i := 0; i < 128; i++ {
		if lastErr = cf.SendMessage(wire.NewReply(1)); lastErr != nil {
			break
		}
	}
	if lastErr == nil {
		t.Error("SendMessage should eventually error once the queue fills after Close")
	}
}
