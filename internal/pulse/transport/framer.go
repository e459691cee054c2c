package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/brindlecove/pulseclient/internal/pulse/wire"
)

// memblockChannel is the sentinel channel value a frame descriptor carries
// when the frame is a control (tagged-message) frame rather than a memory
// block. Real PulseAudio reserves the all-ones channel id for this purpose;
// we follow the same convention so the descriptor shape generalizes to
// both frame kinds without a separate type tag.
const memblockChannel = 0xffffffff

// Packet is one decoded unit delivered by the framer's receive loop: either
// a tagged [wire.Message] (Msg != nil) or a memory-block chunk (Msg == nil).
type Packet struct {
	Msg     *wire.Message
	Channel uint32
	Seq     uint32
	Data    []byte
}

// Framer carries both tagged messages and bulk memory-block chunks over a
// single stream socket, matching spec §1's "transport framing layer
// carrying both structured tagged messages and bulk audio memory blocks".
// It is the concrete, in-module stand-in for the otherwise-external
// "pstream" collaborator described in spec §1 and §6.
//
// Framer runs its own read/write goroutines; all decoded packets, the
// queue-empty signal, and the terminal "die" notification are delivered
// over channels so the owning Context can fold them into its single loop
// goroutine without any shared-memory locking (spec §5).
type Framer struct {
	conn net.Conn
	w    *bufio.Writer

	sendCh   chan []byte
	closeCh  chan struct{}
	closeOne sync.Once

	// Packets delivers every decoded Packet in wire order.
	Packets chan Packet
	// Died delivers exactly one error (io.EOF on a clean close) when the
	// receive or send loop terminates.
	Died chan error
	// QueueEmpty fires (best-effort, coalesced) whenever the outgoing send
	// queue transitions from non-empty to empty. Used by the drain
	// coordinator (spec §4.5).
	QueueEmpty chan struct{}
}

// NewFramer attaches framing to conn and starts its background loops.
func NewFramer(conn net.Conn) *Framer {
	f := &Framer{
		conn:       conn,
		w:          bufio.NewWriter(conn),
		sendCh:     make(chan []byte, 64),
		closeCh:    make(chan struct{}),
		Packets:    make(chan Packet, 64),
		Died:       make(chan error, 1),
		QueueEmpty: make(chan struct{}, 1),
	}
	go f.readLoop()
	go f.writeLoop()
	return f
}

// SendMessage enqueues a tagged message for transmission. It never blocks
// on the network; it only blocks if the internal queue is saturated, which
// signals backpressure to the caller.
func (f *Framer) SendMessage(m *wire.Message) error {
	return f.enqueue(encodeControlFrame(m))
}

// SendMemblock enqueues a memory-block chunk addressed to channel.
func (f *Framer) SendMemblock(channel, seq uint32, data []byte) error {
	return f.enqueue(encodeMemblockFrame(channel, seq, data))
}

func (f *Framer) enqueue(frame []byte) error {
	select {
	case <-f.closeCh:
		return errors.New("transport: framer closed")
	case f.sendCh <- frame:
		return nil
	}
}

// Close tears down the framer's goroutines and underlying connection. Safe
// to call more than once.
func (f *Framer) Close() error {
	f.closeOne.Do(func() { close(f.closeCh) })
	return f.conn.Close()
}

// Pending reports whether any frame is currently queued for transmission
// but not yet written to the socket — part of spec §8 invariant 5's
// `is_pending` definition.
func (f *Framer) Pending() bool {
	return len(f.sendCh) > 0
}

func (f *Framer) writeLoop() {
	for {
		select {
		case <-f.closeCh:
			return
		case frame := <-f.sendCh:
			if _, err := f.w.Write(frame); err != nil {
				f.fail(err)
				return
			}
			if err := f.w.Flush(); err != nil {
				f.fail(err)
				return
			}
			if len(f.sendCh) == 0 {
				select {
				case f.QueueEmpty <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (f *Framer) readLoop() {
	r := bufio.NewReader(f.conn)
	var hdr [12]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			f.fail(err)
			return
		}
		channel := binary.BigEndian.Uint32(hdr[0:])
		seq := binary.BigEndian.Uint32(hdr[4:])
		length := binary.BigEndian.Uint32(hdr[8:])

		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			f.fail(err)
			return
		}

		if channel == memblockChannel {
			msg, err := wire.Unmarshal(data)
			if err != nil {
				f.fail(fmt.Errorf("transport: malformed control frame: %w", err))
				return
			}
			select {
			case f.Packets <- Packet{Msg: msg}:
			case <-f.closeCh:
				return
			}
			continue
		}

		select {
		case f.Packets <- Packet{Channel: channel, Seq: seq, Data: data}:
		case <-f.closeCh:
			return
		}
	}
}

func (f *Framer) fail(err error) {
	select {
	case f.Died <- err:
	default:
	}
	_ = f.Close()
}

func encodeControlFrame(m *wire.Message) []byte {
	body := m.Marshal()
	return wrapFrame(memblockChannel, 0, body)
}

func encodeMemblockFrame(channel, seq uint32, data []byte) []byte {
	return wrapFrame(channel, seq, data)
}

func wrapFrame(channel, seq uint32, body []byte) []byte {
	out := make([]byte, 12+len(body))
	binary.BigEndian.PutUint32(out[0:], channel)
	binary.BigEndian.PutUint32(out[4:], seq)
	binary.BigEndian.PutUint32(out[8:], uint32(len(body)))
	copy(out[12:], body)
	return out
}
