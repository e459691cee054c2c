// Package wire implements the tagged-message codec for the pulse native
// protocol: the boundary the core treats as an external "pstream" framer
// (see spec §1, §6). Command payloads are encoded as a flat sequence of
// typed fields (u32, string, byte-blob) following the command's wire shape;
// callers build a [Message] with [NewRequest] or [NewReply], append fields
// with the Put* methods, and read them back in order with the Get*
// methods on the receiving side.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Command identifies the operation or event carried by a [Message].
type Command uint32

// Commands understood by the core. AUTH and SETNAME are the two commands
// the core itself originates during the handshake (spec §4.2); REQUEST,
// PLAYBACK_STREAM_KILLED, RECORD_STREAM_KILLED and SUBSCRIBE_EVENT are the
// server-event table entries (spec §4.3); REPLY and ERROR are server
// replies; EXIT is the fire-and-forget example from spec §8 scenario 5.
const (
	CommandReply Command = iota
	CommandError
	CommandAuth
	CommandSetName
	CommandRequest
	CommandPlaybackStreamKilled
	CommandRecordStreamKilled
	CommandSubscribeEvent
	CommandExit
	// CommandOperation carries a generic, application-chosen opcode and an
	// opaque payload for the spec §4.4 Operation abstraction: the core
	// transports it and reports the REPLY/ERROR/timeout outcome back to the
	// caller without interpreting the payload itself.
	CommandOperation
)

func (c Command) String() string {
	switch c {
	case CommandReply:
		return "REPLY"
	case CommandError:
		return "ERROR"
	case CommandAuth:
		return "AUTH"
	case CommandSetName:
		return "SET_NAME"
	case CommandRequest:
		return "REQUEST"
	case CommandPlaybackStreamKilled:
		return "PLAYBACK_STREAM_KILLED"
	case CommandRecordStreamKilled:
		return "RECORD_STREAM_KILLED"
	case CommandSubscribeEvent:
		return "SUBSCRIBE_EVENT"
	case CommandExit:
		return "EXIT"
	case CommandOperation:
		return "OPERATION"
	default:
		return fmt.Sprintf("COMMAND(%d)", uint32(c))
	}
}

// ErrShortBody is returned by Get* methods when the message body has been
// exhausted before the requested field could be read.
var ErrShortBody = errors.New("wire: message body too short")

// ErrTrailingBytes is returned by [Message.EOF] when bytes remain in the
// body after the caller believes it has consumed the whole message. Per
// spec §4.4, trailing bytes after a REPLY body is a Protocol failure.
var ErrTrailingBytes = errors.New("wire: trailing bytes in message body")

// Message is one tagged protocol message: a command id, a client-assigned
// tag, and a command-specific body of typed fields.
type Message struct {
	Command Command
	Tag     uint32
	body    []byte
	roff    int // read offset into body, used by Get* during decode
}

// NewRequest starts building an outgoing message for the given command and
// tag.
func NewRequest(cmd Command, tag uint32) *Message {
	return &Message{Command: cmd, Tag: tag}
}

// NewReply starts building an outgoing REPLY to tag.
func NewReply(tag uint32) *Message {
	return &Message{Command: CommandReply, Tag: tag}
}

// NewError starts building an outgoing ERROR to tag with the given code.
func NewError(tag uint32, code uint32) *Message {
	m := &Message{Command: CommandError, Tag: tag}
	m.PutU32(code)
	return m
}

// PutU32 appends an unsigned 32-bit field.
func (m *Message) PutU32(v uint32) *Message {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	m.body = append(m.body, b[:]...)
	return m
}

// PutString appends a length-prefixed UTF-8 string field.
func (m *Message) PutString(s string) *Message {
	m.PutU32(uint32(len(s)))
	m.body = append(m.body, s...)
	return m
}

// PutBytes appends a length-prefixed opaque byte field (used for the auth
// cookie and other binary blobs).
func (m *Message) PutBytes(b []byte) *Message {
	m.PutU32(uint32(len(b)))
	m.body = append(m.body, b...)
	return m
}

// GetU32 reads the next unsigned 32-bit field.
func (m *Message) GetU32() (uint32, error) {
	if len(m.body)-m.roff < 4 {
		return 0, ErrShortBody
	}
	v := binary.BigEndian.Uint32(m.body[m.roff:])
	m.roff += 4
	return v, nil
}

// GetString reads the next length-prefixed string field.
func (m *Message) GetString() (string, error) {
	n, err := m.GetU32()
	if err != nil {
		return "", err
	}
	if uint32(len(m.body)-m.roff) < n {
		return "", ErrShortBody
	}
	s := string(m.body[m.roff : m.roff+int(n)])
	m.roff += int(n)
	return s, nil
}

// GetBytes reads the next length-prefixed opaque byte field.
func (m *Message) GetBytes() ([]byte, error) {
	n, err := m.GetU32()
	if err != nil {
		return nil, err
	}
	if uint32(len(m.body)-m.roff) < n {
		return nil, ErrShortBody
	}
	b := m.body[m.roff : m.roff+int(n)]
	m.roff += int(n)
	return b, nil
}

// EOF reports ErrTrailingBytes if the body has not been fully consumed by
// the Get* calls made so far, nil otherwise. Request-submission callbacks
// (spec §4.4) must call this after decoding a REPLY body.
func (m *Message) EOF() error {
	if m.roff != len(m.body) {
		return ErrTrailingBytes
	}
	return nil
}

// Marshal serializes the message to wire bytes: command id, tag, body
// length, body.
func (m *Message) Marshal() []byte {
	out := make([]byte, 12+len(m.body))
	binary.BigEndian.PutUint32(out[0:], uint32(m.Command))
	binary.BigEndian.PutUint32(out[4:], m.Tag)
	binary.BigEndian.PutUint32(out[8:], uint32(len(m.body)))
	copy(out[12:], m.body)
	return out
}

// Unmarshal decodes a message header+body previously produced by Marshal.
// A declared body length longer than the bytes after the header is
// rejected with ErrShortBody; bytes beyond the declared length are
// ignored. Callers read complete frames off the wire via a length-prefixed
// framer (see internal/pulse/transport), so b is normally exactly one
// message.
func Unmarshal(b []byte) (*Message, error) {
	if len(b) < 12 {
		return nil, ErrShortBody
	}
	cmd := Command(binary.BigEndian.Uint32(b[0:]))
	tag := binary.BigEndian.Uint32(b[4:])
	n := binary.BigEndian.Uint32(b[8:])
	if uint32(len(b)-12) < n {
		return nil, ErrShortBody
	}
	return &Message{Command: cmd, Tag: tag, body: b[12 : 12+n]}, nil
}
