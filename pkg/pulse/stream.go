package pulse

// Direction distinguishes playback (client writes audio, server plays it)
// from record (server writes audio, client reads it) streams.
type Direction int

const (
	// Playback identifies a stream the client writes audio frames to.
	Playback Direction = iota
	// Record identifies a stream the client reads audio frames from.
	Record
)

func (d Direction) String() string {
	if d == Record {
		return "record"
	}
	return "playback"
}

// ReadCallback receives one memblock chunk delivered to a record stream
// (spec §4.3 memblock path). The backing slice is only valid for the
// duration of the call — per spec §9's documented open question, the
// implicit consumer contract is copy-or-consume before returning; the core
// does not copy on the caller's behalf (doing so would contradict spec
// §1's "the chunk is not copied").
type ReadCallback func(data []byte)

// StreamStateCallback observes a single child stream's terminal
// transition: fired during Context-wide fan-out (spec §4.1 "Terminal
// fan-out") and when the server kills the stream.
type StreamStateCallback func(s *Stream, state State)

// Stream is the core's handle onto a child playback or record stream.
// Spec §1 treats the actual playback/record object as an external, opaque
// collaborator; Stream is the minimal surface the core needs in order to
// route memblocks to it and force it into a terminal state when the owning
// Context fails or is disconnected (spec §3 "Owned collaborators",
// §4.1 "Terminal fan-out").
//
// Stream is only mutated from its owning Context's loop goroutine; reads
// of State() from other goroutines should go through the Context's own
// observers instead of polling a Stream directly, mirroring how spec §3
// scopes "remains valid only while the Context is Ready" to the pairing
// with its owner.
type Stream struct {
	id        uint64
	channel   uint32
	direction Direction
	state     State

	onState StreamStateCallback
	onRead  ReadCallback
}

// Channel returns the server-assigned channel id identifying this stream
// on the wire (spec: "Channel id").
func (s *Stream) Channel() uint32 { return s.channel }

// Direction returns whether this is a playback or record stream.
func (s *Stream) Direction() Direction { return s.direction }

// State returns the stream's last-known state.
func (s *Stream) State() State { return s.state }

// SetStateCallback installs cb as this stream's terminal-transition
// observer.
func (s *Stream) SetStateCallback(cb StreamStateCallback) { s.onState = cb }

// SetReadCallback installs cb as this record stream's memblock consumer.
// Only meaningful when Direction() == Record; ignored for playback streams
// since they never receive memblocks (spec §4.3).
func (s *Stream) SetReadCallback(cb ReadCallback) { s.onRead = cb }

// forceTerminal pushes state (Failed or Terminated) onto the stream and
// fires its observer. Called from terminal fan-out (spec §4.1) and when a
// PLAYBACK_STREAM_KILLED or RECORD_STREAM_KILLED push names this stream.
func (s *Stream) forceTerminal(state State) {
	s.state = state
	if s.onState != nil {
		s.onState(s, state)
	}
}

// deliver hands one memblock chunk to the stream's read callback, if any
// is installed (spec §4.3: "if present and the stream has a read
// callback...").
func (s *Stream) deliver(data []byte) {
	if s.onRead != nil {
		s.onRead(data)
	}
}
