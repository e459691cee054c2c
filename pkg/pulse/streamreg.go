package pulse

// streamRegistry tracks every child Stream currently attached to a Context,
// keyed by the server-assigned channel id that arrives on every memblock
// and PLAYBACK_STREAM_KILLED/RECORD_STREAM_KILLED push (spec §4.3 "Channel
// id routing").
//
// Grounded on muxado's streamMap: a plain map guarded by the surrounding
// Context's single loop goroutine (no mutex of its own, same non-concurrent
// contract as internal/pulse/dispatch.Dispatcher), and its Each-style
// snapshot-then-iterate method used for terminal fan-out (spec §4.1
// "Terminal fan-out") so a stream's own callback unlinking itself mid-walk
// (by calling back into the registry) cannot corrupt the walk or skip a
// sibling.
type streamRegistry struct {
	byChannel map[uint32]*Stream
	nextID    uint64
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{byChannel: make(map[uint32]*Stream)}
}

// add attaches a new Stream for channel and returns it.
func (r *streamRegistry) add(channel uint32, dir Direction) *Stream {
	r.nextID++
	s := &Stream{id: r.nextID, channel: channel, direction: dir}
	r.byChannel[channel] = s
	return s
}

// remove detaches the stream for channel, if any (e.g. once it reaches a
// terminal state on its own, or the server kills it).
func (r *streamRegistry) remove(channel uint32) {
	delete(r.byChannel, channel)
}

// lookup returns the stream for channel, or nil.
func (r *streamRegistry) lookup(channel uint32) *Stream {
	return r.byChannel[channel]
}

// len reports the number of attached streams.
func (r *streamRegistry) len() int {
	return len(r.byChannel)
}

// forceAllTerminal pushes state onto every attached stream and empties the
// registry. It snapshots the current streams into a slice before invoking
// any callback, so a callback that turns around and calls back into the
// registry (e.g. to read Context.State(), or to drop its own last
// reference) observes a stable walk instead of racing the mutation it
// itself triggers (spec §4.1 "Terminal fan-out": "iterates a snapshot of
// its child streams").
func (r *streamRegistry) forceAllTerminal(state State, invoke func(func())) {
	if len(r.byChannel) == 0 {
		return
	}
	snapshot := make([]*Stream, 0, len(r.byChannel))
	for _, s := range r.byChannel {
		snapshot = append(snapshot, s)
	}
	r.byChannel = make(map[uint32]*Stream)
	for _, s := range snapshot {
		invoke(func() { s.forceTerminal(state) })
	}
}
