package pulse

// State is the Context's observable lifecycle state (spec §3, §4.1). It is
// monotone with respect to the two terminal values: once Failed or
// Terminated is reached, no further transition is possible.
type State int

const (
	// Unconnected is the initial state, before Connect is called.
	Unconnected State = iota
	// Connecting is entered immediately on Connect, while the socket is
	// being established.
	Connecting
	// Authorizing is entered once the socket is ready and the AUTH request
	// has been sent.
	Authorizing
	// SettingName is entered once AUTH succeeds and SET_NAME has been sent.
	SettingName
	// Ready is entered once SET_NAME succeeds; requests may be submitted.
	Ready
	// Failed is a terminal state reached on any unrecoverable error.
	Failed
	// Terminated is a terminal state reached via an explicit Disconnect.
	Terminated
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "Unconnected"
	case Connecting:
		return "Connecting"
	case Authorizing:
		return "Authorizing"
	case SettingName:
		return "SettingName"
	case Ready:
		return "Ready"
	case Failed:
		return "Failed"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is one of the two states from which no further
// transition is possible (spec §3 invariants).
func (s State) Terminal() bool {
	return s == Failed || s == Terminated
}
