package pulse

import "errors"

// ErrorCode is the protocol-level error taxonomy from spec §6/§7. It is
// meaningful when State() == Failed, or as the completion detail on an
// Operation whose server reply was ERROR or a synthesized TIMEOUT.
type ErrorCode int

const (
	// Ok means no error is recorded.
	Ok ErrorCode = iota
	// AuthKey means the cookie file was missing/short, or the server
	// rejected the AUTH request (spec §6, §7 "Configuration").
	AuthKey
	// ConnectionRefused means the transport could not be established at
	// all (spec §4.2 "On failed socket establishment").
	ConnectionRefused
	// ConnectionTerminated means an established transport reported EOF or
	// a framer die event while the Context was Ready (spec §7 "Transport
	// fatal").
	ConnectionTerminated
	// InvalidServer means the server address argument could not be
	// resolved to a dialable address (spec §6).
	InvalidServer
	// Protocol means a malformed packet, unexpected command, unconsumed
	// trailing bytes, or dispatch failure was observed (spec §7 "Protocol
	// fatal").
	Protocol
	// Timeout means a registered reply's default timeout elapsed before a
	// server reply arrived (spec §7 "Timeout").
	Timeout
)

func (e ErrorCode) String() string {
	switch e {
	case Ok:
		return "Ok"
	case AuthKey:
		return "AuthKey"
	case ConnectionRefused:
		return "ConnectionRefused"
	case ConnectionTerminated:
		return "ConnectionTerminated"
	case InvalidServer:
		return "InvalidServer"
	case Protocol:
		return "Protocol"
	case Timeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

func (e ErrorCode) Error() string { return e.String() }

// Sentinel Go-level errors for misuse of the public API, distinct from the
// wire-protocol ErrorCode taxonomy above. These are returned directly by
// methods, not surfaced through Errno().
var (
	// ErrAlreadyConnected is returned by Connect when called outside the
	// Unconnected state (spec §4.1: "Valid only from Unconnected").
	ErrAlreadyConnected = errors.New("pulse: connect called outside Unconnected state")
	// ErrNotReady is returned by request-submission methods when the
	// Context is not in the Ready state.
	ErrNotReady = errors.New("pulse: context is not Ready")
	// ErrEmptyName is returned by New when the client display name is
	// empty (spec §4.1 precondition).
	ErrEmptyName = errors.New("pulse: client name must be non-empty")
)
