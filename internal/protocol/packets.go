// Package protocol implements the binary framing codec and the typed
// message set exchanged between the relay and its clients (players and
// dedicated game servers). All frames use little-endian byte order with
// a fixed 24-byte header: an 8-byte magic, an 8-byte message type
// symbol, and an 8-byte payload length.
package protocol

// FrameMagic marks the start of every frame on the wire.
const FrameMagic uint64 = 0xBB8CE7A278BB40F6

// HeaderSize is the size of a frame header in bytes (magic + symbol + length).
const HeaderSize = 24

// MaxPayloadSize is the maximum allowed payload for a single frame.
const MaxPayloadSize = 1 << 20

// Message type symbols. These are stable wire identifiers; they are
// never reassigned.
const (
	// Login service
	SymLoginRequest int64 = 0x0B61_0001
	SymLoginSuccess int64 = 0x0B61_0002
	SymLoginFailure int64 = 0x0B61_0003

	// Config service
	SymConfigRequest int64 = 0x0B62_0001
	SymConfigSuccess int64 = 0x0B62_0002
	SymConfigFailure int64 = 0x0B62_0003

	// Matching service
	SymFindSessionRequest int64 = 0x0B63_0001
	SymMatchSuccess       int64 = 0x0B63_0002
	SymMatchFailure       int64 = 0x0B63_0003

	// Transaction service
	SymReconcileRequest int64 = 0x0B64_0001
	SymReconcileSuccess int64 = 0x0B64_0002

	// Server registry service
	SymRegistrationRequest     int64 = 0x0B65_0001
	SymRegistrationSuccess     int64 = 0x0B65_0002
	SymRegistrationFailure     int64 = 0x0B65_0003
	SymSessionStartNotify      int64 = 0x0B65_0004
	SymSessionEndNotify        int64 = 0x0B65_0005
	SymPlayerJoinNotify        int64 = 0x0B65_0006
	SymPlayerLeaveNotify       int64 = 0x0B65_0007
	SymSessionLockNotify       int64 = 0x0B65_0008
)

// FramingError reports an unrecoverable desync in the inbound byte
// stream. The owning service closes the connection on sight of one.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string {
	return "framing error: " + e.Reason
}

// ProbeMagicByte is the magic byte used in UDP reachability probes sent
// to game servers during registration validation.
const ProbeMagicByte byte = 0xC7
