package transport

import "errors"

// Sentinel errors surfaced by the transport core. None of these propagate
// out of a session's own goroutine — a session either self-heals (drops
// the offending datagram) or self-terminates (kicks itself), so these are
// mostly useful for logging and for tests asserting behavior.
var (
	ErrMalformedDatagram = errors.New("transport: malformed datagram")
	ErrUnknownSubtype    = errors.New("transport: unknown packet subtype")
	ErrBufferOverflow    = errors.New("transport: buffer overflow")
	ErrNotDataBatch      = errors.New("transport: not a frame batch datagram")
	ErrFragmentOverflow  = errors.New("transport: fragment index/count out of range")
	ErrCompoundCapReached = errors.New("transport: per-session fragment cap reached")
	ErrSessionClosing    = errors.New("transport: session is closing")
	ErrRegistryFull      = errors.New("transport: registry at max session count")
	ErrProtocolMismatch  = errors.New("transport: client protocol version mismatch")
)

// KickReason names why a session was terminated, for logging and for the
// best-effort disconnect frame's accompanying log line (the frame itself
// carries no reason).
type KickReason string

const (
	KickProtocolViolation KickReason = "protocol violation"
	KickTimedOut          KickReason = "timed out"
	KickRequested         KickReason = "kicked"
	KickInactive          KickReason = "inactive"
)
