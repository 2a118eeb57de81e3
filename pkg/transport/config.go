package transport

import "time"

// Config carries the frozen values the core depends on. Passed in at
// construction rather than read from a process-wide, lock-guarded global,
// so every goroutine sees a consistent, immutable snapshot without taking
// a lock on the hot path.
type Config struct {
	// MaxMTU is the upper bound accepted during handshake negotiation.
	MaxMTU uint16
	// DefaultMTU is offered when a client's requested MTU is absent or
	// implausible.
	DefaultMTU uint16
	// MTUSafetyMargin reserves room for IP/UDP headers so a batch never
	// triggers IP-level fragmentation.
	MTUSafetyMargin uint16

	// MaxPlayers bounds the Connected partition of the registry.
	MaxPlayers int

	// InboxCapacity bounds each session's forwarded-datagram channel.
	InboxCapacity int
	// ForwardTimeout is the dispatcher's per-datagram forward deadline.
	ForwardTimeout time.Duration
	// AckFlushInterval is how often pending ACK/NAK records are coalesced
	// and sent.
	AckFlushInterval time.Duration
	// LivenessSweepInterval is how often the registry scans for dead
	// sessions.
	LivenessSweepInterval time.Duration
	// DisconnectTimeout is how long a session may go without activity
	// before the liveness sweep removes it.
	DisconnectTimeout time.Duration

	// BroadcastCapacity bounds the server-wide broadcast channel.
	BroadcastCapacity int

	// MaxInProgressCompounds and MaxFragmentBytes bound the fragment
	// collector per session.
	MaxInProgressCompounds int
	MaxFragmentBytes       int

	// ProtocolVersion is compared against a connecting client's
	// Open-Connection-Request-1 protocol version.
	ProtocolVersion byte

	// Description and GameClientVersion feed the unconnected-pong
	// metadata string; kept here because the core, not an
	// external collaborator, owns the handshake reply. The dispatcher
	// rebuilds the string on every ping and does not read
	// MetadataRefreshEvery.
	Description         string
	GameClientVersion    string
	MetadataRefreshEvery time.Duration
}

// DefaultConfig returns sane defaults for standalone use.
func DefaultConfig() Config {
	return Config{
		MaxMTU:                 1492,
		DefaultMTU:             576,
		MTUSafetyMargin:        60,
		MaxPlayers:             1000,
		InboxCapacity:          64,
		ForwardTimeout:         10 * time.Millisecond,
		AckFlushInterval:       10 * time.Millisecond,
		LivenessSweepInterval:  1 * time.Second,
		DisconnectTimeout:      30 * time.Second,
		BroadcastCapacity:      16,
		MaxInProgressCompounds: DefaultMaxInProgressCompounds,
		MaxFragmentBytes:       DefaultMaxFragmentBytes,
		ProtocolVersion:        11,
		Description:            "A relaynet server",
		GameClientVersion:      "1.0.0",
		MetadataRefreshEvery:   2 * time.Second,
	}
}

// SafePayloadBudget returns the maximum frame payload size that keeps a
// single-frame batch under the connection's negotiated MTU once IP/UDP
// overhead and the frame's own header are accounted for.
func (c Config) SafePayloadBudget(mtu uint16, ordered bool) int {
	headerSize := 4
	if ordered {
		headerSize += 11
	} else {
		headerSize += 7
	}
	maxSafe := int(mtu) - int(c.MTUSafetyMargin)
	budget := maxSafe - headerSize
	if budget < 0 {
		return 0
	}
	return budget
}
