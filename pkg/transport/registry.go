package transport

import (
	"net"
	"sync"
	"time"

	"github.com/silvergate/relaynet/internal/metrics"
)

// Registry tracks every live session, split into two partitions:
// Handshaking sessions have exchanged Open-Connection packets but not yet
// been promoted, Connected sessions have had at least one connected
// datagram processed since the handshake.
type Registry struct {
	maxConnected int

	mu          sync.RWMutex
	handshaking map[string]*Session
	connected   map[string]*Session

	broadcast chan []byte
}

// NewRegistry creates an empty registry. maxConnected bounds the Connected
// partition only; Handshaking sessions are not counted against it.
func NewRegistry(maxConnected, broadcastCapacity int) *Registry {
	return &Registry{
		maxConnected: maxConnected,
		handshaking:  make(map[string]*Session),
		connected:    make(map[string]*Session),
		broadcast:    make(chan []byte, broadcastCapacity),
	}
}

func key(addr *net.UDPAddr) string { return addr.String() }

// reportGaugesLocked publishes both partition sizes to the metrics
// collectors. Callers must already hold r.mu.
func (r *Registry) reportGaugesLocked() {
	metrics.HandshakingSessions.Set(float64(len(r.handshaking)))
	metrics.ActiveSessions.Set(float64(len(r.connected)))
}

// InsertHandshaking adds a new session to the Handshaking partition.
func (r *Registry) InsertHandshaking(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handshaking[key(s.Addr)] = s
	r.reportGaugesLocked()
}

// Promote moves a session from Handshaking to Connected. Returns
// ErrRegistryFull if the Connected partition is already at capacity, in
// which case the session remains in Handshaking and the caller should kick
// it.
func (r *Registry) Promote(addr *net.UDPAddr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(addr)
	s, ok := r.handshaking[k]
	if !ok {
		return nil
	}
	if len(r.connected) >= r.maxConnected {
		return ErrRegistryFull
	}
	delete(r.handshaking, k)
	r.connected[k] = s
	s.Promote()
	r.reportGaugesLocked()
	return nil
}

// Lookup finds a session by address in either partition.
func (r *Registry) Lookup(addr *net.UDPAddr) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k := key(addr)
	if s, ok := r.connected[k]; ok {
		return s, true
	}
	if s, ok := r.handshaking[k]; ok {
		return s, true
	}
	return nil, false
}

// Remove deletes a session from whichever partition holds it.
func (r *Registry) Remove(addr *net.UDPAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(addr)
	delete(r.handshaking, k)
	delete(r.connected, k)
	r.reportGaugesLocked()
}

// allSessions returns every session in both partitions, for periodic tasks
// like the ACK-flush tick that must visit Handshaking sessions too (a
// handshaking session can already have reliable sends queued).
func (r *Registry) allSessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*Session, 0, len(r.handshaking)+len(r.connected))
	for _, s := range r.handshaking {
		all = append(all, s)
	}
	for _, s := range r.connected {
		all = append(all, s)
	}
	return all
}

// Count reports the number of Connected sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connected)
}

// MaxCount reports the Connected partition's capacity.
func (r *Registry) MaxCount() int {
	return r.maxConnected
}

// Broadcast publishes a payload to the fan-out channel. A lagging
// subscriber drops the oldest queued message rather than blocking the
// publisher.
func (r *Registry) Broadcast(payload []byte) {
	select {
	case r.broadcast <- payload:
	default:
		select {
		case <-r.broadcast:
		default:
		}
		select {
		case r.broadcast <- payload:
		default:
		}
	}
}

// Subscribe returns the broadcast channel for a consumer to range over.
// Every caller gets the same channel, so each broadcast message is received
// by exactly one consumer; messages are not copied to every subscriber.
func (r *Registry) Subscribe() <-chan []byte {
	return r.broadcast
}

// KickAll closes every session in both partitions, empties both partitions,
// and returns the sessions it closed so the caller can send a best-effort
// disconnect notification. reason is not recorded or reported by KickAll.
func (r *Registry) KickAll(reason KickReason) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*Session
	for _, s := range r.handshaking {
		if s.Close() {
			all = append(all, s)
		}
	}
	for _, s := range r.connected {
		if s.Close() {
			all = append(all, s)
		}
	}
	r.handshaking = make(map[string]*Session)
	r.connected = make(map[string]*Session)
	r.reportGaugesLocked()
	_ = reason
	return all
}

// SweepExpired removes and returns every session past the disconnect
// timeout, from either partition.
func (r *Registry) SweepExpired(timeout time.Duration) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*Session
	for k, s := range r.handshaking {
		if s.Expired(timeout) {
			delete(r.handshaking, k)
			expired = append(expired, s)
		}
	}
	for k, s := range r.connected {
		if s.Expired(timeout) {
			delete(r.connected, k)
			expired = append(expired, s)
		}
	}
	r.reportGaugesLocked()
	return expired
}
