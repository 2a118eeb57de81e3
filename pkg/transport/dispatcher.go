package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/silvergate/relaynet/internal/metrics"
)

// ApplicationHandler is the seam between this transport and whatever runs
// on top of it. The transport never interprets application payloads; it
// only delivers them in order and accepts payloads to enqueue.
type ApplicationHandler interface {
	// OnConnect is called when a Handshaking session has processed its
	// first connected datagram and been promoted into the registry's
	// Connected partition.
	OnConnect(s *Session)
	// OnPayload is called for every application payload the receive path
	// releases, in delivery order, whether it came through an order
	// channel or from an unordered frame.
	OnPayload(s *Session, payload []byte)
	// OnDisconnect is called once a session is removed from the registry
	// by the dispatcher: forward timeout, protocol violation, a full
	// Connected partition, or the liveness sweep. Sessions closed through
	// Registry.KickAll are not reported here.
	OnDisconnect(s *Session, reason KickReason)
}

// Dispatcher owns the UDP socket(s), classifies inbound datagrams, runs the
// unconnected handshake state machine inline, and forwards connected
// datagrams into each session's inbox. Listen/update/cleanup run as three
// independent loops under one cancellation context rather than a shared
// running flag, so shutdown is a single ctx.Cancel away from every loop
// observing it.
type Dispatcher struct {
	cfg      Config
	conn     *net.UDPConn
	conn6    *net.UDPConn
	registry *Registry
	app      ApplicationHandler
	guid     uint64
	logger   Logger

	inboxMu sync.Mutex
	inboxes map[string]*inbox
}

// inbox is a session's forwarded-datagram channel plus its done signal. The
// channel itself is never closed — only done is, exactly once, guarded by
// Session.Close()'s own idempotency — so a concurrent forward can never
// send on a closed channel no matter how it races with a kick.
type inbox struct {
	ch   chan []byte
	done chan struct{}
}

// Logger is the minimal structured-logging seam the dispatcher depends on,
// satisfied by internal/logging.Logger.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NewDispatcher binds the given addresses. addr6 may be nil to run
// IPv4-only.
func NewDispatcher(cfg Config, addr, addr6 *net.UDPAddr, app ApplicationHandler, logger Logger) (*Dispatcher, error) {
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("bind udp4 socket: %w", err)
	}
	d := &Dispatcher{
		cfg:      cfg,
		conn:     conn,
		registry: NewRegistry(cfg.MaxPlayers, cfg.BroadcastCapacity),
		app:      app,
		guid:     NewServerGUID(),
		logger:   logger,
		inboxes:  make(map[string]*inbox),
	}
	if addr6 != nil {
		conn6, err := net.ListenUDP("udp6", addr6)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("bind udp6 socket: %w", err)
		}
		d.conn6 = conn6
	}
	return d, nil
}

// Registry exposes the session registry for metrics/CLI wiring.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Run starts the receive loops, the ACK-flush ticker, and the liveness
// sweep, blocking until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	go d.ackFlushLoop(ctx)
	go d.livenessSweepLoop(ctx)
	if d.conn6 != nil {
		go d.receiveLoop(ctx, d.conn6)
	}
	return d.receiveLoop(ctx, d.conn)
}

func (d *Dispatcher) receiveLoop(ctx context.Context, conn *net.UDPConn) error {
	buffer := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, addr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Warnf("udp read error: %v", err)
			continue
		}

		data := make([]byte, n)
		copy(data, buffer[:n])
		d.dispatch(conn, data, addr)
	}
}

func (d *Dispatcher) dispatch(conn *net.UDPConn, data []byte, addr *net.UDPAddr) {
	if len(data) == 0 {
		return
	}
	if IsUnconnected(data[0]) {
		d.handleUnconnected(conn, data, addr)
		return
	}
	d.forwardConnected(data, addr)
}

// forwardConnected hands the datagram to the owning session's inbox. The
// common case — room in the channel — is a non-blocking send costing O(1)
// work on the receive-loop goroutine. A full inbox falls back to a
// detached goroutine that waits up to the forward deadline before kicking
// the session as timed out, so the receive loop itself is never blocked.
func (d *Dispatcher) forwardConnected(data []byte, addr *net.UDPAddr) {
	s, ok := d.registry.Lookup(addr)
	if !ok {
		return
	}

	d.inboxMu.Lock()
	ib, ok := d.inboxes[key(addr)]
	d.inboxMu.Unlock()
	if !ok {
		return
	}

	select {
	case ib.ch <- data:
		return
	case <-ib.done:
		return
	default:
	}

	go d.forwardWithDeadline(s, ib, data)
}

// forwardWithDeadline is the detached fallback for a full inbox; it never
// blocks the receive loop. ib.ch is never closed, so this send can never
// panic regardless of how it races with a kick — at worst it blocks until
// ib.done fires or the deadline elapses.
func (d *Dispatcher) forwardWithDeadline(s *Session, ib *inbox, data []byte) {
	select {
	case ib.ch <- data:
	case <-ib.done:
	case <-time.After(d.cfg.ForwardTimeout):
		d.logger.Warnf("forward timeout for %s, kicking", s.Addr)
		d.kick(s, KickTimedOut)
	}
}

func (d *Dispatcher) handleUnconnected(conn *net.UDPConn, data []byte, addr *net.UDPAddr) {
	switch data[0] {
	case idUnconnectedPing, idUnconnectedPingOpenConnections:
		ping, err := DecodeUnconnectedPing(data)
		if err != nil {
			return
		}
		meta := FormatMetadata(d.cfg.Description, d.cfg.ProtocolVersion, d.cfg.GameClientVersion,
			d.registry.Count(), d.registry.MaxCount(), d.guid, localPort(d.conn), localPort(d.conn6))
		pong := &UnconnectedPong{Time: ping.Time, ServerGUID: d.guid, Metadata: meta}
		conn.WriteToUDP(pong.Encode(), addr)

	case idOpenConnectionRequest1:
		req, err := DecodeOpenConnectionRequest1(data)
		if err != nil {
			return
		}
		if req.ProtocolVersion != d.cfg.ProtocolVersion {
			reply := &IncompatibleProtocol{ServerProtocol: d.cfg.ProtocolVersion, ServerGUID: d.guid}
			conn.WriteToUDP(reply.Encode(), addr)
			return
		}
		mtu := d.cfg.DefaultMTU
		if offered := uint16(len(data) + 28); offered <= d.cfg.MaxMTU {
			mtu = offered
		}
		reply := &OpenConnectionReply1{ServerGUID: d.guid, MTU: mtu}
		conn.WriteToUDP(reply.Encode(), addr)

	case idOpenConnectionRequest2:
		req, err := DecodeOpenConnectionRequest2(data)
		if err != nil {
			return
		}
		mtu := req.MTU
		if mtu > d.cfg.MaxMTU {
			mtu = d.cfg.MaxMTU
		}
		s := NewSession(d.cfg, addr, req.ClientGUID, mtu)
		d.registry.InsertHandshaking(s)
		ib := &inbox{ch: make(chan []byte, d.cfg.InboxCapacity), done: make(chan struct{})}
		d.inboxMu.Lock()
		d.inboxes[key(addr)] = ib
		d.inboxMu.Unlock()
		go d.sessionLoop(s, ib)

		reply := &OpenConnectionReply2{ServerGUID: d.guid, ClientAddress: addr, MTU: mtu}
		conn.WriteToUDP(reply.Encode(), addr)
	}
}

// sessionLoop drains one session's inbox, applying the receive path to
// each datagram and handing released application payloads to the
// ApplicationHandler. One goroutine per session owns this session's state
// exclusively, so no cross-session lock contention exists on the hot path.
// It exits as soon as ib.done fires, which kick and the liveness sweep
// close; Registry.KickAll does not close it.
func (d *Dispatcher) sessionLoop(s *Session, ib *inbox) {
	for {
		var data []byte
		select {
		case data = <-ib.ch:
		case <-ib.done:
			return
		}

		result := s.HandleDatagram(data)
		if result.Kick != nil {
			d.kick(s, KickProtocolViolation)
			continue
		}
		for _, batch := range result.Retransmit {
			d.sendRaw(s, batch.Encode())
		}
		if s.State() == StateHandshaking {
			if err := d.registry.Promote(s.Addr); err != nil {
				d.kick(s, KickInactive)
				continue
			}
			d.app.OnConnect(s)
		}
		for _, payload := range result.Application {
			d.app.OnPayload(s, payload)
		}
	}
}

// SendDisconnect emits the one best-effort disconnect frame for a session
// that has already been closed (e.g. by Registry.KickAll on shutdown),
// bypassing the send queue since no further flush will ever run for it.
func (d *Dispatcher) SendDisconnect(s *Session) {
	d.sendRaw(s, DisconnectionFrame(s.NextBatchSequence()))
}

func (d *Dispatcher) sendRaw(s *Session, data []byte) {
	if s.Addr.IP.To4() != nil {
		d.conn.WriteToUDP(data, s.Addr)
		return
	}
	if d.conn6 != nil {
		d.conn6.WriteToUDP(data, s.Addr)
	}
}

func (d *Dispatcher) kick(s *Session, reason KickReason) {
	if !s.Close() {
		return
	}
	if reason == KickProtocolViolation {
		metrics.ProtocolViolationKicks.Inc()
	}
	if reason == KickTimedOut {
		metrics.ForwardTimeoutKicks.Inc()
	}
	d.registry.Remove(s.Addr)
	d.inboxMu.Lock()
	if ib, ok := d.inboxes[key(s.Addr)]; ok {
		close(ib.done)
		delete(d.inboxes, key(s.Addr))
	}
	d.inboxMu.Unlock()
	s.DropFragments()
	d.app.OnDisconnect(s, reason)
}

// ackFlushLoop periodically drains every session's send queues and
// coalesces and sends its pending ACK/NAK records, in both the Handshaking
// and Connected partitions.
func (d *Dispatcher) ackFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.AckFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.flushAll()
		}
	}
}

func (d *Dispatcher) flushAll() {
	for _, s := range d.registry.allSessions() {
		for _, dg := range s.FlushSend() {
			d.sendRaw(s, dg)
			metrics.BatchesSent.Inc()
		}
		ack, nak := s.FlushAckNak()
		if ack != nil {
			d.sendRaw(s, ack)
			metrics.AcksFlushed.Inc()
		}
		if nak != nil {
			d.sendRaw(s, nak)
			metrics.NaksFlushed.Inc()
		}
	}
}

// livenessSweepLoop removes sessions that have gone silent past the
// disconnect timeout.
func (d *Dispatcher) livenessSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.LivenessSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range d.registry.SweepExpired(d.cfg.DisconnectTimeout) {
				if !s.Close() {
					continue
				}
				d.inboxMu.Lock()
				if ib, ok := d.inboxes[key(s.Addr)]; ok {
					close(ib.done)
					delete(d.inboxes, key(s.Addr))
				}
				d.inboxMu.Unlock()
				s.DropFragments()
				d.app.OnDisconnect(s, KickInactive)
			}
		}
	}
}

func localPort(conn *net.UDPConn) int {
	if conn == nil {
		return 0
	}
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return 0
}
