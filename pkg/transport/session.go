package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/silvergate/relaynet/internal/metrics"
)

// SessionState is the connection lifecycle.
type SessionState int32

const (
	StateHandshaking SessionState = iota
	StateConnected
	StateClosing
)

func (s SessionState) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// reliableWindow is the minimum sliding window of reliable indices a
// session must remember for duplicate suppression.
const reliableWindow = 2048

// Session is the per-connection transport state machine. All of its
// mutable state — counters, order channels, fragment collector, send
// queues, pending ACK/NAK, lifecycle — is serialized by mu. The goroutine
// draining the session's inbox takes mu for each datagram it processes,
// and mu also makes it safe for the dispatcher or application
// code to touch the session directly (e.g. a direct Send call from outside
// the inbox loop). RecoveryStore is the one structure designed for true
// concurrent access from multiple producers and is not behind mu.
type Session struct {
	Addr       *net.UDPAddr
	ClientGUID uint64
	MTU        uint16

	cfg Config

	mu                sync.Mutex
	state             SessionState
	nextBatchNumber   uint32
	nextReliableIndex uint32
	nextSequenceIndex uint32
	nextOrderIndex    [OrderChannelCount]uint32
	highestSeenBatch  uint32
	seenBatch         bool
	highestSeenSeq    uint32
	reliableSeen      *slidingSet
	orderChannels     [OrderChannelCount]*OrderChannel
	fragments         *FragmentCollector
	sendQueues        *SendQueues
	pendingAck        map[uint32]struct{}
	pendingNak        map[uint32]struct{}
	lastActivity      time.Time
	compressionEnabled bool

	Recovery *RecoveryStore
}

// NewSession creates a session in the Handshaking state.
func NewSession(cfg Config, addr *net.UDPAddr, clientGUID uint64, mtu uint16) *Session {
	s := &Session{
		Addr:       addr,
		ClientGUID: clientGUID,
		MTU:        mtu,
		cfg:        cfg,
		state:      StateHandshaking,
		reliableSeen: newSlidingSet(reliableWindow),
		fragments:    NewFragmentCollector(cfg.MaxInProgressCompounds, cfg.MaxFragmentBytes),
		sendQueues:   NewSendQueues(),
		pendingAck:   make(map[uint32]struct{}),
		pendingNak:   make(map[uint32]struct{}),
		lastActivity: time.Now(),
		Recovery:     NewRecoveryStore(),
	}
	for i := range s.orderChannels {
		s.orderChannels[i] = NewOrderChannel()
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Promote transitions Handshaking -> Connected. The dispatcher calls it
// (through Registry.Promote) after the session has processed its first
// connected datagram of any kind; the datagram's payload is not inspected.
func (s *Session) Promote() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateHandshaking {
		s.state = StateConnected
	}
}

// Close transitions to Closing. Returns false if it was already closing,
// so the caller emits its one best-effort disconnect frame only once.
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing {
		return false
	}
	s.state = StateClosing
	return true
}

// Touch refreshes last-activity; called at the top of every receive-path
// step, including for duplicate batches.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// Expired reports whether the session has gone longer than timeout without
// activity.
func (s *Session) Expired(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity) > timeout
}

// SetCompressionEnabled records that network settings negotiated
// compression for this connection. Compression itself is an opaque
// transform applied at the batching boundary, out of scope for this
// layer; this flag is carried purely as session state.
func (s *Session) SetCompressionEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compressionEnabled = v
}

func (s *Session) CompressionEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compressionEnabled
}

// IndexAssigner implementation — the batcher is the sole source of these
// monotonic counters. Callers must already hold s.mu.
func (s *Session) NextReliableIndex() uint32 {
	v := s.nextReliableIndex
	s.nextReliableIndex++
	return v
}

func (s *Session) NextSequenceIndex() uint32 {
	v := s.nextSequenceIndex
	s.nextSequenceIndex++
	return v
}

func (s *Session) NextOrderIndex(channel uint8) uint32 {
	if int(channel) >= OrderChannelCount {
		channel = 0
	}
	v := s.nextOrderIndex[channel]
	s.nextOrderIndex[channel]++
	return v
}

// Send enqueues an outbound payload.
func (s *Session) Send(priority Priority, reliability ReliabilityMode, channel uint8, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	budget := s.cfg.SafePayloadBudget(s.MTU, reliability.hasOrderIndex())
	s.sendQueues.Enqueue(priority, reliability, channel, payload, budget)
}

// FlushSend drains every priority queue into as many MTU-bounded batches as
// needed, assigns each a batch sequence number, records a copy in the
// recovery store, and returns their encoded bytes ready for the socket.
func (s *Session) FlushSend() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	budget := int(s.MTU) - int(s.cfg.MTUSafetyMargin)
	var datagrams [][]byte
	for {
		frames := s.sendQueues.Drain(budget, s)
		if frames == nil {
			break
		}
		batch := &FrameBatch{SequenceNumber: s.nextBatchNumber, Frames: frames}
		s.nextBatchNumber++
		s.Recovery.Insert(batch)
		datagrams = append(datagrams, batch.Encode())
	}
	return datagrams
}

// NextBatchSequence reserves a batch sequence number outside the normal
// FlushSend path, for one-off sends like the shutdown disconnect frame.
func (s *Session) NextBatchSequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.nextBatchNumber
	s.nextBatchNumber++
	return v
}

// FlushAckNak coalesces pending ACK/NAK batch numbers into range records
// and returns the encoded datagrams to send, clearing the pending sets.
// Called on the ACK flush tick.
func (s *Session) FlushAckNak() (ack, nak []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pendingAck) > 0 {
		nums := make([]uint32, 0, len(s.pendingAck))
		for n := range s.pendingAck {
			nums = append(nums, n)
		}
		ack = EncodeAck(CoalesceRecords(nums))
		s.pendingAck = make(map[uint32]struct{})
	}
	if len(s.pendingNak) > 0 {
		nums := make([]uint32, 0, len(s.pendingNak))
		for n := range s.pendingNak {
			nums = append(nums, n)
		}
		nak = EncodeNak(CoalesceRecords(nums))
		s.pendingNak = make(map[uint32]struct{})
	}
	return ack, nak
}

// ReceiveResult carries what a processed datagram yielded.
type ReceiveResult struct {
	// Application holds payloads ready for the out-of-scope application
	// layer, in the order they should be delivered.
	Application [][]byte
	// Retransmit holds batches recovered from a NAK, to be re-sent
	// verbatim with their original sequence numbers.
	Retransmit []*FrameBatch
	// Kick is non-nil if this datagram triggered a protocol-violation kick.
	Kick error
}

// HandleDatagram implements the per-datagram receive path: classify the
// datagram as ACK, NAK, or frame batch, update recovery/dedup state, and
// release any application payloads or order channels now able to deliver.
func (s *Session) HandleDatagram(data []byte) ReceiveResult {
	s.Touch()

	if len(data) == 0 {
		return ReceiveResult{}
	}

	if IsAck(data[0]) {
		records, err := DecodeAck(data)
		if err != nil {
			return ReceiveResult{}
		}
		s.Recovery.Confirm(records)
		return ReceiveResult{}
	}
	if IsNak(data[0]) {
		records, err := DecodeNak(data)
		if err != nil {
			return ReceiveResult{}
		}
		recovered := s.Recovery.Recover(records)
		metrics.Retransmits.Add(float64(len(recovered)))
		return ReceiveResult{Retransmit: recovered}
	}
	if !IsFrameBatch(data[0]) {
		return ReceiveResult{}
	}

	batch, err := DecodeFrameBatch(data)
	if err != nil {
		return ReceiveResult{}
	}
	metrics.BatchesReceived.Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seenBatch && batch.SequenceNumber <= s.highestSeenBatch {
		metrics.DuplicateBatches.Inc()
		return ReceiveResult{} // duplicate batch — coalesced into next flush, not re-ACKed now
	}

	if s.seenBatch {
		for gap := s.highestSeenBatch + 1; gap < batch.SequenceNumber; gap++ {
			s.pendingNak[gap] = struct{}{}
		}
	}
	s.highestSeenBatch = batch.SequenceNumber
	s.seenBatch = true
	delete(s.pendingNak, batch.SequenceNumber)
	s.pendingAck[batch.SequenceNumber] = struct{}{}

	var result ReceiveResult
	for _, f := range batch.Frames {
		s.processFrameLocked(f, &result)
	}
	return result
}

func (s *Session) processFrameLocked(f *Frame, result *ReceiveResult) {
	if f.Reliability.isReliable() {
		if !s.reliableSeen.insert(f.ReliableIndex) {
			return // duplicate reliable frame, already delivered
		}
	}
	if f.Reliability.hasSequenceIndex() {
		if f.SequenceIndex < s.highestSeenSeq {
			return
		}
		s.highestSeenSeq = f.SequenceIndex + 1
	}

	if f.Fragment != nil {
		assembled, err := s.fragments.Insert(f.Fragment, f.Payload)
		if err != nil {
			result.Kick = err
			return
		}
		if assembled == nil {
			return // still waiting on more fragments
		}
		metrics.FragmentReassemblies.Inc()
		whole := &Frame{
			Reliability:  f.Reliability,
			OrderChannel: f.OrderChannel,
			OrderIndex:   f.OrderIndex,
			Payload:      assembled,
		}
		s.deliverLocked(whole, result)
		return
	}

	s.deliverLocked(f, result)
}

func (s *Session) deliverLocked(f *Frame, result *ReceiveResult) {
	if f.Reliability.hasOrderIndex() {
		channel := int(f.OrderChannel)
		if channel >= OrderChannelCount {
			channel = 0
		}
		released := s.orderChannels[channel].Insert(f.OrderIndex, f)
		for _, r := range released {
			result.Application = append(result.Application, r.Payload)
		}
		return
	}
	result.Application = append(result.Application, f.Payload)
}

// DropFragments discards in-progress fragment reassembly state. Called
// when the session is destroyed.
func (s *Session) DropFragments() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragments.DropAll()
}

// String implements fmt.Stringer for logging.
func (s *Session) String() string {
	return fmt.Sprintf("session(%s guid=%d state=%s)", s.Addr, s.ClientGUID, s.State())
}

// slidingSet tracks the last `window` distinct values inserted, used for
// reliable-index duplicate suppression within a bounded window rather than
// an ever-growing set.
type slidingSet struct {
	window int
	seen   map[uint32]struct{}
	order  []uint32
}

func newSlidingSet(window int) *slidingSet {
	return &slidingSet{window: window, seen: make(map[uint32]struct{}, window)}
}

// insert reports whether v was newly seen (true) or a duplicate (false).
func (s *slidingSet) insert(v uint32) bool {
	if _, dup := s.seen[v]; dup {
		return false
	}
	s.seen[v] = struct{}{}
	s.order = append(s.order, v)
	if len(s.order) > s.window {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.seen, oldest)
	}
	return true
}
