package transport

// Priority is one of the three outbound queue classes. Queues are drained
// strictly in priority order; starvation of PriorityLow under sustained
// high-priority load is acceptable.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
	priorityCount
)

// IndexAssigner hands out the monotonic counters a batch needs at dequeue
// time. The batcher is the single source of these indices, not Enqueue
// — implemented by Session.
type IndexAssigner interface {
	NextReliableIndex() uint32
	NextSequenceIndex() uint32
	NextOrderIndex(channel uint8) uint32
}

// SendQueues holds the three per-connection, per-priority outbound frame
// queues that feed Drain. Frames sit here exactly as enqueued, with no
// reliable/sequence/order index assigned yet.
type SendQueues struct {
	queues         [priorityCount][]*Frame
	nextCompoundID uint16
	compoundStamps map[uint16]*compoundStamp
}

// compoundStamp caches the order/sequence index assigned to the first
// fragment of a compound dequeued, so every later fragment of the same
// logical message shares it. Reliable index is not cached here — each
// fragment keeps its own, since each is independently retransmittable.
type compoundStamp struct {
	orderIndex    uint32
	hasOrder      bool
	sequenceIndex uint32
	hasSequence   bool
}

// NewSendQueues creates empty queues.
func NewSendQueues() *SendQueues {
	return &SendQueues{compoundStamps: make(map[uint16]*compoundStamp)}
}

// Enqueue queues payload for sending with the given reliability and order
// channel. Payloads larger than mtuPayloadBudget are split into fragments
// sharing a freshly allocated compound-id, each queued individually.
// Reliable/order indices are NOT assigned here — that happens in Drain, at
// dequeue time.
func (q *SendQueues) Enqueue(priority Priority, reliability ReliabilityMode, channel uint8, payload []byte, mtuPayloadBudget int) {
	if mtuPayloadBudget <= 0 || len(payload) <= mtuPayloadBudget {
		q.queues[priority] = append(q.queues[priority], &Frame{
			Reliability:  reliability,
			OrderChannel: channel,
			Payload:      payload,
		})
		return
	}

	fragmentCount := (len(payload) + mtuPayloadBudget - 1) / mtuPayloadBudget
	compoundID := q.nextCompoundID
	q.nextCompoundID++

	for i := 0; i < fragmentCount; i++ {
		start := i * mtuPayloadBudget
		end := start + mtuPayloadBudget
		if end > len(payload) {
			end = len(payload)
		}
		q.queues[priority] = append(q.queues[priority], &Frame{
			Reliability:  reliability,
			OrderChannel: channel,
			Payload:      payload[start:end],
			Fragment: &FragmentDescriptor{
				CompoundID:    compoundID,
				FragmentCount: uint32(fragmentCount),
				FragmentIndex: uint32(i),
			},
		})
	}
}

// Drain repeatedly dequeues frames in priority order, packing them into a
// batch until the next frame would exceed the MTU budget, stamping
// reliable/sequence/order indices as each frame leaves the queue. Returns
// nil if nothing is queued. The caller (Session) is responsible for
// assigning the batch sequence number, inserting a copy into the recovery
// store, and handing the encoded bytes to the socket.
func (q *SendQueues) Drain(mtuBudget int, assign IndexAssigner) []*Frame {
	var packed []*Frame
	used := 4 // datagram header + 24-bit batch sequence number

	for p := 0; p < int(priorityCount); p++ {
		for len(q.queues[p]) > 0 {
			next := q.queues[p][0]
			size := next.wireSize()
			if used+size > mtuBudget && len(packed) > 0 {
				return q.stampIndices(packed, assign)
			}
			q.queues[p] = q.queues[p][1:]
			packed = append(packed, next)
			used += size
		}
	}
	if len(packed) == 0 {
		return nil
	}
	return q.stampIndices(packed, assign)
}

// stampIndices assigns reliable/sequence/order indices as frames leave the
// queue. Reliable index is always per-frame. Sequence/order index are
// per-logical-message: for an unfragmented frame that's simply per-frame;
// for a fragmented one, every fragment of the same compound-id shares the
// index assigned to the first fragment dequeued, so the fragment
// collector's eventual reassembly reports one consistent order position.
func (q *SendQueues) stampIndices(frames []*Frame, assign IndexAssigner) []*Frame {
	for _, f := range frames {
		if f.Reliability.hasReliableIndex() {
			f.ReliableIndex = assign.NextReliableIndex()
		}

		if f.Fragment == nil {
			if f.Reliability.hasSequenceIndex() {
				f.SequenceIndex = assign.NextSequenceIndex()
			}
			if f.Reliability.hasOrderIndex() {
				f.OrderIndex = assign.NextOrderIndex(f.OrderChannel)
			}
			continue
		}

		stamp := q.compoundStamps[f.Fragment.CompoundID]
		if stamp == nil {
			stamp = &compoundStamp{}
			q.compoundStamps[f.Fragment.CompoundID] = stamp
		}
		if f.Reliability.hasSequenceIndex() {
			if !stamp.hasSequence {
				stamp.sequenceIndex = assign.NextSequenceIndex()
				stamp.hasSequence = true
			}
			f.SequenceIndex = stamp.sequenceIndex
		}
		if f.Reliability.hasOrderIndex() {
			if !stamp.hasOrder {
				stamp.orderIndex = assign.NextOrderIndex(f.OrderChannel)
				stamp.hasOrder = true
			}
			f.OrderIndex = stamp.orderIndex
		}
		if f.Fragment.FragmentIndex == f.Fragment.FragmentCount-1 {
			delete(q.compoundStamps, f.Fragment.CompoundID)
		}
	}
	return frames
}

// Empty reports whether every priority queue is drained.
func (q *SendQueues) Empty() bool {
	for p := 0; p < int(priorityCount); p++ {
		if len(q.queues[p]) > 0 {
			return false
		}
	}
	return true
}
