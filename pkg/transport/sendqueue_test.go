package transport

import "testing"

// fakeAssigner is a minimal IndexAssigner for testing the batcher in
// isolation, without needing a whole Session.
type fakeAssigner struct {
	reliable, sequence uint32
	order              [OrderChannelCount]uint32
}

func (a *fakeAssigner) NextReliableIndex() uint32 {
	v := a.reliable
	a.reliable++
	return v
}

func (a *fakeAssigner) NextSequenceIndex() uint32 {
	v := a.sequence
	a.sequence++
	return v
}

func (a *fakeAssigner) NextOrderIndex(channel uint8) uint32 {
	v := a.order[channel]
	a.order[channel]++
	return v
}

func TestSendQueuesDrainRespectsPriority(t *testing.T) {
	q := NewSendQueues()
	q.Enqueue(PriorityLow, Unreliable, 0, []byte("low"), 0)
	q.Enqueue(PriorityHigh, Unreliable, 0, []byte("high"), 0)

	frames := q.Drain(4096, &fakeAssigner{})
	if len(frames) != 2 {
		t.Fatalf("got %d frames; want 2", len(frames))
	}
	if string(frames[0].Payload) != "high" {
		t.Fatalf("first drained frame = %q; want high-priority frame first", frames[0].Payload)
	}
}

func TestSendQueuesStampsReliableIndexPerFrame(t *testing.T) {
	q := NewSendQueues()
	q.Enqueue(PriorityHigh, Reliable, 0, []byte("a"), 0)
	q.Enqueue(PriorityHigh, Reliable, 0, []byte("b"), 0)

	frames := q.Drain(4096, &fakeAssigner{})
	if frames[0].ReliableIndex != 0 || frames[1].ReliableIndex != 1 {
		t.Fatalf("reliable indices = %d, %d; want 0, 1", frames[0].ReliableIndex, frames[1].ReliableIndex)
	}
}

func TestSendQueuesFragmentsShareOneOrderIndex(t *testing.T) {
	q := NewSendQueues()
	payload := make([]byte, 30)
	for i := range payload {
		payload[i] = byte(i)
	}
	q.Enqueue(PriorityHigh, ReliableOrdered, 3, payload, 10)

	assigner := &fakeAssigner{}
	frames := q.Drain(4096, assigner)
	if len(frames) != 3 {
		t.Fatalf("got %d frames; want 3 fragments", len(frames))
	}

	orderIndex := frames[0].OrderIndex
	for i, f := range frames {
		if f.Fragment == nil {
			t.Fatalf("frame %d missing fragment descriptor", i)
		}
		if f.OrderIndex != orderIndex {
			t.Fatalf("frame %d order index = %d; want all fragments to share %d", i, f.OrderIndex, orderIndex)
		}
		if f.ReliableIndex != uint32(i) {
			t.Fatalf("frame %d reliable index = %d; want %d (independent per fragment)", i, f.ReliableIndex, i)
		}
	}

	// A second message on the same channel must get the next order index,
	// proving the compound stamp cache was released after the last fragment.
	q.Enqueue(PriorityHigh, ReliableOrdered, 3, []byte("short"), 10)
	next := q.Drain(4096, assigner)
	if len(next) != 1 {
		t.Fatalf("got %d frames; want 1", len(next))
	}
	if next[0].OrderIndex != orderIndex+1 {
		t.Fatalf("next message order index = %d; want %d", next[0].OrderIndex, orderIndex+1)
	}
}

func TestSendQueuesEmpty(t *testing.T) {
	q := NewSendQueues()
	if !q.Empty() {
		t.Fatal("new SendQueues should be Empty()")
	}
	q.Enqueue(PriorityHigh, Unreliable, 0, []byte("x"), 0)
	if q.Empty() {
		t.Fatal("SendQueues with a queued frame should not be Empty()")
	}
}
