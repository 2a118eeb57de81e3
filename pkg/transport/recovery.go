package transport

import "sync"

// RecoveryStore indexes previously sent frame batches by batch sequence
// number so a NAK can trigger retransmission and an ACK can discard them.
// Safe for concurrent insert from multiple send paths and concurrent
// confirm/recover from the session's own receive path.
type RecoveryStore struct {
	mu      sync.Mutex
	batches map[uint32]*FrameBatch
}

// NewRecoveryStore creates an empty store.
func NewRecoveryStore() *RecoveryStore {
	return &RecoveryStore{batches: make(map[uint32]*FrameBatch)}
}

// Insert records a batch immediately after it has been sent.
func (s *RecoveryStore) Insert(batch *FrameBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.SequenceNumber] = batch
}

// Confirm discards the entries named by records. Idempotent and tolerant
// of unknown batch numbers.
func (s *RecoveryStore) Confirm(records []AckRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		for n := r.Start; n <= r.End; n++ {
			delete(s.batches, n)
		}
	}
}

// Recover removes and returns the entries named by records, in record
// order, for retransmission. Missing entries — already confirmed or
// already recovered, or never sent — are silently skipped.
func (s *RecoveryStore) Recover(records []AckRecord) []*FrameBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recovered []*FrameBatch
	for _, r := range records {
		for n := r.Start; n <= r.End; n++ {
			if batch, ok := s.batches[n]; ok {
				recovered = append(recovered, batch)
				delete(s.batches, n)
			}
		}
	}
	return recovered
}

// Len reports how many batches are currently held, for tests and metrics.
func (s *RecoveryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}
