package transport

import "testing"

func TestRecoveryStoreConfirmDiscards(t *testing.T) {
	store := NewRecoveryStore()
	store.Insert(&FrameBatch{SequenceNumber: 1})
	store.Insert(&FrameBatch{SequenceNumber: 2})
	store.Insert(&FrameBatch{SequenceNumber: 3})

	store.Confirm([]AckRecord{{Start: 1, End: 2}})

	if store.Len() != 1 {
		t.Fatalf("Len() = %d; want 1", store.Len())
	}
}

func TestRecoveryStoreConfirmToleratesUnknown(t *testing.T) {
	store := NewRecoveryStore()
	store.Insert(&FrameBatch{SequenceNumber: 1})

	store.Confirm([]AckRecord{{Start: 99, End: 100}})

	if store.Len() != 1 {
		t.Fatalf("Len() = %d; want 1 (unknown confirm should be a no-op)", store.Len())
	}
}

func TestRecoveryStoreRecoverReturnsAndRemoves(t *testing.T) {
	store := NewRecoveryStore()
	b1 := &FrameBatch{SequenceNumber: 5}
	b2 := &FrameBatch{SequenceNumber: 6}
	store.Insert(b1)
	store.Insert(b2)

	recovered := store.Recover([]AckRecord{{Start: 5, End: 6}})
	if len(recovered) != 2 {
		t.Fatalf("got %d recovered batches; want 2", len(recovered))
	}
	if store.Len() != 0 {
		t.Fatalf("Len() after recover = %d; want 0", store.Len())
	}
}

func TestRecoveryStoreRecoverSkipsMissing(t *testing.T) {
	store := NewRecoveryStore()
	store.Insert(&FrameBatch{SequenceNumber: 1})

	recovered := store.Recover([]AckRecord{{Start: 1, End: 3}})
	if len(recovered) != 1 {
		t.Fatalf("got %d recovered batches; want 1 (missing sequence numbers skipped)", len(recovered))
	}
}
