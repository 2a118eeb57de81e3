package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPromoteMovesPartition(t *testing.T) {
	r := NewRegistry(1, 4)
	s := testSession(t)
	r.InsertHandshaking(s)

	_, ok := r.Lookup(s.Addr)
	require.True(t, ok)
	assert.Equal(t, 0, r.Count(), "handshaking sessions don't count toward Connected")

	require.NoError(t, r.Promote(s.Addr))
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, StateConnected, s.State())
}

func TestRegistryPromoteRejectsWhenFull(t *testing.T) {
	r := NewRegistry(1, 4)
	s1 := testSession(t)
	s1.Addr = mustAddr(t, "127.0.0.1:7001")
	s2 := testSession(t)
	s2.Addr = mustAddr(t, "127.0.0.1:7002")

	r.InsertHandshaking(s1)
	r.InsertHandshaking(s2)
	require.NoError(t, r.Promote(s1.Addr))

	err := r.Promote(s2.Addr)
	assert.ErrorIs(t, err, ErrRegistryFull)
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(10, 4)
	s := testSession(t)
	r.InsertHandshaking(s)
	r.Remove(s.Addr)

	_, ok := r.Lookup(s.Addr)
	assert.False(t, ok)
}

func TestRegistryBroadcastDropsOldestWhenLagging(t *testing.T) {
	r := NewRegistry(10, 1)
	r.Broadcast([]byte("first"))
	r.Broadcast([]byte("second"))

	select {
	case got := <-r.Subscribe():
		assert.Equal(t, []byte("second"), got, "a lagging subscriber should only see the newest broadcast")
	default:
		t.Fatal("expected a broadcast message to be queued")
	}
}

func TestRegistrySweepExpiredRemovesStaleSessions(t *testing.T) {
	r := NewRegistry(10, 4)
	s := testSession(t)
	r.InsertHandshaking(s)

	s.mu.Lock()
	s.lastActivity = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	expired := r.SweepExpired(time.Minute)
	require.Len(t, expired, 1)

	_, ok := r.Lookup(s.Addr)
	assert.False(t, ok)
}
