package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTransport is an in-memory Transport that records sent payloads.
type testTransport struct {
	mu        sync.Mutex
	sent      [][]byte
	closed    bool
	failSends bool
}

func (t *testTransport) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failSends || t.closed {
		return errors.New("transport closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	t.sent = append(t.sent, buf)
	return nil
}

func (t *testTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *testTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func (t *testTransport) lastSent() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sent) == 0 {
		return nil
	}
	return t.sent[len(t.sent)-1]
}

func (t *testTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func TestRegister(t *testing.T) {
	t.Run("assigns unique ids and stores identity", func(t *testing.T) {
		r := NewRegistry(RegistryConfig{})

		id1, err := r.Register(&testTransport{}, "alice")
		require.NoError(t, err)
		id2, err := r.Register(&testTransport{}, "")
		require.NoError(t, err)

		assert.NotEmpty(t, id1)
		assert.NotEqual(t, id1, id2)

		conn, ok := r.Lookup(id1)
		require.True(t, ok)
		assert.Equal(t, id1, conn.ID())
		assert.Equal(t, "alice", conn.Identity())

		conn2, ok := r.Lookup(id2)
		require.True(t, ok)
		assert.Equal(t, "", conn2.Identity())

		assert.Equal(t, 2, r.Len())
	})

	t.Run("enforces max connections", func(t *testing.T) {
		r := NewRegistry(RegistryConfig{MaxConnections: 2})

		id1, err := r.Register(&testTransport{}, "")
		require.NoError(t, err)
		_, err = r.Register(&testTransport{}, "")
		require.NoError(t, err)

		_, err = r.Register(&testTransport{}, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrResourceExhausted)

		// Unregistering frees a slot for the next attempt.
		r.Unregister(id1)
		_, err = r.Register(&testTransport{}, "")
		assert.NoError(t, err)
	})
}

func TestUnregister(t *testing.T) {
	t.Run("removes connection and closes transport", func(t *testing.T) {
		r := NewRegistry(RegistryConfig{})
		transport := &testTransport{}

		id, err := r.Register(transport, "")
		require.NoError(t, err)

		r.Unregister(id)

		_, ok := r.Lookup(id)
		assert.False(t, ok)
		assert.True(t, transport.isClosed())
		assert.Equal(t, 0, r.Len())
	})

	t.Run("is idempotent for unknown ids", func(t *testing.T) {
		r := NewRegistry(RegistryConfig{})

		r.Unregister("never-registered")
		assert.Equal(t, 0, r.Len())

		id, err := r.Register(&testTransport{}, "")
		require.NoError(t, err)
		r.Unregister(id)
		r.Unregister(id)
		assert.Equal(t, 0, r.Len())
	})

	t.Run("runs hooks in registration order", func(t *testing.T) {
		r := NewRegistry(RegistryConfig{})

		var calls []string
		r.OnUnregister(func(connID string) { calls = append(calls, "first:"+connID) })
		r.OnUnregister(func(connID string) { calls = append(calls, "second:"+connID) })

		id, err := r.Register(&testTransport{}, "")
		require.NoError(t, err)
		r.Unregister(id)

		require.Len(t, calls, 2)
		assert.Equal(t, "first:"+id, calls[0])
		assert.Equal(t, "second:"+id, calls[1])

		// Hooks must not fire again for the idempotent repeat.
		r.Unregister(id)
		assert.Len(t, calls, 2)
	})
}

func TestSend(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers payload to live connection", func(t *testing.T) {
		r := NewRegistry(RegistryConfig{})
		transport := &testTransport{}

		id, err := r.Register(transport, "")
		require.NoError(t, err)

		err = r.Send(ctx, id, []byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), transport.lastSent())
	})

	t.Run("returns ConnectionGone for unknown connection", func(t *testing.T) {
		r := NewRegistry(RegistryConfig{})

		err := r.Send(ctx, "no-such-connection", []byte("hello"))
		require.Error(t, err)
		assert.True(t, IsConnectionGone(err))
	})

	t.Run("returns ConnectionGone when transport is closed", func(t *testing.T) {
		r := NewRegistry(RegistryConfig{})
		transport := &testTransport{failSends: true}

		id, err := r.Register(transport, "")
		require.NoError(t, err)

		err = r.Send(ctx, id, []byte("hello"))
		require.Error(t, err)
		assert.True(t, IsConnectionGone(err))
	})

	t.Run("returns ConnectionGone after unregister", func(t *testing.T) {
		r := NewRegistry(RegistryConfig{})

		id, err := r.Register(&testTransport{}, "")
		require.NoError(t, err)
		r.Unregister(id)

		err = r.Send(ctx, id, []byte("hello"))
		assert.True(t, IsConnectionGone(err))
	})
}

func TestConnectionIDs(t *testing.T) {
	r := NewRegistry(RegistryConfig{})

	ids := make(map[string]bool)
	for i := 0; i < 10; i++ {
		id, err := r.Register(&testTransport{}, "")
		require.NoError(t, err)
		ids[id] = true
	}

	snapshot := r.ConnectionIDs()
	require.Len(t, snapshot, 10)
	for _, id := range snapshot {
		assert.True(t, ids[id])
	}
}

func TestRegistryConcurrency(t *testing.T) {
	r := NewRegistry(RegistryConfig{ShardCount: 4})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id, err := r.Register(&testTransport{}, fmt.Sprintf("user-%d", n))
			require.NoError(t, err)
			_ = r.Send(ctx, id, []byte("payload"))
			if n%2 == 0 {
				r.Unregister(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, r.Len())
	assert.Len(t, r.ConnectionIDs(), 25)
}
