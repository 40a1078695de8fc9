package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryBackendPutGet(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	data := []byte("chunk payload")
	key := HashBytes(data)
	require.NoError(t, b.Put(ctx, "node-a", key, data))

	got, ok := b.Get(ctx, "node-a", key)
	require.True(t, ok)
	assert.Equal(t, data, got)

	// Other nodes do not see the chunk.
	_, ok = b.Get(ctx, "node-b", key)
	assert.False(t, ok)
}

func TestMemoryBackendFailNode(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	data := []byte("payload")
	key := HashBytes(data)
	require.NoError(t, b.Put(ctx, "node-a", key, data))

	b.FailNode("node-a")
	_, ok := b.Get(ctx, "node-a", key)
	assert.False(t, ok)
	assert.Error(t, b.Put(ctx, "node-a", key, data))

	b.RestoreNode("node-a")
	_, ok = b.Get(ctx, "node-a", key)
	assert.True(t, ok)
}

func TestDiskBackendRoundTrip(t *testing.T) {
	b := NewDiskBackend(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	data := []byte("persisted chunk")
	key := HashBytes(data)
	require.NoError(t, b.Put(ctx, "node-a", key, data))

	got, ok := b.Get(ctx, "node-a", key)
	require.True(t, ok)
	assert.Equal(t, data, got)

	_, ok = b.Get(ctx, "node-a", "missing")
	assert.False(t, ok)
}

func TestDiskBackendIntegrityCheck(t *testing.T) {
	b := NewDiskBackend(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	// Written under a key that does not match the content hash: unreadable.
	require.NoError(t, b.Put(ctx, "node-a", HashBytes([]byte("expected")), []byte("corrupted")))
	_, ok := b.Get(ctx, "node-a", HashBytes([]byte("expected")))
	assert.False(t, ok)
}
