package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dfs/pkg/types"

	"go.uber.org/zap"
)

// Backend is the injected chunk store. Keys are chunk content hashes,
// scoped by storage node so settlement can observe per-node chunk loss.
type Backend interface {
	Put(ctx context.Context, node types.NodeID, key string, data []byte) error
	Get(ctx context.Context, node types.NodeID, key string) ([]byte, bool)
}

// MemoryBackend is an in-process Backend with per-node fault injection,
// used by tests and the demo CLI.
type MemoryBackend struct {
	mu     sync.RWMutex
	chunks map[types.NodeID]map[string][]byte
	failed map[types.NodeID]bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		chunks: make(map[types.NodeID]map[string][]byte),
		failed: make(map[types.NodeID]bool),
	}
}

func (b *MemoryBackend) Put(ctx context.Context, node types.NodeID, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failed[node] {
		return fmt.Errorf("%w: node %s unreachable", types.ErrNetwork, node)
	}
	if b.chunks[node] == nil {
		b.chunks[node] = make(map[string][]byte)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	b.chunks[node][key] = stored
	return nil
}

func (b *MemoryBackend) Get(ctx context.Context, node types.NodeID, key string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.failed[node] {
		return nil, false
	}
	data, ok := b.chunks[node][key]
	return data, ok
}

// FailNode makes every subsequent Put/Get against node fail, simulating a
// node that dropped its chunks or went offline.
func (b *MemoryBackend) FailNode(node types.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed[node] = true
}

// RestoreNode undoes FailNode.
func (b *MemoryBackend) RestoreNode(node types.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failed, node)
}

// ChunkCount reports how many chunks a node currently holds.
func (b *MemoryBackend) ChunkCount(node types.NodeID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.chunks[node])
}

// DiskBackend persists chunks under dataDir/<node>/chunks/<hash>, one file
// per chunk, and re-verifies content hashes on read.
type DiskBackend struct {
	dataDir string
	logger  *zap.Logger
	mu      sync.Mutex
}

func NewDiskBackend(dataDir string, logger *zap.Logger) *DiskBackend {
	return &DiskBackend{dataDir: dataDir, logger: logger}
}

func (b *DiskBackend) Put(ctx context.Context, node types.NodeID, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	chunksDir := filepath.Join(b.dataDir, string(node), "chunks")
	if err := os.MkdirAll(chunksDir, 0755); err != nil {
		return fmt.Errorf("failed to create chunks directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(chunksDir, key), data, 0644); err != nil {
		return fmt.Errorf("failed to write chunk to disk: %w", err)
	}

	b.logger.Debug("Stored chunk",
		zap.String("node_id", string(node)),
		zap.String("chunk_hash", key),
		zap.Int("size", len(data)))
	return nil
}

func (b *DiskBackend) Get(ctx context.Context, node types.NodeID, key string) ([]byte, bool) {
	data, err := os.ReadFile(filepath.Join(b.dataDir, string(node), "chunks", key))
	if err != nil {
		return nil, false
	}
	if HashBytes(data) != key {
		b.logger.Warn("Chunk failed integrity check",
			zap.String("node_id", string(node)),
			zap.String("chunk_hash", key))
		return nil, false
	}
	return data, true
}
