// Package assembly reconstructs files from distributed chunk replicas with
// bounded parallelism.
package assembly

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dfs/pkg/metrics"
	"dfs/pkg/storage"
	"dfs/pkg/types"

	"go.uber.org/zap"
)

const DefaultWorkers = 8

// Engine fetches chunks from replica nodes in parallel, capped by a
// counting semaphore, and reorders them deterministically by index.
type Engine struct {
	backend storage.Backend
	codec   *storage.Codec
	workers int
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	stats types.AssemblyStats
}

func NewEngine(backend storage.Backend, codec *storage.Codec, workers int, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Engine{
		backend: backend,
		codec:   codec,
		workers: workers,
		logger:  logger,
		metrics: m,
	}
}

// Assemble fetches every chunk of the file and concatenates them in index
// order. Each chunk task tries the recorded replica nodes in order and
// fails only when none can serve the chunk. Chunk fetches are read-only,
// so a cancelled assembly leaves nothing to roll back.
func (e *Engine) Assemble(ctx context.Context, file *types.FileRecord) ([]byte, error) {
	start := time.Now()

	e.logger.Debug("Assembling file",
		zap.String("file_hash", file.FileHash),
		zap.Int("chunks", len(file.Chunks)),
		zap.Int("workers", e.workers))

	fetched := make([]types.Chunk, len(file.Chunks))
	errCh := make(chan error, len(file.Chunks))
	sem := make(chan struct{}, e.workers)

	var wg sync.WaitGroup
	for i := range file.Chunks {
		desc := file.Chunks[i]

		select {
		case sem <- struct{}{}: // acquire worker slot
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", types.ErrAssembly, ctx.Err())
		}

		wg.Add(1)
		go func(slot int, desc types.ChunkDescriptor) {
			defer wg.Done()
			defer func() { <-sem }() // release worker slot

			data, err := e.fetchChunk(ctx, desc)
			if err != nil {
				errCh <- err
				return
			}
			fetched[slot] = types.Chunk{Index: desc.Index, Hash: desc.Hash, Data: data}
		}(i, desc)
	}

	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		e.logger.Warn("File assembly failed",
			zap.String("file_hash", file.FileHash),
			zap.Error(err))
		return nil, err
	}

	data, err := e.codec.Reassemble(fetched)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	e.recordAssembly(uint64(len(data)), elapsed)

	e.logger.Info("File assembled",
		zap.String("file_hash", file.FileHash),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", elapsed))
	return data, nil
}

// fetchChunk tries each recorded replica in order until one serves the
// chunk.
func (e *Engine) fetchChunk(ctx context.Context, desc types.ChunkDescriptor) ([]byte, error) {
	for _, node := range desc.StorageNodes {
		if data, ok := e.backend.Get(ctx, node, desc.Hash); ok {
			return data, nil
		}
		e.logger.Debug("Replica miss",
			zap.String("chunk_hash", desc.Hash),
			zap.String("node_id", string(node)))
	}
	return nil, fmt.Errorf("%w: chunk %d not available from any storage node", types.ErrAssembly, desc.Index)
}

func (e *Engine) recordAssembly(bytes uint64, elapsed time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.FilesAssembled++
	e.stats.BytesAssembled += bytes
	n := float64(e.stats.FilesAssembled)
	e.stats.AvgAssemblySecs = (e.stats.AvgAssemblySecs*(n-1) + elapsed.Seconds()) / n

	e.metrics.AddBytesAssembled(bytes)
	e.metrics.ObserveAssembly(elapsed.Seconds())
}

// Stats returns a snapshot of aggregate assembly throughput.
func (e *Engine) Stats() types.AssemblyStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
