package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"dfs/pkg/types"
)

const DefaultChunkSize = 4 * 1024 * 1024 // 4MiB

// Codec splits byte buffers into fixed-size content-addressed chunks and
// reassembles ordered chunks back into the original buffer. The chunk size
// is applied uniformly per file.
type Codec struct {
	chunkSize int
}

func NewCodec(chunkSize int64) *Codec {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Codec{chunkSize: int(chunkSize)}
}

func (c *Codec) ChunkSize() int {
	return c.chunkSize
}

// Split partitions data into ceil(len/chunkSize) chunks in original order.
// Each chunk carries its index and the hex SHA-256 of its own bytes.
func (c *Codec) Split(data []byte) []types.Chunk {
	if len(data) == 0 {
		return nil
	}

	chunks := make([]types.Chunk, 0, (len(data)+c.chunkSize-1)/c.chunkSize)
	for index, offset := 0, 0; offset < len(data); index, offset = index+1, offset+c.chunkSize {
		end := offset + c.chunkSize
		if end > len(data) {
			end = len(data)
		}

		chunkData := make([]byte, end-offset)
		copy(chunkData, data[offset:end])

		chunks = append(chunks, types.Chunk{
			Index: index,
			Hash:  HashBytes(chunkData),
			Data:  chunkData,
		})
	}
	return chunks
}

// Reassemble concatenates chunks in index order. It requires exactly one
// chunk per index in 0..n; a missing or duplicated index fails the whole
// reassembly.
func (c *Codec) Reassemble(chunks []types.Chunk) ([]byte, error) {
	ordered := make([]*types.Chunk, len(chunks))
	for i := range chunks {
		chunk := &chunks[i]
		if chunk.Index < 0 || chunk.Index >= len(chunks) {
			return nil, fmt.Errorf("%w: chunk index %d out of range 0..%d",
				types.ErrAssembly, chunk.Index, len(chunks)-1)
		}
		if ordered[chunk.Index] != nil {
			return nil, fmt.Errorf("%w: duplicate chunk index %d", types.ErrAssembly, chunk.Index)
		}
		ordered[chunk.Index] = chunk
	}

	var result bytes.Buffer
	for i, chunk := range ordered {
		if chunk == nil {
			return nil, fmt.Errorf("%w: missing chunk at index %d", types.ErrAssembly, i)
		}
		result.Write(chunk.Data)
	}
	return result.Bytes(), nil
}

// VerifyChunk reports whether a chunk's data still matches its hash.
func VerifyChunk(chunk *types.Chunk) bool {
	return HashBytes(chunk.Data) == chunk.Hash
}

// HashBytes returns the lowercase hex SHA-256 digest of data. File and
// chunk content addresses both use this format.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
