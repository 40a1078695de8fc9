package storage

import (
	"crypto/rand"
	"fmt"
	"testing"

	"dfs/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitAndReassemble(t *testing.T) {
	codec := NewCodec(1024)

	testSizes := []int{
		1,               // single byte
		100,             // sub-chunk
		1024,            // exactly one chunk
		1025,            // one full chunk plus one byte
		5 * 1024,        // several full chunks
		5*1024 + 100,    // ragged tail
		1024 * 1024,     // many chunks
	}

	for _, size := range testSizes {
		t.Run(fmt.Sprintf("Size_%d", size), func(t *testing.T) {
			original := make([]byte, size)
			_, err := rand.Read(original)
			require.NoError(t, err)

			chunks := codec.Split(original)
			expectedCount := (size + 1023) / 1024
			assert.Len(t, chunks, expectedCount)

			for i, chunk := range chunks {
				assert.Equal(t, i, chunk.Index)
				assert.Len(t, chunk.Hash, 64)
				assert.True(t, VerifyChunk(&chunks[i]))
			}

			reassembled, err := codec.Reassemble(chunks)
			require.NoError(t, err)
			assert.Equal(t, original, reassembled)
		})
	}
}

func TestSplitEmptyInput(t *testing.T) {
	codec := NewCodec(1024)
	assert.Empty(t, codec.Split(nil))
	assert.Empty(t, codec.Split([]byte{}))
}

func TestReassembleOutOfOrder(t *testing.T) {
	codec := NewCodec(16)
	original := []byte("the quick brown fox jumps over the lazy dog")

	chunks := codec.Split(original)
	require.Greater(t, len(chunks), 2)

	// Reverse the chunk order; reassembly must restore it.
	for i, j := 0, len(chunks)-1; i < j; i, j = i+1, j-1 {
		chunks[i], chunks[j] = chunks[j], chunks[i]
	}

	reassembled, err := codec.Reassemble(chunks)
	require.NoError(t, err)
	assert.Equal(t, original, reassembled)
}

func TestReassembleMissingChunk(t *testing.T) {
	codec := NewCodec(8)
	chunks := codec.Split([]byte("0123456789abcdefghijklmnopqrstuv"))
	require.Len(t, chunks, 4)

	// Dropping any single index must fail the reassembly.
	for drop := 0; drop < len(chunks); drop++ {
		t.Run(fmt.Sprintf("Drop_%d", drop), func(t *testing.T) {
			partial := make([]types.Chunk, 0, len(chunks)-1)
			for _, c := range chunks {
				if c.Index != drop {
					partial = append(partial, c)
				}
			}

			_, err := codec.Reassemble(partial)
			assert.ErrorIs(t, err, types.ErrAssembly)
		})
	}
}

func TestReassembleDuplicateChunk(t *testing.T) {
	codec := NewCodec(8)
	chunks := codec.Split([]byte("0123456789abcdef"))
	require.Len(t, chunks, 2)

	dup := []types.Chunk{chunks[0], chunks[0]}
	_, err := codec.Reassemble(dup)
	assert.ErrorIs(t, err, types.ErrAssembly)
}

func TestHashBytesFormat(t *testing.T) {
	hash := HashBytes([]byte("hello"))
	assert.Len(t, hash, 64)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", hash)
}
