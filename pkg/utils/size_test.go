package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"1024", 1024},
		{"4MiB", 4 * 1024 * 1024},
		{"1GB", 1000 * 1000 * 1000},
		{"1GiB", 1024 * 1024 * 1024},
		{"512MB", 512 * 1000 * 1000},
		{"1.5KiB", 1536},
		{"100 KB", 100 * 1000},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			size, err := ParseDataSize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, size)
		})
	}
}

func TestParseDataSizeErrors(t *testing.T) {
	for _, input := range []string{"", "abc", "12XB", "-5MB"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseDataSize(input)
			assert.Error(t, err)
		})
	}
}

func TestFormatDataSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatDataSize(512))
	assert.Equal(t, "4 MiB", FormatDataSize(4*1024*1024))
	assert.Equal(t, "1 GiB", FormatDataSize(1024*1024*1024))
	assert.Equal(t, "1.50 KiB", FormatDataSize(1536))
}
