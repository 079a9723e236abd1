package recording

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHeader_RoundTrip(t *testing.T) {
	t.Run("should decode exactly what was encoded", func(t *testing.T) {
		h := &FileHeader{
			VMID:          3,
			StartMS:       1000,
			StopMS:        61000,
			KeyframeCount: 2,
			Keyframes: []KeyframeEntry{
				{Offset: 40, TimestampMS: 1000},
				{Offset: 200, TimestampMS: 16000},
				{}, {}, // unused capacity
			},
		}

		got, err := UnmarshalHeader(h.MarshalBinary())
		require.NoError(t, err)
		assert.Equal(t, h.VMID, got.VMID)
		assert.Equal(t, h.StartMS, got.StartMS)
		assert.Equal(t, h.StopMS, got.StopMS)
		assert.Equal(t, h.KeyframeCount, got.KeyframeCount)
		assert.Equal(t, h.Keyframes, got.Keyframes)
	})

	t.Run("should keep a fixed size across rewrites regardless of KeyframeCount", func(t *testing.T) {
		h := &FileHeader{Keyframes: make([]KeyframeEntry, 4)}
		size0 := h.Size()
		h.KeyframeCount = 1
		h.Keyframes[0] = KeyframeEntry{Offset: 1, TimestampMS: 1}
		assert.Equal(t, size0, h.Size())
	})

	t.Run("should error on a truncated buffer", func(t *testing.T) {
		_, err := UnmarshalHeader([]byte{1, 2, 3})
		assert.Error(t, err)
	})
}

func TestFileHeader_ValidKeyframes(t *testing.T) {
	t.Run("should return only the populated prefix", func(t *testing.T) {
		h := &FileHeader{KeyframeCount: 1, Keyframes: []KeyframeEntry{{Offset: 1}, {Offset: 2}}}
		assert.Equal(t, []KeyframeEntry{{Offset: 1}}, h.ValidKeyframes())
	})
}
