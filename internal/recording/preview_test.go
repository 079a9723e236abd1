package recording

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabvm-server/internal/screenshot"
	"collabvm-server/internal/wire"
)

// writeFixtureFile builds a recording file on disk with one keyframe and a
// handful of stored frames, returning its StoredFile descriptor.
func writeFixtureFile(t *testing.T, vmID uint32) StoredFile {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/vm.bin"

	header := &FileHeader{VMID: vmID, StartMS: 0, StopMS: 5000, Keyframes: make([]KeyframeEntry, 2)}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write(header.MarshalBinary())
	require.NoError(t, err)
	offset := int64(header.Size())

	write := func(ts int64, data []byte) int64 {
		frame := wire.EncodeMessage(wire.GuacInstr{Data: data})
		rec := make([]byte, storedFrameHeaderSize+len(frame))
		putBE64(rec, uint64(ts))
		copy(rec[storedFrameHeaderSize:], frame)
		n, werr := f.Write(rec)
		require.NoError(t, werr)
		start := offset
		offset += int64(n)
		return start
	}

	kf0 := write(0, []byte("a"))
	write(1000, []byte("b"))
	kf1 := write(2000, []byte("c"))
	write(3000, []byte("d"))
	write(4000, []byte("e"))

	header.Keyframes[0] = KeyframeEntry{Offset: kf0, TimestampMS: 0}
	header.Keyframes[1] = KeyframeEntry{Offset: kf1, TimestampMS: 2000}
	header.KeyframeCount = 2

	_, err = f.WriteAt(header.MarshalBinary(), 0)
	require.NoError(t, err)

	return StoredFile{Path: path, Header: header}
}

func putBE64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func TestSliceFileIndex_FiltersByVMAndOverlap(t *testing.T) {
	t.Run("should return only files for the requested VM that overlap the range", func(t *testing.T) {
		a := StoredFile{Header: &FileHeader{VMID: 1, StartMS: 0, StopMS: 1000}}
		b := StoredFile{Header: &FileHeader{VMID: 1, StartMS: 5000, StopMS: 6000}}
		c := StoredFile{Header: &FileHeader{VMID: 2, StartMS: 0, StopMS: 1000}}
		idx := SliceFileIndex{a, b, c}

		got, err := idx.FilesCovering(1, 500, 1500)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, a, got[0])
	})
}

func TestSeekOffset(t *testing.T) {
	t.Run("should return the header size when the range precedes every keyframe", func(t *testing.T) {
		h := &FileHeader{Keyframes: []KeyframeEntry{{Offset: 500, TimestampMS: 1000}}, KeyframeCount: 1}
		assert.EqualValues(t, h.Size(), seekOffset(h, 0))
	})

	t.Run("should return the last keyframe at or before startMS", func(t *testing.T) {
		h := &FileHeader{
			Keyframes: []KeyframeEntry{
				{Offset: 100, TimestampMS: 0},
				{Offset: 400, TimestampMS: 2000},
			},
			KeyframeCount: 2,
		}
		assert.EqualValues(t, 400, seekOffset(h, 2500))
		assert.EqualValues(t, 100, seekOffset(h, 1500))
	})
}

func TestPreview_EmitsThumbnailsAndTerminates(t *testing.T) {
	t.Run("should emit at least one preview frame followed by a success result", func(t *testing.T) {
		file := writeFixtureFile(t, 9)
		idx := SliceFileIndex{file}

		var frames []wire.Frame
		emitted := 0
		lastSuccess := false
		out := func(raw []byte) {
			emitted++
			frm, _, err := wire.Decode(raw, 0)
			require.NoError(t, err)
			switch frm.Tag {
			case wire.TagRecordingPlaybackResult:
				lastSuccess = frm.Payload[0] != 0
			case wire.TagRecordingPlaybackPreview:
				frames = append(frames, frm)
			}
		}

		req := wire.RecordingPreviewRequest{VMID: 9, StartMS: 0, StopMS: 5000, TimeIntervalMS: 1000}
		Preview(idx, func() screenshot.PlaybackCompositor { return screenshot.NewFakePlaybackCompositor(0, 0) }, req, out)

		assert.Greater(t, emitted, 1)
		assert.True(t, lastSuccess)
		assert.NotEmpty(t, frames)
	})

	t.Run("should seek to the covering keyframe instead of replaying from the start", func(t *testing.T) {
		file := writeFixtureFile(t, 9)
		idx := SliceFileIndex{file}

		var seen []int64
		out := func(raw []byte) {
			frm, _, err := wire.Decode(raw, 0)
			require.NoError(t, err)
			if frm.Tag != wire.TagRecordingPlaybackPreview {
				return
			}
			p, err := decodePreviewTimestamp(frm.Payload)
			require.NoError(t, err)
			seen = append(seen, p)
		}

		req := wire.RecordingPreviewRequest{VMID: 9, StartMS: 2000, StopMS: 4000, TimeIntervalMS: 1000}
		Preview(idx, func() screenshot.PlaybackCompositor { return screenshot.NewFakePlaybackCompositor(0, 0) }, req, out)

		require.NotEmpty(t, seen)
		assert.GreaterOrEqual(t, seen[0], int64(2000))
	})

	t.Run("should fail cleanly when no file covers the range", func(t *testing.T) {
		idx := SliceFileIndex{}
		var success *bool
		out := func(raw []byte) {
			frm, _, err := wire.Decode(raw, 0)
			require.NoError(t, err)
			if frm.Tag == wire.TagRecordingPlaybackResult {
				ok := frm.Payload[0] != 0
				success = &ok
			}
		}
		Preview(idx, func() screenshot.PlaybackCompositor { return screenshot.NewFakePlaybackCompositor(0, 0) },
			wire.RecordingPreviewRequest{VMID: 1, StartMS: 0, StopMS: 1000}, out)
		require.NotNil(t, success)
		assert.False(t, *success)
	})
}

func decodePreviewTimestamp(payload []byte) (int64, error) {
	if len(payload) < 12 {
		return 0, assert.AnError
	}
	var v uint64
	for _, b := range payload[4:12] {
		v = v<<8 | uint64(b)
	}
	return int64(v), nil
}
