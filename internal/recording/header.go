// Package recording implements the session recording subsystem: a binary
// file format (header + keyframe index + a stream of concatenated wire
// frames), chunked capture with keyframe-triggered header rewrites,
// roll-over timers, and preview/playback thumbnail emission. The "rotate
// when a size/duration threshold is hit" policy mirrors a log manager's
// file rotation knobs (MaxFileSize/MaxFiles).
package recording

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// KeyframeEntry is one (file-offset, timestamp) pair from which playback
// can resume without replaying the prior file prefix.
type KeyframeEntry struct {
	Offset      int64
	TimestampMS int64
}

const keyframeEntrySize = 16 // 2 x int64

// FileHeader is the fixed-capacity header written at offset 0 of every
// recording file and rewritten in place on every keyframe and on Stop.
type FileHeader struct {
	VMID          uint32
	StartMS       int64
	StopMS        int64
	KeyframeCount int32
	Keyframes     []KeyframeEntry // len == capacity; only [:KeyframeCount] are valid
}

// headerFixedSize is VMID(4) + StartMS(8) + StopMS(8) + KeyframeCount(4).
const headerFixedSize = 24

// Size returns the exact byte length of h's on-disk representation, which
// is fixed once Keyframes' capacity is chosen at Start().
func (h *FileHeader) Size() int {
	return headerFixedSize + len(h.Keyframes)*keyframeEntrySize
}

// MarshalBinary encodes h at its fixed size (padding capacity beyond
// KeyframeCount with zeroed entries) so every rewrite is the same length.
func (h *FileHeader) MarshalBinary() []byte {
	buf := make([]byte, h.Size())
	binary.BigEndian.PutUint32(buf[0:4], h.VMID)
	binary.BigEndian.PutUint64(buf[4:12], uint64(h.StartMS))
	binary.BigEndian.PutUint64(buf[12:20], uint64(h.StopMS))
	binary.BigEndian.PutUint32(buf[20:24], uint32(h.KeyframeCount))
	off := headerFixedSize
	for _, k := range h.Keyframes {
		binary.BigEndian.PutUint64(buf[off:off+8], uint64(k.Offset))
		binary.BigEndian.PutUint64(buf[off+8:off+16], uint64(k.TimestampMS))
		off += keyframeEntrySize
	}
	return buf
}

// UnmarshalHeader decodes a FileHeader from buf, which must be at least
// headerFixedSize bytes; the keyframe capacity is inferred from the
// remaining length.
func UnmarshalHeader(buf []byte) (*FileHeader, error) {
	if len(buf) < headerFixedSize {
		return nil, errors.New("recording: truncated header")
	}
	h := &FileHeader{
		VMID:          binary.BigEndian.Uint32(buf[0:4]),
		StartMS:       int64(binary.BigEndian.Uint64(buf[4:12])),
		StopMS:        int64(binary.BigEndian.Uint64(buf[12:20])),
		KeyframeCount: int32(binary.BigEndian.Uint32(buf[20:24])),
	}
	rest := buf[headerFixedSize:]
	if len(rest)%keyframeEntrySize != 0 {
		return nil, fmt.Errorf("recording: keyframe table not a multiple of %d bytes", keyframeEntrySize)
	}
	capacity := len(rest) / keyframeEntrySize
	h.Keyframes = make([]KeyframeEntry, capacity)
	off := 0
	for i := 0; i < capacity; i++ {
		h.Keyframes[i] = KeyframeEntry{
			Offset:      int64(binary.BigEndian.Uint64(rest[off : off+8])),
			TimestampMS: int64(binary.BigEndian.Uint64(rest[off+8 : off+16])),
		}
		off += keyframeEntrySize
	}
	return h, nil
}

// ReadHeader reads and decodes the header from the start of r. r must
// support seeking back to 0 by the caller if further reads are needed from
// elsewhere in the file.
func ReadHeader(r io.Reader, declaredSize int) (*FileHeader, error) {
	buf := make([]byte, declaredSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return UnmarshalHeader(buf)
}

// ReadHeaderFromFile opens path and decodes its header, given the header's
// on-disk length as previously recorded (FileHeader.Size() at write time).
// Used by index lookups that only persist a file's path and header length,
// not the header bytes themselves.
func ReadHeaderFromFile(path string, declaredSize int) (*FileHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadHeader(f, declaredSize)
}

// ValidKeyframes returns only the populated prefix of h.Keyframes.
func (h *FileHeader) ValidKeyframes() []KeyframeEntry {
	if int(h.KeyframeCount) > len(h.Keyframes) {
		return h.Keyframes
	}
	return h.Keyframes[:h.KeyframeCount]
}
