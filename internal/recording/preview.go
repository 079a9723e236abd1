package recording

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sort"

	"collabvm-server/internal/screenshot"
	"collabvm-server/internal/wire"
)

// ErrNoCoveringFile is returned when no recorded file overlaps the
// requested preview range.
var ErrNoCoveringFile = errors.New("recording: no file covers the requested range")

// StoredFile describes one closed recording file as needed for preview
// seeking: its path and the header written at its start.
type StoredFile struct {
	Path   string
	Header *FileHeader
}

// FileIndex locates the recorded files for a VM. Its production
// implementation is backed by internal/accountdb; tests use a slice.
type FileIndex interface {
	// FilesCovering returns every stored file for vmID whose [StartMS,StopMS]
	// interval intersects [startMS, stopMS], ordered by StartMS ascending.
	FilesCovering(vmID uint32, startMS, stopMS int64) ([]StoredFile, error)
}

// SliceFileIndex is a FileIndex backed by an in-memory slice, used by tests
// and by callers that have already loaded a VM's file list.
type SliceFileIndex []StoredFile

func (idx SliceFileIndex) FilesCovering(vmID uint32, startMS, stopMS int64) ([]StoredFile, error) {
	var out []StoredFile
	for _, f := range idx {
		if f.Header.VMID != vmID {
			continue
		}
		if f.Header.StopMS < startMS || f.Header.StartMS > stopMS {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Header.StartMS < out[j].Header.StartMS })
	return out, nil
}

// emit is how Preview delivers each thumbnail and the terminal result; the
// caller supplies a function that writes wire frames to the requesting
// connection so this package stays independent of session/transport types.
type emit func(frame []byte)

// Preview renders a sequence of thumbnails covering [req.StartMS,
// req.StopMS] by, for each covering file: seeking to the last keyframe at or
// before the requested start (no timestamp index kept beyond the sorted
// keyframe table, so the search is a linear scan over ValidKeyframes),
// replaying stored frames forward into a
// fresh PlaybackCompositor, and emitting a thumbnail every TimeIntervalMS
// (or on every keyframe boundary if TimeIntervalMS is 0). It always ends by
// emitting a RecordingPlaybackResult.
func Preview(idx FileIndex, newCompositor func() screenshot.PlaybackCompositor, req wire.RecordingPreviewRequest, out emit) {
	files, err := idx.FilesCovering(req.VMID, req.StartMS, req.StopMS)
	if err != nil || len(files) == 0 {
		out(wire.EncodeMessage(wire.RecordingPlaybackResult{Success: false}))
		return
	}

	nextEmitMS := req.StartMS
	interval := req.TimeIntervalMS

	for _, f := range files {
		if err := replayFile(f, req, newCompositor(), &nextEmitMS, interval, out); err != nil {
			out(wire.EncodeMessage(wire.RecordingPlaybackResult{Success: false}))
			return
		}
	}
	out(wire.EncodeMessage(wire.RecordingPlaybackResult{Success: true}))
}

func replayFile(f StoredFile, req wire.RecordingPreviewRequest, comp screenshot.PlaybackCompositor, nextEmitMS *int64, interval int64, out emit) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	seekTo := seekOffset(f.Header, req.StartMS)
	if _, err := file.Seek(seekTo, io.SeekStart); err != nil {
		return err
	}

	keyframeAt := make(map[int64]bool)
	for _, k := range f.Header.ValidKeyframes() {
		keyframeAt[k.Offset] = true
	}
	pos := seekTo
	for {
		atKeyframe := keyframeAt[pos]
		ts, frame, err := readStoredFrame(file)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		pos += int64(storedFrameHeaderSize + len(frame))
		if ts > req.StopMS {
			return nil
		}
		comp.Feed(frame, ts)

		if ts < req.StartMS {
			continue
		}
		if (interval <= 0 && atKeyframe) || (interval > 0 && ts >= *nextEmitMS) {
			out(wire.EncodeMessage(wire.RecordingPlaybackPreview{VMID: req.VMID, TimestampMS: ts, PNG: comp.PNG()}))
			if interval > 0 {
				*nextEmitMS = ts + interval
			}
		}
	}
}

// seekOffset returns the file offset of the last keyframe at or before
// startMS, or the header size if startMS precedes every keyframe.
func seekOffset(h *FileHeader, startMS int64) int64 {
	valid := h.ValidKeyframes()
	offset := int64(h.Size())
	for _, k := range valid {
		if k.TimestampMS > startMS {
			break
		}
		offset = k.Offset
	}
	return offset
}

func readStoredFrame(r io.Reader) (timestampMS int64, frame []byte, err error) {
	hdr := make([]byte, storedFrameHeaderSize)
	if _, err = io.ReadFull(r, hdr); err != nil {
		return 0, nil, err
	}
	timestampMS = int64(binary.BigEndian.Uint64(hdr))

	frameHdr := make([]byte, 6)
	if _, err = io.ReadFull(r, frameHdr); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(frameHdr[2:6])
	payload := make([]byte, length)
	if length > 0 {
		if _, err = io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}
	full := make([]byte, 0, len(frameHdr)+len(payload))
	full = append(full, frameHdr...)
	full = append(full, payload...)
	return timestampMS, full, nil
}
