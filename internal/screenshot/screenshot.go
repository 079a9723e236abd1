// Package screenshot defines the interfaces onto the remote-desktop
// protocol client that decodes display instructions and renders
// screenshots — out of scope for this module. Everything in the rest of
// the tree talks to a VM's screen only through these interfaces; only the
// fake implementations here (used by tests and as a placeholder wiring
// target) know anything about pixels.
package screenshot

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

// LiveCompositor is consulted by internal/vmregistry to attach a thumbnail
// to a running VM's periodic info refresh.
type LiveCompositor interface {
	// Snapshot returns the current PNG-encoded frame, or nil if no frame
	// has been rendered yet.
	Snapshot() []byte
}

// PlaybackCompositor replays a stream of framed display/input instructions
// (as stored in a recording file) and reports its own virtual clock, so
// internal/recording's preview logic can advance until the clock reaches a
// target timestamp and then emit a thumbnail.
type PlaybackCompositor interface {
	// Feed advances the compositor's state by one recorded instruction
	// frame.
	Feed(frame []byte, timestampMS int64)
	// ClockMS reports the compositor's current virtual clock.
	ClockMS() int64
	// PNG renders the compositor's current state as a PNG-encoded image.
	PNG() []byte
}

// FakeLiveCompositor is a deterministic LiveCompositor test double: it
// renders a solid-color square whose color is derived from the number of
// frames it has been told about, so successive snapshots are distinguishable
// without decoding any real remote-desktop protocol.
type FakeLiveCompositor struct {
	mu     sync.Mutex
	frames int
	width  int
	height int
}

// NewFakeLiveCompositor creates a FakeLiveCompositor rendering at the given
// dimensions (defaults to 64x64 if non-positive).
func NewFakeLiveCompositor(width, height int) *FakeLiveCompositor {
	if width <= 0 || height <= 0 {
		width, height = 64, 64
	}
	return &FakeLiveCompositor{width: width, height: height}
}

// Advance records that another display frame arrived.
func (f *FakeLiveCompositor) Advance() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames++
}

// Snapshot renders the current placeholder frame.
func (f *FakeLiveCompositor) Snapshot() []byte {
	f.mu.Lock()
	n := f.frames
	w, h := f.width, f.height
	f.mu.Unlock()
	return renderSolid(w, h, uint8(n%256))
}

// FakePlaybackCompositor is a deterministic PlaybackCompositor test double
// used by internal/recording's preview logic and by tests: its virtual
// clock is simply the timestamp of the last instruction fed to it.
type FakePlaybackCompositor struct {
	width, height int
	clockMS       int64
	frames        int
}

// NewFakePlaybackCompositor creates a FakePlaybackCompositor.
func NewFakePlaybackCompositor(width, height int) *FakePlaybackCompositor {
	if width <= 0 || height <= 0 {
		width, height = 64, 64
	}
	return &FakePlaybackCompositor{width: width, height: height}
}

func (f *FakePlaybackCompositor) Feed(frame []byte, timestampMS int64) {
	f.frames++
	f.clockMS = timestampMS
}

func (f *FakePlaybackCompositor) ClockMS() int64 { return f.clockMS }

func (f *FakePlaybackCompositor) PNG() []byte {
	return renderSolid(f.width, f.height, uint8(f.frames%256))
}

func renderSolid(w, h int, shade uint8) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: shade, G: shade, B: shade, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
