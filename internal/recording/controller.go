package recording

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"collabvm-server/internal/logging"
	"collabvm-server/internal/metrics"
)

// storedFrameHeaderSize is the 8-byte timestamp prefix written before every
// captured wire frame.
const storedFrameHeaderSize = 8

// InstrKind classifies a captured wire frame for the per-instruction
// capture filters.
type InstrKind int

const (
	KindOther InstrKind = iota
	KindDisplay
	KindInput
	KindAudio
)

// Settings mirrors internal/settings.RecordingSettings without recording
// depending on the settings package (avoids a cyclic import — settings
// consults recording's semantics only through this narrow struct, wired at
// the call site in internal/facade).
type Settings struct {
	FileDuration     time.Duration
	KeyframeInterval time.Duration
	CaptureDisplay   bool
	CaptureInput     bool
	CaptureAudio     bool
}

// Clock abstracts time.Now/time.AfterFunc for deterministic tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the subset of *time.Timer the controller needs.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is the production Clock implementation.
var RealClock Clock = realClock{}

// Controller manages the single currently-open recording file for one VM.
// It is designed to run inside the owning VM's guard, so it holds no
// internal locks.
type Controller struct {
	vmID uint32
	dir  string
	clock Clock
	log  *logging.Logger

	settings Settings

	file       *os.File
	path       string
	header     *FileHeader
	offset     int64
	nextKeyIdx int

	stopTimer *time.Timer
	keyTimer  *time.Timer

	// OnKeyframe is invoked when a keyframe boundary is recorded so the
	// owner can inject a fresh decoder-state snapshot into the next
	// segment. Modeled as an observer rather than CRTP.
	OnKeyframe func()

	// OnFileClosed is invoked with the just-closed file's path and final
	// header whenever a file rolls over or Stop is called, so the owner can
	// persist a RecordingFile row (internal/accountdb) for later preview
	// lookups.
	OnFileClosed func(path string, header FileHeader)
}

// New creates a Controller writing files under dir for the given VM id.
func New(vmID uint32, dir string, log *logging.Logger) *Controller {
	return &Controller{vmID: vmID, dir: dir, clock: RealClock, log: log}
}

// SetClock overrides the controller's time source; used by tests.
func (c *Controller) SetClock(clk Clock) { c.clock = clk }

// IsRecording reports whether a file is currently open.
func (c *Controller) IsRecording() bool { return c.file != nil }

// SetRecordingSettings updates capture configuration. If currently
// recording, the new file_duration is shorter than the old one, and the
// current file is already at least that old, this triggers an immediate
// roll-over. Otherwise the already-armed stop timer keeps the interval it
// was armed with.
func (c *Controller) SetRecordingSettings(s Settings) error {
	old := c.settings
	c.settings = s
	if c.file == nil {
		return nil
	}
	elapsed := c.clock.Now().Sub(time.UnixMilli(c.header.StartMS))
	if s.FileDuration < old.FileDuration && elapsed >= s.FileDuration {
		return c.rollOver()
	}
	return nil
}

// Start closes any open file, then creates a new one named
// vm<id>_<YYYY-MM-DD_HH-MM-SS_AM|PM>.bin under dir (adding a _<n> suffix
// before .bin if that name already exists), writes the header sized
// for file_duration/keyframe_interval keyframes, and arms the stop and
// keyframe timers.
func (c *Controller) Start() error {
	if c.file != nil {
		if err := c.Stop(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	now := c.clock.Now()
	capacity := 0
	if c.settings.KeyframeInterval > 0 && c.settings.FileDuration > 0 {
		capacity = int(c.settings.FileDuration / c.settings.KeyframeInterval)
	}
	header := &FileHeader{
		VMID:      c.vmID,
		StartMS:   now.UnixMilli(),
		Keyframes: make([]KeyframeEntry, capacity),
	}

	name := fmt.Sprintf("vm%d_%s", c.vmID, now.Format("2006-01-02_03-04-05_PM"))
	path := c.dir + "/" + name + ".bin"
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	for n := 1; errors.Is(err, os.ErrExist); n++ {
		path = fmt.Sprintf("%s/%s_%d.bin", c.dir, name, n)
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return err
	}

	headerBytes := header.MarshalBinary()
	if _, err := f.Write(headerBytes); err != nil {
		f.Close()
		return err
	}

	c.file = f
	c.path = path
	c.header = header
	c.offset = int64(len(headerBytes))
	c.nextKeyIdx = 0

	c.armTimers()
	return nil
}

func (c *Controller) armTimers() {
	c.cancelTimers()
	if c.settings.FileDuration > 0 {
		c.stopTimer = time.AfterFunc(c.settings.FileDuration, func() { _ = c.rollOver() })
	}
	if c.settings.KeyframeInterval > 0 {
		c.keyTimer = time.AfterFunc(c.settings.KeyframeInterval, c.onKeyframeTimer)
	}
}

func (c *Controller) cancelTimers() {
	if c.stopTimer != nil {
		c.stopTimer.Stop()
		c.stopTimer = nil
	}
	if c.keyTimer != nil {
		c.keyTimer.Stop()
		c.keyTimer = nil
	}
}

func (c *Controller) onKeyframeTimer() {
	if c.file == nil {
		return
	}
	c.recordKeyframe()
	if c.settings.KeyframeInterval > 0 {
		c.keyTimer = time.AfterFunc(c.settings.KeyframeInterval, c.onKeyframeTimer)
	}
}

func (c *Controller) recordKeyframe() {
	if c.nextKeyIdx >= len(c.header.Keyframes) {
		return
	}
	c.header.Keyframes[c.nextKeyIdx] = KeyframeEntry{
		Offset:      c.offset,
		TimestampMS: c.clock.Now().UnixMilli(),
	}
	c.nextKeyIdx++
	c.header.KeyframeCount = int32(c.nextKeyIdx)
	c.rewriteHeader()
	if c.OnKeyframe != nil {
		c.OnKeyframe()
	}
}

func (c *Controller) rewriteHeader() {
	if _, err := c.file.WriteAt(c.header.MarshalBinary(), 0); err != nil && c.log != nil {
		c.log.Errorf("vm %d: failed to rewrite recording header: %v", c.vmID, err)
	}
}

// shouldCapture applies the per-instruction filters from settings.
func (c *Controller) shouldCapture(kind InstrKind) bool {
	switch kind {
	case KindDisplay:
		return c.settings.CaptureDisplay
	case KindInput:
		return c.settings.CaptureInput
	case KindAudio:
		return c.settings.CaptureAudio
	default:
		return true
	}
}

// WriteMessage appends frame (an already wire-encoded message) to the open
// file, prefixed with an 8-byte big-endian timestamp so playback can locate
// individual frames without decoding every message ahead of it. A no-op if
// not currently recording or if kind's capture filter disallows it.
// I/O failures are logged and stop recording without tearing down the VM.
func (c *Controller) WriteMessage(kind InstrKind, timestampMS int64, frame []byte) {
	if c.file == nil || !c.shouldCapture(kind) {
		return
	}
	rec := make([]byte, storedFrameHeaderSize+len(frame))
	binary.BigEndian.PutUint64(rec, uint64(timestampMS))
	copy(rec[storedFrameHeaderSize:], frame)

	n, err := c.file.Write(rec)
	if err != nil {
		if c.log != nil {
			c.log.Errorf("vm %d: recording write failed, stopping: %v", c.vmID, err)
		}
		_ = c.Stop()
		return
	}
	c.offset += int64(n)
	metrics.RecordingBytesWrittenTotal.Add(float64(n))
}

// rollOver closes the current file (recording its stop time) and starts a
// fresh one, preserving continuity: the new file's start time equals the
// old file's stop time.
func (c *Controller) rollOver() error {
	if err := c.stopFile(); err != nil {
		return err
	}
	return c.Start()
}

// Stop cancels timers, stamps the stop time, rewrites the header, and
// closes the file.
func (c *Controller) Stop() error {
	if c.file == nil {
		return nil
	}
	return c.stopFile()
}

func (c *Controller) stopFile() error {
	c.cancelTimers()
	c.header.StopMS = c.clock.Now().UnixMilli()
	c.rewriteHeader()
	err := c.file.Close()

	closedPath, closedHeader := c.path, *c.header
	c.file = nil
	c.path = ""
	c.header = nil

	if c.OnFileClosed != nil {
		c.OnFileClosed(closedPath, closedHeader)
	}
	return err
}
