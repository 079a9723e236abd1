// Package settings implements the server-wide settings store: an
// immutable, schema-typed snapshot indexed by setting tag, replaced
// wholesale on update so readers holding a prior snapshot stay consistent.
// The copy-then-swap idiom follows a Monitor.metrics pointer-swap pattern;
// persistence is backed by gorm/sqlite.
package settings

import (
	"sync"
	"time"
)

// Tag identifies one server-wide setting.
type Tag int

const (
	TagCaptchaEnabled Tag = iota
	TagMaxConnectionsEnabled
	TagMaxConnections
	TagCaptchaRequiredByDefault
	TagAllowAccountRegistration
	TagBanIPCommand
	TagRecordingFileDurationMinutes
	TagRecordingKeyframeIntervalSeconds
	TagRecordingCaptureDisplay
	TagRecordingCaptureInput
	TagRecordingCaptureAudio
)

// Value is a schema-typed setting value: exactly one of the typed fields is
// meaningful for any given Tag, without requiring a real interface-schema
// compiler.
type Value struct {
	Bool   bool
	Int    int64
	String string
}

// Snapshot is one immutable, fully-populated settings list.
type Snapshot map[Tag]Value

// clone returns a deep-enough copy (Value is plain data, so a map copy
// suffices) that a caller can mutate before installing as the new snapshot.
func (s Snapshot) clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Persister is the narrow slice of the database collaborator that the
// settings store needs: load the persisted snapshot at startup, persist
// deltas on update. Concretely satisfied by internal/accountdb.
type Persister interface {
	LoadSettings() (Snapshot, error)
	SaveSettings(delta Snapshot) error
}

// OnAppliedFunc is invoked with (newSnapshot, oldSnapshot) after an update
// commits, so subscribers like the captcha verifier or recording controller
// can reconfigure themselves.
type OnAppliedFunc func(newer, older Snapshot)

// Store holds the current settings snapshot and fans out updates.
type Store struct {
	persister Persister

	mu       sync.RWMutex
	current  Snapshot

	subMu       sync.Mutex
	subscribers []OnAppliedFunc
}

// New loads the initial snapshot from persister (falling back to Defaults()
// on a cold start where nothing has been persisted yet).
func New(persister Persister) (*Store, error) {
	snap, err := persister.LoadSettings()
	if err != nil {
		return nil, err
	}
	if snap == nil {
		snap = Defaults()
	}
	return &Store{persister: persister, current: snap}, nil
}

// Defaults returns the built-in default snapshot for a server with no
// persisted configuration yet.
func Defaults() Snapshot {
	return Snapshot{
		TagCaptchaEnabled:                   {Bool: false},
		TagMaxConnectionsEnabled:            {Bool: false},
		TagMaxConnections:                   {Int: 0},
		TagCaptchaRequiredByDefault:         {Bool: false},
		TagAllowAccountRegistration:         {Bool: true},
		TagBanIPCommand:                     {String: ""},
		TagRecordingFileDurationMinutes:     {Int: 60},
		TagRecordingKeyframeIntervalSeconds: {Int: 15},
		TagRecordingCaptureDisplay:          {Bool: true},
		TagRecordingCaptureInput:            {Bool: true},
		TagRecordingCaptureAudio:            {Bool: false},
	}
}

// Get returns the current typed value for tag under the current snapshot.
func (s *Store) Get(tag Tag) Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current[tag]
}

// Snapshot returns the current immutable snapshot. Callers may retain the
// returned map indefinitely; Store never mutates a Snapshot once published,
// it only swaps in a new one.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers fn to run after every future Update.
func (s *Store) Subscribe(fn OnAppliedFunc) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Update applies updates element-wise onto a copy of the current snapshot,
// persists the delta, then swaps in the new snapshot and notifies
// subscribers with (new, old).
func (s *Store) Update(updates Snapshot) error {
	s.mu.Lock()
	older := s.current
	newer := older.clone()
	for tag, v := range updates {
		newer[tag] = v
	}
	if err := s.persister.SaveSettings(updates); err != nil {
		s.mu.Unlock()
		return err
	}
	s.current = newer
	s.mu.Unlock()

	s.subMu.Lock()
	subs := make([]OnAppliedFunc, len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(newer, older)
	}
	return nil
}

// RecordingSettings is a convenience view used by internal/recording.
type RecordingSettings struct {
	FileDuration     time.Duration
	KeyframeInterval time.Duration
	CaptureDisplay   bool
	CaptureInput     bool
	CaptureAudio     bool
}

// Recording extracts the current recording-related settings.
func (s *Store) Recording() RecordingSettings {
	snap := s.Snapshot()
	return RecordingSettings{
		FileDuration:     time.Duration(snap[TagRecordingFileDurationMinutes].Int) * time.Minute,
		KeyframeInterval: time.Duration(snap[TagRecordingKeyframeIntervalSeconds].Int) * time.Second,
		CaptureDisplay:   snap[TagRecordingCaptureDisplay].Bool,
		CaptureInput:     snap[TagRecordingCaptureInput].Bool,
		CaptureAudio:     snap[TagRecordingCaptureAudio].Bool,
	}
}
