package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePersister struct {
	loaded Snapshot
	saved  []Snapshot
}

func (f *fakePersister) LoadSettings() (Snapshot, error) { return f.loaded, nil }
func (f *fakePersister) SaveSettings(delta Snapshot) error {
	f.saved = append(f.saved, delta)
	return nil
}

func TestNew_FallsBackToDefaults(t *testing.T) {
	t.Run("should use built-in defaults on a cold start", func(t *testing.T) {
		store, err := New(&fakePersister{})
		require.NoError(t, err)
		assert.Equal(t, Defaults()[TagRecordingFileDurationMinutes], store.Get(TagRecordingFileDurationMinutes))
	})
}

func TestStore_Update_CopyOnWrite(t *testing.T) {
	t.Run("should leave a previously captured snapshot observing old values", func(t *testing.T) {
		store, err := New(&fakePersister{loaded: Defaults()})
		require.NoError(t, err)

		before := store.Snapshot()
		require.NoError(t, store.Update(Snapshot{TagMaxConnections: {Int: 5}}))

		assert.Equal(t, int64(0), before[TagMaxConnections].Int)
		assert.Equal(t, int64(5), store.Get(TagMaxConnections).Int)
	})

	t.Run("should persist only the delta", func(t *testing.T) {
		p := &fakePersister{loaded: Defaults()}
		store, err := New(p)
		require.NoError(t, err)

		require.NoError(t, store.Update(Snapshot{TagMaxConnections: {Int: 5}}))

		require.Len(t, p.saved, 1)
		assert.Len(t, p.saved[0], 1)
	})

	t.Run("should notify subscribers with new and old snapshots", func(t *testing.T) {
		store, err := New(&fakePersister{loaded: Defaults()})
		require.NoError(t, err)

		var gotNew, gotOld Snapshot
		store.Subscribe(func(newer, older Snapshot) {
			gotNew, gotOld = newer, older
		})

		require.NoError(t, store.Update(Snapshot{TagCaptchaEnabled: {Bool: true}}))

		assert.True(t, gotNew[TagCaptchaEnabled].Bool)
		assert.False(t, gotOld[TagCaptchaEnabled].Bool)
	})
}

func TestStore_Recording(t *testing.T) {
	t.Run("should convert settings into durations", func(t *testing.T) {
		store, err := New(&fakePersister{loaded: Defaults()})
		require.NoError(t, err)

		rs := store.Recording()
		assert.Equal(t, int64(3600), int64(rs.FileDuration.Seconds()))
		assert.Equal(t, int64(15), int64(rs.KeyframeInterval.Seconds()))
	})
}
