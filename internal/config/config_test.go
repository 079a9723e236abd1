package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should create a config with production-sane defaults", func(t *testing.T) {
		cfg := New()
		assert.Equal(t, ":9198", cfg.ListenAddr)
		assert.Equal(t, ":9199", cfg.HTTPAddr)
		assert.Equal(t, 24*time.Hour, cfg.TokenExpiry)
		assert.Equal(t, 20, cfg.DefaultChatHistory)
		assert.False(t, cfg.Debug)
	})
}

func TestNewWithConfig(t *testing.T) {
	t.Run("should overlay only the non-zero override fields", func(t *testing.T) {
		cfg := NewWithConfig(Config{ListenAddr: ":1234", Debug: true})
		assert.Equal(t, ":1234", cfg.ListenAddr)
		assert.Equal(t, ":9199", cfg.HTTPAddr) // default preserved
		assert.True(t, cfg.Debug)
	})
}

func TestLoadAndSave(t *testing.T) {
	t.Run("should round-trip a saved config through Load", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.json")

		original := NewWithConfig(Config{ListenAddr: ":5555", DatabasePath: "test.db"})
		require.NoError(t, original.Save(path))

		loaded, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":5555", loaded.ListenAddr)
		assert.Equal(t, "test.db", loaded.DatabasePath)
	})

	t.Run("should error on a missing file", func(t *testing.T) {
		_, err := Load("/nonexistent/config.json")
		assert.Error(t, err)
	})
}
