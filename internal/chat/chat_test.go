package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabvm-server/internal/wire"
)

func TestRoom_AddUserMessage(t *testing.T) {
	t.Run("should stamp sender, tier, and timestamp", func(t *testing.T) {
		room := NewRoom(5)
		msg := room.AddUserMessage(1, "alice", wire.TierRegular, "hello")

		assert.Equal(t, "alice", msg.Sender)
		assert.Equal(t, wire.TierRegular, msg.Tier)
		assert.Equal(t, "hello", msg.Text)
		assert.NotZero(t, msg.TimestampMS)
	})

	t.Run("should evict the oldest message once at capacity", func(t *testing.T) {
		room := NewRoom(2)
		room.AddUserMessage(0, "a", wire.TierGuest, "one")
		room.AddUserMessage(0, "a", wire.TierGuest, "two")
		room.AddUserMessage(0, "a", wire.TierGuest, "three")

		history := room.History()
		require.Len(t, history, 2)
		assert.Equal(t, "two", history[0].Text)
		assert.Equal(t, "three", history[1].Text)
	})

	t.Run("should default capacity when given a non-positive value", func(t *testing.T) {
		room := NewRoom(0)
		assert.Equal(t, DefaultHistorySize, room.cap)
	})
}

func TestRoom_History_ReturnsACopy(t *testing.T) {
	t.Run("should not let callers mutate internal state", func(t *testing.T) {
		room := NewRoom(3)
		room.AddUserMessage(0, "a", wire.TierGuest, "one")

		history := room.History()
		history[0].Text = "mutated"

		assert.Equal(t, "one", room.History()[0].Text)
	})
}
