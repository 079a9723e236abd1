package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_Put(t *testing.T) {
	t.Run("should report no previous holder for a fresh token", func(t *testing.T) {
		r := NewSessionRegistry()
		_, had := r.Put("tok1", 1)
		assert.False(t, had)
	})

	t.Run("should return the prior connection when a token is reassigned", func(t *testing.T) {
		r := NewSessionRegistry()
		r.Put("tok1", 1)

		prev, had := r.Put("tok1", 2)
		require.True(t, had)
		assert.Equal(t, ConnID(1), prev)

		conn, ok := r.Lookup("tok1")
		require.True(t, ok)
		assert.Equal(t, ConnID(2), conn)
	})

	t.Run("should remove a connection's session", func(t *testing.T) {
		r := NewSessionRegistry()
		r.Put("tok1", 1)
		r.Remove(1)

		_, ok := r.Lookup("tok1")
		assert.False(t, ok)
	})
}

func TestGuestTable_TryInsert(t *testing.T) {
	t.Run("should be case-insensitive", func(t *testing.T) {
		g := NewGuestTable()
		require.True(t, g.TryInsert("Alice", 1))

		conn, ok := g.Lookup("alice")
		require.True(t, ok)
		assert.Equal(t, ConnID(1), conn)
	})

	t.Run("should reject a name already held by a live connection", func(t *testing.T) {
		g := NewGuestTable()
		require.True(t, g.TryInsert("bob", 1))
		assert.False(t, g.TryInsert("BOB", 2))
	})

	t.Run("should reject a name reserved for an account holder", func(t *testing.T) {
		g := NewGuestTable()
		g.Reserved = func(username string) bool { return username == "admin" }
		assert.False(t, g.TryInsert("admin", 1))

		_, ok := g.Lookup("admin")
		assert.False(t, ok)
	})

	t.Run("should not remove an entry that was reassigned to someone else", func(t *testing.T) {
		g := NewGuestTable()
		g.TryInsert("carol", 1)
		g.Remove("carol", 1)
		g.TryInsert("carol", 2)

		g.Remove("carol", 1) // stale removal, should be a no-op

		conn, ok := g.Lookup("carol")
		require.True(t, ok)
		assert.Equal(t, ConnID(2), conn)
	})
}

func TestGuestTable_AllocateGuestName(t *testing.T) {
	t.Run("should allocate distinct names for distinct connections", func(t *testing.T) {
		g := NewGuestTable()
		name1, err := g.AllocateGuestName(1)
		require.NoError(t, err)
		name2, err := g.AllocateGuestName(2)
		require.NoError(t, err)

		assert.NotEqual(t, name1, name2)
		assert.Regexp(t, `^guest\d+$`, name1)
	})
}

func TestPerIPTable(t *testing.T) {
	t.Run("should count increments and decrements", func(t *testing.T) {
		p := NewPerIPTable()
		assert.True(t, p.TryIncrement("1.2.3.4", 0))
		assert.True(t, p.TryIncrement("1.2.3.4", 0))
		assert.Equal(t, 2, p.Count("1.2.3.4"))

		p.Decrement("1.2.3.4")
		assert.Equal(t, 1, p.Count("1.2.3.4"))
	})

	t.Run("should reject increments past the configured limit", func(t *testing.T) {
		p := NewPerIPTable()
		require.True(t, p.TryIncrement("5.5.5.5", 2))
		require.True(t, p.TryIncrement("5.5.5.5", 2))
		assert.False(t, p.TryIncrement("5.5.5.5", 2))
		assert.Equal(t, 2, p.Count("5.5.5.5"))
	})

	t.Run("should never go negative", func(t *testing.T) {
		p := NewPerIPTable()
		p.Decrement("6.6.6.6")
		assert.Zero(t, p.Count("6.6.6.6"))
	})

	t.Run("should reap an entry once its count returns to zero", func(t *testing.T) {
		p := NewPerIPTable()
		p.TryIncrement("7.7.7.7", 0)
		p.Decrement("7.7.7.7")

		_, exists := p.counts["7.7.7.7"]
		assert.False(t, exists)
	})
}
