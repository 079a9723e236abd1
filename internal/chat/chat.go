// Package chat implements the ring-buffered chat room: the last N messages
// of a channel plus the machinery to stamp and record a new one before the
// caller broadcasts it. The ring-buffer-of-recent-entries shape mirrors a
// log manager's log buffer.
package chat

import (
	"sync"
	"time"

	"collabvm-server/internal/wire"
)

// DefaultHistorySize is the default history length, kept small.
const DefaultHistorySize = 25

// Room is a fixed-capacity ring buffer of the most recent chat messages in
// one channel.
type Room struct {
	mu      sync.RWMutex
	history []wire.ChatMessage
	cap     int
}

// NewRoom creates a Room retaining up to capacity messages. A non-positive
// capacity falls back to DefaultHistorySize.
func NewRoom(capacity int) *Room {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &Room{history: make([]wire.ChatMessage, 0, capacity), cap: capacity}
}

// AddUserMessage stamps text with the current time and sender's tier,
// appends it to history (evicting the oldest entry if full), and returns
// the built record for the caller to broadcast. The caller — not Room —
// performs the broadcast, so the record it returns is what every
// recipient's frame is built from.
func (r *Room) AddUserMessage(destination uint32, sender string, tier wire.UserTier, text string) wire.ChatMessage {
	msg := wire.ChatMessage{
		Destination: destination,
		Sender:      sender,
		Tier:        tier,
		Text:        text,
		TimestampMS: time.Now().UnixMilli(),
	}

	r.mu.Lock()
	if len(r.history) >= r.cap {
		r.history = append(r.history[1:], msg)
	} else {
		r.history = append(r.history, msg)
	}
	r.mu.Unlock()

	return msg
}

// History returns a copy of the current ring buffer contents in order,
// oldest first, for replay to a joining connection.
func (r *Room) History() []wire.ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]wire.ChatMessage, len(r.history))
	copy(out, r.history)
	return out
}

// Len reports the current number of retained messages.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.history)
}
