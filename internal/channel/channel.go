// Package channel implements a chat room plus a connected-user set plus a
// turn controller for one VM (or the single global instance for id 0). It
// aggregates three already-guarded collaborators behind one facade type,
// the same shape a Monitor struct uses to aggregate a log manager, an
// alert manager, and a database handle.
package channel

import (
	"errors"
	"sync"
	"time"

	"collabvm-server/internal/chat"
	"collabvm-server/internal/turn"
	"collabvm-server/internal/wire"
)

// ErrGuestsDisallowed is returned by AddUser when the channel's VM setting
// disallow_guests is true and the joining connection is not logged in.
var ErrGuestsDisallowed = errors.New("channel: guests are not allowed on this VM")

// UserData is the per-member metadata kept in a channel's user set.
type UserData struct {
	Username string
	Tier     wire.UserTier
	IPBytes  []byte
	Voted    bool
	VoteYes  bool
}

// Channel aggregates the chat room, member set, and turn controller for
// one VM (or the global instance).
type Channel struct {
	ID              uint32
	DisallowGuests  bool

	Chat *chat.Room
	Turn *turn.Controller

	mu    sync.RWMutex
	users map[turn.ConnID]UserData

	// Broadcast is invoked with an encoded frame that must be delivered to
	// every member's send queue. Wired by the owner (usually via each
	// connection's guarded send-queue Dispatch) so Channel itself never
	// touches connection internals.
	Broadcast func(members []turn.ConnID, frame []byte)
}

// New creates a Channel for the given VM id (0 = global).
func New(id uint32, historySize int, turnLength time.Duration) *Channel {
	return &Channel{
		ID:    id,
		Chat:  chat.NewRoom(historySize),
		Turn:  turn.New(turnLength),
		users: make(map[turn.ConnID]UserData),
	}
}

// AddUser adds conn to the channel's member set. Rejected with
// ErrGuestsDisallowed if DisallowGuests is set and the joiner is not logged
// in: data.Tier is TierGuest or data.Username is empty.
func (c *Channel) AddUser(conn turn.ConnID, data UserData) error {
	if c.DisallowGuests && (data.Username == "" || data.Tier == wire.TierGuest) {
		return ErrGuestsDisallowed
	}
	c.mu.Lock()
	c.users[conn] = data
	c.mu.Unlock()
	return nil
}

// RemoveUser removes conn from the member set and clears its turn-queue
// membership/holder slot. Idempotent.
func (c *Channel) RemoveUser(conn turn.ConnID) {
	c.mu.Lock()
	delete(c.users, conn)
	c.mu.Unlock()
	c.Turn.RemoveConnection(conn)
}

// GetUserData returns conn's member metadata, if present.
func (c *Channel) GetUserData(conn turn.ConnID) (UserData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.users[conn]
	return d, ok
}

// GetUsers returns a snapshot of every member's id and metadata.
func (c *Channel) GetUsers() map[turn.ConnID]UserData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[turn.ConnID]UserData, len(c.users))
	for k, v := range c.users {
		out[k] = v
	}
	return out
}

// Count reports the number of connected members.
func (c *Channel) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

// BroadcastMessage fans frame out to every current member's send queue.
func (c *Channel) BroadcastMessage(frame []byte) {
	c.mu.RLock()
	members := make([]turn.ConnID, 0, len(c.users))
	for id := range c.users {
		members = append(members, id)
	}
	c.mu.RUnlock()

	if c.Broadcast != nil {
		c.Broadcast(members, frame)
	}
}

// Clear removes every member (used when the owning VM is deleted). The
// caller is responsible for notifying/disconnecting the removed members;
// Clear only empties the channel's own bookkeeping.
func (c *Channel) Clear() []turn.ConnID {
	c.mu.Lock()
	removed := make([]turn.ConnID, 0, len(c.users))
	for id := range c.users {
		removed = append(removed, id)
	}
	c.users = make(map[turn.ConnID]UserData)
	c.mu.Unlock()

	for _, id := range removed {
		c.Turn.RemoveConnection(id)
	}
	return removed
}

// CastVote records conn's ballot.
func (c *Channel) CastVote(conn turn.ConnID, yes bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.users[conn]
	if !ok {
		return false
	}
	d.Voted = true
	d.VoteYes = yes
	c.users[conn] = d
	return true
}

// TallyVotes reports (yes, total) across every member who has cast a
// ballot. Guests (Tier == TierGuest) are excluded from the tally.
func (c *Channel) TallyVotes() (yes, total int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.users {
		if d.Tier == wire.TierGuest || !d.Voted {
			continue
		}
		total++
		if d.VoteYes {
			yes++
		}
	}
	return yes, total
}

// ClearVotes resets every member's ballot. Turn rotation does not call it;
// ballots persist across turns until ClearVotes is called.
func (c *Channel) ClearVotes() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, d := range c.users {
		d.Voted = false
		d.VoteYes = false
		c.users[id] = d
	}
}
