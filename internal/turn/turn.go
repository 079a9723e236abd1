// Package turn implements an input-control turn controller: a strict FIFO
// queue of waiting connections, an optional current holder, and a
// pause-aware turn timer. Ordering and pause/resume bookkeeping follow an
// alert-manager cooldown-map shape, adapted from "minimum interval between
// identical alerts" to "remaining time on the current holder's turn".
package turn

import (
	"container/list"
	"time"
)

// ConnID identifies a connection without this package needing to know the
// session package's concrete type (avoids an import cycle: session depends
// on turn, not vice versa).
type ConnID uint64

// Controller manages one channel's turn rotation.
type Controller struct {
	queue  *list.List // of ConnID, FIFO
	posOf  map[ConnID]*list.Element

	holder     ConnID
	hasHolder  bool
	turnLength time.Duration
	startedAt  time.Time
	remaining  time.Duration // valid only while paused
	paused     bool

	timer *time.Timer

	// OnUpdate is invoked (holder, queueLen) whenever the holder or queue
	// changes, so the caller can broadcast a TurnUpdate frame. It must not
	// block or re-enter the Controller; callers typically wrap it with a
	// guard.Wrap so the broadcast itself is serialized elsewhere.
	OnUpdate func(holder ConnID, hasHolder bool, queueLen int)
	// OnExpire fires when the current holder's timer runs out, so the
	// caller can perform the equivalent of EndCurrentTurn.
	OnExpire func()
}

// New creates a Controller with the given per-turn duration.
func New(turnLength time.Duration) *Controller {
	return &Controller{
		queue:      list.New(),
		posOf:      make(map[ConnID]*list.Element),
		turnLength: turnLength,
	}
}

// SetTurnLength updates the duration granted to future turns. It does not
// retroactively shorten or extend a turn already in progress.
func (c *Controller) SetTurnLength(d time.Duration) {
	c.turnLength = d
}

// RequestTurn grants the turn immediately if nobody holds it, otherwise
// enqueues conn (idempotently — a connection already queued is not
// duplicated).
func (c *Controller) RequestTurn(conn ConnID) {
	if !c.hasHolder {
		c.grant(conn)
		return
	}
	if conn == c.holder {
		return
	}
	if _, already := c.posOf[conn]; already {
		return
	}
	el := c.queue.PushBack(conn)
	c.posOf[conn] = el
	c.notify()
}

func (c *Controller) grant(conn ConnID) {
	c.holder = conn
	c.hasHolder = true
	c.startedAt = time.Now()
	c.paused = false
	c.armTimer(c.turnLength)
	c.notify()
}

func (c *Controller) armTimer(d time.Duration) {
	c.stopTimer()
	if d <= 0 || c.OnExpire == nil {
		return
	}
	c.timer = time.AfterFunc(d, c.OnExpire)
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// EndCurrentTurn ends conn's turn if conn currently holds it, promoting the
// next queued connection (if any) to holder. Calling with hasHolder==false
// unknown-holder semantics (timer expiry) is achieved by callers who ignore
// the conn argument's identity check by passing the current holder.
func (c *Controller) EndCurrentTurn(conn ConnID) {
	if !c.hasHolder || conn != c.holder {
		return
	}
	c.releaseHolder()
}

// EndWhoeverHolds unconditionally ends the current turn regardless of who
// holds it — used for timer expiry, where the holder's identity is known
// only to the Controller itself.
func (c *Controller) EndWhoeverHolds() {
	if !c.hasHolder {
		return
	}
	c.releaseHolder()
}

func (c *Controller) releaseHolder() {
	c.stopTimer()
	c.hasHolder = false
	if front := c.queue.Front(); front != nil {
		next := front.Value.(ConnID)
		c.queue.Remove(front)
		delete(c.posOf, next)
		c.grant(next)
		return
	}
	c.notify()
}

// PauseTurnTimer freezes the remaining time on the current holder's turn.
// A no-op if there is no holder or the timer is already paused.
func (c *Controller) PauseTurnTimer() {
	if !c.hasHolder || c.paused {
		return
	}
	elapsed := time.Since(c.startedAt)
	c.remaining = c.turnLength - elapsed
	if c.remaining < 0 {
		c.remaining = 0
	}
	c.stopTimer()
	c.paused = true
}

// ResumeTurnTimer restarts the timer for whatever time remained when it was
// paused. A no-op if there is no holder or it isn't paused.
func (c *Controller) ResumeTurnTimer() {
	if !c.hasHolder || !c.paused {
		return
	}
	c.paused = false
	c.startedAt = time.Now().Add(-1 * (c.turnLength - c.remaining))
	c.armTimer(c.remaining)
}

// RemoveConnection clears conn from both the holder slot and the queue. If
// conn was the holder, the next queued connection is promoted exactly as
// in EndCurrentTurn.
func (c *Controller) RemoveConnection(conn ConnID) {
	if c.hasHolder && conn == c.holder {
		c.releaseHolder()
		return
	}
	if el, ok := c.posOf[conn]; ok {
		c.queue.Remove(el)
		delete(c.posOf, conn)
		c.notify()
	}
}

// TurnLength reports the duration granted to a freshly-started turn.
func (c *Controller) TurnLength() time.Duration { return c.turnLength }

// Holder reports the current turn holder, if any.
func (c *Controller) Holder() (ConnID, bool) {
	return c.holder, c.hasHolder
}

// QueueLen reports the number of connections waiting for a turn.
func (c *Controller) QueueLen() int {
	return c.queue.Len()
}

// QueuePosition reports conn's 1-based position in the wait queue, or 0 if
// conn is not queued.
func (c *Controller) QueuePosition(conn ConnID) int {
	pos := 1
	for e := c.queue.Front(); e != nil; e = e.Next() {
		if e.Value.(ConnID) == conn {
			return pos
		}
		pos++
	}
	return 0
}

func (c *Controller) notify() {
	if c.OnUpdate != nil {
		c.OnUpdate(c.holder, c.hasHolder, c.queue.Len())
	}
}
