// Package guard implements the serialized-task-executor abstraction. A
// Guard[R] runs one goroutine per resource; callbacks submitted to the same
// Guard execute strictly in submission order and never overlap, while
// distinct Guards run fully concurrently with one another. In this server
// each channel and the VM registry are owned by a Guard; the settings
// store, the session, guest and per-IP tables, and per-connection state
// use their own mutexes instead.
package guard

import "sync"

// task is a unit of work queued against a Guard's resource.
type task[R any] func(R)

// Guard serializes all access to a resource of type R behind a single
// dispatch loop. The zero value is not usable; construct with New.
type Guard[R any] struct {
	resource R
	tasks    chan task[R]

	closeOnce sync.Once
	done      chan struct{}
}

// New starts a Guard owning resource and returns it. The caller retains no
// direct reference to resource; all access must go through Dispatch or Wrap.
func New[R any](resource R) *Guard[R] {
	g := &Guard[R]{
		resource: resource,
		tasks:    make(chan task[R], 256),
		done:     make(chan struct{}),
	}
	go g.loop()
	return g
}

func (g *Guard[R]) loop() {
	for {
		select {
		case t := <-g.tasks:
			t(g.resource)
		case <-g.done:
			// Drain remaining tasks so callers blocked on a synchronous
			// round-trip (via DispatchSync) don't hang after Close.
			for {
				select {
				case t := <-g.tasks:
					t(g.resource)
				default:
					return
				}
			}
		}
	}
}

// Dispatch enqueues fn to run against the guarded resource. It returns
// immediately; fn runs asynchronously, in order relative to every other
// call to Dispatch/Wrap on this Guard.
func (g *Guard[R]) Dispatch(fn func(R)) {
	g.tasks <- task[R](fn)
}

// DispatchSync enqueues fn and blocks until it has run, returning whatever
// fn stored into its result via the closure. Useful for read operations
// that must observe a consistent snapshot before the caller proceeds.
func (g *Guard[R]) DispatchSync(fn func(R)) {
	done := make(chan struct{})
	g.tasks <- func(r R) {
		fn(r)
		close(done)
	}
	<-done
}

// Wrap returns a function that, when invoked with an argument, schedules
// fn(arg) on the guard. This is the mechanism by which asynchronous
// completions (timer fires, I/O callbacks) hand control back to the
// guard's serialization discipline instead of mutating the resource from
// whatever goroutine the completion happened to run on.
func Wrap[R, A any](g *Guard[R], fn func(R, A)) func(A) {
	return func(arg A) {
		g.Dispatch(func(r R) { fn(r, arg) })
	}
}

// Close stops the dispatch loop after any already-queued tasks have run.
// Tasks submitted after Close is called may be silently dropped.
func (g *Guard[R]) Close() {
	g.closeOnce.Do(func() { close(g.done) })
}
