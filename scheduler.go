package nodestreams

// Scheduler is the deferred-execution collaborator: it runs each scheduled
// callback after the current synchronous execution unit completes,
// preserving submission order. An event loop's microtask queue satisfies
// this contract directly; [Options.Scheduler] accepts any implementation.
//
// The entire state machine defers through this single primitive rather than
// goroutines or promises, which keeps the ordering of effects deterministic
// and inspectable.
type Scheduler interface {
	// ScheduleTick enqueues fn to run after the current synchronous
	// execution unit. Callbacks run in FIFO order.
	ScheduleTick(fn func())
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(fn func())

// ScheduleTick implements Scheduler.
func (f SchedulerFunc) ScheduleTick(fn func()) { f(fn) }

// tickLoop is the built-in Scheduler: a trampoline queue drained when the
// outermost library entry point returns. Within a drain, callbacks run in
// FIFO order, and callbacks scheduled during the drain are appended and run
// in the same drain. This reproduces the host runtime's "next tick after the
// current synchronous unit" semantics without goroutines, at the cost of
// defining the synchronous unit as the outermost call into the stream.
//
// Not safe for concurrent use; the stream it belongs to must be driven from
// a single goroutine (or serialized externally), the same affinity contract
// as a hosted JS engine runtime.
type tickLoop struct {
	queue    []func()
	depth    int
	draining bool
}

// ScheduleTick implements Scheduler.
func (q *tickLoop) ScheduleTick(fn func()) {
	q.queue = append(q.queue, fn)
}

// enter marks the start of a library entry point.
func (q *tickLoop) enter() {
	q.depth++
}

// leave marks the end of a library entry point; when the outermost entry
// unwinds, the queued ticks drain.
func (q *tickLoop) leave() {
	q.depth--
	if q.depth != 0 || q.draining {
		return
	}
	q.draining = true
	q.depth++ // ticks run inside the drain unit
	for i := 0; i < len(q.queue); i++ {
		fn := q.queue[i]
		q.queue[i] = nil
		fn()
	}
	q.queue = q.queue[:0]
	q.depth--
	q.draining = false
}
