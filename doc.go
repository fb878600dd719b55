// Package nodestreams implements the writable half of the Node.js streams
// state machine for Go: a callback-driven sink abstraction with
// backpressure accounting, write buffering, corking, an asynchronous
// construction gate, graceful finalization, and idempotent destruction.
//
// # Model
//
// A [Writable] is configured with consumer hooks ([Options.Write] or
// [Options.Writev], plus optional [Options.Final], [Options.Construct],
// and [Options.Destroy]) and drives them under strict ordering guarantees:
// writes are dispatched in submission order, exactly one low-level write is
// in flight at a time, completion callbacks fire in dispatch order, and the
// finish signal never precedes the last promised callback.
//
// [Writable.Write] reports backpressure by returning false once the
// buffered length reaches the high-water mark; a drain event fires when the
// buffer empties again. [Writable.Cork] and [Writable.Uncork] batch writes,
// preferring a single vectorized dispatch when a Writev hook is present.
// [Writable.End] begins finalization and [Writable.Destroy] tears the sink
// down immediately, flushing every still-pending callback with an error.
// No callback is ever dropped and none fires twice.
//
// # Execution Model
//
// The core is single-threaded and cooperative, like the JavaScript original:
// a Writable and its callbacks must be driven from one goroutine. Deferred
// work runs on an internal trampoline that drains when the outermost public
// call returns, or on an external [Scheduler] when one is supplied. Hook
// completion callbacks may be invoked from other goroutines; they re-enter
// the trampoline themselves.
//
// Effects triggered by a hook that completes synchronously are deferred a
// tick, preserving "never call back before returning" on synchronous paths.
//
// # Adapters
//
// [SinkWriter] exposes a Writable through the promise-style writer protocol
// ([StreamWriter]), and [FromWriter] builds a Writable over any
// StreamWriter. The gojastreams subpackage binds the constructor into a
// goja JavaScript runtime.
package nodestreams
