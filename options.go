// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package nodestreams

// Callback is the completion callback convention used throughout the
// package: invoked exactly once, with nil on success or the failure cause.
type Callback func(err error)

// Chunk pairs a chunk with its encoding, as passed to a vectorized write
// hook.
type Chunk struct {
	Data     any
	Encoding string
}

// Low-level hook signatures. A concrete sink supplies these via Options;
// each hook must invoke its completion callback exactly once, synchronously
// or later. See the Options fields for semantics.
type (
	// WriteFunc performs the actual I/O for one chunk.
	WriteFunc func(chunk any, encoding string, cb Callback)
	// WritevFunc performs batched I/O for several chunks at once.
	WritevFunc func(chunks []Chunk, cb Callback)
	// FinalFunc flushes or finalizes the sink before the finish signal.
	FinalFunc func(cb Callback)
	// ConstructFunc performs asynchronous setup; no write is dispatched
	// until it completes.
	ConstructFunc func(cb Callback)
	// DestroyFunc tears the sink down. err is the terminal error, or nil
	// for a clean teardown; the hook forwards it (possibly replaced) to cb.
	DestroyFunc func(err error, cb Callback)
)

// WriteTiming selects when a write's backpressure return value is computed
// relative to the low-level write call. The exact rule is version-sensitive
// upstream, so it is a configurable policy rather than a hardcoded choice.
type WriteTiming uint8

const (
	// TimingPostWrite computes backpressure after the low-level write call
	// returns, so a synchronously completing hook that drains the buffer is
	// observed (the newer upstream semantics; default).
	TimingPostWrite WriteTiming = iota
	// TimingLegacy computes backpressure when the chunk is accepted, before
	// the low-level write can complete (the older upstream semantics).
	TimingLegacy
)

// ReadablePeer is the narrow interface through which the writable half of a
// composite (duplex-like) entity coordinates with its paired read side.
// Both methods are called on the stream's goroutine.
type ReadablePeer interface {
	// NotifyError propagates a sticky terminal error to the read side.
	NotifyError(err error)
	// AutoDestroyReady reports whether the read side has fully concluded,
	// permitting the shared entity to auto-destroy after finish.
	AutoDestroyReady() bool
}

// Options configures a new Writable. The zero value of each field means
// "not specified" and selects the documented default.
type Options struct {
	// Write performs the I/O for one chunk. Required unless Writev is
	// supplied.
	Write WriteFunc
	// Writev, if supplied, is preferred when more than one write is
	// buffered: all buffered chunks are dispatched as a single call.
	Writev WritevFunc
	// Final runs after End once all writes have completed, before the
	// finish signal.
	Final FinalFunc
	// Construct is a one-time async setup gate; writes buffer until it
	// completes.
	Construct ConstructFunc
	// Destroy runs during teardown, receiving the terminal error (or nil).
	Destroy DestroyFunc

	// HighWaterMark is the buffered-size threshold above which Write
	// signals backpressure. Bytes, or items in object mode. Nil selects
	// the process-wide default (see GetDefaultHighWaterMark).
	HighWaterMark *int
	// WritableHighWaterMark overrides HighWaterMark for the writable half
	// when the stream is constructed as part of a composite entity.
	WritableHighWaterMark *int
	// ObjectMode makes every chunk count as size 1 and skips chunk type
	// validation.
	ObjectMode bool
	// DecodeStrings controls whether string chunks are converted to raw
	// bytes before reaching the write hook. Default true.
	DecodeStrings *bool
	// DefaultEncoding is used for string chunks written without an explicit
	// encoding. Default "utf8".
	DefaultEncoding string
	// EmitClose controls whether the close signal is emitted after
	// destruction. Default true.
	EmitClose *bool
	// AutoDestroy destroys the stream automatically once it finishes.
	// Default true.
	AutoDestroy *bool
	// Signal destroys the stream with an abort error when triggered.
	Signal *AbortSignal
	// Timing selects the backpressure computation policy.
	Timing WriteTiming
	// Scheduler overrides the deferred-execution primitive, e.g. with an
	// event loop's microtask queue. Nil selects the built-in trampoline.
	Scheduler Scheduler
	// Peer links the writable half to its paired read side.
	Peer ReadablePeer
}

func boolOpt(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Bool is a convenience for populating the presence-sensitive boolean
// options.
func Bool(v bool) *bool { return &v }

// Int is a convenience for populating the presence-sensitive integer
// options.
func Int(v int) *int { return &v }
