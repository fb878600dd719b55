// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package nodestreams

import "sync"

// AbortSignal is the cancellation token accepted by [Options.Signal]: when
// aborted it is equivalent to destroying the stream with an abort error.
//
// Registration and state queries are safe for concurrent use. Note that the
// abort itself is delivered on the goroutine calling
// [AbortController.Abort]; when a stream with single-goroutine affinity is
// involved, trigger the abort from the stream's goroutine or marshal it
// through the stream's Scheduler.
type AbortSignal struct {
	reason   any
	handlers []func(reason any)
	mu       sync.Mutex
	aborted  bool
}

func newAbortSignal() *AbortSignal {
	return &AbortSignal{}
}

// Aborted returns true once the signal has been aborted.
func (s *AbortSignal) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Reason returns the abort reason, or nil if not aborted or no reason was
// provided.
func (s *AbortSignal) Reason() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// OnAbort registers a callback invoked when the signal aborts. If the signal
// is already aborted the callback is invoked immediately with the current
// reason. Callbacks run in registration order.
func (s *AbortSignal) OnAbort(handler func(reason any)) {
	if handler == nil {
		return
	}
	s.mu.Lock()
	if s.aborted {
		reason := s.reason
		s.mu.Unlock()
		handler(reason)
		return
	}
	s.handlers = append(s.handlers, handler)
	s.mu.Unlock()
}

func (s *AbortSignal) abort(reason any) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.aborted = true
	s.reason = reason
	handlers := s.handlers
	s.handlers = nil
	s.mu.Unlock()
	for _, h := range handlers {
		h(reason)
	}
}

// AbortController owns an [AbortSignal] and is the only way to trigger it.
type AbortController struct {
	signal *AbortSignal
}

// NewAbortController creates a controller with a fresh signal.
func NewAbortController() *AbortController {
	return &AbortController{signal: newAbortSignal()}
}

// Signal returns the controller's signal.
func (c *AbortController) Signal() *AbortSignal {
	return c.signal
}

// Abort aborts the signal with the given reason. Aborting more than once is
// a no-op.
func (c *AbortController) Abort(reason any) {
	c.signal.abort(reason)
}
