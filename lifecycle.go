package nodestreams

import (
	"errors"
	"fmt"
)

// doWrite hands one chunk (or, when chunks is non-nil, a batch) to the
// low-level hook. The single-active-write invariant holds: callers only
// dispatch while no write is in flight.
func (w *Writable) doWrite(length int, chunk any, encoding string, chunks []Chunk, cb Callback) {
	s := &w.state
	s.writelen = length
	s.writecb = cb
	s.writing = true
	s.sync = true
	onwrite := w.newOnwrite()
	if s.destroyed {
		onwrite(newDestroyed("write"))
	} else if chunks != nil {
		w.writevFn(chunks, onwrite)
	} else if w.writeFn != nil {
		w.writeFn(chunk, encoding, onwrite)
	} else {
		w.writevFn([]Chunk{{Data: chunk, Encoding: encoding}}, onwrite)
	}
	s.sync = false
}

// newOnwrite builds the completion callback for one dispatch. Each dispatch
// gets its own callback so a second invocation is detected even after
// another write has started.
func (w *Writable) newOnwrite() Callback {
	called := false
	return func(err error) {
		w.enter()
		defer w.leave()
		if called {
			w.errorOrDestroy(newMultipleCallback(), false)
			return
		}
		called = true
		w.onwrite(err)
	}
}

// onwrite handles completion of the in-flight write: bookkeeping, queued
// write flushing, drain signaling, and finish re-checking. The sync flag
// distinguishes a hook that completed before doWrite returned (effects of
// which must be deferred so they surface after the triggering call) from a
// genuinely asynchronous completion.
func (w *Writable) onwrite(err error) {
	s := &w.state
	sync := s.sync
	cb := s.writecb

	if !s.writing {
		w.errorOrDestroy(newMultipleCallback(), false)
		return
	}

	s.writing = false
	s.writecb = nil
	s.length -= s.writelen
	s.writelen = 0

	if err != nil {
		if s.errored == nil {
			s.errored = err
			w.notifyPeer(err)
		}
		if sync {
			err := err
			w.nextTick(func() { w.onwriteError(err, cb) })
		} else {
			w.onwriteError(err, cb)
		}
		return
	}

	if s.buffered.hasPending() {
		w.clearBuffer()
	}

	if sync {
		// Consecutive synchronous completions with no user callback coalesce
		// into one scheduled tick. Every promised callback still fires
		// exactly once, in order; this only batches the bookkeeping.
		if cb == nil && s.afterWriteTick != nil && s.afterWriteTick.cb == nil {
			s.afterWriteTick.count++
		} else {
			info := &afterWriteTickInfo{count: 1, cb: cb}
			s.afterWriteTick = info
			w.nextTick(func() {
				if s.afterWriteTick == info {
					s.afterWriteTick = nil
				}
				w.afterWrite(info.count, info.cb)
			})
		}
	} else {
		w.afterWrite(1, cb)
	}
}

func (w *Writable) onwriteError(err error, cb Callback) {
	s := &w.state
	s.pendingcb--
	if cb != nil {
		cb(err)
	}
	w.errorBuffer()
	w.errorOrDestroy(err, false)
}

func (w *Writable) afterWrite(count int, cb Callback) {
	s := &w.state

	needDrain := !s.ending && !s.destroyed && s.length == 0 && s.needDrain
	if needDrain {
		s.needDrain = false
		w.emit("drain")
	}

	for ; count > 0; count-- {
		s.pendingcb--
		if cb != nil {
			cb(nil)
		}
	}

	if s.destroyed {
		w.errorBuffer()
	}
	w.finishMaybe(false)
}

// errorBuffer flushes every still-buffered write callback and every
// end-registered callback with the terminal error. No callback is ever
// dropped and none fires twice.
func (w *Writable) errorBuffer() {
	s := &w.state
	if s.writing {
		return
	}

	for s.buffered.hasPending() {
		e := s.buffered.drainOne()
		s.length -= w.chunkLen(e.chunk)
		if e.cb != nil {
			e.cb(errOr(s.errored, newDestroyed("write")))
		}
	}

	cbs := s.onFinished
	s.onFinished = nil
	endErr := errOr(s.errored, newDestroyed("end"))
	for _, fn := range cbs {
		fn(endErr)
	}

	s.buffered.reset()
}

// clearBuffer drains queued writes: as one vectorized call when the hook
// supports it and more than one entry is pending, otherwise one scalar
// dispatch at a time, stopping as soon as a write is in flight.
func (w *Writable) clearBuffer() {
	s := &w.state
	if s.corked > 0 || s.bufferProcessing || s.destroyed || !s.constructed {
		return
	}
	n := s.buffered.pending()
	if n == 0 {
		return
	}

	s.bufferProcessing = true
	if n > 1 && w.writevFn != nil {
		// One vectorized dispatch; its single completion fans out to every
		// entry's callback, so the batch counts as one pending completion.
		s.pendingcb -= n - 1
		entries := s.buffered.pendingEntries()
		chunks := make([]Chunk, len(entries))
		for i, e := range entries {
			chunks[i] = Chunk{Data: e.chunk, Encoding: e.encoding}
		}
		fanout := func(err error) {
			for _, e := range entries {
				if e.cb != nil {
					e.cb(err)
				}
			}
		}
		w.doWrite(s.length, nil, "", chunks, fanout)
		s.buffered.reset()
	} else {
		for s.buffered.hasPending() && !s.writing {
			e := s.buffered.drainOne()
			w.doWrite(w.chunkLen(e.chunk), e.chunk, e.encoding, nil, e.cb)
		}
		s.buffered.compact()
	}
	s.bufferProcessing = false
}

// finishMaybe starts the finish sequence once needFinish holds and every
// promised completion callback has fired. When the check happens inside a
// synchronous unit the finish signal is deferred a tick.
func (w *Writable) finishMaybe(sync bool) {
	s := &w.state
	if !s.needFinish() {
		return
	}
	w.prefinish()
	if s.pendingcb != 0 {
		return
	}
	if sync {
		s.pendingcb++
		w.nextTick(func() {
			if s.needFinish() {
				w.finish()
			} else {
				s.pendingcb--
			}
		})
	} else if s.needFinish() {
		s.pendingcb++
		w.finish()
	}
}

// prefinish invokes the optional final hook exactly once, or emits the
// prefinish signal directly when no hook is present.
func (w *Writable) prefinish() {
	s := &w.state
	if s.prefinished || s.finalCalled {
		return
	}
	if w.finalFn != nil && !s.destroyed {
		s.finalCalled = true
		w.callFinal()
	} else {
		s.prefinished = true
		w.emit("prefinish")
	}
}

func (w *Writable) callFinal() {
	s := &w.state
	called := false
	onFinish := func(err error) {
		if called {
			w.errorOrDestroy(errOr(err, newMultipleCallback()), false)
			return
		}
		called = true
		s.pendingcb--
		if err != nil {
			cbs := s.onFinished
			s.onFinished = nil
			for _, fn := range cbs {
				fn(err)
			}
			w.errorOrDestroy(err, s.sync)
		} else if s.needFinish() {
			s.prefinished = true
			w.emit("prefinish")
			s.pendingcb++
			w.nextTick(w.finish)
		}
	}

	s.sync = true
	s.pendingcb++
	if perr := safeCall(func() {
		w.finalFn(func(err error) {
			w.enter()
			defer w.leave()
			onFinish(err)
		})
	}); perr != nil {
		onFinish(perr)
	}
	s.sync = false
}

// finish emits the terminal success signal and resolves every
// end-registered callback, then applies the auto-destroy policy.
func (w *Writable) finish() {
	s := &w.state
	s.pendingcb--
	s.finished = true
	w.setPhase(PhaseFinished)

	cbs := s.onFinished
	s.onFinished = nil
	for _, fn := range cbs {
		fn(nil)
	}
	w.emit("finish")

	if s.autoDestroy && (w.peer == nil || w.peer.AutoDestroyReady()) {
		w.destroyWithCallback(nil, nil)
	}
}

// errorOrDestroy routes a terminal error: into the destruction sequencer
// when auto-destroy is enabled, otherwise into the sticky errored state and
// an error signal. sync defers the signal so it surfaces after the
// triggering call returns.
func (w *Writable) errorOrDestroy(err error, sync bool) {
	s := &w.state
	if s.destroyed {
		return
	}
	if s.autoDestroy {
		w.destroyWithCallback(err, nil)
		return
	}
	if err != nil {
		if s.errored == nil {
			s.errored = err
			w.notifyPeer(err)
		}
		if sync {
			err := err
			w.nextTick(func() { w.emitErrorOnce(err) })
		} else {
			w.emitErrorOnce(err)
		}
	}
}

func (w *Writable) emitErrorOnce(err error) {
	s := &w.state
	if s.errorEmitted {
		return
	}
	s.errorEmitted = true
	w.emit("error", err)
}

// destroyWithCallback is the destruction sequencer entry point. One-shot:
// repeated calls only invoke cb.
func (w *Writable) destroyWithCallback(err error, cb Callback) {
	s := &w.state

	if s.destroyed {
		if cb != nil {
			cb(nil)
		}
		return
	}

	if s.buffered.hasPending() || len(s.onFinished) > 0 {
		w.nextTick(w.errorBuffer)
	}

	if err != nil && s.errored == nil {
		s.errored = err
		w.notifyPeer(err)
	}

	s.destroyed = true
	w.setPhase(PhaseDestroyed)

	if !s.constructed {
		// Construction is still pending; the destroy hook runs when it
		// resolves, with both errors aggregated.
		s.destroyRequested = true
		s.deferredDestroyErr = err
	} else {
		w.runDestroyHook(err, cb)
	}
}

func (w *Writable) runDestroyHook(err error, cb Callback) {
	s := &w.state
	called := false
	onDestroy := func(herr error) {
		if called {
			return
		}
		called = true
		if herr != nil && s.errored == nil {
			s.errored = herr
			w.notifyPeer(herr)
		}
		rerr := errOr(herr, err)
		s.closed = true
		if cb != nil {
			cb(rerr)
		}
		if rerr != nil {
			rerr := rerr
			w.nextTick(func() {
				w.emitErrorOnce(rerr)
				w.emitCloseMaybe()
			})
		} else {
			w.nextTick(w.emitCloseMaybe)
		}
	}

	if w.destroyFn != nil {
		if perr := safeCall(func() {
			w.destroyFn(err, func(e error) {
				w.enter()
				defer w.leave()
				onDestroy(e)
			})
		}); perr != nil {
			onDestroy(perr)
		}
	} else {
		// default destroy just forwards the error
		onDestroy(err)
	}
}

func (w *Writable) emitCloseMaybe() {
	s := &w.state
	s.closeEmitted = true
	if s.emitClose {
		w.emit("close")
	}
}

// runConstruct drives the one-time construction gate. The consumer's
// completion is always deferred a tick; writes submitted in the interim
// buffer and flush once construction resolves.
func (w *Writable) runConstruct() {
	s := &w.state
	called := false
	onConstruct := func(err error) {
		if called {
			w.errorOrDestroy(errOr(err, newMultipleCallback()), false)
			return
		}
		called = true
		s.constructed = true
		switch {
		case s.destroyRequested:
			derr := s.deferredDestroyErr
			if err != nil && derr != nil {
				derr = errors.Join(err, derr)
			} else {
				derr = errOr(err, derr)
			}
			s.deferredDestroyErr = nil
			w.runDestroyHook(derr, nil)
		case err != nil:
			w.errorOrDestroy(err, true)
		default:
			if s.phase == PhaseConstructing {
				w.setPhase(PhaseOpen)
			}
			w.nextTick(func() {
				if !s.writing {
					w.clearBuffer()
				}
				w.finishMaybe(false)
			})
		}
	}

	complete := func(err error) {
		w.enter()
		defer w.leave()
		w.nextTick(func() { onConstruct(err) })
	}
	if perr := safeCall(func() { w.constructFn(complete) }); perr != nil {
		complete(perr)
	}
}

func (w *Writable) notifyPeer(err error) {
	if w.peer != nil {
		w.peer.NotifyError(err)
	}
}

func (w *Writable) emit(event string, args ...any) {
	w.EventEmitter.Emit(event, args...)
}

// safeCall converts a panicking consumer hook into an error, matching the
// upstream behavior of catching throws from construct/final/destroy hooks.
func safeCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()
	fn()
	return nil
}
