package nodestreams

// Writable is a byte- or object-oriented sink with backpressure, buffering,
// corking, an optional asynchronous construction gate, finalization, and
// destruction semantics. The actual I/O is performed by consumer-supplied
// low-level hooks (see [Options]); the stream coordinates dispatch so that
// exactly one low-level write is in flight at any time and completion
// callbacks fire in submission order.
//
// Control flow is callback-driven: a hook signals completion by invoking
// the callback it was handed, synchronously or later. All deferred work
// goes through a single [Scheduler] primitive, never goroutines, so the
// ordering of effects is deterministic.
//
// Thread Safety:
// A Writable has single-goroutine affinity, like a hosted JS engine
// runtime: all calls, including hook completion callbacks, must happen on
// one goroutine or be serialized externally (typically via an event loop
// and [Options.Scheduler]).
//
// Lifecycle signals emitted to subscribers: "drain", "prefinish", "finish",
// "close", "error".
type Writable struct {
	*EventEmitter

	sched Scheduler
	ticks *tickLoop // non-nil when using the built-in scheduler
	peer  ReadablePeer

	writeFn     WriteFunc
	writevFn    WritevFunc
	finalFn     FinalFunc
	constructFn ConstructFunc
	destroyFn   DestroyFunc

	state writableState
}

// New creates a Writable from the given options. At least one of
// Options.Write and Options.Writev must be supplied; the construct hook, if
// present, is kicked off on the first tick and gates all write dispatch.
func New(opts *Options) (*Writable, error) {
	if opts == nil {
		opts = &Options{}
	}
	if opts.Write == nil && opts.Writev == nil {
		return nil, newMethodNotImplemented("write")
	}

	hwm, err := resolveHighWaterMark(opts, opts.Peer != nil)
	if err != nil {
		return nil, err
	}

	defaultEncoding := opts.DefaultEncoding
	if defaultEncoding == "" {
		defaultEncoding = "utf8"
	} else {
		norm, ok := normalizeEncoding(defaultEncoding)
		if !ok || norm == BufferEncoding {
			return nil, newUnknownEncoding(defaultEncoding)
		}
		defaultEncoding = norm
	}

	w := &Writable{
		EventEmitter: NewEventEmitter(),
		peer:         opts.Peer,
		writeFn:      opts.Write,
		writevFn:     opts.Writev,
		finalFn:      opts.Final,
		constructFn:  opts.Construct,
		destroyFn:    opts.Destroy,
		state: writableState{
			highWaterMark:   hwm,
			objectMode:      opts.ObjectMode,
			decodeStrings:   boolOpt(opts.DecodeStrings, true),
			defaultEncoding: defaultEncoding,
			emitClose:       boolOpt(opts.EmitClose, true),
			autoDestroy:     boolOpt(opts.AutoDestroy, true),
			timing:          opts.Timing,
			sync:            true,
			constructed:     opts.Construct == nil,
		},
	}
	if w.state.constructed {
		w.state.phase = PhaseOpen
	} else {
		w.state.phase = PhaseConstructing
	}

	if opts.Scheduler != nil {
		w.sched = opts.Scheduler
	} else {
		w.ticks = &tickLoop{}
		w.sched = w.ticks
	}

	if w.constructFn != nil {
		w.nextTick(w.runConstruct)
	}

	if sig := opts.Signal; sig != nil {
		sig.OnAbort(func(reason any) {
			w.enter()
			defer w.leave()
			w.destroyWithCallback(newAbortError(reason), nil)
		})
	}

	return w, nil
}

// enter/leave demarcate a synchronous execution unit for the built-in
// scheduler; no-ops when an external scheduler is in use.
func (w *Writable) enter() {
	if w.ticks != nil {
		w.ticks.enter()
	}
}

func (w *Writable) leave() {
	if w.ticks != nil {
		w.ticks.leave()
	}
}

// nextTick defers fn to run after the current synchronous execution unit.
func (w *Writable) nextTick(fn func()) {
	w.sched.ScheduleTick(fn)
}

// On registers a listener for a lifecycle signal. Shadowed from
// EventEmitter so that registration also counts as a synchronous execution
// unit for the built-in scheduler.
func (w *Writable) On(event string, fn Listener) ListenerID {
	w.enter()
	defer w.leave()
	return w.EventEmitter.On(event, fn)
}

// Once registers a listener removed after its first dispatch.
func (w *Writable) Once(event string, fn Listener) ListenerID {
	w.enter()
	defer w.leave()
	return w.EventEmitter.Once(event, fn)
}

// Write submits a chunk using the stream's default encoding. It returns
// false when the caller should pause until the next "drain" signal.
//
// Validation failures (nil chunk, bad chunk type, unknown encoding) are
// returned as errors and nothing is written. Lifecycle failures (write
// after end, destroyed) are not returned here: per the completion-callback
// contract they are delivered to cb and surfaced as an "error" signal,
// while Write reports false.
func (w *Writable) Write(chunk any, cb Callback) (bool, error) {
	w.enter()
	defer w.leave()
	return w.write(chunk, "", cb)
}

// WriteEncoded is Write with an explicit encoding for string chunks. The
// encoding may also be the "buffer" sentinel, asserting the chunk is
// already raw bytes.
func (w *Writable) WriteEncoded(chunk any, encoding string, cb Callback) (bool, error) {
	w.enter()
	defer w.leave()
	return w.write(chunk, encoding, cb)
}

func (w *Writable) write(chunk any, encoding string, cb Callback) (bool, error) {
	s := &w.state

	if chunk == nil {
		return false, newNullValues()
	}
	if encoding == "" {
		encoding = s.defaultEncoding
	} else {
		norm, ok := normalizeEncoding(encoding)
		if !ok {
			return false, newUnknownEncoding(encoding)
		}
		encoding = norm
	}

	if !s.objectMode {
		switch c := chunk.(type) {
		case string:
			if s.decodeStrings {
				b, err := decodeString(c, encoding)
				if err != nil {
					return false, err
				}
				chunk = b
				encoding = BufferEncoding
			}
		case []byte:
			encoding = BufferEncoding
		default:
			return false, newInvalidArgType("chunk", "string or []byte", chunk)
		}
	}

	var lcErr error
	if s.ending {
		lcErr = newWriteAfterEnd()
	} else if s.destroyed {
		lcErr = newDestroyed("write")
	}
	if lcErr != nil {
		if cb != nil {
			cb := cb
			w.nextTick(func() { cb(lcErr) })
		}
		w.errorOrDestroy(lcErr, true)
		return false, nil
	}

	s.pendingcb++
	return w.writeOrBuffer(chunk, encoding, cb), nil
}

// writeOrBuffer accepts a validated chunk: it either dispatches immediately
// or enqueues, then computes the backpressure return value per the
// configured timing policy.
func (w *Writable) writeOrBuffer(chunk any, encoding string, cb Callback) bool {
	s := &w.state
	length := w.chunkLen(chunk)
	s.length += length

	if s.timing == TimingLegacy {
		// Backpressure reflects the buffer as of acceptance; a hook that
		// completes synchronously is not observed.
		ret := s.length < s.highWaterMark
		if !ret {
			s.needDrain = true
		}
		w.dispatchOrEnqueue(chunk, encoding, length, cb)
		return ret && s.errored == nil && !s.destroyed
	}

	w.dispatchOrEnqueue(chunk, encoding, length, cb)
	ret := s.length < s.highWaterMark || s.length == 0
	if !ret {
		s.needDrain = true
	}
	return ret && s.errored == nil && !s.destroyed
}

func (w *Writable) dispatchOrEnqueue(chunk any, encoding string, length int, cb Callback) {
	s := &w.state
	if s.writing || s.corked > 0 || s.errored != nil || !s.constructed {
		s.buffered.enqueue(writeEntry{chunk: chunk, encoding: encoding, cb: cb})
	} else {
		w.doWrite(length, chunk, encoding, nil, cb)
	}
}

// chunkLen returns a chunk's contribution to the buffered length: 1 in
// object mode, the byte length otherwise.
func (w *Writable) chunkLen(chunk any) int {
	if w.state.objectMode {
		return 1
	}
	switch c := chunk.(type) {
	case []byte:
		return len(c)
	case string:
		return len(c)
	default:
		return 1
	}
}

// Cork increments the cork depth; while corked, writes are queued rather
// than dispatched. Nested Cork calls require matching Uncork calls.
func (w *Writable) Cork() {
	w.enter()
	defer w.leave()
	w.state.corked++
}

// Uncork decrements the cork depth and, upon reaching zero, flushes the
// buffered queue if no write is in flight.
func (w *Writable) Uncork() {
	w.enter()
	defer w.leave()
	w.uncork()
}

func (w *Writable) uncork() {
	s := &w.state
	if s.corked > 0 {
		s.corked--
		if !s.writing {
			w.clearBuffer()
		}
	}
}

// SetDefaultEncoding changes the encoding assumed for string chunks written
// without an explicit encoding.
func (w *Writable) SetDefaultEncoding(encoding string) error {
	norm, ok := normalizeEncoding(encoding)
	if !ok || norm == BufferEncoding {
		return newUnknownEncoding(encoding)
	}
	w.state.defaultEncoding = norm
	return nil
}

// End signals that no further writes will be submitted. cb, if non-nil,
// fires exactly once when the stream finishes, or with the terminal error.
func (w *Writable) End(cb Callback) *Writable {
	w.enter()
	defer w.leave()
	w.end(nil, "", cb)
	return w
}

// EndChunk performs one last write, then ends the stream as End does.
func (w *Writable) EndChunk(chunk any, encoding string, cb Callback) *Writable {
	w.enter()
	defer w.leave()
	w.end(chunk, encoding, cb)
	return w
}

func (w *Writable) end(chunk any, encoding string, cb Callback) {
	s := &w.state

	var err error
	if chunk != nil {
		if _, werr := w.write(chunk, encoding, nil); werr != nil {
			err = werr
		}
	}

	// .end() fully uncorks.
	if s.corked > 0 {
		s.corked = 1
		w.uncork()
	}

	if err != nil {
		// pass the write failure through to cb below
	} else if s.errored == nil && !s.ending {
		// This is forgiving in order to avoid overly strict semantics when a
		// stream concludes between the caller's check and the call itself:
		// error listed first wins, redundant end() after finish or destroy
		// reports, everything else resolves with the stream.
		s.ending = true
		w.setPhase(PhaseEnding)
		w.finishMaybe(true)
		s.ended = true
	} else if s.finished {
		err = newAlreadyFinished("end")
	} else if s.destroyed {
		err = newDestroyed("end")
	}

	if cb != nil {
		switch {
		case err != nil:
			err := err
			w.nextTick(func() { cb(err) })
		case s.finished:
			w.nextTick(func() { cb(nil) })
		case s.destroyed || s.errored != nil:
			// The finish attempt above may have torn the stream down
			// synchronously (a final hook failing, for instance), after the
			// pending end callbacks were already flushed. Parking cb would
			// strand it.
			err := errOr(s.errored, newDestroyed("end"))
			w.nextTick(func() { cb(err) })
		default:
			s.onFinished = append(s.onFinished, cb)
		}
	}
}

// Destroy tears the stream down, flushing every still-pending completion
// callback with err (or a destroyed error when err is nil). Idempotent.
func (w *Writable) Destroy(err error) *Writable {
	w.enter()
	defer w.leave()
	w.destroyWithCallback(err, nil)
	return w
}

// --- status properties ---

// Writable reports whether the stream currently accepts writes.
func (w *Writable) Writable() bool {
	s := &w.state
	return !s.destroyed && !s.ending && s.errored == nil
}

// Ended reports whether End has been called.
func (w *Writable) Ended() bool { return w.state.ended }

// Finished reports whether the finish signal has fired.
func (w *Writable) Finished() bool { return w.state.finished }

// NeedDrain reports whether backpressure was signaled and the drain signal
// has not yet fired.
func (w *Writable) NeedDrain() bool { return w.state.needDrain }

// HighWaterMark returns the stream's effective high water mark.
func (w *Writable) HighWaterMark() int { return w.state.highWaterMark }

// Len returns the current buffered size: bytes, or items in object mode.
func (w *Writable) Len() int { return w.state.length }

// Corked returns the current cork nesting depth.
func (w *Writable) Corked() int { return w.state.corked }

// ObjectMode reports whether the stream is in object mode.
func (w *Writable) ObjectMode() bool { return w.state.objectMode }

// Errored returns the sticky terminal error, or nil.
func (w *Writable) Errored() error { return w.state.errored }

// Destroyed reports whether destruction has started.
func (w *Writable) Destroyed() bool { return w.state.destroyed }

// Closed reports whether the destroy hook has completed.
func (w *Writable) Closed() bool { return w.state.closed }

// Phase returns the coarse lifecycle phase.
func (w *Writable) Phase() Phase { return w.state.phase }

// DefaultEncoding returns the encoding assumed for string chunks written
// without an explicit encoding.
func (w *Writable) DefaultEncoding() string { return w.state.defaultEncoding }
