package nodestreams

// StreamWriter is the writer-side protocol of a standard writable stream,
// expressed with futures instead of promises. Ready gates the next write,
// Write/Close report completion of one operation, Abort cancels, and Closed
// settles when the underlying stream terminates (nil on clean close).
type StreamWriter interface {
	Ready() *Future
	Write(chunk any) *Future
	Close() *Future
	Abort(reason any) *Future
	Closed() *Future
}

// SinkWriter adapts a *Writable to the StreamWriter protocol. Like the
// Writable it wraps, it must be driven from a single goroutine.
type SinkWriter struct {
	w      *Writable
	ready  *Future
	closed *Future
}

var _ StreamWriter = (*SinkWriter)(nil)

// NewSinkWriter wraps w. Termination of w, whether clean or not, settles
// every outstanding future so no caller is left waiting.
func NewSinkWriter(w *Writable) *SinkWriter {
	sw := &SinkWriter{
		w:      w,
		ready:  SettledFuture(nil),
		closed: NewFuture(),
	}

	w.On("drain", func(...any) {
		sw.ready.settle(nil)
	})
	w.Once("finish", func(...any) {
		sw.closed.settle(nil)
	})
	w.Once("error", func(args ...any) {
		var err error = newPrematureClose()
		if len(args) > 0 {
			if e, ok := args[0].(error); ok && e != nil {
				err = e
			}
		}
		sw.ready.settle(err)
		sw.closed.settle(err)
	})
	w.Once("close", func(...any) {
		// Destroyed before finish, with no error event: premature close.
		err := w.Errored()
		if err == nil && !w.Finished() {
			err = newPrematureClose()
		}
		sw.ready.settle(err)
		sw.closed.settle(err)
	})

	return sw
}

// Ready returns the current backpressure gate. Its identity changes each
// time backpressure begins: callers must re-fetch it before every write.
func (sw *SinkWriter) Ready() *Future {
	return sw.ready
}

// Write submits chunk to the sink. The returned future settles when the
// sink's completion callback fires. Backpressure signaled by this write
// replaces the ready future with a pending one that settles on drain.
func (sw *SinkWriter) Write(chunk any) *Future {
	f := NewFuture()
	ok, err := sw.w.Write(chunk, func(werr error) {
		f.settle(werr)
	})
	if err != nil {
		f.settle(err)
		return f
	}
	if !ok && sw.ready.Settled() && !sw.w.Destroyed() && sw.w.Errored() == nil {
		sw.ready = NewFuture()
	}
	return f
}

// Close ends the sink. The returned future resolves on finish and rejects
// if the sink terminates first.
func (sw *SinkWriter) Close() *Future {
	f := NewFuture()
	sw.w.End(func(err error) {
		f.settle(err)
	})
	return f
}

// Abort destroys the sink with an abort error carrying reason.
func (sw *SinkWriter) Abort(reason any) *Future {
	sw.w.Destroy(newAbortError(reason))
	return SettledFuture(nil)
}

// Closed settles when the sink terminates: nil after finish, the terminal
// error otherwise.
func (sw *SinkWriter) Closed() *Future {
	return sw.closed
}

// FromWriter builds a *Writable over a StreamWriter. Hook fields in opts
// are ignored; the adapter installs its own. Each write waits for the
// writer's readiness gate before forwarding; Final maps to Close and
// Destroy to Abort, with a local flag preventing a double close. If the
// writer closes before the sink was ended, the sink is destroyed with a
// premature-close error.
func FromWriter(writer StreamWriter, opts Options) (*Writable, error) {
	closed := false

	opts.Write = func(chunk any, encoding string, cb Callback) {
		writer.Ready().Then(func(err error) {
			if err != nil {
				cb(err)
				return
			}
			writer.Write(chunk).Then(cb)
		})
	}
	opts.Writev = nil
	opts.Construct = nil
	opts.Final = func(cb Callback) {
		closed = true
		writer.Close().Then(cb)
	}
	opts.Destroy = func(err error, cb Callback) {
		if closed {
			cb(err)
			return
		}
		closed = true
		var reason any
		if err != nil {
			reason = err
		}
		writer.Abort(reason).Then(func(error) {
			cb(err)
		})
	}

	w, err := New(&opts)
	if err != nil {
		return nil, err
	}

	writer.Closed().Then(func(err error) {
		if closed {
			return
		}
		closed = true
		w.enter()
		defer w.leave()
		w.destroyWithCallback(errOr(err, newPrematureClose()), nil)
	})

	return w, nil
}
