package nodestreams

import (
	"errors"
	"testing"
)

// TestEnd_FinishSequence tests the prefinish/finish signal order and the
// end callback resolving with the stream.
func TestEnd_FinishSequence(t *testing.T) {
	t.Parallel()

	w, err := New(&Options{
		Write: func(chunk any, encoding string, cb Callback) { cb(nil) },
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var events []string
	w.On("prefinish", func(...any) { events = append(events, "prefinish") })
	w.On("finish", func(...any) { events = append(events, "finish") })
	w.On("close", func(...any) { events = append(events, "close") })

	endCb := false
	w.EndChunk("last", "", func(err error) {
		if err != nil {
			t.Errorf("end callback error: %v", err)
		}
		endCb = true
	})

	if !endCb {
		t.Error("end callback should have fired")
	}
	if len(events) != 3 || events[0] != "prefinish" || events[1] != "finish" || events[2] != "close" {
		t.Errorf("events = %v, want [prefinish finish close]", events)
	}
	if !w.Ended() || !w.Finished() {
		t.Error("Ended and Finished should both be true")
	}
	if !w.Destroyed() || !w.Closed() {
		t.Error("autoDestroy should have torn the stream down after finish")
	}
}

// TestEnd_WaitsForInFlightWrite tests guarantee (d): finish never precedes
// the last promised completion callback.
func TestEnd_WaitsForInFlightWrite(t *testing.T) {
	t.Parallel()

	var pending []Callback
	w, err := New(&Options{
		Write: func(chunk any, encoding string, cb Callback) {
			pending = append(pending, cb)
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var order []string
	if _, err := w.Write("x", func(error) { order = append(order, "write") }); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	w.On("finish", func(...any) { order = append(order, "finish") })
	w.End(func(error) { order = append(order, "end") })

	if len(order) != 0 {
		t.Fatalf("order = %v before completion, want empty", order)
	}

	pending[0](nil)

	// End-registered callbacks resolve just ahead of the finish signal.
	if len(order) != 3 || order[0] != "write" || order[1] != "end" || order[2] != "finish" {
		t.Errorf("order = %v, want [write end finish]", order)
	}
}

// TestEnd_WriteAfterEnd tests that writes after End report through the
// callback with the dedicated code.
func TestEnd_WriteAfterEnd(t *testing.T) {
	t.Parallel()

	var pending []Callback
	w, err := New(&Options{
		Final: func(cb Callback) { pending = append(pending, cb) },
		Write: func(chunk any, encoding string, cb Callback) { cb(nil) },
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	w.End(nil)

	var errorEvents []error
	w.On("error", func(args ...any) {
		if len(args) > 0 {
			if e, ok := args[0].(error); ok {
				errorEvents = append(errorEvents, e)
			}
		}
	})

	var cbErr error
	ok, err := w.Write("late", func(e error) { cbErr = e })
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if ok {
		t.Error("write after end should report false")
	}
	if CodeOf(cbErr) != CodeStreamWriteAfterEnd {
		t.Errorf("callback CodeOf = %q, want %q", CodeOf(cbErr), CodeStreamWriteAfterEnd)
	}
	if len(errorEvents) != 1 || CodeOf(errorEvents[0]) != CodeStreamWriteAfterEnd {
		t.Errorf("error events = %v, want one write-after-end", errorEvents)
	}
}

// TestEnd_Twice tests redundant End calls after the stream has finished.
func TestEnd_Twice(t *testing.T) {
	t.Parallel()

	w, err := New(&Options{
		AutoDestroy: Bool(false),
		Write:       func(chunk any, encoding string, cb Callback) { cb(nil) },
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	w.End(nil)

	var cbErr error
	fired := false
	w.End(func(err error) {
		cbErr = err
		fired = true
	})
	if !fired {
		t.Fatal("second end callback did not fire")
	}
	if CodeOf(cbErr) != CodeStreamAlreadyFinished {
		t.Errorf("CodeOf = %q, want %q", CodeOf(cbErr), CodeStreamAlreadyFinished)
	}
}

// TestFinal_AsyncGatesFinish tests that finish waits for the final hook's
// completion callback.
func TestFinal_AsyncGatesFinish(t *testing.T) {
	t.Parallel()

	var finalCb Callback
	finalCalls := 0
	w, err := New(&Options{
		Write: func(chunk any, encoding string, cb Callback) { cb(nil) },
		Final: func(cb Callback) {
			finalCalls++
			finalCb = cb
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var events []string
	w.On("prefinish", func(...any) { events = append(events, "prefinish") })
	w.On("finish", func(...any) { events = append(events, "finish") })
	w.End(func(error) { events = append(events, "end") })

	if finalCalls != 1 {
		t.Fatalf("final hook called %d times, want 1", finalCalls)
	}
	if len(events) != 0 {
		t.Fatalf("events = %v before final completion, want none", events)
	}

	finalCb(nil)

	if len(events) != 3 || events[0] != "prefinish" || events[1] != "end" || events[2] != "finish" {
		t.Errorf("events = %v, want [prefinish end finish]", events)
	}
}

// TestFinal_Error tests an erroring final hook: end callbacks reject, the
// error surfaces, finish never fires.
func TestFinal_Error(t *testing.T) {
	t.Parallel()

	boom := errors.New("final boom")
	w, err := New(&Options{
		Write: func(chunk any, encoding string, cb Callback) { cb(nil) },
		Final: func(cb Callback) { cb(boom) },
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	finished := false
	w.On("finish", func(...any) { finished = true })
	var errorEvent error
	w.On("error", func(args ...any) { errorEvent, _ = args[0].(error) })

	var endErr error
	w.End(func(e error) { endErr = e })

	if endErr != boom {
		t.Errorf("end callback error = %v, want boom", endErr)
	}
	if !errors.Is(errorEvent, boom) {
		t.Errorf("error event = %v, want boom", errorEvent)
	}
	if finished {
		t.Error("finish must not fire after a final error")
	}
	if !w.Destroyed() {
		t.Error("autoDestroy should tear down after a final error")
	}
}

// TestFinal_PanicBecomesError tests that a panicking final hook converts to
// an error instead of unwinding the caller.
func TestFinal_PanicBecomesError(t *testing.T) {
	t.Parallel()

	w, err := New(&Options{
		Write: func(chunk any, encoding string, cb Callback) { cb(nil) },
		Final: func(cb Callback) { panic("final exploded") },
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var endErr error
	w.End(func(e error) { endErr = e })

	if endErr == nil {
		t.Fatal("end callback should receive the converted panic")
	}
}

// TestDestroy_FlushesBufferedWrites tests that destruction completes five
// corked writes exactly once each with a destroyed error, without invoking
// the write hook.
func TestDestroy_FlushesBufferedWrites(t *testing.T) {
	t.Parallel()

	hookCalls := 0
	w, err := New(&Options{
		Write: func(chunk any, encoding string, cb Callback) {
			hookCalls++
			cb(nil)
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	w.Cork()
	cbErrs := make([]int, 5)
	for i := 0; i < 5; i++ {
		i := i
		if _, err := w.Write("x", func(e error) {
			if CodeOf(e) != CodeStreamDestroyed {
				t.Errorf("write %d: CodeOf = %q, want %q", i, CodeOf(e), CodeStreamDestroyed)
			}
			cbErrs[i]++
		}); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}

	w.Destroy(nil)

	for i, n := range cbErrs {
		if n != 1 {
			t.Errorf("write %d callback fired %d times, want exactly 1", i, n)
		}
	}
	if hookCalls != 0 {
		t.Errorf("write hook called %d times after destroy, want 0", hookCalls)
	}
	if !w.Destroyed() || !w.Closed() {
		t.Error("stream should be destroyed and closed")
	}
}

// TestDestroy_Idempotent tests that repeated destruction neither re-runs
// the hook nor re-emits close.
func TestDestroy_Idempotent(t *testing.T) {
	t.Parallel()

	destroyCalls := 0
	w, err := New(&Options{
		Write: func(chunk any, encoding string, cb Callback) { cb(nil) },
		Destroy: func(err error, cb Callback) {
			destroyCalls++
			cb(nil)
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	closes := 0
	w.On("close", func(...any) { closes++ })

	w.Destroy(nil)
	w.Destroy(nil)

	if destroyCalls != 1 {
		t.Errorf("destroy hook called %d times, want 1", destroyCalls)
	}
	if closes != 1 {
		t.Errorf("close fired %d times, want 1", closes)
	}
}

// TestDestroy_WithError tests error propagation through the destroy hook
// and the error event.
func TestDestroy_WithError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var hookErr error
	w, err := New(&Options{
		Write: func(chunk any, encoding string, cb Callback) { cb(nil) },
		Destroy: func(err error, cb Callback) {
			hookErr = err
			cb(err)
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var errorEvent error
	var events []string
	w.On("error", func(args ...any) {
		errorEvent, _ = args[0].(error)
		events = append(events, "error")
	})
	w.On("close", func(...any) { events = append(events, "close") })

	w.Destroy(boom)

	if hookErr != boom {
		t.Errorf("destroy hook error = %v, want boom", hookErr)
	}
	if errorEvent != boom {
		t.Errorf("error event = %v, want boom", errorEvent)
	}
	if len(events) != 2 || events[0] != "error" || events[1] != "close" {
		t.Errorf("events = %v, want [error close]", events)
	}
	if w.Errored() != boom {
		t.Errorf("Errored = %v, want boom", w.Errored())
	}
}

// TestDestroy_EmitCloseDisabled tests the emitClose option.
func TestDestroy_EmitCloseDisabled(t *testing.T) {
	t.Parallel()

	w, err := New(&Options{
		EmitClose: Bool(false),
		Write:     func(chunk any, encoding string, cb Callback) { cb(nil) },
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	closes := 0
	w.On("close", func(...any) { closes++ })
	w.Destroy(nil)

	if closes != 0 {
		t.Errorf("close fired %d times with emitClose off, want 0", closes)
	}
	if !w.Closed() {
		t.Error("Closed should still report true")
	}
}

// TestWriteError_DeliveredEverywhere tests the failure contract: the
// write's own callback, all buffered callbacks, and end callbacks all
// receive the error.
func TestWriteError_DeliveredEverywhere(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk gone")
	var pending []Callback
	w, err := New(&Options{
		Write: func(chunk any, encoding string, cb Callback) {
			pending = append(pending, cb)
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var firstErr, secondErr, endErr error
	if _, err := w.Write("a", func(e error) { firstErr = e }); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if _, err := w.Write("b", func(e error) { secondErr = e }); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	w.End(func(e error) { endErr = e })

	pending[0](boom)

	if firstErr != boom {
		t.Errorf("failed write callback = %v, want boom", firstErr)
	}
	if !errors.Is(secondErr, boom) {
		t.Errorf("buffered write callback = %v, want boom", secondErr)
	}
	if !errors.Is(endErr, boom) {
		t.Errorf("end callback = %v, want boom", endErr)
	}
	if w.Errored() != boom {
		t.Errorf("Errored = %v, want boom", w.Errored())
	}
	if len(pending) != 1 {
		t.Errorf("hook dispatched %d writes, want only the first", len(pending))
	}
}

// TestWriteError_SyncCompletionDeferred tests guarantee (e): a hook that
// fails synchronously still reports asynchronously, after Write returns.
func TestWriteError_SyncCompletionDeferred(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var ticks []func()
	sched := SchedulerFunc(func(fn func()) { ticks = append(ticks, fn) })

	w, err := New(&Options{
		Scheduler: sched,
		Write: func(chunk any, encoding string, cb Callback) {
			cb(boom)
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var cbErr error
	cbFired := false
	if _, err := w.Write("x", func(e error) {
		cbErr = e
		cbFired = true
	}); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	if cbFired {
		t.Fatal("synchronous hook failure must not call back before Write returns")
	}

	for len(ticks) > 0 {
		tick := ticks[0]
		ticks = ticks[1:]
		tick()
	}
	if !cbFired || cbErr != boom {
		t.Errorf("callback = (%v, fired=%v), want boom after ticks", cbErr, cbFired)
	}
}

// TestMultipleCallback_Detected tests that a hook invoking its callback
// twice surfaces the dedicated error.
func TestMultipleCallback_Detected(t *testing.T) {
	t.Parallel()

	w, err := New(&Options{
		Write: func(chunk any, encoding string, cb Callback) {
			cb(nil)
			cb(nil)
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var errorEvent error
	w.On("error", func(args ...any) { errorEvent, _ = args[0].(error) })

	if _, err := w.Write("x", nil); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	if CodeOf(errorEvent) != CodeMultipleCallback {
		t.Errorf("error event CodeOf = %q, want %q", CodeOf(errorEvent), CodeMultipleCallback)
	}
}

// TestConstruct_GatesWrites tests that writes buffer until the construct
// hook completes, then flush in order.
func TestConstruct_GatesWrites(t *testing.T) {
	t.Parallel()

	var constructCb Callback
	var dispatched []string
	w, err := New(&Options{
		Construct: func(cb Callback) { constructCb = cb },
		Write: func(chunk any, encoding string, cb Callback) {
			dispatched = append(dispatched, string(chunk.([]byte)))
			cb(nil)
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if got := w.Phase(); got != PhaseConstructing {
		t.Errorf("Phase = %v, want Constructing", got)
	}

	if _, err := w.Write("a", nil); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if _, err := w.Write("b", nil); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if constructCb == nil {
		t.Fatal("construct hook was not invoked")
	}
	if len(dispatched) != 0 {
		t.Fatalf("dispatched %v before construction, want none", dispatched)
	}

	constructCb(nil)

	if got := w.Phase(); got != PhaseOpen {
		t.Errorf("Phase = %v, want Open", got)
	}
	if len(dispatched) != 2 || dispatched[0] != "a" || dispatched[1] != "b" {
		t.Errorf("dispatched = %v, want [a b]", dispatched)
	}
}

// TestConstruct_SyncCompletion tests a construct hook that completes
// immediately: the stream opens on the first public call.
func TestConstruct_SyncCompletion(t *testing.T) {
	t.Parallel()

	dispatched := 0
	w, err := New(&Options{
		Construct: func(cb Callback) { cb(nil) },
		Write: func(chunk any, encoding string, cb Callback) {
			dispatched++
			cb(nil)
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if _, err := w.Write("x", nil); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if dispatched != 1 {
		t.Errorf("dispatched = %d, want 1", dispatched)
	}
	if got := w.Phase(); got != PhaseOpen {
		t.Errorf("Phase = %v, want Open", got)
	}
}

// TestConstruct_Error tests that construction failure destroys the stream
// and rejects buffered writes.
func TestConstruct_Error(t *testing.T) {
	t.Parallel()

	boom := errors.New("setup failed")
	var constructCb Callback
	w, err := New(&Options{
		Construct: func(cb Callback) { constructCb = cb },
		Write:     func(chunk any, encoding string, cb Callback) { cb(nil) },
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var writeErr error
	if _, err := w.Write("x", func(e error) { writeErr = e }); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	var errorEvent error
	w.On("error", func(args ...any) { errorEvent, _ = args[0].(error) })

	constructCb(boom)

	if !errors.Is(errorEvent, boom) {
		t.Errorf("error event = %v, want boom", errorEvent)
	}
	if !errors.Is(writeErr, boom) {
		t.Errorf("buffered write callback = %v, want boom", writeErr)
	}
	if !w.Destroyed() {
		t.Error("stream should be destroyed after construct failure")
	}
}

// TestConstruct_DestroyBeforeComplete tests that a destroy during
// construction defers the destroy hook until construction resolves.
func TestConstruct_DestroyBeforeComplete(t *testing.T) {
	t.Parallel()

	var constructCb Callback
	destroyCalls := 0
	w, err := New(&Options{
		Construct: func(cb Callback) { constructCb = cb },
		Write:     func(chunk any, encoding string, cb Callback) { cb(nil) },
		Destroy: func(err error, cb Callback) {
			destroyCalls++
			cb(nil)
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	closes := 0
	w.On("close", func(...any) { closes++ })

	w.Destroy(nil)
	if !w.Destroyed() {
		t.Error("Destroyed should report true immediately")
	}
	if destroyCalls != 0 {
		t.Fatal("destroy hook must wait for construction")
	}

	constructCb(nil)

	if destroyCalls != 1 {
		t.Errorf("destroy hook called %d times, want 1", destroyCalls)
	}
	if closes != 1 {
		t.Errorf("close fired %d times, want 1", closes)
	}
}

// TestAbortSignal_DestroysStream tests the cancellation token wiring.
func TestAbortSignal_DestroysStream(t *testing.T) {
	t.Parallel()

	controller := NewAbortController()
	w, err := New(&Options{
		Signal: controller.Signal(),
		Write:  func(chunk any, encoding string, cb Callback) { cb(nil) },
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var errorEvent error
	w.On("error", func(args ...any) { errorEvent, _ = args[0].(error) })

	reason := errors.New("user hit cancel")
	controller.Abort(reason)

	if !w.Destroyed() {
		t.Error("abort should destroy the stream")
	}
	if CodeOf(errorEvent) != CodeAbort {
		t.Errorf("error event CodeOf = %q, want %q", CodeOf(errorEvent), CodeAbort)
	}
	if !errors.Is(errorEvent, reason) {
		t.Errorf("abort error should carry the reason, got %v", errorEvent)
	}
}

// TestPeer_ErrorNotification tests that a paired read side hears about
// terminal errors and gates auto-destroy.
func TestPeer_ErrorNotification(t *testing.T) {
	t.Parallel()

	t.Run("notify", func(t *testing.T) {
		t.Parallel()
		peer := &fakePeer{ready: true}
		boom := errors.New("boom")
		w, err := New(&Options{
			Peer:  peer,
			Write: func(chunk any, encoding string, cb Callback) { cb(boom) },
		})
		if err != nil {
			t.Fatalf("New error: %v", err)
		}
		if _, err := w.Write("x", nil); err != nil {
			t.Fatalf("Write error: %v", err)
		}
		if len(peer.errs) == 0 || peer.errs[0] != boom {
			t.Errorf("peer errors = %v, want [boom]", peer.errs)
		}
	})

	t.Run("gatesAutoDestroy", func(t *testing.T) {
		t.Parallel()
		peer := &fakePeer{ready: false}
		w, err := New(&Options{
			Peer:  peer,
			Write: func(chunk any, encoding string, cb Callback) { cb(nil) },
		})
		if err != nil {
			t.Fatalf("New error: %v", err)
		}
		w.End(nil)
		if !w.Finished() {
			t.Error("stream should finish")
		}
		if w.Destroyed() {
			t.Error("auto-destroy must wait for the peer")
		}

		peer.ready = true
		w.Destroy(nil)
		if !w.Destroyed() {
			t.Error("explicit destroy should proceed")
		}
	})
}

type fakePeer struct {
	errs  []error
	ready bool
}

func (p *fakePeer) NotifyError(err error)  { p.errs = append(p.errs, err) }
func (p *fakePeer) AutoDestroyReady() bool { return p.ready }
