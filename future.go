package nodestreams

import "sync"

// Future is a one-shot settlement: it resolves (nil) or rejects (non-nil)
// exactly once. Settlement is observable three ways: the Done channel, the
// Err/Settled accessors, and Then callbacks. Unlike the core Writable
// machinery, a Future is safe for concurrent use.
type Future struct {
	mu      sync.Mutex
	done    chan struct{}
	err     error
	settled bool
	waiters []func(error)
}

// NewFuture returns an unsettled Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// SettledFuture returns a Future already settled with err.
func SettledFuture(err error) *Future {
	f := NewFuture()
	f.settle(err)
	return f
}

// Done returns a channel closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the settlement error, or nil if unsettled or resolved.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Settled reports whether the future has settled.
func (f *Future) Settled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// Then registers fn to run when the future settles. If it already settled,
// fn runs immediately on the calling goroutine; otherwise it runs on the
// goroutine that settles the future, in registration order.
func (f *Future) Then(fn func(error)) {
	f.mu.Lock()
	if f.settled {
		err := f.err
		f.mu.Unlock()
		fn(err)
		return
	}
	f.waiters = append(f.waiters, fn)
	f.mu.Unlock()
}

// settle resolves or rejects the future. Settling twice is a no-op; the
// first outcome wins.
func (f *Future) settle(err error) {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return
	}
	f.settled = true
	f.err = err
	waiters := f.waiters
	f.waiters = nil
	close(f.done)
	f.mu.Unlock()
	for _, fn := range waiters {
		fn(err)
	}
}
