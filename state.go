package nodestreams

// Phase represents the coarse lifecycle phase of a writable stream.
//
// Phase Machine:
//
//	PhaseConstructing → PhaseOpen        [construct hook completed]
//	PhaseConstructing → PhaseEnding      [End() before construction finished]
//	PhaseConstructing → PhaseDestroyed   [Destroy() before construction finished]
//	PhaseOpen → PhaseEnding              [End()]
//	PhaseOpen → PhaseDestroyed           [Destroy() / terminal error]
//	PhaseEnding → PhaseFinished          [all writes + final hook complete]
//	PhaseEnding → PhaseDestroyed         [Destroy() / terminal error]
//	PhaseFinished → PhaseDestroyed       [auto-destroy or explicit Destroy()]
//	PhaseDestroyed → (terminal)
//
// The fine-grained condition flags (ending, writing, errored, ...) live on
// writableState; Phase is the coarse summary, kept in sync exclusively by
// setPhase so that illegal combinations are caught in one place.
type Phase uint8

const (
	// PhaseConstructing indicates an async construct hook has not yet completed.
	PhaseConstructing Phase = iota
	// PhaseOpen indicates the stream accepts writes.
	PhaseOpen
	// PhaseEnding indicates End() was called; buffered and in-flight writes
	// are still settling.
	PhaseEnding
	// PhaseFinished indicates all writes completed and the finish signal fired.
	PhaseFinished
	// PhaseDestroyed indicates the stream has been torn down.
	PhaseDestroyed
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseConstructing:
		return "Constructing"
	case PhaseOpen:
		return "Open"
	case PhaseEnding:
		return "Ending"
	case PhaseFinished:
		return "Finished"
	case PhaseDestroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// legalPhaseTransitions enumerates the permitted coarse transitions.
var legalPhaseTransitions = map[Phase][]Phase{
	PhaseConstructing: {PhaseOpen, PhaseEnding, PhaseDestroyed},
	PhaseOpen:         {PhaseEnding, PhaseDestroyed},
	PhaseEnding:       {PhaseFinished, PhaseDestroyed},
	PhaseFinished:     {PhaseDestroyed},
	PhaseDestroyed:    {},
}

// writableState holds all per-stream mutable state. It is exclusively owned
// by its Writable and mutated only from the stream's own methods and
// completion callbacks; it is never shared across streams.
type writableState struct {
	// terminal error, sticky once set
	errored error

	// in-flight write bookkeeping (single active write invariant)
	writecb  Callback
	writelen int

	buffered   writeQueue
	onFinished []Callback

	// coalesced after-write tick for synchronous completions
	afterWriteTick *afterWriteTickInfo

	// error recorded by a Destroy() that arrived before construction finished
	deferredDestroyErr error

	defaultEncoding string

	highWaterMark int
	length        int
	corked        int
	pendingcb     int

	phase  Phase
	timing WriteTiming

	objectMode    bool
	decodeStrings bool
	emitClose     bool
	autoDestroy   bool

	constructed      bool
	destroyRequested bool // Destroy() seen while not yet constructed
	writing          bool
	sync             bool
	ending           bool
	ended            bool
	finished         bool
	prefinished      bool
	finalCalled      bool
	destroyed        bool
	closed           bool
	closeEmitted     bool
	errorEmitted     bool
	needDrain        bool
	bufferProcessing bool
}

// afterWriteTickInfo coalesces consecutive synchronous write completions
// that share a no-op user callback into a single scheduled tick.
type afterWriteTickInfo struct {
	cb    Callback
	count int
}

// setPhase is the single mutator for the coarse phase. Illegal transitions
// indicate an internal bug; they are logged and ignored rather than applied.
func (w *Writable) setPhase(to Phase) {
	from := w.state.phase
	if from == to {
		return
	}
	for _, ok := range legalPhaseTransitions[from] {
		if ok == to {
			w.state.phase = to
			if l := pkgLogger(); l != nil {
				l.Debug().
					Str("from", from.String()).
					Str("to", to.String()).
					Log("writable phase transition")
			}
			return
		}
	}
	if l := pkgLogger(); l != nil {
		l.Err().
			Str("from", from.String()).
			Str("to", to.String()).
			Log("illegal writable phase transition suppressed")
	}
}

// needFinish reports whether the finish sequence may begin: the stream is
// ending, fully constructed, has nothing buffered or in flight, and has not
// hit a terminal condition.
func (s *writableState) needFinish() bool {
	return s.ending &&
		s.constructed &&
		!s.destroyed &&
		s.errored == nil &&
		s.length == 0 &&
		!s.buffered.hasPending() &&
		!s.finished &&
		!s.writing &&
		!s.errorEmitted &&
		!s.closeEmitted
}
