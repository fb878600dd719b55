package nodestreams

// compactThreshold is the number of consumed leading entries tolerated
// before the backing slice is physically compacted. Keeps memory bounded on
// long-lived queues that are mostly drained in place.
const compactThreshold = 256

// writeEntry is one pending write: the chunk, its encoding, and the
// completion callback promised to the caller.
type writeEntry struct {
	chunk    any
	cb       Callback
	encoding string
}

// writeQueue is the buffered-write queue: an ordered FIFO of pending writes
// accumulated while the sink cannot currently accept a write. Entries are
// consumed in place via an index rather than shifted one at a time; no
// backpressure logic lives here.
type writeQueue struct {
	entries []writeEntry
	index   int // first unconsumed entry
}

// enqueue appends a pending write.
func (q *writeQueue) enqueue(e writeEntry) {
	q.entries = append(q.entries, e)
}

// hasPending reports whether unconsumed entries exist.
func (q *writeQueue) hasPending() bool {
	return q.index < len(q.entries)
}

// pending returns the number of unconsumed entries.
func (q *writeQueue) pending() int {
	return len(q.entries) - q.index
}

// drainOne removes and returns the oldest unconsumed entry. The caller must
// have checked hasPending.
func (q *writeQueue) drainOne() writeEntry {
	e := q.entries[q.index]
	q.entries[q.index] = writeEntry{}
	q.index++
	return e
}

// pendingEntries returns a copy of the unconsumed entries.
func (q *writeQueue) pendingEntries() []writeEntry {
	out := make([]writeEntry, q.pending())
	copy(out, q.entries[q.index:])
	return out
}

// compact physically removes consumed leading entries once their count
// exceeds compactThreshold.
func (q *writeQueue) compact() {
	if q.index == len(q.entries) {
		q.reset()
		return
	}
	if q.index > compactThreshold {
		n := copy(q.entries, q.entries[q.index:])
		for i := n; i < len(q.entries); i++ {
			q.entries[i] = writeEntry{}
		}
		q.entries = q.entries[:n]
		q.index = 0
	}
}

// reset discards all entries and returns the queue to its zero state,
// retaining the backing slice.
func (q *writeQueue) reset() {
	for i := range q.entries {
		q.entries[i] = writeEntry{}
	}
	q.entries = q.entries[:0]
	q.index = 0
}
