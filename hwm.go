package nodestreams

import "sync"

// Process-wide default high water marks, by mode. These are intentionally
// global runtime tunables: initialized once at process start, readable and
// overridable via the explicit getter/setter pair below, and read-only from
// the perspective of any individual stream.
var defaultHighWaterMark = struct {
	sync.RWMutex
	bytes   int
	objects int
}{
	bytes:   64 * 1024,
	objects: 16,
}

// GetDefaultHighWaterMark returns the process-wide default high water mark
// used by streams constructed without an explicit HighWaterMark option:
// an object count when objectMode is true, a byte count otherwise.
func GetDefaultHighWaterMark(objectMode bool) int {
	defaultHighWaterMark.RLock()
	defer defaultHighWaterMark.RUnlock()
	if objectMode {
		return defaultHighWaterMark.objects
	}
	return defaultHighWaterMark.bytes
}

// SetDefaultHighWaterMark overrides the process-wide default high water mark
// for the given mode. The value must be a non-negative integer.
func SetDefaultHighWaterMark(objectMode bool, value int) error {
	if value < 0 {
		return newInvalidArgValue("value", value, "must be a non-negative integer")
	}
	defaultHighWaterMark.Lock()
	defer defaultHighWaterMark.Unlock()
	if objectMode {
		defaultHighWaterMark.objects = value
	} else {
		defaultHighWaterMark.bytes = value
	}
	return nil
}

// resolveHighWaterMark picks the effective high water mark for a new stream:
// the explicit option if present, else the writable-half override when the
// stream is the writable half of a composite (duplex-like) entity, else the
// process-wide default for the mode.
func resolveHighWaterMark(opts *Options, isComposite bool) (int, error) {
	pick := opts.HighWaterMark
	if pick == nil && isComposite {
		pick = opts.WritableHighWaterMark
	}
	if pick != nil {
		if *pick < 0 {
			return 0, newInvalidArgValue("highWaterMark", *pick, "must be a non-negative integer")
		}
		return *pick, nil
	}
	return GetDefaultHighWaterMark(opts.ObjectMode), nil
}
