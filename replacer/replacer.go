// Package replacer implements component E: the pluggable buffer-pool
// victim policy. The Replacer interface is grounded on the four-method
// contract used across the pack's buffer-pool implementations (see
// other_examples/sibexico-HexEngine__replacer.go and
// other_examples/bietkhonhungvandi212-array-db__replacer.go); spec.md
// §9 calls for a fixed, interface-selected variant chosen once at pool
// construction rather than swapped at runtime, so BufferPoolManager
// holds one Replacer for its lifetime.
package replacer

import "slotdb/logging"

// Replacer tracks which frames are currently evictable and picks a
// victim among them. Frames start out not tracked; Unpin makes a frame
// a victim candidate, Pin removes it from consideration. RecordAccess
// is called on every touch of a frame (including while pinned) so a
// recency- or frequency-based policy can keep its history current.
type Replacer interface {
	// RecordAccess notes that frame was just touched.
	RecordAccess(frame int)
	// Pin removes frame from victim consideration (it is in use).
	Pin(frame int)
	// Unpin makes frame eligible for eviction again.
	Unpin(frame int)
	// Victim picks and removes one evictable frame, per the policy's
	// algorithm. Returns (0, false) if no frame is evictable.
	Victim() (int, bool)
	// Size returns the number of currently evictable frames.
	Size() int
}

// Kind names the selectable replacer variants, matching config.ReplacerKind's
// string form ("clock", "lruk").
type Kind string

const (
	KindClock Kind = "clock"
	KindLRUK  Kind = "lruk"
)

// New constructs the replacer named by kind for a pool of the given
// frame capacity. k is only meaningful for KindLRUK (spec.md default 2).
// An unrecognized kind falls back to CLOCK (config.Validate rejects
// anything else before this point; a bare-string caller that bypasses
// it still gets a named, logged policy rather than a silent surprise).
func New(kind Kind, capacity int, k int) Replacer {
	switch kind {
	case KindClock:
		return NewClock(capacity)
	case KindLRUK:
		return NewLRUK(capacity, k)
	default:
		logging.Component("replacer").WithField("kind", kind).Warn("unrecognized replacer kind, defaulting to clock")
		return NewClock(capacity)
	}
}
