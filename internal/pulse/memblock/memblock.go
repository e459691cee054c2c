// Package memblock implements the shared memory-block accounting registry
// spec.md's Context owns one of (§3, "memblock_stat") and hands to the
// framer and to child streams. Grounded on the teacher's small
// shared-resource accounting struct shape (a counted registry outliving
// any single owner) used by its audio mixer.
package memblock

import "sync/atomic"

// Stat is a reference-counted usage counter for outstanding memory blocks.
// It is shared between the Context, the transport framer, and every child
// stream; it outlives the Context for as long as any block it accounts for
// remains live (spec §3 invariants, §5 "Shared resources").
//
// Stat is safe for concurrent use.
type Stat struct {
	refs      int64
	allocated int64
	accounted int64
}

// New creates an empty, singly-referenced Stat.
func New() *Stat {
	return &Stat{refs: 1}
}

// Ref increments the sharer count and returns s for chaining.
func (s *Stat) Ref() *Stat {
	atomic.AddInt64(&s.refs, 1)
	return s
}

// Unref decrements the sharer count, reporting whether this was the last
// reference.
func (s *Stat) Unref() bool {
	return atomic.AddInt64(&s.refs, -1) == 0
}

// Account records n additional bytes as allocated/accounted for, called
// when a memblock chunk is delivered to a record stream (spec §4.3
// memblock path).
func (s *Stat) Account(n int) {
	atomic.AddInt64(&s.allocated, 1)
	atomic.AddInt64(&s.accounted, int64(n))
}

// Allocated returns the number of memblock chunks accounted for so far.
func (s *Stat) Allocated() int64 {
	return atomic.LoadInt64(&s.allocated)
}

// AccountedBytes returns the cumulative byte count accounted for so far.
func (s *Stat) AccountedBytes() int64 {
	return atomic.LoadInt64(&s.accounted)
}
