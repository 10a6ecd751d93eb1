// Package sequence issues the global operation sequence.
package sequence

import "sync/atomic"

// Sequencer is the single authority for operation sequencing: every
// command takes its sequence here before touching the log, and
// recovery only ever moves the counter forward.
type Sequencer struct {
	last atomic.Uint64
}

// New starts the sequencer at start, so the first Next returns
// start+1. Seed it with the last durable sequence when reopening.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next issues the following sequence.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current reports the last issued sequence.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Reset repositions the counter. Recovery calls it after snapshot
// restore and replay; it must never move past sequences already
// handed out.
func (s *Sequencer) Reset(v uint64) {
	s.last.Store(v)
}
