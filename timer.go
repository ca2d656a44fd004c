package raft

import (
	"math/rand"
	"time"
)

// electionTimeout returns a duration sampled uniformly from [min, max).
// It is re-sampled on every reset.
func electionTimeout(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// timerService owns a single-shot timer of one kind (election or heartbeat)
// and a generation counter, so that a timer event delivered after the timer
// has since been reset is recognized as stale and dropped. A bare
// <-chan time.Time field that gets clobbered by each reset would be
// sufficient as long as nothing ever reads from a channel after it's been
// replaced, but the generation counter makes the "ignore late events from
// a cancelled generation" rule explicit rather than implicit in channel
// garbage collection.
type timerService struct {
	gen uint64
	C   chan uint64 // fires with the generation that was current at Reset
}

func newTimerService() *timerService {
	return &timerService{C: make(chan uint64, 1)}
}

// Reset cancels any outstanding timer of this kind and starts a fresh one
// that fires after d. The returned generation is delivered on C when (and
// only when) this specific timer fires.
func (t *timerService) Reset(d time.Duration) uint64 {
	t.gen++
	gen := t.gen
	time.AfterFunc(d, func() {
		select {
		case t.C <- gen:
		default:
			// A previous un-drained fire is still sitting in the buffered
			// channel. Timers can fire out of order, so keep whichever
			// generation is newer (only the most recent generation is
			// meaningful).
			select {
			case prev := <-t.C:
				if prev > gen {
					gen = prev
				}
			default:
			}
			t.C <- gen
		}
	})
	return gen
}

// Fired reports whether gen, received off C, is still the current
// generation. A stale generation means this timer was reset again (or a
// different kind of event already advanced the role) between the timer
// firing and the event being processed, and must be ignored.
func (t *timerService) Fired(gen uint64) bool {
	return gen == t.gen
}
