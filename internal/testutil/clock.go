package testutil

import (
	"sync"
	"time"
)

// seqClockBase is an arbitrary fixed instant. Tests depend on Now()
// being reproducible, not on any particular date.
var seqClockBase = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// SeqClock is a thread-safe deterministic clock for tests.
//
// Each Now() call returns the base instant advanced by one more
// millisecond, so successive timestamps are strictly increasing and
// identical across runs. Unlike the wall clock, SeqClock can be reset
// so the same test scenario produces the same timestamps every time.
type SeqClock struct {
	mu    sync.Mutex
	calls int
}

// NewSeqClock creates a clock whose first Now() returns base + 1ms.
func NewSeqClock() *SeqClock {
	return &SeqClock{}
}

// Now returns the next timestamp in the sequence.
func (c *SeqClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return seqClockBase.Add(time.Duration(c.calls) * time.Millisecond)
}

// Calls returns how many timestamps have been handed out.
func (c *SeqClock) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Reset rewinds the clock so the next Now() repeats the first timestamp.
func (c *SeqClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
}
