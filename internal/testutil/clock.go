// Package testutil holds deterministic helpers shared by tests and the
// scenario harness.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a DeterministicClock reports.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DefaultStep is the distance between two consecutive instants.
const DefaultStep = time.Second

// DeterministicClock is a wall clock that advances by a fixed step on every
// call to Now, so stores stamped with it produce identical timestamps on
// every run.
//
// Safe for concurrent use.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	ticks int64
}

// NewDeterministicClock starts at Epoch with DefaultStep.
//
// The first call to Now returns Epoch.
func NewDeterministicClock() *DeterministicClock {
	return NewClockAt(Epoch, DefaultStep)
}

// NewClockAt starts at start and advances by step.
func NewClockAt(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{start: start.UTC(), step: step}
}

// Now returns the current instant and advances the clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.at(c.ticks)
	c.ticks++
	return t
}

// Peek returns the instant the next Now call will report.
func (c *DeterministicClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at(c.ticks)
}

// Ticks returns how many instants have been handed out.
func (c *DeterministicClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}

func (c *DeterministicClock) at(tick int64) time.Time {
	return c.start.Add(time.Duration(tick) * c.step)
}
